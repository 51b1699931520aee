package bigcache

import (
	"context"
	"errors"
	"time"

	bc "github.com/allegro/bigcache/v3"

	"github.com/unkn0wn-root/dualstore/changelog"
	"github.com/unkn0wn-root/dualstore/internal/util"
	pr "github.com/unkn0wn-root/dualstore/provider"
)

var ErrNilSink = errors.New("bigcache provider: change sink is required")

// Provider serves the cache tier from an in-process BigCache. Change records go to Sink
// after the write; when Append fails the write is rolled back so the cache never holds
// a value the drainer will not see.
type Provider struct {
	c     *bc.BigCache
	sink  changelog.Sink
	locks util.Stripes
}

var _ pr.Port = (*Provider)(nil)

type Config struct {
	LifeWindow         time.Duration
	CleanWindow        time.Duration
	MaxEntriesInWindow int
	MaxEntrySize       int
	HardMaxCacheSizeMB int // ~ memory limit; 0 = unlimited

	Sink changelog.Sink
}

func New(cfg Config) (*Provider, error) {
	if cfg.Sink == nil {
		return nil, ErrNilSink
	}
	conf := bc.DefaultConfig(cfg.LifeWindow)
	if cfg.CleanWindow > 0 {
		conf.CleanWindow = cfg.CleanWindow
	}
	if cfg.MaxEntriesInWindow > 0 {
		conf.MaxEntriesInWindow = cfg.MaxEntriesInWindow
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	c, err := bc.New(context.Background(), conf)
	if err != nil {
		return nil, err
	}
	return &Provider{c: c, sink: cfg.Sink}, nil
}

func (p *Provider) SetNX(ctx context.Context, shardKey, field string, value []byte, change changelog.Record) (pr.SetNXReply, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	k := util.CompositeKey(shardKey, field)
	mu := p.locks.For(k)
	mu.Lock()
	defer mu.Unlock()

	_, err := p.c.Get(k)
	if err == nil {
		return pr.KeyNotSet, nil
	}
	if !errors.Is(err, bc.ErrEntryNotFound) {
		return 0, err
	}
	if err := p.c.Set(k, value); err != nil {
		return 0, err
	}
	if err := p.sink.Append(ctx, change); err != nil {
		_ = p.c.Delete(k)
		return 0, err
	}
	return pr.KeySet, nil
}

func (p *Provider) HSet(ctx context.Context, shardKey, field string, value []byte, change changelog.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	k := util.CompositeKey(shardKey, field)
	mu := p.locks.For(k)
	mu.Lock()
	defer mu.Unlock()

	prev, prevErr := p.c.Get(k)
	if err := p.c.Set(k, value); err != nil {
		return err
	}
	if err := p.sink.Append(ctx, change); err != nil {
		if prevErr == nil {
			_ = p.c.Set(k, prev)
		} else {
			_ = p.c.Delete(k)
		}
		return err
	}
	return nil
}

func (p *Provider) HGet(ctx context.Context, shardKey, field string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	b, err := p.c.Get(util.CompositeKey(shardKey, field))
	if errors.Is(err, bc.ErrEntryNotFound) {
		return nil, false, nil
	}
	return b, err == nil, err
}

func (p *Provider) Close(_ context.Context) error {
	return p.c.Close()
}
