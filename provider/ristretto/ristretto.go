package ristretto

import (
	"context"
	"errors"
	"time"

	rc "github.com/dgraph-io/ristretto"

	"github.com/unkn0wn-root/dualstore/changelog"
	"github.com/unkn0wn-root/dualstore/internal/util"
	pr "github.com/unkn0wn-root/dualstore/provider"
)

var ErrNilSink = errors.New("ristretto provider: change sink is required")

// Provider serves the cache tier from an in-process Ristretto cache. Ristretto may drop
// writes under its admission policy; such writes are reported as pr.ErrRejected and no
// change record is appended.
type Provider struct {
	c     *rc.Cache
	ttl   time.Duration
	sink  changelog.Sink
	locks util.Stripes
}

var _ pr.Port = (*Provider)(nil)

type Config struct {
	NumCounters int64
	MaxCost     int64 // cost of an entry is its size in bytes
	BufferItems int64
	Metrics     bool
	TTL         time.Duration // 0 => no expiry

	Sink changelog.Sink
}

func New(cfg Config) (*Provider, error) {
	if cfg.NumCounters <= 0 || cfg.MaxCost <= 0 || cfg.BufferItems <= 0 {
		return nil, errors.New("ristretto: invalid config")
	}
	if cfg.Sink == nil {
		return nil, ErrNilSink
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	return &Provider{c: c, ttl: cfg.TTL, sink: cfg.Sink}, nil
}

// store writes synchronously and verifies admission.
func (p *Provider) store(k string, value []byte) error {
	if !p.c.SetWithTTL(k, value, int64(len(value)), p.ttl) {
		return pr.ErrRejected
	}
	p.c.Wait()
	if _, ok := p.get(k); !ok {
		return pr.ErrRejected
	}
	return nil
}

func (p *Provider) get(k string) ([]byte, bool) {
	v, ok := p.c.Get(k)
	if !ok {
		return nil, false
	}
	b, _ := v.([]byte)
	if b == nil {
		// self-heal: drop unexpected entry shape
		p.c.Del(k)
		return nil, false
	}
	return b, true
}

func (p *Provider) SetNX(ctx context.Context, shardKey, field string, value []byte, change changelog.Record) (pr.SetNXReply, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	k := util.CompositeKey(shardKey, field)
	mu := p.locks.For(k)
	mu.Lock()
	defer mu.Unlock()

	if _, ok := p.get(k); ok {
		return pr.KeyNotSet, nil
	}
	if err := p.store(k, value); err != nil {
		return 0, err
	}
	if err := p.sink.Append(ctx, change); err != nil {
		p.c.Del(k)
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

	prev, hadPrev := p.get(k)
	if err := p.store(k, value); err != nil {
		return err
	}
	if err := p.sink.Append(ctx, change); err != nil {
		if hadPrev {
			_ = p.store(k, prev)
		} else {
			p.c.Del(k)
		}
		return err
	}
	return nil
}

func (p *Provider) HGet(ctx context.Context, shardKey, field string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	b, ok := p.get(util.CompositeKey(shardKey, field))
	return b, ok, nil
}

func (p *Provider) Close(_ context.Context) error {
	p.c.Wait()
	p.c.Close()
	return nil
}

// Metrics exposes Ristretto counters when Config.Metrics is set.
func (p *Provider) Metrics() *rc.Metrics { return p.c.Metrics }
