// Package memcache serves the cache tier from memcached via bradfitz/gomemcache.
//
// Memcached has no hashes, so each (shard, field) pair is stored as one item. SetNX maps
// to ADD, which memcached applies atomically across every client of the same server.
package memcache

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/cespare/xxhash/v2"

	"github.com/unkn0wn-root/dualstore/changelog"
	"github.com/unkn0wn-root/dualstore/internal/util"
	pr "github.com/unkn0wn-root/dualstore/provider"
)

var ErrNilSink = errors.New("memcache provider: change sink is required")

const (
	// maxKeyLen is the memcached protocol limit.
	maxKeyLen = 250
	// maxRelativeTTL is the largest relative expiration; memcached reads larger values
	// as absolute unix timestamps.
	maxRelativeTTL = 30 * 24 * time.Hour
)

// Client is the subset of *memcache.Client used by Provider.
type Client interface {
	Add(item *memcache.Item) error
	Set(item *memcache.Item) error
	Get(key string) (*memcache.Item, error)
	Delete(key string) error
}

var _ Client = (*memcache.Client)(nil)

type Config struct {
	Addrs   []string
	Timeout time.Duration
	TTL     time.Duration // 0 = no expiry
	Sink    changelog.Sink

	// Client overrides Addrs.
	Client Client
}

// Provider writes items and then appends the change record to Sink. A failed Append
// rolls the item back to its previous state.
type Provider struct {
	c     Client
	sink  changelog.Sink
	ttl   time.Duration
	now   func() time.Time
	locks util.Stripes
}

var _ pr.Port = (*Provider)(nil)

func New(cfg Config) (*Provider, error) {
	if cfg.Sink == nil {
		return nil, ErrNilSink
	}
	c := cfg.Client
	if c == nil {
		if len(cfg.Addrs) == 0 {
			return nil, errors.New("memcache provider: client or addrs required")
		}
		mc := memcache.New(cfg.Addrs...)
		if cfg.Timeout > 0 {
			mc.Timeout = cfg.Timeout
		}
		c = mc
	}
	return &Provider{c: c, sink: cfg.Sink, ttl: cfg.TTL, now: time.Now}, nil
}

func (p *Provider) SetNX(ctx context.Context, shardKey, field string, value []byte, change changelog.Record) (pr.SetNXReply, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	k := itemKey(shardKey, field)
	mu := p.locks.For(k)
	mu.Lock()
	defer mu.Unlock()

	err := p.c.Add(&memcache.Item{Key: k, Value: value, Expiration: p.expiration()})
	if errors.Is(err, memcache.ErrNotStored) {
		return pr.KeyNotSet, nil
	}
	if err != nil {
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
	k := itemKey(shardKey, field)
	mu := p.locks.For(k)
	mu.Lock()
	defer mu.Unlock()

	prev, prevErr := p.c.Get(k)
	if err := p.c.Set(&memcache.Item{Key: k, Value: value, Expiration: p.expiration()}); err != nil {
		return err
	}
	if err := p.sink.Append(ctx, change); err != nil {
		if prevErr == nil {
			_ = p.c.Set(&memcache.Item{Key: k, Value: prev.Value, Expiration: p.expiration()})
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
	it, err := p.c.Get(itemKey(shardKey, field))
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return it.Value, true, nil
}

// expiration converts the TTL to memcached's Expiration: seconds up to 30 days (rounded
// up so a sub-second TTL still expires), an absolute unix time beyond that.
func (p *Provider) expiration() int32 {
	switch {
	case p.ttl <= 0:
		return 0
	case p.ttl <= maxRelativeTTL:
		return int32((p.ttl + time.Second - 1) / time.Second)
	default:
		return int32(p.now().Add(p.ttl).Unix())
	}
}

// Close is a no-op; the memcache client holds only idle connections.
func (p *Provider) Close(_ context.Context) error { return nil }

// itemKey joins shard and field with '/'. Keys memcached would refuse (too long, or
// containing spaces or control bytes) are replaced by a hash of the pair.
func itemKey(shardKey, field string) string {
	k := shardKey + "/" + field
	if len(k) <= maxKeyLen && legalKey(k) {
		return k
	}
	return "dualstore:" + strconv.FormatUint(xxhash.Sum64String(util.CompositeKey(shardKey, field)), 16)
}

func legalKey(k string) bool {
	for i := 0; i < len(k); i++ {
		if k[i] <= ' ' || k[i] == 0x7f {
			return false
		}
	}
	return true
}
