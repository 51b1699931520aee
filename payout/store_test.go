package payout

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/dualstore"
	"github.com/unkn0wn-root/dualstore/changelog"
	"github.com/unkn0wn-root/dualstore/codec"
	bcp "github.com/unkn0wn-root/dualstore/provider/bigcache"
	rp "github.com/unkn0wn-root/dualstore/provider/redis"
)

// memDurable is an in-memory payout table.
type memDurable struct {
	mu    sync.Mutex
	rows  map[dualstore.Identity]Payout
	calls int
}

var _ DurableStore = (*memDurable)(nil)

func newMemDurable() *memDurable { return &memDurable{rows: map[dualstore.Identity]Payout{}} }

func (d *memDurable) Insert(_ context.Context, n New) (Payout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if _, ok := d.rows[n.Identity()]; ok {
		return Payout{}, dualstore.ErrDuplicateEntity
	}
	p := n.Materialize(time.Now().UTC())
	d.rows[p.Identity()] = p
	return p, nil
}

func (d *memDurable) Update(_ context.Context, this Payout, u Update) (Payout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	next := u.Apply(this)
	d.rows[next.Identity()] = next
	return next, nil
}

func (d *memDurable) FindByIdentity(_ context.Context, id dualstore.Identity) (Payout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	p, ok := d.rows[id]
	if !ok {
		return Payout{}, dualstore.ErrNotFound
	}
	return p, nil
}

func (d *memDurable) FindOptionalByIdentity(_ context.Context, id dualstore.Identity) (Payout, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	p, ok := d.rows[id]
	return p, ok, nil
}

func (d *memDurable) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func newRedisStore(t *testing.T) (*Store, *memDurable, *miniredis.Miniredis, *rp.Redis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	port, err := rp.New(rp.Config{Client: rdb, CloseClient: true, TTL: time.Hour})
	require.NoError(t, err)

	durable := newMemDurable()
	s, err := NewStore(Config{Cache: port, Durable: durable})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s, durable, mr, port
}

func TestInsertTwiceIsDuplicateWithShardKey(t *testing.T) {
	ctx := context.Background()
	s, durable, _, _ := newRedisStore(t)

	first, err := s.Insert(ctx, sampleNew(), dualstore.CacheAccelerated)
	require.NoError(t, err)
	assert.Equal(t, "p1", first.PayoutID)

	_, err = s.Insert(ctx, sampleNew(), dualstore.CacheAccelerated)
	var dup *dualstore.DuplicateEntityError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "payouts", dup.Entity)
	assert.Equal(t, "mid_m1_po_p1", dup.Key)
	assert.Zero(t, durable.callCount())
}

func TestCacheLifecycleAndChangeStream(t *testing.T) {
	ctx := context.Background()
	s, durable, mr, port := newRedisStore(t)

	created, err := s.Insert(ctx, sampleNew(), dualstore.CacheAccelerated)
	require.NoError(t, err)

	updated, err := s.Update(ctx, created, AttemptCountUpdate{AttemptCount: 2}, dualstore.CacheAccelerated)
	require.NoError(t, err)
	assert.Equal(t, int16(2), updated.AttemptCount)

	got, err := s.FindByIdentity(ctx, created.Identity(), dualstore.CacheAccelerated)
	require.NoError(t, err)
	assert.Equal(t, int16(2), got.AttemptCount)
	assert.True(t, created.CreatedAt.Equal(got.CreatedAt))
	assert.Zero(t, durable.callCount(), "cache hits must not reach the durable store")

	assert.True(t, mr.Exists("mid_m1_po_p1"))
	entries, err := mr.Stream(port.StreamFor("mid_m1_po_p1"))
	require.NoError(t, err)
	require.Len(t, entries, 2)

	var ops []changelog.Op
	for _, e := range entries {
		// field/value pairs
		for i := 0; i+1 < len(e.Values); i += 2 {
			if e.Values[i] != "typed_sql" {
				continue
			}
			r, err := changelog.JSONCodec.Decode([]byte(e.Values[i+1]))
			require.NoError(t, err)
			ops = append(ops, r.Op)
			if r.Op == changelog.OpUpdate {
				assert.Equal(t, VariantAttemptCount, r.Variant)
				var orig Payout
				require.NoError(t, json.Unmarshal(r.Orig, &orig))
				assert.Equal(t, int16(0), orig.AttemptCount, "orig is the pre-mutation record")
				u, err := DecodeUpdate(r.Variant, r.UpdateData)
				require.NoError(t, err)
				assert.Equal(t, AttemptCountUpdate{AttemptCount: 2}, u)
			}
		}
	}
	assert.Equal(t, []changelog.Op{changelog.OpInsert, changelog.OpUpdate}, ops)
}

func TestReadFallsBackWhenRedisIsDown(t *testing.T) {
	ctx := context.Background()
	s, durable, mr, _ := newRedisStore(t)

	row, err := durable.Insert(ctx, sampleNew())
	require.NoError(t, err)
	mr.Close()

	got, err := s.FindByIdentity(ctx, row.Identity(), dualstore.CacheAccelerated)
	require.NoError(t, err)
	assert.Equal(t, row.PayoutID, got.PayoutID)

	_, ok, err := s.FindOptionalByIdentity(ctx, dualstore.Identity{TenantID: "m1", RecordID: "missing"}, dualstore.CacheAccelerated)
	require.NoError(t, err)
	assert.False(t, ok)

	// writes never fall back
	_, err = s.Insert(ctx, New{PayoutID: "p2", MerchantID: "m1"}, dualstore.CacheAccelerated)
	assert.True(t, errors.Is(err, dualstore.ErrCacheBackend), "got %v", err)
}

func TestDurableOnlyLeavesRedisUntouched(t *testing.T) {
	ctx := context.Background()
	s, durable, mr, _ := newRedisStore(t)

	p, err := s.Insert(ctx, sampleNew(), dualstore.DurableOnly)
	require.NoError(t, err)
	_, err = s.Update(ctx, p, RecurringUpdate{Recurring: true}, dualstore.DurableOnly)
	require.NoError(t, err)
	got, ok, err := s.FindOptionalByIdentity(ctx, p.Identity(), dualstore.DurableOnly)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Recurring)

	assert.Equal(t, 3, durable.callCount())
	assert.Empty(t, mr.Keys())
}

func TestStoreWithAlternateValueCodecs(t *testing.T) {
	codecs := map[string]codec.Codec[Payout]{
		"cbor":    codec.MustCBOR[Payout](true),
		"msgpack": codec.Msgpack[Payout]{},
		"limited": codec.LimitCodec[Payout]{Inner: codec.JSON[Payout]{}, MaxDecode: 4 << 10},
	}
	for name, cd := range codecs {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			sink := changelog.NewMemory()
			port, err := bcp.New(bcp.Config{LifeWindow: time.Minute, HardMaxCacheSizeMB: 8, Sink: sink})
			require.NoError(t, err)
			durable := newMemDurable()
			s, err := NewStore(Config{Cache: port, Durable: durable, Codec: cd})
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close(ctx) })

			n := sampleNew()
			n.Description = strp("weekly")
			n.Metadata = json.RawMessage(`{"batch":7}`)
			created, err := s.Insert(ctx, n, dualstore.CacheAccelerated)
			require.NoError(t, err)

			got, err := s.FindByIdentity(ctx, created.Identity(), dualstore.CacheAccelerated)
			require.NoError(t, err)
			assert.Zero(t, durable.callCount(), "value must decode from the cache")
			assert.Equal(t, created.PayoutID, got.PayoutID)
			assert.Equal(t, "weekly", *got.Description)
			assert.JSONEq(t, `{"batch":7}`, string(got.Metadata))
			assert.True(t, created.CreatedAt.Equal(got.CreatedAt))
			assert.Len(t, sink.Records(), 1)
		})
	}
}

func TestOversizedCachedValueFallsBack(t *testing.T) {
	ctx := context.Background()
	sink := changelog.NewMemory()
	port, err := bcp.New(bcp.Config{LifeWindow: time.Minute, HardMaxCacheSizeMB: 8, Sink: sink})
	require.NoError(t, err)
	durable := newMemDurable()
	s, err := NewStore(Config{
		Cache:   port,
		Durable: durable,
		Codec:   codec.LimitCodec[Payout]{Inner: codec.JSON[Payout]{}, MaxDecode: 16},
	})
	require.NoError(t, err)

	created, err := s.Insert(ctx, sampleNew(), dualstore.CacheAccelerated)
	require.NoError(t, err)

	// cached value exceeds the decode cap; the durable store answers (and has no row)
	_, err = s.FindByIdentity(ctx, created.Identity(), dualstore.CacheAccelerated)
	assert.ErrorIs(t, err, dualstore.ErrNotFound)
	assert.Equal(t, 1, durable.callCount())
}

func TestOversizedInsertIsRejected(t *testing.T) {
	ctx := context.Background()
	sink := changelog.NewMemory()
	port, err := bcp.New(bcp.Config{LifeWindow: time.Minute, HardMaxCacheSizeMB: 8, Sink: sink})
	require.NoError(t, err)
	s, err := NewStore(Config{
		Cache:   port,
		Durable: newMemDurable(),
		Codec:   codec.LimitCodec[Payout]{Inner: codec.JSON[Payout]{}, MaxEncode: 16},
	})
	require.NoError(t, err)

	_, err = s.Insert(ctx, sampleNew(), dualstore.CacheAccelerated)
	assert.ErrorIs(t, err, dualstore.ErrSerialization)
	assert.ErrorIs(t, err, codec.ErrTooLarge)
	assert.Empty(t, sink.Records())
}

func TestFailedChangePushLeavesNoCachedPayout(t *testing.T) {
	ctx := context.Background()
	s, _, mr, port := newRedisStore(t)
	stream := port.StreamFor("mid_m1_po_p1")
	require.NoError(t, mr.Set(stream, "not a stream"))

	_, err := s.Insert(ctx, sampleNew(), dualstore.CacheAccelerated)
	require.ErrorIs(t, err, dualstore.ErrCacheBackend)

	_, ok, err := s.FindOptionalByIdentity(ctx, dualstore.Identity{TenantID: "m1", RecordID: "p1"}, dualstore.CacheAccelerated)
	require.NoError(t, err)
	assert.False(t, ok, "a payout without a queued change record must not be readable")

	mr.Del(stream)
	created, err := s.Insert(ctx, sampleNew(), dualstore.CacheAccelerated)
	require.NoError(t, err, "retry after the stream recovers")

	require.NoError(t, mr.Set(stream, "not a stream"))
	_, err = s.Update(ctx, created, AttemptCountUpdate{AttemptCount: 7}, dualstore.CacheAccelerated)
	require.ErrorIs(t, err, dualstore.ErrCacheBackend)

	got, err := s.FindByIdentity(ctx, created.Identity(), dualstore.CacheAccelerated)
	require.NoError(t, err)
	assert.Equal(t, int16(0), got.AttemptCount, "failed update must leave the previous value")
}
