package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/dualstore/changelog"
	"github.com/unkn0wn-root/dualstore/codec"
	pr "github.com/unkn0wn-root/dualstore/provider"
)

var ErrNilClient = errors.New("redis provider: nil client")

const (
	defaultStream   = "drainer_stream"
	rollbackTimeout = 2 * time.Second

	// stream entry fields read by the drainer
	fieldTypedSQL = "typed_sql"
	fieldPushedAt = "pushed_at"
)

// Redis serves the cache tier from Redis hashes and queues change records on
// partitioned drainer streams.
//
// The field write and the stream push are separate round trips, so shard keys and streams
// may live on different cluster slots. The push happens only after the write took effect;
// when the push (or the insert's PEXPIRE) fails, the field is restored to its previous
// state so the cache never holds a value the drainer will not see.
type Redis struct {
	rdb         goredis.UniversalClient
	closeClient bool
	ttl         time.Duration
	stream      string
	partitions  uint64
	codec       codec.Codec[changelog.Record]
	now         func() time.Time
}

var _ pr.Port = (*Redis)(nil)

type Config struct {
	Client      goredis.UniversalClient
	CloseClient bool // set true only if this provider exclusively owns the client

	// TTL applied to the shard key on every write; 0 => no expiry.
	TTL time.Duration
	// Stream is the drainer stream base name; "" => "drainer_stream".
	Stream string
	// Partitions spreads change records over N streams by shard key; 0 => 1.
	Partitions int
	// Codec encodes change records on the stream; nil => JSON.
	Codec codec.Codec[changelog.Record]
}

func New(cfg Config) (*Redis, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	if cfg.Partitions < 0 {
		return nil, fmt.Errorf("redis provider: negative partitions %d", cfg.Partitions)
	}
	p := &Redis{
		rdb:         cfg.Client,
		closeClient: cfg.CloseClient,
		ttl:         cfg.TTL,
		stream:      cfg.Stream,
		partitions:  uint64(cfg.Partitions),
		codec:       cfg.Codec,
		now:         time.Now,
	}
	if p.stream == "" {
		p.stream = defaultStream
	}
	if p.partitions == 0 {
		p.partitions = 1
	}
	if p.codec == nil {
		p.codec = changelog.JSONCodec
	}
	return p, nil
}

// StreamFor returns the drainer stream a shard key's change records are pushed to:
// {shard_<n>}_<stream>. The hash tag keeps one partition on one cluster slot.
func (p *Redis) StreamFor(shardKey string) string {
	n := xxhash.Sum64String(shardKey) % p.partitions
	return "{shard_" + strconv.FormatUint(n, 10) + "}_" + p.stream
}

func (p *Redis) SetNX(ctx context.Context, shardKey, field string, value []byte, change changelog.Record) (pr.SetNXReply, error) {
	payload, err := p.encodeChange(change)
	if err != nil {
		return 0, err
	}
	set, err := p.rdb.HSetNX(ctx, shardKey, field, value).Result()
	if err != nil {
		return 0, err
	}
	if !set {
		return pr.KeyNotSet, nil
	}
	if p.ttl > 0 {
		err = p.rdb.PExpire(ctx, shardKey, p.ttl).Err()
	}
	if err == nil {
		err = p.push(ctx, shardKey, payload)
	}
	if err != nil {
		return 0, p.rollback(ctx, shardKey, field, value, nil, err)
	}
	return pr.KeySet, nil
}

func (p *Redis) HSet(ctx context.Context, shardKey, field string, value []byte, change changelog.Record) error {
	payload, err := p.encodeChange(change)
	if err != nil {
		return err
	}
	prev, err := p.rdb.HGet(ctx, shardKey, field).Bytes()
	switch {
	case err == goredis.Nil:
		prev = nil
	case err != nil:
		return err
	case prev == nil:
		prev = []byte{}
	}
	_, err = p.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, shardKey, field, value)
		if p.ttl > 0 {
			pipe.PExpire(ctx, shardKey, p.ttl)
		}
		return nil
	})
	if err == nil {
		err = p.push(ctx, shardKey, payload)
	}
	if err != nil {
		return p.rollback(ctx, shardKey, field, value, prev, err)
	}
	return nil
}

// restoreField puts ARGV[3] back (or deletes the field when ARGV[3] is absent) only while
// the field still holds ARGV[2], so a concurrent writer's value is never clobbered.
var restoreField = goredis.NewScript(`
if redis.call("HGET", KEYS[1], ARGV[1]) ~= ARGV[2] then
	return 0
end
if #ARGV == 3 then
	redis.call("HSET", KEYS[1], ARGV[1], ARGV[3])
else
	redis.call("HDEL", KEYS[1], ARGV[1])
end
return 1
`)

// rollback undoes a field write whose change record could not be queued. prev == nil
// means the field did not exist before. cause is returned, joined with any rollback error.
func (p *Redis) rollback(ctx context.Context, shardKey, field string, written, prev []byte, cause error) error {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()

	args := []any{field, written}
	if prev != nil {
		args = append(args, prev)
	}
	if err := restoreField.Run(rctx, p.rdb, []string{shardKey}, args...).Err(); err != nil {
		return errors.Join(cause, fmt.Errorf("redis provider: rollback %s: %w", shardKey, err))
	}
	return cause
}

func (p *Redis) HGet(ctx context.Context, shardKey, field string) ([]byte, bool, error) {
	b, err := p.rdb.HGet(ctx, shardKey, field).Bytes()
	if err == goredis.Nil {
		return nil, false, nil // miss
	}
	if err != nil {
		return nil, false, err // transport/server error
	}
	return b, true, nil
}

func (p *Redis) encodeChange(change changelog.Record) ([]byte, error) {
	payload, err := p.codec.Encode(change)
	if err != nil {
		return nil, fmt.Errorf("redis provider: encode change record: %w", err)
	}
	return payload, nil
}

func (p *Redis) push(ctx context.Context, shardKey string, payload []byte) error {
	return p.rdb.XAdd(ctx, &goredis.XAddArgs{
		Stream: p.StreamFor(shardKey),
		Values: []any{
			fieldTypedSQL, payload,
			fieldPushedAt, strconv.FormatInt(p.now().Unix(), 10),
		},
	}).Err()
}

// Close releases the underlying redis client only when this provider owns it.
// Safe to call multiple times; repeated calls become no-ops.
func (p *Redis) Close(context.Context) error {
	if p.closeClient {
		if err := p.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}
