package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.uber.org/zap"

	"github.com/unkn0wn-root/dualstore"
	"github.com/unkn0wn-root/dualstore/changelog"
	clkafka "github.com/unkn0wn-root/dualstore/changelog/kafka"
	clpostgres "github.com/unkn0wn-root/dualstore/changelog/postgres"
	"github.com/unkn0wn-root/dualstore/codec"
	asynchook "github.com/unkn0wn-root/dualstore/hooks/async"
	promhooks "github.com/unkn0wn-root/dualstore/hooks/prom"
	zaplog "github.com/unkn0wn-root/dualstore/log/zap"
	zlog "github.com/unkn0wn-root/dualstore/log/zerolog"
	"github.com/unkn0wn-root/dualstore/payout"
	"github.com/unkn0wn-root/dualstore/provider"
	bcp "github.com/unkn0wn-root/dualstore/provider/bigcache"
	mcp "github.com/unkn0wn-root/dualstore/provider/memcache"
	rp "github.com/unkn0wn-root/dualstore/provider/redis"
	rsp "github.com/unkn0wn-root/dualstore/provider/ristretto"
	"github.com/unkn0wn-root/dualstore/sloghooks"
)

func newZap(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	zc.Level = lvl
	return zc.Build()
}

// newCache builds the configured cache port. closers run in reverse on shutdown.
func newCache(cfg config, db *sql.DB, closers *[]func()) (provider.Port, error) {
	if cfg.Cache == "redis" {
		rdb := goredis.NewUniversalClient(&goredis.UniversalOptions{Addrs: cfg.RedisAddrs})
		return rp.New(rp.Config{
			Client:      rdb,
			CloseClient: true,
			TTL:         cfg.RedisTTL,
			Stream:      cfg.Stream,
			Partitions:  cfg.Partitions,
			Codec:       changeCodec(cfg.ChangeEncoding),
		})
	}

	sink, err := newSink(cfg, db, closers)
	if err != nil {
		return nil, err
	}
	switch cfg.Cache {
	case "bigcache":
		return bcp.New(bcp.Config{LifeWindow: cfg.RedisTTL, HardMaxCacheSizeMB: 64, Sink: sink})
	case "memcache":
		return mcp.New(mcp.Config{Addrs: cfg.MemcacheAddrs, Timeout: time.Second, TTL: cfg.RedisTTL, Sink: sink})
	case "ristretto":
		return rsp.New(rsp.Config{
			NumCounters: 1e5,
			MaxCost:     64 << 20,
			BufferItems: 64,
			TTL:         cfg.RedisTTL,
			Sink:        sink,
		})
	default:
		return nil, fmt.Errorf("unknown PAYOUTCTL_CACHE %q", cfg.Cache)
	}
}

func newSink(cfg config, db *sql.DB, closers *[]func()) (changelog.Sink, error) {
	switch cfg.Changelog {
	case "postgres":
		return clpostgres.New(clpostgres.Config{DB: db})
	case "kafka":
		s, err := clkafka.New(clkafka.Config{
			Brokers:  cfg.KafkaBrokers,
			Topic:    cfg.KafkaTopic,
			ClientID: "payoutctl",
			Codec:    changeCodec(cfg.ChangeEncoding),
		})
		if err != nil {
			return nil, err
		}
		*closers = append(*closers, func() { _ = s.Close() })
		return s, nil
	case "memory":
		return changelog.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown PAYOUTCTL_CHANGELOG %q", cfg.Changelog)
	}
}

// newCodec picks the cache value codec. Values are capped at maxBytes both ways.
func newCodec(name string, maxBytes int) (codec.Codec[payout.Payout], error) {
	var inner codec.Codec[payout.Payout]
	switch name {
	case "json":
		inner = codec.JSON[payout.Payout]{}
	case "cbor":
		c, err := codec.NewCBOR[payout.Payout](true)
		if err != nil {
			return nil, err
		}
		inner = c
	case "msgpack":
		inner = codec.Msgpack[payout.Payout]{}
	default:
		return nil, fmt.Errorf("unknown PAYOUTCTL_CODEC %q", name)
	}
	return codec.LimitCodec[payout.Payout]{Inner: inner, MaxEncode: maxBytes, MaxDecode: maxBytes}, nil
}

func changeCodec(name string) codec.Codec[changelog.Record] {
	if name == "protobuf" {
		return changelog.NewStructCodec()
	}
	return changelog.JSONCodec
}

// newHooks counts events in reg and logs sampled ones off the request path.
func newHooks(reg prometheus.Registerer, closers *[]func()) (dualstore.Hooks, error) {
	counters, err := promhooks.New(reg, "payoutctl")
	if err != nil {
		return nil, err
	}
	logged := asynchook.New(sloghooks.New(slog.Default(), sloghooks.Options{FallbackEvery: 10}), 1, 256)
	*closers = append(*closers, logged.Close)
	return fanout{counters, logged}, nil
}

type fanout []dualstore.Hooks

func (f fanout) CacheReadFallback(op, k, reason string) {
	for _, h := range f {
		h.CacheReadFallback(op, k, reason)
	}
}

func (f fanout) DuplicateInsert(entity, k string) {
	for _, h := range f {
		h.DuplicateInsert(entity, k)
	}
}

func (f fanout) CacheWriteFailed(op, k string, err error) {
	for _, h := range f {
		h.CacheWriteFailed(op, k, err)
	}
}

func (f fanout) IdentityMismatch(entity, req, got string) {
	for _, h := range f {
		h.IdentityMismatch(entity, req, got)
	}
}

// storeLogger picks the adapter the store logs through. CLI output always goes to zl.
func storeLogger(format, level string, zl *zap.Logger) (dualstore.Logger, error) {
	switch format {
	case "zap":
		return zaplog.New(zl), nil
	case "zerolog":
		lvl, err := zerolog.ParseLevel(level)
		if err != nil {
			return nil, err
		}
		return zlog.Wrap(zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()), nil
	default:
		return nil, fmt.Errorf("unknown LOG_FORMAT %q", format)
	}
}

func closeTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}
