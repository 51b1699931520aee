package main

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type config struct {
	DatabaseURL string
	LogLevel    string
	LogFormat   string // zap | zerolog; store events only

	Cache         string // redis | memcache | bigcache | ristretto
	RedisAddrs    []string
	RedisTTL      time.Duration // entry TTL for every cache kind
	Stream        string
	Partitions    int
	MemcacheAddrs []string

	Changelog    string // postgres | kafka | memory; in-process caches only
	KafkaBrokers []string
	KafkaTopic   string

	Codec          string // cache value codec: json | cbor | msgpack
	MaxValueBytes  int
	ChangeEncoding string // change record encoding: json | protobuf
	PrintMetrics   bool
}

func loadConfig() config {
	return config{
		DatabaseURL:    envString("DATABASE_URL", ""),
		LogLevel:       envString("LOG_LEVEL", "info"),
		LogFormat:      envString("LOG_FORMAT", "zap"),
		Cache:          envString("PAYOUTCTL_CACHE", "redis"),
		RedisAddrs:     envCSV("REDIS_ADDRS", []string{"localhost:6379"}),
		RedisTTL:       envDuration("REDIS_TTL", 15*time.Minute),
		Stream:         envString("DRAINER_STREAM", "drainer_stream"),
		Partitions:     envInt("DRAINER_PARTITIONS", 8),
		MemcacheAddrs:  envCSV("MEMCACHE_ADDRS", []string{"localhost:11211"}),
		Changelog:      envString("PAYOUTCTL_CHANGELOG", "postgres"),
		KafkaBrokers:   envCSV("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaTopic:     envString("KAFKA_TOPIC", "payout-changes"),
		Codec:          envString("PAYOUTCTL_CODEC", "json"),
		MaxValueBytes:  envInt("PAYOUTCTL_MAX_VALUE_BYTES", 64<<10),
		ChangeEncoding: envString("CHANGELOG_ENCODING", "json"),
		PrintMetrics:   envBool("PAYOUTCTL_PRINT_METRICS", false),
	}
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envCSV(key string, def []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

func envInt(key string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return def
	}
	return b
}

func envDuration(key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return def
	}
	return d
}
