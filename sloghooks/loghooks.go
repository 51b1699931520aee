// Package sloghooks reports dualstore events through log/slog with sampling and key
// redaction. Shard keys embed tenant and record ids; they are hashed unless Redact says
// otherwise.
package sloghooks

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/dualstore"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	FallbackEvery  uint64
	DuplicateEvery uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	fallbackCtr  atomic.Uint64
	duplicateCtr atomic.Uint64
}

var _ dualstore.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) CacheReadFallback(op, shardKey, reason string) {
	if h.l == nil || !sample(h.opts.FallbackEvery, &h.fallbackCtr) {
		return
	}
	lvl := slog.LevelDebug
	if reason != "miss" {
		lvl = slog.LevelWarn
	}
	h.l.Log(context.Background(), lvl, "dualstore.cache_read_fallback",
		"op", op,
		"key", h.redact(shardKey),
		"reason", reason)
}

func (h *Hooks) DuplicateInsert(entity, shardKey string) {
	if h.l == nil || !sample(h.opts.DuplicateEvery, &h.duplicateCtr) {
		return
	}
	h.l.Info("dualstore.duplicate_insert",
		"entity", entity,
		"key", h.redact(shardKey))
}

func (h *Hooks) CacheWriteFailed(op, shardKey string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("dualstore.cache_write_failed",
		"op", op,
		"key", h.redact(shardKey),
		"err", err)
}

func (h *Hooks) IdentityMismatch(entity, requested, returned string) {
	if h.l == nil {
		return
	}
	h.l.Warn("dualstore.identity_mismatch",
		"entity", entity,
		"requested", h.redact(requested),
		"returned", h.redact(returned))
}
