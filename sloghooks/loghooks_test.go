package sloghooks

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func newTestHooks(opts Options) (*Hooks, *bytes.Buffer) {
	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return New(l, opts), &buf
}

func TestKeysAreRedacted(t *testing.T) {
	h, buf := newTestHooks(Options{})
	h.CacheWriteFailed("insert", "mid_m1_po_p1", errors.New("boom"))

	out := buf.String()
	if strings.Contains(out, "mid_m1_po_p1") {
		t.Fatalf("shard key leaked: %s", out)
	}
	if !strings.Contains(out, "dualstore.cache_write_failed") || !strings.Contains(out, "err=boom") {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestCustomRedactor(t *testing.T) {
	h, buf := newTestHooks(Options{Redact: func(s string) string { return "<" + s + ">" }})
	h.DuplicateInsert("payouts", "mid_m1_po_p1")
	if !strings.Contains(buf.String(), "key=<mid_m1_po_p1>") {
		t.Fatalf("redactor not applied: %s", buf.String())
	}
}

func TestFallbackSamplingAndLevel(t *testing.T) {
	h, buf := newTestHooks(Options{FallbackEvery: 3})
	for i := 0; i < 6; i++ {
		h.CacheReadFallback("find", "k", "miss")
	}
	if n := strings.Count(buf.String(), "dualstore.cache_read_fallback"); n != 2 {
		t.Fatalf("expected 2 sampled lines, got %d", n)
	}

	buf.Reset()
	h2, buf2 := newTestHooks(Options{})
	h2.CacheReadFallback("find", "k", "backend_error")
	h2.CacheReadFallback("find", "k", "miss")
	out := buf2.String()
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "level=DEBUG") {
		t.Fatalf("unexpected levels: %s", out)
	}
}

func TestNilLoggerIsNop(t *testing.T) {
	h := New(nil, Options{})
	h.CacheReadFallback("find", "k", "miss")
	h.DuplicateInsert("payouts", "k")
	h.CacheWriteFailed("update", "k", errors.New("x"))
	h.IdentityMismatch("payouts", "a", "b")
}
