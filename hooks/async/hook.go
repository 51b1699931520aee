// Package asynchook moves dualstore hook delivery off the request path.
//
// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//	    FallbackEvery: 10, // sample logs: ~every 10th read fallback
//	})
//
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	store, _ := payout.NewStore(payout.Config{
//	    Cache:   provider,
//	    Durable: postgres.New(db),
//	    Hooks:   hooks, // or `raw` if you don't want async
//	})
//
// Events are dropped when the queue is full; Dropped reports how many.
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/dualstore"
)

type Hooks struct {
	inner   dualstore.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

var _ dualstore.Hooks = (*Hooks)(nil)

func New(inner dualstore.Hooks, workers, qlen int) *Hooks {
	if inner == nil {
		inner = dualstore.NopHooks{}
	}
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close stops accepting events and waits for queued ones to be delivered.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default: // drop
		h.dropped.Add(1)
	}
}

func (h *Hooks) CacheReadFallback(op, k, reason string) {
	h.try(func() { h.inner.CacheReadFallback(op, k, reason) })
}
func (h *Hooks) DuplicateInsert(entity, k string) {
	h.try(func() { h.inner.DuplicateInsert(entity, k) })
}
func (h *Hooks) CacheWriteFailed(op, k string, err error) {
	h.try(func() { h.inner.CacheWriteFailed(op, k, err) })
}
func (h *Hooks) IdentityMismatch(entity, req, got string) {
	h.try(func() { h.inner.IdentityMismatch(entity, req, got) })
}
