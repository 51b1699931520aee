package dualstore

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/dualstore/changelog"
	pr "github.com/unkn0wn-root/dualstore/provider"
)

// account is a minimal record kind for exercising Store.
type account struct {
	Tenant    string    `json:"tenant"`
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Balance   int64     `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
}

func (a account) Identity() Identity { return Identity{TenantID: a.Tenant, RecordID: a.ID} }

type newAccount struct {
	Tenant    string     `json:"tenant"`
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

func (n newAccount) Identity() Identity { return Identity{TenantID: n.Tenant, RecordID: n.ID} }

func (n newAccount) Materialize(now time.Time) account {
	created := now
	if n.CreatedAt != nil {
		created = *n.CreatedAt
	}
	return account{Tenant: n.Tenant, ID: n.ID, Name: n.Name, CreatedAt: created}
}

type accountChange interface {
	Changeset[account]
	isAccountChange()
}

type rename struct {
	Name string `json:"name"`
}

func (r rename) Apply(a account) account {
	a.Name = r.Name
	return a
}
func (rename) Variant() string  { return "rename" }
func (rename) isAccountChange() {}

type deposit struct {
	Amount int64 `json:"amount"`
}

func (d deposit) Apply(a account) account {
	a.Balance += d.Amount
	return a
}
func (deposit) Variant() string  { return "deposit" }
func (deposit) isAccountChange() {}

// unencodable makes change record construction fail.
type unencodable struct {
	Ch chan int `json:"ch"`
}

func (unencodable) Apply(a account) account { return a }
func (unencodable) Variant() string         { return "unencodable" }
func (unencodable) isAccountChange()        {}

type memPort struct {
	mu      sync.Mutex
	m       map[string]map[string][]byte
	changes []changelog.Record

	setNXErr error
	hsetErr  error
	hgetErr  error
	calls    atomic.Int64
}

var _ pr.Port = (*memPort)(nil)

func newMemPort() *memPort { return &memPort{m: make(map[string]map[string][]byte)} }

func (p *memPort) SetNX(ctx context.Context, shard, field string, value []byte, change changelog.Record) (pr.SetNXReply, error) {
	p.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if p.setNXErr != nil {
		return 0, p.setNXErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	h := p.m[shard]
	if h == nil {
		h = make(map[string][]byte)
		p.m[shard] = h
	}
	if _, ok := h[field]; ok {
		return pr.KeyNotSet, nil
	}
	h[field] = append([]byte(nil), value...)
	p.changes = append(p.changes, change)
	return pr.KeySet, nil
}

func (p *memPort) HSet(ctx context.Context, shard, field string, value []byte, change changelog.Record) error {
	p.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.hsetErr != nil {
		return p.hsetErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	h := p.m[shard]
	if h == nil {
		h = make(map[string][]byte)
		p.m[shard] = h
	}
	h[field] = append([]byte(nil), value...)
	p.changes = append(p.changes, change)
	return nil
}

func (p *memPort) HGet(ctx context.Context, shard, field string) ([]byte, bool, error) {
	p.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if p.hgetErr != nil {
		return nil, false, p.hgetErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.m[shard][field]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (p *memPort) Close(context.Context) error { return nil }

func (p *memPort) put(shard, field string, v []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.m[shard] == nil {
		p.m[shard] = make(map[string][]byte)
	}
	p.m[shard][field] = v
}

func (p *memPort) recorded() []changelog.Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]changelog.Record(nil), p.changes...)
}

type memDurable struct {
	mu    sync.Mutex
	rows  map[Identity]account
	calls atomic.Int64
	err   error

	// returnOther makes FindOptionalByIdentity answer with this record instead.
	returnOther *account
}

var _ DurableStore[account, newAccount, accountChange] = (*memDurable)(nil)

func newMemDurable() *memDurable { return &memDurable{rows: make(map[Identity]account)} }

func (d *memDurable) Insert(_ context.Context, n newAccount) (account, error) {
	d.calls.Add(1)
	if d.err != nil {
		return account{}, d.err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.rows[n.Identity()]; ok {
		return account{}, ErrDuplicateEntity
	}
	a := n.Materialize(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	d.rows[a.Identity()] = a
	return a, nil
}

func (d *memDurable) Update(_ context.Context, this account, c accountChange) (account, error) {
	d.calls.Add(1)
	if d.err != nil {
		return account{}, d.err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.rows[this.Identity()]; !ok {
		return account{}, ErrNotFound
	}
	next := c.Apply(this)
	d.rows[next.Identity()] = next
	return next, nil
}

func (d *memDurable) FindByIdentity(_ context.Context, id Identity) (account, error) {
	d.calls.Add(1)
	if d.err != nil {
		return account{}, d.err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.rows[id]
	if !ok {
		return account{}, ErrNotFound
	}
	return a, nil
}

func (d *memDurable) FindOptionalByIdentity(_ context.Context, id Identity) (account, bool, error) {
	d.calls.Add(1)
	if d.err != nil {
		return account{}, false, d.err
	}
	if d.returnOther != nil {
		return *d.returnOther, true, nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.rows[id]
	return a, ok, nil
}

func (d *memDurable) seed(a account) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rows[a.Identity()] = a
}

type recordingHooks struct {
	mu         sync.Mutex
	fallbacks  []string // reason
	duplicates []string // shard key
	writeFails []string // op
	mismatches []string // returned
}

func (h *recordingHooks) CacheReadFallback(_, _, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fallbacks = append(h.fallbacks, reason)
}

func (h *recordingHooks) DuplicateInsert(_, shardKey string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.duplicates = append(h.duplicates, shardKey)
}

func (h *recordingHooks) CacheWriteFailed(op, _ string, _ error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.writeFails = append(h.writeFails, op)
}

func (h *recordingHooks) IdentityMismatch(_, _, returned string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.mismatches = append(h.mismatches, returned)
}

var errBackend = errors.New("connection refused")
