package changelog

import (
	"context"
	"sync"
)

// Sink queues records for the drainer. Append must be safe for concurrent use.
type Sink interface {
	Append(ctx context.Context, r Record) error
}

// Memory keeps records in process, in append order. Used by in-process providers in
// tests and single-node setups where the drainer runs in the same binary.
type Memory struct {
	mu      sync.Mutex
	records []Record
}

var _ Sink = (*Memory)(nil)

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Append(ctx context.Context, r Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.records = append(m.records, r)
	m.mu.Unlock()
	return nil
}

// Records returns a copy of everything appended so far.
func (m *Memory) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, len(m.records))
	copy(out, m.records)
	return out
}

// Drain returns and forgets everything appended so far.
func (m *Memory) Drain() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.records
	m.records = nil
	return out
}
