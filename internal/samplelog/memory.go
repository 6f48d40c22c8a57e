package samplelog

import (
	"context"
	"sync"
	"time"

	"github.com/leaguepulse/leaguepulse/internal/aggregate"
	"github.com/leaguepulse/leaguepulse/internal/monitor"
)

// MemoryStore is an in-memory sample log for tests and local development.
type MemoryStore struct {
	mu      sync.RWMutex
	samples []monitor.Sample
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

// NewMemoryStoreWithClock creates an in-memory store that evaluates windows
// against now.
func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	return &MemoryStore{now: now}
}

// Append stores a sample.
func (m *MemoryStore) Append(_ context.Context, s monitor.Sample) error {
	s, err := Normalize(s, m.now())
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = append(m.samples, s)
	return nil
}

// Samples returns a copy of every stored sample in append order.
func (m *MemoryStore) Samples() []monitor.Sample {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]monitor.Sample, len(m.samples))
	copy(out, m.samples)
	return out
}

// Aggregate folds the stored samples for source within window.
func (m *MemoryStore) Aggregate(_ context.Context, source monitor.SourceID, window monitor.Window) (monitor.WindowedAggregate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return aggregate.Fold(m.samples, source, window, m.now()), nil
}

// Percentiles returns latency percentiles for source within window.
func (m *MemoryStore) Percentiles(ctx context.Context, source monitor.SourceID, window monitor.Window) (*monitor.Percentiles, error) {
	agg, err := m.Aggregate(ctx, source, window)
	if err != nil {
		return nil, err
	}
	return agg.Percentiles, nil
}

// FailureTimes returns the times of failures for source within window.
func (m *MemoryStore) FailureTimes(_ context.Context, source monitor.SourceID, window monitor.Window) ([]time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return aggregate.FailureTimesOf(m.samples, source, window, m.now()), nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}

// Ensure MemoryStore implements Store interface.
var _ Store = (*MemoryStore)(nil)
