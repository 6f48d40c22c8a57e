package incident

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/leaguepulse/leaguepulse/internal/monitor"
)

// InMemoryRepository is an in-memory implementation of Repository for testing.
type InMemoryRepository struct {
	mu      sync.RWMutex
	records []monitor.IncidentRecord
	now     func() time.Time
}

// NewInMemoryRepository creates a new in-memory repository with initial records.
func NewInMemoryRepository(records ...monitor.IncidentRecord) *InMemoryRepository {
	repo := &InMemoryRepository{now: time.Now}
	for _, r := range records {
		repo.Add(r)
	}
	return repo
}

// WithClock sets the time source used to evaluate windows.
func (r *InMemoryRepository) WithClock(now func() time.Time) *InMemoryRepository {
	r.now = now
	return r
}

// Add stores a record, assigning an ID when empty.
func (r *InMemoryRepository) Add(rec monitor.IncidentRecord) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
}

// Query returns incidents that occurred within window, newest first.
func (r *InMemoryRepository) Query(_ context.Context, window monitor.Window, filter Filter) ([]monitor.IncidentRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := r.now()
	start := window.Start(now)

	var out []monitor.IncidentRecord
	for _, rec := range r.records {
		if rec.OccurredAt.Before(start) || rec.OccurredAt.After(now) {
			continue
		}
		if err := rec.Validate(); err != nil {
			return nil, err
		}
		if filter.Matches(rec) {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt.After(out[j].OccurredAt) })
	return out, nil
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
