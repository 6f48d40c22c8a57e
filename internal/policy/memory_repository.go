package policy

import (
	"context"
	"sync"
	"time"
)

// InMemoryRepository is an in-memory implementation of Repository for testing
// and single-node use.
type InMemoryRepository struct {
	mu       sync.RWMutex
	override *Override
}

// NewInMemoryRepository creates an empty repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{}
}

// Get returns the stored override.
func (r *InMemoryRepository) Get(_ context.Context) (Override, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.override == nil {
		return Override{}, ErrNotFound
	}
	return *r.override, nil
}

// Save replaces the override.
func (r *InMemoryRepository) Save(_ context.Context, o Override) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = time.Now().UTC()
	}
	r.override = &o
	return nil
}

// Delete removes the override.
func (r *InMemoryRepository) Delete(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.override = nil
	return nil
}

var _ Repository = (*InMemoryRepository)(nil)
