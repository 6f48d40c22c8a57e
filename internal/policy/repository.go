// Package policy stores threshold overrides and serves the policy in force.
package policy

import (
	"context"
	"errors"
	"time"

	"github.com/leaguepulse/leaguepulse/internal/classify"
)

// ErrNotFound is returned when no override is stored.
var ErrNotFound = errors.New("threshold override not found")

// Override is a stored replacement for the default thresholds.
type Override struct {
	Policy    classify.Policy `json:"policy"`
	UpdatedBy string          `json:"updatedBy,omitempty"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Repository defines the interface for threshold override storage.
type Repository interface {
	// Get returns the stored override or ErrNotFound.
	Get(ctx context.Context) (Override, error)

	// Save creates or replaces the override.
	Save(ctx context.Context, o Override) error

	// Delete removes the override. Deleting a missing override is not an error.
	Delete(ctx context.Context) error
}
