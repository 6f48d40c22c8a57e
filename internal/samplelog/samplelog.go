// Package samplelog persists raw samples and answers windowed queries over
// them. Writes from probes go through BestEffort so that a broken log never
// changes a probe result.
package samplelog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/leaguepulse/leaguepulse/internal/aggregate"
	"github.com/leaguepulse/leaguepulse/internal/monitor"
)

// ErrInvalidSample is returned when a sample is missing required fields.
var ErrInvalidSample = errors.New("invalid sample")

// Logger appends samples to durable storage.
type Logger interface {
	Append(ctx context.Context, s monitor.Sample) error
}

// Store is a sample log that can also be queried.
type Store interface {
	Logger
	aggregate.Provider
	Close() error
}

// Normalize fills the generated fields of a sample and validates the rest.
func Normalize(s monitor.Sample, now time.Time) (monitor.Sample, error) {
	if s.Source == monitor.SourceAll {
		return s, errors.Join(ErrInvalidSample, errors.New("source is required"))
	}
	switch s.Outcome {
	case monitor.OutcomeSuccess, monitor.OutcomeDegraded, monitor.OutcomeFailure:
	default:
		return s, errors.Join(ErrInvalidSample, errors.New("unknown outcome "+string(s.Outcome)))
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.Kind == "" {
		s.Kind = monitor.KindHealthCheck
	}
	if s.RecordedAt.IsZero() {
		s.RecordedAt = now
	}
	s.RecordedAt = s.RecordedAt.UTC()
	return s, nil
}
