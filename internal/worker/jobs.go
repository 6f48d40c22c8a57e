// Package worker provides background job processing for LeaguePulse.
package worker

import (
	"errors"
	"fmt"
	"time"

	"github.com/leaguepulse/leaguepulse/internal/monitor"
	"github.com/leaguepulse/leaguepulse/internal/samplelog"
)

// JobType names a background job.
type JobType string

const (
	// JobProbeSweep probes every configured source once.
	JobProbeSweep JobType = "probe_sweep"

	// JobRefetch refreshes dashboard metrics now.
	JobRefetch JobType = "refetch"

	// JobRecordSample records an observation reported by operational code.
	JobRecordSample JobType = "record_sample"
)

// ErrMalformedJob marks a message that can never succeed. Such messages are
// acknowledged so they are not redelivered.
var ErrMalformedJob = errors.New("malformed job")

// Message is the JSON payload of a job message.
type Message struct {
	JobType JobType `json:"job_type"`

	// Metrics names the metrics a refetch job refreshes. Empty refreshes
	// every registered metric.
	Metrics []string `json:"metrics,omitempty"`

	// Sample is the observation carried by a record_sample job.
	Sample *SampleMessage `json:"sample,omitempty"`
}

// SampleMessage is an observation published by the sync worker or the draft
// engine.
type SampleMessage struct {
	Source     string     `json:"source"`
	Kind       string     `json:"kind,omitempty"`
	Outcome    string     `json:"outcome"`
	LatencyMs  *float64   `json:"latency_ms,omitempty"`
	StatusCode *int       `json:"status_code,omitempty"`
	Error      string     `json:"error,omitempty"`
	RecordedAt *time.Time `json:"recorded_at,omitempty"`
}

// ToSample validates the message and converts it to a sample.
func (m SampleMessage) ToSample(now time.Time) (monitor.Sample, error) {
	source, err := monitor.ParseSourceID(m.Source)
	if err != nil {
		return monitor.Sample{}, fmt.Errorf("%w: %v", ErrMalformedJob, err)
	}

	s := monitor.Sample{
		Source:     source,
		Kind:       monitor.SampleKind(m.Kind),
		Outcome:    monitor.Outcome(m.Outcome),
		StatusCode: m.StatusCode,
	}
	if m.LatencyMs != nil {
		if *m.LatencyMs < 0 {
			return monitor.Sample{}, fmt.Errorf("%w: latency_ms cannot be negative", ErrMalformedJob)
		}
		d := time.Duration(*m.LatencyMs * float64(time.Millisecond))
		s.Latency = &d
	}
	if m.Error != "" {
		msg := m.Error
		s.Error = &msg
	}
	if m.RecordedAt != nil {
		s.RecordedAt = *m.RecordedAt
	}

	s, err = samplelog.Normalize(s, now)
	if err != nil {
		return monitor.Sample{}, fmt.Errorf("%w: %v", ErrMalformedJob, err)
	}
	return s, nil
}

// RefreshConfig holds configuration for metric refetch jobs.
type RefreshConfig struct {
	// Concurrency is the number of metrics refreshed at once.
	// Default: 3
	Concurrency int

	// Timeout bounds the refresh of one metric.
	// Default: 30 seconds
	Timeout time.Duration
}

// DefaultRefreshConfig returns the default refresh configuration.
func DefaultRefreshConfig() RefreshConfig {
	return RefreshConfig{
		Concurrency: 3,
		Timeout:     30 * time.Second,
	}
}

func (c RefreshConfig) withDefaults() RefreshConfig {
	d := DefaultRefreshConfig()
	if c.Concurrency <= 0 {
		c.Concurrency = d.Concurrency
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	return c
}
