// Package monitor defines the data model shared by the health monitoring engine:
// raw samples, windowed aggregates, classified signals, and incident records.
package monitor

import (
	"fmt"
	"time"
)

// SourceID identifies a monitored integration or internal subsystem.
type SourceID string

// Known sources. External integrations are probed over HTTP; internal
// subsystems are probed directly or reported by operational code.
const (
	// SourceAll selects every source in aggregate queries.
	SourceAll SourceID = ""

	SourceSleeper SourceID = "sleeper"
	SourceESPN    SourceID = "espn"
	SourceYahoo   SourceID = "yahoo"

	SourceDatabase    SourceID = "database"
	SourceCache       SourceID = "cache"
	SourceDraftEngine SourceID = "draft_engine"
	SourceSyncWorker  SourceID = "sync_worker"
)

// Integrations returns the external integrations in display order.
func Integrations() []SourceID {
	return []SourceID{SourceSleeper, SourceESPN, SourceYahoo}
}

// AllSources returns every known source in display order.
func AllSources() []SourceID {
	return []SourceID{
		SourceSleeper, SourceESPN, SourceYahoo,
		SourceDatabase, SourceCache, SourceDraftEngine, SourceSyncWorker,
	}
}

// ParseSourceID validates a source identifier.
func ParseSourceID(s string) (SourceID, error) {
	if s == "" || s == "all" {
		return SourceAll, nil
	}
	for _, id := range AllSources() {
		if string(id) == s {
			return id, nil
		}
	}
	return "", fmt.Errorf("unknown source %q", s)
}

// Outcome is the result of a single probe or operational event.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeDegraded Outcome = "degraded"
	OutcomeFailure  Outcome = "failure"
)

// SampleKind describes what produced a sample.
type SampleKind string

const (
	KindHealthCheck SampleKind = "health_check"
	KindSyncAttempt SampleKind = "sync_attempt"
	KindDraftRun    SampleKind = "draft_run"
	KindIncident    SampleKind = "incident"
)

// Sample is one immutable raw observation. Samples are append-only and are
// never mutated or deleted by the monitor.
type Sample struct {
	ID         string         `json:"id"`
	Source     SourceID       `json:"source"`
	Kind       SampleKind     `json:"kind"`
	Outcome    Outcome        `json:"outcome"`
	Latency    *time.Duration `json:"latency,omitempty"`
	StatusCode *int           `json:"statusCode,omitempty"`
	Error      *string        `json:"error,omitempty"`
	RecordedAt time.Time      `json:"recordedAt"`
}

// LatencyMs returns the sample latency in milliseconds and whether it is set.
func (s Sample) LatencyMs() (float64, bool) {
	if s.Latency == nil {
		return 0, false
	}
	return float64(*s.Latency) / float64(time.Millisecond), true
}

// ErrorText returns the error message or an empty string.
func (s Sample) ErrorText() string {
	if s.Error == nil {
		return ""
	}
	return *s.Error
}

// Window is a fixed aggregation window ending at query time.
type Window string

const (
	Window1h  Window = "1h"
	Window24h Window = "24h"
	Window7d  Window = "7d"
	Window30d Window = "30d"
)

// Duration returns the length of the window.
func (w Window) Duration() time.Duration {
	switch w {
	case Window1h:
		return time.Hour
	case Window24h:
		return 24 * time.Hour
	case Window7d:
		return 7 * 24 * time.Hour
	case Window30d:
		return 30 * 24 * time.Hour
	default:
		return 0
	}
}

// Start returns the inclusive start of the window ending at now.
func (w Window) Start(now time.Time) time.Time {
	return now.Add(-w.Duration())
}

// ParseWindow validates a window name.
func ParseWindow(s string) (Window, error) {
	switch w := Window(s); w {
	case Window1h, Window24h, Window7d, Window30d:
		return w, nil
	default:
		return "", fmt.Errorf("unknown window %q", s)
	}
}

// Percentiles holds latency percentiles in milliseconds.
type Percentiles struct {
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

// WindowedAggregate is a read-time projection of samples within a window.
// Rates are percentages in [0, 100] and are zero when Total is zero.
type WindowedAggregate struct {
	Source      SourceID     `json:"source"`
	Window      Window       `json:"window"`
	Total       int64        `json:"total"`
	Success     int64        `json:"success"`
	Degraded    int64        `json:"degraded"`
	Failure     int64        `json:"failure"`
	SuccessRate float64      `json:"successRate"`
	ErrorRate   float64      `json:"errorRate"`
	Percentiles *Percentiles `json:"percentiles,omitempty"`
}

// IsEmpty reports whether the window held no samples.
func (a WindowedAggregate) IsEmpty() bool {
	return a.Total == 0
}

// WithRates fills SuccessRate and ErrorRate from the counts. Degraded samples
// count as successes for availability: the source answered.
func (a WindowedAggregate) WithRates() WindowedAggregate {
	if a.Total <= 0 {
		a.SuccessRate = 0
		a.ErrorRate = 0
		return a
	}
	a.SuccessRate = float64(a.Success+a.Degraded) / float64(a.Total) * 100
	a.ErrorRate = float64(a.Failure) / float64(a.Total) * 100
	return a
}

// Status is the availability verdict for a source.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
)

// Color is the threshold bucket of a rate or latency.
type Color string

const (
	// ColorNone is reported when a window holds no samples.
	ColorNone   Color = "none"
	ColorGreen  Color = "green"
	ColorYellow Color = "yellow"
	ColorRed    Color = "red"
)

// Trend compares a short window against a long window for the same metric.
type Trend string

const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
)

// ClassifiedSignal wraps an aggregate with its categorical verdict. It is
// recomputed from its aggregate on every poll and never cached on its own.
type ClassifiedSignal struct {
	Aggregate        WindowedAggregate `json:"aggregate"`
	Status           Status            `json:"status"`
	Color            Color             `json:"color"`
	Trend            Trend             `json:"trend"`
	Alert            bool              `json:"alert"`
	InsufficientData bool              `json:"insufficientData"`
}
