// Package aggregate defines read-time projections over the sample log.
package aggregate

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/leaguepulse/leaguepulse/internal/monitor"
)

// Provider answers windowed queries over samples. Implementations are pure
// reads: an empty window yields a zero aggregate, never an error. Errors are
// reserved for the store itself being unreachable.
type Provider interface {
	// Aggregate counts outcomes for source within window, including latency
	// percentiles when any sample carried a latency.
	Aggregate(ctx context.Context, source monitor.SourceID, window monitor.Window) (monitor.WindowedAggregate, error)

	// Percentiles returns latency percentiles, or nil when no sample in the
	// window carried a latency.
	Percentiles(ctx context.Context, source monitor.SourceID, window monitor.Window) (*monitor.Percentiles, error)

	// FailureTimes returns the times of failure samples in ascending order.
	FailureTimes(ctx context.Context, source monitor.SourceID, window monitor.Window) ([]time.Time, error)
}

// InWindow reports whether s belongs to source and falls inside the window
// ending at now. SourceAll matches every source.
func InWindow(s monitor.Sample, source monitor.SourceID, window monitor.Window, now time.Time) bool {
	if source != monitor.SourceAll && s.Source != source {
		return false
	}
	start := window.Start(now)
	return !s.RecordedAt.Before(start) && !s.RecordedAt.After(now)
}

// Fold computes the aggregate of samples for source within window.
func Fold(samples []monitor.Sample, source monitor.SourceID, window monitor.Window, now time.Time) monitor.WindowedAggregate {
	agg := monitor.WindowedAggregate{Source: source, Window: window}
	var latencies []float64

	for _, s := range samples {
		if !InWindow(s, source, window, now) {
			continue
		}
		agg.Total++
		switch s.Outcome {
		case monitor.OutcomeSuccess:
			agg.Success++
		case monitor.OutcomeDegraded:
			agg.Degraded++
		default:
			agg.Failure++
		}
		if ms, ok := s.LatencyMs(); ok {
			latencies = append(latencies, ms)
		}
	}

	agg.Percentiles = PercentilesOf(latencies)
	return agg.WithRates()
}

// FailureTimesOf returns the ascending times of failure samples for source
// within window.
func FailureTimesOf(samples []monitor.Sample, source monitor.SourceID, window monitor.Window, now time.Time) []time.Time {
	var times []time.Time
	for _, s := range samples {
		if s.Outcome == monitor.OutcomeFailure && InWindow(s, source, window, now) {
			times = append(times, s.RecordedAt)
		}
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	return times
}

// PercentilesOf returns p50, p95 and p99 of latencies in milliseconds using
// linear interpolation between closest ranks, the same method as PostgreSQL
// percentile_cont. It returns nil for an empty input. The input is not
// modified.
func PercentilesOf(latencies []float64) *monitor.Percentiles {
	if len(latencies) == 0 {
		return nil
	}
	sorted := make([]float64, len(latencies))
	copy(sorted, latencies)
	sort.Float64s(sorted)

	return &monitor.Percentiles{
		P50: percentile(sorted, 0.50),
		P95: percentile(sorted, 0.95),
		P99: percentile(sorted, 0.99),
	}
}

func percentile(sorted []float64, q float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}
