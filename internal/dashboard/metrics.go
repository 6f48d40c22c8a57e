// Package dashboard keeps the operations dashboard metrics fresh. Each metric
// is a poller over a fetch that reads aggregates and classifies them.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/leaguepulse/leaguepulse/internal/aggregate"
	"github.com/leaguepulse/leaguepulse/internal/classify"
	"github.com/leaguepulse/leaguepulse/internal/incident"
	"github.com/leaguepulse/leaguepulse/internal/monitor"
)

// Metric names a logical dashboard metric.
type Metric string

const (
	MetricHealth            Metric = "health"
	MetricErrorRate         Metric = "error_rate"
	MetricConnectionSuccess Metric = "connection_success"
	MetricCompletionRate    Metric = "completion_rate"
	MetricIncidents         Metric = "incidents"
	MetricLatency           Metric = "latency"
)

// Metrics returns every metric in display order.
func Metrics() []Metric {
	return []Metric{
		MetricHealth,
		MetricErrorRate,
		MetricConnectionSuccess,
		MetricCompletionRate,
		MetricIncidents,
		MetricLatency,
	}
}

var (
	// ErrUnknownMetric is returned for a metric name that does not exist.
	ErrUnknownMetric = errors.New("unknown metric")

	// ErrNotConfigured is returned for a metric whose data source is missing.
	ErrNotConfigured = errors.New("metric not configured")
)

// ParseMetric validates a metric name.
func ParseMetric(s string) (Metric, error) {
	for _, m := range Metrics() {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMetric, s)
}

// Windows read by each metric.
const (
	ErrorRateWindow      = monitor.Window24h
	ErrorRateShortWindow = monitor.Window1h
	ConnectionWindow     = monitor.Window7d
	CompletionWindow     = monitor.Window30d
	IncidentWindow       = monitor.Window7d
	LatencyWindow        = monitor.Window24h
)

// maxParallelQueries bounds concurrent aggregate reads within one fetch.
const maxParallelQueries = 4

// Intervals holds the refresh interval of each metric.
type Intervals struct {
	Health            time.Duration `mapstructure:"health"`
	ErrorRate         time.Duration `mapstructure:"error_rate"`
	ConnectionSuccess time.Duration `mapstructure:"connection_success"`
	CompletionRate    time.Duration `mapstructure:"completion_rate"`
	Incidents         time.Duration `mapstructure:"incidents"`
	Latency           time.Duration `mapstructure:"latency"`
}

// DefaultIntervals returns the standard refresh cadence.
func DefaultIntervals() Intervals {
	return Intervals{
		Health:            30 * time.Second,
		ErrorRate:         time.Minute,
		ConnectionSuccess: 5 * time.Minute,
		CompletionRate:    15 * time.Minute,
		Incidents:         time.Minute,
		Latency:           time.Minute,
	}
}

// For returns the interval of m, falling back to the default for zero values.
func (i Intervals) For(m Metric) time.Duration {
	d := DefaultIntervals()
	pick := func(v, def time.Duration) time.Duration {
		if v > 0 {
			return v
		}
		return def
	}
	switch m {
	case MetricHealth:
		return pick(i.Health, d.Health)
	case MetricErrorRate:
		return pick(i.ErrorRate, d.ErrorRate)
	case MetricConnectionSuccess:
		return pick(i.ConnectionSuccess, d.ConnectionSuccess)
	case MetricCompletionRate:
		return pick(i.CompletionRate, d.CompletionRate)
	case MetricIncidents:
		return pick(i.Incidents, d.Incidents)
	case MetricLatency:
		return pick(i.Latency, d.Latency)
	}
	return time.Minute
}

// PolicySource supplies the thresholds in force.
type PolicySource interface {
	Policy(ctx context.Context) classify.Policy
}

// StaticPolicy is a PolicySource that never changes.
type StaticPolicy classify.Policy

// Policy returns the fixed policy.
func (s StaticPolicy) Policy(context.Context) classify.Policy {
	return classify.Policy(s)
}

// Sweeper probes every configured source once.
type Sweeper interface {
	ProbeAll(ctx context.Context) []monitor.Sample
}

// SourceAvailability is the current availability of one source.
type SourceAvailability struct {
	Source     monitor.SourceID `json:"source"`
	Status     monitor.Status   `json:"status"`
	LatencyMs  *float64         `json:"latencyMs,omitempty"`
	StatusCode *int             `json:"statusCode,omitempty"`
	Error      string           `json:"error,omitempty"`
	CheckedAt  time.Time        `json:"checkedAt"`
}

// HealthPayload is the result of one probe sweep.
type HealthPayload struct {
	Sources   []SourceAvailability `json:"sources"`
	Overall   monitor.Status       `json:"overall"`
	Down      int                  `json:"down"`
	Degraded  int                  `json:"degraded"`
	CheckedAt time.Time            `json:"checkedAt"`
}

// ErrorRateEntry is the error rate signal of one source, or of all sources
// when Source is empty.
type ErrorRateEntry struct {
	Source         monitor.SourceID         `json:"source"`
	Signal         monitor.ClassifiedSignal `json:"signal"`
	ShortErrorRate *float64                 `json:"shortErrorRate,omitempty"`
}

// ErrorRatePayload compares the long and short error rate windows.
type ErrorRatePayload struct {
	Overall          ErrorRateEntry   `json:"overall"`
	Sources          []ErrorRateEntry `json:"sources"`
	ThresholdPct     float64          `json:"thresholdPct"`
	IsAboveThreshold bool             `json:"isAboveThreshold"`
	AlertCount       int              `json:"alertCount"`
}

// ConnectionPayload is the integration success rate.
type ConnectionPayload struct {
	Overall      monitor.ClassifiedSignal   `json:"overall"`
	Integrations []monitor.ClassifiedSignal `json:"integrations"`
}

// CompletionPayload is the draft completion rate.
type CompletionPayload struct {
	Signal monitor.ClassifiedSignal `json:"signal"`
}

// LatencyEntry is the latency signal of one source, or of all sources when
// Source is empty.
type LatencyEntry struct {
	Source     monitor.SourceID         `json:"source"`
	Signal     monitor.ClassifiedSignal `json:"signal"`
	P50Color   monitor.Color            `json:"p50Color"`
	P95Color   monitor.Color            `json:"p95Color"`
	P99Color   monitor.Color            `json:"p99Color"`
	IsP99Alert bool                     `json:"isP99Alert"`
}

// LatencyPayload holds latency percentiles per source.
type LatencyPayload struct {
	Overall    LatencyEntry   `json:"overall"`
	Sources    []LatencyEntry `json:"sources"`
	P99AlertMs float64        `json:"p99AlertMs"`
	IsP99Alert bool           `json:"isP99Alert"`
	AlertCount int            `json:"alertCount"`
}

// HealthFetcher returns a fetch that runs one probe sweep.
func HealthFetcher(sweeper Sweeper) func(context.Context) (HealthPayload, error) {
	return func(ctx context.Context) (HealthPayload, error) {
		samples := sweeper.ProbeAll(ctx)
		if err := ctx.Err(); err != nil {
			return HealthPayload{}, err
		}
		return BuildHealth(samples, time.Now().UTC()), nil
	}
}

// BuildHealth rolls probe samples up into a health payload. The overall
// status is down only when every source is down.
func BuildHealth(samples []monitor.Sample, now time.Time) HealthPayload {
	out := HealthPayload{
		Sources:   make([]SourceAvailability, 0, len(samples)),
		Overall:   monitor.StatusHealthy,
		CheckedAt: now,
	}
	for _, s := range samples {
		a := SourceAvailability{
			Source:     s.Source,
			Status:     classify.StatusFromOutcome(s.Outcome),
			StatusCode: s.StatusCode,
			Error:      s.ErrorText(),
			CheckedAt:  s.RecordedAt,
		}
		if ms, ok := s.LatencyMs(); ok {
			a.LatencyMs = &ms
		}
		switch a.Status {
		case monitor.StatusDown:
			out.Down++
		case monitor.StatusDegraded:
			out.Degraded++
		}
		out.Sources = append(out.Sources, a)
	}

	switch {
	case len(out.Sources) > 0 && out.Down == len(out.Sources):
		out.Overall = monitor.StatusDown
	case out.Down > 0 || out.Degraded > 0:
		out.Overall = monitor.StatusDegraded
	}
	return out
}

// ErrorRateFetcher returns a fetch that classifies the error rate of every
// source and of all sources together.
func ErrorRateFetcher(provider aggregate.Provider, policy PolicySource, sources []monitor.SourceID) func(context.Context) (ErrorRatePayload, error) {
	return func(ctx context.Context) (ErrorRatePayload, error) {
		p := policy.Policy(ctx)
		targets := append([]monitor.SourceID{monitor.SourceAll}, sources...)
		entries := make([]ErrorRateEntry, len(targets))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(maxParallelQueries)
		for i, source := range targets {
			g.Go(func() error {
				long, err := provider.Aggregate(gctx, source, ErrorRateWindow)
				if err != nil {
					return fmt.Errorf("aggregate %s %s: %w", sourceLabel(source), ErrorRateWindow, err)
				}
				short, err := provider.Aggregate(gctx, source, ErrorRateShortWindow)
				if err != nil {
					return fmt.Errorf("aggregate %s %s: %w", sourceLabel(source), ErrorRateShortWindow, err)
				}
				entries[i] = ErrorRateEntry{
					Source:         source,
					Signal:         classify.ClassifyErrorRate(long, short, p),
					ShortErrorRate: classify.ShortRate(short, errorRate),
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return ErrorRatePayload{}, err
		}

		signals := make([]monitor.ClassifiedSignal, len(entries))
		for i, e := range entries {
			signals[i] = e.Signal
		}
		return ErrorRatePayload{
			Overall:          entries[0],
			Sources:          entries[1:],
			ThresholdPct:     p.ErrorRateAlertPct,
			IsAboveThreshold: entries[0].Signal.Alert,
			AlertCount:       classify.AlertCount(signals),
		}, nil
	}
}

// ConnectionFetcher returns a fetch that classifies the success rate of each
// integration. The overall rate is computed from the summed counts.
func ConnectionFetcher(provider aggregate.Provider, policy PolicySource, integrations []monitor.SourceID) func(context.Context) (ConnectionPayload, error) {
	return func(ctx context.Context) (ConnectionPayload, error) {
		p := policy.Policy(ctx)
		aggs := make([]monitor.WindowedAggregate, len(integrations))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(maxParallelQueries)
		for i, source := range integrations {
			g.Go(func() error {
				a, err := provider.Aggregate(gctx, source, ConnectionWindow)
				if err != nil {
					return fmt.Errorf("aggregate %s %s: %w", source, ConnectionWindow, err)
				}
				aggs[i] = a
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return ConnectionPayload{}, err
		}

		total := monitor.WindowedAggregate{Source: monitor.SourceAll, Window: ConnectionWindow}
		out := ConnectionPayload{Integrations: make([]monitor.ClassifiedSignal, len(aggs))}
		for i, a := range aggs {
			total.Total += a.Total
			total.Success += a.Success
			total.Degraded += a.Degraded
			total.Failure += a.Failure
			out.Integrations[i] = classify.ClassifySuccessRate(a, p)
		}
		out.Overall = classify.ClassifySuccessRate(total.WithRates(), p)
		return out, nil
	}
}

// CompletionFetcher returns a fetch that classifies the draft completion rate.
func CompletionFetcher(provider aggregate.Provider, policy PolicySource) func(context.Context) (CompletionPayload, error) {
	return func(ctx context.Context) (CompletionPayload, error) {
		a, err := provider.Aggregate(ctx, monitor.SourceDraftEngine, CompletionWindow)
		if err != nil {
			return CompletionPayload{}, fmt.Errorf("aggregate %s %s: %w", monitor.SourceDraftEngine, CompletionWindow, err)
		}
		return CompletionPayload{Signal: classify.ClassifyCompletion(a, policy.Policy(ctx))}, nil
	}
}

// IncidentsFetcher returns a fetch that builds the incident report.
func IncidentsFetcher(repo incident.Repository) func(context.Context) (incident.Report, error) {
	return func(ctx context.Context) (incident.Report, error) {
		return incident.BuildReport(ctx, repo, IncidentWindow, incident.Filter{})
	}
}

// LatencyFetcher returns a fetch that classifies latency percentiles of every
// source and of all sources together.
func LatencyFetcher(provider aggregate.Provider, policy PolicySource, sources []monitor.SourceID) func(context.Context) (LatencyPayload, error) {
	return func(ctx context.Context) (LatencyPayload, error) {
		p := policy.Policy(ctx)
		targets := append([]monitor.SourceID{monitor.SourceAll}, sources...)
		entries := make([]LatencyEntry, len(targets))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(maxParallelQueries)
		for i, source := range targets {
			g.Go(func() error {
				a, err := provider.Aggregate(gctx, source, LatencyWindow)
				if err != nil {
					return fmt.Errorf("aggregate %s %s: %w", sourceLabel(source), LatencyWindow, err)
				}
				entries[i] = latencyEntry(source, classify.ClassifyLatency(a, p), p)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return LatencyPayload{}, err
		}

		signals := make([]monitor.ClassifiedSignal, len(entries))
		for i, e := range entries {
			signals[i] = e.Signal
		}
		return LatencyPayload{
			Overall:    entries[0],
			Sources:    entries[1:],
			P99AlertMs: p.P99AlertMs,
			IsP99Alert: entries[0].IsP99Alert,
			AlertCount: classify.AlertCount(signals),
		}, nil
	}
}

func latencyEntry(source monitor.SourceID, sig monitor.ClassifiedSignal, p classify.Policy) LatencyEntry {
	e := LatencyEntry{
		Source:     source,
		Signal:     sig,
		P50Color:   monitor.ColorNone,
		P95Color:   monitor.ColorNone,
		P99Color:   monitor.ColorNone,
		IsP99Alert: sig.Alert,
	}
	if pc := sig.Aggregate.Percentiles; pc != nil && !sig.InsufficientData {
		e.P50Color = classify.LatencyColor(pc.P50, p.LatencyExcellentMaxMs, p.LatencyWarningMaxMs)
		e.P95Color = classify.LatencyColor(pc.P95, p.LatencyExcellentMaxMs, p.LatencyWarningMaxMs)
		e.P99Color = classify.LatencyColor(pc.P99, p.LatencyExcellentMaxMs, p.LatencyWarningMaxMs)
	}
	return e
}

func errorRate(a monitor.WindowedAggregate) float64 {
	return a.ErrorRate
}

func sourceLabel(s monitor.SourceID) string {
	if s == monitor.SourceAll {
		return "all sources"
	}
	return string(s)
}
