package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/leaguepulse/leaguepulse/internal/monitor"
)

// Instruments holds the monitor's OpenTelemetry instruments. A nil
// *Instruments is valid and records nothing.
type Instruments struct {
	probeLatency   metric.Float64Histogram
	probeOutcomes  metric.Int64Counter
	pollFetches    metric.Int64Counter
	pollDuration   metric.Float64Histogram
	suppressedLogs metric.Int64Counter
	alerts         metric.Int64Counter
}

// NewInstruments creates the monitor instruments on meter.
func NewInstruments(meter metric.Meter) (*Instruments, error) {
	probeLatency, err := meter.Float64Histogram(
		"leaguepulse.probe.latency",
		metric.WithDescription("Latency of source probes"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	probeOutcomes, err := meter.Int64Counter(
		"leaguepulse.probe.outcomes",
		metric.WithDescription("Probe samples by source and outcome"),
		metric.WithUnit("{sample}"),
	)
	if err != nil {
		return nil, err
	}

	pollFetches, err := meter.Int64Counter(
		"leaguepulse.poll.fetches",
		metric.WithDescription("Applied poller fetches by metric and result"),
		metric.WithUnit("{fetch}"),
	)
	if err != nil {
		return nil, err
	}

	pollDuration, err := meter.Float64Histogram(
		"leaguepulse.poll.duration",
		metric.WithDescription("Duration of poller fetches"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	suppressedLogs, err := meter.Int64Counter(
		"leaguepulse.samplelog.suppressed",
		metric.WithDescription("Sample appends that failed and were swallowed"),
		metric.WithUnit("{sample}"),
	)
	if err != nil {
		return nil, err
	}

	alerts, err := meter.Int64Counter(
		"leaguepulse.alerts.raised",
		metric.WithDescription("Alert rising edges by metric"),
		metric.WithUnit("{alert}"),
	)
	if err != nil {
		return nil, err
	}

	return &Instruments{
		probeLatency:   probeLatency,
		probeOutcomes:  probeOutcomes,
		pollFetches:    pollFetches,
		pollDuration:   pollDuration,
		suppressedLogs: suppressedLogs,
		alerts:         alerts,
	}, nil
}

// RecordProbe records the outcome and latency of a probe sample.
func (i *Instruments) RecordProbe(ctx context.Context, s monitor.Sample) {
	if i == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("source", string(s.Source)),
		attribute.String("outcome", string(s.Outcome)),
	)
	i.probeOutcomes.Add(ctx, 1, attrs)
	if ms, ok := s.LatencyMs(); ok {
		i.probeLatency.Record(ctx, ms, attrs)
	}
}

// RecordPoll records an applied poller fetch.
func (i *Instruments) RecordPoll(name string, elapsed time.Duration, err error) {
	if i == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("metric", name),
		attribute.String("result", result),
	)
	// Poll fetches run detached from any request.
	ctx := context.Background()
	i.pollFetches.Add(ctx, 1, attrs)
	i.pollDuration.Record(ctx, elapsed.Seconds(), attrs)
}

// RecordSuppressed records a swallowed sample append.
func (i *Instruments) RecordSuppressed(ctx context.Context, source monitor.SourceID) {
	if i == nil {
		return
	}
	i.suppressedLogs.Add(ctx, 1, metric.WithAttributes(attribute.String("source", string(source))))
}

// RecordAlert records an alert rising edge.
func (i *Instruments) RecordAlert(ctx context.Context, metricName string) {
	if i == nil {
		return
	}
	i.alerts.Add(ctx, 1, metric.WithAttributes(attribute.String("metric", metricName)))
}
