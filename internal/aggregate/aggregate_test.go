package aggregate_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leaguepulse/leaguepulse/internal/aggregate"
	"github.com/leaguepulse/leaguepulse/internal/monitor"
)

var now = time.Date(2025, 9, 7, 18, 0, 0, 0, time.UTC)

func sample(source monitor.SourceID, outcome monitor.Outcome, ago time.Duration, latencyMs int) monitor.Sample {
	s := monitor.Sample{
		Source:     source,
		Kind:       monitor.KindHealthCheck,
		Outcome:    outcome,
		RecordedAt: now.Add(-ago),
	}
	if latencyMs > 0 {
		d := time.Duration(latencyMs) * time.Millisecond
		s.Latency = &d
	}
	return s
}

func TestFold_CountsAndRates(t *testing.T) {
	samples := []monitor.Sample{
		sample(monitor.SourceSleeper, monitor.OutcomeSuccess, time.Minute, 50),
		sample(monitor.SourceSleeper, monitor.OutcomeSuccess, 2*time.Hour, 60),
		sample(monitor.SourceSleeper, monitor.OutcomeDegraded, 3*time.Hour, 70),
		sample(monitor.SourceSleeper, monitor.OutcomeFailure, 4*time.Hour, 0),
		sample(monitor.SourceESPN, monitor.OutcomeFailure, time.Minute, 0),
		sample(monitor.SourceSleeper, monitor.OutcomeFailure, 30*time.Hour, 0),
	}

	agg := aggregate.Fold(samples, monitor.SourceSleeper, monitor.Window24h, now)

	assert.Equal(t, monitor.SourceSleeper, agg.Source)
	assert.Equal(t, monitor.Window24h, agg.Window)
	assert.Equal(t, int64(4), agg.Total)
	assert.Equal(t, int64(2), agg.Success)
	assert.Equal(t, int64(1), agg.Degraded)
	assert.Equal(t, int64(1), agg.Failure)
	assert.InDelta(t, 75.0, agg.SuccessRate, 0.0001)
	assert.InDelta(t, 25.0, agg.ErrorRate, 0.0001)
	require.NotNil(t, agg.Percentiles)
	assert.InDelta(t, 60.0, agg.Percentiles.P50, 0.0001)
}

func TestFold_AllSources(t *testing.T) {
	samples := []monitor.Sample{
		sample(monitor.SourceSleeper, monitor.OutcomeSuccess, time.Minute, 0),
		sample(monitor.SourceESPN, monitor.OutcomeFailure, time.Minute, 0),
		sample(monitor.SourceYahoo, monitor.OutcomeSuccess, time.Minute, 0),
	}

	agg := aggregate.Fold(samples, monitor.SourceAll, monitor.Window1h, now)

	assert.Equal(t, int64(3), agg.Total)
	assert.Nil(t, agg.Percentiles)
}

func TestFold_EmptyWindow(t *testing.T) {
	samples := []monitor.Sample{
		sample(monitor.SourceSleeper, monitor.OutcomeFailure, 2*time.Hour, 10),
	}

	agg := aggregate.Fold(samples, monitor.SourceSleeper, monitor.Window1h, now)

	assert.True(t, agg.IsEmpty())
	assert.Zero(t, agg.SuccessRate)
	assert.Zero(t, agg.ErrorRate)
	assert.Nil(t, agg.Percentiles)
}

func TestFold_RatesStayInRange(t *testing.T) {
	outcomes := []monitor.Outcome{monitor.OutcomeSuccess, monitor.OutcomeDegraded, monitor.OutcomeFailure}
	var samples []monitor.Sample
	for i := 0; i < 200; i++ {
		samples = append(samples, sample(monitor.SourceYahoo, outcomes[i%3], time.Duration(i)*time.Minute, i))

		agg := aggregate.Fold(samples, monitor.SourceYahoo, monitor.Window24h, now)
		assert.GreaterOrEqual(t, agg.SuccessRate, 0.0)
		assert.LessOrEqual(t, agg.SuccessRate, 100.0)
		assert.GreaterOrEqual(t, agg.ErrorRate, 0.0)
		assert.LessOrEqual(t, agg.ErrorRate, 100.0)
		assert.Equal(t, agg.Total, agg.Success+agg.Degraded+agg.Failure)
	}
}

func TestFold_WindowBoundaryIsInclusive(t *testing.T) {
	samples := []monitor.Sample{
		sample(monitor.SourceCache, monitor.OutcomeSuccess, time.Hour, 0),
		sample(monitor.SourceCache, monitor.OutcomeSuccess, 0, 0),
	}

	agg := aggregate.Fold(samples, monitor.SourceCache, monitor.Window1h, now)
	assert.Equal(t, int64(2), agg.Total)
}

func TestPercentilesOf(t *testing.T) {
	assert.Nil(t, aggregate.PercentilesOf(nil))

	single := aggregate.PercentilesOf([]float64{42})
	require.NotNil(t, single)
	assert.Equal(t, monitor.Percentiles{P50: 42, P95: 42, P99: 42}, *single)

	var latencies []float64
	for i := 100; i >= 1; i-- {
		latencies = append(latencies, float64(i))
	}
	p := aggregate.PercentilesOf(latencies)
	require.NotNil(t, p)
	assert.InDelta(t, 50.5, p.P50, 0.0001)
	assert.InDelta(t, 95.05, p.P95, 0.0001)
	assert.InDelta(t, 99.01, p.P99, 0.0001)
	assert.Equal(t, 100.0, latencies[0], "input must not be reordered")

	assert.LessOrEqual(t, p.P50, p.P95)
	assert.LessOrEqual(t, p.P95, p.P99)
}

func TestFailureTimesOf(t *testing.T) {
	samples := []monitor.Sample{
		sample(monitor.SourceESPN, monitor.OutcomeFailure, time.Minute, 0),
		sample(monitor.SourceESPN, monitor.OutcomeSuccess, 2*time.Minute, 0),
		sample(monitor.SourceESPN, monitor.OutcomeFailure, 3*time.Hour, 0),
		sample(monitor.SourceSleeper, monitor.OutcomeFailure, 5*time.Minute, 0),
		sample(monitor.SourceESPN, monitor.OutcomeFailure, 8*24*time.Hour, 0),
	}

	times := aggregate.FailureTimesOf(samples, monitor.SourceESPN, monitor.Window7d, now)

	require.Len(t, times, 2)
	assert.Equal(t, now.Add(-3*time.Hour), times[0])
	assert.Equal(t, now.Add(-time.Minute), times[1])

	all := aggregate.FailureTimesOf(samples, monitor.SourceAll, monitor.Window24h, now)
	assert.Len(t, all, 3)
}
