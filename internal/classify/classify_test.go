package classify_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leaguepulse/leaguepulse/internal/classify"
	"github.com/leaguepulse/leaguepulse/internal/monitor"
)

func ptr(v float64) *float64 { return &v }

func TestStatusFromOutcome(t *testing.T) {
	assert.Equal(t, monitor.StatusHealthy, classify.StatusFromOutcome(monitor.OutcomeSuccess))
	assert.Equal(t, monitor.StatusDegraded, classify.StatusFromOutcome(monitor.OutcomeDegraded))
	assert.Equal(t, monitor.StatusDown, classify.StatusFromOutcome(monitor.OutcomeFailure))
}

func TestRateColor(t *testing.T) {
	tests := []struct {
		name string
		rate float64
		want monitor.Color
	}{
		{"well above green", 99.9, monitor.ColorGreen},
		{"exactly green boundary", 95, monitor.ColorGreen},
		{"just below green", 94.99, monitor.ColorYellow},
		{"exactly yellow boundary", 90, monitor.ColorYellow},
		{"just below yellow", 89.99, monitor.ColorRed},
		{"zero", 0, monitor.ColorRed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify.RateColor(tt.rate, classify.SuccessGreenMin, classify.SuccessYellowMin)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRateColor_Monotonic(t *testing.T) {
	rank := map[monitor.Color]int{monitor.ColorRed: 0, monitor.ColorYellow: 1, monitor.ColorGreen: 2}

	prev := rank[classify.RateColor(0, classify.CompletionGreenMin, classify.CompletionYellowMin)]
	for r := 0.0; r <= 100; r += 0.5 {
		cur := rank[classify.RateColor(r, classify.CompletionGreenMin, classify.CompletionYellowMin)]
		assert.GreaterOrEqual(t, cur, prev, "color must not get worse as rate rises (rate=%v)", r)
		prev = cur
	}
}

func TestLatencyTier(t *testing.T) {
	tests := []struct {
		ms   float64
		want classify.LatencyBucket
	}{
		{0, classify.LatencyExcellent},
		{40, classify.LatencyExcellent},
		{100, classify.LatencyExcellent},
		{100.1, classify.LatencyWarning},
		{200, classify.LatencyWarning},
		{200.1, classify.LatencyCritical},
		{5000, classify.LatencyCritical},
	}

	for _, tt := range tests {
		got := classify.LatencyTier(tt.ms, classify.LatencyExcellentMaxMs, classify.LatencyWarningMaxMs)
		assert.Equal(t, tt.want, got, "latency %vms", tt.ms)
	}

	assert.Equal(t, monitor.ColorGreen, classify.LatencyColor(40, 100, 200))
	assert.Equal(t, monitor.ColorYellow, classify.LatencyColor(150, 100, 200))
	assert.Equal(t, monitor.ColorRed, classify.LatencyColor(250, 100, 200))
}

func TestTrendOf(t *testing.T) {
	tests := []struct {
		name  string
		short *float64
		long  float64
		want  monitor.Trend
	}{
		{"no short data", nil, 50, monitor.TrendStable},
		{"rising", ptr(9), 6, monitor.TrendUp},
		{"falling", ptr(2), 6, monitor.TrendDown},
		{"within epsilon above", ptr(6.9), 6, monitor.TrendStable},
		{"within epsilon below", ptr(5.1), 6, monitor.TrendStable},
		{"exactly epsilon", ptr(7), 6, monitor.TrendStable},
		{"equal", ptr(6), 6, monitor.TrendStable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify.TrendOf(tt.short, tt.long, classify.TrendNoiseEpsilon))
		})
	}
}

func TestTrendOf_Antisymmetric(t *testing.T) {
	pairs := [][2]float64{{1, 9}, {9, 1}, {5, 5.5}, {0, 100}, {42, 40}}
	opposite := map[monitor.Trend]monitor.Trend{
		monitor.TrendUp:     monitor.TrendDown,
		monitor.TrendDown:   monitor.TrendUp,
		monitor.TrendStable: monitor.TrendStable,
	}

	for _, p := range pairs {
		a := classify.TrendOf(ptr(p[0]), p[1], classify.TrendNoiseEpsilon)
		b := classify.TrendOf(ptr(p[1]), p[0], classify.TrendNoiseEpsilon)
		assert.Equal(t, opposite[a], b, "pair %v", p)
	}
}

func TestAlerts(t *testing.T) {
	assert.True(t, classify.ErrorRateAlert(5, classify.ErrorRateAlertPct), "threshold is inclusive")
	assert.False(t, classify.ErrorRateAlert(4.99, classify.ErrorRateAlertPct))
	assert.True(t, classify.P99Alert(500.1, classify.P99AlertMs))
	assert.False(t, classify.P99Alert(500, classify.P99AlertMs), "p99 threshold is exclusive")

	signals := []monitor.ClassifiedSignal{{Alert: true}, {Alert: false}, {Alert: true}}
	assert.Equal(t, 2, classify.AlertCount(signals))
	assert.Equal(t, 0, classify.AlertCount(nil))
}

func TestClassifyErrorRate_RisingAboveThreshold(t *testing.T) {
	long := monitor.WindowedAggregate{Window: monitor.Window24h, Total: 100, Success: 94, Failure: 6}.WithRates()
	short := monitor.WindowedAggregate{Window: monitor.Window1h, Total: 100, Success: 91, Failure: 9}.WithRates()

	sig := classify.ClassifyErrorRate(long, short, classify.DefaultPolicy())

	assert.True(t, sig.Alert)
	assert.Equal(t, monitor.TrendUp, sig.Trend)
	assert.Equal(t, monitor.StatusDegraded, sig.Status)
	assert.False(t, sig.InsufficientData)
	assert.InDelta(t, 6.0, sig.Aggregate.ErrorRate, 0.0001)
}

func TestClassifyErrorRate_EmptyShortWindowIsStable(t *testing.T) {
	long := monitor.WindowedAggregate{Window: monitor.Window24h, Total: 50, Success: 50}.WithRates()

	sig := classify.ClassifyErrorRate(long, monitor.WindowedAggregate{}, classify.DefaultPolicy())

	assert.Equal(t, monitor.TrendStable, sig.Trend)
	assert.False(t, sig.Alert)
	assert.Equal(t, monitor.ColorGreen, sig.Color)
}

func TestClassifyLatency(t *testing.T) {
	agg := monitor.WindowedAggregate{
		Window:      monitor.Window24h,
		Total:       10,
		Success:     10,
		Percentiles: &monitor.Percentiles{P50: 40, P95: 90, P99: 120},
	}.WithRates()

	sig := classify.ClassifyLatency(agg, classify.DefaultPolicy())

	assert.Equal(t, monitor.ColorGreen, sig.Color)
	assert.False(t, sig.Alert)
	assert.Equal(t, monitor.StatusHealthy, sig.Status)

	agg.Percentiles = &monitor.Percentiles{P50: 80, P95: 300, P99: 900}
	sig = classify.ClassifyLatency(agg, classify.DefaultPolicy())
	assert.Equal(t, monitor.ColorGreen, sig.Color)
	assert.True(t, sig.Alert)
	assert.Equal(t, monitor.StatusDegraded, sig.Status)
}

func TestClassify_EmptyAggregateIsInsufficientData(t *testing.T) {
	p := classify.DefaultPolicy()
	empty := monitor.WindowedAggregate{Source: monitor.SourceSleeper, Window: monitor.Window7d}

	signals := []monitor.ClassifiedSignal{
		classify.ClassifySuccessRate(empty, p),
		classify.ClassifyCompletion(empty, p),
		classify.ClassifyErrorRate(empty, empty, p),
		classify.ClassifyLatency(empty, p),
	}

	for _, sig := range signals {
		assert.True(t, sig.InsufficientData)
		assert.False(t, sig.Alert)
		assert.Equal(t, monitor.StatusHealthy, sig.Status)
		assert.Equal(t, monitor.ColorNone, sig.Color)
		assert.Equal(t, monitor.TrendStable, sig.Trend)
	}
	assert.Equal(t, 0, classify.AlertCount(signals))
}

func TestClassifySuccessRate_DegradedCountsAsAvailable(t *testing.T) {
	agg := monitor.WindowedAggregate{Total: 100, Success: 80, Degraded: 16, Failure: 4}.WithRates()

	sig := classify.ClassifySuccessRate(agg, classify.DefaultPolicy())

	assert.InDelta(t, 96.0, sig.Aggregate.SuccessRate, 0.0001)
	assert.Equal(t, monitor.ColorGreen, sig.Color)
}

func TestClassifyCompletion(t *testing.T) {
	agg := monitor.WindowedAggregate{Total: 100, Success: 80, Failure: 20}.WithRates()

	sig := classify.ClassifyCompletion(agg, classify.DefaultPolicy())

	assert.Equal(t, monitor.ColorYellow, sig.Color)
	assert.Equal(t, monitor.StatusDegraded, sig.Status)
}

func TestPolicyValidate(t *testing.T) {
	require.NoError(t, classify.DefaultPolicy().Validate())
	assert.Equal(t, classify.DefaultPolicy(), classify.Thresholds())

	p := classify.DefaultPolicy()
	p.SuccessYellowMin = 96
	assert.ErrorIs(t, p.Validate(), classify.ErrInvalidPolicy)

	p = classify.DefaultPolicy()
	p.LatencyWarningMaxMs = 50
	assert.ErrorIs(t, p.Validate(), classify.ErrInvalidPolicy)

	p = classify.DefaultPolicy()
	p.TrendNoiseEpsilon = -1
	assert.ErrorIs(t, p.Validate(), classify.ErrInvalidPolicy)
}
