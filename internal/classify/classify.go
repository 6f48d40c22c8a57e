package classify

import (
	"github.com/leaguepulse/leaguepulse/internal/monitor"
)

// LatencyBucket is the named latency tier. Each tier maps onto a Color.
type LatencyBucket string

const (
	LatencyExcellent LatencyBucket = "excellent"
	LatencyWarning   LatencyBucket = "warning"
	LatencyCritical  LatencyBucket = "critical"
)

// Color returns the color bucket for the latency tier.
func (b LatencyBucket) Color() monitor.Color {
	switch b {
	case LatencyExcellent:
		return monitor.ColorGreen
	case LatencyWarning:
		return monitor.ColorYellow
	default:
		return monitor.ColorRed
	}
}

// StatusFromOutcome maps an availability check to a status.
func StatusFromOutcome(o monitor.Outcome) monitor.Status {
	switch o {
	case monitor.OutcomeSuccess:
		return monitor.StatusHealthy
	case monitor.OutcomeDegraded:
		return monitor.StatusDegraded
	default:
		return monitor.StatusDown
	}
}

// RateColor buckets a higher-is-better rate. greenMin must exceed yellowMin.
func RateColor(rate, greenMin, yellowMin float64) monitor.Color {
	switch {
	case rate >= greenMin:
		return monitor.ColorGreen
	case rate >= yellowMin:
		return monitor.ColorYellow
	default:
		return monitor.ColorRed
	}
}

// LatencyTier buckets a lower-is-better latency in milliseconds.
func LatencyTier(ms, excellentMax, warningMax float64) LatencyBucket {
	switch {
	case ms <= excellentMax:
		return LatencyExcellent
	case ms <= warningMax:
		return LatencyWarning
	default:
		return LatencyCritical
	}
}

// LatencyColor is LatencyTier mapped onto the shared color palette.
func LatencyColor(ms, excellentMax, warningMax float64) monitor.Color {
	return LatencyTier(ms, excellentMax, warningMax).Color()
}

// TrendOf compares a short-window rate with a long-window rate. A nil short
// rate means the recent window had no samples, which is always stable.
func TrendOf(short *float64, long, epsilon float64) monitor.Trend {
	if short == nil {
		return monitor.TrendStable
	}
	switch {
	case *short-long > epsilon:
		return monitor.TrendUp
	case long-*short > epsilon:
		return monitor.TrendDown
	default:
		return monitor.TrendStable
	}
}

// ShortRate returns a pointer to the error rate of a short-window aggregate, or
// nil when the window is empty.
func ShortRate(a monitor.WindowedAggregate, rate func(monitor.WindowedAggregate) float64) *float64 {
	if a.IsEmpty() {
		return nil
	}
	v := rate(a)
	return &v
}

// ErrorRateAlert reports whether an error rate breaches its threshold.
func ErrorRateAlert(rate, threshold float64) bool {
	return rate >= threshold
}

// P99Alert reports whether a p99 latency breaches its threshold.
func P99Alert(p99Ms, threshold float64) bool {
	return p99Ms > threshold
}

// AlertCount counts the signals whose alert is raised.
func AlertCount(signals []monitor.ClassifiedSignal) int {
	n := 0
	for _, s := range signals {
		if s.Alert {
			n++
		}
	}
	return n
}

func insufficient(a monitor.WindowedAggregate) monitor.ClassifiedSignal {
	return monitor.ClassifiedSignal{
		Aggregate:        a,
		Status:           monitor.StatusHealthy,
		Color:            monitor.ColorNone,
		Trend:            monitor.TrendStable,
		InsufficientData: true,
	}
}

func statusFromColor(c monitor.Color) monitor.Status {
	switch c {
	case monitor.ColorGreen:
		return monitor.StatusHealthy
	case monitor.ColorYellow:
		return monitor.StatusDegraded
	default:
		return monitor.StatusDown
	}
}

// ClassifySuccessRate classifies a connection success aggregate.
func ClassifySuccessRate(a monitor.WindowedAggregate, p Policy) monitor.ClassifiedSignal {
	if a.IsEmpty() {
		return insufficient(a)
	}
	color := RateColor(a.SuccessRate, p.SuccessGreenMin, p.SuccessYellowMin)
	return monitor.ClassifiedSignal{
		Aggregate: a,
		Status:    statusFromColor(color),
		Color:     color,
		Trend:     monitor.TrendStable,
	}
}

// ClassifyCompletion classifies a draft completion aggregate.
func ClassifyCompletion(a monitor.WindowedAggregate, p Policy) monitor.ClassifiedSignal {
	if a.IsEmpty() {
		return insufficient(a)
	}
	color := RateColor(a.SuccessRate, p.CompletionGreenMin, p.CompletionYellowMin)
	return monitor.ClassifiedSignal{
		Aggregate: a,
		Status:    statusFromColor(color),
		Color:     color,
		Trend:     monitor.TrendStable,
	}
}

// ClassifyErrorRate classifies a long-window error aggregate against a short
// window of the same source. The color reflects the success side of the rate
// so a display can share one palette across metrics.
func ClassifyErrorRate(long, short monitor.WindowedAggregate, p Policy) monitor.ClassifiedSignal {
	if long.IsEmpty() {
		return insufficient(long)
	}
	alert := ErrorRateAlert(long.ErrorRate, p.ErrorRateAlertPct)
	status := monitor.StatusHealthy
	if alert {
		status = monitor.StatusDegraded
	}
	shortRate := ShortRate(short, func(a monitor.WindowedAggregate) float64 { return a.ErrorRate })
	return monitor.ClassifiedSignal{
		Aggregate: long,
		Status:    status,
		Color:     RateColor(100-long.ErrorRate, p.SuccessGreenMin, p.SuccessYellowMin),
		Trend:     TrendOf(shortRate, long.ErrorRate, p.TrendNoiseEpsilon),
		Alert:     alert,
	}
}

// ClassifyLatency classifies a latency aggregate by its p50 tier and raises
// an alert on p99. Aggregates without percentiles count as insufficient data.
func ClassifyLatency(a monitor.WindowedAggregate, p Policy) monitor.ClassifiedSignal {
	if a.IsEmpty() || a.Percentiles == nil {
		return insufficient(a)
	}
	tier := LatencyTier(a.Percentiles.P50, p.LatencyExcellentMaxMs, p.LatencyWarningMaxMs)
	alert := P99Alert(a.Percentiles.P99, p.P99AlertMs)
	status := statusFromColor(tier.Color())
	if alert && status == monitor.StatusHealthy {
		status = monitor.StatusDegraded
	}
	return monitor.ClassifiedSignal{
		Aggregate: a,
		Status:    status,
		Color:     tier.Color(),
		Trend:     monitor.TrendStable,
		Alert:     alert,
	}
}
