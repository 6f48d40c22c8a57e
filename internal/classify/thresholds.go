// Package classify maps raw aggregates to categorical signals using fixed
// numeric thresholds. Every function in this package is pure.
package classify

import (
	"errors"
	"fmt"
)

// Success-rate thresholds (percent), used for connection success.
const (
	SuccessGreenMin  = 95.0
	SuccessYellowMin = 90.0
)

// Completion-rate thresholds (percent), used for draft completion.
const (
	CompletionGreenMin  = 90.0
	CompletionYellowMin = 75.0
)

// Latency thresholds (milliseconds). Lower is better.
const (
	LatencyExcellentMaxMs = 100.0
	LatencyWarningMaxMs   = 200.0
	P99AlertMs            = 500.0
)

// ErrorRateAlertPct is the 24h error rate at or above which a source alerts.
const ErrorRateAlertPct = 5.0

// TrendNoiseEpsilon is the band (percentage points) within which a short and a
// long window are considered equal.
const TrendNoiseEpsilon = 1.0

// Policy bundles every threshold used by the classifiers. The zero value is
// not useful; start from DefaultPolicy.
type Policy struct {
	SuccessGreenMin       float64 `json:"successGreenMin" mapstructure:"success_green_min"`
	SuccessYellowMin      float64 `json:"successYellowMin" mapstructure:"success_yellow_min"`
	CompletionGreenMin    float64 `json:"completionGreenMin" mapstructure:"completion_green_min"`
	CompletionYellowMin   float64 `json:"completionYellowMin" mapstructure:"completion_yellow_min"`
	LatencyExcellentMaxMs float64 `json:"latencyExcellentMaxMs" mapstructure:"latency_excellent_max_ms"`
	LatencyWarningMaxMs   float64 `json:"latencyWarningMaxMs" mapstructure:"latency_warning_max_ms"`
	P99AlertMs            float64 `json:"p99AlertMs" mapstructure:"p99_alert_ms"`
	ErrorRateAlertPct     float64 `json:"errorRateAlertPct" mapstructure:"error_rate_alert_pct"`
	TrendNoiseEpsilon     float64 `json:"trendNoiseEpsilon" mapstructure:"trend_noise_epsilon"`
}

// DefaultPolicy returns the named threshold constants as a Policy.
func DefaultPolicy() Policy {
	return Policy{
		SuccessGreenMin:       SuccessGreenMin,
		SuccessYellowMin:      SuccessYellowMin,
		CompletionGreenMin:    CompletionGreenMin,
		CompletionYellowMin:   CompletionYellowMin,
		LatencyExcellentMaxMs: LatencyExcellentMaxMs,
		LatencyWarningMaxMs:   LatencyWarningMaxMs,
		P99AlertMs:            P99AlertMs,
		ErrorRateAlertPct:     ErrorRateAlertPct,
		TrendNoiseEpsilon:     TrendNoiseEpsilon,
	}
}

// Thresholds returns the default thresholds for display. Consumers that honor
// overrides should display the active Policy instead.
func Thresholds() Policy {
	return DefaultPolicy()
}

// ErrInvalidPolicy is returned by Validate.
var ErrInvalidPolicy = errors.New("invalid threshold policy")

// Validate checks that every pair of boundaries is ordered.
func (p Policy) Validate() error {
	if p.SuccessGreenMin <= p.SuccessYellowMin {
		return fmt.Errorf("%w: success green min %.2f must exceed yellow min %.2f",
			ErrInvalidPolicy, p.SuccessGreenMin, p.SuccessYellowMin)
	}
	if p.CompletionGreenMin <= p.CompletionYellowMin {
		return fmt.Errorf("%w: completion green min %.2f must exceed yellow min %.2f",
			ErrInvalidPolicy, p.CompletionGreenMin, p.CompletionYellowMin)
	}
	if p.LatencyExcellentMaxMs >= p.LatencyWarningMaxMs {
		return fmt.Errorf("%w: latency excellent max %.0fms must be below warning max %.0fms",
			ErrInvalidPolicy, p.LatencyExcellentMaxMs, p.LatencyWarningMaxMs)
	}
	if p.P99AlertMs <= 0 || p.ErrorRateAlertPct <= 0 {
		return fmt.Errorf("%w: alert thresholds must be positive", ErrInvalidPolicy)
	}
	if p.TrendNoiseEpsilon < 0 {
		return fmt.Errorf("%w: trend epsilon cannot be negative", ErrInvalidPolicy)
	}
	return nil
}
