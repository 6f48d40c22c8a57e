package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leaguepulse/leaguepulse/internal/monitor"
)

func setSummaryFlags(t *testing.T, window string, types, severities []string, unresolved bool) {
	t.Helper()
	prev := []any{summaryWindow, summaryTypes, summarySeverities, summaryUnresolved}
	t.Cleanup(func() {
		summaryWindow = prev[0].(string)
		summaryTypes, _ = prev[1].([]string)
		summarySeverities, _ = prev[2].([]string)
		summaryUnresolved = prev[3].(bool)
	})
	summaryWindow, summaryTypes, summarySeverities, summaryUnresolved = window, types, severities, unresolved
}

func TestSummaryOptions(t *testing.T) {
	setSummaryFlags(t, "24h", []string{"api_failure", " sync_failure"}, []string{"critical"}, true)

	opts, err := summaryOptions()
	require.NoError(t, err)

	assert.Equal(t, monitor.Window24h, opts.Window)
	assert.Equal(t, []monitor.IncidentType{monitor.IncidentAPIFailure, monitor.IncidentSyncFailure}, opts.Filter.Types)
	assert.Equal(t, []monitor.Severity{monitor.SeverityCritical}, opts.Filter.Severities)
	require.NotNil(t, opts.Filter.Resolved)
	assert.False(t, *opts.Filter.Resolved)
}

func TestSummaryOptions_Invalid(t *testing.T) {
	tests := []struct {
		name       string
		window     string
		types      []string
		severities []string
		want       string
	}{
		{"window", "2w", nil, nil, "--window"},
		{"type", "7d", []string{"outage"}, nil, "--type"},
		{"severity", "7d", nil, []string{"urgent"}, "--severity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setSummaryFlags(t, tt.window, tt.types, tt.severities, false)

			_, err := summaryOptions()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
