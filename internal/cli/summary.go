package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leaguepulse/leaguepulse/internal/app"
	"github.com/leaguepulse/leaguepulse/internal/incident"
	"github.com/leaguepulse/leaguepulse/internal/monitor"
)

var (
	summaryWindow     string
	summaryTypes      []string
	summarySeverities []string
	summaryUnresolved bool
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Print the incident summary for a window",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := summaryOptions()
		if err != nil {
			return err
		}
		return getApp().Summary(cmd.Context(), cmd.OutOrStdout(), opts)
	},
}

func summaryOptions() (app.SummaryOptions, error) {
	window, err := monitor.ParseWindow(summaryWindow)
	if err != nil {
		return app.SummaryOptions{}, fmt.Errorf("--window: %w", err)
	}

	var filter incident.Filter
	for _, raw := range summaryTypes {
		t := monitor.IncidentType(strings.TrimSpace(raw))
		if !contains(monitor.IncidentTypes(), t) {
			return app.SummaryOptions{}, fmt.Errorf("--type: unknown incident type %q", raw)
		}
		filter.Types = append(filter.Types, t)
	}
	for _, raw := range summarySeverities {
		s := monitor.Severity(strings.TrimSpace(raw))
		if !contains(monitor.Severities(), s) {
			return app.SummaryOptions{}, fmt.Errorf("--severity: unknown severity %q", raw)
		}
		filter.Severities = append(filter.Severities, s)
	}
	if summaryUnresolved {
		resolved := false
		filter.Resolved = &resolved
	}
	return app.SummaryOptions{Window: window, Filter: filter}, nil
}

func contains[T comparable](items []T, v T) bool {
	for _, item := range items {
		if item == v {
			return true
		}
	}
	return false
}

func init() {
	summaryCmd.Flags().StringVar(&summaryWindow, "window", string(monitor.Window7d), "Window to summarize (1h, 24h, 7d, 30d)")
	summaryCmd.Flags().StringSliceVar(&summaryTypes, "type", nil, "Only count these incident types")
	summaryCmd.Flags().StringSliceVar(&summarySeverities, "severity", nil, "Only count these severities")
	summaryCmd.Flags().BoolVar(&summaryUnresolved, "unresolved", false, "Only count unresolved incidents")
}
