package incident

import (
	"context"
	"fmt"
	"time"

	"github.com/leaguepulse/leaguepulse/internal/monitor"
)

// Filter narrows an incident query. Empty slices match everything.
type Filter struct {
	Types      []monitor.IncidentType
	Severities []monitor.Severity
	// Resolved, when set, keeps only resolved (true) or open (false) incidents.
	Resolved *bool
}

// Matches reports whether r passes the filter.
func (f Filter) Matches(r monitor.IncidentRecord) bool {
	if len(f.Types) > 0 && !contains(f.Types, r.Type) {
		return false
	}
	if len(f.Severities) > 0 && !contains(f.Severities, r.Severity) {
		return false
	}
	if f.Resolved != nil && r.IsResolved() != *f.Resolved {
		return false
	}
	return true
}

func contains[T comparable](items []T, v T) bool {
	for _, item := range items {
		if item == v {
			return true
		}
	}
	return false
}

// Repository defines read access to incident records.
type Repository interface {
	// Query returns incidents that occurred within window, newest first.
	Query(ctx context.Context, window monitor.Window, filter Filter) ([]monitor.IncidentRecord, error)
}

// Report is a summary plus occurrence histogram for a window.
type Report struct {
	Window      monitor.Window `json:"window"`
	Summary     Summary        `json:"summary"`
	Histogram   []Bucket       `json:"histogram"`
	GeneratedAt time.Time      `json:"generatedAt"`
}

// BuildReport queries repo and rolls up the result.
func BuildReport(ctx context.Context, repo Repository, window monitor.Window, filter Filter) (Report, error) {
	records, err := repo.Query(ctx, window, filter)
	if err != nil {
		return Report{}, fmt.Errorf("query incidents: %w", err)
	}
	return Report{
		Window:      window,
		Summary:     Summarize(records),
		Histogram:   Histogram(OccurredTimes(records), window),
		GeneratedAt: time.Now().UTC(),
	}, nil
}
