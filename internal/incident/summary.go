// Package incident reads operational incidents and rolls them up into
// summaries and time histograms.
package incident

import (
	"sort"
	"time"

	"github.com/leaguepulse/leaguepulse/internal/monitor"
)

// Summary is a roll-up of incidents in a window. BySeverity and ByType
// always carry every known key, with zero counts where nothing matched.
type Summary struct {
	Total                int                          `json:"total"`
	AvgResolutionMinutes float64                      `json:"avgResolutionMinutes"`
	Resolved             int                          `json:"resolved"`
	BySeverity           map[monitor.Severity]int     `json:"bySeverity"`
	ByType               map[monitor.IncidentType]int `json:"byType"`
}

// Bucket is one histogram slot keyed by its start time.
type Bucket struct {
	Start time.Time `json:"start"`
	Count int       `json:"count"`
}

// Summarize counts records by severity and type and averages the resolution
// time of resolved records. Records with an unknown severity or type count
// toward Total only.
func Summarize(records []monitor.IncidentRecord) Summary {
	summary := Summary{
		Total:      len(records),
		BySeverity: make(map[monitor.Severity]int, len(monitor.Severities())),
		ByType:     make(map[monitor.IncidentType]int, len(monitor.IncidentTypes())),
	}
	for _, s := range monitor.Severities() {
		summary.BySeverity[s] = 0
	}
	for _, t := range monitor.IncidentTypes() {
		summary.ByType[t] = 0
	}

	var totalMinutes float64
	for _, r := range records {
		if _, ok := summary.BySeverity[r.Severity]; ok {
			summary.BySeverity[r.Severity]++
		}
		if _, ok := summary.ByType[r.Type]; ok {
			summary.ByType[r.Type]++
		}
		if r.IsResolved() {
			summary.Resolved++
			totalMinutes += *r.ResolutionMinutes
		}
	}

	if summary.Resolved > 0 {
		summary.AvgResolutionMinutes = totalMinutes / float64(summary.Resolved)
	}
	return summary
}

// BucketSize returns the histogram granularity for a window: hourly up to
// 24h, daily beyond.
func BucketSize(window monitor.Window) time.Duration {
	if window.Duration() <= 24*time.Hour {
		return time.Hour
	}
	return 24 * time.Hour
}

// Histogram counts times per bucket in ascending bucket order. Buckets are
// aligned to UTC hours or UTC calendar days. Empty buckets are omitted.
func Histogram(times []time.Time, window monitor.Window) []Bucket {
	size := BucketSize(window)
	counts := make(map[time.Time]int)

	for _, t := range times {
		t = t.UTC()
		var start time.Time
		if size == time.Hour {
			start = t.Truncate(time.Hour)
		} else {
			start = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		}
		counts[start]++
	}

	buckets := make([]Bucket, 0, len(counts))
	for start, n := range counts {
		buckets = append(buckets, Bucket{Start: start, Count: n})
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Start.Before(buckets[j].Start) })
	return buckets
}

// OccurredTimes extracts the occurrence time of each record.
func OccurredTimes(records []monitor.IncidentRecord) []time.Time {
	times := make([]time.Time, len(records))
	for i, r := range records {
		times[i] = r.OccurredAt
	}
	return times
}
