package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/leaguepulse/leaguepulse/internal/classify"
	"github.com/leaguepulse/leaguepulse/internal/incident"
	"github.com/leaguepulse/leaguepulse/internal/monitor"
)

// ProbeOptions configure the probe command.
type ProbeOptions struct {
	// Source limits the sweep to one source. Empty probes every source.
	Source string
}

// SummaryOptions configure the summary command.
type SummaryOptions struct {
	Window monitor.Window
	Filter incident.Filter
}

// Probe runs one sweep and prints a row per sample. Samples are recorded
// like any scheduled probe.
func (a *App) Probe(ctx context.Context, w io.Writer, opts ProbeOptions) error {
	c, err := a.build(ctx, nil)
	if err != nil {
		return err
	}
	defer c.close()

	var samples []monitor.Sample
	if opts.Source != "" {
		source, err := monitor.ParseSourceID(opts.Source)
		if err != nil {
			return err
		}
		s, err := c.prober.Probe(ctx, source, 0)
		if err != nil {
			return err
		}
		samples = []monitor.Sample{s}
	} else {
		samples = c.prober.ProbeAll(ctx)
	}
	if len(samples) == 0 {
		fmt.Fprintln(w, "no sources configured")
		return nil
	}

	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Source\tStatus\tLatency\tCode\tError")
	for _, s := range samples {
		latency := "-"
		if ms, ok := s.LatencyMs(); ok {
			latency = fmt.Sprintf("%.0fms", ms)
		}
		code := "-"
		if s.StatusCode != nil {
			code = fmt.Sprintf("%d", *s.StatusCode)
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\n",
			s.Source,
			classify.StatusFromOutcome(s.Outcome),
			latency,
			code,
			sanitizeInline(s.ErrorText()),
		)
	}
	return writer.Flush()
}

// Summary prints the incident report for a window.
func (a *App) Summary(ctx context.Context, w io.Writer, opts SummaryOptions) error {
	c, err := a.build(ctx, nil)
	if err != nil {
		return err
	}
	defer c.close()

	report, err := incident.BuildReport(ctx, c.incidents, opts.Window, opts.Filter)
	if err != nil {
		return err
	}

	s := report.Summary
	fmt.Fprintf(w, "Incidents (%s): %d total, %d resolved", report.Window, s.Total, s.Resolved)
	if s.Resolved > 0 {
		fmt.Fprintf(w, ", avg resolution %s", formatMinutes(s.AvgResolutionMinutes))
	}
	fmt.Fprintln(w)

	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Severity\tCount")
	for _, sev := range monitor.Severities() {
		fmt.Fprintf(writer, "%s\t%d\n", sev, s.BySeverity[sev])
	}
	fmt.Fprintln(writer, "\t")
	fmt.Fprintln(writer, "Type\tCount")
	for _, t := range monitor.IncidentTypes() {
		fmt.Fprintf(writer, "%s\t%d\n", t, s.ByType[t])
	}
	return writer.Flush()
}

// Thresholds prints the policy in force as JSON, along with where it came
// from.
func (a *App) Thresholds(ctx context.Context, w io.Writer) error {
	c, err := a.build(ctx, nil)
	if err != nil {
		return err
	}
	defer c.close()

	current := c.policy.Current(ctx)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(current)
}

func formatMinutes(m float64) string {
	return (time.Duration(m * float64(time.Minute))).Round(time.Second).String()
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
