// Package handler provides HTTP handlers for the LeaguePulse API.
package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/errgroup"

	"github.com/leaguepulse/leaguepulse/internal/api/models"
	"github.com/leaguepulse/leaguepulse/internal/api/response"
	"github.com/leaguepulse/leaguepulse/internal/monitor"
	"github.com/leaguepulse/leaguepulse/internal/provider/resilience"
	"github.com/leaguepulse/leaguepulse/internal/samplelog"
)

// ReadinessCheck is a named dependency probe, e.g. a database ping.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// OpsConfig holds dependencies for OpsHandler.
type OpsConfig struct {
	Version   string
	BuildTime string

	Checks []ReadinessCheck

	// CheckTimeout bounds each readiness check. Default: 2 seconds
	CheckTimeout time.Duration

	Registry    *resilience.Registry
	Diagnostics *samplelog.Diagnostics
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version      string
	buildTime    string
	startedAt    time.Time
	checks       []ReadinessCheck
	checkTimeout time.Duration
	registry     *resilience.Registry
	diagnostics  *samplelog.Diagnostics
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = 2 * time.Second
	}
	return &OpsHandler{
		version:      cfg.Version,
		buildTime:    cfg.BuildTime,
		startedAt:    time.Now(),
		checks:       cfg.Checks,
		checkTimeout: cfg.CheckTimeout,
		registry:     cfg.Registry,
		diagnostics:  cfg.Diagnostics,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.NewTimestamp(time.Now()),
		Details: map[string]interface{}{
			"version":   h.version,
			"buildTime": h.buildTime,
			"uptime":    time.Since(h.startedAt).Round(time.Second).String(),
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready - dependency checks. Any failing
// check answers 503.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	checks := h.runChecks(r.Context())

	ready := models.Readiness{
		Status: models.HealthStatusOK,
		Time:   models.NewTimestamp(time.Now()),
		Checks: checks,
	}
	status := http.StatusOK
	for _, c := range checks {
		if c.Status == models.HealthStatusFail {
			ready.Status = models.HealthStatusFail
			status = http.StatusServiceUnavailable
		}
	}
	response.JSON(w, r, status, ready)
}

// SystemStatus handles GET /v1/ops/status - per-source health and monitor
// subsystems.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	subsystems := h.runChecks(r.Context())
	subsystems = append(subsystems, h.sampleLogStatus())

	var sources []models.SourceStatus
	if h.registry != nil {
		for _, sh := range h.registry.GetAllHealth() {
			sources = append(sources, toSourceStatus(sh))
		}
	}
	if sources == nil {
		sources = []models.SourceStatus{}
	}

	status := models.SystemStatus{
		Status:     overallStatus(subsystems, sources),
		Time:       models.NewTimestamp(time.Now()),
		Subsystems: subsystems,
		Sources:    sources,
	}
	response.JSON(w, r, http.StatusOK, status)
}

// runChecks runs every readiness check concurrently. Results keep the
// configured order.
func (h *OpsHandler) runChecks(ctx context.Context) []models.SubsystemStatus {
	results := make([]models.SubsystemStatus, len(h.checks))

	var g errgroup.Group
	for i, c := range h.checks {
		g.Go(func() error {
			checkCtx, cancel := context.WithTimeout(ctx, h.checkTimeout)
			defer cancel()

			results[i] = models.SubsystemStatus{Name: c.Name, Status: models.HealthStatusOK}
			if err := c.Check(checkCtx); err != nil {
				detail := err.Error()
				results[i].Status = models.HealthStatusFail
				results[i].Detail = &detail
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (h *OpsHandler) sampleLogStatus() models.SubsystemStatus {
	s := models.SubsystemStatus{Name: "sample-log", Status: models.HealthStatusOK}
	if h.diagnostics == nil {
		return s
	}
	if n := h.diagnostics.Suppressed(); n > 0 {
		detail := fmt.Sprintf("%d sample appends suppressed", n)
		if last, ok := h.diagnostics.Last(); ok {
			detail += fmt.Sprintf("; last for %s at %s: %v", sourceName(last.Source), last.At.UTC().Format(time.RFC3339), last.Err)
		}
		s.Status = models.HealthStatusDegraded
		s.Detail = &detail
	}
	return s
}

func toSourceStatus(h *resilience.SourceHealth) models.SourceStatus {
	s := models.SourceStatus{
		Source:              sourceName(h.Source),
		Status:              healthStatus(h.Status()),
		LastOutcome:         string(h.LastOutcome),
		LastSuccessAt:       models.TimestampPtr(h.LastSuccessAt),
		LastFailureAt:       models.TimestampPtr(h.LastFailureAt),
		ConsecutiveFailures: h.ConsecutiveFailures,
	}
	if h.HasCircuit {
		circuit := circuitName(h.CircuitState)
		s.Circuit = &circuit
	}
	if h.LastLatency != nil {
		ms := float64(*h.LastLatency) / float64(time.Millisecond)
		s.LastLatencyMs = &ms
	}
	if h.LastError != "" {
		msg := h.LastError
		s.Message = &msg
	}
	return s
}

func circuitName(state gobreaker.State) string {
	switch state {
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

func healthStatus(s monitor.Status) models.HealthStatus {
	switch s {
	case monitor.StatusDown:
		return models.HealthStatusFail
	case monitor.StatusDegraded:
		return models.HealthStatusDegraded
	default:
		return models.HealthStatusOK
	}
}

// overallStatus fails when a subsystem fails. A failing source only degrades
// the monitor, which keeps reporting on it.
func overallStatus(subsystems []models.SubsystemStatus, sources []models.SourceStatus) models.HealthStatus {
	out := models.HealthStatusOK
	for _, s := range subsystems {
		switch s.Status {
		case models.HealthStatusFail:
			return models.HealthStatusFail
		case models.HealthStatusDegraded:
			out = models.HealthStatusDegraded
		}
	}
	for _, s := range sources {
		if s.Status != models.HealthStatusOK {
			out = models.HealthStatusDegraded
		}
	}
	return out
}

func sourceName(id monitor.SourceID) string {
	if id == monitor.SourceAll {
		return "all"
	}
	return string(id)
}
