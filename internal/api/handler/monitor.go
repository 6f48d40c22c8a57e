package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/leaguepulse/leaguepulse/internal/api/models"
	"github.com/leaguepulse/leaguepulse/internal/api/response"
	"github.com/leaguepulse/leaguepulse/internal/dashboard"
	"github.com/leaguepulse/leaguepulse/internal/poller"
)

// MetricMonitor is the part of dashboard.Monitor served over HTTP.
type MetricMonitor interface {
	Snapshots() []dashboard.View
	Snapshot(metric dashboard.Metric) (dashboard.View, error)
	Refetch(ctx context.Context, metric dashboard.Metric) (dashboard.View, error)
}

// MonitorHandler serves dashboard metric snapshots.
type MonitorHandler struct {
	monitor MetricMonitor
	logger  zerolog.Logger
}

// NewMonitorHandler creates a new MonitorHandler.
func NewMonitorHandler(m MetricMonitor, logger zerolog.Logger) *MonitorHandler {
	return &MonitorHandler{
		monitor: m,
		logger:  logger.With().Str("component", "monitor_handler").Logger(),
	}
}

// List handles GET /v1/monitor - every metric's current view.
func (h *MonitorHandler) List(w http.ResponseWriter, r *http.Request) {
	views := h.monitor.Snapshots()

	alerts := 0
	for _, v := range views {
		if v.HasAlert {
			alerts++
		}
	}
	response.JSON(w, r, http.StatusOK, models.MonitorOverview{
		Time:    models.NewTimestamp(time.Now()),
		Alerts:  alerts,
		Metrics: views,
	})
}

// Get handles GET /v1/monitor/{metric}.
func (h *MonitorHandler) Get(w http.ResponseWriter, r *http.Request) {
	view, err := h.monitor.Snapshot(dashboard.Metric(chi.URLParam(r, "metric")))
	if err != nil {
		writeMetricError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, view)
}

// Refetch handles POST /v1/monitor/{metric}/refetch. A failed fetch still
// answers 200: the view carries the error next to the stale payload.
func (h *MonitorHandler) Refetch(w http.ResponseWriter, r *http.Request) {
	metric := dashboard.Metric(chi.URLParam(r, "metric"))

	view, err := h.monitor.Refetch(r.Context(), metric)
	switch {
	case err == nil:
	case errors.Is(err, dashboard.ErrUnknownMetric), errors.Is(err, dashboard.ErrNotConfigured):
		writeMetricError(w, r, err)
		return
	case errors.Is(err, poller.ErrDiscarded):
		response.ServiceUnavailable(w, r, "monitor is shutting down")
		return
	case r.Context().Err() != nil:
		response.ServiceUnavailable(w, r, "refetch did not complete")
		return
	default:
		h.logger.Warn().Err(err).Str("metric", string(metric)).Msg("manual refetch failed")
	}
	response.JSON(w, r, http.StatusOK, view)
}

func writeMetricError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, dashboard.ErrUnknownMetric) || errors.Is(err, dashboard.ErrNotConfigured) {
		response.NotFound(w, r, err.Error())
		return
	}
	response.InternalError(w, r, "failed to read metric")
}
