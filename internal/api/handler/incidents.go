package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/leaguepulse/leaguepulse/internal/api/models"
	"github.com/leaguepulse/leaguepulse/internal/api/response"
	"github.com/leaguepulse/leaguepulse/internal/incident"
	"github.com/leaguepulse/leaguepulse/internal/monitor"
)

// IncidentsHandler serves incident summaries.
type IncidentsHandler struct {
	repo   incident.Repository
	logger zerolog.Logger
}

// NewIncidentsHandler creates a new IncidentsHandler.
func NewIncidentsHandler(repo incident.Repository, logger zerolog.Logger) *IncidentsHandler {
	return &IncidentsHandler{
		repo:   repo,
		logger: logger.With().Str("component", "incidents_handler").Logger(),
	}
}

// Summary handles GET /v1/incidents/summary.
//
// Query parameters: window (1h, 24h, 7d, 30d; default 7d), type and severity
// (comma-separated), resolved (true or false).
func (h *IncidentsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	window, filter, fieldErrs := parseIncidentQuery(r)
	if len(fieldErrs) > 0 {
		response.BadRequest(w, r, "invalid query parameters", fieldErrs)
		return
	}

	report, err := incident.BuildReport(r.Context(), h.repo, window, filter)
	if err != nil {
		h.logger.Error().Err(err).Str("window", string(window)).Msg("failed to build incident report")
		response.InternalError(w, r, "failed to build incident summary")
		return
	}
	response.JSON(w, r, http.StatusOK, report)
}

func parseIncidentQuery(r *http.Request) (monitor.Window, incident.Filter, []models.FieldError) {
	q := r.URL.Query()
	var errs []models.FieldError

	window := monitor.Window7d
	if raw := q.Get("window"); raw != "" {
		w, err := monitor.ParseWindow(raw)
		if err != nil {
			errs = append(errs, models.FieldError{Field: "window", Message: err.Error(), Code: "INVALID"})
		} else {
			window = w
		}
	}

	var filter incident.Filter
	for _, raw := range splitList(q.Get("type")) {
		t := monitor.IncidentType(raw)
		if !isOneOf(t, monitor.IncidentTypes()) {
			errs = append(errs, models.FieldError{Field: "type", Message: "unknown incident type " + strconv.Quote(raw), Code: "INVALID"})
			continue
		}
		filter.Types = append(filter.Types, t)
	}
	for _, raw := range splitList(q.Get("severity")) {
		s := monitor.Severity(raw)
		if !isOneOf(s, monitor.Severities()) {
			errs = append(errs, models.FieldError{Field: "severity", Message: "unknown severity " + strconv.Quote(raw), Code: "INVALID"})
			continue
		}
		filter.Severities = append(filter.Severities, s)
	}
	if raw := q.Get("resolved"); raw != "" {
		resolved, err := strconv.ParseBool(raw)
		if err != nil {
			errs = append(errs, models.FieldError{Field: "resolved", Message: "must be true or false", Code: "INVALID"})
		} else {
			filter.Resolved = &resolved
		}
	}
	return window, filter, errs
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func isOneOf[T comparable](v T, allowed []T) bool {
	for _, a := range allowed {
		if a == v {
			return true
		}
	}
	return false
}
