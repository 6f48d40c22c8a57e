package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/leaguepulse/leaguepulse/internal/aggregate"
	"github.com/leaguepulse/leaguepulse/internal/api/middleware"
	"github.com/leaguepulse/leaguepulse/internal/api/models"
	"github.com/leaguepulse/leaguepulse/internal/api/response"
	"github.com/leaguepulse/leaguepulse/internal/monitor"
	"github.com/leaguepulse/leaguepulse/internal/probe"
)

// SourceProber runs on-demand probes.
type SourceProber interface {
	Probe(ctx context.Context, source monitor.SourceID, timeout time.Duration) (monitor.Sample, error)
}

// SourcesHandler serves per-source aggregates and on-demand probes.
type SourcesHandler struct {
	aggregates aggregate.Provider
	prober     SourceProber
	logger     zerolog.Logger
}

// NewSourcesHandler creates a new SourcesHandler. Either dependency may be
// nil; the matching routes are then not mounted.
func NewSourcesHandler(aggregates aggregate.Provider, prober SourceProber, logger zerolog.Logger) *SourcesHandler {
	return &SourcesHandler{
		aggregates: aggregates,
		prober:     prober,
		logger:     logger.With().Str("component", "sources_handler").Logger(),
	}
}

// Aggregate handles GET /v1/sources/{source}/aggregate?window=24h. The source
// "all" aggregates every source.
func (h *SourcesHandler) Aggregate(w http.ResponseWriter, r *http.Request) {
	source, err := monitor.ParseSourceID(chi.URLParam(r, "source"))
	if err != nil {
		response.NotFound(w, r, err.Error())
		return
	}

	window := monitor.Window24h
	if raw := r.URL.Query().Get("window"); raw != "" {
		window, err = monitor.ParseWindow(raw)
		if err != nil {
			response.BadRequest(w, r, "invalid query parameters", []models.FieldError{
				{Field: "window", Message: err.Error(), Code: "INVALID"},
			})
			return
		}
	}

	agg, err := h.aggregates.Aggregate(r.Context(), source, window)
	if err != nil {
		h.logger.Error().Err(err).Str("source", sourceName(source)).Str("window", string(window)).Msg("aggregate query failed")
		response.ServiceUnavailable(w, r, "sample log unavailable")
		return
	}
	response.JSON(w, r, http.StatusOK, agg.WithRates())
}

// Probe handles POST /v1/sources/{source}/probe - an operator-triggered probe.
// The sample is recorded like a scheduled one.
func (h *SourcesHandler) Probe(w http.ResponseWriter, r *http.Request) {
	source := monitor.SourceID(chi.URLParam(r, "source"))

	sample, err := h.prober.Probe(r.Context(), source, 0)
	if err != nil {
		if errors.Is(err, probe.ErrUnknownSource) {
			response.NotFound(w, r, err.Error())
			return
		}
		response.InternalError(w, r, "probe failed")
		return
	}

	h.logger.Info().
		Str("source", string(sample.Source)).
		Str("outcome", string(sample.Outcome)).
		Str("operator", middleware.GetOperator(r.Context())).
		Msg("on-demand probe")
	response.JSON(w, r, http.StatusOK, sample)
}
