package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/leaguepulse/leaguepulse/internal/api/middleware"
	"github.com/leaguepulse/leaguepulse/internal/api/models"
	"github.com/leaguepulse/leaguepulse/internal/api/response"
	"github.com/leaguepulse/leaguepulse/internal/classify"
	"github.com/leaguepulse/leaguepulse/internal/policy"
)

// PolicyService is the part of policy.Service served over HTTP.
type PolicyService interface {
	Current(ctx context.Context) policy.Current
	Set(ctx context.Context, p classify.Policy, updatedBy string) (policy.Current, error)
	Reset(ctx context.Context) error
}

// ThresholdsHandler serves and updates the threshold policy.
type ThresholdsHandler struct {
	service PolicyService
	logger  zerolog.Logger
}

// NewThresholdsHandler creates a new ThresholdsHandler.
func NewThresholdsHandler(service PolicyService, logger zerolog.Logger) *ThresholdsHandler {
	return &ThresholdsHandler{
		service: service,
		logger:  logger.With().Str("component", "thresholds_handler").Logger(),
	}
}

// Get handles GET /v1/monitor/thresholds - the policy in force.
func (h *ThresholdsHandler) Get(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, toThresholds(h.service.Current(r.Context())))
}

// Defaults handles GET /v1/monitor/thresholds/defaults.
func (h *ThresholdsHandler) Defaults(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.Thresholds{
		Policy: classify.Thresholds(),
		Origin: string(policy.OriginDefault),
	})
}

// Put handles PUT /v1/monitor/thresholds - store an override. The body is a
// complete policy; omitted fields are not merged with the current one.
func (h *ThresholdsHandler) Put(w http.ResponseWriter, r *http.Request) {
	var p classify.Policy
	if err := response.Decode(r, &p); err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}

	operator := middleware.GetOperator(r.Context())
	current, err := h.service.Set(r.Context(), p, operator)
	if err != nil {
		if errors.Is(err, classify.ErrInvalidPolicy) {
			response.BadRequest(w, r, err.Error(), nil)
			return
		}
		h.logger.Error().Err(err).Str("operator", operator).Msg("failed to save threshold override")
		response.InternalError(w, r, "failed to save thresholds")
		return
	}
	response.JSON(w, r, http.StatusOK, toThresholds(current))
}

// Delete handles DELETE /v1/monitor/thresholds - revert to defaults.
func (h *ThresholdsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Reset(r.Context()); err != nil {
		h.logger.Error().Err(err).Str("operator", middleware.GetOperator(r.Context())).Msg("failed to reset thresholds")
		response.InternalError(w, r, "failed to reset thresholds")
		return
	}
	response.NoContent(w, r)
}

func toThresholds(c policy.Current) models.Thresholds {
	return models.Thresholds{
		Policy:    c.Policy,
		Origin:    string(c.Origin),
		UpdatedBy: c.UpdatedBy,
		UpdatedAt: models.TimestampPtr(c.UpdatedAt),
	}
}
