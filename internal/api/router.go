// Package api provides the HTTP API for LeaguePulse.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/leaguepulse/leaguepulse/internal/aggregate"
	"github.com/leaguepulse/leaguepulse/internal/api/handler"
	"github.com/leaguepulse/leaguepulse/internal/api/middleware"
	"github.com/leaguepulse/leaguepulse/internal/api/models"
	"github.com/leaguepulse/leaguepulse/internal/api/response"
	"github.com/leaguepulse/leaguepulse/internal/incident"
	"github.com/leaguepulse/leaguepulse/internal/provider/resilience"
	"github.com/leaguepulse/leaguepulse/internal/samplelog"
)

// RouterConfig holds configuration for the router. Routes whose dependency
// is nil are not mounted.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics
	RequireTLS  bool

	// OperatorTokens maps admin bearer tokens to operator names.
	OperatorTokens map[string]string

	// ReadRateLimit applies per IP to read endpoints.
	// Default: middleware.StandardRateLimit
	ReadRateLimit middleware.RateLimitConfig

	ReadinessChecks []handler.ReadinessCheck
	Registry        *resilience.Registry
	Diagnostics     *samplelog.Diagnostics

	Monitor    handler.MetricMonitor
	Policy     handler.PolicyService
	Incidents  incident.Repository
	Aggregates aggregate.Provider
	Prober     handler.SourceProber
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "leaguepulse-api"
	}
	readLimit := cfg.ReadRateLimit
	if readLimit.RequestLimit <= 0 || readLimit.WindowLength <= 0 {
		readLimit = middleware.StandardRateLimit
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(chimiddleware.RealIP)            // Real IP for logs and rate limits
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))         // Structured logging
	r.Use(middleware.Recovery(cfg.Logger))       // Panic recovery
	r.Use(middleware.SecurityHeaders)            // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS(cfg.RequireTLS)) // TLS enforcement behind a load balancer
	r.Use(middleware.ContentTypeJSON)            // JSON content type

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.NotFound(w, r, "no route for "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, r, models.NewProblem(
			models.ProblemTypeMethodNotAllowed,
			"Method not allowed",
			http.StatusMethodNotAllowed,
			middleware.GetRequestID(r.Context()),
		).WithDetail(r.Method+" is not supported on "+r.URL.Path))
	})

	opsHandler := handler.NewOpsHandler(handler.OpsConfig{
		Version:     cfg.Version,
		BuildTime:   cfg.BuildTime,
		Checks:      cfg.ReadinessChecks,
		Registry:    cfg.Registry,
		Diagnostics: cfg.Diagnostics,
	})

	readRateLimit := middleware.RateLimitByIP(readLimit)
	refetchRateLimit := middleware.RateLimitByIP(middleware.RefetchRateLimit)
	operatorOnly := middleware.RequireOperator(cfg.OperatorTokens)
	adminRateLimit := middleware.RateLimitByOperator(middleware.AdminRateLimit)

	r.Route("/v1", func(r chi.Router) {
		// Ops endpoints (public); health and ready are polled by the platform
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.With(readRateLimit).Get("/status", opsHandler.SystemStatus)
		})

		r.Route("/monitor", func(r chi.Router) {
			if cfg.Policy != nil {
				thresholds := handler.NewThresholdsHandler(cfg.Policy, cfg.Logger)
				r.Route("/thresholds", func(r chi.Router) {
					r.With(readRateLimit).Get("/", thresholds.Get)
					r.With(readRateLimit).Get("/defaults", thresholds.Defaults)

					r.Group(func(r chi.Router) {
						r.Use(operatorOnly)
						r.Use(adminRateLimit)
						r.With(middleware.RequireJSON).Put("/", thresholds.Put)
						r.Delete("/", thresholds.Delete)
					})
				})
			}

			if cfg.Monitor != nil {
				monitorHandler := handler.NewMonitorHandler(cfg.Monitor, cfg.Logger)
				r.With(readRateLimit).Get("/", monitorHandler.List)
				r.With(readRateLimit).Get("/{metric}", monitorHandler.Get)
				r.With(refetchRateLimit).Post("/{metric}/refetch", monitorHandler.Refetch)
			}
		})

		if cfg.Incidents != nil {
			incidents := handler.NewIncidentsHandler(cfg.Incidents, cfg.Logger)
			r.With(readRateLimit).Get("/incidents/summary", incidents.Summary)
		}

		if cfg.Aggregates != nil || cfg.Prober != nil {
			sources := handler.NewSourcesHandler(cfg.Aggregates, cfg.Prober, cfg.Logger)
			r.Route("/sources/{source}", func(r chi.Router) {
				if cfg.Aggregates != nil {
					r.With(readRateLimit).Get("/aggregate", sources.Aggregate)
				}
				if cfg.Prober != nil {
					r.With(operatorOnly, adminRateLimit).Post("/probe", sources.Probe)
				}
			})
		}
	})

	return r
}
