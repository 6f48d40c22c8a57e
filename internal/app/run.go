package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/leaguepulse/leaguepulse/internal/api"
	"github.com/leaguepulse/leaguepulse/internal/api/handler"
	"github.com/leaguepulse/leaguepulse/internal/api/middleware"
	"github.com/leaguepulse/leaguepulse/internal/telemetry"
	"github.com/leaguepulse/leaguepulse/internal/version"
	"github.com/leaguepulse/leaguepulse/internal/worker"
)

const serviceName = "leaguepulse"

// telemetryShutdownTimeout bounds flushing spans and metrics on exit.
const telemetryShutdownTimeout = 5 * time.Second

// Run serves the API, polls every dashboard metric and, when configured,
// consumes Pub/Sub jobs until ctx is cancelled or a signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a.Logger.Info().
		Str("version", version.Version).
		Str("build_time", version.BuildTime).
		Msg("starting LeaguePulse")

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: version.Version,
		Environment:    a.Config.App.Environment,
		OTLPEndpoint:   a.Config.Telemetry.OTLPEndpoint,
		Enabled:        a.Config.Telemetry.Enabled,
		ExportInterval: a.Config.Telemetry.ExportInterval,
		Sources:        a.configuredSources(),
	})
	if err != nil {
		return fmt.Errorf("initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			a.Logger.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()
	if a.Config.Telemetry.Enabled {
		a.Logger.Info().
			Str("otlp_endpoint", a.Config.Telemetry.OTLPEndpoint).
			Msg("OpenTelemetry initialized")
	}

	instruments := tp.Instruments
	httpMetrics, err := middleware.NewMetrics(tp.Meter)
	if err != nil {
		return fmt.Errorf("initialize http metrics: %w", err)
	}

	c, err := a.build(ctx, instruments)
	if err != nil {
		return err
	}
	defer c.close()

	mon := a.newMonitor(c, instruments)

	server := &http.Server{
		Addr:         a.Config.HTTP.Addr(),
		Handler:      a.newRouter(c, mon, httpMetrics),
		ReadTimeout:  a.Config.HTTP.ReadTimeout,
		WriteTimeout: a.Config.HTTP.WriteTimeout,
		IdleTimeout:  a.Config.HTTP.IdleTimeout,
	}

	var jobs *worker.PubSubHandler
	if a.Config.PubSub.Enabled {
		jobs, err = worker.NewPubSubHandler(ctx, worker.PubSubConfig{
			ProjectID:        a.Config.PubSub.ProjectID,
			SubscriptionName: a.Config.PubSub.Subscription,
			Jobs: worker.NewJobHandler(worker.JobHandlerConfig{
				Sweeper: c.prober,
				RefreshJob: worker.NewRefreshJob(worker.RefreshJobConfig{
					Config:    worker.RefreshConfig{Timeout: a.Config.Monitor.FetchTimeout},
					Refresher: mon,
					Logger:    a.Logger,
				}),
				Observer: c.prober,
				Logger:   a.Logger,
			}),
			Logger: a.Logger,
		})
		if err != nil {
			return err
		}
		defer func() {
			if cerr := jobs.Close(); cerr != nil {
				a.Logger.Warn().Err(cerr).Msg("failed to close pubsub client")
			}
		}()
	}

	mon.Start(ctx)
	defer mon.Stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.Info().Str("addr", server.Addr).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.Logger.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.HTTP.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if jobs != nil {
		g.Go(func() error {
			if err := jobs.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("pubsub worker: %w", err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("server stopped")
	return nil
}

func (a *App) newRouter(c *components, mon handler.MetricMonitor, metrics *middleware.Metrics) http.Handler {
	var checks []handler.ReadinessCheck
	if c.pool != nil {
		checks = append(checks, handler.ReadinessCheck{Name: "database", Check: c.pool.Ping})
	}
	if c.redis != nil {
		client := c.redis
		checks = append(checks, handler.ReadinessCheck{Name: "cache", Check: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}})
	}

	tokens := a.Config.HTTP.OperatorTokens()
	if len(tokens) == 0 {
		a.Logger.Warn().Msg("http.admin_tokens not configured; admin endpoints will reject every request")
	}

	return api.NewRouter(api.RouterConfig{
		Version:        version.Version,
		BuildTime:      version.BuildTime,
		Logger:         a.Logger,
		ServiceName:    serviceName + "-api",
		Metrics:        metrics,
		RequireTLS:     a.Config.HTTP.RequireTLS,
		OperatorTokens: tokens,
		ReadRateLimit: middleware.RateLimitConfig{
			RequestLimit: a.Config.HTTP.RateLimit,
			WindowLength: a.Config.HTTP.RateWindow,
		},
		ReadinessChecks: checks,
		Registry:        c.registry,
		Diagnostics:     c.diagnostics,
		Monitor:         mon,
		Policy:          c.policy,
		Incidents:       c.incidents,
		Aggregates:      c.store,
		Prober:          c.prober,
	})
}
