// Package app wires configuration into the monitor's components for the CLI
// commands.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/leaguepulse/leaguepulse/internal/alerting"
	"github.com/leaguepulse/leaguepulse/internal/config"
	"github.com/leaguepulse/leaguepulse/internal/dashboard"
	"github.com/leaguepulse/leaguepulse/internal/database"
	"github.com/leaguepulse/leaguepulse/internal/incident"
	"github.com/leaguepulse/leaguepulse/internal/monitor"
	"github.com/leaguepulse/leaguepulse/internal/policy"
	"github.com/leaguepulse/leaguepulse/internal/probe"
	"github.com/leaguepulse/leaguepulse/internal/provider/resilience"
	"github.com/leaguepulse/leaguepulse/internal/samplelog"
	"github.com/leaguepulse/leaguepulse/internal/telemetry"
)

// diagnosticsBuffer is how many suppressed sample log failures are kept for
// inspection.
const diagnosticsBuffer = 64

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

// components are the long-lived dependencies shared by every command.
type components struct {
	pool        *pgxpool.Pool
	redis       redis.UniversalClient
	store       samplelog.Store
	diagnostics *samplelog.Diagnostics
	registry    *resilience.Registry
	prober      *probe.Prober
	policy      *policy.Service
	incidents   incident.Repository
	notifier    alerting.Notifier

	closers []func()
}

// close releases resources in reverse order of acquisition.
func (c *components) close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

// build connects to the configured backends and assembles the probe and
// policy layers. instruments may be nil.
func (a *App) build(ctx context.Context, instruments *telemetry.Instruments) (_ *components, err error) {
	c := &components{registry: resilience.NewRegistry()}
	defer func() {
		if err != nil {
			c.close()
		}
	}()

	if a.Config.Database.Enabled {
		c.pool, err = database.Connect(ctx, a.Config.Database)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		c.closers = append(c.closers, c.pool.Close)
		if a.Config.Database.AutoMigrate {
			if err = database.EnsureSchema(ctx, c.pool); err != nil {
				return nil, err
			}
		}
		a.Logger.Info().
			Str("host", a.Config.Database.Host).
			Int("port", a.Config.Database.Port).
			Str("database", a.Config.Database.Database).
			Msg("database connected")
	}

	if a.Config.Redis.Enabled {
		c.redis = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    a.Config.Redis.Addrs,
			Password: a.Config.Redis.Password,
			DB:       a.Config.Redis.DB,
		})
		client := c.redis
		c.closers = append(c.closers, func() {
			if cerr := client.Close(); cerr != nil {
				a.Logger.Warn().Err(cerr).Msg("failed to close redis client")
			}
		})
	}

	c.store, err = a.openSampleLog(c.pool)
	if err != nil {
		return nil, err
	}
	store := c.store
	c.closers = append(c.closers, func() {
		if cerr := store.Close(); cerr != nil {
			a.Logger.Warn().Err(cerr).Msg("failed to close sample log")
		}
	})

	c.diagnostics = samplelog.NewDiagnostics(diagnosticsBuffer)
	sampleLog := samplelog.NewBestEffort(samplelog.BestEffortConfig{
		Logger:       c.store,
		Diagnostics:  c.diagnostics,
		Log:          a.Logger,
		Timeout:      a.Config.SampleLog.AppendTimeout,
		OnSuppressed: instruments.RecordSuppressed,
	})

	c.prober = probe.NewProber(probe.ProberConfig{
		Adapters:    a.adapters(c),
		Timeout:     a.Config.Probe.Timeout,
		Logger:      a.Logger,
		SampleLog:   sampleLog,
		Registry:    c.registry,
		Instruments: instruments,
	})

	var policyRepo policy.Repository = policy.NewInMemoryRepository()
	if c.pool != nil {
		policyRepo = policy.NewPostgresRepository(c.pool)
	}
	fallback := a.Config.Policy.Thresholds
	c.policy = policy.NewService(policy.ServiceConfig{
		Repository: policyRepo,
		Logger:     a.Logger,
		CacheTTL:   a.Config.Policy.CacheTTL,
		Fallback:   &fallback,
	})

	if c.pool != nil {
		c.incidents = incident.NewPostgresRepository(c.pool)
	} else {
		c.incidents = incident.NewInMemoryRepository()
		a.Logger.Warn().Msg("database not enabled; incident summary will be empty")
	}

	c.notifier = a.newNotifier()
	return c, nil
}

func (a *App) openSampleLog(pool *pgxpool.Pool) (samplelog.Store, error) {
	switch a.Config.SampleLog.Driver {
	case config.DriverPostgres:
		if pool == nil {
			return nil, errors.New("samplelog driver postgres requires a database")
		}
		return samplelog.NewPostgresStore(pool), nil
	case config.DriverBadger:
		store, err := samplelog.OpenBadgerStore(samplelog.BadgerConfig{Path: a.Config.SampleLog.BadgerPath})
		if err != nil {
			return nil, fmt.Errorf("open badger sample log: %w", err)
		}
		return store, nil
	default:
		a.Logger.Warn().Msg("using in-memory sample log; samples are lost on restart")
		return samplelog.NewMemoryStore(), nil
	}
}

// adapters builds one adapter per enabled integration and per connected
// backend. HTTP integrations get their own circuit breaker, registered under
// the source ID.
func (a *App) adapters(c *components) []probe.Adapter {
	pc := a.Config.Probe
	newClient := func(source monitor.SourceID) *resilience.Client {
		cfg := resilience.ProbeClientConfig(string(source), pc.Timeout)
		cfg.Registry = c.registry
		cfg.Logger = a.Logger
		return resilience.NewClient(cfg)
	}

	var out []probe.Adapter
	if pc.Sleeper.Enabled {
		out = append(out, probe.NewSleeperAdapter(newClient(monitor.SourceSleeper), pc.Sleeper.URL))
	}
	if pc.ESPN.Enabled {
		out = append(out, probe.NewESPNAdapter(newClient(monitor.SourceESPN), pc.ESPN.URL, pc.ESPN.ESPNS2, pc.ESPN.SWID))
	}
	if pc.Yahoo.Enabled {
		out = append(out, probe.NewYahooAdapter(newClient(monitor.SourceYahoo), pc.Yahoo.URL, pc.Yahoo.AccessToken))
	}
	if c.pool != nil {
		out = append(out, probe.NewPostgresAdapter(c.pool))
	}
	if c.redis != nil {
		out = append(out, probe.NewRedisAdapter(c.redis))
	}
	return out
}

// configuredSources lists the sources an adapter will be built for, in the
// same order as adapters.
func (a *App) configuredSources() []monitor.SourceID {
	pc := a.Config.Probe
	var out []monitor.SourceID
	if pc.Sleeper.Enabled {
		out = append(out, monitor.SourceSleeper)
	}
	if pc.ESPN.Enabled {
		out = append(out, monitor.SourceESPN)
	}
	if pc.Yahoo.Enabled {
		out = append(out, monitor.SourceYahoo)
	}
	if a.Config.Database.Enabled {
		out = append(out, monitor.SourceDatabase)
	}
	if a.Config.Redis.Enabled {
		out = append(out, monitor.SourceCache)
	}
	return out
}

func (a *App) newNotifier() alerting.Notifier {
	cfg := a.Config.Alerting
	if !cfg.Enabled {
		return alerting.NewLogNotifier(a.Logger)
	}
	return alerting.NewWebhookNotifier(alerting.WebhookConfig{
		URL:        cfg.WebhookURL,
		Cooldown:   cfg.Cooldown,
		Timeout:    cfg.Timeout,
		MaxRetries: cfg.MaxRetries,
		Logger:     a.Logger,
	})
}

// newMonitor builds the dashboard over c.
func (a *App) newMonitor(c *components, instruments *telemetry.Instruments) *dashboard.Monitor {
	return dashboard.NewMonitor(dashboard.Config{
		Prober:       c.prober,
		Aggregates:   c.store,
		Incidents:    c.incidents,
		Policy:       c.policy,
		Intervals:    a.Config.Monitor.Intervals,
		FetchTimeout: a.Config.Monitor.FetchTimeout,
		Notifier:     c.notifier,
		Instruments:  instruments,
		Logger:       a.Logger,
	})
}
