package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/leaguepulse/leaguepulse/internal/aggregate"
	"github.com/leaguepulse/leaguepulse/internal/alerting"
	"github.com/leaguepulse/leaguepulse/internal/classify"
	"github.com/leaguepulse/leaguepulse/internal/incident"
	"github.com/leaguepulse/leaguepulse/internal/monitor"
	"github.com/leaguepulse/leaguepulse/internal/poller"
	"github.com/leaguepulse/leaguepulse/internal/telemetry"
)

// notifyTimeout bounds one alert delivery.
const notifyTimeout = 30 * time.Second

// Config holds configuration for a Monitor. Metrics whose data source is nil
// are not registered.
type Config struct {
	Prober     Sweeper
	Aggregates aggregate.Provider
	Incidents  incident.Repository

	// Policy supplies thresholds. Default: StaticPolicy(classify.DefaultPolicy())
	Policy PolicySource

	Intervals Intervals

	// FetchTimeout bounds one fetch. Zero means no extra bound.
	FetchTimeout time.Duration

	// Sources are broken out in the error rate and latency metrics.
	// Default: monitor.AllSources()
	Sources []monitor.SourceID

	// Integrations are broken out in the connection success metric.
	// Default: monitor.Integrations()
	Integrations []monitor.SourceID

	Notifier    alerting.Notifier
	Instruments *telemetry.Instruments
	Logger      zerolog.Logger
}

// View is a type-erased snapshot of one metric.
type View struct {
	Metric        Metric        `json:"metric"`
	Payload       any           `json:"payload,omitempty"`
	Error         string        `json:"error,omitempty"`
	IsLoading     bool          `json:"isLoading"`
	Phase         poller.Phase  `json:"phase"`
	LastFetchedAt *time.Time    `json:"lastFetchedAt,omitempty"`
	LastSuccessAt *time.Time    `json:"lastSuccessAt,omitempty"`
	HasAlert      bool          `json:"hasAlert"`
	Interval      time.Duration `json:"-"`
}

// Monitor owns one poller per dashboard metric.
type Monitor struct {
	metrics     map[Metric]metricPoller
	order       []Metric
	notifier    alerting.Notifier
	instruments *telemetry.Instruments
	logger      zerolog.Logger

	// mu guards stopped, which gates new deliveries once Stop is waiting.
	mu       sync.Mutex
	stopped  bool
	notifyWG sync.WaitGroup
}

type metricPoller interface {
	start(ctx context.Context)
	stop()
	refetch(ctx context.Context) (View, error)
	view() View
}

// NewMonitor creates a monitor with a poller for every configured metric.
func NewMonitor(cfg Config) *Monitor {
	if cfg.Policy == nil {
		cfg.Policy = StaticPolicy(classify.DefaultPolicy())
	}
	if len(cfg.Sources) == 0 {
		cfg.Sources = monitor.AllSources()
	}
	if len(cfg.Integrations) == 0 {
		cfg.Integrations = monitor.Integrations()
	}

	m := &Monitor{
		metrics:     make(map[Metric]metricPoller),
		notifier:    cfg.Notifier,
		instruments: cfg.Instruments,
		logger:      cfg.Logger.With().Str("component", "dashboard").Logger(),
	}

	if cfg.Prober != nil {
		register[HealthPayload](m, cfg, MetricHealth, HealthFetcher(cfg.Prober), nil)
	}
	if cfg.Aggregates != nil {
		register[ErrorRatePayload](m, cfg, MetricErrorRate,
			ErrorRateFetcher(cfg.Aggregates, cfg.Policy, cfg.Sources), errorRateAlert)
		register[ConnectionPayload](m, cfg, MetricConnectionSuccess,
			ConnectionFetcher(cfg.Aggregates, cfg.Policy, cfg.Integrations), nil)
		register[CompletionPayload](m, cfg, MetricCompletionRate,
			CompletionFetcher(cfg.Aggregates, cfg.Policy), nil)
	}
	if cfg.Incidents != nil {
		register[incident.Report](m, cfg, MetricIncidents, IncidentsFetcher(cfg.Incidents), nil)
	}
	if cfg.Aggregates != nil {
		register[LatencyPayload](m, cfg, MetricLatency,
			LatencyFetcher(cfg.Aggregates, cfg.Policy, cfg.Sources), latencyAlert)
	}
	return m
}

// Metrics returns the registered metrics in display order.
func (m *Monitor) Metrics() []Metric {
	out := make([]Metric, len(m.order))
	copy(out, m.order)
	return out
}

// Start begins polling every metric.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	m.stopped = false
	m.mu.Unlock()

	for _, name := range m.order {
		m.metrics[name].start(ctx)
	}
	m.logger.Info().Int("metrics", len(m.order)).Msg("dashboard monitor started")
}

// Stop halts every poller and waits for pending alert deliveries. Alerts
// raised after Stop begins waiting are logged but not delivered.
func (m *Monitor) Stop() {
	for _, name := range m.order {
		m.metrics[name].stop()
	}
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()
	m.notifyWG.Wait()
	m.logger.Info().Msg("dashboard monitor stopped")
}

// Refetch refreshes one metric now and returns its new view. A failed fetch
// returns the view with the stale payload alongside the error.
func (m *Monitor) Refetch(ctx context.Context, metric Metric) (View, error) {
	p, err := m.lookup(metric)
	if err != nil {
		return View{}, err
	}
	return p.refetch(ctx)
}

// Snapshot returns the current view of one metric.
func (m *Monitor) Snapshot(metric Metric) (View, error) {
	p, err := m.lookup(metric)
	if err != nil {
		return View{}, err
	}
	return p.view(), nil
}

// Snapshots returns the current view of every registered metric.
func (m *Monitor) Snapshots() []View {
	out := make([]View, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.metrics[name].view())
	}
	return out
}

func (m *Monitor) lookup(metric Metric) (metricPoller, error) {
	if _, err := ParseMetric(string(metric)); err != nil {
		return nil, err
	}
	p, ok := m.metrics[metric]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotConfigured, metric)
	}
	return p, nil
}

// raise delivers an alert in the background.
func (m *Monitor) raise(alert alerting.Alert) {
	m.instruments.RecordAlert(context.Background(), alert.Metric)
	m.logger.Warn().Str("metric", alert.Metric).Msg(alert.Title)

	if m.notifier == nil {
		return
	}
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		m.logger.Debug().Str("metric", alert.Metric).Msg("monitor stopped, alert not delivered")
		return
	}
	m.notifyWG.Add(1)
	m.mu.Unlock()
	go func() {
		defer m.notifyWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := m.notifier.Notify(ctx, alert); err != nil && !errors.Is(err, alerting.ErrCooldown) {
			m.logger.Error().Err(err).Str("metric", alert.Metric).Msg("failed to deliver alert")
		}
	}()
}

// alertFunc reports whether a payload is alerting and describes the alert.
type alertFunc[T any] func(T) (bool, alerting.Alert)

// entry adapts a typed poller to the metric registry and tracks alert edges.
type entry[T any] struct {
	metric Metric
	p      *poller.Poller[T]
	alert  alertFunc[T]

	mu     sync.Mutex
	active bool
}

func register[T any](m *Monitor, cfg Config, metric Metric, fetch poller.FetchFunc[T], alert alertFunc[T]) {
	e := &entry[T]{metric: metric, alert: alert}
	e.p = poller.New(poller.Config[T]{
		Name:     string(metric),
		Interval: cfg.Intervals.For(metric),
		Timeout:  cfg.FetchTimeout,
		Fetch:    fetch,
		Logger:   m.logger,
		OnChange: func(s poller.State[T]) { e.observe(m, s) },
		OnFetch:  m.instruments.RecordPoll,
	})
	m.metrics[metric] = e
	m.order = append(m.order, metric)
}

// observe raises an alert on every false to true transition of a fresh
// payload. Errors keep the previous alert state.
func (e *entry[T]) observe(m *Monitor, s poller.State[T]) {
	if e.alert == nil || s.Phase != poller.PhaseReady || s.Loading {
		return
	}
	active, alert := e.alert(s.Payload)

	e.mu.Lock()
	rising := active && !e.active
	e.active = active
	e.mu.Unlock()

	if rising {
		alert.Metric = string(e.metric)
		alert.RaisedAt = s.LastSuccessAt.UTC()
		m.raise(alert)
	}
}

func (e *entry[T]) start(ctx context.Context) { e.p.Start(ctx) }

func (e *entry[T]) stop() { e.p.Stop() }

func (e *entry[T]) refetch(ctx context.Context) (View, error) {
	s, err := e.p.Refetch(ctx)
	return e.toView(s), err
}

func (e *entry[T]) view() View {
	return e.toView(e.p.Snapshot())
}

func (e *entry[T]) toView(s poller.State[T]) View {
	v := View{
		Metric:    e.metric,
		IsLoading: s.Loading,
		Phase:     s.Phase,
		Interval:  e.p.Interval(),
	}
	if s.HasPayload {
		v.Payload = s.Payload
		if e.alert != nil {
			v.HasAlert, _ = e.alert(s.Payload)
		}
	}
	if s.Err != nil {
		v.Error = s.Err.Error()
	}
	if !s.LastFetchedAt.IsZero() {
		t := s.LastFetchedAt.UTC()
		v.LastFetchedAt = &t
	}
	if !s.LastSuccessAt.IsZero() {
		t := s.LastSuccessAt.UTC()
		v.LastSuccessAt = &t
	}
	return v
}

func errorRateAlert(p ErrorRatePayload) (bool, alerting.Alert) {
	if !p.IsAboveThreshold {
		return false, alerting.Alert{}
	}
	details := map[string]string{
		"errorRate": fmt.Sprintf("%.2f", p.Overall.Signal.Aggregate.ErrorRate),
		"threshold": fmt.Sprintf("%.2f", p.ThresholdPct),
		"trend":     string(p.Overall.Signal.Trend),
	}
	for _, e := range p.Sources {
		if e.Signal.Alert {
			details[string(e.Source)] = fmt.Sprintf("%.2f", e.Signal.Aggregate.ErrorRate)
		}
	}
	return true, alerting.Alert{
		Title: "error rate above threshold",
		Message: fmt.Sprintf("%s error rate %.2f%% is at or above %.2f%% (trend %s)",
			ErrorRateWindow, p.Overall.Signal.Aggregate.ErrorRate, p.ThresholdPct, p.Overall.Signal.Trend),
		Details: details,
	}
}

func latencyAlert(p LatencyPayload) (bool, alerting.Alert) {
	if !p.IsP99Alert || p.Overall.Signal.Aggregate.Percentiles == nil {
		return false, alerting.Alert{}
	}
	p99 := p.Overall.Signal.Aggregate.Percentiles.P99
	details := map[string]string{
		"p99":       fmt.Sprintf("%.0f", p99),
		"threshold": fmt.Sprintf("%.0f", p.P99AlertMs),
	}
	for _, e := range p.Sources {
		if e.IsP99Alert && e.Signal.Aggregate.Percentiles != nil {
			details[string(e.Source)] = fmt.Sprintf("%.0f", e.Signal.Aggregate.Percentiles.P99)
		}
	}
	return true, alerting.Alert{
		Title:   "p99 latency above threshold",
		Message: fmt.Sprintf("%s p99 latency %.0fms exceeds %.0fms", LatencyWindow, p99, p.P99AlertMs),
		Details: details,
	}
}
