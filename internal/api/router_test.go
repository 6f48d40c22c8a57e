package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leaguepulse/leaguepulse/internal/api"
	"github.com/leaguepulse/leaguepulse/internal/api/handler"
	"github.com/leaguepulse/leaguepulse/internal/api/models"
	"github.com/leaguepulse/leaguepulse/internal/classify"
	"github.com/leaguepulse/leaguepulse/internal/dashboard"
	"github.com/leaguepulse/leaguepulse/internal/incident"
	"github.com/leaguepulse/leaguepulse/internal/monitor"
	"github.com/leaguepulse/leaguepulse/internal/policy"
	"github.com/leaguepulse/leaguepulse/internal/probe"
	"github.com/leaguepulse/leaguepulse/internal/provider/resilience"
	"github.com/leaguepulse/leaguepulse/internal/samplelog"
)

const operatorToken = "test-operator-token"

type testStack struct {
	router   http.Handler
	prober   *probe.Prober
	registry *resilience.Registry
}

func newTestStack(t *testing.T, checks ...handler.ReadinessCheck) *testStack {
	t.Helper()
	logger := zerolog.New(io.Discard)

	store := samplelog.NewMemoryStore()
	diagnostics := samplelog.NewDiagnostics(4)
	registry := resilience.NewRegistry()

	prober := probe.NewProber(probe.ProberConfig{
		Adapters: []probe.Adapter{
			probe.NewPingAdapter(monitor.SourceDatabase, func(context.Context) error { return nil }),
			probe.NewPingAdapter(monitor.SourceCache, func(context.Context) error { return errors.New("connection refused") }),
		},
		Timeout: time.Second,
		Logger:  logger,
		SampleLog: samplelog.NewBestEffort(samplelog.BestEffortConfig{
			Logger:      store,
			Diagnostics: diagnostics,
			Log:         logger,
		}),
		Registry: registry,
	})

	resolvedAt := time.Now().Add(-time.Hour)
	minutes := 60.0
	incidents := incident.NewInMemoryRepository(monitor.IncidentRecord{
		Type:              monitor.IncidentAPIFailure,
		Severity:          monitor.SeverityCritical,
		Title:             "ESPN league sync failing",
		OccurredAt:        time.Now().Add(-2 * time.Hour),
		ResolvedAt:        &resolvedAt,
		ResolutionMinutes: &minutes,
	})

	policies := policy.NewService(policy.ServiceConfig{
		Repository: policy.NewInMemoryRepository(),
		Logger:     logger,
	})

	mon := dashboard.NewMonitor(dashboard.Config{
		Prober:     prober,
		Aggregates: store,
		Incidents:  incidents,
		Policy:     policies,
		Logger:     logger,
	})

	router := api.NewRouter(api.RouterConfig{
		Version:         "test",
		BuildTime:       "2025-09-01T00:00:00Z",
		Logger:          logger,
		OperatorTokens:  map[string]string{operatorToken: "alice"},
		ReadinessChecks: checks,
		Registry:        registry,
		Diagnostics:     diagnostics,
		Monitor:         mon,
		Policy:          policies,
		Incidents:       incidents,
		Aggregates:      store,
		Prober:          prober,
	})

	return &testStack{router: router, prober: prober, registry: registry}
}

func (s *testStack) do(t *testing.T, method, path string, body []byte, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestRouter_HealthCheck(t *testing.T) {
	s := newTestStack(t)

	rec := s.do(t, http.MethodGet, "/v1/ops/health", nil, "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	health := decode[models.Health](t, rec)
	assert.Equal(t, models.HealthStatusOK, health.Status)
	assert.Equal(t, "test", health.Details["version"])
}

func TestRouter_Readiness(t *testing.T) {
	t.Run("all checks pass", func(t *testing.T) {
		s := newTestStack(t, handler.ReadinessCheck{Name: "database", Check: func(context.Context) error { return nil }})

		rec := s.do(t, http.MethodGet, "/v1/ops/ready", nil, "")

		assert.Equal(t, http.StatusOK, rec.Code)
		ready := decode[models.Readiness](t, rec)
		assert.Equal(t, models.HealthStatusOK, ready.Status)
		require.Len(t, ready.Checks, 1)
		assert.Equal(t, "database", ready.Checks[0].Name)
	})

	t.Run("failing check answers 503", func(t *testing.T) {
		s := newTestStack(t,
			handler.ReadinessCheck{Name: "database", Check: func(context.Context) error { return nil }},
			handler.ReadinessCheck{Name: "redis", Check: func(context.Context) error { return errors.New("dial tcp: refused") }},
		)

		rec := s.do(t, http.MethodGet, "/v1/ops/ready", nil, "")

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		ready := decode[models.Readiness](t, rec)
		assert.Equal(t, models.HealthStatusFail, ready.Status)
		require.Len(t, ready.Checks, 2)
		assert.Equal(t, models.HealthStatusOK, ready.Checks[0].Status)
		assert.Equal(t, models.HealthStatusFail, ready.Checks[1].Status)
		require.NotNil(t, ready.Checks[1].Detail)
		assert.Contains(t, *ready.Checks[1].Detail, "refused")
	})
}

func TestRouter_SystemStatus(t *testing.T) {
	s := newTestStack(t)
	s.prober.ProbeAll(context.Background())

	rec := s.do(t, http.MethodGet, "/v1/ops/status", nil, "")

	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[models.SystemStatus](t, rec)
	assert.Equal(t, models.HealthStatusDegraded, status.Status, "a failing source degrades the monitor")

	bySource := make(map[string]models.SourceStatus)
	for _, src := range status.Sources {
		bySource[src.Source] = src
	}
	require.Contains(t, bySource, "database")
	require.Contains(t, bySource, "cache")
	assert.Equal(t, models.HealthStatusOK, bySource["database"].Status)
	assert.Equal(t, models.HealthStatusFail, bySource["cache"].Status)
	assert.Equal(t, 1, bySource["cache"].ConsecutiveFailures)
	require.NotNil(t, bySource["cache"].Message)
	assert.Contains(t, *bySource["cache"].Message, "connection refused")
}

func TestRouter_MonitorList(t *testing.T) {
	s := newTestStack(t)

	rec := s.do(t, http.MethodGet, "/v1/monitor", nil, "")

	require.Equal(t, http.StatusOK, rec.Code)
	overview := decode[models.MonitorOverview](t, rec)
	require.Len(t, overview.Metrics, len(dashboard.Metrics()))
	for _, v := range overview.Metrics {
		assert.Nil(t, v.Payload, "metric %s has not been fetched", v.Metric)
	}
	assert.Equal(t, 0, overview.Alerts)
}

func TestRouter_MonitorGetUnknownMetric(t *testing.T) {
	s := newTestStack(t)

	rec := s.do(t, http.MethodGet, "/v1/monitor/uptime", nil, "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	problem := decode[models.Problem](t, rec)
	assert.Equal(t, models.ProblemTypeNotFound, problem.Type)
	assert.Equal(t, "/v1/monitor/uptime", problem.Instance)
}

func TestRouter_MonitorRefetch(t *testing.T) {
	s := newTestStack(t)

	rec := s.do(t, http.MethodPost, "/v1/monitor/health/refetch", nil, "")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var view struct {
		Metric  string                  `json:"metric"`
		Phase   string                  `json:"phase"`
		Payload dashboard.HealthPayload `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "health", view.Metric)
	assert.Equal(t, "ready", view.Phase)
	assert.Equal(t, monitor.StatusDegraded, view.Payload.Overall)
	assert.Equal(t, 1, view.Payload.Down)

	// The refetched payload is now served by the snapshot endpoint.
	rec = s.do(t, http.MethodGet, "/v1/monitor/health", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"phase":"ready"`)
}

func TestRouter_Thresholds(t *testing.T) {
	s := newTestStack(t)

	rec := s.do(t, http.MethodGet, "/v1/monitor/thresholds", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	current := decode[models.Thresholds](t, rec)
	assert.Equal(t, "default", current.Origin)
	assert.Equal(t, classify.DefaultPolicy(), current.Policy)

	override := classify.DefaultPolicy()
	override.ErrorRateAlertPct = 2.5
	body, err := json.Marshal(override)
	require.NoError(t, err)

	rec = s.do(t, http.MethodPut, "/v1/monitor/thresholds", body, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "writes require an operator token")

	rec = s.do(t, http.MethodPut, "/v1/monitor/thresholds", body, operatorToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	current = decode[models.Thresholds](t, rec)
	assert.Equal(t, "override", current.Origin)
	assert.Equal(t, "alice", current.UpdatedBy)
	assert.Equal(t, 2.5, current.Policy.ErrorRateAlertPct)
	assert.NotNil(t, current.UpdatedAt)

	rec = s.do(t, http.MethodGet, "/v1/monitor/thresholds", nil, "")
	assert.Equal(t, "override", decode[models.Thresholds](t, rec).Origin)

	rec = s.do(t, http.MethodDelete, "/v1/monitor/thresholds", nil, operatorToken)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodGet, "/v1/monitor/thresholds", nil, "")
	assert.Equal(t, "default", decode[models.Thresholds](t, rec).Origin)
}

func TestRouter_ThresholdsDefaults(t *testing.T) {
	s := newTestStack(t)

	rec := s.do(t, http.MethodGet, "/v1/monitor/thresholds/defaults", nil, "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, classify.Thresholds(), decode[models.Thresholds](t, rec).Policy)
}

func TestRouter_ThresholdsRejectsInvalidPolicy(t *testing.T) {
	s := newTestStack(t)

	bad := classify.DefaultPolicy()
	bad.SuccessYellowMin = 99 // above green
	body, err := json.Marshal(bad)
	require.NoError(t, err)

	rec := s.do(t, http.MethodPut, "/v1/monitor/thresholds", body, operatorToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[models.Problem](t, rec).Detail, "invalid threshold policy")

	rec = s.do(t, http.MethodPut, "/v1/monitor/thresholds", []byte(`{"errorRatePct": 3}`), operatorToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "unknown fields are rejected")
}

func TestRouter_ThresholdsRequiresJSON(t *testing.T) {
	s := newTestStack(t)

	req := httptest.NewRequest(http.MethodPut, "/v1/monitor/thresholds", bytes.NewReader([]byte("errorRateAlertPct=3")))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+operatorToken)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestRouter_IncidentSummary(t *testing.T) {
	s := newTestStack(t)

	rec := s.do(t, http.MethodGet, "/v1/incidents/summary", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	report := decode[incident.Report](t, rec)
	assert.Equal(t, monitor.Window7d, report.Window)
	assert.Equal(t, 1, report.Summary.Total)
	assert.Equal(t, 1, report.Summary.Resolved)
	assert.Equal(t, 1, report.Summary.BySeverity[monitor.SeverityCritical])

	rec = s.do(t, http.MethodGet, "/v1/incidents/summary?window=24h&type=draft_error", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decode[incident.Report](t, rec).Summary.Total)

	rec = s.do(t, http.MethodGet, "/v1/incidents/summary?resolved=false", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decode[incident.Report](t, rec).Summary.Total)
}

func TestRouter_IncidentSummaryValidation(t *testing.T) {
	s := newTestStack(t)

	rec := s.do(t, http.MethodGet, "/v1/incidents/summary?window=2w&severity=urgent&resolved=maybe", nil, "")

	require.Equal(t, http.StatusBadRequest, rec.Code)
	problem := decode[models.Problem](t, rec)
	fields := make([]string, 0, len(problem.Errors))
	for _, e := range problem.Errors {
		fields = append(fields, e.Field)
	}
	assert.ElementsMatch(t, []string{"window", "severity", "resolved"}, fields)
}

func TestRouter_SourceAggregate(t *testing.T) {
	s := newTestStack(t)
	s.prober.ProbeAll(context.Background())

	rec := s.do(t, http.MethodGet, "/v1/sources/cache/aggregate?window=1h", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	agg := decode[monitor.WindowedAggregate](t, rec)
	assert.Equal(t, int64(1), agg.Total)
	assert.Equal(t, int64(1), agg.Failure)
	assert.Equal(t, 100.0, agg.ErrorRate)

	rec = s.do(t, http.MethodGet, "/v1/sources/all/aggregate", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(2), decode[monitor.WindowedAggregate](t, rec).Total)

	rec = s.do(t, http.MethodGet, "/v1/sources/myspace/aggregate", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/v1/sources/cache/aggregate?window=90d", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_SourceProbe(t *testing.T) {
	s := newTestStack(t)

	rec := s.do(t, http.MethodPost, "/v1/sources/database/probe", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/v1/sources/database/probe", nil, operatorToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	sample := decode[monitor.Sample](t, rec)
	assert.Equal(t, monitor.SourceDatabase, sample.Source)
	assert.Equal(t, monitor.OutcomeSuccess, sample.Outcome)
	assert.NotEmpty(t, sample.ID)

	health := s.registry.GetHealth(monitor.SourceDatabase)
	require.NotNil(t, health)
	assert.NotNil(t, health.LastSuccessAt, "on-demand probes are recorded")

	rec = s.do(t, http.MethodPost, "/v1/sources/yahoo/probe", nil, operatorToken)
	assert.Equal(t, http.StatusNotFound, rec.Code, "yahoo has no adapter in this stack")
}

func TestRouter_UnknownRouteAndMethod(t *testing.T) {
	s := newTestStack(t)

	rec := s.do(t, http.MethodGet, "/v1/commutes", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, models.ProblemTypeNotFound, decode[models.Problem](t, rec).Type)

	rec = s.do(t, http.MethodDelete, "/v1/ops/health", nil, "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, models.ProblemTypeMethodNotAllowed, decode[models.Problem](t, rec).Type)
}

func TestRouter_OptionalRoutesNotMounted(t *testing.T) {
	router := api.NewRouter(api.RouterConfig{Logger: zerolog.Nop()})

	for _, path := range []string{"/v1/monitor", "/v1/incidents/summary", "/v1/monitor/thresholds"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, http.NoBody))
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/ops/health", http.NoBody))
	assert.Equal(t, http.StatusOK, rec.Code)
}
