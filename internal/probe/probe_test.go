package probe_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leaguepulse/leaguepulse/internal/monitor"
	"github.com/leaguepulse/leaguepulse/internal/probe"
	"github.com/leaguepulse/leaguepulse/internal/provider/resilience"
	"github.com/leaguepulse/leaguepulse/internal/samplelog"
)

func TestInterpret(t *testing.T) {
	tests := []struct {
		status        int
		authenticated bool
		want          monitor.Outcome
	}{
		{http.StatusOK, false, monitor.OutcomeSuccess},
		{http.StatusNoContent, true, monitor.OutcomeSuccess},
		{http.StatusFound, false, monitor.OutcomeSuccess},
		{http.StatusBadRequest, false, monitor.OutcomeSuccess},
		{http.StatusNotFound, true, monitor.OutcomeSuccess},
		{http.StatusMethodNotAllowed, false, monitor.OutcomeSuccess},
		{http.StatusUnprocessableEntity, false, monitor.OutcomeSuccess},
		{http.StatusUnauthorized, false, monitor.OutcomeSuccess},
		{http.StatusForbidden, false, monitor.OutcomeSuccess},
		{http.StatusUnauthorized, true, monitor.OutcomeDegraded},
		{http.StatusForbidden, true, monitor.OutcomeDegraded},
		{http.StatusTooManyRequests, false, monitor.OutcomeDegraded},
		{http.StatusInternalServerError, false, monitor.OutcomeFailure},
		{http.StatusServiceUnavailable, true, monitor.OutcomeFailure},
		{http.StatusConflict, false, monitor.OutcomeFailure},
	}

	for _, tt := range tests {
		got, text := probe.Interpret(tt.status, tt.authenticated)
		assert.Equal(t, tt.want, got, "status %d authenticated=%v", tt.status, tt.authenticated)
		if got == monitor.OutcomeSuccess {
			assert.Empty(t, text)
		} else {
			assert.NotEmpty(t, text)
		}
	}
}

func probeClient(name string) *resilience.Client {
	return resilience.NewClient(resilience.ProbeClientConfig(name, time.Second))
}

func TestHTTPAdapter_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"season":"2025","week":1}`))
	}))
	defer server.Close()

	adapter := probe.NewSleeperAdapter(probeClient("sleeper"), server.URL)
	s := adapter.Probe(context.Background())

	assert.Equal(t, monitor.SourceSleeper, s.Source)
	assert.Equal(t, monitor.OutcomeSuccess, s.Outcome)
	require.NotNil(t, s.StatusCode)
	assert.Equal(t, http.StatusOK, *s.StatusCode)
	require.NotNil(t, s.Latency)
	assert.Nil(t, s.Error)
	assert.False(t, adapter.Authenticated())
}

func TestHTTPAdapter_RejectedCredentialsDegrade(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie("espn_s2")
		if assert.NoError(t, err) {
			assert.Equal(t, "expired", cookie.Value)
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	adapter := probe.NewESPNAdapter(probeClient("espn"), server.URL, "expired", "{SWID}")
	s := adapter.Probe(context.Background())

	assert.True(t, adapter.Authenticated())
	assert.Equal(t, monitor.OutcomeDegraded, s.Outcome)
	assert.Contains(t, s.ErrorText(), "credentials rejected")
}

func TestHTTPAdapter_AnonymousUnauthorizedIsAlive(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	s := probe.NewYahooAdapter(probeClient("yahoo"), server.URL, "").Probe(context.Background())

	assert.Equal(t, monitor.SourceYahoo, s.Source)
	assert.Equal(t, monitor.OutcomeSuccess, s.Outcome)
}

func TestHTTPAdapter_BearerToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	s := probe.NewYahooAdapter(probeClient("yahoo"), server.URL, "tok").Probe(context.Background())
	assert.Equal(t, monitor.OutcomeDegraded, s.Outcome)
}

func TestHTTPAdapter_ServerErrorFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	s := probe.NewSleeperAdapter(probeClient("sleeper"), server.URL).Probe(context.Background())

	assert.Equal(t, monitor.OutcomeFailure, s.Outcome)
	require.NotNil(t, s.StatusCode)
	assert.Equal(t, http.StatusServiceUnavailable, *s.StatusCode)
	assert.Contains(t, s.ErrorText(), "503")
}

func TestHTTPAdapter_TransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	url := server.URL
	server.Close()

	s := probe.NewSleeperAdapter(probeClient("sleeper"), url).Probe(context.Background())

	assert.Equal(t, monitor.OutcomeFailure, s.Outcome)
	assert.Nil(t, s.StatusCode)
	assert.NotEmpty(t, s.ErrorText())
}

func TestPingAdapter(t *testing.T) {
	ok := probe.NewPingAdapter(monitor.SourceDatabase, func(context.Context) error { return nil })
	s := ok.Probe(context.Background())
	assert.Equal(t, monitor.OutcomeSuccess, s.Outcome)
	assert.NotNil(t, s.Latency)

	bad := probe.NewPingAdapter(monitor.SourceDatabase, func(context.Context) error {
		return errors.New("too many connections")
	})
	s = bad.Probe(context.Background())
	assert.Equal(t, monitor.OutcomeFailure, s.Outcome)
	assert.Equal(t, "too many connections", s.ErrorText())
}

func TestRedisAdapter_Unreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	adapter := probe.NewRedisAdapter(client)
	s := adapter.Probe(context.Background())

	assert.Equal(t, monitor.SourceCache, adapter.Source())
	assert.Equal(t, monitor.OutcomeFailure, s.Outcome)
	assert.NotEmpty(t, s.ErrorText())
}

type fakeAdapter struct {
	source monitor.SourceID
	probe  func(ctx context.Context) monitor.Sample
}

func (f fakeAdapter) Source() monitor.SourceID { return f.source }

func (f fakeAdapter) Probe(ctx context.Context) monitor.Sample { return f.probe(ctx) }

func succeed(source monitor.SourceID) fakeAdapter {
	return fakeAdapter{source: source, probe: func(context.Context) monitor.Sample {
		d := 10 * time.Millisecond
		return monitor.Sample{Source: source, Outcome: monitor.OutcomeSuccess, Latency: &d}
	}}
}

func hang(source monitor.SourceID) fakeAdapter {
	return fakeAdapter{source: source, probe: func(context.Context) monitor.Sample {
		time.Sleep(time.Second)
		return monitor.Sample{Source: source, Outcome: monitor.OutcomeSuccess}
	}}
}

type brokenLog struct{}

func (brokenLog) Append(context.Context, monitor.Sample) error { return errors.New("disk full") }

func TestProber_ProbeAllIsolatesFailures(t *testing.T) {
	registry := resilience.NewRegistry()
	store := samplelog.NewMemoryStore()
	prober := probe.NewProber(probe.ProberConfig{
		Adapters: []probe.Adapter{
			succeed(monitor.SourceSleeper),
			hang(monitor.SourceESPN),
			fakeAdapter{source: monitor.SourceYahoo, probe: func(context.Context) monitor.Sample { panic("nil map") }},
		},
		Timeout:   50 * time.Millisecond,
		Logger:    zerolog.Nop(),
		Registry:  registry,
		SampleLog: samplelog.NewBestEffort(samplelog.BestEffortConfig{Logger: store, Log: zerolog.Nop()}),
	})

	start := time.Now()
	samples := prober.ProbeAll(context.Background())

	assert.Less(t, time.Since(start), 500*time.Millisecond, "a hanging source must not stall the sweep")
	require.Len(t, samples, 3)
	assert.Equal(t, monitor.SourceSleeper, samples[0].Source)
	assert.Equal(t, monitor.OutcomeSuccess, samples[0].Outcome)
	assert.Equal(t, monitor.OutcomeFailure, samples[1].Outcome)
	assert.Contains(t, samples[1].ErrorText(), "timeout")
	assert.Equal(t, monitor.OutcomeFailure, samples[2].Outcome)
	assert.Contains(t, samples[2].ErrorText(), "panicked")

	for _, s := range samples {
		assert.NotEmpty(t, s.ID)
		assert.False(t, s.RecordedAt.IsZero())
	}

	assert.Len(t, store.Samples(), 3)
	assert.Equal(t, 3, registry.SourceCount())
	assert.True(t, registry.GetHealth(monitor.SourceESPN).IsUnhealthy())
	assert.True(t, registry.GetHealth(monitor.SourceSleeper).IsHealthy())
}

func TestProber_CancelledSweepRecordsNothing(t *testing.T) {
	registry := resilience.NewRegistry()
	store := samplelog.NewMemoryStore()
	prober := probe.NewProber(probe.ProberConfig{
		Adapters: []probe.Adapter{
			hang(monitor.SourceSleeper),
			fakeAdapter{source: monitor.SourceESPN, probe: func(ctx context.Context) monitor.Sample {
				<-ctx.Done()
				msg := "dial tcp: " + ctx.Err().Error()
				return monitor.Sample{Source: monitor.SourceESPN, Outcome: monitor.OutcomeFailure, Error: &msg}
			}},
		},
		Timeout:   5 * time.Second,
		Logger:    zerolog.Nop(),
		Registry:  registry,
		SampleLog: samplelog.NewBestEffort(samplelog.BestEffortConfig{Logger: store, Log: zerolog.Nop()}),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	samples := prober.ProbeAll(ctx)

	assert.Less(t, time.Since(start), time.Second)
	require.Len(t, samples, 2)
	for _, s := range samples {
		assert.Equal(t, monitor.OutcomeFailure, s.Outcome)
		assert.Contains(t, s.ErrorText(), "abandoned")
		assert.NotContains(t, s.ErrorText(), "timeout after")
	}
	assert.Empty(t, store.Samples(), "a sweep the caller abandoned must not reach the sample log")
	assert.Zero(t, registry.SourceCount())

	agg, err := store.Aggregate(context.Background(), monitor.SourceAll, monitor.Window24h)
	require.NoError(t, err)
	assert.True(t, agg.IsEmpty())
}

func TestProber_TimeoutWithLiveCallerIsRecorded(t *testing.T) {
	store := samplelog.NewMemoryStore()
	prober := probe.NewProber(probe.ProberConfig{
		Adapters:  []probe.Adapter{hang(monitor.SourceSleeper)},
		Timeout:   20 * time.Millisecond,
		Logger:    zerolog.Nop(),
		SampleLog: samplelog.NewBestEffort(samplelog.BestEffortConfig{Logger: store, Log: zerolog.Nop()}),
	})

	s, err := prober.Probe(context.Background(), monitor.SourceSleeper, 0)

	require.NoError(t, err)
	assert.Contains(t, s.ErrorText(), "timeout after")
	require.Len(t, store.Samples(), 1)
	assert.Equal(t, monitor.OutcomeFailure, store.Samples()[0].Outcome)
}

func TestProber_LoggingFailureDoesNotChangeSample(t *testing.T) {
	be := samplelog.NewBestEffort(samplelog.BestEffortConfig{Logger: brokenLog{}, Log: zerolog.Nop()})
	prober := probe.NewProber(probe.ProberConfig{
		Adapters:  []probe.Adapter{succeed(monitor.SourceCache)},
		Logger:    zerolog.Nop(),
		SampleLog: be,
	})

	s, err := prober.Probe(context.Background(), monitor.SourceCache, 0)

	require.NoError(t, err)
	assert.Equal(t, monitor.OutcomeSuccess, s.Outcome)
	assert.Nil(t, s.Error)
	assert.Equal(t, int64(1), be.Diagnostics().Suppressed())
}

func TestProber_UnknownSource(t *testing.T) {
	prober := probe.NewProber(probe.ProberConfig{Logger: zerolog.Nop()})

	_, err := prober.Probe(context.Background(), monitor.SourceYahoo, time.Second)

	assert.ErrorIs(t, err, probe.ErrUnknownSource)
	assert.Empty(t, prober.Sources())
	assert.Equal(t, probe.DefaultTimeout, prober.Timeout())
}

func TestProber_Observe(t *testing.T) {
	store := samplelog.NewMemoryStore()
	registry := resilience.NewRegistry()
	prober := probe.NewProber(probe.ProberConfig{
		Logger:    zerolog.Nop(),
		Registry:  registry,
		SampleLog: samplelog.NewBestEffort(samplelog.BestEffortConfig{Logger: store, Log: zerolog.Nop()}),
	})

	s := prober.Observe(context.Background(), monitor.Sample{
		Source:  monitor.SourceDraftEngine,
		Kind:    monitor.KindDraftRun,
		Outcome: monitor.OutcomeFailure,
	})

	assert.NotEmpty(t, s.ID)
	assert.Equal(t, monitor.KindDraftRun, s.Kind)
	require.Len(t, store.Samples(), 1)
	assert.Equal(t, s.ID, store.Samples()[0].ID)
	assert.Equal(t, 1, registry.GetHealth(monitor.SourceDraftEngine).ConsecutiveFailures)
}

func TestProber_DuplicateSourceKeepsLast(t *testing.T) {
	first := fakeAdapter{source: monitor.SourceSleeper, probe: func(context.Context) monitor.Sample {
		return monitor.Sample{Outcome: monitor.OutcomeFailure}
	}}
	prober := probe.NewProber(probe.ProberConfig{
		Adapters: []probe.Adapter{first, succeed(monitor.SourceSleeper)},
		Logger:   zerolog.Nop(),
	})

	assert.Equal(t, []monitor.SourceID{monitor.SourceSleeper}, prober.Sources())
	s, err := prober.Probe(context.Background(), monitor.SourceSleeper, 0)
	require.NoError(t, err)
	assert.Equal(t, monitor.OutcomeSuccess, s.Outcome)
}
