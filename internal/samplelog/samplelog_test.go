package samplelog_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leaguepulse/leaguepulse/internal/monitor"
	"github.com/leaguepulse/leaguepulse/internal/samplelog"
)

type failingLogger struct {
	err   error
	panic bool
	calls atomic.Int32
}

func (f *failingLogger) Append(_ context.Context, _ monitor.Sample) error {
	f.calls.Add(1)
	if f.panic {
		panic("disk on fire")
	}
	return f.err
}

func ms(n int) *time.Duration {
	d := time.Duration(n) * time.Millisecond
	return &d
}

func TestNormalize(t *testing.T) {
	now := time.Date(2025, 9, 7, 12, 0, 0, 0, time.FixedZone("CEST", 2*3600))

	s, err := samplelog.Normalize(monitor.Sample{
		Source:  monitor.SourceSleeper,
		Outcome: monitor.OutcomeSuccess,
	}, now)
	require.NoError(t, err)

	assert.NotEmpty(t, s.ID)
	assert.Equal(t, monitor.KindHealthCheck, s.Kind)
	assert.True(t, s.RecordedAt.Equal(now))
	assert.Equal(t, time.UTC, s.RecordedAt.Location())

	_, err = samplelog.Normalize(monitor.Sample{Outcome: monitor.OutcomeSuccess}, now)
	assert.ErrorIs(t, err, samplelog.ErrInvalidSample)

	_, err = samplelog.Normalize(monitor.Sample{Source: monitor.SourceESPN, Outcome: "meh"}, now)
	assert.ErrorIs(t, err, samplelog.ErrInvalidSample)
}

func TestBestEffort_SwallowsErrors(t *testing.T) {
	boom := errors.New("connection refused")
	next := &failingLogger{err: boom}
	diag := samplelog.NewDiagnostics(4)

	var suppressed atomic.Int32
	be := samplelog.NewBestEffort(samplelog.BestEffortConfig{
		Logger:      next,
		Diagnostics: diag,
		Log:         zerolog.Nop(),
		OnSuppressed: func(_ context.Context, source monitor.SourceID) {
			assert.Equal(t, monitor.SourceYahoo, source)
			suppressed.Add(1)
		},
	})

	sample := monitor.Sample{Source: monitor.SourceYahoo, Outcome: monitor.OutcomeFailure}
	be.Record(context.Background(), sample)
	be.Record(context.Background(), sample)

	assert.Equal(t, int32(2), next.calls.Load())
	assert.Equal(t, int64(2), diag.Suppressed())
	assert.Equal(t, int32(2), suppressed.Load())

	last, ok := diag.Last()
	require.True(t, ok)
	assert.ErrorIs(t, last.Err, boom)
	assert.Equal(t, monitor.SourceYahoo, last.Source)

	select {
	case f := <-diag.Failures():
		assert.ErrorIs(t, f.Err, boom)
	default:
		t.Fatal("expected a failure event")
	}
}

func TestBestEffort_RecoversPanics(t *testing.T) {
	be := samplelog.NewBestEffort(samplelog.BestEffortConfig{
		Logger: &failingLogger{panic: true},
		Log:    zerolog.Nop(),
	})

	assert.NotPanics(t, func() {
		be.Record(context.Background(), monitor.Sample{Source: monitor.SourceCache, Outcome: monitor.OutcomeSuccess})
	})
	assert.Equal(t, int64(1), be.Diagnostics().Suppressed())
}

func TestBestEffort_DropsEventsWhenBufferFull(t *testing.T) {
	diag := samplelog.NewDiagnostics(1)
	be := samplelog.NewBestEffort(samplelog.BestEffortConfig{
		Logger:      &failingLogger{err: errors.New("nope")},
		Diagnostics: diag,
		Log:         zerolog.Nop(),
	})

	for i := 0; i < 5; i++ {
		be.Record(context.Background(), monitor.Sample{Source: monitor.SourceESPN, Outcome: monitor.OutcomeSuccess})
	}

	assert.Equal(t, int64(5), diag.Suppressed())
	assert.Len(t, diag.Failures(), 1)
}

func TestBestEffort_NilLoggerIsNoop(t *testing.T) {
	be := samplelog.NewBestEffort(samplelog.BestEffortConfig{Log: zerolog.Nop()})
	be.Record(context.Background(), monitor.Sample{Source: monitor.SourceESPN})
	assert.Zero(t, be.Diagnostics().Suppressed())
}

func TestMemoryStore_AppendAndAggregate(t *testing.T) {
	now := time.Date(2025, 9, 7, 18, 0, 0, 0, time.UTC)
	store := samplelog.NewMemoryStoreWithClock(func() time.Time { return now })
	ctx := context.Background()

	samples := []monitor.Sample{
		{Source: monitor.SourceSleeper, Outcome: monitor.OutcomeSuccess, Latency: ms(40), RecordedAt: now.Add(-10 * time.Minute)},
		{Source: monitor.SourceSleeper, Outcome: monitor.OutcomeFailure, RecordedAt: now.Add(-20 * time.Minute)},
		{Source: monitor.SourceSleeper, Outcome: monitor.OutcomeSuccess, Latency: ms(60), RecordedAt: now.Add(-3 * time.Hour)},
		{Source: monitor.SourceESPN, Outcome: monitor.OutcomeFailure, RecordedAt: now.Add(-5 * time.Minute)},
	}
	for _, s := range samples {
		require.NoError(t, store.Append(ctx, s))
	}

	agg, err := store.Aggregate(ctx, monitor.SourceSleeper, monitor.Window1h)
	require.NoError(t, err)
	assert.Equal(t, int64(2), agg.Total)
	assert.InDelta(t, 50.0, agg.ErrorRate, 0.0001)

	p, err := store.Percentiles(ctx, monitor.SourceSleeper, monitor.Window24h)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.InDelta(t, 50.0, p.P50, 0.0001)

	times, err := store.FailureTimes(ctx, monitor.SourceAll, monitor.Window24h)
	require.NoError(t, err)
	require.Len(t, times, 2)
	assert.True(t, times[0].Before(times[1]))

	empty, err := store.Aggregate(ctx, monitor.SourceYahoo, monitor.Window30d)
	require.NoError(t, err)
	assert.True(t, empty.IsEmpty())

	assert.Len(t, store.Samples(), 4)
	assert.NoError(t, store.Close())
}

func TestMemoryStore_RejectsInvalidSample(t *testing.T) {
	store := samplelog.NewMemoryStore()
	err := store.Append(context.Background(), monitor.Sample{Outcome: monitor.OutcomeSuccess})
	assert.ErrorIs(t, err, samplelog.ErrInvalidSample)
	assert.Empty(t, store.Samples())
}

func TestBadgerStore_RoundTrip(t *testing.T) {
	store, err := samplelog.OpenBadgerStore(samplelog.BadgerConfig{InMemory: true})
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	now := time.Now()
	status := 503
	errText := "service unavailable"

	samples := []monitor.Sample{
		{Source: monitor.SourceYahoo, Outcome: monitor.OutcomeSuccess, Latency: ms(80), RecordedAt: now.Add(-30 * time.Minute)},
		{Source: monitor.SourceYahoo, Outcome: monitor.OutcomeFailure, StatusCode: &status, Error: &errText, RecordedAt: now.Add(-15 * time.Minute)},
		{Source: monitor.SourceYahoo, Outcome: monitor.OutcomeDegraded, Latency: ms(120), RecordedAt: now.Add(-2 * time.Hour)},
		{Source: monitor.SourceSleeper, Outcome: monitor.OutcomeSuccess, Latency: ms(20), RecordedAt: now.Add(-time.Minute)},
		{Source: monitor.SourceYahoo, Outcome: monitor.OutcomeFailure, RecordedAt: now.Add(-48 * time.Hour)},
	}
	for _, s := range samples {
		require.NoError(t, store.Append(ctx, s))
	}

	hour, err := store.Aggregate(ctx, monitor.SourceYahoo, monitor.Window1h)
	require.NoError(t, err)
	assert.Equal(t, int64(2), hour.Total)
	assert.Equal(t, int64(1), hour.Failure)

	day, err := store.Aggregate(ctx, monitor.SourceYahoo, monitor.Window24h)
	require.NoError(t, err)
	assert.Equal(t, int64(3), day.Total)
	assert.Equal(t, int64(1), day.Degraded)
	require.NotNil(t, day.Percentiles)
	assert.InDelta(t, 100.0, day.Percentiles.P50, 0.0001)

	all, err := store.Aggregate(ctx, monitor.SourceAll, monitor.Window7d)
	require.NoError(t, err)
	assert.Equal(t, int64(5), all.Total)

	failures, err := store.FailureTimes(ctx, monitor.SourceYahoo, monitor.Window7d)
	require.NoError(t, err)
	require.Len(t, failures, 2)
	assert.True(t, failures[0].Before(failures[1]))
}
