package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/leaguepulse/leaguepulse/internal/dashboard"
)

// MetricRefresher refreshes one dashboard metric.
type MetricRefresher interface {
	Metrics() []dashboard.Metric
	Refetch(ctx context.Context, metric dashboard.Metric) (dashboard.View, error)
}

// RefreshJob refreshes dashboard metrics with a bounded worker pool.
type RefreshJob struct {
	config    RefreshConfig
	refresher MetricRefresher
	logger    zerolog.Logger

	metrics *RefreshMetrics
}

// RefreshMetrics tracks refresh job statistics.
type RefreshMetrics struct {
	mu sync.RWMutex

	TotalRuns         int64
	SuccessfulRefresh int64
	FailedRefreshes   int64

	LastRunAt       time.Time
	LastRunDuration time.Duration
	TotalDuration   time.Duration
}

// RefreshJobConfig holds configuration for creating a RefreshJob.
type RefreshJobConfig struct {
	Config    RefreshConfig
	Refresher MetricRefresher
	Logger    zerolog.Logger
}

// NewRefreshJob creates a new refresh job processor.
func NewRefreshJob(cfg RefreshJobConfig) *RefreshJob {
	return &RefreshJob{
		config:    cfg.Config.withDefaults(),
		refresher: cfg.Refresher,
		logger:    cfg.Logger,
		metrics:   &RefreshMetrics{},
	}
}

// RefreshResult contains the result of a refresh run.
type RefreshResult struct {
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
	Total      int
	Successful int
	Failed     int
	Errors     []RefreshError
}

// RefreshError records one failed metric.
type RefreshError struct {
	Metric dashboard.Metric
	Error  string
}

// Run refreshes the named metrics, or every registered metric when names is
// empty. Unknown names are rejected before anything runs.
func (j *RefreshJob) Run(ctx context.Context, names []string) (*RefreshResult, error) {
	metrics, err := j.resolve(names)
	if err != nil {
		return nil, err
	}

	startTime := time.Now()
	result := &RefreshResult{
		StartTime: startTime,
		Total:     len(metrics),
	}

	j.logger.Info().
		Int("metrics", result.Total).
		Int("concurrency", j.config.Concurrency).
		Msg("starting metric refresh job")

	work := make(chan dashboard.Metric, len(metrics))
	results := make(chan metricResult, len(metrics))

	var wg sync.WaitGroup
	for i := 0; i < j.config.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			j.refreshWorker(ctx, work, results)
		}()
	}

	for _, m := range metrics {
		work <- m
	}
	close(work)

	go func() {
		wg.Wait()
		close(results)
	}()

	for mr := range results {
		if mr.err == nil {
			result.Successful++
			continue
		}
		result.Failed++
		result.Errors = append(result.Errors, RefreshError{Metric: mr.metric, Error: mr.err.Error()})
	}
	// Metrics never started because ctx ended count as failed.
	if skipped := result.Total - result.Successful - result.Failed; skipped > 0 {
		result.Failed += skipped
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(startTime)
	j.updateMetrics(result)

	j.logger.Info().
		Dur("duration", result.Duration).
		Int("successful", result.Successful).
		Int("failed", result.Failed).
		Msg("metric refresh job completed")

	return result, nil
}

type metricResult struct {
	metric dashboard.Metric
	err    error
}

func (j *RefreshJob) refreshWorker(ctx context.Context, work <-chan dashboard.Metric, results chan<- metricResult) {
	for metric := range work {
		select {
		case <-ctx.Done():
			return
		default:
			results <- metricResult{metric: metric, err: j.refreshMetric(ctx, metric)}
		}
	}
}

func (j *RefreshJob) refreshMetric(ctx context.Context, metric dashboard.Metric) error {
	metricCtx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	_, err := j.refresher.Refetch(metricCtx, metric)
	if err != nil {
		j.logger.Warn().Err(err).Str("metric", string(metric)).Msg("metric refresh failed")
	}
	return err
}

func (j *RefreshJob) resolve(names []string) ([]dashboard.Metric, error) {
	if len(names) == 0 {
		return j.refresher.Metrics(), nil
	}
	out := make([]dashboard.Metric, 0, len(names))
	var errs []error
	for _, name := range names {
		m, err := dashboard.ParseMetric(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, m)
	}
	if len(errs) > 0 {
		return nil, errors.Join(append([]error{ErrMalformedJob}, errs...)...)
	}
	return out, nil
}

func (j *RefreshJob) updateMetrics(result *RefreshResult) {
	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()

	j.metrics.TotalRuns++
	j.metrics.SuccessfulRefresh += int64(result.Successful)
	j.metrics.FailedRefreshes += int64(result.Failed)
	j.metrics.LastRunAt = result.EndTime
	j.metrics.LastRunDuration = result.Duration
	j.metrics.TotalDuration += result.Duration
}

// GetMetrics returns a copy of the current metrics.
func (j *RefreshJob) GetMetrics() RefreshMetrics {
	j.metrics.mu.RLock()
	defer j.metrics.mu.RUnlock()

	return RefreshMetrics{
		TotalRuns:         j.metrics.TotalRuns,
		SuccessfulRefresh: j.metrics.SuccessfulRefresh,
		FailedRefreshes:   j.metrics.FailedRefreshes,
		LastRunAt:         j.metrics.LastRunAt,
		LastRunDuration:   j.metrics.LastRunDuration,
		TotalDuration:     j.metrics.TotalDuration,
	}
}
