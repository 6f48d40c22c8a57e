package samplelog

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leaguepulse/leaguepulse/internal/monitor"
)

// PostgresStore is a PostgreSQL implementation of Store. Aggregates are
// computed in SQL over the health_samples table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL sample store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Append inserts a sample.
func (s *PostgresStore) Append(ctx context.Context, sample monitor.Sample) error {
	sample, err := Normalize(sample, time.Now())
	if err != nil {
		return err
	}

	query := `
		INSERT INTO health_samples (id, source, kind, outcome, latency_ms, status_code, error, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	var latencyMs *float64
	if ms, ok := sample.LatencyMs(); ok {
		latencyMs = &ms
	}

	_, err = s.pool.Exec(ctx, query,
		sample.ID,
		string(sample.Source),
		string(sample.Kind),
		string(sample.Outcome),
		latencyMs,
		sample.StatusCode,
		sample.Error,
		sample.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("insert sample: %w", err)
	}
	return nil
}

// Aggregate counts outcomes and computes latency percentiles in one query.
func (s *PostgresStore) Aggregate(ctx context.Context, source monitor.SourceID, window monitor.Window) (monitor.WindowedAggregate, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE outcome = 'success'),
			COUNT(*) FILTER (WHERE outcome = 'degraded'),
			COUNT(*) FILTER (WHERE outcome = 'failure'),
			COUNT(latency_ms),
			percentile_cont(0.50) WITHIN GROUP (ORDER BY latency_ms),
			percentile_cont(0.95) WITHIN GROUP (ORDER BY latency_ms),
			percentile_cont(0.99) WITHIN GROUP (ORDER BY latency_ms)
		FROM health_samples
		WHERE ($1 = '' OR source = $1)
		  AND recorded_at >= $2
		  AND recorded_at <= $3
	`

	now := time.Now().UTC()
	agg := monitor.WindowedAggregate{Source: source, Window: window}

	var (
		withLatency   int64
		p50, p95, p99 *float64
	)
	err := s.pool.QueryRow(ctx, query, string(source), window.Start(now), now).Scan(
		&agg.Total,
		&agg.Success,
		&agg.Degraded,
		&agg.Failure,
		&withLatency,
		&p50,
		&p95,
		&p99,
	)
	if err != nil {
		return monitor.WindowedAggregate{}, fmt.Errorf("aggregate samples: %w", err)
	}

	if withLatency > 0 && p50 != nil && p95 != nil && p99 != nil {
		agg.Percentiles = &monitor.Percentiles{P50: *p50, P95: *p95, P99: *p99}
	}
	return agg.WithRates(), nil
}

// Percentiles returns latency percentiles for source within window.
func (s *PostgresStore) Percentiles(ctx context.Context, source monitor.SourceID, window monitor.Window) (*monitor.Percentiles, error) {
	agg, err := s.Aggregate(ctx, source, window)
	if err != nil {
		return nil, err
	}
	return agg.Percentiles, nil
}

// FailureTimes returns the times of failures for source within window.
func (s *PostgresStore) FailureTimes(ctx context.Context, source monitor.SourceID, window monitor.Window) ([]time.Time, error) {
	query := `
		SELECT recorded_at
		FROM health_samples
		WHERE outcome = 'failure'
		  AND ($1 = '' OR source = $1)
		  AND recorded_at >= $2
		  AND recorded_at <= $3
		ORDER BY recorded_at
	`

	now := time.Now().UTC()
	rows, err := s.pool.Query(ctx, query, string(source), window.Start(now), now)
	if err != nil {
		return nil, fmt.Errorf("query failure times: %w", err)
	}
	defer rows.Close()

	var times []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		times = append(times, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return times, nil
}

// Close does not close the pool; it is owned by the caller.
func (s *PostgresStore) Close() error {
	return nil
}

// Ensure PostgresStore implements Store interface.
var _ Store = (*PostgresStore)(nil)
