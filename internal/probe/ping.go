package probe

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/leaguepulse/leaguepulse/internal/monitor"
)

// PingFunc checks a dependency and returns nil when it answers.
type PingFunc func(ctx context.Context) error

// PingAdapter probes an internal subsystem with a ping.
type PingAdapter struct {
	source monitor.SourceID
	ping   PingFunc
}

// NewPingAdapter creates an adapter for source that calls ping.
func NewPingAdapter(source monitor.SourceID, ping PingFunc) *PingAdapter {
	return &PingAdapter{source: source, ping: ping}
}

// NewPostgresAdapter probes the database through the connection pool.
func NewPostgresAdapter(pool *pgxpool.Pool) *PingAdapter {
	return NewPingAdapter(monitor.SourceDatabase, pool.Ping)
}

// NewRedisAdapter probes the cache.
func NewRedisAdapter(client redis.UniversalClient) *PingAdapter {
	return NewPingAdapter(monitor.SourceCache, func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
}

// Source returns the probed source.
func (a *PingAdapter) Source() monitor.SourceID {
	return a.source
}

// Probe pings once.
func (a *PingAdapter) Probe(ctx context.Context) monitor.Sample {
	start := time.Now()
	err := a.ping(ctx)
	latency := time.Since(start)

	if err != nil {
		return failure(a.source, err.Error())
	}
	return monitor.Sample{
		Source:  a.source,
		Kind:    monitor.KindHealthCheck,
		Outcome: monitor.OutcomeSuccess,
		Latency: &latency,
	}
}
