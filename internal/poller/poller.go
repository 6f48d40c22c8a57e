// Package poller keeps one logical metric fresh by fetching it on a fixed
// interval. A failed fetch never erases the last good payload.
package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrDiscarded is returned by Refetch when the poller was stopped while the
// fetch was in flight and its result was thrown away.
var ErrDiscarded = errors.New("poller stopped; fetch result discarded")

// Phase is the lifecycle state of a poller.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseLoading Phase = "loading"
	PhaseReady   Phase = "ready"
	PhaseError   Phase = "error"
)

// State is a point-in-time copy of a poller's cache.
type State[T any] struct {
	Payload       T
	HasPayload    bool
	Err           error
	Loading       bool
	Phase         Phase
	LastFetchedAt time.Time
	LastSuccessAt time.Time
}

// FetchFunc loads a fresh payload.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Config holds configuration for a Poller.
type Config[T any] struct {
	// Name identifies the metric in logs and telemetry.
	Name string

	// Interval between scheduled fetches.
	Interval time.Duration

	// Timeout bounds a single fetch. Zero means no extra bound.
	Timeout time.Duration

	Fetch  FetchFunc[T]
	Logger zerolog.Logger

	// OnChange observes every state transition. It is called without the
	// poller lock held and must not block for long.
	OnChange func(State[T])

	// OnFetch observes the outcome of every applied fetch.
	OnFetch func(name string, elapsed time.Duration, err error)
}

// Poller caches the result of a fetch function and refreshes it periodically.
type Poller[T any] struct {
	name     string
	interval time.Duration
	timeout  time.Duration
	fetch    FetchFunc[T]
	logger   zerolog.Logger
	onChange func(State[T])
	onFetch  func(string, time.Duration, error)

	mu         sync.Mutex
	state      State[T]
	inflight   *flight
	generation uint64
	stop       chan struct{}
	loopDone   chan struct{}

	// runCtx scopes fetches to the poller's lifetime while it runs.
	runCtx    context.Context
	cancelRun context.CancelFunc
}

type flight struct {
	generation uint64
	done       chan struct{}
	err        error
}

// New creates an idle poller. It panics if Fetch is nil or Interval is not
// positive.
func New[T any](cfg Config[T]) *Poller[T] {
	if cfg.Fetch == nil {
		panic("poller: nil fetch function")
	}
	if cfg.Interval <= 0 {
		panic("poller: interval must be positive")
	}
	return &Poller[T]{
		name:     cfg.Name,
		interval: cfg.Interval,
		timeout:  cfg.Timeout,
		fetch:    cfg.Fetch,
		logger:   cfg.Logger.With().Str("metric", cfg.Name).Logger(),
		onChange: cfg.OnChange,
		onFetch:  cfg.OnFetch,
		state:    State[T]{Phase: PhaseIdle},
	}
}

// Name returns the metric name.
func (p *Poller[T]) Name() string {
	return p.name
}

// Interval returns the scheduled refresh interval.
func (p *Poller[T]) Interval() time.Duration {
	return p.interval
}

// Start fetches immediately and then on every interval until Stop is called
// or ctx is cancelled. Calling Start on a running poller is a no-op.
func (p *Poller[T]) Start(ctx context.Context) {
	p.mu.Lock()
	if p.stop != nil {
		p.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	loopDone := make(chan struct{})
	runCtx, cancelRun := context.WithCancel(ctx)
	p.stop = stop
	p.loopDone = loopDone
	p.runCtx, p.cancelRun = runCtx, cancelRun
	p.mu.Unlock()

	go p.loop(runCtx, stop, loopDone)
}

// Stop cancels the schedule. When Stop returns no further scheduled fetch
// will start, and any fetch still in flight is cancelled and its result
// discarded.
func (p *Poller[T]) Stop() {
	p.mu.Lock()
	stop, loopDone := p.stop, p.loopDone
	cancelRun := p.cancelRun
	p.stop, p.loopDone = nil, nil
	p.runCtx, p.cancelRun = nil, nil
	p.generation++
	p.inflight = nil
	changed := p.state.Loading
	p.state.Loading = false
	p.state.Phase = settledPhase(p.state)
	snapshot := p.state
	p.mu.Unlock()

	if cancelRun != nil {
		cancelRun()
	}
	if stop != nil {
		close(stop)
		<-loopDone
	}
	if changed {
		p.notify(snapshot)
	}
}

// Refetch runs a fetch now without resetting the schedule. If a fetch is
// already in flight the call waits for it instead of starting another one.
// The fetch itself runs like a scheduled one: ctx only bounds how long the
// caller waits, so a caller giving up never fails the shared state.
// The returned error is the fetch error, ctx.Err(), or ErrDiscarded.
func (p *Poller[T]) Refetch(ctx context.Context) (State[T], error) {
	p.mu.Lock()
	f := p.inflight
	var snapshot State[T]
	started := false
	fetchCtx := p.runCtx
	if f == nil {
		f, snapshot = p.beginLocked()
		started = true
	}
	p.mu.Unlock()

	if started {
		if fetchCtx == nil {
			fetchCtx = context.WithoutCancel(ctx)
		}
		p.notify(snapshot)
		go p.run(fetchCtx, f)
	}

	select {
	case <-f.done:
		return p.Snapshot(), f.err
	case <-ctx.Done():
		return p.Snapshot(), ctx.Err()
	}
}

// Snapshot returns a copy of the current state.
func (p *Poller[T]) Snapshot() State[T] {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Poller[T]) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	p.tick(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

// tick starts a scheduled fetch unless one is already running.
func (p *Poller[T]) tick(ctx context.Context) {
	p.mu.Lock()
	if p.inflight != nil {
		p.mu.Unlock()
		p.logger.Debug().Msg("fetch in flight, skipping scheduled tick")
		return
	}
	f, snapshot := p.beginLocked()
	p.mu.Unlock()

	p.notify(snapshot)
	go p.run(ctx, f)
}

// beginLocked registers a new flight. Callers must hold p.mu.
func (p *Poller[T]) beginLocked() (*flight, State[T]) {
	f := &flight{generation: p.generation, done: make(chan struct{})}
	p.inflight = f
	p.state.Loading = true
	p.state.Phase = PhaseLoading
	return f, p.state
}

func (p *Poller[T]) run(ctx context.Context, f *flight) {
	fetchCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	started := time.Now()
	payload, err := p.fetch(fetchCtx)
	elapsed := time.Since(started)

	p.mu.Lock()
	if p.inflight == f {
		p.inflight = nil
	}
	if f.generation != p.generation {
		p.mu.Unlock()
		f.err = ErrDiscarded
		close(f.done)
		p.logger.Debug().Dur("elapsed", elapsed).Msg("discarding fetch result after stop")
		return
	}

	now := time.Now()
	p.state.Loading = false
	p.state.LastFetchedAt = now
	if err != nil {
		p.state.Err = err
		p.state.Phase = PhaseError
	} else {
		p.state.Payload = payload
		p.state.HasPayload = true
		p.state.Err = nil
		p.state.LastSuccessAt = now
		p.state.Phase = PhaseReady
	}
	snapshot := p.state
	p.mu.Unlock()

	f.err = err
	close(f.done)

	if err != nil {
		p.logger.Warn().
			Err(err).
			Bool("stale_payload", snapshot.HasPayload).
			Dur("elapsed", elapsed).
			Msg("fetch failed")
	} else {
		p.logger.Debug().Dur("elapsed", elapsed).Msg("fetch succeeded")
	}

	if p.onFetch != nil {
		p.onFetch(p.name, elapsed, err)
	}
	p.notify(snapshot)
}

func (p *Poller[T]) notify(s State[T]) {
	if p.onChange != nil {
		p.onChange(s)
	}
}

func settledPhase[T any](s State[T]) Phase {
	switch {
	case s.Err != nil:
		return PhaseError
	case s.HasPayload:
		return PhaseReady
	default:
		return PhaseIdle
	}
}
