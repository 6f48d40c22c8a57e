package samplelog

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/leaguepulse/leaguepulse/internal/monitor"
)

// Failure describes one suppressed append.
type Failure struct {
	Source monitor.SourceID
	Err    error
	At     time.Time
}

// Diagnostics collects append failures that BestEffort swallowed.
type Diagnostics struct {
	suppressed atomic.Int64
	events     chan Failure

	mu   sync.RWMutex
	last *Failure
}

// NewDiagnostics creates a Diagnostics whose Failures channel buffers up to
// buffer events. Events beyond that are counted but dropped.
func NewDiagnostics(buffer int) *Diagnostics {
	if buffer < 0 {
		buffer = 0
	}
	return &Diagnostics{events: make(chan Failure, buffer)}
}

// Failures returns a channel of suppressed failures. Reading it is optional.
func (d *Diagnostics) Failures() <-chan Failure {
	return d.events
}

// Suppressed returns the number of swallowed append failures.
func (d *Diagnostics) Suppressed() int64 {
	return d.suppressed.Load()
}

// Last returns the most recent failure, if any.
func (d *Diagnostics) Last() (Failure, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.last == nil {
		return Failure{}, false
	}
	return *d.last, true
}

func (d *Diagnostics) record(f Failure) {
	d.suppressed.Add(1)

	d.mu.Lock()
	d.last = &f
	d.mu.Unlock()

	select {
	case d.events <- f:
	default:
	}
}

// BestEffortConfig holds configuration for a BestEffort logger.
type BestEffortConfig struct {
	Logger      Logger
	Diagnostics *Diagnostics
	Log         zerolog.Logger

	// Timeout bounds a single append so a slow store cannot stall a probe.
	Timeout time.Duration

	// OnSuppressed is called for every swallowed failure.
	OnSuppressed func(ctx context.Context, source monitor.SourceID)
}

// BestEffort wraps a Logger so that Record never fails.
type BestEffort struct {
	next         Logger
	diag         *Diagnostics
	log          zerolog.Logger
	timeout      time.Duration
	onSuppressed func(context.Context, monitor.SourceID)
}

// NewBestEffort creates a BestEffort logger. A nil Diagnostics gets a fresh
// one with a small buffer.
func NewBestEffort(cfg BestEffortConfig) *BestEffort {
	diag := cfg.Diagnostics
	if diag == nil {
		diag = NewDiagnostics(16)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 2 * time.Second
	}
	return &BestEffort{
		next:         cfg.Logger,
		diag:         diag,
		log:          cfg.Log.With().Str("component", "samplelog").Logger(),
		timeout:      timeout,
		onSuppressed: cfg.OnSuppressed,
	}
}

// Diagnostics returns the failure collector.
func (b *BestEffort) Diagnostics() *Diagnostics {
	return b.diag
}

// Record appends s and swallows any failure. The sample is never modified
// from the caller's point of view.
func (b *BestEffort) Record(ctx context.Context, s monitor.Sample) {
	if b.next == nil {
		return
	}

	appendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.timeout)
	defer cancel()

	err := b.append(appendCtx, s)
	if err == nil {
		return
	}

	b.diag.record(Failure{Source: s.Source, Err: err, At: time.Now()})
	b.log.Warn().
		Err(err).
		Str("source", string(s.Source)).
		Str("outcome", string(s.Outcome)).
		Msg("failed to append sample")
	if b.onSuppressed != nil {
		b.onSuppressed(ctx, s.Source)
	}
}

// append converts a panicking store into an error.
func (b *BestEffort) append(ctx context.Context, s monitor.Sample) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sample logger panicked: %v", r)
		}
	}()
	return b.next.Append(ctx, s)
}
