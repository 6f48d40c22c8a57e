package probe

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/leaguepulse/leaguepulse/internal/monitor"
	"github.com/leaguepulse/leaguepulse/internal/provider/resilience"
	"github.com/leaguepulse/leaguepulse/internal/samplelog"
	"github.com/leaguepulse/leaguepulse/internal/telemetry"
)

// DefaultTimeout is the liveness timeout applied to every probe.
const DefaultTimeout = 5 * time.Second

// ErrUnknownSource is returned when no adapter is configured for a source.
var ErrUnknownSource = errors.New("no adapter for source")

// ProberConfig holds configuration for creating a Prober.
type ProberConfig struct {
	Adapters []Adapter

	// Timeout bounds each probe. Default: DefaultTimeout.
	Timeout time.Duration

	Logger      zerolog.Logger
	SampleLog   *samplelog.BestEffort
	Registry    *resilience.Registry
	Instruments *telemetry.Instruments
}

// Prober runs adapters and fans every resulting sample out to the sample
// log, the source registry and telemetry.
type Prober struct {
	adapters    map[monitor.SourceID]Adapter
	order       []monitor.SourceID
	timeout     time.Duration
	logger      zerolog.Logger
	sampleLog   *samplelog.BestEffort
	registry    *resilience.Registry
	instruments *telemetry.Instruments
	tracer      trace.Tracer
}

// NewProber creates a prober. Later adapters replace earlier ones for the
// same source.
func NewProber(cfg ProberConfig) *Prober {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	p := &Prober{
		adapters:    make(map[monitor.SourceID]Adapter, len(cfg.Adapters)),
		timeout:     timeout,
		logger:      cfg.Logger.With().Str("component", "prober").Logger(),
		sampleLog:   cfg.SampleLog,
		registry:    cfg.Registry,
		instruments: cfg.Instruments,
		tracer:      otel.Tracer("github.com/leaguepulse/leaguepulse/internal/probe"),
	}
	for _, a := range cfg.Adapters {
		if _, seen := p.adapters[a.Source()]; !seen {
			p.order = append(p.order, a.Source())
		}
		p.adapters[a.Source()] = a
	}
	return p
}

// Sources returns the probed sources in configuration order.
func (p *Prober) Sources() []monitor.SourceID {
	out := make([]monitor.SourceID, len(p.order))
	copy(out, p.order)
	return out
}

// Timeout returns the default probe timeout.
func (p *Prober) Timeout() time.Duration {
	return p.timeout
}

// Probe checks one source within timeout. A zero timeout uses the prober
// default. The only error is ErrUnknownSource; every other problem is
// reported in the sample.
func (p *Prober) Probe(ctx context.Context, source monitor.SourceID, timeout time.Duration) (monitor.Sample, error) {
	a, ok := p.adapters[source]
	if !ok {
		return monitor.Sample{}, fmt.Errorf("%w: %s", ErrUnknownSource, source)
	}
	if timeout <= 0 {
		timeout = p.timeout
	}
	return p.run(ctx, a, timeout), nil
}

// ProbeAll checks every source concurrently. One source failing or hanging
// never affects another. Samples are returned in configuration order.
func (p *Prober) ProbeAll(ctx context.Context) []monitor.Sample {
	start := time.Now()
	samples := make([]monitor.Sample, len(p.order))

	var wg sync.WaitGroup
	for i, source := range p.order {
		wg.Add(1)
		go func(i int, a Adapter) {
			defer wg.Done()
			samples[i] = p.run(ctx, a, p.timeout)
		}(i, p.adapters[source])
	}
	wg.Wait()

	failed := 0
	for _, s := range samples {
		if s.Outcome == monitor.OutcomeFailure {
			failed++
		}
	}
	p.logger.Debug().
		Int("sources", len(samples)).
		Int("failed", failed).
		Dur("duration", time.Since(start)).
		Msg("probe sweep completed")

	return samples
}

// Observe records a sample reported by operational code, such as a draft
// run or a sync attempt, through the same side effects as a probe.
func (p *Prober) Observe(ctx context.Context, s monitor.Sample) monitor.Sample {
	s = finalize(s, time.Now())
	p.record(ctx, s)
	return s
}

func (p *Prober) run(ctx context.Context, a Adapter, timeout time.Duration) monitor.Sample {
	ctx, span := p.tracer.Start(ctx, "probe "+string(a.Source()),
		trace.WithAttributes(attribute.String("source", string(a.Source()))))
	defer span.End()

	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result := make(chan monitor.Sample, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				result <- failure(a.Source(), fmt.Sprintf("adapter panicked: %v", r))
			}
		}()
		result <- a.Probe(probeCtx)
	}()

	var s monitor.Sample
	select {
	case s = <-result:
	case <-probeCtx.Done():
		s = failure(a.Source(), fmt.Sprintf("timeout after %s", timeout))
	}

	// A failure caused by the caller going away says nothing about the
	// source, so it is returned but never recorded.
	if err := ctx.Err(); err != nil && s.Outcome == monitor.OutcomeFailure {
		s = finalize(failure(a.Source(), fmt.Sprintf("check abandoned: %v", err)), time.Now())
		span.SetAttributes(attribute.Bool("abandoned", true))
		p.logger.Debug().Str("source", string(a.Source())).Err(err).Msg("source check abandoned")
		return s
	}

	s.Source = a.Source()
	s = finalize(s, time.Now())

	span.SetAttributes(attribute.String("outcome", string(s.Outcome)))
	if s.Outcome == monitor.OutcomeFailure {
		span.SetStatus(codes.Error, s.ErrorText())
	}

	p.record(ctx, s)
	return s
}

func (p *Prober) record(ctx context.Context, s monitor.Sample) {
	if p.registry != nil {
		p.registry.Record(s)
	}
	p.instruments.RecordProbe(ctx, s)
	if p.sampleLog != nil {
		p.sampleLog.Record(ctx, s)
	}

	if s.Outcome == monitor.OutcomeFailure {
		p.logger.Warn().
			Str("source", string(s.Source)).
			Str("kind", string(s.Kind)).
			Str("error", s.ErrorText()).
			Msg("source check failed")
	}
}

func finalize(s monitor.Sample, now time.Time) monitor.Sample {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.Kind == "" {
		s.Kind = monitor.KindHealthCheck
	}
	if s.RecordedAt.IsZero() {
		s.RecordedAt = now.UTC()
	}
	return s
}
