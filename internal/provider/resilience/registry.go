package resilience

import (
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/leaguepulse/leaguepulse/internal/monitor"
)

// SourceHealth is the last known health of a monitored source.
type SourceHealth struct {
	Source monitor.SourceID

	// HasCircuit is false for sources probed without an HTTP client.
	HasCircuit   bool
	CircuitState gobreaker.State
	Counts       gobreaker.Counts

	LastOutcome   monitor.Outcome
	LastLatency   *time.Duration
	LastSuccessAt *time.Time
	LastFailureAt *time.Time
	LastError     string

	ConsecutiveFailures int
}

// IsHealthy returns true if the source is considered healthy.
func (h *SourceHealth) IsHealthy() bool {
	return h.Status() == monitor.StatusHealthy
}

// IsDegraded returns true if the source answers but not cleanly, or its
// circuit is probing (half-open).
func (h *SourceHealth) IsDegraded() bool {
	return h.Status() == monitor.StatusDegraded
}

// IsUnhealthy returns true if the source is down or its circuit is open.
func (h *SourceHealth) IsUnhealthy() bool {
	return h.Status() == monitor.StatusDown
}

// Status combines the circuit state with the last observed outcome. An open
// circuit wins over everything; a source never observed is healthy.
func (h *SourceHealth) Status() monitor.Status {
	if h.HasCircuit {
		switch h.CircuitState {
		case gobreaker.StateOpen:
			return monitor.StatusDown
		case gobreaker.StateHalfOpen:
			return monitor.StatusDegraded
		}
	}
	switch h.LastOutcome {
	case monitor.OutcomeFailure:
		return monitor.StatusDown
	case monitor.OutcomeDegraded:
		return monitor.StatusDegraded
	default:
		return monitor.StatusHealthy
	}
}

// Registry tracks the health of every probed source. Sources are added on
// first Register or Record.
type Registry struct {
	mu      sync.RWMutex
	sources map[monitor.SourceID]*trackedSource
}

type trackedSource struct {
	client              *Client
	lastOutcome         monitor.Outcome
	lastLatency         *time.Duration
	lastSuccessAt       *time.Time
	lastFailureAt       *time.Time
	lastError           string
	consecutiveFailures int
}

// NewRegistry creates a new source registry.
func NewRegistry() *Registry {
	return &Registry{
		sources: make(map[monitor.SourceID]*trackedSource),
	}
}

// Register attaches a client to a source so its circuit state is reported.
func (r *Registry) Register(source monitor.SourceID, client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trackLocked(source).client = client
}

// Unregister removes a source from the registry.
func (r *Registry) Unregister(source monitor.SourceID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sources, source)
}

// Record applies a probe sample to its source.
func (r *Registry) Record(s monitor.Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.trackLocked(s.Source)
	at := s.RecordedAt
	if at.IsZero() {
		at = time.Now()
	}

	t.lastOutcome = s.Outcome
	t.lastLatency = s.Latency
	if s.Outcome == monitor.OutcomeFailure {
		t.lastFailureAt = &at
		t.lastError = s.ErrorText()
		t.consecutiveFailures++
		return
	}
	t.lastSuccessAt = &at
	t.consecutiveFailures = 0
	if s.Outcome == monitor.OutcomeDegraded && s.Error != nil {
		t.lastError = *s.Error
	}
}

// RecordSuccess records a successful check for a source.
func (r *Registry) RecordSuccess(source monitor.SourceID) {
	r.Record(monitor.Sample{Source: source, Outcome: monitor.OutcomeSuccess})
}

// RecordFailure records a failed check for a source.
func (r *Registry) RecordFailure(source monitor.SourceID, err error) {
	s := monitor.Sample{Source: source, Outcome: monitor.OutcomeFailure}
	if err != nil {
		msg := err.Error()
		s.Error = &msg
	}
	r.Record(s)
}

// GetHealth returns the health of a specific source, or nil if unknown.
func (r *Registry) GetHealth(source monitor.SourceID) *SourceHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.sources[source]
	if !ok {
		return nil
	}
	return t.health(source)
}

// GetAllHealth returns the health of every tracked source, sorted by ID.
func (r *Registry) GetAllHealth() []*SourceHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()

	health := make([]*SourceHealth, 0, len(r.sources))
	for source, t := range r.sources {
		health = append(health, t.health(source))
	}
	sort.Slice(health, func(i, j int) bool { return health[i].Source < health[j].Source })
	return health
}

// Sources returns the IDs of every tracked source.
func (r *Registry) Sources() []monitor.SourceID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]monitor.SourceID, 0, len(r.sources))
	for id := range r.sources {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// SourceCount returns the number of tracked sources.
func (r *Registry) SourceCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sources)
}

func (r *Registry) trackLocked(source monitor.SourceID) *trackedSource {
	t, ok := r.sources[source]
	if !ok {
		t = &trackedSource{}
		r.sources[source] = t
	}
	return t
}

func (t *trackedSource) health(source monitor.SourceID) *SourceHealth {
	h := &SourceHealth{
		Source:              source,
		LastOutcome:         t.lastOutcome,
		LastLatency:         t.lastLatency,
		LastSuccessAt:       t.lastSuccessAt,
		LastFailureAt:       t.lastFailureAt,
		LastError:           t.lastError,
		ConsecutiveFailures: t.consecutiveFailures,
	}
	if t.client != nil {
		h.HasCircuit = true
		h.CircuitState = t.client.CircuitBreakerState()
		h.Counts = t.client.CircuitBreakerCounts()
	}
	return h
}
