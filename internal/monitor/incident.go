package monitor

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// ErrInvalidIncident is returned for a record whose type or severity is not
// one of the known values.
var ErrInvalidIncident = errors.New("invalid incident")

// IncidentType categorizes an operational incident.
type IncidentType string

const (
	IncidentAPIFailure  IncidentType = "api_failure"
	IncidentDraftError  IncidentType = "draft_error"
	IncidentSyncFailure IncidentType = "sync_failure"
	IncidentSystemError IncidentType = "system_error"
)

// IncidentTypes returns every incident type in display order.
func IncidentTypes() []IncidentType {
	return []IncidentType{IncidentAPIFailure, IncidentDraftError, IncidentSyncFailure, IncidentSystemError}
}

// Valid reports whether t is a known incident type.
func (t IncidentType) Valid() bool {
	return slices.Contains(IncidentTypes(), t)
}

// Severity ranks an incident.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Severities returns every severity from most to least severe.
func Severities() []Severity {
	return []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}
}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	return slices.Contains(Severities(), s)
}

// IncidentRecord is created by operational code when a failure is detected.
// The monitor only reads incidents; the resolution fields are updated by the
// code that opened the incident.
type IncidentRecord struct {
	ID                string       `json:"id"`
	Type              IncidentType `json:"type"`
	Severity          Severity     `json:"severity"`
	Title             string       `json:"title"`
	Description       string       `json:"description"`
	AffectedCount     int          `json:"affectedCount"`
	RecoveryActions   []string     `json:"recoveryActions"`
	OccurredAt        time.Time    `json:"occurredAt"`
	ResolvedAt        *time.Time   `json:"resolvedAt,omitempty"`
	ResolutionMinutes *float64     `json:"resolutionMinutes,omitempty"`
}

// IsResolved reports whether the incident carries both resolution fields.
func (r IncidentRecord) IsResolved() bool {
	return r.ResolvedAt != nil && r.ResolutionMinutes != nil
}

// Validate rejects records that summaries could not attribute to a type and
// a severity.
func (r IncidentRecord) Validate() error {
	if !r.Type.Valid() {
		return fmt.Errorf("%w %s: unknown type %q", ErrInvalidIncident, r.ID, r.Type)
	}
	if !r.Severity.Valid() {
		return fmt.Errorf("%w %s: unknown severity %q", ErrInvalidIncident, r.ID, r.Severity)
	}
	return nil
}
