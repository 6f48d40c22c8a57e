package models

// Health is the liveness response.
type Health struct {
	Status  HealthStatus           `json:"status"`
	Time    Timestamp              `json:"time"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Readiness is the readiness response. Each dependency check is listed.
type Readiness struct {
	Status HealthStatus      `json:"status"`
	Time   Timestamp         `json:"time"`
	Checks []SubsystemStatus `json:"checks"`
}

// SystemStatus is the operator view of every monitored source and of the
// monitor's own subsystems.
type SystemStatus struct {
	Status     HealthStatus      `json:"status"`
	Time       Timestamp         `json:"time"`
	Subsystems []SubsystemStatus `json:"subsystems"`
	Sources    []SourceStatus    `json:"sources"`
}

// SubsystemStatus represents the status of a subsystem.
type SubsystemStatus struct {
	Name   string       `json:"name"`
	Status HealthStatus `json:"status"`
	Detail *string      `json:"detail,omitempty"`
}

// SourceStatus is the last known health of one probed source.
type SourceStatus struct {
	Source              string       `json:"source"`
	Status              HealthStatus `json:"status"`
	Circuit             *string      `json:"circuit,omitempty"`
	LastOutcome         string       `json:"lastOutcome,omitempty"`
	LastLatencyMs       *float64     `json:"lastLatencyMs,omitempty"`
	LastSuccessAt       *Timestamp   `json:"lastSuccessAt,omitempty"`
	LastFailureAt       *Timestamp   `json:"lastFailureAt,omitempty"`
	ConsecutiveFailures int          `json:"consecutiveFailures"`
	Message             *string      `json:"message,omitempty"`
}
