package models

import (
	"github.com/leaguepulse/leaguepulse/internal/classify"
	"github.com/leaguepulse/leaguepulse/internal/dashboard"
)

// MonitorOverview lists the current view of every dashboard metric.
type MonitorOverview struct {
	Time    Timestamp        `json:"time"`
	Alerts  int              `json:"alerts"`
	Metrics []dashboard.View `json:"metrics"`
}

// Thresholds is the effective threshold policy and where it came from.
type Thresholds struct {
	Policy    classify.Policy `json:"policy"`
	Origin    string          `json:"origin"`
	UpdatedBy string          `json:"updatedBy,omitempty"`
	UpdatedAt *Timestamp      `json:"updatedAt,omitempty"`
}
