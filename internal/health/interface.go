package health

import (
	"context"
	"time"
)

// CheckStatus represents the health status of a component.
type CheckStatus string

const (
	StatusHealthy   CheckStatus = "healthy"
	StatusDegraded  CheckStatus = "degraded"
	StatusUnhealthy CheckStatus = "unhealthy"
	StatusUnknown   CheckStatus = "unknown"
)

// CheckResult is the outcome of one component check.
type CheckResult struct {
	Name      string      `json:"name"`
	Status    CheckStatus `json:"status"`
	Message   string      `json:"message,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Duration  string      `json:"duration"`
}

// Checker probes the health of one component.
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}
