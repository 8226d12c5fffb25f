// Package health provides fetch-layer health monitoring and status
// reporting.
package health

import (
	"time"

	"marketfetch/internal/fetch/adapter"
)

// SystemStatus represents the overall health state of the system or a
// component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// SourceHealth contains health data for one provider adapter.
type SourceHealth struct {
	Provider       string       `json:"provider"`
	Status         SystemStatus `json:"status"`
	Configured     bool         `json:"configured"`
	QueueDepth     int          `json:"queue_depth"`
	InFlight       bool         `json:"in_flight"`
	RateRemaining  int          `json:"rate_remaining"`
	RateCapacity   int          `json:"rate_capacity"`
	WindowResetAt  time.Time    `json:"window_reset_at"`
	LastFailure    string       `json:"last_failure,omitempty"`
	RecentFailures int          `json:"recent_failures"`
}

// Report contains the full fetch-layer health report.
type Report struct {
	SystemStatus SystemStatus            `json:"system_status"`
	Sources      map[string]SourceHealth `json:"sources"`
}

// evaluate derives a source's status from its adapter state.
func evaluate(st adapter.State, recentFailures int) SystemStatus {
	switch {
	case !st.Configured:
		return StatusCritical
	case st.Window.Remaining == 0 || st.LastFailure != "" || recentFailures > 0:
		return StatusDegraded
	default:
		return StatusHealthy
	}
}
