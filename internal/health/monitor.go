package health

import (
	"sync"
	"time"

	"marketfetch/internal/fetch/adapter"
	"marketfetch/internal/fetch/errlog"
)

const (
	checkInterval  = 10 * time.Second
	failureHorizon = 10 * time.Minute
)

// StateReporter yields a point-in-time state per provider adapter.
type StateReporter interface {
	States() []adapter.State
}

// Monitor aggregates health status from the adapters and the failure log.
type Monitor struct {
	reporter StateReporter
	log      *errlog.Log

	mu         sync.Mutex
	lastCheck  time.Time
	lastReport Report
}

// NewMonitor creates a health monitor. log may be nil.
func NewMonitor(reporter StateReporter, log *errlog.Log) *Monitor {
	return &Monitor{reporter: reporter, log: log}
}

// Check builds the current health report. Results are cached briefly so
// aggressive probes do not hammer the adapters.
func (m *Monitor) Check() Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	if time.Since(m.lastCheck) < checkInterval && len(m.lastReport.Sources) > 0 {
		return m.lastReport
	}

	report := Report{
		SystemStatus: StatusHealthy,
		Sources:      make(map[string]SourceHealth),
	}

	states := m.reporter.States()
	allCritical := len(states) > 0
	for _, st := range states {
		recent := m.recentFailures(st.Name)
		status := evaluate(st, recent)

		report.Sources[st.Name] = SourceHealth{
			Provider:       st.Name,
			Status:         status,
			Configured:     st.Configured,
			QueueDepth:     st.QueueDepth,
			InFlight:       st.InFlight,
			RateRemaining:  st.Window.Remaining,
			RateCapacity:   st.Window.Capacity,
			WindowResetAt:  st.Window.ResetAt,
			LastFailure:    st.LastFailure,
			RecentFailures: recent,
		}

		if status != StatusCritical {
			allCritical = false
		}
		if status == StatusDegraded && report.SystemStatus == StatusHealthy {
			report.SystemStatus = StatusDegraded
		}
	}

	// The layer is critical only when no source can serve anything; a
	// single broken provider is what the fallback chains exist for.
	if allCritical {
		report.SystemStatus = StatusCritical
	} else if hasCritical(report.Sources) && report.SystemStatus == StatusHealthy {
		report.SystemStatus = StatusDegraded
	}

	m.lastCheck = time.Now()
	m.lastReport = report
	return report
}

func hasCritical(sources map[string]SourceHealth) bool {
	for _, s := range sources {
		if s.Status == StatusCritical {
			return true
		}
	}
	return false
}

func (m *Monitor) recentFailures(provider string) int {
	if m.log == nil {
		return 0
	}
	cutoff := time.Now().Add(-failureHorizon)
	n := 0
	for _, r := range m.log.ByProvider(provider) {
		if r.Time.After(cutoff) {
			n++
		}
	}
	return n
}
