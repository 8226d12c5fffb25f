package health

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"marketfetch/internal/fetch/adapter"
	"marketfetch/internal/fetch/errlog"
	"marketfetch/internal/fetch/failure"
)

type fakeReporter struct {
	states []adapter.State
}

func (f *fakeReporter) States() []adapter.State { return f.states }

func healthyState(name string) adapter.State {
	return adapter.State{
		Name:       name,
		Configured: true,
		Window:     adapter.WindowSnapshot{Capacity: 5, Remaining: 5, ResetAt: time.Now().Add(time.Minute)},
	}
}

func TestMonitorAllHealthy(t *testing.T) {
	m := NewMonitor(&fakeReporter{states: []adapter.State{
		healthyState("Financial Modeling Prep"),
		healthyState("Finnhub"),
	}}, nil)

	report := m.Check()
	if report.SystemStatus != StatusHealthy {
		t.Errorf("status = %s", report.SystemStatus)
	}
	if len(report.Sources) != 2 {
		t.Errorf("sources = %d", len(report.Sources))
	}
}

func TestMonitorDegradedOnExhaustedWindow(t *testing.T) {
	st := healthyState("Financial Modeling Prep")
	st.Window.Remaining = 0
	m := NewMonitor(&fakeReporter{states: []adapter.State{st, healthyState("Finnhub")}}, nil)

	report := m.Check()
	if report.SystemStatus != StatusDegraded {
		t.Errorf("status = %s", report.SystemStatus)
	}
	if report.Sources["Financial Modeling Prep"].Status != StatusDegraded {
		t.Errorf("source status = %s", report.Sources["Financial Modeling Prep"].Status)
	}
}

func TestMonitorCriticalWhenNothingServes(t *testing.T) {
	broken := adapter.State{Name: "Financial Modeling Prep", Configured: false}
	m := NewMonitor(&fakeReporter{states: []adapter.State{broken}}, nil)

	if report := m.Check(); report.SystemStatus != StatusCritical {
		t.Errorf("status = %s", report.SystemStatus)
	}
}

func TestMonitorCountsRecentFailures(t *testing.T) {
	log := errlog.New(10, nil)
	log.Append(errlog.Record{Provider: "Finnhub", Category: failure.CategoryNetwork, Message: "boom"})

	m := NewMonitor(&fakeReporter{states: []adapter.State{healthyState("Finnhub")}}, log)
	report := m.Check()

	src := report.Sources["Finnhub"]
	if src.RecentFailures != 1 || src.Status != StatusDegraded {
		t.Errorf("source = %+v", src)
	}
}

func TestHealthEndpoint(t *testing.T) {
	m := NewMonitor(&fakeReporter{states: []adapter.State{healthyState("Finnhub")}}, nil)
	s := NewServer(m, nil, 0)

	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest("GET", "/health", nil))

	if rec.Code != 200 {
		t.Errorf("code = %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "healthy" {
		t.Errorf("body = %v", body)
	}
}

func TestHealthEndpointCritical(t *testing.T) {
	m := NewMonitor(&fakeReporter{states: []adapter.State{{Name: "FMP", Configured: false}}}, nil)
	s := NewServer(m, nil, 0)

	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest("GET", "/health", nil))
	if rec.Code != 503 {
		t.Errorf("code = %d, want 503", rec.Code)
	}
}

func TestDetailedEndpoint(t *testing.T) {
	log := errlog.New(10, nil)
	m := NewMonitor(&fakeReporter{states: []adapter.State{healthyState("FRED")}}, log)
	s := NewServer(m, log, 0)

	rec := httptest.NewRecorder()
	s.handleDetailed(rec, httptest.NewRequest("GET", "/health/detailed", nil))

	var report Report
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatal(err)
	}
	if report.Sources["FRED"].RateCapacity != 5 {
		t.Errorf("report = %+v", report)
	}
}
