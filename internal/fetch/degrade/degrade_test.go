package degrade

import (
	"strings"
	"testing"
	"time"
)

func newTestStore(ttl time.Duration) (*Store, *time.Time) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := NewStore(map[string]time.Duration{"macro-snapshot": ttl}, DefaultScreeningTTL)
	s.now = func() time.Time { return now }
	return s, &now
}

func TestFallbackFresh(t *testing.T) {
	s, _ := newTestStore(time.Hour)
	s.Put("macro-snapshot", "snapshot-v1")

	res := s.Fallback("macro-snapshot")
	if res.Data != "snapshot-v1" || res.Stale {
		t.Errorf("result = %+v", res)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("fresh data should carry no warnings: %v", res.Warnings)
	}
}

func TestFallbackTurnsStaleLazily(t *testing.T) {
	s, now := newTestStore(time.Hour)
	s.Put("macro-snapshot", "snapshot-v1")

	*now = now.Add(59 * time.Minute)
	if res := s.Fallback("macro-snapshot"); res.Stale {
		t.Error("still inside TTL, must not be stale")
	}

	*now = now.Add(2 * time.Minute)
	res := s.Fallback("macro-snapshot")
	if !res.Stale {
		t.Fatal("TTL elapsed, must be stale")
	}
	if res.Data != "snapshot-v1" {
		t.Error("stale data is still served")
	}
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "Using stale cached data for macro-snapshot") {
		t.Errorf("warnings = %v", res.Warnings)
	}
}

func TestFallbackExactDeadlineIsStale(t *testing.T) {
	s, now := newTestStore(time.Hour)
	s.Put("macro-snapshot", "x")
	*now = now.Add(time.Hour)
	if !s.Fallback("macro-snapshot").Stale {
		t.Error("data exactly at the deadline counts as stale")
	}
}

func TestFallbackNoData(t *testing.T) {
	s, _ := newTestStore(time.Hour)
	res := s.Fallback("macro-snapshot")
	if res.Data != nil {
		t.Errorf("data = %v", res.Data)
	}
	want := "No cached data available for macro-snapshot"
	if len(res.Warnings) != 1 || res.Warnings[0] != want {
		t.Errorf("warnings = %v", res.Warnings)
	}
}

func TestPutReplacesAndResetsClock(t *testing.T) {
	s, now := newTestStore(time.Hour)
	s.Put("macro-snapshot", "v1")
	*now = now.Add(2 * time.Hour)
	s.Put("macro-snapshot", "v2")

	res := s.Fallback("macro-snapshot")
	if res.Data != "v2" || res.Stale {
		t.Errorf("result = %+v", res)
	}
}

func TestDefaultTTLForUnknownKey(t *testing.T) {
	s, now := newTestStore(time.Hour)
	s.Put("stock-screening", "rows")
	*now = now.Add(DefaultScreeningTTL + time.Second)
	if !s.Fallback("stock-screening").Stale {
		t.Error("unknown key should use the default TTL")
	}
}

func TestClear(t *testing.T) {
	s, _ := newTestStore(time.Hour)
	s.Put("macro-snapshot", "v1")
	s.Clear()
	if s.Fallback("macro-snapshot").Data != nil {
		t.Error("Clear should drop snapshots")
	}
}

func TestSynthetic(t *testing.T) {
	res := Synthetic("Analyst sentiment data is unavailable")
	if res.Data != nil || res.Stale {
		t.Errorf("result = %+v", res)
	}
	if len(res.Warnings) != 1 || res.Warnings[0] != "Analyst sentiment data is unavailable" {
		t.Errorf("warnings = %v", res.Warnings)
	}
}
