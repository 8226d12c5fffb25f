package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"marketfetch/internal/core/domain"
	"marketfetch/internal/fetch/chain"
	"marketfetch/internal/fetch/degrade"
	"marketfetch/internal/fetch/failure"
)

type fakeSource struct {
	name       string
	configured bool

	quote   *domain.Quote
	macro   *domain.MacroSnapshot
	sectors []domain.SectorPerformance
	err     error
}

func (s *fakeSource) SourceName() string { return s.name }
func (s *fakeSource) IsConfigured() bool { return s.configured }

func (s *fakeSource) Quote(ctx context.Context, symbol string) (*domain.Quote, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.quote, nil
}

func (s *fakeSource) MacroSnapshot(ctx context.Context) (*domain.MacroSnapshot, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.macro, nil
}

func (s *fakeSource) SectorPerformance(ctx context.Context) ([]domain.SectorPerformance, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.sectors, nil
}

func newTestService(t *testing.T) (*Service, *chain.Engine, *degrade.Store) {
	t.Helper()
	engine := chain.NewEngine()
	store := degrade.NewStore(nil, time.Hour)
	return New(engine, store, nil), engine, store
}

func TestStockQuoteFallsBack(t *testing.T) {
	price := 150.00
	primary := &fakeSource{
		name:       "ProviderA",
		configured: true,
		err:        failure.Network("ProviderA", "connection refused", nil),
	}
	backup := &fakeSource{
		name:       "ProviderB",
		configured: true,
		quote:      &domain.Quote{Symbol: "AAPL", Price: price},
	}
	svc, engine, _ := newTestService(t)
	engine.Register(KeyStockQuote, chain.Chain{Primary: primary, Fallbacks: []chain.Source{backup}})

	res := svc.StockQuote(context.Background(), "AAPL")
	if res.Data == nil || res.Data.Price != 150.00 {
		t.Fatalf("data = %+v", res.Data)
	}
	if res.Source != "ProviderB" || !res.UsedFallback {
		t.Errorf("result = source=%s fallback=%v", res.Source, res.UsedFallback)
	}
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "ProviderA failed") {
		t.Errorf("warnings = %v", res.Warnings)
	}
}

func TestStockQuoteSourceTypeMismatch(t *testing.T) {
	// A source registered for the wrong data type yields a validation
	// warning, not a panic.
	svc, engine, _ := newTestService(t)
	engine.Register(KeyStockQuote, chain.Chain{Primary: chainOnly{}})

	res := svc.StockQuote(context.Background(), "AAPL")
	if res.Source != "" {
		t.Errorf("source = %s", res.Source)
	}
	if len(res.Warnings) == 0 || !strings.Contains(res.Warnings[0], "does not serve stock quotes") {
		t.Errorf("warnings = %v", res.Warnings)
	}
}

type chainOnly struct{}

func (chainOnly) SourceName() string { return "Bare" }
func (chainOnly) IsConfigured() bool { return true }

func TestMacroSnapshotPrimesDegradedCache(t *testing.T) {
	snap := &domain.MacroSnapshot{AsOf: time.Now()}
	src := &fakeSource{name: "FRED", configured: true, macro: snap}
	svc, engine, _ := newTestService(t)
	engine.Register(KeyMacroSnapshot, chain.Chain{Primary: src})

	res := svc.MacroSnapshot(context.Background())
	if res.Data != snap || res.Source != "FRED" {
		t.Fatalf("result = %+v", res)
	}

	// The success primed the cache; a total outage now serves from it.
	src.err = failure.Network("FRED", "connection refused", nil)
	res = svc.MacroSnapshot(context.Background())
	if res.Data != snap {
		t.Fatal("degraded cache should serve the last snapshot")
	}
	if res.Source != DegradedSource || !res.UsedFallback {
		t.Errorf("result = source=%s fallback=%v", res.Source, res.UsedFallback)
	}
	if len(res.Warnings) == 0 || !strings.Contains(res.Warnings[0], "FRED failed") {
		t.Errorf("warnings = %v", res.Warnings)
	}
}

func TestMacroSnapshotNoCacheNoData(t *testing.T) {
	src := &fakeSource{name: "FRED", configured: true, err: failure.Network("FRED", "down", nil)}
	svc, engine, _ := newTestService(t)
	engine.Register(KeyMacroSnapshot, chain.Chain{Primary: src})

	res := svc.MacroSnapshot(context.Background())
	if res.Data != nil || res.Source != "" {
		t.Fatalf("result = %+v", res)
	}
	joined := strings.Join(res.Warnings, "\n")
	if !strings.Contains(joined, "All data sources failed for macro-snapshot") {
		t.Errorf("warnings = %v", res.Warnings)
	}
	if !strings.Contains(joined, "No cached data available for macro-snapshot") {
		t.Errorf("warnings = %v", res.Warnings)
	}
}

func TestSectorPerformanceCachedFallback(t *testing.T) {
	rows := []domain.SectorPerformance{{Sector: "Technology", ChangePercent: 1.25}}
	src := &fakeSource{name: "FMP", configured: true, sectors: rows}
	svc, engine, _ := newTestService(t)
	engine.Register(KeySectorPerformance, chain.Chain{Primary: src})

	if res := svc.SectorPerformance(context.Background()); res.Source != "FMP" {
		t.Fatalf("result = %+v", res)
	}

	src.err = failure.RateLimit("FMP", "quota exhausted", 0)
	res := svc.SectorPerformance(context.Background())
	if res.Source != DegradedSource || len(res.Data) != 1 {
		t.Fatalf("result = %+v", res)
	}
	if res.Data[0].Sector != "Technology" {
		t.Errorf("data = %+v", res.Data)
	}
}

func TestSyntheticOperations(t *testing.T) {
	svc, _, _ := newTestService(t)

	res := svc.AnalystSentiment(context.Background())
	if res.Data != nil || res.Source != "" || res.UsedFallback {
		t.Errorf("result = %+v", res)
	}
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "Analyst sentiment data is unavailable") {
		t.Errorf("warnings = %v", res.Warnings)
	}

	trend := svc.TechnicalTrend(context.Background())
	if len(trend.Warnings) != 1 || !strings.Contains(trend.Warnings[0], "Technical trend data is unavailable") {
		t.Errorf("warnings = %v", trend.Warnings)
	}
}

func TestUnregisteredDataType(t *testing.T) {
	svc, _, _ := newTestService(t)
	res := svc.CompanyProfile(context.Background(), "AAPL")
	if len(res.Warnings) != 1 || res.Warnings[0] != "No fallback chain configured for company-profile" {
		t.Errorf("warnings = %v", res.Warnings)
	}
}
