// Package service is the workflow-facing facade over the fallback chain
// engine and the degraded cache. The calling workflow hands it a logical
// data-type key implicitly by choosing an operation; it never talks to a
// provider directly.
package service

import (
	"context"
	"log/slog"

	"marketfetch/internal/core/domain"
	"marketfetch/internal/fetch/chain"
	"marketfetch/internal/fetch/degrade"
	"marketfetch/internal/fetch/failure"
)

// Logical data-type keys.
const (
	KeyStockQuote        = "stock-quote"
	KeyCompanyProfile    = "company-profile"
	KeyIncomeStatement   = "income-statement"
	KeyDailySeries       = "daily-series"
	KeyMacroSnapshot     = "macro-snapshot"
	KeySectorPerformance = "sector-performance"
	KeyStockScreening    = "stock-screening"
	KeyAnalystSentiment  = "analyst-sentiment"
	KeyTechnicalTrend    = "technical-trend"
)

// DegradedSource is the pseudo-source name reported when a result comes
// from the degraded cache instead of a live provider.
const DegradedSource = "degraded-cache"

// Typed per-data-type contracts a source may implement. Consumer-side
// interfaces: each provider client implements the subset it can serve.
type (
	QuoteSource interface {
		chain.Source
		Quote(ctx context.Context, symbol string) (*domain.Quote, error)
	}

	ProfileSource interface {
		chain.Source
		CompanyProfile(ctx context.Context, symbol string) (*domain.CompanyProfile, error)
	}

	StatementSource interface {
		chain.Source
		IncomeStatement(ctx context.Context, symbol string) (*domain.IncomeStatement, error)
	}

	SeriesSource interface {
		chain.Source
		DailySeries(ctx context.Context, symbol string) (*domain.Series, error)
	}

	MacroSource interface {
		chain.Source
		MacroSnapshot(ctx context.Context) (*domain.MacroSnapshot, error)
	}

	SectorSource interface {
		chain.Source
		SectorPerformance(ctx context.Context) ([]domain.SectorPerformance, error)
	}

	ScreenSource interface {
		chain.Source
		Screen(ctx context.Context, criteria domain.ScreenCriteria) ([]domain.ScreeningRow, error)
	}
)

// Service exposes one operation per logical data type.
type Service struct {
	engine *chain.Engine
	store  *degrade.Store
	logger *slog.Logger
}

// New wires the facade. store may be nil when degraded fallback is not
// wanted (tests).
func New(engine *chain.Engine, store *degrade.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{engine: engine, store: store, logger: logger}
}

// StockQuote fetches a current quote through the stock-quote chain.
func (s *Service) StockQuote(ctx context.Context, symbol string) chain.Result[*domain.Quote] {
	return chain.FetchWithFallback(ctx, s.engine, KeyStockQuote,
		func(ctx context.Context, src chain.Source) (*domain.Quote, error) {
			qs, ok := src.(QuoteSource)
			if !ok {
				return nil, failure.Validation(src.SourceName(), "source does not serve stock quotes")
			}
			return qs.Quote(ctx, symbol)
		})
}

// CompanyProfile fetches a company profile through the company-profile
// chain.
func (s *Service) CompanyProfile(ctx context.Context, symbol string) chain.Result[*domain.CompanyProfile] {
	return chain.FetchWithFallback(ctx, s.engine, KeyCompanyProfile,
		func(ctx context.Context, src chain.Source) (*domain.CompanyProfile, error) {
			ps, ok := src.(ProfileSource)
			if !ok {
				return nil, failure.Validation(src.SourceName(), "source does not serve company profiles")
			}
			return ps.CompanyProfile(ctx, symbol)
		})
}

// IncomeStatement fetches the latest annual income statement.
func (s *Service) IncomeStatement(ctx context.Context, symbol string) chain.Result[*domain.IncomeStatement] {
	return chain.FetchWithFallback(ctx, s.engine, KeyIncomeStatement,
		func(ctx context.Context, src chain.Source) (*domain.IncomeStatement, error) {
			ss, ok := src.(StatementSource)
			if !ok {
				return nil, failure.Validation(src.SourceName(), "source does not serve income statements")
			}
			return ss.IncomeStatement(ctx, symbol)
		})
}

// DailySeries fetches the daily close series for a symbol.
func (s *Service) DailySeries(ctx context.Context, symbol string) chain.Result[*domain.Series] {
	return chain.FetchWithFallback(ctx, s.engine, KeyDailySeries,
		func(ctx context.Context, src chain.Source) (*domain.Series, error) {
			ds, ok := src.(SeriesSource)
			if !ok {
				return nil, failure.Validation(src.SourceName(), "source does not serve daily series")
			}
			return ds.DailySeries(ctx, symbol)
		})
}

// MacroSnapshot fetches the macro indicator snapshot, falling back to the
// degraded cache when every live source is exhausted.
func (s *Service) MacroSnapshot(ctx context.Context) chain.Result[*domain.MacroSnapshot] {
	return fetchCached(ctx, s, KeyMacroSnapshot,
		func(ctx context.Context, src chain.Source) (*domain.MacroSnapshot, error) {
			ms, ok := src.(MacroSource)
			if !ok {
				return nil, failure.Validation(src.SourceName(), "source does not serve macro data")
			}
			return ms.MacroSnapshot(ctx)
		})
}

// SectorPerformance fetches the sector performance table, falling back to
// the degraded cache when every live source is exhausted.
func (s *Service) SectorPerformance(ctx context.Context) chain.Result[[]domain.SectorPerformance] {
	return fetchCached(ctx, s, KeySectorPerformance,
		func(ctx context.Context, src chain.Source) ([]domain.SectorPerformance, error) {
			ss, ok := src.(SectorSource)
			if !ok {
				return nil, failure.Validation(src.SourceName(), "source does not serve sector performance")
			}
			return ss.SectorPerformance(ctx)
		})
}

// Screen runs a stock screen, falling back to the most recent cached
// screening result when every live source is exhausted.
func (s *Service) Screen(ctx context.Context, criteria domain.ScreenCriteria) chain.Result[[]domain.ScreeningRow] {
	return fetchCached(ctx, s, KeyStockScreening,
		func(ctx context.Context, src chain.Source) ([]domain.ScreeningRow, error) {
			sc, ok := src.(ScreenSource)
			if !ok {
				return nil, failure.Validation(src.SourceName(), "source does not serve stock screening")
			}
			return sc.Screen(ctx, criteria)
		})
}

// AnalystSentiment is an optional workflow input with no live source. It
// always returns the synthetic fallback so the workflow never blocks on it.
func (s *Service) AnalystSentiment(context.Context) chain.Result[any] {
	fb := degrade.Synthetic("Analyst sentiment data is unavailable; continuing without it")
	return chain.Result[any]{Warnings: fb.Warnings}
}

// TechnicalTrend is an optional workflow input with no live source. It
// always returns the synthetic fallback so the workflow never blocks on it.
func (s *Service) TechnicalTrend(context.Context) chain.Result[any] {
	fb := degrade.Synthetic("Technical trend data is unavailable; continuing without it")
	return chain.Result[any]{Warnings: fb.Warnings}
}

// fetchCached walks the chain and keeps the degraded cache primed on
// success. When the chain is exhausted it serves the cached snapshot, if
// any, attributed to the degraded-cache pseudo-source.
func fetchCached[T any](ctx context.Context, s *Service, key string, fn chain.FetchFunc[T]) chain.Result[T] {
	res := chain.FetchWithFallback(ctx, s.engine, key, fn)
	if s.store == nil {
		return res
	}

	if res.Source != "" {
		s.store.Put(key, res.Data)
		return res
	}

	fb := s.store.Fallback(key)
	if fb.Data == nil {
		res.Warnings = append(res.Warnings, fb.Warnings...)
		return res
	}
	data, ok := fb.Data.(T)
	if !ok {
		s.logger.Warn("degraded cache held unexpected type", "data_type", key)
		return res
	}

	res.Data = data
	res.Source = DegradedSource
	res.UsedFallback = true
	res.Warnings = append(res.Warnings, fb.Warnings...)
	return res
}
