// Package fmp adapts Financial Modeling Prep. It serves quotes, company
// profiles, income statements, sector performance and stock screening.
package fmp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"marketfetch/internal/core/domain"
	"marketfetch/internal/fetch/adapter"
	"marketfetch/internal/fetch/failure"
	"marketfetch/internal/fetch/memoize"
)

// SourceName is the documented display name, unique per provider.
const SourceName = "Financial Modeling Prep"

const (
	defaultBaseURL = "https://financialmodelingprep.com/api/v3"
	defaultRPM     = 5

	quoteTTL     = 30 * time.Second
	profileTTL   = 24 * time.Hour
	statementTTL = 24 * time.Hour
	sectorTTL    = 10 * time.Minute
	screenTTL    = 15 * time.Minute
)

// Config holds per-deployment settings.
type Config struct {
	APIKey            string
	BaseURL           string
	RequestsPerMinute int
	Memo              *memoize.Memoizer
}

// Client exposes FMP's typed fetch operations over the shared adapter
// engine.
type Client struct {
	a    *adapter.Adapter
	memo *memoize.Memoizer
}

// Profile returns the adapter strategy for FMP.
func Profile(cfg Config) adapter.Profile {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = defaultRPM
	}
	return adapter.Profile{
		Name:              SourceName,
		BaseURL:           baseURL,
		RequestsPerMinute: rpm,
		CredentialEnv:     "FMP_API_KEY",
		Authorize: func(params url.Values, _ http.Header, credential string) {
			params.Set("apikey", credential)
		},
		ClassifySentinel: classifySentinel,
	}
}

// classifySentinel detects FMP's error envelope, delivered with status 200.
func classifySentinel(payload []byte) *failure.Failure {
	var sentinel struct {
		ErrorMessage string `json:"Error Message"`
	}
	if err := json.Unmarshal(payload, &sentinel); err != nil || sentinel.ErrorMessage == "" {
		return nil
	}
	return failure.Classify(fmt.Errorf("%s", sentinel.ErrorMessage), SourceName)
}

// New constructs the FMP client. Fails with a Configuration failure when no
// API key is available.
func New(cfg Config, opts ...adapter.Option) (*Client, error) {
	if cfg.APIKey != "" {
		opts = append(opts, adapter.WithCredential(cfg.APIKey))
	}
	a, err := adapter.New(Profile(cfg), opts...)
	if err != nil {
		return nil, err
	}
	return &Client{a: a, memo: cfg.Memo}, nil
}

// SourceName implements chain.Source.
func (c *Client) SourceName() string { return c.a.SourceName() }

// IsConfigured implements chain.Source.
func (c *Client) IsConfigured() bool { return c.a.IsConfigured() }

// State exposes the adapter state for health reporting.
func (c *Client) State() adapter.State { return c.a.State() }

// Close stops the underlying adapter.
func (c *Client) Close() error { return c.a.Close() }

type wireQuote struct {
	Symbol            string   `json:"symbol"`
	Price             *float64 `json:"price"`
	Change            *float64 `json:"change"`
	ChangesPercentage *float64 `json:"changesPercentage"`
	DayLow            *float64 `json:"dayLow"`
	DayHigh           *float64 `json:"dayHigh"`
	PreviousClose     *float64 `json:"previousClose"`
	Volume            *int64   `json:"volume"`
	MarketCap         *float64 `json:"marketCap"`
	PE                *float64 `json:"pe"`
}

// Quote fetches the current quote for symbol.
func (c *Client) Quote(ctx context.Context, symbol string) (*domain.Quote, error) {
	req := adapter.Request{Endpoint: "/quote/" + url.PathEscape(symbol)}
	return memoize.Do(ctx, c.memo, req.CacheKey(SourceName), quoteTTL,
		func(ctx context.Context) (*domain.Quote, error) {
			var rows []wireQuote
			resp, err := c.fetch(ctx, req, &rows)
			if err != nil {
				return nil, err
			}
			if len(rows) == 0 || rows[0].Price == nil {
				return nil, failure.NotFound(SourceName, "no quote data for "+symbol)
			}
			w := rows[0]
			q := &domain.Quote{
				Symbol:        w.Symbol,
				Price:         *w.Price,
				Change:        w.Change,
				ChangePercent: w.ChangesPercentage,
				PreviousClose: w.PreviousClose,
				DayHigh:       w.DayHigh,
				DayLow:        w.DayLow,
				MarketCap:     w.MarketCap,
				PERatio:       w.PE,
				Timestamp:     resp.Timestamp,
			}
			// Missing volume is documented as zero, not null.
			if w.Volume != nil {
				q.Volume = *w.Volume
			}
			return q, nil
		})
}

type wireProfile struct {
	Symbol            string   `json:"symbol"`
	CompanyName       string   `json:"companyName"`
	ExchangeShortName string   `json:"exchangeShortName"`
	Sector            string   `json:"sector"`
	Industry          string   `json:"industry"`
	Country           string   `json:"country"`
	Website           string   `json:"website"`
	Description       string   `json:"description"`
	MktCap            *float64 `json:"mktCap"`
	Beta              *float64 `json:"beta"`
	FullTimeEmployees string   `json:"fullTimeEmployees"`
}

// CompanyProfile fetches the company profile for symbol.
func (c *Client) CompanyProfile(ctx context.Context, symbol string) (*domain.CompanyProfile, error) {
	req := adapter.Request{Endpoint: "/profile/" + url.PathEscape(symbol)}
	return memoize.Do(ctx, c.memo, req.CacheKey(SourceName), profileTTL,
		func(ctx context.Context) (*domain.CompanyProfile, error) {
			var rows []wireProfile
			if _, err := c.fetch(ctx, req, &rows); err != nil {
				return nil, err
			}
			if len(rows) == 0 || rows[0].CompanyName == "" {
				return nil, failure.NotFound(SourceName, "no profile data for "+symbol)
			}
			w := rows[0]
			p := &domain.CompanyProfile{
				Symbol:      w.Symbol,
				Name:        w.CompanyName,
				Exchange:    w.ExchangeShortName,
				Sector:      w.Sector,
				Industry:    w.Industry,
				Country:     w.Country,
				Website:     w.Website,
				Description: w.Description,
				MarketCap:   w.MktCap,
				Beta:        w.Beta,
			}
			// FMP reports employees as a string.
			if n, err := strconv.ParseInt(w.FullTimeEmployees, 10, 64); err == nil {
				p.Employees = &n
			}
			return p, nil
		})
}

type wireStatement struct {
	Date             string   `json:"date"`
	Period           string   `json:"period"`
	ReportedCurrency string   `json:"reportedCurrency"`
	Revenue          *float64 `json:"revenue"`
	GrossProfit      *float64 `json:"grossProfit"`
	OperatingIncome  *float64 `json:"operatingIncome"`
	NetIncome        *float64 `json:"netIncome"`
	EPS              *float64 `json:"eps"`
}

// IncomeStatement fetches the most recent annual income statement.
func (c *Client) IncomeStatement(ctx context.Context, symbol string) (*domain.IncomeStatement, error) {
	params := url.Values{}
	params.Set("period", "annual")
	params.Set("limit", "1")
	req := adapter.Request{
		Endpoint: "/income-statement/" + url.PathEscape(symbol),
		Params:   params,
	}
	return memoize.Do(ctx, c.memo, req.CacheKey(SourceName), statementTTL,
		func(ctx context.Context) (*domain.IncomeStatement, error) {
			var rows []wireStatement
			if _, err := c.fetch(ctx, req, &rows); err != nil {
				return nil, err
			}
			if len(rows) == 0 || rows[0].Date == "" {
				return nil, failure.NotFound(SourceName, "no income statement for "+symbol)
			}
			w := rows[0]
			return &domain.IncomeStatement{
				Symbol:          symbol,
				FiscalDate:      w.Date,
				Period:          "annual",
				Currency:        w.ReportedCurrency,
				Revenue:         w.Revenue,
				GrossProfit:     w.GrossProfit,
				OperatingIncome: w.OperatingIncome,
				NetIncome:       w.NetIncome,
				EPS:             w.EPS,
			}, nil
		})
}

// SectorPerformance fetches the daily sector performance table.
func (c *Client) SectorPerformance(ctx context.Context) ([]domain.SectorPerformance, error) {
	req := adapter.Request{Endpoint: "/sector-performance"}
	return memoize.Do(ctx, c.memo, req.CacheKey(SourceName), sectorTTL,
		func(ctx context.Context) ([]domain.SectorPerformance, error) {
			var payload struct {
				SectorPerformance []struct {
					Sector            string `json:"sector"`
					ChangesPercentage string `json:"changesPercentage"`
				} `json:"sectorPerformance"`
			}
			if _, err := c.fetch(ctx, req, &payload); err != nil {
				return nil, err
			}
			if len(payload.SectorPerformance) == 0 {
				return nil, failure.NotFound(SourceName, "no sector performance data")
			}
			out := make([]domain.SectorPerformance, 0, len(payload.SectorPerformance))
			for _, row := range payload.SectorPerformance {
				pct, err := parsePercent(row.ChangesPercentage)
				if err != nil {
					return nil, failure.Validation(SourceName,
						fmt.Sprintf("bad sector change %q: %v", row.ChangesPercentage, err))
				}
				out = append(out, domain.SectorPerformance{
					Sector:        row.Sector,
					ChangePercent: pct,
				})
			}
			return out, nil
		})
}

type wireScreenRow struct {
	Symbol      string   `json:"symbol"`
	CompanyName string   `json:"companyName"`
	Sector      string   `json:"sector"`
	Price       *float64 `json:"price"`
	MarketCap   *float64 `json:"marketCap"`
	Beta        *float64 `json:"beta"`
}

// Screen runs a stock screen with the given criteria.
func (c *Client) Screen(ctx context.Context, criteria domain.ScreenCriteria) ([]domain.ScreeningRow, error) {
	params := url.Values{}
	if criteria.Sector != "" {
		params.Set("sector", criteria.Sector)
	}
	if criteria.MarketCapMin != nil {
		params.Set("marketCapMoreThan", strconv.FormatFloat(*criteria.MarketCapMin, 'f', 0, 64))
	}
	if criteria.MarketCapMax != nil {
		params.Set("marketCapLowerThan", strconv.FormatFloat(*criteria.MarketCapMax, 'f', 0, 64))
	}
	limit := criteria.Limit
	if limit <= 0 {
		limit = 25
	}
	params.Set("limit", strconv.Itoa(limit))

	req := adapter.Request{Endpoint: "/stock-screener", Params: params}
	return memoize.Do(ctx, c.memo, req.CacheKey(SourceName), screenTTL,
		func(ctx context.Context) ([]domain.ScreeningRow, error) {
			var rows []wireScreenRow
			if _, err := c.fetch(ctx, req, &rows); err != nil {
				return nil, err
			}
			if len(rows) == 0 {
				return nil, failure.NotFound(SourceName, "screen returned no results")
			}
			out := make([]domain.ScreeningRow, 0, len(rows))
			for _, w := range rows {
				out = append(out, domain.ScreeningRow{
					Symbol:    w.Symbol,
					Name:      w.CompanyName,
					Sector:    w.Sector,
					Price:     w.Price,
					MarketCap: w.MarketCap,
					Beta:      w.Beta,
				})
			}
			return out, nil
		})
}

func (c *Client) fetch(ctx context.Context, req adapter.Request, out any) (*adapter.Response, error) {
	resp, err := c.a.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(resp.Payload, out); err != nil {
		return nil, failure.Validation(SourceName,
			fmt.Sprintf("decode %s: %v", req.Endpoint, err))
	}
	return resp, nil
}

// parsePercent parses FMP's "1.23%" strings.
func parsePercent(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(s), "%"), 64)
}
