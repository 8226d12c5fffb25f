// Package finnhub adapts Finnhub. It serves quotes and company profiles.
package finnhub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"marketfetch/internal/core/domain"
	"marketfetch/internal/fetch/adapter"
	"marketfetch/internal/fetch/failure"
	"marketfetch/internal/fetch/memoize"
)

// SourceName is the documented display name, unique per provider.
const SourceName = "Finnhub"

const (
	defaultBaseURL = "https://finnhub.io/api/v1"
	defaultRPM     = 60

	quoteTTL   = 30 * time.Second
	profileTTL = 24 * time.Hour
)

// Config holds per-deployment settings.
type Config struct {
	APIKey            string
	BaseURL           string
	RequestsPerMinute int
	Memo              *memoize.Memoizer
}

// Client exposes Finnhub's typed fetch operations.
type Client struct {
	a    *adapter.Adapter
	memo *memoize.Memoizer
}

// Profile returns the adapter strategy for Finnhub.
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
		CredentialEnv:     "FINNHUB_API_KEY",
		Authorize: func(params url.Values, _ http.Header, credential string) {
			params.Set("token", credential)
		},
	}
}

// New constructs the Finnhub client.
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

// Quote fetches the current quote for symbol. Finnhub signals an unknown
// symbol with an all-zero quote body rather than an error status.
func (c *Client) Quote(ctx context.Context, symbol string) (*domain.Quote, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	req := adapter.Request{Endpoint: "/quote", Params: params}

	return memoize.Do(ctx, c.memo, req.CacheKey(SourceName), quoteTTL,
		func(ctx context.Context) (*domain.Quote, error) {
			var w struct {
				Current       float64  `json:"c"`
				Change        *float64 `json:"d"`
				ChangePercent *float64 `json:"dp"`
				High          *float64 `json:"h"`
				Low           *float64 `json:"l"`
				PreviousClose *float64 `json:"pc"`
				Timestamp     int64    `json:"t"`
			}
			resp, err := c.fetch(ctx, req, &w)
			if err != nil {
				return nil, err
			}
			if w.Current == 0 && w.Timestamp == 0 {
				return nil, failure.NotFound(SourceName, "no quote data for "+symbol)
			}
			return &domain.Quote{
				Symbol:        symbol,
				Price:         w.Current,
				Change:        w.Change,
				ChangePercent: w.ChangePercent,
				PreviousClose: w.PreviousClose,
				DayHigh:       w.High,
				DayLow:        w.Low,
				Timestamp:     resp.Timestamp,
			}, nil
		})
}

// CompanyProfile fetches the company profile for symbol.
func (c *Client) CompanyProfile(ctx context.Context, symbol string) (*domain.CompanyProfile, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	req := adapter.Request{Endpoint: "/stock/profile2", Params: params}

	return memoize.Do(ctx, c.memo, req.CacheKey(SourceName), profileTTL,
		func(ctx context.Context) (*domain.CompanyProfile, error) {
			var w struct {
				Name                 string   `json:"name"`
				Ticker               string   `json:"ticker"`
				Exchange             string   `json:"exchange"`
				FinnhubIndustry      string   `json:"finnhubIndustry"`
				Country              string   `json:"country"`
				WebURL               string   `json:"weburl"`
				MarketCapitalization *float64 `json:"marketCapitalization"`
			}
			if _, err := c.fetch(ctx, req, &w); err != nil {
				return nil, err
			}
			// An unknown symbol yields an empty object.
			if w.Name == "" {
				return nil, failure.NotFound(SourceName, "no profile data for "+symbol)
			}
			p := &domain.CompanyProfile{
				Symbol:   w.Ticker,
				Name:     w.Name,
				Exchange: w.Exchange,
				Industry: w.FinnhubIndustry,
				Country:  w.Country,
				Website:  w.WebURL,
			}
			// Finnhub reports market cap in millions.
			if w.MarketCapitalization != nil {
				cap := *w.MarketCapitalization * 1e6
				p.MarketCap = &cap
			}
			return p, nil
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
