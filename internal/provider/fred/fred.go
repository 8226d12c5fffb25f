// Package fred adapts the St. Louis Fed's FRED API for macro series.
package fred

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"marketfetch/internal/core/domain"
	"marketfetch/internal/fetch/adapter"
	"marketfetch/internal/fetch/failure"
	"marketfetch/internal/fetch/memoize"
)

// SourceName is the documented display name, unique per provider.
const SourceName = "FRED"

const (
	defaultBaseURL = "https://api.stlouisfed.org/fred"
	defaultRPM     = 60

	seriesTTL = time.Hour
)

// Config holds per-deployment settings.
type Config struct {
	APIKey            string
	BaseURL           string
	RequestsPerMinute int
	Memo              *memoize.Memoizer
}

// Client exposes FRED's typed fetch operations.
type Client struct {
	a    *adapter.Adapter
	memo *memoize.Memoizer
}

// Profile returns the adapter strategy for FRED.
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
		CredentialEnv:     "FRED_API_KEY",
		Authorize: func(params url.Values, _ http.Header, credential string) {
			params.Set("api_key", credential)
			params.Set("file_type", "json")
		},
	}
}

// New constructs the FRED client.
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

// macroSeries are the FRED series composing the macro snapshot.
var macroSeries = []struct {
	id   string
	name string
}{
	{"CPIAUCSL", "Consumer Price Index"},
	{"GDPC1", "Real GDP"},
	{"FEDFUNDS", "Federal Funds Rate"},
}

// Series fetches the observations of one FRED series, oldest first.
// Observations FRED marks with "." carry no value and are skipped.
func (c *Client) Series(ctx context.Context, seriesID, name string) (*domain.Series, error) {
	params := url.Values{}
	params.Set("series_id", seriesID)
	params.Set("sort_order", "asc")
	params.Set("limit", "120")
	req := adapter.Request{Endpoint: "/series/observations", Params: params}

	return memoize.Do(ctx, c.memo, req.CacheKey(SourceName), seriesTTL,
		func(ctx context.Context) (*domain.Series, error) {
			var payload struct {
				Observations []struct {
					Date  string `json:"date"`
					Value string `json:"value"`
				} `json:"observations"`
			}
			resp, err := c.a.Fetch(ctx, req)
			if err != nil {
				return nil, err
			}
			if err := json.Unmarshal(resp.Payload, &payload); err != nil {
				return nil, failure.Validation(SourceName,
					fmt.Sprintf("decode observations for %s: %v", seriesID, err))
			}
			if len(payload.Observations) == 0 {
				return nil, failure.NotFound(SourceName, "no observations for series "+seriesID)
			}

			series := &domain.Series{ID: seriesID, Name: name}
			for _, obs := range payload.Observations {
				v, err := strconv.ParseFloat(obs.Value, 64)
				if err != nil {
					continue
				}
				series.Points = append(series.Points, domain.SeriesPoint{Date: obs.Date, Value: v})
			}
			if len(series.Points) == 0 {
				return nil, failure.NotFound(SourceName,
					"series "+seriesID+" has no valued observations")
			}
			return series, nil
		})
}

// MacroSnapshot fetches the latest value of each macro series. The adapter
// queue serializes the underlying calls.
func (c *Client) MacroSnapshot(ctx context.Context) (*domain.MacroSnapshot, error) {
	snap := &domain.MacroSnapshot{AsOf: time.Now()}
	for _, m := range macroSeries {
		series, err := c.Series(ctx, m.id, m.name)
		if err != nil {
			return nil, err
		}
		latest := series.Points[len(series.Points)-1]
		snap.Indicators = append(snap.Indicators, domain.MacroIndicator{
			SeriesID: m.id,
			Name:     m.name,
			Value:    latest.Value,
			Date:     latest.Date,
		})
	}
	return snap, nil
}
