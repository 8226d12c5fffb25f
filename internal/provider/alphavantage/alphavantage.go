// Package alphavantage adapts Alpha Vantage. It serves quotes, daily price
// series and macro indicator series.
//
// Alpha Vantage delivers rate-limit notices as HTTP 200 payloads with a
// "Note" or "Information" field; the sentinel classifier turns those into
// RateLimit failures so the retry and fallback machinery sees them.
package alphavantage

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"marketfetch/internal/core/domain"
	"marketfetch/internal/fetch/adapter"
	"marketfetch/internal/fetch/failure"
	"marketfetch/internal/fetch/memoize"
)

// SourceName is the documented display name, unique per provider.
const SourceName = "Alpha Vantage"

const (
	defaultBaseURL = "https://www.alphavantage.co"
	defaultRPM     = 5

	quoteTTL  = 30 * time.Second
	seriesTTL = time.Hour
	macroTTL  = time.Hour
)

// Config holds per-deployment settings.
type Config struct {
	APIKey            string
	BaseURL           string
	RequestsPerMinute int
	Memo              *memoize.Memoizer
}

// Client exposes Alpha Vantage's typed fetch operations.
type Client struct {
	a    *adapter.Adapter
	memo *memoize.Memoizer
}

// Profile returns the adapter strategy for Alpha Vantage.
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
		CredentialEnv:     "ALPHA_VANTAGE_API_KEY",
		Authorize: func(params url.Values, _ http.Header, credential string) {
			params.Set("apikey", credential)
		},
		ClassifySentinel: classifySentinel,
	}
}

// classifySentinel detects Alpha Vantage's 200-status failure payloads.
func classifySentinel(payload []byte) *failure.Failure {
	var sentinel struct {
		Note         string `json:"Note"`
		Information  string `json:"Information"`
		ErrorMessage string `json:"Error Message"`
	}
	if err := json.Unmarshal(payload, &sentinel); err != nil {
		return nil
	}
	switch {
	case sentinel.Note != "":
		return failure.RateLimit(SourceName, sentinel.Note, 0)
	case sentinel.Information != "":
		return failure.RateLimit(SourceName, sentinel.Information, 0)
	case sentinel.ErrorMessage != "":
		return failure.Classify(fmt.Errorf("%s", sentinel.ErrorMessage), SourceName)
	default:
		return nil
	}
}

// New constructs the Alpha Vantage client.
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

// Quote fetches the current quote for symbol.
func (c *Client) Quote(ctx context.Context, symbol string) (*domain.Quote, error) {
	params := url.Values{}
	params.Set("function", "GLOBAL_QUOTE")
	params.Set("symbol", symbol)
	req := adapter.Request{Endpoint: "/query", Params: params}

	return memoize.Do(ctx, c.memo, req.CacheKey(SourceName), quoteTTL,
		func(ctx context.Context) (*domain.Quote, error) {
			var payload struct {
				GlobalQuote map[string]string `json:"Global Quote"`
			}
			resp, err := c.fetch(ctx, req, &payload)
			if err != nil {
				return nil, err
			}
			gq := payload.GlobalQuote
			if len(gq) == 0 || gq["05. price"] == "" {
				return nil, failure.NotFound(SourceName, "no quote data for "+symbol)
			}

			price, err := strconv.ParseFloat(gq["05. price"], 64)
			if err != nil {
				return nil, failure.Validation(SourceName,
					fmt.Sprintf("bad price %q for %s", gq["05. price"], symbol))
			}
			q := &domain.Quote{
				Symbol:        symbol,
				Price:         price,
				Change:        parseOptionalFloat(gq["09. change"]),
				ChangePercent: parseOptionalFloat(strings.TrimSuffix(gq["10. change percent"], "%")),
				PreviousClose: parseOptionalFloat(gq["08. previous close"]),
				DayHigh:       parseOptionalFloat(gq["03. high"]),
				DayLow:        parseOptionalFloat(gq["04. low"]),
				Timestamp:     resp.Timestamp,
			}
			// Missing volume is documented as zero, not null.
			if v, err := strconv.ParseInt(gq["06. volume"], 10, 64); err == nil {
				q.Volume = v
			}
			return q, nil
		})
}

// DailySeries fetches the daily close series for symbol, oldest first.
func (c *Client) DailySeries(ctx context.Context, symbol string) (*domain.Series, error) {
	params := url.Values{}
	params.Set("function", "TIME_SERIES_DAILY")
	params.Set("symbol", symbol)
	params.Set("outputsize", "compact")
	req := adapter.Request{Endpoint: "/query", Params: params}

	return memoize.Do(ctx, c.memo, req.CacheKey(SourceName), seriesTTL,
		func(ctx context.Context) (*domain.Series, error) {
			var payload struct {
				Series map[string]map[string]string `json:"Time Series (Daily)"`
			}
			if _, err := c.fetch(ctx, req, &payload); err != nil {
				return nil, err
			}
			if len(payload.Series) == 0 {
				return nil, failure.NotFound(SourceName, "no daily series for "+symbol)
			}

			dates := make([]string, 0, len(payload.Series))
			for d := range payload.Series {
				dates = append(dates, d)
			}
			sort.Strings(dates)

			series := &domain.Series{ID: symbol, Name: symbol + " daily close"}
			for _, d := range dates {
				px, err := strconv.ParseFloat(payload.Series[d]["4. close"], 64)
				if err != nil {
					continue
				}
				series.Points = append(series.Points, domain.SeriesPoint{Date: d, Value: px})
			}
			if len(series.Points) == 0 {
				return nil, failure.Validation(SourceName, "daily series had no parseable closes")
			}
			return series, nil
		})
}

// macroFunctions are the indicator endpoints composing the macro snapshot.
var macroFunctions = []struct {
	function string
	name     string
}{
	{"CPI", "Consumer Price Index"},
	{"REAL_GDP", "Real GDP"},
	{"FEDERAL_FUNDS_RATE", "Federal Funds Rate"},
}

// MacroSnapshot fetches the latest value of each macro indicator. The
// adapter queue serializes the underlying calls.
func (c *Client) MacroSnapshot(ctx context.Context) (*domain.MacroSnapshot, error) {
	snap := &domain.MacroSnapshot{AsOf: time.Now()}
	for _, m := range macroFunctions {
		indicator, err := c.macroIndicator(ctx, m.function, m.name)
		if err != nil {
			return nil, err
		}
		snap.Indicators = append(snap.Indicators, *indicator)
	}
	return snap, nil
}

func (c *Client) macroIndicator(ctx context.Context, function, name string) (*domain.MacroIndicator, error) {
	params := url.Values{}
	params.Set("function", function)
	req := adapter.Request{Endpoint: "/query", Params: params}

	return memoize.Do(ctx, c.memo, req.CacheKey(SourceName), macroTTL,
		func(ctx context.Context) (*domain.MacroIndicator, error) {
			var payload struct {
				Data []struct {
					Date  string `json:"date"`
					Value string `json:"value"`
				} `json:"data"`
			}
			if _, err := c.fetch(ctx, req, &payload); err != nil {
				return nil, err
			}
			// "." marks observations with no value.
			for _, obs := range payload.Data {
				v, err := strconv.ParseFloat(obs.Value, 64)
				if err != nil {
					continue
				}
				return &domain.MacroIndicator{
					SeriesID: function,
					Name:     name,
					Value:    v,
					Date:     obs.Date,
				}, nil
			}
			return nil, failure.NotFound(SourceName, "no observations for "+function)
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

// parseOptionalFloat returns nil for empty or unparseable values so absent
// fields stay null instead of becoming false zeros.
func parseOptionalFloat(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" || s == "None" || s == "-" || s == "." {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}
