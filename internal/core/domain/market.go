// Package domain defines the normalized market-data records returned by
// typed provider operations. Optional numeric fields are pointers: a
// provider denoting "no value" yields nil, never zero, so downstream math
// is never corrupted by false zeros. Volume is the documented exception — a
// missing volume defaults to zero.
package domain

import "time"

// Quote is a normalized current quote for one symbol.
type Quote struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	Change        *float64  `json:"change,omitempty"`
	ChangePercent *float64  `json:"change_percent,omitempty"`
	PreviousClose *float64  `json:"previous_close,omitempty"`
	DayHigh       *float64  `json:"day_high,omitempty"`
	DayLow        *float64  `json:"day_low,omitempty"`
	Volume        int64     `json:"volume"`
	MarketCap     *float64  `json:"market_cap,omitempty"`
	PERatio       *float64  `json:"pe_ratio,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// CompanyProfile is a normalized company description.
type CompanyProfile struct {
	Symbol      string   `json:"symbol"`
	Name        string   `json:"name"`
	Exchange    string   `json:"exchange,omitempty"`
	Sector      string   `json:"sector,omitempty"`
	Industry    string   `json:"industry,omitempty"`
	Country     string   `json:"country,omitempty"`
	Website     string   `json:"website,omitempty"`
	Description string   `json:"description,omitempty"`
	MarketCap   *float64 `json:"market_cap,omitempty"`
	Beta        *float64 `json:"beta,omitempty"`
	Employees   *int64   `json:"employees,omitempty"`
}

// IncomeStatement is one reported fiscal period.
type IncomeStatement struct {
	Symbol          string   `json:"symbol"`
	FiscalDate      string   `json:"fiscal_date"`
	Period          string   `json:"period"` // "annual" or "quarter"
	Currency        string   `json:"currency,omitempty"`
	Revenue         *float64 `json:"revenue,omitempty"`
	GrossProfit     *float64 `json:"gross_profit,omitempty"`
	OperatingIncome *float64 `json:"operating_income,omitempty"`
	NetIncome       *float64 `json:"net_income,omitempty"`
	EPS             *float64 `json:"eps,omitempty"`
}

// SeriesPoint is one observation of a time series.
type SeriesPoint struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// Series is a historical price or macro series, newest point last.
type Series struct {
	ID     string        `json:"id"`
	Name   string        `json:"name,omitempty"`
	Points []SeriesPoint `json:"points"`
}

// MacroIndicator is the latest value of one macro series.
type MacroIndicator struct {
	SeriesID string  `json:"series_id"`
	Name     string  `json:"name"`
	Value    float64 `json:"value"`
	Date     string  `json:"date"`
}

// MacroSnapshot groups the macro indicators used by the research workflow.
type MacroSnapshot struct {
	AsOf       time.Time        `json:"as_of"`
	Indicators []MacroIndicator `json:"indicators"`
}

// SectorPerformance is one sector's daily change.
type SectorPerformance struct {
	Sector        string  `json:"sector"`
	ChangePercent float64 `json:"change_percent"`
}

// ScreenCriteria narrows a stock screen.
type ScreenCriteria struct {
	Sector       string   `json:"sector,omitempty"`
	MarketCapMin *float64 `json:"market_cap_min,omitempty"`
	MarketCapMax *float64 `json:"market_cap_max,omitempty"`
	Limit        int      `json:"limit,omitempty"`
}

// ScreeningRow is one stock returned by a screen.
type ScreeningRow struct {
	Symbol    string   `json:"symbol"`
	Name      string   `json:"name"`
	Sector    string   `json:"sector,omitempty"`
	Price     *float64 `json:"price,omitempty"`
	MarketCap *float64 `json:"market_cap,omitempty"`
	Beta      *float64 `json:"beta,omitempty"`
}
