// Command quote is a one-shot CLI for exercising the fetch layer: it runs
// a single data-type fetch through the fallback chains and prints the soft
// result as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"

	"marketfetch/internal/core/config"
	"marketfetch/internal/fetch/service"
)

func main() {
	symbol := flag.String("symbol", "AAPL", "Ticker symbol")
	dataType := flag.String("type", service.KeyStockQuote,
		"Data type: stock-quote, company-profile, income-statement, daily-series, macro-snapshot, sector-performance")
	timeout := flag.Duration("timeout", 60*time.Second, "Overall fetch timeout")
	flag.Parse()

	_ = godotenv.Load()

	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelWarn,
		TimeFormat: time.Kitchen,
	}))
	slog.SetDefault(logger)

	registry, err := service.Build(config.Default(), logger)
	if err != nil {
		slog.Error("Failed to build fetch layer", "error", err)
		os.Exit(1)
	}
	defer registry.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	out, err := run(ctx, registry.Service, *dataType, *symbol)
	if err != nil {
		slog.Error("Fetch failed", "error", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		slog.Error("Encode failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, svc *service.Service, dataType, symbol string) (any, error) {
	switch dataType {
	case service.KeyStockQuote:
		return svc.StockQuote(ctx, symbol), nil
	case service.KeyCompanyProfile:
		return svc.CompanyProfile(ctx, symbol), nil
	case service.KeyIncomeStatement:
		return svc.IncomeStatement(ctx, symbol), nil
	case service.KeyDailySeries:
		return svc.DailySeries(ctx, symbol), nil
	case service.KeyMacroSnapshot:
		return svc.MacroSnapshot(ctx), nil
	case service.KeySectorPerformance:
		return svc.SectorPerformance(ctx), nil
	default:
		return nil, fmt.Errorf("unknown data type %q", dataType)
	}
}
