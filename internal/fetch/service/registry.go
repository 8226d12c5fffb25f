package service

import (
	"fmt"
	"log/slog"
	"time"

	"marketfetch/internal/core/config"
	"marketfetch/internal/fetch/adapter"
	"marketfetch/internal/fetch/chain"
	"marketfetch/internal/fetch/degrade"
	"marketfetch/internal/fetch/errlog"
	"marketfetch/internal/fetch/memoize"
	"marketfetch/internal/provider/alphavantage"
	"marketfetch/internal/provider/finnhub"
	"marketfetch/internal/provider/fmp"
	"marketfetch/internal/provider/fred"
)

// Provider identifiers accepted in configuration.
const (
	ProviderFMP          = "fmp"
	ProviderAlphaVantage = "alphavantage"
	ProviderFinnhub      = "finnhub"
	ProviderFRED         = "fred"
)

var displayNames = map[string]string{
	ProviderFMP:          fmp.SourceName,
	ProviderAlphaVantage: alphavantage.SourceName,
	ProviderFinnhub:      finnhub.SourceName,
	ProviderFRED:         fred.SourceName,
}

// client is what every provider client exposes beyond chain.Source.
type client interface {
	chain.Source
	State() adapter.State
	Close() error
}

// Registry is the fully wired fetch layer: the facade, its collaborators,
// and the provider clients needed for health reporting and shutdown.
type Registry struct {
	Service *Service
	Engine  *chain.Engine
	Store   *degrade.Store
	Log     *errlog.Log

	clients map[string]client
	redis   *memoize.Redis
}

// Build constructs every configured provider client, registers the
// fallback chains, and returns the wired registry. A provider whose
// credential is missing keeps its chain slot through an unconfigured
// placeholder; Build fails only on structural problems such as an unknown
// provider name or an unreachable Redis backend.
func Build(cfg *config.AppConfig, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}

	log := errlog.New(0, logger)
	engine := chain.NewEngine(chain.WithErrorLog(log), chain.WithLogger(logger))
	store := degrade.NewStore(map[string]time.Duration{
		KeyMacroSnapshot:     cfg.Cache.MacroTTL,
		KeySectorPerformance: cfg.Cache.SectorTTL,
		KeyStockScreening:    cfg.Cache.ScreeningTTL,
	}, cfg.Cache.ScreeningTTL)

	r := &Registry{
		Service: New(engine, store, logger),
		Engine:  engine,
		Store:   store,
		Log:     log,
		clients: make(map[string]client),
	}

	memo, err := r.buildMemoizer(cfg.Cache, logger)
	if err != nil {
		return nil, err
	}

	sources := make(map[string]chain.Source)
	opts := []adapter.Option{adapter.WithErrorLog(log), adapter.WithLogger(logger)}

	for _, pc := range cfg.Providers {
		c, err := buildClient(pc, memo, opts)
		if err != nil {
			// Missing credential: keep the chain slot so traversal
			// reports the skip instead of silently shrinking.
			name := displayNames[pc.Name]
			if name == "" {
				name = pc.Name
			}
			logger.Warn("provider not configured", "provider", name, "error", err)
			sources[pc.Name] = chain.Unconfigured(name)
			continue
		}
		r.clients[pc.Name] = c
		sources[pc.Name] = c
	}

	chains := cfg.Chains
	if len(chains) == 0 {
		chains = defaultChains()
	}
	for _, cc := range chains {
		engine.Register(cc.DataType, chain.Chain{
			Primary:   resolve(sources, cc.Primary),
			Fallbacks: resolveAll(sources, cc.Fallbacks),
		})
	}

	return r, nil
}

// States reports every constructed adapter's state for health endpoints.
func (r *Registry) States() []adapter.State {
	out := make([]adapter.State, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c.State())
	}
	return out
}

// Close stops every adapter and the Redis backend, if any.
func (r *Registry) Close() error {
	var first error
	for _, c := range r.clients {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	if r.redis != nil {
		if err := r.redis.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (r *Registry) buildMemoizer(cfg config.CacheConfig, logger *slog.Logger) (*memoize.Memoizer, error) {
	switch cfg.Backend {
	case "", "memory":
		return memoize.New(memoize.NewMemory()), nil
	case "redis":
		rc, err := memoize.NewRedis(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("cache backend: %w", err)
		}
		r.redis = rc
		logger.Info("memoization backed by redis")
		return memoize.New(rc), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

func buildClient(pc config.ProviderConfig, memo *memoize.Memoizer, opts []adapter.Option) (client, error) {
	switch pc.Name {
	case ProviderFMP:
		return fmp.New(fmp.Config{
			APIKey:            pc.APIKey,
			BaseURL:           pc.BaseURL,
			RequestsPerMinute: pc.RequestsPerMinute,
			Memo:              memo,
		}, opts...)
	case ProviderAlphaVantage:
		return alphavantage.New(alphavantage.Config{
			APIKey:            pc.APIKey,
			BaseURL:           pc.BaseURL,
			RequestsPerMinute: pc.RequestsPerMinute,
			Memo:              memo,
		}, opts...)
	case ProviderFinnhub:
		return finnhub.New(finnhub.Config{
			APIKey:            pc.APIKey,
			BaseURL:           pc.BaseURL,
			RequestsPerMinute: pc.RequestsPerMinute,
			Memo:              memo,
		}, opts...)
	case ProviderFRED:
		return fred.New(fred.Config{
			APIKey:            pc.APIKey,
			BaseURL:           pc.BaseURL,
			RequestsPerMinute: pc.RequestsPerMinute,
			Memo:              memo,
		}, opts...)
	default:
		return nil, fmt.Errorf("unknown provider %q", pc.Name)
	}
}

// defaultChains is the documented source ordering used when the
// configuration registers no chains of its own.
func defaultChains() []config.ChainConfig {
	return []config.ChainConfig{
		{DataType: KeyStockQuote, Primary: ProviderFMP, Fallbacks: []string{ProviderAlphaVantage, ProviderFinnhub}},
		{DataType: KeyCompanyProfile, Primary: ProviderFMP, Fallbacks: []string{ProviderFinnhub}},
		{DataType: KeyIncomeStatement, Primary: ProviderFMP},
		{DataType: KeyDailySeries, Primary: ProviderAlphaVantage},
		{DataType: KeyMacroSnapshot, Primary: ProviderFRED, Fallbacks: []string{ProviderAlphaVantage}},
		{DataType: KeySectorPerformance, Primary: ProviderFMP},
		{DataType: KeyStockScreening, Primary: ProviderFMP},
	}
}

func resolve(sources map[string]chain.Source, name string) chain.Source {
	if name == "" {
		return nil
	}
	if src, ok := sources[name]; ok {
		return src
	}
	display := displayNames[name]
	if display == "" {
		display = name
	}
	return chain.Unconfigured(display)
}

func resolveAll(sources map[string]chain.Source, names []string) []chain.Source {
	out := make([]chain.Source, 0, len(names))
	for _, n := range names {
		out = append(out, resolve(sources, n))
	}
	return out
}
