package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"marketfetch/internal/fetch/degrade"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Default builds a usable configuration without a file: all known providers
// with their documented free-tier quotas, keys taken from the environment
// at adapter construction.
func Default() *AppConfig {
	cfg := &AppConfig{
		Providers: []ProviderConfig{
			{Name: "fmp"},
			{Name: "alphavantage"},
			{Name: "finnhub"},
			{Name: "fred"},
		},
	}
	cfg.applyDefaults()
	return cfg
}

func (cfg *AppConfig) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = "memory"
	}
	if cfg.Cache.MacroTTL == 0 {
		cfg.Cache.MacroTTL = degrade.DefaultMacroTTL
	}
	if cfg.Cache.SectorTTL == 0 {
		cfg.Cache.SectorTTL = degrade.DefaultSectorTTL
	}
	if cfg.Cache.ScreeningTTL == 0 {
		cfg.Cache.ScreeningTTL = degrade.DefaultScreeningTTL
	}
}
