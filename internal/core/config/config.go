package config

import (
	"time"

	"marketfetch/internal/fetch/memoize"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server    ServerConfig     `yaml:"server"`
	Logging   LoggingConfig    `yaml:"logging"`
	Providers []ProviderConfig `yaml:"providers"`
	Chains    []ChainConfig    `yaml:"chains"`
	Cache     CacheConfig      `yaml:"cache"`
}

// ServerConfig holds health/metrics server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// ProviderConfig holds settings for one external data provider. Name must
// be one of the known provider identifiers (fmp, alphavantage, finnhub,
// fred).
type ProviderConfig struct {
	Name              string `yaml:"name"`
	APIKey            string `yaml:"api_key"`
	BaseURL           string `yaml:"base_url"` // override, mainly for tests
	RequestsPerMinute int    `yaml:"requests_per_minute"`
}

// ChainConfig registers one fallback chain: an ordered provider list for a
// logical data type.
type ChainConfig struct {
	DataType  string   `yaml:"data_type"`
	Primary   string   `yaml:"primary"`
	Fallbacks []string `yaml:"fallbacks"`
}

// CacheConfig holds the caching-decorator backend and the degraded-cache
// TTLs.
type CacheConfig struct {
	Backend string              `yaml:"backend"` // "memory" (default) or "redis"
	Redis   memoize.RedisConfig `yaml:"redis"`

	MacroTTL     time.Duration `yaml:"macro_ttl"`
	SectorTTL    time.Duration `yaml:"sector_ttl"`
	ScreeningTTL time.Duration `yaml:"screening_ttl"`
}
