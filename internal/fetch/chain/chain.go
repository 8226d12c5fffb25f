// Package chain implements the fallback chain engine: an ordered registry
// of sources per logical data type and the sequential traversal that routes
// around failing providers.
//
// The engine is the single place where classified failures become a soft,
// continuable result. Adapters never swallow failures; the engine converts
// them into warnings so the calling workflow can decide whether to proceed,
// warn, or halt.
package chain

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"marketfetch/internal/fetch/errlog"
	"marketfetch/internal/fetch/failure"
	"marketfetch/internal/fetch/metrics"
)

// Source is the adapter-facing contract the engine depends on. It is
// deliberately tiny: the engine knows nothing about adapter internals.
type Source interface {
	SourceName() string
	IsConfigured() bool
}

// Chain is an ordered list of sources for one data type.
type Chain struct {
	Primary   Source
	Fallbacks []Source
}

// Result is the soft outcome of a chain traversal. Data is the zero value
// (nil for pointer types) when no source served the request.
type Result[T any] struct {
	Data T `json:"data"`

	// Source names the provider that served the data; empty on failure.
	Source string `json:"source,omitempty"`

	// UsedFallback is true iff a non-primary source served the data.
	UsedFallback bool `json:"used_fallback"`

	Warnings []string `json:"warnings,omitempty"`
}

// FetchFunc performs the data-type-specific typed fetch against a resolved
// source.
type FetchFunc[T any] func(ctx context.Context, src Source) (T, error)

// Engine holds the chain registry. Chains are registered at startup and
// replaced only by explicit Register/Reset calls.
type Engine struct {
	mu     sync.RWMutex
	chains map[string]Chain

	log    *errlog.Log
	logger *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithErrorLog injects the shared failure log.
func WithErrorLog(log *errlog.Log) EngineOption {
	return func(e *Engine) { e.log = log }
}

// WithLogger replaces the default slog logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine creates an empty chain registry.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		chains: make(map[string]Chain),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Register stores or overwrites the chain for a data-type key.
func (e *Engine) Register(key string, c Chain) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.chains[key] = c
}

// Reset clears the registry. Used by tests.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.chains = make(map[string]Chain)
}

// Keys returns the registered data-type keys.
func (e *Engine) Keys() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	keys := make([]string, 0, len(e.chains))
	for k := range e.chains {
		keys = append(keys, k)
	}
	return keys
}

func (e *Engine) lookup(key string) (Chain, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	c, ok := e.chains[key]
	return c, ok
}

// FetchWithFallback walks the chain registered under key in registration
// order: primary first, then each fallback. Unconfigured sources are
// skipped with a warning; failing sources append a warning and the
// traversal continues regardless of whether the failure was retryable — the
// chain's purpose is to route around failures the adapter itself could not
// recover from. The engine never reorders sources by historical success.
//
// An unregistered key is a normal condition for partially-deployed adapter
// sets, not an error.
func FetchWithFallback[T any](ctx context.Context, e *Engine, key string, fn FetchFunc[T]) Result[T] {
	c, ok := e.lookup(key)
	if !ok {
		return Result[T]{Warnings: []string{"No fallback chain configured for " + key}}
	}

	sources := make([]Source, 0, 1+len(c.Fallbacks))
	sources = append(sources, c.Primary)
	sources = append(sources, c.Fallbacks...)

	var warnings []string
	for i, src := range sources {
		if src == nil {
			continue
		}
		name := src.SourceName()

		if !src.IsConfigured() {
			warnings = append(warnings, fmt.Sprintf("%s is not configured, skipping", name))
			e.logger.Debug("skipping unconfigured source", "data_type", key, "source", name)
			continue
		}

		data, err := fn(ctx, src)
		if err != nil {
			f := failure.As(err, name)
			warnings = append(warnings, fmt.Sprintf("%s failed: %s", name, f.Message))
			e.log.Append(errlog.Record{
				Provider: f.Provider,
				Category: f.Category,
				DataType: key,
				Message:  f.Message,
			})
			e.logger.Warn("source failed, trying next",
				"data_type", key, "source", name,
				"category", string(f.Category), "error", f.Message)
			continue
		}

		if i != 0 {
			metrics.FallbackActivations.WithLabelValues(key).Inc()
			e.logger.Info("fallback source served data",
				"data_type", key, "source", name, "position", i)
		}
		return Result[T]{
			Data:         data,
			Source:       name,
			UsedFallback: i != 0,
			Warnings:     warnings,
		}
	}

	metrics.ChainExhausted.WithLabelValues(key).Inc()
	warnings = append(warnings, "All data sources failed for "+key)
	e.logger.Warn("all sources failed", "data_type", key)
	return Result[T]{UsedFallback: false, Warnings: warnings}
}

// Unconfigured returns a placeholder source for a provider whose adapter
// refused to construct (missing credential). It keeps the provider's slot
// in the chain so traversal reports the skip instead of silently shrinking.
func Unconfigured(name string) Source { return unconfigured{name: name} }

type unconfigured struct{ name string }

func (u unconfigured) SourceName() string { return u.name }
func (u unconfigured) IsConfigured() bool { return false }
