// Package memoize implements the injected caching decorator that wraps the
// adapters' primary fetch operations.
//
// The decorator is transparent: it never alters success or failure
// semantics, only short-circuits repeated calls within the TTL. Errors are
// never cached. Idempotent inputs must map to identical cache keys; see
// adapter.Request.CacheKey.
package memoize

import (
	"context"
	"encoding/json"
	"time"

	"golang.org/x/sync/singleflight"

	"marketfetch/internal/fetch/metrics"
)

// Cache is the byte-store contract a hosting environment supplies. It must
// be byte-transparent: Get returns exactly the bytes previously passed to
// Set for the same key.
type Cache interface {
	// Get returns (value, true, nil) on hit and (nil, false, nil) on miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key for ttl. Best effort.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Backend names the implementation for metrics.
	Backend() string
}

// Memoizer memoizes typed fetch operations over a Cache, collapsing
// concurrent identical misses into one underlying call. A nil *Memoizer is
// a no-op pass-through.
type Memoizer struct {
	cache Cache
	group singleflight.Group
}

// New creates a Memoizer over the given backend. Returns nil when cache is
// nil, so callers can wire it unconditionally.
func New(cache Cache) *Memoizer {
	if cache == nil {
		return nil
	}
	return &Memoizer{cache: cache}
}

// Do runs fn memoized under key with the given TTL. Cache read/write
// problems degrade to calling fn directly; a broken cache must never change
// fetch semantics.
func Do[T any](ctx context.Context, m *Memoizer, key string, ttl time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if m == nil || ttl <= 0 {
		return fn(ctx)
	}

	if b, ok, err := m.cache.Get(ctx, key); err == nil && ok {
		var out T
		if uerr := json.Unmarshal(b, &out); uerr == nil {
			metrics.MemoizeHits.WithLabelValues(m.cache.Backend()).Inc()
			return out, nil
		}
		// Undecodable entry: fall through and refetch.
	}

	v, err, _ := m.group.Do(key, func() (any, error) {
		data, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		if b, merr := json.Marshal(data); merr == nil {
			_ = m.cache.Set(ctx, key, b, ttl)
		}
		return data, nil
	})
	if err != nil {
		return zero, err
	}
	return v.(T), nil
}
