// Package degrade holds the last-resort snapshot cache consulted when every
// live source in a fallback chain is exhausted. Snapshots are best-effort,
// in-memory, and die with the process.
//
// Staleness is a deadline checked lazily on read; there are no background
// timers.
package degrade

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"marketfetch/internal/fetch/metrics"
)

// Default TTLs per data type.
const (
	DefaultMacroTTL     = time.Hour
	DefaultSectorTTL    = 24 * time.Hour
	DefaultScreeningTTL = 15 * time.Minute
)

// Snapshot is one cached result.
type Snapshot struct {
	Data     any
	CachedAt time.Time
}

// Result is what a fallback read produces. Data is nil when nothing was
// ever cached for the key.
type Result struct {
	Data     any       `json:"data"`
	CachedAt time.Time `json:"cached_at,omitempty"`
	Stale    bool      `json:"stale"`
	Warnings []string  `json:"warnings,omitempty"`
}

// Store maps data-type keys to snapshots with per-key TTLs.
type Store struct {
	mu      sync.Mutex
	entries map[string]Snapshot

	ttls       map[string]time.Duration
	defaultTTL time.Duration

	now func() time.Time
}

// NewStore creates a store. ttls maps data-type keys to their staleness
// TTLs; keys without an entry use defaultTTL.
func NewStore(ttls map[string]time.Duration, defaultTTL time.Duration) *Store {
	if defaultTTL <= 0 {
		defaultTTL = DefaultScreeningTTL
	}
	return &Store{
		entries:    make(map[string]Snapshot),
		ttls:       ttls,
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

// Put caches a successful result under key, replacing any prior snapshot.
func (s *Store) Put(key string, data any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = Snapshot{Data: data, CachedAt: s.now()}
}

// Fallback returns the cached snapshot for key with a staleness warning
// once the TTL has elapsed, or a "no data" result if nothing was cached.
func (s *Store) Fallback(key string) Result {
	s.mu.Lock()
	snap, ok := s.entries[key]
	ttl := s.ttlFor(key)
	now := s.now()
	s.mu.Unlock()

	if !ok {
		return Result{Warnings: []string{"No cached data available for " + key}}
	}

	stale := !now.Before(snap.CachedAt.Add(ttl))
	metrics.DegradedCacheHits.WithLabelValues(key, strconv.FormatBool(stale)).Inc()

	res := Result{Data: snap.Data, CachedAt: snap.CachedAt, Stale: stale}
	if stale {
		res.Warnings = []string{fmt.Sprintf(
			"Using stale cached data for %s (cached %s ago)",
			key, now.Sub(snap.CachedAt).Round(time.Second))}
	}
	return res
}

// Clear drops all snapshots. Used by tests.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]Snapshot)
}

func (s *Store) ttlFor(key string) time.Duration {
	if ttl, ok := s.ttls[key]; ok && ttl > 0 {
		return ttl
	}
	return s.defaultTTL
}

// Synthetic is the always-available fallback for optional inputs such as
// analyst sentiment and technical trend. It requires no cache: the workflow
// treats these as inputs that must never block progress, so unavailability
// is modeled as nil data plus an explanatory warning.
func Synthetic(reason string) Result {
	return Result{Warnings: []string{reason}}
}
