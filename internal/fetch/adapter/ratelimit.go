package adapter

import (
	"context"
	"sync"
	"time"
)

// RateLimitState tracks a fixed per-minute request window for one adapter.
// It is mutated only by the adapter's drain loop; the mutex exists so
// health reporting can read a consistent snapshot.
type RateLimitState struct {
	mu        sync.Mutex
	capacity  int
	remaining int
	resetAt   time.Time
}

func newRateLimitState(capacity int, now time.Time) *RateLimitState {
	if capacity <= 0 {
		capacity = 1
	}
	return &RateLimitState{
		capacity:  capacity,
		remaining: capacity,
		resetAt:   now.Add(time.Minute),
	}
}

// acquire blocks until the window has capacity, then consumes one slot.
// When the window is exhausted it sleeps until resetAt, resets to full
// capacity, and dispatches against the new window. Returns waited=true when
// the caller had to wait.
func (rl *RateLimitState) acquire(
	ctx context.Context,
	now func() time.Time,
	sleep func(context.Context, time.Duration) error,
) (waited bool, err error) {
	for {
		rl.mu.Lock()
		n := now()
		if !n.Before(rl.resetAt) {
			rl.remaining = rl.capacity
			rl.resetAt = n.Add(time.Minute)
		}
		if rl.remaining > 0 {
			rl.remaining--
			rl.mu.Unlock()
			return waited, nil
		}
		wait := rl.resetAt.Sub(n)
		rl.mu.Unlock()

		waited = true
		if err := sleep(ctx, wait); err != nil {
			return waited, err
		}
	}
}

// WindowSnapshot is a point-in-time view of the rate-limit window.
type WindowSnapshot struct {
	Capacity  int       `json:"capacity"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// Snapshot returns the current window state.
func (rl *RateLimitState) Snapshot() WindowSnapshot {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return WindowSnapshot{
		Capacity:  rl.capacity,
		Remaining: rl.remaining,
		ResetAt:   rl.resetAt,
	}
}
