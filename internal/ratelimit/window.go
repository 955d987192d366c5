// Package ratelimit implements the sliding-window limiters that gate Reddit tool calls.
package ratelimit

import (
	"sync"
	"time"
)

// DefaultWindow is the window length used by per-minute limits.
const DefaultWindow = time.Minute

// Result is the outcome of a single consume attempt.
type Result struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Window is a sliding-window limiter that admits at most Limit events in any
// trailing window of the configured length.
//
// Timestamps are kept in arrival order and evicted from the front, so pruning is
// amortized O(1) per call. Window is safe for concurrent use.
type Window struct {
	limit  int
	window time.Duration

	mu     sync.Mutex
	stamps []time.Time
}

// NewWindow creates a limiter admitting limit events per window.
func NewWindow(limit int, window time.Duration) *Window {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Window{
		limit:  limit,
		window: window,
		stamps: make([]time.Time, 0, max(limit, 0)),
	}
}

// Limit returns the configured capacity.
func (w *Window) Limit() int {
	return w.limit
}

// Consume records an event at now if capacity remains. On rejection RetryAfter is
// the time until the oldest retained event leaves the window, never below 1ms.
func (w *Window) Consume(now time.Time) Result {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.prune(now)

	if len(w.stamps) >= w.limit {
		if len(w.stamps) == 0 {
			return Result{Allowed: false, RetryAfter: w.window}
		}
		wait := w.window - now.Sub(w.stamps[0])
		return Result{Allowed: false, RetryAfter: atLeastMillisecond(wait)}
	}

	w.stamps = append(w.stamps, now)
	return Result{Allowed: true}
}

// Count prunes expired events and returns how many remain in the window.
func (w *Window) Count(now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.prune(now)
	return len(w.stamps)
}

// prune drops events whose age is at least the window length. Callers hold mu.
func (w *Window) prune(now time.Time) {
	drop := 0
	for drop < len(w.stamps) && now.Sub(w.stamps[drop]) >= w.window {
		drop++
	}
	if drop == 0 {
		return
	}
	w.stamps = w.stamps[drop:]
}

// atLeastMillisecond rounds up to whole milliseconds with a 1ms floor.
func atLeastMillisecond(d time.Duration) time.Duration {
	if d < time.Millisecond {
		return time.Millisecond
	}
	if rem := d % time.Millisecond; rem != 0 {
		d += time.Millisecond - rem
	}
	return d
}
