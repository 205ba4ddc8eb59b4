package ratelimiter

import (
	"sync"
	"time"
)

// RateLimiter is the interface for rate limiting.
// Allow returns true if a request is allowed, and false otherwise.
type RateLimiter interface {
	Allow() bool
}

// window counts events inside a single sliding time window, tracked as a log
// of timestamps. The task-creation volume is small enough that the log stays
// tiny, so accuracy wins over the bucketed approximation here.
type window struct {
	limit  int
	span   time.Duration
	events []time.Time
}

// allow must be called with the owning limiter's lock held.
func (w *window) allow(now time.Time) bool {
	cutoff := now.Add(-w.span)
	kept := w.events[:0]
	for _, t := range w.events {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	w.events = kept

	return len(w.events) < w.limit
}

// DualWindow limits events against a short and a long sliding window at the
// same time; both must have room for an event to be admitted.
type DualWindow struct {
	mu    sync.Mutex
	short window
	long  window
}

// NewDualWindow creates a limiter allowing perMinute events per minute and
// perHour events per hour. A non-positive limit disables that window.
func NewDualWindow(perMinute, perHour int) *DualWindow {
	return &DualWindow{
		short: window{limit: perMinute, span: time.Minute},
		long:  window{limit: perHour, span: time.Hour},
	}
}

// Allow checks both windows and, if the event is admitted, records it in both.
func (d *DualWindow) Allow() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	if d.short.limit > 0 && !d.short.allow(now) {
		return false
	}
	if d.long.limit > 0 && !d.long.allow(now) {
		return false
	}

	if d.short.limit > 0 {
		d.short.events = append(d.short.events, now)
	}
	if d.long.limit > 0 {
		d.long.events = append(d.long.events, now)
	}
	return true
}
