package intakeapi

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// sweepThreshold is the key count above which Allow drops idle keys.
const sweepThreshold = 4096

// IPRateLimiter is a per-key sliding-window limiter for the public endpoints.
type IPRateLimiter struct {
	mu     sync.Mutex
	events map[string][]time.Time
	limit  int
	window time.Duration
}

// NewIPRateLimiter returns nil (no limiting) when limit is not positive.
func NewIPRateLimiter(limit int, window time.Duration) *IPRateLimiter {
	if limit <= 0 {
		return nil
	}
	if window <= 0 {
		window = time.Minute
	}
	return &IPRateLimiter{
		events: make(map[string][]time.Time),
		limit:  limit,
		window: window,
	}
}

// Allow reports whether an event for key at now is permitted and, when it is not, how long
// until the oldest event in the window ages out.
func (l *IPRateLimiter) Allow(key string, now time.Time) (bool, time.Duration) {
	if l == nil {
		return true, 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.events) > sweepThreshold {
		l.sweep(now)
	}

	kept := pruneWindow(l.events[key], now, l.window)
	if blocked, retry := evaluateWindowThrottle(now, kept, l.limit, l.window); blocked {
		l.events[key] = kept
		return false, retry
	}
	l.events[key] = append(kept, now)
	return true, 0
}

func (l *IPRateLimiter) sweep(now time.Time) {
	for k, ev := range l.events {
		if kept := pruneWindow(ev, now, l.window); len(kept) == 0 {
			delete(l.events, k)
		} else {
			l.events[k] = kept
		}
	}
}

func pruneWindow(events []time.Time, now time.Time, window time.Duration) []time.Time {
	cut := now.Add(-window)
	dst := events[:0]
	for _, t := range events {
		if t.After(cut) {
			dst = append(dst, t)
		}
	}
	return dst
}

// evaluateWindowThrottle blocks when at least limit events fall inside the window ending at now.
func evaluateWindowThrottle(now time.Time, events []time.Time, limit int, window time.Duration) (bool, time.Duration) {
	if limit <= 0 {
		return false, 0
	}
	cut := now.Add(-window)
	count := 0
	var oldest time.Time
	for _, t := range events {
		if !t.After(cut) {
			continue
		}
		count++
		if oldest.IsZero() || t.Before(oldest) {
			oldest = t
		}
	}
	if count < limit {
		return false, 0
	}
	return true, oldest.Add(window).Sub(now)
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	if retryAfter > 0 {
		secs := int64(retryAfter / time.Second)
		if retryAfter%time.Second != 0 {
			secs++
		}
		w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	}
	writeError(w, http.StatusTooManyRequests, "rate_limited", "Too many attempts. Please try again later.")
}
