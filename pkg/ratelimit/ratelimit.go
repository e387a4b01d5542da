// Package ratelimit implements the two throttles named in spec §4.3/§4.6/§9:
// a per-instance minimum gap between accepted updates on the HTTP location
// endpoint (keyed by instance id only, not by connection), and a per-user
// token bucket guarding the other HTTP routes. Both are
// in-process (§9 notes a multi-node deployment would need to move the
// counters into the shared cache using the same key grammar; that migration
// is out of scope here). Shaped after the service_layer rate limiter, which
// keeps one *rate.Limiter per key in a map guarded by a RWMutex.
package ratelimit

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LocationThrottle enforces "at most one location-update frame per instance
// per window" (spec §4.3/§4.6: 1.5-3s). Frames arriving before the window
// elapses are dropped silently by the caller; dropped frames never reach
// the pipeline and never advance statistics.
type LocationThrottle struct {
	mu       sync.Mutex
	lastSeen map[string]time.Time
	window   time.Duration
}

// NewLocationThrottle creates a LocationThrottle with the given per-instance
// window. Callers typically use 2 * time.Second, the midpoint of the 1.5-3s
// range named in the spec.
func NewLocationThrottle(window time.Duration) *LocationThrottle {
	if window <= 0 {
		window = 2 * time.Second
	}
	return &LocationThrottle{
		lastSeen: make(map[string]time.Time),
		window:   window,
	}
}

// Allow reports whether a location-update frame for instanceID may proceed.
// It records the acceptance time itself so back-to-back calls within the
// window are rejected without a separate Record step.
func (t *LocationThrottle) Allow(instanceID string) bool {
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	last, ok := t.lastSeen[instanceID]
	if ok && now.Sub(last) < t.window {
		return false
	}
	t.lastSeen[instanceID] = now
	return true
}

// Forget drops throttle state for an instance, called when an instance
// completes so the map does not grow unboundedly across a long-lived
// connection manager process.
func (t *LocationThrottle) Forget(instanceID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.lastSeen, instanceID)
}

// Size reports the number of instances currently tracked, used by tests.
func (t *LocationThrottle) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.lastSeen)
}

// Sweep removes entries older than maxAge, guarding against unbounded growth
// from instances that never call Forget (e.g. a connection that drops
// without a clean completeInstance).
func (t *LocationThrottle) Sweep(maxAge time.Duration) {
	cutoff := time.Now().Add(-maxAge)
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, last := range t.lastSeen {
		if last.Before(cutoff) {
			delete(t.lastSeen, id)
		}
	}
}

// HTTPWindowConfig configures a per-user fixed-window HTTP limiter.
type HTTPWindowConfig struct {
	Limit  int
	Window time.Duration
}

// HTTPLimiter enforces a per-user request budget over a group of routes
// (spec §6.1: ~50 req/15min for journey endpoints, 30 req/15min for auth in
// production; both are wider in development). Each key gets a token bucket
// holding Limit tokens that refills at Limit per Window; it is not a fixed
// window, so after a burst one request is admitted every Window/Limit
// rather than the whole budget at a window boundary. One HTTPLimiter instance
// should be constructed per route group since each tracks its own budget.
type HTTPLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
	rate     rate.Limit
	burst    int
	limit    int
	window   time.Duration
}

// NewHTTPLimiter builds an HTTPLimiter from a fixed budget over a window,
// converting it to the token-bucket rate golang.org/x/time/rate expects.
func NewHTTPLimiter(cfg HTTPWindowConfig) *HTTPLimiter {
	window := cfg.Window
	if window <= 0 {
		window = 15 * time.Minute
	}
	limit := cfg.Limit
	if limit <= 0 {
		limit = 1
	}
	perSecond := float64(limit) / window.Seconds()

	return &HTTPLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(perSecond),
		burst:    limit,
		limit:    limit,
		window:   window,
	}
}

func (l *HTTPLimiter) limiterFor(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(l.rate, l.burst)
		l.limiters[key] = lim
	}
	return lim
}

// Allow reports whether the given user (or IP, for unauthenticated routes)
// may proceed, consuming a token on success.
func (l *HTTPLimiter) Allow(key string) bool {
	return l.limiterFor(key).Allow()
}

// RetryAfterSeconds is surfaced on the Retry-After header when Allow
// returns false.
func (l *HTTPLimiter) RetryAfterSeconds() int {
	seconds := int(l.window.Seconds())
	if seconds <= 0 {
		seconds = 1
	}
	return seconds
}

// KeyCount reports the number of distinct keys currently tracked.
func (l *HTTPLimiter) KeyCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.limiters)
}

// Sweep drops all tracked limiters once the map grows past a threshold, a
// coarse but allocation-cheap way to bound memory for long-lived processes
// with many distinct users, matching the teacher's Cleanup behavior.
func (l *HTTPLimiter) Sweep(threshold int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.limiters) > threshold {
		l.limiters = make(map[string]*rate.Limiter)
	}
}

// RequestKey derives the limiter key for an HTTP request: the authenticated
// user id when present, otherwise the remote address.
func RequestKey(userID string, r *http.Request) string {
	if userID != "" {
		return userID
	}
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return ip
	}
	return r.RemoteAddr
}
