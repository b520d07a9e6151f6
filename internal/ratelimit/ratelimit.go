// Package ratelimit provides per-identity request quotas using fixed-window
// counting.
//
// Each identity gets its own window of max_requests; all anonymous traffic
// shares a single, stricter bucket. A rejected request never consumes quota.
// Expired windows are reset lazily on next access, and stale buckets are
// swept opportunistically during Check calls to bound memory.
package ratelimit

import (
	"sync"
	"time"

	"github.com/kopihq/kopi/internal/log"
)

// AnonymousIdentity is the shared bucket key for unauthenticated requests.
const AnonymousIdentity = "anonymous"

// Buckets untouched for this many windows are dropped during the
// opportunistic sweep.
const staleWindows = 3

// Config defines limiter quotas.
type Config struct {
	Window          time.Duration // counting window length
	MaxRequests     int           // per authenticated identity
	AnonMaxRequests int           // shared by all anonymous traffic
}

// Decision is the outcome of a quota check.
type Decision struct {
	Allowed    bool
	Remaining  int           // requests left in the current window (after this one)
	RetryAfter time.Duration // only set when rejected: time until the window resets
}

// bucket tracks one identity's window. Each bucket carries its own mutex;
// the limiter only locks the bucket being checked.
type bucket struct {
	mu          sync.Mutex
	windowStart time.Time
	count       int
	limit       int
	lastSeen    time.Time
}

// Limiter tracks request counts per identity.
// Safe for concurrent use by multiple goroutines.
type Limiter struct {
	cfg    Config
	logger log.Logger

	buckets sync.Map // identity -> *bucket

	sweepMu   sync.Mutex
	lastSweep time.Time

	now func() time.Time // injectable clock for tests
}

// New creates a limiter with the given quotas.
func New(cfg Config, logger log.Logger) *Limiter {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Limiter{
		cfg:       cfg,
		logger:    logger,
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

// Check consumes one request from the identity's window if quota remains.
// An empty identity maps to the shared anonymous bucket. On rejection the
// count is left untouched and RetryAfter reports when the window resets.
func (l *Limiter) Check(identity string) Decision {
	now := l.now()
	l.maybeSweep(now)

	limit := l.cfg.MaxRequests
	if identity == "" || identity == AnonymousIdentity {
		identity = AnonymousIdentity
		limit = l.cfg.AnonMaxRequests
	}

	b := l.bucket(identity, limit, now)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastSeen = now

	// Lazy reset: an expired window starts over on first access.
	if now.Sub(b.windowStart) >= l.cfg.Window {
		b.windowStart = now
		b.count = 0
	}

	if b.count >= b.limit {
		retryAfter := b.windowStart.Add(l.cfg.Window).Sub(now)
		l.logger.Warn("rate limit exceeded",
			"identity", identity,
			"limit", b.limit,
			"retry_after", retryAfter,
		)
		return Decision{Allowed: false, RetryAfter: retryAfter}
	}

	b.count++
	return Decision{Allowed: true, Remaining: b.limit - b.count}
}

// bucket returns the identity's bucket, creating it lazily on first use.
func (l *Limiter) bucket(identity string, limit int, now time.Time) *bucket {
	if v, ok := l.buckets.Load(identity); ok {
		return v.(*bucket)
	}
	fresh := &bucket{windowStart: now, limit: limit, lastSeen: now}
	actual, _ := l.buckets.LoadOrStore(identity, fresh)
	return actual.(*bucket)
}

// maybeSweep drops buckets idle for several windows. Runs at most once per
// window; skipped entirely when another goroutine holds the sweep lock.
func (l *Limiter) maybeSweep(now time.Time) {
	if !l.sweepMu.TryLock() {
		return
	}
	defer l.sweepMu.Unlock()

	if now.Sub(l.lastSweep) < l.cfg.Window {
		return
	}
	l.lastSweep = now

	stale := staleWindows * l.cfg.Window
	removed := 0
	l.buckets.Range(func(key, value any) bool {
		b := value.(*bucket)
		b.mu.Lock()
		idle := now.Sub(b.lastSeen)
		b.mu.Unlock()
		if idle > stale {
			l.buckets.Delete(key)
			removed++
		}
		return true
	})

	if removed > 0 {
		l.logger.Debug("swept stale rate buckets", "removed", removed)
	}
}

// size reports the number of live buckets. Test helper.
func (l *Limiter) size() int {
	n := 0
	l.buckets.Range(func(any, any) bool {
		n++
		return true
	})
	return n
}
