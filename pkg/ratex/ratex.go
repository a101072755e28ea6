// Package ratex provides a per-key token-bucket limiter for throttling
// credential guesses (login attempts, verification codes) without tying the
// throttle to any transport.
package ratex

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config defines the limiting parameters for one limiter.
type Config struct {
	// Attempts allowed per Window.
	Attempts int
	// Window over which Attempts applies.
	Window time.Duration
	// Burst allows short spikes above the steady rate.
	Burst int
}

// Strict suits password and code verification: 5 attempts per minute.
var Strict = Config{Attempts: 5, Window: time.Minute, Burst: 5}

// Limiter tracks an independent token bucket per key (user id, node id,
// email). Idle buckets are dropped periodically so ephemeral keys do not
// accumulate forever.
type Limiter struct {
	limiters sync.Map // map[string]*rate.Limiter
	rate     rate.Limit
	burst    int

	mu          sync.Mutex
	lastCleanup time.Time
}

// New builds a Limiter from cfg. Zero-valued fields fall back to Strict.
func New(cfg Config) *Limiter {
	if cfg.Attempts <= 0 {
		cfg.Attempts = Strict.Attempts
	}
	if cfg.Window <= 0 {
		cfg.Window = Strict.Window
	}
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.Attempts
	}
	return &Limiter{
		rate:        rate.Limit(float64(cfg.Attempts) / cfg.Window.Seconds()),
		burst:       cfg.Burst,
		lastCleanup: time.Now(),
	}
}

// Allow reports whether the caller identified by key may attempt now, and
// consumes one token if so. An empty key is always allowed; throttling
// anonymous callers is the transport layer's job.
func (l *Limiter) Allow(key string) bool {
	if key == "" {
		return true
	}
	return l.bucket(key).Allow()
}

func (l *Limiter) bucket(key string) *rate.Limiter {
	if existing, ok := l.limiters.Load(key); ok {
		return existing.(*rate.Limiter)
	}
	created := rate.NewLimiter(l.rate, l.burst)
	actual, _ := l.limiters.LoadOrStore(key, created)
	l.maybeCleanup()
	return actual.(*rate.Limiter)
}

// maybeCleanup drops buckets that have refilled completely; a full bucket
// means the key has been idle for at least a window.
func (l *Limiter) maybeCleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if time.Since(l.lastCleanup) < 5*time.Minute {
		return
	}
	l.lastCleanup = time.Now()

	l.limiters.Range(func(key, value any) bool {
		if value.(*rate.Limiter).Tokens() >= float64(l.burst) {
			l.limiters.Delete(key)
		}
		return true
	})
}
