// Package ratelimit provides per-key token bucket rate limiting for MCP tools.
package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter keeps one token bucket per key, all sharing the same rate and
// burst. It is safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	rate    rate.Limit
	burst   int
	nowFunc func() time.Time
}

// NewLimiter creates a limiter refilling perSecond tokens per second. Each
// new key starts with a full bucket of burst tokens.
func NewLimiter(perSecond float64, burst int) *Limiter {
	return &Limiter{
		buckets: make(map[string]*rate.Limiter),
		rate:    rate.Limit(perSecond),
		burst:   burst,
		nowFunc: time.Now,
	}
}

// PerMinute is shorthand for NewLimiter(n/60, burst).
func PerMinute(n float64, burst int) *Limiter {
	return NewLimiter(n/60.0, burst)
}

// Burst reports the configured burst size.
func (l *Limiter) Burst() int { return l.burst }

// Allow reports whether one more request for key fits in its bucket and
// consumes a token if so.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = rate.NewLimiter(l.rate, l.burst)
		l.buckets[key] = b
	}
	now := l.nowFunc()
	l.mu.Unlock()

	return b.AllowN(now, 1)
}

// ToolLimiters maps MCP tool names to their limiters.
type ToolLimiters map[string]*Limiter

// NewToolLimiters returns the default per-tool limits. Simulations are
// CPU bound so they get the tightest budget; registry reads are cheap.
func NewToolLimiters() ToolLimiters {
	return ToolLimiters{
		"ser_simulate": PerMinute(6, 2),
		"ser_runs":     PerMinute(60, 10),
		"ser_run":      PerMinute(60, 10),
		"ser_config":   PerMinute(30, 5),
	}
}

// CheckLimit returns an error when toolName has exhausted its budget.
// Tools without a limiter are never limited.
func CheckLimit(limiters ToolLimiters, toolName string) error {
	limiter, ok := limiters[toolName]
	if !ok {
		return nil
	}
	if !limiter.Allow(toolName) {
		return fmt.Errorf("rate limit exceeded for %s, please try again shortly", toolName)
	}
	return nil
}
