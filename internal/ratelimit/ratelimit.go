// Package ratelimit implements the fixed-window per-instance request
// limiter and the thought/chain input validator.
package ratelimit

import (
	"regexp"
	"sync"
	"time"

	"github.com/8agana/unified-intelligence/internal/apperr"
)

const maxThoughtBytes = 50000

var chainIDPattern = regexp.MustCompile(`^[A-Za-z0-9_:.-]+$`)

// window tracks one instance's request count within the current fixed
// window.
type window struct {
	count     int
	resetAt   time.Time
}

// Limiter is a fixed-window counter per instance_id: max N requests per W
// seconds.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window
	max     int
	period  time.Duration
}

// New builds a Limiter allowing max requests per period, per instance.
func New(max int, period time.Duration) *Limiter {
	return &Limiter{windows: map[string]*window{}, max: max, period: period}
}

// Allow reports whether instance may make another request in the current
// window, incrementing its counter if so.
func (l *Limiter) Allow(instance string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	w, ok := l.windows[instance]
	if !ok || now.After(w.resetAt) {
		w = &window{count: 0, resetAt: now.Add(l.period)}
		l.windows[instance] = w
	}

	if w.count >= l.max {
		return false
	}
	w.count++
	return true
}

// CheckAndError is a convenience wrapper returning a structured
// RateLimited error on breach, nil otherwise.
func (l *Limiter) CheckAndError(instance string) error {
	if !l.Allow(instance) {
		return apperr.RateLimited("rate limit exceeded for instance", nil)
	}
	return nil
}

// ValidateThought checks the thought/chain invariants: non-empty content
// within the size cap, positive numbering, a well-formed chain id shape,
// and importance/relevance within [1,10] when present.
func ValidateThought(content string, thoughtNumber, totalThoughts int, chainID string, importance, relevance *int) error {
	if content == "" {
		return apperr.Validation("thought content must not be empty", nil)
	}
	if len(content) > maxThoughtBytes {
		return apperr.Validation("thought content exceeds the size cap", nil)
	}
	if thoughtNumber < 1 {
		return apperr.Validation("thought_number must be >= 1", nil)
	}
	if totalThoughts < thoughtNumber {
		return apperr.Validation("total_thoughts must be >= thought_number", nil)
	}
	if chainID != "" && !chainIDPattern.MatchString(chainID) {
		return apperr.Validation("chain_id has an invalid shape", nil)
	}
	if importance != nil && (*importance < 1 || *importance > 10) {
		return apperr.Validation("importance must be within [1,10]", nil)
	}
	if relevance != nil && (*relevance < 1 || *relevance > 10) {
		return apperr.Validation("relevance must be within [1,10]", nil)
	}
	return nil
}
