// Package ratelimit implements a sliding-window call limiter.
//
// Every attempt is recorded, admitted or not, so a caller that keeps
// retrying while limited keeps itself limited.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrInvalidConfig     = errors.New("invalid rate limit")
)

// ExceededError is returned by Do when an attempt is rejected.
type ExceededError struct {
	Limit  int
	Window time.Duration
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded: max %d calls per %s", e.Limit, e.Window)
}

func (e *ExceededError) Is(target error) bool { return target == ErrRateLimitExceeded }

type Option func(*Limiter)

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// Limiter admits at most maxCalls attempts within any trailing window.
type Limiter struct {
	mu       sync.Mutex
	maxCalls int
	window   time.Duration
	now      func() time.Time
	calls    []time.Time // ascending
}

func New(maxCalls int, window time.Duration, opts ...Option) (*Limiter, error) {
	if maxCalls <= 0 || window <= 0 {
		return nil, fmt.Errorf("%w: max_calls=%d window=%s", ErrInvalidConfig, maxCalls, window)
	}
	l := &Limiter{maxCalls: maxCalls, window: window, now: time.Now}
	for _, o := range opts {
		o(l)
	}
	return l, nil
}

func (l *Limiter) MaxCalls() int         { return l.maxCalls }
func (l *Limiter) Window() time.Duration { return l.window }

// TryAdmit records an attempt at the current time and reports whether it is
// within the limit. Timestamps at least one window old are dropped first.
func (l *Limiter) TryAdmit() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.calls = append(l.calls, now)

	drop := 0
	for drop < len(l.calls) && now.Sub(l.calls[drop]) >= l.window {
		drop++
	}
	if drop > 0 {
		l.calls = append(l.calls[:0], l.calls[drop:]...)
	}
	return len(l.calls) <= l.maxCalls
}

// Count returns the attempts currently inside the window.
func (l *Limiter) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	n := 0
	for _, t := range l.calls {
		if now.Sub(t) < l.window {
			n++
		}
	}
	return n
}

// Do runs fn if the attempt is admitted; otherwise fn is not run and an
// *ExceededError is returned.
func (l *Limiter) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if !l.TryAdmit() {
		return &ExceededError{Limit: l.maxCalls, Window: l.window}
	}
	return fn(ctx)
}
