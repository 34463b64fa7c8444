// Package ratelimit provides a token-bucket pacer backed by
// golang.org/x/time/rate for throttling outbound fetches.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter paces outbound requests with a token bucket. A nil *Limiter is
// valid and never delays anything, so an optional limiter can be threaded
// through without nil checks at every call site.
type Limiter struct {
	lim *rate.Limiter
}

// NewLimiter creates a Limiter that permits rps requests per second with the
// given burst size.
func NewLimiter(rps float64, burst int) *Limiter {
	return &Limiter{lim: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Wait blocks until a token is available or ctx is done. When the wait is
// abandoned it returns ctx's error.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	return l.lim.Wait(ctx)
}

// Allow reports whether a single request may proceed right now without
// waiting.
func (l *Limiter) Allow() bool {
	if l == nil {
		return true
	}
	return l.lim.Allow()
}
