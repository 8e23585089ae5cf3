package checker

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Limiter spaces request dispatch to at most one per 1/rps seconds across all
// callers. It never allows bursts: the bucket holds a single token.
type Limiter struct {
	limiter *rate.Limiter
}

// NewLimiter returns a limiter for requestsPerSecond. A value of zero or less
// disables limiting.
func NewLimiter(requestsPerSecond int) *Limiter {
	if requestsPerSecond <= 0 {
		return &Limiter{}
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1)}
}

// Wait blocks until the next request may be issued or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil || l.limiter == nil {
		return nil
	}
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}

// Enabled reports whether requests are being limited.
func (l *Limiter) Enabled() bool {
	return l != nil && l.limiter != nil
}
