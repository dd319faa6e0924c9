package reconcile

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter paces outbound gateway calls.
type Limiter interface {
	Wait(ctx context.Context) error
}

// NewIntervalLimiter lets one call through immediately and every following
// call no sooner than interval after the previous one. A non-positive
// interval disables pacing.
func NewIntervalLimiter(interval time.Duration) Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}
