// Package scheduler runs crawl tasks with bounded parallelism against one
// shared browser process.
package scheduler

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// InterTaskLimiter paces task completions: after each task finishes, the
// Scheduler waits on this limiter before releasing its concurrency slot, so
// the run never hammers the network with simultaneous completions.
type InterTaskLimiter struct {
	limiter *rate.Limiter
}

// NewInterTaskLimiter builds a limiter allowing on average one task release
// per delay, with a burst of one so releases never queue up into a burst.
func NewInterTaskLimiter(delay time.Duration) *InterTaskLimiter {
	if delay <= 0 {
		return &InterTaskLimiter{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &InterTaskLimiter{limiter: rate.NewLimiter(rate.Every(delay), 1)}
}

// Wait blocks until the next task release is permitted.
func (l *InterTaskLimiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}
