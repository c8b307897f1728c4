package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/privacy-observatory/crawler/internal/testutil"
)

func TestNewInterTaskLimiterZeroDelayNeverBlocks(t *testing.T) {
	l := NewInterTaskLimiter(0)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	for i := 0; i < 5; i++ {
		testutil.MustNotFail(t, l.Wait(ctx))
	}
}

func TestNewInterTaskLimiterPacesReleases(t *testing.T) {
	l := NewInterTaskLimiter(30 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	testutil.MustNotFail(t, l.Wait(ctx))
	testutil.MustNotFail(t, l.Wait(ctx))
	elapsed := time.Since(start)

	if elapsed < 20*time.Millisecond {
		t.Fatalf("expected the second Wait to be paced by ~30ms, elapsed only %s", elapsed)
	}
}

func TestInterTaskLimiterRespectsContextCancellation(t *testing.T) {
	l := NewInterTaskLimiter(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	// Drain the initial burst token so the next Wait call actually blocks.
	testutil.MustNotFail(t, l.Wait(ctx))

	cancel()
	err := l.Wait(ctx)
	testutil.AssertError(t, err).HasError()
}
