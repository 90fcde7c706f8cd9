package clock_test

import (
	"context"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/remedy/pkg/utils/clock"
)

func TestClock(t *testing.T) {
	now := time.Now()
	c := func() time.Time {
		return now
	}
	ctx := context.Background()
	ctx = clock.With(ctx, c)
	gt.Equal(t, clock.Now(ctx), now)
}

func TestClockStepping(t *testing.T) {
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	step := 0
	ctx := clock.With(context.Background(), func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Minute)
	})

	first := clock.Now(ctx)
	second := clock.Now(ctx)
	gt.True(t, second.After(first))
	gt.Equal(t, second.Sub(first), time.Minute)
}
