package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Governor spaces consecutive provider calls. Wait is called before every call
// and returns once the caller owns the next send slot.
type Governor interface {
	Wait(ctx context.Context) error
}

var _ Governor = (*FixedInterval)(nil)

// FixedInterval hands out send slots at least interval apart to every caller
// sharing it. The first slot is free. A non-positive interval never waits.
type FixedInterval struct {
	interval time.Duration
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error

	mu   sync.Mutex
	next time.Time
}

func NewFixedInterval(interval time.Duration) *FixedInterval {
	return newFixedInterval(interval, time.Now, sleepWithContext)
}

func newFixedInterval(
	interval time.Duration,
	nowFn func() time.Time,
	sleepFn func(ctx context.Context, d time.Duration) error,
) *FixedInterval {
	if nowFn == nil {
		nowFn = time.Now
	}
	if sleepFn == nil {
		sleepFn = sleepWithContext
	}
	return &FixedInterval{interval: interval, now: nowFn, sleep: sleepFn}
}

func (g *FixedInterval) Interval() time.Duration {
	if g == nil {
		return 0
	}
	return g.interval
}

func (g *FixedInterval) Wait(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if g == nil || g.interval <= 0 {
		return nil
	}

	delay := g.reserve()
	if delay <= 0 {
		return nil
	}
	return g.sleep(ctx, delay)
}

// reserve claims the earliest free slot and returns how long until it starts.
// A slot abandoned by a cancelled caller is not handed back.
func (g *FixedInterval) reserve() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	slot := g.next
	if slot.Before(now) {
		slot = now
	}
	g.next = slot.Add(g.interval)
	return slot.Sub(now)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
