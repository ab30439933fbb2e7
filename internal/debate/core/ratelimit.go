package core

import (
	"context"
	"sync"
	"time"
)

// intervalGate enforces a minimum wall-clock gap between successive calls
// by one actor. Agents gate at 1.5s and supervisors at 2s by default; the
// testing preset sets the interval to zero.
type intervalGate struct {
	mu   sync.Mutex
	min  time.Duration
	last time.Time
}

func newIntervalGate(min time.Duration) *intervalGate {
	return &intervalGate{min: min}
}

// Wait blocks until at least the minimum interval has passed since the
// previous permitted call. Concurrent callers queue in FIFO-ish order via
// the reserved slot.
func (g *intervalGate) Wait(ctx context.Context) error {
	g.mu.Lock()
	now := time.Now()
	var wait time.Duration
	if !g.last.IsZero() {
		wait = g.min - now.Sub(g.last)
	}
	if wait < 0 {
		wait = 0
	}
	g.last = now.Add(wait)
	g.mu.Unlock()
	return sleepCtx(ctx, wait)
}

// sleepCtx sleeps for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
