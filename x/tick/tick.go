// Package tick provides the periodic scheduler shared by every worker loop.
//
// A Ticker fires on boundaries origin + k*interval, where origin is the
// instant of the first activation. The first call to Next returns
// immediately. When the caller overruns one or more boundaries, those
// boundaries are dropped and the next activation lands on the first boundary
// still in the future, so a slow cycle never produces a burst of catch-up
// activations.
package tick

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// ErrStopped is returned by Next after Stop.
var ErrStopped = errors.New("tick: stopped")

type Ticker struct {
	interval time.Duration
	origin   time.Time
	last     int64 // boundary index of the last activation; -1 before the first
	missed   atomic.Uint64
	stopped  atomic.Bool

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New returns a Ticker for the given interval. It panics on a non-positive
// interval, like time.NewTicker.
func New(interval time.Duration) *Ticker {
	if interval <= 0 {
		panic("tick: non-positive interval")
	}
	return &Ticker{
		interval: interval,
		last:     -1,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// Interval returns the configured spacing between activations.
func (t *Ticker) Interval() time.Duration { return t.interval }

// Missed reports how many boundaries were dropped because the caller was busy.
func (t *Ticker) Missed() uint64 { return t.missed.Load() }

// Stop ends the sequence. A stopped Ticker cannot be restarted.
func (t *Ticker) Stop() { t.stopped.Store(true) }

// Next blocks until the next activation and returns its scheduled time.
// Next is not safe for concurrent use; each loop owns its Ticker.
func (t *Ticker) Next(ctx context.Context) (time.Time, error) {
	if t.stopped.Load() {
		return time.Time{}, ErrStopped
	}
	now := t.now()
	if t.last < 0 {
		t.origin = now
		t.last = 0
		return now, nil
	}

	k := t.last + 1
	due := t.origin.Add(time.Duration(k) * t.interval)
	if now.After(due) {
		k = int64(now.Sub(t.origin)/t.interval) + 1
		t.missed.Add(uint64(k - t.last - 1))
		due = t.origin.Add(time.Duration(k) * t.interval)
	}

	if err := t.sleep(ctx, due.Sub(now)); err != nil {
		return time.Time{}, err
	}
	if t.stopped.Load() {
		return time.Time{}, ErrStopped
	}
	t.last = k
	return due, nil
}

// Every runs fn on each activation of a fresh Ticker until ctx is done.
// fn runs on the calling goroutine; an activation is never started while the
// previous one is still running.
func Every(ctx context.Context, interval time.Duration, fn func(ctx context.Context, at time.Time)) error {
	t := New(interval)
	defer t.Stop()
	for {
		at, err := t.Next(ctx)
		if err != nil {
			return err
		}
		fn(ctx, at)
	}
}

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
