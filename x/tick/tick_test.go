package tick

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeClock advances only when the ticker sleeps or the test says so.
type fakeClock struct {
	t      time.Time
	sleeps []time.Duration
}

func (c *fakeClock) now() time.Time { return c.t }
func (c *fakeClock) sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.sleeps = append(c.sleeps, d)
	if d > 0 {
		c.t = c.t.Add(d)
	}
	return nil
}
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newFake(interval time.Duration) (*Ticker, *fakeClock) {
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	tk := New(interval)
	tk.now = clk.now
	tk.sleep = clk.sleep
	return tk, clk
}

func TestFirstActivationIsImmediate(t *testing.T) {
	tk, clk := newFake(5 * time.Second)
	start := clk.t
	at, err := tk.Next(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !at.Equal(start) || len(clk.sleeps) != 0 {
		t.Fatalf("first activation at %v after %v sleeps", at.Sub(start), clk.sleeps)
	}
}

func TestRegularSpacing(t *testing.T) {
	tk, clk := newFake(5 * time.Second)
	origin, _ := tk.Next(context.Background())
	for i := 1; i <= 3; i++ {
		clk.advance(time.Second) // cycle work shorter than the interval
		at, err := tk.Next(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if want := origin.Add(time.Duration(i) * 5 * time.Second); !at.Equal(want) {
			t.Fatalf("activation %d at %v, want %v", i, at.Sub(origin), want.Sub(origin))
		}
	}
	if tk.Missed() != 0 {
		t.Fatalf("missed = %d, want 0", tk.Missed())
	}
}

func TestOverrunSkipsMissedBoundaries(t *testing.T) {
	tk, clk := newFake(5 * time.Second)
	origin, _ := tk.Next(context.Background())

	// The cycle takes 12s: boundaries at 5s and 10s pass while busy.
	clk.advance(12 * time.Second)
	at, err := tk.Next(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got := at.Sub(origin); got != 15*time.Second {
		t.Fatalf("activation after overrun at %v, want 15s", got)
	}
	if tk.Missed() != 2 {
		t.Fatalf("missed = %d, want 2", tk.Missed())
	}

	// Exactly one activation per boundary afterwards; no queued burst.
	at, _ = tk.Next(context.Background())
	if got := at.Sub(origin); got != 20*time.Second {
		t.Fatalf("next activation at %v, want 20s", got)
	}
	for _, d := range clk.sleeps {
		if d <= 0 {
			t.Fatalf("activation fired without waiting (sleeps=%v)", clk.sleeps)
		}
	}
}

func TestOverrunLandingOnBoundary(t *testing.T) {
	tk, clk := newFake(5 * time.Second)
	origin, _ := tk.Next(context.Background())
	clk.advance(5 * time.Second) // finishes exactly on the boundary
	at, _ := tk.Next(context.Background())
	if got := at.Sub(origin); got != 5*time.Second {
		t.Fatalf("activation at %v, want 5s", got)
	}
}

func TestStopIsFinal(t *testing.T) {
	tk, _ := newFake(time.Second)
	_, _ = tk.Next(context.Background())
	tk.Stop()
	if _, err := tk.Next(context.Background()); !errors.Is(err, ErrStopped) {
		t.Fatalf("err = %v, want ErrStopped", err)
	}
}

func TestNextHonoursContext(t *testing.T) {
	tk := New(time.Hour)
	_, _ = tk.Next(context.Background())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := tk.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestEveryRealClockDropsOverrun(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	var stamps []time.Time
	_ = Every(ctx, 40*time.Millisecond, func(_ context.Context, at time.Time) {
		stamps = append(stamps, at)
		if len(stamps) == 1 {
			time.Sleep(90 * time.Millisecond) // overrun two boundaries
		}
	})
	if len(stamps) < 2 {
		t.Fatalf("got %d activations", len(stamps))
	}
	if gap := stamps[1].Sub(stamps[0]); gap != 120*time.Millisecond {
		t.Fatalf("second activation %v after the first, want 120ms", gap)
	}
	for i := 2; i < len(stamps); i++ {
		if gap := stamps[i].Sub(stamps[i-1]); gap != 40*time.Millisecond {
			t.Fatalf("activation %d gap %v, want 40ms", i, gap)
		}
	}
}
