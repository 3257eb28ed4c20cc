package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"cobitis-go/x/logx"
)

func forever(stopped *atomic.Int32) Task {
	return Task{Name: "loop", Run: func(ctx context.Context) error {
		<-ctx.Done()
		stopped.Add(1)
		return ctx.Err()
	}}
}

func TestFirstFailureStopsOthers(t *testing.T) {
	var stopped atomic.Int32
	boom := errors.New("device not found")
	err := Run(context.Background(), logx.Discard(),
		forever(&stopped),
		Task{Name: "sampler", Run: func(context.Context) error {
			time.Sleep(5 * time.Millisecond)
			return boom
		}},
		forever(&stopped),
	)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if err.Error() != "sampler: device not found" {
		t.Fatalf("err = %q", err)
	}
	if stopped.Load() != 2 {
		t.Fatalf("stopped = %d, want 2", stopped.Load())
	}
}

func TestCleanExitIsStillFailure(t *testing.T) {
	var stopped atomic.Int32
	err := Run(context.Background(), logx.Discard(),
		forever(&stopped),
		Task{Name: "display", Run: func(context.Context) error { return nil }},
	)
	if !errors.Is(err, ErrTaskExited) {
		t.Fatalf("err = %v", err)
	}
	if stopped.Load() != 1 {
		t.Fatalf("stopped = %d", stopped.Load())
	}
}

func TestPanicIsReported(t *testing.T) {
	var stopped atomic.Int32
	err := Run(context.Background(), logx.Discard(),
		forever(&stopped),
		Task{Name: "netmon", Run: func(context.Context) error { panic("nil link") }},
	)
	if err == nil || err.Error() != "netmon: panic: nil link" {
		t.Fatalf("err = %v", err)
	}
}

func TestParentCancel(t *testing.T) {
	var stopped atomic.Int32
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := Run(ctx, logx.Discard(), forever(&stopped), forever(&stopped), forever(&stopped))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
	if stopped.Load() != 3 {
		t.Fatalf("stopped = %d", stopped.Load())
	}
}

func TestNoTasks(t *testing.T) {
	if err := Run(context.Background(), logx.Discard()); err != nil {
		t.Fatal(err)
	}
}
