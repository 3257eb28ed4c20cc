// Package supervisor runs the probe's long-lived loops as one unit. The
// loops are expected to run forever; the first one to return, with or
// without an error, brings the whole group down.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cobitis-go/x/logx"
)

// Task is one supervised loop.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// ErrTaskExited is returned (wrapped) when a task returns nil.
var ErrTaskExited = errors.New("supervisor: task exited")

type result struct {
	name string
	err  error
}

// Run starts every task and waits for the first to finish. It then cancels
// the rest, waits for them to return and reports the first task's outcome.
// A nil return from a task is still a failure: the result wraps
// ErrTaskExited. If ctx is cancelled first, Run returns ctx.Err().
func Run(parent context.Context, log *slog.Logger, tasks ...Task) error {
	if len(tasks) == 0 {
		return nil
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	done := make(chan result, len(tasks))
	for _, t := range tasks {
		go func(t Task) {
			done <- result{name: t.Name, err: runSafe(ctx, t)}
		}(t)
	}

	first := <-done
	cancel()
	for i := 1; i < len(tasks); i++ {
		<-done
	}

	if err := parent.Err(); err != nil {
		return err
	}
	err := first.err
	if err == nil {
		err = ErrTaskExited
	}
	log.Error("task finished, stopping", slog.String("task", first.name), logx.Err(err))
	return fmt.Errorf("%s: %w", first.name, err)
}

func runSafe(ctx context.Context, t Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return t.Run(ctx)
}
