package timex

import (
	"context"
	"time"

	"cobitis-go/errcode"
)

// NowMs returns Unix milliseconds as int64.
func NowMs() int64 { return time.Now().UnixMilli() }

// PollUntil calls cond every `every` until it reports true, the timeout
// elapses (errcode.Timeout) or ctx is done. cond is evaluated once before the
// first wait.
func PollUntil(ctx context.Context, every, timeout time.Duration, cond func() bool) error {
	if cond() {
		return nil
	}
	if every <= 0 {
		every = 10 * time.Millisecond
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(every)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			if cond() {
				return nil
			}
			return errcode.Timeout
		case <-tick.C:
			if cond() {
				return nil
			}
		}
	}
}
