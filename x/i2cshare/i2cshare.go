// Package i2cshare multiplexes one physical I2C bus between several drivers.
//
// An Owner runs a single worker goroutine that performs every transaction on
// the underlying bus in arrival order. Each driver receives its own Handle,
// which satisfies tinygo.org/x/drivers.I2C, so a display and an ADC can sit on
// the same pins without knowing about each other. A transaction is never
// interleaved with another one.
package i2cshare

import (
	"context"
	"time"

	"cobitis-go/errcode"

	"tinygo.org/x/drivers"
)

const queueLen = 16

// request posted to the bus worker
type req struct {
	addr uint16
	w, r []byte
	done chan error // buffered(1); worker replies best-effort
}

// Owner hosts the worker for one bus.
type Owner struct {
	hw   drivers.I2C
	reqs chan req
}

// New wraps hw. Call Run (usually in its own goroutine) before issuing
// transactions through a Handle.
func New(hw drivers.I2C) *Owner {
	return &Owner{hw: hw, reqs: make(chan req, queueLen)}
}

// Run serves transactions until ctx is done.
func (o *Owner) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case rq := <-o.reqs:
			err := o.hw.Tx(rq.addr, rq.w, rq.r)
			select {
			case rq.done <- err:
			default:
			}
		}
	}
}

// Handle returns a drivers.I2C view of the shared bus. timeout bounds both
// the enqueue and the completion wait; zero waits forever.
func (o *Owner) Handle(timeout time.Duration) *Handle {
	return &Handle{o: o, timeout: timeout}
}

// Handle is one driver's view of the shared bus.
type Handle struct {
	o       *Owner
	timeout time.Duration
}

var _ drivers.I2C = (*Handle)(nil)

// Tx queues a transaction and waits for the worker to complete it.
// A full queue past the deadline yields errcode.Busy; a transaction that does
// not complete in time yields errcode.Timeout.
func (h *Handle) Tx(addr uint16, w, r []byte) error {
	rq := req{addr: addr, w: w, r: r, done: make(chan error, 1)}

	if h.timeout <= 0 {
		h.o.reqs <- rq
		return <-rq.done
	}

	t := time.NewTimer(h.timeout)
	defer t.Stop()
	select {
	case h.o.reqs <- rq:
	case <-t.C:
		return errcode.Busy
	}
	select {
	case err := <-rq.done:
		return err
	case <-t.C:
		return errcode.Timeout
	}
}
