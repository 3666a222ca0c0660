// Package admission implements the Admission Controller: a single
// global FIFO counting semaphore gating concurrent submissions across
// their entire pipeline.
package admission

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Controller bounds the number of submissions in flight between
// permit-acquire and permit-release to its configured capacity,
// backed by golang.org/x/sync/semaphore.Weighted (weight 1 per
// acquire) rather than a hand-rolled channel semaphore.
type Controller struct {
	sem      *semaphore.Weighted
	inFlight int64
}

// New returns a Controller with capacity permits.
func New(capacity int64) *Controller {
	return &Controller{sem: semaphore.NewWeighted(capacity)}
}

// Acquire blocks, FIFO, until a permit is available or ctx is
// cancelled. The returned release func must be called exactly once,
// on every exit path, to return the permit.
func (c *Controller) Acquire(ctx context.Context) (release func(), err error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	atomic.AddInt64(&c.inFlight, 1)

	var released int32
	return func() {
		if !atomic.CompareAndSwapInt32(&released, 0, 1) {
			return
		}
		atomic.AddInt64(&c.inFlight, -1)
		c.sem.Release(1)
	}, nil
}

// InFlight reports the current number of submissions holding a
// permit, used to assert the admission invariant in tests.
func (c *Controller) InFlight() int64 {
	return atomic.LoadInt64(&c.inFlight)
}
