package compute

import (
	"fmt"
	"sync/atomic"
)

// Counter is a device-side atomic counter, reset before a dispatch and read
// back after. Kernels bump it with Add; the host reads it only through
// ReadCounter so the value observed is ordered after prior dispatches.
type Counter struct {
	v atomic.Uint32
}

// Reset stores zero. Host side, before the owning dispatch is submitted.
func (c *Counter) Reset() {
	c.v.Store(0)
}

// Add increments by n and returns the value before the increment, which is
// the slot index a kernel may write into.
func (c *Counter) Add(n uint32) uint32 {
	return c.v.Add(n) - n
}

// Load returns the current value without queue ordering. Host-side checks
// after the owning dispatch has completed; live readback goes through
// ReadCounter so the observed value is ordered against the queue.
func (c *Counter) Load() uint32 {
	return c.v.Load()
}

// ReadCounter asynchronously copies the counter value to the host.
func ReadCounter(d Device, label string, c *Counter, out *uint32) *Future {
	return d.Submit(label, func() error {
		*out = c.v.Load()
		return nil
	})
}

// ReadPrefix asynchronously copies src[:count] into dst, which must already
// be sized by the caller from a counter read. Only the prefix moves across
// the boundary; the rest of the device buffer is never transferred.
func ReadPrefix[T any](d Device, label string, src []T, dst []T, count int) *Future {
	if count < 0 || count > len(src) || count > len(dst) {
		return completedFuture(fmt.Errorf("%s: readback range %d out of bounds (src %d, dst %d)",
			label, count, len(src), len(dst)))
	}
	return d.Submit(label, func() error {
		copy(dst[:count], src[:count])
		return nil
	})
}
