// Package compute models the asynchronous compute domain the reconstruction
// pipeline runs on: dispatches are submitted to a queue that executes them in
// submission order, each dispatch fans a kernel out over a worker pool, and
// results cross back to the host through explicit readback operations that
// report failure instead of panicking. Host code must treat everything between
// submission and Future completion as in flight on the device.
package compute

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
)

var (
	// ErrPending is returned by Future.Err before completion.
	ErrPending = errors.New("compute: operation still in flight")
	// ErrDeviceClosed rejects work submitted after Close.
	ErrDeviceClosed = errors.New("compute: device closed")
)

// Device executes kernels and readbacks asynchronously, in submission order.
type Device interface {
	// Dispatch runs kernel(i) for i in [0, items) on the worker pool.
	Dispatch(label string, items int, kernel func(i int)) *Future

	// Submit runs a single host-visible operation (counter or buffer
	// readback) on the queue. It is ordered after every previously
	// submitted dispatch, which is what makes readbacks coherent.
	Submit(label string, op func() error) *Future

	// Wait drains the queue. Teardown only.
	Wait()

	// Close drains the queue and stops the device. Further submissions
	// complete immediately with ErrDeviceClosed.
	Close()
}

type queuedOp struct {
	label  string
	items  int
	kernel func(i int)
	op     func() error
	fut    *Future
}

// pooledDevice is the default Device: one queue goroutine serializes
// operations, kernels run chunked across NumCPU workers.
type pooledDevice struct {
	workers int

	mu     sync.Mutex
	closed bool
	queue  chan queuedOp
	drain  sync.WaitGroup
}

// NewDevice creates a device with one worker per logical CPU.
func NewDevice() Device {
	return NewDeviceWithWorkers(runtime.NumCPU())
}

// NewDeviceWithWorkers creates a device with a fixed worker count.
// Tests use a single worker for determinism of scheduling.
func NewDeviceWithWorkers(workers int) Device {
	if workers < 1 {
		workers = 1
	}
	d := &pooledDevice{
		workers: workers,
		queue:   make(chan queuedOp, 64),
	}
	d.drain.Add(1)
	go d.run()
	return d
}

func (d *pooledDevice) run() {
	defer d.drain.Done()
	for qo := range d.queue {
		if qo.kernel != nil {
			d.parallelFor(qo.items, qo.kernel)
			qo.fut.complete(nil)
			continue
		}
		qo.fut.complete(qo.op())
	}
}

func (d *pooledDevice) parallelFor(items int, kernel func(i int)) {
	if items <= 0 {
		return
	}
	chunk := (items + d.workers - 1) / d.workers
	var wg sync.WaitGroup
	for start := 0; start < items; start += chunk {
		end := start + chunk
		if end > items {
			end = items
		}
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			for i := lo; i < hi; i++ {
				kernel(i)
			}
		}(start, end)
	}
	wg.Wait()
}

func (d *pooledDevice) enqueue(qo queuedOp) *Future {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return completedFuture(fmt.Errorf("%s: %w", qo.label, ErrDeviceClosed))
	}
	qo.fut = newFuture()
	d.queue <- qo
	return qo.fut
}

func (d *pooledDevice) Dispatch(label string, items int, kernel func(i int)) *Future {
	return d.enqueue(queuedOp{label: label, items: items, kernel: kernel})
}

func (d *pooledDevice) Submit(label string, op func() error) *Future {
	return d.enqueue(queuedOp{label: label, op: op})
}

func (d *pooledDevice) Wait() {
	barrier := d.Submit("wait-barrier", func() error { return nil })
	<-barrier.Done()
}

func (d *pooledDevice) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	d.drain.Wait()
}
