package compute

import (
	"context"
	"errors"
	"testing"
)

func TestDispatchCoversAllItems(t *testing.T) {
	d := NewDeviceWithWorkers(4)
	defer d.Close()

	hits := make([]int32, 1000)
	fut := d.Dispatch("touch", len(hits), func(i int) {
		hits[i]++
	})
	if err := fut.Await(context.Background()); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	d.Wait()
	for i, h := range hits {
		if h != 1 {
			t.Fatalf("item %d executed %d times", i, h)
		}
	}
}

func TestSubmitOrderedAfterDispatch(t *testing.T) {
	d := NewDeviceWithWorkers(2)
	defer d.Close()

	var c Counter
	d.Dispatch("count", 100, func(i int) {
		c.Add(1)
	})
	var got uint32
	fut := ReadCounter(d, "count-read", &c, &got)
	if err := fut.Await(context.Background()); err != nil {
		t.Fatalf("readback failed: %v", err)
	}
	if got != 100 {
		t.Errorf("expected counter 100 after prior dispatch, got %d", got)
	}
}

func TestReadPrefixBounds(t *testing.T) {
	d := NewDeviceWithWorkers(1)
	defer d.Close()

	src := []float32{1, 2, 3, 4}
	dst := make([]float32, 2)

	fut := ReadPrefix(d, "prefix", src, dst, 2)
	if err := fut.Await(context.Background()); err != nil {
		t.Fatalf("prefix read failed: %v", err)
	}
	if dst[0] != 1 || dst[1] != 2 {
		t.Errorf("unexpected prefix contents %v", dst)
	}

	bad := ReadPrefix(d, "prefix-oob", src, dst, 3)
	<-bad.Done()
	if bad.Err() == nil {
		t.Error("out-of-bounds prefix read should fail")
	}
}

func TestFutureErrBeforeCompletion(t *testing.T) {
	f := newFuture()
	if !errors.Is(f.Err(), ErrPending) {
		t.Errorf("expected ErrPending, got %v", f.Err())
	}
	f.complete(nil)
	if f.Err() != nil {
		t.Errorf("expected nil after completion, got %v", f.Err())
	}
}

func TestClosedDeviceRejectsWork(t *testing.T) {
	d := NewDeviceWithWorkers(1)
	d.Close()
	fut := d.Submit("late", func() error { return nil })
	<-fut.Done()
	if !errors.Is(fut.Err(), ErrDeviceClosed) {
		t.Errorf("expected ErrDeviceClosed, got %v", fut.Err())
	}
}
