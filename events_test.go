package depthmesh

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignalEmitReachesSubscribers(t *testing.T) {
	var s Signal[int]
	var got []int
	s.Subscribe(func(v int) { got = append(got, v) })
	s.Subscribe(func(v int) { got = append(got, v*10) })

	s.Emit(3)
	require.ElementsMatch(t, []int{3, 30}, got)
}

func TestSignalUnsubscribeStopsDelivery(t *testing.T) {
	var s Signal[struct{}]
	calls := 0
	unsub := s.Subscribe(func(struct{}) { calls++ })

	s.Emit(struct{}{})
	unsub()
	s.Emit(struct{}{})
	require.Equal(t, 1, calls)
}

func TestSignalEmitWithoutSubscribers(t *testing.T) {
	var s Signal[string]
	s.Emit("nobody home")
}

func TestErrorLatchFiresOnce(t *testing.T) {
	var latch ErrorLatch
	log := NewNopLogger()
	require.False(t, latch.Fired())
	latch.Errorf(log, "boom")
	require.True(t, latch.Fired())
	latch.Errorf(log, "boom again")
	require.True(t, latch.Fired())
}
