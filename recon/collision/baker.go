package collision

import (
	"github.com/scenemesh/depthmesh/recon/mesh"
)

// Handle tracks one background bake. Wait blocks until the bake finishes;
// it is also how the owner force-completes the worker before teardown.
type Handle struct {
	done chan struct{}
	bvh  *BVH
	err  error
}

// Done is closed when the bake has finished.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait joins the worker and returns the bake result.
func (h *Handle) Wait() (*BVH, error) {
	<-h.done
	return h.bvh, h.err
}

// Baker runs mesh bakes off the refresh loop, one at a time. The refresh
// pipeline joins the previous handle before starting a new bake and joins
// the new one before handing its result to the collider consumer.
type Baker struct{}

// Start kicks off a background bake of the given mesh and returns its
// completion handle. The mesh must not be mutated while the bake is in
// flight; the pipeline guarantees this by publishing a fresh mesh instance
// per refresh.
func (Baker) Start(m *mesh.Mesh) *Handle {
	h := &Handle{done: make(chan struct{})}
	go func() {
		defer close(h.done)
		h.bvh, h.err = Build(m)
	}()
	return h
}
