package depthmesh

import (
	"sync"

	"github.com/scenemesh/depthmesh/recon/mesh"
)

// Signal is a minimal synchronous broadcast: Emit invokes every live
// subscriber on the caller's goroutine. Subscribers must be quick and must
// not re-enter Subscribe/Unsubscribe from the callback.
type Signal[T any] struct {
	mu   sync.Mutex
	next int
	subs map[int]func(T)
}

// Subscribe registers a callback and returns the function that removes it.
func (s *Signal[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs == nil {
		s.subs = make(map[int]func(T))
	}
	id := s.next
	s.next++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Signal[T]) Emit(value T) {
	s.mu.Lock()
	fns := make([]func(T), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(value)
	}
}

// MeshRefresh describes one completed surface refresh.
type MeshRefresh struct {
	Triangles int
	Mesh      *mesh.Mesh
}

// Events is the resource carrying the module's notifications.
//
// DataAvailable fires once, on the first frame whose depth data produced a
// usable snapshot. MeshRefreshed fires after every refresh that changed the
// published mesh, once all enabled consumers (collision, nav) have been
// handed the result. Recentered fires when the volume is cleared around a
// new origin.
type Events struct {
	DataAvailable Signal[struct{}]
	MeshRefreshed Signal[MeshRefresh]
	Recentered    Signal[struct{}]
}

func NewEvents() *Events {
	return &Events{}
}

// EventsModule installs the notification resource. Install it before any
// module that subscribes at install time.
type EventsModule struct{}

func (mod EventsModule) Install(app *App, cmd *Commands) {
	cmd.AddResources(NewEvents())
}
