package depthmesh

import (
	"sync"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/scenemesh/depthmesh/recon/compute"
	"github.com/scenemesh/depthmesh/recon/frame"
)

// SampleResult is one resolved point query. OK is false when the query hit a
// pixel with no valid depth sample or the batch failed as a whole.
type SampleResult struct {
	Value mgl32.Vec3
	OK    bool
}

type sampleBatch struct {
	points  []mgl32.Vec2
	results []SampleResult
	done    chan struct{}
}

// PendingSample is a completion handle for one queued query. Done is closed
// when the owning batch resolves at the end of the frame.
type PendingSample struct {
	batch *sampleBatch
	index int
}

func (p *PendingSample) Done() <-chan struct{} {
	return p.batch.done
}

// Result returns the resolved value. Valid only after Done is closed.
func (p *PendingSample) Result() SampleResult {
	return p.batch.results[p.index]
}

// PointSampler batches world-space point queries against the current frame's
// position and normal maps. Queries accumulate during the frame and resolve
// in one dispatch per map at the end-of-frame flush, preserving submission
// order within a batch.
type PointSampler struct {
	mu        sync.Mutex
	positions *sampleBatch
	normals   *sampleBatch
}

// SamplePosition queues a world-position lookup at normalized coordinates
// in [0,1]x[0,1].
func (s *PointSampler) SamplePosition(ndc mgl32.Vec2) *PendingSample {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.positions == nil {
		s.positions = &sampleBatch{done: make(chan struct{})}
	}
	return enqueue(s.positions, ndc)
}

// SampleNormal queues a surface-normal lookup at normalized coordinates.
func (s *PointSampler) SampleNormal(ndc mgl32.Vec2) *PendingSample {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.normals == nil {
		s.normals = &sampleBatch{done: make(chan struct{})}
	}
	return enqueue(s.normals, ndc)
}

func enqueue(b *sampleBatch, ndc mgl32.Vec2) *PendingSample {
	b.points = append(b.points, ndc)
	return &PendingSample{batch: b, index: len(b.points) - 1}
}

// take hands the accumulated batches to the flusher.
func (s *PointSampler) take() (positions, normals *sampleBatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	positions, normals = s.positions, s.normals
	s.positions, s.normals = nil, nil
	return positions, normals
}

// flush dispatches one batch against a map and resolves it from a watcher
// goroutine once the device finishes. A nil map or a failed dispatch resolves
// every query as unavailable.
func flushBatch(dev compute.Device, label string, b *sampleBatch, m *frame.Map) {
	if b == nil {
		return
	}
	b.results = make([]SampleResult, len(b.points))
	if m == nil {
		close(b.done)
		return
	}
	points := b.points
	results := b.results
	fut := dev.Dispatch(label, len(points), func(i int) {
		v := m.Sample(points[i])
		results[i] = SampleResult{Value: v, OK: v != mgl32.Vec3{}}
	})
	go func() {
		<-fut.Done()
		if err := fut.Err(); err != nil {
			for i := range results {
				results[i] = SampleResult{}
			}
		}
		close(b.done)
	}()
}

// WorldToNDC projects a world point into an eye's depth-map coordinates in
// [0,1]x[0,1]. ok is false when the point is behind the camera or outside
// the frustum.
func WorldToNDC(eye frame.EyeMatrices, world mgl32.Vec3) (mgl32.Vec2, bool) {
	clip := eye.Reprojection.Mul4x1(world.Vec4(1))
	if clip.W() <= 0 {
		return mgl32.Vec2{}, false
	}
	x := clip.X() / clip.W()
	y := clip.Y() / clip.W()
	if x < -1 || x > 1 || y < -1 || y > 1 {
		return mgl32.Vec2{}, false
	}
	return mgl32.Vec2{(x + 1) * 0.5, (y + 1) * 0.5}, true
}

// SamplerModule installs the point sampler and its end-of-frame flush.
type SamplerModule struct{}

func (mod SamplerModule) Install(app *App, cmd *Commands) {
	cmd.AddResources(&PointSampler{})
	cmd.UseSystem(System(samplerFlushSystem).InStage(Finale))
}

func samplerFlushSystem(s *PointSampler, st *frameState, comp *Compute) {
	positions, normals := s.take()
	if positions == nil && normals == nil {
		return
	}
	var snap *frame.Snapshot
	if st.Pre != nil {
		snap = st.Pre.Snapshot()
	}
	var posMap, nrmMap *frame.Map
	if snap != nil {
		posMap, nrmMap = snap.Positions, snap.Normals
	}
	flushBatch(comp.Device, "sample-positions", positions, posMap)
	flushBatch(comp.Device, "sample-normals", normals, nrmMap)
}
