package depthmesh

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"

	"github.com/scenemesh/depthmesh/recon/collision"
	"github.com/scenemesh/depthmesh/recon/compute"
	"github.com/scenemesh/depthmesh/recon/frame"
	"github.com/scenemesh/depthmesh/recon/mesh"
	"github.com/scenemesh/depthmesh/recon/mesher"
	"github.com/scenemesh/depthmesh/recon/tsdf"
)

// MeshPipeline turns the TSDF volume into the published mesh: extract,
// read back the counted prefix, clamp to the budget, then fan the result out
// to the collision and nav consumers before notifying listeners. A refresh
// either completes fully or leaves the published mesh untouched.
type MeshPipeline struct {
	dev     compute.Device
	vol     *tsdf.Volume
	extract *mesher.Extractor
	buffers *mesher.Buffers
	events  *Events
	log     Logger

	snapshot func() *frame.Snapshot

	collision CollisionConsumer
	baker     collision.Baker
	navBaker  NavMeshBaker

	meshID    uuid.UUID
	published atomic.Pointer[mesh.Mesh]

	mu       sync.Mutex
	prevBake *collision.Handle
	prevNav  NavData
}

// MeshPipelineConfig wires the pipeline's collaborators. Collision and
// NavBaker are optional; a nil consumer disables that bake.
type MeshPipelineConfig struct {
	Device    compute.Device
	Volume    *tsdf.Volume
	Extractor *mesher.Extractor
	Buffers   *mesher.Buffers
	Snapshot  func() *frame.Snapshot
	Events    *Events
	Logger    Logger
	Collision CollisionConsumer
	NavBaker  NavMeshBaker
}

func NewMeshPipeline(cfg MeshPipelineConfig) *MeshPipeline {
	log := cfg.Logger
	if log == nil {
		log = NewNopLogger()
	}
	return &MeshPipeline{
		dev:       cfg.Device,
		vol:       cfg.Volume,
		extract:   cfg.Extractor,
		buffers:   cfg.Buffers,
		events:    cfg.Events,
		log:       log,
		snapshot:  cfg.Snapshot,
		collision: cfg.Collision,
		navBaker:  cfg.NavBaker,
		meshID:    uuid.New(),
	}
}

// Published returns the most recently completed mesh, or nil before the
// first successful refresh.
func (p *MeshPipeline) Published() *mesh.Mesh {
	return p.published.Load()
}

// MeshID returns the stable identifier shared by every published refresh.
func (p *MeshPipeline) MeshID() uuid.UUID {
	return p.meshID
}

// Refresh runs one full extraction and readback cycle. With no depth data
// yet it is a pure no-op. A zero-triangle extraction short-circuits before
// any geometry readback and publishes an empty mesh without notifying.
func (p *MeshPipeline) Refresh(ctx context.Context) error {
	snap := p.snapshot()
	if snap == nil {
		return nil
	}
	viewPos := snap.Eyes[0].CameraPosition

	if err := p.extract.Extract(ctx, p.dev, p.vol, p.buffers, viewPos); err != nil {
		return err
	}

	var rawTris, rawVerts uint32
	triRead := compute.ReadCounter(p.dev, "readback-tricount", &p.buffers.TriangleCount, &rawTris)
	if err := triRead.Await(ctx); err != nil {
		return fmt.Errorf("mesh refresh: triangle count: %w", err)
	}
	if rawTris == 0 {
		p.publish(&mesh.Mesh{ID: p.meshID})
		return nil
	}

	vertRead := compute.ReadCounter(p.dev, "readback-vertcount", &p.buffers.VertexCount, &rawVerts)
	if err := vertRead.Await(ctx); err != nil {
		return fmt.Errorf("mesh refresh: vertex count: %w", err)
	}

	// Counters may overshoot the device buffers; the prefix that was
	// actually written is bounded by capacity.
	tris := min(int(rawTris), p.buffers.Budget())
	verts := min(int(rawVerts), len(p.buffers.Vertices))

	out := &mesh.Mesh{
		ID:        p.meshID,
		Positions: make([]mgl32.Vec3, verts),
		Indices:   make([]uint32, tris*3),
		Bounds:    p.vol.WorldExtent(),
	}

	posRead := compute.ReadPrefix(p.dev, "readback-positions", p.buffers.Vertices, out.Positions, verts)
	idxRead := compute.ReadPrefix(p.dev, "readback-indices", p.buffers.Indices, out.Indices, tris*3)
	if err := posRead.Await(ctx); err != nil {
		return fmt.Errorf("mesh refresh: positions: %w", err)
	}
	if err := idxRead.Await(ctx); err != nil {
		return fmt.Errorf("mesh refresh: indices: %w", err)
	}

	p.publish(out)
	p.fanOut(out)
	p.events.MeshRefreshed.Emit(MeshRefresh{Triangles: tris, Mesh: out})
	p.log.Debugf("mesh refresh: %d triangles, %d vertices", tris, verts)
	return nil
}

func (p *MeshPipeline) publish(m *mesh.Mesh) {
	p.published.Store(m)
}

// fanOut runs the enabled consumers sequentially: the collider bake joins
// before the consumer callback, and stale nav data is invalidated before the
// replacement is baked.
func (p *MeshPipeline) fanOut(m *mesh.Mesh) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.collision != nil {
		if p.prevBake != nil {
			p.prevBake.Wait()
		}
		h := p.baker.Start(m)
		p.prevBake = h
		bvh, err := h.Wait()
		if err != nil {
			p.log.Warnf("collision bake failed: %v", err)
		} else {
			p.collision.ColliderBaked(m.ID, bvh)
		}
	}

	if p.navBaker != nil {
		if p.prevNav != nil {
			p.prevNav.Invalidate()
			p.prevNav = nil
		}
		nd, err := p.navBaker.Update(m.Bounds, m)
		if err != nil {
			p.log.Warnf("nav bake failed: %v", err)
		} else {
			p.prevNav = nd
		}
	}
}

// Close joins any in-flight collision bake so teardown never races a worker.
func (p *MeshPipeline) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.prevBake != nil {
		p.prevBake.Wait()
		p.prevBake = nil
	}
}
