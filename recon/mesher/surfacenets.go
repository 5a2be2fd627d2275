// Package mesher extracts a budgeted triangle mesh from a TSDF volume with a
// two-pass Surface-Nets scheme: a vertex-placement pass puts one candidate
// vertex in every surface-crossing cell, a triangle-emission pass stitches
// neighboring cell vertices into quads across sign-changing lattice edges.
package mesher

import (
	"context"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/scenemesh/depthmesh/recon/compute"
	"github.com/scenemesh/depthmesh/recon/tsdf"
)

// VertexFactor sizes the vertex buffer relative to the triangle budget. A
// quad pair shares four cell vertices, so two vertices per budgeted triangle
// is a safe upper bound.
const VertexFactor = 2

// Buffers is the device-side geometry storage shared by the extraction
// passes and the readback pipeline. The counters are reset before every
// refresh dispatch and read back after; they may overshoot their buffer
// capacity, which is why readback clamps against the budget.
type Buffers struct {
	Vertices []mgl32.Vec3
	Indices  []uint32

	VertexCount   compute.Counter
	TriangleCount compute.Counter

	field       tsdf.Field // point-in-time copy both passes read
	vertexIndex []int32    // per-cell vertex lookup, -1 when no vertex placed
	budget      int
}

// NewBuffers sizes the geometry buffers for a triangle budget over a volume
// with the given voxel count. The index buffer carries one quad of slack so
// emission can stay quad-atomic at the budget boundary.
func NewBuffers(budget, voxels int) *Buffers {
	return &Buffers{
		Vertices:    make([]mgl32.Vec3, budget*VertexFactor),
		Indices:     make([]uint32, (budget+1)*3),
		vertexIndex: make([]int32, voxels),
		budget:      budget,
	}
}

// Budget returns the hard triangle cap.
func (b *Buffers) Budget() int { return b.budget }

// Extractor runs the two extraction passes.
type Extractor struct {
	maxDist float32 // max mesh update distance, 0 disables the cull
}

func NewExtractor(maxMeshUpdateDistance float32) *Extractor {
	return &Extractor{maxDist: maxMeshUpdateDistance}
}

var cellCorners = [8][3]int{
	{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {1, 1, 0},
	{0, 0, 1}, {1, 0, 1}, {0, 1, 1}, {1, 1, 1},
}

// cellEdges indexes into cellCorners.
var cellEdges = [12][2]int{
	{0, 1}, {2, 3}, {4, 5}, {6, 7},
	{0, 2}, {1, 3}, {4, 6}, {5, 7},
	{0, 4}, {1, 5}, {2, 6}, {3, 7},
}

// Extract resets the counters, copies the field, and runs the vertex and
// triangle passes over the full volume extent as parallel compute. The copy
// is taken inside a queued op so the volume lock is never held while awaiting
// device work; both passes read the copy, so they see one consistent field
// even if the integrator fuses in between.
func (e *Extractor) Extract(ctx context.Context, dev compute.Device, vol *tsdf.Volume, buf *Buffers, viewPos mgl32.Vec3) error {
	buf.VertexCount.Reset()
	buf.TriangleCount.Reset()

	field := &buf.field
	fieldCopy := dev.Submit("mesh-field-copy", func() error {
		vol.CopyInto(field)
		return nil
	})
	vertexPass := dev.Dispatch("mesh-vertices", vol.VoxelCount(), func(i int) {
		e.placeVertex(field, buf, viewPos, i)
	})
	trianglePass := dev.Dispatch("mesh-triangles", vol.VoxelCount(), func(i int) {
		e.emitTriangles(field, buf, i)
	})

	if err := fieldCopy.Await(ctx); err != nil {
		return fmt.Errorf("mesher: field copy: %w", err)
	}
	if err := vertexPass.Await(ctx); err != nil {
		return fmt.Errorf("mesher: vertex pass: %w", err)
	}
	if err := trianglePass.Await(ctx); err != nil {
		return fmt.Errorf("mesher: triangle pass: %w", err)
	}
	return nil
}

// placeVertex estimates the surface-crossing point of cell i as the mass
// point of its sign-changing edge crossings and records the cell's slot in
// the vertex-index lookup.
func (e *Extractor) placeVertex(vol *tsdf.Field, buf *Buffers, viewPos mgl32.Vec3, i int) {
	buf.vertexIndex[i] = -1

	dim := vol.Dim()
	x, y, z := vol.Coords(i)
	if x+1 >= dim[0] || y+1 >= dim[1] || z+1 >= dim[2] {
		return
	}

	var sd [8]float32
	for c, off := range cellCorners {
		s, known := vol.SampleAt(vol.Index(x+off[0], y+off[1], z+off[2]))
		if !known {
			return
		}
		sd[c] = s
	}

	if e.maxDist > 0 {
		center := vol.WorldAt(x, y, z).Add(mgl32.Vec3{vol.Pitch() / 2, vol.Pitch() / 2, vol.Pitch() / 2})
		if center.Sub(viewPos).Len() > e.maxDist {
			return
		}
	}

	var sum mgl32.Vec3
	crossings := 0
	for _, edge := range cellEdges {
		a, b := sd[edge[0]], sd[edge[1]]
		if (a < 0) == (b < 0) {
			continue
		}
		t := a / (a - b)
		ca, cb := cellCorners[edge[0]], cellCorners[edge[1]]
		sum = sum.Add(mgl32.Vec3{
			float32(ca[0]) + t*float32(cb[0]-ca[0]),
			float32(ca[1]) + t*float32(cb[1]-ca[1]),
			float32(ca[2]) + t*float32(cb[2]-ca[2]),
		})
		crossings++
	}
	if crossings == 0 {
		return
	}

	local := sum.Mul(1 / float32(crossings))
	world := vol.WorldAt(x, y, z).Add(local.Mul(vol.Pitch()))

	slot := buf.VertexCount.Add(1)
	if int(slot) < len(buf.Vertices) {
		buf.Vertices[slot] = world
		buf.vertexIndex[i] = int32(slot)
	}
}

// emitTriangles stitches a quad across every sign-changing lattice edge
// leaving sample i along +X/+Y/+Z, using the vertices of the four cells that
// share the edge. The triangle counter keeps counting past the budget; only
// triangles that fit are written.
func (e *Extractor) emitTriangles(vol *tsdf.Field, buf *Buffers, i int) {
	x, y, z := vol.Coords(i)

	s0, known := vol.SampleAt(i)
	if !known {
		return
	}

	for axis := 0; axis < 3; axis++ {
		nx, ny, nz := x, y, z
		switch axis {
		case 0:
			nx++
		case 1:
			ny++
		case 2:
			nz++
		}
		ni := vol.Index(nx, ny, nz)
		if ni < 0 {
			continue
		}
		s1, known := vol.SampleAt(ni)
		if !known || (s0 < 0) == (s1 < 0) {
			continue
		}

		// The four cells sharing this edge, offset along the two
		// perpendicular axes.
		du, dv := perpOffsets(axis)
		quad := [4]int32{
			cellVertex(vol, buf, x, y, z),
			cellVertex(vol, buf, x-du[0], y-du[1], z-du[2]),
			cellVertex(vol, buf, x-du[0]-dv[0], y-du[1]-dv[1], z-du[2]-dv[2]),
			cellVertex(vol, buf, x-dv[0], y-dv[1], z-dv[2]),
		}
		if quad[0] < 0 || quad[1] < 0 || quad[2] < 0 || quad[3] < 0 {
			continue
		}
		if s0 >= 0 {
			quad[1], quad[3] = quad[3], quad[1]
		}

		t := buf.TriangleCount.Add(2)
		if int(t) < buf.budget {
			base := int(t) * 3
			buf.Indices[base+0] = uint32(quad[0])
			buf.Indices[base+1] = uint32(quad[1])
			buf.Indices[base+2] = uint32(quad[2])
			buf.Indices[base+3] = uint32(quad[0])
			buf.Indices[base+4] = uint32(quad[2])
			buf.Indices[base+5] = uint32(quad[3])
		}
	}
}

func perpOffsets(axis int) (du, dv [3]int) {
	switch axis {
	case 0:
		return [3]int{0, 1, 0}, [3]int{0, 0, 1}
	case 1:
		return [3]int{1, 0, 0}, [3]int{0, 0, 1}
	default:
		return [3]int{1, 0, 0}, [3]int{0, 1, 0}
	}
}

func cellVertex(vol *tsdf.Field, buf *Buffers, x, y, z int) int32 {
	i := vol.Index(x, y, z)
	if i < 0 {
		return -1
	}
	return buf.vertexIndex[i]
}
