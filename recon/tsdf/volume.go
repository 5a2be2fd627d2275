// Package tsdf owns the truncated signed distance field the reconstruction
// fuses depth evidence into, and the frustum lookup volume that drives each
// integration tick.
package tsdf

import (
	"sync"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/scenemesh/depthmesh/recon/mesh"
)

// TruncationFactor scales the voxel pitch into the truncation distance.
const TruncationFactor = 3

// maxFuseWeight caps the running-average weight so the field keeps adapting
// to scene changes instead of freezing.
const maxFuseWeight = 64

// Volume is a fixed-size grid of signed distance samples on a voxel lattice.
// Sample magnitude never exceeds the truncation distance; positive means in
// front of the reconstructed surface, negative behind it. The integrator is
// the only writer. Passes that run on the device never hold the volume lock
// across an await: they copy the samples through CopyInto inside a queued op
// and read the copy. Direct host-side reads take RLock.
type Volume struct {
	mu sync.RWMutex

	dim    [3]int
	pitch  float32
	trunc  float32
	origin mgl32.Vec3

	sdf    []float32
	weight []float32
}

// NewVolume allocates a neutral volume centered on the tracking origin.
func NewVolume(dim [3]int, pitch float32) *Volume {
	n := dim[0] * dim[1] * dim[2]
	v := &Volume{
		dim:   dim,
		pitch: pitch,
		trunc: TruncationFactor * pitch,
		origin: mgl32.Vec3{
			-float32(dim[0]-1) * pitch / 2,
			-float32(dim[1]-1) * pitch / 2,
			-float32(dim[2]-1) * pitch / 2,
		},
		sdf:    make([]float32, n),
		weight: make([]float32, n),
	}
	v.resetLocked()
	return v
}

func (v *Volume) resetLocked() {
	for i := range v.sdf {
		v.sdf[i] = v.trunc
		v.weight[i] = 0
	}
}

// Clear resets every sample to neutral. Called on a recenter event.
func (v *Volume) Clear() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.resetLocked()
}

// RLock takes the volume's read lock for a direct host-side read.
func (v *Volume) RLock() { v.mu.RLock() }

// RUnlock releases the read lock.
func (v *Volume) RUnlock() { v.mu.RUnlock() }

// Dim returns the lattice dimensions.
func (v *Volume) Dim() [3]int { return v.dim }

// Pitch returns the voxel pitch in meters.
func (v *Volume) Pitch() float32 { return v.pitch }

// Truncation returns the truncation distance.
func (v *Volume) Truncation() float32 { return v.trunc }

// VoxelCount returns the number of lattice samples.
func (v *Volume) VoxelCount() int { return len(v.sdf) }

// Index maps lattice coordinates to a linear sample index, -1 outside.
func (v *Volume) Index(x, y, z int) int {
	if x < 0 || x >= v.dim[0] || y < 0 || y >= v.dim[1] || z < 0 || z >= v.dim[2] {
		return -1
	}
	return (z*v.dim[1]+y)*v.dim[0] + x
}

// Coords inverts Index.
func (v *Volume) Coords(i int) (x, y, z int) {
	x = i % v.dim[0]
	y = (i / v.dim[0]) % v.dim[1]
	z = i / (v.dim[0] * v.dim[1])
	return
}

// WorldAt returns the world position of a lattice sample.
func (v *Volume) WorldAt(x, y, z int) mgl32.Vec3 {
	return v.origin.Add(mgl32.Vec3{
		float32(x) * v.pitch,
		float32(y) * v.pitch,
		float32(z) * v.pitch,
	})
}

// VoxelOf maps a world position to the nearest lattice sample, -1 outside.
func (v *Volume) VoxelOf(p mgl32.Vec3) int {
	rel := p.Sub(v.origin).Mul(1 / v.pitch)
	x := int(rel.X() + 0.5)
	y := int(rel.Y() + 0.5)
	z := int(rel.Z() + 0.5)
	if rel.X() < -0.5 || rel.Y() < -0.5 || rel.Z() < -0.5 {
		return -1
	}
	return v.Index(x, y, z)
}

// SampleAt returns the signed distance at a lattice sample and whether any
// evidence has been fused there. Callers hold the read lock; device passes
// read a Field copy instead.
func (v *Volume) SampleAt(i int) (float32, bool) {
	return v.sdf[i], v.weight[i] > 0
}

// WorldExtent returns the volume's analytic world bounds, used as the
// published mesh bounds instead of recomputing them from geometry.
func (v *Volume) WorldExtent() mesh.AABB {
	return mesh.AABB{
		Min: v.origin,
		Max: v.origin.Add(mgl32.Vec3{
			float32(v.dim[0]-1) * v.pitch,
			float32(v.dim[1]-1) * v.pitch,
			float32(v.dim[2]-1) * v.pitch,
		}),
	}
}

// Seed fills every sample from an analytic distance function, truncated and
// marked as known. Intended for synthetic fields in tests and tooling; live
// reconstruction goes through the integrator.
func (v *Volume) Seed(f func(p mgl32.Vec3) float32) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i := range v.sdf {
		x, y, z := v.Coords(i)
		sd := f(v.WorldAt(x, y, z))
		if sd > v.trunc {
			sd = v.trunc
		} else if sd < -v.trunc {
			sd = -v.trunc
		}
		v.sdf[i] = sd
		v.weight[i] = 1
	}
}

// fuse folds one truncated signed distance observation into sample i as a
// weighted running average. Caller holds the write lock.
func (v *Volume) fuse(i int, sd float32) {
	w := v.weight[i]
	v.sdf[i] = (v.sdf[i]*w + sd) / (w + 1)
	if w < maxFuseWeight {
		v.weight[i] = w + 1
	}
}

// Field is a point-in-time copy of the volume's samples sharing its lattice
// geometry. Extraction passes read a Field so the two passes see one
// consistent state of the grid without holding the volume lock while queued
// device work is in flight.
type Field struct {
	vol    *Volume
	sdf    []float32
	weight []float32
}

// CopyInto refreshes f with the current samples. The read lock is held only
// for the duration of the copy, so callers may run this inside a queued
// device op without stalling the queue on the integrator's write lock.
func (v *Volume) CopyInto(f *Field) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	f.vol = v
	if len(f.sdf) != len(v.sdf) {
		f.sdf = make([]float32, len(v.sdf))
		f.weight = make([]float32, len(v.weight))
	}
	copy(f.sdf, v.sdf)
	copy(f.weight, v.weight)
}

// SampleAt returns the copied signed distance at a lattice sample and
// whether any evidence had been fused there at copy time.
func (f *Field) SampleAt(i int) (float32, bool) {
	return f.sdf[i], f.weight[i] > 0
}

// Dim returns the lattice dimensions.
func (f *Field) Dim() [3]int { return f.vol.dim }

// Pitch returns the voxel pitch in meters.
func (f *Field) Pitch() float32 { return f.vol.pitch }

// VoxelCount returns the number of lattice samples.
func (f *Field) VoxelCount() int { return len(f.sdf) }

// Index maps lattice coordinates to a linear sample index, -1 outside.
func (f *Field) Index(x, y, z int) int { return f.vol.Index(x, y, z) }

// Coords inverts Index.
func (f *Field) Coords(i int) (x, y, z int) { return f.vol.Coords(i) }

// WorldAt returns the world position of a lattice sample.
func (f *Field) WorldAt(x, y, z int) mgl32.Vec3 { return f.vol.WorldAt(x, y, z) }
