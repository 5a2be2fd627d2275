// Package mesh holds the externally consumable geometry produced by the
// reconstruction pipeline.
package mesh

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

// AABB is an axis-aligned bounding box in world space.
type AABB struct {
	Min mgl32.Vec3
	Max mgl32.Vec3
}

// Center returns the box midpoint.
func (b AABB) Center() mgl32.Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

// Contains reports whether p lies inside the box (inclusive).
func (b AABB) Contains(p mgl32.Vec3) bool {
	return p.X() >= b.Min.X() && p.X() <= b.Max.X() &&
		p.Y() >= b.Min.Y() && p.Y() <= b.Max.Y() &&
		p.Z() >= b.Min.Z() && p.Z() <= b.Max.Z()
}

// Mesh is a position-only triangle mesh with 32-bit indices and a single
// submesh. ID is stable across refreshes of the same reconstruction so that
// native bake calls can reference the mesh without re-registering it.
type Mesh struct {
	ID        uuid.UUID
	Positions []mgl32.Vec3
	Indices   []uint32
	Bounds    AABB
}

// New allocates an empty mesh with a fresh identifier.
func New() *Mesh {
	return &Mesh{ID: uuid.New()}
}

// TriangleCount returns the number of whole triangles in the index stream.
func (m *Mesh) TriangleCount() int {
	return len(m.Indices) / 3
}

// Triangle returns the three corner positions of triangle t.
func (m *Mesh) Triangle(t int) [3]mgl32.Vec3 {
	i := t * 3
	return [3]mgl32.Vec3{
		m.Positions[m.Indices[i]],
		m.Positions[m.Indices[i+1]],
		m.Positions[m.Indices[i+2]],
	}
}
