// Package nav derives walkability data from the published reconstruction
// mesh. The grid it bakes is the opaque navigation handle the refresh
// pipeline tracks and invalidates between refreshes.
package nav

import (
	"errors"
	"sync/atomic"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/scenemesh/depthmesh/recon/mesh"
)

// Cell is one column of the 2.5D grid, Y-up. Covered is false for columns
// no surface was baked into.
type Cell struct {
	Height   float32
	Walkable bool
	Covered  bool
}

// Grid is a baked navigation grid over the mesh bounds. It stays usable
// until the pipeline invalidates it ahead of the next bake.
type Grid struct {
	origin   mgl32.Vec3 // min corner of the covered bounds
	cellSize float32
	w, d     int
	cells    []Cell

	invalid atomic.Bool
}

// Valid reports whether the grid still reflects the published mesh.
func (g *Grid) Valid() bool {
	return !g.invalid.Load()
}

// Invalidate marks the grid stale. Called by the pipeline before it
// requests a replacement bake.
func (g *Grid) Invalidate() {
	g.invalid.Store(true)
}

// Size returns the grid dimensions in cells.
func (g *Grid) Size() (w, d int) {
	return g.w, g.d
}

// CellAt returns the cell covering the world-space X/Z position, or nil
// outside the grid or after invalidation.
func (g *Grid) CellAt(x, z float32) *Cell {
	if g.invalid.Load() {
		return nil
	}
	cx := int(math32.Floor((x - g.origin.X()) / g.cellSize))
	cz := int(math32.Floor((z - g.origin.Z()) / g.cellSize))
	if cx < 0 || cx >= g.w || cz < 0 || cz >= g.d {
		return nil
	}
	return &g.cells[cz*g.w+cx]
}

// GridBaker bakes Grids from mesh geometry. It implements the pipeline's
// navigation-baker interface.
type GridBaker struct {
	CellSize float32
	MaxSlope float32 // degrees from horizontal a surface may tilt and stay walkable
}

func NewGridBaker(cellSize, maxSlopeDegrees float32) *GridBaker {
	return &GridBaker{CellSize: cellSize, MaxSlope: maxSlopeDegrees}
}

// Update bakes a fresh grid for the mesh within the given bounds and
// returns it as the new navigation handle.
func (b *GridBaker) Update(bounds mesh.AABB, m *mesh.Mesh) (*Grid, error) {
	if m == nil || m.TriangleCount() == 0 {
		return nil, errors.New("nav: nothing to bake")
	}
	if b.CellSize <= 0 {
		return nil, errors.New("nav: cell size must be positive")
	}

	w := int(math32.Ceil((bounds.Max.X() - bounds.Min.X()) / b.CellSize))
	d := int(math32.Ceil((bounds.Max.Z() - bounds.Min.Z()) / b.CellSize))
	if w < 1 || d < 1 {
		return nil, errors.New("nav: degenerate bounds")
	}

	g := &Grid{
		origin:   bounds.Min,
		cellSize: b.CellSize,
		w:        w,
		d:        d,
		cells:    make([]Cell, w*d),
	}

	minUp := math32.Cos(mgl32.DegToRad(b.MaxSlope))
	for ti := 0; ti < m.TriangleCount(); ti++ {
		tri := m.Triangle(ti)
		b.rasterize(g, tri, minUp)
	}
	return g, nil
}

// rasterize stamps one triangle into every cell whose center it covers,
// keeping the highest surface per column.
func (b *GridBaker) rasterize(g *Grid, tri [3]mgl32.Vec3, minUp float32) {
	n := tri[1].Sub(tri[0]).Cross(tri[2].Sub(tri[0]))
	if n.Len() == 0 {
		return
	}
	n = n.Normalize()
	walkable := math32.Abs(n.Y()) >= minUp

	minX := math32.Min(tri[0].X(), math32.Min(tri[1].X(), tri[2].X()))
	maxX := math32.Max(tri[0].X(), math32.Max(tri[1].X(), tri[2].X()))
	minZ := math32.Min(tri[0].Z(), math32.Min(tri[1].Z(), tri[2].Z()))
	maxZ := math32.Max(tri[0].Z(), math32.Max(tri[1].Z(), tri[2].Z()))

	c0 := int(math32.Floor((minX - g.origin.X()) / g.cellSize))
	c1 := int(math32.Floor((maxX - g.origin.X()) / g.cellSize))
	r0 := int(math32.Floor((minZ - g.origin.Z()) / g.cellSize))
	r1 := int(math32.Floor((maxZ - g.origin.Z()) / g.cellSize))

	for r := max(r0, 0); r <= min(r1, g.d-1); r++ {
		for c := max(c0, 0); c <= min(c1, g.w-1); c++ {
			cx := g.origin.X() + (float32(c)+0.5)*g.cellSize
			cz := g.origin.Z() + (float32(r)+0.5)*g.cellSize
			h, inside := triangleHeightAt(tri, cx, cz)
			if !inside {
				continue
			}
			cell := &g.cells[r*g.w+c]
			if !cell.Covered || h >= cell.Height {
				cell.Height = h
				cell.Walkable = walkable
				cell.Covered = true
			}
		}
	}
}

// triangleHeightAt computes the surface height of the triangle above the
// X/Z point via barycentric interpolation, reporting whether the point is
// covered at all.
func triangleHeightAt(tri [3]mgl32.Vec3, x, z float32) (float32, bool) {
	ax, az := tri[0].X(), tri[0].Z()
	bx, bz := tri[1].X(), tri[1].Z()
	cx, cz := tri[2].X(), tri[2].Z()

	den := (bz-cz)*(ax-cx) + (cx-bx)*(az-cz)
	if den == 0 {
		return 0, false
	}
	l0 := ((bz-cz)*(x-cx) + (cx-bx)*(z-cz)) / den
	l1 := ((cz-az)*(x-cx) + (ax-cx)*(z-cz)) / den
	l2 := 1 - l0 - l1
	const eps = -1e-4
	if l0 < eps || l1 < eps || l2 < eps {
		return 0, false
	}
	return l0*tri[0].Y() + l1*tri[1].Y() + l2*tri[2].Y(), true
}
