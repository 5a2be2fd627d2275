package nav

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/scenemesh/depthmesh/recon/mesh"
)

// floorAndWall builds a flat 4x4 m floor at y=0.5 with a vertical wall
// along its far edge.
func floorAndWall() *mesh.Mesh {
	m := mesh.New()
	addQuad := func(a, b, c, d mgl32.Vec3) {
		base := uint32(len(m.Positions))
		m.Positions = append(m.Positions, a, b, c, d)
		m.Indices = append(m.Indices, base, base+1, base+2, base, base+2, base+3)
	}
	addQuad(
		mgl32.Vec3{0, 0.5, 0},
		mgl32.Vec3{4, 0.5, 0},
		mgl32.Vec3{4, 0.5, 4},
		mgl32.Vec3{0, 0.5, 4},
	)
	addQuad(
		mgl32.Vec3{0, 0, 4},
		mgl32.Vec3{4, 0, 4},
		mgl32.Vec3{4, 2, 4},
		mgl32.Vec3{0, 2, 4},
	)
	return m
}

func TestBakeFloorIsWalkable(t *testing.T) {
	baker := NewGridBaker(0.5, 45)
	bounds := mesh.AABB{Min: mgl32.Vec3{0, 0, 0}, Max: mgl32.Vec3{4, 2, 4.5}}

	g, err := baker.Update(bounds, floorAndWall())
	if err != nil {
		t.Fatalf("bake failed: %v", err)
	}
	if !g.Valid() {
		t.Fatal("fresh grid must be valid")
	}

	cell := g.CellAt(2, 2)
	if cell == nil || !cell.Covered {
		t.Fatal("floor center not covered")
	}
	if !cell.Walkable {
		t.Error("flat floor should be walkable")
	}
	if cell.Height < 0.45 || cell.Height > 0.55 {
		t.Errorf("floor height = %g, want 0.5", cell.Height)
	}
}

func TestBakeWallIsNotWalkable(t *testing.T) {
	baker := NewGridBaker(0.25, 45)
	bounds := mesh.AABB{Min: mgl32.Vec3{0, 0, 0}, Max: mgl32.Vec3{4, 2, 4.5}}

	g, err := baker.Update(bounds, floorAndWall())
	if err != nil {
		t.Fatalf("bake failed: %v", err)
	}

	// A column under the wall keeps the wall's vertical surface as its
	// top hit, which must not be walkable.
	cell := g.CellAt(2, 4.1)
	if cell != nil && cell.Covered && cell.Walkable {
		t.Error("vertical wall surface marked walkable")
	}
}

func TestInvalidateHidesGrid(t *testing.T) {
	baker := NewGridBaker(0.5, 45)
	bounds := mesh.AABB{Min: mgl32.Vec3{0, 0, 0}, Max: mgl32.Vec3{4, 2, 4.5}}

	g, err := baker.Update(bounds, floorAndWall())
	if err != nil {
		t.Fatalf("bake failed: %v", err)
	}

	g.Invalidate()
	if g.Valid() {
		t.Error("grid still valid after invalidation")
	}
	if g.CellAt(2, 2) != nil {
		t.Error("invalidated grid still serves cells")
	}
}

func TestBakeRejectsEmptyMesh(t *testing.T) {
	baker := NewGridBaker(0.5, 45)
	if _, err := baker.Update(mesh.AABB{}, mesh.New()); err == nil {
		t.Error("expected an error baking an empty mesh")
	}
}
