package collision

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/scenemesh/depthmesh/recon/mesh"
)

func quadMesh() *mesh.Mesh {
	m := mesh.New()
	// Two quads in the y=0 plane, one near the origin, one 10 m away.
	addQuad := func(ox float32) {
		base := uint32(len(m.Positions))
		m.Positions = append(m.Positions,
			mgl32.Vec3{ox, 0, 0},
			mgl32.Vec3{ox + 1, 0, 0},
			mgl32.Vec3{ox + 1, 0, 1},
			mgl32.Vec3{ox, 0, 1},
		)
		m.Indices = append(m.Indices, base, base+1, base+2, base, base+2, base+3)
	}
	addQuad(0)
	addQuad(10)
	return m
}

func TestBuildCoversAllTriangles(t *testing.T) {
	m := quadMesh()
	bvh, err := Build(m)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if bvh.MeshID != m.ID {
		t.Error("bake lost the stable mesh identifier")
	}
	if len(bvh.Triangles) != m.TriangleCount() {
		t.Fatalf("bvh references %d triangles, mesh has %d", len(bvh.Triangles), m.TriangleCount())
	}

	seen := make(map[int32]bool)
	for _, ti := range bvh.Triangles {
		if ti < 0 || int(ti) >= m.TriangleCount() {
			t.Fatalf("triangle index %d out of range", ti)
		}
		seen[ti] = true
	}
	if len(seen) != m.TriangleCount() {
		t.Error("duplicate or missing triangle references in leaves")
	}
}

func TestOverlapAABBFindsNearQuadOnly(t *testing.T) {
	bvh, err := Build(quadMesh())
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	near := bvh.OverlapAABB(mesh.AABB{
		Min: mgl32.Vec3{-0.5, -0.5, -0.5},
		Max: mgl32.Vec3{0.5, 0.5, 0.5},
	})
	if len(near) == 0 {
		t.Fatal("no triangles found near the origin quad")
	}
	for _, ti := range near {
		if ti > 1 {
			t.Errorf("distant triangle %d returned for near query", ti)
		}
	}

	empty := bvh.OverlapAABB(mesh.AABB{
		Min: mgl32.Vec3{5, 5, 5},
		Max: mgl32.Vec3{6, 6, 6},
	})
	if len(empty) != 0 {
		t.Errorf("expected no overlap in empty space, got %v", empty)
	}
}

func TestBakerHandleCompletes(t *testing.T) {
	var baker Baker
	h := baker.Start(quadMesh())
	bvh, err := h.Wait()
	if err != nil {
		t.Fatalf("bake failed: %v", err)
	}
	if bvh == nil || len(bvh.Nodes) == 0 {
		t.Fatal("bake produced no nodes")
	}

	// Waiting again is safe and returns the same result.
	again, err := h.Wait()
	if err != nil || again != bvh {
		t.Error("second wait must return the completed result")
	}

	empty := baker.Start(mesh.New())
	if _, err := empty.Wait(); err == nil {
		t.Error("baking an empty mesh should report an error")
	}
}
