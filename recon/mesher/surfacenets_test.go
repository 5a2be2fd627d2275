package mesher

import (
	"context"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/scenemesh/depthmesh/recon/compute"
	"github.com/scenemesh/depthmesh/recon/frame"
	"github.com/scenemesh/depthmesh/recon/tsdf"
)

func sphereVolume(radius float32) *tsdf.Volume {
	vol := tsdf.NewVolume([3]int{16, 16, 16}, 0.25)
	vol.Seed(func(p mgl32.Vec3) float32 {
		return p.Len() - radius
	})
	return vol
}

func TestExtractSphere(t *testing.T) {
	dev := compute.NewDeviceWithWorkers(4)
	defer dev.Close()

	vol := sphereVolume(1.0)
	buf := NewBuffers(4096, vol.VoxelCount())
	ex := NewExtractor(0)

	if err := ex.Extract(context.Background(), dev, vol, buf, mgl32.Vec3{}); err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	dev.Wait()

	tris := buf.TriangleCount.Load()
	verts := buf.VertexCount.Load()
	if tris == 0 || verts == 0 {
		t.Fatalf("sphere produced no geometry: tris=%d verts=%d", tris, verts)
	}
	if int(tris) > buf.Budget() {
		t.Fatalf("sphere exceeded a generous budget: %d", tris)
	}

	// Every emitted index references a placed vertex, and every placed
	// vertex lies within a half-pitch shell of the sphere surface.
	for i := 0; i < int(tris)*3; i++ {
		idx := buf.Indices[i]
		if idx >= verts {
			t.Fatalf("index %d references vertex %d beyond count %d", i, idx, verts)
		}
	}
	for v := 0; v < int(verts); v++ {
		r := buf.Vertices[v].Len()
		if r < 0.75 || r > 1.25 {
			t.Errorf("vertex %d at radius %g, not near the unit sphere", v, r)
		}
	}
}

func TestExtractCountersCanOvershootBudget(t *testing.T) {
	dev := compute.NewDeviceWithWorkers(4)
	defer dev.Close()

	// A flat plane through an 8^3 volume places 7x7 = 49 cell vertices
	// and stitches 6x6 = 36 quads, so the raw triangle count is exactly
	// 72 regardless of dispatch order.
	vol := tsdf.NewVolume([3]int{8, 8, 8}, 0.25)
	vol.Seed(func(p mgl32.Vec3) float32 {
		return p.Z() - 0.1
	})
	buf := NewBuffers(30, vol.VoxelCount())
	ex := NewExtractor(0)

	if err := ex.Extract(context.Background(), dev, vol, buf, mgl32.Vec3{}); err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	dev.Wait()

	if got := buf.VertexCount.Load(); got != 49 {
		t.Errorf("vertex count = %d, want 49", got)
	}
	if got := buf.TriangleCount.Load(); got != 72 {
		t.Errorf("raw triangle count = %d, want 72", got)
	}
	// The counter overshoots the budget of 30; the written index region
	// stays within the budgeted slack.
	if len(buf.Indices) != (30+1)*3 {
		t.Errorf("index buffer sized %d, want %d", len(buf.Indices), (30+1)*3)
	}
}

func TestExtractClearedVolumeYieldsNothing(t *testing.T) {
	dev := compute.NewDeviceWithWorkers(2)
	defer dev.Close()

	vol := sphereVolume(1.0)
	vol.Clear()
	buf := NewBuffers(128, vol.VoxelCount())
	ex := NewExtractor(0)

	if err := ex.Extract(context.Background(), dev, vol, buf, mgl32.Vec3{}); err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	dev.Wait()

	if got := buf.TriangleCount.Load(); got != 0 {
		t.Errorf("cleared volume produced %d triangles", got)
	}
	if got := buf.VertexCount.Load(); got != 0 {
		t.Errorf("cleared volume produced %d vertices", got)
	}
}

// Integration and extraction share one device queue: the integrator's fuse
// op takes the volume write lock inside its queued op, so an extraction tick
// landing between fuse being enqueued and executing must not wedge the queue.
// Both loops have to keep completing when interleaved.
func TestIntegrateAndExtractInterleave(t *testing.T) {
	dev := compute.NewDeviceWithWorkers(1)
	defer dev.Close()

	vol := tsdf.NewVolume([3]int{16, 16, 16}, 0.25)
	ig := tsdf.NewIntegrator(vol, 0.3, 5.0)
	buf := NewBuffers(4096, vol.VoxelCount())
	ex := NewExtractor(0)

	const res = 16
	depth := make([]float32, res*res)
	for i := range depth {
		depth[i] = 2
	}
	pre := frame.NewPreprocessor(dev)
	snap, err := pre.Update(context.Background(), &frame.DepthFrame{
		Eyes: []frame.EyeView{{
			FOV:  frame.FOV{TanLeft: -1, TanRight: 1, TanUp: 1, TanDown: -1},
			Pose: frame.Pose{Position: mgl32.Vec3{0, 0, -2}, Orientation: mgl32.QuatIdent()},
		}},
		Near:         0.1,
		Far:          100,
		Depth:        &frame.DepthImage{Width: res, Height: res, Depth: depth},
		WorldToLocal: mgl32.Ident4(),
	})
	if err != nil {
		t.Fatalf("preprocess failed: %v", err)
	}

	const ticks = 8
	integrated := make(chan error, 1)
	go func() {
		for i := 0; i < ticks; i++ {
			if err := ig.Integrate(context.Background(), dev, snap); err != nil {
				integrated <- err
				return
			}
		}
		integrated <- nil
	}()

	for i := 0; i < ticks; i++ {
		if err := ex.Extract(context.Background(), dev, vol, buf, mgl32.Vec3{0, 0, -2}); err != nil {
			t.Fatalf("extract tick %d failed: %v", i, err)
		}
	}

	select {
	case err := <-integrated:
		if err != nil {
			t.Fatalf("integrate failed: %v", err)
		}
	case <-time.After(30 * time.Second):
		t.Fatal("integration and extraction wedged each other on the device queue")
	}
}

func TestExtractRespectsMaxUpdateDistance(t *testing.T) {
	dev := compute.NewDeviceWithWorkers(2)
	defer dev.Close()

	vol := sphereVolume(1.0)
	buf := NewBuffers(4096, vol.VoxelCount())

	// Viewer far away from the whole sphere with a tiny update range:
	// no cell may contribute geometry.
	ex := NewExtractor(0.5)
	if err := ex.Extract(context.Background(), dev, vol, buf, mgl32.Vec3{50, 0, 0}); err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	dev.Wait()
	if got := buf.TriangleCount.Load(); got != 0 {
		t.Errorf("out-of-range cells still produced %d triangles", got)
	}
}
