package tsdf

import (
	"context"
	"testing"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/scenemesh/depthmesh/recon/compute"
	"github.com/scenemesh/depthmesh/recon/frame"
)

func planarSnapshot(t *testing.T, dev compute.Device, camZ, dist float32) *frame.Snapshot {
	t.Helper()
	const res = 32
	depth := make([]float32, res*res)
	for i := range depth {
		depth[i] = dist
	}
	pre := frame.NewPreprocessor(dev)
	snap, err := pre.Update(context.Background(), &frame.DepthFrame{
		Eyes: []frame.EyeView{{
			FOV:  frame.FOV{TanLeft: -1, TanRight: 1, TanUp: 1, TanDown: -1},
			Pose: frame.Pose{Position: mgl32.Vec3{0, 0, camZ}, Orientation: mgl32.QuatIdent()},
		}},
		Near:         0.1,
		Far:          100,
		Depth:        &frame.DepthImage{Width: res, Height: res, Depth: depth},
		WorldToLocal: mgl32.Ident4(),
	})
	if err != nil {
		t.Fatalf("preprocess failed: %v", err)
	}
	return snap
}

// Volume 4x4x4 at pitch 1.0, one tick against a planar depth frame at 2.0 m:
// samples in front of the plane fuse positive, samples near it fuse close to
// zero, samples behind it fuse negative.
func TestIntegrateSignConvention(t *testing.T) {
	dev := compute.NewDeviceWithWorkers(2)
	defer dev.Close()

	vol := NewVolume([3]int{4, 4, 4}, 1.0)
	ig := NewIntegrator(vol, 0.5, 5.0)
	// Camera 2.75 m behind the grid center, planar surface 2 m ahead of
	// it: the plane lands at world z = -0.75, inside the grid.
	camPos := mgl32.Vec3{0, 0, -2.75}
	snap := planarSnapshot(t, dev, camPos.Z(), 2.0)

	if err := ig.Integrate(context.Background(), dev, snap); err != nil {
		t.Fatalf("integrate failed: %v", err)
	}
	if ig.State() != StateIdle {
		t.Errorf("state after tick = %v, want idle", ig.State())
	}

	fused := 0
	vol.RLock()
	for i := 0; i < vol.VoxelCount(); i++ {
		sd, known := vol.SampleAt(i)
		if !known {
			continue
		}
		fused++
		x, y, z := vol.Coords(i)
		world := vol.WorldAt(x, y, z)

		if math32.Abs(sd) > vol.Truncation() {
			t.Fatalf("sample %v exceeds truncation: %g", world, sd)
		}
		switch {
		case world.Z() < -1.0: // between camera and plane
			if sd < 0.1 {
				t.Errorf("voxel %v in front of plane: sd = %g, want positive", world, sd)
			}
		case math32.Abs(world.Z()+0.5) < 0.2: // one lattice step from the plane
			if math32.Abs(sd) > 0.5 {
				t.Errorf("voxel %v near plane: sd = %g, want near zero", world, sd)
			}
		case world.Z() > -0.3: // behind the plane
			if sd > -0.1 {
				t.Errorf("voxel %v behind plane: sd = %g, want negative", world, sd)
			}
		}
	}
	vol.RUnlock()

	if fused == 0 {
		t.Fatal("no voxels received depth evidence")
	}
}

func TestClearResetsVolumeAndKeepsFrustum(t *testing.T) {
	dev := compute.NewDeviceWithWorkers(2)
	defer dev.Close()

	vol := NewVolume([3]int{4, 4, 4}, 1.0)
	ig := NewIntegrator(vol, 0.5, 5.0)
	snap := planarSnapshot(t, dev, -2.5, 2.0)

	if err := ig.Integrate(context.Background(), dev, snap); err != nil {
		t.Fatalf("integrate failed: %v", err)
	}
	frustum := ig.Frustum()
	if frustum == nil || len(frustum.Points) == 0 {
		t.Fatal("frustum volume not built lazily on first tick")
	}

	ig.Clear()
	if ig.State() != StateCleared {
		t.Errorf("state after clear = %v, want cleared", ig.State())
	}
	if ig.Frustum() != frustum {
		t.Error("clear must not rebuild the frustum volume")
	}

	vol.RLock()
	for i := 0; i < vol.VoxelCount(); i++ {
		if sd, known := vol.SampleAt(i); known || sd != vol.Truncation() {
			t.Fatalf("sample %d not neutral after clear: sd=%g known=%v", i, sd, known)
		}
	}
	vol.RUnlock()
}

func TestFrustumVolumeRetainsOnlyInRangePoints(t *testing.T) {
	proj := frame.ProjectionFromFOV(frame.FOV{TanLeft: -1, TanRight: 1, TanUp: 1, TanDown: -1}, 0.1, 100)
	fv := BuildFrustumVolume(proj, 0.5, 5.0, 0.25)

	if len(fv.Points) == 0 {
		t.Fatal("empty frustum volume")
	}
	for _, p := range fv.Points {
		mag := p.Len()
		if mag < 0.5 || mag > 5.0 {
			t.Fatalf("point %v magnitude %g outside [0.5, 5.0]", p, mag)
		}
		if p.Z() >= 0 {
			t.Fatalf("point %v not in front of the camera", p)
		}
	}
}

func TestVoxelOfRoundTrip(t *testing.T) {
	vol := NewVolume([3]int{8, 8, 8}, 0.5)
	for _, c := range [][3]int{{0, 0, 0}, {7, 7, 7}, {3, 5, 1}} {
		world := vol.WorldAt(c[0], c[1], c[2])
		if got := vol.VoxelOf(world); got != vol.Index(c[0], c[1], c[2]) {
			t.Errorf("voxel %v round trip: got %d want %d", c, got, vol.Index(c[0], c[1], c[2]))
		}
	}
	ext := vol.WorldExtent()
	if got := vol.VoxelOf(ext.Max.Add(mgl32.Vec3{1, 0, 0})); got != -1 {
		t.Errorf("point outside extent mapped to voxel %d", got)
	}
}
