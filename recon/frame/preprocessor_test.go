package frame

import (
	"context"
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/scenemesh/depthmesh/recon/compute"
)

func planarFrame(w, h int, dist float32) *DepthFrame {
	depth := make([]float32, w*h)
	for i := range depth {
		depth[i] = dist
	}
	return &DepthFrame{
		Eyes: []EyeView{{
			FOV:  FOV{TanLeft: -1, TanRight: 1, TanUp: 1, TanDown: -1},
			Pose: Pose{Orientation: mgl32.QuatIdent()},
		}},
		Near:         0.1,
		Far:          100,
		Depth:        &DepthImage{Width: w, Height: h, Depth: depth},
		WorldToLocal: mgl32.Ident4(),
	}
}

func TestUpdateUnprojectsPlanarDepth(t *testing.T) {
	dev := compute.NewDeviceWithWorkers(2)
	defer dev.Close()
	p := NewPreprocessor(dev)

	snap, err := p.Update(context.Background(), planarFrame(8, 8, 2.0))
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}

	// Identity pose looks along world +Z, so every sample of a planar
	// depth of 2 m must unproject to world z == 2.
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			pos := snap.Positions.At(x, y)
			if !almostEqual(pos.Z(), 2.0, 1e-4) {
				t.Fatalf("pixel (%d,%d): world z = %g, want 2", x, y, pos.Z())
			}
		}
	}

	// Normals of the plane must face the camera at the origin.
	n := snap.Normals.At(4, 4)
	if !almostEqual(n.Z(), -1, 1e-3) {
		t.Errorf("plane normal = %v, want (0,0,-1)", n)
	}

	if !p.DataAvailable() {
		t.Error("data available flag not raised after first frame")
	}
}

func TestUpdateRejectsIncompleteFrame(t *testing.T) {
	dev := compute.NewDeviceWithWorkers(1)
	defer dev.Close()
	p := NewPreprocessor(dev)

	good, err := p.Update(context.Background(), planarFrame(4, 4, 1.5))
	if err != nil {
		t.Fatalf("good frame failed: %v", err)
	}

	bad := planarFrame(4, 4, 1.5)
	bad.Eyes[0].Pose = Pose{} // zero quaternion, no pose
	if _, err := p.Update(context.Background(), bad); !errors.Is(err, ErrIncompleteFrame) {
		t.Fatalf("expected ErrIncompleteFrame, got %v", err)
	}

	if p.Snapshot() != good {
		t.Error("failed frame replaced the published snapshot")
	}

	noDepth := planarFrame(4, 4, 1.5)
	noDepth.Depth = nil
	if _, err := p.Update(context.Background(), noDepth); !errors.Is(err, ErrIncompleteFrame) {
		t.Errorf("expected ErrIncompleteFrame for missing depth, got %v", err)
	}
}

func TestSampleClampsOutOfRange(t *testing.T) {
	m := newMap(4, 4)
	m.Pix[0] = mgl32.Vec3{1, 2, 3}
	m.Pix[15] = mgl32.Vec3{4, 5, 6}

	if got := m.Sample(mgl32.Vec2{-0.5, -0.5}); got != (mgl32.Vec3{1, 2, 3}) {
		t.Errorf("negative coordinates should clamp to (0,0), got %v", got)
	}
	if got := m.Sample(mgl32.Vec2{1.5, 1.5}); got != (mgl32.Vec3{4, 5, 6}) {
		t.Errorf("coordinates past 1 should clamp to the last pixel, got %v", got)
	}
}
