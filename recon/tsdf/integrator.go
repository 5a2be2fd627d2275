package tsdf

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/scenemesh/depthmesh/recon/compute"
	"github.com/scenemesh/depthmesh/recon/frame"
)

// State is the integrator lifecycle state.
type State int32

const (
	StateUninitialized State = iota
	StateIdle
	StateIntegrating
	StateCleared
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateIdle:
		return "idle"
	case StateIntegrating:
		return "integrating"
	case StateCleared:
		return "cleared"
	}
	return "unknown"
}

type fuseSample struct {
	voxel int32
	sd    float32
}

// Integrator fuses depth evidence into a Volume by reprojecting the frustum
// lookup volume against the current eye pose each tick. It is the volume's
// only writer.
type Integrator struct {
	vol     *Volume
	minView float32
	maxView float32

	frustum *FrustumVolume
	scratch []fuseSample

	state atomic.Int32
}

func NewIntegrator(vol *Volume, minView, maxView float32) *Integrator {
	ig := &Integrator{vol: vol, minView: minView, maxView: maxView}
	ig.state.Store(int32(StateUninitialized))
	return ig
}

// State returns the current lifecycle state.
func (ig *Integrator) State() State {
	return State(ig.state.Load())
}

// Frustum returns the lookup volume, nil before the first tick with data.
func (ig *Integrator) Frustum() *FrustumVolume {
	return ig.frustum
}

// Clear resets the volume to neutral. Reachable from any state; the frustum
// lookup volume is kept since the geometry settings did not change.
func (ig *Integrator) Clear() {
	ig.vol.Clear()
	ig.state.Store(int32(StateCleared))
}

// ensureFrustum lazily builds the lookup volume from the first eye's
// projection the first time depth data is available.
func (ig *Integrator) ensureFrustum(snap *frame.Snapshot) {
	if ig.frustum != nil {
		return
	}
	ig.frustum = BuildFrustumVolume(snap.Eyes[0].Projection, ig.minView, ig.maxView, ig.vol.Pitch())
	ig.scratch = make([]fuseSample, len(ig.frustum.Points))
}

// Integrate runs one integration tick against the given frame snapshot: a
// parallel pass evaluates every frustum point into (voxel, signed distance)
// pairs, then a fuse pass folds them into the grid under the write lock.
func (ig *Integrator) Integrate(ctx context.Context, dev compute.Device, snap *frame.Snapshot) error {
	ig.ensureFrustum(snap)
	ig.state.Store(int32(StateIntegrating))
	defer ig.state.Store(int32(StateIdle))

	eye := snap.Eyes[0]
	// Reproj = P * V * worldToLocal, so InvReproj * P recovers the
	// camera-to-world transform including the tracking offset.
	camToWorld := eye.InvReprojection.Mul4(eye.Projection)
	camPos := eye.CameraPosition
	reproj := eye.Reprojection
	trunc := ig.vol.Truncation()
	positions := snap.Positions

	points := ig.frustum.Points
	scratch := ig.scratch

	eval := dev.Dispatch("tsdf-evaluate", len(points), func(i int) {
		scratch[i].voxel = -1
		world := camToWorld.Mul4x1(points[i].Vec4(1)).Vec3()
		voxel := ig.vol.VoxelOf(world)
		if voxel < 0 {
			return
		}

		clip := reproj.Mul4x1(world.Vec4(1))
		if clip.W() <= 0 {
			return
		}
		ndc := mgl32.Vec2{
			clip.X()/clip.W()*0.5 + 0.5,
			clip.Y()/clip.W()*0.5 + 0.5,
		}
		if ndc.X() < 0 || ndc.X() > 1 || ndc.Y() < 0 || ndc.Y() > 1 {
			return
		}

		measured := positions.Sample(ndc)
		if measured == (mgl32.Vec3{}) {
			return
		}

		// Signed distance is estimated for the voxel the sample snaps
		// to, not for the sample itself.
		vx, vy, vz := ig.vol.Coords(voxel)
		voxelWorld := ig.vol.WorldAt(vx, vy, vz)
		sd := measured.Sub(camPos).Len() - voxelWorld.Sub(camPos).Len()
		if sd < -trunc {
			// Far behind the observed surface: no evidence.
			return
		}
		if sd > trunc {
			sd = trunc
		}
		scratch[i] = fuseSample{voxel: int32(voxel), sd: sd}
	})

	fuse := dev.Submit("tsdf-fuse", func() error {
		ig.vol.mu.Lock()
		defer ig.vol.mu.Unlock()
		for _, s := range scratch {
			if s.voxel >= 0 {
				ig.vol.fuse(int(s.voxel), s.sd)
			}
		}
		return nil
	})

	if err := eval.Await(ctx); err != nil {
		return fmt.Errorf("tsdf: evaluate pass: %w", err)
	}
	if err := fuse.Await(ctx); err != nil {
		return fmt.Errorf("tsdf: fuse pass: %w", err)
	}
	return nil
}
