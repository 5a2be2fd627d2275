package frame

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/scenemesh/depthmesh/recon/compute"
)

// EyeMatrices is the published matrix set for one eye.
type EyeMatrices struct {
	Projection      mgl32.Mat4
	View            mgl32.Mat4
	Reprojection    mgl32.Mat4
	InvReprojection mgl32.Mat4
	CameraPosition  mgl32.Vec3 // world space
}

// Snapshot is an immutable per-frame publication of the preprocessor's
// outputs. Readers hold the pointer for at most one frame; the preprocessor
// never mutates a snapshot after publishing it.
type Snapshot struct {
	Frame     uint64
	Eyes      []EyeMatrices
	ZParams   mgl32.Vec4
	Near, Far float32
	Positions *Map
	Normals   *Map
}

// Preprocessor converts one depth frame per render frame into reprojection
// matrices and world-space position/normal maps.
type Preprocessor struct {
	dev   compute.Device
	snap  atomic.Pointer[Snapshot]
	avail atomic.Bool
	frame uint64
}

func NewPreprocessor(dev compute.Device) *Preprocessor {
	return &Preprocessor{dev: dev}
}

// Snapshot returns the most recent successful frame's outputs, or nil before
// the first one.
func (p *Preprocessor) Snapshot() *Snapshot {
	return p.snap.Load()
}

// DataAvailable reports whether at least one frame has been processed.
func (p *Preprocessor) DataAvailable() bool {
	return p.avail.Load()
}

func validateFrame(f *DepthFrame) error {
	if f == nil || len(f.Eyes) == 0 || f.Depth == nil || len(f.Depth.Depth) == 0 {
		return ErrIncompleteFrame
	}
	if f.Near <= 0 || f.Far <= 0 {
		return fmt.Errorf("%w: bad clip planes near=%g far=%g", ErrIncompleteFrame, f.Near, f.Far)
	}
	for _, eye := range f.Eyes {
		if !eye.FOV.valid() || !eye.Pose.valid() {
			return fmt.Errorf("%w: invalid eye intrinsics or pose", ErrIncompleteFrame)
		}
	}
	return nil
}

// Update processes one depth frame: derives per-eye matrices, then refreshes
// the position and normal maps with two chained compute passes. A validation
// failure or pass failure leaves the previous snapshot untouched.
func (p *Preprocessor) Update(ctx context.Context, f *DepthFrame) (*Snapshot, error) {
	if err := validateFrame(f); err != nil {
		return nil, err
	}

	localToWorld := f.WorldToLocal.Inv()
	eyes := make([]EyeMatrices, len(f.Eyes))
	for i, eye := range f.Eyes {
		proj := ProjectionFromFOV(eye.FOV, f.Near, f.Far)
		view := ViewFromPose(eye.Pose)
		reproj := proj.Mul4(view).Mul4(f.WorldToLocal)
		eyes[i] = EyeMatrices{
			Projection:      proj,
			View:            view,
			Reprojection:    reproj,
			InvReprojection: reproj.Inv(),
			CameraPosition:  localToWorld.Mul4x1(eye.Pose.Position.Vec4(1)).Vec3(),
		}
	}

	w, h := f.Depth.Width, f.Depth.Height
	positions := newMap(w, h)
	normals := newMap(w, h)

	// Per-pixel unprojection through the first eye's inverse reprojection.
	inv := eyes[0].InvReprojection
	m22 := eyes[0].Projection.At(2, 2)
	m23 := eyes[0].Projection.At(2, 3)
	depth := f.Depth

	posPass := p.dev.Dispatch("frame-positions", h, func(y int) {
		for x := 0; x < w; x++ {
			d := depth.At(x, y)
			if d <= 0 {
				continue
			}
			ndcX := (float32(x)+0.5)/float32(w)*2 - 1
			ndcY := (float32(y)+0.5)/float32(h)*2 - 1
			clip := mgl32.Vec4{ndcX * d, ndcY * d, -m22*d + m23, d}
			world := inv.Mul4x1(clip)
			if world.W() != 0 {
				positions.Pix[y*w+x] = world.Vec3().Mul(1 / world.W())
			}
		}
	})

	camPos := eyes[0].CameraPosition
	nrmPass := p.dev.Dispatch("frame-normals", h, func(y int) {
		for x := 0; x < w; x++ {
			if depth.At(x, y) <= 0 {
				continue
			}
			normals.Pix[y*w+x] = estimateNormal(positions, depth, x, y, camPos)
		}
	})

	if err := posPass.Await(ctx); err != nil {
		return nil, fmt.Errorf("frame: position pass: %w", err)
	}
	if err := nrmPass.Await(ctx); err != nil {
		return nil, fmt.Errorf("frame: normal pass: %w", err)
	}

	p.frame++
	snap := &Snapshot{
		Frame:     p.frame,
		Eyes:      eyes,
		ZParams:   ZBufferParams(f.Near, f.Far),
		Near:      f.Near,
		Far:       f.Far,
		Positions: positions,
		Normals:   normals,
	}
	p.snap.Store(snap)
	p.avail.Store(true)
	return snap, nil
}

// estimateNormal derives a surface normal from neighboring unprojected
// samples, falling back to one-sided differences at image borders and next
// to invalid pixels. The normal is oriented toward the camera.
func estimateNormal(pos *Map, depth *DepthImage, x, y int, camPos mgl32.Vec3) mgl32.Vec3 {
	x0, x1 := x-1, x+1
	if depth.At(x0, y) <= 0 {
		x0 = x
	}
	if depth.At(x1, y) <= 0 {
		x1 = x
	}
	y0, y1 := y-1, y+1
	if depth.At(x, y0) <= 0 {
		y0 = y
	}
	if depth.At(x, y1) <= 0 {
		y1 = y
	}
	if x0 == x1 || y0 == y1 {
		return mgl32.Vec3{}
	}

	dx := pos.At(x1, y).Sub(pos.At(x0, y))
	dy := pos.At(x, y1).Sub(pos.At(x, y0))
	n := dx.Cross(dy)
	if n.Len() == 0 {
		return mgl32.Vec3{}
	}
	n = n.Normalize()
	if n.Dot(camPos.Sub(pos.At(x, y))) < 0 {
		n = n.Mul(-1)
	}
	return n
}
