// Package frame converts raw depth frames into the matrices and world-space
// maps every other reconstruction component reads. One Preprocessor instance
// owns the maps; readers get immutable per-frame snapshots.
package frame

import (
	"errors"

	"github.com/go-gl/mathgl/mgl32"
)

// ErrIncompleteFrame marks a frame whose pose, intrinsics or depth data is
// missing. The frame is skipped; previously published state stays intact.
var ErrIncompleteFrame = errors.New("frame: incomplete frame data")

// FOV holds signed half-angle tangents of an eye frustum. Left and Down are
// negative for a frustum that extends past the optical axis.
type FOV struct {
	TanLeft  float32
	TanRight float32
	TanUp    float32
	TanDown  float32
}

func (f FOV) valid() bool {
	return f.TanRight > f.TanLeft && f.TanUp > f.TanDown
}

// Pose is an eye pose in the tracking space, right-handed, camera looking
// down its local -Z after the forward flip applied by ViewFromPose.
type Pose struct {
	Position    mgl32.Vec3
	Orientation mgl32.Quat
}

func (p Pose) valid() bool {
	q := p.Orientation
	return q.W != 0 || q.V.Len() != 0
}

// EyeView is one eye's intrinsics and pose for a single frame.
type EyeView struct {
	FOV  FOV
	Pose Pose
}

// DepthImage is a dense linear-depth buffer in meters; zero means no sample.
// The frame source owns and rotates these; they are not retained past the
// frame they arrive in.
type DepthImage struct {
	Width  int
	Height int
	Depth  []float32
}

// At returns the depth at pixel (x, y), or 0 outside the image.
func (d *DepthImage) At(x, y int) float32 {
	if x < 0 || x >= d.Width || y < 0 || y >= d.Height {
		return 0
	}
	return d.Depth[y*d.Width+x]
}

// DepthFrame is everything the preprocessor needs for one update.
type DepthFrame struct {
	Eyes         []EyeView
	Near         float32
	Far          float32 // may be +Inf
	Depth        *DepthImage
	WorldToLocal mgl32.Mat4
}

// Map is a dense per-pixel map of world-space vectors. Pixels without a
// valid depth sample hold the zero vector.
type Map struct {
	Width  int
	Height int
	Pix    []mgl32.Vec3
}

func newMap(w, h int) *Map {
	return &Map{Width: w, Height: h, Pix: make([]mgl32.Vec3, w*h)}
}

// At returns the map value at pixel (x, y), zero outside the map.
func (m *Map) At(x, y int) mgl32.Vec3 {
	if x < 0 || x >= m.Width || y < 0 || y >= m.Height {
		return mgl32.Vec3{}
	}
	return m.Pix[y*m.Width+x]
}

// Sample returns the nearest map value at normalized coordinates in
// [0,1]x[0,1]. Out-of-range input is clamped, matching the sampler contract
// that validity is the caller's concern.
func (m *Map) Sample(ndc mgl32.Vec2) mgl32.Vec3 {
	x := int(ndc.X() * float32(m.Width))
	y := int(ndc.Y() * float32(m.Height))
	if x < 0 {
		x = 0
	} else if x >= m.Width {
		x = m.Width - 1
	}
	if y < 0 {
		y = 0
	} else if y >= m.Height {
		y = m.Height - 1
	}
	return m.Pix[y*m.Width+x]
}
