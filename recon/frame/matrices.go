package frame

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// ProjectionFromFOV builds a right-handed perspective projection from signed
// half-angle tangents and near/far planes. An infinite far plane substitutes
// the fixed row entries -1 and -2*near instead of dividing by infinity; the
// substitution is the analytic limit of the finite row.
func ProjectionFromFOV(fov FOV, near, far float32) mgl32.Mat4 {
	idx := 1 / (fov.TanRight - fov.TanLeft)
	idy := 1 / (fov.TanUp - fov.TanDown)

	var m mgl32.Mat4
	m.Set(0, 0, 2*idx)
	m.Set(0, 2, (fov.TanRight+fov.TanLeft)*idx)
	m.Set(1, 1, 2*idy)
	m.Set(1, 2, (fov.TanUp+fov.TanDown)*idy)
	if math32.IsInf(far, 1) {
		m.Set(2, 2, -1)
		m.Set(2, 3, -2*near)
	} else {
		m.Set(2, 2, -(far+near)/(far-near))
		m.Set(2, 3, -2*far*near/(far-near))
	}
	m.Set(3, 2, -1)
	return m
}

// DecomposeProjection recovers the FOV tangents and near/far planes from a
// projection built by ProjectionFromFOV. The infinite-far form decomposes to
// far = +Inf.
func DecomposeProjection(m mgl32.Mat4) (FOV, float32, float32) {
	fov := FOV{
		TanLeft:  (m.At(0, 2) - 1) / m.At(0, 0),
		TanRight: (m.At(0, 2) + 1) / m.At(0, 0),
		TanDown:  (m.At(1, 2) - 1) / m.At(1, 1),
		TanUp:    (m.At(1, 2) + 1) / m.At(1, 1),
	}
	m22 := m.At(2, 2)
	m23 := m.At(2, 3)
	if m22 == -1 {
		return fov, -m23 / 2, math32.Inf(1)
	}
	return fov, m23 / (m22 - 1), m23 / (m22 + 1)
}

// ViewFromPose builds the view matrix by inverting the eye transform with a
// flipped forward axis, converting the tracking space's camera convention to
// the one the projection expects.
func ViewFromPose(p Pose) mgl32.Mat4 {
	rot := p.Orientation.Normalize().Mat4()
	flip := mgl32.Scale3D(1, 1, -1)
	eye := mgl32.Translate3D(p.Position.X(), p.Position.Y(), p.Position.Z()).
		Mul4(rot).Mul4(flip)
	return eye.Inv()
}

// ZBufferParams derives depth-linearization constants from the clip planes.
// Layout: x = 1 - far/near, y = far/near, z = x/far, w = y/far. A far plane
// below near or at infinity degenerates to the reciprocal-near form.
func ZBufferParams(near, far float32) mgl32.Vec4 {
	if far < near || math32.IsInf(far, 1) {
		return mgl32.Vec4{-1, 1, -1 / near, 1 / near}
	}
	x := 1 - far/near
	y := far / near
	return mgl32.Vec4{x, y, x / far, y / far}
}
