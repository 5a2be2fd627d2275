package tsdf

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/scenemesh/depthmesh/recon/frame"
)

// FrustumVolume is the immutable set of camera-space sample points the
// integrator reprojects every tick. Built once from the first eye's
// projection when depth data first becomes available; rebuilt only if the
// geometry settings change.
type FrustumVolume struct {
	Points []mgl32.Vec3
}

// BuildFrustumVolume decomposes proj back into its frustum, clamps the far
// plane to maxView, and fills the frustum with a pitch-spaced lattice of
// camera-space points. The lattice is inset by one voxel pitch along the
// near/far slopes so samples on the frustum boundary do not alias in and
// out of the depth image. Only points whose magnitude lies within
// [minView, maxView] are retained.
func BuildFrustumVolume(proj mgl32.Mat4, minView, maxView, pitch float32) *FrustumVolume {
	fov, near, far := frame.DecomposeProjection(proj)
	if far > maxView {
		far = maxView
	}
	if near < minView {
		near = minView
	}

	fv := &FrustumVolume{}
	for z := near + pitch; z <= far-pitch; z += pitch {
		xMin := fov.TanLeft*z + pitch
		xMax := fov.TanRight*z - pitch
		yMin := fov.TanDown*z + pitch
		yMax := fov.TanUp*z - pitch
		for y := yMin; y <= yMax; y += pitch {
			for x := xMin; x <= xMax; x += pitch {
				p := mgl32.Vec3{x, y, -z}
				mag := p.Len()
				if mag < minView || mag > maxView {
					continue
				}
				fv.Points = append(fv.Points, p)
			}
		}
	}
	return fv
}
