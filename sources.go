package depthmesh

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"

	"github.com/scenemesh/depthmesh/recon/collision"
	"github.com/scenemesh/depthmesh/recon/frame"
	"github.com/scenemesh/depthmesh/recon/mesh"
	"github.com/scenemesh/depthmesh/recon/nav"
)

// FrameSource supplies depth-camera frames. The host adapts its runtime's
// depth API to this interface; every accessor may report not-ready, and a
// frame is only assembled when all of them succeed on the same Step.
type FrameSource interface {
	// EyeGeometry returns per-eye field-of-view tangents and the clip
	// planes used when the depth image was rendered.
	EyeGeometry() (fovs []frame.FOV, near, far float32, ok bool)

	// EyePoses returns per-eye camera poses in local tracking space.
	EyePoses() (poses []frame.Pose, ok bool)

	// AcquireDepth returns the latest depth image and a release function
	// returning the buffer to the source's pool. release must be called
	// exactly once, after preprocessing has consumed the image.
	AcquireDepth() (img *frame.DepthImage, release func(), ok bool)

	// WorldToLocal maps world space into the tracking space the poses
	// are expressed in.
	WorldToLocal() mgl32.Mat4
}

// PermissionGate reports whether scene-capture permission is granted.
// While denied, frame acquisition is skipped entirely.
type PermissionGate interface {
	Granted() bool
}

// AlwaysGranted is the gate for hosts without a permission model.
type AlwaysGranted struct{}

func (AlwaysGranted) Granted() bool { return true }

// CollisionConsumer receives each freshly baked collider before the refresh
// notification fires.
type CollisionConsumer interface {
	ColliderBaked(meshID uuid.UUID, bvh *collision.BVH)
}

// NavData is a baked navigation product that can be invalidated when the
// mesh it was derived from is replaced.
type NavData interface {
	Invalidate()
}

// NavMeshBaker rebuilds navigation data for a refreshed mesh.
type NavMeshBaker interface {
	Update(bounds mesh.AABB, m *mesh.Mesh) (NavData, error)
}

// gridNavBaker adapts the walkable-grid baker to the NavMeshBaker port.
type gridNavBaker struct {
	baker *nav.GridBaker
}

// NewGridNavBaker wraps a grid baker for use as the mesher's nav consumer.
func NewGridNavBaker(baker *nav.GridBaker) NavMeshBaker {
	return &gridNavBaker{baker: baker}
}

func (g *gridNavBaker) Update(bounds mesh.AABB, m *mesh.Mesh) (NavData, error) {
	grid, err := g.baker.Update(bounds, m)
	if err != nil {
		return nil, err
	}
	return grid, nil
}
