// Package collision bakes the published reconstruction mesh into a triangle
// BVH usable by a physics consumer. Baking runs on a background worker with
// an explicit completion handle; the refresh pipeline joins the previous
// bake before starting a new one.
package collision

import (
	"errors"
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"

	"github.com/scenemesh/depthmesh/recon/mesh"
)

const leafSize = 4

// Node is one BVH node; leaves reference a range of Triangles.
type Node struct {
	Min       mgl32.Vec3
	Max       mgl32.Vec3
	Left      int32
	Right     int32
	LeafFirst int32
	LeafCount int32
}

// BVH is a baked collision structure over one mesh revision.
type BVH struct {
	MeshID    uuid.UUID
	Nodes     []Node
	Triangles []int32 // triangle indices into the source mesh, leaf-ordered

	bounds []mesh.AABB // per-triangle bounds, parallel to Triangles
}

type buildItem struct {
	min      mgl32.Vec3
	max      mgl32.Vec3
	centroid mgl32.Vec3
	index    int32
}

// Build bakes a median-split BVH over the mesh's triangles.
func Build(m *mesh.Mesh) (*BVH, error) {
	if m == nil || m.TriangleCount() == 0 {
		return nil, errors.New("collision: nothing to bake")
	}

	items := make([]buildItem, m.TriangleCount())
	for i := range items {
		tri := m.Triangle(i)
		it := buildItem{min: tri[0], max: tri[0], index: int32(i)}
		for _, p := range tri[1:] {
			it.min = vecMin(it.min, p)
			it.max = vecMax(it.max, p)
		}
		it.centroid = it.min.Add(it.max).Mul(0.5)
		items[i] = it
	}

	b := &BVH{MeshID: m.ID}
	b.recursiveBuild(items)
	return b, nil
}

func (b *BVH) recursiveBuild(items []buildItem) int32 {
	idx := int32(len(b.Nodes))
	b.Nodes = append(b.Nodes, Node{Left: -1, Right: -1, LeafFirst: -1})

	nodeMin := mgl32.Vec3{float32(math.Inf(1)), float32(math.Inf(1)), float32(math.Inf(1))}
	nodeMax := mgl32.Vec3{float32(math.Inf(-1)), float32(math.Inf(-1)), float32(math.Inf(-1))}
	for _, it := range items {
		nodeMin = vecMin(nodeMin, it.min)
		nodeMax = vecMax(nodeMax, it.max)
	}
	b.Nodes[idx].Min = nodeMin
	b.Nodes[idx].Max = nodeMax

	if len(items) <= leafSize {
		b.Nodes[idx].LeafFirst = int32(len(b.Triangles))
		b.Nodes[idx].LeafCount = int32(len(items))
		for _, it := range items {
			b.Triangles = append(b.Triangles, it.index)
			b.bounds = append(b.bounds, mesh.AABB{Min: it.min, Max: it.max})
		}
		return idx
	}

	extent := nodeMax.Sub(nodeMin)
	axis := 0
	if extent.Y() > extent.X() {
		axis = 1
	}
	if extent.Z() > extent[axis] {
		axis = 2
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].centroid[axis] < items[j].centroid[axis]
	})

	mid := len(items) / 2
	left := b.recursiveBuild(items[:mid])
	right := b.recursiveBuild(items[mid:])
	b.Nodes[idx].Left = left
	b.Nodes[idx].Right = right
	return idx
}

// OverlapAABB returns the indices of triangles whose bounds intersect the
// query box. This is the query shape a collider consumer resolves contacts
// with.
func (b *BVH) OverlapAABB(box mesh.AABB) []int32 {
	if len(b.Nodes) == 0 {
		return nil
	}
	var out []int32
	var walk func(n int32)
	walk = func(n int32) {
		node := &b.Nodes[n]
		if !aabbOverlap(node.Min, node.Max, box.Min, box.Max) {
			return
		}
		if node.LeafFirst >= 0 {
			for k := node.LeafFirst; k < node.LeafFirst+node.LeafCount; k++ {
				tb := b.bounds[k]
				if aabbOverlap(tb.Min, tb.Max, box.Min, box.Max) {
					out = append(out, b.Triangles[k])
				}
			}
			return
		}
		walk(node.Left)
		walk(node.Right)
	}
	walk(0)
	return out
}

func aabbOverlap(aMin, aMax, bMin, bMax mgl32.Vec3) bool {
	for i := 0; i < 3; i++ {
		if aMax[i] < bMin[i] || aMin[i] > bMax[i] {
			return false
		}
	}
	return true
}

func vecMin(a, b mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{min(a.X(), b.X()), min(a.Y(), b.Y()), min(a.Z(), b.Z())}
}

func vecMax(a, b mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{max(a.X(), b.X()), max(a.Y(), b.Y()), max(a.Z(), b.Z())}
}
