// Package gpumirror uploads the published reconstruction outputs into GPU
// buffers so a rendering consumer can bind them as global shader inputs:
// the mesh's vertex/index streams, the per-eye matrix sets, and the
// world-space position/normal maps.
//
// The mirror is optional. If no adapter or device can be acquired the
// owning module logs once and permanently skips mirroring; reconstruction
// itself never depends on it.
package gpumirror

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/scenemesh/depthmesh/recon/frame"
	"github.com/scenemesh/depthmesh/recon/mesh"
)

// uniform slack avoids reallocating on every upload when sizes wobble.
const headroom = 64 * 1024

type Mirror struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	VertexBuf    *wgpu.Buffer
	IndexBuf     *wgpu.Buffer
	MatrixBuf    *wgpu.Buffer
	PositionsBuf *wgpu.Buffer
	NormalsBuf   *wgpu.Buffer
}

// New acquires a headless device. Failure is an initialization failure for
// the caller to latch; there is nothing to retry.
func New() (*Mirror, error) {
	instance := wgpu.CreateInstance(nil)
	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		instance.Release()
		return nil, fmt.Errorf("gpumirror: no adapter: %w", err)
	}
	device, err := adapter.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "Reconstruction Mirror",
	})
	if err != nil {
		instance.Release()
		return nil, fmt.Errorf("gpumirror: no device: %w", err)
	}
	return &Mirror{
		instance: instance,
		adapter:  adapter,
		device:   device,
		queue:    device.GetQueue(),
	}, nil
}

// ensureBuffer grows the target buffer when needed and writes data into it.
func (m *Mirror) ensureBuffer(label string, buf **wgpu.Buffer, data []byte, usage wgpu.BufferUsage) error {
	needed := uint64(len(data))
	if needed%4 != 0 {
		needed += 4 - needed%4
	}

	current := *buf
	if current == nil || current.GetSize() < needed {
		if current != nil {
			current.Release()
		}
		newBuf, err := m.device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: label,
			Size:  needed + headroom,
			Usage: usage | wgpu.BufferUsageCopyDst,
		})
		if err != nil {
			return fmt.Errorf("gpumirror: create %s: %w", label, err)
		}
		*buf = newBuf
	}
	if len(data) > 0 {
		m.queue.WriteBuffer(*buf, 0, data)
	}
	return nil
}

// UploadMesh mirrors the published mesh's position and 32-bit index streams.
func (m *Mirror) UploadMesh(msh *mesh.Mesh) error {
	positions := make([]float32, 0, len(msh.Positions)*4)
	for _, p := range msh.Positions {
		positions = append(positions, p.X(), p.Y(), p.Z(), 1)
	}
	if err := m.ensureBuffer("Mesh Vertices", &m.VertexBuf, wgpu.ToBytes(positions), wgpu.BufferUsageVertex|wgpu.BufferUsageStorage); err != nil {
		return err
	}
	return m.ensureBuffer("Mesh Indices", &m.IndexBuf, wgpu.ToBytes(msh.Indices), wgpu.BufferUsageIndex)
}

// UploadSnapshot mirrors the frame's matrix sets and world-space maps.
func (m *Mirror) UploadSnapshot(s *frame.Snapshot) error {
	matrices := make([]float32, 0, len(s.Eyes)*48+4)
	appendMat := func(mat mgl32.Mat4) {
		matrices = append(matrices, mat[:]...)
	}
	for _, eye := range s.Eyes {
		appendMat(eye.Projection)
		appendMat(eye.View)
		appendMat(eye.Reprojection)
	}
	matrices = append(matrices, s.ZParams.X(), s.ZParams.Y(), s.ZParams.Z(), s.ZParams.W())
	if err := m.ensureBuffer("Frame Matrices", &m.MatrixBuf, wgpu.ToBytes(matrices), wgpu.BufferUsageUniform); err != nil {
		return err
	}

	if err := m.ensureBuffer("World Positions", &m.PositionsBuf, packMap(s.Positions), wgpu.BufferUsageStorage); err != nil {
		return err
	}
	return m.ensureBuffer("World Normals", &m.NormalsBuf, packMap(s.Normals), wgpu.BufferUsageStorage)
}

// packMap lays a map out as tightly packed vec4s.
func packMap(mp *frame.Map) []byte {
	out := make([]float32, 0, len(mp.Pix)*4)
	for _, p := range mp.Pix {
		out = append(out, p.X(), p.Y(), p.Z(), 0)
	}
	return wgpu.ToBytes(out)
}

// Release frees all device objects. Teardown only.
func (m *Mirror) Release() {
	for _, buf := range []*wgpu.Buffer{m.VertexBuf, m.IndexBuf, m.MatrixBuf, m.PositionsBuf, m.NormalsBuf} {
		if buf != nil {
			buf.Release()
		}
	}
	if m.device != nil {
		m.device.Release()
	}
	if m.adapter != nil {
		m.adapter.Release()
	}
	if m.instance != nil {
		m.instance.Release()
	}
}
