package depthmesh

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// End to end: depth frames in, published mesh out, over the real module set
// with fast loop rates.
func TestReconstructionEndToEnd(t *testing.T) {
	settings := DefaultSettings()
	settings.VolumeDim = [3]int{32, 16, 32}
	settings.VoxelPitch = 0.25
	settings.TriangleBudget = 20_000
	settings.IntegrationRateHz = 100
	settings.RefreshRateHz = 100
	settings.BakeCollision = false

	app := NewReconApp(ReconPreset{
		Settings: settings,
		Source:   &stubSource{ready: true},
	})
	defer app.Shutdown()

	events := resourceOf[*Events](app)
	refreshed := make(chan MeshRefresh, 16)
	events.MeshRefreshed.Subscribe(func(r MeshRefresh) {
		select {
		case refreshed <- r:
		default:
		}
	})

	// One Step delivers the first depth frame to the preprocessor.
	app.Step()

	resourceOf[*VolumeController](app).Enable()
	mc := resourceOf[*MesherController](app)
	mc.Enable()

	select {
	case r := <-refreshed:
		require.Greater(t, r.Triangles, 0)
		require.NotNil(t, r.Mesh)
		require.Equal(t, mc.Pipeline().MeshID(), r.Mesh.ID)
	case <-time.After(15 * time.Second):
		t.Fatal("no mesh refresh within deadline")
	}
}
