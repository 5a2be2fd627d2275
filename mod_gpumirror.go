package depthmesh

import (
	"github.com/scenemesh/depthmesh/recon/gpumirror"
)

// gpuMirrorState wraps the optional GPU mirror. A failed init or upload
// trips the latch and the mirror is skipped for the rest of the session;
// reconstruction itself is unaffected.
type gpuMirrorState struct {
	mirror *gpumirror.Mirror
	latch  ErrorLatch
	unsub  func()
}

// GpuMirrorModule keeps rendering-side copies of the published mesh and the
// per-frame matrix set on a WebGPU device. Optional; hosts that render the
// mesh themselves install it, headless hosts skip it.
type GpuMirrorModule struct{}

func (mod GpuMirrorModule) Install(app *App, cmd *Commands) {
	log := cmd.Logger()
	st := &gpuMirrorState{}

	mirror, err := gpumirror.New()
	if err != nil {
		st.latch.Errorf(log, "gpumirror: init failed, mirroring disabled: %v", err)
	} else {
		st.mirror = mirror
	}
	cmd.AddResources(st)

	if events := resourceOf[*Events](app); events != nil && st.mirror != nil {
		st.unsub = events.MeshRefreshed.Subscribe(func(r MeshRefresh) {
			if st.latch.Fired() {
				return
			}
			if err := st.mirror.UploadMesh(r.Mesh); err != nil {
				st.latch.Errorf(log, "gpumirror: mesh upload failed, mirroring disabled: %v", err)
			}
		})
	}

	cmd.UseSystem(System(gpuMirrorSystem).InStage(PostRender))

	app.OnShutdown(func() {
		if st.unsub != nil {
			st.unsub()
		}
		if st.mirror != nil {
			st.mirror.Release()
		}
	})
}

func gpuMirrorSystem(st *gpuMirrorState, fs *frameState, cmd *Commands) {
	if st.mirror == nil || st.latch.Fired() || fs.Pre == nil {
		return
	}
	snap := fs.Pre.Snapshot()
	if snap == nil {
		return
	}
	if err := st.mirror.UploadSnapshot(snap); err != nil {
		st.latch.Errorf(cmd.Logger(), "gpumirror: snapshot upload failed, mirroring disabled: %v", err)
	}
}
