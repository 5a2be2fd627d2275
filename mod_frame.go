package depthmesh

import (
	"context"

	"github.com/scenemesh/depthmesh/recon/frame"
)

// frameState tracks the preprocessor plus the one-shot availability edge.
type frameState struct {
	Pre       *frame.Preprocessor
	Source    FrameSource
	Gate      PermissionGate
	announced bool
}

// FrameModule acquires depth frames from the source each render frame and
// runs them through the preprocessor.
type FrameModule struct {
	Source FrameSource
	Gate   PermissionGate
}

func (mod FrameModule) Install(app *App, cmd *Commands) {
	gate := mod.Gate
	if gate == nil {
		gate = AlwaysGranted{}
	}
	comp := resourceOf[*Compute](app)
	if comp == nil {
		panic("frame: compute module must be installed first")
	}
	cmd.AddResources(&frameState{
		Pre:    frame.NewPreprocessor(comp.Device),
		Source: mod.Source,
		Gate:   gate,
	})
	cmd.UseSystem(System(frameAcquireSystem).InStage(PreRender))
}

func frameAcquireSystem(st *frameState, events *Events, cmd *Commands) {
	log := cmd.Logger()

	if !st.Gate.Granted() {
		return
	}

	fovs, near, far, ok := st.Source.EyeGeometry()
	if !ok {
		log.Debugf("frame: eye geometry not ready")
		return
	}
	poses, ok := st.Source.EyePoses()
	if !ok {
		log.Debugf("frame: eye poses not ready")
		return
	}
	img, release, ok := st.Source.AcquireDepth()
	if !ok {
		log.Debugf("frame: depth image not ready")
		return
	}
	defer release()

	eyes := make([]frame.EyeView, 0, len(fovs))
	for i := range fovs {
		var pose frame.Pose
		if i < len(poses) {
			pose = poses[i]
		}
		eyes = append(eyes, frame.EyeView{FOV: fovs[i], Pose: pose})
	}

	f := &frame.DepthFrame{
		Eyes:         eyes,
		Near:         near,
		Far:          far,
		Depth:        img,
		WorldToLocal: st.Source.WorldToLocal(),
	}

	if _, err := st.Pre.Update(context.Background(), f); err != nil {
		log.Debugf("frame: skipped: %v", err)
		return
	}

	if !st.announced {
		st.announced = true
		events.DataAvailable.Emit(struct{}{})
	}
}
