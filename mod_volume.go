package depthmesh

import (
	"context"
	"sync"
	"time"

	"github.com/scenemesh/depthmesh/recon/frame"
	"github.com/scenemesh/depthmesh/recon/tsdf"
)

// VolumeController owns the TSDF volume and its timed integration loop.
// Enable starts a goroutine fusing the latest preprocessed snapshot at the
// configured rate; each tick awaits the previous integration so passes never
// overlap.
type VolumeController struct {
	Volume     *tsdf.Volume
	Integrator *tsdf.Integrator

	app      *App
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Enabled reports whether the integration loop is running.
func (vc *VolumeController) Enabled() bool {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	return vc.cancel != nil
}

// Enable starts the integration loop. Idempotent.
func (vc *VolumeController) Enable() {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	if vc.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	vc.cancel = cancel
	vc.done = done
	go vc.run(ctx, done)
	vc.app.Logger().Infof("volume: integration enabled at %v", vc.interval)
}

// Disable stops the loop and joins it, so no integration pass is in flight
// when Disable returns. Idempotent.
func (vc *VolumeController) Disable() {
	vc.mu.Lock()
	cancel, done := vc.cancel, vc.done
	vc.cancel, vc.done = nil, nil
	vc.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	vc.app.Logger().Infof("volume: integration disabled")
}

// Recenter clears the volume so fusion restarts around the current origin.
// The next extraction over the cleared field produces an empty mesh.
func (vc *VolumeController) Recenter() {
	vc.Integrator.Clear()
	if events := resourceOf[*Events](vc.app); events != nil {
		events.Recentered.Emit(struct{}{})
	}
	vc.app.Logger().Infof("volume: recentered")
}

func (vc *VolumeController) latestSnapshot() *frame.Snapshot {
	st := resourceOf[*frameState](vc.app)
	if st == nil || st.Pre == nil {
		return nil
	}
	return st.Pre.Snapshot()
}

func (vc *VolumeController) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	log := vc.app.Logger()
	ticker := time.NewTicker(vc.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		snap := vc.latestSnapshot()
		if snap == nil {
			continue
		}
		comp := resourceOf[*Compute](vc.app)
		if comp == nil {
			continue
		}
		if err := vc.Integrator.Integrate(ctx, comp.Device, snap); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warnf("volume: integration pass failed: %v", err)
		}
	}
}

// VolumeModule builds the volume and integrator from settings and installs
// the controller. The loop starts disabled; hosts call Enable once tracking
// is up.
type VolumeModule struct {
	Settings Settings
}

func (mod VolumeModule) Install(app *App, cmd *Commands) {
	s := mod.Settings
	vol := tsdf.NewVolume(s.VolumeDim, s.VoxelPitch)
	integ := tsdf.NewIntegrator(vol, s.MinViewDistance, s.MaxViewDistance)
	vc := &VolumeController{
		Volume:     vol,
		Integrator: integ,
		app:        app,
		interval:   rateInterval(s.IntegrationRateHz),
	}
	cmd.AddResources(vc)
	app.OnShutdown(vc.Disable)
}

func rateInterval(hz float32) time.Duration {
	if hz <= 0 {
		hz = 1
	}
	return time.Duration(float64(time.Second) / float64(hz))
}
