package depthmesh

import (
	"context"
	"sync"
	"time"

	"github.com/scenemesh/depthmesh/recon/frame"
	"github.com/scenemesh/depthmesh/recon/mesher"
)

// MesherController owns the surface refresh loop. Enable starts a goroutine
// that refreshes the published mesh at the configured rate; ticks await the
// previous refresh so extraction passes never overlap.
type MesherController struct {
	app      *App
	settings Settings
	coll     CollisionConsumer
	navBaker NavMeshBaker

	pipeOnce sync.Once
	pipe     *MeshPipeline

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Pipeline returns the readback pipeline, building it on first use once the
// compute and volume modules have installed their resources.
func (mc *MesherController) Pipeline() *MeshPipeline {
	mc.pipeOnce.Do(func() {
		comp := resourceOf[*Compute](mc.app)
		vc := resourceOf[*VolumeController](mc.app)
		events := resourceOf[*Events](mc.app)
		if comp == nil || vc == nil || events == nil {
			panic("mesher: compute, volume and events modules must be installed first")
		}
		buffers := mesher.NewBuffers(mc.settings.TriangleBudget, vc.Volume.VoxelCount())
		mc.pipe = NewMeshPipeline(MeshPipelineConfig{
			Device:    comp.Device,
			Volume:    vc.Volume,
			Extractor: mesher.NewExtractor(mc.settings.MaxMeshUpdateDistance),
			Buffers:   buffers,
			Snapshot: func() *frame.Snapshot {
				st := resourceOf[*frameState](mc.app)
				if st == nil || st.Pre == nil {
					return nil
				}
				return st.Pre.Snapshot()
			},
			Events:    events,
			Logger:    mc.app.Logger(),
			Collision: mc.coll,
			NavBaker:  mc.navBaker,
		})
	})
	return mc.pipe
}

// Enabled reports whether the refresh loop is running.
func (mc *MesherController) Enabled() bool {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.cancel != nil
}

// Enable starts the refresh loop. Idempotent.
func (mc *MesherController) Enable() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	if mc.cancel != nil {
		return
	}
	pipe := mc.Pipeline()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	mc.cancel = cancel
	mc.done = done
	go mc.run(ctx, done, pipe)
	mc.app.Logger().Infof("mesher: refresh enabled")
}

// Disable stops and joins the loop. Idempotent.
func (mc *MesherController) Disable() {
	mc.mu.Lock()
	cancel, done := mc.cancel, mc.done
	mc.cancel, mc.done = nil, nil
	mc.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	mc.app.Logger().Infof("mesher: refresh disabled")
}

func (mc *MesherController) run(ctx context.Context, done chan struct{}, pipe *MeshPipeline) {
	defer close(done)
	log := mc.app.Logger()
	ticker := time.NewTicker(rateInterval(mc.settings.RefreshRateHz))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if err := pipe.Refresh(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warnf("mesher: refresh failed: %v", err)
		}
	}
}

// MesherModule installs the surface extraction and readback pipeline.
// Collision and NavBaker are nil-able; Settings.BakeCollision and
// Settings.BakeNavMesh additionally gate them.
type MesherModule struct {
	Settings  Settings
	Collision CollisionConsumer
	NavBaker  NavMeshBaker
}

func (mod MesherModule) Install(app *App, cmd *Commands) {
	coll := mod.Collision
	if !mod.Settings.BakeCollision {
		coll = nil
	}
	navBaker := mod.NavBaker
	if !mod.Settings.BakeNavMesh {
		navBaker = nil
	}
	mc := &MesherController{
		app:      app,
		settings: mod.Settings,
		coll:     coll,
		navBaker: navBaker,
	}
	cmd.AddResources(mc)
	app.OnShutdown(func() {
		mc.Disable()
		if mc.pipe != nil {
			mc.pipe.Close()
		}
	})
}
