package depthmesh

// ReconPreset bundles the standard module set for a reconstructing host.
type ReconPreset struct {
	Settings  Settings
	Source    FrameSource
	Gate      PermissionGate
	Collision CollisionConsumer
	NavBaker  NavMeshBaker
	GpuMirror bool
}

// Modules returns the preset's module list in dependency order.
func (p ReconPreset) Modules() []Module {
	mods := []Module{
		LoggingModule{Prefix: "depthmesh", Debug: p.Settings.Verbose},
		EventsModule{},
		TimeModule{},
		ComputeModule{},
		FrameModule{Source: p.Source, Gate: p.Gate},
		VolumeModule{Settings: p.Settings},
		MesherModule{Settings: p.Settings, Collision: p.Collision, NavBaker: p.NavBaker},
		SamplerModule{},
	}
	if p.GpuMirror {
		mods = append(mods, GpuMirrorModule{})
	}
	return mods
}

// NewReconApp builds an app with the preset installed.
func NewReconApp(p ReconPreset) *App {
	return NewAppBuilder().UseModule(p.Modules()...).Build()
}
