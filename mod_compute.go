package depthmesh

import (
	"github.com/scenemesh/depthmesh/recon/compute"
)

// Compute wraps the shared compute device as an injectable resource.
type Compute struct {
	Device compute.Device
}

// ComputeModule installs the device every other module dispatches on.
// Workers 0 uses one worker per CPU.
type ComputeModule struct {
	Workers int
}

func (mod ComputeModule) Install(app *App, cmd *Commands) {
	var dev compute.Device
	if mod.Workers > 0 {
		dev = compute.NewDeviceWithWorkers(mod.Workers)
	} else {
		dev = compute.NewDevice()
	}
	cmd.AddResources(&Compute{Device: dev})
	app.OnShutdown(func() {
		dev.Close()
	})
}
