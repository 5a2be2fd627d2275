package depthmesh

type Commands struct {
	app *App
}

func (cmd *Commands) AddResources(resources ...any) *Commands {
	cmd.app.addResources(resources...)
	return cmd
}

func (cmd *Commands) UseSystem(system systemScheduleBuilder) *Commands {
	cmd.app.UseSystem(system)
	return cmd
}

// Logger returns the installed logger, or a no-op logger. Never nil.
func (cmd *Commands) Logger() Logger {
	return cmd.app.Logger()
}
