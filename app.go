// Package depthmesh reconstructs a triangle mesh of the user's physical
// surroundings from a stream of depth-camera frames. The App is the
// composition root: modules install their resources and per-frame systems
// into it, the host engine drives it with one Step per render frame, and
// the timed integration/refresh loops run under controllers owned by their
// modules.
package depthmesh

import (
	"fmt"
	"reflect"
	"runtime"
)

type systemFn any

type App struct {
	modules   []Module
	stages    []Stage
	systems   map[string][]systemFn
	resources map[reflect.Type]any

	frame    uint64
	teardown []func()
}

// Module installs a cohesive set of resources and systems into the App.
type Module interface {
	Install(app *App, cmd *Commands)
}

// Commands returns a command handle bound to this app.
func (app *App) Commands() *Commands {
	return &Commands{app: app}
}

// Frame returns the number of completed Steps.
func (app *App) Frame() uint64 {
	return app.frame
}

// Step runs one render frame: every stage in order, every system in
// registration order within its stage. The host engine calls this from its
// "before render" hook; the Finale stage is the end-of-frame cutoff.
func (app *App) Step() {
	for _, stage := range app.stages {
		for _, system := range app.systems[stage.Name] {
			app.callSystem(system)
		}
	}
	app.frame++
}

// OnShutdown registers a teardown hook. Hooks run in reverse registration
// order so dependents release before their dependencies.
func (app *App) OnShutdown(fn func()) {
	app.teardown = append(app.teardown, fn)
}

// Shutdown disables every registered component and releases resources.
// In-flight asynchronous work is joined by the individual hooks before the
// compute device itself is closed.
func (app *App) Shutdown() {
	for i := len(app.teardown) - 1; i >= 0; i-- {
		app.teardown[i]()
	}
	app.teardown = nil
}

func (app *App) addResources(resources ...any) *App {
	for _, resource := range resources {
		resourceType := reflect.TypeOf(resource)
		if _, ok := app.resources[resourceType.Elem()]; ok {
			panic(fmt.Sprintf("%s is already in resources", resourceType))
		}
		app.resources[resourceType.Elem()] = resource
	}
	return app
}

// resourceOf fetches a resource by its pointer type, or the zero value when
// the module providing it was not installed.
func resourceOf[T any](app *App) T {
	var zero T
	if app == nil {
		return zero
	}
	t := reflect.TypeOf(zero)
	if t == nil || t.Kind() != reflect.Ptr {
		return zero
	}
	if r, ok := app.resources[t.Elem()]; ok {
		return r.(T)
	}
	return zero
}

var typeOfCommands = reflect.TypeOf(Commands{})

// callSystem resolves a system's parameters from the resource map by type
// and invokes it. An unresolvable dependency is a wiring bug and panics at
// the first Step rather than limping along.
func (app *App) callSystem(system systemFn) {
	systemType := reflect.TypeOf(system)
	systemValue := reflect.ValueOf(system)

	args := make([]reflect.Value, systemType.NumIn())
	for i := 0; i < systemType.NumIn(); i++ {
		argType := systemType.In(i)
		underlyingType := argType.Elem()

		if underlyingType == typeOfCommands {
			args[i] = reflect.ValueOf(&Commands{app: app})
		} else if resource, ok := app.resources[underlyingType]; ok {
			args[i] = reflect.ValueOf(resource)
		} else {
			msg := fmt.Sprintf("Unable to resolve system dependency.\nSystem: %s\nDependency: %s",
				runtime.FuncForPC(systemValue.Pointer()).Name(),
				fmt.Sprint(argType),
			)
			panic(msg)
		}
	}
	systemValue.Call(args)
}
