// Package script runs tengo scripts as tick listeners.
//
// A script is compiled once and re-run on every tick with these globals:
//
//	phase   "pre" before the first collision step, "post" after the last
//	dt      the step length in seconds
//	now     simulated seconds before this step started
//	step    steps completed so far
//	state   a map kept between runs
//	engine  functions that act on bodies by name
//
// Globals a script never mentions are not set. The first failing run is
// kept in Err and disables the script.
package script

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/d5/tengo/v2"
	"github.com/d5/tengo/v2/stdlib"
	"github.com/san-kum/rigidsim/internal/dynamo"
	"github.com/san-kum/rigidsim/internal/sim"
)

const (
	PhasePre  = "pre"
	PhasePost = "post"
)

var modules = []string{"math", "text", "fmt", "enum"}

type Runtime struct {
	name     string
	compiled *tengo.Compiled
	state    *tengo.Map
	logger   *log.Logger
	sys      *sim.System
	runs     int
	err      error
}

// Compile prepares src. name only shows up in log lines and errors.
func Compile(name, src string, logger *log.Logger) (*Runtime, error) {
	if logger == nil {
		logger = log.Default()
	}
	rt := &Runtime{
		name:   name,
		state:  &tengo.Map{Value: map[string]tengo.Object{}},
		logger: logger.With("script", name),
	}

	s := tengo.NewScript([]byte(src))
	s.SetImports(stdlib.GetModuleMap(modules...))
	for _, v := range []struct {
		name  string
		value any
	}{
		{"phase", ""},
		{"dt", 0.0},
		{"now", 0.0},
		{"step", 0},
		{"state", rt.state},
		{"engine", rt.engine()},
	} {
		if err := s.Add(v.name, v.value); err != nil {
			return nil, err
		}
	}

	compiled, err := s.Compile()
	if err != nil {
		return nil, fmt.Errorf("%w: script %s: %w", dynamo.ErrConfiguration, name, err)
	}
	rt.compiled = compiled
	return rt, nil
}

func (rt *Runtime) Name() string { return rt.name }

// Err is the first run failure, or nil.
func (rt *Runtime) Err() error { return rt.err }

// Runs counts successful runs.
func (rt *Runtime) Runs() int { return rt.runs }

// State exposes the persistent script map, mostly for tests and the viewer.
func (rt *Runtime) State() map[string]any {
	out := make(map[string]any, len(rt.state.Value))
	for k, v := range rt.state.Value {
		out[k] = tengo.ToInterface(v)
	}
	return out
}

func (rt *Runtime) PrePhysicsTick(s *sim.System, dt float64) {
	rt.run(s, PhasePre, dt, s.Time())
}

func (rt *Runtime) PhysicsTick(s *sim.System, dt float64) {
	rt.run(s, PhasePost, dt, s.Time()-dt)
}

// Run executes one phase directly. Tick listeners use it; so does the
// validate command.
func (rt *Runtime) Run(s *sim.System, phase string, dt float64) error {
	rt.run(s, phase, dt, s.Time())
	return rt.err
}

func (rt *Runtime) run(s *sim.System, phase string, dt, now float64) {
	if rt.err != nil {
		return
	}
	rt.sys = s
	defer func() { rt.sys = nil }()

	for _, v := range []struct {
		name  string
		value any
	}{
		{"phase", phase},
		{"dt", dt},
		{"now", now},
		{"step", int64(s.StepCount())},
		{"state", rt.state},
	} {
		if !rt.compiled.IsDefined(v.name) {
			continue
		}
		if err := rt.compiled.Set(v.name, v.value); err != nil {
			rt.fail(phase, err)
			return
		}
	}
	if err := rt.compiled.Run(); err != nil {
		rt.fail(phase, err)
		return
	}
	rt.runs++
}

func (rt *Runtime) fail(phase string, err error) {
	rt.err = dynamo.SimError{Time: rt.sys.Time(), Step: rt.sys.StepCount(), Err: fmt.Errorf("script %s (%s): %w", rt.name, phase, err)}
	rt.logger.Error("script disabled", "phase", phase, "err", err)
}
