package experiment

import (
	"fmt"
	"sort"

	"github.com/san-kum/rigidsim/internal/config"
	"github.com/san-kum/rigidsim/internal/dynamo"
	"github.com/san-kum/rigidsim/internal/sim"
)

// Registry maps scene names to constructors. Each call builds a fresh
// Scene so per-scene state never leaks between runs.
type Registry struct {
	scenes map[string]func() (Scene, error)
}

func NewRegistry() *Registry {
	r := &Registry{
		scenes: make(map[string]func() (Scene, error)),
	}

	for _, name := range config.ListPresets() {
		r.Register(name, presetScene(name))
	}
	r.Register("contact_response", contactResponse)
	r.Register("kinematics", kinematics)
	r.Register("deactivation", deactivation)
	r.Register("sensor", sensor)
	r.Register("broadphase", broadPhase)
	r.Register("hover", hover)
	return r
}

func (r *Registry) Register(name string, fn func() (Scene, error)) {
	r.scenes[name] = fn
}

func (r *Registry) Get(name string) (Scene, error) {
	fn, ok := r.scenes[name]
	if !ok {
		return Scene{}, dynamo.Configf("unknown scene: %s", name)
	}
	return fn()
}

func (r *Registry) List() []string {
	names := make([]string, 0, len(r.scenes))
	for name := range r.scenes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func presetScene(name string) func() (Scene, error) {
	return func() (Scene, error) {
		sc := config.GetPreset(name)
		if sc == nil {
			return Scene{}, dynamo.Configf("unknown preset: %s", name)
		}
		return FromConfig(sc)
	}
}

// FromConfig wraps a scene document. Its script, if any, is attached as a
// tick listener during Populate.
func FromConfig(sc *config.Scene) (Scene, error) {
	if err := sc.Validate(); err != nil {
		return Scene{}, err
	}
	settings, err := sc.SimSettings()
	if err != nil {
		return Scene{}, err
	}

	return Scene{
		Name:        sc.Name,
		Description: sc.Description,
		Layers:      sc.BuildLayers,
		Settings: func(s *sim.Settings) {
			s.Workers = settings.Workers
			s.Gravity = settings.Gravity
			s.AllowSleeping = settings.AllowSleeping
			s.Integrator = settings.Integrator
		},
		Populate: func(app *App) error {
			handles, err := sc.Populate(app.Bodies())
			if err != nil {
				return err
			}
			for _, b := range sc.Bodies {
				app.adopt(b.Name, handles[b.Name])
			}
			if sc.Script != "" {
				if err := app.AttachScript(sc.Name, sc.Script); err != nil {
					return fmt.Errorf("script: %w", err)
				}
			}
			return nil
		},
		Speed:          sc.Speed,
		Dt:             sc.Step.Dt,
		CollisionSteps: sc.Step.CollisionSteps,
		Duration:       sc.Step.Duration,
		Track:          sc.Track,
	}, nil
}
