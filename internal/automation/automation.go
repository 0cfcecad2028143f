package automation

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/rigidsim/internal/config"
	"github.com/san-kum/rigidsim/internal/dynamo"
	"github.com/san-kum/rigidsim/internal/experiment"
	"github.com/san-kum/rigidsim/internal/integrators"
	"github.com/san-kum/rigidsim/internal/metrics"
	"github.com/san-kum/rigidsim/internal/sim"
	"github.com/san-kum/rigidsim/internal/storage"
	"gopkg.in/yaml.v3"
)

// MaxSpeed bounds every body's speed in the sanity metric, in m/s.
const MaxSpeed = 500

// Source builds a fresh scene. Code scenes keep state in closures, so each
// run needs its own.
type Source func() (experiment.Scene, error)

// Override replaces scene step parameters. Zero fields are left alone.
type Override struct {
	Dt             float64 `yaml:"dt"`
	CollisionSteps int     `yaml:"collision_steps"`
	Duration       float64 `yaml:"duration"`
	Integrator     string  `yaml:"integrator"`
	Speed          float64 `yaml:"speed"`
}

func (o Override) Apply(sc *experiment.Scene) error {
	if o.Dt != 0 {
		sc.Dt = o.Dt
	}
	if o.CollisionSteps != 0 {
		sc.CollisionSteps = o.CollisionSteps
	}
	if o.Duration != 0 {
		sc.Duration = o.Duration
	}
	if o.Speed != 0 {
		sc.Speed = o.Speed
	}
	if o.Integrator != "" {
		integ, err := integrators.ByName(o.Integrator)
		if err != nil {
			return err
		}
		tune := sc.Settings
		sc.Settings = func(s *sim.Settings) {
			if tune != nil {
				tune(s)
			}
			s.Integrator = integ
		}
	}
	return nil
}

// Result is one recorded run.
type Result struct {
	Meta         storage.RunMetadata
	Trajectory   *storage.Trajectory
	PeakContacts int
	// Sanity is the first invalid state seen, if any.
	Sanity error
}

// Record takes steps fixed steps with the energy, contact and sanity
// metrics attached, sampling every body before the first step and after
// each one. each may be nil.
func Record(ctx context.Context, app *experiment.App, steps int, each func(step int, app *experiment.App) error) (*Result, error) {
	sys := app.System()
	sanity := metrics.NewSanity(MaxSpeed)
	contacts := metrics.NewContactCount()
	sys.AddMetric(metrics.NewEnergy())
	sys.AddMetric(metrics.NewEnergyDrift())
	sys.AddMetric(contacts)
	sys.AddMetric(sanity)

	traj := &storage.Trajectory{}
	traj.Record(0, app.Time(), app.Views())
	err := app.Run(ctx, steps, func(step int, app *experiment.App) error {
		traj.Record(step+1, app.Time(), app.Views())
		if each != nil {
			return each(step, app)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	meta := storage.RunMetadata{
		Scene:          app.Scene().Name,
		Dt:             app.Dt(),
		CollisionSteps: app.CollisionSteps(),
		Duration:       app.Time(),
		Steps:          steps,
		Workers:        sys.Workers(),
		Integrator:     sys.IntegratorName(),
		Metrics:        make(map[string]float64),
	}
	for _, m := range sys.Metrics() {
		meta.Metrics[m.Name()] = m.Value()
	}
	return &Result{
		Meta:         meta,
		Trajectory:   traj,
		PeakContacts: contacts.Peak(),
		Sanity:       sanity.Err(),
	}, nil
}

// runOnce builds, records and closes one app. steps <= 0 covers the scene
// duration.
func runOnce(ctx context.Context, sc experiment.Scene, opts experiment.Options, steps int, setup func(app *experiment.App) error) (*Result, error) {
	app, err := experiment.New(sc, opts)
	if err != nil {
		return nil, err
	}
	defer app.Close()
	if setup != nil {
		if err := setup(app); err != nil {
			return nil, err
		}
	}
	if steps <= 0 {
		steps = app.Steps()
	}
	return Record(ctx, app, steps, nil)
}

// Batch is a YAML list of runs executed in order.
type Batch struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Runs        []BatchRun `yaml:"runs"`

	dir string
}

// BatchRun names either a registered scene or a scene file. Relative
// config paths resolve against the batch file.
type BatchRun struct {
	Scene    string   `yaml:"scene"`
	Config   string   `yaml:"config"`
	Workers  int      `yaml:"workers"`
	Override Override `yaml:",inline"`
}

func LoadBatch(path string) (*Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var b Batch
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("%w: %w", dynamo.ErrConfiguration, err)
	}
	b.dir = filepath.Dir(path)
	if len(b.Runs) == 0 {
		return nil, dynamo.Configf("batch %s has no runs", path)
	}
	for i, r := range b.Runs {
		if (r.Scene == "") == (r.Config == "") {
			return nil, dynamo.Configf("batch run %d: set exactly one of scene and config", i+1)
		}
	}
	return &b, nil
}

// Source returns the scene constructor for run i.
func (b *Batch) Source(reg *experiment.Registry, i int) Source {
	r := b.Runs[i]
	return func() (experiment.Scene, error) {
		var sc experiment.Scene
		var err error
		if r.Config != "" {
			path := r.Config
			if !filepath.IsAbs(path) {
				path = filepath.Join(b.dir, path)
			}
			doc, lerr := config.Load(path)
			if lerr != nil {
				return experiment.Scene{}, lerr
			}
			sc, err = experiment.FromConfig(doc)
		} else {
			sc, err = reg.Get(r.Scene)
		}
		if err != nil {
			return experiment.Scene{}, err
		}
		return sc, r.Override.Apply(&sc)
	}
}

// RunBatch executes every run in order and stops at the first failure.
func RunBatch(ctx context.Context, b *Batch, reg *experiment.Registry, opts experiment.Options) ([]*Result, error) {
	logger := opts.Logger
	results := make([]*Result, 0, len(b.Runs))

	for i, r := range b.Runs {
		sc, err := b.Source(reg, i)()
		if err != nil {
			return results, fmt.Errorf("run %d: %w", i+1, err)
		}
		runOpts := opts
		if r.Workers > 0 {
			runOpts.Workers = r.Workers
		}
		res, err := runOnce(ctx, sc, runOpts, 0, nil)
		if err != nil {
			return results, fmt.Errorf("run %d: %w", i+1, err)
		}
		if logger != nil {
			logger.Info("batch run done", "run", i+1, "of", len(b.Runs), "scene", sc.Name, "steps", res.Meta.Steps)
		}
		results = append(results, res)
	}

	return results, nil
}

// SetParam applies one named numeric parameter to a scene: dt,
// collision_steps, gravity (y component) or speed.
func SetParam(sc *experiment.Scene, name string, v float64) error {
	switch name {
	case "dt":
		sc.Dt = v
	case "collision_steps":
		if v < 1 || v != float64(int(v)) {
			return dynamo.Usagef("collision_steps must be a positive integer, got %g", v)
		}
		sc.CollisionSteps = int(v)
	case "gravity":
		tune := sc.Settings
		sc.Settings = func(s *sim.Settings) {
			if tune != nil {
				tune(s)
			}
			s.Gravity = mgl64.Vec3{s.Gravity.X(), v, s.Gravity.Z()}
		}
	case "speed":
		sc.Speed = v
	default:
		return dynamo.Usagef("unknown parameter %q (dt, collision_steps, gravity, speed)", name)
	}
	return nil
}

// ParameterSweep runs a scene once per value of one parameter.
type ParameterSweep struct {
	Source Source
	Param  string
	Values []float64
	// Body is the body whose final position is reported. Empty uses the
	// scene's tracked body.
	Body string
	// Steps <= 0 covers the scene duration.
	Steps int
}

type SweepResult struct {
	Value        float64
	Drift        float64
	PeakContacts int
	Final        mgl64.Vec3
	Stable       bool
}

func RunSweep(ctx context.Context, sweep *ParameterSweep, opts experiment.Options) ([]SweepResult, error) {
	if len(sweep.Values) == 0 {
		return nil, dynamo.Usagef("sweep of %s has no values", sweep.Param)
	}
	results := make([]SweepResult, 0, len(sweep.Values))

	for i, v := range sweep.Values {
		sc, err := sweep.Source()
		if err != nil {
			return nil, err
		}
		if err := SetParam(&sc, sweep.Param, v); err != nil {
			return nil, err
		}
		name := sweep.Body
		if name == "" {
			name = sc.Track
		}

		res, err := runOnce(ctx, sc, opts, sweep.Steps, nil)
		if err != nil {
			return nil, fmt.Errorf("%s=%g: %w", sweep.Param, v, err)
		}
		var final mgl64.Vec3
		if _, pos := res.Trajectory.Series(name); len(pos) > 0 {
			final = pos[len(pos)-1]
		}

		results = append(results, SweepResult{
			Value:        v,
			Drift:        res.Meta.Metrics["energy_drift"],
			PeakContacts: res.PeakContacts,
			Final:        final,
			Stable:       res.Sanity == nil,
		})
		if opts.Logger != nil {
			opts.Logger.Debug("sweep", "step", i+1, "of", len(sweep.Values), sweep.Param, v)
		}
	}

	return results, nil
}

// MonteCarloConfig kicks one body with a random velocity per trial.
type MonteCarloConfig struct {
	Source       Source
	Body         string
	Perturbation float64
	NumTrials    int
	Steps        int
	// Seed 0 seeds from the clock.
	Seed int64
}

type MonteCarloResult struct {
	TrialID int
	Kick    mgl64.Vec3
	Final   mgl64.Vec3
	Stable  bool
}

func RunMonteCarlo(ctx context.Context, cfg *MonteCarloConfig, opts experiment.Options) ([]MonteCarloResult, error) {
	if cfg.NumTrials < 1 {
		return nil, dynamo.Usagef("monte carlo needs at least one trial, got %d", cfg.NumTrials)
	}
	results := make([]MonteCarloResult, 0, cfg.NumTrials)

	rng := rand.New(rand.NewSource(cfg.Seed))
	if cfg.Seed == 0 {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	for trial := 0; trial < cfg.NumTrials; trial++ {
		kick := mgl64.Vec3{
			(rng.Float64() - 0.5) * 2 * cfg.Perturbation,
			(rng.Float64() - 0.5) * 2 * cfg.Perturbation,
			(rng.Float64() - 0.5) * 2 * cfg.Perturbation,
		}

		sc, err := cfg.Source()
		if err != nil {
			return nil, err
		}
		name := cfg.Body
		if name == "" {
			name = sc.Track
		}
		res, err := runOnce(ctx, sc, opts, cfg.Steps, func(app *experiment.App) error {
			h, err := app.Handle(name)
			if err != nil {
				return err
			}
			v := app.Bodies().LinearVelocity(h)
			return app.Bodies().SetLinearVelocity(h, v.Add(kick))
		})
		if err != nil {
			return nil, fmt.Errorf("trial %d: %w", trial, err)
		}

		var final mgl64.Vec3
		if _, pos := res.Trajectory.Series(name); len(pos) > 0 {
			final = pos[len(pos)-1]
		}
		results = append(results, MonteCarloResult{
			TrialID: trial,
			Kick:    kick,
			Final:   final,
			Stable:  res.Sanity == nil,
		})

		if opts.Logger != nil && (trial+1)%10 == 0 {
			opts.Logger.Info("monte carlo", "done", trial+1, "of", cfg.NumTrials)
		}
	}

	return results, nil
}

func MonteCarloStats(results []MonteCarloResult) (stableCount int, unstableCount int) {
	for _, r := range results {
		if r.Stable {
			stableCount++
		} else {
			unstableCount++
		}
	}
	return
}
