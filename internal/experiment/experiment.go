package experiment

import (
	"context"
	"fmt"
	"sort"

	"github.com/charmbracelet/log"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/rigidsim/internal/body"
	"github.com/san-kum/rigidsim/internal/config"
	"github.com/san-kum/rigidsim/internal/dynamo"
	"github.com/san-kum/rigidsim/internal/layers"
	"github.com/san-kum/rigidsim/internal/script"
	"github.com/san-kum/rigidsim/internal/sim"
)

const DefaultMaxCatchUp = 4

// KeyAction runs on the caller goroutine between steps.
type KeyAction func(app *App) error

// Scene describes how to build and drive one simulation.
type Scene struct {
	Name        string
	Description string
	Layers      func() (*layers.Registry, error)
	Settings    func(*sim.Settings)
	Populate    func(app *App) error
	Keys        map[string]KeyAction
	// Speed scales wall-clock time in Advance. Zero means 1.
	Speed          float64
	Dt             float64
	CollisionSteps int
	Duration       float64
	// Track names the body the headless run prints.
	Track string
	// Status is an optional one-line summary for the viewer.
	Status func(app *App) string
}

type Options struct {
	// Workers overrides the scene's worker count when positive.
	Workers    int
	MaxBodies  int
	MaxCatchUp int
	Logger     *log.Logger
}

// BodyView is a read-only snapshot of one body for display and storage.
type BodyView struct {
	Name     string
	Handle   body.Handle
	Motion   body.MotionKind
	Position mgl64.Vec3
	Rotation mgl64.Quat
	Velocity mgl64.Vec3
	Active   bool
	Added    bool
	Sensor   bool
}

// App owns one system and the fixed-step accumulator that feeds it.
type App struct {
	scene  Scene
	logger *log.Logger

	layers  *layers.Registry
	bodies  *body.Registry
	sys     *sim.System
	handles map[string]body.Handle
	names   []string
	scripts []*script.Runtime

	dt             float64
	collisionSteps int
	speed          float64
	maxCatchUp     int
	accumulator    float64
	paused         bool
	err            error
}

func New(sc Scene, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	if sc.Layers == nil || sc.Populate == nil {
		return nil, dynamo.Configf("scene %q needs Layers and Populate", sc.Name)
	}

	app := &App{
		scene:          sc,
		logger:         logger.With("scene", sc.Name),
		handles:        make(map[string]body.Handle),
		dt:             sc.Dt,
		collisionSteps: sc.CollisionSteps,
		speed:          sc.Speed,
		maxCatchUp:     opts.MaxCatchUp,
	}
	if app.dt == 0 {
		app.dt = config.DefaultDt
	}
	if app.collisionSteps == 0 {
		app.collisionSteps = config.DefaultCollisionSteps
	}
	if app.speed == 0 {
		app.speed = 1
	}
	if app.maxCatchUp <= 0 {
		app.maxCatchUp = DefaultMaxCatchUp
	}
	if !(app.dt > 0) || app.collisionSteps < 1 || app.speed < 0 {
		return nil, dynamo.Configf("scene %q: invalid step dt=%f collision_steps=%d speed=%f",
			sc.Name, app.dt, app.collisionSteps, app.speed)
	}

	reg, err := sc.Layers()
	if err != nil {
		return nil, fmt.Errorf("scene %s: %w", sc.Name, err)
	}
	router, err := layers.NewRouter(reg)
	if err != nil {
		return nil, err
	}
	maxBodies := opts.MaxBodies
	if maxBodies <= 0 {
		maxBodies = config.DefaultMaxBodies
	}
	bodies, err := body.NewRegistry(reg, maxBodies)
	if err != nil {
		return nil, err
	}

	settings := sim.DefaultSettings()
	if sc.Settings != nil {
		sc.Settings(&settings)
	}
	if opts.Workers > 0 {
		settings.Workers = opts.Workers
	}
	sys, err := sim.NewSystem(settings, router, bodies)
	if err != nil {
		return nil, err
	}

	app.layers = reg
	app.bodies = bodies
	app.sys = sys
	if err := sc.Populate(app); err != nil {
		return nil, fmt.Errorf("scene %s: %w", sc.Name, err)
	}

	app.logger.Info("scene ready",
		"bodies", bodies.Len(),
		"workers", sys.Workers(),
		"dt", app.dt,
		"collision_steps", app.collisionSteps,
	)
	return app, nil
}

func (a *App) Scene() Scene             { return a.scene }
func (a *App) System() *sim.System      { return a.sys }
func (a *App) Bodies() *body.Registry   { return a.bodies }
func (a *App) Layers() *layers.Registry { return a.layers }
func (a *App) Logger() *log.Logger      { return a.logger }
func (a *App) Dt() float64              { return a.dt }
func (a *App) CollisionSteps() int      { return a.collisionSteps }
func (a *App) Speed() float64           { return a.speed }
func (a *App) Time() float64            { return a.sys.Time() }
func (a *App) Paused() bool             { return a.paused }
func (a *App) Err() error               { return a.err }

func (a *App) SetSpeed(speed float64) error {
	if speed < 0 {
		return dynamo.Usagef("speed must not be negative, got %f", speed)
	}
	a.speed = speed
	return nil
}

func (a *App) TogglePause() {
	a.paused = !a.paused
	a.accumulator = 0
}

// AddBody creates and adds a named body.
func (a *App) AddBody(s body.Settings, act dynamo.Activation) (body.Handle, error) {
	if s.Name == "" {
		return body.InvalidHandle, dynamo.Configf("scene bodies need a name")
	}
	if _, dup := a.handles[s.Name]; dup {
		return body.InvalidHandle, dynamo.Configf("duplicate body name: %s", s.Name)
	}
	h, err := a.bodies.CreateBody(s)
	if err != nil {
		return body.InvalidHandle, err
	}
	if err := a.bodies.AddBody(h, act); err != nil {
		return body.InvalidHandle, err
	}
	a.adopt(s.Name, h)
	return h, nil
}

func (a *App) adopt(name string, h body.Handle) {
	a.handles[name] = h
	a.names = append(a.names, name)
}

// Handle resolves a body name.
func (a *App) Handle(name string) (body.Handle, error) {
	h, ok := a.handles[name]
	if !ok {
		return body.InvalidHandle, dynamo.Usagef("no body named %q", name)
	}
	return h, nil
}

// MustHandle is Handle for scene code whose names are fixed at build time.
func (a *App) MustHandle(name string) body.Handle {
	h, err := a.Handle(name)
	if err != nil {
		panic(err)
	}
	return h
}

// Names lists bodies in creation order.
func (a *App) Names() []string {
	return append([]string(nil), a.names...)
}

// AttachScript compiles src and runs it as a tick listener.
func (a *App) AttachScript(name, src string) error {
	rt, err := script.Compile(name, src, a.logger)
	if err != nil {
		return err
	}
	a.sys.AddTickListener(rt)
	a.scripts = append(a.scripts, rt)
	return nil
}

func (a *App) Scripts() []*script.Runtime { return a.scripts }

// Fail records the first error raised by scene callbacks that cannot
// return one. The next Step reports it.
func (a *App) Fail(err error) {
	if err != nil && a.err == nil {
		a.err = err
		a.logger.Error("scene callback failed", "err", err)
	}
}

// Step runs exactly one fixed step.
func (a *App) Step(ctx context.Context) error {
	if a.err != nil {
		return a.err
	}
	if err := a.sys.Step(ctx, a.dt, a.collisionSteps); err != nil {
		return err
	}
	for _, rt := range a.scripts {
		if err := rt.Err(); err != nil {
			a.Fail(err)
		}
	}
	if a.err != nil {
		return a.err
	}
	st := a.sys.Stats()
	a.logger.Debug("step",
		"t", a.sys.Time(),
		"pairs", st.Pairs,
		"contacts", st.Contacts,
		"active", st.Active,
	)
	return nil
}

// Advance consumes wall-clock seconds, scaled by the scene speed, in fixed
// steps. At most MaxCatchUp steps run per call; time beyond that is
// dropped so a slow frame does not snowball. It returns the number of
// steps taken.
func (a *App) Advance(ctx context.Context, wallSeconds float64) (int, error) {
	if wallSeconds < 0 {
		return 0, dynamo.Usagef("wall time must not be negative, got %f", wallSeconds)
	}
	if a.paused {
		return 0, nil
	}
	a.accumulator += wallSeconds * a.speed

	n := 0
	for a.accumulator >= a.dt {
		if n == a.maxCatchUp {
			a.accumulator = 0
			break
		}
		if err := a.Step(ctx); err != nil {
			return n, err
		}
		a.accumulator -= a.dt
		n++
	}
	return n, nil
}

// Press runs the action bound to key. Unbound keys return false.
func (a *App) Press(key string) (bool, error) {
	action, ok := a.scene.Keys[key]
	if !ok {
		return false, nil
	}
	a.logger.Info("key", "key", key)
	return true, action(a)
}

// KeyNames lists bound keys in order.
func (a *App) KeyNames() []string {
	keys := make([]string, 0, len(a.scene.Keys))
	for k := range a.scene.Keys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (a *App) Status() string {
	if a.scene.Status == nil {
		return ""
	}
	return a.scene.Status(a)
}

// Views snapshots every named body in creation order.
func (a *App) Views() []BodyView {
	out := make([]BodyView, 0, len(a.names))
	for _, name := range a.names {
		h := a.handles[name]
		b, err := a.bodies.Get(h)
		if err != nil {
			continue
		}
		out = append(out, BodyView{
			Name:     name,
			Handle:   h,
			Motion:   b.Motion,
			Position: b.Transform.Position,
			Rotation: b.Transform.Rotation,
			Velocity: b.LinearVelocity,
			Active:   b.Active,
			Added:    b.Added,
			Sensor:   b.Sensor,
		})
	}
	return out
}

// Run takes steps fixed steps, calling each after every one. It stops at
// the first error.
func (a *App) Run(ctx context.Context, steps int, each func(step int, app *App) error) error {
	for i := 0; i < steps; i++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", dynamo.ErrContextCanceled, err)
		}
		if err := a.Step(ctx); err != nil {
			return err
		}
		if each != nil {
			if err := each(i, a); err != nil {
				return err
			}
		}
	}
	return nil
}

// Steps is the number of fixed steps covering the scene duration.
func (a *App) Steps() int {
	if a.scene.Duration <= 0 {
		return 0
	}
	return int(a.scene.Duration/a.dt + 0.5)
}

func (a *App) Close() {
	a.bodies.Close()
}
