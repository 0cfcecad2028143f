package sim

import (
	"runtime"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/rigidsim/internal/body"
	"github.com/san-kum/rigidsim/internal/integrators"
	"github.com/san-kum/rigidsim/internal/shape"
)

type Settings struct {
	// Workers is the fixed worker pool size. Must be positive.
	Workers          int
	Gravity          mgl64.Vec3
	AllowSleeping    bool
	SolverIterations int
	Baumgarte        float64
	Slop             float64
	// MaxContacts caps contacts kept per step; zero means unlimited.
	MaxContacts int
	// AABBMargin pads body bounds in the broad phase.
	AABBMargin float64
	Integrator integrators.Integrator
}

func DefaultSettings() Settings {
	return Settings{
		Workers:          runtime.NumCPU(),
		Gravity:          mgl64.Vec3{0, -9.81, 0},
		AllowSleeping:    true,
		SolverIterations: 8,
		Baumgarte:        0.2,
		Slop:             0.005,
		AABBMargin:       0.02,
	}
}

// TickListener is notified on the calling goroutine before the first
// substep and after the last one.
type TickListener interface {
	PrePhysicsTick(s *System, dt float64)
	PhysicsTick(s *System, dt float64)
}

// TickFuncs adapts plain functions to TickListener. Nil fields are skipped.
type TickFuncs struct {
	Pre  func(s *System, dt float64)
	Post func(s *System, dt float64)
}

func (f TickFuncs) PrePhysicsTick(s *System, dt float64) {
	if f.Pre != nil {
		f.Pre(s, dt)
	}
}

func (f TickFuncs) PhysicsTick(s *System, dt float64) {
	if f.Post != nil {
		f.Post(s, dt)
	}
}

// Contact is a copy of one touching pair at the end of a step. A < B.
type Contact struct {
	A, B   body.Handle
	Normal mgl64.Vec3
	Points [shape.MaxManifoldPoints]shape.Point
	Count  int
	// Sensor is true when either body is a sensor; no impulse was applied.
	Sensor bool
}

func (c Contact) Depth() float64 {
	d := 0.0
	for i := 0; i < c.Count; i++ {
		d = max(d, c.Points[i].Depth)
	}
	return d
}

// Involves reports whether h is one of the two bodies.
func (c Contact) Involves(h body.Handle) bool { return c.A == h || c.B == h }

// Other returns the body paired with h.
func (c Contact) Other(h body.Handle) body.Handle {
	if c.A == h {
		return c.B
	}
	return c.A
}

// ContactListener receives contact events after each step, ordered by
// body pair.
type ContactListener interface {
	OnContactAdded(a, b body.Handle, c Contact)
	OnContactPersisted(a, b body.Handle, c Contact)
	OnContactRemoved(a, b body.Handle, c Contact)
}

// ContactFuncs adapts plain functions to ContactListener.
type ContactFuncs struct {
	Added     func(a, b body.Handle, c Contact)
	Persisted func(a, b body.Handle, c Contact)
	Removed   func(a, b body.Handle, c Contact)
}

func (f ContactFuncs) OnContactAdded(a, b body.Handle, c Contact) {
	if f.Added != nil {
		f.Added(a, b, c)
	}
}

func (f ContactFuncs) OnContactPersisted(a, b body.Handle, c Contact) {
	if f.Persisted != nil {
		f.Persisted(a, b, c)
	}
}

func (f ContactFuncs) OnContactRemoved(a, b body.Handle, c Contact) {
	if f.Removed != nil {
		f.Removed(a, b, c)
	}
}

// Metric accumulates a scalar over steps.
type Metric interface {
	Name() string
	Observe(s *System)
	Value() float64
	Reset()
}

type Observer interface {
	OnStep(s *System)
}

// StepStats summarises the last step.
type StepStats struct {
	Pairs    int
	Contacts int
	Active   int
	Slept    int
}
