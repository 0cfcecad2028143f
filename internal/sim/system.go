package sim

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/rigidsim/internal/body"
	"github.com/san-kum/rigidsim/internal/broadphase"
	"github.com/san-kum/rigidsim/internal/dynamo"
	"github.com/san-kum/rigidsim/internal/integrators"
	"github.com/san-kum/rigidsim/internal/layers"
	"github.com/san-kum/rigidsim/internal/shape"
)

// System is the fixed-step scheduler. It owns the worker pool, scratch
// arena, listeners and simulated time; bodies stay owned by the registry.
type System struct {
	settings   Settings
	router     *layers.Router
	bodies     *body.Registry
	pool       *dynamo.Pool
	integrator integrators.Integrator
	index      *broadphase.Index
	query      *broadphase.Index
	arena      *Arena

	tick      []TickListener
	listeners []ContactListener
	metrics   []Metric
	observers []Observer

	// contacts touching at the end of the previous step, by pair
	active   map[pairKey]Contact
	current  map[pairKey]int
	contacts []Contact
	removed  []pairKey

	time  float64
	steps uint64
	stats StepStats
}

type pairKey struct {
	a, b body.Handle
}

func NewSystem(s Settings, router *layers.Router, bodies *body.Registry) (*System, error) {
	if router == nil || bodies == nil {
		return nil, dynamo.Configf("system needs a router and a body registry")
	}
	if router.Registry() != bodies.Layers() {
		return nil, dynamo.Configf("router and body registry use different layer registries")
	}
	if err := validateSettings(s); err != nil {
		return nil, err
	}

	pool, err := dynamo.NewPool(s.Workers)
	if err != nil {
		return nil, err
	}
	pool.SetMinChunk(8)

	integ := s.Integrator
	if integ == nil {
		integ = integrators.NewSemiImplicitEuler()
	}

	return &System{
		settings:   s,
		router:     router,
		bodies:     bodies,
		pool:       pool,
		integrator: integ,
		index:      broadphase.NewIndex(router.Registry()),
		query:      broadphase.NewIndex(router.Registry()),
		arena:      NewArena(),
		active:     make(map[pairKey]Contact),
		current:    make(map[pairKey]int),
	}, nil
}

func validateSettings(s Settings) error {
	if s.Workers <= 0 {
		return dynamo.Configf("worker count must be positive, got %d", s.Workers)
	}
	if s.SolverIterations < 1 {
		return dynamo.Configf("solver iterations must be at least 1, got %d", s.SolverIterations)
	}
	if s.Baumgarte < 0 || s.Baumgarte > 1 {
		return dynamo.Configf("baumgarte factor must be in [0, 1], got %f", s.Baumgarte)
	}
	if s.Slop < 0 || s.AABBMargin < 0 || s.MaxContacts < 0 {
		return dynamo.Configf("slop, aabb margin and max contacts must be non-negative")
	}
	if !dynamo.VecValid(s.Gravity) {
		return dynamo.Configf("gravity must be finite, got %v", s.Gravity)
	}
	return nil
}

func (s *System) AddTickListener(l TickListener)       { s.tick = append(s.tick, l) }
func (s *System) AddContactListener(l ContactListener) { s.listeners = append(s.listeners, l) }
func (s *System) AddMetric(m Metric)                   { s.metrics = append(s.metrics, m) }
func (s *System) AddObserver(o Observer)               { s.observers = append(s.observers, o) }

func (s *System) Time() float64          { return s.time }
func (s *System) StepCount() uint64      { return s.steps }
func (s *System) Bodies() *body.Registry { return s.bodies }
func (s *System) Router() *layers.Router { return s.router }
func (s *System) Gravity() mgl64.Vec3    { return s.settings.Gravity }
func (s *System) Settings() Settings     { return s.settings }
func (s *System) Workers() int           { return s.pool.Workers() }
func (s *System) IntegratorName() string { return s.integrator.Name() }
func (s *System) Stats() StepStats       { return s.stats }
func (s *System) Arena() *Arena          { return s.arena }
func (s *System) Metrics() []Metric      { return s.metrics }

func (s *System) Integrator() integrators.Integrator {
	return s.integrator
}

func (s *System) SetGravity(g mgl64.Vec3) error {
	if !dynamo.VecValid(g) {
		return dynamo.Configf("gravity must be finite, got %v", g)
	}
	s.settings.Gravity = g
	return nil
}

func (s *System) SetAllowSleeping(allow bool) { s.settings.AllowSleeping = allow }

// Contacts returns a copy of the contacts touching at the end of the last step.
func (s *System) Contacts() []Contact {
	out := make([]Contact, len(s.contacts))
	copy(out, s.contacts)
	return out
}

// Step advances every active body by exactly dt, running collisionSteps
// detection and integration passes of dt/collisionSteps each. Invalid
// arguments are rejected before any body or listener is touched. The
// context is only checked before the step starts; a step is never
// interrupted once begun.
func (s *System) Step(ctx context.Context, dt float64, collisionSteps int) error {
	if err := s.validateStep(dt, collisionSteps); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", dynamo.ErrContextCanceled, err)
	}

	for _, l := range s.tick {
		l.PrePhysicsTick(s, dt)
	}

	s.contacts = s.contacts[:0]
	clear(s.current)
	s.stats = StepStats{}

	h := dt / float64(collisionSteps)
	for i := 0; i < collisionSteps; i++ {
		s.substep(h)
	}

	s.time += dt
	s.steps++
	s.stats.Contacts = len(s.contacts)
	s.stats.Active = s.bodies.NumActive()

	s.publishContacts()

	for _, l := range s.tick {
		l.PhysicsTick(s, dt)
	}
	for _, m := range s.metrics {
		m.Observe(s)
	}
	for _, o := range s.observers {
		o.OnStep(s)
	}
	return nil
}

func (s *System) validateStep(dt float64, collisionSteps int) error {
	if !(dt > 0) || math.IsInf(dt, 0) {
		return dynamo.Configf("dt must be positive, got %f", dt)
	}
	if collisionSteps < 1 {
		return dynamo.Configf("collision steps must be at least 1, got %d", collisionSteps)
	}
	if s.pool.Workers() <= 0 {
		return dynamo.Configf("worker count must be positive, got %d", s.pool.Workers())
	}
	return nil
}

// substep runs one broad phase, narrow phase, solve and integrate pass.
// Each phase finishes on every worker before the next one starts.
func (s *System) substep(h float64) {
	s.arena.Reset()
	records := s.bodies.Records()
	gravity := s.settings.Gravity

	if p, ok := s.integrator.(integrators.Preparer); ok {
		p.Prepare(records)
	}

	s.pool.For(len(records), func(start, end int) {
		for i := start; i < end; i++ {
			b := &records[i]
			if b.Moving() && b.IsDynamic() {
				s.integrator.IntegrateVelocity(b, gravity, h)
			}
		}
	})

	bounds := s.arena.Bounds(len(records))
	s.pool.For(len(records), func(start, end int) {
		for i := start; i < end; i++ {
			if records[i].Added {
				bounds[i] = records[i].Bounds().Expand(s.settings.AABBMargin)
			}
		}
	})

	s.index.Reset()
	for i := range records {
		b := &records[i]
		if !b.Added {
			continue
		}
		s.index.Insert(broadphase.Entry{ID: uint32(b.ID), Object: b.Layer, Bounds: bounds[i], Moving: b.Moving()})
	}
	s.index.Build()
	s.arena.pairs = s.index.FindPairs(s.router, s.arena.pairs[:0])
	pairs := s.arena.pairs
	s.stats.Pairs += len(pairs)

	manifolds := s.arena.Manifolds(len(pairs))
	hits := s.arena.Hits()
	s.pool.For(len(pairs), func(start, end int) {
		for k := start; k < end; k++ {
			a := &records[pairs[k].A-1]
			b := &records[pairs[k].B-1]
			hits[k] = shape.Collide(a.Shape, a.Transform, b.Shape, b.Transform, &manifolds[k])
		}
	})

	for k, pair := range pairs {
		if !hits[k] {
			continue
		}
		a := &records[pair.A-1]
		b := &records[pair.B-1]
		sensor := a.Sensor || b.Sensor
		s.record(a.ID, b.ID, &manifolds[k], sensor)
		if sensor {
			continue
		}
		if a.Moving() && !b.Moving() {
			b.Wake()
		} else if b.Moving() && !a.Moving() {
			a.Wake()
		}
		s.arena.constraints = append(s.arena.constraints, constraint{})
		c := &s.arena.constraints[len(s.arena.constraints)-1]
		if !s.prepare(c, a, b, &manifolds[k], h) {
			s.arena.constraints = s.arena.constraints[:len(s.arena.constraints)-1]
		}
	}

	s.solve(s.arena.constraints)

	s.pool.For(len(records), func(start, end int) {
		for i := start; i < end; i++ {
			b := &records[i]
			if b.Moving() {
				s.integrator.IntegratePosition(b, h)
			}
		}
	})

	if s.settings.AllowSleeping {
		for i := range records {
			if records[i].TickSleep(h) {
				s.stats.Slept++
			}
		}
	}
}

// record keeps the latest manifold for each touching pair in this step.
func (s *System) record(a, b body.Handle, m *shape.Manifold, sensor bool) {
	key := pairKey{a, b}
	c := Contact{A: a, B: b, Normal: m.Normal, Points: m.Points, Count: m.Count, Sensor: sensor}
	if i, ok := s.current[key]; ok {
		s.contacts[i] = c
		return
	}
	if s.settings.MaxContacts > 0 && len(s.contacts) >= s.settings.MaxContacts {
		return
	}
	s.current[key] = len(s.contacts)
	s.contacts = append(s.contacts, c)
}

// publishContacts diffs this step's contacts against the previous step and
// notifies listeners in pair order.
func (s *System) publishContacts() {
	sortContacts(s.contacts)
	for i, c := range s.contacts {
		s.current[pairKey{c.A, c.B}] = i
	}

	s.removed = s.removed[:0]
	for key := range s.active {
		if _, ok := s.current[key]; !ok {
			s.removed = append(s.removed, key)
		}
	}
	sortKeys(s.removed)

	for _, c := range s.contacts {
		_, seen := s.active[pairKey{c.A, c.B}]
		for _, l := range s.listeners {
			if seen {
				l.OnContactPersisted(c.A, c.B, c)
			} else {
				l.OnContactAdded(c.A, c.B, c)
			}
		}
	}
	for _, key := range s.removed {
		last := s.active[key]
		for _, l := range s.listeners {
			l.OnContactRemoved(key.a, key.b, last)
		}
	}

	clear(s.active)
	for _, c := range s.contacts {
		s.active[pairKey{c.A, c.B}] = c
	}
}

// QueryAABox returns the added bodies whose bounds overlap box, filtered by
// broad-phase and object layer. Nil filters accept everything.
func (s *System) QueryAABox(box shape.AABB, bpFilter func(layers.BroadPhaseLayer) bool, objFilter layers.ObjectLayerFilter) []body.Handle {
	s.query.Reset()
	s.bodies.Each(func(b *body.Body) {
		if b.Added {
			s.query.Insert(broadphase.Entry{ID: uint32(b.ID), Object: b.Layer, Bounds: b.Bounds(), Moving: b.Moving()})
		}
	})
	s.query.Build()

	ids := s.query.CollideAABox(box, bpFilter, objFilter, nil)
	out := make([]body.Handle, len(ids))
	for i, id := range ids {
		out[i] = body.Handle(id)
	}
	return out
}

// Validate reports the first body with a non-finite transform or velocity.
// Numerical failures are never corrected here.
func (s *System) Validate() error {
	var err error
	s.bodies.Each(func(b *body.Body) {
		if err != nil {
			return
		}
		if !b.Transform.IsValid() || !dynamo.VecValid(b.LinearVelocity) || !dynamo.VecValid(b.AngularVelocity) {
			err = &dynamo.BodyError{Body: uint32(b.ID), Op: "validate", Wrapped: dynamo.SimError{
				Time: s.time, Step: s.steps, Err: dynamo.ErrInvalidState,
			}}
		}
	})
	return err
}

func sortContacts(cs []Contact) {
	slices.SortFunc(cs, func(x, y Contact) int {
		if c := cmp.Compare(x.A, y.A); c != 0 {
			return c
		}
		return cmp.Compare(x.B, y.B)
	})
}

func sortKeys(keys []pairKey) {
	slices.SortFunc(keys, func(x, y pairKey) int {
		if c := cmp.Compare(x.a, y.a); c != 0 {
			return c
		}
		return cmp.Compare(x.b, y.b)
	})
}
