package config

import (
	"fmt"
	"runtime"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/rigidsim/internal/body"
	"github.com/san-kum/rigidsim/internal/dynamo"
	"github.com/san-kum/rigidsim/internal/integrators"
	"github.com/san-kum/rigidsim/internal/layers"
	"github.com/san-kum/rigidsim/internal/shape"
	"github.com/san-kum/rigidsim/internal/sim"
)

// World is everything a scene document builds.
type World struct {
	Layers  *layers.Registry
	Router  *layers.Router
	Bodies  *body.Registry
	System  *sim.System
	Handles map[string]body.Handle
}

// Handle looks a body up by its scene name.
func (w *World) Handle(name string) (body.Handle, error) {
	h, ok := w.Handles[name]
	if !ok {
		return body.InvalidHandle, dynamo.Usagef("no body named %q", name)
	}
	return h, nil
}

// Close releases the body registry.
func (w *World) Close() { w.Bodies.Close() }

// Build validates the scene and constructs the frozen layer registry, the
// router, the body registry, the system, and every body.
func (s *Scene) Build() (*World, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	reg, err := s.BuildLayers()
	if err != nil {
		return nil, err
	}
	router, err := layers.NewRouter(reg)
	if err != nil {
		return nil, err
	}
	maxBodies := s.MaxBodies
	if maxBodies == 0 {
		maxBodies = max(DefaultMaxBodies, len(s.Bodies))
	}
	bodies, err := body.NewRegistry(reg, maxBodies)
	if err != nil {
		return nil, err
	}
	settings, err := s.SimSettings()
	if err != nil {
		return nil, err
	}
	sys, err := sim.NewSystem(settings, router, bodies)
	if err != nil {
		return nil, err
	}
	handles, err := s.Populate(bodies)
	if err != nil {
		return nil, err
	}
	return &World{
		Layers:  reg,
		Router:  router,
		Bodies:  bodies,
		System:  sys,
		Handles: handles,
	}, nil
}

// BuildLayers returns a frozen registry. Object layers are numbered in
// declaration order, as are broad-phase layers.
func (s *Scene) BuildLayers() (*layers.Registry, error) {
	l := &s.Layers
	if err := l.validate(); err != nil {
		return nil, err
	}
	reg, err := layers.NewRegistry(len(l.Object), len(l.BroadPhase))
	if err != nil {
		return nil, err
	}
	for i, name := range l.Object {
		if err := reg.SetObjectLayerName(layers.ObjectLayer(i), name); err != nil {
			return nil, err
		}
	}
	for i, name := range l.BroadPhase {
		if err := reg.SetBroadPhaseLayerName(layers.BroadPhaseLayer(i), name); err != nil {
			return nil, err
		}
	}

	objects := index(l.Object)
	bps := index(l.BroadPhase)
	for _, name := range l.Object {
		bp, ok := l.Map[name]
		if !ok {
			continue
		}
		if err := reg.MapLayer(layers.ObjectLayer(objects[name]), layers.BroadPhaseLayer(bps[bp])); err != nil {
			return nil, err
		}
	}
	for _, p := range l.Pairs {
		a := layers.ObjectLayer(objects[p.A])
		b := layers.ObjectLayer(objects[p.B])
		if err := reg.SetPairEnabled(a, b, p.Enabled); err != nil {
			return nil, err
		}
	}
	if err := reg.Freeze(); err != nil {
		return nil, err
	}
	return reg, nil
}

func (s *Scene) SimSettings() (sim.Settings, error) {
	out := sim.DefaultSettings()
	out.Workers = s.Workers
	if out.Workers == 0 {
		out.Workers = runtime.NumCPU()
	}
	g, err := vec3("gravity", s.Gravity, mgl64.Vec3{})
	if err != nil {
		return out, err
	}
	out.Gravity = g
	out.AllowSleeping = s.AllowSleeping
	integ, err := integrators.ByName(s.Integrator)
	if err != nil {
		return out, err
	}
	out.Integrator = integ
	return out, nil
}

// Populate creates and adds every body in declaration order, then applies
// configured impulses.
func (s *Scene) Populate(bodies *body.Registry) (map[string]body.Handle, error) {
	handles := make(map[string]body.Handle, len(s.Bodies))
	for i := range s.Bodies {
		bc := &s.Bodies[i]
		settings, act, err := bc.Settings(bodies.Layers())
		if err != nil {
			return nil, err
		}
		h, err := bodies.CreateBody(settings)
		if err != nil {
			return nil, err
		}
		if err := bodies.AddBody(h, act); err != nil {
			return nil, err
		}
		handles[bc.Name] = h
	}
	for i := range s.Bodies {
		bc := &s.Bodies[i]
		if len(bc.Impulse) == 0 {
			continue
		}
		h := handles[bc.Name]
		imp, err := vec3("impulse", bc.Impulse, mgl64.Vec3{})
		if err != nil {
			return nil, err
		}
		var point *mgl64.Vec3
		if len(bc.ImpulseOffset) != 0 {
			off, err := vec3("impulse_offset", bc.ImpulseOffset, mgl64.Vec3{})
			if err != nil {
				return nil, err
			}
			p := bodies.Position(h).Add(off)
			point = &p
		}
		if err := bodies.AddImpulse(h, imp, point); err != nil {
			return nil, err
		}
	}
	return handles, nil
}

// Settings converts one body entry. Rotation is [w, x, y, z].
func (bc *BodyConfig) Settings(reg *layers.Registry) (body.Settings, dynamo.Activation, error) {
	out := body.DefaultSettings()
	out.Name = bc.Name

	sh, err := bc.Shape.Build()
	if err != nil {
		return out, 0, fmt.Errorf("body %s: %w", bc.Name, err)
	}
	out.Shape = sh

	kind, err := body.ParseMotionKind(bc.Motion)
	if err != nil {
		return out, 0, fmt.Errorf("body %s: %w", bc.Name, err)
	}
	out.MotionKind = kind

	layer, ok := reg.ObjectLayerByName(bc.Layer)
	if !ok {
		return out, 0, dynamo.Configf("body %s: unknown layer %q", bc.Name, bc.Layer)
	}
	out.ObjectLayer = layer

	act, err := dynamo.ParseActivation(bc.Activation)
	if err != nil {
		return out, 0, fmt.Errorf("body %s: %w", bc.Name, err)
	}

	if out.Position, err = vec3("position", bc.Position, mgl64.Vec3{}); err != nil {
		return out, 0, err
	}
	if len(bc.Rotation) != 0 {
		if len(bc.Rotation) != 4 {
			return out, 0, dynamo.Configf("body %s: rotation needs 4 components", bc.Name)
		}
		q := mgl64.Quat{W: bc.Rotation[0], V: mgl64.Vec3{bc.Rotation[1], bc.Rotation[2], bc.Rotation[3]}}
		if q.Len() == 0 {
			return out, 0, dynamo.Configf("body %s: rotation must not be zero", bc.Name)
		}
		out.Rotation = q.Normalize()
	}
	if out.LinearVelocity, err = vec3("linear_velocity", bc.LinearVelocity, mgl64.Vec3{}); err != nil {
		return out, 0, err
	}
	if out.AngularVelocity, err = vec3("angular_velocity", bc.AngularVelocity, mgl64.Vec3{}); err != nil {
		return out, 0, err
	}

	if bc.Mass > 0 {
		out.MassOverride = body.Mass(bc.Mass)
	}
	if bc.LinearDamping != nil {
		out.LinearDamping = *bc.LinearDamping
	}
	if bc.AngularDamping != nil {
		out.AngularDamping = *bc.AngularDamping
	}
	if bc.Friction != nil {
		out.Friction = *bc.Friction
	}
	if bc.Restitution != nil {
		out.Restitution = *bc.Restitution
	}
	if bc.GravityFactor != nil {
		out.GravityFactor = *bc.GravityFactor
	}
	if bc.AllowSleeping != nil {
		out.AllowSleeping = *bc.AllowSleeping
	}
	out.IsSensor = bc.Sensor
	return out, act, nil
}

func (sc *ShapeConfig) Build() (shape.Shape, error) {
	switch sc.Type {
	case "sphere":
		return shape.NewSphere(sc.Radius)
	case "box":
		h, err := vec3("half_extent", sc.HalfExtent, mgl64.Vec3{0.5, 0.5, 0.5})
		if err != nil {
			return nil, err
		}
		return shape.NewBox(h)
	case "plane":
		n, err := vec3("normal", sc.Normal, mgl64.Vec3{0, 1, 0})
		if err != nil {
			return nil, err
		}
		return shape.NewPlane(n, sc.Offset)
	}
	return nil, dynamo.Configf("unknown shape type: %q", sc.Type)
}

func vec3(field string, v []float64, def mgl64.Vec3) (mgl64.Vec3, error) {
	if len(v) == 0 {
		return def, nil
	}
	if len(v) != 3 {
		return def, dynamo.Configf("%s needs 3 components, got %d", field, len(v))
	}
	out := mgl64.Vec3{v[0], v[1], v[2]}
	if !dynamo.VecValid(out) {
		return def, dynamo.Configf("%s must be finite, got %v", field, out)
	}
	return out, nil
}
