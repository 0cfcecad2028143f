package body

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/rigidsim/internal/dynamo"
	"github.com/san-kum/rigidsim/internal/layers"
	"github.com/san-kum/rigidsim/internal/shape"
)

// Registry exclusively owns every body record. Storage is allocated once at
// maxBodies so pointers returned by Get stay valid until Close.
//
// Not safe for concurrent use; mutate only between steps.
type Registry struct {
	layers *layers.Registry
	bodies []Body
	closed bool
}

func NewRegistry(reg *layers.Registry, maxBodies int) (*Registry, error) {
	if reg == nil {
		return nil, dynamo.Configf("nil layer registry")
	}
	if maxBodies <= 0 {
		return nil, dynamo.Configf("max bodies must be positive, got %d", maxBodies)
	}
	return &Registry{
		layers: reg,
		bodies: make([]Body, 0, maxBodies),
	}, nil
}

func (r *Registry) Layers() *layers.Registry { return r.layers }

// CreateBody validates s and stores a new body. The body is not simulated
// until AddBody.
func (r *Registry) CreateBody(s Settings) (Handle, error) {
	if r.closed {
		return InvalidHandle, dynamo.Usagef("registry is closed")
	}
	if len(r.bodies) == cap(r.bodies) {
		return InvalidHandle, dynamo.Configf("body limit %d reached", cap(r.bodies))
	}
	if s.Shape == nil {
		return InvalidHandle, dynamo.Configf("body %q has no shape", s.Name)
	}
	if !r.layers.ValidObject(s.ObjectLayer) {
		return InvalidHandle, dynamo.Configf("object layer %d out of range [0, %d)", s.ObjectLayer, r.layers.NumObjectLayers())
	}
	if s.MotionKind > Kinematic {
		return InvalidHandle, dynamo.Configf("unknown motion kind %d", s.MotionKind)
	}
	for _, c := range []struct {
		name string
		v    float64
	}{
		{"linear damping", s.LinearDamping},
		{"angular damping", s.AngularDamping},
		{"friction", s.Friction},
		{"restitution", s.Restitution},
	} {
		if !(c.v >= 0) || math.IsInf(c.v, 0) {
			return InvalidHandle, dynamo.Configf("%s must be non-negative, got %f", c.name, c.v)
		}
	}
	if !dynamo.VecValid(s.Position) || !dynamo.VecValid(s.LinearVelocity) || !dynamo.VecValid(s.AngularVelocity) {
		return InvalidHandle, dynamo.Configf("body %q has non-finite initial state", s.Name)
	}

	rot := s.Rotation
	if rot.W == 0 && rot.V == (mgl64.Vec3{}) {
		rot = mgl64.QuatIdent()
	}
	rot = rot.Normalize()

	b := Body{
		ID:             Handle(len(r.bodies) + 1),
		Name:           s.Name,
		Shape:          s.Shape,
		Motion:         s.MotionKind,
		Layer:          s.ObjectLayer,
		Transform:      dynamo.Transform{Position: s.Position, Rotation: rot},
		LinearDamping:  s.LinearDamping,
		AngularDamping: s.AngularDamping,
		Friction:       s.Friction,
		Restitution:    s.Restitution,
		GravityFactor:  s.GravityFactor,
		Sensor:         s.IsSensor,
		AllowSleeping:  s.AllowSleeping,
	}

	if s.MotionKind != Static {
		b.LinearVelocity = s.LinearVelocity
		b.AngularVelocity = s.AngularVelocity
	}

	if s.MotionKind == Dynamic {
		mass, err := massOf(s)
		if err != nil {
			return InvalidHandle, err
		}
		b.InvMass = 1 / mass
		inertia := s.Shape.Inertia(mass)
		for i := 0; i < 3; i++ {
			if inertia[i] > 0 {
				b.InvInertiaLocal[i] = 1 / inertia[i]
			}
		}
	}

	r.bodies = append(r.bodies, b)
	return b.ID, nil
}

func massOf(s Settings) (float64, error) {
	if s.MassOverride != nil {
		m := *s.MassOverride
		if !(m > 0) || math.IsInf(m, 0) {
			return 0, dynamo.Configf("body %q: mass override must be positive, got %f", s.Name, m)
		}
		return m, nil
	}
	v := s.Shape.Volume()
	if v <= 0 {
		return 0, dynamo.Configf("body %q: dynamic %s needs a mass override", s.Name, s.Shape.Kind())
	}
	return v * shape.DefaultDensity, nil
}

// Get returns the record for h. The pointer is valid until Close.
func (r *Registry) Get(h Handle) (*Body, error) {
	return r.lookup(h, "get")
}

func (r *Registry) lookup(h Handle, op string) (*Body, error) {
	if r.closed {
		return nil, &dynamo.BodyError{Body: uint32(h), Op: op, Wrapped: dynamo.Usagef("registry is closed")}
	}
	if h == InvalidHandle || int(h) > len(r.bodies) {
		return nil, &dynamo.BodyError{Body: uint32(h), Op: op, Wrapped: dynamo.Usagef("unknown body handle")}
	}
	return &r.bodies[h-1], nil
}

func bodyErr(b *Body, op string, err error) error {
	return &dynamo.BodyError{Body: uint32(b.ID), Op: op, Wrapped: err}
}

// AddBody inserts the body into the simulated set. DontActivate leaves it
// present but frozen with zero velocity. Static bodies are never active.
func (r *Registry) AddBody(h Handle, act dynamo.Activation) error {
	b, err := r.lookup(h, "add_body")
	if err != nil {
		return err
	}
	if b.Added {
		return bodyErr(b, "add_body", dynamo.Usagef("body already added"))
	}
	b.Added = true
	b.SleepTimer = 0
	switch {
	case b.Motion == Static:
		b.Active = false
	case act == dynamo.Activate:
		b.Active = true
	default:
		b.Active = false
		b.LinearVelocity = mgl64.Vec3{}
		b.AngularVelocity = mgl64.Vec3{}
	}
	return nil
}

// RemoveBody takes the body out of the simulated set. The record survives
// and may be added again.
func (r *Registry) RemoveBody(h Handle) error {
	b, err := r.lookup(h, "remove_body")
	if err != nil {
		return err
	}
	if !b.Added {
		return bodyErr(b, "remove_body", dynamo.Usagef("body not added"))
	}
	b.Added = false
	b.Active = false
	return nil
}

func (r *Registry) IsAdded(h Handle) bool {
	b, err := r.lookup(h, "is_added")
	return err == nil && b.Added
}

func (r *Registry) IsActive(h Handle) bool {
	b, err := r.lookup(h, "is_active")
	return err == nil && b.Active
}

func (r *Registry) ActivateBody(h Handle) error {
	b, err := r.lookup(h, "activate")
	if err != nil {
		return err
	}
	if !b.Added {
		return bodyErr(b, "activate", dynamo.Usagef("body not added"))
	}
	b.Wake()
	return nil
}

func (r *Registry) DeactivateBody(h Handle) error {
	b, err := r.lookup(h, "deactivate")
	if err != nil {
		return err
	}
	if b.Active {
		b.sleep()
	}
	return nil
}

// SetSensor toggles contact response. Idempotent.
func (r *Registry) SetSensor(h Handle, sensor bool) error {
	b, err := r.lookup(h, "set_sensor")
	if err != nil {
		return err
	}
	b.Sensor = sensor
	return nil
}

// MoveKinematic sets velocities that carry a kinematic body from its
// current pose to the target pose in exactly overDuration seconds.
func (r *Registry) MoveKinematic(h Handle, pos mgl64.Vec3, rot mgl64.Quat, overDuration float64) error {
	b, err := r.lookup(h, "move_kinematic")
	if err != nil {
		return err
	}
	if b.Motion != Kinematic {
		return bodyErr(b, "move_kinematic", dynamo.Usagef("body is %s, not kinematic", b.Motion))
	}
	if !(overDuration > 0) || math.IsInf(overDuration, 0) {
		return bodyErr(b, "move_kinematic", dynamo.Configf("duration must be positive, got %f", overDuration))
	}
	if !dynamo.VecValid(pos) || !dynamo.VecValid(rot.V) || math.IsNaN(rot.W) {
		return bodyErr(b, "move_kinematic", dynamo.ErrInvalidState)
	}

	b.LinearVelocity = pos.Sub(b.Transform.Position).Mul(1 / overDuration)
	b.AngularVelocity = angularVelocityTo(b.Transform.Rotation, rot, overDuration)
	b.Wake()
	return nil
}

// angularVelocityTo returns the constant angular velocity rotating from to
// target along the shortest arc in duration t.
func angularVelocityTo(from, target mgl64.Quat, t float64) mgl64.Vec3 {
	if target.W == 0 && target.V == (mgl64.Vec3{}) {
		target = mgl64.QuatIdent()
	}
	dq := target.Normalize().Mul(from.Conjugate())
	if dq.W < 0 {
		dq = dq.Scale(-1)
	}
	s := dq.V.Len()
	if s < 1e-12 {
		return mgl64.Vec3{}
	}
	angle := 2 * math.Atan2(s, dq.W)
	return dq.V.Mul(angle / (s * t))
}

// AddImpulse applies an instantaneous impulse to a dynamic body. With a
// point off the centre of mass it also changes angular momentum.
func (r *Registry) AddImpulse(h Handle, impulse mgl64.Vec3, point *mgl64.Vec3) error {
	b, err := r.lookup(h, "add_impulse")
	if err != nil {
		return err
	}
	if b.Motion != Dynamic {
		return bodyErr(b, "add_impulse", dynamo.Usagef("body is %s, not dynamic", b.Motion))
	}
	if !dynamo.VecValid(impulse) || (point != nil && !dynamo.VecValid(*point)) {
		return bodyErr(b, "add_impulse", dynamo.ErrInvalidState)
	}
	if point == nil {
		b.LinearVelocity = b.LinearVelocity.Add(impulse.Mul(b.InvMass))
	} else {
		b.ApplyImpulseAt(impulse, *point)
	}
	b.Wake()
	return nil
}

func (r *Registry) SetLinearVelocity(h Handle, v mgl64.Vec3) error {
	b, err := r.lookup(h, "set_linear_velocity")
	if err != nil {
		return err
	}
	if b.Motion == Static {
		return bodyErr(b, "set_linear_velocity", dynamo.Usagef("body is static"))
	}
	if !dynamo.VecValid(v) {
		return bodyErr(b, "set_linear_velocity", dynamo.ErrInvalidState)
	}
	b.LinearVelocity = v
	if v != (mgl64.Vec3{}) {
		b.Wake()
	}
	return nil
}

func (r *Registry) SetAngularVelocity(h Handle, w mgl64.Vec3) error {
	b, err := r.lookup(h, "set_angular_velocity")
	if err != nil {
		return err
	}
	if b.Motion == Static {
		return bodyErr(b, "set_angular_velocity", dynamo.Usagef("body is static"))
	}
	if !dynamo.VecValid(w) {
		return bodyErr(b, "set_angular_velocity", dynamo.ErrInvalidState)
	}
	b.AngularVelocity = w
	if w != (mgl64.Vec3{}) {
		b.Wake()
	}
	return nil
}

// Accessors return zero values for unknown handles; use Get to see the error.

func (r *Registry) Position(h Handle) mgl64.Vec3 {
	if b, err := r.lookup(h, "position"); err == nil {
		return b.Transform.Position
	}
	return mgl64.Vec3{}
}

func (r *Registry) Rotation(h Handle) mgl64.Quat {
	if b, err := r.lookup(h, "rotation"); err == nil {
		return b.Transform.Rotation
	}
	return mgl64.QuatIdent()
}

func (r *Registry) Transform(h Handle) dynamo.Transform {
	if b, err := r.lookup(h, "transform"); err == nil {
		return b.Transform
	}
	return dynamo.Identity()
}

func (r *Registry) LinearVelocity(h Handle) mgl64.Vec3 {
	if b, err := r.lookup(h, "linear_velocity"); err == nil {
		return b.LinearVelocity
	}
	return mgl64.Vec3{}
}

func (r *Registry) AngularVelocity(h Handle) mgl64.Vec3 {
	if b, err := r.lookup(h, "angular_velocity"); err == nil {
		return b.AngularVelocity
	}
	return mgl64.Vec3{}
}

func (r *Registry) MotionKind(h Handle) MotionKind {
	if b, err := r.lookup(h, "motion_kind"); err == nil {
		return b.Motion
	}
	return Static
}

func (r *Registry) ObjectLayer(h Handle) layers.ObjectLayer {
	if b, err := r.lookup(h, "object_layer"); err == nil {
		return b.Layer
	}
	return 0
}

func (r *Registry) IsSensor(h Handle) bool {
	b, err := r.lookup(h, "is_sensor")
	return err == nil && b.Sensor
}

// Find returns the first body with the given name.
func (r *Registry) Find(name string) (Handle, bool) {
	for i := range r.bodies {
		if r.bodies[i].Name == name {
			return r.bodies[i].ID, true
		}
	}
	return InvalidHandle, false
}

// Handles lists every body in creation order.
func (r *Registry) Handles() []Handle {
	out := make([]Handle, len(r.bodies))
	for i := range r.bodies {
		out[i] = r.bodies[i].ID
	}
	return out
}

// Each calls fn for every body in creation order.
func (r *Registry) Each(fn func(*Body)) {
	for i := range r.bodies {
		fn(&r.bodies[i])
	}
}

// Records exposes the backing storage to the step scheduler. Callers must not
// append to or retain the slice past the current step.
func (r *Registry) Records() []Body { return r.bodies }

func (r *Registry) Len() int { return len(r.bodies) }

func (r *Registry) NumActive() int {
	n := 0
	for i := range r.bodies {
		if r.bodies[i].Moving() {
			n++
		}
	}
	return n
}

// Close destroys every body. Subsequent calls fail with ErrUsage.
func (r *Registry) Close() {
	clear(r.bodies)
	r.bodies = r.bodies[:0]
	r.closed = true
}
