// Package integrators advances body velocities and poses over one substep.
package integrators

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/rigidsim/internal/body"
	"github.com/san-kum/rigidsim/internal/dynamo"
)

// SemiImplicitEuler updates velocity first and moves with the new velocity.
// Rotation is integrated exactly for a constant angular velocity, so a
// kinematic body driven by MoveKinematic lands on its target pose.
type SemiImplicitEuler struct{}

func NewSemiImplicitEuler() *SemiImplicitEuler {
	return &SemiImplicitEuler{}
}

func (e *SemiImplicitEuler) Name() string { return "semi_implicit_euler" }

// IntegrateVelocity applies gravity and damping to a dynamic body.
func (e *SemiImplicitEuler) IntegrateVelocity(b *body.Body, gravity mgl64.Vec3, h float64) {
	applyForces(b, gravity, h)
}

func (e *SemiImplicitEuler) IntegratePosition(b *body.Body, h float64) {
	advance(b, b.LinearVelocity, b.AngularVelocity, h)
}

// ExplicitEuler moves with the velocity from the start of the substep. Less
// stable for resting contact; kept for comparison runs.
type ExplicitEuler struct {
	prevLinear  []mgl64.Vec3
	prevAngular []mgl64.Vec3
}

func NewExplicitEuler() *ExplicitEuler {
	return &ExplicitEuler{}
}

func (e *ExplicitEuler) Name() string { return "explicit_euler" }

// Prepare records start-of-substep velocities for n bodies.
func (e *ExplicitEuler) Prepare(bodies []body.Body) {
	if cap(e.prevLinear) < len(bodies) {
		e.prevLinear = make([]mgl64.Vec3, len(bodies))
		e.prevAngular = make([]mgl64.Vec3, len(bodies))
	}
	e.prevLinear = e.prevLinear[:len(bodies)]
	e.prevAngular = e.prevAngular[:len(bodies)]
	for i := range bodies {
		e.prevLinear[i] = bodies[i].LinearVelocity
		e.prevAngular[i] = bodies[i].AngularVelocity
	}
}

func (e *ExplicitEuler) IntegrateVelocity(b *body.Body, gravity mgl64.Vec3, h float64) {
	applyForces(b, gravity, h)
}

func (e *ExplicitEuler) IntegratePosition(b *body.Body, h float64) {
	i := int(b.ID) - 1
	if i < 0 || i >= len(e.prevLinear) {
		advance(b, b.LinearVelocity, b.AngularVelocity, h)
		return
	}
	advance(b, e.prevLinear[i], e.prevAngular[i], h)
}

func applyForces(b *body.Body, gravity mgl64.Vec3, h float64) {
	if b.Motion != body.Dynamic {
		return
	}
	b.LinearVelocity = b.LinearVelocity.Add(gravity.Mul(b.GravityFactor * h))
	b.LinearVelocity = b.LinearVelocity.Mul(math.Max(0, 1-b.LinearDamping*h))
	b.AngularVelocity = b.AngularVelocity.Mul(math.Max(0, 1-b.AngularDamping*h))
}

func advance(b *body.Body, v, w mgl64.Vec3, h float64) {
	b.Transform.Position = b.Transform.Position.Add(v.Mul(h))

	speed := w.Len()
	if speed < 1e-12 {
		return
	}
	dq := mgl64.QuatRotate(speed*h, w.Mul(1/speed))
	b.Transform.Rotation = dq.Mul(b.Transform.Rotation).Normalize()
}

// ByName returns the integrator registered under name.
func ByName(name string) (Integrator, error) {
	switch name {
	case "", "semi_implicit_euler", "euler":
		return NewSemiImplicitEuler(), nil
	case "explicit_euler":
		return NewExplicitEuler(), nil
	}
	return nil, dynamo.Configf("unknown integrator: %s", name)
}

// Integrator is the contract the step scheduler drives.
type Integrator interface {
	Name() string
	IntegrateVelocity(b *body.Body, gravity mgl64.Vec3, h float64)
	IntegratePosition(b *body.Body, h float64)
}

// Preparer is implemented by integrators that snapshot state before the
// velocity update.
type Preparer interface {
	Prepare(bodies []body.Body)
}
