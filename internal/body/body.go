// Package body owns rigid-body records: creation settings, mass properties,
// activation state and the operations scripts use between steps.
package body

import (
	"fmt"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/rigidsim/internal/dynamo"
	"github.com/san-kum/rigidsim/internal/layers"
	"github.com/san-kum/rigidsim/internal/shape"
)

// Handle is an opaque body reference. The zero Handle is never valid.
type Handle uint32

const InvalidHandle Handle = 0

type MotionKind uint8

const (
	Static MotionKind = iota
	Dynamic
	Kinematic
)

func (k MotionKind) String() string {
	switch k {
	case Static:
		return "static"
	case Dynamic:
		return "dynamic"
	case Kinematic:
		return "kinematic"
	}
	return fmt.Sprintf("motion(%d)", k)
}

func ParseMotionKind(s string) (MotionKind, error) {
	switch strings.ToLower(s) {
	case "static":
		return Static, nil
	case "dynamic":
		return Dynamic, nil
	case "kinematic":
		return Kinematic, nil
	}
	return 0, dynamo.Configf("unknown motion kind: %s", s)
}

// Settings describe a body at creation.
type Settings struct {
	Name        string
	Shape       shape.Shape
	MotionKind  MotionKind
	ObjectLayer layers.ObjectLayer
	Position    mgl64.Vec3
	Rotation    mgl64.Quat

	// MassOverride replaces the mass derived from shape volume and density.
	MassOverride *float64

	LinearDamping  float64
	AngularDamping float64
	Friction       float64
	Restitution    float64
	GravityFactor  float64
	IsSensor       bool
	AllowSleeping  bool

	LinearVelocity  mgl64.Vec3
	AngularVelocity mgl64.Vec3
}

func DefaultSettings() Settings {
	return Settings{
		Rotation:       mgl64.QuatIdent(),
		LinearDamping:  0.05,
		AngularDamping: 0.05,
		Friction:       0.2,
		GravityFactor:  1,
		AllowSleeping:  true,
	}
}

// Mass returns a pointer suitable for MassOverride.
func Mass(m float64) *float64 { return &m }

// Body is a simulated rigid body. Fields are written by the registry between
// steps and by the step scheduler during a step.
type Body struct {
	ID     Handle
	Name   string
	Shape  shape.Shape
	Motion MotionKind
	Layer  layers.ObjectLayer

	Transform       dynamo.Transform
	LinearVelocity  mgl64.Vec3
	AngularVelocity mgl64.Vec3

	InvMass         float64
	InvInertiaLocal mgl64.Vec3

	LinearDamping  float64
	AngularDamping float64
	Friction       float64
	Restitution    float64
	GravityFactor  float64

	Sensor        bool
	AllowSleeping bool
	Active        bool
	Added         bool
	SleepTimer    float64
}

func (b *Body) IsStatic() bool    { return b.Motion == Static }
func (b *Body) IsDynamic() bool   { return b.Motion == Dynamic }
func (b *Body) IsKinematic() bool { return b.Motion == Kinematic }

// Moving reports whether the body is simulated this step.
func (b *Body) Moving() bool {
	return b.Added && b.Active && b.Motion != Static
}

func (b *Body) Mass() float64 {
	if b.InvMass == 0 {
		return 0
	}
	return 1 / b.InvMass
}

// WorldInvInertia returns R * diag(invI) * R^T.
func (b *Body) WorldInvInertia() mgl64.Mat3 {
	r := b.Transform.Basis()
	return r.Mul3(mgl64.Diag3(b.InvInertiaLocal)).Mul3(r.Transpose())
}

// PointVelocity is the velocity of the body material at world point p.
func (b *Body) PointVelocity(p mgl64.Vec3) mgl64.Vec3 {
	return b.LinearVelocity.Add(b.AngularVelocity.Cross(p.Sub(b.Transform.Position)))
}

// ApplyImpulseAt changes momentum by j applied at world point p. It does
// not check motion kind; static and kinematic bodies have zero inverse mass.
func (b *Body) ApplyImpulseAt(j, p mgl64.Vec3) {
	b.LinearVelocity = b.LinearVelocity.Add(j.Mul(b.InvMass))
	r := p.Sub(b.Transform.Position)
	b.AngularVelocity = b.AngularVelocity.Add(b.WorldInvInertia().Mul3x1(r.Cross(j)))
}

func (b *Body) Bounds() shape.AABB {
	return b.Shape.Bounds(b.Transform)
}

func (b *Body) KineticEnergy() float64 {
	if b.InvMass == 0 {
		return 0
	}
	e := 0.5 * b.LinearVelocity.Dot(b.LinearVelocity) / b.InvMass
	w := b.Transform.InverseDir(b.AngularVelocity)
	for i := 0; i < 3; i++ {
		if b.InvInertiaLocal[i] > 0 {
			e += 0.5 * w[i] * w[i] / b.InvInertiaLocal[i]
		}
	}
	return e
}

func (b *Body) String() string {
	name := b.Name
	if name == "" {
		name = fmt.Sprintf("#%d", b.ID)
	}
	return fmt.Sprintf("%s(%s %s)", name, b.Motion, b.Shape)
}
