package dynamo

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Transform is a rigid pose: position plus orientation.
type Transform struct {
	Position mgl64.Vec3
	Rotation mgl64.Quat
}

// Identity returns a transform at the origin with no rotation.
func Identity() Transform {
	return Transform{Rotation: mgl64.QuatIdent()}
}

// At returns an unrotated transform at p.
func At(p mgl64.Vec3) Transform {
	return Transform{Position: p, Rotation: mgl64.QuatIdent()}
}

// Apply maps a point from local to world space.
func (t Transform) Apply(local mgl64.Vec3) mgl64.Vec3 {
	return t.Position.Add(t.Rotation.Rotate(local))
}

// ApplyDir rotates a direction from local to world space.
func (t Transform) ApplyDir(local mgl64.Vec3) mgl64.Vec3 {
	return t.Rotation.Rotate(local)
}

// InverseDir rotates a world direction into local space.
func (t Transform) InverseDir(world mgl64.Vec3) mgl64.Vec3 {
	return t.Rotation.Conjugate().Rotate(world)
}

// Inverse maps a world point into local space.
func (t Transform) Inverse(world mgl64.Vec3) mgl64.Vec3 {
	return t.InverseDir(world.Sub(t.Position))
}

// Basis returns the rotation matrix of the transform.
func (t Transform) Basis() mgl64.Mat3 {
	return t.Rotation.Mat4().Mat3()
}

func (t Transform) IsValid() bool {
	return VecValid(t.Position) &&
		finite(t.Rotation.W) && VecValid(t.Rotation.V)
}

// VecValid reports whether every component of v is finite.
func VecValid(v mgl64.Vec3) bool {
	return finite(v[0]) && finite(v[1]) && finite(v[2])
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// Activation selects whether a body joins integration when added.
type Activation uint8

const (
	Activate Activation = iota
	DontActivate
)

func (a Activation) String() string {
	if a == DontActivate {
		return "dont_activate"
	}
	return "activate"
}

// ParseActivation accepts "activate", "dont_activate" and "" (activate).
func ParseActivation(s string) (Activation, error) {
	switch s {
	case "", "activate":
		return Activate, nil
	case "dont_activate":
		return DontActivate, nil
	}
	return Activate, Configf("unknown activation: %s", s)
}
