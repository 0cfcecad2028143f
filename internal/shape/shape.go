package shape

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/rigidsim/internal/dynamo"
)

// DefaultDensity is used to derive mass from volume when no override is given.
const DefaultDensity = 1000.0

type Kind uint8

const (
	KindSphere Kind = iota
	KindBox
	KindPlane
)

func (k Kind) String() string {
	switch k {
	case KindSphere:
		return "sphere"
	case KindBox:
		return "box"
	case KindPlane:
		return "plane"
	}
	return fmt.Sprintf("kind(%d)", k)
}

// Shape is collision geometry in the body's local frame.
type Shape interface {
	Kind() Kind
	// Volume is zero for shapes that cannot carry mass.
	Volume() float64
	// Inertia returns the principal moments of inertia for the given mass.
	Inertia(mass float64) mgl64.Vec3
	Bounds(t dynamo.Transform) AABB
	String() string
}

type Sphere struct {
	Radius float64
}

func NewSphere(radius float64) (*Sphere, error) {
	if !(radius > 0) || math.IsInf(radius, 0) {
		return nil, dynamo.Configf("sphere radius must be positive, got %f", radius)
	}
	return &Sphere{Radius: radius}, nil
}

func (s *Sphere) Kind() Kind      { return KindSphere }
func (s *Sphere) Volume() float64 { return 4.0 / 3.0 * math.Pi * s.Radius * s.Radius * s.Radius }

func (s *Sphere) Inertia(mass float64) mgl64.Vec3 {
	i := 0.4 * mass * s.Radius * s.Radius
	return mgl64.Vec3{i, i, i}
}

func (s *Sphere) Bounds(t dynamo.Transform) AABB {
	return BoxAround(t.Position, mgl64.Vec3{s.Radius, s.Radius, s.Radius})
}

func (s *Sphere) String() string { return fmt.Sprintf("sphere(r=%.3g)", s.Radius) }

type Box struct {
	HalfExtent mgl64.Vec3
}

func NewBox(halfExtent mgl64.Vec3) (*Box, error) {
	for i := 0; i < 3; i++ {
		if !(halfExtent[i] > 0) || math.IsInf(halfExtent[i], 0) {
			return nil, dynamo.Configf("box half extent must be positive, got %v", halfExtent)
		}
	}
	return &Box{HalfExtent: halfExtent}, nil
}

func (b *Box) Kind() Kind { return KindBox }

func (b *Box) Volume() float64 {
	h := b.HalfExtent
	return 8 * h[0] * h[1] * h[2]
}

func (b *Box) Inertia(mass float64) mgl64.Vec3 {
	x2 := b.HalfExtent[0] * b.HalfExtent[0]
	y2 := b.HalfExtent[1] * b.HalfExtent[1]
	z2 := b.HalfExtent[2] * b.HalfExtent[2]
	return mgl64.Vec3{mass / 3 * (y2 + z2), mass / 3 * (x2 + z2), mass / 3 * (x2 + y2)}
}

func (b *Box) Bounds(t dynamo.Transform) AABB {
	m := t.Basis()
	var ext mgl64.Vec3
	for r := 0; r < 3; r++ {
		ext[r] = math.Abs(m.At(r, 0))*b.HalfExtent[0] +
			math.Abs(m.At(r, 1))*b.HalfExtent[1] +
			math.Abs(m.At(r, 2))*b.HalfExtent[2]
	}
	return BoxAround(t.Position, ext)
}

// Vertices returns the eight corners in world space.
func (b *Box) Vertices(t dynamo.Transform) [8]mgl64.Vec3 {
	var out [8]mgl64.Vec3
	h := b.HalfExtent
	for i := 0; i < 8; i++ {
		local := mgl64.Vec3{h[0], h[1], h[2]}
		if i&1 != 0 {
			local[0] = -local[0]
		}
		if i&2 != 0 {
			local[1] = -local[1]
		}
		if i&4 != 0 {
			local[2] = -local[2]
		}
		out[i] = t.Apply(local)
	}
	return out
}

func (b *Box) String() string {
	h := b.HalfExtent
	return fmt.Sprintf("box(%.3g,%.3g,%.3g)", h[0], h[1], h[2])
}

// Plane is the half-space below Normal·p = Offset in local space, bounded
// laterally by HalfExtent so it has a finite AABB.
type Plane struct {
	Normal     mgl64.Vec3
	Offset     float64
	HalfExtent float64
}

const DefaultPlaneHalfExtent = 1000.0

func NewPlane(normal mgl64.Vec3, offset float64) (*Plane, error) {
	l := normal.Len()
	if l < 1e-9 || !dynamo.VecValid(normal) {
		return nil, dynamo.Configf("plane normal must be non-zero, got %v", normal)
	}
	return &Plane{Normal: normal.Mul(1 / l), Offset: offset / l, HalfExtent: DefaultPlaneHalfExtent}, nil
}

func (p *Plane) Kind() Kind                      { return KindPlane }
func (p *Plane) Volume() float64                 { return 0 }
func (p *Plane) Inertia(mass float64) mgl64.Vec3 { return mgl64.Vec3{} }

// WorldPlane returns the world-space normal and offset.
func (p *Plane) WorldPlane(t dynamo.Transform) (mgl64.Vec3, float64) {
	n := t.ApplyDir(p.Normal)
	origin := t.Apply(p.Normal.Mul(p.Offset))
	return n, n.Dot(origin)
}

func (p *Plane) Bounds(t dynamo.Transform) AABB {
	n, d := p.WorldPlane(t)
	h := p.HalfExtent
	var ext mgl64.Vec3
	for i := 0; i < 3; i++ {
		// extent of a disc of radius h with normal n
		ext[i] = h * math.Sqrt(math.Max(0, 1-n[i]*n[i]))
	}
	c := t.Position.Sub(n.Mul(n.Dot(t.Position) - d))
	return BoxAround(c, ext).Expand(1e-3)
}

func (p *Plane) String() string {
	n := p.Normal
	return fmt.Sprintf("plane(n=[%.2f %.2f %.2f], d=%.3g)", n[0], n[1], n[2], p.Offset)
}
