package sim

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/rigidsim/internal/body"
	"github.com/san-kum/rigidsim/internal/shape"
)

// restitutionThreshold is the closing speed below which contacts do not bounce.
const restitutionThreshold = 1.0

type contactPoint struct {
	rA, rB         mgl64.Vec3
	normalMass     float64
	tangentMass    [2]float64
	bias           float64
	normalImpulse  float64
	tangentImpulse [2]float64
}

type constraint struct {
	a, b     *body.Body
	invIA    mgl64.Mat3
	invIB    mgl64.Mat3
	normal   mgl64.Vec3
	tangents [2]mgl64.Vec3
	friction float64
	points   [shape.MaxManifoldPoints]contactPoint
	count    int
}

// tangentBasis returns two unit vectors orthogonal to n and each other.
func tangentBasis(n mgl64.Vec3) [2]mgl64.Vec3 {
	var t mgl64.Vec3
	if math.Abs(n[0]) > 0.57735 {
		t = mgl64.Vec3{n[1], -n[0], 0}
	} else {
		t = mgl64.Vec3{0, n[2], -n[1]}
	}
	t = t.Normalize()
	return [2]mgl64.Vec3{t, n.Cross(t)}
}

func effectiveMass(c *constraint, rA, rB, dir mgl64.Vec3) float64 {
	k := c.a.InvMass + c.b.InvMass
	ra := rA.Cross(dir)
	rb := rB.Cross(dir)
	k += ra.Dot(c.invIA.Mul3x1(ra)) + rb.Dot(c.invIB.Mul3x1(rb))
	if k <= 0 {
		return 0
	}
	return 1 / k
}

// prepare fills c from a manifold. Contacts between two bodies with no
// inverse mass produce no constraint.
func (s *System) prepare(c *constraint, a, b *body.Body, m *shape.Manifold, h float64) bool {
	if a.InvMass == 0 && b.InvMass == 0 {
		return false
	}
	*c = constraint{
		a:        a,
		b:        b,
		invIA:    a.WorldInvInertia(),
		invIB:    b.WorldInvInertia(),
		normal:   m.Normal,
		tangents: tangentBasis(m.Normal),
		friction: math.Sqrt(a.Friction * b.Friction),
		count:    m.Count,
	}
	restitution := math.Max(a.Restitution, b.Restitution)

	for i := 0; i < m.Count; i++ {
		p := &c.points[i]
		pt := m.Points[i]
		p.rA = pt.Position.Sub(a.Transform.Position)
		p.rB = pt.Position.Sub(b.Transform.Position)
		p.normalMass = effectiveMass(c, p.rA, p.rB, c.normal)
		p.tangentMass[0] = effectiveMass(c, p.rA, p.rB, c.tangents[0])
		p.tangentMass[1] = effectiveMass(c, p.rA, p.rB, c.tangents[1])

		p.bias = s.settings.Baumgarte / h * math.Max(pt.Depth-s.settings.Slop, 0)
		vn := relativeVelocity(c, p).Dot(c.normal)
		if restitution > 0 && vn < -restitutionThreshold {
			p.bias = math.Max(p.bias, -restitution*vn)
		}
	}
	return true
}

func relativeVelocity(c *constraint, p *contactPoint) mgl64.Vec3 {
	va := c.a.LinearVelocity.Add(c.a.AngularVelocity.Cross(p.rA))
	vb := c.b.LinearVelocity.Add(c.b.AngularVelocity.Cross(p.rB))
	return vb.Sub(va)
}

func applyImpulse(c *constraint, p *contactPoint, j mgl64.Vec3) {
	a, b := c.a, c.b
	a.LinearVelocity = a.LinearVelocity.Sub(j.Mul(a.InvMass))
	a.AngularVelocity = a.AngularVelocity.Sub(c.invIA.Mul3x1(p.rA.Cross(j)))
	b.LinearVelocity = b.LinearVelocity.Add(j.Mul(b.InvMass))
	b.AngularVelocity = b.AngularVelocity.Add(c.invIB.Mul3x1(p.rB.Cross(j)))
}

// solve runs sequential impulses over every constraint. It is single
// threaded and visits constraints in pair order, so results do not depend
// on the worker count.
func (s *System) solve(cs []constraint) {
	for it := 0; it < s.settings.SolverIterations; it++ {
		for i := range cs {
			c := &cs[i]
			for k := 0; k < c.count; k++ {
				p := &c.points[k]

				for t := 0; t < 2; t++ {
					if p.tangentMass[t] == 0 {
						continue
					}
					vt := relativeVelocity(c, p).Dot(c.tangents[t])
					lambda := -vt * p.tangentMass[t]
					limit := c.friction * p.normalImpulse
					old := p.tangentImpulse[t]
					p.tangentImpulse[t] = math.Max(-limit, math.Min(old+lambda, limit))
					applyImpulse(c, p, c.tangents[t].Mul(p.tangentImpulse[t]-old))
				}

				if p.normalMass == 0 {
					continue
				}
				vn := relativeVelocity(c, p).Dot(c.normal)
				lambda := (p.bias - vn) * p.normalMass
				old := p.normalImpulse
				p.normalImpulse = math.Max(old+lambda, 0)
				applyImpulse(c, p, c.normal.Mul(p.normalImpulse-old))
			}
		}
	}
}
