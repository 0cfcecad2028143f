package shape

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/rigidsim/internal/dynamo"
)

const MaxManifoldPoints = 4

// Point is one contact location. Position lies midway between the two
// surfaces; Depth is the penetration along the manifold normal.
type Point struct {
	Position mgl64.Vec3
	Depth    float64
}

// Manifold is the contact set between two shapes. Normal points from A to B.
type Manifold struct {
	Normal mgl64.Vec3
	Points [MaxManifoldPoints]Point
	Count  int
}

func (m *Manifold) Reset() {
	m.Count = 0
	m.Normal = mgl64.Vec3{}
}

// MaxDepth returns the deepest penetration in the manifold.
func (m *Manifold) MaxDepth() float64 {
	d := 0.0
	for i := 0; i < m.Count; i++ {
		d = math.Max(d, m.Points[i].Depth)
	}
	return d
}

// add keeps the deepest MaxManifoldPoints points.
func (m *Manifold) add(p Point) {
	if m.Count < MaxManifoldPoints {
		m.Points[m.Count] = p
		m.Count++
		return
	}
	shallow := 0
	for i := 1; i < m.Count; i++ {
		if m.Points[i].Depth < m.Points[shallow].Depth {
			shallow = i
		}
	}
	if p.Depth > m.Points[shallow].Depth {
		m.Points[shallow] = p
	}
}

// Collide fills m with the contacts between a and b and reports whether
// they overlap. Plane pairs never collide with each other.
func Collide(a Shape, ta dynamo.Transform, b Shape, tb dynamo.Transform, m *Manifold) bool {
	m.Reset()
	if a.Kind() > b.Kind() {
		if !Collide(b, tb, a, ta, m) {
			return false
		}
		m.Normal = m.Normal.Mul(-1)
		return true
	}

	switch sa := a.(type) {
	case *Sphere:
		switch sb := b.(type) {
		case *Sphere:
			return sphereSphere(sa, ta, sb, tb, m)
		case *Box:
			return sphereBox(sa, ta, sb, tb, m)
		case *Plane:
			return spherePlane(sa, ta, sb, tb, m)
		}
	case *Box:
		switch sb := b.(type) {
		case *Box:
			return boxBox(sa, ta, sb, tb, m)
		case *Plane:
			return boxPlane(sa, ta, sb, tb, m)
		}
	}
	return false
}

func sphereSphere(a *Sphere, ta dynamo.Transform, b *Sphere, tb dynamo.Transform, m *Manifold) bool {
	d := tb.Position.Sub(ta.Position)
	dist := d.Len()
	rsum := a.Radius + b.Radius
	if dist > rsum {
		return false
	}
	n := mgl64.Vec3{0, 1, 0}
	if dist > 1e-9 {
		n = d.Mul(1 / dist)
	}
	depth := rsum - dist
	m.Normal = n
	m.add(Point{Position: ta.Position.Add(n.Mul(a.Radius - depth/2)), Depth: depth})
	return true
}

func spherePlane(a *Sphere, ta dynamo.Transform, b *Plane, tb dynamo.Transform, m *Manifold) bool {
	n, d := b.WorldPlane(tb)
	c := ta.Position
	sep := n.Dot(c) - d
	if sep > a.Radius {
		return false
	}
	m.Normal = n.Mul(-1)
	m.add(Point{Position: c.Sub(n.Mul((a.Radius + sep) / 2)), Depth: a.Radius - sep})
	return true
}

func sphereBox(a *Sphere, ta dynamo.Transform, b *Box, tb dynamo.Transform, m *Manifold) bool {
	c := ta.Position
	local := tb.Inverse(c)
	h := b.HalfExtent

	q := local
	inside := true
	for i := 0; i < 3; i++ {
		if q[i] > h[i] {
			q[i] = h[i]
			inside = false
		} else if q[i] < -h[i] {
			q[i] = -h[i]
			inside = false
		}
	}

	if !inside {
		qw := tb.Apply(q)
		diff := qw.Sub(c)
		dist := diff.Len()
		if dist > a.Radius {
			return false
		}
		n := diff.Mul(1 / dist)
		m.Normal = n
		m.add(Point{Position: c.Add(n.Mul(a.Radius)).Add(qw).Mul(0.5), Depth: a.Radius - dist})
		return true
	}

	// centre inside the box: push out through the nearest face
	axis, best := 0, math.Inf(1)
	for i := 0; i < 3; i++ {
		if d := h[i] - math.Abs(local[i]); d < best {
			axis, best = i, d
		}
	}
	var outward mgl64.Vec3
	outward[axis] = 1
	if local[axis] < 0 {
		outward[axis] = -1
	}
	m.Normal = tb.ApplyDir(outward).Mul(-1)
	m.add(Point{Position: c, Depth: a.Radius + best})
	return true
}

func boxPlane(a *Box, ta dynamo.Transform, b *Plane, tb dynamo.Transform, m *Manifold) bool {
	n, d := b.WorldPlane(tb)
	for _, v := range a.Vertices(ta) {
		sep := n.Dot(v) - d
		if sep < 0 {
			m.add(Point{Position: v.Sub(n.Mul(sep / 2)), Depth: -sep})
		}
	}
	if m.Count == 0 {
		return false
	}
	m.Normal = n.Mul(-1)
	return true
}

func boxAxes(t dynamo.Transform) [3]mgl64.Vec3 {
	return [3]mgl64.Vec3{
		t.ApplyDir(mgl64.Vec3{1, 0, 0}),
		t.ApplyDir(mgl64.Vec3{0, 1, 0}),
		t.ApplyDir(mgl64.Vec3{0, 0, 1}),
	}
}

func projectBox(axes [3]mgl64.Vec3, h mgl64.Vec3, l mgl64.Vec3) float64 {
	return math.Abs(axes[0].Dot(l))*h[0] + math.Abs(axes[1].Dot(l))*h[1] + math.Abs(axes[2].Dot(l))*h[2]
}

// boxBox runs a separating axis test over the 15 candidate axes and gathers
// vertices of each box that lie inside the other.
func boxBox(a *Box, ta dynamo.Transform, b *Box, tb dynamo.Transform, m *Manifold) bool {
	axA, axB := boxAxes(ta), boxAxes(tb)
	delta := tb.Position.Sub(ta.Position)

	bestOverlap := math.Inf(1)
	var bestAxis mgl64.Vec3
	bestIsEdge := false

	test := func(l mgl64.Vec3, edge bool) bool {
		ll := l.Len()
		if ll < 1e-6 {
			return true
		}
		l = l.Mul(1 / ll)
		ra := projectBox(axA, a.HalfExtent, l)
		rb := projectBox(axB, b.HalfExtent, l)
		dist := l.Dot(delta)
		overlap := ra + rb - math.Abs(dist)
		if overlap < 0 {
			return false
		}
		// prefer face axes unless an edge axis is clearly better
		if edge && overlap > bestOverlap*0.95 {
			return true
		}
		if overlap < bestOverlap {
			bestOverlap = overlap
			bestIsEdge = edge
			if dist < 0 {
				l = l.Mul(-1)
			}
			bestAxis = l
		}
		return true
	}

	for i := 0; i < 3; i++ {
		if !test(axA[i], false) || !test(axB[i], false) {
			return false
		}
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if !test(axA[i].Cross(axB[j]), true) {
				return false
			}
		}
	}

	n := bestAxis
	m.Normal = n
	topA := n.Dot(ta.Position) + projectBox(axA, a.HalfExtent, n)
	bottomB := n.Dot(tb.Position) - projectBox(axB, b.HalfExtent, n)

	const tol = 1e-4
	for _, v := range b.Vertices(tb) {
		if insideBox(a, ta, v, tol) {
			depth := topA - n.Dot(v)
			if depth > 0 {
				m.add(Point{Position: v.Add(n.Mul(depth / 2)), Depth: depth})
			}
		}
	}
	for _, v := range a.Vertices(ta) {
		if insideBox(b, tb, v, tol) {
			depth := n.Dot(v) - bottomB
			if depth > 0 {
				m.add(Point{Position: v.Sub(n.Mul(depth / 2)), Depth: depth})
			}
		}
	}

	if m.Count == 0 || bestIsEdge {
		// edge contact: midpoint of the two supporting features
		sa := support(a, ta, axA, n)
		sb := support(b, tb, axB, n.Mul(-1))
		m.Count = 0
		m.add(Point{Position: sa.Add(sb).Mul(0.5), Depth: bestOverlap})
	}
	return true
}

func insideBox(b *Box, t dynamo.Transform, p mgl64.Vec3, tol float64) bool {
	l := t.Inverse(p)
	h := b.HalfExtent
	return math.Abs(l[0]) <= h[0]+tol && math.Abs(l[1]) <= h[1]+tol && math.Abs(l[2]) <= h[2]+tol
}

// support returns the box vertex furthest along dir.
func support(b *Box, t dynamo.Transform, axes [3]mgl64.Vec3, dir mgl64.Vec3) mgl64.Vec3 {
	p := t.Position
	for i := 0; i < 3; i++ {
		s := b.HalfExtent[i]
		if axes[i].Dot(dir) < 0 {
			s = -s
		}
		p = p.Add(axes[i].Mul(s))
	}
	return p
}
