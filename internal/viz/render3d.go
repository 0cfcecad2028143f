package viz

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/rigidsim/internal/body"
	"github.com/san-kum/rigidsim/internal/dynamo"
	"github.com/san-kum/rigidsim/internal/shape"
)

const (
	circleSegments = 24
	planeGridLines = 5
	planeGridHalf  = 8.0
)

// Camera orbits a target point.
type Camera struct {
	Target   mgl64.Vec3
	Yaw      float64
	Pitch    float64
	Distance float64
	Zoom     float64
}

func NewCamera() *Camera {
	return &Camera{Pitch: 0.35, Distance: 30, Zoom: 1}
}

func (c *Camera) Orbit(dYaw, dPitch float64) {
	c.Yaw += dYaw
	c.Pitch = mgl64.Clamp(c.Pitch+dPitch, -math.Pi/2+0.05, math.Pi/2-0.05)
}

func (c *Camera) ZoomIn()  { c.Zoom = math.Min(10, c.Zoom*1.2) }
func (c *Camera) ZoomOut() { c.Zoom = math.Max(0.1, c.Zoom/1.2) }

// view rotates p into camera space, looking down -Z.
func (c *Camera) view(p mgl64.Vec3) mgl64.Vec3 {
	rot := mgl64.Rotate3DX(c.Pitch).Mul3(mgl64.Rotate3DY(-c.Yaw))
	return rot.Mul3x1(p.Sub(c.Target))
}

// Project maps a world point to dot coordinates on a w x h canvas.
func (c *Camera) Project(p mgl64.Vec3, w, h int) (x, y int, ok bool) {
	v := c.view(p)
	depth := c.Distance - v.Z()
	if depth < 0.1 {
		return 0, 0, false
	}
	scale := c.Zoom * c.Distance / depth * float64(min(w, h)) / 12
	x = int(v.X()*scale) + w/2
	y = int(-v.Y()*scale) + h/2
	return x, y, true
}

// Segment is one wireframe edge in world space.
type Segment struct {
	A, B mgl64.Vec3
}

// Wireframe outlines a body's shape at its current pose.
func Wireframe(b *body.Body) []Segment {
	t := b.Transform
	switch s := b.Shape.(type) {
	case *shape.Sphere:
		var out []Segment
		for axis := 0; axis < 3; axis++ {
			out = append(out, ring(t.Position, t.Rotation, axis, s.Radius)...)
		}
		return out
	case *shape.Box:
		v := s.Vertices(t)
		out := make([]Segment, 0, 12)
		for i := 0; i < 8; i++ {
			for _, bit := range []int{1, 2, 4} {
				if i&bit == 0 {
					out = append(out, Segment{v[i], v[i|bit]})
				}
			}
		}
		return out
	case *shape.Plane:
		return planeGrid(s, t)
	}
	return nil
}

// ring is a circle of radius r around the given local axis.
func ring(center mgl64.Vec3, rot mgl64.Quat, axis int, r float64) []Segment {
	u := mgl64.Vec3{}
	v := mgl64.Vec3{}
	u[(axis+1)%3] = r
	v[(axis+2)%3] = r
	u, v = rot.Rotate(u), rot.Rotate(v)

	out := make([]Segment, 0, circleSegments)
	prev := center.Add(u)
	for i := 1; i <= circleSegments; i++ {
		a := 2 * math.Pi * float64(i) / circleSegments
		p := center.Add(u.Mul(math.Cos(a))).Add(v.Mul(math.Sin(a)))
		out = append(out, Segment{prev, p})
		prev = p
	}
	return out
}

func planeGrid(p *shape.Plane, t dynamo.Transform) []Segment {
	n, d := p.WorldPlane(t)
	origin := n.Mul(d)

	tangent := mgl64.Vec3{1, 0, 0}
	if math.Abs(n.X()) > 0.9 {
		tangent = mgl64.Vec3{0, 0, 1}
	}
	tu := tangent.Sub(n.Mul(n.Dot(tangent))).Normalize()
	tv := n.Cross(tu)

	var out []Segment
	for i := 0; i < planeGridLines; i++ {
		f := -planeGridHalf + 2*planeGridHalf*float64(i)/(planeGridLines-1)
		out = append(out,
			Segment{origin.Add(tu.Mul(f)).Sub(tv.Mul(planeGridHalf)), origin.Add(tu.Mul(f)).Add(tv.Mul(planeGridHalf))},
			Segment{origin.Add(tv.Mul(f)).Sub(tu.Mul(planeGridHalf)), origin.Add(tv.Mul(f)).Add(tu.Mul(planeGridHalf))},
		)
	}
	return out
}

// Render draws segments onto the canvas through the camera.
func Render(c *Canvas, cam *Camera, segs []Segment) {
	w, h := c.Dots()
	for _, s := range segs {
		x0, y0, ok0 := cam.Project(s.A, w, h)
		x1, y1, ok1 := cam.Project(s.B, w, h)
		if ok0 && ok1 {
			c.Line(x0, y0, x1, y1)
		}
	}
}
