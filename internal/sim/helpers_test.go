package sim

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/rigidsim/internal/body"
	"github.com/san-kum/rigidsim/internal/dynamo"
	"github.com/san-kum/rigidsim/internal/layers"
	"github.com/san-kum/rigidsim/internal/shape"
)

const (
	layerMoving    layers.ObjectLayer = 0
	layerNonMoving layers.ObjectLayer = 1
)

// world is a two-layer setup: moving/moving and moving/nonmoving collide,
// nonmoving/nonmoving does not.
type world struct {
	reg    *layers.Registry
	router *layers.Router
	bodies *body.Registry
	sys    *System
}

func newWorld(workers int, tune func(*Settings)) (*world, error) {
	reg, err := layers.NewRegistry(2, 1)
	if err != nil {
		return nil, err
	}
	reg.Map(layerMoving, 0).Map(layerNonMoving, 0)
	if err := reg.EnablePair(layerMoving, layerMoving); err != nil {
		return nil, err
	}
	if err := reg.EnablePair(layerMoving, layerNonMoving); err != nil {
		return nil, err
	}
	if err := reg.Freeze(); err != nil {
		return nil, err
	}
	router, err := layers.NewRouter(reg)
	if err != nil {
		return nil, err
	}
	bodies, err := body.NewRegistry(reg, 2048)
	if err != nil {
		return nil, err
	}

	s := DefaultSettings()
	s.Workers = workers
	if tune != nil {
		tune(&s)
	}
	sys, err := NewSystem(s, router, bodies)
	if err != nil {
		return nil, err
	}
	return &world{reg: reg, router: router, bodies: bodies, sys: sys}, nil
}

func mustWorld(t testing.TB, workers int, tune func(*Settings)) *world {
	t.Helper()
	w, err := newWorld(workers, tune)
	if err != nil {
		t.Fatal(err)
	}
	return w
}

func (w *world) add(s body.Settings, act dynamo.Activation) (body.Handle, error) {
	h, err := w.bodies.CreateBody(s)
	if err != nil {
		return body.InvalidHandle, err
	}
	return h, w.bodies.AddBody(h, act)
}

func (w *world) floor(y float64) (body.Handle, error) {
	plane, err := shape.NewPlane(mgl64.Vec3{0, 1, 0}, y)
	if err != nil {
		return body.InvalidHandle, err
	}
	s := body.DefaultSettings()
	s.Shape = plane
	s.MotionKind = body.Static
	s.ObjectLayer = layerNonMoving
	return w.add(s, dynamo.DontActivate)
}

func (w *world) ball(pos mgl64.Vec3, radius float64, kind body.MotionKind, tune func(*body.Settings)) (body.Handle, error) {
	sph, err := shape.NewSphere(radius)
	if err != nil {
		return body.InvalidHandle, err
	}
	s := body.DefaultSettings()
	s.Shape = sph
	s.MotionKind = kind
	s.Position = pos
	s.ObjectLayer = layerMoving
	if kind == body.Static {
		s.ObjectLayer = layerNonMoving
	}
	if tune != nil {
		tune(&s)
	}
	return w.add(s, dynamo.Activate)
}

// mustHandle fails the test on a creation error: mustHandle(t)(w.ball(...)).
func mustHandle(t testing.TB) func(body.Handle, error) body.Handle {
	return func(h body.Handle, err error) body.Handle {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
		return h
	}
}

func mustSphereShape(t testing.TB, r float64) *shape.Sphere {
	t.Helper()
	s, err := shape.NewSphere(r)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func boxAround(c, h mgl64.Vec3) shape.AABB {
	return shape.BoxAround(c, h)
}
