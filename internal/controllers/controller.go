package controllers

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/rigidsim/internal/body"
	"github.com/san-kum/rigidsim/internal/dynamo"
	"github.com/san-kum/rigidsim/internal/sim"
)

// Controller maps a body's state to a commanded acceleration in m/s².
type Controller interface {
	Name() string
	Accel(pos, vel mgl64.Vec3, t float64) mgl64.Vec3
}

// ByName builds a controller with the gains used by the hover scene.
func ByName(name string, target mgl64.Vec3) (Controller, error) {
	switch name {
	case "pid":
		return NewPID(25, 0.1, 10, target), nil
	case "lqr":
		return NewHoverLQR(target, 4, 1), nil
	case "none":
		return NewNone(), nil
	}
	return nil, dynamo.Configf("unknown controller: %s", name)
}

// Slot holds the controller currently driving a body so it can be
// swapped between steps.
type Slot struct {
	Controller
}

// Attach registers a pre-step hook that applies the slot's acceleration to
// h, plus gravity compensation. None applies nothing. Errors go to fail.
func Attach(s *sim.System, h body.Handle, slot *Slot, fail func(error)) {
	s.AddTickListener(sim.TickFuncs{
		Pre: func(s *sim.System, dt float64) {
			if _, none := slot.Controller.(*None); none || slot.Controller == nil {
				return
			}
			b, err := s.Bodies().Get(h)
			if err != nil {
				fail(err)
				return
			}
			if !b.Added || b.Motion != body.Dynamic {
				return
			}
			a := slot.Accel(b.Transform.Position, b.LinearVelocity, s.Time())
			a = a.Sub(s.Gravity().Mul(b.GravityFactor))
			fail(s.Bodies().AddImpulse(h, a.Mul(b.Mass()*dt), nil))
		},
	})
}
