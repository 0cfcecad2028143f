package experiment

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/rigidsim/internal/body"
	"github.com/san-kum/rigidsim/internal/controllers"
	"github.com/san-kum/rigidsim/internal/dynamo"
	"github.com/san-kum/rigidsim/internal/layers"
	"github.com/san-kum/rigidsim/internal/shape"
	"github.com/san-kum/rigidsim/internal/sim"
)

const (
	orbitPeriod = 0.8 // seconds
	orbitRadius = 0.4 // meters
	walkSpeed   = 7.0 // meters per second
)

// extend wraps a preset's Populate with extra wiring that runs once the
// bodies exist.
func extend(name string, wire func(app *App) error) (Scene, error) {
	sc, err := presetScene(name)()
	if err != nil {
		return Scene{}, err
	}
	populate := sc.Populate
	sc.Populate = func(app *App) error {
		if err := populate(app); err != nil {
			return err
		}
		return wire(app)
	}
	return sc, nil
}

// contactResponse: a ball rests on a box; E turns it into a sensor and it
// drops through.
func contactResponse() (Scene, error) {
	sc, err := presetScene("contact_response")()
	if err != nil {
		return Scene{}, err
	}
	sc.Keys = map[string]KeyAction{
		"e": func(app *App) error {
			h, err := app.Handle("ball")
			if err != nil {
				return err
			}
			return app.Bodies().SetSensor(h, true)
		},
	}
	return sc, nil
}

type orbitState struct {
	ball    body.Handle
	elapsed float64
}

// kinematics: a kinematic ball follows a circular path and knocks the
// dynamic ball aside.
func kinematics() (Scene, error) {
	return extend("kinematics", func(app *App) error {
		h, err := app.Handle("kine_ball")
		if err != nil {
			return err
		}
		st := &orbitState{ball: h}
		app.System().AddTickListener(sim.TickFuncs{
			Pre: func(s *sim.System, dt float64) {
				phase := 2 * math.Pi * st.elapsed / orbitPeriod
				target := mgl64.Vec3{orbitRadius * math.Sin(phase), orbitRadius * math.Cos(phase), 0}
				app.Fail(s.Bodies().MoveKinematic(st.ball, target, mgl64.QuatIdent(), dt))
				st.elapsed += dt
			},
		})
		return nil
	})
}

type deactivationState struct {
	cube, support body.Handle
}

// deactivation: once the cube falls asleep its support is removed. The cube
// hangs in the air until E wakes it.
func deactivation() (Scene, error) {
	sc, err := extend("deactivation", func(app *App) error {
		cube, err := app.Handle("dynamic_cube")
		if err != nil {
			return err
		}
		support, err := app.Handle("support_cube")
		if err != nil {
			return err
		}
		st := &deactivationState{cube: cube, support: support}
		app.System().AddTickListener(sim.TickFuncs{
			Post: func(s *sim.System, dt float64) {
				bodies := s.Bodies()
				if bodies.IsAdded(st.support) && !bodies.IsActive(st.cube) {
					app.Fail(bodies.RemoveBody(st.support))
				}
			},
		})
		return nil
	})
	if err != nil {
		return Scene{}, err
	}
	sc.Keys = map[string]KeyAction{
		"e": func(app *App) error {
			h, err := app.Handle("dynamic_cube")
			if err != nil {
				return err
			}
			return app.Bodies().ActivateBody(h)
		},
	}
	sc.Status = func(app *App) string {
		cube := "awake"
		if h, err := app.Handle("dynamic_cube"); err == nil && !app.Bodies().IsActive(h) {
			cube = "asleep"
		}
		support := "present"
		if h, err := app.Handle("support_cube"); err == nil && !app.Bodies().IsAdded(h) {
			support = "removed"
		}
		return fmt.Sprintf("cube %s, support %s", cube, support)
	}
	return sc, nil
}

type sensorState struct {
	sensor     body.Handle
	hadContact bool
}

// sensor: the static sensor bubble is removed as soon as a non-static body
// touches it.
func sensor() (Scene, error) {
	sc, err := extend("sensor", func(app *App) error {
		h, err := app.Handle("sensor")
		if err != nil {
			return err
		}
		st := &sensorState{sensor: h}
		app.System().AddContactListener(sim.ContactFuncs{
			Added: func(a, b body.Handle, c sim.Contact) {
				if !c.Involves(st.sensor) {
					return
				}
				if app.Bodies().MotionKind(c.Other(st.sensor)) != body.Static {
					st.hadContact = true
				}
			},
		})
		app.System().AddTickListener(sim.TickFuncs{
			Post: func(s *sim.System, dt float64) {
				if !st.hadContact {
					return
				}
				st.hadContact = false
				if s.Bodies().IsAdded(st.sensor) {
					app.Fail(s.Bodies().RemoveBody(st.sensor))
				}
			},
		})
		return nil
	})
	if err != nil {
		return Scene{}, err
	}
	sc.Keys = walkKeys()
	sc.Status = func(app *App) string {
		if h, err := app.Handle("sensor"); err == nil && app.Bodies().IsAdded(h) {
			return "sensor present"
		}
		return "sensor removed"
	}
	return sc, nil
}

var (
	ghostCenter = mgl64.Vec3{15, 0, -13}
	ghostHalf   = mgl64.Vec3{10, 10, 10}
)

type ghostState struct {
	hits   []body.Handle
	filter layers.ObjectLayerFilter
}

// broadPhase: a fixed axis-aligned box is queried every step for bodies a
// nonmoving body would collide with, which leaves out the ground.
func broadPhase() (Scene, error) {
	st := &ghostState{}
	sc, err := extend("broadphase", func(app *App) error {
		nonMoving, ok := app.Layers().ObjectLayerByName("nonmoving")
		if !ok {
			return dynamo.Configf("broadphase scene needs a nonmoving layer")
		}
		st.filter = layers.SpecifiedObjectLayer(app.Layers(), nonMoving)
		app.System().AddTickListener(sim.TickFuncs{
			Post: func(s *sim.System, dt float64) {
				st.hits = s.QueryAABox(shape.BoxAround(ghostCenter, ghostHalf), nil, st.filter)
			},
		})
		return nil
	})
	if err != nil {
		return Scene{}, err
	}
	sc.Keys = walkKeys()
	sc.Status = func(app *App) string {
		if len(st.hits) > 0 {
			return fmt.Sprintf("ghost box: %d hit(s)", len(st.hits))
		}
		return "ghost box: empty"
	}
	return sc, nil
}

// HoverTarget is where the hover scene's controller holds the ball.
var HoverTarget = mgl64.Vec3{0, 2, 0}

// hover: the ball is held at HoverTarget by a swappable controller. P, L
// and N pick PID, LQR or no control.
func hover() (Scene, error) {
	slot := &controllers.Slot{}
	sc, err := extend("hover", func(app *App) error {
		h, err := app.Handle("ball")
		if err != nil {
			return err
		}
		slot.Controller = controllers.NewPID(25, 0.1, 10, HoverTarget)
		controllers.Attach(app.System(), h, slot, app.Fail)
		return nil
	})
	if err != nil {
		return Scene{}, err
	}
	use := func(name string) KeyAction {
		return func(app *App) error {
			c, err := controllers.ByName(name, HoverTarget)
			if err != nil {
				return err
			}
			slot.Controller = c
			app.Logger().Info("controller", "name", name)
			return nil
		}
	}
	sc.Keys = map[string]KeyAction{
		"p": use("pid"),
		"l": use("lqr"),
		"n": use("none"),
	}
	sc.Status = func(app *App) string {
		if slot.Controller == nil {
			return ""
		}
		return "controller: " + slot.Controller.Name()
	}
	return sc, nil
}

// walkKeys steer the kinematic walker along the ground plane. Its velocity
// persists until another key changes it.
func walkKeys() map[string]KeyAction {
	walk := func(dir mgl64.Vec3) KeyAction {
		return func(app *App) error {
			h, err := app.Handle("walker")
			if err != nil {
				return err
			}
			return app.Bodies().SetLinearVelocity(h, dir.Mul(walkSpeed))
		}
	}
	return map[string]KeyAction{
		"w": walk(mgl64.Vec3{0, 0, -1}),
		"s": walk(mgl64.Vec3{0, 0, 1}),
		"a": walk(mgl64.Vec3{-1, 0, 0}),
		"d": walk(mgl64.Vec3{1, 0, 0}),
		"x": walk(mgl64.Vec3{}),
	}
}
