package sim

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/rigidsim/internal/body"
	"github.com/san-kum/rigidsim/internal/dynamo"
	"github.com/san-kum/rigidsim/internal/layers"
)

func TestNewSystemInvalidSettings(t *testing.T) {
	tests := []struct {
		name string
		tune func(*Settings)
	}{
		{"zero workers", func(s *Settings) { s.Workers = 0 }},
		{"negative workers", func(s *Settings) { s.Workers = -2 }},
		{"zero iterations", func(s *Settings) { s.SolverIterations = 0 }},
		{"baumgarte too large", func(s *Settings) { s.Baumgarte = 2 }},
		{"NaN gravity", func(s *Settings) { s.Gravity = mgl64.Vec3{0, math.NaN(), 0} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newWorld(2, tt.tune)
			if !errors.Is(err, dynamo.ErrConfiguration) {
				t.Errorf("expected ErrConfiguration, got %v", err)
			}
		})
	}
}

func TestNewSystemRejectsMismatchedRegistries(t *testing.T) {
	w := mustWorld(t, 1, nil)
	other, _ := layers.NewRegistry(2, 1)
	other.Map(0, 0).Map(1, 0)
	_ = other.Freeze()
	bodies, _ := body.NewRegistry(other, 4)

	if _, err := NewSystem(DefaultSettings(), w.router, bodies); !errors.Is(err, dynamo.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
}

func TestStepRejectsBadArgumentsWithoutTouchingBodies(t *testing.T) {
	w := mustWorld(t, 2, nil)
	h := mustHandle(t)(w.ball(mgl64.Vec3{0, 5, 0}, 0.5, body.Dynamic, nil))

	called := false
	w.sys.AddTickListener(TickFuncs{Pre: func(*System, float64) { called = true }})

	tests := []struct {
		name  string
		dt    float64
		steps int
	}{
		{"zero dt", 0, 1},
		{"negative dt", -0.02, 1},
		{"NaN dt", math.NaN(), 1},
		{"infinite dt", math.Inf(1), 1},
		{"zero collision steps", 0.02, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := w.sys.Step(context.Background(), tt.dt, tt.steps)
			if !errors.Is(err, dynamo.ErrConfiguration) {
				t.Errorf("expected ErrConfiguration, got %v", err)
			}
		})
	}

	if called {
		t.Error("listeners ran for a rejected step")
	}
	if w.bodies.Position(h) != (mgl64.Vec3{0, 5, 0}) || w.sys.StepCount() != 0 || w.sys.Time() != 0 {
		t.Error("rejected step modified state")
	}
}

func TestStepCanceledContext(t *testing.T) {
	w := mustWorld(t, 1, nil)
	h := mustHandle(t)(w.ball(mgl64.Vec3{0, 5, 0}, 0.5, body.Dynamic, nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := w.sys.Step(ctx, 0.02, 1)
	if !errors.Is(err, dynamo.ErrContextCanceled) || !errors.Is(err, context.Canceled) {
		t.Errorf("expected canceled error, got %v", err)
	}
	if w.bodies.Position(h)[1] != 5 {
		t.Error("canceled step moved a body")
	}
}

func TestStaticBodyInvariant(t *testing.T) {
	w := mustWorld(t, 2, nil)
	static := mustHandle(t)(w.ball(mgl64.Vec3{0.1, 0, 0}, 1, body.Static, nil))
	mustHandle(t)(w.ball(mgl64.Vec3{0, 4, 0}, 1, body.Dynamic, nil))

	before := w.bodies.Transform(static)
	for i := 0; i < 200; i++ {
		if err := w.sys.Step(context.Background(), 1.0/60, 1); err != nil {
			t.Fatal(err)
		}
		if w.bodies.Transform(static) != before {
			t.Fatalf("static body moved at step %d", i)
		}
	}
}

func TestZeroDampingKeepsVelocity(t *testing.T) {
	w := mustWorld(t, 2, func(s *Settings) { s.Gravity = mgl64.Vec3{} })
	h := mustHandle(t)(w.ball(mgl64.Vec3{}, 0.5, body.Dynamic, func(s *body.Settings) {
		s.LinearDamping = 0
		s.AngularDamping = 0
		s.AllowSleeping = false
		s.LinearVelocity = mgl64.Vec3{1.5, 0, -0.5}
	}))

	for i := 0; i < 100; i++ {
		_ = w.sys.Step(context.Background(), 0.02, 1)
		if v := w.bodies.LinearVelocity(h); v != (mgl64.Vec3{1.5, 0, -0.5}) {
			t.Fatalf("step %d: velocity changed to %v", i, v)
		}
	}
	if p := w.bodies.Position(h); math.Abs(p[0]-3) > 1e-9 {
		t.Errorf("expected x=3 after 2s, got %f", p[0])
	}
}

func TestLinearDampingStrictlyDecreases(t *testing.T) {
	w := mustWorld(t, 2, func(s *Settings) { s.Gravity = mgl64.Vec3{} })
	h := mustHandle(t)(w.ball(mgl64.Vec3{}, 0.5, body.Dynamic, func(s *body.Settings) {
		s.LinearDamping = 0.9
		s.AllowSleeping = false
		s.LinearVelocity = mgl64.Vec3{2, 0, 0}
	}))

	prev := w.bodies.LinearVelocity(h).Len()
	for i := 0; i < 100; i++ {
		_ = w.sys.Step(context.Background(), 0.02, 1)
		cur := w.bodies.LinearVelocity(h).Len()
		if !(cur < prev) {
			t.Fatalf("step %d: speed %g not below %g", i, cur, prev)
		}
		prev = cur
	}
}

func TestDontActivateBodyStaysPut(t *testing.T) {
	w := mustWorld(t, 1, nil)
	sph := body.DefaultSettings()
	sph.Shape = mustSphereShape(t, 0.5)
	sph.MotionKind = body.Dynamic
	sph.Position = mgl64.Vec3{0, 3, 0}
	h := mustHandle(t)(w.add(sph, dynamo.DontActivate))

	for i := 0; i < 20; i++ {
		_ = w.sys.Step(context.Background(), 0.02, 1)
	}
	if w.bodies.Position(h)[1] != 3 {
		t.Fatal("inactive body moved")
	}

	_ = w.bodies.ActivateBody(h)
	_ = w.sys.Step(context.Background(), 0.02, 1)
	if w.bodies.Position(h)[1] >= 3 {
		t.Error("activated body should fall")
	}
}

func TestDisabledPairNeverContacts(t *testing.T) {
	reg, _ := layers.NewRegistry(2, 1)
	reg.Map(0, 0).Map(1, 0)
	_ = reg.EnablePair(0, 0)
	_ = reg.Freeze()
	router, _ := layers.NewRouter(reg)
	bodies, _ := body.NewRegistry(reg, 8)
	s := DefaultSettings()
	s.Workers = 2
	s.Gravity = mgl64.Vec3{}
	sys, err := NewSystem(s, router, bodies)
	if err != nil {
		t.Fatal(err)
	}

	mk := func(layer layers.ObjectLayer, x float64) body.Handle {
		st := body.DefaultSettings()
		st.Shape = mustSphereShape(t, 1)
		st.MotionKind = body.Dynamic
		st.ObjectLayer = layer
		st.Position = mgl64.Vec3{x, 0, 0}
		st.AllowSleeping = false
		h, err := bodies.CreateBody(st)
		if err != nil {
			t.Fatal(err)
		}
		_ = bodies.AddBody(h, dynamo.Activate)
		return h
	}
	a := mk(0, 0)
	b := mk(1, 0.5)
	c := mk(1, -0.5)

	events := 0
	sys.AddContactListener(ContactFuncs{Added: func(x, y body.Handle, _ Contact) {
		if (x == a && y == b) || (x == b && y == c) || (x == a && y == c) {
			events++
		}
	}})

	for i := 0; i < 50; i++ {
		_ = sys.Step(context.Background(), 0.02, 2)
		if len(sys.Contacts()) != 0 {
			t.Fatalf("step %d: disabled layers reported %v", i, sys.Contacts())
		}
	}
	if events != 0 {
		t.Errorf("got %d contact events between disabled layers", events)
	}
	if bodies.Position(b) != (mgl64.Vec3{0.5, 0, 0}) {
		t.Error("overlapping bodies on disabled layers must not push each other")
	}
}

func TestKinematicReachesTarget(t *testing.T) {
	for _, steps := range []int{1, 3} {
		w := mustWorld(t, 2, nil)
		k := mustHandle(t)(w.ball(mgl64.Vec3{0, 1, 0}, 0.5, body.Kinematic, nil))
		mustHandle(t)(w.ball(mgl64.Vec3{1, 1.5, 0}, 0.5, body.Dynamic, nil))

		target := mgl64.Vec3{2, 1, -1}
		rot := mgl64.QuatRotate(math.Pi/3, mgl64.Vec3{0, 0, 1})
		const T = 0.5
		if err := w.bodies.MoveKinematic(k, target, rot, T); err != nil {
			t.Fatal(err)
		}
		for i := 0; i < 25; i++ {
			_ = w.sys.Step(context.Background(), T/25, steps)
		}

		if p := w.bodies.Position(k); !p.ApproxEqualThreshold(target, 1e-9) {
			t.Errorf("collision steps %d: position %v, want %v", steps, p, target)
		}
		if q := w.bodies.Rotation(k); math.Abs(math.Abs(q.Dot(rot))-1) > 1e-9 {
			t.Errorf("collision steps %d: rotation %v, want %v", steps, q, rot)
		}
	}
}

func TestTickListenerOrder(t *testing.T) {
	w := mustWorld(t, 1, nil)
	h := mustHandle(t)(w.ball(mgl64.Vec3{}, 0.5, body.Kinematic, nil))

	var log []string
	w.sys.AddTickListener(TickFuncs{
		Pre: func(s *System, dt float64) {
			log = append(log, "pre1")
			_ = s.Bodies().MoveKinematic(h, mgl64.Vec3{1, 0, 0}, mgl64.QuatIdent(), dt)
		},
		Post: func(s *System, dt float64) {
			log = append(log, "post1")
			if s.Bodies().Position(h)[0] < 0.999 {
				t.Error("kinematic move scheduled in pre-tick must apply in the same step")
			}
		},
	})
	w.sys.AddTickListener(TickFuncs{
		Pre:  func(*System, float64) { log = append(log, "pre2") },
		Post: func(*System, float64) { log = append(log, "post2") },
	})

	_ = w.sys.Step(context.Background(), 0.02, 1)

	want := []string{"pre1", "pre2", "post1", "post2"}
	if len(log) != len(want) {
		t.Fatalf("got %v, want %v", log, want)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Errorf("got %v, want %v", log, want)
			break
		}
	}
}

func TestContactEvents(t *testing.T) {
	w := mustWorld(t, 2, nil)
	mustHandle(t)(w.floor(-1))
	ball := mustHandle(t)(w.ball(mgl64.Vec3{0, -0.5, 0}, 0.3, body.Dynamic, func(s *body.Settings) {
		s.AllowSleeping = false
	}))

	var added, persisted, removed int
	w.sys.AddContactListener(ContactFuncs{
		Added:     func(a, b body.Handle, c Contact) { added++ },
		Persisted: func(a, b body.Handle, c Contact) { persisted++ },
		Removed:   func(a, b body.Handle, c Contact) { removed++ },
	})

	for i := 0; i < 60; i++ {
		_ = w.sys.Step(context.Background(), 1.0/60, 1)
	}
	if added == 0 || persisted == 0 {
		t.Fatalf("expected contact added and persisted events, got %d/%d", added, persisted)
	}

	_ = w.bodies.AddImpulse(ball, mgl64.Vec3{0, 1000, 0}, nil)
	for i := 0; i < 5; i++ {
		_ = w.sys.Step(context.Background(), 1.0/60, 1)
	}
	if removed == 0 {
		t.Error("expected a contact removed event after launching the ball")
	}
}

func TestSleepingBodyDeactivates(t *testing.T) {
	w := mustWorld(t, 2, nil)
	mustHandle(t)(w.floor(-1))
	h := mustHandle(t)(w.ball(mgl64.Vec3{0, -0.7, 0}, 0.3, body.Dynamic, nil))

	for i := 0; i < 150 && w.bodies.IsActive(h); i++ {
		_ = w.sys.Step(context.Background(), 0.02, 1)
	}
	if w.bodies.IsActive(h) {
		t.Fatal("resting ball should fall asleep")
	}
	y := w.bodies.Position(h)[1]
	for i := 0; i < 20; i++ {
		_ = w.sys.Step(context.Background(), 0.02, 1)
	}
	if w.bodies.Position(h)[1] != y {
		t.Error("sleeping body moved")
	}
}

func TestAllowSleepingOff(t *testing.T) {
	w := mustWorld(t, 2, func(s *Settings) { s.AllowSleeping = false })
	mustHandle(t)(w.floor(-1))
	h := mustHandle(t)(w.ball(mgl64.Vec3{0, -0.7, 0}, 0.3, body.Dynamic, nil))

	for i := 0; i < 150; i++ {
		_ = w.sys.Step(context.Background(), 0.02, 1)
	}
	if !w.bodies.IsActive(h) {
		t.Error("sleeping disabled system put a body to sleep")
	}
}

func TestDeterministicAcrossWorkerCounts(t *testing.T) {
	run := func(workers int) []mgl64.Vec3 {
		w := mustWorld(t, workers, nil)
		mustHandle(t)(w.floor(-1))
		var hs []body.Handle
		for i := 0; i < 40; i++ {
			x := float64(i%8) - 4
			y := float64(i/8) * 1.1
			hs = append(hs, mustHandle(t)(w.ball(mgl64.Vec3{x * 0.9, y, float64(i%3) * 0.2}, 0.5, body.Dynamic, nil)))
		}
		for i := 0; i < 120; i++ {
			if err := w.sys.Step(context.Background(), 1.0/60, 2); err != nil {
				t.Fatal(err)
			}
		}
		out := make([]mgl64.Vec3, len(hs))
		for i, h := range hs {
			out[i] = w.bodies.Position(h)
		}
		return out
	}

	serial := run(1)
	parallel := run(8)
	for i := range serial {
		if serial[i] != parallel[i] {
			t.Fatalf("body %d diverged: %v vs %v", i, serial[i], parallel[i])
		}
	}
}

func TestQueryAABox(t *testing.T) {
	w := mustWorld(t, 1, nil)
	near := mustHandle(t)(w.ball(mgl64.Vec3{15, 0, -13}, 0.5, body.Dynamic, nil))
	mustHandle(t)(w.ball(mgl64.Vec3{-20, 0, 0}, 0.5, body.Dynamic, nil))
	static := mustHandle(t)(w.ball(mgl64.Vec3{14, 0, -12}, 0.5, body.Static, nil))

	box := mgl64.Vec3{10, 10, 10}
	got := w.sys.QueryAABox(boxAround(mgl64.Vec3{15, 0, -13}, box), nil, layers.SpecifiedObjectLayer(w.reg, layerNonMoving))
	if len(got) != 1 || got[0] != near {
		t.Errorf("expected only %d, got %v", near, got)
	}

	got = w.sys.QueryAABox(boxAround(mgl64.Vec3{15, 0, -13}, box), nil, nil)
	if len(got) != 2 || got[1] != static {
		t.Errorf("expected both nearby bodies, got %v", got)
	}
}

func TestValidateReportsNaN(t *testing.T) {
	w := mustWorld(t, 1, nil)
	h := mustHandle(t)(w.ball(mgl64.Vec3{}, 0.5, body.Dynamic, nil))
	if err := w.sys.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	b, _ := w.bodies.Get(h)
	b.Transform.Position[0] = math.NaN()

	err := w.sys.Validate()
	if !errors.Is(err, dynamo.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
}

func TestArenaResetEachSubstep(t *testing.T) {
	w := mustWorld(t, 1, nil)
	mustHandle(t)(w.ball(mgl64.Vec3{}, 0.5, body.Dynamic, nil))

	_ = w.sys.Step(context.Background(), 0.02, 4)
	if got := w.sys.Arena().Resets(); got != 4 {
		t.Errorf("expected 4 arena resets, got %d", got)
	}
}
