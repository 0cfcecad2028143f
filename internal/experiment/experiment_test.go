package experiment

import (
	"context"
	"errors"
	"io"
	"math"
	"slices"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/rigidsim/internal/body"
	"github.com/san-kum/rigidsim/internal/config"
	"github.com/san-kum/rigidsim/internal/dynamo"
	"github.com/san-kum/rigidsim/internal/layers"
	"github.com/san-kum/rigidsim/internal/shape"
	"github.com/san-kum/rigidsim/internal/sim"
)

func quietOptions() Options {
	return Options{Workers: 2, Logger: log.New(io.Discard)}
}

func mustApp(t *testing.T, name string) *App {
	t.Helper()
	sc, err := NewRegistry().Get(name)
	if err != nil {
		t.Fatal(err)
	}
	app, err := New(sc, quietOptions())
	if err != nil {
		t.Fatal(err)
	}
	return app
}

func TestRegistryList(t *testing.T) {
	names := NewRegistry().List()
	for _, want := range config.ListPresets() {
		if !slices.Contains(names, want) {
			t.Errorf("missing scene %s", want)
		}
	}
	if !slices.IsSorted(names) {
		t.Errorf("scene names should be sorted: %v", names)
	}
}

func TestRegistryUnknown(t *testing.T) {
	_, err := NewRegistry().Get("nonexistent")
	if !errors.Is(err, dynamo.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
}

func TestEverySceneSteps(t *testing.T) {
	for _, name := range NewRegistry().List() {
		t.Run(name, func(t *testing.T) {
			app := mustApp(t, name)
			if err := app.Run(context.Background(), 10, nil); err != nil {
				t.Fatal(err)
			}
			if app.System().StepCount() != 10 {
				t.Errorf("expected 10 steps, got %d", app.System().StepCount())
			}
			if err := app.System().Validate(); err != nil {
				t.Errorf("invalid state after 10 steps: %v", err)
			}
		})
	}
}

func TestSportSettles(t *testing.T) {
	app := mustApp(t, "sport")
	ball, err := app.Handle("ball")
	if err != nil {
		t.Fatal(err)
	}

	var ys []float64
	err = app.Run(context.Background(), app.Steps(), func(step int, app *App) error {
		ys = append(ys, app.Bodies().Position(ball).Y())
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(ys) != 49 {
		t.Fatalf("expected 49 steps, got %d", len(ys))
	}
	if ys[1] >= ys[0] {
		t.Error("ball should start falling")
	}
	if y := ys[len(ys)-1]; math.Abs(y+0.7) > 0.03 {
		t.Errorf("expected ball to rest near -0.7, got %f", y)
	}
}

func TestAdvance(t *testing.T) {
	app := mustApp(t, "sport")
	ctx := context.Background()

	n, err := app.Advance(ctx, 0.05)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("0.05 s should run 2 steps of 0.02, ran %d", n)
	}

	n, _ = app.Advance(ctx, 0.015)
	if n != 1 {
		t.Errorf("leftover time should carry over, ran %d", n)
	}

	n, _ = app.Advance(ctx, 1.0)
	if n != DefaultMaxCatchUp {
		t.Errorf("expected catch-up cap %d, ran %d", DefaultMaxCatchUp, n)
	}
	n, _ = app.Advance(ctx, 0)
	if n != 0 {
		t.Errorf("dropped time should not run later, ran %d", n)
	}

	if _, err := app.Advance(ctx, -1); !errors.Is(err, dynamo.ErrUsage) {
		t.Errorf("expected ErrUsage for negative wall time, got %v", err)
	}
}

func TestAdvanceSpeed(t *testing.T) {
	app := mustApp(t, "rigid_body")
	if app.Speed() != 0.1 {
		t.Fatalf("expected speed 0.1, got %f", app.Speed())
	}
	n, err := app.Advance(context.Background(), 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("0.5 s at 0.1x should run 2 steps, ran %d", n)
	}

	if err := app.SetSpeed(-1); !errors.Is(err, dynamo.ErrUsage) {
		t.Errorf("expected ErrUsage, got %v", err)
	}
}

func TestPause(t *testing.T) {
	app := mustApp(t, "sport")
	app.TogglePause()
	n, _ := app.Advance(context.Background(), 1)
	if n != 0 {
		t.Errorf("paused app should not step, ran %d", n)
	}
	app.TogglePause()
	n, _ = app.Advance(context.Background(), 0.02)
	if n != 1 {
		t.Errorf("expected 1 step after resuming, ran %d", n)
	}
}

func TestPress(t *testing.T) {
	app := mustApp(t, "contact_response")
	ball := app.MustHandle("ball")

	ok, err := app.Press("q")
	if ok || err != nil {
		t.Errorf("unbound key should be ignored, got %v %v", ok, err)
	}

	ok, err = app.Press("e")
	if !ok || err != nil {
		t.Fatalf("e should be bound, got %v %v", ok, err)
	}
	if !app.Bodies().IsSensor(ball) {
		t.Error("e should turn the ball into a sensor")
	}
	if !slices.Equal(app.KeyNames(), []string{"e"}) {
		t.Errorf("unexpected keys %v", app.KeyNames())
	}
}

func TestViews(t *testing.T) {
	app := mustApp(t, "static_body")
	views := app.Views()
	if len(views) != 2 {
		t.Fatalf("expected 2 views, got %d", len(views))
	}
	if views[0].Name != "dyna_ball" || views[1].Name != "stat_ball" {
		t.Errorf("views should follow creation order, got %s, %s", views[0].Name, views[1].Name)
	}
	if views[1].Motion != body.Static || views[1].Active {
		t.Errorf("stat_ball should be static and inactive: %+v", views[1])
	}
	if views[0].Position != (mgl64.Vec3{0, 4, 0}) {
		t.Errorf("unexpected position %v", views[0].Position)
	}
}

func TestCustomScene(t *testing.T) {
	sc := Scene{
		Name: "custom",
		Layers: func() (*layers.Registry, error) {
			reg, err := layers.NewRegistry(1, 1)
			if err != nil {
				return nil, err
			}
			reg.Map(0, 0)
			return reg, reg.Freeze()
		},
		Settings: func(s *sim.Settings) { s.Gravity = mgl64.Vec3{} },
		Populate: func(app *App) error {
			sph, err := shape.NewSphere(0.5)
			if err != nil {
				return err
			}
			s := body.DefaultSettings()
			s.Name = "probe"
			s.Shape = sph
			s.MotionKind = body.Dynamic
			s.LinearDamping = 0
			s.LinearVelocity = mgl64.Vec3{1, 0, 0}
			_, err = app.AddBody(s, dynamo.Activate)
			return err
		},
		Dt: 0.1,
	}

	app, err := New(sc, quietOptions())
	if err != nil {
		t.Fatal(err)
	}
	if err := app.Run(context.Background(), 10, nil); err != nil {
		t.Fatal(err)
	}
	x := app.Bodies().Position(app.MustHandle("probe")).X()
	if math.Abs(x-1) > 1e-9 {
		t.Errorf("expected x=1 after 1 s at 1 m/s, got %f", x)
	}

	s := body.DefaultSettings()
	s.Name = "probe"
	if _, err := app.AddBody(s, dynamo.Activate); !errors.Is(err, dynamo.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration for duplicate name, got %v", err)
	}
}

func TestNewRejectsIncompleteScene(t *testing.T) {
	_, err := New(Scene{Name: "empty"}, quietOptions())
	if !errors.Is(err, dynamo.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
}

func TestFailStopsStepping(t *testing.T) {
	app := mustApp(t, "sport")
	boom := errors.New("boom")
	app.Fail(boom)

	if err := app.Step(context.Background()); !errors.Is(err, boom) {
		t.Errorf("expected recorded error, got %v", err)
	}
	if app.System().StepCount() != 0 {
		t.Error("no step should run after a failure")
	}
}

func TestScriptErrorSurfaces(t *testing.T) {
	sc := config.GetPreset("sport")
	sc.Script = `engine.position("ghost")`
	scene, err := FromConfig(sc)
	if err != nil {
		t.Fatal(err)
	}
	app, err := New(scene, quietOptions())
	if err != nil {
		t.Fatal(err)
	}
	if err := app.Step(context.Background()); err == nil {
		t.Error("expected the script error from Step")
	}
	if len(app.Scripts()) != 1 {
		t.Errorf("expected one script, got %d", len(app.Scripts()))
	}
}

func TestScriptedSceneKicks(t *testing.T) {
	app := mustApp(t, "scripted")
	if err := app.Run(context.Background(), 60, nil); err != nil {
		t.Fatal(err)
	}
	if len(app.Scripts()) != 1 {
		t.Fatalf("expected one script, got %d", len(app.Scripts()))
	}
	rt := app.Scripts()[0]
	if rt.Err() != nil || rt.Runs() != 120 {
		t.Errorf("script should run twice per step: runs=%d err=%v", rt.Runs(), rt.Err())
	}
	if rt.State()["kicked"] != true {
		t.Error("expected the script to kick the ball after one second")
	}
}

func TestContextCanceled(t *testing.T) {
	app := mustApp(t, "sport")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := app.Run(ctx, 5, nil); !errors.Is(err, dynamo.ErrContextCanceled) {
		t.Errorf("expected ErrContextCanceled, got %v", err)
	}
}
