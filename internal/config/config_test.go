package config

import (
	"errors"
	"math"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/san-kum/rigidsim/internal/body"
	"github.com/san-kum/rigidsim/internal/dynamo"
	"github.com/san-kum/rigidsim/internal/layers"
)

func TestDefaultScene(t *testing.T) {
	sc := DefaultScene()

	if sc.Name != "sport" {
		t.Errorf("expected name sport, got %s", sc.Name)
	}
	if sc.Step.Dt <= 0 {
		t.Error("dt should be positive")
	}
	if sc.Steps() != 49 {
		t.Errorf("expected 49 steps, got %d", sc.Steps())
	}
	if err := sc.Validate(); err != nil {
		t.Fatalf("default scene should validate: %v", err)
	}
}

func TestBuildDefaultScene(t *testing.T) {
	w, err := DefaultScene().Build()
	if err != nil {
		t.Fatal(err)
	}

	moving, ok := w.Layers.ObjectLayerByName("moving")
	if !ok {
		t.Fatal("moving layer missing")
	}
	nonMoving, _ := w.Layers.ObjectLayerByName("nonmoving")
	if !w.Layers.Allowed(moving, nonMoving) {
		t.Error("moving/nonmoving should collide")
	}
	if w.Layers.Allowed(nonMoving, nonMoving) {
		t.Error("nonmoving/nonmoving should not collide")
	}

	floor, err := w.Handle("floor")
	if err != nil {
		t.Fatal(err)
	}
	ball, err := w.Handle("ball")
	if err != nil {
		t.Fatal(err)
	}
	if w.Bodies.MotionKind(floor) != body.Static {
		t.Error("floor should be static")
	}
	if w.Bodies.IsActive(floor) {
		t.Error("floor should not be active")
	}
	if !w.Bodies.IsActive(ball) {
		t.Error("ball should be active")
	}
	if w.System.Workers() <= 0 {
		t.Error("workers should default to the CPU count")
	}

	if _, err := w.Handle("nope"); !errors.Is(err, dynamo.ErrUsage) {
		t.Errorf("expected ErrUsage for unknown name, got %v", err)
	}
}

func TestParse(t *testing.T) {
	doc := `
name: custom
step: {dt: 0.01, collision_steps: 2, duration: 0.5}
workers: 3
gravity: [0, -1.62, 0]
allow_sleeping: false
layers:
  object: [a, b, c]
  broadphase: [fast, slow]
  map: {a: fast, b: fast, c: slow}
  pairs:
    - {a: a, b: b, enabled: true}
    - {a: c, b: c, enabled: true}
bodies:
  - {name: ground, shape: {type: plane, normal: [0, 1, 0], offset: 0}, motion: static, layer: c, activation: dont_activate}
  - name: crate
    shape: {type: box, half_extent: [0.5, 0.25, 0.5]}
    motion: dynamic
    layer: a
    position: [0, 2, 0]
    mass: 4
    friction: 0.8
`
	sc, err := Parse([]byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	if sc.Step.CollisionSteps != 2 || sc.Workers != 3 {
		t.Errorf("unexpected step config %+v workers %d", sc.Step, sc.Workers)
	}

	w, err := sc.Build()
	if err != nil {
		t.Fatal(err)
	}
	if w.Layers.NumObjectLayers() != 3 || w.Layers.NumBroadPhaseLayers() != 2 {
		t.Errorf("unexpected layer counts %d/%d", w.Layers.NumObjectLayers(), w.Layers.NumBroadPhaseLayers())
	}
	c, _ := w.Layers.ObjectLayerByName("c")
	bp, ok := w.Layers.BroadPhaseLayerOf(c)
	if !ok || w.Layers.BroadPhaseLayerName(bp) != "slow" {
		t.Errorf("layer c should map to slow, got %v", bp)
	}
	a, _ := w.Layers.ObjectLayerByName("a")
	if w.Layers.Allowed(a, c) {
		t.Error("a/c was never enabled")
	}
	if w.System.Workers() != 3 {
		t.Errorf("expected 3 workers, got %d", w.System.Workers())
	}
	if math.Abs(w.System.Gravity().Y()+1.62) > 1e-12 {
		t.Errorf("unexpected gravity %v", w.System.Gravity())
	}

	h, _ := w.Handle("crate")
	b, err := w.Bodies.Get(h)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(b.Mass()-4) > 1e-9 {
		t.Errorf("expected mass 4, got %f", b.Mass())
	}
	if b.Friction != 0.8 {
		t.Errorf("expected friction 0.8, got %f", b.Friction)
	}
	if b.LinearDamping != body.DefaultSettings().LinearDamping {
		t.Errorf("unset damping should keep the default, got %f", b.LinearDamping)
	}
}

func TestParseDefaultsLayers(t *testing.T) {
	sc, err := Parse([]byte("name: bare\nbodies: []\n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(sc.Layers.Object) != 2 {
		t.Errorf("expected the two default layers, got %v", sc.Layers.Object)
	}
	if sc.Step.Dt != DefaultDt {
		t.Errorf("expected default dt, got %f", sc.Step.Dt)
	}
}

func TestParseMalformed(t *testing.T) {
	_, err := Parse([]byte("step: [not, a, map]"))
	if !errors.Is(err, dynamo.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scene.yaml")
	orig := GetPreset("damping")

	if err := Save(path, orig); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if got.Name != orig.Name || len(got.Bodies) != len(orig.Bodies) {
		t.Fatalf("loaded scene differs: %s with %d bodies", got.Name, len(got.Bodies))
	}
	if *got.Bodies[3].LinearDamping != 0.9 {
		t.Errorf("expected linear damping 0.9, got %f", *got.Bodies[3].LinearDamping)
	}
	if err := got.Validate(); err != nil {
		t.Errorf("loaded scene should validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		edit func(*Scene)
	}{
		{"zero dt", func(s *Scene) { s.Step.Dt = 0 }},
		{"negative dt", func(s *Scene) { s.Step.Dt = -0.01 }},
		{"zero collision steps", func(s *Scene) { s.Step.CollisionSteps = 0 }},
		{"negative workers", func(s *Scene) { s.Workers = -1 }},
		{"short gravity", func(s *Scene) { s.Gravity = []float64{0, -9.81} }},
		{"no object layers", func(s *Scene) { s.Layers.Object = nil }},
		{"unknown map target", func(s *Scene) { s.Layers.Map["moving"] = "nowhere" }},
		{"unknown pair layer", func(s *Scene) { s.Layers.Pairs[0].B = "ghost" }},
		{"duplicate body", func(s *Scene) { s.Bodies[1].Name = "floor" }},
		{"unnamed body", func(s *Scene) { s.Bodies[1].Name = "" }},
		{"unknown body layer", func(s *Scene) { s.Bodies[1].Layer = "ghost" }},
		{"unknown motion", func(s *Scene) { s.Bodies[1].Motion = "floating" }},
		{"unknown activation", func(s *Scene) { s.Bodies[1].Activation = "later" }},
		{"short position", func(s *Scene) { s.Bodies[1].Position = []float64{1} }},
		{"negative mass", func(s *Scene) { s.Bodies[1].Mass = -1 }},
		{"unknown track", func(s *Scene) { s.Track = "ghost" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := DefaultScene()
			tt.edit(sc)
			err := sc.Validate()
			if !errors.Is(err, dynamo.ErrConfiguration) {
				t.Errorf("expected ErrConfiguration, got %v", err)
			}
			if _, err := sc.Build(); err == nil {
				t.Error("Build should fail too")
			}
		})
	}
}

func TestBuildRejectsBadShapes(t *testing.T) {
	tests := []struct {
		name  string
		shape ShapeConfig
	}{
		{"unknown type", ShapeConfig{Type: "torus"}},
		{"zero radius", ShapeConfig{Type: "sphere"}},
		{"zero normal", ShapeConfig{Type: "plane", Normal: []float64{0, 0, 0}}},
		{"negative extent", ShapeConfig{Type: "box", HalfExtent: []float64{1, -1, 1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := DefaultScene()
			sc.Bodies[1].Shape = tt.shape
			if _, err := sc.Build(); !errors.Is(err, dynamo.ErrConfiguration) {
				t.Errorf("expected ErrConfiguration, got %v", err)
			}
		})
	}
}

func TestUnmappedLayerFailsFreeze(t *testing.T) {
	sc := DefaultScene()
	delete(sc.Layers.Map, "nonmoving")
	if _, err := sc.BuildLayers(); !errors.Is(err, dynamo.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration for unmapped layer, got %v", err)
	}
}

func TestGetPreset(t *testing.T) {
	sc := GetPreset("rigid_body")
	if sc == nil {
		t.Fatal("expected preset, got nil")
	}
	if sc.Speed != 0.1 {
		t.Errorf("expected speed 0.1, got %f", sc.Speed)
	}

	sc.Bodies[0].Name = "changed"
	sc.Layers.Map["moving"] = "changed"
	again := GetPreset("rigid_body")
	if again.Bodies[0].Name != "ball1" || again.Layers.Map["moving"] != "all" {
		t.Error("GetPreset should return an independent copy")
	}
}

func TestGetPresetNotFound(t *testing.T) {
	if GetPreset("nonexistent") != nil {
		t.Error("expected nil for nonexistent preset")
	}
}

func TestListPresets(t *testing.T) {
	names := ListPresets()
	if len(names) != len(Presets) {
		t.Fatalf("expected %d presets, got %d", len(Presets), len(names))
	}
	if !slices.IsSorted(names) {
		t.Errorf("presets should be sorted: %v", names)
	}
	for _, want := range []string{"sport", "rigid_body", "static_body", "contact_response", "kinematics",
		"damping", "deactivation", "ccd", "sensor", "broadphase", "scripted"} {
		if !slices.Contains(names, want) {
			t.Errorf("missing preset %s", want)
		}
	}
}

func TestEveryPresetBuilds(t *testing.T) {
	for _, name := range ListPresets() {
		t.Run(name, func(t *testing.T) {
			w, err := GetPreset(name).Build()
			if err != nil {
				t.Fatal(err)
			}
			if w.Bodies.Len() != len(Presets[name].Bodies) {
				t.Errorf("expected %d bodies, got %d", len(Presets[name].Bodies), w.Bodies.Len())
			}
		})
	}
}

func TestPresetImpulses(t *testing.T) {
	w, err := GetPreset("rigid_body").Build()
	if err != nil {
		t.Fatal(err)
	}
	h, _ := w.Handle("ball2")
	if v := w.Bodies.LinearVelocity(h); math.Abs(v.X()+12.5) > 1e-9 {
		t.Errorf("expected vx -12.5 after impulse, got %v", v)
	}

	w, err = GetPreset("damping").Build()
	if err != nil {
		t.Fatal(err)
	}
	h, _ = w.Handle("cube0")
	if w.Bodies.AngularVelocity(h).Len() == 0 {
		t.Error("off-centre impulse should spin the cube")
	}
}

func TestSensorPresetLayers(t *testing.T) {
	w, err := GetPreset("sensor").Build()
	if err != nil {
		t.Fatal(err)
	}
	h, _ := w.Handle("sensor")
	if !w.Bodies.IsSensor(h) {
		t.Error("sensor body should be a sensor")
	}
	if w.Bodies.ObjectLayer(h) != layers.ObjectLayer(1) {
		t.Errorf("sensor should be on the nonmoving layer, got %d", w.Bodies.ObjectLayer(h))
	}
}

func TestWatcher(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scene.yaml")
	if err := Save(path, DefaultScene()); err != nil {
		t.Fatal(err)
	}

	w, err := NewWatcher(path)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	if err := Save(filepath.Join(dir, "other.yaml"), DefaultScene()); err != nil {
		t.Fatal(err)
	}
	sc := DefaultScene()
	sc.Workers = 2
	if err := Save(path, sc); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-w.Events:
		if got != w.Path() {
			t.Errorf("expected event for %s, got %s", w.Path(), got)
		}
	case err := <-w.Errors:
		t.Fatalf("watcher error: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("no event after writing the scene file")
	}
}
