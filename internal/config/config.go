package config

import (
	"fmt"
	"io"
	"os"

	"github.com/san-kum/rigidsim/internal/body"
	"github.com/san-kum/rigidsim/internal/dynamo"
	"gopkg.in/yaml.v3"
)

const (
	DefaultDt             = 0.02
	DefaultCollisionSteps = 1
	DefaultDuration       = 0.98
	DefaultGravityY       = -9.81
	DefaultMaxBodies      = 1024
)

// Scene is a YAML scene document: layer setup, step parameters and the
// bodies to create before the first step.
type Scene struct {
	Name          string       `yaml:"name"`
	Description   string       `yaml:"description,omitempty"`
	Step          StepConfig   `yaml:"step"`
	Workers       int          `yaml:"workers"`
	Integrator    string       `yaml:"integrator,omitempty"`
	Gravity       []float64    `yaml:"gravity,flow"`
	AllowSleeping bool         `yaml:"allow_sleeping"`
	MaxBodies     int          `yaml:"max_bodies,omitempty"`
	Speed         float64      `yaml:"speed,omitempty"`
	Track         string       `yaml:"track,omitempty"`
	Layers        LayerConfig  `yaml:"layers"`
	Bodies        []BodyConfig `yaml:"bodies"`
	Script        string       `yaml:"script,omitempty"`
}

type StepConfig struct {
	Dt             float64 `yaml:"dt"`
	CollisionSteps int     `yaml:"collision_steps"`
	Duration       float64 `yaml:"duration"`
}

type LayerConfig struct {
	Object     []string          `yaml:"object,flow"`
	BroadPhase []string          `yaml:"broadphase,flow"`
	Map        map[string]string `yaml:"map"`
	Pairs      []PairConfig      `yaml:"pairs"`
}

type PairConfig struct {
	A       string `yaml:"a"`
	B       string `yaml:"b"`
	Enabled bool   `yaml:"enabled"`
}

type ShapeConfig struct {
	Type       string    `yaml:"type"`
	Radius     float64   `yaml:"radius,omitempty"`
	HalfExtent []float64 `yaml:"half_extent,flow,omitempty"`
	Normal     []float64 `yaml:"normal,flow,omitempty"`
	Offset     float64   `yaml:"offset,omitempty"`
}

type BodyConfig struct {
	Name            string      `yaml:"name"`
	Shape           ShapeConfig `yaml:"shape"`
	Motion          string      `yaml:"motion"`
	Layer           string      `yaml:"layer"`
	Activation      string      `yaml:"activation,omitempty"`
	Position        []float64   `yaml:"position,flow,omitempty"`
	Rotation        []float64   `yaml:"rotation,flow,omitempty"`
	Mass            float64     `yaml:"mass,omitempty"`
	LinearVelocity  []float64   `yaml:"linear_velocity,flow,omitempty"`
	AngularVelocity []float64   `yaml:"angular_velocity,flow,omitempty"`
	LinearDamping   *float64    `yaml:"linear_damping,omitempty"`
	AngularDamping  *float64    `yaml:"angular_damping,omitempty"`
	Friction        *float64    `yaml:"friction,omitempty"`
	Restitution     *float64    `yaml:"restitution,omitempty"`
	GravityFactor   *float64    `yaml:"gravity_factor,omitempty"`
	Sensor          bool        `yaml:"sensor,omitempty"`
	AllowSleeping   *bool       `yaml:"allow_sleeping,omitempty"`
	Impulse         []float64   `yaml:"impulse,flow,omitempty"`
	ImpulseOffset   []float64   `yaml:"impulse_offset,flow,omitempty"`
}

// DefaultScene is the classic two-layer setup: a ball above a floor plane.
func DefaultScene() *Scene {
	return &Scene{
		Name: "sport",
		Step: StepConfig{
			Dt:             DefaultDt,
			CollisionSteps: DefaultCollisionSteps,
			Duration:       DefaultDuration,
		},
		Gravity:       []float64{0, DefaultGravityY, 0},
		AllowSleeping: true,
		Speed:         1,
		Track:         "ball",
		Layers:        TwoLayers(),
		Bodies: []BodyConfig{
			Floor("floor", -1),
			Ball("ball", 0.3, 0, 0, 0),
		},
	}
}

// TwoLayers is the moving/nonmoving layer table with a single broad-phase
// layer. Nonmoving bodies never collide with each other.
func TwoLayers() LayerConfig {
	return LayerConfig{
		Object:     []string{"moving", "nonmoving"},
		BroadPhase: []string{"all"},
		Map:        map[string]string{"moving": "all", "nonmoving": "all"},
		Pairs: []PairConfig{
			{A: "moving", B: "moving", Enabled: true},
			{A: "moving", B: "nonmoving", Enabled: true},
			{A: "nonmoving", B: "nonmoving", Enabled: false},
		},
	}
}

func Load(path string) (*Scene, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes a scene over DefaultScene's step and gravity defaults.
// Bodies and layers are replaced, never merged.
func Parse(data []byte) (*Scene, error) {
	sc := DefaultScene()
	sc.Bodies = nil
	sc.Layers = LayerConfig{}
	sc.Track = ""
	if err := yaml.Unmarshal(data, sc); err != nil {
		return nil, fmt.Errorf("%w: %w", dynamo.ErrConfiguration, err)
	}
	if len(sc.Layers.Object) == 0 {
		sc.Layers = TwoLayers()
	}
	return sc, nil
}

func Save(path string, sc *Scene) error {
	data, err := yaml.Marshal(sc)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Encode writes sc as YAML with two-space indentation.
func Encode(w io.Writer, sc *Scene) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(sc); err != nil {
		return err
	}
	return enc.Close()
}

// Clone returns a deep copy so callers may tweak presets freely.
func (s *Scene) Clone() *Scene {
	out := *s
	out.Gravity = append([]float64(nil), s.Gravity...)
	out.Layers.Object = append([]string(nil), s.Layers.Object...)
	out.Layers.BroadPhase = append([]string(nil), s.Layers.BroadPhase...)
	out.Layers.Pairs = append([]PairConfig(nil), s.Layers.Pairs...)
	out.Layers.Map = make(map[string]string, len(s.Layers.Map))
	for k, v := range s.Layers.Map {
		out.Layers.Map[k] = v
	}
	out.Bodies = make([]BodyConfig, len(s.Bodies))
	copy(out.Bodies, s.Bodies)
	return &out
}

// Steps is the number of fixed steps covering Duration.
func (s *Scene) Steps() int {
	if s.Step.Dt <= 0 {
		return 0
	}
	return int(s.Step.Duration/s.Step.Dt + 0.5)
}

// Validate checks everything that can be checked without building the
// world. Build reports the rest.
func (s *Scene) Validate() error {
	if s.Step.Dt <= 0 {
		return dynamo.Configf("dt must be positive, got %f", s.Step.Dt)
	}
	if s.Step.CollisionSteps < 1 {
		return dynamo.Configf("collision_steps must be at least 1, got %d", s.Step.CollisionSteps)
	}
	if s.Step.Duration < 0 {
		return dynamo.Configf("duration must not be negative, got %f", s.Step.Duration)
	}
	if s.Workers < 0 {
		return dynamo.Configf("workers must not be negative, got %d", s.Workers)
	}
	if s.Speed < 0 {
		return dynamo.Configf("speed must not be negative, got %f", s.Speed)
	}
	if len(s.Gravity) != 3 {
		return dynamo.Configf("gravity needs 3 components, got %d", len(s.Gravity))
	}
	if err := s.Layers.validate(); err != nil {
		return err
	}

	objects := index(s.Layers.Object)
	seen := make(map[string]bool, len(s.Bodies))
	for i := range s.Bodies {
		b := &s.Bodies[i]
		if b.Name == "" {
			return dynamo.Configf("body %d has no name", i)
		}
		if seen[b.Name] {
			return dynamo.Configf("duplicate body name: %s", b.Name)
		}
		seen[b.Name] = true
		if _, ok := objects[b.Layer]; !ok {
			return dynamo.Configf("body %s: unknown layer %q", b.Name, b.Layer)
		}
		if _, err := body.ParseMotionKind(b.Motion); err != nil {
			return fmt.Errorf("body %s: %w", b.Name, err)
		}
		if _, err := dynamo.ParseActivation(b.Activation); err != nil {
			return fmt.Errorf("body %s: %w", b.Name, err)
		}
		for _, v := range []struct {
			field string
			vals  []float64
			n     int
		}{
			{"position", b.Position, 3},
			{"rotation", b.Rotation, 4},
			{"linear_velocity", b.LinearVelocity, 3},
			{"angular_velocity", b.AngularVelocity, 3},
			{"impulse", b.Impulse, 3},
			{"impulse_offset", b.ImpulseOffset, 3},
		} {
			if len(v.vals) != 0 && len(v.vals) != v.n {
				return dynamo.Configf("body %s: %s needs %d components, got %d", b.Name, v.field, v.n, len(v.vals))
			}
		}
		if b.Mass < 0 {
			return dynamo.Configf("body %s: mass must not be negative, got %f", b.Name, b.Mass)
		}
	}
	if s.Track != "" && !seen[s.Track] {
		return dynamo.Configf("track: unknown body %q", s.Track)
	}
	return nil
}

func (l *LayerConfig) validate() error {
	if len(l.Object) == 0 {
		return dynamo.Configf("at least one object layer is required")
	}
	if len(l.BroadPhase) == 0 {
		return dynamo.Configf("at least one broad-phase layer is required")
	}
	objects := index(l.Object)
	if len(objects) != len(l.Object) {
		return dynamo.Configf("duplicate object layer name")
	}
	bps := index(l.BroadPhase)
	if len(bps) != len(l.BroadPhase) {
		return dynamo.Configf("duplicate broad-phase layer name")
	}
	for obj, bp := range l.Map {
		if _, ok := objects[obj]; !ok {
			return dynamo.Configf("layer map: unknown object layer %q", obj)
		}
		if _, ok := bps[bp]; !ok {
			return dynamo.Configf("layer map: unknown broad-phase layer %q", bp)
		}
	}
	for _, p := range l.Pairs {
		if _, ok := objects[p.A]; !ok {
			return dynamo.Configf("pair: unknown object layer %q", p.A)
		}
		if _, ok := objects[p.B]; !ok {
			return dynamo.Configf("pair: unknown object layer %q", p.B)
		}
	}
	return nil
}

func index(names []string) map[string]int {
	m := make(map[string]int, len(names))
	for i, n := range names {
		m[n] = i
	}
	return m
}

// Floor is a static plane at height y on the nonmoving layer.
func Floor(name string, y float64) BodyConfig {
	return BodyConfig{
		Name:       name,
		Shape:      ShapeConfig{Type: "plane", Normal: []float64{0, 1, 0}, Offset: y},
		Motion:     "static",
		Layer:      "nonmoving",
		Activation: "dont_activate",
	}
}

// Ball is a dynamic sphere on the moving layer.
func Ball(name string, radius, x, y, z float64) BodyConfig {
	return BodyConfig{
		Name:     name,
		Shape:    ShapeConfig{Type: "sphere", Radius: radius},
		Motion:   "dynamic",
		Layer:    "moving",
		Position: []float64{x, y, z},
	}
}

// Cube is a dynamic box with equal half extents on the moving layer.
func Cube(name string, half, x, y, z float64) BodyConfig {
	return BodyConfig{
		Name:     name,
		Shape:    ShapeConfig{Type: "box", HalfExtent: []float64{half, half, half}},
		Motion:   "dynamic",
		Layer:    "moving",
		Position: []float64{x, y, z},
	}
}

// Pinned turns b into a static body on the nonmoving layer.
func Pinned(b BodyConfig) BodyConfig {
	b.Motion = "static"
	b.Layer = "nonmoving"
	b.Activation = "dont_activate"
	return b
}

func Float(v float64) *float64 { return &v }
func Bool(v bool) *bool        { return &v }
