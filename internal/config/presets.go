package config

import "sort"

func withBody(b BodyConfig, tune func(*BodyConfig)) BodyConfig {
	tune(&b)
	return b
}

func mass2(b *BodyConfig) { b.Mass = 2 }

var Presets = map[string]*Scene{
	"sport": DefaultScene(),
	"rigid_body": {
		Name:        "rigid_body",
		Description: "two balls, one pushed toward the other",
		Step:        StepConfig{Dt: DefaultDt, CollisionSteps: 1, Duration: 4},
		Gravity:     []float64{0, DefaultGravityY, 0},
		Speed:       0.1,
		Track:       "ball2",
		Layers:      TwoLayers(),
		Bodies: []BodyConfig{
			withBody(Ball("ball1", 1, 1, 1, 0), mass2),
			withBody(Ball("ball2", 1, 5, 1, 0), func(b *BodyConfig) {
				b.Mass = 2
				b.Impulse = []float64{-25, 0, 0}
			}),
		},
	},
	"static_body": {
		Name:          "static_body",
		Description:   "a dynamic ball drops onto a static one",
		Step:          StepConfig{Dt: DefaultDt, CollisionSteps: 1, Duration: 4},
		Gravity:       []float64{0, DefaultGravityY, 0},
		AllowSleeping: true,
		Speed:         1,
		Track:         "dyna_ball",
		Layers:        TwoLayers(),
		Bodies: []BodyConfig{
			withBody(Ball("dyna_ball", 1, 0, 4, 0), mass2),
			Pinned(withBody(Ball("stat_ball", 1, 0.1, 0, 0), mass2)),
		},
	},
	"contact_response": {
		Name:          "contact_response",
		Description:   "a ball rests on a box until it becomes a sensor",
		Step:          StepConfig{Dt: DefaultDt, CollisionSteps: 1, Duration: 4},
		Gravity:       []float64{0, DefaultGravityY, 0},
		AllowSleeping: true,
		Speed:         1,
		Track:         "ball",
		Layers:        TwoLayers(),
		Bodies: []BodyConfig{
			Pinned(Cube("box", 3, 0, -4, 0)),
			withBody(Ball("ball", 1, 0, 4, 0), func(b *BodyConfig) {
				b.Mass = 2
				b.AllowSleeping = Bool(false)
			}),
		},
	},
	"kinematics": {
		Name:          "kinematics",
		Description:   "a kinematic ball orbits and pushes a dynamic one",
		Step:          StepConfig{Dt: DefaultDt, CollisionSteps: 1, Duration: 4},
		Gravity:       []float64{0, DefaultGravityY, 0},
		AllowSleeping: true,
		Speed:         1,
		Track:         "dyna_ball",
		Layers:        TwoLayers(),
		Bodies: []BodyConfig{
			withBody(Ball("dyna_ball", 1, 0, 4, 0), mass2),
			withBody(Ball("kine_ball", 1, 0, 0, 0), func(b *BodyConfig) {
				b.Mass = 2
				b.Motion = "kinematic"
			}),
		},
	},
	"damping": {
		Name:        "damping",
		Description: "four cubes with different damping, same off-centre impulse",
		Step:        StepConfig{Dt: DefaultDt, CollisionSteps: 1, Duration: 4},
		Gravity:     []float64{0, 0, 0},
		Speed:       1,
		Track:       "cube0",
		Layers: LayerConfig{
			Object:     []string{"moving", "nonmoving"},
			BroadPhase: []string{"all"},
			Map:        map[string]string{"moving": "all", "nonmoving": "all"},
			Pairs: []PairConfig{
				{A: "moving", B: "moving", Enabled: true},
				{A: "moving", B: "nonmoving", Enabled: true},
				{A: "nonmoving", B: "nonmoving", Enabled: true},
			},
		},
		Bodies: []BodyConfig{
			dampedCube("cube0", 0, 2, 0, 0),
			dampedCube("cube1", 4, 2, 0.9, 0),
			dampedCube("cube2", 0, -2, 0, 0.9),
			dampedCube("cube3", 4, -2, 0.9, 0.9),
		},
	},
	"deactivation": {
		Name:          "deactivation",
		Description:   "the support vanishes once the cube falls asleep",
		Step:          StepConfig{Dt: DefaultDt, CollisionSteps: 1, Duration: 6},
		Gravity:       []float64{0, DefaultGravityY, 0},
		AllowSleeping: true,
		Speed:         1,
		Track:         "dynamic_cube",
		Layers:        TwoLayers(),
		Bodies: []BodyConfig{
			withBody(Cube("dynamic_cube", 0.5, 0, 4, 0), mass2),
			Pinned(withBody(Cube("support_cube", 1, 0, 0, 0), mass2)),
			Pinned(withBody(Ball("bottom_ball", 0.5, 0, -2, 0), mass2)),
		},
	},
	"ccd": {
		Name:          "ccd",
		Description:   "two fast balls and a thin disc, four collision steps",
		Step:          StepConfig{Dt: DefaultDt, CollisionSteps: 4, Duration: 2},
		Gravity:       []float64{0, -100, 0},
		AllowSleeping: true,
		Speed:         0.1,
		Track:         "ccd_ball",
		Layers:        TwoLayers(),
		Bodies: []BodyConfig{
			withBody(Ball("ccd_ball", 0.1, -1, 4, 0), mass2),
			withBody(Ball("control_ball", 0.1, 1, 4, 0), mass2),
			{
				Name:       "disc",
				Shape:      ShapeConfig{Type: "box", HalfExtent: []float64{2, 0.025, 2}},
				Motion:     "static",
				Layer:      "nonmoving",
				Activation: "dont_activate",
			},
		},
	},
	"sensor": {
		Name:          "sensor",
		Description:   "a static sensor bubble disappears when something walks in",
		Step:          StepConfig{Dt: DefaultDt, CollisionSteps: 1, Duration: 8},
		Gravity:       []float64{0, DefaultGravityY, 0},
		AllowSleeping: true,
		Speed:         1,
		Track:         "walker",
		Layers:        TwoLayers(),
		Bodies: []BodyConfig{
			Floor("ground", -2),
			walker(),
			{
				Name:       "sensor",
				Shape:      ShapeConfig{Type: "sphere", Radius: 10},
				Motion:     "static",
				Layer:      "nonmoving",
				Activation: "dont_activate",
				Position:   []float64{15, 0, -13},
				Sensor:     true,
			},
		},
	},
	"broadphase": {
		Name:          "broadphase",
		Description:   "an axis-aligned box query lights up when the walker enters it",
		Step:          StepConfig{Dt: DefaultDt, CollisionSteps: 1, Duration: 8},
		Gravity:       []float64{0, DefaultGravityY, 0},
		AllowSleeping: true,
		Speed:         1,
		Track:         "walker",
		Layers:        TwoLayers(),
		Bodies: []BodyConfig{
			Floor("ground", -2),
			walker(),
		},
	},
	"hover": {
		Name:          "hover",
		Description:   "a feedback controller lifts the ball to 2 m and holds it there",
		Step:          StepConfig{Dt: DefaultDt, CollisionSteps: 1, Duration: 5},
		Gravity:       []float64{0, DefaultGravityY, 0},
		AllowSleeping: false,
		Speed:         1,
		Track:         "ball",
		Layers:        TwoLayers(),
		Bodies: []BodyConfig{
			Floor("floor", -1),
			withBody(Ball("ball", 0.3, 0, 0, 0), func(b *BodyConfig) {
				b.Mass = 1
				b.AllowSleeping = Bool(false)
			}),
		},
	},
	"scripted": {
		Name:          "scripted",
		Description:   "the sport ball, kicked upward by a script once it lands",
		Step:          StepConfig{Dt: DefaultDt, CollisionSteps: 1, Duration: 3},
		Gravity:       []float64{0, DefaultGravityY, 0},
		AllowSleeping: false,
		Speed:         1,
		Track:         "ball",
		Layers:        TwoLayers(),
		Bodies: []BodyConfig{
			Floor("floor", -1),
			withBody(Ball("ball", 0.3, 0, 0, 0), func(b *BodyConfig) { b.Mass = 1 }),
		},
		Script: `if phase == "post" && now > 1 && !state.kicked {
	engine.impulse("ball", 0, 4, 0)
	state.kicked = true
}
`,
	},
}

func dampedCube(name string, x, y, angular, linear float64) BodyConfig {
	b := Cube(name, 0.5, x, y, 0)
	b.Mass = 2
	b.AllowSleeping = Bool(false)
	b.AngularDamping = Float(angular)
	b.LinearDamping = Float(linear)
	b.Impulse = []float64{-1, 0, 0}
	b.ImpulseOffset = []float64{0, 1, 1}
	return b
}

// walker is a kinematic ball steered by key presses.
func walker() BodyConfig {
	b := Ball("walker", 3, 0, 1, 0)
	b.Motion = "kinematic"
	b.Mass = 2
	return b
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(name string) *Scene {
	sc, ok := Presets[name]
	if !ok {
		return nil
	}
	return sc.Clone()
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
