package metrics

import (
	"math"

	"github.com/san-kum/rigidsim/internal/body"
	"github.com/san-kum/rigidsim/internal/sim"
)

// TotalEnergy returns kinetic plus gravitational potential energy of every
// added dynamic body.
func TotalEnergy(s *sim.System) float64 {
	g := s.Gravity()
	e := 0.0
	s.Bodies().Each(func(b *body.Body) {
		if !b.Added || !b.IsDynamic() {
			return
		}
		e += b.KineticEnergy()
		e -= b.Mass() * b.GravityFactor * g.Dot(b.Transform.Position)
	})
	return e
}

// Energy is the mean kinetic energy per step.
type Energy struct {
	name    string
	samples int
	total   float64
}

func NewEnergy() *Energy {
	return &Energy{name: "kinetic_energy"}
}

func (e *Energy) Name() string { return e.name }

func (e *Energy) Observe(s *sim.System) {
	ke := 0.0
	s.Bodies().Each(func(b *body.Body) {
		if b.Added {
			ke += b.KineticEnergy()
		}
	})
	e.total += ke
	e.samples++
}

func (e *Energy) Value() float64 {
	if e.samples == 0 {
		return 0
	}
	return e.total / float64(e.samples)
}

func (e *Energy) Reset() {
	e.total = 0
	e.samples = 0
}

// EnergyDrift tracks the largest relative change of total energy from the
// first observed step.
type EnergyDrift struct {
	name     string
	initial  float64
	maxDrift float64
	samples  int
}

func NewEnergyDrift() *EnergyDrift {
	return &EnergyDrift{name: "energy_drift"}
}

func (e *EnergyDrift) Name() string { return e.name }

func (e *EnergyDrift) Observe(s *sim.System) {
	energy := TotalEnergy(s)
	if e.samples == 0 {
		e.initial = energy
	}
	e.samples++

	if e.initial != 0 {
		drift := math.Abs(energy-e.initial) / math.Abs(e.initial)
		e.maxDrift = math.Max(e.maxDrift, drift)
	}
}

func (e *EnergyDrift) Value() float64 {
	return e.maxDrift
}

func (e *EnergyDrift) Reset() {
	e.initial = 0
	e.maxDrift = 0
	e.samples = 0
}
