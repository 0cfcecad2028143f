package metrics

import (
	"github.com/san-kum/rigidsim/internal/body"
	"github.com/san-kum/rigidsim/internal/dynamo"
	"github.com/san-kum/rigidsim/internal/sim"
)

// Sanity is the fraction of steps in which every body had a finite
// transform and a speed below the threshold. It does not repair anything;
// callers decide what to do with a failing run.
type Sanity struct {
	name       string
	maxSpeed   float64
	violations int
	samples    int
	firstBad   error
}

func NewSanity(maxSpeed float64) *Sanity {
	return &Sanity{
		name:     "sanity",
		maxSpeed: maxSpeed,
	}
}

func (s *Sanity) Name() string {
	return s.name
}

func (s *Sanity) Observe(sys *sim.System) {
	s.samples++
	bad := false
	if err := sys.Validate(); err != nil {
		bad = true
		if s.firstBad == nil {
			s.firstBad = err
		}
	}
	sys.Bodies().Each(func(b *body.Body) {
		if bad || !b.Added {
			return
		}
		if s.maxSpeed > 0 && b.LinearVelocity.Len() > s.maxSpeed {
			bad = true
			if s.firstBad == nil {
				s.firstBad = &dynamo.BodyError{Body: uint32(b.ID), Op: "sanity", Wrapped: dynamo.SimError{
					Time: sys.Time(), Step: sys.StepCount(), Err: dynamo.ErrInvalidState,
				}}
			}
		}
	})
	if bad {
		s.violations++
	}
}

func (s *Sanity) Value() float64 {
	if s.samples == 0 {
		return 1.0
	}
	return 1.0 - float64(s.violations)/float64(s.samples)
}

// Err returns the first violation seen since the last Reset.
func (s *Sanity) Err() error { return s.firstBad }

func (s *Sanity) Reset() {
	s.violations = 0
	s.samples = 0
	s.firstBad = nil
}
