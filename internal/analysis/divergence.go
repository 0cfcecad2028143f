package analysis

import (
	"github.com/san-kum/rigidsim/internal/dynamo"
	"github.com/san-kum/rigidsim/internal/storage"
)

// DivergenceReport is the largest distance between matching samples of
// two trajectories.
type DivergenceReport struct {
	Max      float64
	Body     string
	Step     int
	Compared int
}

// Divergence compares two trajectories sample by sample. They must hold
// the same bodies in the same order; extra trailing steps in the longer
// one are ignored.
func Divergence(a, b *storage.Trajectory) (DivergenceReport, error) {
	var r DivergenceReport
	n := min(len(a.Samples), len(b.Samples))
	for i := 0; i < n; i++ {
		sa, sb := a.Samples[i], b.Samples[i]
		if sa.Body != sb.Body || sa.Step != sb.Step {
			return r, dynamo.Usagef("trajectories differ in layout at sample %d (%s@%d vs %s@%d)",
				i, sa.Body, sa.Step, sb.Body, sb.Step)
		}
		d := sa.Position.Sub(sb.Position).Len()
		if d > r.Max {
			r.Max = d
			r.Body = sa.Body
			r.Step = sa.Step
		}
		r.Compared++
	}
	return r, nil
}
