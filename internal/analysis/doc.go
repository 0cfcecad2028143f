// Package analysis inspects stored trajectories.
//
//   - [NewPhasePortrait]: height against vertical velocity for one body
//   - [FindBounces]: impacts, where the vertical velocity turns from falling to rising
//   - [Restitution]: mean speed ratio between consecutive bounces
//   - [DominantFrequency]: strongest non-DC frequency of a sampled signal
//   - [Divergence]: largest position difference between two runs of the same scene
//
// # Determinism
//
// Two runs of one scene with different worker counts must not diverge:
//
//	d, err := analysis.Divergence(a, b)
//	if err == nil && d.Max == 0 {
//	    // identical
//	}
package analysis
