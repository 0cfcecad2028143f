// Package sim advances bodies in fixed steps.
//
// A [System] combines a frozen [layers.Router], a [body.Registry] and a
// fixed-size worker pool. Each call to [System.Step] runs, per collision
// substep:
//
//  1. gravity and damping on active dynamic bodies (parallel)
//  2. world bounds (parallel) and broad phase with router pruning
//  3. narrow phase over candidate pairs (parallel)
//  4. contact response by sequential impulses (serial, pair order)
//  5. position integration (parallel) and sleeping
//
// Pre-physics tick listeners run before the first substep, contact and
// post-physics listeners after the last. All of them run on the caller's
// goroutine. Step blocks until every worker job has drained.
//
// Results do not depend on the worker count.
package sim
