// Package dynamo provides core primitives shared by the simulation packages.
//
//   - [Transform]: rigid pose (position + orientation)
//   - [Pool]: fixed-size worker pool used inside a step
//   - [ErrConfiguration], [ErrUsage], [ErrInvalidState]: error taxonomy
//   - [BodyError]: per-body error context
//
// # Errors
//
// Configuration and usage errors are returned synchronously from the call
// that triggered them and wrap one of the sentinels, so callers test them
// with errors.Is:
//
//	if errors.Is(err, dynamo.ErrUsage) {
//	    // wrong motion kind for this operation
//	}
//
// # Thread Safety
//
// A Pool may be shared, but the simulation types built on top of it are
// single-writer: do not mutate bodies while a step is in flight.
package dynamo
