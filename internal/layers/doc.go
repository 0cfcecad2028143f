// Package layers holds collision filtering: object layers, broad-phase
// layers, the mapping between them, the symmetric pair filter and the
// precomputed broad-phase router.
//
// Typical setup:
//
//	reg, _ := layers.NewRegistry(2, 1)
//	reg.Map(Moving, 0).Map(NonMoving, 0)
//	reg.EnablePair(Moving, Moving)
//	reg.EnablePair(Moving, NonMoving)
//	if err := reg.Freeze(); err != nil { ... }
//	router, _ := layers.NewRouter(reg)
//
// A Registry is mutable only until Freeze. A Router is built from a frozen
// Registry and never rebuilt.
package layers
