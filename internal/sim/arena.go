package sim

import (
	"github.com/san-kum/rigidsim/internal/broadphase"
	"github.com/san-kum/rigidsim/internal/shape"
)

// Arena holds per-substep scratch buffers. Reset truncates everything while
// keeping capacity, so steady-state steps do not allocate. Nothing handed
// out by an Arena may be kept past the step that requested it.
type Arena struct {
	bounds      []shape.AABB
	pairs       []broadphase.Pair
	manifolds   []shape.Manifold
	hits        []bool
	constraints []constraint
	resets      int
}

func NewArena() *Arena {
	return &Arena{}
}

func (a *Arena) Reset() {
	a.bounds = a.bounds[:0]
	a.pairs = a.pairs[:0]
	a.manifolds = a.manifolds[:0]
	a.hits = a.hits[:0]
	a.constraints = a.constraints[:0]
	a.resets++
}

// Resets counts calls to Reset.
func (a *Arena) Resets() int { return a.resets }

func (a *Arena) Bounds(n int) []shape.AABB {
	a.bounds = grow(a.bounds, n)
	return a.bounds
}

func (a *Arena) Manifolds(n int) []shape.Manifold {
	a.manifolds = grow(a.manifolds, n)
	a.hits = grow(a.hits, n)
	return a.manifolds
}

func (a *Arena) Hits() []bool { return a.hits }

func grow[T any](s []T, n int) []T {
	if cap(s) < n {
		return make([]T, n)
	}
	return s[:n]
}
