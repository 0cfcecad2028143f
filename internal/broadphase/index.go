// Package broadphase buckets bodies by broad-phase layer and finds candidate
// pairs by sort-and-sweep on the x axis.
package broadphase

import (
	"cmp"
	"slices"

	"github.com/san-kum/rigidsim/internal/layers"
	"github.com/san-kum/rigidsim/internal/shape"
)

// Entry is one body as seen by the broad phase.
type Entry struct {
	ID     uint32
	Object layers.ObjectLayer
	Bounds shape.AABB
	// Moving is true for active dynamic or kinematic bodies. Two non-moving
	// entries never form a pair.
	Moving bool
}

// Pair is a candidate collision, A < B.
type Pair struct {
	A, B uint32
}

type Index struct {
	reg     *layers.Registry
	buckets [][]Entry
	count   int
}

func NewIndex(reg *layers.Registry) *Index {
	return &Index{
		reg:     reg,
		buckets: make([][]Entry, reg.NumBroadPhaseLayers()),
	}
}

// Reset empties every bucket, keeping capacity.
func (ix *Index) Reset() {
	for i := range ix.buckets {
		ix.buckets[i] = ix.buckets[i][:0]
	}
	ix.count = 0
}

// Insert adds e to the bucket of its object layer. Entries on unmapped
// layers are dropped and reported as false.
func (ix *Index) Insert(e Entry) bool {
	bp, ok := ix.reg.BroadPhaseLayerOf(e.Object)
	if !ok {
		return false
	}
	ix.buckets[bp] = append(ix.buckets[bp], e)
	ix.count++
	return true
}

// Build sorts every bucket. Call after the last Insert.
func (ix *Index) Build() {
	for _, b := range ix.buckets {
		slices.SortFunc(b, func(x, y Entry) int {
			if c := cmp.Compare(x.Bounds.Min[0], y.Bounds.Min[0]); c != 0 {
				return c
			}
			return cmp.Compare(x.ID, y.ID)
		})
	}
}

func (ix *Index) Len() int { return ix.count }

// Bucket returns the sorted entries of one broad-phase layer.
func (ix *Index) Bucket(bp layers.BroadPhaseLayer) []Entry {
	if int(bp) >= len(ix.buckets) {
		return nil
	}
	return ix.buckets[bp]
}

// FindPairs appends every overlapping candidate pair to buf. Bucket pairs
// rejected by the router are skipped before any bounds test. The result is
// sorted by (A, B).
func (ix *Index) FindPairs(router *layers.Router, buf []Pair) []Pair {
	start := len(buf)
	n := len(ix.buckets)
	for a := 0; a < n; a++ {
		for b := a; b < n; b++ {
			if !router.ShouldCollide(layers.BroadPhaseLayer(a), layers.BroadPhaseLayer(b)) {
				continue
			}
			if a == b {
				buf = sweepSelf(router, ix.buckets[a], buf)
			} else {
				buf = sweepCross(router, ix.buckets[a], ix.buckets[b], buf)
			}
		}
	}
	slices.SortFunc(buf[start:], func(x, y Pair) int {
		if c := cmp.Compare(x.A, y.A); c != 0 {
			return c
		}
		return cmp.Compare(x.B, y.B)
	})
	return buf
}

func candidate(router *layers.Router, x, y *Entry) bool {
	if !x.Moving && !y.Moving {
		return false
	}
	if !router.ObjectPairAllowed(x.Object, y.Object) {
		return false
	}
	return x.Bounds.Overlaps(y.Bounds)
}

func appendPair(buf []Pair, x, y uint32) []Pair {
	if x > y {
		x, y = y, x
	}
	return append(buf, Pair{A: x, B: y})
}

func sweepSelf(router *layers.Router, es []Entry, buf []Pair) []Pair {
	for i := range es {
		maxX := es[i].Bounds.Max[0]
		for j := i + 1; j < len(es) && es[j].Bounds.Min[0] <= maxX; j++ {
			if candidate(router, &es[i], &es[j]) {
				buf = appendPair(buf, es[i].ID, es[j].ID)
			}
		}
	}
	return buf
}

func sweepCross(router *layers.Router, as, bs []Entry, buf []Pair) []Pair {
	i, j := 0, 0
	for i < len(as) && j < len(bs) {
		if as[i].Bounds.Min[0] <= bs[j].Bounds.Min[0] {
			maxX := as[i].Bounds.Max[0]
			for k := j; k < len(bs) && bs[k].Bounds.Min[0] <= maxX; k++ {
				if candidate(router, &as[i], &bs[k]) {
					buf = appendPair(buf, as[i].ID, bs[k].ID)
				}
			}
			i++
		} else {
			maxX := bs[j].Bounds.Max[0]
			for k := i; k < len(as) && as[k].Bounds.Min[0] <= maxX; k++ {
				if candidate(router, &as[k], &bs[j]) {
					buf = appendPair(buf, as[k].ID, bs[j].ID)
				}
			}
			j++
		}
	}
	return buf
}

// CollideAABox appends the IDs of entries overlapping box whose broad-phase
// layer passes bpFilter and whose object layer passes objFilter. A nil
// bpFilter accepts every layer.
func (ix *Index) CollideAABox(box shape.AABB, bpFilter func(layers.BroadPhaseLayer) bool, objFilter layers.ObjectLayerFilter, buf []uint32) []uint32 {
	if objFilter == nil {
		objFilter = layers.AllObjectLayers
	}
	start := len(buf)
	for bp, es := range ix.buckets {
		if bpFilter != nil && !bpFilter(layers.BroadPhaseLayer(bp)) {
			continue
		}
		for i := range es {
			if es[i].Bounds.Min[0] > box.Max[0] {
				break
			}
			if objFilter.ShouldCollide(es[i].Object) && es[i].Bounds.Overlaps(box) {
				buf = append(buf, es[i].ID)
			}
		}
	}
	slices.Sort(buf[start:])
	return buf
}
