package layers

import "github.com/san-kum/rigidsim/internal/dynamo"

// Router answers, in O(1), whether two broad-phase layers could hold a
// colliding pair. Tables are computed once from a frozen Registry.
type Router struct {
	reg     *Registry
	numBP   int
	bpPair  []bool
	objVsBP []bool
}

// NewRouter precomputes the broad-phase pair table and the object versus
// broad-phase table. The registry must be frozen.
func NewRouter(reg *Registry) (*Router, error) {
	if reg == nil {
		return nil, dynamo.Configf("nil layer registry")
	}
	if !reg.Frozen() {
		return nil, dynamo.Configf("layer registry must be frozen before building a router")
	}

	nObj, nBP := reg.numObj, reg.numBP
	r := &Router{
		reg:     reg,
		numBP:   nBP,
		bpPair:  make([]bool, nBP*nBP),
		objVsBP: make([]bool, nObj*nBP),
	}

	for a := 0; a < nObj; a++ {
		bpA := reg.mapping[a]
		for b := 0; b < nObj; b++ {
			if !reg.pairs.Allowed(a, b) {
				continue
			}
			bpB := reg.mapping[b]
			r.bpPair[bpA*nBP+bpB] = true
			r.objVsBP[a*nBP+bpB] = true
		}
	}
	return r, nil
}

// ShouldCollide reports whether any allowed object pair maps to (a, b).
func (r *Router) ShouldCollide(a, b BroadPhaseLayer) bool {
	if int(a) >= r.numBP || int(b) >= r.numBP {
		return false
	}
	return r.bpPair[int(a)*r.numBP+int(b)]
}

// ObjectVsBroadPhase reports whether a body on obj could collide with
// anything stored in bp.
func (r *Router) ObjectVsBroadPhase(obj ObjectLayer, bp BroadPhaseLayer) bool {
	if int(obj) >= r.reg.numObj || int(bp) >= r.numBP {
		return false
	}
	return r.objVsBP[int(obj)*r.numBP+int(bp)]
}

func (r *Router) ObjectPairAllowed(a, b ObjectLayer) bool {
	return r.reg.Allowed(a, b)
}

func (r *Router) Registry() *Registry { return r.reg }
