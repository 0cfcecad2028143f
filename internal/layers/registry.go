package layers

import (
	"fmt"
	"math"

	"github.com/san-kum/rigidsim/internal/dynamo"
)

// ObjectLayer is the semantic collision category of a body.
type ObjectLayer uint16

// BroadPhaseLayer is the coarse spatial bucket an object layer is sorted into.
type BroadPhaseLayer uint8

const unmapped = -1

// Registry declares object and broad-phase layers, the object to broad-phase
// mapping and the pair filter. It is built once, frozen, and read-only after.
type Registry struct {
	numObj int
	numBP  int

	mapping []int
	pairs   *PairFilter

	objNames []string
	bpNames  []string

	frozen bool
	err    error
}

// NewRegistry fixes the layer cardinalities.
func NewRegistry(numObjectLayers, numBroadPhaseLayers int) (*Registry, error) {
	if numObjectLayers < 1 || numObjectLayers > math.MaxUint16+1 {
		return nil, dynamo.Configf("object layer count must be in [1, %d], got %d", math.MaxUint16+1, numObjectLayers)
	}
	if numBroadPhaseLayers < 1 || numBroadPhaseLayers > math.MaxUint8+1 {
		return nil, dynamo.Configf("broad-phase layer count must be in [1, %d], got %d", math.MaxUint8+1, numBroadPhaseLayers)
	}

	mapping := make([]int, numObjectLayers)
	for i := range mapping {
		mapping[i] = unmapped
	}

	return &Registry{
		numObj:   numObjectLayers,
		numBP:    numBroadPhaseLayers,
		mapping:  mapping,
		pairs:    newPairFilter(numObjectLayers),
		objNames: make([]string, numObjectLayers),
		bpNames:  make([]string, numBroadPhaseLayers),
	}, nil
}

// MapLayer assigns obj to bp. Each object layer is mapped exactly once.
func (r *Registry) MapLayer(obj ObjectLayer, bp BroadPhaseLayer) error {
	if r.frozen {
		return dynamo.Configf("registry is frozen")
	}
	if err := r.checkObject(obj); err != nil {
		return err
	}
	if int(bp) >= r.numBP {
		return dynamo.Configf("broad-phase layer %d out of range [0, %d)", bp, r.numBP)
	}
	if r.mapping[obj] != unmapped {
		return dynamo.Configf("object layer %d already mapped to broad-phase layer %d", obj, r.mapping[obj])
	}
	r.mapping[obj] = int(bp)
	return nil
}

// Map is the chaining form of MapLayer. The first error is kept and reported
// by Freeze.
func (r *Registry) Map(obj ObjectLayer, bp BroadPhaseLayer) *Registry {
	if r.err == nil {
		r.err = r.MapLayer(obj, bp)
	}
	return r
}

// SetPairEnabled writes both (a,b) and (b,a).
func (r *Registry) SetPairEnabled(a, b ObjectLayer, enabled bool) error {
	if r.frozen {
		return dynamo.Configf("registry is frozen")
	}
	if err := r.checkObject(a); err != nil {
		return err
	}
	if err := r.checkObject(b); err != nil {
		return err
	}
	r.pairs.set(int(a), int(b), enabled)
	return nil
}

// EnablePair lets bodies on a and b collide.
func (r *Registry) EnablePair(a, b ObjectLayer) error { return r.SetPairEnabled(a, b, true) }

// DisablePair stops bodies on a and b from colliding.
func (r *Registry) DisablePair(a, b ObjectLayer) error { return r.SetPairEnabled(a, b, false) }

// Freeze checks that every object layer is mapped and makes the registry
// read-only. Freezing twice is a no-op.
func (r *Registry) Freeze() error {
	if r.frozen {
		return nil
	}
	if r.err != nil {
		return r.err
	}
	for obj, bp := range r.mapping {
		if bp == unmapped {
			return dynamo.Configf("object layer %d (%s) has no broad-phase mapping", obj, r.ObjectLayerName(ObjectLayer(obj)))
		}
	}
	r.frozen = true
	return nil
}

// Frozen reports whether Freeze has succeeded.
func (r *Registry) Frozen() bool { return r.frozen }

// NumObjectLayers is the object layer count given to NewRegistry.
func (r *Registry) NumObjectLayers() int { return r.numObj }

// NumBroadPhaseLayers is the broad-phase layer count given to NewRegistry.
func (r *Registry) NumBroadPhaseLayers() int { return r.numBP }

// BroadPhaseLayerOf returns the mapping of obj. ok is false for unmapped or
// out-of-range layers.
func (r *Registry) BroadPhaseLayerOf(obj ObjectLayer) (bp BroadPhaseLayer, ok bool) {
	if int(obj) >= r.numObj || r.mapping[obj] == unmapped {
		return 0, false
	}
	return BroadPhaseLayer(r.mapping[obj]), true
}

// Allowed reports whether bodies on a and b may collide. Out-of-range layers
// are never allowed.
func (r *Registry) Allowed(a, b ObjectLayer) bool {
	if int(a) >= r.numObj || int(b) >= r.numObj {
		return false
	}
	return r.pairs.Allowed(int(a), int(b))
}

// Pairs exposes the read-only pair filter.
func (r *Registry) Pairs() *PairFilter { return r.pairs }

// ValidObject reports whether obj is within the declared range.
func (r *Registry) ValidObject(obj ObjectLayer) bool { return int(obj) < r.numObj }

func (r *Registry) checkObject(obj ObjectLayer) error {
	if int(obj) >= r.numObj {
		return dynamo.Configf("object layer %d out of range [0, %d)", obj, r.numObj)
	}
	return nil
}

// SetObjectLayerName gives obj a display name. Names are fixed at Freeze.
func (r *Registry) SetObjectLayerName(obj ObjectLayer, name string) error {
	if r.frozen {
		return dynamo.Configf("registry is frozen")
	}
	if err := r.checkObject(obj); err != nil {
		return err
	}
	r.objNames[obj] = name
	return nil
}

func (r *Registry) SetBroadPhaseLayerName(bp BroadPhaseLayer, name string) error {
	if r.frozen {
		return dynamo.Configf("registry is frozen")
	}
	if int(bp) >= r.numBP {
		return dynamo.Configf("broad-phase layer %d out of range [0, %d)", bp, r.numBP)
	}
	r.bpNames[bp] = name
	return nil
}

// ObjectLayerName falls back to the numeric id when no name was set.
func (r *Registry) ObjectLayerName(obj ObjectLayer) string {
	if int(obj) < r.numObj && r.objNames[obj] != "" {
		return r.objNames[obj]
	}
	return fmt.Sprintf("layer-%d", obj)
}

func (r *Registry) BroadPhaseLayerName(bp BroadPhaseLayer) string {
	if int(bp) < r.numBP && r.bpNames[bp] != "" {
		return r.bpNames[bp]
	}
	return fmt.Sprintf("bp-%d", bp)
}

// ObjectLayerByName looks up a layer by its display name.
func (r *Registry) ObjectLayerByName(name string) (ObjectLayer, bool) {
	for i, n := range r.objNames {
		if n == name {
			return ObjectLayer(i), true
		}
	}
	return 0, false
}
