package layers

// PairFilter is a symmetric boolean matrix over object layers. Every write
// sets both cells, so Allowed(a,b) == Allowed(b,a) holds by construction.
type PairFilter struct {
	n     int
	cells []bool
}

func newPairFilter(n int) *PairFilter {
	return &PairFilter{n: n, cells: make([]bool, n*n)}
}

func (f *PairFilter) set(a, b int, enabled bool) {
	f.cells[a*f.n+b] = enabled
	f.cells[b*f.n+a] = enabled
}

func (f *PairFilter) Allowed(a, b int) bool {
	return f.cells[a*f.n+b]
}

func (f *PairFilter) Size() int { return f.n }

// ObjectLayerFilter selects object layers for queries.
type ObjectLayerFilter interface {
	ShouldCollide(ObjectLayer) bool
}

// SpecifiedObjectLayer passes only bodies on layers the given layer may
// collide with.
func SpecifiedObjectLayer(reg *Registry, l ObjectLayer) ObjectLayerFilter {
	return specified{reg: reg, layer: l}
}

type specified struct {
	reg   *Registry
	layer ObjectLayer
}

func (s specified) ShouldCollide(other ObjectLayer) bool {
	return s.reg.Allowed(s.layer, other)
}

// AllObjectLayers passes every layer.
var AllObjectLayers ObjectLayerFilter = allLayers{}

type allLayers struct{}

func (allLayers) ShouldCollide(ObjectLayer) bool { return true }

// ObjectLayerFunc adapts a function to ObjectLayerFilter.
type ObjectLayerFunc func(ObjectLayer) bool

func (f ObjectLayerFunc) ShouldCollide(l ObjectLayer) bool { return f(l) }
