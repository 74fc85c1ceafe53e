package shadowval

import "shadowprobe/internal/hostir"

// Expr is the marker interface a value's symbolic expression node must
// implement. ShadowValue only needs to carry and compare the expression,
// never build or generalize it -- that lives in package expr, which
// depends on shadowval (not the reverse), so the dependency is expressed
// here as an interface instead of a concrete type to avoid an import
// cycle between the leaf value pool and the expression engine built on
// top of it.
type Expr interface {
	// ExprDouble is the expression's own reduced-to-double value. The
	// var-map leaf-equality check in package expr does not call it; it
	// compares leaves through their Value's Real.
	ExprDouble() float64
}

// Influence is the marker interface for an entry in a value's influence
// set: spec.md's ShadowOpInfo, named here only by the comparison key it
// exposes so shadowval need not import the executor/expression packages
// that define the real type.
type Influence interface {
	InfluenceKey() string
}

// InfluenceSet is a deduplicated, order-preserving list of Influences.
type InfluenceSet struct {
	seen    map[string]struct{}
	entries []Influence
}

// NewInfluenceSet returns an empty set.
func NewInfluenceSet() *InfluenceSet {
	return &InfluenceSet{seen: make(map[string]struct{})}
}

// Add inserts inf if not already present.
func (s *InfluenceSet) Add(inf Influence) {
	k := inf.InfluenceKey()
	if _, ok := s.seen[k]; ok {
		return
	}
	s.seen[k] = struct{}{}
	s.entries = append(s.entries, inf)
}

// Union adds every entry of other into s.
func (s *InfluenceSet) Union(other *InfluenceSet) {
	if other == nil {
		return
	}
	for _, e := range other.entries {
		s.Add(e)
	}
}

// Entries returns the set's members in insertion order.
func (s *InfluenceSet) Entries() []Influence {
	return s.entries
}

// Clear empties the set in place, used when a value is disowned back to
// the free-list (spec §4.1: disown clears the influence set).
func (s *InfluenceSet) Clear() {
	for k := range s.seen {
		delete(s.seen, k)
	}
	s.entries = s.entries[:0]
}

// Clone returns a deep (but entry-sharing) copy of s, used by the
// compensating add/sub short-circuit which "clones the non-zero operand's
// influences" (spec §4.4).
func (s *InfluenceSet) Clone() *InfluenceSet {
	c := NewInfluenceSet()
	if s == nil {
		return c
	}
	for _, e := range s.entries {
		c.Add(e)
	}
	return c
}

// Value is spec.md's ShadowValue: a reference-counted record pairing an
// arbitrary-precision Real with a float-kind tag, an optional symbolic
// expression, and an optional influence set.
type Value struct {
	Real       *Real
	Kind       hostir.ValueKind
	Expr       Expr
	Influences *InfluenceSet
	refCount   uint32
}

// RefCount returns the value's current reference count.
func (v *Value) RefCount() uint32 { return v.refCount }
