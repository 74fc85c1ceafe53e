package shadowval

import (
	"shadowprobe/internal/hostir"

	engerrors "shadowprobe/internal/errors"
)

// PoolStats reports live/free counts, exposed for the --print-pool-stats
// diagnostic (SPEC_FULL.md's supplemental to C1, grounded in Herbgrind's
// PRINT_VALUE_MOVES/PRINT_TEMP_MOVES traces).
type PoolStats struct {
	Live int
	Free int
}

// Pool is the reference-counted Real/Value pool (C1): a single free-list
// amortizes allocation, recycling Value boxes instead of freeing them.
// ShadowValue is always scalar, so unlike the arity-keyed free-lists
// ShadowTemp needs (package shadow, C2), one list suffices here -- see
// DESIGN.md, grounded on value-shadowstate.c's single freedVals stack.
type Pool struct {
	free []*Value
	live int
}

// NewPool returns an empty pool.
func NewPool() *Pool {
	return &Pool{}
}

// MakeValue allocates (or recycles) a Value initialized from a concrete
// double, at refCount 1. This is the only way a Value's Real is populated
// from a fresh leaf witness (spec §3's "real is initialized from a
// concrete double at leaf creation").
func (p *Pool) MakeValue(kind hostir.ValueKind, concrete float64) *Value {
	v := p.alloc()
	v.Real.SetFloat64(concrete)
	v.Kind = kind
	v.Expr = nil
	v.refCount = 1
	return v
}

// MakeBare allocates a Value of the given kind with a zero Real and no
// expression, used by callers (the executor building a result value
// before filling in its real/expr) that need the box before they have a
// double to seed it with. The caller must populate Real immediately:
// MakeBare sets Real to zero, which also clears any NaN a recycled box
// carried over.
func (p *Pool) MakeBare(kind hostir.ValueKind) *Value {
	v := p.alloc()
	v.Real.SetFloat64(0)
	v.Kind = kind
	v.Expr = nil
	v.refCount = 1
	return v
}

func (p *Pool) alloc() *Value {
	n := len(p.free)
	if n > 0 {
		v := p.free[n-1]
		p.free = p.free[:n-1]
		p.live++
		return v
	}
	p.live++
	return &Value{Real: zeroReal(), Influences: nil}
}

// Own increments v's reference count. Called whenever a pointer to v is
// installed in a new container slot (temp/TS/MS).
func (p *Pool) Own(v *Value) {
	if v == nil {
		return
	}
	v.refCount++
}

// Disown decrements v's reference count, returning the box to the
// free-list and clearing its influence set when the count reaches zero.
// The Real itself is left populated until MakeValue/MakeBare reuses the
// box (spec §4.1: "the Real is not re-initialized until make_value reuses
// the box").
func (p *Pool) Disown(v *Value) {
	if v == nil {
		return
	}
	engerrors.Invariant(v.refCount > 0, engerrors.ErrDoubleDisown, "disown on value with zero ref_count")
	v.refCount--
	if v.refCount > 0 {
		return
	}
	if v.Influences != nil {
		v.Influences.Clear()
	}
	v.Expr = nil
	p.live--
	p.free = append(p.free, v)
}

// Stats returns the live/free counts.
func (p *Pool) Stats() PoolStats {
	return PoolStats{Live: p.live, Free: len(p.free)}
}
