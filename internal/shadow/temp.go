// Package shadow implements the shadow containers (spec.md component C2):
// fixed-arity shadow-temp tuples, the per-thread register-shadow map (TS),
// and the memory-shadow map (MS), plus the per-arity free-list ShadowTemp
// recycling through.
package shadow

import (
	engerrors "shadowprobe/internal/errors"
	"shadowprobe/internal/shadowval"
)

// Temp is spec.md's ShadowTemp: a fixed-arity tuple of shadow values
// attached to one guest IR temporary. Arity must be 1, 2, or 4 per spec §3.
type Temp struct {
	Values []*shadowval.Value
}

// NumBlocks returns the temp's arity.
func (t *Temp) NumBlocks() int { return len(t.Values) }

// tempPool recycles Temp tuples by arity, mirroring newShadowTemp's
// freedTemps[num_vals-1] stacks in the original (value-shadowstate.c):
// unlike ShadowValue, ShadowTemp genuinely needs one free-list per arity
// since the tuple's backing slice length is fixed at allocation.
type tempPool struct {
	free [5][]*Temp // indexed directly by arity (1,2,4); 0 and 3 unused
}

func newTempPool() *tempPool {
	return &tempPool{}
}

func (tp *tempPool) alloc(arity int) *Temp {
	engerrors.Invariant(arity == 1 || arity == 2 || arity == 4, engerrors.ErrTempOutOfRange,
		"invalid shadow temp arity %d", arity)
	free := tp.free[arity]
	n := len(free)
	if n > 0 {
		t := free[n-1]
		tp.free[arity] = free[:n-1]
		for i := range t.Values {
			t.Values[i] = nil
		}
		return t
	}
	return &Temp{Values: make([]*shadowval.Value, arity)}
}

func (tp *tempPool) release(t *Temp) {
	arity := len(t.Values)
	tp.free[arity] = append(tp.free[arity], t)
}
