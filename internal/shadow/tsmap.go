package shadow

import (
	"shadowprobe/internal/hostir"
	"shadowprobe/internal/shadowval"
)

// RegisterMap is spec.md's TS: a map indexed by register-file byte
// offset, holding an optional shadow value. It is not keyed by thread:
// Containers holds one RegisterMap, shared by every guest thread. Doubles
// occupy two consecutive 4-byte slots with the second slot always nil
// (spec §3).
type RegisterMap struct {
	slots map[hostir.ByteOffset]*shadowval.Value
	pool  *shadowval.Pool
}

// NewRegisterMap returns an empty register-shadow map backed by pool for
// the ownership transfers TSSet performs.
func NewRegisterMap(pool *shadowval.Pool) *RegisterMap {
	return &RegisterMap{slots: make(map[hostir.ByteOffset]*shadowval.Value), pool: pool}
}

// Get returns the shadow value at off, or nil if the slot is empty.
func (r *RegisterMap) Get(off hostir.ByteOffset) *shadowval.Value {
	return r.slots[off]
}

// Set installs sv at off, disowning whatever previously occupied the slot
// before owning sv -- spec §4.2's "ts_set with non-null sv increments rc;
// ts_set overwriting a non-null slot disowns the previous occupant", and
// the ordering invariant spec §5 states explicitly: disowns always
// precede the install of any new owner sharing the same slot. A self-store
// (sv already occupying off) is a no-op rather than a disown+own pair,
// since otherwise a refcount of exactly 1 would hit zero and recycle the
// box out from under the slot it's still sitting in.
func (r *RegisterMap) Set(off hostir.ByteOffset, sv *shadowval.Value) {
	prev := r.slots[off]
	if prev == sv {
		return
	}
	if prev != nil {
		r.pool.Disown(prev)
	}
	if sv != nil {
		r.pool.Own(sv)
	}
	if sv == nil {
		delete(r.slots, off)
	} else {
		r.slots[off] = sv
	}
}

// SetDynamic installs sv at a byte offset computed at runtime (GetI/PutI's
// variable-offset array slots, spec §4.3), with the same disown-then-own
// ownership discipline as Set.
func (r *RegisterMap) SetDynamic(off hostir.ByteOffset, sv *shadowval.Value) {
	r.Set(off, sv)
}

// Clear empties off without installing a new owner.
func (r *RegisterMap) Clear(off hostir.ByteOffset) {
	r.Set(off, nil)
}
