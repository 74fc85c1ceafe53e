package shadow

import (
	"shadowprobe/internal/hostir"
	"shadowprobe/internal/shadowval"
)

// Containers owns the process-wide register-shadow map and memory-shadow
// map plus the shared Temp free-lists, and hands out a fresh per-block
// temp table (with its debt list) for each instrumented block -- the
// single wiring point spec.md's design notes ask for in place of
// Herbgrind's scattered globals (this piece is folded into the larger
// Engine type in package engine).
type Containers struct {
	pool *shadowval.Pool
	TS   *RegisterMap
	MS   *MemoryMap
	tp   *tempPool
}

// NewContainers wires a fresh register/memory shadow map pair on top of
// pool.
func NewContainers(pool *shadowval.Pool) *Containers {
	return &Containers{
		pool: pool,
		TS:   NewRegisterMap(pool),
		MS:   NewMemoryMap(pool),
		tp:   newTempPool(),
	}
}

// Pool returns the backing reference-counted pool, for callers (the
// instrumenter's temp-copy and ITE handlers) that need to own/disown a
// value directly rather than through a container's Set/Clear.
func (c *Containers) Pool() *shadowval.Pool {
	return c.pool
}

// BlockTemps is the per-block temp table plus debt list described in
// spec §4.2: temps stored here are disowned exactly once at block exit.
type BlockTemps struct {
	c      *Containers
	table  map[hostir.TempID]*Temp
	debt   []*Temp
}

// NewBlock returns a fresh per-block temp table scoped to one
// instrumented block's execution.
func (c *Containers) NewBlock() *BlockTemps {
	return &BlockTemps{c: c, table: make(map[hostir.TempID]*Temp)}
}

// AllocTemp allocates a Temp of the given arity from the shared free-list
// and joins the block's debt list.
func (b *BlockTemps) AllocTemp(arity int) *Temp {
	t := b.c.tp.alloc(arity)
	b.debt = append(b.debt, t)
	return t
}

// StoreTemp installs t at idx in the block-local temp table.
func (b *BlockTemps) StoreTemp(idx hostir.TempID, t *Temp) {
	b.table[idx] = t
}

// AdoptTemp registers an externally constructed temp at idx, joining the
// block's debt list exactly as AllocTemp would. The shadow-op executor
// uses this when a real (non-constant) argument has no shadow temp yet
// at this point in the block and must materialize one from captured
// concrete bytes (spec §4.4 step 1) -- unlike a constant argument's
// temp, this one is a real guest value and must survive to block exit.
func (b *BlockTemps) AdoptTemp(idx hostir.TempID, t *Temp) {
	b.table[idx] = t
	b.debt = append(b.debt, t)
}

// LoadTemp returns the Temp stored at idx, or nil.
func (b *BlockTemps) LoadTemp(idx hostir.TempID) *Temp {
	return b.table[idx]
}

// ClearTemp removes idx from the block-local temp table without touching
// the debt list (the underlying Temp is still disowned once at block
// exit).
func (b *BlockTemps) ClearTemp(idx hostir.TempID) {
	delete(b.table, idx)
}

// Finish walks the debt list and disowns every value owned by every temp
// allocated during the block exactly once, then returns the Temp tuples to
// the shared free-list -- spec §4.3's block-end cleanup, and the testable
// property that "no ShadowTemp allocated during that block remains
// referenced from the per-block debt list" afterward.
func (b *BlockTemps) Finish() {
	for _, t := range b.debt {
		for i, v := range t.Values {
			if v != nil {
				b.c.pool.Disown(v)
				t.Values[i] = nil
			}
		}
		b.c.tp.release(t)
	}
	b.debt = nil
}
