// Package expr implements the symbolic-expression engine (spec.md
// component C5): per-trace Value ASTs, the per-static-instruction
// generalized Op AST, and the final error-ranked report.
package expr

import (
	"fmt"

	"shadowprobe/internal/hostir"
)

// Range tracks the observed min/max of one operand across all traces of
// an op, filled in when the use_ranges option is on. Positive and
// negative inputs share one range; detailed_ranges does not change this.
type Range struct {
	Min, Max float64
	seen     bool
}

// Observe widens the range to include v.
func (r *Range) Observe(v float64) {
	if !r.seen {
		r.Min, r.Max, r.seen = v, v, true
		return
	}
	if v < r.Min {
		r.Min = v
	}
	if v > r.Max {
		r.Max = v
	}
}

// Aggregate holds the running error statistics for one static op, spec
// §3's "{ global_error, local_error, input_ranges[] }".
type Aggregate struct {
	GlobalErrorMax float64
	GlobalErrorSum float64
	LocalErrorMax  float64
	LocalErrorSum  float64
	NumCalls       uint64
	InputRanges    []Range
}

// Observe folds one execution's local/global error into the running max
// and mean. Aggregate counters "saturate implicitly in double-precision
// addition" per spec §7; NumCalls is an unbounded 64-bit counter.
func (a *Aggregate) Observe(localError, globalError float64) {
	a.NumCalls++
	a.LocalErrorSum += localError
	a.GlobalErrorSum += globalError
	if localError > a.LocalErrorMax {
		a.LocalErrorMax = localError
	}
	if globalError > a.GlobalErrorMax {
		a.GlobalErrorMax = globalError
	}
}

// MeanGlobalError returns the running mean global error, 0 if unobserved.
func (a *Aggregate) MeanGlobalError() float64 {
	if a.NumCalls == 0 {
		return 0
	}
	return a.GlobalErrorSum / float64(a.NumCalls)
}

// MeanLocalError returns the running mean local error, 0 if unobserved.
func (a *Aggregate) MeanLocalError() float64 {
	if a.NumCalls == 0 {
		return 0
	}
	return a.LocalErrorSum / float64(a.NumCalls)
}

// ObserveInput widens InputRanges[i], growing the slice if needed.
func (a *Aggregate) ObserveInput(i int, v float64) {
	for len(a.InputRanges) <= i {
		a.InputRanges = append(a.InputRanges, Range{})
	}
	a.InputRanges[i].Observe(v)
}

// OpKey uniquely identifies a static instruction by its opcode and
// address: spec §3's "exactly one ShadowOpInfo per (op_code, op_addr)
// pair".
type OpKey struct {
	OpCode hostir.OpCode
	OpAddr uint64
}

func (k OpKey) String() string {
	return fmt.Sprintf("%d@0x%x", k.OpCode, k.OpAddr)
}

// OpInfo is spec.md's ShadowOpInfo: the per-static-instruction record
// tying an op's identity to its generalized expression and running
// aggregate. It implements shadowval.Influence so it can be stored
// directly in a ShadowValue's influence set.
type OpInfo struct {
	Key       OpKey
	BlockAddr uint64
	Kind      hostir.ValueKind
	NArgs     int
	Expr      *OpAST
	Agg       Aggregate

	// Source-location metadata, supplied by the host's filename/line
	// lookup for the instrumented address (spec §1's "external
	// collaborator... filename/line lookup"). The engine never sets them;
	// they stay empty unless a caller assigns them, and the engine's own
	// invariants do not depend on them.
	Function string
	File     string
	Line     int
}

// InfluenceKey implements shadowval.Influence.
func (o *OpInfo) InfluenceKey() string { return o.Key.String() }

// OpInfoTable is the process-wide hash of ShadowOpInfo records, one per
// (op_code, op_addr) pair (spec §3). Access is unsynchronized: spec §5
// assumes a single active guest thread and no concurrent engine code.
type OpInfoTable struct {
	entries map[OpKey]*OpInfo
	order   []OpKey // insertion order, for deterministic report iteration
}

// NewOpInfoTable returns an empty table.
func NewOpInfoTable() *OpInfoTable {
	return &OpInfoTable{entries: make(map[OpKey]*OpInfo)}
}

// GetOrCreate returns the existing OpInfo for key, or creates one.
func (t *OpInfoTable) GetOrCreate(key OpKey, blockAddr uint64, kind hostir.ValueKind, nargs int) *OpInfo {
	if info, ok := t.entries[key]; ok {
		return info
	}
	info := &OpInfo{Key: key, BlockAddr: blockAddr, Kind: kind, NArgs: nargs}
	t.entries[key] = info
	t.order = append(t.order, key)
	return info
}

// Lookup returns the OpInfo for key without creating it.
func (t *OpInfoTable) Lookup(key OpKey) (*OpInfo, bool) {
	info, ok := t.entries[key]
	return info, ok
}

// All returns every registered OpInfo in insertion order.
func (t *OpInfoTable) All() []*OpInfo {
	out := make([]*OpInfo, 0, len(t.order))
	for _, k := range t.order {
		out = append(out, t.entries[k])
	}
	return out
}
