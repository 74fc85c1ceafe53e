// Package instrument implements the IR instrumenter (spec.md component
// C3): a static walk over a guest block that decides, per temp and per
// register-file byte, whether a shadow value can possibly be present, and
// gates the runtime shadow-maintenance calls it emits on that decision.
//
// There is no real dynamic-recompilation host in this engine (package
// hostir stands in for one), so InstrumentBlock fuses what a real host
// would split into two phases -- translate once, execute many times --
// into a single call: it is handed the concrete bytes one execution of
// the block actually produced (a Trace) and performs the static analysis
// and the gated runtime effects together.
package instrument

import (
	"shadowprobe/internal/expr"
	"shadowprobe/internal/hostir"
	"shadowprobe/internal/shadow"
	"shadowprobe/internal/shadowop"
	"shadowprobe/internal/shadowval"
)

// Status is the three-valued static shadow status spec §3 tracks per temp
// and per TS byte offset: Shadowed (definitely holds a shadow), Unshadowed
// (definitely does not), or Unknown (depends on a runtime null check).
type Status int

const (
	StatusUnshadowed Status = iota
	StatusShadowed
	StatusUnknown
)

func (s Status) String() string {
	switch s {
	case StatusShadowed:
		return "S"
	case StatusUnshadowed:
		return "U"
	default:
		return "?"
	}
}

// Join is the lattice meet spec §3 defines: Shadowed ⊔ Unshadowed =
// Unknown, X ⊔ X = X. Associative and idempotent by construction.
func Join(a, b Status) Status {
	if a == b {
		return a
	}
	return StatusUnknown
}

// BlockState holds the two status maps scoped to one block being
// instrumented. Temps default to Unshadowed when unseen (a temp not yet
// written carries no shadow); TS bytes default to Unknown at block entry
// (spec §4.3: "no interprocedural flow").
type BlockState struct {
	tempStatus map[hostir.TempID]Status
	tsStatus   map[hostir.ByteOffset]Status
}

func newBlockState() *BlockState {
	return &BlockState{
		tempStatus: make(map[hostir.TempID]Status),
		tsStatus:   make(map[hostir.ByteOffset]Status),
	}
}

func (s *BlockState) temp(id hostir.TempID) Status {
	if v, ok := s.tempStatus[id]; ok {
		return v
	}
	return StatusUnshadowed
}

func (s *BlockState) setTemp(id hostir.TempID, st Status) {
	s.tempStatus[id] = st
}

func (s *BlockState) ts(off hostir.ByteOffset) Status {
	if v, ok := s.tsStatus[off]; ok {
		return v
	}
	return StatusUnknown
}

func (s *BlockState) setTS(off hostir.ByteOffset, st Status) {
	s.tsStatus[off] = st
}

// Trace supplies the concrete values one execution of a block actually
// read or produced -- the "well-known scratch area" spec §4.4 step 1
// describes the host capturing at instrumentation time. The instrumenter
// never computes a concrete result itself (that is the host's job); it
// only reads these back to fabricate shadows and to drive the statically
// undecidable control flow (ITE conditions, guards, dynamic addresses).
type Trace struct {
	// Temps holds the concrete per-channel value of every guest temp
	// touched this execution, keyed by temp index.
	Temps map[hostir.TempID][]float64
	// Results holds the concrete per-channel native result of every
	// float-producing WrTmp, keyed by its destination temp.
	Results map[hostir.TempID][]float64
	// RF and Mem back Get/Load's scalar reads when no shadow maintenance
	// needs them beyond evaluating an address or an index expression.
	RF  map[hostir.ByteOffset]float64
	Mem map[uint64]float64
}

func (tr *Trace) channels(e hostir.Expr) []float64 {
	switch v := e.(type) {
	case *hostir.ConstExpr:
		return []float64{v.Value}
	case *hostir.RdTmpExpr:
		return tr.Temps[v.Temp]
	default:
		return []float64{tr.scalar(e)}
	}
}

func (tr *Trace) scalar(e hostir.Expr) float64 {
	switch v := e.(type) {
	case *hostir.ConstExpr:
		return v.Value
	case *hostir.RdTmpExpr:
		if vals := tr.Temps[v.Temp]; len(vals) > 0 {
			return vals[0]
		}
		return 0
	case *hostir.GetExpr:
		return tr.RF[v.Offset]
	case *hostir.LoadExpr:
		return tr.Mem[uint64(tr.scalar(v.Addr))]
	case *hostir.ITEExpr:
		if tr.boolOf(v.Cond) {
			return tr.scalar(v.TrueValue)
		}
		return tr.scalar(v.FalseValue)
	default:
		return 0
	}
}

func (tr *Trace) boolOf(e hostir.Expr) bool {
	return tr.scalar(e) != 0
}

// Instrumenter wires the shadow containers, the shadow-op executor, the
// op-info table, and the host's opcode metadata into one walker.
type Instrumenter struct {
	Containers *shadow.Containers
	Exec       *shadowop.Executor
	Ops        *expr.OpInfoTable
	Table      *hostir.OpTable
}

// NewInstrumenter wires the four collaborators InstrumentBlock needs.
func NewInstrumenter(c *shadow.Containers, ex *shadowop.Executor, ops *expr.OpInfoTable, table *hostir.OpTable) *Instrumenter {
	return &Instrumenter{Containers: c, Exec: ex, Ops: ops, Table: table}
}

// InstrumentBlock walks block's statements once, maintaining the static
// status maps and emitting the gated shadow-maintenance effects tr's
// captured bytes drive. Block end runs the debt-list cleanup; an early
// ExitStmt whose guard is live runs it instead and stops, per spec §4.3's
// "gated per exit."
func (in *Instrumenter) InstrumentBlock(block *hostir.Block, tr *Trace) {
	bt := in.Containers.NewBlock()
	st := newBlockState()
	currentAddr := block.Addr

	for _, stmt := range block.Stmts {
		switch s := stmt.(type) {
		case *hostir.IMarkStmt:
			currentAddr = s.Addr
		case *hostir.ExitStmt:
			if tr.boolOf(s.Guard) {
				bt.Finish()
				return
			}
		default:
			in.execStmt(bt, st, block.Addr, currentAddr, stmt, tr)
		}
	}
	bt.Finish()
}

func (in *Instrumenter) execStmt(bt *shadow.BlockTemps, st *BlockState, blockAddr, opAddr uint64, stmt hostir.Stmt, tr *Trace) {
	switch s := stmt.(type) {
	case *hostir.NoOpStmt, *hostir.AbiHintStmt, *hostir.MBEStmt, *hostir.DirtyStmt:
		// No shadow-relevant effect: these statements never touch a
		// float-carrying temp, TS byte, or memory cell.
	case *hostir.PutStmt:
		in.instrumentPut(bt, st, s.Offset, s.Data)
	case *hostir.PutIStmt:
		in.instrumentPutI(bt, st, s, tr)
	case *hostir.WrTmpStmt:
		in.instrumentWrTmp(bt, st, blockAddr, opAddr, s, tr)
	case *hostir.StoreStmt:
		in.instrumentStore(bt, s.Addr, s.Data, s.Kind, tr)
	case *hostir.StoreGStmt:
		if tr.boolOf(s.Guard) {
			in.instrumentStore(bt, s.Addr, s.Data, s.Kind, tr)
		}
	case *hostir.LoadGStmt:
		in.instrumentLoadG(bt, st, s, tr)
	case *hostir.CASStmt:
		in.instrumentCAS(bt, st, s)
	case *hostir.LLSCStmt:
		in.instrumentLLSC(bt, st, s)
	}
}

func (in *Instrumenter) instrumentWrTmp(bt *shadow.BlockTemps, st *BlockState, blockAddr, opAddr uint64, w *hostir.WrTmpStmt, tr *Trace) {
	switch e := w.Expr.(type) {
	case *hostir.ConstExpr:
		st.setTemp(w.Temp, StatusUnshadowed)
		bt.ClearTemp(w.Temp)
	case *hostir.RdTmpExpr:
		in.instrumentTempCopy(bt, st, w.Temp, e.Temp)
	case *hostir.ITEExpr:
		in.instrumentITE(bt, st, w.Temp, e, tr)
	case *hostir.GetExpr:
		in.instrumentGet(bt, st, w.Temp, e.Offset)
	case *hostir.GetIExpr:
		in.instrumentGetI(bt, st, w.Temp, e, tr)
	case *hostir.LoadExpr:
		in.instrumentLoad(bt, w.Temp, e.Addr, e.Kind, tr)
		st.setTemp(w.Temp, StatusUnknown)
	case *hostir.CCallExpr:
		// An opaque helper call; the engine has no visibility into
		// what it computes, so its result is treated as a fresh
		// concrete leaf with no shadow.
		st.setTemp(w.Temp, StatusUnshadowed)
		bt.ClearTemp(w.Temp)
	default:
		if hostir.IsFloatOp(e) {
			in.instrumentFloatOp(bt, st, blockAddr, opAddr, w.Temp, e, tr)
		}
	}
}

// instrumentTempCopy implements "Temp ← Temp": copy source status, and
// when that status is not Unshadowed, share the source's shadow values
// into dest with a refcount bump per value (spec §4.3).
func (in *Instrumenter) instrumentTempCopy(bt *shadow.BlockTemps, st *BlockState, dest, src hostir.TempID) {
	status := st.temp(src)
	st.setTemp(dest, status)
	if status == StatusUnshadowed {
		return
	}
	srcTemp := bt.LoadTemp(src)
	if srcTemp == nil {
		return
	}
	bt.AdoptTemp(dest, in.cloneTemp(srcTemp))
}

// instrumentITE implements "Temp ← ITE(cond, a, b)": the static status is
// the meet of both sides; the runtime pointer comes from whichever side
// tr's captured guard actually selected.
func (in *Instrumenter) instrumentITE(bt *shadow.BlockTemps, st *BlockState, dest hostir.TempID, ite *hostir.ITEExpr, tr *Trace) {
	st.setTemp(dest, Join(in.exprStatus(st, ite.TrueValue), in.exprStatus(st, ite.FalseValue)))

	chosen := ite.TrueValue
	if !tr.boolOf(ite.Cond) {
		chosen = ite.FalseValue
	}
	srcTemp := in.resolveExprTemp(bt, chosen)
	if srcTemp == nil {
		return
	}
	bt.AdoptTemp(dest, in.cloneTemp(srcTemp))
}

// instrumentGet implements "Temp ← Get(ts_off, type)". The Shadowed/
// Unknown distinction only matters to a real code generator deciding
// whether it can skip a null check; since this walker performs the read
// directly, both cases resolve to the same lookup.
func (in *Instrumenter) instrumentGet(bt *shadow.BlockTemps, st *BlockState, dest hostir.TempID, off hostir.ByteOffset) {
	status := st.ts(off)
	st.setTemp(dest, status)
	if status == StatusUnshadowed {
		return
	}
	v := in.Containers.TS.Get(off)
	if v == nil {
		return
	}
	in.Containers.Pool().Own(v)
	bt.AdoptTemp(dest, &shadow.Temp{Values: []*shadowval.Value{v}})
}

// instrumentPut implements "Put(ts_off, data)". TS.Set/.Clear already
// enforce disown-before-install (spec §5); this handler only decides the
// new status and what value, if any, gets installed.
func (in *Instrumenter) instrumentPut(bt *shadow.BlockTemps, st *BlockState, off hostir.ByteOffset, data hostir.Expr) {
	switch d := data.(type) {
	case *hostir.ConstExpr:
		in.Containers.TS.Clear(off)
		st.setTS(off, StatusUnshadowed)
	case *hostir.RdTmpExpr:
		st.setTS(off, st.temp(d.Temp))
		var v *shadowval.Value
		if srcTemp := bt.LoadTemp(d.Temp); srcTemp != nil {
			v = srcTemp.Values[0]
		}
		in.Containers.TS.Set(off, v)
	default:
		in.Containers.TS.Clear(off)
		st.setTS(off, StatusUnknown)
	}
}

// instrumentGetI implements "Temp ← GetI" over a variable-offset array
// slot: every byte the array could possibly touch is marked Unknown
// regardless of which one this execution actually reads (spec §4.3), and
// the runtime read goes through the dynamically computed offset.
func (in *Instrumenter) instrumentGetI(bt *shadow.BlockTemps, st *BlockState, dest hostir.TempID, g *hostir.GetIExpr, tr *Trace) {
	for i := 0; i < g.Len; i++ {
		st.setTS(g.Base+hostir.ByteOffset(i*g.ElemSize), StatusUnknown)
	}
	off := dynamicOffset(g.Base, int(tr.scalar(g.Index)), g.Bias, g.Len, g.ElemSize)
	st.setTemp(dest, StatusUnknown)

	v := in.Containers.TS.Get(off)
	if v == nil {
		return
	}
	in.Containers.Pool().Own(v)
	bt.AdoptTemp(dest, &shadow.Temp{Values: []*shadowval.Value{v}})
}

// instrumentPutI mirrors instrumentGetI for PutI.
func (in *Instrumenter) instrumentPutI(bt *shadow.BlockTemps, st *BlockState, p *hostir.PutIStmt, tr *Trace) {
	for i := 0; i < p.Len; i++ {
		st.setTS(p.Base+hostir.ByteOffset(i*p.ElemSize), StatusUnknown)
	}
	off := dynamicOffset(p.Base, int(tr.scalar(p.Index)), p.Bias, p.Len, p.ElemSize)

	var v *shadowval.Value
	if rd, ok := p.Data.(*hostir.RdTmpExpr); ok {
		if srcTemp := bt.LoadTemp(rd.Temp); srcTemp != nil {
			v = srcTemp.Values[0]
		}
	}
	in.Containers.TS.SetDynamic(off, v)
}

func dynamicOffset(base hostir.ByteOffset, idx, bias, length, elemSize int) hostir.ByteOffset {
	wrapped := ((idx+bias)%length + length) % length
	return base + hostir.ByteOffset(wrapped*elemSize)
}

// instrumentLoad and instrumentStore implement Load/Store, always
// Unknown status per spec §4.3. A single-unit access (the common case)
// takes the fast bucket probe and falls through to the general map only
// on a head-entry collision; a Double access spans two consecutive 4-byte units
// and goes through GetRange/SetRange, which carry the shadow in the
// access's first unit with the rest following RegisterMap's "second slot
// always nil" convention.
func (in *Instrumenter) instrumentLoad(bt *shadow.BlockTemps, dest hostir.TempID, addrExpr hostir.Expr, kind hostir.ValueKind, tr *Trace) {
	addr := uint64(tr.scalar(addrExpr))

	var v *shadowval.Value
	if kind.Bytes() <= 4 {
		var ok bool
		v, ok = in.Containers.MS.FastProbe(addr)
		if !ok {
			v = in.Containers.MS.Get(addr)
		}
	} else {
		vals := in.Containers.MS.GetRange(addr, kind.Bytes())
		v = vals[0]
	}
	if v == nil {
		return
	}
	in.Containers.Pool().Own(v)
	bt.AdoptTemp(dest, &shadow.Temp{Values: []*shadowval.Value{v}})
}

func (in *Instrumenter) instrumentStore(bt *shadow.BlockTemps, addrExpr, data hostir.Expr, kind hostir.ValueKind, tr *Trace) {
	addr := uint64(tr.scalar(addrExpr))
	var v *shadowval.Value
	if rd, ok := data.(*hostir.RdTmpExpr); ok {
		if srcTemp := bt.LoadTemp(rd.Temp); srcTemp != nil {
			v = srcTemp.Values[0]
		}
	}

	units := kind.Bytes() / 4
	if units <= 1 {
		in.Containers.MS.Set(addr, v)
		return
	}
	vals := make([]*shadowval.Value, units)
	vals[0] = v
	in.Containers.MS.SetRange(addr, vals)
}

// instrumentLoadG implements the guarded load: on a false guard the
// destination takes the Alt expression's value and status instead of
// touching memory at all.
func (in *Instrumenter) instrumentLoadG(bt *shadow.BlockTemps, st *BlockState, l *hostir.LoadGStmt, tr *Trace) {
	if !tr.boolOf(l.Guard) {
		status := in.exprStatus(st, l.Alt)
		st.setTemp(l.Dest, status)
		if srcTemp := in.resolveExprTemp(bt, l.Alt); srcTemp != nil {
			bt.AdoptTemp(l.Dest, in.cloneTemp(srcTemp))
		}
		return
	}
	in.instrumentLoad(bt, l.Dest, l.Addr, l.Kind, tr)
	st.setTemp(l.Dest, StatusUnknown)
}

// instrumentCAS and instrumentLLSC implement the spec §4.3 pass-through:
// neither statement produces a float, so their result temps simply carry
// no shadow. ClearTemp drops any stale block-local mapping a prior WrTmp
// to the same index left behind.
func (in *Instrumenter) instrumentCAS(bt *shadow.BlockTemps, st *BlockState, c *hostir.CASStmt) {
	st.setTemp(c.OldTemp, StatusUnshadowed)
	bt.ClearTemp(c.OldTemp)
}

func (in *Instrumenter) instrumentLLSC(bt *shadow.BlockTemps, st *BlockState, l *hostir.LLSCStmt) {
	st.setTemp(l.ResTemp, StatusUnshadowed)
	bt.ClearTemp(l.ResTemp)
}

// instrumentFloatOp implements the float-op bullet: gather each
// argument's temp index (NoArgTemp for a constant) and captured concrete
// channels, look up or register the static op's info, and hand the whole
// instance to the shadow-op executor.
func (in *Instrumenter) instrumentFloatOp(bt *shadow.BlockTemps, st *BlockState, blockAddr, opAddr uint64, dest hostir.TempID, e hostir.Expr, tr *Trace) {
	op, argExprs := decomposeFloatOp(e)
	if argExprs == nil {
		return
	}

	arity, ok := in.Table.Arity(op)
	if !ok {
		arity = hostir.OpArity{
			NArgs:         len(argExprs),
			OperandBlocks: 1,
			ResultBlocks:  1,
			ArgPrecision:  hostir.KindDouble,
			ResultKind:    hostir.KindDouble,
		}
	}

	argTemps := make([]hostir.TempID, len(argExprs))
	concreteArgs := make([][]float64, len(argExprs))
	for i, ae := range argExprs {
		if rd, isTemp := ae.(*hostir.RdTmpExpr); isTemp {
			argTemps[i] = rd.Temp
		} else {
			argTemps[i] = shadowop.NoArgTemp
		}
		concreteArgs[i] = tr.channels(ae)
	}

	key := expr.OpKey{OpCode: op, OpAddr: opAddr}
	info := in.Ops.GetOrCreate(key, blockAddr, arity.ResultKind, len(argExprs))

	inst := shadowop.OpInstance{
		Info:           info,
		Arity:          arity,
		ArgTemps:       argTemps,
		ConcreteArgs:   concreteArgs,
		ConcreteResult: tr.Results[dest],
	}

	result := in.Exec.Execute(bt, inst)
	bt.StoreTemp(dest, result)
	st.setTemp(dest, StatusShadowed)
}

func decomposeFloatOp(e hostir.Expr) (hostir.OpCode, []hostir.Expr) {
	switch v := e.(type) {
	case *hostir.UnopExpr:
		return v.Op, []hostir.Expr{v.Arg}
	case *hostir.BinopExpr:
		return v.Op, []hostir.Expr{v.Left, v.Right}
	case *hostir.TriopExpr:
		return v.Op, []hostir.Expr{v.A, v.B, v.C}
	case *hostir.QopExpr:
		return v.Op, []hostir.Expr{v.A, v.B, v.C, v.D}
	default:
		return 0, nil
	}
}

func (in *Instrumenter) exprStatus(st *BlockState, e hostir.Expr) Status {
	switch v := e.(type) {
	case *hostir.RdTmpExpr:
		return st.temp(v.Temp)
	case *hostir.ConstExpr:
		return StatusUnshadowed
	default:
		return StatusUnknown
	}
}

func (in *Instrumenter) resolveExprTemp(bt *shadow.BlockTemps, e hostir.Expr) *shadow.Temp {
	rd, ok := e.(*hostir.RdTmpExpr)
	if !ok {
		return nil
	}
	return bt.LoadTemp(rd.Temp)
}

func (in *Instrumenter) cloneTemp(t *shadow.Temp) *shadow.Temp {
	cp := &shadow.Temp{Values: make([]*shadowval.Value, len(t.Values))}
	for i, v := range t.Values {
		if v != nil {
			in.Containers.Pool().Own(v)
		}
		cp.Values[i] = v
	}
	return cp
}
