// Package shadowop implements the shadow-op executor (spec.md component
// C4): given one dynamic occurrence of a float operation, it resolves
// or fabricates shadow arguments, applies the pure-zero and
// compensating-add/sub short-circuits, dispatches to the real-valued op
// table, accrues local/global error, extends the symbolic expression,
// and propagates influences (spec §4.4).
package shadowop

import (
	"shadowprobe/internal/expr"
	"shadowprobe/internal/hostir"
	"shadowprobe/internal/realop"
	"shadowprobe/internal/shadow"
	"shadowprobe/internal/shadowval"
	"shadowprobe/internal/ulperr"
)

// NoArgTemp marks a constant operand: there is no backing guest temp to
// resolve, so the executor fabricates a transient shadow temp from the
// captured concrete bytes and disowns it once the op completes (spec
// §4.4 steps 1 and 4).
const NoArgTemp = hostir.TempID(-1)

// OpInstance bundles one dynamic occurrence of a float op: its static
// info, the arity metadata describing its channel layout, the guest
// temp indices of its arguments (NoArgTemp for a constant), and the
// concrete bytes captured at instrumentation time for the arguments and
// the result -- spec §4.4's "info_instance".
type OpInstance struct {
	Info           *expr.OpInfo
	Arity          hostir.OpArity
	ArgTemps       []hostir.TempID
	ConcreteArgs   [][]float64 // [argIdx][channel]
	ConcreteResult []float64   // [channel]
}

// Executor runs the shadow-op procedure. Its fields mirror the
// config options that gate its short-circuits and diagnostics (spec §6).
type Executor struct {
	Pool *shadowval.Pool

	ErrorThreshold        float64
	IgnorePureZeroes      bool // !dont_ignore_pure_zeroes
	NoReals               bool
	CompensationDetection bool
	UseRanges             bool
}

// NewExecutor returns an Executor with the engine's documented defaults:
// pure-zero and compensation short-circuits on, reals on, an error
// threshold of 1 bit.
func NewExecutor(pool *shadowval.Pool) *Executor {
	return &Executor{
		Pool:                  pool,
		ErrorThreshold:        1.0,
		IgnorePureZeroes:      true,
		CompensationDetection: true,
	}
}

// Execute runs one dynamic occurrence of a float op against bt (the
// current block's temp table and debt list), returning the result
// ShadowTemp (spec §4.4).
func (e *Executor) Execute(bt *shadow.BlockTemps, inst OpInstance) *shadow.Temp {
	nargs := len(inst.ArgTemps)
	args := make([]*shadow.Temp, nargs)
	transient := make([]bool, nargs)
	for i := 0; i < nargs; i++ {
		args[i], transient[i] = e.resolveArg(bt, inst, i)
	}

	result := bt.AllocTemp(inst.Arity.ResultBlocks)

	for ch := 0; ch < inst.Arity.OperandBlocks; ch++ {
		vals := make([]*shadowval.Value, nargs)
		for j := 0; j < nargs; j++ {
			vals[j] = args[j].Values[ch]
		}
		result.Values[ch] = e.executeChannel(inst, ch, vals)
	}

	// Non-operand channels (SIMD lanes the instruction leaves untouched)
	// pass through argument 0's value, per the IR's "non-operated values
	// copy from the first operand" convention (spec §4.4 step 3).
	for ch := inst.Arity.OperandBlocks; ch < inst.Arity.ResultBlocks; ch++ {
		result.Values[ch] = args[0].Values[ch]
		e.Pool.Own(result.Values[ch])
	}

	for i, t := range transient {
		if !t {
			continue
		}
		for _, v := range args[i].Values {
			if v != nil {
				e.Pool.Disown(v)
			}
		}
	}

	return result
}

// resolveArg resolves argument i to a ShadowTemp, fabricating one from
// captured concrete bytes when the block has no shadow temp for it yet
// (spec §4.4 step 1). The second return value reports whether the temp
// is transient (a constant operand never backed by a guest IR temp) and
// so must be disowned immediately rather than left for block-end cleanup.
func (e *Executor) resolveArg(bt *shadow.BlockTemps, inst OpInstance, i int) (*shadow.Temp, bool) {
	id := inst.ArgTemps[i]
	kind := inst.Arity.ArgPrecision

	if id != NoArgTemp {
		if existing := bt.LoadTemp(id); existing != nil {
			e.fillMissingChannels(existing, inst, i, kind)
			return existing, false
		}
	}

	fresh := &shadow.Temp{Values: make([]*shadowval.Value, len(inst.ConcreteArgs[i]))}
	e.fillMissingChannels(fresh, inst, i, kind)

	if id == NoArgTemp {
		return fresh, true
	}
	bt.AdoptTemp(id, fresh)
	return fresh, false
}

func (e *Executor) fillMissingChannels(t *shadow.Temp, inst OpInstance, argIdx int, kind hostir.ValueKind) {
	for ch := range t.Values {
		if t.Values[ch] == nil {
			t.Values[ch] = e.Pool.MakeValue(kind, inst.ConcreteArgs[argIdx][ch])
		}
	}
}

func (e *Executor) executeChannel(inst OpInstance, ch int, vals []*shadowval.Value) *shadowval.Value {
	op := inst.Info.Key.OpCode
	concreteArgs := make([]float64, len(vals))
	for j := range vals {
		concreteArgs[j] = inst.ConcreteArgs[j][ch]
	}
	concreteResult := inst.ConcreteResult[ch]

	if e.IgnorePureZeroes && op == realop.OpMul && len(vals) == 2 {
		if isPureZeroMul(concreteArgs, vals) {
			result := e.Pool.MakeValue(inst.Arity.ResultKind, concreteResult)
			if e.UseRanges {
				for j, c := range concreteArgs {
					inst.Info.Agg.ObserveInput(j, c)
				}
			}
			e.buildExpression(inst, vals, result, false)
			result.Influences = shadowval.NewInfluenceSet()
			return result
		}
	}

	fn, known := realop.Lookup(op)

	result := e.Pool.MakeBare(inst.Arity.ResultKind)
	if e.NoReals || !known {
		result.Real.SetFloat64(concreteResult)
	} else {
		reals := make([]*shadowval.Real, len(vals))
		for j, v := range vals {
			reals[j] = v.Real
		}
		fn(result.Real, reals)
	}

	var localError float64
	if known && !e.NoReals {
		concreteReals := make([]*shadowval.Real, len(vals))
		for j, c := range concreteArgs {
			concreteReals[j] = shadowval.NewReal(c)
		}
		localReal := realop.Eval(fn, concreteReals)
		localError = ulperr.BitsDouble(localReal.GetDouble(), result.Real.GetDouble())
	}
	globalError := ulperr.Bits(result.Real, concreteResult)

	inst.Info.Agg.Observe(localError, globalError)
	if e.UseRanges {
		for j, c := range concreteArgs {
			inst.Info.Agg.ObserveInput(j, c)
		}
	}

	e.buildExpression(inst, vals, result, globalError > e.ErrorThreshold)

	if e.CompensationDetection && !e.NoReals {
		if infl, ok := e.compensate(op, vals, concreteArgs, result.Real, concreteResult); ok {
			result.Influences = infl
			return result
		}
	}

	result.Influences = e.propagateInfluences(inst, vals, localError >= e.ErrorThreshold)
	return result
}

// isPureZeroMul reports spec §4.4's pure-zero multiplication
// short-circuit: either concrete operand is exactly zero and the other
// operand's real is not NaN.
func isPureZeroMul(concreteArgs []float64, vals []*shadowval.Value) bool {
	if concreteArgs[0] == 0 && !vals[1].Real.IsNaN() {
		return true
	}
	if concreteArgs[1] == 0 && !vals[0].Real.IsNaN() {
		return true
	}
	return false
}

// compensate implements spec §4.4's compensating add/sub short-circuit:
// a zero second operand is compensating for both add and sub, a zero
// first operand only for add, and only when doing so does not increase
// ULP error.
func (e *Executor) compensate(op hostir.OpCode, vals []*shadowval.Value, concreteArgs []float64, resultReal *shadowval.Real, concreteResult float64) (*shadowval.InfluenceSet, bool) {
	if len(vals) != 2 {
		return nil, false
	}
	isAdd := op == realop.OpAdd
	isSub := op == realop.OpSub
	if !isAdd && !isSub {
		return nil, false
	}

	if isAdd && vals[0].Real.IsZero() {
		inputErr := ulperr.Distance(vals[1].Real.GetDouble(), concreteArgs[1])
		outputErr := ulperr.Distance(resultReal.GetDouble(), concreteResult)
		if outputErr <= inputErr {
			return vals[1].Influences.Clone(), true
		}
	}
	if vals[1].Real.IsZero() {
		inputErr := ulperr.Distance(vals[0].Real.GetDouble(), concreteArgs[0])
		outputErr := ulperr.Distance(resultReal.GetDouble(), concreteResult)
		if outputErr <= inputErr {
			return vals[0].Influences.Clone(), true
		}
	}
	return nil, false
}

// propagateInfluences unions every argument's influence set and, when
// this op's own local error cleared the threshold, adds the op itself
// (spec §4.4's "union of argument influence sets, plus {info} if
// local_error >= threshold").
func (e *Executor) propagateInfluences(inst OpInstance, vals []*shadowval.Value, includeSelf bool) *shadowval.InfluenceSet {
	set := shadowval.NewInfluenceSet()
	for _, v := range vals {
		set.Union(v.Influences)
	}
	if includeSelf {
		set.Add(inst.Info)
	}
	return set
}

// buildExpression extends the per-execution Value AST for result and
// folds it into the op's generalized Op AST (spec §4.5). When extend is
// false (global error under threshold), result's value-AST node is a
// bare leaf rather than a branch over its arguments' expressions --
// spec §4.4's "attach a leaf referencing the operand's expression
// unchanged" -- which still participates in generalization, narrowing
// away any existing structure the op-AST had accumulated at this
// position.
func (e *Executor) buildExpression(inst OpInstance, vals []*shadowval.Value, result *shadowval.Value, extend bool) {
	var node *expr.ValueNode
	if extend {
		args := make([]*expr.ValueNode, len(vals))
		for i, v := range vals {
			args[i] = valueNodeFor(v)
		}
		node = &expr.ValueNode{Val: result, Op: inst.Info, Args: args}
	} else {
		node = &expr.ValueNode{Val: result}
	}
	expr.Generalize(inst.Info, node)
	result.Expr = node
}

func valueNodeFor(v *shadowval.Value) *expr.ValueNode {
	if vn, ok := v.Expr.(*expr.ValueNode); ok {
		return vn
	}
	return &expr.ValueNode{Val: v}
}
