package engine

import (
	"shadowprobe/internal/expr"
	"shadowprobe/internal/hostir"
	"shadowprobe/internal/realop"
	"shadowprobe/internal/shadowop"
)

// HandleClientRequest dispatches the nine client-request codes of spec
// §6's table. An unrecognized code returns Handled=false rather than
// erroring (spec §7: "Unknown client request: returns 'not handled' so
// the host can route further; does not abort").
func (e *Engine) HandleClientRequest(req hostir.ClientRequest) hostir.RequestResult {
	switch req.Code {
	case hostir.ReqBegin:
		e.runningDepth++
		return hostir.RequestResult{Handled: true}
	case hostir.ReqEnd:
		e.runningDepth--
		return hostir.RequestResult{Handled: true}
	case hostir.ReqPerformOp:
		return e.performOp(req, hostir.KindDouble)
	case hostir.ReqPerformOpF:
		return e.performOp(req, hostir.KindSingle)
	case hostir.ReqPerformSpecialOp:
		return e.performSpecialOp(req)
	case hostir.ReqMarkImportant:
		e.important[req.TargetAddr] = true
		return hostir.RequestResult{Handled: true}
	case hostir.ReqMaybeMarkImportant:
		if e.Containers.MS.Get(req.TargetAddr) != nil {
			e.important[req.TargetAddr] = true
		}
		return hostir.RequestResult{Handled: true}
	case hostir.ReqMaybeMarkImportantWithIndex:
		addr := req.TargetAddr + uint64(req.Index*8)
		if e.Containers.MS.Get(addr) != nil {
			e.important[addr] = true
		}
		return hostir.RequestResult{Handled: true}
	case hostir.ReqForceTrack:
		e.forceTrack(req.TargetAddr, req.Concrete)
		return hostir.RequestResult{Handled: true}
	default:
		return hostir.RequestResult{Handled: false}
	}
}

// forceTrack ensures addr has a shadow value in the memory-shadow map,
// fabricating one from concrete when none is present yet (spec §6's
// FORCE_TRACK), and flags it important.
func (e *Engine) forceTrack(addr uint64, concrete float64) {
	e.important[addr] = true
	if e.Containers.MS.Get(addr) != nil {
		return
	}
	v := e.Pool.MakeValue(hostir.KindDouble, concrete)
	e.Containers.MS.Set(addr, v)
	e.Pool.Disown(v) // the local reference; MS.Set already owns its copy
}

// performOp shadows a PERFORM_OP/PERFORM_OPF libm-style call: resolve the
// named op, run it through the shadow-op executor using the concrete
// argument/result bytes the host already read, accrue the error into the
// op's aggregate, and discard the transient result (spec §6 names no
// destination for the shadow beyond the engine's own statistics).
func (e *Engine) performOp(req hostir.ClientRequest, kind hostir.ValueKind) hostir.RequestResult {
	code, known := lookupOpCode(req.OpName)
	if !known {
		return hostir.RequestResult{Handled: false}
	}
	arity, ok := e.Table.Arity(code)
	if !ok {
		return hostir.RequestResult{Handled: false}
	}
	arity.ArgPrecision = kind
	arity.ResultKind = kind
	return e.runTransientOp(code, arity, req.ResultAddr, req.ConcreteArgs, req.ConcreteResult)
}

// performSpecialOp shadows PERFORM_SPECIAL_OP, a user-defined op
// registered earlier via DefineSpecialOp.
func (e *Engine) performSpecialOp(req hostir.ClientRequest) hostir.RequestResult {
	code, ok := e.specialOps[req.OpName]
	if !ok {
		return hostir.RequestResult{Handled: false}
	}
	arity, _ := e.Table.Arity(code)
	return e.runTransientOp(code, arity, req.ResultAddr, req.ConcreteArgs, req.ConcreteResult)
}

// runTransientOp executes one op instance with no backing guest temps --
// every argument is fabricated from concrete bytes and the result is
// disowned immediately after its error is folded into the op's aggregate,
// since a client request has no guest IR temp to hold a persistent
// shadow in.
func (e *Engine) runTransientOp(code hostir.OpCode, arity hostir.OpArity, opAddr uint64, concreteArgs []float64, concreteResult float64) hostir.RequestResult {
	info := e.Ops.GetOrCreate(expr.OpKey{OpCode: code, OpAddr: opAddr}, 0, arity.ResultKind, len(concreteArgs))

	argTemps := make([]hostir.TempID, len(concreteArgs))
	args := make([][]float64, len(concreteArgs))
	for i := range concreteArgs {
		argTemps[i] = shadowop.NoArgTemp
		args[i] = []float64{concreteArgs[i]}
	}

	inst := shadowop.OpInstance{
		Info:           info,
		Arity:          arity,
		ArgTemps:       argTemps,
		ConcreteArgs:   args,
		ConcreteResult: []float64{concreteResult},
	}

	bt := e.Containers.NewBlock()
	e.Exec.Execute(bt, inst)
	bt.Finish()

	if e.Config.PrintExprUpdates {
		log.WithField("op", e.Table.Name(code)).Debug("client-request op executed")
	}
	return hostir.RequestResult{Handled: true}
}

// lookupOpCode resolves a PERFORM_OP name to the registered builtin
// opcode.
var builtinOpNames = map[string]hostir.OpCode{
	"add":  realop.OpAdd,
	"sub":  realop.OpSub,
	"mul":  realop.OpMul,
	"div":  realop.OpDiv,
	"neg":  realop.OpNeg,
	"abs":  realop.OpAbs,
	"sqrt": realop.OpSqrt,
	"sin":  realop.OpSin,
	"cos":  realop.OpCos,
	"exp":  realop.OpExp,
	"log":  realop.OpLog,
	"fma":  realop.OpFMA,
}

func lookupOpCode(name string) (hostir.OpCode, bool) {
	code, ok := builtinOpNames[name]
	return code, ok
}
