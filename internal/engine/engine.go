// Package engine wires the five components spec.md's Design Notes
// describe as scattered process-wide globals into the single object the
// redesign note in spec §9 calls for: "a clean redesign encapsulates them
// in one Engine object passed to every helper." Engine owns the
// Real/Value pool (C1), the shadow containers (C2), the shadow-op
// executor (C4) and its OpInfoTable (C5's per-static-instruction half),
// the instrumenter (C3) built on top of them, the running-depth/
// running-tid bookkeeping of spec §5, and the config.
package engine

import (
	"io"

	"shadowprobe/internal/config"
	"shadowprobe/internal/expr"
	"shadowprobe/internal/hostir"
	"shadowprobe/internal/instrument"
	"shadowprobe/internal/realop"
	"shadowprobe/internal/report"
	"shadowprobe/internal/shadow"
	"shadowprobe/internal/shadowop"
	"shadowprobe/internal/shadowval"
)

// Engine is the lifecycle object spec §9's redesign note prescribes:
// InitInstrumentation -> many InstrumentBlock calls ->
// FinishInstrumentation -> WriteOutput.
type Engine struct {
	Pool         *shadowval.Pool
	Containers   *shadow.Containers
	Exec         *shadowop.Executor
	Ops          *expr.OpInfoTable
	Table        *hostir.OpTable
	Instrumenter *instrument.Instrumenter
	Config       *config.Config

	runningDepth int
	runningTid   hostir.ThreadID

	// important is the mark table spec §9 lists among the engine's shared
	// resources: addresses MARK_IMPORTANT/FORCE_TRACK flag so a host's
	// eviction policy (not modeled here) knows not to drop their shadow.
	important map[uint64]bool

	// specialOps maps a PERFORM_SPECIAL_OP name to the synthetic opcode
	// DefineSpecialOp registered it under, so HandleClientRequest can
	// resolve a name back to the OpInfoTable key spec §3 requires.
	specialOps    map[string]hostir.OpCode
	nextSpecialOp hostir.OpCode
}

// New wires a fresh Engine from cfg, registering the standard real-valued
// ops (spec.md's `+ - * / sqrt sin cos exp log` table, internal/realop)
// into the opcode table with their arities and applying cfg's
// short-circuit/threshold options to the executor.
func New(cfg *config.Config) *Engine {
	pool := shadowval.NewPool()
	containers := shadow.NewContainers(pool)
	exec := shadowop.NewExecutor(pool)
	exec.ErrorThreshold = cfg.ErrorThreshold
	exec.IgnorePureZeroes = !cfg.DontIgnorePureZeroes
	exec.NoReals = cfg.NoReals
	exec.CompensationDetection = cfg.CompensationDetection
	exec.UseRanges = cfg.UseRanges

	table := hostir.NewOpTable()
	registerStandardOps(table)

	ops := expr.NewOpInfoTable()

	e := &Engine{
		Pool:          pool,
		Containers:    containers,
		Exec:          exec,
		Ops:           ops,
		Table:         table,
		Instrumenter:  instrument.NewInstrumenter(containers, exec, ops, table),
		Config:        cfg,
		important:     make(map[uint64]bool),
		specialOps:    make(map[string]hostir.OpCode),
		nextSpecialOp: realop.OpFMA + 1,
	}
	return e
}

// registerStandardOps defines arity metadata for every builtin realop
// opcode, double-precision scalar by default (PERFORM_OPF's single-
// precision variant is handled per-request in HandleClientRequest rather
// than via the static table, since the same opcode can appear at both
// precisions across different call sites).
func registerStandardOps(table *hostir.OpTable) {
	scalar := func(nargs int) hostir.OpArity {
		return hostir.OpArity{
			NArgs: nargs, OperandBlocks: 1, ResultBlocks: 1,
			ArgPrecision: hostir.KindDouble, ResultKind: hostir.KindDouble,
		}
	}
	table.Define(realop.OpAdd, "+", scalar(2))
	table.Define(realop.OpSub, "-", scalar(2))
	table.Define(realop.OpMul, "*", scalar(2))
	table.Define(realop.OpDiv, "/", scalar(2))
	table.Define(realop.OpNeg, "neg", scalar(1))
	table.Define(realop.OpAbs, "abs", scalar(1))
	table.Define(realop.OpSqrt, "sqrt", scalar(1))
	table.Define(realop.OpSin, "sin", scalar(1))
	table.Define(realop.OpCos, "cos", scalar(1))
	table.Define(realop.OpExp, "exp", scalar(1))
	table.Define(realop.OpLog, "log", scalar(1))
	table.Define(realop.OpFMA, "fma", scalar(3))

	expr.DefineSymbol(realop.OpAdd, "+")
	expr.DefineSymbol(realop.OpSub, "-")
	expr.DefineSymbol(realop.OpMul, "*")
	expr.DefineSymbol(realop.OpDiv, "/")
	expr.DefineSymbol(realop.OpNeg, "neg")
	expr.DefineSymbol(realop.OpAbs, "abs")
	expr.DefineSymbol(realop.OpSqrt, "sqrt")
	expr.DefineSymbol(realop.OpSin, "sin")
	expr.DefineSymbol(realop.OpCos, "cos")
	expr.DefineSymbol(realop.OpExp, "exp")
	expr.DefineSymbol(realop.OpLog, "log")
	expr.DefineSymbol(realop.OpFMA, "fma")
}

// InitInstrumentation logs the start of a session. It exists, distinct
// from New, to mirror the four-entry-point lifecycle spec §9 names; a
// real host calls it once before handing over the first block.
func (e *Engine) InitInstrumentation() {
	log.WithField("error_threshold", e.Config.ErrorThreshold).Debug("instrumentation session started")
}

// InstrumentBlock instruments and (in this fused model) immediately
// executes block against tr, the concrete bytes one execution produced.
// Per spec §5, every emitted effect is a runtime no-op while
// runningDepth is zero -- nested BEGIN/END client requests bracket the
// depth counter -- so a block arriving with depth 0 is skipped entirely
// rather than partially instrumented.
func (e *Engine) InstrumentBlock(block *hostir.Block, tr *instrument.Trace) {
	if e.runningDepth <= 0 {
		return
	}
	if e.Config.PrintSemanticOps {
		log.WithFields(map[string]any{"block_addr": block.Addr, "guest_tid": e.runningTid}).Debug("instrumenting block")
	}
	e.Instrumenter.InstrumentBlock(block, tr)
}

// SetRunningThread records which guest thread the host is currently
// serving (spec §5: "the engine observes only the currently running
// guest thread").
func (e *Engine) SetRunningThread(tid hostir.ThreadID) {
	e.runningTid = tid
}

// RunningDepth returns the current BEGIN/END nesting depth.
func (e *Engine) RunningDepth() int {
	return e.runningDepth
}

// FinishInstrumentation returns the final, error-sorted, subexpression-
// suppression-filtered report entries (spec §4.5's last paragraph), the
// third of the engine's four lifecycle entry points.
func (e *Engine) FinishInstrumentation() []*expr.OpInfo {
	if e.Config.PrintPoolStats {
		stats := e.Pool.Stats()
		log.WithFields(map[string]any{"live": stats.Live, "free": stats.Free}).Info("pool stats at finish")
	}
	return expr.Entries(e.Ops, e.Config.ReportExprs)
}

// WriteOutput runs FinishInstrumentation and writes the resulting
// entries to w in the configured format (spec §6's "Report file"), the
// fourth lifecycle entry point.
func (e *Engine) WriteOutput(w io.Writer) error {
	entries := e.FinishInstrumentation()
	if e.Config.HumanReadable {
		return (&report.HumanWriter{Table: e.Table}).WriteOps(w, entries)
	}
	return report.SExprWriter{}.WriteOps(w, entries)
}

// DefineSpecialOp registers a PERFORM_SPECIAL_OP's real-valued
// implementation under a fresh synthetic opcode and records its name so
// a later client request naming it resolves to the same OpInfoTable
// entries (spec §6's PERFORM_SPECIAL_OP).
func (e *Engine) DefineSpecialOp(name string, nargs int, fn realop.Func) {
	op := e.nextSpecialOp
	e.nextSpecialOp++
	realop.Define(op, fn)
	e.specialOps[name] = op
	e.Table.Define(op, name, hostir.OpArity{
		NArgs: nargs, OperandBlocks: 1, ResultBlocks: 1,
		ArgPrecision: hostir.KindDouble, ResultKind: hostir.KindDouble,
	})
	expr.DefineSymbol(op, name)
}

// IsImportant reports whether addr has been flagged by MARK_IMPORTANT or
// FORCE_TRACK.
func (e *Engine) IsImportant(addr uint64) bool {
	return e.important[addr]
}
