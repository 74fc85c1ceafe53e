// Package realop is the real-valued operation table (spec.md's
// execute_real_op): given an op's already-resolved real-valued
// arguments, it writes the fresh, never-mutated Real that becomes a
// shadow op's result into a caller-supplied destination box (spec
// §4.4).
package realop

import (
	"math"

	"shadowprobe/internal/hostir"
	"shadowprobe/internal/shadowval"
)

// Canonical opcodes for the float primitives this engine knows how to
// shadow. A real host supplies its own architecture-specific opcode
// space; these stand in for it the way Herbgrind's Iop_* enumerators
// name VEX's primops. PERFORM_SPECIAL_OP (spec §6) registers further
// opcodes at runtime via Define.
const (
	OpAdd hostir.OpCode = iota + 1
	OpSub
	OpMul
	OpDiv
	OpNeg
	OpAbs
	OpSqrt
	OpSin
	OpCos
	OpExp
	OpLog
	OpFMA
)

// Func computes a real-valued result from resolved real-valued
// arguments, writing it into dst. Implementations never mutate an
// argument: a value's real is immutable once published (spec §4.4). dst
// is ordinarily the result ShadowValue's own Real box, reused in place
// rather than allocated fresh per op.
type Func func(dst *shadowval.Real, args []*shadowval.Real)

var table = map[hostir.OpCode]Func{
	OpAdd:  func(dst *shadowval.Real, a []*shadowval.Real) { dst.Add(a[0], a[1]) },
	OpSub:  func(dst *shadowval.Real, a []*shadowval.Real) { dst.Sub(a[0], a[1]) },
	OpMul:  func(dst *shadowval.Real, a []*shadowval.Real) { dst.Mul(a[0], a[1]) },
	OpDiv:  func(dst *shadowval.Real, a []*shadowval.Real) { dst.Quo(a[0], a[1]) },
	OpNeg:  func(dst *shadowval.Real, a []*shadowval.Real) { dst.Neg(a[0]) },
	OpAbs:  func(dst *shadowval.Real, a []*shadowval.Real) { dst.Abs(a[0]) },
	OpSqrt: func(dst *shadowval.Real, a []*shadowval.Real) { sqrtReal(dst, a[0]) },
	OpSin:  func(dst *shadowval.Real, a []*shadowval.Real) { transcendental(math.Sin)(dst, a[0]) },
	OpCos:  func(dst *shadowval.Real, a []*shadowval.Real) { transcendental(math.Cos)(dst, a[0]) },
	OpExp:  func(dst *shadowval.Real, a []*shadowval.Real) { transcendental(math.Exp)(dst, a[0]) },
	OpLog:  func(dst *shadowval.Real, a []*shadowval.Real) { transcendental(math.Log)(dst, a[0]) },
	OpFMA:  func(dst *shadowval.Real, a []*shadowval.Real) { fmaReal(dst, a[0], a[1], a[2]) },
}

// Define registers or overrides op's real-valued implementation. Used to
// wire PERFORM_SPECIAL_OP client requests (spec §6), which name a
// user-defined op rather than one of the built-ins above.
func Define(op hostir.OpCode, fn Func) { table[op] = fn }

// Lookup returns op's registered implementation, if any.
func Lookup(op hostir.OpCode) (Func, bool) {
	fn, ok := table[op]
	return fn, ok
}

// Eval is a convenience for callers (tests, the executor's local-error
// recomputation) that want a fresh Real rather than writing into an
// existing box.
func Eval(fn Func, args []*shadowval.Real) *shadowval.Real {
	dst := shadowval.NewReal(0)
	fn(dst, args)
	return dst
}

func sqrtReal(dst, a *shadowval.Real) {
	if a.IsNaN() || a.Sign() < 0 {
		dst.SetNaN()
		return
	}
	dst.Sqrt(a)
}

// fmaReal computes a*b + c, grounded on the fused multiply-add triops
// (e.g. VEX's Iop_MAddF64) that real hardware shadows as a single
// rounding step. The intermediate product is scratch; only dst is
// published.
func fmaReal(dst, a, b, c *shadowval.Real) {
	prod := shadowval.NewReal(0)
	prod.Mul(a, b)
	dst.Add(prod, c)
}

// transcendental wraps a double-precision elementary function as a real
// op. No library in the example corpus provides arbitrary-precision
// transcendental functions (math/big covers only field arithmetic and
// Sqrt), so these reduce their argument to double, compute in double
// precision, and promote the result back into a Real box -- a documented
// precision ceiling for this one class of op, not a correctness bug: the
// reported error for a transcendental op is only ever as tight as a
// double computation allows.
func transcendental(fn func(float64) float64) func(dst, a *shadowval.Real) {
	return func(dst, a *shadowval.Real) {
		if a.IsNaN() {
			dst.SetNaN()
			return
		}
		v := fn(a.GetDouble())
		if math.IsNaN(v) {
			dst.SetNaN()
			return
		}
		dst.SetFloat64(v)
	}
}
