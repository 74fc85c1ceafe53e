// Package shadowval implements the reference-counted shadow-value pool
// (spec.md component C1): an arbitrary-precision Real paired with a
// float-kind tag, a symbolic expression, and an influence set, recycled
// through a single free-list (Pool) instead of garbage collected.
package shadowval

import (
	"math/big"
)

// DefaultPrecision is the number of mantissa bits carried by a Real. 512
// bits gives several times a double's 53-bit mantissa of headroom, enough
// for the ULP-error computation in internal/ulperr to stay meaningful
// across long chains of compounding operations.
const DefaultPrecision = uint(512)

// Real is the opaque arbitrary-precision real value spec.md treats as an
// external collaborator. It wraps math/big.Float -- see DESIGN.md for why
// no third-party bignum/decimal library in the example corpus fits -- and
// exposes exactly the field operations and GetDouble projection spec.md
// names, nothing more.
type Real struct {
	f   *big.Float
	nan bool
}

// NewReal builds a Real initialized from a concrete double, at the
// package's default precision.
func NewReal(v float64) *Real {
	return &Real{f: new(big.Float).SetPrec(DefaultPrecision).SetFloat64(v)}
}

// zeroReal builds a Real equal to 0 without allocating through NewReal's
// float64 path, used by MakeBare.
func zeroReal() *Real {
	return &Real{f: new(big.Float).SetPrec(DefaultPrecision)}
}

// GetDouble projects the Real down to a float64, the "reduced to double"
// operation the ULP-error metric and var-map leaf comparisons use.
func (r *Real) GetDouble() float64 {
	v, _ := r.f.Float64()
	return v
}

// SetFloat64 reinitializes r in place from a concrete double. Only valid
// on a Real owned by a freshly recycled (ref_count-zero) ShadowValue --
// see Pool.MakeValue.
func (r *Real) SetFloat64(v float64) {
	r.clearNaN()
	r.f.SetFloat64(v)
}

func (r *Real) Add(a, b *Real) *Real { r.f.Add(a.f, b.f); return r }
func (r *Real) Sub(a, b *Real) *Real { r.f.Sub(a.f, b.f); return r }
func (r *Real) Mul(a, b *Real) *Real { r.f.Mul(a.f, b.f); return r }
func (r *Real) Quo(a, b *Real) *Real { r.f.Quo(a.f, b.f); return r }
func (r *Real) Neg(a *Real) *Real    { r.f.Neg(a.f); return r }
func (r *Real) Abs(a *Real) *Real    { r.f.Abs(a.f); return r }

// Sqrt sets r to a's rounded square root. Callers must not invoke this on
// a negative a; big.Float.Sqrt panics in that case, so package realop
// checks Sign first and produces a NaN sentinel instead.
func (r *Real) Sqrt(a *Real) *Real { r.f.Sqrt(a.f); return r }

// Sign returns -1, 0, or +1 according to r's sign, mirroring big.Float.Sign.
func (r *Real) Sign() int { return r.f.Sign() }

// IsZero reports whether r is exactly zero.
func (r *Real) IsZero() bool { return r.f.Sign() == 0 }

// IsNaN reports whether r represents a NaN. big.Float has no native NaN,
// so Reals track it via a sentinel produced by operations that would
// overflow/underflow to NaN in double (spec §7's "Numerical anomalies").
func (r *Real) IsNaN() bool { return r.nan }

// SetNaN marks r as representing NaN. The underlying big.Float value is
// left at zero; callers must check IsNaN before trusting GetDouble.
func (r *Real) SetNaN() *Real {
	r.nan = true
	r.f.SetFloat64(0)
	return r
}

// clearNaN resets the NaN sentinel, used when a Real box is recycled.
func (r *Real) clearNaN() { r.nan = false }
