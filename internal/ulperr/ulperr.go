// Package ulperr computes the error metric spec.md's report renders as
// "bits of error": the distance, in ULPs and then log2-compressed to
// bits, between a concrete float and its real-valued counterpart
// reduced to double (spec §4.4, §6).
package ulperr

import (
	"math"

	"shadowprobe/internal/shadowval"
)

// MaxBits is the error value assigned when either operand is a NaN.
// Spec §7 treats ULP error against NaN as maximal and still aggregable,
// not a case to skip.
const MaxBits = 64.0

// Bits returns the bits-of-error between real (reduced to double) and
// concrete.
func Bits(real *shadowval.Real, concrete float64) float64 {
	if real.IsNaN() || math.IsNaN(concrete) {
		return MaxBits
	}
	return math.Log2(float64(Distance(real.GetDouble(), concrete)) + 1)
}

// BitsDouble is Bits for two already-reduced doubles, used when
// comparing a concrete result against a concrete-args real evaluation
// (spec §4.4's local_error, which compares against "f(args_concrete)"
// rather than against a ShadowValue's real).
func BitsDouble(reference, concrete float64) float64 {
	if math.IsNaN(reference) || math.IsNaN(concrete) {
		return MaxBits
	}
	return math.Log2(float64(Distance(reference, concrete)) + 1)
}

// Distance returns the number of representable float64s between a and
// b, using the standard ordered-bit-pattern technique so it holds up
// across sign and magnitude without a floating subtraction that could
// itself lose precision near the extremes.
func Distance(a, b float64) uint64 {
	da, db := orderedBits(a), orderedBits(b)
	if da > db {
		return uint64(da - db)
	}
	return uint64(db - da)
}

func orderedBits(f float64) int64 {
	bits := int64(math.Float64bits(f))
	if bits < 0 {
		bits = math.MinInt64 - bits
	}
	return bits
}
