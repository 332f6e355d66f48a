// Package fixedpoint provides the deterministic scalar type every piece of
// replayable simulation state is built from. See design doc Section 3.1.
package fixedpoint

import "math"

// Scale is the fixed-point denominator: one logical unit equals Scale raw units.
const Scale int64 = 1_000_000

// clampBound is the saturation boundary for add/sub in logical units (±9.2e12).
const clampBound int64 = math.MaxInt64 - Scale

// Scalar is a signed 64-bit fixed-point number: value = raw / Scale.
// All simulation state that must reproduce bit-exactly is carried as a
// Scalar; interior math never passes through float32/float64.
type Scalar struct {
	raw int64
}

// Zero is the additive identity.
var Zero = Scalar{}

// One is the multiplicative identity.
var One = Scalar{raw: Scale}

// FromInt builds a Scalar representing the integer n.
func FromInt(n int64) Scalar {
	return Scalar{raw: n * Scale}
}

// FromRaw builds a Scalar from an already-scaled raw value (as carried on
// the wire — see §6.2).
func FromRaw(raw int64) Scalar {
	return Scalar{raw: raw}
}

// FromFloat32 converts a rendering-bound float into a Scalar. Only call this
// at a serialization boundary — never inside a deterministic step.
func FromFloat32(f float32) Scalar {
	return Scalar{raw: int64(math.Round(float64(f) * float64(Scale)))}
}

// Raw returns the underlying scaled integer, for wire encoding.
func (s Scalar) Raw() int64 {
	return s.raw
}

// Float32 converts to a rendering-bound float32. Only call this at a
// serialization boundary.
func (s Scalar) Float32() float32 {
	return float32(float64(s.raw) / float64(Scale))
}

// Add returns s+o, saturating at the logical clamp boundary on overflow.
func (s Scalar) Add(o Scalar) Scalar {
	sum := s.raw + o.raw
	// Overflow check via sign comparison: if both operands share a sign and
	// the result doesn't, we saturated.
	if (s.raw > 0 && o.raw > 0 && sum < 0) || sum > clampBound {
		return Scalar{raw: clampBound}
	}
	if (s.raw < 0 && o.raw < 0 && sum > 0) || sum < -clampBound {
		return Scalar{raw: -clampBound}
	}
	return Scalar{raw: sum}
}

// Sub returns s-o, saturating at the logical clamp boundary on overflow.
func (s Scalar) Sub(o Scalar) Scalar {
	return s.Add(Scalar{raw: -o.raw})
}

// Mul returns s*o. The raw operands are always multiplied into a full
// 128-bit product (no big.Int), which is then divided by Scale; a quotient
// that does not fit the raw range saturates to the signed bound.
func (s Scalar) Mul(o Scalar) Scalar {
	// Widen via float64 intermediate is disallowed (determinism); the
	// 128-bit product keeps every intermediate exact.
	hi, lo := mul64(s.raw, o.raw)
	raw, overflow := divScale(hi, lo)
	if overflow {
		if (s.raw < 0) != (o.raw < 0) {
			return Scalar{raw: -clampBound}
		}
		return Scalar{raw: clampBound}
	}
	return Scalar{raw: raw}
}

// Div returns s/o. Division multiplies by Scale before dividing so
// precision is kept. Division by zero returns Zero.
func (s Scalar) Div(o Scalar) Scalar {
	if o.raw == 0 {
		return Zero
	}
	return Scalar{raw: scaledDiv(s.raw, o.raw)}
}

// scaledDiv computes (a*Scale)/b using 128-bit intermediate arithmetic via
// math/bits-free manual widening, avoiding float round-trips.
func scaledDiv(a, b int64) int64 {
	neg := false
	if a < 0 {
		a = -a
		neg = !neg
	}
	if b < 0 {
		b = -b
		neg = !neg
	}
	hi, lo := mul64u(uint64(a), uint64(Scale))
	q := divu128(hi, lo, uint64(b))
	if q > uint64(clampBound) {
		q = uint64(clampBound)
	}
	if neg {
		return -int64(q)
	}
	return int64(q)
}

// Clamp restricts s to [lo, hi].
func (s Scalar) Clamp(lo, hi Scalar) Scalar {
	if s.raw < lo.raw {
		return lo
	}
	if s.raw > hi.raw {
		return hi
	}
	return s
}

// Neg returns -s.
func (s Scalar) Neg() Scalar {
	return Scalar{raw: -s.raw}
}

// Abs returns |s|.
func (s Scalar) Abs() Scalar {
	if s.raw < 0 {
		return Scalar{raw: -s.raw}
	}
	return s
}

// Lt, Lte, Gt, Gte, Eq are total-order comparisons over the raw value.
func (s Scalar) Lt(o Scalar) bool  { return s.raw < o.raw }
func (s Scalar) Lte(o Scalar) bool { return s.raw <= o.raw }
func (s Scalar) Gt(o Scalar) bool  { return s.raw > o.raw }
func (s Scalar) Gte(o Scalar) bool { return s.raw >= o.raw }
func (s Scalar) Eq(o Scalar) bool  { return s.raw == o.raw }
func (s Scalar) IsZero() bool      { return s.raw == 0 }
func (s Scalar) IsNeg() bool       { return s.raw < 0 }

// Min and Max are order-preserving helpers used throughout the subsystem
// steps (§4) for clamping and donor/receiver comparisons.
func Min(a, b Scalar) Scalar {
	if a.raw < b.raw {
		return a
	}
	return b
}

func Max(a, b Scalar) Scalar {
	if a.raw > b.raw {
		return a
	}
	return b
}

// mul64 returns the signed 128-bit product of a*b as (hi, lo) two's
// complement halves, used by Mul to detect overflow before dividing by Scale.
func mul64(a, b int64) (hi, lo int64) {
	neg := (a < 0) != (b < 0)
	ua, ub := uint64(a), uint64(b)
	if a < 0 {
		ua = uint64(-a)
	}
	if b < 0 {
		ub = uint64(-b)
	}
	uhi, ulo := mul64u(ua, ub)
	if neg {
		// Two's complement negate the 128-bit pair (uhi:ulo).
		ulo = ^ulo + 1
		uhi = ^uhi
		if ulo == 0 {
			uhi++
		}
	}
	return int64(uhi), int64(ulo)
}

// mul64u computes the unsigned 128-bit product of a*b as (hi, lo).
func mul64u(a, b uint64) (hi, lo uint64) {
	const mask = 0xFFFFFFFF
	aLo, aHi := a&mask, a>>32
	bLo, bHi := b&mask, b>>32

	t := aLo * bLo
	w0 := t & mask
	k := t >> 32

	t = aHi*bLo + k
	w1 := t & mask
	w2 := t >> 32

	t = aLo*bHi + w1
	k = t >> 32

	hi = aHi*bHi + w2 + k
	lo = (t << 32) | w0
	return hi, lo
}

// divu128 divides the unsigned 128-bit value (hi:lo) by d, returning the
// 64-bit quotient. Used for the /Scale step of Mul and the *Scale step of
// Div. Panics are avoided; a divisor of zero returns 0 (callers guard it).
func divu128(hi, lo, d uint64) uint64 {
	if d == 0 {
		return 0
	}
	if hi == 0 {
		return lo / d
	}
	// Long division, one bit at a time — values in this simulation never
	// approach the full 128-bit range, so this is run rarely (only near
	// the saturation boundary) and clarity wins over speed here.
	var rem uint64
	var quot uint64
	for i := 127; i >= 0; i-- {
		rem <<= 1
		var bit uint64
		if i >= 64 {
			bit = (hi >> uint(i-64)) & 1
		} else {
			bit = (lo >> uint(i)) & 1
		}
		rem |= bit
		quot <<= 1
		if rem >= d {
			rem -= d
			quot |= 1
		}
	}
	return quot
}

// divScale divides the signed 128-bit product (hi:lo) by Scale, returning
// the raw int64 result and whether it overflowed the clamp boundary.
func divScale(hi, lo int64) (int64, bool) {
	neg := hi < 0
	uhi, ulo := uint64(hi), uint64(lo)
	if neg {
		ulo = ^ulo + 1
		uhi = ^uhi
		if ulo == 0 {
			uhi++
		}
	}
	q := divu128(uhi, ulo, uint64(Scale))
	if q > uint64(clampBound) {
		return 0, true
	}
	if neg {
		return -int64(q), false
	}
	return int64(q), false
}
