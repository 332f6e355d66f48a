package fixedpoint

import "testing"

func TestAddSub(t *testing.T) {
	a := FromInt(2)
	b := FromInt(3)
	if got := a.Add(b); got != FromInt(5) {
		t.Fatalf("Add = %v, want 5", got.Float32())
	}
	if got := b.Sub(a); got != FromInt(1) {
		t.Fatalf("Sub = %v, want 1", got.Float32())
	}
}

func TestAddSaturates(t *testing.T) {
	hi := Scalar{raw: clampBound}
	got := hi.Add(FromInt(1))
	if got.raw != clampBound {
		t.Fatalf("Add did not saturate: got raw %d, want %d", got.raw, clampBound)
	}
}

func TestMulDivRoundTrip(t *testing.T) {
	a := FromFloat32(1.5)
	b := FromFloat32(2.0)
	got := a.Mul(b)
	want := FromFloat32(3.0)
	if got != want {
		t.Fatalf("Mul = %v, want %v", got.Float32(), want.Float32())
	}
	back := got.Div(b)
	if back != a {
		t.Fatalf("Div round-trip = %v, want %v", back.Float32(), a.Float32())
	}
}

func TestDivByZero(t *testing.T) {
	if got := FromInt(5).Div(Zero); got != Zero {
		t.Fatalf("Div by zero = %v, want 0", got.Float32())
	}
}

func TestClamp(t *testing.T) {
	lo, hi := FromInt(-1), One
	if got := FromInt(5).Clamp(lo, hi); got != hi {
		t.Fatalf("Clamp high = %v, want 1", got.Float32())
	}
	if got := FromInt(-5).Clamp(lo, hi); got != lo {
		t.Fatalf("Clamp low = %v, want -1", got.Float32())
	}
}

func TestNegAbs(t *testing.T) {
	a := FromInt(3)
	if got := a.Neg(); got != FromInt(-3) {
		t.Fatalf("Neg = %v, want -3", got.Float32())
	}
	if got := a.Neg().Abs(); got != a {
		t.Fatalf("Abs = %v, want 3", got.Float32())
	}
}

func TestMinMax(t *testing.T) {
	a, b := FromInt(2), FromInt(7)
	if got := Min(a, b); got != a {
		t.Fatalf("Min = %v, want 2", got.Float32())
	}
	if got := Max(a, b); got != b {
		t.Fatalf("Max = %v, want 7", got.Float32())
	}
}
