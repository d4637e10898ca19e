package geom

import (
	"math"
	"testing"
)

func TestVecArithmetic(t *testing.T) {
	a := Vec3{X: 1, Y: 2, Z: 3}
	b := Vec3{X: 4, Y: -2, Z: 0.5}

	if got := a.Add(b); got != (Vec3{X: 5, Y: 0, Z: 3.5}) {
		t.Errorf("Add = %v", got)
	}
	if got := a.Sub(b); got != (Vec3{X: -3, Y: 4, Z: 2.5}) {
		t.Errorf("Sub = %v", got)
	}
	if got := a.Scale(2); got != (Vec3{X: 2, Y: 4, Z: 6}) {
		t.Errorf("Scale = %v", got)
	}
	if got := a.Dot(b); got != 1.5 {
		t.Errorf("Dot = %v, want 1.5", got)
	}
	if got := a.NormSq(); got != 14 {
		t.Errorf("NormSq = %v, want 14", got)
	}
	if got := (Vec3{X: 3, Y: 4}).Norm(); got != 5 {
		t.Errorf("Norm = %v, want 5", got)
	}
	if got := a.DistSq(b); got != 31.25 {
		t.Errorf("DistSq = %v, want 31.25", got)
	}
}

func TestNormalized(t *testing.T) {
	v := Vec3{X: 0, Y: 3, Z: 4}.Normalized()
	if math.Abs(v.Norm()-1) > 1e-15 {
		t.Errorf("Normalized length = %v, want 1", v.Norm())
	}
	// Scaling by 1/n accumulates a rounding step, so compare within an ulp
	// or two rather than exactly.
	if math.Abs(v.Y-0.6) > 1e-15 || math.Abs(v.Z-0.8) > 1e-15 {
		t.Errorf("Normalized = %v, want (0, 0.6, 0.8)", v)
	}

	if got := (Vec3{}).Normalized(); !got.IsZero() {
		t.Errorf("Normalized zero vector = %v, want zero", got)
	}
}

func TestIsZero(t *testing.T) {
	if !(Vec3{}).IsZero() {
		t.Error("zero vector should report IsZero")
	}
	if (Vec3{Z: 1e-300}).IsZero() {
		t.Error("tiny but nonzero vector should not report IsZero")
	}
}
