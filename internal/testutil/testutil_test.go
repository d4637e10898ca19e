package testutil

import (
	"errors"
	"math"
	"testing"
)

// Note: Testing t.Errorf/t.Fatalf calls requires a mock testing.T
// implementation which adds complexity. The assertion helpers are best
// validated through the packages where they're actually used; here we
// only verify the non-failure paths and the fixture geometry.

func TestAssertHelpers(t *testing.T) {
	t.Parallel()

	AssertNoError(t, nil)
	AssertError(t, errors.New("something wrong"))
	AssertInDelta(t, 1.0000001, 1.0, 1e-6)
}

func TestBasicCloudGeometry(t *testing.T) {
	t.Parallel()

	b := BuildBasicCloud()
	if b.Len() != 2 {
		t.Fatalf("basic cloud has %d rays, want 2", b.Len())
	}
	if r := b.Ends[0].Sub(b.Starts[0]).Norm(); r != 1 {
		t.Errorf("ray 0 range = %v, want 1", r)
	}
	if r := b.Ends[1].Sub(b.Starts[1]).Norm(); r != 2 {
		t.Errorf("ray 1 range = %v, want 2", r)
	}
	if b.Colors[0].A != 204.0/255 {
		t.Errorf("ray 0 intensity = %v, want 204/255", b.Colors[0].A)
	}
}

func TestAoICloudGeometry(t *testing.T) {
	t.Parallel()

	b := BuildAoICloud()
	if b.Len() != 25 {
		t.Fatalf("aoi cloud has %d rays, want 25", b.Len())
	}
	for i := range b.Ends {
		if b.Ends[i].Z != 0 {
			t.Fatalf("ray %d end off the z=0 plane: %v", i, b.Ends[i])
		}
	}

	ray0 := b.Starts[0].Sub(b.Ends[0])
	if math.Abs(ray0.NormSq()-2) > 1e-12 {
		t.Errorf("ray 0 squared range = %v, want 2", ray0.NormSq())
	}
	cos := ray0.Normalized().Z
	if math.Abs(cos-aoiCos) > 1e-12 {
		t.Errorf("ray 0 incidence cosine = %v, want %v", cos, aoiCos)
	}

	if r := b.Starts[1].Sub(b.Ends[1]).Norm(); r != 1 {
		t.Errorf("ray 1 range = %v, want 1", r)
	}
}

func TestMixedCloudGeometry(t *testing.T) {
	t.Parallel()

	b := BuildMixedCloud()
	if b.Len() != 18 {
		t.Fatalf("mixed cloud has %d rays, want 18", b.Len())
	}

	if sq := b.Ends[0].Sub(b.Starts[0]).NormSq(); sq != 2.25 {
		t.Errorf("ray 0 squared range = %v, want 2.25", sq)
	}
	if sq := b.Ends[1].Sub(b.Starts[1]).NormSq(); math.Abs(sq-1.01) > 1e-12 {
		t.Errorf("ray 1 squared range = %v, want 1.01", sq)
	}

	// Exactly eight neighbours near each probe ray, none shared.
	near0, near1 := 0, 0
	for i := 2; i < b.Len(); i++ {
		switch {
		case b.Ends[i].DistSq(b.Ends[0]) < 1:
			near0++
		case b.Ends[i].DistSq(b.Ends[1]) < 1:
			near1++
		}
	}
	if near0 != 8 || near1 != 8 {
		t.Errorf("cluster sizes = %d and %d, want 8 and 8", near0, near1)
	}
}
