// Package testutil provides shared test utilities and fixtures.
//
// This package centralises common test helpers to reduce code duplication
// across test files and improve test maintainability.
package testutil

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/banshee-data/raynoise/internal/geom"
	"github.com/banshee-data/raynoise/internal/rayply"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// AssertInDelta checks that got is within delta of want.
func AssertInDelta(t *testing.T, got, want, delta float64) {
	t.Helper()
	if math.Abs(got-want) > delta {
		t.Errorf("got %.12g, want %.12g (delta %.3g, allowed %.3g)", got, want, math.Abs(got-want), delta)
	}
}

// WriteRayCloud writes b as a ray-cloud PLY under dir and returns its path.
func WriteRayCloud(t *testing.T, dir, name string, b *rayply.Batch) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if _, err := rayply.WriteCloud(path, rayply.SchemaRayCloud, b); err != nil {
		t.Fatalf("writing fixture cloud %s: %v", name, err)
	}
	return path
}

// BuildBasicCloud returns a two-ray cloud exercising range and angular
// variance. Ray 0 has range 1 with intensity 0.8, ray 1 has range 2 with
// intensity 77/255. Both neighbourhoods are too sparse for a surface fit.
func BuildBasicCloud() *rayply.Batch {
	return &rayply.Batch{
		Starts: []geom.Vec3{{X: 0, Y: 0, Z: 0}, {X: 0, Y: 0, Z: 0}},
		Ends:   []geom.Vec3{{X: 1, Y: 0, Z: 0}, {X: 0, Y: 2, Z: 0}},
		Times:  []float64{0.01, 0.02},
		Colors: []rayply.RGBA{
			{R: 1, G: 1, B: 1, A: 204.0 / 255.0},
			{R: 1, G: 1, B: 1, A: 77.0 / 255.0},
		},
	}
}

// aoiCos is the incidence cosine for ray 0 of the AoI fixture.
const aoiCos = 0.7071113331970398

// BuildAoICloud returns a planar grid cloud where every surface normal
// comes out as +Z. Ray 0 hits at 45 degrees with range sqrt(2); ray 1
// hits head-on with range 1. The grid spacing keeps each point's
// neighbourhood strictly coplanar.
func BuildAoICloud() *rayply.Batch {
	b := &rayply.Batch{}
	sin := math.Sqrt(1 - aoiCos*aoiCos)

	p0 := geom.Vec3{X: 0, Y: 0, Z: 0}
	p1 := geom.Vec3{X: 0.1, Y: 0, Z: 0}
	addRay(b, p0.Add(geom.Vec3{X: math.Sqrt2 * sin, Z: math.Sqrt2 * aoiCos}), p0)
	addRay(b, p1.Add(geom.Vec3{Z: 1}), p1)

	for i := -2; i <= 2; i++ {
		for j := -2; j <= 2; j++ {
			if (i == 0 || i == 1) && j == 0 {
				continue
			}
			end := geom.Vec3{X: float64(i) * 0.1, Y: float64(j) * 0.1, Z: 0}
			addRay(b, end.Add(geom.Vec3{Z: 1}), end)
		}
	}
	return b
}

// BuildMixedCloud returns a cloud with two clusters. Ray 0 sits between
// four returns 0.2 ahead of it and four 0.2 behind it along its ray, so
// a mixed-pixel test flags it. Ray 1 sits in a coplanar cluster whose
// neighbours stay within the depth threshold. The clusters are 50 apart
// so neighbour searches never cross them.
func BuildMixedCloud() *rayply.Batch {
	b := &rayply.Batch{}

	p0 := geom.Vec3{X: 0, Y: 0, Z: 0}
	addRay(b, p0.Add(geom.Vec3{Z: 1.5}), p0)
	p1 := geom.Vec3{X: 50, Y: 0, Z: 0}
	addRay(b, p1.Add(geom.Vec3{X: 0.1, Z: 1}), p1)

	// Cluster around ray 0: exactly eight neighbours split across the
	// ray direction.
	split := []geom.Vec3{
		{X: 0.01, Z: 0.2}, {X: -0.01, Z: 0.2}, {Y: 0.01, Z: 0.2}, {Y: -0.01, Z: 0.2},
		{X: 0.01, Z: -0.2}, {X: -0.01, Z: -0.2}, {Y: 0.01, Z: -0.2}, {Y: -0.01, Z: -0.2},
	}
	for _, off := range split {
		end := p0.Add(off)
		addRay(b, end.Add(geom.Vec3{Z: 1.5}), end)
	}

	// Cluster around ray 1: eight coplanar neighbours, all within the
	// depth threshold for its slightly tilted ray.
	flat := []geom.Vec3{
		{X: 0.2}, {X: -0.2}, {Y: 0.2}, {Y: -0.2},
		{X: 0.2, Y: 0.2}, {X: 0.2, Y: -0.2}, {X: -0.2, Y: 0.2}, {X: -0.2, Y: -0.2},
	}
	for _, off := range flat {
		end := p1.Add(off)
		addRay(b, end.Add(geom.Vec3{X: 0.1, Z: 1}), end)
	}
	return b
}

func addRay(b *rayply.Batch, start, end geom.Vec3) {
	b.Starts = append(b.Starts, start)
	b.Ends = append(b.Ends, end)
	b.Times = append(b.Times, float64(len(b.Ends))*0.01)
	b.Colors = append(b.Colors, rayply.RGBA{R: 1, G: 1, B: 1, A: 1})
}
