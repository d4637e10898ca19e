package noise

import (
	"strings"
	"testing"
)

func TestDefaultParamsValid(t *testing.T) {
	if err := DefaultParams().Validate(); err != nil {
		t.Fatalf("defaults failed validation: %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Params)
		want   string
	}{
		{"negative range accuracy", func(p *Params) { p.BaseRangeAccuracy = -0.1 }, "base_range_accuracy"},
		{"negative angle accuracy", func(p *Params) { p.BaseAngleAccuracy = -1 }, "base_angle_accuracy"},
		{"zero epsilon", func(p *Params) { p.Epsilon = 0 }, "epsilon"},
		{"zero epsilon_aoi", func(p *Params) { p.EpsilonAoI = 0 }, "epsilon_aoi"},
		{"negative coefficient", func(p *Params) { p.CIntensity = -0.5 }, "coefficients"},
		{"zero k_mixed", func(p *Params) { p.KMixed = 0 }, "k_mixed"},
		{"negative depth threshold", func(p *Params) { p.DepthThreshMixed = -0.01 }, "depth_thresh_mixed"},
		{"negative neighbour minimum", func(p *Params) { p.MinFrontMixed = -1 }, "minimums"},
		{"zero chunk size", func(p *Params) { p.ChunkSize = 0 }, "chunk_size"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := DefaultParams()
			tc.mutate(&p)
			err := p.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestValidateAllowsDisabledModel(t *testing.T) {
	p := DefaultParams()
	p.CIntensity = 0
	p.CAoI = 0
	p.PenaltyMixed = 0
	if err := p.Validate(); err != nil {
		t.Errorf("zero coefficients should validate: %v", err)
	}
}
