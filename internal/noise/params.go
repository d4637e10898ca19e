// Package noise derives a per-point positional-uncertainty estimate for
// large ray clouds in two bounded-memory passes: surface normals first,
// then a four-component variance decomposition. The passes communicate
// through an intermediate cloud file so that neither ever holds more
// than one chunk of records in memory.
package noise

import "fmt"

// Params are the uncertainty-model coefficients for one pipeline run.
// A run's parameters are fixed at start; mutate a copy for the next run.
type Params struct {
	// BaseRangeAccuracy is the sensor's 1-sigma range accuracy in metres.
	BaseRangeAccuracy float64
	// BaseAngleAccuracy is the sensor's 1-sigma angular accuracy in radians.
	BaseAngleAccuracy float64
	// CIntensity scales the low-intensity penalty on range variance.
	CIntensity float64
	// Epsilon guards the intensity division.
	Epsilon float64
	// CAoI scales the angle-of-incidence variance.
	CAoI float64
	// EpsilonAoI guards the grazing-angle division and sets the
	// conservative fallback CAoI/EpsilonAoI used for unreliable normals.
	EpsilonAoI float64
	// PenaltyMixed is the variance added to points flagged as mixed pixels.
	PenaltyMixed float64
	// KMixed is the neighbour count examined for mixed-pixel detection.
	KMixed int
	// DepthThreshMixed is the along-ray depth split (metres) separating
	// in-front from behind neighbours.
	DepthThreshMixed float64
	// MinFrontMixed and MinBehindMixed are the neighbour counts on each
	// side of the depth split required to flag a mixed pixel.
	MinFrontMixed  int
	MinBehindMixed int
	// ChunkSize bounds how many records either pass holds in memory.
	// Neighbour visibility for normals and mixed-pixel detection is
	// limited to the current chunk; accuracy degrades as ChunkSize
	// approaches KMixed.
	ChunkSize int
}

// DefaultParams returns the sensor-model defaults.
func DefaultParams() Params {
	return Params{
		BaseRangeAccuracy: 0.02,
		BaseAngleAccuracy: 0.0035,
		CIntensity:        0.5,
		Epsilon:           0.01,
		CAoI:              0.1,
		EpsilonAoI:        0.01,
		PenaltyMixed:      0.5,
		KMixed:            8,
		DepthThreshMixed:  0.05,
		MinFrontMixed:     1,
		MinBehindMixed:    1,
		ChunkSize:         1_000_000,
	}
}

// Validate rejects parameter sets the model cannot evaluate.
func (p Params) Validate() error {
	switch {
	case p.BaseRangeAccuracy < 0:
		return fmt.Errorf("noise: base_range_accuracy must be >= 0, got %g", p.BaseRangeAccuracy)
	case p.BaseAngleAccuracy < 0:
		return fmt.Errorf("noise: base_angle_accuracy must be >= 0, got %g", p.BaseAngleAccuracy)
	case p.Epsilon <= 0:
		return fmt.Errorf("noise: epsilon must be > 0, got %g", p.Epsilon)
	case p.EpsilonAoI <= 0:
		return fmt.Errorf("noise: epsilon_aoi must be > 0, got %g", p.EpsilonAoI)
	case p.CIntensity < 0 || p.CAoI < 0 || p.PenaltyMixed < 0:
		return fmt.Errorf("noise: model coefficients must be >= 0")
	case p.KMixed < 1:
		return fmt.Errorf("noise: k_mixed must be >= 1, got %d", p.KMixed)
	case p.DepthThreshMixed < 0:
		return fmt.Errorf("noise: depth_thresh_mixed must be >= 0, got %g", p.DepthThreshMixed)
	case p.MinFrontMixed < 0 || p.MinBehindMixed < 0:
		return fmt.Errorf("noise: mixed-pixel neighbour minimums must be >= 0")
	case p.ChunkSize < 1:
		return fmt.Errorf("noise: chunk_size must be >= 1, got %d", p.ChunkSize)
	}
	return nil
}
