package noise

import (
	"log"

	"github.com/banshee-data/raynoise/internal/geom"
	"github.com/banshee-data/raynoise/internal/knn"
	"github.com/banshee-data/raynoise/internal/rayply"
)

// defaultIntensity stands in for the normalised return intensity when
// the cloud carries no colour channels.
const defaultIntensity = 0.5

// ComputeUncertainty runs pass 2: it streams the intermediate cloud
// written by EstimateNormals and writes the final cloud with the
// four-component variance decomposition per point. Mixed-pixel
// detection sees only the current chunk; points whose chunk cannot
// supply KMixed neighbours are never flagged, and points whose normal
// is the zero sentinel get the conservative CAoI/EpsilonAoI fallback.
// Returns the record count written.
func ComputeUncertainty(inPath, outPath string, p Params) (int64, error) {
	return computeUncertainty(inPath, outPath, p, false, nil)
}

func computeUncertainty(inPath, outPath string, p Params, verbose bool, onFinalize func()) (int64, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	r, err := rayply.Open(inPath, rayply.ReadTimesOptional())
	if err != nil {
		return 0, err
	}
	defer r.Close()

	w, err := rayply.CreateFinal(outPath, rayply.TimesOptional())
	if err != nil {
		return 0, err
	}

	baseRangeVar := p.BaseRangeAccuracy * p.BaseRangeAccuracy
	baseAngleVar := p.BaseAngleAccuracy * p.BaseAngleAccuracy
	var degenerateNormals int64

	err = r.ForEachChunk(p.ChunkSize, func(b *rayply.Batch) error {
		if b.Starts == nil {
			b.Starts = make([]geom.Vec3, b.Len())
		}
		var index knn.Index
		if p.PenaltyMixed > 0 {
			index = knn.New(b.Ends)
		}

		vars := make([]rayply.Variance, b.Len())
		for i := range b.Ends {
			ray := b.Ends[i].Sub(b.Starts[i])
			rangeSq := ray.NormSq()

			intensity := defaultIntensity
			if b.Colors != nil {
				intensity = b.Colors[i].A
			}
			v := rayply.Variance{
				Range:   baseRangeVar * (1 + p.CIntensity/(intensity+p.Epsilon)),
				Angular: rangeSq * baseAngleVar,
			}

			var normal geom.Vec3
			if b.Normals != nil {
				normal = b.Normals[i]
			}
			toSensor := b.Starts[i].Sub(b.Ends[i]).Normalized()
			if cos := toSensor.Dot(normal); !normal.IsZero() && !toSensor.IsZero() && cos > 0 {
				v.AoI = p.CAoI / (cos + p.EpsilonAoI)
			} else {
				// Worst-case grazing-angle estimate; conservative fallback
				// for sentinel or back-facing normals.
				degenerateNormals++
				v.AoI = p.CAoI / p.EpsilonAoI
			}

			if index != nil && p.isMixedPixel(index, b.Ends, i, toSensor.Scale(-1)) {
				v.MixedPixel = p.PenaltyMixed
			}

			v.Total = v.Range + v.Angular + v.AoI + v.MixedPixel
			vars[i] = v
		}
		b.Variances = vars
		b.Normals = nil
		return w.AppendChunk(b)
	})
	if err != nil {
		w.Abort()
		return 0, err
	}

	if onFinalize != nil {
		onFinalize()
	}
	count, err := w.Close()
	if err != nil {
		return count, err
	}
	if (degenerateNormals > 0 && p.CAoI > 0) || verbose {
		log.Printf("noise: pass2 wrote %d records to %s (%d conservative angle-of-incidence fallbacks)", count, outPath, degenerateNormals)
	}
	return count, nil
}

// isMixedPixel reports whether point i straddles a depth discontinuity:
// among its KMixed nearest neighbours in the current chunk, at least
// MinFrontMixed sit closer to the sensor and MinBehindMixed sit farther
// along the ray, beyond DepthThreshMixed either way. A chunk that
// cannot supply KMixed neighbours never flags (accepted accuracy loss
// as ChunkSize approaches KMixed).
func (p Params) isMixedPixel(index knn.Index, pts []geom.Vec3, i int, rayDir geom.Vec3) bool {
	if rayDir.IsZero() {
		return false
	}
	found := index.Nearest(pts[i], p.KMixed+1)
	front, behind, neighbours := 0, 0, 0
	for _, j := range found {
		if j == i || neighbours == p.KMixed {
			continue
		}
		neighbours++
		depth := pts[j].Sub(pts[i]).Dot(rayDir)
		if depth < -p.DepthThreshMixed {
			front++
		} else if depth > p.DepthThreshMixed {
			behind++
		}
	}
	if neighbours < p.KMixed {
		return false
	}
	return front >= p.MinFrontMixed && behind >= p.MinBehindMixed
}
