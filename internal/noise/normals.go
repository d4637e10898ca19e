package noise

import (
	"log"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/raynoise/internal/geom"
	"github.com/banshee-data/raynoise/internal/knn"
	"github.com/banshee-data/raynoise/internal/rayply"
)

const (
	// normalNeighbours is the neighbourhood size for the local plane fit.
	normalNeighbours = 16
	// minPlaneNeighbours is the smallest neighbourhood worth fitting;
	// below it the zero-normal sentinel is emitted instead.
	minPlaneNeighbours = 5

	// neutralChannel is the mid-grey written for colourless input.
	// Colour channels quantize to bytes on disk, so the value must be
	// byte-exact or pass 2 would read back a slightly different
	// intensity than pass 1 wrote.
	neutralChannel = 128.0 / 255
)

// EstimateNormals runs pass 1: it streams the raw cloud in chunks,
// estimates a surface normal per point from its chunk-local
// neighbourhood, and writes the intermediate cloud (original fields
// plus normals) to outPath. Points with too few neighbours or a
// degenerate fit get the zero-normal sentinel, which pass 2 checks.
// Returns the record count written.
func EstimateNormals(inPath, outPath string, chunkSize int) (int64, error) {
	return estimateNormals(inPath, outPath, chunkSize, false, nil)
}

func estimateNormals(inPath, outPath string, chunkSize int, verbose bool, onFinalize func()) (int64, error) {
	r, err := rayply.Open(inPath, rayply.ReadTimesOptional())
	if err != nil {
		return 0, err
	}
	defer r.Close()

	w, err := rayply.CreateIntermediate(outPath, rayply.TimesOptional())
	if err != nil {
		return 0, err
	}

	var sentinels int64
	warnedNoOrigin := false
	warnedNoColor := false

	err = r.ForEachChunk(chunkSize, func(b *rayply.Batch) error {
		if b.Starts == nil {
			if !warnedNoOrigin {
				warnedNoOrigin = true
				log.Printf("noise: %s: no per-point sensor origins; assuming (0,0,0) for normal orientation", inPath)
			}
			b.Starts = make([]geom.Vec3, b.Len())
		}
		if b.Colors == nil {
			if !warnedNoColor {
				warnedNoColor = true
				log.Printf("noise: %s: no colour channels; writing neutral mid-grey colour", inPath)
			}
			b.Colors = make([]rayply.RGBA, b.Len())
			for i := range b.Colors {
				b.Colors[i] = rayply.RGBA{R: neutralChannel, G: neutralChannel, B: neutralChannel, A: neutralChannel}
			}
		}

		index := knn.New(b.Ends)
		normals := make([]geom.Vec3, b.Len())
		for i := range b.Ends {
			n, ok := fitNormal(index, b.Ends, i)
			if !ok {
				sentinels++
				continue // zero-normal sentinel
			}
			// Resolve the sign ambiguity: face the sensor.
			if toSensor := b.Starts[i].Sub(b.Ends[i]); n.Dot(toSensor) < 0 {
				n = n.Scale(-1)
			}
			normals[i] = n
		}
		b.Normals = normals
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
	if sentinels > 0 || verbose {
		log.Printf("noise: pass1 wrote %d records to %s (%d unreliable normals)", count, outPath, sentinels)
	}
	return count, nil
}

// fitNormal fits a plane to the chunk-local neighbourhood of point i by
// eigen-decomposing the neighbour covariance; the eigenvector of the
// smallest eigenvalue is the normal. Reports false when the
// neighbourhood is too small or too close to a line for the fit to mean
// anything.
func fitNormal(index knn.Index, pts []geom.Vec3, i int) (geom.Vec3, bool) {
	found := index.Nearest(pts[i], normalNeighbours+1)
	nbrs := found[:0:len(found)]
	for _, j := range found {
		if j != i {
			nbrs = append(nbrs, j)
		}
	}
	if len(nbrs) > normalNeighbours {
		nbrs = nbrs[:normalNeighbours]
	}
	if len(nbrs) < minPlaneNeighbours {
		return geom.Vec3{}, false
	}

	// Neighbourhood covariance, query point included.
	var mean geom.Vec3
	for _, j := range nbrs {
		mean = mean.Add(pts[j])
	}
	mean = mean.Add(pts[i])
	nf := float64(len(nbrs) + 1)
	mean = mean.Scale(1 / nf)

	var cov [9]float64
	accum := func(p geom.Vec3) {
		d := p.Sub(mean)
		cov[0] += d.X * d.X
		cov[1] += d.X * d.Y
		cov[2] += d.X * d.Z
		cov[4] += d.Y * d.Y
		cov[5] += d.Y * d.Z
		cov[8] += d.Z * d.Z
	}
	for _, j := range nbrs {
		accum(pts[j])
	}
	accum(pts[i])
	cov[3], cov[6], cov[7] = cov[1], cov[2], cov[5]
	for k := range cov {
		cov[k] /= nf
	}

	var eig mat.EigenSym
	if !eig.Factorize(mat.NewSymDense(3, cov[:]), true) {
		return geom.Vec3{}, false
	}
	vals := eig.Values(nil) // ascending
	// A second near-zero eigenvalue means the neighbourhood is a line or
	// a point; no plane is defined.
	if vals[1] <= 1e-12*(1+vals[2]) {
		return geom.Vec3{}, false
	}
	var vecs mat.Dense
	eig.VectorsTo(&vecs)
	n := geom.Vec3{X: vecs.At(0, 0), Y: vecs.At(1, 0), Z: vecs.At(2, 0)}.Normalized()
	if n.IsZero() {
		return geom.Vec3{}, false
	}
	return n, true
}
