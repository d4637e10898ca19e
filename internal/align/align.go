// Package align declares the alignment seam for ray clouds. Alignment
// itself is an external collaborator: implementations register against
// the Aligner interface and exchange the same chunked PLY files the
// uncertainty pipeline reads and writes.
package align

import "context"

// Config holds alignment options. Distances are in the same units as
// the input clouds.
type Config struct {
	MaxIterations     int     // iterative refinement cap
	ConvergenceThresh float64 // stop when error improvement falls below this
	MaxCorrespondDist float64 // maximum distance for point correspondence
	VoxelSize         float64 // coarse downsample cell, 0 disables
	NonRigid          bool    // allow per-segment warp instead of a single rigid transform
}

// DefaultConfig returns defaults suitable for handheld scan pairs.
func DefaultConfig() Config {
	return Config{
		MaxIterations:     50,
		ConvergenceThresh: 1e-4,
		MaxCorrespondDist: 1.0,
		VoxelSize:         0.1,
	}
}

// Result reports what an alignment run achieved.
type Result struct {
	Error      float64 // final mean correspondence distance
	Iterations int
	Converged  bool
}

// Aligner aligns the cloud at inputPath against the cloud at
// referencePath and writes the transformed cloud to outputPath.
type Aligner interface {
	Align(ctx context.Context, inputPath, referencePath, outputPath string, cfg Config) (Result, error)
}
