package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/raynoise/internal/noise"
)

var (
	baseRangeAccuracy = flag.Float64("base_range_accuracy", 0.02, "Sensor 1-sigma range accuracy in metres")
	baseAngleAccuracy = flag.Float64("base_angle_accuracy", 0.0035, "Sensor 1-sigma angular accuracy in radians")
	cIntensity        = flag.Float64("c_intensity", 0.5, "Low-intensity penalty coefficient on range variance")
	epsilon           = flag.Float64("epsilon", 0.01, "Guard term for the intensity division")
	cAoI              = flag.Float64("c_aoi", 0.1, "Angle-of-incidence variance coefficient")
	epsilonAoI        = flag.Float64("epsilon_aoi", 0.01, "Guard term for the grazing-angle division")
	penaltyMixed      = flag.Float64("penalty_mixed", 0.5, "Variance added to mixed-pixel returns (0 disables detection)")
	kMixed            = flag.Int("k_mixed", 8, "Neighbour count examined for mixed-pixel detection")
	depthThreshMixed  = flag.Float64("depth_thresh_mixed", 0.05, "Along-ray depth split in metres for mixed-pixel neighbours")
	minFrontMixed     = flag.Int("min_front_mixed", 1, "Neighbours required in front of a mixed pixel")
	minBehindMixed    = flag.Int("min_behind_mixed", 1, "Neighbours required behind a mixed pixel")
	chunkSize         = flag.Int("chunk_size", 1_000_000, "Maximum records held in memory per pass")
	dbFile            = flag.String("db", "", "Optional SQLite file recording run manifests")
	verbose           = flag.Bool("v", false, "Enable per-pass diagnostics")
)

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [options] <input.ply> <output.ply>\n\n", os.Args[0])
	fmt.Fprintf(flag.CommandLine.Output(), "Estimates per-point positional uncertainty for a binary ray cloud\nin two bounded-memory passes and writes the annotated cloud.\n\nOptions:\n")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() != 2 {
		usage()
		os.Exit(1)
	}
	input, output := flag.Arg(0), flag.Arg(1)

	params := noise.Params{
		BaseRangeAccuracy: *baseRangeAccuracy,
		BaseAngleAccuracy: *baseAngleAccuracy,
		CIntensity:        *cIntensity,
		Epsilon:           *epsilon,
		CAoI:              *cAoI,
		EpsilonAoI:        *epsilonAoI,
		PenaltyMixed:      *penaltyMixed,
		KMixed:            *kMixed,
		DepthThreshMixed:  *depthThreshMixed,
		MinFrontMixed:     *minFrontMixed,
		MinBehindMixed:    *minBehindMixed,
		ChunkSize:         *chunkSize,
	}

	pl := noise.NewPipeline(input, output, params)
	pl.Verbose = *verbose

	if *dbFile != "" {
		store, err := noise.OpenRunStore(*dbFile)
		if err != nil {
			log.Fatalf("Failed to open run store: %v", err)
		}
		defer store.Close()
		pl.Store = store
	}

	if err := pl.Run(); err != nil {
		log.Fatalf("raynoise: %v", err)
	}
}
