package noise

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
)

// Stage is the pipeline's progress marker. The two passes checkpoint
// through the intermediate file, so the stage also says which files on
// disk are complete.
type Stage int

const (
	StageIdle Stage = iota
	StagePass1Streaming
	StagePass1Finalize
	StagePass2Streaming
	StagePass2Finalize
	StageDone
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StagePass1Streaming:
		return "pass1-streaming"
	case StagePass1Finalize:
		return "pass1-finalize"
	case StagePass2Streaming:
		return "pass2-streaming"
	case StagePass2Finalize:
		return "pass2-finalize"
	case StageDone:
		return "done"
	case StageFailed:
		return "failed"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// Pipeline runs the two uncertainty passes over one input cloud. Any
// I/O failure aborts the run and leaves partially written files on
// disk; cleaning those up is the caller's policy. The intermediate file
// is owned by the pipeline: pass 1 produces it, pass 2 consumes it, and
// it is removed only after pass 2 succeeds.
type Pipeline struct {
	InputPath        string
	OutputPath       string
	IntermediatePath string
	Params           Params

	// Store, when set, records the run and its outcome.
	Store   *RunStore
	Verbose bool

	stage       Stage
	runID       string
	recordCount int64
}

// NewPipeline prepares a run with the intermediate checkpoint placed
// next to the output.
func NewPipeline(inputPath, outputPath string, p Params) *Pipeline {
	return &Pipeline{
		InputPath:        inputPath,
		OutputPath:       outputPath,
		IntermediatePath: outputPath + ".pass1.ply",
		Params:           p,
		stage:            StageIdle,
	}
}

// Stage returns the stage the pipeline has reached.
func (pl *Pipeline) Stage() Stage { return pl.stage }

// RunID returns the identifier the run was recorded under, if a store
// is attached.
func (pl *Pipeline) RunID() string { return pl.runID }

// RecordCount returns the number of records in the final output.
func (pl *Pipeline) RecordCount() int64 { return pl.recordCount }

// Run executes both passes sequentially. It returns the first error
// encountered; the stage is StageFailed afterwards and the partial
// intermediate or output file remains on disk for inspection.
func (pl *Pipeline) Run() error {
	if err := pl.Params.Validate(); err != nil {
		return pl.fail(err)
	}
	pl.runID = uuid.NewString()
	pl.recordRunStart()

	pl.stage = StagePass1Streaming
	if pl.Verbose {
		log.Printf("noise: run %s: pass1 %s -> %s (chunk_size=%d)", pl.runID, pl.InputPath, pl.IntermediatePath, pl.Params.ChunkSize)
	}
	count, err := estimateNormals(pl.InputPath, pl.IntermediatePath, pl.Params.ChunkSize, pl.Verbose, func() {
		pl.stage = StagePass1Finalize
	})
	if err != nil {
		return pl.fail(err)
	}

	pl.stage = StagePass2Streaming
	if pl.Verbose {
		log.Printf("noise: run %s: pass2 %s -> %s (%d records)", pl.runID, pl.IntermediatePath, pl.OutputPath, count)
	}
	count, err = computeUncertainty(pl.IntermediatePath, pl.OutputPath, pl.Params, pl.Verbose, func() {
		pl.stage = StagePass2Finalize
	})
	if err != nil {
		return pl.fail(err)
	}
	pl.recordCount = count

	// The checkpoint has served its purpose once pass 2 lands.
	if err := os.Remove(pl.IntermediatePath); err != nil {
		log.Printf("noise: run %s: could not remove intermediate %s: %v", pl.runID, pl.IntermediatePath, err)
	}

	pl.stage = StageDone
	pl.recordRunResult("done", "")
	return nil
}

func (pl *Pipeline) fail(err error) error {
	pl.stage = StageFailed
	pl.recordRunResult("failed", err.Error())
	return err
}

// Run-manifest recording is observability, not control flow: a store
// failure is logged and the pipeline carries on.
func (pl *Pipeline) recordRunStart() {
	if pl.Store == nil {
		return
	}
	rec := RunRecord{
		RunID:      pl.runID,
		InputPath:  pl.InputPath,
		OutputPath: pl.OutputPath,
		Status:     "running",
		Stage:      pl.stage.String(),
		StartedAt:  time.Now(),
	}
	if err := pl.Store.InsertRun(rec, pl.Params); err != nil {
		log.Printf("noise: run %s: recording start: %v", pl.runID, err)
	}
}

func (pl *Pipeline) recordRunResult(status, errMsg string) {
	if pl.Store == nil || pl.runID == "" {
		return
	}
	if err := pl.Store.UpdateRunResult(pl.runID, status, pl.stage.String(), pl.recordCount, errMsg); err != nil {
		log.Printf("noise: run %s: recording result: %v", pl.runID, err)
	}
}
