package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/autopo-py/replenish/internal/replenishment"
)

// Worker loads and computes single branches.
type Worker struct {
	loader Loader
	engine *replenishment.Engine
	config PipelineConfig
}

// NewWorker creates a new branch worker
func NewWorker(loader Loader, config PipelineConfig) (*Worker, error) {
	engine, err := replenishment.NewEngine(config.Fields, config.Window)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	return &Worker{loader: loader, engine: engine, config: config}, nil
}

// ProcessBranch computes one branch. It never returns an error: failures are
// recorded in the outcome so that other branches are unaffected.
func (w *Worker) ProcessBranch(ctx context.Context, branch string) (outcome BranchOutcome) {
	startTime := time.Now()
	outcome = BranchOutcome{Branch: branch, Status: BranchStatusProcessing}

	defer func() {
		if r := recover(); r != nil {
			outcome.Status = BranchStatusFailed
			outcome.Result = nil
			outcome.Err = fmt.Errorf("panic while computing branch: %v", r)
		}
		outcome.Duration = time.Since(startTime)
		w.logOutcome(outcome)
	}()

	if w.config.BranchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.config.BranchTimeout)
		defer cancel()
	}

	log.Debug().Str("pipeline", w.config.Name).Str("branch", branch).Msg("processing branch")

	in, err := w.loader.Load(ctx, branch)
	if err != nil {
		outcome.Status = BranchStatusFailed
		outcome.Err = fmt.Errorf("failed to load inputs: %w", err)
		return outcome
	}
	in.Branch = branch

	result, err := w.engine.Run(in)
	if err != nil {
		outcome.Status = BranchStatusFailed
		outcome.Err = err
		return outcome
	}

	outcome.Status = BranchStatusCompleted
	outcome.Result = result
	return outcome
}

func (w *Worker) logOutcome(o BranchOutcome) {
	if o.Status != BranchStatusCompleted {
		log.Error().
			Err(o.Err).
			Str("pipeline", w.config.Name).
			Str("branch", o.Branch).
			Dur("duration", o.Duration).
			Msg("branch failed")
		return
	}
	log.Info().
		Str("pipeline", w.config.Name).
		Str("branch", o.Branch).
		Int("groups", len(o.Result.Rows)).
		Int("dropped", o.Result.Diagnostics.DroppedGroups()).
		Dur("duration", o.Duration).
		Msg("branch completed")
}
