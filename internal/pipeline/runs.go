package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrRunNotFound = errors.New("run not found")
	ErrRunFinished = errors.New("run already finished")
)

// RunFunc performs the work of a background run.
type RunFunc func(ctx context.Context, progress ProgressFunc) (*Report, error)

// PipelineRun tracks a single background execution
type PipelineRun struct {
	ID           string
	Branches     []string
	View         string
	Status       PipelineStatus
	Progress     map[string]BranchStatus
	StartedAt    time.Time
	CompletedAt  *time.Time
	ErrorMessage string
	Report       *Report

	cancel context.CancelFunc
	done   chan struct{}
}

func (r *PipelineRun) snapshot() PipelineRun {
	out := *r
	out.Branches = append([]string(nil), r.Branches...)
	out.Progress = make(map[string]BranchStatus, len(r.Progress))
	for k, v := range r.Progress {
		out.Progress[k] = v
	}
	out.cancel = nil
	return out
}

// RunRegistry keeps background runs in memory. Finished runs beyond the
// retention limit are evicted oldest first.
type RunRegistry struct {
	mu     sync.RWMutex
	runs   map[string]*PipelineRun
	order  []string
	retain int
}

// NewRunRegistry creates a registry retaining up to retain finished runs.
func NewRunRegistry(retain int) *RunRegistry {
	if retain < 1 {
		retain = 1
	}
	return &RunRegistry{runs: make(map[string]*PipelineRun), retain: retain}
}

// Start launches fn in the background and returns the pending run. The run
// is detached from ctx cancellation and stops only through Cancel.
func (r *RunRegistry) Start(ctx context.Context, branches []string, view string, fn RunFunc) PipelineRun {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	run := &PipelineRun{
		ID:        uuid.NewString(),
		Branches:  append([]string(nil), branches...),
		View:      view,
		Status:    StatusProcessing,
		Progress:  make(map[string]BranchStatus, len(branches)),
		StartedAt: time.Now(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	for _, b := range branches {
		run.Progress[b] = BranchStatusQueued
	}

	r.mu.Lock()
	r.runs[run.ID] = run
	r.order = append(r.order, run.ID)
	snap := run.snapshot()
	r.mu.Unlock()

	go r.execute(runCtx, run, fn)

	return snap
}

func (r *RunRegistry) execute(ctx context.Context, run *PipelineRun, fn RunFunc) {
	defer close(run.done)
	defer run.cancel()

	progress := func(o BranchOutcome) {
		r.mu.Lock()
		run.Progress[o.Branch] = o.Status
		r.mu.Unlock()
	}

	report, err := fn(ctx, progress)

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	run.CompletedAt = &now
	run.Report = report
	switch {
	case ctx.Err() != nil:
		run.Status = StatusCancelled
		run.ErrorMessage = ctx.Err().Error()
	case err != nil:
		run.Status = StatusFailed
		run.ErrorMessage = err.Error()
	case report != nil && report.Table == nil && len(report.Failures) > 0:
		run.Status = StatusFailed
		run.ErrorMessage = report.Failures[0].Error()
	default:
		run.Status = StatusCompleted
	}
	r.evictLocked()

	log.Info().
		Str("run_id", run.ID).
		Str("status", string(run.Status)).
		Dur("duration", now.Sub(run.StartedAt)).
		Msg("background run finished")
}

// evictLocked drops the oldest finished runs above the retention limit.
func (r *RunRegistry) evictLocked() {
	finished := 0
	for _, id := range r.order {
		if r.runs[id].Status.Finished() {
			finished++
		}
	}
	kept := r.order[:0]
	for _, id := range r.order {
		if finished > r.retain && r.runs[id].Status.Finished() {
			delete(r.runs, id)
			finished--
			continue
		}
		kept = append(kept, id)
	}
	r.order = kept
}

// Get returns a snapshot of a run.
func (r *RunRegistry) Get(id string) (PipelineRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[id]
	if !ok {
		return PipelineRun{}, ErrRunNotFound
	}
	return run.snapshot(), nil
}

// Cancel stops a running run. Branches already computing finish; no new
// branch starts.
func (r *RunRegistry) Cancel(id string) error {
	r.mu.RLock()
	run, ok := r.runs[id]
	var finished bool
	if ok {
		finished = run.Status.Finished()
	}
	r.mu.RUnlock()

	if !ok {
		return ErrRunNotFound
	}
	if finished {
		return ErrRunFinished
	}
	run.cancel()
	return nil
}

// Wait blocks until the run finishes or ctx is done.
func (r *RunRegistry) Wait(ctx context.Context, id string) (PipelineRun, error) {
	r.mu.RLock()
	run, ok := r.runs[id]
	r.mu.RUnlock()
	if !ok {
		return PipelineRun{}, ErrRunNotFound
	}
	select {
	case <-run.done:
	case <-ctx.Done():
		return PipelineRun{}, ctx.Err()
	}
	return r.Get(id)
}
