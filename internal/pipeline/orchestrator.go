package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/andresuchdata/autopo-py/replenish/internal/replenishment"
)

// ErrNoBranches is returned when a run is requested for no branch at all.
var ErrNoBranches = errors.New("no branches to process")

// ProgressFunc is called once per branch when its outcome is final. It may be
// called from several goroutines at once.
type ProgressFunc func(BranchOutcome)

// Orchestrator fans branches out over a bounded worker pool and collects
// their outcomes.
type Orchestrator struct {
	cfg    PipelineConfig
	worker *Worker
	now    func() time.Time
}

// NewOrchestrator creates a new Orchestrator.
func NewOrchestrator(loader Loader, cfg PipelineConfig) (*Orchestrator, error) {
	worker, err := NewWorker(loader, cfg)
	if err != nil {
		return nil, err
	}
	return &Orchestrator{cfg: cfg, worker: worker, now: time.Now}, nil
}

// Run computes every branch and returns their outcomes in the order of
// branches. No branch starts once ctx is done; those are reported as
// cancelled. A failing branch never stops the others.
func (o *Orchestrator) Run(ctx context.Context, branches []string, progress ProgressFunc) ([]BranchOutcome, error) {
	if len(branches) == 0 {
		return nil, ErrNoBranches
	}

	workerCount := o.cfg.WorkerCount
	if workerCount < 1 {
		workerCount = 1
	}

	outcomes := make([]BranchOutcome, len(branches))
	for i, b := range branches {
		outcomes[i] = BranchOutcome{Branch: b, Status: BranchStatusQueued}
	}

	finish := func(i int, out BranchOutcome) {
		outcomes[i] = out
		if progress != nil {
			progress(out)
		}
	}
	cancelled := func(i int, err error) {
		finish(i, BranchOutcome{Branch: branches[i], Status: BranchStatusCancelled, Err: err})
	}

	var g errgroup.Group
	g.SetLimit(workerCount)
	for i, branch := range branches {
		if err := ctx.Err(); err != nil {
			cancelled(i, err)
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				cancelled(i, err)
				return nil
			}
			finish(i, o.worker.ProcessBranch(ctx, branch))
			return nil
		})
	}
	_ = g.Wait()

	m := Metrics(outcomes)
	log.Info().
		Str("pipeline", o.cfg.Name).
		Int("completed", m.BranchesCompleted).
		Int("failed", m.BranchesFailed).
		Int("cancelled", m.BranchesCancelled).
		Int("groups", m.GroupsProcessed).
		Msg("run finished")

	return outcomes, nil
}

// Report runs the branches and consolidates the outcomes. With merge set the
// completed branches are outer-joined with branch-qualified columns, otherwise
// the single branch table is returned as is.
func (o *Orchestrator) Report(ctx context.Context, branches []string, view View, merge bool) (*Report, error) {
	outcomes, err := o.Run(ctx, branches, nil)
	if err != nil {
		return nil, err
	}
	return BuildReport(outcomes, view, merge, o.now()), nil
}

// BuildReport consolidates branch outcomes into a report.
func BuildReport(outcomes []BranchOutcome, view View, merge bool, generatedAt time.Time) *Report {
	r := &Report{
		View:        view.Name,
		Periods:     make(map[string][]replenishment.Period),
		Diagnostics: make(map[string]replenishment.Diagnostics),
		Durations:   make(map[string]time.Duration),
		GeneratedAt: generatedAt,
	}

	var results []*replenishment.BranchResult
	for _, out := range outcomes {
		r.Branches = append(r.Branches, out.Branch)
		if out.Duration > 0 {
			r.Durations[out.Branch] = out.Duration
		}
		if out.Status != BranchStatusCompleted || out.Result == nil {
			r.Failures = append(r.Failures, BranchFailure{Branch: out.Branch, Status: out.Status, Err: out.Err})
			continue
		}
		results = append(results, out.Result)
		r.Periods[out.Branch] = out.Result.Periods
		r.Diagnostics[out.Branch] = out.Result.Diagnostics
	}

	switch {
	case merge:
		r.Table = Merge(results, view)
	case len(results) > 0:
		r.Table = BranchTable(results[0], view)
	}
	return r
}
