package pipeline

import (
	"context"
	"time"

	"github.com/andresuchdata/autopo-py/replenish/internal/replenishment"
)

// Loader fetches the raw inputs of a single branch.
type Loader interface {
	// Load returns the records and policies of the branch. A returned error
	// fails the branch only.
	Load(ctx context.Context, branch string) (replenishment.BranchInput, error)
}

// PipelineConfig holds configuration for a multi-branch run
type PipelineConfig struct {
	Name          string
	WorkerCount   int           // Number of branches computed concurrently
	BranchTimeout time.Duration // Max time for loading and computing one branch, 0 means none
	Fields        replenishment.Fields
	Window        replenishment.Window
}

// DefaultPipelineConfig returns sensible defaults
func DefaultPipelineConfig(name string) PipelineConfig {
	return PipelineConfig{
		Name:          name,
		WorkerCount:   4,
		BranchTimeout: 5 * time.Minute,
		Fields:        replenishment.DefaultFields(),
		Window:        replenishment.DefaultWindow(),
	}
}

// PipelineStatus represents the current state of a pipeline run
type PipelineStatus string

const (
	StatusPending    PipelineStatus = "pending"
	StatusProcessing PipelineStatus = "processing"
	StatusCompleted  PipelineStatus = "completed"
	StatusFailed     PipelineStatus = "failed"
	StatusCancelled  PipelineStatus = "cancelled"
)

// Finished reports whether the run reached a terminal state.
func (s PipelineStatus) Finished() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// BranchStatus represents the state of a single branch computation
type BranchStatus string

const (
	BranchStatusQueued     BranchStatus = "queued"
	BranchStatusProcessing BranchStatus = "processing"
	BranchStatusCompleted  BranchStatus = "completed"
	BranchStatusFailed     BranchStatus = "failed"
	BranchStatusCancelled  BranchStatus = "cancelled"
)

// BranchOutcome is the arena slot of one branch.
type BranchOutcome struct {
	Branch   string
	Status   BranchStatus
	Result   *replenishment.BranchResult
	Err      error
	Duration time.Duration
}

// BranchFailure names a branch that did not produce a result.
type BranchFailure struct {
	Branch string
	Status BranchStatus
	Err    error
}

// Error returns the failure message.
func (f BranchFailure) Error() string {
	if f.Err == nil {
		return "branch " + f.Branch + ": " + string(f.Status)
	}
	return "branch " + f.Branch + ": " + f.Err.Error()
}

func (f BranchFailure) Unwrap() error {
	return f.Err
}

// Report is the consolidated outcome of a run: the merged table of every
// completed branch plus the branches that failed or never started.
type Report struct {
	Branches    []string
	View        string
	Periods     map[string][]replenishment.Period
	Table       *Table
	Failures    []BranchFailure
	Diagnostics map[string]replenishment.Diagnostics
	Durations   map[string]time.Duration
	GeneratedAt time.Time
}

// Complete reports whether every requested branch produced a result.
func (r *Report) Complete() bool {
	return len(r.Failures) == 0
}

// PipelineMetrics holds counters of a finished run
type PipelineMetrics struct {
	BranchesCompleted int
	BranchesFailed    int
	BranchesCancelled int
	GroupsProcessed   int
	DroppedGroups     int
	Duration          time.Duration
}

// Metrics summarizes a set of branch outcomes.
func Metrics(outcomes []BranchOutcome) PipelineMetrics {
	var m PipelineMetrics
	for _, o := range outcomes {
		m.Duration += o.Duration
		switch o.Status {
		case BranchStatusCompleted:
			m.BranchesCompleted++
			if o.Result != nil {
				m.GroupsProcessed += len(o.Result.Rows)
				m.DroppedGroups += o.Result.Diagnostics.DroppedGroups()
			}
		case BranchStatusFailed:
			m.BranchesFailed++
		case BranchStatusCancelled:
			m.BranchesCancelled++
		}
	}
	return m
}
