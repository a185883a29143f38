package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/andresuchdata/autopo-py/replenish/internal/pipeline"
	"github.com/andresuchdata/autopo-py/replenish/internal/replenishment"
	"github.com/andresuchdata/autopo-py/replenish/internal/repository"
)

// Report columns added to the replenishment figures.
const (
	ColSalesCount    = "sales_count"
	ColDemandSum     = "demand_sum"
	ColAverageDemand = "average_demand"
	ColAverageCost   = "average_cost"
)

// BaseView selects the replenishment figures the report starts from.
var BaseView = pipeline.View{
	Name: "analysis",
	Fixed: []string{
		pipeline.ColOnHand, pipeline.ColReceivable, pipeline.ColGrade,
		pipeline.ColSafetyStock, pipeline.ColMin, pipeline.ColMax,
	},
}

// BranchTable left-joins the metrics onto the rows of a branch result.
// Groups without sale or order lines get null metric cells.
func BranchTable(result *replenishment.BranchResult, sales map[string]SalesMetrics, costs map[string]CostMetrics) *pipeline.Table {
	base := pipeline.BranchTable(result, BaseView)
	t := &pipeline.Table{
		Columns: append(base.Columns, ColSalesCount, ColDemandSum, ColAverageDemand, ColAverageCost),
		Rows:    make([]pipeline.Row, len(base.Rows)),
	}
	for i, r := range base.Rows {
		cells := make([]pipeline.Cell, 0, len(t.Columns))
		cells = append(cells, r.Cells...)
		if s, ok := sales[r.Key.GroupID]; ok {
			cells = append(cells,
				pipeline.IntCell(int64(s.Count)),
				pipeline.DecimalCell(s.DemandSum),
				pipeline.IntCell(s.AverageDemand))
		} else {
			cells = append(cells, pipeline.Cell{}, pipeline.Cell{}, pipeline.Cell{})
		}
		if c, ok := costs[r.Key.GroupID]; ok {
			cells = append(cells, pipeline.DecimalCell(c.AverageCost))
		} else {
			cells = append(cells, pipeline.Cell{})
		}
		t.Rows[i] = pipeline.Row{Key: r.Key, Cells: cells}
	}
	return t
}

// BranchRunner computes the replenishment figures of branches.
type BranchRunner interface {
	Run(ctx context.Context, branches []string, progress pipeline.ProgressFunc) ([]pipeline.BranchOutcome, error)
}

// Report is an inventory analysis over one or more branches.
type Report struct {
	Branches    []string
	Months      int
	Since       time.Time
	Table       *pipeline.Table
	Failures    []pipeline.BranchFailure
	GeneratedAt time.Time
}

// Reporter builds analysis reports.
type Reporter struct {
	runner BranchRunner
	lines  repository.AnalysisProvider
	now    func() time.Time
}

func NewReporter(runner BranchRunner, lines repository.AnalysisProvider) *Reporter {
	return &Reporter{runner: runner, lines: lines, now: time.Now}
}

// Report computes the report for branches. With merge set the branch tables
// are outer-joined with branch-qualified columns. A branch whose figures or
// lines cannot be loaded is reported as a failure.
func (r *Reporter) Report(ctx context.Context, branches []string, months int, merge bool) (*Report, error) {
	now := r.now()
	since, err := Since(now, months)
	if err != nil {
		return nil, err
	}

	outcomes, err := r.runner.Run(ctx, branches, nil)
	if err != nil {
		return nil, err
	}

	rep := &Report{Months: months, Since: since, GeneratedAt: now}
	var names []string
	var tables []*pipeline.Table
	for _, out := range outcomes {
		rep.Branches = append(rep.Branches, out.Branch)
		if out.Status != pipeline.BranchStatusCompleted || out.Result == nil {
			rep.Failures = append(rep.Failures, pipeline.BranchFailure{Branch: out.Branch, Status: out.Status, Err: out.Err})
			continue
		}
		t, err := r.branchTable(ctx, out.Result, months, since)
		if err != nil {
			log.Error().Err(err).Str("branch", out.Branch).Msg("analysis failed")
			rep.Failures = append(rep.Failures, pipeline.BranchFailure{Branch: out.Branch, Status: pipeline.BranchStatusFailed, Err: err})
			continue
		}
		names = append(names, out.Branch)
		tables = append(tables, t)
	}

	switch {
	case merge:
		rep.Table = pipeline.MergeTables(names, tables, false)
	case len(tables) > 0:
		rep.Table = tables[0]
	}
	return rep, nil
}

func (r *Reporter) branchTable(ctx context.Context, result *replenishment.BranchResult, months int, since time.Time) (*pipeline.Table, error) {
	var sales map[string]SalesMetrics
	var costs map[string]CostMetrics

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lines, err := r.lines.SalesLines(gctx, result.Branch, since)
		if err != nil {
			return fmt.Errorf("sales lines: %w", err)
		}
		sales, err = ComputeSales(result.Branch, lines, months)
		return err
	})
	g.Go(func() error {
		lines, err := r.lines.OrderCosts(gctx, result.Branch, since)
		if err != nil {
			return fmt.Errorf("order lines: %w", err)
		}
		costs, err = ComputeCosts(result.Branch, lines)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return BranchTable(result, sales, costs), nil
}
