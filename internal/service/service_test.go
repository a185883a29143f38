package service

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/andresuchdata/autopo-py/replenish/internal/analysis"
	"github.com/andresuchdata/autopo-py/replenish/internal/cache"
	"github.com/andresuchdata/autopo-py/replenish/internal/export"
	"github.com/andresuchdata/autopo-py/replenish/internal/pipeline"
	"github.com/andresuchdata/autopo-py/replenish/internal/replenishment"
	"github.com/andresuchdata/autopo-py/replenish/internal/repository"
	"github.com/andresuchdata/autopo-py/replenish/internal/repository/memory"
)

var catalogue = NewCatalogue([]string{"0101", "0103", "0104", "0105"})

func TestCatalogue_Resolve(t *testing.T) {
	t.Parallel()

	tests := []struct {
		selector string
		label    string
		branches int
		merge    bool
	}{
		{"", "all", 4, true},
		{"all", "all", 4, true},
		{"Todas", "all", 4, true},
		{"0103", "0103", 1, false},
		{" 0101 , 0105,0101", "0101-0105", 2, true},
	}
	for _, tt := range tests {
		sel, err := catalogue.Resolve(tt.selector)
		if err != nil {
			t.Fatalf("Resolve(%q): %v", tt.selector, err)
		}
		if sel.Label != tt.label || len(sel.Branches) != tt.branches || sel.Merge != tt.merge {
			t.Fatalf("Resolve(%q) = %+v", tt.selector, sel)
		}
	}

	for _, bad := range []string{"0199", "0101,0199", ","} {
		if _, err := catalogue.Resolve(bad); !errors.Is(err, ErrUnknownBranch) {
			t.Fatalf("Resolve(%q) err = %v, want ErrUnknownBranch", bad, err)
		}
	}
}

func testStore() *memory.Store {
	dates := []string{"20240110", "20240210", "20240310", "20240410", "20240510"}
	s := memory.NewStore()
	for _, branch := range []string{"0101", "0103", "0104"} {
		var b memory.Branch
		b.General = []replenishment.Record{{"group_id": "G1", "description": "Group 1", "code": "C1", "on_hand_qty": 3}}
		b.Orders = []replenishment.Record{{"group_id": "G1", "qty_receivable": 1}}
		for i, q := range []int{9, 9, 9, 5, 6} {
			b.Invoices = append(b.Invoices, replenishment.Record{"group_id": "G1", "date": dates[i], "qty": q})
		}
		b.Sales = []replenishment.Record{{"group_id": "G1", "qty": 12}}
		s.Put(branch, b)
	}
	// 0105 has no data and always fails
	return s
}

type memoryCache struct {
	mu      sync.Mutex
	entries map[string]*pipeline.Report
	gets    int
	sets    int
}

func (c *memoryCache) key(k cache.RecommendationKey) string {
	return strings.Join(k.Branches, ",") + "|" + k.View + "|" + k.Window
}

func (c *memoryCache) Get(_ context.Context, k cache.RecommendationKey) (*pipeline.Report, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	r, ok := c.entries[c.key(k)]
	return r, ok, nil
}

func (c *memoryCache) Set(_ context.Context, k cache.RecommendationKey, r *pipeline.Report) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !r.Complete() {
		return nil
	}
	c.sets++
	c.entries[c.key(k)] = r
	return nil
}

func (c *memoryCache) InvalidateAll(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = map[string]*pipeline.Report{}
	return nil
}

type countingRunner struct {
	BranchRunner
	mu    sync.Mutex
	calls int
}

func (r *countingRunner) Run(ctx context.Context, branches []string, progress pipeline.ProgressFunc) ([]pipeline.BranchOutcome, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	return r.BranchRunner.Run(ctx, branches, progress)
}

func newOrchestrator(t *testing.T, s *memory.Store) *pipeline.Orchestrator {
	t.Helper()
	o, err := pipeline.NewOrchestrator(repository.NewBranchLoader(s, s), pipeline.DefaultPipelineConfig("test"))
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	return o
}

func TestRecommendationService_ComputeUsesCache(t *testing.T) {
	t.Parallel()

	runner := &countingRunner{BranchRunner: newOrchestrator(t, testStore())}
	c := &memoryCache{entries: map[string]*pipeline.Report{}}
	svc := NewRecommendationService(RecommendationDeps{Runner: runner, Catalogue: catalogue, Cache: c, Window: replenishment.DefaultWindow()})

	ctx := context.Background()
	req := Request{Branch: "0101", View: "standard"}
	first, err := svc.Compute(ctx, req)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if cell, _ := first.Table.Value("G1", pipeline.ColSuggestion); cell.String() != "10" {
		t.Fatalf("suggestion = %q, want 10", cell)
	}
	if _, err := svc.Compute(ctx, req); err != nil {
		t.Fatalf("second Compute: %v", err)
	}
	if runner.calls != 1 || c.sets != 1 {
		t.Fatalf("runner calls = %d, cache sets = %d, want 1 and 1", runner.calls, c.sets)
	}

	if err := svc.InvalidateCache(ctx); err != nil {
		t.Fatalf("InvalidateCache: %v", err)
	}
	if _, err := svc.Compute(ctx, req); err != nil {
		t.Fatalf("third Compute: %v", err)
	}
	if runner.calls != 2 {
		t.Fatalf("runner calls after invalidate = %d, want 2", runner.calls)
	}
}

func TestRecommendationService_AllBranchesReportsFailures(t *testing.T) {
	t.Parallel()

	c := &memoryCache{entries: map[string]*pipeline.Report{}}
	svc := NewRecommendationService(RecommendationDeps{Runner: newOrchestrator(t, testStore()), Catalogue: catalogue, Cache: c})

	report, err := svc.Compute(context.Background(), Request{Branch: "all", View: "summary"})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if len(report.Failures) != 1 || report.Failures[0].Branch != "0105" {
		t.Fatalf("failures = %v", report.Failures)
	}
	if report.Table.ColumnIndex("grade_0104") < 0 || report.Table.ColumnIndex("grade_0105") >= 0 {
		t.Fatalf("columns = %v", report.Table.Columns)
	}
	if c.sets != 0 {
		t.Fatalf("incomplete report should not be cached")
	}
}

func TestRecommendationService_RejectsBadRequests(t *testing.T) {
	t.Parallel()

	svc := NewRecommendationService(RecommendationDeps{Runner: newOrchestrator(t, testStore()), Catalogue: catalogue})
	ctx := context.Background()

	if _, err := svc.Compute(ctx, Request{Branch: "9999"}); !errors.Is(err, ErrUnknownBranch) {
		t.Fatalf("err = %v, want ErrUnknownBranch", err)
	}
	if _, err := svc.Compute(ctx, Request{Branch: "0101", View: "pivot"}); !errors.Is(err, pipeline.ErrUnknownView) {
		t.Fatalf("err = %v, want ErrUnknownView", err)
	}
	if _, err := svc.Start(ctx, Request{Branch: "9999"}); !errors.Is(err, ErrUnknownBranch) {
		t.Fatalf("Start err = %v, want ErrUnknownBranch", err)
	}
}

func TestRecommendationService_BackgroundRun(t *testing.T) {
	t.Parallel()

	svc := NewRecommendationService(RecommendationDeps{Runner: newOrchestrator(t, testStore()), Catalogue: catalogue})
	ctx := context.Background()

	run, err := svc.Start(ctx, Request{Branch: "0101,0103", View: "detail"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	done, err := svc.Wait(waitCtx, run.ID)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if done.Status != pipeline.StatusCompleted {
		t.Fatalf("status = %s (%s)", done.Status, done.ErrorMessage)
	}
	for _, b := range []string{"0101", "0103"} {
		if done.Progress[b] != pipeline.BranchStatusCompleted {
			t.Fatalf("progress of %s = %s", b, done.Progress[b])
		}
	}
	if done.Report.Table.ColumnIndex("2024-05_0103") < 0 {
		t.Fatalf("detail columns = %v", done.Report.Table.Columns)
	}

	status, err := svc.Status(run.ID)
	if err != nil || status.ID != run.ID {
		t.Fatalf("Status = %+v, %v", status, err)
	}
	if err := svc.Cancel(run.ID); !errors.Is(err, pipeline.ErrRunFinished) {
		t.Fatalf("Cancel err = %v, want ErrRunFinished", err)
	}
}

func TestRecommendationService_Export(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	svc := NewRecommendationService(RecommendationDeps{
		Runner:    newOrchestrator(t, testStore()),
		Catalogue: catalogue,
		Exporter:  export.NewExporter(dir, "sugestao", nil, ""),
	})

	res, _, err := svc.Export(context.Background(), Request{Branch: "0101"}, export.FormatCSV)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	data, err := os.ReadFile(res.Path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if !strings.HasPrefix(string(data), "group_id,description,code,on_hand_qty") || !strings.Contains(string(data), "G1,Group 1,C1,3,1,") {
		t.Fatalf("unexpected export:\n%s", data)
	}

	if _, _, err := svc.Export(context.Background(), Request{Branch: "0105"}, export.FormatCSV); err == nil {
		t.Fatalf("expected error when the only branch fails")
	}
}

func TestAnalysisService_Report(t *testing.T) {
	t.Parallel()

	s := testStore()
	reporter := analysis.NewReporter(newOrchestrator(t, s), s)
	svc := NewAnalysisService(reporter, catalogue, export.NewExporter(t.TempDir(), "", nil, ""))

	rep, err := svc.Report(context.Background(), "0103", 3)
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if c, _ := rep.Table.Value("G1", analysis.ColAverageDemand); c.String() != "4" {
		t.Fatalf("average_demand = %q, want 4", c)
	}
	if _, err := svc.Report(context.Background(), "0103", 5); !errors.Is(err, analysis.ErrInvalidPeriod) {
		t.Fatalf("err = %v, want ErrInvalidPeriod", err)
	}

	res, _, err := svc.Export(context.Background(), "0101,0103", 6, export.FormatXLSX)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if !strings.Contains(res.Path, "inventory_analysis_6_0101-0103_") {
		t.Fatalf("path = %s", res.Path)
	}
}
