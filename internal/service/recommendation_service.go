package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/autopo-py/replenish/internal/cache"
	"github.com/andresuchdata/autopo-py/replenish/internal/export"
	"github.com/andresuchdata/autopo-py/replenish/internal/pipeline"
	"github.com/andresuchdata/autopo-py/replenish/internal/replenishment"
)

// BranchRunner computes branch outcomes.
type BranchRunner interface {
	Run(ctx context.Context, branches []string, progress pipeline.ProgressFunc) ([]pipeline.BranchOutcome, error)
}

// Request selects branches and a view.
type Request struct {
	Branch string
	View   string
}

type RecommendationService struct {
	runner    BranchRunner
	catalogue Catalogue
	views     pipeline.Views
	cache     cache.RecommendationCache
	runs      *pipeline.RunRegistry
	exporter  *export.Exporter
	window    string
	now       func() time.Time
}

// RecommendationDeps wires a RecommendationService. Cache, Runs and Views
// may be left empty.
type RecommendationDeps struct {
	Runner    BranchRunner
	Catalogue Catalogue
	Views     pipeline.Views
	Cache     cache.RecommendationCache
	Runs      *pipeline.RunRegistry
	Exporter  *export.Exporter
	Window    replenishment.Window
}

func NewRecommendationService(d RecommendationDeps) *RecommendationService {
	if d.Cache == nil {
		d.Cache = cache.NewNoopRecommendationCache()
	}
	if d.Views == nil {
		d.Views = pipeline.DefaultViews()
	}
	if d.Runs == nil {
		d.Runs = pipeline.NewRunRegistry(50)
	}
	return &RecommendationService{
		runner:    d.Runner,
		catalogue: d.Catalogue,
		views:     d.Views,
		cache:     d.Cache,
		runs:      d.Runs,
		exporter:  d.Exporter,
		window:    windowKey(d.Window),
		now:       time.Now,
	}
}

func windowKey(w replenishment.Window) string {
	if w.End.IsZero() {
		return strconv.Itoa(w.Size)
	}
	return strconv.Itoa(w.Size) + "@" + w.End.String()
}

// Branches returns the branch catalogue.
func (s *RecommendationService) Branches() []string {
	return s.catalogue.Branches()
}

// Views returns the configured views.
func (s *RecommendationService) Views() pipeline.Views {
	return s.views
}

func (s *RecommendationService) resolve(req Request) (Selection, pipeline.View, error) {
	sel, err := s.catalogue.Resolve(req.Branch)
	if err != nil {
		return Selection{}, pipeline.View{}, err
	}
	view, err := s.views.Get(req.View)
	if err != nil {
		return Selection{}, pipeline.View{}, err
	}
	return sel, view, nil
}

func (s *RecommendationService) cacheKey(sel Selection, view pipeline.View) cache.RecommendationKey {
	return cache.RecommendationKey{Branches: sel.Branches, View: view.Name, Window: s.window}
}

// Compute returns the recommendation report of the selected branches,
// served from cache when possible. Failed branches are listed in the report.
func (s *RecommendationService) Compute(ctx context.Context, req Request) (*pipeline.Report, error) {
	sel, view, err := s.resolve(req)
	if err != nil {
		return nil, err
	}

	key := s.cacheKey(sel, view)
	if report, ok, err := s.cache.Get(ctx, key); err == nil && ok {
		return report, nil
	} else if err != nil {
		log.Warn().Err(err).Msg("recommendations: cache get failed")
	}

	report, err := s.run(ctx, sel, view, nil)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, key, report); err != nil {
		log.Warn().Err(err).Msg("recommendations: cache set failed")
	}
	return report, nil
}

func (s *RecommendationService) run(ctx context.Context, sel Selection, view pipeline.View, progress pipeline.ProgressFunc) (*pipeline.Report, error) {
	outcomes, err := s.runner.Run(ctx, sel.Branches, progress)
	if err != nil {
		return nil, err
	}
	return pipeline.BuildReport(outcomes, view, sel.Merge, s.now()), nil
}

// Start launches a background computation and returns its pending run.
func (s *RecommendationService) Start(ctx context.Context, req Request) (pipeline.PipelineRun, error) {
	sel, view, err := s.resolve(req)
	if err != nil {
		return pipeline.PipelineRun{}, err
	}

	run := s.runs.Start(ctx, sel.Branches, view.Name, func(ctx context.Context, progress pipeline.ProgressFunc) (*pipeline.Report, error) {
		report, err := s.run(ctx, sel, view, progress)
		if err != nil {
			return nil, err
		}
		if ctx.Err() == nil {
			if err := s.cache.Set(ctx, s.cacheKey(sel, view), report); err != nil {
				log.Warn().Err(err).Msg("recommendations: cache set failed")
			}
		}
		return report, nil
	})

	log.Info().Str("run_id", run.ID).Strs("branches", sel.Branches).Str("view", view.Name).Msg("background run started")
	return run, nil
}

// Status returns a snapshot of a background run.
func (s *RecommendationService) Status(id string) (pipeline.PipelineRun, error) {
	return s.runs.Get(id)
}

// Cancel stops a background run.
func (s *RecommendationService) Cancel(id string) error {
	return s.runs.Cancel(id)
}

// Wait blocks until a background run finishes.
func (s *RecommendationService) Wait(ctx context.Context, id string) (pipeline.PipelineRun, error) {
	return s.runs.Wait(ctx, id)
}

// InvalidateCache drops every cached report.
func (s *RecommendationService) InvalidateCache(ctx context.Context) error {
	return s.cache.InvalidateAll(ctx)
}

// Export computes the report and writes its table to the output directory.
func (s *RecommendationService) Export(ctx context.Context, req Request, format export.Format) (export.Result, *pipeline.Report, error) {
	if s.exporter == nil {
		return export.Result{}, nil, fmt.Errorf("export is not configured")
	}
	sel, _, err := s.resolve(req)
	if err != nil {
		return export.Result{}, nil, err
	}
	report, err := s.Compute(ctx, req)
	if err != nil {
		return export.Result{}, nil, err
	}
	if report.Table == nil {
		return export.Result{}, report, noResult(report.Failures)
	}
	res, err := s.exporter.Export(ctx, sel.Label, format, report.Table)
	return res, report, err
}

func noResult(failures []pipeline.BranchFailure) error {
	if len(failures) == 0 {
		return fmt.Errorf("no branch produced a result")
	}
	return fmt.Errorf("no branch produced a result: %w", failures[0])
}
