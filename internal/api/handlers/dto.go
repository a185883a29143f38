package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/andresuchdata/autopo-py/replenish/internal/analysis"
	"github.com/andresuchdata/autopo-py/replenish/internal/domain"
	"github.com/andresuchdata/autopo-py/replenish/internal/export"
	"github.com/andresuchdata/autopo-py/replenish/internal/pipeline"
	"github.com/andresuchdata/autopo-py/replenish/internal/service"
)

func toTable(t *pipeline.Table) domain.Table {
	if t == nil {
		return domain.Table{Columns: []string{}, Rows: []map[string]any{}}
	}
	return domain.Table{Columns: t.Header(), Rows: t.Records()}
}

func toFailures(failures []pipeline.BranchFailure) []domain.BranchFailure {
	out := make([]domain.BranchFailure, 0, len(failures))
	for _, f := range failures {
		df := domain.BranchFailure{Branch: f.Branch, Status: string(f.Status)}
		if f.Err != nil {
			df.Error = f.Err.Error()
		}
		out = append(out, df)
	}
	return out
}

func toRecommendationResponse(r *pipeline.Report) *domain.RecommendationResponse {
	resp := &domain.RecommendationResponse{
		Branches:    r.Branches,
		View:        r.View,
		Periods:     make(map[string][]string, len(r.Periods)),
		Complete:    r.Complete(),
		Failures:    toFailures(r.Failures),
		Diagnostics: make(map[string]domain.BranchDiagnostics, len(r.Diagnostics)),
		GeneratedAt: r.GeneratedAt,
		Table:       toTable(r.Table),
	}
	for branch, periods := range r.Periods {
		labels := make([]string, len(periods))
		for i, p := range periods {
			labels[i] = p.String()
		}
		resp.Periods[branch] = labels
	}
	for branch, d := range r.Diagnostics {
		resp.Diagnostics[branch] = domain.BranchDiagnostics{
			BlankGroupIDs:        d.BlankGroupIDs,
			SkippedValues:        d.SkippedValues,
			ClampedNegatives:     d.ClampedNegatives,
			OutOfWindowLines:     d.OutOfWindowLines,
			DroppedOrderGroups:   d.DroppedOrderGroups,
			DroppedInvoiceGroups: d.DroppedInvoiceGroups,
			MissingPolicies:      d.MissingPolicies,
			DurationMs:           r.Durations[branch].Milliseconds(),
		}
	}
	return resp
}

func toRunResponse(run pipeline.PipelineRun) domain.RunResponse {
	resp := domain.RunResponse{
		ID:          run.ID,
		Status:      string(run.Status),
		Branches:    run.Branches,
		View:        run.View,
		Progress:    make(map[string]string, len(run.Progress)),
		StartedAt:   run.StartedAt,
		CompletedAt: run.CompletedAt,
		Error:       run.ErrorMessage,
	}
	for b, s := range run.Progress {
		resp.Progress[b] = string(s)
	}
	if run.Report != nil {
		resp.Result = toRecommendationResponse(run.Report)
	}
	return resp
}

func toAnalysisResponse(r *analysis.Report) domain.AnalysisResponse {
	return domain.AnalysisResponse{
		Branches:    r.Branches,
		Months:      r.Months,
		Since:       r.Since,
		Failures:    toFailures(r.Failures),
		GeneratedAt: r.GeneratedAt,
		Table:       toTable(r.Table),
	}
}

// statusOf maps service errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, service.ErrUnknownBranch),
		errors.Is(err, pipeline.ErrUnknownView),
		errors.Is(err, analysis.ErrInvalidPeriod),
		errors.Is(err, export.ErrUnsupportedFormat):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, pipeline.ErrRunFinished):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func errorJSON(c *gin.Context, message string, err error) {
	_ = c.Error(err)
	c.JSON(statusOf(err), gin.H{"error": message, "details": err.Error()})
}

func failedBranches(failures []pipeline.BranchFailure) []string {
	out := make([]string, len(failures))
	for i, f := range failures {
		out[i] = f.Branch
	}
	return out
}
