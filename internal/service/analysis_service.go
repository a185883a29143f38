package service

import (
	"context"
	"fmt"

	"github.com/andresuchdata/autopo-py/replenish/internal/analysis"
	"github.com/andresuchdata/autopo-py/replenish/internal/export"
)

type AnalysisService struct {
	reporter  *analysis.Reporter
	catalogue Catalogue
	exporter  *export.Exporter
}

func NewAnalysisService(reporter *analysis.Reporter, catalogue Catalogue, exporter *export.Exporter) *AnalysisService {
	return &AnalysisService{reporter: reporter, catalogue: catalogue, exporter: exporter}
}

// Report builds the inventory analysis of the selected branches over the
// last months.
func (s *AnalysisService) Report(ctx context.Context, branch string, months int) (*analysis.Report, error) {
	sel, err := s.catalogue.Resolve(branch)
	if err != nil {
		return nil, err
	}
	return s.reporter.Report(ctx, sel.Branches, months, sel.Merge)
}

// Export builds the report and writes it as inventory_analysis_<months>_<branch>.
func (s *AnalysisService) Export(ctx context.Context, branch string, months int, format export.Format) (export.Result, *analysis.Report, error) {
	if s.exporter == nil {
		return export.Result{}, nil, fmt.Errorf("export is not configured")
	}
	sel, err := s.catalogue.Resolve(branch)
	if err != nil {
		return export.Result{}, nil, err
	}
	report, err := s.reporter.Report(ctx, sel.Branches, months, sel.Merge)
	if err != nil {
		return export.Result{}, nil, err
	}
	if report.Table == nil {
		return export.Result{}, report, noResult(report.Failures)
	}
	name := fmt.Sprintf("inventory_analysis_%d_%s", months, sel.Label)
	res, err := s.exporter.ExportAs(ctx, name, format, report.Table)
	return res, report, err
}
