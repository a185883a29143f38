package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/autopo-py/replenish/internal/analysis"
	"github.com/andresuchdata/autopo-py/replenish/internal/cache"
	"github.com/andresuchdata/autopo-py/replenish/internal/config"
	"github.com/andresuchdata/autopo-py/replenish/internal/drive"
	"github.com/andresuchdata/autopo-py/replenish/internal/export"
	"github.com/andresuchdata/autopo-py/replenish/internal/pipeline"
	"github.com/andresuchdata/autopo-py/replenish/internal/replenishment"
	"github.com/andresuchdata/autopo-py/replenish/internal/repository"
	"github.com/andresuchdata/autopo-py/replenish/internal/repository/csvfile"
	"github.com/andresuchdata/autopo-py/replenish/internal/repository/policy"
	"github.com/andresuchdata/autopo-py/replenish/internal/repository/postgres"
	"github.com/andresuchdata/autopo-py/replenish/internal/service"
	"github.com/andresuchdata/autopo-py/replenish/internal/storage"
)

// components holds everything built from the configuration.
type components struct {
	cfg       *config.Config
	db        *postgres.DB
	objects   storage.ObjectStorage
	data      repository.DataProvider
	lines     repository.AnalysisProvider
	policies  repository.PolicyProvider
	orch      *pipeline.Orchestrator
	exporter  *export.Exporter
	catalogue service.Catalogue
	window    replenishment.Window
}

func (c *components) Close() {
	if c.db != nil {
		if err := c.db.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close database")
		}
	}
}

func (c *components) database() (*postgres.DB, error) {
	if c.db != nil {
		return c.db, nil
	}
	db, err := postgres.NewDB(&c.cfg.Database)
	if err != nil {
		return nil, err
	}
	c.db = db
	return db, nil
}

func (c *components) objectStorage() (storage.ObjectStorage, error) {
	if c.objects != nil {
		return c.objects, nil
	}
	s := c.cfg.Storage
	client, err := storage.NewMinioClient(storage.MinioConfig{
		Endpoint:  s.Endpoint,
		AccessKey: s.AccessKey,
		SecretKey: s.SecretKey,
		Bucket:    s.Bucket,
		UseSSL:    s.UseSSL,
	})
	if err != nil {
		return nil, err
	}
	c.objects = client
	return client, nil
}

func newComponents(ctx context.Context, cfg *config.Config) (*components, error) {
	c := &components{cfg: cfg, catalogue: service.NewCatalogue(cfg.Engine.Branches)}

	window := replenishment.Window{Size: cfg.Engine.WindowSize}
	if cfg.Engine.WindowEnd != "" {
		end, err := replenishment.ParsePeriod(cfg.Engine.WindowEnd)
		if err != nil {
			return nil, fmt.Errorf("ENGINE_WINDOW_END: %w", err)
		}
		window.End = end
	}
	c.window = window

	switch cfg.Data.Source {
	case "postgres":
		db, err := c.database()
		if err != nil {
			return nil, err
		}
		repo := postgres.NewBranchRepository(db)
		c.data, c.lines = repo, repo
	case "csv":
		p := csvfile.NewProvider(cfg.Data.CSVDir)
		c.data, c.lines = p, p
	default:
		return nil, fmt.Errorf("unsupported data source %q", cfg.Data.Source)
	}

	policies, err := c.policyProvider(ctx)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.policies = policies

	pcfg := pipeline.DefaultPipelineConfig("replenish")
	pcfg.WorkerCount = cfg.Engine.Workers
	pcfg.BranchTimeout = cfg.Engine.BranchTimeout
	pcfg.Window = window
	c.orch, err = pipeline.NewOrchestrator(repository.NewBranchLoader(c.data, c.policies), pcfg)
	if err != nil {
		c.Close()
		return nil, err
	}

	var uploads storage.ObjectStorage
	if cfg.Storage.Upload {
		if uploads, err = c.objectStorage(); err != nil {
			c.Close()
			return nil, err
		}
	}
	c.exporter = export.NewExporter(cfg.Export.OutputDir, cfg.Export.Prefix, uploads, cfg.Storage.ExportPrefix)

	log.Debug().
		Str("data", cfg.Data.Source).
		Str("policies", cfg.Policy.Source).
		Strs("branches", c.catalogue.Branches()).
		Int("window", window.Size).
		Msg("components ready")
	return c, nil
}

// workbookSource returns the configured policy workbook location.
func (c *components) workbookSource(ctx context.Context) (policy.Source, error) {
	pc := c.cfg.Policy
	switch pc.Source {
	case "file", "postgres":
		return policy.FileSource{Path: pc.Path}, nil
	case "minio":
		objects, err := c.objectStorage()
		if err != nil {
			return nil, err
		}
		return policy.ObjectSource{Storage: objects, Key: pc.ObjectKey}, nil
	case "drive":
		svc, err := drive.NewServiceFromFile(ctx, pc.CredentialsFile)
		if err != nil {
			return nil, err
		}
		return policy.DriveSource{Drive: svc, FolderID: pc.DriveFolderID, FileName: pc.DriveFileName}, nil
	default:
		return nil, fmt.Errorf("unsupported policy source %q", pc.Source)
	}
}

func (c *components) policyProvider(ctx context.Context) (repository.PolicyProvider, error) {
	if c.cfg.Policy.Source == "postgres" {
		db, err := c.database()
		if err != nil {
			return nil, err
		}
		return postgres.NewBranchRepository(db), nil
	}
	src, err := c.workbookSource(ctx)
	if err != nil {
		return nil, err
	}
	return policy.NewProvider(src, c.cfg.Policy.Sheet, time.Duration(c.cfg.Cache.TTLSeconds)*time.Second), nil
}

func (c *components) views() pipeline.Views {
	views := pipeline.DefaultViews()
	views[pipeline.ViewSummary] = pipeline.View{Name: pipeline.ViewSummary, FillMissing: c.cfg.Engine.SummaryFillMissing}
	views[pipeline.ViewDetail] = pipeline.View{Name: pipeline.ViewDetail, FillMissing: c.cfg.Engine.DetailFillMissing}
	return views
}

func (c *components) recommendationService(rc cache.RecommendationCache) *service.RecommendationService {
	return service.NewRecommendationService(service.RecommendationDeps{
		Runner:    c.orch,
		Catalogue: c.catalogue,
		Views:     c.views(),
		Cache:     rc,
		Runs:      pipeline.NewRunRegistry(c.cfg.Engine.RunRetention),
		Exporter:  c.exporter,
		Window:    c.window,
	})
}

func (c *components) analysisService() *service.AnalysisService {
	return service.NewAnalysisService(analysis.NewReporter(c.orch, c.lines), c.catalogue, c.exporter)
}
