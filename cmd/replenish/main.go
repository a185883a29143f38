package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/andresuchdata/autopo-py/replenish/internal/analysis"
	"github.com/andresuchdata/autopo-py/replenish/internal/api"
	"github.com/andresuchdata/autopo-py/replenish/internal/cache"
	"github.com/andresuchdata/autopo-py/replenish/internal/config"
	"github.com/andresuchdata/autopo-py/replenish/internal/drive"
	"github.com/andresuchdata/autopo-py/replenish/internal/export"
	"github.com/andresuchdata/autopo-py/replenish/internal/pipeline"
	"github.com/andresuchdata/autopo-py/replenish/internal/repository/policy"
	"github.com/andresuchdata/autopo-py/replenish/internal/repository/postgres"
	"github.com/andresuchdata/autopo-py/replenish/internal/service"
	"github.com/andresuchdata/autopo-py/replenish/pkg/logger"
)

type configKey struct{}

func configFrom(c *cli.Context) *config.Config {
	return c.Context.Value(configKey{}).(*config.Config)
}

func newBranchFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "branch",
		Aliases: []string{"b"},
		Usage:   "Branch code, comma separated list or \"all\"",
		Value:   service.AllBranches,
	}
}

func newFormatFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format (xlsx or csv)",
		Value:   string(export.FormatXLSX),
	}
}

func main() {
	app := &cli.App{
		Name:  "replenish",
		Usage: "Compute purchase recommendations per branch",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
			},
		},
		Before: func(c *cli.Context) error {
			cfg := config.Load()
			if lvl := c.String("log-level"); lvl != "" {
				cfg.Log.Level = lvl
			}
			logger.Setup(cfg.Log.Level, cfg.Log.Format)
			c.Context = context.WithValue(c.Context, configKey{}, cfg)
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "suggest",
				Usage: "Compute recommendations and write them to a file",
				Flags: []cli.Flag{
					newBranchFlag(),
					newFormatFlag(),
					&cli.StringFlag{
						Name:  "view",
						Usage: "Column view (standard, summary or detail)",
						Value: pipeline.ViewStandard,
					},
					&cli.StringFlag{
						Name:    "window-end",
						Usage:   "Last month of the demand window (YYYY-MM)",
						EnvVars: []string{"ENGINE_WINDOW_END"},
					},
					&cli.BoolFlag{
						Name:    "upload",
						Usage:   "Upload the file to object storage",
						EnvVars: []string{"EXPORT_UPLOAD"},
					},
				},
				Action: runSuggest,
			},
			{
				Name:  "analysis",
				Usage: "Write the inventory analysis report",
				Flags: []cli.Flag{
					newBranchFlag(),
					newFormatFlag(),
					&cli.StringFlag{
						Name:  "months",
						Usage: "Lookback period in months (3, 6, 12 or 24)",
						Value: "3",
					},
				},
				Action: runAnalysis,
			},
			{
				Name:   "serve",
				Usage:  "Start the HTTP API",
				Action: runServe,
			},
			{
				Name:  "policies",
				Usage: "Manage branch policies",
				Subcommands: []*cli.Command{
					{
						Name:   "sync",
						Usage:  "Copy the policy workbook into the database",
						Flags:  []cli.Flag{newBranchFlag()},
						Action: runPoliciesSync,
					},
				},
			},
			{
				Name:  "fetch-drive",
				Usage: "Download branch CSV exports from Google Drive",
				Flags: []cli.Flag{
					newBranchFlag(),
					&cli.StringFlag{
						Name:    "folder",
						Usage:   "Drive folder ID or path holding one sub folder per branch",
						EnvVars: []string{"DATA_DRIVE_FOLDER_ID"},
					},
					&cli.StringFlag{
						Name:    "credentials",
						Usage:   "Service account credentials file",
						EnvVars: []string{"GOOGLE_CREDENTIALS_FILE"},
					},
				},
				Action: runFetchDrive,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("command failed")
	}
}

func logFailures(failures []pipeline.BranchFailure) {
	for _, f := range failures {
		log.Warn().Str("branch", f.Branch).Str("status", string(f.Status)).Err(f.Err).Msg("branch excluded from output")
	}
}

func runSuggest(c *cli.Context) error {
	cfg := configFrom(c)
	if c.IsSet("window-end") {
		cfg.Engine.WindowEnd = c.String("window-end")
	}
	if c.IsSet("upload") {
		cfg.Storage.Upload = c.Bool("upload")
	}
	format, err := export.ParseFormat(c.String("format"))
	if err != nil {
		return err
	}

	comps, err := newComponents(c.Context, cfg)
	if err != nil {
		return err
	}
	defer comps.Close()

	svc := comps.recommendationService(cache.NewNoopRecommendationCache())
	res, report, err := svc.Export(c.Context, service.Request{Branch: c.String("branch"), View: c.String("view")}, format)
	if report != nil {
		logFailures(report.Failures)
	}
	if err != nil {
		return err
	}

	log.Info().
		Strs("branches", report.Branches).
		Int("rows", len(report.Table.Rows)).
		Str("file", res.Path).
		Str("object", res.ObjectKey).
		Msg("recommendations written")
	return nil
}

func runAnalysis(c *cli.Context) error {
	cfg := configFrom(c)
	months, err := analysis.ParseMonths(c.String("months"))
	if err != nil {
		return err
	}
	format, err := export.ParseFormat(c.String("format"))
	if err != nil {
		return err
	}

	comps, err := newComponents(c.Context, cfg)
	if err != nil {
		return err
	}
	defer comps.Close()

	res, report, err := comps.analysisService().Export(c.Context, c.String("branch"), months, format)
	if report != nil {
		logFailures(report.Failures)
	}
	if err != nil {
		return err
	}

	log.Info().
		Int("months", months).
		Time("since", report.Since).
		Int("rows", len(report.Table.Rows)).
		Str("file", res.Path).
		Msg("analysis written")
	return nil
}

func runServe(c *cli.Context) error {
	cfg := configFrom(c)
	if cfg.Server.Mode == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	comps, err := newComponents(c.Context, cfg)
	if err != nil {
		return err
	}
	defer comps.Close()

	rc, err := cache.NewRecommendationCache(cfg.Cache)
	if err != nil {
		log.Warn().Err(err).Msg("recommendation cache unavailable, continuing without it")
		rc = cache.NewNoopRecommendationCache()
	}

	router := api.NewRouter(&api.Services{
		RecommendationService: comps.recommendationService(rc),
		AnalysisService:       comps.analysisService(),
	}, cfg.Server.AllowedOrigins)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("failed to start server: %w", err)
	case <-quit:
	}
	log.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info().Msg("server exiting")
	return nil
}

func runPoliciesSync(c *cli.Context) error {
	cfg := configFrom(c)
	comps := &components{cfg: cfg, catalogue: service.NewCatalogue(cfg.Engine.Branches)}
	defer comps.Close()

	sel, err := comps.catalogue.Resolve(c.String("branch"))
	if err != nil {
		return err
	}
	src, err := comps.workbookSource(c.Context)
	if err != nil {
		return err
	}
	table, err := policy.NewProvider(src, cfg.Policy.Sheet, 0).Table(c.Context)
	if err != nil {
		return err
	}

	db, err := comps.database()
	if err != nil {
		return err
	}
	repo := postgres.NewBranchRepository(db)
	for _, branch := range sel.Branches {
		policies, err := table.Branch(branch)
		if err != nil {
			return fmt.Errorf("branch %s: %w", branch, err)
		}
		if err := repo.SavePolicies(c.Context, branch, policies); err != nil {
			return fmt.Errorf("branch %s: %w", branch, err)
		}
		log.Info().Str("branch", branch).Int("groups", len(policies)).Msg("policies synced")
	}
	return nil
}

func runFetchDrive(c *cli.Context) error {
	cfg := configFrom(c)
	folder := c.String("folder")
	if folder == "" {
		folder = cfg.Data.DriveFolderID
	}
	if folder == "" {
		return errors.New("drive folder ID is required")
	}
	creds := c.String("credentials")
	if creds == "" {
		creds = cfg.Policy.CredentialsFile
	}

	sel, err := service.NewCatalogue(cfg.Engine.Branches).Resolve(c.String("branch"))
	if err != nil {
		return err
	}

	ctx := c.Context
	if cfg.Data.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Data.Timeout)
		defer cancel()
	}

	svc, err := drive.NewServiceFromFile(ctx, creds)
	if err != nil {
		return err
	}
	// A slash separated value is a folder path below the Drive root.
	if strings.Contains(folder, "/") {
		if folder, err = svc.FindFolderByPath(ctx, folder); err != nil {
			return err
		}
	}
	files, err := drive.NewDownloader(svc).DownloadBranches(ctx, drive.DownloadOptions{
		FolderID:    folder,
		DownloadDir: cfg.Data.CSVDir,
		Branches:    sel.Branches,
	})
	if err != nil {
		return err
	}
	for branch, paths := range files {
		log.Info().Str("branch", branch).Strs("files", paths).Msg("branch files downloaded")
	}
	return nil
}
