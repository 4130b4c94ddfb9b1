// The worker command consumes the job queue and runs the background mapping
// dispatcher.
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/VariantEffect/mavedb-core/internal/config"
	"github.com/VariantEffect/mavedb-core/internal/database"
	"github.com/VariantEffect/mavedb-core/internal/jobs"
	"github.com/VariantEffect/mavedb-core/internal/repository"
	"github.com/VariantEffect/mavedb-core/pkg/external"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	logger := newLogger(cfg.Logging)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received")
		cancel()
	}()

	db, err := database.NewConnection(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	queue, err := jobs.NewQueue(cfg.Worker.RedisURL, cfg.Worker.QueueKey, logger)
	if err != nil {
		logger.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer queue.Close()

	scoreSets := repository.NewScoreSetRepository(db.Pool, logger)
	variants := repository.NewVariantRepository(db.Pool, logger)
	mapped := repository.NewMappedVariantRepository(db.Pool, logger)
	statuses := repository.NewAnnotationStatusRepository(db.Pool, logger)
	controls := repository.NewClinicalControlRepository(db.Pool, logger)
	gnomad := repository.NewGnomADVariantRepository(db.Pool, logger)
	jobRuns := repository.NewJobRunRepository(db.Pool, logger)
	pipelines := repository.NewPipelineRepository(db.Pool, logger)

	manager := jobs.NewManager(jobRuns, pipelines, queue, logger)

	mapperClient := external.NewVRSMapClient(cfg.External.Mapping)
	clingen, err := external.NewClinGenClient(cfg.External.ClinGen, cfg.External.ClinGenCacheSize)
	if err != nil {
		logger.Fatalf("Failed to create ClinGen client: %v", err)
	}
	archive := external.NewClinVarArchiveClient(cfg.External.ClinVar)
	lake, err := external.NewGnomADLakeClient(cfg.External.GnomADLakeDSN, cfg.External.GnomADLakeVersion)
	if err != nil {
		logger.Fatalf("Failed to connect to gnomAD lake: %v", err)
	}
	defer lake.Close()

	variantJobs := jobs.NewVariantJobs(scoreSets, variants, mapped, statuses, mapperClient, logger)
	enrichmentJobs := jobs.NewEnrichmentJobs(scoreSets, variants, mapped, statuses, controls, gnomad, clingen, archive, lake, logger)

	worker := jobs.NewWorker(manager, queue, cfg.Worker.Concurrency, logger)
	worker.Register(jobs.FnCreateVariants, variantJobs.CreateVariants)
	worker.Register(jobs.FnMapVariants, variantJobs.MapVariants)
	worker.Register(jobs.FnLinkClinGenAlleles, enrichmentJobs.LinkClinGenAlleleIDs)
	worker.Register(jobs.FnLinkClinicalControl, enrichmentJobs.LinkClinicalControls)
	worker.Register(jobs.FnLinkGnomadVariants, enrichmentJobs.LinkGnomadVariants)
	worker.Register(jobs.FnRefreshControls, enrichmentJobs.RefreshClinicalControls)

	mapperManager := jobs.NewMapperManager(scoreSets, manager, cfg.Worker.MapperInterval, cfg.Worker.ControlsVersion, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return worker.Run(gctx) })
	g.Go(func() error { return mapperManager.Run(gctx) })

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Fatalf("Worker failed: %v", err)
	}
	logger.Info("Worker stopped")
}

func newLogger(cfg config.LoggingConfig) *logrus.Logger {
	logger := logrus.New()
	level, err := logrus.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logger
}
