// The server command runs the HTTP API.
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/VariantEffect/mavedb-core/internal/api"
	"github.com/VariantEffect/mavedb-core/internal/config"
	"github.com/VariantEffect/mavedb-core/internal/database"
	"github.com/VariantEffect/mavedb-core/internal/jobs"
	"github.com/VariantEffect/mavedb-core/internal/publication"
	"github.com/VariantEffect/mavedb-core/internal/repository"
	"github.com/VariantEffect/mavedb-core/internal/service"
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

	runner, err := database.NewMigrationRunner(cfg.DatabaseURL(), "migrations", logger)
	if err != nil {
		logger.Fatalf("Failed to create migration runner: %v", err)
	}
	if err := runner.Up(ctx); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}
	runner.Close()

	queue, err := jobs.NewQueue(cfg.Worker.RedisURL, cfg.Worker.QueueKey, logger)
	if err != nil {
		logger.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer queue.Close()

	scoreSets := repository.NewScoreSetRepository(db.Pool, logger)
	experiments := repository.NewExperimentRepository(db.Pool, logger)
	variants := repository.NewVariantRepository(db.Pool, logger)
	publisher := repository.NewPublisher(db.Pool, variants, logger)
	publications := repository.NewPublicationRepository(db.Pool, logger)
	jobRuns := repository.NewJobRunRepository(db.Pool, logger)
	pipelines := repository.NewPipelineRepository(db.Pool, logger)
	users := repository.NewUserRepository(db.Pool, logger)

	manager := jobs.NewManager(jobRuns, pipelines, queue, logger)

	scoreSetService := service.NewScoreSetService(scoreSets, experiments, variants, publisher, manager, logger)
	calibrationService := service.NewCalibrationService(scoreSets, variants, logger)

	resolver := publication.NewResolver(publications, map[string]external.PublicationFetcher{
		publication.DBPubMed:   external.NewPubMedClient(cfg.External.PubMed),
		publication.DBCrossref: external.NewCrossrefClient(cfg.External.Crossref),
		publication.DBBioRxiv:  external.NewRxivClient("biorxiv", cfg.External.Rxiv),
		publication.DBMedRxiv:  external.NewRxivClient("medrxiv", cfg.External.Rxiv),
	}, logger)

	server := api.NewServer(cfg, db, queue, scoreSetService, calibrationService, resolver, jobRuns, users, logger)
	if err := server.Start(ctx); err != nil {
		logger.Fatalf("Server failed: %v", err)
	}
	logger.Info("Server stopped")
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
