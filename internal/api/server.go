// Package api exposes the HTTP surface of the core: score set CRUD, dataset
// upload and download, publication, calibrations and job inspection.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/VariantEffect/mavedb-core/internal/config"
	"github.com/VariantEffect/mavedb-core/internal/database"
	"github.com/VariantEffect/mavedb-core/internal/jobs"
	"github.com/VariantEffect/mavedb-core/internal/middleware"
	"github.com/VariantEffect/mavedb-core/internal/publication"
	"github.com/VariantEffect/mavedb-core/internal/repository"
	"github.com/VariantEffect/mavedb-core/internal/service"
)

// Server is the HTTP API server.
type Server struct {
	cfg    *config.Config
	router *gin.Engine
	server *http.Server
	log    *logrus.Logger

	db           *database.DB
	queue        *jobs.Queue
	scoreSets    *service.ScoreSetService
	calibrations *service.CalibrationService
	publications *publication.Resolver
	jobRuns      *repository.JobRunRepository
	users        *repository.UserRepository
}

// NewServer creates the HTTP server and registers its routes.
func NewServer(
	cfg *config.Config,
	db *database.DB,
	queue *jobs.Queue,
	scoreSets *service.ScoreSetService,
	calibrations *service.CalibrationService,
	publications *publication.Resolver,
	jobRuns *repository.JobRunRepository,
	users *repository.UserRepository,
	logger *logrus.Logger,
) *Server {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CorrelationID())
	router.Use(requestLogger(logger))

	s := &Server{
		cfg:          cfg,
		router:       router,
		log:          logger,
		db:           db,
		queue:        queue,
		scoreSets:    scoreSets,
		calibrations: calibrations,
		publications: publications,
		jobRuns:      jobRuns,
		users:        users,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	v1.Use(s.userContext())
	{
		v1.POST("/score-sets", s.handleCreateScoreSet)
		v1.GET("/score-sets/:urn", s.handleGetScoreSet)
		v1.DELETE("/score-sets/:urn", s.handleDeleteScoreSet)
		v1.POST("/score-sets/:urn/variants/data", s.handleUploadVariants)
		v1.POST("/score-sets/:urn/publish", s.handlePublishScoreSet)
		v1.GET("/score-sets/:urn/scores", s.handleDownloadScores)
		v1.GET("/score-sets/:urn/counts", s.handleDownloadCounts)
		v1.POST("/score-sets/:urn/calibration", s.handleSetCalibration)
		v1.GET("/score-sets/:urn/calibration/classify", s.handleClassifyVariants)

		v1.POST("/publication-identifiers", s.handleResolvePublication)

		v1.GET("/jobs/:id", s.handleGetJob)
	}
}

// Start serves until the context is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(c *gin.Context) {
	status := http.StatusOK
	checks := gin.H{"database": "ok", "queue": "ok"}

	if err := s.db.Health(c.Request.Context()); err != nil {
		checks["database"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	if err := s.queue.Ping(c.Request.Context()); err != nil {
		checks["queue"] = err.Error()
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"status":    map[bool]string{true: "healthy", false: "unhealthy"}[status == http.StatusOK],
		"timestamp": time.Now().UTC(),
		"checks":    checks,
	})
}

// requestLogger logs one structured line per request.
func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.WithFields(logrus.Fields{
			"method":         c.Request.Method,
			"path":           c.Request.URL.Path,
			"status":         c.Writer.Status(),
			"duration":       time.Since(start).String(),
			"correlation_id": c.GetString("correlation_id"),
		}).Info("Request handled")
	}
}
