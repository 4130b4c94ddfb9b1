package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/VariantEffect/mavedb-core/internal/domain"
)

// JobRunRepository persists job execution records.
type JobRunRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewJobRunRepository creates a new job run repository.
func NewJobRunRepository(db *pgxpool.Pool, logger *logrus.Logger) *JobRunRepository {
	return &JobRunRepository{
		db:  db,
		log: logger,
	}
}

// Create inserts a pending job run record before execution.
func (r *JobRunRepository) Create(ctx context.Context, job *domain.JobRun) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = domain.JobPending
	}

	err := r.db.QueryRow(ctx, `
		INSERT INTO job_runs (
			id, job_type, job_function, status, job_params, retry_count,
			max_retries, pipeline_id, mavedb_version, creation_date
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		RETURNING creation_date`,
		job.ID,
		job.JobType,
		job.JobFunction,
		job.Status,
		job.JobParams,
		job.RetryCount,
		job.MaxRetries,
		job.PipelineID,
		job.MaveDBVersion,
	).Scan(&job.CreationDate)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"job_id":       job.ID,
			"job_function": job.JobFunction,
			"error":        err,
		}).Error("Failed to create job run")
		return fmt.Errorf("creating job run: %w", err)
	}
	return nil
}

// GetByID retrieves a job run.
func (r *JobRunRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.JobRun, error) {
	var j domain.JobRun
	err := r.db.QueryRow(ctx, `
		SELECT id, job_type, job_function, status, job_params,
		       progress_completed, progress_total, progress_message,
		       retry_count, max_retries, pipeline_id, result,
		       exception_class, exception_message, traceback,
		       mavedb_version, creation_date, started_at, finished_at
		FROM job_runs WHERE id = $1`, id,
	).Scan(&j.ID, &j.JobType, &j.JobFunction, &j.Status, &j.JobParams,
		&j.ProgressComplete, &j.ProgressTotal, &j.ProgressMessage,
		&j.RetryCount, &j.MaxRetries, &j.PipelineID, &j.Result,
		&j.ExceptionClass, &j.ExceptionMessage, &j.Traceback,
		&j.MaveDBVersion, &j.CreationDate, &j.StartedAt, &j.FinishedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("job run not found: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("getting job run: %w", err)
	}
	return &j, nil
}

// MarkRunning transitions a job to RUNNING and stamps its start time.
func (r *JobRunRepository) MarkRunning(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Exec(ctx, `
		UPDATE job_runs SET status = $2, started_at = NOW()
		WHERE id = $1 AND status = $3`,
		id, domain.JobRunning, domain.JobPending)
	if err != nil {
		return fmt.Errorf("marking job running: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("job run not pending: %w", domain.ErrNotFound)
	}
	return nil
}

// Finish records a terminal or retried status with the job's outcome fields.
func (r *JobRunRepository) Finish(ctx context.Context, job *domain.JobRun) error {
	now := time.Now().UTC()
	job.FinishedAt = &now

	result, err := r.db.Exec(ctx, `
		UPDATE job_runs
		SET status = $2, result = $3, exception_class = $4,
		    exception_message = $5, traceback = $6, retry_count = $7,
		    finished_at = $8
		WHERE id = $1`,
		job.ID,
		job.Status,
		job.Result,
		job.ExceptionClass,
		job.ExceptionMessage,
		job.Traceback,
		job.RetryCount,
		job.FinishedAt,
	)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"job_id": job.ID,
			"status": job.Status,
			"error":  err,
		}).Error("Failed to finish job run")
		return fmt.Errorf("finishing job run: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("job run not found: %w", domain.ErrNotFound)
	}
	return nil
}

// UpdateProgress records job progress counters.
func (r *JobRunRepository) UpdateProgress(ctx context.Context, id uuid.UUID, complete, total int, message string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE job_runs
		SET progress_completed = $2, progress_total = $3, progress_message = $4
		WHERE id = $1`,
		id, complete, total, message)
	if err != nil {
		return fmt.Errorf("updating job progress: %w", err)
	}
	return nil
}

// PipelineRepository persists multi-step pipeline records.
type PipelineRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewPipelineRepository creates a new pipeline repository.
func NewPipelineRepository(db *pgxpool.Pool, logger *logrus.Logger) *PipelineRepository {
	return &PipelineRepository{
		db:  db,
		log: logger,
	}
}

// Create inserts a pipeline in the CREATED state.
func (r *PipelineRepository) Create(ctx context.Context, pipeline *domain.Pipeline) error {
	if pipeline.ID == uuid.Nil {
		pipeline.ID = uuid.New()
	}
	if pipeline.Status == "" {
		pipeline.Status = domain.PipelineCreated
	}

	err := r.db.QueryRow(ctx, `
		INSERT INTO pipelines (id, status, pipeline_type, steps, current_step, creation_date, modification_date)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING creation_date, modification_date`,
		pipeline.ID,
		pipeline.Status,
		pipeline.PipelineType,
		pipeline.Steps,
		pipeline.CurrentStep,
	).Scan(&pipeline.CreationDate, &pipeline.ModificationDate)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"pipeline_id":   pipeline.ID,
			"pipeline_type": pipeline.PipelineType,
			"error":         err,
		}).Error("Failed to create pipeline")
		return fmt.Errorf("creating pipeline: %w", err)
	}
	return nil
}

// GetByID retrieves a pipeline.
func (r *PipelineRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Pipeline, error) {
	var p domain.Pipeline
	err := r.db.QueryRow(ctx, `
		SELECT id, status, pipeline_type, steps, current_step, creation_date, modification_date
		FROM pipelines WHERE id = $1`, id,
	).Scan(&p.ID, &p.Status, &p.PipelineType, &p.Steps, &p.CurrentStep, &p.CreationDate, &p.ModificationDate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("pipeline not found: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("getting pipeline: %w", err)
	}
	return &p, nil
}

// UpdateStatus records a pipeline status transition.
func (r *PipelineRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.PipelineStatus) error {
	result, err := r.db.Exec(ctx, `
		UPDATE pipelines SET status = $2, modification_date = NOW() WHERE id = $1`,
		id, status)
	if err != nil {
		return fmt.Errorf("updating pipeline status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("pipeline not found: %w", domain.ErrNotFound)
	}
	return nil
}

// AdvanceStep moves the pipeline cursor to the next step.
func (r *PipelineRepository) AdvanceStep(ctx context.Context, id uuid.UUID, step int) error {
	result, err := r.db.Exec(ctx, `
		UPDATE pipelines SET current_step = $2, modification_date = NOW() WHERE id = $1`,
		id, step)
	if err != nil {
		return fmt.Errorf("advancing pipeline step: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("pipeline not found: %w", domain.ErrNotFound)
	}
	return nil
}
