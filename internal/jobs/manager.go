package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/VariantEffect/mavedb-core/internal/domain"
	"github.com/VariantEffect/mavedb-core/internal/repository"
)

// Version is stamped onto every job run for provenance.
var Version = "dev"

// Handler executes one job. It receives a JobContext for progress reporting
// and returns an optional JSON result.
type Handler func(ctx context.Context, job *JobContext) (json.RawMessage, error)

// JobContext is the per-execution view handed to handlers.
type JobContext struct {
	Run     *domain.JobRun
	manager *Manager
	log     *logrus.Entry
}

// Params unmarshals the job's parameter payload into out.
func (c *JobContext) Params(out any) error {
	if len(c.Run.JobParams) == 0 {
		return fmt.Errorf("job %s has no parameters", c.Run.ID)
	}
	if err := json.Unmarshal(c.Run.JobParams, out); err != nil {
		return fmt.Errorf("unmarshaling job parameters: %w", err)
	}
	return nil
}

// Progress records progress counters for the running job. Progress failures
// are logged but never fail the job.
func (c *JobContext) Progress(ctx context.Context, complete, total int, message string) {
	if err := c.manager.jobRuns.UpdateProgress(ctx, c.Run.ID, complete, total, message); err != nil {
		c.log.WithError(err).Warn("Failed to record job progress")
	}
}

// Log returns the job-scoped logger.
func (c *JobContext) Log() *logrus.Entry {
	return c.log
}

// Submission describes a job to submit.
type Submission struct {
	JobType     string
	JobFunction string
	Params      any
	MaxRetries  int
	PipelineID  *uuid.UUID
	// Guaranteed jobs create their job run record at execution time if it
	// is missing. Guaranteed jobs cannot participate in pipelines.
	Guaranteed bool
}

// Manager creates, enqueues and executes job runs. Handler failures are
// always captured into the job record, never propagated to callers.
type Manager struct {
	jobRuns   *repository.JobRunRepository
	pipelines *repository.PipelineRepository
	queue     *Queue
	log       *logrus.Logger
}

// NewManager creates a job manager.
func NewManager(jobRuns *repository.JobRunRepository, pipelines *repository.PipelineRepository, queue *Queue, logger *logrus.Logger) *Manager {
	return &Manager{
		jobRuns:   jobRuns,
		pipelines: pipelines,
		queue:     queue,
		log:       logger,
	}
}

// Submit records a job run and places it on the queue.
func (m *Manager) Submit(ctx context.Context, sub Submission) (*domain.JobRun, error) {
	if sub.Guaranteed && sub.PipelineID != nil {
		return nil, domain.NewValidationError("a guaranteed job cannot be part of a pipeline")
	}

	var params json.RawMessage
	if sub.Params != nil {
		encoded, err := json.Marshal(sub.Params)
		if err != nil {
			return nil, fmt.Errorf("marshaling job parameters: %w", err)
		}
		params = encoded
	}

	job := &domain.JobRun{
		ID:            uuid.New(),
		JobType:       sub.JobType,
		JobFunction:   sub.JobFunction,
		Status:        domain.JobPending,
		JobParams:     params,
		MaxRetries:    sub.MaxRetries,
		PipelineID:    sub.PipelineID,
		MaveDBVersion: Version,
	}
	if err := m.jobRuns.Create(ctx, job); err != nil {
		return nil, err
	}
	if err := m.queue.Enqueue(ctx, job.ID, job.JobFunction); err != nil {
		return nil, err
	}
	return job, nil
}

// Execute runs one dequeued job under full management: the run is marked
// RUNNING, handler panics are converted to failures, retriable errors
// re-enqueue the job until its retries are exhausted, and pipeline
// continuation fires on success. Execute itself returns an error only for
// infrastructure faults; handler failures are persisted, not raised.
func (m *Manager) Execute(ctx context.Context, msg *QueueMessage, handler Handler) error {
	job, err := m.jobRuns.GetByID(ctx, msg.JobID)
	if errors.Is(err, domain.ErrNotFound) {
		// Guaranteed execution path: reconstruct the record for jobs
		// enqueued without one.
		job = &domain.JobRun{
			ID:            msg.JobID,
			JobType:       "guaranteed",
			JobFunction:   msg.JobFunction,
			Status:        domain.JobPending,
			MaveDBVersion: Version,
		}
		if err := m.jobRuns.Create(ctx, job); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	if job.Status.Terminal() {
		m.log.WithFields(logrus.Fields{
			"job_id": job.ID,
			"status": job.Status,
		}).Warn("Skipping job already in a terminal state")
		return nil
	}

	if err := m.jobRuns.MarkRunning(ctx, job.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	job.Status = domain.JobRunning

	jobCtx := &JobContext{
		Run:     job,
		manager: m,
		log: m.log.WithFields(logrus.Fields{
			"job_id":       job.ID,
			"job_function": job.JobFunction,
		}),
	}

	result, handlerErr := m.invoke(ctx, jobCtx, handler)

	switch {
	case handlerErr == nil:
		job.Status = domain.JobSucceeded
		job.Result = result

	case domain.IsRetriable(handlerErr) && job.RetryCount < job.MaxRetries:
		job.Status = domain.JobRetried
		job.RetryCount++
		recordException(job, handlerErr)

	default:
		job.Status = domain.JobFailed
		recordException(job, handlerErr)
	}

	if err := m.jobRuns.Finish(ctx, job); err != nil {
		return err
	}

	if job.Status == domain.JobRetried {
		jobCtx.log.WithFields(logrus.Fields{
			"retry_count": job.RetryCount,
			"max_retries": job.MaxRetries,
		}).Warn("Job retried")
		// The retried run re-enters the queue as a fresh pending record
		// carrying the same parameters and the incremented retry count.
		retry := &domain.JobRun{
			ID:            uuid.New(),
			JobType:       job.JobType,
			JobFunction:   job.JobFunction,
			Status:        domain.JobPending,
			JobParams:     job.JobParams,
			RetryCount:    job.RetryCount,
			MaxRetries:    job.MaxRetries,
			PipelineID:    job.PipelineID,
			MaveDBVersion: Version,
		}
		if err := m.jobRuns.Create(ctx, retry); err != nil {
			return err
		}
		return m.queue.Enqueue(ctx, retry.ID, retry.JobFunction)
	}

	if job.PipelineID != nil {
		if err := m.continuePipeline(ctx, job); err != nil {
			return err
		}
	}

	if job.Status == domain.JobFailed {
		jobCtx.log.WithField("exception", derefString(job.ExceptionMessage)).Error("Job failed")
	} else {
		jobCtx.log.Info("Job succeeded")
	}
	return nil
}

// invoke runs the handler with panic containment.
func (m *Manager) invoke(ctx context.Context, jobCtx *JobContext, handler Handler) (result json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := string(debug.Stack())
			traceback := stack
			jobCtx.Run.Traceback = &traceback
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return handler(ctx, jobCtx)
}

// continuePipeline advances a pipeline after one of its jobs terminates.
// Success enqueues the next step or completes the pipeline; failure fails it.
func (m *Manager) continuePipeline(ctx context.Context, job *domain.JobRun) error {
	pipeline, err := m.pipelines.GetByID(ctx, *job.PipelineID)
	if err != nil {
		return err
	}

	if job.Status == domain.JobFailed {
		return m.pipelines.UpdateStatus(ctx, pipeline.ID, domain.PipelineFailed)
	}

	next := pipeline.CurrentStep + 1
	if next >= len(pipeline.Steps) {
		return m.pipelines.UpdateStatus(ctx, pipeline.ID, domain.PipelineSucceeded)
	}

	if err := m.pipelines.AdvanceStep(ctx, pipeline.ID, next); err != nil {
		return err
	}

	step := pipeline.Steps[next]
	stepJob := &domain.JobRun{
		ID:            uuid.New(),
		JobType:       pipeline.PipelineType,
		JobFunction:   step.JobFunction,
		Status:        domain.JobPending,
		JobParams:     step.JobParams,
		PipelineID:    &pipeline.ID,
		MaveDBVersion: Version,
	}
	if err := m.jobRuns.Create(ctx, stepJob); err != nil {
		return err
	}
	return m.queue.Enqueue(ctx, stepJob.ID, stepJob.JobFunction)
}

// StartPipeline records a pipeline and enqueues its first step.
func (m *Manager) StartPipeline(ctx context.Context, pipelineType string, steps []domain.PipelineStep) (*domain.Pipeline, error) {
	if len(steps) == 0 {
		return nil, domain.NewValidationError("a pipeline requires at least one step")
	}

	pipeline := &domain.Pipeline{
		ID:           uuid.New(),
		Status:       domain.PipelineCreated,
		PipelineType: pipelineType,
		Steps:        steps,
	}
	if err := m.pipelines.Create(ctx, pipeline); err != nil {
		return nil, err
	}

	first := &domain.JobRun{
		ID:            uuid.New(),
		JobType:       pipelineType,
		JobFunction:   steps[0].JobFunction,
		Status:        domain.JobPending,
		JobParams:     steps[0].JobParams,
		PipelineID:    &pipeline.ID,
		MaveDBVersion: Version,
	}
	if err := m.jobRuns.Create(ctx, first); err != nil {
		return nil, err
	}
	if err := m.pipelines.UpdateStatus(ctx, pipeline.ID, domain.PipelineRunning); err != nil {
		return nil, err
	}
	if err := m.queue.Enqueue(ctx, first.ID, first.JobFunction); err != nil {
		return nil, err
	}

	pipeline.Status = domain.PipelineRunning
	return pipeline, nil
}

func recordException(job *domain.JobRun, err error) {
	class := fmt.Sprintf("%T", err)
	message := err.Error()
	job.ExceptionClass = &class
	job.ExceptionMessage = &message

	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		class = "ValidationError"
		job.ExceptionClass = &class
	}
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
