package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a job run.
type JobStatus string

const (
	JobPending   JobStatus = "PENDING"
	JobRunning   JobStatus = "RUNNING"
	JobSucceeded JobStatus = "SUCCEEDED"
	JobFailed    JobStatus = "FAILED"
	JobRetried   JobStatus = "RETRIED"
)

// Terminal reports whether the status ends a job's lifecycle. RETRIED is not
// terminal: the job re-enters the queue with the same parameters.
func (s JobStatus) Terminal() bool {
	return s == JobSucceeded || s == JobFailed
}

// PipelineStatus is the lifecycle state of a pipeline.
type PipelineStatus string

const (
	PipelineCreated   PipelineStatus = "CREATED"
	PipelineRunning   PipelineStatus = "RUNNING"
	PipelineSucceeded PipelineStatus = "SUCCEEDED"
	PipelineFailed    PipelineStatus = "FAILED"
)

// JobRun is the persistent record of one job execution. Created before
// execution and mutated only through the job manager.
type JobRun struct {
	ID               uuid.UUID       `json:"id"`
	JobType          string          `json:"job_type"`
	JobFunction      string          `json:"job_function"`
	Status           JobStatus       `json:"status"`
	JobParams        json.RawMessage `json:"job_params,omitempty"`
	ProgressComplete int             `json:"progress_completed"`
	ProgressTotal    int             `json:"progress_total"`
	ProgressMessage  string          `json:"progress_message,omitempty"`
	RetryCount       int             `json:"retry_count"`
	MaxRetries       int             `json:"max_retries"`
	PipelineID       *uuid.UUID      `json:"pipeline_id,omitempty"`
	Result           json.RawMessage `json:"result,omitempty"`
	ExceptionClass   *string         `json:"exception_class,omitempty"`
	ExceptionMessage *string         `json:"exception_message,omitempty"`
	Traceback        *string         `json:"traceback,omitempty"`
	MaveDBVersion    string          `json:"mavedb_version,omitempty"`
	CreationDate     time.Time       `json:"creation_date"`
	StartedAt        *time.Time      `json:"started_at,omitempty"`
	FinishedAt       *time.Time      `json:"finished_at,omitempty"`
}

// PipelineStep is one declared step of a pipeline: a registered job function
// and its parameter template.
type PipelineStep struct {
	JobFunction string          `json:"job_function"`
	JobParams   json.RawMessage `json:"job_params,omitempty"`
}

// Pipeline is an ordered multi-step workflow. Steps execute sequentially; the
// next step is enqueued only after the previous one terminates SUCCEEDED.
type Pipeline struct {
	ID               uuid.UUID      `json:"id"`
	Status           PipelineStatus `json:"status"`
	PipelineType     string         `json:"pipeline_type"`
	Steps            []PipelineStep `json:"steps"`
	CurrentStep      int            `json:"current_step"`
	CreationDate     time.Time      `json:"creation_date"`
	ModificationDate time.Time      `json:"modification_date"`
}

// AnnotationType names a class of per-variant annotation.
type AnnotationType string

const (
	AnnotationVRSMapping         AnnotationType = "VRS_MAPPING"
	AnnotationClinGenAlleleID    AnnotationType = "CLINGEN_ALLELE_ID"
	AnnotationClinVarControl     AnnotationType = "CLINVAR_CONTROL"
	AnnotationGnomADFrequency    AnnotationType = "GNOMAD_ALLELE_FREQUENCY"
	AnnotationVEPConsequence     AnnotationType = "VEP_FUNCTIONAL_CONSEQUENCE"
)

// AnnotationOutcome is the recorded outcome of one annotation attempt.
type AnnotationOutcome string

const (
	AnnotationSuccess AnnotationOutcome = "SUCCESS"
	AnnotationFailed  AnnotationOutcome = "FAILED"
	AnnotationSkipped AnnotationOutcome = "SKIPPED"
)

// VariantAnnotationStatus is one row of the append-only annotation history.
// Writing a new row for a given (variant, type, version) demotes previous
// matching rows to current=false.
type VariantAnnotationStatus struct {
	ID             int64             `json:"id"`
	VariantID      int64             `json:"variant_id"`
	AnnotationType AnnotationType    `json:"annotation_type"`
	Version        *string           `json:"version,omitempty"`
	Status         AnnotationOutcome `json:"status"`
	Current        bool              `json:"current"`
	AnnotationData json.RawMessage   `json:"annotation_data,omitempty"`
	ErrorMessage   *string           `json:"error_message,omitempty"`
	JobRunID       *uuid.UUID        `json:"job_run_id,omitempty"`
	CreationDate   time.Time         `json:"creation_date"`
}
