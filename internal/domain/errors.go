package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors shared across the repository layer.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// ValidationError represents bad user input. It is never retried and is
// surfaced verbatim, with per-row detail and the underlying errors that
// triggered it.
type ValidationError struct {
	Message    string
	Detail     []string
	Triggering []error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if len(e.Detail) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Message, strings.Join(e.Detail, "; "))
}

// NewValidationError creates a ValidationError with an optional detail list.
func NewValidationError(message string, detail ...string) *ValidationError {
	return &ValidationError{Message: message, Detail: detail}
}

// Payload converts the error into the structured form persisted on a score
// set's processing_errors or mapping_errors column.
func (e *ValidationError) Payload() *ErrorPayload {
	p := &ErrorPayload{Exception: e.Message, Detail: e.Detail}
	for _, t := range e.Triggering {
		p.TriggeringExceptions = append(p.TriggeringExceptions, t.Error())
	}
	return p
}

// AmbiguousIdentifierError is raised when an identifier resolves in more than
// one publication database and no db_name was supplied.
type AmbiguousIdentifierError struct {
	Identifier string
	DBNames    []string
}

func (e *AmbiguousIdentifierError) Error() string {
	return fmt.Sprintf(
		"identifier %q matched multiple databases (%s); supply db_name to disambiguate",
		e.Identifier, strings.Join(e.DBNames, ", "),
	)
}

// NonexistentIdentifierError is raised when an identifier resolves in no
// publication database.
type NonexistentIdentifierError struct {
	Identifier string
}

func (e *NonexistentIdentifierError) Error() string {
	return fmt.Sprintf("identifier %q could not be found in any supported database", e.Identifier)
}

// MixedTargetError is raised when a score set mixes sequence and accession
// targets.
type MixedTargetError struct {
	ScoreSetURN string
}

func (e *MixedTargetError) Error() string {
	return fmt.Sprintf("score set %s mixes sequence and accession based targets", e.ScoreSetURN)
}

// NonexistentOrcidUserError is a contributor lookup miss; surfaced with 404.
type NonexistentOrcidUserError struct {
	ORCIDID string
}

func (e *NonexistentOrcidUserError) Error() string {
	return fmt.Sprintf("no ORCID user found for id %s", e.ORCIDID)
}

// VRS mapping failures. Terminal for the mapping job after retry exhaustion;
// recorded to score_set.mapping_errors.

type NonexistentMappingResultsError struct{ ScoreSetURN string }

func (e *NonexistentMappingResultsError) Error() string {
	return fmt.Sprintf("mapping service returned no results for score set %s", e.ScoreSetURN)
}

type NonexistentMappingScoresError struct{ ScoreSetURN string }

func (e *NonexistentMappingScoresError) Error() string {
	return fmt.Sprintf("mapping service returned no mapped scores for score set %s", e.ScoreSetURN)
}

type NonexistentMappingReferenceError struct{ ScoreSetURN string }

func (e *NonexistentMappingReferenceError) Error() string {
	return fmt.Sprintf("mapping service returned no reference metadata for score set %s", e.ScoreSetURN)
}

type NoMappedVariantsError struct{ ScoreSetURN string }

func (e *NoMappedVariantsError) Error() string {
	return fmt.Sprintf("no current mapped variants exist for score set %s", e.ScoreSetURN)
}

// TransientExternalError wraps an external-service transport failure
// (timeout, 5xx). Jobs treat it as retriable.
type TransientExternalError struct {
	Service string
	Err     error
}

func (e *TransientExternalError) Error() string {
	return fmt.Sprintf("transient failure calling %s: %v", e.Service, e.Err)
}

func (e *TransientExternalError) Unwrap() error { return e.Err }

// IsRetriable reports whether a job failure is eligible for re-enqueue under
// the managed-job retry policy. Validation errors never retry; external
// transport failures do.
func IsRetriable(err error) bool {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return false
	}
	var te *TransientExternalError
	return errors.As(err, &te)
}
