package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/VariantEffect/mavedb-core/internal/domain"
)

// AnnotationStatusRepository records per-variant annotation attempts. The
// history is append-only; at most one row per (variant, type, version) is
// current.
type AnnotationStatusRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewAnnotationStatusRepository creates a new annotation status repository.
func NewAnnotationStatusRepository(db *pgxpool.Pool, logger *logrus.Logger) *AnnotationStatusRepository {
	return &AnnotationStatusRepository{
		db:  db,
		log: logger,
	}
}

// Append records one annotation attempt as current, demoting any previous
// current row for the same (variant, annotation type, version) key in the
// same transaction.
func (r *AnnotationStatusRepository) Append(ctx context.Context, status *domain.VariantAnnotationStatus) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		UPDATE variant_annotation_statuses SET current = FALSE
		WHERE variant_id = $1 AND annotation_type = $2
		  AND version IS NOT DISTINCT FROM $3 AND current`,
		status.VariantID, status.AnnotationType, status.Version); err != nil {
		return fmt.Errorf("demoting previous annotation status: %w", err)
	}

	status.Current = true
	err = tx.QueryRow(ctx, `
		INSERT INTO variant_annotation_statuses (
			variant_id, annotation_type, version, status, current,
			annotation_data, error_message, job_run_id, creation_date
		) VALUES ($1, $2, $3, $4, TRUE, $5, $6, $7, NOW())
		RETURNING id, creation_date`,
		status.VariantID,
		status.AnnotationType,
		status.Version,
		status.Status,
		status.AnnotationData,
		status.ErrorMessage,
		status.JobRunID,
	).Scan(&status.ID, &status.CreationDate)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"variant_id":      status.VariantID,
			"annotation_type": status.AnnotationType,
			"error":           err,
		}).Error("Failed to append annotation status")
		return fmt.Errorf("appending annotation status: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing annotation status: %w", err)
	}
	return nil
}

// Current returns the current status row for one (variant, type, version)
// key.
func (r *AnnotationStatusRepository) Current(ctx context.Context, variantID int64, annotationType domain.AnnotationType, version *string) (*domain.VariantAnnotationStatus, error) {
	var s domain.VariantAnnotationStatus
	err := r.db.QueryRow(ctx, `
		SELECT id, variant_id, annotation_type, version, status, current,
		       annotation_data, error_message, job_run_id, creation_date
		FROM variant_annotation_statuses
		WHERE variant_id = $1 AND annotation_type = $2
		  AND version IS NOT DISTINCT FROM $3 AND current`,
		variantID, annotationType, version,
	).Scan(&s.ID, &s.VariantID, &s.AnnotationType, &s.Version, &s.Status,
		&s.Current, &s.AnnotationData, &s.ErrorMessage, &s.JobRunID, &s.CreationDate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("annotation status not found: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("getting annotation status: %w", err)
	}
	return &s, nil
}

// History returns every status row for a variant and annotation type, newest
// first.
func (r *AnnotationStatusRepository) History(ctx context.Context, variantID int64, annotationType domain.AnnotationType) ([]domain.VariantAnnotationStatus, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, variant_id, annotation_type, version, status, current,
		       annotation_data, error_message, job_run_id, creation_date
		FROM variant_annotation_statuses
		WHERE variant_id = $1 AND annotation_type = $2
		ORDER BY creation_date DESC, id DESC`,
		variantID, annotationType)
	if err != nil {
		return nil, fmt.Errorf("listing annotation history: %w", err)
	}
	defer rows.Close()

	var out []domain.VariantAnnotationStatus
	for rows.Next() {
		var s domain.VariantAnnotationStatus
		err := rows.Scan(&s.ID, &s.VariantID, &s.AnnotationType, &s.Version, &s.Status,
			&s.Current, &s.AnnotationData, &s.ErrorMessage, &s.JobRunID, &s.CreationDate)
		if err != nil {
			return nil, fmt.Errorf("scanning annotation status row: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
