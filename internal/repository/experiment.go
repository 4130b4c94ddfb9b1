package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/VariantEffect/mavedb-core/internal/domain"
	"github.com/VariantEffect/mavedb-core/internal/urn"
)

// ExperimentRepository handles experiments and experiment sets.
type ExperimentRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewExperimentRepository creates a new experiment repository.
func NewExperimentRepository(db *pgxpool.Pool, logger *logrus.Logger) *ExperimentRepository {
	return &ExperimentRepository{
		db:  db,
		log: logger,
	}
}

// Create inserts an experiment. An experiment created without a parent gets a
// fresh experiment set with its own temporary URN, in the same transaction.
func (r *ExperimentRepository) Create(ctx context.Context, experiment *domain.Experiment) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if experiment.ExperimentSetID == nil {
		set := &domain.ExperimentSet{
			URN:         urn.NewTemporaryURN(),
			Private:     true,
			CreatedByID: experiment.CreatedByID,
		}
		err := tx.QueryRow(ctx, `
			INSERT INTO experiment_sets (urn, private, created_by_id, creation_date, modification_date)
			VALUES ($1, $2, $3, NOW(), NOW())
			RETURNING id, creation_date, modification_date`,
			set.URN, set.Private, set.CreatedByID,
		).Scan(&set.ID, &set.CreationDate, &set.ModificationDate)
		if err != nil {
			return fmt.Errorf("creating experiment set: %w", err)
		}
		experiment.ExperimentSetID = &set.ID
	}

	if experiment.URN == "" {
		experiment.URN = urn.NewTemporaryURN()
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO experiments (
			urn, title, short_description, abstract_text, method_text,
			experiment_set_id, private, created_by_id, creation_date, modification_date
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		RETURNING id, creation_date, modification_date`,
		experiment.URN,
		experiment.Title,
		experiment.ShortDescription,
		experiment.Abstract,
		experiment.MethodText,
		experiment.ExperimentSetID,
		experiment.Private,
		experiment.CreatedByID,
	).Scan(&experiment.ID, &experiment.CreationDate, &experiment.ModificationDate)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"urn":   experiment.URN,
			"error": err,
		}).Error("Failed to create experiment")
		return fmt.Errorf("creating experiment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing experiment creation: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"experiment_id": experiment.ID,
		"urn":           experiment.URN,
	}).Info("Experiment created")
	return nil
}

const experimentColumns = `
	id, urn, title, short_description, abstract_text, method_text,
	experiment_set_id, private, published_date, created_by_id,
	creation_date, modification_date`

// GetByURN retrieves an experiment by URN.
func (r *ExperimentRepository) GetByURN(ctx context.Context, experimentURN string) (*domain.Experiment, error) {
	return r.getOne(ctx, `SELECT `+experimentColumns+` FROM experiments WHERE urn = $1`, experimentURN)
}

// GetByID retrieves an experiment by numeric id.
func (r *ExperimentRepository) GetByID(ctx context.Context, id int64) (*domain.Experiment, error) {
	return r.getOne(ctx, `SELECT `+experimentColumns+` FROM experiments WHERE id = $1`, id)
}

func (r *ExperimentRepository) getOne(ctx context.Context, query string, arg any) (*domain.Experiment, error) {
	var e domain.Experiment
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&e.ID, &e.URN, &e.Title, &e.ShortDescription, &e.Abstract,
		&e.MethodText, &e.ExperimentSetID, &e.Private, &e.PublishedDate,
		&e.CreatedByID, &e.CreationDate, &e.ModificationDate,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("experiment not found: %w", domain.ErrNotFound)
		}
		r.log.WithError(err).Error("Failed to get experiment")
		return nil, fmt.Errorf("getting experiment: %w", err)
	}
	return &e, nil
}

// GetSetByID retrieves an experiment set by numeric id.
func (r *ExperimentRepository) GetSetByID(ctx context.Context, id int64) (*domain.ExperimentSet, error) {
	var s domain.ExperimentSet
	err := r.db.QueryRow(ctx, `
		SELECT id, urn, private, published_date, created_by_id, creation_date, modification_date
		FROM experiment_sets WHERE id = $1`, id,
	).Scan(&s.ID, &s.URN, &s.Private, &s.PublishedDate, &s.CreatedByID, &s.CreationDate, &s.ModificationDate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("experiment set not found: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("getting experiment set: %w", err)
	}
	return &s, nil
}

// Delete removes an experiment. Experiments with live score sets are
// protected by foreign keys.
func (r *ExperimentRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.Exec(ctx, `DELETE FROM experiments WHERE id = $1`, id)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"experiment_id": id,
			"error":         err,
		}).Error("Failed to delete experiment")
		return fmt.Errorf("deleting experiment: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("experiment not found: %w", domain.ErrNotFound)
	}
	return nil
}
