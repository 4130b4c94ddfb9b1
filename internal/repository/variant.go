package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/VariantEffect/mavedb-core/internal/calibration"
	"github.com/VariantEffect/mavedb-core/internal/domain"
	"github.com/VariantEffect/mavedb-core/internal/urn"
)

// VariantRepository handles variant persistence.
type VariantRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewVariantRepository creates a new variant repository.
func NewVariantRepository(db *pgxpool.Pool, logger *logrus.Logger) *VariantRepository {
	return &VariantRepository{
		db:  db,
		log: logger,
	}
}

// BulkCreate inserts the variants of one ingestion in a single transaction.
// Each variant gets a URN suffixed with its 1-based row number under the
// score set's current URN. Existing variants for the score set are replaced.
func (r *VariantRepository) BulkCreate(ctx context.Context, scoreSet *domain.ScoreSet, variants []domain.Variant) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Re-uploads replace prior rows wholesale.
	if _, err := tx.Exec(ctx, `DELETE FROM variants WHERE score_set_id = $1`, scoreSet.ID); err != nil {
		return fmt.Errorf("clearing prior variants: %w", err)
	}

	rows := make([][]any, len(variants))
	for i := range variants {
		v := &variants[i]
		v.ScoreSetID = scoreSet.ID
		v.URN = urn.ForVariant(scoreSet.URN, i+1)
		rows[i] = []any{v.ScoreSetID, v.URN, v.HgvsNt, v.HgvsSplice, v.HgvsPro, v.Data}
	}

	copied, err := tx.CopyFrom(ctx,
		pgx.Identifier{"variants"},
		[]string{"score_set_id", "urn", "hgvs_nt", "hgvs_splice", "hgvs_pro", "data"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"score_set_id": scoreSet.ID,
			"error":        err,
		}).Error("Failed to bulk insert variants")
		return fmt.Errorf("bulk inserting variants: %w", err)
	}
	if copied != int64(len(variants)) {
		return fmt.Errorf("bulk insert wrote %d of %d variants", copied, len(variants))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing variant insert: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"score_set_id": scoreSet.ID,
		"count":        len(variants),
	}).Info("Variants created")
	return nil
}

const variantColumns = `id, score_set_id, urn, hgvs_nt, hgvs_splice, hgvs_pro, data, creation_date`

// GetByURN retrieves a variant by URN.
func (r *VariantRepository) GetByURN(ctx context.Context, variantURN string) (*domain.Variant, error) {
	var v domain.Variant
	err := r.db.QueryRow(ctx,
		`SELECT `+variantColumns+` FROM variants WHERE urn = $1`, variantURN,
	).Scan(&v.ID, &v.ScoreSetID, &v.URN, &v.HgvsNt, &v.HgvsSplice, &v.HgvsPro, &v.Data, &v.CreationDate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("variant not found: %w", domain.ErrNotFound)
		}
		r.log.WithFields(logrus.Fields{
			"urn":   variantURN,
			"error": err,
		}).Error("Failed to get variant by URN")
		return nil, fmt.Errorf("getting variant by URN: %w", err)
	}
	return &v, nil
}

// ListByScoreSet returns a score set's variants ordered by URN suffix.
func (r *VariantRepository) ListByScoreSet(ctx context.Context, scoreSetID int64) ([]domain.Variant, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+variantColumns+`
		FROM variants
		WHERE score_set_id = $1
		ORDER BY split_part(urn, '#', 2)::int`, scoreSetID)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"score_set_id": scoreSetID,
			"error":        err,
		}).Error("Failed to list variants")
		return nil, fmt.Errorf("listing variants: %w", err)
	}
	defer rows.Close()

	var variants []domain.Variant
	for rows.Next() {
		var v domain.Variant
		err := rows.Scan(&v.ID, &v.ScoreSetID, &v.URN, &v.HgvsNt, &v.HgvsSplice, &v.HgvsPro, &v.Data, &v.CreationDate)
		if err != nil {
			return nil, fmt.Errorf("scanning variant row: %w", err)
		}
		variants = append(variants, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating variant rows: %w", err)
	}
	return variants, nil
}

// CountByScoreSet returns the number of variants bound to a score set.
func (r *VariantRepository) CountByScoreSet(ctx context.Context, scoreSetID int64) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM variants WHERE score_set_id = $1`, scoreSetID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting variants: %w", err)
	}
	return count, nil
}

// URNsInRange returns the URNs of a score set's variants whose score falls
// within a classification range, evaluated in the database. Variants with a
// missing score never match.
func (r *VariantRepository) URNsInRange(ctx context.Context, scoreSetID int64, scoreRange *domain.ScoreRange) ([]string, error) {
	predicate, args := calibration.RangePredicate(scoreRange, 1)
	query := fmt.Sprintf(`
		SELECT urn FROM variants
		WHERE score_set_id = $1 AND %s
		ORDER BY split_part(urn, '#', 2)::int`, predicate)

	rows, err := r.db.Query(ctx, query, append([]any{scoreSetID}, args...)...)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"score_set_id": scoreSetID,
			"error":        err,
		}).Error("Failed to query variants by score range")
		return nil, fmt.Errorf("querying variants by score range: %w", err)
	}
	defer rows.Close()

	var urns []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scanning variant URN: %w", err)
		}
		urns = append(urns, u)
	}
	return urns, rows.Err()
}

// RenumberForScoreSet rewrites every variant URN of a score set under its new
// published URN, preserving each variant's numeric suffix. The rewrite is
// idempotent.
func (r *VariantRepository) RenumberForScoreSet(ctx context.Context, tx pgx.Tx, scoreSetID int64, newScoreSetURN string) error {
	result, err := tx.Exec(ctx, `
		UPDATE variants
		SET urn = $2 || '#' || split_part(urn, '#', 2)
		WHERE score_set_id = $1`,
		scoreSetID, newScoreSetURN)
	if err != nil {
		return fmt.Errorf("renumbering variant URNs: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"score_set_id": scoreSetID,
		"urn":          newScoreSetURN,
		"count":        result.RowsAffected(),
	}).Info("Variant URNs renumbered")
	return nil
}

// DeleteByScoreSet removes every variant of a score set.
func (r *VariantRepository) DeleteByScoreSet(ctx context.Context, scoreSetID int64) (int64, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM variants WHERE score_set_id = $1`, scoreSetID)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"score_set_id": scoreSetID,
			"error":        err,
		}).Error("Failed to delete variants")
		return 0, fmt.Errorf("deleting variants: %w", err)
	}
	return result.RowsAffected(), nil
}
