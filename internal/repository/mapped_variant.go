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

// MappedVariantRepository handles VRS-mapped variant rows. Mapped rows are
// append-only: a new mapping demotes the previous current row instead of
// mutating it.
type MappedVariantRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewMappedVariantRepository creates a new mapped variant repository.
func NewMappedVariantRepository(db *pgxpool.Pool, logger *logrus.Logger) *MappedVariantRepository {
	return &MappedVariantRepository{
		db:  db,
		log: logger,
	}
}

// InsertCurrent appends a mapped row as the current mapping of its variant.
// Any previous current row for the variant is demoted in the same
// transaction, preserving the at-most-one-current invariant.
func (r *MappedVariantRepository) InsertCurrent(ctx context.Context, mapped *domain.MappedVariant) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		UPDATE mapped_variants SET current = FALSE
		WHERE variant_id = $1 AND current`, mapped.VariantID); err != nil {
		return fmt.Errorf("demoting previous mapping: %w", err)
	}

	mapped.Current = true
	err = tx.QueryRow(ctx, `
		INSERT INTO mapped_variants (
			variant_id, pre_mapped, post_mapped, vrs_version,
			mapping_api_version, mapped_date, current, clingen_allele_id,
			clinvar_variation_id, error_message
		) VALUES ($1, $2, $3, $4, $5, NOW(), TRUE, $6, $7, $8)
		RETURNING id, mapped_date`,
		mapped.VariantID,
		mapped.PreMapped,
		mapped.PostMapped,
		mapped.VRSVersion,
		mapped.MappingAPIVersion,
		mapped.ClinGenAlleleID,
		mapped.ClinVarVariationID,
		mapped.ErrorMessage,
	).Scan(&mapped.ID, &mapped.MappedDate)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"variant_id": mapped.VariantID,
			"error":      err,
		}).Error("Failed to insert mapped variant")
		return fmt.Errorf("inserting mapped variant: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing mapped variant insert: %w", err)
	}
	return nil
}

// GetCurrentByVariant returns the current mapping of one variant.
func (r *MappedVariantRepository) GetCurrentByVariant(ctx context.Context, variantID int64) (*domain.MappedVariant, error) {
	var m domain.MappedVariant
	err := r.db.QueryRow(ctx, `
		SELECT id, variant_id, pre_mapped, post_mapped, vrs_version,
		       mapping_api_version, mapped_date, current, clingen_allele_id,
		       clinvar_variation_id, error_message
		FROM mapped_variants
		WHERE variant_id = $1 AND current`, variantID,
	).Scan(&m.ID, &m.VariantID, &m.PreMapped, &m.PostMapped, &m.VRSVersion,
		&m.MappingAPIVersion, &m.MappedDate, &m.Current, &m.ClinGenAlleleID,
		&m.ClinVarVariationID, &m.ErrorMessage)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("mapped variant not found: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("getting mapped variant: %w", err)
	}
	return &m, nil
}

// ListCurrentByScoreSet returns the current mappings of every variant in a
// score set.
func (r *MappedVariantRepository) ListCurrentByScoreSet(ctx context.Context, scoreSetID int64) ([]domain.MappedVariant, error) {
	rows, err := r.db.Query(ctx, `
		SELECT mv.id, mv.variant_id, mv.pre_mapped, mv.post_mapped, mv.vrs_version,
		       mv.mapping_api_version, mv.mapped_date, mv.current, mv.clingen_allele_id,
		       mv.clinvar_variation_id, mv.error_message
		FROM mapped_variants mv
		JOIN variants v ON v.id = mv.variant_id
		WHERE v.score_set_id = $1 AND mv.current
		ORDER BY mv.variant_id`, scoreSetID)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"score_set_id": scoreSetID,
			"error":        err,
		}).Error("Failed to list mapped variants")
		return nil, fmt.Errorf("listing mapped variants: %w", err)
	}
	defer rows.Close()

	var out []domain.MappedVariant
	for rows.Next() {
		var m domain.MappedVariant
		err := rows.Scan(&m.ID, &m.VariantID, &m.PreMapped, &m.PostMapped, &m.VRSVersion,
			&m.MappingAPIVersion, &m.MappedDate, &m.Current, &m.ClinGenAlleleID,
			&m.ClinVarVariationID, &m.ErrorMessage)
		if err != nil {
			return nil, fmt.Errorf("scanning mapped variant row: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// SetClinGenAlleleID records the canonical allele id resolved for a current
// mapping, together with the ClinVar variation id the registry reports for
// it. An empty variation id stores NULL.
func (r *MappedVariantRepository) SetClinGenAlleleID(ctx context.Context, mappedVariantID int64, caid, clinvarVariationID string) error {
	var variationID *string
	if clinvarVariationID != "" {
		variationID = &clinvarVariationID
	}
	result, err := r.db.Exec(ctx, `
		UPDATE mapped_variants
		SET clingen_allele_id = $2, clinvar_variation_id = $3
		WHERE id = $1`,
		mappedVariantID, caid, variationID)
	if err != nil {
		return fmt.Errorf("setting ClinGen allele id: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("mapped variant not found: %w", domain.ErrNotFound)
	}
	return nil
}
