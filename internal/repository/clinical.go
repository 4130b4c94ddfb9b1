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

// ClinicalControlRepository persists external clinical-significance rows and
// their links to mapped variants.
type ClinicalControlRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewClinicalControlRepository creates a new clinical control repository.
func NewClinicalControlRepository(db *pgxpool.Pool, logger *logrus.Logger) *ClinicalControlRepository {
	return &ClinicalControlRepository{
		db:  db,
		log: logger,
	}
}

// Upsert inserts or refreshes a control row keyed by
// (db_name, db_identifier, db_version).
func (r *ClinicalControlRepository) Upsert(ctx context.Context, control *domain.ClinicalControl) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO clinical_controls (
			db_name, db_identifier, db_version, gene_symbol,
			clinical_significance, clinical_review_status, modification_date
		) VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (db_name, db_identifier, db_version) DO UPDATE SET
			gene_symbol = EXCLUDED.gene_symbol,
			clinical_significance = EXCLUDED.clinical_significance,
			clinical_review_status = EXCLUDED.clinical_review_status,
			modification_date = NOW()
		RETURNING id, modification_date`,
		control.DBName,
		control.DBIdentifier,
		control.DBVersion,
		control.GeneSymbol,
		control.ClinicalSignificance,
		control.ReviewStatus,
	).Scan(&control.ID, &control.ModificationDate)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"db_name":       control.DBName,
			"db_identifier": control.DBIdentifier,
			"error":         err,
		}).Error("Failed to upsert clinical control")
		return fmt.Errorf("upserting clinical control: %w", err)
	}
	return nil
}

// LinkMappedVariant attaches a control to a mapped variant.
func (r *ClinicalControlRepository) LinkMappedVariant(ctx context.Context, mappedVariantID, controlID int64) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO mapped_variants_clinical_controls (mapped_variant_id, clinical_control_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`,
		mappedVariantID, controlID)
	if err != nil {
		return fmt.Errorf("linking clinical control: %w", err)
	}
	return nil
}

// FindByIdentifier returns the control rows of one database version matching
// a source database identifier, e.g. a ClinVar variation id.
func (r *ClinicalControlRepository) FindByIdentifier(ctx context.Context, dbName, dbVersion, identifier string) ([]domain.ClinicalControl, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, db_name, db_identifier, db_version, gene_symbol,
		       clinical_significance, clinical_review_status, modification_date
		FROM clinical_controls
		WHERE db_name = $1 AND db_version = $2 AND db_identifier = $3`,
		dbName, dbVersion, identifier)
	if err != nil {
		return nil, fmt.Errorf("finding clinical controls: %w", err)
	}
	defer rows.Close()

	var out []domain.ClinicalControl
	for rows.Next() {
		var c domain.ClinicalControl
		err := rows.Scan(&c.ID, &c.DBName, &c.DBIdentifier, &c.DBVersion,
			&c.GeneSymbol, &c.ClinicalSignificance, &c.ReviewStatus, &c.ModificationDate)
		if err != nil {
			return nil, fmt.Errorf("scanning clinical control row: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GnomADVariantRepository persists population-frequency rows from the gnomAD
// data lake and their links to mapped variants.
type GnomADVariantRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewGnomADVariantRepository creates a new gnomAD variant repository.
func NewGnomADVariantRepository(db *pgxpool.Pool, logger *logrus.Logger) *GnomADVariantRepository {
	return &GnomADVariantRepository{
		db:  db,
		log: logger,
	}
}

// Upsert inserts or refreshes a gnomAD row keyed by
// (db_identifier, db_version).
func (r *GnomADVariantRepository) Upsert(ctx context.Context, variant *domain.GnomADVariant) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO gnomad_variants (
			db_identifier, db_version, allele_frequency, allele_count,
			allele_number, caid, creation_date
		) VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (db_identifier, db_version) DO UPDATE SET
			allele_frequency = EXCLUDED.allele_frequency,
			allele_count = EXCLUDED.allele_count,
			allele_number = EXCLUDED.allele_number,
			caid = EXCLUDED.caid
		RETURNING id, creation_date`,
		variant.DBIdentifier,
		variant.DBVersion,
		variant.AlleleFrequency,
		variant.AlleleCount,
		variant.AlleleNumber,
		variant.CAID,
	).Scan(&variant.ID, &variant.CreationDate)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"db_identifier": variant.DBIdentifier,
			"db_version":    variant.DBVersion,
			"error":         err,
		}).Error("Failed to upsert gnomAD variant")
		return fmt.Errorf("upserting gnomAD variant: %w", err)
	}
	return nil
}

// LinkMappedVariant attaches a gnomAD row to a mapped variant.
func (r *GnomADVariantRepository) LinkMappedVariant(ctx context.Context, mappedVariantID, gnomadVariantID int64) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO mapped_variants_gnomad_variants (mapped_variant_id, gnomad_variant_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`,
		mappedVariantID, gnomadVariantID)
	if err != nil {
		return fmt.Errorf("linking gnomAD variant: %w", err)
	}
	return nil
}

// FindByCAID returns the stored gnomAD rows for one data lake version
// matching a canonical allele id.
func (r *GnomADVariantRepository) FindByCAID(ctx context.Context, dbVersion, caid string) (*domain.GnomADVariant, error) {
	var v domain.GnomADVariant
	err := r.db.QueryRow(ctx, `
		SELECT id, db_identifier, db_version, allele_frequency, allele_count,
		       allele_number, caid, creation_date
		FROM gnomad_variants
		WHERE db_version = $1 AND caid = $2`,
		dbVersion, caid,
	).Scan(&v.ID, &v.DBIdentifier, &v.DBVersion, &v.AlleleFrequency,
		&v.AlleleCount, &v.AlleleNumber, &v.CAID, &v.CreationDate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("gnomAD variant not found: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("finding gnomAD variant: %w", err)
	}
	return &v, nil
}
