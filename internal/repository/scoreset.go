// Package repository provides PostgreSQL persistence for the MaveDB core
// entities. Repositories hold a pgx pool and log failures with structured
// fields; callers detect missing rows with domain.ErrNotFound.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/VariantEffect/mavedb-core/internal/domain"
	"github.com/VariantEffect/mavedb-core/internal/urn"
)

// ScoreSetRepository handles score set persistence.
type ScoreSetRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewScoreSetRepository creates a new score set repository.
func NewScoreSetRepository(db *pgxpool.Pool, logger *logrus.Logger) *ScoreSetRepository {
	return &ScoreSetRepository{
		db:  db,
		log: logger,
	}
}

const scoreSetColumns = `
	id, urn, title, short_description, abstract_text, method_text,
	license_id, private, published_date, processing_state, mapping_state,
	processing_errors, mapping_errors, num_variants, dataset_columns,
	score_ranges, experiment_id, superseded_score_set_id,
	created_by_id, modified_by_id, creation_date, modification_date`

// Create inserts a new score set. Unpublished score sets receive a temporary
// URN; the processing state starts incomplete with mapping pending.
func (r *ScoreSetRepository) Create(ctx context.Context, scoreSet *domain.ScoreSet) error {
	if scoreSet.URN == "" {
		scoreSet.URN = urn.NewTemporaryURN()
	}
	if scoreSet.ProcessingState == "" {
		scoreSet.ProcessingState = domain.ProcessingIncomplete
	}
	if scoreSet.MappingState == "" {
		scoreSet.MappingState = domain.MappingPendingVariantProcessing
	}

	query := `
		INSERT INTO score_sets (
			urn, title, short_description, abstract_text, method_text,
			license_id, private, processing_state, mapping_state,
			experiment_id, superseded_score_set_id, created_by_id,
			modified_by_id, creation_date, modification_date
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW(), NOW()
		)
		RETURNING id, creation_date, modification_date`

	err := r.db.QueryRow(ctx, query,
		scoreSet.URN,
		scoreSet.Title,
		scoreSet.ShortDescription,
		scoreSet.Abstract,
		scoreSet.MethodText,
		scoreSet.LicenseID,
		scoreSet.Private,
		scoreSet.ProcessingState,
		scoreSet.MappingState,
		scoreSet.ExperimentID,
		scoreSet.SupersededScoreSetID,
		scoreSet.CreatedByID,
		scoreSet.ModifiedByID,
	).Scan(&scoreSet.ID, &scoreSet.CreationDate, &scoreSet.ModificationDate)

	if err != nil {
		r.log.WithFields(logrus.Fields{
			"urn":   scoreSet.URN,
			"error": err,
		}).Error("Failed to create score set")
		return fmt.Errorf("creating score set: %w", err)
	}

	if len(scoreSet.MetaAnalyzesIDs) > 0 {
		if err := r.linkMetaAnalyzed(ctx, scoreSet.ID, scoreSet.MetaAnalyzesIDs); err != nil {
			return err
		}
	}

	r.log.WithFields(logrus.Fields{
		"score_set_id": scoreSet.ID,
		"urn":          scoreSet.URN,
	}).Info("Score set created")

	return nil
}

func (r *ScoreSetRepository) linkMetaAnalyzed(ctx context.Context, metaAnalysisID int64, sourceIDs []int64) error {
	for _, sourceID := range sourceIDs {
		_, err := r.db.Exec(ctx, `
			INSERT INTO meta_analyzed_score_sets (meta_analysis_id, source_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING`,
			metaAnalysisID, sourceID)
		if err != nil {
			return fmt.Errorf("linking meta-analyzed score set %d: %w", sourceID, err)
		}
	}
	return nil
}

// GetByURN retrieves a score set by URN, with its target genes and
// meta-analysis links loaded.
func (r *ScoreSetRepository) GetByURN(ctx context.Context, scoreSetURN string) (*domain.ScoreSet, error) {
	query := `SELECT ` + scoreSetColumns + ` FROM score_sets WHERE urn = $1`
	return r.getOne(ctx, query, scoreSetURN)
}

// GetByID retrieves a score set by numeric id.
func (r *ScoreSetRepository) GetByID(ctx context.Context, id int64) (*domain.ScoreSet, error) {
	query := `SELECT ` + scoreSetColumns + ` FROM score_sets WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *ScoreSetRepository) getOne(ctx context.Context, query string, arg any) (*domain.ScoreSet, error) {
	var s domain.ScoreSet
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&s.ID,
		&s.URN,
		&s.Title,
		&s.ShortDescription,
		&s.Abstract,
		&s.MethodText,
		&s.LicenseID,
		&s.Private,
		&s.PublishedDate,
		&s.ProcessingState,
		&s.MappingState,
		&s.ProcessingErrors,
		&s.MappingErrors,
		&s.NumVariants,
		&s.DatasetColumns,
		&s.ScoreRanges,
		&s.ExperimentID,
		&s.SupersededScoreSetID,
		&s.CreatedByID,
		&s.ModifiedByID,
		&s.CreationDate,
		&s.ModificationDate,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("score set not found: %w", domain.ErrNotFound)
		}
		r.log.WithError(err).Error("Failed to get score set")
		return nil, fmt.Errorf("getting score set: %w", err)
	}

	if err := r.loadAssociations(ctx, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *ScoreSetRepository) loadAssociations(ctx context.Context, s *domain.ScoreSet) error {
	rows, err := r.db.Query(ctx, `
		SELECT source_id FROM meta_analyzed_score_sets
		WHERE meta_analysis_id = $1
		ORDER BY source_id`, s.ID)
	if err != nil {
		return fmt.Errorf("loading meta-analysis links: %w", err)
	}
	defer rows.Close()

	s.MetaAnalyzesIDs = nil
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("scanning meta-analysis link: %w", err)
		}
		s.MetaAnalyzesIDs = append(s.MetaAnalyzesIDs, id)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating meta-analysis links: %w", err)
	}

	targets, err := r.targetGenes(ctx, s.ID)
	if err != nil {
		return err
	}
	s.TargetGenes = targets

	contributors, err := r.contributors(ctx, s.ID)
	if err != nil {
		return err
	}
	s.Contributors = contributors
	return nil
}

func (r *ScoreSetRepository) targetGenes(ctx context.Context, scoreSetID int64) ([]domain.TargetGene, error) {
	rows, err := r.db.Query(ctx, `
		SELECT tg.id, tg.name, tg.category,
		       tg.pre_mapped_metadata, tg.post_mapped_metadata, tg.mapped_hgnc_name,
		       ts.id, ts.sequence, ts.sequence_type, ts.taxonomy_id, ts.label,
		       ta.id, ta.accession, ta.assembly, ta.gene, ta.is_base_editor
		FROM target_genes tg
		LEFT JOIN target_sequences ts ON ts.target_gene_id = tg.id
		LEFT JOIN target_accessions ta ON ta.target_gene_id = tg.id
		WHERE tg.score_set_id = $1
		ORDER BY tg.id`, scoreSetID)
	if err != nil {
		return nil, fmt.Errorf("loading target genes: %w", err)
	}
	defer rows.Close()

	var targets []domain.TargetGene
	for rows.Next() {
		var tg domain.TargetGene
		var seqID *int64
		var seq, seqType, seqLabel *string
		var taxonomyID *int64
		var accID *int64
		var accession, assembly, gene *string
		var isBaseEditor *bool

		err := rows.Scan(
			&tg.ID, &tg.Name, &tg.Category,
			&tg.PreMappedMetadata, &tg.PostMappedMetadata, &tg.MappedHGNCName,
			&seqID, &seq, &seqType, &taxonomyID, &seqLabel,
			&accID, &accession, &assembly, &gene, &isBaseEditor,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning target gene: %w", err)
		}
		tg.ScoreSetID = scoreSetID

		if seqID != nil {
			tg.TargetSequence = &domain.TargetSequence{
				ID:           *seqID,
				Sequence:     deref(seq),
				SequenceType: domain.SequenceType(deref(seqType)),
				TaxonomyID:   taxonomyID,
				Label:        deref(seqLabel),
			}
		}
		if accID != nil {
			tg.TargetAccession = &domain.TargetAccession{
				ID:           *accID,
				Accession:    deref(accession),
				Assembly:     deref(assembly),
				Gene:         deref(gene),
				IsBaseEditor: isBaseEditor != nil && *isBaseEditor,
			}
		}
		targets = append(targets, tg)
	}
	return targets, rows.Err()
}

func (r *ScoreSetRepository) contributors(ctx context.Context, scoreSetID int64) ([]domain.Contributor, error) {
	rows, err := r.db.Query(ctx, `
		SELECT c.id, c.orcid_id, c.given_name, c.family_name
		FROM contributors c
		JOIN score_set_contributors sc ON sc.contributor_id = c.id
		WHERE sc.score_set_id = $1
		ORDER BY c.id`, scoreSetID)
	if err != nil {
		return nil, fmt.Errorf("loading contributors: %w", err)
	}
	defer rows.Close()

	var out []domain.Contributor
	for rows.Next() {
		var c domain.Contributor
		if err := rows.Scan(&c.ID, &c.ORCIDID, &c.GivenName, &c.FamilyName); err != nil {
			return nil, fmt.Errorf("scanning contributor: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CreateTargetGene inserts a target gene and its sequence or accession.
func (r *ScoreSetRepository) CreateTargetGene(ctx context.Context, target *domain.TargetGene) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO target_genes (score_set_id, name, category)
		VALUES ($1, $2, $3)
		RETURNING id`,
		target.ScoreSetID, target.Name, target.Category,
	).Scan(&target.ID)
	if err != nil {
		return fmt.Errorf("creating target gene: %w", err)
	}

	if target.TargetSequence != nil {
		ts := target.TargetSequence
		err := r.db.QueryRow(ctx, `
			INSERT INTO target_sequences (target_gene_id, sequence, sequence_type, taxonomy_id, label)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`,
			target.ID, ts.Sequence, ts.SequenceType, ts.TaxonomyID, ts.Label,
		).Scan(&ts.ID)
		if err != nil {
			return fmt.Errorf("creating target sequence: %w", err)
		}
	}
	if target.TargetAccession != nil {
		ta := target.TargetAccession
		err := r.db.QueryRow(ctx, `
			INSERT INTO target_accessions (target_gene_id, accession, assembly, gene, is_base_editor)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`,
			target.ID, ta.Accession, ta.Assembly, ta.Gene, ta.IsBaseEditor,
		).Scan(&ta.ID)
		if err != nil {
			return fmt.Errorf("creating target accession: %w", err)
		}
	}
	return nil
}

// SetTargetGeneMapping stores the reference metadata a mapping run reported
// for one target gene.
func (r *ScoreSetRepository) SetTargetGeneMapping(ctx context.Context, targetGeneID int64, preMapped, postMapped json.RawMessage, hgncName *string) error {
	result, err := r.db.Exec(ctx, `
		UPDATE target_genes
		SET pre_mapped_metadata = $2, post_mapped_metadata = $3, mapped_hgnc_name = $4
		WHERE id = $1`,
		targetGeneID, preMapped, postMapped, hgncName)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"target_gene_id": targetGeneID,
			"error":          err,
		}).Error("Failed to set target gene mapping metadata")
		return fmt.Errorf("setting target gene mapping metadata: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("target gene not found: %w", domain.ErrNotFound)
	}
	return nil
}

// UpdateProcessingState records a processing state transition, replacing any
// stored processing errors.
func (r *ScoreSetRepository) UpdateProcessingState(ctx context.Context, id int64, state domain.ProcessingState, errs *domain.ErrorPayload) error {
	result, err := r.db.Exec(ctx, `
		UPDATE score_sets
		SET processing_state = $2, processing_errors = $3, modification_date = NOW()
		WHERE id = $1`,
		id, state, errorPayloadJSON(errs))
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"score_set_id": id,
			"state":        state,
			"error":        err,
		}).Error("Failed to update processing state")
		return fmt.Errorf("updating processing state: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("score set not found: %w", domain.ErrNotFound)
	}
	return nil
}

// UpdateMappingState records a mapping state transition, replacing any stored
// mapping errors.
func (r *ScoreSetRepository) UpdateMappingState(ctx context.Context, id int64, state domain.MappingState, errs *domain.ErrorPayload) error {
	result, err := r.db.Exec(ctx, `
		UPDATE score_sets
		SET mapping_state = $2, mapping_errors = $3, modification_date = NOW()
		WHERE id = $1`,
		id, state, errorPayloadJSON(errs))
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"score_set_id": id,
			"state":        state,
			"error":        err,
		}).Error("Failed to update mapping state")
		return fmt.Errorf("updating mapping state: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("score set not found: %w", domain.ErrNotFound)
	}
	return nil
}

// SetDatasetColumns stores the validated column layout and variant count
// after a successful ingestion.
func (r *ScoreSetRepository) SetDatasetColumns(ctx context.Context, id int64, columns *domain.DatasetColumns, numVariants int) error {
	_, err := r.db.Exec(ctx, `
		UPDATE score_sets
		SET dataset_columns = $2, num_variants = $3, modification_date = NOW()
		WHERE id = $1`,
		id, columns, numVariants)
	if err != nil {
		return fmt.Errorf("setting dataset columns: %w", err)
	}
	return nil
}

// UpdateScoreRanges replaces the stored score calibration payload.
func (r *ScoreSetRepository) UpdateScoreRanges(ctx context.Context, id int64, ranges json.RawMessage) error {
	result, err := r.db.Exec(ctx, `
		UPDATE score_sets
		SET score_ranges = $2, modification_date = NOW()
		WHERE id = $1`,
		id, ranges)
	if err != nil {
		return fmt.Errorf("updating score ranges: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("score set not found: %w", domain.ErrNotFound)
	}
	return nil
}

// Update replaces the mutable metadata fields of a score set.
func (r *ScoreSetRepository) Update(ctx context.Context, scoreSet *domain.ScoreSet) error {
	result, err := r.db.Exec(ctx, `
		UPDATE score_sets
		SET title = $2, short_description = $3, abstract_text = $4,
		    method_text = $5, license_id = $6, modified_by_id = $7,
		    modification_date = NOW()
		WHERE id = $1`,
		scoreSet.ID,
		scoreSet.Title,
		scoreSet.ShortDescription,
		scoreSet.Abstract,
		scoreSet.MethodText,
		scoreSet.LicenseID,
		scoreSet.ModifiedByID,
	)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"score_set_id": scoreSet.ID,
			"error":        err,
		}).Error("Failed to update score set")
		return fmt.Errorf("updating score set: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("score set not found: %w", domain.ErrNotFound)
	}
	return nil
}

// Delete removes a score set and its dependent rows. Variants cascade at the
// schema level.
func (r *ScoreSetRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.Exec(ctx, `DELETE FROM score_sets WHERE id = $1`, id)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"score_set_id": id,
			"error":        err,
		}).Error("Failed to delete score set")
		return fmt.Errorf("deleting score set: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("score set not found: %w", domain.ErrNotFound)
	}

	r.log.WithFields(logrus.Fields{
		"score_set_id": id,
	}).Info("Score set deleted")
	return nil
}

// ListByExperiment returns the score sets under an experiment, ordered by URN.
func (r *ScoreSetRepository) ListByExperiment(ctx context.Context, experimentID int64) ([]*domain.ScoreSet, error) {
	query := `SELECT ` + scoreSetColumns + ` FROM score_sets WHERE experiment_id = $1 ORDER BY urn`
	return r.list(ctx, query, experimentID)
}

// ListMappable returns published score sets whose mapping is queued, for the
// mapper poll loop.
func (r *ScoreSetRepository) ListMappable(ctx context.Context) ([]*domain.ScoreSet, error) {
	query := `SELECT ` + scoreSetColumns + `
		FROM score_sets
		WHERE mapping_state = $1 AND processing_state = $2
		ORDER BY modification_date`
	return r.list(ctx, query, domain.MappingQueued, domain.ProcessingSuccess)
}

func (r *ScoreSetRepository) list(ctx context.Context, query string, args ...any) ([]*domain.ScoreSet, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing score sets: %w", err)
	}
	defer rows.Close()

	var out []*domain.ScoreSet
	for rows.Next() {
		var s domain.ScoreSet
		err := rows.Scan(
			&s.ID, &s.URN, &s.Title, &s.ShortDescription, &s.Abstract,
			&s.MethodText, &s.LicenseID, &s.Private, &s.PublishedDate,
			&s.ProcessingState, &s.MappingState, &s.ProcessingErrors,
			&s.MappingErrors, &s.NumVariants, &s.DatasetColumns,
			&s.ScoreRanges, &s.ExperimentID, &s.SupersededScoreSetID,
			&s.CreatedByID, &s.ModifiedByID, &s.CreationDate, &s.ModificationDate,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning score set row: %w", err)
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}

func errorPayloadJSON(errs *domain.ErrorPayload) any {
	if errs == nil {
		return nil
	}
	return errs
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
