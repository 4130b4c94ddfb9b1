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

// Publisher performs the publish transition: moves a score set and its
// ancestors out of the temporary URN namespace, makes them public and
// renumbers the score set's variants. The whole transition runs in one
// transaction and is idempotent for already-published entities.
type Publisher struct {
	db       *pgxpool.Pool
	variants *VariantRepository
	log      *logrus.Logger
}

// NewPublisher creates a publisher.
func NewPublisher(db *pgxpool.Pool, variants *VariantRepository, logger *logrus.Logger) *Publisher {
	return &Publisher{
		db:       db,
		variants: variants,
		log:      logger,
	}
}

// Publish publishes a score set by id and returns its published URN.
//
// Publishing is rejected for score sets with no variants, with variant
// processing still pending or failed, or with no parent experiment when the
// score set is not a meta-analysis. Re-publishing a published score set is a
// no-op.
func (p *Publisher) Publish(ctx context.Context, scoreSetID int64) (string, error) {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var (
		scoreSetURN     string
		processingState domain.ProcessingState
		numVariants     int
		experimentID    *int64
	)
	err = tx.QueryRow(ctx, `
		SELECT urn, processing_state, num_variants, experiment_id
		FROM score_sets WHERE id = $1 FOR UPDATE`, scoreSetID,
	).Scan(&scoreSetURN, &processingState, &numVariants, &experimentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("score set not found: %w", domain.ErrNotFound)
		}
		return "", fmt.Errorf("locking score set for publish: %w", err)
	}

	if !urn.IsTemporary(scoreSetURN) {
		// Already published.
		return scoreSetURN, nil
	}
	if numVariants == 0 {
		return "", domain.NewValidationError("cannot publish score set without variant scores")
	}
	if processingState != domain.ProcessingSuccess {
		return "", domain.NewValidationError(
			fmt.Sprintf("cannot publish score set while variant processing is %s", processingState))
	}

	isMeta, err := p.isMetaAnalysis(ctx, tx, scoreSetID)
	if err != nil {
		return "", err
	}
	if experimentID == nil {
		return "", domain.NewValidationError("cannot publish score set without a parent experiment")
	}

	experimentURN, err := p.publishExperiment(ctx, tx, *experimentID, isMeta)
	if err != nil {
		return "", err
	}

	suffix, err := nextScoreSetSuffix(ctx, tx, *experimentID)
	if err != nil {
		return "", err
	}
	newURN := urn.ForScoreSet(experimentURN, suffix)

	_, err = tx.Exec(ctx, `
		UPDATE score_sets
		SET urn = $2, private = FALSE, published_date = CURRENT_DATE,
		    mapping_state = $3, modification_date = NOW()
		WHERE id = $1`,
		scoreSetID, newURN, domain.MappingQueued)
	if err != nil {
		return "", fmt.Errorf("publishing score set: %w", err)
	}

	if err := p.variants.RenumberForScoreSet(ctx, tx, scoreSetID, newURN); err != nil {
		return "", err
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("committing publish: %w", err)
	}

	p.log.WithFields(logrus.Fields{
		"score_set_id": scoreSetID,
		"urn":          newURN,
	}).Info("Score set published")
	return newURN, nil
}

func (p *Publisher) isMetaAnalysis(ctx context.Context, tx pgx.Tx, scoreSetID int64) (bool, error) {
	var count int
	err := tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM meta_analyzed_score_sets WHERE meta_analysis_id = $1`,
		scoreSetID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking meta-analysis links: %w", err)
	}
	return count > 0, nil
}

// publishExperiment publishes an experiment and its experiment set if they
// are still temporary, returning the experiment's URN. Meta-analysis
// experiments take the reserved "0" suffix.
func (p *Publisher) publishExperiment(ctx context.Context, tx pgx.Tx, experimentID int64, isMeta bool) (string, error) {
	var experimentURN string
	var experimentSetID *int64
	err := tx.QueryRow(ctx, `
		SELECT urn, experiment_set_id FROM experiments WHERE id = $1 FOR UPDATE`,
		experimentID,
	).Scan(&experimentURN, &experimentSetID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("experiment not found: %w", domain.ErrNotFound)
		}
		return "", fmt.Errorf("locking experiment for publish: %w", err)
	}

	if !urn.IsTemporary(experimentURN) {
		return experimentURN, nil
	}
	if experimentSetID == nil {
		return "", domain.NewValidationError("cannot publish experiment without a parent experiment set")
	}

	setURN, err := publishExperimentSet(ctx, tx, *experimentSetID)
	if err != nil {
		return "", err
	}

	var suffix string
	if isMeta {
		suffix = urn.MetaAnalysisSuffix
	} else {
		suffix, err = nextExperimentSuffix(ctx, tx, *experimentSetID)
		if err != nil {
			return "", err
		}
	}
	newURN := urn.ForExperiment(setURN, suffix)

	_, err = tx.Exec(ctx, `
		UPDATE experiments
		SET urn = $2, private = FALSE, published_date = CURRENT_DATE, modification_date = NOW()
		WHERE id = $1`,
		experimentID, newURN)
	if err != nil {
		return "", fmt.Errorf("publishing experiment: %w", err)
	}
	return newURN, nil
}

func publishExperimentSet(ctx context.Context, tx pgx.Tx, experimentSetID int64) (string, error) {
	var setURN string
	err := tx.QueryRow(ctx, `
		SELECT urn FROM experiment_sets WHERE id = $1 FOR UPDATE`,
		experimentSetID,
	).Scan(&setURN)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("experiment set not found: %w", domain.ErrNotFound)
		}
		return "", fmt.Errorf("locking experiment set for publish: %w", err)
	}

	if !urn.IsTemporary(setURN) {
		return setURN, nil
	}

	var next int64
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(substring(urn from 12)::bigint), 0) + 1
		FROM experiment_sets
		WHERE urn ~ '^urn:mavedb:\d+$'`,
	).Scan(&next)
	if err != nil {
		return "", fmt.Errorf("allocating experiment set number: %w", err)
	}

	newURN := urn.ForExperimentSet(next)
	_, err = tx.Exec(ctx, `
		UPDATE experiment_sets
		SET urn = $2, private = FALSE, published_date = CURRENT_DATE, modification_date = NOW()
		WHERE id = $1`,
		experimentSetID, newURN)
	if err != nil {
		return "", fmt.Errorf("publishing experiment set: %w", err)
	}
	return newURN, nil
}

// nextExperimentSuffix finds the highest published letter suffix under an
// experiment set and returns its successor. The meta-analysis suffix "0" is
// excluded from the progression.
func nextExperimentSuffix(ctx context.Context, tx pgx.Tx, experimentSetID int64) (string, error) {
	rows, err := tx.Query(ctx, `
		SELECT urn FROM experiments
		WHERE experiment_set_id = $1 AND urn NOT LIKE 'tmp:%'`,
		experimentSetID)
	if err != nil {
		return "", fmt.Errorf("listing published experiments: %w", err)
	}
	defer rows.Close()

	var highest string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return "", fmt.Errorf("scanning experiment URN: %w", err)
		}
		suffix := experimentSuffix(u)
		if suffix == urn.MetaAnalysisSuffix {
			continue
		}
		if longerOrLater(suffix, highest) {
			highest = suffix
		}
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("iterating experiment URNs: %w", err)
	}
	return urn.NextExperimentSuffix(highest), nil
}

func nextScoreSetSuffix(ctx context.Context, tx pgx.Tx, experimentID int64) (int, error) {
	var next int
	err := tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(substring(urn from '-(\d+)$')::int), 0) + 1
		FROM score_sets
		WHERE experiment_id = $1 AND urn NOT LIKE 'tmp:%'`,
		experimentID,
	).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("allocating score set number: %w", err)
	}
	return next, nil
}

func experimentSuffix(experimentURN string) string {
	for i := len(experimentURN) - 1; i >= 0; i-- {
		if experimentURN[i] == '-' {
			return experimentURN[i+1:]
		}
	}
	return ""
}

// longerOrLater orders letter suffixes: "z" < "aa", same-length suffixes
// compare lexically.
func longerOrLater(a, b string) bool {
	if len(a) != len(b) {
		return len(a) > len(b)
	}
	return a > b
}
