// Package service implements the business orchestration layer between the
// HTTP API and the repositories: score set lifecycle, dataset ingestion,
// publication and calibration management.
package service

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/VariantEffect/mavedb-core/internal/authz"
	"github.com/VariantEffect/mavedb-core/internal/domain"
	"github.com/VariantEffect/mavedb-core/internal/jobs"
	"github.com/VariantEffect/mavedb-core/internal/repository"
	"github.com/VariantEffect/mavedb-core/internal/validation"
)

// PermissionError carries an authorization denial up to the API layer.
type PermissionError struct {
	// Hidden denials surface as 404 rather than 403.
	Hidden  bool
	Message string
}

func (e *PermissionError) Error() string { return e.Message }

// ScoreSetService orchestrates the score set lifecycle.
type ScoreSetService struct {
	scoreSets   *repository.ScoreSetRepository
	experiments *repository.ExperimentRepository
	variants    *repository.VariantRepository
	publisher   *repository.Publisher
	manager     *jobs.Manager
	log         *logrus.Logger
}

// NewScoreSetService creates a score set service.
func NewScoreSetService(
	scoreSets *repository.ScoreSetRepository,
	experiments *repository.ExperimentRepository,
	variants *repository.VariantRepository,
	publisher *repository.Publisher,
	manager *jobs.Manager,
	logger *logrus.Logger,
) *ScoreSetService {
	return &ScoreSetService{
		scoreSets:   scoreSets,
		experiments: experiments,
		variants:    variants,
		publisher:   publisher,
		manager:     manager,
		log:         logger,
	}
}

// Create validates and persists a new private score set with its targets.
// Missing parents are created write-behind: a score set declared without an
// experiment gets a fresh one, which in turn gets an experiment set.
func (s *ScoreSetService) Create(ctx context.Context, user *domain.User, scoreSet *domain.ScoreSet) (*domain.ScoreSet, error) {
	if err := validateTargets(scoreSet); err != nil {
		return nil, err
	}

	if scoreSet.ExperimentID == nil && !scoreSet.IsMetaAnalysis() {
		return nil, domain.NewValidationError("score set requires a parent experiment or meta-analyzed score sets")
	}
	if scoreSet.ExperimentID != nil {
		if _, err := s.experiments.GetByID(ctx, *scoreSet.ExperimentID); err != nil {
			return nil, err
		}
	}
	if scoreSet.SupersededScoreSetID != nil {
		if err := walkSupersedeChain(ctx, s.scoreSets.GetByID, *scoreSet.SupersededScoreSetID); err != nil {
			return nil, err
		}
	}

	scoreSet.Private = true
	if user != nil {
		scoreSet.CreatedByID = &user.ID
		scoreSet.ModifiedByID = &user.ID
	}
	if err := s.scoreSets.Create(ctx, scoreSet); err != nil {
		return nil, err
	}

	for i := range scoreSet.TargetGenes {
		scoreSet.TargetGenes[i].ScoreSetID = scoreSet.ID
		if err := s.scoreSets.CreateTargetGene(ctx, &scoreSet.TargetGenes[i]); err != nil {
			return nil, err
		}
	}
	return scoreSet, nil
}

// validateTargets enforces the target shape rules: each target declares
// exactly one of a sequence or an accession, the declared sequence must be
// valid for its type, and a score set never mixes the two target kinds.
func validateTargets(scoreSet *domain.ScoreSet) error {
	var hasSequence, hasAccession bool
	for i := range scoreSet.TargetGenes {
		tg := &scoreSet.TargetGenes[i]
		switch {
		case tg.TargetSequence != nil && tg.TargetAccession != nil:
			return domain.NewValidationError(
				fmt.Sprintf("target %q declares both a sequence and an accession", tg.Name))
		case tg.TargetSequence == nil && tg.TargetAccession == nil:
			return domain.NewValidationError(
				fmt.Sprintf("target %q declares neither a sequence nor an accession", tg.Name))
		case tg.TargetSequence != nil:
			hasSequence = true
			seq := tg.TargetSequence
			st := seq.SequenceType
			if st == domain.SequenceTypeInfer || st == "" {
				st = validation.InferSequenceType(seq.Sequence)
				seq.SequenceType = st
			}
			if err := validation.ValidateTargetSequence(seq.Sequence, st); err != nil {
				return err
			}
		default:
			hasAccession = true
		}
	}
	if hasSequence && hasAccession {
		return &domain.MixedTargetError{ScoreSetURN: scoreSet.URN}
	}
	return nil
}

// walkSupersedeChain follows superseded references from startID and rejects
// chains that revisit a score set. The chain must stay acyclic so version
// resolution terminates.
func walkSupersedeChain(ctx context.Context, get func(context.Context, int64) (*domain.ScoreSet, error), startID int64) error {
	visited := map[int64]bool{}
	id := startID
	for {
		if visited[id] {
			return domain.NewValidationError(
				fmt.Sprintf("superseded score set chain revisits score set %d", id))
		}
		visited[id] = true
		scoreSet, err := get(ctx, id)
		if err != nil {
			return err
		}
		if scoreSet.SupersededScoreSetID == nil {
			return nil
		}
		id = *scoreSet.SupersededScoreSetID
	}
}

// Get fetches a score set, applying read visibility.
func (s *ScoreSetService) Get(ctx context.Context, user *domain.User, scoreSetURN string) (*domain.ScoreSet, error) {
	scoreSet, err := s.scoreSets.GetByURN(ctx, scoreSetURN)
	if err != nil {
		return nil, err
	}
	if d := authz.Decide(user, authz.ScoreSetResource(scoreSet), authz.ActionRead); !d.Allowed {
		return nil, &PermissionError{Hidden: d.Hidden, Message: d.Message}
	}
	return scoreSet, nil
}

// UploadDataset accepts raw scores and counts files and submits the
// ingestion job. Validation and insertion happen asynchronously; the
// returned job id can be polled for the outcome.
func (s *ScoreSetService) UploadDataset(ctx context.Context, user *domain.User, scoreSetURN, scoresCSV, countsCSV string) (*domain.JobRun, error) {
	scoreSet, err := s.scoreSets.GetByURN(ctx, scoreSetURN)
	if err != nil {
		return nil, err
	}
	if d := authz.Decide(user, authz.ScoreSetResource(scoreSet), authz.ActionAddScoreData); !d.Allowed {
		return nil, &PermissionError{Hidden: d.Hidden, Message: d.Message}
	}
	if scoresCSV == "" {
		return nil, domain.NewValidationError("uploaded scores file must not be empty")
	}

	job, err := s.manager.Submit(ctx, jobs.Submission{
		JobType:     "ingestion",
		JobFunction: jobs.FnCreateVariants,
		Params: jobs.CreateVariantsParams{
			ScoreSetURN: scoreSet.URN,
			ScoresCSV:   scoresCSV,
			CountsCSV:   countsCSV,
		},
		MaxRetries: 0,
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"score_set_urn": scoreSet.URN,
		"job_id":        job.ID,
	}).Info("Dataset ingestion submitted")
	return job, nil
}

// Publish moves a score set out of the temporary namespace.
func (s *ScoreSetService) Publish(ctx context.Context, user *domain.User, scoreSetURN string) (*domain.ScoreSet, error) {
	scoreSet, err := s.scoreSets.GetByURN(ctx, scoreSetURN)
	if err != nil {
		return nil, err
	}
	if d := authz.Decide(user, authz.ScoreSetResource(scoreSet), authz.ActionPublish); !d.Allowed {
		return nil, &PermissionError{Hidden: d.Hidden, Message: d.Message}
	}

	publishedURN, err := s.publisher.Publish(ctx, scoreSet.ID)
	if err != nil {
		return nil, err
	}
	return s.scoreSets.GetByURN(ctx, publishedURN)
}

// Delete removes a score set and its variants.
func (s *ScoreSetService) Delete(ctx context.Context, user *domain.User, scoreSetURN string) error {
	scoreSet, err := s.scoreSets.GetByURN(ctx, scoreSetURN)
	if err != nil {
		return err
	}
	if d := authz.Decide(user, authz.ScoreSetResource(scoreSet), authz.ActionDelete); !d.Allowed {
		return &PermissionError{Hidden: d.Hidden, Message: d.Message}
	}
	return s.scoreSets.Delete(ctx, scoreSet.ID)
}

// Variants lists a score set's variants, applying read visibility.
func (s *ScoreSetService) Variants(ctx context.Context, user *domain.User, scoreSetURN string) ([]domain.Variant, error) {
	scoreSet, err := s.Get(ctx, user, scoreSetURN)
	if err != nil {
		return nil, err
	}
	return s.variants.ListByScoreSet(ctx, scoreSet.ID)
}
