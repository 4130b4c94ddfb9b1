package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/VariantEffect/mavedb-core/internal/domain"
	"github.com/VariantEffect/mavedb-core/internal/repository"
	"github.com/VariantEffect/mavedb-core/internal/validation"
	"github.com/VariantEffect/mavedb-core/pkg/external"
)

// VRSMapper maps every variant of a score set to VRS alleles.
type VRSMapper interface {
	MapScoreSet(ctx context.Context, scoreSetURN string) (*external.MappingResult, error)
}

// VariantJobs holds the variant ingestion and mapping job handlers.
type VariantJobs struct {
	scoreSets *repository.ScoreSetRepository
	variants  *repository.VariantRepository
	mapped    *repository.MappedVariantRepository
	statuses  *repository.AnnotationStatusRepository
	mapper    VRSMapper
	log       *logrus.Logger
}

// NewVariantJobs wires the variant job handlers.
func NewVariantJobs(
	scoreSets *repository.ScoreSetRepository,
	variants *repository.VariantRepository,
	mapped *repository.MappedVariantRepository,
	statuses *repository.AnnotationStatusRepository,
	mapper VRSMapper,
	logger *logrus.Logger,
) *VariantJobs {
	return &VariantJobs{
		scoreSets: scoreSets,
		variants:  variants,
		mapped:    mapped,
		statuses:  statuses,
		mapper:    mapper,
		log:       logger,
	}
}

// CreateVariantsParams carries one ingestion request: the raw uploaded file
// contents travel with the job so the worker needs no shared filesystem.
type CreateVariantsParams struct {
	ScoreSetURN string `json:"score_set_urn"`
	ScoresCSV   string `json:"scores_csv"`
	CountsCSV   string `json:"counts_csv,omitempty"`
}

// CreateVariants validates an uploaded dataset and replaces the score set's
// variants. Validation failures land on the score set as structured
// processing errors; the job itself records the failure without re-raising.
func (j *VariantJobs) CreateVariants(ctx context.Context, job *JobContext) (json.RawMessage, error) {
	var params CreateVariantsParams
	if err := job.Params(&params); err != nil {
		return nil, err
	}

	scoreSet, err := j.scoreSets.GetByURN(ctx, params.ScoreSetURN)
	if err != nil {
		return nil, err
	}

	if err := j.scoreSets.UpdateProcessingState(ctx, scoreSet.ID, domain.ProcessingRunning, nil); err != nil {
		return nil, err
	}
	// Any previously mapped variants are invalidated by the new upload.
	if err := j.scoreSets.UpdateMappingState(ctx, scoreSet.ID, domain.MappingPendingVariantProcessing, nil); err != nil {
		return nil, err
	}

	dataset, err := j.validateDataset(&params, scoreSet)
	if err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			payload := verr.Payload()
			if scoreSet.NumVariants > 0 {
				payload.Exception = fmt.Sprintf(
					"Update failed. The %d previously uploaded variants are still available. %s",
					scoreSet.NumVariants, payload.Exception)
			}
			if stateErr := j.scoreSets.UpdateProcessingState(ctx, scoreSet.ID, domain.ProcessingFailed, payload); stateErr != nil {
				return nil, stateErr
			}
			if stateErr := j.scoreSets.UpdateMappingState(ctx, scoreSet.ID, domain.MappingNotAttempted, nil); stateErr != nil {
				return nil, stateErr
			}
			return nil, err
		}
		// Not a data problem; leave the score set retriable.
		if stateErr := j.scoreSets.UpdateProcessingState(ctx, scoreSet.ID, domain.ProcessingIncomplete, nil); stateErr != nil {
			return nil, stateErr
		}
		return nil, err
	}

	variants := buildVariants(dataset)
	job.Progress(ctx, 0, len(variants), "inserting variants")

	if err := j.variants.BulkCreate(ctx, scoreSet, variants); err != nil {
		if stateErr := j.scoreSets.UpdateProcessingState(ctx, scoreSet.ID, domain.ProcessingFailed, &domain.ErrorPayload{
			Exception: "variant insertion failed",
		}); stateErr != nil {
			return nil, stateErr
		}
		return nil, err
	}

	if err := j.scoreSets.SetDatasetColumns(ctx, scoreSet.ID, &dataset.Columns, len(variants)); err != nil {
		return nil, err
	}
	if err := j.scoreSets.UpdateProcessingState(ctx, scoreSet.ID, domain.ProcessingSuccess, nil); err != nil {
		return nil, err
	}
	if err := j.scoreSets.UpdateMappingState(ctx, scoreSet.ID, domain.MappingQueued, nil); err != nil {
		return nil, err
	}

	job.Progress(ctx, len(variants), len(variants), "done")
	return json.Marshal(map[string]any{
		"score_set_urn": scoreSet.URN,
		"num_variants":  len(variants),
	})
}

func (j *VariantJobs) validateDataset(params *CreateVariantsParams, scoreSet *domain.ScoreSet) (*validation.ValidatedDataset, error) {
	scores, err := validation.ReadCSV(strings.NewReader(params.ScoresCSV))
	if err != nil {
		return nil, err
	}
	var counts *validation.Dataframe
	if params.CountsCSV != "" {
		counts, err = validation.ReadCSV(strings.NewReader(params.CountsCSV))
		if err != nil {
			return nil, err
		}
	}
	return validation.ValidateDataframes(scores, counts, scoreSet.TargetGenes)
}

// buildVariants converts a validated dataset into variant rows, aligning
// counts rows to scores rows through the index column.
func buildVariants(dataset *validation.ValidatedDataset) []domain.Variant {
	scores := dataset.Scores
	counts := dataset.Counts

	var countsByIndex map[string][]*string
	var countIdx int
	if counts != nil {
		countIdx = counts.ColumnIndex(dataset.IndexColumn)
		countsByIndex = make(map[string][]*string, len(counts.Rows))
		if countIdx >= 0 {
			for _, row := range counts.Rows {
				if row[countIdx] != nil {
					countsByIndex[*row[countIdx]] = row
				}
			}
		}
	}

	ntIdx := scores.ColumnIndex(validation.ColumnHgvsNt)
	spliceIdx := scores.ColumnIndex(validation.ColumnHgvsSplice)
	proIdx := scores.ColumnIndex(validation.ColumnHgvsPro)
	scoreIdxCol := scores.ColumnIndex(dataset.IndexColumn)

	variants := make([]domain.Variant, len(scores.Rows))
	for i, row := range scores.Rows {
		v := &variants[i]
		v.HgvsNt = cell(row, ntIdx)
		v.HgvsSplice = cell(row, spliceIdx)
		v.HgvsPro = cell(row, proIdx)

		v.Data.ScoreData = rowData(scores.Columns, row, dataset.Columns.ScoreColumns)
		if countsByIndex != nil && scoreIdxCol >= 0 && row[scoreIdxCol] != nil {
			if countRow, ok := countsByIndex[*row[scoreIdxCol]]; ok {
				v.Data.CountData = rowData(counts.Columns, countRow, dataset.Columns.CountColumns)
			}
		}
	}
	return variants
}

func cell(row []*string, idx int) *string {
	if idx < 0 || row[idx] == nil {
		return nil
	}
	s := *row[idx]
	return &s
}

// rowData extracts the named data columns of one row, coercing numeric
// strings to numbers. Null cells are preserved as explicit nulls so every
// variant carries the full declared column set.
func rowData(columns []string, row []*string, names []string) map[string]any {
	out := make(map[string]any, len(names))
	for _, name := range names {
		idx := -1
		for i, c := range columns {
			if c == name {
				idx = i
				break
			}
		}
		if idx < 0 || row[idx] == nil {
			out[name] = nil
			continue
		}
		raw := strings.TrimSpace(*row[idx])
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			out[name] = f
		} else {
			out[name] = raw
		}
	}
	return out
}

// MapVariantsParams identifies the score set to map.
type MapVariantsParams struct {
	ScoreSetURN string `json:"score_set_urn"`
}

// MapVariants runs a whole-score-set VRS mapping and stores per-variant
// results. Per-variant mapping failures are recorded in the annotation
// history; the job only fails when the mapping run itself cannot complete.
func (j *VariantJobs) MapVariants(ctx context.Context, job *JobContext) (json.RawMessage, error) {
	var params MapVariantsParams
	if err := job.Params(&params); err != nil {
		return nil, err
	}

	scoreSet, err := j.scoreSets.GetByURN(ctx, params.ScoreSetURN)
	if err != nil {
		return nil, err
	}
	if scoreSet.ProcessingState != domain.ProcessingSuccess {
		return nil, domain.NewValidationError(
			fmt.Sprintf("cannot map score set %s before variant processing succeeds", scoreSet.URN))
	}

	if err := j.scoreSets.UpdateMappingState(ctx, scoreSet.ID, domain.MappingProcessing, nil); err != nil {
		return nil, err
	}

	result, err := j.mapper.MapScoreSet(ctx, scoreSet.URN)
	if err != nil {
		state := domain.MappingFailed
		var transient *domain.TransientExternalError
		if errors.As(err, &transient) {
			// The retried run starts from queued again.
			state = domain.MappingQueued
		}
		payload := &domain.ErrorPayload{Exception: err.Error()}
		if stateErr := j.scoreSets.UpdateMappingState(ctx, scoreSet.ID, state, payload); stateErr != nil {
			return nil, stateErr
		}
		return nil, err
	}

	if err := checkMappingResult(result, scoreSet.URN); err != nil {
		payload := &domain.ErrorPayload{Exception: err.Error()}
		if stateErr := j.scoreSets.UpdateMappingState(ctx, scoreSet.ID, domain.MappingFailed, payload); stateErr != nil {
			return nil, stateErr
		}
		return nil, err
	}
	if err := j.persistReferenceMetadata(ctx, scoreSet, result); err != nil {
		return nil, err
	}

	variants, err := j.variants.ListByScoreSet(ctx, scoreSet.ID)
	if err != nil {
		return nil, err
	}
	byURN := make(map[string]*domain.Variant, len(variants))
	for i := range variants {
		byURN[variants[i].URN] = &variants[i]
	}

	var mappedCount, failedCount int
	for i, score := range result.MappedScores {
		variant, ok := byURN[score.VariantURN]
		if !ok {
			j.log.WithFields(logrus.Fields{
				"score_set_urn": scoreSet.URN,
				"variant_urn":   score.VariantURN,
			}).Warn("Mapping result references unknown variant")
			continue
		}

		mapped := &domain.MappedVariant{
			VariantID:         variant.ID,
			PreMapped:         score.PreMapped,
			PostMapped:        score.PostMapped,
			VRSVersion:        result.VRSVersion,
			MappingAPIVersion: result.APIVersion,
			ErrorMessage:      score.ErrorMessage,
		}
		if err := j.mapped.InsertCurrent(ctx, mapped); err != nil {
			return nil, err
		}

		outcome := domain.AnnotationSuccess
		if len(score.PostMapped) == 0 || score.ErrorMessage != nil {
			outcome = domain.AnnotationFailed
			failedCount++
		} else {
			mappedCount++
		}
		status := &domain.VariantAnnotationStatus{
			VariantID:      variant.ID,
			AnnotationType: domain.AnnotationVRSMapping,
			Version:        &result.APIVersion,
			Status:         outcome,
			ErrorMessage:   score.ErrorMessage,
			JobRunID:       &job.Run.ID,
		}
		if err := j.statuses.Append(ctx, status); err != nil {
			return nil, err
		}

		job.Progress(ctx, i+1, len(result.MappedScores), "storing mapped variants")
	}

	state := domain.MappingComplete
	switch {
	case mappedCount == 0:
		state = domain.MappingFailed
	case failedCount > 0:
		state = domain.MappingIncomplete
	}

	var payload *domain.ErrorPayload
	if failedCount > 0 {
		payload = &domain.ErrorPayload{
			Exception: fmt.Sprintf("%d of %d variants failed to map", failedCount, len(result.MappedScores)),
		}
	}
	if err := j.scoreSets.UpdateMappingState(ctx, scoreSet.ID, state, payload); err != nil {
		return nil, err
	}

	if state == domain.MappingFailed {
		return nil, &domain.NoMappedVariantsError{ScoreSetURN: scoreSet.URN}
	}
	return json.Marshal(map[string]any{
		"score_set_urn": scoreSet.URN,
		"mapped":        mappedCount,
		"failed":        failedCount,
	})
}

// checkMappingResult rejects structurally empty mapping responses with the
// typed errors the mapping state machine records.
func checkMappingResult(result *external.MappingResult, scoreSetURN string) error {
	switch {
	case result == nil:
		return &domain.NonexistentMappingResultsError{ScoreSetURN: scoreSetURN}
	case len(result.ReferenceSequences) == 0:
		return &domain.NonexistentMappingReferenceError{ScoreSetURN: scoreSetURN}
	case len(result.MappedScores) == 0:
		return &domain.NonexistentMappingScoresError{ScoreSetURN: scoreSetURN}
	}
	return nil
}

// persistReferenceMetadata stores the per-target reference sequences and the
// mapped HGNC name a mapping run reported. References are matched to target
// genes by name; a single-target score set accepts any key.
func (j *VariantJobs) persistReferenceMetadata(ctx context.Context, scoreSet *domain.ScoreSet, result *external.MappingResult) error {
	for key, ref := range result.ReferenceSequences {
		target := matchTarget(scoreSet.TargetGenes, key)
		if target == nil {
			j.log.WithFields(logrus.Fields{
				"score_set_urn": scoreSet.URN,
				"target":        key,
			}).Warn("Mapping reference names unknown target gene")
			continue
		}

		pre := make(map[string]json.RawMessage, len(ref.Layers))
		post := make(map[string]json.RawMessage, len(ref.Layers))
		for layer, seqs := range ref.Layers {
			if len(seqs.ComputedReferenceSequence) > 0 {
				pre[layer] = seqs.ComputedReferenceSequence
			}
			if len(seqs.MappedReferenceSequence) > 0 {
				post[layer] = seqs.MappedReferenceSequence
			}
		}
		preJSON, err := json.Marshal(pre)
		if err != nil {
			return fmt.Errorf("marshaling pre-mapped metadata: %w", err)
		}
		postJSON, err := json.Marshal(post)
		if err != nil {
			return fmt.Errorf("marshaling post-mapped metadata: %w", err)
		}

		var hgnc *string
		if ref.GeneInfo.HGNCSymbol != "" {
			name := ref.GeneInfo.HGNCSymbol
			hgnc = &name
		}
		if err := j.scoreSets.SetTargetGeneMapping(ctx, target.ID, preJSON, postJSON, hgnc); err != nil {
			return err
		}
	}
	return nil
}

func matchTarget(targets []domain.TargetGene, key string) *domain.TargetGene {
	for i := range targets {
		if targets[i].Name == key {
			return &targets[i]
		}
	}
	if len(targets) == 1 {
		return &targets[0]
	}
	return nil
}
