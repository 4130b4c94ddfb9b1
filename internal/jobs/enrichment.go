package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/VariantEffect/mavedb-core/internal/domain"
	"github.com/VariantEffect/mavedb-core/internal/repository"
	"github.com/VariantEffect/mavedb-core/pkg/external"
)

// AlleleResolver resolves VRS or HGVS expressions to ClinGen canonical
// alleles.
type AlleleResolver interface {
	ResolveAllele(ctx context.Context, expression string) (*external.ClinGenAllele, error)
}

// ControlStreamer streams one month of the ClinVar variant summary archive.
type ControlStreamer interface {
	StreamMonth(ctx context.Context, year, month int, fn func(row *external.ClinVarSummaryRow) error) error
}

// FrequencyFetcher reads joint allele frequencies from the gnomAD data lake.
type FrequencyFetcher interface {
	Version() string
	FetchByCAIDs(ctx context.Context, caids []string) ([]external.GnomADRecord, error)
}

// EnrichmentJobs holds the post-mapping enrichment handlers: canonical
// allele resolution, clinical control refresh and linking, and gnomAD
// frequency linking.
type EnrichmentJobs struct {
	scoreSets *repository.ScoreSetRepository
	variants  *repository.VariantRepository
	mapped    *repository.MappedVariantRepository
	statuses  *repository.AnnotationStatusRepository
	controls  *repository.ClinicalControlRepository
	gnomad    *repository.GnomADVariantRepository

	resolver AlleleResolver
	archive  ControlStreamer
	lake     FrequencyFetcher
	log      *logrus.Logger
}

// NewEnrichmentJobs wires the enrichment handlers.
func NewEnrichmentJobs(
	scoreSets *repository.ScoreSetRepository,
	variants *repository.VariantRepository,
	mapped *repository.MappedVariantRepository,
	statuses *repository.AnnotationStatusRepository,
	controls *repository.ClinicalControlRepository,
	gnomad *repository.GnomADVariantRepository,
	resolver AlleleResolver,
	archive ControlStreamer,
	lake FrequencyFetcher,
	logger *logrus.Logger,
) *EnrichmentJobs {
	return &EnrichmentJobs{
		scoreSets: scoreSets,
		variants:  variants,
		mapped:    mapped,
		statuses:  statuses,
		controls:  controls,
		gnomad:    gnomad,
		resolver:  resolver,
		archive:   archive,
		lake:      lake,
		log:       logger,
	}
}

// ScoreSetParams identifies a score set for the per-score-set enrichment
// jobs.
type ScoreSetParams struct {
	ScoreSetURN string `json:"score_set_urn"`
}

// LinkClinGenAlleleIDs resolves the canonical allele id of every currently
// mapped variant in a score set. Per-variant resolution misses are recorded
// as skipped annotations; transient registry failures abort the job for
// retry.
func (j *EnrichmentJobs) LinkClinGenAlleleIDs(ctx context.Context, job *JobContext) (json.RawMessage, error) {
	var params ScoreSetParams
	if err := job.Params(&params); err != nil {
		return nil, err
	}

	scoreSet, err := j.scoreSets.GetByURN(ctx, params.ScoreSetURN)
	if err != nil {
		return nil, err
	}
	mapped, err := j.mapped.ListCurrentByScoreSet(ctx, scoreSet.ID)
	if err != nil {
		return nil, err
	}
	if len(mapped) == 0 {
		return nil, &domain.NoMappedVariantsError{ScoreSetURN: scoreSet.URN}
	}

	var linked, skipped int
	for i := range mapped {
		mv := &mapped[i]
		expression := postMappedExpression(mv)

		var outcome domain.AnnotationOutcome
		var errMsg *string
		var data json.RawMessage

		switch {
		case expression == "":
			outcome = domain.AnnotationSkipped
			msg := "no post-mapped allele to resolve"
			errMsg = &msg
			skipped++
		default:
			allele, err := j.resolver.ResolveAllele(ctx, expression)
			if errors.Is(err, external.ErrNotFound) {
				outcome = domain.AnnotationSkipped
				msg := "allele not registered with ClinGen"
				errMsg = &msg
				skipped++
			} else if err != nil {
				return nil, err
			} else {
				if err := j.mapped.SetClinGenAlleleID(ctx, mv.ID, allele.CAID, allele.ClinVarVariantID); err != nil {
					return nil, err
				}
				outcome = domain.AnnotationSuccess
				data, _ = json.Marshal(allele)
				linked++
			}
		}

		status := &domain.VariantAnnotationStatus{
			VariantID:      mv.VariantID,
			AnnotationType: domain.AnnotationClinGenAlleleID,
			Status:         outcome,
			AnnotationData: data,
			ErrorMessage:   errMsg,
			JobRunID:       &job.Run.ID,
		}
		if err := j.statuses.Append(ctx, status); err != nil {
			return nil, err
		}

		job.Progress(ctx, i+1, len(mapped), "resolving canonical alleles")
	}

	return json.Marshal(map[string]any{
		"score_set_urn": scoreSet.URN,
		"linked":        linked,
		"skipped":       skipped,
	})
}

// RefreshControlsParams selects the archive month to ingest.
type RefreshControlsParams struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

// RefreshClinicalControls ingests one month of the ClinVar archive into the
// clinical_controls table. Months before the first published archive are
// rejected up front.
func (j *EnrichmentJobs) RefreshClinicalControls(ctx context.Context, job *JobContext) (json.RawMessage, error) {
	var params RefreshControlsParams
	if err := job.Params(&params); err != nil {
		return nil, err
	}
	if err := external.ValidateArchiveMonth(params.Year, params.Month); err != nil {
		return nil, err
	}

	version := fmt.Sprintf("%02d_%04d", params.Month, params.Year)
	var ingested int
	err := j.archive.StreamMonth(ctx, params.Year, params.Month, func(row *external.ClinVarSummaryRow) error {
		// The archive repeats variants per assembly; keep one row each.
		if row.Assembly != "" && row.Assembly != "GRCh38" {
			return nil
		}
		control := &domain.ClinicalControl{
			DBName:               "ClinVar",
			DBIdentifier:         row.VariationID,
			DBVersion:            version,
			GeneSymbol:           row.GeneSymbol,
			ClinicalSignificance: row.ClinicalSignificance,
			ReviewStatus:         row.ReviewStatus,
		}
		if err := j.controls.Upsert(ctx, control); err != nil {
			return err
		}
		ingested++
		if ingested%10000 == 0 {
			job.Progress(ctx, ingested, 0, "ingesting clinical controls")
		}
		return nil
	})
	if errors.Is(err, external.ErrNotFound) {
		return nil, domain.NewValidationError(
			fmt.Sprintf("no ClinVar archive published for %s", version))
	}
	if err != nil {
		return nil, err
	}

	j.log.WithFields(logrus.Fields{
		"db_version": version,
		"ingested":   ingested,
	}).Info("Clinical controls refreshed")
	return json.Marshal(map[string]any{"db_version": version, "ingested": ingested})
}

// LinkClinicalControlsParams selects the score set and control version to
// link.
type LinkClinicalControlsParams struct {
	ScoreSetURN string `json:"score_set_urn"`
	DBVersion   string `json:"db_version"`
}

// LinkClinicalControls attaches stored clinical controls to a score set's
// mapped variants through their resolved canonical allele ids.
func (j *EnrichmentJobs) LinkClinicalControls(ctx context.Context, job *JobContext) (json.RawMessage, error) {
	var params LinkClinicalControlsParams
	if err := job.Params(&params); err != nil {
		return nil, err
	}

	scoreSet, err := j.scoreSets.GetByURN(ctx, params.ScoreSetURN)
	if err != nil {
		return nil, err
	}
	mapped, err := j.mapped.ListCurrentByScoreSet(ctx, scoreSet.ID)
	if err != nil {
		return nil, err
	}
	if len(mapped) == 0 {
		return nil, &domain.NoMappedVariantsError{ScoreSetURN: scoreSet.URN}
	}

	var linked int
	for i := range mapped {
		mv := &mapped[i]
		outcome := domain.AnnotationSkipped
		var errMsg *string

		if mv.ClinGenAlleleID != nil && strings.Contains(*mv.ClinGenAlleleID, ",") {
			// A comma-separated allele id means the row describes multiple
			// variants; clinical controls are single-variant records.
			msg := "multi-variant"
			errMsg = &msg
		} else if mv.ClinVarVariationID != nil {
			controls, err := j.controls.FindByIdentifier(ctx, "ClinVar", params.DBVersion, *mv.ClinVarVariationID)
			if err != nil {
				return nil, err
			}
			for _, control := range controls {
				if err := j.controls.LinkMappedVariant(ctx, mv.ID, control.ID); err != nil {
					return nil, err
				}
			}
			if len(controls) > 0 {
				outcome = domain.AnnotationSuccess
				linked++
			} else {
				msg := "no clinical control matches the ClinVar variation"
				errMsg = &msg
			}
		} else {
			msg := "variant has no linked ClinVar variation"
			errMsg = &msg
		}

		status := &domain.VariantAnnotationStatus{
			VariantID:      mv.VariantID,
			AnnotationType: domain.AnnotationClinVarControl,
			Version:        &params.DBVersion,
			Status:         outcome,
			ErrorMessage:   errMsg,
			JobRunID:       &job.Run.ID,
		}
		if err := j.statuses.Append(ctx, status); err != nil {
			return nil, err
		}
		job.Progress(ctx, i+1, len(mapped), "linking clinical controls")
	}

	return json.Marshal(map[string]any{"score_set_urn": scoreSet.URN, "linked": linked})
}

// LinkGnomadVariants attaches joint allele frequencies from the gnomAD data
// lake to a score set's mapped variants, batched over their canonical allele
// ids.
func (j *EnrichmentJobs) LinkGnomadVariants(ctx context.Context, job *JobContext) (json.RawMessage, error) {
	var params ScoreSetParams
	if err := job.Params(&params); err != nil {
		return nil, err
	}

	scoreSet, err := j.scoreSets.GetByURN(ctx, params.ScoreSetURN)
	if err != nil {
		return nil, err
	}
	mapped, err := j.mapped.ListCurrentByScoreSet(ctx, scoreSet.ID)
	if err != nil {
		return nil, err
	}
	if len(mapped) == 0 {
		return nil, &domain.NoMappedVariantsError{ScoreSetURN: scoreSet.URN}
	}

	version := j.lake.Version()
	var caids []string
	byCAID := map[string][]*domain.MappedVariant{}
	var linked, skipped int
	for i := range mapped {
		mv := &mapped[i]
		if mv.ClinGenAlleleID == nil {
			continue
		}
		if strings.Contains(*mv.ClinGenAlleleID, ",") {
			// Comma-separated allele ids describe multi-variant rows; the
			// lake keys frequencies by a single canonical allele.
			if err := j.appendGnomadSkip(ctx, job, mv, version, "multi-variant"); err != nil {
				return nil, err
			}
			skipped++
			continue
		}
		if _, seen := byCAID[*mv.ClinGenAlleleID]; !seen {
			caids = append(caids, *mv.ClinGenAlleleID)
		}
		byCAID[*mv.ClinGenAlleleID] = append(byCAID[*mv.ClinGenAlleleID], mv)
	}

	matched := map[string]bool{}
	const batchSize = 500
	for start := 0; start < len(caids); start += batchSize {
		end := start + batchSize
		if end > len(caids) {
			end = len(caids)
		}
		records, err := j.lake.FetchByCAIDs(ctx, caids[start:end])
		if err != nil {
			return nil, err
		}

		for _, rec := range records {
			matched[rec.CAID] = true
			gv := &domain.GnomADVariant{
				DBIdentifier:    rec.VariantID,
				DBVersion:       version,
				AlleleFrequency: rec.AlleleFrequency,
				AlleleCount:     rec.AlleleCount,
				AlleleNumber:    rec.AlleleNumber,
				CAID:            rec.CAID,
			}
			if err := j.gnomad.Upsert(ctx, gv); err != nil {
				return nil, err
			}
			for _, mv := range byCAID[rec.CAID] {
				if err := j.gnomad.LinkMappedVariant(ctx, mv.ID, gv.ID); err != nil {
					return nil, err
				}
				data, _ := json.Marshal(gv)
				status := &domain.VariantAnnotationStatus{
					VariantID:      mv.VariantID,
					AnnotationType: domain.AnnotationGnomADFrequency,
					Version:        &version,
					Status:         domain.AnnotationSuccess,
					AnnotationData: data,
					JobRunID:       &job.Run.ID,
				}
				if err := j.statuses.Append(ctx, status); err != nil {
					return nil, err
				}
				linked++
			}
		}
		job.Progress(ctx, end, len(caids), "linking gnomAD frequencies")
	}

	// Variants whose allele id returned no lake row still get a status so
	// the annotation history records the attempt.
	for _, caid := range caids {
		if matched[caid] {
			continue
		}
		for _, mv := range byCAID[caid] {
			if err := j.appendGnomadSkip(ctx, job, mv, version, "no gnomAD frequency for the canonical allele"); err != nil {
				return nil, err
			}
			skipped++
		}
	}

	return json.Marshal(map[string]any{
		"score_set_urn": scoreSet.URN,
		"db_version":    version,
		"linked":        linked,
		"skipped":       skipped,
	})
}

// appendGnomadSkip records a skipped gnomAD frequency annotation.
func (j *EnrichmentJobs) appendGnomadSkip(ctx context.Context, job *JobContext, mv *domain.MappedVariant, version, reason string) error {
	return j.statuses.Append(ctx, &domain.VariantAnnotationStatus{
		VariantID:      mv.VariantID,
		AnnotationType: domain.AnnotationGnomADFrequency,
		Version:        &version,
		Status:         domain.AnnotationSkipped,
		ErrorMessage:   &reason,
		JobRunID:       &job.Run.ID,
	})
}

// postMappedExpression extracts a resolvable expression from a mapped
// variant's post-mapped VRS payload.
func postMappedExpression(mv *domain.MappedVariant) string {
	if len(mv.PostMapped) == 0 {
		return ""
	}
	var payload struct {
		Expressions []struct {
			Syntax string `json:"syntax"`
			Value  string `json:"value"`
		} `json:"expressions"`
	}
	if err := json.Unmarshal(mv.PostMapped, &payload); err != nil {
		return ""
	}
	for _, expr := range payload.Expressions {
		if expr.Syntax == "hgvs.g" && expr.Value != "" {
			return expr.Value
		}
	}
	for _, expr := range payload.Expressions {
		if expr.Value != "" {
			return expr.Value
		}
	}
	return ""
}
