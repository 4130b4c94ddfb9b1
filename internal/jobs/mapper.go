package jobs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/VariantEffect/mavedb-core/internal/domain"
	"github.com/VariantEffect/mavedb-core/internal/repository"
)

// MapperManager polls for score sets whose mapping is queued and starts one
// mapping pipeline per score set. The mapping service serializes runs, so
// the manager dispatches at most one score set per poll.
type MapperManager struct {
	scoreSets *repository.ScoreSetRepository
	manager   *Manager
	interval  time.Duration
	// controlsVersion names the clinical control release linked after
	// mapping.
	controlsVersion string
	log             *logrus.Logger
}

// NewMapperManager creates a mapper manager polling at the given interval.
func NewMapperManager(scoreSets *repository.ScoreSetRepository, manager *Manager, interval time.Duration, controlsVersion string, logger *logrus.Logger) *MapperManager {
	if interval <= 0 {
		interval = time.Minute
	}
	return &MapperManager{
		scoreSets:       scoreSets,
		manager:         manager,
		interval:        interval,
		controlsVersion: controlsVersion,
		log:             logger,
	}
}

// Run polls until the context is canceled.
func (m *MapperManager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := m.dispatchNext(ctx); err != nil && ctx.Err() == nil {
				m.log.WithError(err).Error("Mapper dispatch failed")
			}
		}
	}
}

// dispatchNext picks the oldest queued score set and starts its mapping
// pipeline: map, resolve canonical alleles, link clinical controls, link
// gnomAD frequencies.
func (m *MapperManager) dispatchNext(ctx context.Context) error {
	queued, err := m.scoreSets.ListMappable(ctx)
	if err != nil {
		return err
	}
	if len(queued) == 0 {
		return nil
	}

	scoreSet := queued[0]
	steps, err := m.pipelineSteps(scoreSet.URN)
	if err != nil {
		return err
	}

	// Leaving the queued state here keeps later polls from re-dispatching
	// the same score set while its pipeline runs.
	if err := m.scoreSets.UpdateMappingState(ctx, scoreSet.ID, domain.MappingProcessing, nil); err != nil {
		return err
	}

	pipeline, err := m.manager.StartPipeline(ctx, "variant_mapping", steps)
	if err != nil {
		return err
	}

	m.log.WithFields(logrus.Fields{
		"score_set_urn": scoreSet.URN,
		"pipeline_id":   pipeline.ID,
	}).Info("Mapping pipeline started")
	return nil
}

func (m *MapperManager) pipelineSteps(scoreSetURN string) ([]domain.PipelineStep, error) {
	scoreSetParams, err := json.Marshal(ScoreSetParams{ScoreSetURN: scoreSetURN})
	if err != nil {
		return nil, err
	}
	controlParams, err := json.Marshal(LinkClinicalControlsParams{
		ScoreSetURN: scoreSetURN,
		DBVersion:   m.controlsVersion,
	})
	if err != nil {
		return nil, err
	}

	return []domain.PipelineStep{
		{JobFunction: FnMapVariants, JobParams: scoreSetParams},
		{JobFunction: FnLinkClinGenAlleles, JobParams: scoreSetParams},
		{JobFunction: FnLinkClinicalControl, JobParams: controlParams},
		{JobFunction: FnLinkGnomadVariants, JobParams: scoreSetParams},
	}, nil
}
