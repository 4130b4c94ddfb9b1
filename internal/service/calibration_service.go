package service

import (
	"context"
	"encoding/json"

	"github.com/sirupsen/logrus"

	"github.com/VariantEffect/mavedb-core/internal/authz"
	"github.com/VariantEffect/mavedb-core/internal/calibration"
	"github.com/VariantEffect/mavedb-core/internal/domain"
	"github.com/VariantEffect/mavedb-core/internal/repository"
)

// CalibrationService validates and stores score calibrations and evaluates
// variant classifications against them.
type CalibrationService struct {
	scoreSets *repository.ScoreSetRepository
	variants  *repository.VariantRepository
	log       *logrus.Logger
}

// NewCalibrationService creates a calibration service.
func NewCalibrationService(scoreSets *repository.ScoreSetRepository, variants *repository.VariantRepository, logger *logrus.Logger) *CalibrationService {
	return &CalibrationService{
		scoreSets: scoreSets,
		variants:  variants,
		log:       logger,
	}
}

// Set validates a calibration and stores it on the score set. Class-based
// calibrations additionally verify that every referenced variant URN exists
// in the score set.
func (s *CalibrationService) Set(ctx context.Context, user *domain.User, scoreSetURN string, cal *domain.ScoreCalibration, classes calibration.VariantClasses) (*domain.ScoreSet, error) {
	scoreSet, err := s.scoreSets.GetByURN(ctx, scoreSetURN)
	if err != nil {
		return nil, err
	}
	if d := authz.Decide(user, authz.ScoreSetResource(scoreSet), authz.ActionAddCalibration); !d.Allowed {
		return nil, &PermissionError{Hidden: d.Hidden, Message: d.Message}
	}

	if err := calibration.ValidateCalibration(cal); err != nil {
		return nil, err
	}
	if len(classes) > 0 {
		if err := s.validateClassMembers(ctx, scoreSet.ID, cal, classes); err != nil {
			return nil, err
		}
	}

	cal.ScoreSetID = scoreSet.ID
	payload, err := json.Marshal(cal)
	if err != nil {
		return nil, err
	}
	if err := s.scoreSets.UpdateScoreRanges(ctx, scoreSet.ID, payload); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"score_set_urn":   scoreSet.URN,
		"classifications": len(cal.FunctionalClassifications),
	}).Info("Score calibration stored")
	return s.scoreSets.GetByURN(ctx, scoreSet.URN)
}

// validateClassMembers checks that every variant URN referenced by a class
// belongs to the score set.
func (s *CalibrationService) validateClassMembers(ctx context.Context, scoreSetID int64, cal *domain.ScoreCalibration, classes calibration.VariantClasses) error {
	variants, err := s.variants.ListByScoreSet(ctx, scoreSetID)
	if err != nil {
		return err
	}
	known := make(map[string]struct{}, len(variants))
	for i := range variants {
		known[variants[i].URN] = struct{}{}
	}

	var detail []string
	for i := range cal.FunctionalClassifications {
		fc := &cal.FunctionalClassifications[i]
		if fc.Class == nil {
			continue
		}
		members, ok := classes[*fc.Class]
		if !ok {
			detail = append(detail, "class "+*fc.Class+" has no member variants in the classes file")
			continue
		}
		for _, urn := range members {
			if _, exists := known[urn]; !exists {
				detail = append(detail, "class "+*fc.Class+" references unknown variant "+urn)
			}
		}
	}
	if len(detail) > 0 {
		return &domain.ValidationError{Message: "invalid score calibration", Detail: detail}
	}
	return nil
}

// Classify evaluates a stored calibration over the score set's variants,
// returning variant URNs grouped by classification label. Range-based
// classifications are pushed down to the database; class-based ones are
// answered from the stored class membership.
func (s *CalibrationService) Classify(ctx context.Context, user *domain.User, scoreSetURN string) (map[string][]string, error) {
	scoreSet, err := s.scoreSets.GetByURN(ctx, scoreSetURN)
	if err != nil {
		return nil, err
	}
	if d := authz.Decide(user, authz.ScoreSetResource(scoreSet), authz.ActionRead); !d.Allowed {
		return nil, &PermissionError{Hidden: d.Hidden, Message: d.Message}
	}
	if len(scoreSet.ScoreRanges) == 0 {
		return nil, domain.NewValidationError("score set has no stored calibration")
	}

	var cal domain.ScoreCalibration
	if err := json.Unmarshal(scoreSet.ScoreRanges, &cal); err != nil {
		return nil, err
	}

	out := make(map[string][]string, len(cal.FunctionalClassifications))
	for i := range cal.FunctionalClassifications {
		fc := &cal.FunctionalClassifications[i]
		if fc.Range == nil {
			continue
		}
		urns, err := s.variants.URNsInRange(ctx, scoreSet.ID, fc.Range)
		if err != nil {
			return nil, err
		}
		out[fc.Label] = urns
	}
	return out, nil
}
