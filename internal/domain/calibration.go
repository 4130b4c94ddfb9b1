package domain

import (
	"time"
)

// FunctionalClass is the functional classification assigned to a score range
// or variant class.
type FunctionalClass string

const (
	FunctionalNormal       FunctionalClass = "normal"
	FunctionalAbnormal     FunctionalClass = "abnormal"
	FunctionalNotSpecified FunctionalClass = "not_specified"
)

// EvidenceStrength is the ACMG evidence strength modifier.
type EvidenceStrength string

const (
	StrengthSupporting EvidenceStrength = "SUPPORTING"
	StrengthModerate   EvidenceStrength = "MODERATE"
	StrengthStrong     EvidenceStrength = "STRONG"
	StrengthVeryStrong EvidenceStrength = "VERY_STRONG"
)

// ACMGCriterion is the functional-evidence criterion code.
type ACMGCriterion string

const (
	CriterionPS3 ACMGCriterion = "PS3"
	CriterionBS3 ACMGCriterion = "BS3"
)

// IsPathogenic reports whether the criterion sits on the pathogenic side.
func (c ACMGCriterion) IsPathogenic() bool {
	return len(c) >= 2 && c[:2] == "PS"
}

// IsBenign reports whether the criterion sits on the benign side.
func (c ACMGCriterion) IsBenign() bool {
	return len(c) >= 2 && c[:2] == "BS"
}

// ACMGClassification pairs a criterion with an evidence strength, yielding a
// signed point weight.
type ACMGClassification struct {
	Criterion        ACMGCriterion    `json:"criterion"`
	EvidenceStrength EvidenceStrength `json:"evidence_strength"`
}

// Points returns the signed ACMG point weight: positive on the pathogenic
// side, negative on the benign side.
func (a ACMGClassification) Points() int {
	var magnitude int
	switch a.EvidenceStrength {
	case StrengthSupporting:
		magnitude = 1
	case StrengthModerate:
		magnitude = 2
	case StrengthStrong:
		magnitude = 4
	case StrengthVeryStrong:
		magnitude = 8
	}
	if a.Criterion.IsBenign() {
		return -magnitude
	}
	return magnitude
}

// ScoreRange is a half-open numeric interval [Lower, Upper) with inclusivity
// overrides. Unbounded ends are represented by nil and interpreted as ±∞.
type ScoreRange struct {
	Lower          *float64 `json:"lower"`
	Upper          *float64 `json:"upper"`
	InclusiveLower bool     `json:"inclusive_lower_bound"`
	InclusiveUpper bool     `json:"inclusive_upper_bound"`
}

// FunctionalClassification is one labeled class within a calibration. Exactly
// one of Range or Class is set.
type FunctionalClassification struct {
	ID                      int64               `json:"id"`
	Label                   string              `json:"label"`
	Description             string              `json:"description,omitempty"`
	Range                   *ScoreRange         `json:"range,omitempty"`
	Class                   *string             `json:"class,omitempty"`
	FunctionalClass         FunctionalClass     `json:"functional_classification"`
	ACMG                    *ACMGClassification `json:"acmg_classification,omitempty"`
	OddsPathRatio           *float64            `json:"oddspaths_ratio,omitempty"`
	PositiveLikelihoodRatio *float64            `json:"positive_likelihood_ratio,omitempty"`
}

// IsRangeBased reports whether this classification is defined by a numeric
// range rather than a symbolic class key.
func (f *FunctionalClassification) IsRangeBased() bool {
	return f.Range != nil
}

// ScoreCalibration groups functional classifications over one score set.
type ScoreCalibration struct {
	ID                        int64                      `json:"id"`
	ScoreSetID                int64                      `json:"score_set_id"`
	Title                     string                     `json:"title"`
	BaselineScore             *float64                   `json:"baseline_score,omitempty"`
	ResearchUseOnly           bool                       `json:"research_use_only"`
	Private                   bool                       `json:"private"`
	Primary                   bool                       `json:"primary"`
	InvestigatorProvided      bool                       `json:"investigator_provided"`
	ThresholdSources          []PublicationIdentifier    `json:"threshold_sources,omitempty"`
	ClassificationSources     []PublicationIdentifier    `json:"classification_sources,omitempty"`
	MethodSources             []PublicationIdentifier    `json:"method_sources,omitempty"`
	FunctionalClassifications []FunctionalClassification `json:"functional_classifications"`
	CreationDate              time.Time                  `json:"creation_date"`
	ModificationDate          time.Time                  `json:"modification_date"`
}
