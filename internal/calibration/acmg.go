package calibration

import (
	"fmt"

	"github.com/VariantEffect/mavedb-core/internal/domain"
)

// Odds-path thresholds mapping a functional-assay likelihood ratio to an
// ACMG (criterion, strength) pair, after Brnich et al. Ratios between the
// benign and pathogenic bands are indeterminate and map to no evidence.
var oddsPathPathogenic = []struct {
	threshold float64
	strength  domain.EvidenceStrength
}{
	{350, domain.StrengthVeryStrong},
	{18.7, domain.StrengthStrong},
	{4.3, domain.StrengthModerate},
	{2.1, domain.StrengthSupporting},
}

var oddsPathBenign = []struct {
	threshold float64
	strength  domain.EvidenceStrength
}{
	{0.00285, domain.StrengthVeryStrong},
	{0.053, domain.StrengthStrong},
	{0.23, domain.StrengthModerate},
	{0.48, domain.StrengthSupporting},
}

// InferACMGFromOddsPath maps an odds-path ratio to its implied ACMG
// classification. The second return is false when the ratio falls in the
// indeterminate band and implies no evidence.
func InferACMGFromOddsPath(ratio float64) (domain.ACMGClassification, bool) {
	for _, band := range oddsPathPathogenic {
		if ratio >= band.threshold {
			return domain.ACMGClassification{
				Criterion:        domain.CriterionPS3,
				EvidenceStrength: band.strength,
			}, true
		}
	}
	for _, band := range oddsPathBenign {
		if ratio <= band.threshold {
			return domain.ACMGClassification{
				Criterion:        domain.CriterionBS3,
				EvidenceStrength: band.strength,
			}, true
		}
	}
	return domain.ACMGClassification{}, false
}

// validateACMGCoherence enforces agreement between a classification's ACMG
// criterion, its functional class, and its odds-path ratio.
func validateACMGCoherence(fc *domain.FunctionalClassification) error {
	if fc.ACMG == nil {
		return nil
	}

	switch {
	case fc.ACMG.Criterion.IsPathogenic() && fc.FunctionalClass != domain.FunctionalAbnormal:
		return fmt.Errorf(
			"classification %q: criterion %s requires functional classification %q, not %q",
			fc.Label, fc.ACMG.Criterion, domain.FunctionalAbnormal, fc.FunctionalClass)
	case fc.ACMG.Criterion.IsBenign() && fc.FunctionalClass != domain.FunctionalNormal:
		return fmt.Errorf(
			"classification %q: criterion %s requires functional classification %q, not %q",
			fc.Label, fc.ACMG.Criterion, domain.FunctionalNormal, fc.FunctionalClass)
	case fc.FunctionalClass == domain.FunctionalNotSpecified:
		return fmt.Errorf(
			"classification %q: an ACMG criterion is incompatible with functional classification %q",
			fc.Label, domain.FunctionalNotSpecified)
	}

	if fc.OddsPathRatio != nil {
		inferred, ok := InferACMGFromOddsPath(*fc.OddsPathRatio)
		if !ok {
			return fmt.Errorf(
				"classification %q: oddspaths ratio %g implies no ACMG evidence but %s %s was provided",
				fc.Label, *fc.OddsPathRatio, fc.ACMG.Criterion, fc.ACMG.EvidenceStrength)
		}
		if inferred != *fc.ACMG {
			return fmt.Errorf(
				"classification %q: oddspaths ratio %g implies %s %s but %s %s was provided",
				fc.Label, *fc.OddsPathRatio,
				inferred.Criterion, inferred.EvidenceStrength,
				fc.ACMG.Criterion, fc.ACMG.EvidenceStrength)
		}
	}
	return nil
}
