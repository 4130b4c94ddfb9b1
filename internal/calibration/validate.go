package calibration

import (
	"fmt"
	"math"

	"github.com/VariantEffect/mavedb-core/internal/domain"
)

// ValidateCalibration enforces every structural invariant of a score
// calibration. Failures are aggregated into one ValidationError.
func ValidateCalibration(cal *domain.ScoreCalibration) error {
	var detail []string

	if len(cal.FunctionalClassifications) == 0 {
		detail = append(detail, "calibration must define at least one functional classification")
	}
	if cal.Primary && (cal.Private || cal.ResearchUseOnly) {
		detail = append(detail, "a primary calibration cannot be private or research-use-only")
	}

	labels := map[string]struct{}{}
	classKeys := map[string]struct{}{}
	rangeCount, classCount := 0, 0

	for i := range cal.FunctionalClassifications {
		fc := &cal.FunctionalClassifications[i]

		if _, dup := labels[fc.Label]; dup {
			detail = append(detail, fmt.Sprintf("duplicate classification label %q", fc.Label))
		}
		labels[fc.Label] = struct{}{}

		switch {
		case fc.Range != nil && fc.Class != nil:
			detail = append(detail, fmt.Sprintf("classification %q sets both a range and a class", fc.Label))
		case fc.Range == nil && fc.Class == nil:
			detail = append(detail, fmt.Sprintf("classification %q sets neither a range nor a class", fc.Label))
		case fc.Range != nil:
			rangeCount++
			detail = append(detail, validateRange(fc)...)
		default:
			classCount++
			if _, dup := classKeys[*fc.Class]; dup {
				detail = append(detail, fmt.Sprintf("duplicate class key %q", *fc.Class))
			}
			classKeys[*fc.Class] = struct{}{}
		}

		switch fc.FunctionalClass {
		case domain.FunctionalNormal, domain.FunctionalAbnormal, domain.FunctionalNotSpecified:
		default:
			detail = append(detail, fmt.Sprintf(
				"classification %q has unknown functional classification %q", fc.Label, fc.FunctionalClass))
		}

		if err := validateACMGCoherence(fc); err != nil {
			detail = append(detail, err.Error())
		}
	}

	if rangeCount > 0 && classCount > 0 {
		detail = append(detail, "a calibration must be entirely range based or entirely class based")
	}

	detail = append(detail, validateOverlaps(cal.FunctionalClassifications)...)
	detail = append(detail, validateBaseline(cal)...)

	if len(detail) > 0 {
		return &domain.ValidationError{Message: "invalid score calibration", Detail: detail}
	}
	return nil
}

func validateRange(fc *domain.FunctionalClassification) []string {
	var detail []string
	r := fc.Range

	lower, upper := LowerBound(r), UpperBound(r)
	if lower >= upper {
		detail = append(detail, fmt.Sprintf(
			"classification %q: range lower bound %g is not below upper bound %g", fc.Label, lower, upper))
	}
	if r.Lower == nil && r.InclusiveLower {
		detail = append(detail, fmt.Sprintf(
			"classification %q: an unbounded lower end cannot be inclusive", fc.Label))
	}
	if r.Upper == nil && r.InclusiveUpper {
		detail = append(detail, fmt.Sprintf(
			"classification %q: an unbounded upper end cannot be inclusive", fc.Label))
	}
	return detail
}

// validateOverlaps applies the pairwise overlap rule. Overlap is permitted
// only when at least one side of the pair has functional classification
// not_specified.
func validateOverlaps(fcs []domain.FunctionalClassification) []string {
	var detail []string
	for i := range fcs {
		if fcs[i].Range == nil {
			continue
		}
		for j := i + 1; j < len(fcs); j++ {
			if fcs[j].Range == nil {
				continue
			}
			if fcs[i].FunctionalClass == domain.FunctionalNotSpecified ||
				fcs[j].FunctionalClass == domain.FunctionalNotSpecified {
				continue
			}
			if rangesConflict(fcs[i].Range, fcs[j].Range) {
				detail = append(detail, fmt.Sprintf(
					"classifications %q and %q define overlapping ranges", fcs[i].Label, fcs[j].Label))
			}
		}
	}
	return detail
}

// validateBaseline enforces that the baseline score, when it falls inside a
// range, falls inside a normal one.
func validateBaseline(cal *domain.ScoreCalibration) []string {
	if cal.BaselineScore == nil || math.IsNaN(*cal.BaselineScore) {
		return nil
	}

	var detail []string
	for i := range cal.FunctionalClassifications {
		fc := &cal.FunctionalClassifications[i]
		if fc.Range == nil {
			continue
		}
		if Contains(fc.Range, *cal.BaselineScore) && fc.FunctionalClass != domain.FunctionalNormal {
			detail = append(detail, fmt.Sprintf(
				"baseline score %g falls within classification %q, whose functional classification is %q rather than %q",
				*cal.BaselineScore, fc.Label, fc.FunctionalClass, domain.FunctionalNormal))
		}
	}
	return detail
}
