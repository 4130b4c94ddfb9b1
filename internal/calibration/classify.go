package calibration

import (
	"fmt"
	"math"
	"strings"

	"github.com/VariantEffect/mavedb-core/internal/domain"
)

// VariantClasses maps a symbolic class key to the variant URNs it contains,
// for class-based calibrations.
type VariantClasses map[string][]string

// Matches reports whether a variant belongs to a functional classification.
// Class-based classifications match on URN membership; range-based ones on
// the variant's numeric score. Variants with a missing or non-numeric score
// never match a range.
func Matches(fc *domain.FunctionalClassification, variant *domain.Variant, classes VariantClasses) bool {
	if fc.Class != nil {
		for _, urn := range classes[*fc.Class] {
			if urn == variant.URN {
				return true
			}
		}
		return false
	}

	if fc.Range == nil {
		return false
	}
	score, ok := variant.Data.Score()
	if !ok || math.IsNaN(score) {
		return false
	}
	return Contains(fc.Range, score)
}

// ClassifyVariants places each variant into the classifications it matches,
// keyed by classification label. This is the in-memory fallback path; the
// database pushdown in RangePredicate preserves identical semantics.
func ClassifyVariants(cal *domain.ScoreCalibration, variants []domain.Variant, classes VariantClasses) map[string][]string {
	out := make(map[string][]string, len(cal.FunctionalClassifications))
	for i := range cal.FunctionalClassifications {
		fc := &cal.FunctionalClassifications[i]
		for j := range variants {
			if Matches(fc, &variants[j], classes) {
				out[fc.Label] = append(out[fc.Label], variants[j].URN)
			}
		}
	}
	return out
}

// RangePredicate renders a classification range as a single SQL predicate
// over the variants table's score JSON, for pushdown queries. The argument
// placeholders are numbered from argOffset+1.
func RangePredicate(r *domain.ScoreRange, argOffset int) (string, []any) {
	const scoreExpr = "(data -> 'score_data' ->> 'score')::double precision"

	var clauses []string
	var args []any

	clauses = append(clauses, "data -> 'score_data' ->> 'score' IS NOT NULL")

	if r.Lower != nil {
		op := ">"
		if r.InclusiveLower {
			op = ">="
		}
		args = append(args, *r.Lower)
		clauses = append(clauses, fmt.Sprintf("%s %s $%d", scoreExpr, op, argOffset+len(args)))
	}
	if r.Upper != nil {
		op := "<"
		if r.InclusiveUpper {
			op = "<="
		}
		args = append(args, *r.Upper)
		clauses = append(clauses, fmt.Sprintf("%s %s $%d", scoreExpr, op, argOffset+len(args)))
	}

	return strings.Join(clauses, " AND "), args
}
