// Package calibration implements the score calibration engine: functional
// range intervals, ACMG evidence equivalence, odds-path inference, and
// per-variant classification lookup.
package calibration

import (
	"math"

	"github.com/VariantEffect/mavedb-core/internal/domain"
)

// Bound resolves a range end to its numeric value, with nil interpreted as
// the given infinity.
func bound(v *float64, inf float64) float64 {
	if v == nil {
		return inf
	}
	return *v
}

// LowerBound returns the effective lower bound of a range (−∞ if unset).
func LowerBound(r *domain.ScoreRange) float64 { return bound(r.Lower, math.Inf(-1)) }

// UpperBound returns the effective upper bound of a range (+∞ if unset).
func UpperBound(r *domain.ScoreRange) float64 { return bound(r.Upper, math.Inf(1)) }

// Contains reports whether a score falls within the range under its
// inclusivity flags. The default interval shape is half-open [lower, upper).
func Contains(r *domain.ScoreRange, score float64) bool {
	lower, upper := LowerBound(r), UpperBound(r)

	if r.InclusiveLower {
		if score < lower {
			return false
		}
	} else if score <= lower {
		return false
	}

	if r.InclusiveUpper {
		if score > upper {
			return false
		}
	} else if score >= upper {
		return false
	}

	return true
}

// DefaultInclusivity applies the half-open [lower, upper) default to a range
// that carries no explicit overrides: inclusive lower, exclusive upper.
// Unbounded ends are never inclusive.
func DefaultInclusivity(r *domain.ScoreRange) {
	r.InclusiveLower = r.Lower != nil
	r.InclusiveUpper = false
}

// ordered returns the pair (a, b) ordered by lower bound, ties broken by
// upper bound, as required by the overlap rule.
func ordered(a, b *domain.ScoreRange) (*domain.ScoreRange, *domain.ScoreRange) {
	la, lb := LowerBound(a), LowerBound(b)
	if la < lb {
		return a, b
	}
	if la > lb {
		return b, a
	}
	if UpperBound(a) <= UpperBound(b) {
		return a, b
	}
	return b, a
}

// rangesConflict reports whether two ranges overlap under the strict rule:
// with A the range with the smaller lower bound, the pair is legal only when
// A.upper < B.lower, or A.upper == B.lower and the shared endpoint is not
// inclusive on both sides.
func rangesConflict(a, b *domain.ScoreRange) bool {
	first, second := ordered(a, b)
	fu, sl := UpperBound(first), LowerBound(second)

	if fu < sl {
		return false
	}
	if fu == sl && !math.IsInf(fu, 0) {
		return first.InclusiveUpper && second.InclusiveLower
	}
	return true
}
