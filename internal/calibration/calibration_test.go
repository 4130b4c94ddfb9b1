package calibration

import (
	"errors"
	"strings"
	"testing"

	"github.com/VariantEffect/mavedb-core/internal/domain"
)

func f64(v float64) *float64 { return &v }

func rng(lower, upper *float64) *domain.ScoreRange {
	r := &domain.ScoreRange{Lower: lower, Upper: upper}
	DefaultInclusivity(r)
	return r
}

func TestContains(t *testing.T) {
	tests := []struct {
		name  string
		r     *domain.ScoreRange
		score float64
		want  bool
	}{
		{"inside half-open", rng(f64(0), f64(1)), 0.5, true},
		{"inclusive lower bound", rng(f64(0), f64(1)), 0, true},
		{"exclusive upper bound", rng(f64(0), f64(1)), 1, false},
		{"below", rng(f64(0), f64(1)), -0.1, false},
		{"unbounded lower", rng(nil, f64(0)), -1e9, true},
		{"unbounded upper", rng(f64(0), nil), 1e9, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Contains(tt.r, tt.score); got != tt.want {
				t.Errorf("Contains(%v) = %v, want %v", tt.score, got, tt.want)
			}
		})
	}

	t.Run("inclusive upper override", func(t *testing.T) {
		r := rng(f64(0), f64(1))
		r.InclusiveUpper = true
		if !Contains(r, 1) {
			t.Error("inclusive upper bound should contain its endpoint")
		}
	})
}

func TestDefaultInclusivity(t *testing.T) {
	r := &domain.ScoreRange{Lower: f64(0), Upper: f64(1), InclusiveUpper: true}
	DefaultInclusivity(r)
	if !r.InclusiveLower || r.InclusiveUpper {
		t.Errorf("expected [lower, upper) defaults, got lower=%v upper=%v", r.InclusiveLower, r.InclusiveUpper)
	}

	unbounded := &domain.ScoreRange{Upper: f64(1)}
	DefaultInclusivity(unbounded)
	if unbounded.InclusiveLower {
		t.Error("an unbounded lower end must not become inclusive")
	}
}

func TestRangesConflict(t *testing.T) {
	tests := []struct {
		name string
		a, b *domain.ScoreRange
		want bool
	}{
		{"disjoint", rng(f64(0), f64(1)), rng(f64(2), f64(3)), false},
		{"adjacent half-open", rng(f64(0), f64(1)), rng(f64(1), f64(2)), false},
		{"overlapping", rng(f64(0), f64(2)), rng(f64(1), f64(3)), true},
		{"nested", rng(f64(0), f64(3)), rng(f64(1), f64(2)), true},
		{"identical", rng(f64(0), f64(1)), rng(f64(0), f64(1)), true},
		{"both unbounded above", rng(f64(0), nil), rng(f64(1), nil), true},
		{"order independent", rng(f64(2), f64(3)), rng(f64(0), f64(1)), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := rangesConflict(tt.a, tt.b); got != tt.want {
				t.Errorf("rangesConflict = %v, want %v", got, tt.want)
			}
		})
	}

	t.Run("shared doubly inclusive endpoint conflicts", func(t *testing.T) {
		a := rng(f64(0), f64(1))
		a.InclusiveUpper = true
		b := rng(f64(1), f64(2))
		if !rangesConflict(a, b) {
			t.Error("endpoint shared by an inclusive upper and inclusive lower must conflict")
		}
	})
}

func rangeClassification(label string, class domain.FunctionalClass, lower, upper *float64) domain.FunctionalClassification {
	return domain.FunctionalClassification{
		Label:           label,
		Range:           rng(lower, upper),
		FunctionalClass: class,
	}
}

func TestValidateCalibration(t *testing.T) {
	valid := func() *domain.ScoreCalibration {
		return &domain.ScoreCalibration{
			Title: "pillar project",
			FunctionalClassifications: []domain.FunctionalClassification{
				rangeClassification("abnormal", domain.FunctionalAbnormal, nil, f64(-1)),
				rangeClassification("normal", domain.FunctionalNormal, f64(0), nil),
			},
		}
	}

	t.Run("valid calibration passes", func(t *testing.T) {
		if err := ValidateCalibration(valid()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	tests := []struct {
		name    string
		mutate  func(*domain.ScoreCalibration)
		wantMsg string
	}{
		{
			"no classifications",
			func(c *domain.ScoreCalibration) { c.FunctionalClassifications = nil },
			"at least one functional classification",
		},
		{
			"primary cannot be private",
			func(c *domain.ScoreCalibration) { c.Primary = true; c.Private = true },
			"cannot be private or research-use-only",
		},
		{
			"duplicate labels",
			func(c *domain.ScoreCalibration) { c.FunctionalClassifications[1].Label = "abnormal" },
			"duplicate classification label",
		},
		{
			"range and class together",
			func(c *domain.ScoreCalibration) {
				key := "set1"
				c.FunctionalClassifications[0].Class = &key
			},
			"sets both a range and a class",
		},
		{
			"neither range nor class",
			func(c *domain.ScoreCalibration) { c.FunctionalClassifications[0].Range = nil },
			"sets neither a range nor a class",
		},
		{
			"mixed range and class calibration",
			func(c *domain.ScoreCalibration) {
				key := "set1"
				c.FunctionalClassifications[0].Range = nil
				c.FunctionalClassifications[0].Class = &key
			},
			"entirely range based or entirely class based",
		},
		{
			"inverted range",
			func(c *domain.ScoreCalibration) {
				c.FunctionalClassifications[1].Range = rng(f64(2), f64(1))
			},
			"is not below upper bound",
		},
		{
			"unknown functional class",
			func(c *domain.ScoreCalibration) {
				c.FunctionalClassifications[0].FunctionalClass = "odd"
			},
			"unknown functional classification",
		},
		{
			"overlapping ranges",
			func(c *domain.ScoreCalibration) {
				c.FunctionalClassifications[1].Range = rng(f64(-2), nil)
			},
			"overlapping ranges",
		},
		{
			"baseline outside normal range",
			func(c *domain.ScoreCalibration) { c.BaselineScore = f64(-5) },
			"baseline score -5 falls within",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cal := valid()
			tt.mutate(cal)
			err := ValidateCalibration(cal)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %v does not contain %q", err, tt.wantMsg)
			}
			var verr *domain.ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("expected a ValidationError, got %T", err)
			}
		})
	}

	t.Run("not_specified may overlap", func(t *testing.T) {
		cal := valid()
		cal.FunctionalClassifications = append(cal.FunctionalClassifications,
			rangeClassification("everything", domain.FunctionalNotSpecified, nil, nil))
		if err := ValidateCalibration(cal); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("baseline inside normal range passes", func(t *testing.T) {
		cal := valid()
		cal.BaselineScore = f64(1)
		if err := ValidateCalibration(cal); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestInferACMGFromOddsPath(t *testing.T) {
	tests := []struct {
		ratio         float64
		wantCriterion domain.ACMGCriterion
		wantStrength  domain.EvidenceStrength
		wantOK        bool
	}{
		{400, domain.CriterionPS3, domain.StrengthVeryStrong, true},
		{350, domain.CriterionPS3, domain.StrengthVeryStrong, true},
		{20, domain.CriterionPS3, domain.StrengthStrong, true},
		{18.7, domain.CriterionPS3, domain.StrengthStrong, true},
		{4.3, domain.CriterionPS3, domain.StrengthModerate, true},
		{2.1, domain.CriterionPS3, domain.StrengthSupporting, true},
		{1.0, "", "", false},
		{0.5, "", "", false},
		{0.48, domain.CriterionBS3, domain.StrengthSupporting, true},
		{0.23, domain.CriterionBS3, domain.StrengthModerate, true},
		{0.053, domain.CriterionBS3, domain.StrengthStrong, true},
		{0.001, domain.CriterionBS3, domain.StrengthVeryStrong, true},
	}
	for _, tt := range tests {
		got, ok := InferACMGFromOddsPath(tt.ratio)
		if ok != tt.wantOK {
			t.Errorf("InferACMGFromOddsPath(%g) ok = %v, want %v", tt.ratio, ok, tt.wantOK)
			continue
		}
		if !ok {
			continue
		}
		if got.Criterion != tt.wantCriterion || got.EvidenceStrength != tt.wantStrength {
			t.Errorf("InferACMGFromOddsPath(%g) = %s %s, want %s %s",
				tt.ratio, got.Criterion, got.EvidenceStrength, tt.wantCriterion, tt.wantStrength)
		}
	}
}

func TestValidateACMGCoherence(t *testing.T) {
	tests := []struct {
		name    string
		fc      domain.FunctionalClassification
		wantErr bool
	}{
		{
			"no acmg always coherent",
			rangeClassification("a", domain.FunctionalAbnormal, f64(0), f64(1)),
			false,
		},
		{
			"ps3 with abnormal",
			domain.FunctionalClassification{
				Label:           "a",
				FunctionalClass: domain.FunctionalAbnormal,
				ACMG:            &domain.ACMGClassification{Criterion: domain.CriterionPS3, EvidenceStrength: domain.StrengthStrong},
			},
			false,
		},
		{
			"ps3 with normal",
			domain.FunctionalClassification{
				Label:           "a",
				FunctionalClass: domain.FunctionalNormal,
				ACMG:            &domain.ACMGClassification{Criterion: domain.CriterionPS3, EvidenceStrength: domain.StrengthStrong},
			},
			true,
		},
		{
			"bs3 with abnormal",
			domain.FunctionalClassification{
				Label:           "a",
				FunctionalClass: domain.FunctionalAbnormal,
				ACMG:            &domain.ACMGClassification{Criterion: domain.CriterionBS3, EvidenceStrength: domain.StrengthStrong},
			},
			true,
		},
		{
			"acmg with not_specified",
			domain.FunctionalClassification{
				Label:           "a",
				FunctionalClass: domain.FunctionalNotSpecified,
				ACMG:            &domain.ACMGClassification{Criterion: domain.CriterionPS3, EvidenceStrength: domain.StrengthStrong},
			},
			true,
		},
		{
			"ratio agrees with stated evidence",
			domain.FunctionalClassification{
				Label:           "a",
				FunctionalClass: domain.FunctionalAbnormal,
				ACMG:            &domain.ACMGClassification{Criterion: domain.CriterionPS3, EvidenceStrength: domain.StrengthModerate},
				OddsPathRatio:   f64(5),
			},
			false,
		},
		{
			"ratio disagrees with stated evidence",
			domain.FunctionalClassification{
				Label:           "a",
				FunctionalClass: domain.FunctionalAbnormal,
				ACMG:            &domain.ACMGClassification{Criterion: domain.CriterionPS3, EvidenceStrength: domain.StrengthVeryStrong},
				OddsPathRatio:   f64(5),
			},
			true,
		},
		{
			"indeterminate ratio with stated evidence",
			domain.FunctionalClassification{
				Label:           "a",
				FunctionalClass: domain.FunctionalAbnormal,
				ACMG:            &domain.ACMGClassification{Criterion: domain.CriterionPS3, EvidenceStrength: domain.StrengthSupporting},
				OddsPathRatio:   f64(1),
			},
			true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateACMGCoherence(&tt.fc)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateACMGCoherence error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func variantWithScore(urn string, score float64) domain.Variant {
	return domain.Variant{
		URN:  urn,
		Data: domain.VariantData{ScoreData: map[string]any{"score": score}},
	}
}

func TestMatches(t *testing.T) {
	abnormal := rangeClassification("abnormal", domain.FunctionalAbnormal, nil, f64(0))

	v := variantWithScore("urn:mavedb:00000001-a-1#1", -1)
	if !Matches(&abnormal, &v, nil) {
		t.Error("score inside range should match")
	}

	v2 := variantWithScore("urn:mavedb:00000001-a-1#2", 1)
	if Matches(&abnormal, &v2, nil) {
		t.Error("score outside range should not match")
	}

	noScore := domain.Variant{URN: "urn:mavedb:00000001-a-1#3"}
	if Matches(&abnormal, &noScore, nil) {
		t.Error("variant without a score never matches a range")
	}

	key := "set1"
	classBased := domain.FunctionalClassification{Label: "set1", Class: &key}
	classes := VariantClasses{"set1": {"urn:mavedb:00000001-a-1#2"}}
	if !Matches(&classBased, &v2, classes) {
		t.Error("class member should match")
	}
	if Matches(&classBased, &v, classes) {
		t.Error("non-member should not match")
	}
}

func TestClassifyVariants(t *testing.T) {
	cal := &domain.ScoreCalibration{
		FunctionalClassifications: []domain.FunctionalClassification{
			rangeClassification("abnormal", domain.FunctionalAbnormal, nil, f64(0)),
			rangeClassification("normal", domain.FunctionalNormal, f64(0), nil),
		},
	}
	variants := []domain.Variant{
		variantWithScore("urn:mavedb:00000001-a-1#1", -2),
		variantWithScore("urn:mavedb:00000001-a-1#2", 0.5),
		variantWithScore("urn:mavedb:00000001-a-1#3", -0.1),
	}

	out := ClassifyVariants(cal, variants, nil)
	if len(out["abnormal"]) != 2 {
		t.Errorf("abnormal = %v, want 2 members", out["abnormal"])
	}
	if len(out["normal"]) != 1 || out["normal"][0] != "urn:mavedb:00000001-a-1#2" {
		t.Errorf("normal = %v", out["normal"])
	}
}

func TestRangePredicate(t *testing.T) {
	r := rng(f64(-1), f64(2))
	sql, args := RangePredicate(r, 2)

	want := "data -> 'score_data' ->> 'score' IS NOT NULL" +
		" AND (data -> 'score_data' ->> 'score')::double precision >= $3" +
		" AND (data -> 'score_data' ->> 'score')::double precision < $4"
	if sql != want {
		t.Errorf("predicate = %q, want %q", sql, want)
	}
	if len(args) != 2 || args[0] != -1.0 || args[1] != 2.0 {
		t.Errorf("args = %v", args)
	}

	t.Run("unbounded range", func(t *testing.T) {
		sql, args := RangePredicate(rng(nil, nil), 0)
		if sql != "data -> 'score_data' ->> 'score' IS NOT NULL" {
			t.Errorf("predicate = %q", sql)
		}
		if len(args) != 0 {
			t.Errorf("args = %v", args)
		}
	})
}
