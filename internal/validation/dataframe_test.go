package validation

import (
	"errors"
	"strings"
	"testing"

	"github.com/VariantEffect/mavedb-core/internal/domain"
)

func strp(s string) *string { return &s }

func makeFrame(columns []string, rows ...[]*string) *Dataframe {
	return &Dataframe{Columns: columns, Rows: rows}
}

func TestStandardizeDataframe(t *testing.T) {
	df := makeFrame(
		[]string{"Score", " extra_B ", "HGVS_PRO", "hgvs_nt", "extra_a"},
		[]*string{strp("1.0"), strp("b"), strp("p.Met1Leu"), strp("c.1A>G"), strp("a")},
	)

	out := StandardizeDataframe(df)

	wantColumns := []string{"hgvs_nt", "hgvs_pro", "score", "extra_B", "extra_a"}
	if len(out.Columns) != len(wantColumns) {
		t.Fatalf("unexpected columns %v", out.Columns)
	}
	for i, c := range wantColumns {
		if out.Columns[i] != c {
			t.Fatalf("columns = %v, want %v", out.Columns, wantColumns)
		}
	}

	// Cells follow their columns.
	if v := out.Rows[0][0]; v == nil || *v != "c.1A>G" {
		t.Errorf("hgvs_nt cell did not move with its column: %v", v)
	}
	if v := out.Rows[0][3]; v == nil || *v != "b" {
		t.Errorf("extra_B cell did not move with its column: %v", v)
	}

	again := StandardizeDataframe(out)
	for i := range wantColumns {
		if again.Columns[i] != out.Columns[i] {
			t.Errorf("standardization is not idempotent: %v vs %v", again.Columns, out.Columns)
			break
		}
	}
}

func TestValidateColumnNames(t *testing.T) {
	tests := []struct {
		name    string
		columns []string
		kind    string
		wantErr string
	}{
		{"valid scores", []string{"hgvs_nt", "score"}, "scores", ""},
		{"valid counts", []string{"hgvs_nt", "count_rep1"}, "counts", ""},
		{"valid splice triple", []string{"hgvs_nt", "hgvs_splice", "hgvs_pro", "score"}, "scores", ""},
		{"empty name", []string{"hgvs_nt", "  ", "score"}, "scores", "must not be empty"},
		{"case-insensitive duplicate", []string{"hgvs_nt", "score", "SCORE"}, "scores", "duplicate column name"},
		{"no hgvs column", []string{"score"}, "scores", "at least one HGVS column"},
		{"no data column", []string{"hgvs_nt"}, "scores", "at least one data column"},
		{"splice without nt", []string{"hgvs_splice", "hgvs_pro", "score"}, "scores", "must also define hgvs_nt and hgvs_pro"},
		{"splice without pro", []string{"hgvs_nt", "hgvs_splice", "score"}, "scores", "must also define hgvs_nt and hgvs_pro"},
		{"scores without score column", []string{"hgvs_nt", "extra"}, "scores", "must define a score column"},
		{"counts with score column", []string{"hgvs_nt", "score"}, "counts", "must not define a score column"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateColumnNames(makeFrame(tt.columns), tt.kind)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestChooseIndexColumn(t *testing.T) {
	t.Run("prefers hgvs_nt", func(t *testing.T) {
		df := makeFrame([]string{"hgvs_nt", "hgvs_pro", "score"},
			[]*string{strp("c.1A>G"), strp("p.Met1Leu"), strp("1")})
		index, err := ChooseIndexColumn(df)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if index != ColumnHgvsNt {
			t.Errorf("index = %q, want %q", index, ColumnHgvsNt)
		}
	})

	t.Run("skips all-null columns", func(t *testing.T) {
		df := makeFrame([]string{"hgvs_nt", "hgvs_pro", "score"},
			[]*string{nil, strp("p.Met1Leu"), strp("1")})
		index, err := ChooseIndexColumn(df)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if index != ColumnHgvsPro {
			t.Errorf("index = %q, want %q", index, ColumnHgvsPro)
		}
	})

	t.Run("errors when every column is null", func(t *testing.T) {
		df := makeFrame([]string{"hgvs_nt", "score"}, []*string{nil, strp("1")})
		if _, err := ChooseIndexColumn(df); err == nil {
			t.Error("expected error")
		}
	})
}

func TestValidateDataframes(t *testing.T) {
	targets := []domain.TargetGene{{
		Name: "TP53",
		TargetSequence: &domain.TargetSequence{
			Sequence:     "ATGAAA",
			SequenceType: domain.SequenceTypeDNA,
		},
	}}

	t.Run("happy path with counts", func(t *testing.T) {
		scores := makeFrame([]string{"hgvs_nt", "score"},
			[]*string{strp("c.1A>G"), strp("1.5")},
			[]*string{strp("c.4A>T"), strp("-0.25")},
		)
		counts := makeFrame([]string{"hgvs_nt", "count_rep1"},
			[]*string{strp("c.4A>T"), strp("10")},
			[]*string{strp("c.1A>G"), strp("20")},
		)

		ds, err := ValidateDataframes(scores, counts, targets)
		if err != nil {
			t.Fatalf("ValidateDataframes returned error: %v", err)
		}
		if ds.IndexColumn != ColumnHgvsNt {
			t.Errorf("index column = %q, want hgvs_nt", ds.IndexColumn)
		}
		if len(ds.Columns.ScoreColumns) != 1 || ds.Columns.ScoreColumns[0] != "score" {
			t.Errorf("score columns = %v", ds.Columns.ScoreColumns)
		}
		if len(ds.Columns.CountColumns) != 1 || ds.Columns.CountColumns[0] != "count_rep1" {
			t.Errorf("count columns = %v", ds.Columns.CountColumns)
		}
	})

	t.Run("no target genes rejected", func(t *testing.T) {
		scores := makeFrame([]string{"hgvs_nt", "score"},
			[]*string{strp("n.1A>G"), strp("1.0")},
		)
		_, err := ValidateDataframes(scores, nil, []domain.TargetGene{})
		if err == nil {
			t.Fatal("expected error for a score set without target genes")
		}
		var verr *domain.ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("expected a ValidationError, got %T", err)
		}
		if !strings.Contains(err.Error(), "target genes") {
			t.Errorf("error %v does not mention target genes", err)
		}
	})

	t.Run("empty scores rejected", func(t *testing.T) {
		if _, err := ValidateDataframes(makeFrame([]string{"hgvs_nt", "score"}), nil, targets); err == nil {
			t.Error("expected error for empty scores")
		}
	})

	t.Run("failures aggregated into one error", func(t *testing.T) {
		scores := makeFrame([]string{"hgvs_nt", "score"},
			[]*string{strp("c.1A>G"), strp("ok?")},  // bad score
			[]*string{strp("c.1A>G"), strp("1.0")},  // duplicate index
			[]*string{strp("c.99A>G"), strp("2.0")}, // out of target range
		)

		_, err := ValidateDataframes(scores, nil, targets)
		if err == nil {
			t.Fatal("expected error")
		}
		var verr *domain.ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("expected a ValidationError, got %T", err)
		}
		if len(verr.Detail) != 3 {
			t.Errorf("expected 3 aggregated failures, got %d: %v", len(verr.Detail), verr.Detail)
		}
	})

	t.Run("illegal prefix combination reported", func(t *testing.T) {
		scores := makeFrame([]string{"hgvs_nt", "hgvs_pro", "score"},
			[]*string{strp("n.1A>G"), strp("p.Met1Leu"), strp("1.0")},
		)

		_, err := ValidateDataframes(scores, nil, targets)
		if err == nil {
			t.Fatal("expected error")
		}
		if !strings.Contains(err.Error(), "invalid combination of HGVS prefixes") {
			t.Errorf("error %v does not mention the prefix combination", err)
		}
	})

	t.Run("counts variant disagreement reported", func(t *testing.T) {
		scores := makeFrame([]string{"hgvs_nt", "score"},
			[]*string{strp("c.1A>G"), strp("1.0")},
		)
		counts := makeFrame([]string{"hgvs_nt", "count_rep1"},
			[]*string{strp("c.4A>T"), strp("10")},
		)

		_, err := ValidateDataframes(scores, counts, targets)
		if err == nil {
			t.Fatal("expected error")
		}
		if !strings.Contains(err.Error(), "different variants") {
			t.Errorf("error %v does not mention variant disagreement", err)
		}
	})

	t.Run("multiple targets disable positional checks", func(t *testing.T) {
		two := []domain.TargetGene{
			{Name: "a", TargetSequence: &domain.TargetSequence{Sequence: "ATGAAA", SequenceType: domain.SequenceTypeDNA}},
			{Name: "b", TargetSequence: &domain.TargetSequence{Sequence: "ATGCCC", SequenceType: domain.SequenceTypeDNA}},
		}
		scores := makeFrame([]string{"hgvs_nt", "score"},
			[]*string{strp("c.99A>G"), strp("1.0")},
		)
		if _, err := ValidateDataframes(scores, nil, two); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}
