package external

import (
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestValidateArchiveMonth(t *testing.T) {
	future := time.Now().UTC().AddDate(1, 0, 0)

	tests := []struct {
		name    string
		year    int
		month   int
		wantErr bool
	}{
		{"first archive", 2015, 2, false},
		{"recent month", 2024, 6, false},
		{"before the floor", 2015, 1, true},
		{"well before the floor", 2012, 7, true},
		{"zero month", 2020, 0, true},
		{"thirteenth month", 2020, 13, true},
		{"future", future.Year(), int(future.Month()), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateArchiveMonth(tt.year, tt.month)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateArchiveMonth(%d, %d) error = %v, wantErr %v", tt.year, tt.month, err, tt.wantErr)
			}
		})
	}
}

const summaryHeader = "#AlleleID\tVariationID\tGeneSymbol\tClinicalSignificance\tReviewStatus\tAssembly"

func TestStreamMonth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/variant_summary_04_2023.txt.gz" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		gz := gzip.NewWriter(w)
		defer gz.Close()
		lines := []string{
			summaryHeader,
			"15041\t55605\tBRCA1\tPathogenic\tcriteria provided, multiple submitters\tGRCh38",
			"15042\t\tBRCA1\tBenign\tno assertion\tGRCh38",
			"15043\t55607\tTP53\tLikely benign\tcriteria provided, single submitter\tGRCh37",
		}
		gz.Write([]byte(strings.Join(lines, "\n") + "\n"))
	}))
	defer srv.Close()

	client := NewClinVarArchiveClient(ClientConfig{BaseURL: srv.URL + "/"})

	var rows []*ClinVarSummaryRow
	err := client.StreamMonth(context.Background(), 2023, 4, func(row *ClinVarSummaryRow) error {
		rows = append(rows, row)
		return nil
	})
	if err != nil {
		t.Fatalf("StreamMonth returned error: %v", err)
	}

	// The row without a variation id is dropped.
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].VariationID != "55605" || rows[0].ClinicalSignificance != "Pathogenic" || rows[0].Assembly != "GRCh38" {
		t.Errorf("unexpected first row %+v", rows[0])
	}
	if rows[1].GeneSymbol != "TP53" || rows[1].ReviewStatus != "criteria provided, single submitter" {
		t.Errorf("unexpected second row %+v", rows[1])
	}
}

func TestStreamMonthCallbackError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gz := gzip.NewWriter(w)
		defer gz.Close()
		gz.Write([]byte(summaryHeader + "\n15041\t55605\tBRCA1\tPathogenic\tsolid\tGRCh38\n"))
	}))
	defer srv.Close()

	client := NewClinVarArchiveClient(ClientConfig{BaseURL: srv.URL + "/"})

	sentinel := errors.New("stop")
	err := client.StreamMonth(context.Background(), 2023, 4, func(row *ClinVarSummaryRow) error {
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Errorf("expected the callback error, got %v", err)
	}
}

func TestStreamMonthMissingArchive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClinVarArchiveClient(ClientConfig{BaseURL: srv.URL + "/"})
	err := client.StreamMonth(context.Background(), 2023, 4, func(row *ClinVarSummaryRow) error { return nil })
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStreamSummaryRowsMissingHeader(t *testing.T) {
	err := streamSummaryRows(strings.NewReader("no header line\n"), func(row *ClinVarSummaryRow) error { return nil })
	if err == nil {
		t.Error("expected error for a stream without a header row")
	}
}
