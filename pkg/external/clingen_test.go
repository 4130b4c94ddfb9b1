package external

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestClinGenResolveAllele(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if got := r.URL.Query().Get("hgvs"); got != "NM_007294.4:c.5074G>A" {
			t.Errorf("hgvs = %q", got)
		}
		w.Write([]byte(`{
			"@id": "https://reg.genome.network/allele/CA026549",
			"externalRecords": {
				"ClinVarVariations": [{"variationId": 55605}],
				"gnomAD": [{"id": "17-43057078-C-T"}]
			}
		}`))
	}))
	defer srv.Close()

	client, err := NewClinGenClient(ClientConfig{BaseURL: srv.URL + "/"}, 16)
	if err != nil {
		t.Fatalf("NewClinGenClient returned error: %v", err)
	}

	allele, err := client.ResolveAllele(context.Background(), "NM_007294.4:c.5074G>A")
	if err != nil {
		t.Fatalf("ResolveAllele returned error: %v", err)
	}
	if allele.CAID != "CA026549" {
		t.Errorf("caid = %q", allele.CAID)
	}
	if allele.ClinVarVariantID != "55605" {
		t.Errorf("clinvar variation id = %q", allele.ClinVarVariantID)
	}
	if len(allele.GnomADIDs) != 1 || allele.GnomADIDs[0] != "17-43057078-C-T" {
		t.Errorf("gnomad ids = %v", allele.GnomADIDs)
	}

	// Second resolution is served from the cache.
	if _, err := client.ResolveAllele(context.Background(), "NM_007294.4:c.5074G>A"); err != nil {
		t.Fatalf("cached ResolveAllele returned error: %v", err)
	}
	if hits.Load() != 1 {
		t.Errorf("registry hit %d times, want 1", hits.Load())
	}
}

func TestClinGenResolveAlleleUnknown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client, err := NewClinGenClient(ClientConfig{BaseURL: srv.URL + "/"}, 16)
	if err != nil {
		t.Fatalf("NewClinGenClient returned error: %v", err)
	}
	if _, err := client.ResolveAllele(context.Background(), "c.1A>G"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCaidFromID(t *testing.T) {
	tests := []struct {
		id   string
		want string
	}{
		{"https://reg.genome.network/allele/CA026549", "CA026549"},
		{"CA026549", "CA026549"},
	}
	for _, tt := range tests {
		if got := caidFromID(tt.id); got != tt.want {
			t.Errorf("caidFromID(%q) = %q, want %q", tt.id, got, tt.want)
		}
	}
}
