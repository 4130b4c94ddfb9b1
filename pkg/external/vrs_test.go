package external

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/VariantEffect/mavedb-core/internal/domain"
)

func TestMapScoreSet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/map" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var payload map[string]string
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decoding payload: %v", err)
		}
		if payload["urn"] != "urn:mavedb:00000001-a-1" {
			t.Errorf("urn = %q", payload["urn"])
		}

		w.Write([]byte(`{
			"vrs_version": "2.0",
			"api_version": "1.0",
			"mapped_scores": [
				{"mavedb_id": "urn:mavedb:00000001-a-1#1", "post_mapped": {"type": "Allele"}},
				{"mavedb_id": "urn:mavedb:00000001-a-1#2", "error_message": "unmappable"}
			],
			"reference_sequences": {
				"TP53": {
					"gene_info": {"hgnc_symbol": "TP53", "selection_method": "exact_match"},
					"layers": {
						"g": {
							"computed_reference_sequence": {"sequence_id": "ga4gh:SQ.computed"},
							"mapped_reference_sequence": {"sequence_id": "ga4gh:SQ.mapped"}
						}
					}
				}
			},
			"mapped_date_utc": "2024-06-01T00:00:00Z",
			"dcd_mapping_version": "0.1.4"
		}`))
	}))
	defer srv.Close()

	client := NewVRSMapClient(ClientConfig{BaseURL: srv.URL + "/"})
	result, err := client.MapScoreSet(context.Background(), "urn:mavedb:00000001-a-1")
	if err != nil {
		t.Fatalf("MapScoreSet returned error: %v", err)
	}

	if result.VRSVersion != "2.0" {
		t.Errorf("vrs version = %q", result.VRSVersion)
	}
	if len(result.MappedScores) != 2 {
		t.Fatalf("mapped scores = %v", result.MappedScores)
	}
	if result.MappedScores[0].PostMapped == nil {
		t.Error("first score should carry a post-mapped payload")
	}
	if result.MappedScores[1].ErrorMessage == nil || *result.MappedScores[1].ErrorMessage != "unmappable" {
		t.Errorf("second score error = %v", result.MappedScores[1].ErrorMessage)
	}

	ref, ok := result.ReferenceSequences["TP53"]
	if !ok {
		t.Fatalf("reference sequences = %v, want a TP53 entry", result.ReferenceSequences)
	}
	if ref.GeneInfo.HGNCSymbol != "TP53" || ref.GeneInfo.SelectionMethod != "exact_match" {
		t.Errorf("gene info = %+v", ref.GeneInfo)
	}
	layer, ok := ref.Layers["g"]
	if !ok || len(layer.ComputedReferenceSequence) == 0 || len(layer.MappedReferenceSequence) == 0 {
		t.Errorf("genomic layer = %+v", ref.Layers)
	}
	if result.DCDMappingVersion != "0.1.4" {
		t.Errorf("dcd mapping version = %q", result.DCDMappingVersion)
	}
}

func TestMapScoreSetRunFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"vrs_version": "2.0", "api_version": "1.0", "mapped_scores": [], "error_message": "reference sequence unavailable"}`))
	}))
	defer srv.Close()

	client := NewVRSMapClient(ClientConfig{BaseURL: srv.URL + "/"})
	_, err := client.MapScoreSet(context.Background(), "urn:mavedb:00000001-a-1")
	var terr *domain.TransientExternalError
	if !errors.As(err, &terr) {
		t.Fatalf("expected a TransientExternalError, got %v", err)
	}
	if terr.Service != "dcd-mapping" {
		t.Errorf("service = %q", terr.Service)
	}
}

func TestMapScoreSetUnknownURN(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewVRSMapClient(ClientConfig{BaseURL: srv.URL + "/"})
	if _, err := client.MapScoreSet(context.Background(), "tmp:unknown"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
