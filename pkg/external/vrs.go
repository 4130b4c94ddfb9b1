package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/VariantEffect/mavedb-core/internal/domain"
)

// MappedScore is one variant's outcome from a mapping run. Exactly one of
// the mapped payloads or the error message is meaningful.
type MappedScore struct {
	VariantURN   string          `json:"mavedb_id"`
	PreMapped    json.RawMessage `json:"pre_mapped,omitempty"`
	PostMapped   json.RawMessage `json:"post_mapped,omitempty"`
	ErrorMessage *string         `json:"error_message,omitempty"`
}

// GeneInfo names the gene the mapper selected for one target and how it was
// chosen.
type GeneInfo struct {
	HGNCSymbol      string `json:"hgnc_symbol"`
	SelectionMethod string `json:"selection_method"`
}

// MappingLayer holds the computed and mapped reference sequences of one
// annotation layer of a target.
type MappingLayer struct {
	ComputedReferenceSequence json.RawMessage `json:"computed_reference_sequence,omitempty"`
	MappedReferenceSequence   json.RawMessage `json:"mapped_reference_sequence,omitempty"`
}

// TargetReference is the per-target reference metadata of a mapping run,
// keyed by annotation layer.
type TargetReference struct {
	GeneInfo GeneInfo                `json:"gene_info"`
	Layers   map[string]MappingLayer `json:"layers"`
}

// MappingResult is the response of a whole-score-set mapping run.
type MappingResult struct {
	DCDMappingStudyResult json.RawMessage            `json:"dcd_mapping_study_result,omitempty"`
	VRSVersion            string                     `json:"vrs_version"`
	APIVersion            string                     `json:"api_version"`
	MappedScores          []MappedScore              `json:"mapped_scores"`
	ReferenceSequences    map[string]TargetReference `json:"reference_sequences,omitempty"`
	MappedDateUTC         string                     `json:"mapped_date_utc,omitempty"`
	DCDMappingVersion     string                     `json:"dcd_mapping_version,omitempty"`
	Error                 *string                    `json:"error_message,omitempty"`
}

// VRSMapClient calls the dcd-mapping service to map a score set's variants
// onto VRS alleles.
type VRSMapClient struct {
	baseURL string
	doer    *httpDoer
}

// NewVRSMapClient creates a mapping service client.
func NewVRSMapClient(cfg ClientConfig) *VRSMapClient {
	base := cfg.BaseURL
	if base == "" {
		base = "http://dcd-mapping:8000/"
	}
	return &VRSMapClient{baseURL: base, doer: newHTTPDoer("dcd-mapping", cfg)}
}

// MapScoreSet maps every variant of a score set in one call. Mapping runs
// are expensive; the service serializes them internally, so timeouts here
// are transient failures worth retrying.
func (c *VRSMapClient) MapScoreSet(ctx context.Context, scoreSetURN string) (*MappingResult, error) {
	payload, err := json.Marshal(map[string]string{"urn": scoreSetURN})
	if err != nil {
		return nil, fmt.Errorf("marshaling mapping request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"api/v1/map", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building mapping request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := c.doer.do(ctx, req)
	if err != nil {
		return nil, err
	}
	if body == nil {
		return nil, ErrNotFound
	}

	var result MappingResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("unmarshaling mapping result: %w", err)
	}
	if result.Error != nil && *result.Error != "" {
		return nil, &domain.TransientExternalError{
			Service: "dcd-mapping",
			Err:     fmt.Errorf("mapping run failed: %s", *result.Error),
		}
	}
	return &result, nil
}
