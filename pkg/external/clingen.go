package external

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ClinGenAllele is the subset of a ClinGen Allele Registry record the core
// consumes.
type ClinGenAllele struct {
	CAID             string   `json:"caid"`
	ClinVarVariantID string   `json:"clinvar_variant_id,omitempty"`
	GnomADIDs        []string `json:"gnomad_ids,omitempty"`
}

// ClinGenClient resolves VRS alleles to canonical allele ids against the
// ClinGen Allele Registry. Resolved alleles are cached in-process; registry
// records are immutable once assigned.
type ClinGenClient struct {
	baseURL string
	doer    *httpDoer
	cache   *lru.Cache[string, *ClinGenAllele]
}

// NewClinGenClient creates an allele registry client holding up to cacheSize
// resolved alleles.
func NewClinGenClient(cfg ClientConfig, cacheSize int) (*ClinGenClient, error) {
	if cacheSize <= 0 {
		cacheSize = 4096
	}
	cache, err := lru.New[string, *ClinGenAllele](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating allele cache: %w", err)
	}

	base := cfg.BaseURL
	if base == "" {
		base = "https://reg.genome.network/"
	}
	return &ClinGenClient{
		baseURL: base,
		doer:    newHTTPDoer("ClinGen", cfg),
		cache:   cache,
	}, nil
}

type clinGenResponse struct {
	ID               string `json:"@id"`
	ExternalRecords  struct {
		ClinVarVariations []struct {
			VariationID json.Number `json:"variationId"`
		} `json:"ClinVarVariations"`
		GnomAD []struct {
			ID string `json:"id"`
		} `json:"gnomAD"`
	} `json:"externalRecords"`
}

// ResolveAllele resolves an HGVS expression or VRS digest to its canonical
// allele. ErrNotFound means the registry has never seen the allele.
func (c *ClinGenClient) ResolveAllele(ctx context.Context, hgvs string) (*ClinGenAllele, error) {
	if allele, ok := c.cache.Get(hgvs); ok {
		return allele, nil
	}

	var resp clinGenResponse
	endpoint := fmt.Sprintf("%sallele?hgvs=%s", c.baseURL, url.QueryEscape(hgvs))
	if err := c.doer.getJSON(ctx, endpoint, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" {
		return nil, ErrNotFound
	}

	allele := &ClinGenAllele{CAID: caidFromID(resp.ID)}
	if len(resp.ExternalRecords.ClinVarVariations) > 0 {
		allele.ClinVarVariantID = resp.ExternalRecords.ClinVarVariations[0].VariationID.String()
	}
	for _, g := range resp.ExternalRecords.GnomAD {
		allele.GnomADIDs = append(allele.GnomADIDs, g.ID)
	}

	c.cache.Add(hgvs, allele)
	return allele, nil
}

// caidFromID extracts the CA identifier from a registry @id URL.
func caidFromID(id string) string {
	if idx := strings.LastIndex(id, "/"); idx >= 0 {
		return id[idx+1:]
	}
	return id
}
