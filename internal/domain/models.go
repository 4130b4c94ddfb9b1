package domain

import (
	"encoding/json"
	"time"
)

// Core Enums and Types

// ProcessingState tracks the variant-ingestion lifecycle of a score set.
type ProcessingState string

const (
	ProcessingIncomplete ProcessingState = "incomplete"
	ProcessingRunning    ProcessingState = "processing"
	ProcessingSuccess    ProcessingState = "success"
	ProcessingFailed     ProcessingState = "failed"
)

// MappingState tracks the VRS-mapping lifecycle of a score set.
type MappingState string

const (
	MappingPendingVariantProcessing MappingState = "pending_variant_processing"
	MappingProcessing               MappingState = "processing"
	MappingComplete                 MappingState = "complete"
	MappingIncomplete               MappingState = "incomplete"
	MappingFailed                   MappingState = "failed"
	MappingNotAttempted             MappingState = "not_attempted"
	MappingQueued                   MappingState = "queued"
)

// SequenceType declares how a target sequence should be interpreted.
type SequenceType string

const (
	SequenceTypeDNA     SequenceType = "dna"
	SequenceTypeProtein SequenceType = "protein"
	SequenceTypeInfer   SequenceType = "infer"
)

// Core Data Models

// ScoreSet is the unit of published MAVE data.
type ScoreSet struct {
	ID                   int64            `json:"id"`
	URN                  string           `json:"urn"`
	Title                string           `json:"title"`
	ShortDescription     string           `json:"short_description"`
	Abstract             string           `json:"abstract_text"`
	MethodText           string           `json:"method_text"`
	LicenseID            int64            `json:"license_id"`
	Private              bool             `json:"private"`
	PublishedDate        *time.Time       `json:"published_date,omitempty"`
	ProcessingState      ProcessingState  `json:"processing_state"`
	MappingState         MappingState     `json:"mapping_state"`
	ProcessingErrors     *ErrorPayload    `json:"processing_errors,omitempty"`
	MappingErrors        *ErrorPayload    `json:"mapping_errors,omitempty"`
	NumVariants          int              `json:"num_variants"`
	DatasetColumns       *DatasetColumns  `json:"dataset_columns,omitempty"`
	ScoreRanges          json.RawMessage  `json:"score_ranges,omitempty"`
	ExperimentID         *int64           `json:"experiment_id,omitempty"`
	SupersededScoreSetID *int64           `json:"superseded_score_set_id,omitempty"`
	MetaAnalyzesIDs      []int64          `json:"meta_analyzes_score_set_ids,omitempty"`
	TargetGenes          []TargetGene     `json:"target_genes,omitempty"`
	Contributors         []Contributor    `json:"contributors,omitempty"`
	CreatedByID          *int64           `json:"created_by_id,omitempty"`
	ModifiedByID         *int64           `json:"modified_by_id,omitempty"`
	CreationDate         time.Time        `json:"creation_date"`
	ModificationDate     time.Time        `json:"modification_date"`
}

// IsMetaAnalysis reports whether this score set analyzes at least one source
// score set. Meta-analyses carry no direct experiment target data of their own.
func (s *ScoreSet) IsMetaAnalysis() bool {
	return len(s.MetaAnalyzesIDs) > 0
}

// ErrorPayload is the structured failure record persisted on a score set when
// a bulk job fails. Exception holds the human-readable summary; Detail holds
// per-row messages; TriggeringExceptions holds the underlying error strings.
type ErrorPayload struct {
	Exception             string   `json:"exception"`
	Detail                []string `json:"detail,omitempty"`
	TriggeringExceptions  []string `json:"triggering_exceptions,omitempty"`
}

// DatasetColumns is the per-score-set record of declared data columns,
// emitted by the dataset validator and stored as JSON.
type DatasetColumns struct {
	ScoreColumns   []string                     `json:"score_columns"`
	CountColumns   []string                     `json:"count_columns"`
	ColumnMetadata map[string]map[string]string `json:"column_metadata,omitempty"`
}

// Experiment groups score sets under an experiment set.
type Experiment struct {
	ID               int64      `json:"id"`
	URN              string     `json:"urn"`
	Title            string     `json:"title"`
	ShortDescription string     `json:"short_description"`
	Abstract         string     `json:"abstract_text"`
	MethodText       string     `json:"method_text"`
	ExperimentSetID  *int64     `json:"experiment_set_id,omitempty"`
	Private          bool       `json:"private"`
	PublishedDate    *time.Time `json:"published_date,omitempty"`
	CreatedByID      *int64     `json:"created_by_id,omitempty"`
	CreationDate     time.Time  `json:"creation_date"`
	ModificationDate time.Time  `json:"modification_date"`
}

// ExperimentSet is the top-level grouping node.
type ExperimentSet struct {
	ID               int64      `json:"id"`
	URN              string     `json:"urn"`
	Private          bool       `json:"private"`
	PublishedDate    *time.Time `json:"published_date,omitempty"`
	CreatedByID      *int64     `json:"created_by_id,omitempty"`
	CreationDate     time.Time  `json:"creation_date"`
	ModificationDate time.Time  `json:"modification_date"`
}

// TargetGene identifies what a score set assays: either a raw target sequence
// or a reference accession, never both.
type TargetGene struct {
	ID                 int64            `json:"id"`
	ScoreSetID         int64            `json:"score_set_id"`
	Name               string           `json:"name"`
	Category           string           `json:"category,omitempty"`
	TargetSequence     *TargetSequence  `json:"target_sequence,omitempty"`
	TargetAccession    *TargetAccession `json:"target_accession,omitempty"`
	PreMappedMetadata  json.RawMessage  `json:"pre_mapped_metadata,omitempty"`
	PostMappedMetadata json.RawMessage  `json:"post_mapped_metadata,omitempty"`
	MappedHGNCName     *string          `json:"mapped_hgnc_name,omitempty"`
}

// TargetSequence is a bare character sequence plus its declared type.
type TargetSequence struct {
	ID           int64        `json:"id"`
	Sequence     string       `json:"sequence"`
	SequenceType SequenceType `json:"sequence_type"`
	TaxonomyID   *int64       `json:"taxonomy_id,omitempty"`
	Label        string       `json:"label,omitempty"`
}

// TargetAccession references a transcript or genome accession.
type TargetAccession struct {
	ID           int64  `json:"id"`
	Accession    string `json:"accession"`
	Assembly     string `json:"assembly,omitempty"`
	Gene         string `json:"gene,omitempty"`
	IsBaseEditor bool   `json:"is_base_editor"`
}

// Variant is one row of an ingested tabular dataset bound to a score set.
// At least one of the three HGVS forms is always present.
type Variant struct {
	ID           int64       `json:"id"`
	ScoreSetID   int64       `json:"score_set_id"`
	URN          string      `json:"urn"`
	HgvsNt       *string     `json:"hgvs_nt,omitempty"`
	HgvsSplice   *string     `json:"hgvs_splice,omitempty"`
	HgvsPro      *string     `json:"hgvs_pro,omitempty"`
	Data         VariantData `json:"data"`
	CreationDate time.Time   `json:"creation_date"`
}

// VariantData is the JSON payload stored per variant.
type VariantData struct {
	ScoreData map[string]any `json:"score_data"`
	CountData map[string]any `json:"count_data,omitempty"`
}

// Score extracts the numeric score from the score data, if present.
func (d VariantData) Score() (float64, bool) {
	raw, ok := d.ScoreData["score"]
	if !ok || raw == nil {
		return 0, false
	}
	switch v := raw.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

// MappedVariant is the VRS-mapped view of a variant. Rows are immutable once
// inserted except for the Current flag, which only ever flips to false.
type MappedVariant struct {
	ID                 int64           `json:"id"`
	VariantID          int64           `json:"variant_id"`
	PreMapped          json.RawMessage `json:"pre_mapped,omitempty"`
	PostMapped         json.RawMessage `json:"post_mapped,omitempty"`
	VRSVersion         string          `json:"vrs_version,omitempty"`
	MappingAPIVersion  string          `json:"mapping_api_version,omitempty"`
	MappedDate         time.Time       `json:"mapped_date"`
	Current            bool            `json:"current"`
	ClinGenAlleleID    *string         `json:"clingen_allele_id,omitempty"`
	ClinVarVariationID *string         `json:"clinvar_variation_id,omitempty"`
	ErrorMessage       *string         `json:"error_message,omitempty"`
}

// PublicationIdentifier is a resolved external publication record.
// Uniqueness is over (Identifier, DBName).
type PublicationIdentifier struct {
	ID            int64    `json:"id"`
	Identifier    string   `json:"identifier"`
	DBName        string   `json:"db_name"`
	DOI           *string  `json:"doi,omitempty"`
	Title         string   `json:"title"`
	Abstract      string   `json:"abstract,omitempty"`
	Authors       []Author `json:"authors,omitempty"`
	Year          *int     `json:"publication_year,omitempty"`
	Journal       *string  `json:"publication_journal,omitempty"`
	URL           string   `json:"url,omitempty"`
	ReferenceHTML string   `json:"reference_html,omitempty"`
}

// Author is one publication author with primacy ordering.
type Author struct {
	Name    string `json:"name"`
	Primary bool   `json:"primary_author"`
}

// ClinicalControl is an external clinical-significance row keyed by
// (DBName, DBIdentifier); attached to mapped variants via an association
// table.
type ClinicalControl struct {
	ID                   int64     `json:"id"`
	DBName               string    `json:"db_name"`
	DBIdentifier         string    `json:"db_identifier"`
	DBVersion            string    `json:"db_version"`
	GeneSymbol           string    `json:"gene_symbol,omitempty"`
	ClinicalSignificance string    `json:"clinical_significance,omitempty"`
	ReviewStatus         string    `json:"clinical_review_status,omitempty"`
	ModificationDate     time.Time `json:"modification_date"`
}

// GnomADVariant is a population-frequency row from the gnomAD data lake,
// keyed by its gnomAD variant identifier.
type GnomADVariant struct {
	ID              int64     `json:"id"`
	DBIdentifier    string    `json:"db_identifier"`
	DBVersion       string    `json:"db_version"`
	AlleleFrequency *float64  `json:"allele_frequency,omitempty"`
	AlleleCount     *int64    `json:"allele_count,omitempty"`
	AlleleNumber    *int64    `json:"allele_number,omitempty"`
	CAID            string    `json:"caid,omitempty"`
	CreationDate    time.Time `json:"creation_date"`
}

// Auxiliary lookups

// Contributor is an ORCID-identified person attached to datasets.
type Contributor struct {
	ID         int64  `json:"id"`
	ORCIDID    string `json:"orcid_id"`
	GivenName  string `json:"given_name,omitempty"`
	FamilyName string `json:"family_name,omitempty"`
}

// License is a data license referenced by score sets.
type License struct {
	ID        int64  `json:"id"`
	ShortName string `json:"short_name"`
	LongName  string `json:"long_name"`
	Link      string `json:"link,omitempty"`
	Version   string `json:"version,omitempty"`
	Active    bool   `json:"active"`
}

// DoiIdentifier is a bare DOI attached to datasets.
type DoiIdentifier struct {
	ID         int64  `json:"id"`
	Identifier string `json:"identifier"`
	URL        string `json:"url,omitempty"`
}

// RawReadIdentifier is an SRA-style raw-read accession.
type RawReadIdentifier struct {
	ID         int64  `json:"id"`
	Identifier string `json:"identifier"`
	URL        string `json:"url,omitempty"`
}

// ControlledKeyword is a vocabulary term with uniqueness on (Key, Value).
type ControlledKeyword struct {
	ID          int64  `json:"id"`
	Key         string `json:"key"`
	Value       string `json:"value"`
	VocabularyV string `json:"vocabulary_version,omitempty"`
	Description string `json:"description,omitempty"`
}

// UserRole is a coarse platform role.
type UserRole string

const (
	RoleAdmin  UserRole = "admin"
	RoleMapper UserRole = "mapper"
)

// CollectionRole is a user's membership tier within one collection.
type CollectionRole string

const (
	CollectionAdmin  CollectionRole = "admin"
	CollectionEditor CollectionRole = "editor"
	CollectionViewer CollectionRole = "viewer"
)

// User is the minimal user shape the core consumes for permissions and
// contributor context.
type User struct {
	ID       int64      `json:"id"`
	Username string     `json:"username"`
	Roles    []UserRole `json:"roles,omitempty"`
}

// HasRole reports whether the user carries the given role.
func (u *User) HasRole(role UserRole) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}
