package external

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/VariantEffect/mavedb-core/internal/domain"
)

// PublicationRecord is the normalized record every publication client
// returns.
type PublicationRecord struct {
	Title    string
	Abstract string
	DOI      *string
	Authors  []domain.Author
	Year     *int
	Journal  *string
	Volume   string
	Pages    string
	URL      string
}

// PublicationFetcher fetches one publication by its bare identifier.
// Implementations return ErrNotFound when the database has no such record.
type PublicationFetcher interface {
	Fetch(ctx context.Context, identifier string) (*PublicationRecord, error)
}

// Crossref

// CrossrefClient resolves DOIs against the Crossref works API.
type CrossrefClient struct {
	baseURL string
	doer    *httpDoer
}

// NewCrossrefClient creates a Crossref client.
func NewCrossrefClient(cfg ClientConfig) *CrossrefClient {
	base := cfg.BaseURL
	if base == "" {
		base = "https://api.crossref.org/"
	}
	return &CrossrefClient{baseURL: base, doer: newHTTPDoer("Crossref", cfg)}
}

type crossrefResponse struct {
	Message struct {
		DOI      string   `json:"DOI"`
		Title    []string `json:"title"`
		Abstract string   `json:"abstract"`
		Author   []struct {
			Given    string `json:"given"`
			Family   string `json:"family"`
			Sequence string `json:"sequence"`
		} `json:"author"`
		ContainerTitle []string `json:"container-title"`
		Volume         string   `json:"volume"`
		Page           string   `json:"page"`
		URL            string   `json:"URL"`
		Issued         struct {
			DateParts [][]int `json:"date-parts"`
		} `json:"issued"`
	} `json:"message"`
}

// Fetch resolves a DOI.
func (c *CrossrefClient) Fetch(ctx context.Context, identifier string) (*PublicationRecord, error) {
	var resp crossrefResponse
	endpoint := fmt.Sprintf("%sworks/%s", c.baseURL, url.PathEscape(identifier))
	if err := c.doer.getJSON(ctx, endpoint, &resp); err != nil {
		return nil, err
	}

	m := resp.Message
	record := &PublicationRecord{
		Abstract: strings.TrimSpace(m.Abstract),
		Volume:   m.Volume,
		Pages:    m.Page,
		URL:      m.URL,
	}
	if len(m.Title) > 0 {
		record.Title = m.Title[0]
	}
	if m.DOI != "" {
		doi := m.DOI
		record.DOI = &doi
	}
	if len(m.ContainerTitle) > 0 {
		journal := m.ContainerTitle[0]
		record.Journal = &journal
	}
	if len(m.Issued.DateParts) > 0 && len(m.Issued.DateParts[0]) > 0 {
		year := m.Issued.DateParts[0][0]
		record.Year = &year
	}
	for _, a := range m.Author {
		record.Authors = append(record.Authors, domain.Author{
			Name:    strings.TrimSpace(a.Given + " " + a.Family),
			Primary: a.Sequence == "first",
		})
	}
	return record, nil
}

// PubMed

// PubMedClient resolves PMIDs against the NCBI E-utilities summary endpoint.
type PubMedClient struct {
	baseURL string
	apiKey  string
	doer    *httpDoer
}

// NewPubMedClient creates a PubMed client.
func NewPubMedClient(cfg ClientConfig) *PubMedClient {
	base := cfg.BaseURL
	if base == "" {
		base = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/"
	}
	return &PubMedClient{baseURL: base, apiKey: cfg.APIKey, doer: newHTTPDoer("PubMed", cfg)}
}

type pubMedSummaryResponse struct {
	Result map[string]struct {
		UID      string `json:"uid"`
		Title    string `json:"title"`
		FullJrnl string `json:"fulljournalname"`
		Volume   string `json:"volume"`
		Pages    string `json:"pages"`
		PubDate  string `json:"pubdate"`
		Authors  []struct {
			Name string `json:"name"`
		} `json:"authors"`
		ELocationID string `json:"elocationid"`
	} `json:"result"`
}

// Fetch resolves a PMID.
func (c *PubMedClient) Fetch(ctx context.Context, identifier string) (*PublicationRecord, error) {
	params := url.Values{
		"db":      {"pubmed"},
		"id":      {identifier},
		"retmode": {"json"},
	}
	if c.apiKey != "" {
		params.Set("api_key", c.apiKey)
	}

	var resp pubMedSummaryResponse
	endpoint := fmt.Sprintf("%sesummary.fcgi?%s", c.baseURL, params.Encode())
	if err := c.doer.getJSON(ctx, endpoint, &resp); err != nil {
		return nil, err
	}

	doc, ok := resp.Result[identifier]
	if !ok || doc.UID == "" {
		return nil, ErrNotFound
	}

	record := &PublicationRecord{
		Title:  strings.TrimSuffix(doc.Title, "."),
		Volume: doc.Volume,
		Pages:  doc.Pages,
		URL:    fmt.Sprintf("http://www.ncbi.nlm.nih.gov/pubmed/%s", identifier),
	}
	if doc.FullJrnl != "" {
		journal := doc.FullJrnl
		record.Journal = &journal
	}
	if len(doc.PubDate) >= 4 {
		if year, err := strconv.Atoi(doc.PubDate[:4]); err == nil {
			record.Year = &year
		}
	}
	if doi := parseELocationDOI(doc.ELocationID); doi != "" {
		record.DOI = &doi
	}
	for i, a := range doc.Authors {
		record.Authors = append(record.Authors, domain.Author{Name: a.Name, Primary: i == 0})
	}
	return record, nil
}

// parseELocationDOI extracts a DOI from an elocationid like "doi: 10.1/x".
func parseELocationDOI(eloc string) string {
	idx := strings.Index(eloc, "10.")
	if idx < 0 {
		return ""
	}
	return strings.TrimSpace(eloc[idx:])
}

// bioRxiv / medRxiv

// RxivClient resolves preprint identifiers against the bioRxiv/medRxiv
// details API. The server field selects which archive is queried.
type RxivClient struct {
	baseURL string
	server  string // "biorxiv" or "medrxiv"
	doer    *httpDoer
}

// NewRxivClient creates a client for one preprint server.
func NewRxivClient(server string, cfg ClientConfig) *RxivClient {
	base := cfg.BaseURL
	if base == "" {
		base = "https://api.biorxiv.org/"
	}
	return &RxivClient{baseURL: base, server: server, doer: newHTTPDoer(server, cfg)}
}

type rxivResponse struct {
	Collection []struct {
		DOI     string `json:"doi"`
		Title   string `json:"title"`
		Authors string `json:"authors"`
		Date    string `json:"date"`
		Abstr   string `json:"abstract"`
	} `json:"collection"`
}

// Fetch resolves a preprint identifier. The details API is keyed by DOI
// suffix, so bare identifiers are expanded under the 10.1101 prefix.
func (c *RxivClient) Fetch(ctx context.Context, identifier string) (*PublicationRecord, error) {
	doi := identifier
	if !strings.HasPrefix(doi, "10.1101/") {
		doi = "10.1101/" + doi
	}

	var resp rxivResponse
	endpoint := fmt.Sprintf("%sdetails/%s/%s", c.baseURL, c.server, doi)
	if err := c.doer.getJSON(ctx, endpoint, &resp); err != nil {
		return nil, err
	}
	if len(resp.Collection) == 0 {
		return nil, ErrNotFound
	}

	doc := resp.Collection[len(resp.Collection)-1]
	journal := c.server
	record := &PublicationRecord{
		Title:    doc.Title,
		Abstract: doc.Abstr,
		Journal:  &journal,
		URL:      fmt.Sprintf("https://www.%s.org/content/%s", c.server, doc.DOI),
	}
	if doc.DOI != "" {
		d := doc.DOI
		record.DOI = &d
	}
	if len(doc.Date) >= 4 {
		if year, err := strconv.Atoi(doc.Date[:4]); err == nil {
			record.Year = &year
		}
	}
	// The details API renders authors as "Family, G.; Family, G.".
	for i, name := range strings.Split(doc.Authors, ";") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		record.Authors = append(record.Authors, domain.Author{Name: name, Primary: i == 0})
	}
	return record, nil
}
