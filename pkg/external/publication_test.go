package external

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/VariantEffect/mavedb-core/internal/domain"
)

func TestCrossrefFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/works/10.1038%2Fs41586-018-0461-z" && r.URL.Path != "/works/10.1038/s41586-018-0461-z" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Write([]byte(`{"message": {
			"DOI": "10.1038/s41586-018-0461-z",
			"title": ["Accurate classification of BRCA1 variants"],
			"author": [
				{"given": "Gregory M.", "family": "Findlay", "sequence": "first"},
				{"given": "Riza M.", "family": "Daza", "sequence": "additional"}
			],
			"container-title": ["Nature"],
			"volume": "562",
			"page": "217-222",
			"URL": "https://doi.org/10.1038/s41586-018-0461-z",
			"issued": {"date-parts": [[2018, 9]]}
		}}`))
	}))
	defer srv.Close()

	client := NewCrossrefClient(ClientConfig{BaseURL: srv.URL + "/"})
	record, err := client.Fetch(context.Background(), "10.1038/s41586-018-0461-z")
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}

	if record.Title != "Accurate classification of BRCA1 variants" {
		t.Errorf("title = %q", record.Title)
	}
	if record.DOI == nil || *record.DOI != "10.1038/s41586-018-0461-z" {
		t.Errorf("doi = %v", record.DOI)
	}
	if record.Journal == nil || *record.Journal != "Nature" {
		t.Errorf("journal = %v", record.Journal)
	}
	if record.Year == nil || *record.Year != 2018 {
		t.Errorf("year = %v", record.Year)
	}
	if len(record.Authors) != 2 {
		t.Fatalf("authors = %v", record.Authors)
	}
	if record.Authors[0].Name != "Gregory M. Findlay" || !record.Authors[0].Primary {
		t.Errorf("first author = %+v", record.Authors[0])
	}
	if record.Authors[1].Primary {
		t.Error("second author should not be primary")
	}
}

func TestCrossrefFetchNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewCrossrefClient(ClientConfig{BaseURL: srv.URL + "/"})
	if _, err := client.Fetch(context.Background(), "10.1000/missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCrossrefFetchServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewCrossrefClient(ClientConfig{BaseURL: srv.URL + "/"})
	_, err := client.Fetch(context.Background(), "10.1000/broken")
	var terr *domain.TransientExternalError
	if !errors.As(err, &terr) {
		t.Errorf("expected a TransientExternalError, got %v", err)
	}
}

func TestPubMedFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("id"); got != "20711194" {
			t.Errorf("id = %q", got)
		}
		if got := r.URL.Query().Get("api_key"); got != "secret" {
			t.Errorf("api_key = %q", got)
		}
		w.Write([]byte(`{"result": {"20711194": {
			"uid": "20711194",
			"title": "A title.",
			"fulljournalname": "Genome Research",
			"volume": "20",
			"pages": "1133-42",
			"pubdate": "2010 Sep",
			"elocationid": "doi: 10.1101/gr.3577405",
			"authors": [{"name": "Fowler DM"}, {"name": "Fields S"}]
		}}}`))
	}))
	defer srv.Close()

	client := NewPubMedClient(ClientConfig{BaseURL: srv.URL + "/", APIKey: "secret"})
	record, err := client.Fetch(context.Background(), "20711194")
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}

	if record.Title != "A title" {
		t.Errorf("title = %q, trailing period should be stripped", record.Title)
	}
	if record.Year == nil || *record.Year != 2010 {
		t.Errorf("year = %v", record.Year)
	}
	if record.DOI == nil || *record.DOI != "10.1101/gr.3577405" {
		t.Errorf("doi = %v", record.DOI)
	}
	if len(record.Authors) != 2 || !record.Authors[0].Primary || record.Authors[1].Primary {
		t.Errorf("authors = %+v", record.Authors)
	}
}

func TestPubMedFetchUnknownID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result": {}}`))
	}))
	defer srv.Close()

	client := NewPubMedClient(ClientConfig{BaseURL: srv.URL + "/"})
	if _, err := client.Fetch(context.Background(), "99999999"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestParseELocationDOI(t *testing.T) {
	tests := []struct {
		eloc string
		want string
	}{
		{"doi: 10.1101/gr.3577405", "10.1101/gr.3577405"},
		{"10.1038/s41586-018-0461-z", "10.1038/s41586-018-0461-z"},
		{"pii: S0092-8674(18)31234-5", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := parseELocationDOI(tt.eloc); got != tt.want {
			t.Errorf("parseELocationDOI(%q) = %q, want %q", tt.eloc, got, tt.want)
		}
	}
}

func TestRxivFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/details/biorxiv/10.1101/2021.06.21.212332" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		// Two versions; the latest wins.
		w.Write([]byte(`{"collection": [
			{"doi": "10.1101/2021.06.21.212332", "title": "v1 title", "authors": "Rubin, A. F.; Hansen, J.", "date": "2021-06-21"},
			{"doi": "10.1101/2021.06.21.212332", "title": "v2 title", "authors": "Rubin, A. F.; Hansen, J.", "date": "2021-07-02"}
		]}`))
	}))
	defer srv.Close()

	client := NewRxivClient("biorxiv", ClientConfig{BaseURL: srv.URL + "/"})
	record, err := client.Fetch(context.Background(), "2021.06.21.212332")
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}

	if record.Title != "v2 title" {
		t.Errorf("title = %q, want the latest version", record.Title)
	}
	if record.Journal == nil || *record.Journal != "biorxiv" {
		t.Errorf("journal = %v", record.Journal)
	}
	if record.Year == nil || *record.Year != 2021 {
		t.Errorf("year = %v", record.Year)
	}
	if len(record.Authors) != 2 || record.Authors[0].Name != "Rubin, A. F." || !record.Authors[0].Primary {
		t.Errorf("authors = %+v", record.Authors)
	}
}

func TestRxivFetchEmptyCollection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"collection": []}`))
	}))
	defer srv.Close()

	client := NewRxivClient("medrxiv", ClientConfig{BaseURL: srv.URL + "/"})
	if _, err := client.Fetch(context.Background(), "2021.06.21.21233200"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
