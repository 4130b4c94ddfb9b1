package publication

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/VariantEffect/mavedb-core/internal/domain"
	"github.com/VariantEffect/mavedb-core/pkg/external"
)

type fakeStore struct {
	rows   map[string]*domain.PublicationIdentifier
	nextID int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: map[string]*domain.PublicationIdentifier{}}
}

func (s *fakeStore) key(identifier, dbName string) string { return dbName + ":" + identifier }

func (s *fakeStore) Find(ctx context.Context, identifier, dbName string) (*domain.PublicationIdentifier, error) {
	if row, ok := s.rows[s.key(identifier, dbName)]; ok {
		return row, nil
	}
	return nil, domain.ErrNotFound
}

func (s *fakeStore) Create(ctx context.Context, record *domain.PublicationIdentifier) (*domain.PublicationIdentifier, error) {
	s.nextID++
	record.ID = s.nextID
	s.rows[s.key(record.Identifier, record.DBName)] = record
	return record, nil
}

type fakeFetcher struct {
	records map[string]*external.PublicationRecord
	err     error
	calls   int
}

func (f *fakeFetcher) Fetch(ctx context.Context, identifier string) (*external.PublicationRecord, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if record, ok := f.records[identifier]; ok {
		return record, nil
	}
	return nil, external.ErrNotFound
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestFindOrCreateWithDBName(t *testing.T) {
	store := newFakeStore()
	pubmed := &fakeFetcher{records: map[string]*external.PublicationRecord{
		"20711194": {Title: "A deep mutational scan"},
	}}
	r := NewResolver(store, map[string]external.PublicationFetcher{DBPubMed: pubmed}, quietLogger())

	pub, err := r.FindOrCreate(context.Background(), "20711194", DBPubMed)
	if err != nil {
		t.Fatalf("FindOrCreate returned error: %v", err)
	}
	if pub.Title != "A deep mutational scan" || pub.DBName != DBPubMed {
		t.Errorf("unexpected record %+v", pub)
	}

	// A second resolution returns the stored row without refetching.
	again, err := r.FindOrCreate(context.Background(), "20711194", DBPubMed)
	if err != nil {
		t.Fatalf("second FindOrCreate returned error: %v", err)
	}
	if again.ID != pub.ID {
		t.Errorf("expected the stored row, got %+v", again)
	}
	if pubmed.calls != 1 {
		t.Errorf("fetcher called %d times, want 1", pubmed.calls)
	}
}

func TestFindOrCreateMalformedForDatabase(t *testing.T) {
	r := NewResolver(newFakeStore(), map[string]external.PublicationFetcher{}, quietLogger())

	_, err := r.FindOrCreate(context.Background(), "not-a-pmid", DBPubMed)
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("expected a ValidationError, got %v", err)
	}
}

func TestFindOrCreateBareDOIGoesToCrossref(t *testing.T) {
	store := newFakeStore()
	crossref := &fakeFetcher{records: map[string]*external.PublicationRecord{
		"10.1038/s41586-018-0461-z": {Title: "By DOI"},
	}}
	r := NewResolver(store, map[string]external.PublicationFetcher{DBCrossref: crossref}, quietLogger())

	pub, err := r.FindOrCreate(context.Background(), "https://doi.org/10.1038/s41586-018-0461-z", "")
	if err != nil {
		t.Fatalf("FindOrCreate returned error: %v", err)
	}
	if pub.DBName != DBCrossref || pub.Identifier != "10.1038/s41586-018-0461-z" {
		t.Errorf("unexpected record %+v", pub)
	}
}

func TestFindOrCreateAmbiguous(t *testing.T) {
	// A six digit identifier is valid for both PubMed and bioRxiv; when both
	// databases hold a record the caller must disambiguate.
	fetchers := map[string]external.PublicationFetcher{
		DBPubMed:  &fakeFetcher{records: map[string]*external.PublicationRecord{"212332": {Title: "PubMed hit"}}},
		DBBioRxiv: &fakeFetcher{records: map[string]*external.PublicationRecord{"212332": {Title: "bioRxiv hit"}}},
	}
	r := NewResolver(newFakeStore(), fetchers, quietLogger())

	_, err := r.FindOrCreate(context.Background(), "212332", "")
	var ambiguous *domain.AmbiguousIdentifierError
	if !errors.As(err, &ambiguous) {
		t.Fatalf("expected an AmbiguousIdentifierError, got %v", err)
	}
	if len(ambiguous.DBNames) != 2 || ambiguous.DBNames[0] != DBPubMed || ambiguous.DBNames[1] != DBBioRxiv {
		t.Errorf("db names = %v", ambiguous.DBNames)
	}
}

func TestFindOrCreateSingleHitAcrossDatabases(t *testing.T) {
	fetchers := map[string]external.PublicationFetcher{
		DBPubMed:  &fakeFetcher{},
		DBBioRxiv: &fakeFetcher{records: map[string]*external.PublicationRecord{"212332": {Title: "Preprint"}}},
	}
	r := NewResolver(newFakeStore(), fetchers, quietLogger())

	pub, err := r.FindOrCreate(context.Background(), "212332", "")
	if err != nil {
		t.Fatalf("FindOrCreate returned error: %v", err)
	}
	if pub.DBName != DBBioRxiv || pub.Title != "Preprint" {
		t.Errorf("unexpected record %+v", pub)
	}
}

func TestFindOrCreateNowhere(t *testing.T) {
	fetchers := map[string]external.PublicationFetcher{
		DBPubMed:  &fakeFetcher{},
		DBBioRxiv: &fakeFetcher{},
		DBMedRxiv: &fakeFetcher{},
	}
	r := NewResolver(newFakeStore(), fetchers, quietLogger())

	_, err := r.FindOrCreate(context.Background(), "212332", "")
	var nonexistent *domain.NonexistentIdentifierError
	if !errors.As(err, &nonexistent) {
		t.Errorf("expected a NonexistentIdentifierError, got %v", err)
	}

	_, err = r.FindOrCreate(context.Background(), "completely-unrecognized", "")
	if !errors.As(err, &nonexistent) {
		t.Errorf("expected a NonexistentIdentifierError for an unrecognized format, got %v", err)
	}
}

func TestFindOrCreateTransportFailure(t *testing.T) {
	fetchers := map[string]external.PublicationFetcher{
		DBPubMed:  &fakeFetcher{err: fmt.Errorf("connection reset")},
		DBBioRxiv: &fakeFetcher{},
	}
	r := NewResolver(newFakeStore(), fetchers, quietLogger())

	if _, err := r.FindOrCreate(context.Background(), "212332", ""); err == nil {
		t.Error("transport failures must surface, not be treated as misses")
	}
}

func TestFindOrCreateEmptyIdentifier(t *testing.T) {
	r := NewResolver(newFakeStore(), nil, quietLogger())
	_, err := r.FindOrCreate(context.Background(), "   ", "")
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("expected a ValidationError, got %v", err)
	}
}
