package publication

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/VariantEffect/mavedb-core/internal/domain"
	"github.com/VariantEffect/mavedb-core/pkg/external"
)

// Store is the persistence surface the resolver needs.
type Store interface {
	Find(ctx context.Context, identifier, dbName string) (*domain.PublicationIdentifier, error)
	Create(ctx context.Context, record *domain.PublicationIdentifier) (*domain.PublicationIdentifier, error)
}

// Resolver normalizes identifiers and resolves them to stored publication
// records, fetching from the source databases on a miss.
type Resolver struct {
	store    Store
	fetchers map[string]external.PublicationFetcher
	log      *logrus.Logger
}

// NewResolver creates a resolver over the given store and per-database
// fetchers.
func NewResolver(store Store, fetchers map[string]external.PublicationFetcher, logger *logrus.Logger) *Resolver {
	return &Resolver{store: store, fetchers: fetchers, log: logger}
}

// FindOrCreate resolves an identifier to a publication record. With a
// db_name the lookup is direct; a bare DOI resolves unambiguously against
// Crossref; otherwise every database whose identifier format matches is
// queried in parallel. More than one hit raises AmbiguousIdentifierError;
// none raises NonexistentIdentifierError.
func (r *Resolver) FindOrCreate(ctx context.Context, rawIdentifier, dbName string) (*domain.PublicationIdentifier, error) {
	identifier := NormalizeIdentifier(rawIdentifier)
	if identifier == "" {
		return nil, domain.NewValidationError("publication identifier must not be empty")
	}

	if dbName != "" {
		return r.resolveIn(ctx, identifier, dbName)
	}

	if ValidDOI(identifier) {
		return r.resolveIn(ctx, identifier, DBCrossref)
	}

	databases := ApplicableDatabases(identifier)
	if len(databases) == 0 {
		return nil, &domain.NonexistentIdentifierError{Identifier: identifier}
	}

	hits, err := r.queryAll(ctx, identifier, databases)
	if err != nil {
		return nil, err
	}

	switch len(hits) {
	case 0:
		return nil, &domain.NonexistentIdentifierError{Identifier: identifier}
	case 1:
		for db, record := range hits {
			return r.findOrCreateRow(ctx, identifier, db, record)
		}
		panic("unreachable")
	default:
		names := make([]string, 0, len(hits))
		for _, db := range databases {
			if _, ok := hits[db]; ok {
				names = append(names, db)
			}
		}
		return nil, &domain.AmbiguousIdentifierError{Identifier: identifier, DBNames: names}
	}
}

// resolveIn looks up one (identifier, db) pair, fetching on a store miss.
func (r *Resolver) resolveIn(ctx context.Context, identifier, dbName string) (*domain.PublicationIdentifier, error) {
	if !ValidForDatabase(identifier, dbName) {
		return nil, domain.NewValidationError(
			fmt.Sprintf("%q is not a valid %s identifier", identifier, dbName))
	}

	existing, err := r.store.Find(ctx, identifier, dbName)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("looking up publication %s:%s: %w", dbName, identifier, err)
	}

	fetcher, ok := r.fetchers[dbName]
	if !ok {
		return nil, fmt.Errorf("no fetcher registered for database %s", dbName)
	}

	record, err := fetcher.Fetch(ctx, identifier)
	if err != nil {
		if errors.Is(err, external.ErrNotFound) {
			return nil, &domain.NonexistentIdentifierError{Identifier: identifier}
		}
		return nil, fmt.Errorf("fetching publication %s:%s: %w", dbName, identifier, err)
	}

	return r.findOrCreateRow(ctx, identifier, dbName, record)
}

// queryAll queries every applicable database in parallel and collects hits.
// A database miss is not an error; transport failures are.
func (r *Resolver) queryAll(ctx context.Context, identifier string, databases []string) (map[string]*external.PublicationRecord, error) {
	var mu sync.Mutex
	hits := map[string]*external.PublicationRecord{}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(len(databases))

	for _, db := range databases {
		fetcher, ok := r.fetchers[db]
		if !ok {
			continue
		}
		g.Go(func() error {
			record, err := fetcher.Fetch(gctx, identifier)
			if errors.Is(err, external.ErrNotFound) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("querying %s for %q: %w", db, identifier, err)
			}
			mu.Lock()
			hits[db] = record
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return hits, nil
}

// findOrCreateRow persists a fetched record, returning the stored row if one
// already exists.
func (r *Resolver) findOrCreateRow(ctx context.Context, identifier, dbName string, record *external.PublicationRecord) (*domain.PublicationIdentifier, error) {
	existing, err := r.store.Find(ctx, identifier, dbName)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("looking up publication %s:%s: %w", dbName, identifier, err)
	}

	row := &domain.PublicationIdentifier{
		Identifier: identifier,
		DBName:     dbName,
		DOI:        record.DOI,
		Title:      record.Title,
		Abstract:   record.Abstract,
		Authors:    record.Authors,
		Year:       record.Year,
		Journal:    record.Journal,
		URL:        record.URL,
	}
	row.ReferenceHTML = RenderReferenceHTML(record)

	created, err := r.store.Create(ctx, row)
	if err != nil {
		return nil, fmt.Errorf("creating publication %s:%s: %w", dbName, identifier, err)
	}

	r.log.WithFields(logrus.Fields{
		"identifier": identifier,
		"db_name":    dbName,
	}).Info("Publication identifier created")

	return created, nil
}
