package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/VariantEffect/mavedb-core/internal/domain"
)

// PublicationRepository persists resolved publication identifiers.
// Uniqueness is over (identifier, db_name). It satisfies the resolver's
// store interface.
type PublicationRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewPublicationRepository creates a new publication repository.
func NewPublicationRepository(db *pgxpool.Pool, logger *logrus.Logger) *PublicationRepository {
	return &PublicationRepository{
		db:  db,
		log: logger,
	}
}

// Find retrieves one publication row by its (identifier, database) key.
func (r *PublicationRepository) Find(ctx context.Context, identifier, dbName string) (*domain.PublicationIdentifier, error) {
	var p domain.PublicationIdentifier
	err := r.db.QueryRow(ctx, `
		SELECT id, identifier, db_name, doi, title, abstract, authors,
		       publication_year, publication_journal, url, reference_html
		FROM publication_identifiers
		WHERE identifier = $1 AND db_name = $2`,
		identifier, dbName,
	).Scan(&p.ID, &p.Identifier, &p.DBName, &p.DOI, &p.Title, &p.Abstract,
		&p.Authors, &p.Year, &p.Journal, &p.URL, &p.ReferenceHTML)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("publication not found: %w", domain.ErrNotFound)
		}
		r.log.WithFields(logrus.Fields{
			"identifier": identifier,
			"db_name":    dbName,
			"error":      err,
		}).Error("Failed to find publication")
		return nil, fmt.Errorf("finding publication: %w", err)
	}
	return &p, nil
}

// Create inserts a publication row. A concurrent insert of the same key wins
// the race; the stored row is returned either way.
func (r *PublicationRepository) Create(ctx context.Context, record *domain.PublicationIdentifier) (*domain.PublicationIdentifier, error) {
	err := r.db.QueryRow(ctx, `
		INSERT INTO publication_identifiers (
			identifier, db_name, doi, title, abstract, authors,
			publication_year, publication_journal, url, reference_html
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (identifier, db_name) DO NOTHING
		RETURNING id`,
		record.Identifier,
		record.DBName,
		record.DOI,
		record.Title,
		record.Abstract,
		record.Authors,
		record.Year,
		record.Journal,
		record.URL,
		record.ReferenceHTML,
	).Scan(&record.ID)

	if errors.Is(err, pgx.ErrNoRows) {
		// Lost the race to a concurrent insert.
		return r.Find(ctx, record.Identifier, record.DBName)
	}
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"identifier": record.Identifier,
			"db_name":    record.DBName,
			"error":      err,
		}).Error("Failed to create publication")
		return nil, fmt.Errorf("creating publication: %w", err)
	}
	return record, nil
}

// LinkScoreSet associates a publication with a score set, flagging at most
// one association as primary.
func (r *PublicationRepository) LinkScoreSet(ctx context.Context, scoreSetID, publicationID int64, primary bool) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO score_set_publication_identifiers (score_set_id, publication_identifier_id, "primary")
		VALUES ($1, $2, $3)
		ON CONFLICT (score_set_id, publication_identifier_id)
		DO UPDATE SET "primary" = EXCLUDED."primary"`,
		scoreSetID, publicationID, primary)
	if err != nil {
		return fmt.Errorf("linking publication to score set: %w", err)
	}
	return nil
}

// ListByScoreSet returns the publications attached to a score set, primary
// first.
func (r *PublicationRepository) ListByScoreSet(ctx context.Context, scoreSetID int64) ([]domain.PublicationIdentifier, error) {
	rows, err := r.db.Query(ctx, `
		SELECT p.id, p.identifier, p.db_name, p.doi, p.title, p.abstract, p.authors,
		       p.publication_year, p.publication_journal, p.url, p.reference_html
		FROM publication_identifiers p
		JOIN score_set_publication_identifiers sp ON sp.publication_identifier_id = p.id
		WHERE sp.score_set_id = $1
		ORDER BY sp."primary" DESC, p.id`, scoreSetID)
	if err != nil {
		return nil, fmt.Errorf("listing score set publications: %w", err)
	}
	defer rows.Close()

	var out []domain.PublicationIdentifier
	for rows.Next() {
		var p domain.PublicationIdentifier
		err := rows.Scan(&p.ID, &p.Identifier, &p.DBName, &p.DOI, &p.Title, &p.Abstract,
			&p.Authors, &p.Year, &p.Journal, &p.URL, &p.ReferenceHTML)
		if err != nil {
			return nil, fmt.Errorf("scanning publication row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
