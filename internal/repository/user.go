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

// UserRepository reads the minimal user records the core needs for
// permission checks, and manages ORCID contributors.
type UserRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewUserRepository creates a new user repository.
func NewUserRepository(db *pgxpool.Pool, logger *logrus.Logger) *UserRepository {
	return &UserRepository{
		db:  db,
		log: logger,
	}
}

// GetByUsername retrieves a user and their roles.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	var u domain.User
	err := r.db.QueryRow(ctx,
		`SELECT id, username FROM users WHERE username = $1`, username,
	).Scan(&u.ID, &u.Username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user not found: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("getting user: %w", err)
	}

	rows, err := r.db.Query(ctx,
		`SELECT role FROM user_roles WHERE user_id = $1`, u.ID)
	if err != nil {
		return nil, fmt.Errorf("loading user roles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var role domain.UserRole
		if err := rows.Scan(&role); err != nil {
			return nil, fmt.Errorf("scanning user role: %w", err)
		}
		u.Roles = append(u.Roles, role)
	}
	return &u, rows.Err()
}

// FindOrCreateContributor resolves an ORCID id to a contributor row,
// creating one on first sight. Unknown ORCID ids raise
// NonexistentOrcidUserError when names cannot be supplied.
func (r *UserRepository) FindOrCreateContributor(ctx context.Context, orcidID, givenName, familyName string) (*domain.Contributor, error) {
	var c domain.Contributor
	err := r.db.QueryRow(ctx, `
		SELECT id, orcid_id, given_name, family_name
		FROM contributors WHERE orcid_id = $1`, orcidID,
	).Scan(&c.ID, &c.ORCIDID, &c.GivenName, &c.FamilyName)
	if err == nil {
		return &c, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("finding contributor: %w", err)
	}

	if givenName == "" && familyName == "" {
		return nil, &domain.NonexistentOrcidUserError{ORCIDID: orcidID}
	}

	err = r.db.QueryRow(ctx, `
		INSERT INTO contributors (orcid_id, given_name, family_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (orcid_id) DO UPDATE SET
			given_name = EXCLUDED.given_name,
			family_name = EXCLUDED.family_name
		RETURNING id`,
		orcidID, givenName, familyName,
	).Scan(&c.ID)
	if err != nil {
		return nil, fmt.Errorf("creating contributor: %w", err)
	}
	c.ORCIDID = orcidID
	c.GivenName = givenName
	c.FamilyName = familyName

	r.log.WithField("orcid_id", orcidID).Info("Contributor created")
	return &c, nil
}

// LinkContributor attaches a contributor to a score set.
func (r *UserRepository) LinkContributor(ctx context.Context, scoreSetID, contributorID int64) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO score_set_contributors (score_set_id, contributor_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`,
		scoreSetID, contributorID)
	if err != nil {
		return fmt.Errorf("linking contributor: %w", err)
	}
	return nil
}
