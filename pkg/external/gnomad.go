package external

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/VariantEffect/mavedb-core/internal/domain"
)

// GnomADRecord is one joint-frequency row from the gnomAD data lake.
type GnomADRecord struct {
	VariantID       string
	CAID            string
	AlleleFrequency *float64
	AlleleCount     *int64
	AlleleNumber    *int64
}

// GnomADLakeClient queries the gnomAD data lake, a read-only SQL warehouse
// exposing joint allele frequencies keyed by ClinGen canonical allele id.
// The lake speaks the Postgres wire protocol, so it is reached through
// database/sql rather than the application's pgx pool.
type GnomADLakeClient struct {
	db      *sql.DB
	version string
}

// NewGnomADLakeClient opens a lake connection. The version names the gnomAD
// release the lake serves (e.g. "4.1").
func NewGnomADLakeClient(dsn, version string) (*GnomADLakeClient, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening gnomAD lake connection: %w", err)
	}
	db.SetMaxOpenConns(4)
	return &GnomADLakeClient{db: db, version: version}, nil
}

// Version returns the gnomAD release the lake serves.
func (c *GnomADLakeClient) Version() string {
	return c.version
}

// FetchByCAIDs returns the frequency rows matching any of the given
// canonical allele ids. Missing alleles are simply absent from the result.
func (c *GnomADLakeClient) FetchByCAIDs(ctx context.Context, caids []string) ([]GnomADRecord, error) {
	if len(caids) == 0 {
		return nil, nil
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT variant_id, caid, joint_allele_frequency, joint_allele_count, joint_allele_number
		FROM joint_frequencies
		WHERE caid = ANY($1)`,
		pq.Array(caids))
	if err != nil {
		return nil, &domain.TransientExternalError{Service: "gnomAD", Err: err}
	}
	defer rows.Close()

	var out []GnomADRecord
	for rows.Next() {
		var rec GnomADRecord
		var af sql.NullFloat64
		var ac, an sql.NullInt64
		if err := rows.Scan(&rec.VariantID, &rec.CAID, &af, &ac, &an); err != nil {
			return nil, fmt.Errorf("scanning gnomAD row: %w", err)
		}
		if af.Valid {
			rec.AlleleFrequency = &af.Float64
		}
		if ac.Valid {
			rec.AlleleCount = &ac.Int64
		}
		if an.Valid {
			rec.AlleleNumber = &an.Int64
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating gnomAD rows: %w", err)
	}
	return out, nil
}

// FetchByVariantID returns the frequency row for one gnomAD variant id.
func (c *GnomADLakeClient) FetchByVariantID(ctx context.Context, variantID string) (*GnomADRecord, error) {
	var rec GnomADRecord
	var af sql.NullFloat64
	var ac, an sql.NullInt64

	err := c.db.QueryRowContext(ctx, `
		SELECT variant_id, caid, joint_allele_frequency, joint_allele_count, joint_allele_number
		FROM joint_frequencies
		WHERE variant_id = $1`,
		variantID,
	).Scan(&rec.VariantID, &rec.CAID, &af, &ac, &an)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &domain.TransientExternalError{Service: "gnomAD", Err: err}
	}

	if af.Valid {
		rec.AlleleFrequency = &af.Float64
	}
	if ac.Valid {
		rec.AlleleCount = &ac.Int64
	}
	if an.Valid {
		rec.AlleleNumber = &an.Int64
	}
	return &rec, nil
}

// Close closes the lake connection.
func (c *GnomADLakeClient) Close() error {
	return c.db.Close()
}
