package repository

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/VariantEffect/mavedb-core/internal/database"
	"github.com/VariantEffect/mavedb-core/internal/urn"
)

// startPostgres runs a disposable Postgres with the full schema applied.
func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate PostgreSQL container: %v", err)
		}
	})

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to build connection string: %v", err)
	}

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	runner, err := database.NewMigrationRunner(dsn, "../../migrations", logger)
	if err != nil {
		t.Fatalf("Failed to create migration runner: %v", err)
	}
	if err := runner.Up(ctx); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}
	runner.Close()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("Failed to open pool: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

type publishFixture struct {
	experimentSetID int64
	experimentID    int64
	scoreSetID      int64
}

// insertUnpublishedScoreSet seeds a temporary experiment set, experiment and
// score set with processed variants, ready to publish.
func insertUnpublishedScoreSet(t *testing.T, pool *pgxpool.Pool, experimentSetID, experimentID int64, numVariants int) publishFixture {
	t.Helper()
	ctx := context.Background()

	var fx publishFixture
	if experimentSetID == 0 {
		err := pool.QueryRow(ctx, `
			INSERT INTO experiment_sets (urn) VALUES ($1) RETURNING id`,
			urn.NewTemporaryURN(),
		).Scan(&fx.experimentSetID)
		if err != nil {
			t.Fatalf("inserting experiment set: %v", err)
		}
	} else {
		fx.experimentSetID = experimentSetID
	}

	if experimentID == 0 {
		err := pool.QueryRow(ctx, `
			INSERT INTO experiments (urn, experiment_set_id) VALUES ($1, $2) RETURNING id`,
			urn.NewTemporaryURN(), fx.experimentSetID,
		).Scan(&fx.experimentID)
		if err != nil {
			t.Fatalf("inserting experiment: %v", err)
		}
	} else {
		fx.experimentID = experimentID
	}

	err := pool.QueryRow(ctx, `
		INSERT INTO score_sets (urn, processing_state, mapping_state, num_variants, experiment_id)
		VALUES ($1, 'success', 'not_attempted', $2, $3) RETURNING id`,
		urn.NewTemporaryURN(), numVariants, fx.experimentID,
	).Scan(&fx.scoreSetID)
	if err != nil {
		t.Fatalf("inserting score set: %v", err)
	}

	for i := 1; i <= numVariants; i++ {
		tempURN := urn.NewTemporaryURN()
		_, err := pool.Exec(ctx, `
			INSERT INTO variants (score_set_id, urn, data)
			VALUES ($1, $2, '{"score_data": {"score": 1.0}}'::jsonb)`,
			fx.scoreSetID, urn.ForVariant(tempURN, i))
		if err != nil {
			t.Fatalf("inserting variant: %v", err)
		}
	}
	return fx
}

func TestPublishAssignsSequentialURNs(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test requires Docker")
	}

	pool := startPostgres(t)
	ctx := context.Background()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	publisher := NewPublisher(pool, NewVariantRepository(pool, logger), logger)

	first := insertUnpublishedScoreSet(t, pool, 0, 0, 2)
	publishedURN, err := publisher.Publish(ctx, first.scoreSetID)
	if err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}
	if publishedURN != "urn:mavedb:00000001-a-1" {
		t.Errorf("first published URN = %q, want urn:mavedb:00000001-a-1", publishedURN)
	}

	// Variants are renumbered under the published URN.
	rows, err := pool.Query(ctx, `SELECT urn FROM variants WHERE score_set_id = $1 ORDER BY id`, first.scoreSetID)
	if err != nil {
		t.Fatalf("listing variants: %v", err)
	}
	defer rows.Close()
	var variantURNs []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			t.Fatalf("scanning variant: %v", err)
		}
		variantURNs = append(variantURNs, u)
	}
	if len(variantURNs) != 2 ||
		variantURNs[0] != "urn:mavedb:00000001-a-1#1" ||
		variantURNs[1] != "urn:mavedb:00000001-a-1#2" {
		t.Errorf("variant URNs = %v", variantURNs)
	}

	// Re-publishing is a no-op.
	again, err := publisher.Publish(ctx, first.scoreSetID)
	if err != nil {
		t.Fatalf("re-publish returned error: %v", err)
	}
	if again != publishedURN {
		t.Errorf("re-publish URN = %q, want %q", again, publishedURN)
	}

	// A sibling score set under the same experiment takes the next number.
	second := insertUnpublishedScoreSet(t, pool, first.experimentSetID, first.experimentID, 1)
	secondURN, err := publisher.Publish(ctx, second.scoreSetID)
	if err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}
	if secondURN != "urn:mavedb:00000001-a-2" {
		t.Errorf("sibling URN = %q, want urn:mavedb:00000001-a-2", secondURN)
	}

	// A new experiment under the same experiment set takes the next letter.
	third := insertUnpublishedScoreSet(t, pool, first.experimentSetID, 0, 1)
	thirdURN, err := publisher.Publish(ctx, third.scoreSetID)
	if err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}
	if thirdURN != "urn:mavedb:00000001-b-1" {
		t.Errorf("new experiment URN = %q, want urn:mavedb:00000001-b-1", thirdURN)
	}

	// A fresh experiment set takes the next set number.
	fourth := insertUnpublishedScoreSet(t, pool, 0, 0, 1)
	fourthURN, err := publisher.Publish(ctx, fourth.scoreSetID)
	if err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}
	if fourthURN != "urn:mavedb:00000002-a-1" {
		t.Errorf("new set URN = %q, want urn:mavedb:00000002-a-1", fourthURN)
	}
}

func TestPublishRejectsUnprocessedScoreSets(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test requires Docker")
	}

	pool := startPostgres(t)
	ctx := context.Background()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	publisher := NewPublisher(pool, NewVariantRepository(pool, logger), logger)

	// No variants.
	empty := insertUnpublishedScoreSet(t, pool, 0, 0, 0)
	if _, err := publisher.Publish(ctx, empty.scoreSetID); err == nil {
		t.Error("expected error publishing a score set without variants")
	}

	// Processing still pending.
	pending := insertUnpublishedScoreSet(t, pool, 0, 0, 1)
	if _, err := pool.Exec(ctx, `UPDATE score_sets SET processing_state = 'processing' WHERE id = $1`, pending.scoreSetID); err != nil {
		t.Fatalf("updating processing state: %v", err)
	}
	if _, err := publisher.Publish(ctx, pending.scoreSetID); err == nil {
		t.Error("expected error publishing while processing is pending")
	}
}
