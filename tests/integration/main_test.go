//go:build integration

// Package integration exercises the repositories and the vector store
// against a real PostgreSQL instance with the pgvector extension. Run with:
//
//	go test -tags integration ./tests/integration/...
//
// By default a throwaway container is started via testcontainers. Set
// NAKBASE_TEST_DB_URL to reuse an existing database instead.
package integration

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(runTests(m))
}

func runTests(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	dbURL := os.Getenv("NAKBASE_TEST_DB_URL")
	if dbURL == "" {
		container, err := postgres.Run(ctx, "pgvector/pgvector:pg16",
			postgres.WithDatabase("paper_review_test"),
			postgres.WithUsername("review_test"),
			postgres.WithPassword("testpassword"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(time.Minute)),
		)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start postgres container: %v\n", err)
			return 1
		}
		defer func() {
			if err := container.Terminate(context.Background()); err != nil {
				fmt.Fprintf(os.Stderr, "failed to terminate container: %v\n", err)
			}
		}()

		dbURL, err = container.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to get connection string: %v\n", err)
			return 1
		}
	}

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to test database: %v\n", err)
		return 1
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "test database ping failed: %v\n", err)
		return 1
	}

	// Path is relative from tests/integration/ to migrations/.
	migrator, err := migrate.New("file://../../migrations", dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create migrator: %v\n", err)
		return 1
	}
	if err := migrator.Up(); err != nil && err != migrate.ErrNoChange {
		fmt.Fprintf(os.Stderr, "migration failed: %v\n", err)
		return 1
	}

	testPool = pool
	return m.Run()
}

// cleanTables truncates the given tables between tests, cascading through
// foreign keys.
func cleanTables(t *testing.T, tables ...string) {
	t.Helper()
	ctx := context.Background()
	for _, table := range tables {
		if _, err := testPool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			t.Fatalf("failed to truncate %s: %v", table, err)
		}
	}
}

// seedVersion inserts a paper with one version and one primary file,
// returning the version and file ids.
func seedVersion(t *testing.T, title string) (versionID, fileID int64) {
	t.Helper()
	ctx := context.Background()

	var paperID int64
	err := testPool.QueryRow(ctx,
		`INSERT INTO papers (user_id, title, status) VALUES (1, $1, 'processing') RETURNING id`,
		title).Scan(&paperID)
	if err != nil {
		t.Fatalf("failed to seed paper: %v", err)
	}

	err = testPool.QueryRow(ctx,
		`INSERT INTO versions (paper_id, version_number) VALUES ($1, 1) RETURNING id`,
		paperID).Scan(&versionID)
	if err != nil {
		t.Fatalf("failed to seed version: %v", err)
	}

	err = testPool.QueryRow(ctx,
		`INSERT INTO files (version_id, file_path, file_type, original_filename, is_primary)
		 VALUES ($1, '/data/test.pdf', 'pdf', 'test.pdf', TRUE) RETURNING id`,
		versionID).Scan(&fileID)
	if err != nil {
		t.Fatalf("failed to seed file: %v", err)
	}
	return versionID, fileID
}

// seedTask inserts a pending inference task for the version.
func seedTask(t *testing.T, versionID int64) int64 {
	t.Helper()
	var taskID int64
	err := testPool.QueryRow(context.Background(),
		`INSERT INTO inference_tasks (version_id, status) VALUES ($1, 'pending') RETURNING id`,
		versionID).Scan(&taskID)
	if err != nil {
		t.Fatalf("failed to seed task: %v", err)
	}
	return taskID
}
