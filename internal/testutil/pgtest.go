// Package testutil provides shared test infrastructure for integration tests.
package testutil

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PGTest opens a test database, runs all goose migrations, and returns the
// *sql.DB plus a cleanup function.
//
// Tests should call this at the top:
//
//	db, cleanup := testutil.PGTest(t)
//	defer cleanup()
//
// If POSTGRES_URL is set it is used directly; otherwise a disposable
// postgres container is started. Set SENTRA_SKIP_DOCKER=1 to skip
// integration tests entirely on machines without Docker.
func PGTest(t *testing.T) (*sql.DB, func()) {
	t.Helper()

	dbURL := os.Getenv("POSTGRES_URL")
	var terminate func()

	if dbURL == "" {
		if os.Getenv("SENTRA_SKIP_DOCKER") != "" {
			t.Skip("POSTGRES_URL not set and SENTRA_SKIP_DOCKER=1, skipping integration test")
		}
		dbURL, terminate = startContainer(t)
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Fatalf("pgtest: open database: %v", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		if terminate != nil {
			terminate()
		}
		t.Fatalf("pgtest: connect to database: %v", err)
	}

	ctx := context.Background()

	if err := goose.SetDialect("postgres"); err != nil {
		t.Fatalf("pgtest: set dialect: %v", err)
	}
	if err := goose.Up(db, findMigrationsDir(t)); err != nil {
		_ = db.Close()
		if terminate != nil {
			terminate()
		}
		t.Fatalf("pgtest: run migrations: %v", err)
	}

	cleanup := func() {
		truncateAll(ctx, db)
		_ = db.Close()
		if terminate != nil {
			terminate()
		}
	}

	return db, cleanup
}

// startContainer boots a throwaway postgres and returns its URL plus a
// terminate function.
func startContainer(t *testing.T) (string, func()) {
	t.Helper()
	ctx := context.Background()

	pg, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("sentra_test"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Skipf("pgtest: could not start postgres container: %v", err)
	}

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = pg.Terminate(ctx)
		t.Fatalf("pgtest: connection string: %v", err)
	}

	return connStr, func() { _ = pg.Terminate(ctx) }
}

// findMigrationsDir walks up from the test working directory to find
// the project-level migrations/ directory.
func findMigrationsDir(t *testing.T) string {
	t.Helper()

	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("pgtest: getwd: %v", err)
	}

	for {
		candidate := filepath.Join(dir, "migrations")
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatalf("pgtest: could not find migrations/ directory walking up from cwd")
		}
		dir = parent
	}
}

// truncateAll truncates all user-created tables to provide a clean slate
// between tests. Goose bookkeeping tables are left alone.
func truncateAll(ctx context.Context, db *sql.DB) {
	rows, err := db.QueryContext(ctx, `
		SELECT tablename FROM pg_tables
		WHERE schemaname = 'public'
		  AND tablename NOT LIKE 'pg_%'
		  AND tablename NOT LIKE 'sql_%'
		  AND tablename NOT LIKE 'goose_%'
	`)
	if err != nil {
		return
	}
	defer func() { _ = rows.Close() }()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err == nil {
			tables = append(tables, name)
		}
	}

	if len(tables) > 0 {
		// Table names come from pg_tables system catalog, not user input.
		stmt := "TRUNCATE " + strings.Join(tables, ", ") + " CASCADE" // #nosec G202
		_, _ = db.ExecContext(ctx, stmt)
	}
}
