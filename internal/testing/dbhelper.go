package testing

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vvka-141/stockimport/internal/testinfra"
)

// TestConnEnv names the variable that points integration tests at an
// existing server instead of a container.
const TestConnEnv = "STOCKIMPORT_TEST_CONN"

var (
	testContainerOnce sync.Once
	testContainerConn string
	testContainerErr  error
)

func getOrStartTestContainer() (string, error) {
	testContainerOnce.Do(func() {
		container, err := testinfra.StartPostgres(context.Background())
		if err != nil {
			testContainerErr = err
			return
		}
		testContainerConn = container.ConnString
	})
	return testContainerConn, testContainerErr
}

// GetTestConnectionString returns the test database connection string.
// Priority: STOCKIMPORT_TEST_CONN env var > auto-started testcontainer > skip test.
func GetTestConnectionString(t *testing.T) string {
	t.Helper()

	if connString := os.Getenv(TestConnEnv); connString != "" {
		return connString
	}

	connString, err := getOrStartTestContainer()
	if err != nil {
		t.Skipf("%s not set and Docker unavailable: %v", TestConnEnv, err)
	}
	return connString
}

// SkipIfShort skips the test if running in short mode (-short flag).
func SkipIfShort(t *testing.T) {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
}

// RequireDatabase combines SkipIfShort and GetTestConnectionString for convenience.
func RequireDatabase(t *testing.T) string {
	t.Helper()

	SkipIfShort(t)
	return GetTestConnectionString(t)
}

// NewTestDB creates a uniquely named database, drops it when the test
// ends, and returns a pool connected to it.
func NewTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	connString := RequireDatabase(t)
	dbName := "stockimport_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	t.Cleanup(CreateTestDB(t, connString, dbName))
	return GetTestPool(t, connString, dbName)
}

// CreateTestDB creates a test database with the given name.
// Returns a cleanup function that should be called with t.Cleanup().
func CreateTestDB(t *testing.T, connString, dbName string) func() {
	t.Helper()

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		t.Fatalf("Failed to connect for test DB creation: %v", err)
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, "CREATE DATABASE "+pgx.Identifier{dbName}.Sanitize()); err != nil {
		t.Fatalf("Failed to create test database %s: %v", dbName, err)
	}
	t.Logf("✓ Created test database %s", dbName)

	return func() {
		CleanupTestDB(t, connString, dbName)
	}
}

// CleanupTestDB drops the test database.
// Safe to call multiple times (uses DROP DATABASE IF EXISTS).
func CleanupTestDB(t *testing.T, connString, dbName string) {
	t.Helper()

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		t.Logf("Warning: Failed to connect for cleanup: %v", err)
		return
	}
	defer pool.Close()

	_, err = pool.Exec(ctx, `
		SELECT pg_terminate_backend(pid)
		FROM pg_stat_activity
		WHERE datname = $1 AND pid <> pg_backend_pid()
	`, dbName)
	if err != nil {
		t.Logf("Warning: Failed to terminate connections to %s: %v", dbName, err)
	}

	if _, err := pool.Exec(ctx, "DROP DATABASE IF EXISTS "+pgx.Identifier{dbName}.Sanitize()); err != nil {
		t.Logf("Warning: Failed to drop database %s: %v", dbName, err)
	}
}

// GetTestPool creates a connection pool to the specified database for testing.
// The pool is automatically closed when the test completes.
func GetTestPool(t *testing.T, connString, dbName string) *pgxpool.Pool {
	t.Helper()

	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		t.Fatalf("Failed to parse connection string: %v", err)
	}
	config.ConnConfig.Database = dbName

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		t.Fatalf("Failed to create connection pool: %v", err)
	}
	t.Cleanup(pool.Close)

	return pool
}

// StockPricesDDL creates the permanent table with its natural key.
const StockPricesDDL = `
CREATE TABLE %s (
    securities_code integer NOT NULL,
    recorded_date date NOT NULL,
    close_price numeric,
    adjusted_close_price numeric,
    adjusted_close_price_including_ex_dividend numeric,
    PRIMARY KEY (securities_code, recorded_date)
)`

// CreateStockPricesTable creates the permanent table under name, which may
// be schema-qualified.
func CreateStockPricesTable(t *testing.T, pool *pgxpool.Pool, name string) {
	t.Helper()

	ident := pgx.Identifier(strings.Split(name, "."))
	if len(ident) == 2 {
		if _, err := pool.Exec(context.Background(), "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{ident[0]}.Sanitize()); err != nil {
			t.Fatalf("Failed to create schema %s: %v", ident[0], err)
		}
	}
	if _, err := pool.Exec(context.Background(), fmt.Sprintf(StockPricesDDL, ident.Sanitize())); err != nil {
		t.Fatalf("Failed to create %s: %v", name, err)
	}
}

// CountRows returns the number of rows in table.
func CountRows(t *testing.T, pool *pgxpool.Pool, table string) int64 {
	t.Helper()

	var n int64
	ident := pgx.Identifier(strings.Split(table, "."))
	if err := pool.QueryRow(context.Background(), "SELECT count(*) FROM "+ident.Sanitize()).Scan(&n); err != nil {
		t.Fatalf("Failed to count %s: %v", table, err)
	}
	return n
}
