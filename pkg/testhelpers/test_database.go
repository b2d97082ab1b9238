package testhelpers

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/log"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestDatabase is a migrated Postgres running in a container
type TestDatabase struct {
	Container *postgres.PostgresContainer
	Pool      *pgxpool.Pool
	ConnStr   string
}

// NewTestDatabase starts postgres:16-alpine, applies the goose migrations in
// migrationsPath and registers cleanup with t.
func NewTestDatabase(t *testing.T, migrationsPath string) *TestDatabase {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
		testcontainers.WithLogger(log.TestLogger(t)),
	)
	require.NoError(t, err, "failed to start postgres container")

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "failed to get connection string")

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err, "failed to connect to database")
	require.NoError(t, pool.Ping(ctx), "failed to ping database")

	td := &TestDatabase{
		Container: pgContainer,
		Pool:      pool,
		ConnStr:   connStr,
	}
	t.Cleanup(td.Close)

	runMigrations(t, connStr, migrationsPath)
	return td
}

// runMigrations applies goose migrations through database/sql
func runMigrations(t *testing.T, connStr, migrationsPath string) {
	t.Helper()

	db, err := sql.Open("pgx", connStr)
	require.NoError(t, err, "failed to open sql db for migrations")
	defer db.Close()

	require.NoError(t, goose.SetDialect("postgres"))

	absPath, err := filepath.Abs(migrationsPath)
	require.NoError(t, err)
	require.NoError(t, goose.Up(db, absPath), "failed to run migrations")
}

// Truncate empties the given tables between subtests sharing one container
func (td *TestDatabase) Truncate(t *testing.T, tables ...string) {
	t.Helper()
	for _, table := range tables {
		_, err := td.Pool.Exec(context.Background(), "TRUNCATE TABLE "+table+" CASCADE")
		require.NoError(t, err, "failed to truncate %s", table)
	}
}

// Close releases the pool and terminates the container
func (td *TestDatabase) Close() {
	if td.Pool != nil {
		td.Pool.Close()
		td.Pool = nil
	}
	if td.Container != nil {
		_ = td.Container.Terminate(context.Background())
		td.Container = nil
	}
}
