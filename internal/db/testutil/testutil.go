// Package testutil starts throwaway PostgreSQL instances for integration tests.
package testutil

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/media-pipelines/media-pipelines-go/internal/config"
	"github.com/media-pipelines/media-pipelines-go/internal/db"
)

// TestDatabase is a migrated database in a container.
type TestDatabase struct {
	Pool   *pgxpool.Pool
	Config config.DatabaseConfig
}

// MigrationsPath returns the absolute path of the repository's migrations
// directory, independent of the calling test's working directory.
func MigrationsPath() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "..", "migrations")
}

// SetupTestDatabase starts postgres, applies the migrations and opens a pool
// through db.NewPool. The container is removed when the test ends.
func SetupTestDatabase(t *testing.T) *TestDatabase {
	t.Helper()
	ctx := context.Background()

	cfg := config.NewForTest().Database
	cfg.MaxConnections = 4

	container, err := postgres.Run(ctx,
		"postgres:17-alpine",
		postgres.WithDatabase(cfg.Name),
		postgres.WithUsername(cfg.User),
		postgres.WithPassword(cfg.Password),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	cfg.Host, err = container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)
	cfg.Port = port.Int()

	m, err := migrate.New("file://"+MigrationsPath(), cfg.DatabaseURL())
	require.NoError(t, err)
	require.NoError(t, m.Up())
	_, _ = m.Close()

	pool, err := db.NewPool(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return &TestDatabase{Pool: pool, Config: cfg}
}

// TruncateTables empties the index table.
func (td *TestDatabase) TruncateTables(t *testing.T) {
	t.Helper()
	_, err := td.Pool.Exec(context.Background(), `TRUNCATE TABLE media_records`)
	require.NoError(t, err)
}
