package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/archon-research/fraud-scoring/db"
	"github.com/archon-research/fraud-scoring/db/migrator"
	"github.com/archon-research/fraud-scoring/internal/adapters/outbound/postgres"
	"github.com/archon-research/fraud-scoring/internal/pkg/retry"
)

// PostgresImage is the server version the scoring store is tested against.
const PostgresImage = "postgres:17-alpine"

// StartPostgres runs a throwaway PostgreSQL container and returns its DSN.
// The container is terminated when the test finishes; no schema is applied.
func StartPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, PostgresImage,
		tcpostgres.WithDatabase("fraud"),
		tcpostgres.WithUsername("fraud"),
		tcpostgres.WithPassword("fraud"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("postgres connection string: %v", err)
	}
	return dsn
}

// OpenPool connects through the production pool settings, retrying while
// the server finishes starting. The pool is closed when the test finishes.
func OpenPool(t *testing.T, dsn string) *pgxpool.Pool {
	t.Helper()

	cfg := postgres.DefaultDBConfig(dsn)
	cfg.MinConns = 1
	backoff := retry.Config{MaxRetries: 30, InitialBackoff: 100 * time.Millisecond, MaxBackoff: 100 * time.Millisecond}

	pool, err := retry.Value(context.Background(), backoff, nil, nil, func(ctx context.Context) (*pgxpool.Pool, error) {
		return postgres.OpenPool(ctx, cfg)
	})
	if err != nil {
		t.Fatalf("connect to postgres: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

// SetupPostgres starts a container, connects and applies the embedded
// migrations. Most integration tests need nothing else.
func SetupPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()

	pool := OpenPool(t, StartPostgres(t))
	if _, err := migrator.New(pool, db.Migrations, db.MigrationsDir, nil).Up(context.Background()); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return pool
}

// TruncateAll empties the scoring tables and resets their identities.
func TruncateAll(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	if _, err := pool.Exec(context.Background(), "TRUNCATE predictions, transactions RESTART IDENTITY"); err != nil {
		t.Fatalf("truncate: %v", err)
	}
}
