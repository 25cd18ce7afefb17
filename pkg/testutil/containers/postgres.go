//go:build integration

package containers

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

// schema mirrors migrations/0001_init.sql. Keep the two in sync.
const schema = `
CREATE TABLE IF NOT EXISTS policies (
    id             BIGINT GENERATED ALWAYS AS IDENTITY (START WITH 0 MINVALUE 0) PRIMARY KEY,
    provider       TEXT        NOT NULL,
    premium        BIGINT      NOT NULL,
    coverage       BIGINT      NOT NULL,
    strike_price   BIGINT      NOT NULL,
    total_supply   BIGINT      NOT NULL,
    current_supply BIGINT      NOT NULL,
    start_date     TIMESTAMPTZ NOT NULL,
    end_date       TIMESTAMPTZ NOT NULL,
    indicator      TEXT        NOT NULL,
    is_higher      BOOLEAN     NOT NULL,
    status         SMALLINT    NOT NULL
);

CREATE INDEX IF NOT EXISTS policies_active_by_indicator_idx
    ON policies (indicator) WHERE status = 0;

CREATE TABLE IF NOT EXISTS holdings (
    policy_id BIGINT NOT NULL,
    holder    TEXT   NOT NULL,
    shares    BIGINT NOT NULL,
    PRIMARY KEY (policy_id, holder)
);

CREATE INDEX IF NOT EXISTS holdings_by_holder_idx ON holdings (holder);

CREATE TABLE IF NOT EXISTS indicators (
    name         TEXT PRIMARY KEY,
    value        BIGINT      NOT NULL,
    last_updated TIMESTAMPTZ NOT NULL
);
`

// PostgresContainer wraps a testcontainers Postgres instance with the
// ledger schema applied and a ready pgx pool.
type PostgresContainer struct {
	Container testcontainers.Container
	DSN       string
	Pool      *pgxpool.Pool
}

// NewPostgresContainer starts a Postgres container and applies the schema.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("indexcover_test"),
		tcpostgres.WithUsername("indexcover"),
		tcpostgres.WithPassword("indexcover"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get postgres connection string: %v", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to create pgx pool: %v", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		_ = container.Terminate(ctx)
		t.Fatalf("failed to ping postgres: %v", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		_ = container.Terminate(ctx)
		t.Fatalf("failed to apply schema: %v", err)
	}

	// Shared via the singleton Manager; Ryuk handles teardown.

	return &PostgresContainer{
		Container: container,
		DSN:       dsn,
		Pool:      pool,
	}
}

// TruncateTables empties the given tables and restarts identity sequences
// so policy ids begin at zero again. Use between tests to ensure isolation.
func (p *PostgresContainer) TruncateTables(ctx context.Context, tables ...string) error {
	if len(tables) == 0 {
		return nil
	}
	stmt := fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", strings.Join(tables, ", "))
	if _, err := p.Pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("truncate tables: %w", err)
	}
	return nil
}
