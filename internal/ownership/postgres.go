package ownership

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"indexcover/pkg/domain"
)

// Postgres persists share holdings in PostgreSQL.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (s *Postgres) Balance(ctx context.Context, policyID domain.PolicyID, holder domain.AccountID) (uint64, error) {
	const query = `SELECT COALESCE(SUM(shares), 0) FROM holdings WHERE policy_id = $1 AND holder = $2`

	var shares uint64
	if err := s.pool.QueryRow(ctx, query, uint64(policyID), holder.String()).Scan(&shares); err != nil {
		return 0, fmt.Errorf("holding balance: %w", err)
	}
	return shares, nil
}

func (s *Postgres) Credit(ctx context.Context, policyID domain.PolicyID, holder domain.AccountID, shares uint64) error {
	const query = `
		INSERT INTO holdings (policy_id, holder, shares)
		VALUES ($1, $2, $3)
		ON CONFLICT (policy_id, holder) DO UPDATE SET shares = holdings.shares + $3`

	if _, err := s.pool.Exec(ctx, query, uint64(policyID), holder.String(), shares); err != nil {
		return fmt.Errorf("credit holding: %w", err)
	}
	return nil
}

func (s *Postgres) Clear(ctx context.Context, policyID domain.PolicyID, holder domain.AccountID) (uint64, error) {
	// UPDATE ... RETURNING sees the new row; the CTE captures the share
	// count as it was before zeroing.
	const clear = `
		WITH before AS (
			SELECT shares FROM holdings
			WHERE policy_id = $1 AND holder = $2
			FOR UPDATE
		), cleared AS (
			UPDATE holdings SET shares = 0
			WHERE policy_id = $1 AND holder = $2
		)
		SELECT COALESCE((SELECT shares FROM before), 0)`

	var shares uint64
	if err := s.pool.QueryRow(ctx, clear, uint64(policyID), holder.String()).Scan(&shares); err != nil {
		return 0, fmt.Errorf("clear holding: %w", err)
	}
	return shares, nil
}

func (s *Postgres) Outstanding(ctx context.Context, policyID domain.PolicyID) (uint64, error) {
	const query = `SELECT COALESCE(SUM(shares), 0) FROM holdings WHERE policy_id = $1`

	var total uint64
	if err := s.pool.QueryRow(ctx, query, uint64(policyID)).Scan(&total); err != nil {
		return 0, fmt.Errorf("outstanding shares: %w", err)
	}
	return total, nil
}

func (s *Postgres) ByHolder(ctx context.Context, holder domain.AccountID) ([]Position, error) {
	const query = `SELECT policy_id, shares FROM holdings WHERE holder = $1 AND shares > 0 ORDER BY policy_id`

	rows, err := s.pool.Query(ctx, query, holder.String())
	if err != nil {
		return nil, fmt.Errorf("positions by holder: %w", err)
	}
	defer rows.Close()

	var out []Position
	for rows.Next() {
		var p Position
		if err := rows.Scan(&p.PolicyID, &p.Shares); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
