package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"indexcover/internal/policy/models"
	"indexcover/pkg/domain"
)

// Postgres persists policies in PostgreSQL. Sequential ids come from a
// zero-based GENERATED column so creation order and id order agree with
// the in-memory store.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

const policyColumns = `id, provider, premium, coverage, strike_price, total_supply,
	current_supply, start_date, end_date, indicator, is_higher, status`

func (s *Postgres) Create(ctx context.Context, policy *models.Policy) (domain.PolicyID, error) {
	const query = `
		INSERT INTO policies (provider, premium, coverage, strike_price, total_supply,
			current_supply, start_date, end_date, indicator, is_higher, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`

	var id uint64
	err := s.pool.QueryRow(ctx, query,
		policy.Provider.String(), policy.Premium, policy.Coverage, policy.StrikePrice,
		policy.TotalSupply, policy.CurrentSupply, policy.StartDate, policy.EndDate,
		policy.Indicator, policy.IsHigher, int(policy.Status),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create policy: %w", err)
	}
	return domain.PolicyID(id), nil
}

func (s *Postgres) Get(ctx context.Context, id domain.PolicyID) (*models.Policy, error) {
	query := `SELECT ` + policyColumns + ` FROM policies WHERE id = $1`

	policy, err := scanPolicy(s.pool.QueryRow(ctx, query, uint64(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get policy: %w", err)
	}
	return policy, nil
}

func (s *Postgres) Update(ctx context.Context, policy *models.Policy) error {
	const query = `
		UPDATE policies
		SET current_supply = $2, status = $3
		WHERE id = $1`

	if _, err := s.pool.Exec(ctx, query, uint64(policy.ID), policy.CurrentSupply, int(policy.Status)); err != nil {
		return fmt.Errorf("update policy: %w", err)
	}
	return nil
}

func (s *Postgres) List(ctx context.Context) ([]*models.Policy, error) {
	query := `SELECT ` + policyColumns + ` FROM policies ORDER BY id`
	return s.listWhere(ctx, query)
}

func (s *Postgres) ListActiveByIndicator(ctx context.Context, indicator domain.Indicator) ([]*models.Policy, error) {
	query := `SELECT ` + policyColumns + ` FROM policies WHERE indicator = $1 AND status = $2 ORDER BY id`
	return s.listWhere(ctx, query, string(indicator), int(models.StatusActive))
}

func (s *Postgres) NextID(ctx context.Context) (domain.PolicyID, error) {
	const query = `SELECT COALESCE(MAX(id) + 1, 0) FROM policies`

	var next uint64
	if err := s.pool.QueryRow(ctx, query).Scan(&next); err != nil {
		return 0, fmt.Errorf("next policy id: %w", err)
	}
	return domain.PolicyID(next), nil
}

func (s *Postgres) listWhere(ctx context.Context, query string, args ...any) ([]*models.Policy, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list policies: %w", err)
	}
	defer rows.Close()

	var out []*models.Policy
	for rows.Next() {
		policy, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, policy)
	}
	return out, rows.Err()
}

func scanPolicy(row pgx.Row) (*models.Policy, error) {
	var (
		p        models.Policy
		id       uint64
		provider string
		status   int
	)
	err := row.Scan(&id, &provider, &p.Premium, &p.Coverage, &p.StrikePrice,
		&p.TotalSupply, &p.CurrentSupply, &p.StartDate, &p.EndDate,
		&p.Indicator, &p.IsHigher, &status)
	if err != nil {
		return nil, err
	}
	p.ID = domain.PolicyID(id)
	p.Provider = domain.AccountID(provider)
	p.Status = models.Status(status)
	return &p, nil
}
