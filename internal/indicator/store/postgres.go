package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"indexcover/internal/indicator/models"
	"indexcover/pkg/domain"
)

// Postgres persists indicator records in PostgreSQL.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (s *Postgres) Get(ctx context.Context, name domain.Indicator) (*models.Record, error) {
	const query = `SELECT name, value, last_updated FROM indicators WHERE name = $1`

	var record models.Record
	err := s.pool.QueryRow(ctx, query, name.String()).Scan(&record.Name, &record.Value, &record.LastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get indicator %q: %w", name, err)
	}
	return &record, nil
}

func (s *Postgres) Upsert(ctx context.Context, record models.Record) error {
	const query = `
		INSERT INTO indicators (name, value, last_updated)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET value = $2, last_updated = $3`

	if _, err := s.pool.Exec(ctx, query, record.Name.String(), record.Value, record.LastUpdated); err != nil {
		return fmt.Errorf("upsert indicator %q: %w", record.Name, err)
	}
	return nil
}

func (s *Postgres) List(ctx context.Context) ([]*models.Record, error) {
	const query = `SELECT name, value, last_updated FROM indicators ORDER BY name`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list indicators: %w", err)
	}
	defer rows.Close()

	var out []*models.Record
	for rows.Next() {
		var record models.Record
		if err := rows.Scan(&record.Name, &record.Value, &record.LastUpdated); err != nil {
			return nil, err
		}
		out = append(out, &record)
	}
	return out, rows.Err()
}
