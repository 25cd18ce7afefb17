// Package store persists indicator registry records.
package store

import (
	"context"

	"indexcover/internal/indicator/models"
	"indexcover/pkg/domain"
)

// Store is the indicator registry. Get returns (nil, nil) for names that
// have never received an update.
type Store interface {
	Get(ctx context.Context, name domain.Indicator) (*models.Record, error)
	Upsert(ctx context.Context, record models.Record) error
	List(ctx context.Context) ([]*models.Record, error)
}
