// Package store persists policy records and the indicator binding index.
package store

import (
	"context"

	"indexcover/internal/policy/models"
	"indexcover/pkg/domain"
)

// Store is the append-only policy table. Ids are sequential from zero and
// assigned by Create. Get returns (nil, nil) for unknown ids.
type Store interface {
	Create(ctx context.Context, policy *models.Policy) (domain.PolicyID, error)
	Get(ctx context.Context, id domain.PolicyID) (*models.Policy, error)
	Update(ctx context.Context, policy *models.Policy) error
	List(ctx context.Context) ([]*models.Policy, error)

	// ListActiveByIndicator returns the Active policies bound to an
	// indicator. Implementations keep an index from indicator name to
	// bound policies so an oracle update does not rescan the whole table.
	ListActiveByIndicator(ctx context.Context, indicator domain.Indicator) ([]*models.Policy, error)

	// NextID returns the id the next created policy will receive.
	NextID(ctx context.Context) (domain.PolicyID, error)
}
