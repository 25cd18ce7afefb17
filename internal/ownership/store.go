// Package ownership tracks policy share holdings per holder. Balances move
// only two ways: purchase credits one share, redemption clears the holder's
// whole position.
package ownership

import (
	"context"

	"indexcover/pkg/domain"
)

// Position is one holder's stake in one policy.
type Position struct {
	PolicyID domain.PolicyID `json:"policy_id"`
	Shares   uint64          `json:"shares"`
}

// Store is the share ledger.
type Store interface {
	// Balance returns the holder's share count for a policy; zero if none.
	Balance(ctx context.Context, policyID domain.PolicyID, holder domain.AccountID) (uint64, error)

	// Credit adds shares to a holder's position.
	Credit(ctx context.Context, policyID domain.PolicyID, holder domain.AccountID, shares uint64) error

	// Clear zeroes the holder's position and returns the share count it
	// held, so redemption cannot pay the same position twice.
	Clear(ctx context.Context, policyID domain.PolicyID, holder domain.AccountID) (uint64, error)

	// Outstanding returns the total unredeemed shares across all holders
	// of a policy. Feeds the escrow accounting report.
	Outstanding(ctx context.Context, policyID domain.PolicyID) (uint64, error)

	// ByHolder lists every non-empty position a holder has.
	ByHolder(ctx context.Context, holder domain.AccountID) ([]Position, error)
}
