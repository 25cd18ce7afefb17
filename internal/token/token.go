// Package token defines the collateral token port. The token is an external
// collaborator: the engine only moves premium and coverage through it and
// propagates its failures verbatim, without retrying.
package token

import (
	"context"
	"errors"

	"indexcover/pkg/domain"
)

// Failures surfaced by token implementations. The ledger wraps these but
// never masks them, so callers can still match with errors.Is.
var (
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
)

//go:generate mockgen -source=token.go -destination=mocks/mocks.go -package=mocks Token

// Token is the transfer surface the engine consumes. Transfer moves funds
// out of the engine's escrow account; TransferFrom pulls approved funds from
// a third-party account.
type Token interface {
	Transfer(ctx context.Context, to domain.AccountID, amount uint64) error
	TransferFrom(ctx context.Context, from, to domain.AccountID, amount uint64) error
	BalanceOf(ctx context.Context, account domain.AccountID) (uint64, error)
	Allowance(ctx context.Context, owner, spender domain.AccountID) (uint64, error)
}
