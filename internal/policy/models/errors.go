package models

import (
	dErrors "indexcover/pkg/domain-errors"
)

// Validation failures: the caller can correct the input and retry. Checks
// run in this order and the first failure wins.
var (
	ErrEmptyIndicator   = dErrors.New(dErrors.CodeInvalidInput, "indicator is empty")
	ErrUnknownIndicator = dErrors.New(dErrors.CodeInvalidInput, "indicator not available")
	ErrInvalidPremium   = dErrors.New(dErrors.CodeInvalidInput, "premium must be > 0")
	ErrInvalidSupply    = dErrors.New(dErrors.CodeInvalidInput, "supply must be > 0")
	ErrInvalidCoverage  = dErrors.New(dErrors.CodeInvalidInput, "coverage must be > 0")
	ErrInvalidStrike    = dErrors.New(dErrors.CodeInvalidInput, "strike price must be > 0")
	ErrInvalidPeriod    = dErrors.New(dErrors.CodeInvalidInput, "period must be > 0")
)

// State-precondition failures: the operation is rejected with no partial
// effects.
var (
	ErrPolicyNotFound    = dErrors.New(dErrors.CodeNotFound, "policy does not exist")
	ErrIndicatorNotFound = dErrors.New(dErrors.CodeNotFound, "indicator has no recorded value")
	ErrNotYetBuyable     = dErrors.New(dErrors.CodePrecondition, "policy is not buyable yet")
	ErrSoldOut           = dErrors.New(dErrors.CodePrecondition, "policy supply exhausted")
	ErrNotClaimable      = dErrors.New(dErrors.CodePrecondition, "only claimable policies can be redeemed")
	ErrNoHolding         = dErrors.New(dErrors.CodePrecondition, "caller holds no shares of this policy")

	// Expiry preconditions are split into distinct outcomes: the source
	// behavior reported one merged rejection for "still within window" and
	// "already claimable".
	ErrNotYetExpirable       = dErrors.New(dErrors.CodePrecondition, "policy end date has not passed")
	ErrCannotExpireClaimable = dErrors.New(dErrors.CodePrecondition, "cannot expire a claimable policy")
	ErrAlreadyExpired        = dErrors.New(dErrors.CodePrecondition, "policy is already expired")
)
