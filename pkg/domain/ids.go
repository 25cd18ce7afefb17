// Package domain holds the typed identifiers shared across ledger modules.
// Distinct types keep policy ids, account ids, and indicator names from being
// swapped silently at call sites.
package domain

import (
	"strconv"

	dErrors "indexcover/pkg/domain-errors"
)

// PolicyID identifies a policy record. Ids are sequential, assigned by the
// ledger starting at zero, and never reused.
type PolicyID uint64

func (p PolicyID) String() string { return strconv.FormatUint(uint64(p), 10) }

// ParsePolicyID parses a decimal policy id from a transport boundary.
func ParsePolicyID(s string) (PolicyID, error) {
	if s == "" {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "policy id cannot be empty")
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInvalidInput, "policy id must be a non-negative integer")
	}
	return PolicyID(v), nil
}

// AccountID identifies a collateral-token account: a provider, buyer, or the
// engine's own escrow account. The ledger treats it as opaque.
type AccountID string

func (a AccountID) String() string { return string(a) }

// IsZero reports whether the account id is unset.
func (a AccountID) IsZero() bool { return a == "" }

// ParseAccountID validates an account id from a trust boundary.
func ParseAccountID(s string) (AccountID, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "account id cannot be empty")
	}
	return AccountID(s), nil
}

// Indicator names an external data series (e.g. "CPI"). Names are
// case-sensitive and must be non-empty wherever a policy binds to one.
type Indicator string

func (i Indicator) String() string { return string(i) }

// IsZero reports whether the indicator name is unset.
func (i Indicator) IsZero() bool { return i == "" }
