// Package models holds the policy record, its lifecycle status, and the
// request types crossing the transport boundary.
package models

import (
	"time"

	"indexcover/pkg/domain"
)

// Status is the policy lifecycle state. Transitions are one-way:
// Active -> Claimable when the strike condition is met, Active -> Expired
// when the period lapses untriggered. Claimable and Expired are terminal.
type Status uint8

const (
	StatusActive    Status = 0
	StatusClaimable Status = 1
	StatusExpired   Status = 2
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusClaimable:
		return "claimable"
	case StatusExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Policy is one unit of index-linked cover, sold as a fixed supply of
// shares. All fields except CurrentSupply and Status are immutable after
// creation.
type Policy struct {
	ID            domain.PolicyID  `json:"id"`
	Provider      domain.AccountID `json:"provider"`
	Premium       uint64           `json:"premium"`
	Coverage      uint64           `json:"coverage"`
	StrikePrice   uint64           `json:"strike_price"`
	TotalSupply   uint64           `json:"total_supply"`
	CurrentSupply uint64           `json:"current_supply"`
	StartDate     time.Time        `json:"start_date"`
	EndDate       time.Time        `json:"end_date"`
	Indicator     domain.Indicator `json:"indicator"`
	IsHigher      bool             `json:"is_higher"`
	Status        Status           `json:"status"`
}

// StrikeMet evaluates the strike condition against an indicator value.
// Both directions are inclusive.
func (p *Policy) StrikeMet(value uint64) bool {
	if p.IsHigher {
		return value >= p.StrikePrice
	}
	return value <= p.StrikePrice
}

// Remaining returns the unsold share count.
func (p *Policy) Remaining() uint64 {
	return p.TotalSupply - p.CurrentSupply
}
