package models

import (
	"time"

	"indexcover/pkg/domain"
)

// CreatePolicyRequest carries the provider's policy parameters. Delay and
// period are expressed in seconds on the wire.
type CreatePolicyRequest struct {
	Premium       uint64           `json:"premium"`
	NoOfPolicies  uint64           `json:"no_of_policies"`
	Coverage      uint64           `json:"coverage"`
	StrikePrice   uint64           `json:"strike_price"`
	StartDelaySec uint64           `json:"start_delay_seconds"`
	PeriodSec     uint64           `json:"period_seconds"`
	IsHigher      bool             `json:"is_higher"`
	Indicator     domain.Indicator `json:"indicator"`
}

// StartDelay returns the delay before the policy becomes buyable.
func (r CreatePolicyRequest) StartDelay() time.Duration {
	return time.Duration(r.StartDelaySec) * time.Second
}

// Period returns the policy's coverage window length.
func (r CreatePolicyRequest) Period() time.Duration {
	return time.Duration(r.PeriodSec) * time.Second
}

// EscrowReport summarizes the engine's collateral position: what the token
// says it holds versus what open policies require it to hold.
type EscrowReport struct {
	Held     uint64 `json:"held"`
	Required uint64 `json:"required"`
	Headroom int64  `json:"headroom"`
}

// IndicatorUpdateResult reports one accepted oracle update: the verified
// reading and the policies it made claimable.
type IndicatorUpdateResult struct {
	Indicator domain.Indicator  `json:"indicator"`
	Value     uint64            `json:"value"`
	Timestamp time.Time         `json:"timestamp"`
	Triggered []domain.PolicyID `json:"triggered,omitempty"`
}
