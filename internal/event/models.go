// Package event defines the policy lifecycle notifications the engine emits
// and the publishers that fan them out. Emission is observational: a failed
// publish never rolls back the ledger operation that produced it.
package event

import (
	"time"

	"indexcover/pkg/domain"
)

// Type names a lifecycle notification.
type Type string

const (
	TypePolicyCreated       Type = "policy_created"
	TypePolicyPurchased     Type = "policy_purchased"
	TypePolicyStatusUpdated Type = "policy_status_updated"
	TypePolicyRedeemed      Type = "policy_redeemed"
)

// Event is emitted from the ledger to capture key actions. Keep it
// transport-agnostic so sinks can fan out.
type Event struct {
	ID        string           `json:"id"`
	Type      Type             `json:"type"`
	PolicyID  domain.PolicyID  `json:"policy_id"`
	Account   domain.AccountID `json:"account,omitempty"`
	Amount    uint64           `json:"amount,omitempty"`
	Status    string           `json:"status,omitempty"`
	Indicator domain.Indicator `json:"indicator,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	RequestID string           `json:"request_id,omitempty"`
}
