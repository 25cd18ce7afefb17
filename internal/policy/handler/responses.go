package handler

import (
	"indexcover/pkg/domain"
)

// RedeemResponse reports a settled redemption.
type RedeemResponse struct {
	PolicyID domain.PolicyID  `json:"policy_id"`
	Holder   domain.AccountID `json:"holder"`
	Payout   uint64           `json:"payout"`
}

// ShareBalanceResponse reports a holder's stake in one policy.
type ShareBalanceResponse struct {
	PolicyID domain.PolicyID  `json:"policy_id"`
	Holder   domain.AccountID `json:"holder"`
	Shares   uint64           `json:"shares"`
}
