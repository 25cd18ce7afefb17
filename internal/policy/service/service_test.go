package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/suite"

	"indexcover/internal/attestation"
	"indexcover/internal/event"
	indicatorModels "indexcover/internal/indicator/models"
	indicatorStore "indexcover/internal/indicator/store"
	"indexcover/internal/ownership"
	"indexcover/internal/policy/models"
	policyStore "indexcover/internal/policy/store"
	"indexcover/internal/token"
	"indexcover/pkg/domain"
	dErrors "indexcover/pkg/domain-errors"
)

// =============================================================================
// Settlement Engine Test Suite
// =============================================================================
// Justification for unit tests: the engine couples token movements to ledger
// writes across five operations with a fixed validation order and one-way
// status transitions. These couplings are exercised here against in-memory
// collaborators; the HTTP surface is tested separately in the handler package.

const (
	engineAcct = domain.AccountID("engine-escrow")
	provider   = domain.AccountID("acme-underwriting")
	buyer      = domain.AccountID("alice")
)

type EngineSuite struct {
	suite.Suite
	policies   *policyStore.Memory
	shares     *ownership.Memory
	indicators *indicatorStore.Memory
	token      *token.Memory
	events     *event.Recorder
	clock      time.Time
	service    *Service
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.policies = policyStore.NewMemory()
	s.shares = ownership.NewMemory()
	s.indicators = indicatorStore.NewMemory()
	s.token = token.NewMemory(engineAcct)
	s.events = event.NewRecorder()
	s.clock = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	s.seedIndicator("CPI", 13900)
	s.token.Mint(provider, 1_000_000)
	s.token.Mint(buyer, 100_000)
	s.token.Approve(provider, engineAcct, 1_000_000)
	s.token.Approve(buyer, engineAcct, 100_000)

	s.service = New(s.policies, s.shares, s.indicators, s.token, attestation.InsecureVerifier{}, engineAcct,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithEvents(s.events),
		WithClock(func() time.Time { return s.clock }),
	)
}

func (s *EngineSuite) seedIndicator(name domain.Indicator, value uint64) {
	s.Require().NoError(s.indicators.Upsert(context.Background(), indicatorModels.Record{
		Name:        name,
		Value:       value,
		LastUpdated: s.clock,
	}))
}

func (s *EngineSuite) advance(d time.Duration) {
	s.clock = s.clock.Add(d)
}

func (s *EngineSuite) balance(account domain.AccountID) uint64 {
	held, err := s.token.BalanceOf(context.Background(), account)
	s.Require().NoError(err)
	return held
}

func validRequest() models.CreatePolicyRequest {
	return models.CreatePolicyRequest{
		Premium:       1000,
		NoOfPolicies:  1,
		Coverage:      100,
		StrikePrice:   15000,
		StartDelaySec: 10,
		PeriodSec:     3600,
		IsHigher:      true,
		Indicator:     "CPI",
	}
}

func (s *EngineSuite) create(mutate func(*models.CreatePolicyRequest)) *models.Policy {
	req := validRequest()
	if mutate != nil {
		mutate(&req)
	}
	policy, err := s.service.CreatePolicy(context.Background(), provider, req)
	s.Require().NoError(err)
	return policy
}

func (s *EngineSuite) proof(indicator string, value, timestamp uint64) attestation.Proof {
	encoded, err := attestation.EncodePayload(attestation.Payload{
		Indicator: indicator,
		Timestamp: timestamp,
		Value:     value,
	})
	s.Require().NoError(err)
	return attestation.Proof{
		Data: attestation.Response{
			AttestationType: common.HexToHash("0x494a736f6e417069"),
			SourceID:        common.HexToHash("0x5745423200000000"),
			VotingRound:     812,
			ResponseBody:    attestation.ResponseBody{ABIEncodedData: encoded},
		},
	}
}

// =============================================================================
// CreatePolicy Tests
// =============================================================================

func (s *EngineSuite) TestCreatePolicy() {
	ctx := context.Background()

	s.Run("assigns sequential ids starting at zero", func() {
		first := s.create(nil)
		second := s.create(nil)
		s.Equal(domain.PolicyID(0), first.ID)
		s.Equal(domain.PolicyID(1), second.ID)

		next, err := s.service.NextPolicyID(ctx)
		s.NoError(err)
		s.Equal(domain.PolicyID(2), next)
	})

	s.Run("locks full coverage escrow from the provider", func() {
		providerBefore := s.balance(provider)
		engineBefore := s.balance(engineAcct)
		s.create(func(r *models.CreatePolicyRequest) {
			r.NoOfPolicies = 5
			r.Coverage = 100
		})
		s.Equal(providerBefore-500, s.balance(provider))
		s.Equal(engineBefore+500, s.balance(engineAcct))
	})

	s.Run("stores the policy active with nothing sold", func() {
		policy := s.create(nil)
		s.Equal(models.StatusActive, policy.Status)
		s.Zero(policy.CurrentSupply)
		s.Equal(s.clock.Add(10*time.Second), policy.StartDate)
		s.Equal(policy.StartDate.Add(time.Hour), policy.EndDate)
	})

	s.Run("emits a creation event", func() {
		policy := s.create(nil)
		created := s.events.OfType(event.TypePolicyCreated)
		s.Require().NotEmpty(created)
		last := created[len(created)-1]
		s.Equal(policy.ID, last.PolicyID)
		s.Equal(provider, last.Account)
	})
}

func (s *EngineSuite) TestCreatePolicyValidation() {
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*models.CreatePolicyRequest)
		want   error
	}{
		{"empty indicator", func(r *models.CreatePolicyRequest) { r.Indicator = "" }, models.ErrEmptyIndicator},
		{"unknown indicator", func(r *models.CreatePolicyRequest) { r.Indicator = "GDP" }, models.ErrUnknownIndicator},
		{"zero premium", func(r *models.CreatePolicyRequest) { r.Premium = 0 }, models.ErrInvalidPremium},
		{"zero supply", func(r *models.CreatePolicyRequest) { r.NoOfPolicies = 0 }, models.ErrInvalidSupply},
		{"zero coverage", func(r *models.CreatePolicyRequest) { r.Coverage = 0 }, models.ErrInvalidCoverage},
		{"zero strike", func(r *models.CreatePolicyRequest) { r.StrikePrice = 0 }, models.ErrInvalidStrike},
		{"zero period", func(r *models.CreatePolicyRequest) { r.PeriodSec = 0 }, models.ErrInvalidPeriod},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			req := validRequest()
			tc.mutate(&req)
			_, err := s.service.CreatePolicy(ctx, provider, req)
			s.ErrorIs(err, tc.want)
		})
	}

	s.Run("first failing check wins", func() {
		req := validRequest()
		req.Indicator = ""
		req.Premium = 0
		_, err := s.service.CreatePolicy(ctx, provider, req)
		s.ErrorIs(err, models.ErrEmptyIndicator)
	})

	s.Run("rejection does not move funds or consume an id", func() {
		before := s.balance(provider)
		req := validRequest()
		req.Premium = 0
		_, err := s.service.CreatePolicy(ctx, provider, req)
		s.Error(err)
		s.Equal(before, s.balance(provider))

		next, err := s.service.NextPolicyID(ctx)
		s.NoError(err)
		s.Equal(domain.PolicyID(0), next)
	})

	s.Run("insufficient allowance propagates the token failure", func() {
		s.token.Approve(provider, engineAcct, 0)
		_, err := s.service.CreatePolicy(ctx, provider, validRequest())
		s.ErrorIs(err, token.ErrInsufficientAllowance)
		s.True(dErrors.HasCode(err, dErrors.CodePrecondition))
	})
}

// =============================================================================
// BuyPolicy Tests
// =============================================================================

func (s *EngineSuite) TestBuyPolicy() {
	ctx := context.Background()

	s.Run("unknown policy", func() {
		_, err := s.service.BuyPolicy(ctx, buyer, 99)
		s.ErrorIs(err, models.ErrPolicyNotFound)
	})

	s.Run("before start date", func() {
		policy := s.create(nil)
		_, err := s.service.BuyPolicy(ctx, buyer, policy.ID)
		s.ErrorIs(err, models.ErrNotYetBuyable)
	})

	s.Run("moves premium straight to the provider and credits one share", func() {
		policy := s.create(nil)
		s.advance(11 * time.Second)

		providerBefore := s.balance(provider)
		buyerBefore := s.balance(buyer)

		bought, err := s.service.BuyPolicy(ctx, buyer, policy.ID)
		s.Require().NoError(err)
		s.Equal(uint64(1), bought.CurrentSupply)
		s.Equal(providerBefore+1000, s.balance(provider))
		s.Equal(buyerBefore-1000, s.balance(buyer))

		shares, err := s.service.ShareBalance(ctx, policy.ID, buyer)
		s.NoError(err)
		s.Equal(uint64(1), shares)
	})

	s.Run("sold out once declared supply is taken", func() {
		policy := s.create(func(r *models.CreatePolicyRequest) { r.NoOfPolicies = 2 })
		s.advance(11 * time.Second)

		_, err := s.service.BuyPolicy(ctx, buyer, policy.ID)
		s.Require().NoError(err)
		_, err = s.service.BuyPolicy(ctx, buyer, policy.ID)
		s.Require().NoError(err)

		_, err = s.service.BuyPolicy(ctx, buyer, policy.ID)
		s.ErrorIs(err, models.ErrSoldOut)
	})

	s.Run("insufficient buyer allowance keeps supply untouched", func() {
		policy := s.create(nil)
		s.advance(11 * time.Second)
		s.token.Approve(buyer, engineAcct, 0)

		_, err := s.service.BuyPolicy(ctx, buyer, policy.ID)
		s.ErrorIs(err, token.ErrInsufficientAllowance)

		got, err := s.service.GetPolicy(ctx, policy.ID)
		s.Require().NoError(err)
		s.Zero(got.CurrentSupply)
	})

	s.Run("claimable policies can still be bought", func() {
		s.token.Approve(buyer, engineAcct, 100_000)
		policy := s.create(func(r *models.CreatePolicyRequest) { r.NoOfPolicies = 2 })
		s.advance(11 * time.Second)

		_, err := s.service.UpdateData(ctx, s.proof("CPI", 15000, uint64(s.clock.Unix())))
		s.Require().NoError(err)

		bought, err := s.service.BuyPolicy(ctx, buyer, policy.ID)
		s.NoError(err)
		s.Equal(models.StatusClaimable, bought.Status)
	})
}

// =============================================================================
// UpdateData Tests
// =============================================================================

func (s *EngineSuite) TestUpdateData() {
	ctx := context.Background()

	s.Run("undecodable payload is rejected as an invalid proof", func() {
		proof := s.proof("CPI", 15000, uint64(s.clock.Unix()))
		proof.Data.ResponseBody.ABIEncodedData = []byte{0x01, 0x02}

		_, err := s.service.UpdateData(ctx, proof)
		s.ErrorIs(err, attestation.ErrInvalidProof)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("records the reading and reports it", func() {
		result, err := s.service.UpdateData(ctx, s.proof("CPI", 14100, uint64(s.clock.Unix())))
		s.Require().NoError(err)
		s.Equal(domain.Indicator("CPI"), result.Indicator)
		s.Equal(uint64(14100), result.Value)

		record, err := s.service.IndicatorValue(ctx, "CPI")
		s.Require().NoError(err)
		s.Equal(uint64(14100), record.Value)
	})

	s.Run("value below strike leaves bound policies active", func() {
		policy := s.create(nil)
		result, err := s.service.UpdateData(ctx, s.proof("CPI", 14999, uint64(s.clock.Unix())))
		s.Require().NoError(err)
		s.Empty(result.Triggered)

		got, err := s.service.GetPolicy(ctx, policy.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusActive, got.Status)
	})

	s.Run("strike threshold is inclusive", func() {
		policy := s.create(nil)
		result, err := s.service.UpdateData(ctx, s.proof("CPI", 15000, uint64(s.clock.Unix())))
		s.Require().NoError(err)
		s.Contains(result.Triggered, policy.ID)

		got, err := s.service.GetPolicy(ctx, policy.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusClaimable, got.Status)
	})

	s.Run("is_higher false triggers when the value drops to the strike", func() {
		s.seedIndicator("UNEMPLOYMENT", 500)
		policy := s.create(func(r *models.CreatePolicyRequest) {
			r.Indicator = "UNEMPLOYMENT"
			r.StrikePrice = 400
			r.IsHigher = false
		})

		result, err := s.service.UpdateData(ctx, s.proof("UNEMPLOYMENT", 400, uint64(s.clock.Unix())))
		s.Require().NoError(err)
		s.Contains(result.Triggered, policy.ID)
	})

	s.Run("unbound indicators update without transitions", func() {
		s.seedIndicator("FX_EURUSD", 108)
		result, err := s.service.UpdateData(ctx, s.proof("FX_EURUSD", 112, uint64(s.clock.Unix())))
		s.Require().NoError(err)
		s.Empty(result.Triggered)
	})

	s.Run("out-of-order timestamps are accepted", func() {
		_, err := s.service.UpdateData(ctx, s.proof("CPI", 14000, uint64(s.clock.Unix())))
		s.Require().NoError(err)

		stale := uint64(s.clock.Add(-time.Hour).Unix())
		result, err := s.service.UpdateData(ctx, s.proof("CPI", 13000, stale))
		s.Require().NoError(err)
		s.Equal(uint64(13000), result.Value)

		record, err := s.service.IndicatorValue(ctx, "CPI")
		s.Require().NoError(err)
		s.Equal(uint64(13000), record.Value)
	})

	s.Run("transition emits a status event", func() {
		policy := s.create(nil)
		_, err := s.service.UpdateData(ctx, s.proof("CPI", 16000, uint64(s.clock.Unix())))
		s.Require().NoError(err)

		updated := s.events.OfType(event.TypePolicyStatusUpdated)
		s.Require().NotEmpty(updated)
		last := updated[len(updated)-1]
		s.Equal(policy.ID, last.PolicyID)
		s.Equal("claimable", last.Status)
	})
}

// =============================================================================
// ExpirePolicy Tests
// =============================================================================

func (s *EngineSuite) TestExpirePolicy() {
	ctx := context.Background()

	s.Run("unknown policy", func() {
		_, err := s.service.ExpirePolicy(ctx, 42)
		s.ErrorIs(err, models.ErrPolicyNotFound)
	})

	s.Run("before end date", func() {
		policy := s.create(nil)
		_, err := s.service.ExpirePolicy(ctx, policy.ID)
		s.ErrorIs(err, models.ErrNotYetExpirable)
	})

	s.Run("claimable policies never expire regardless of elapsed time", func() {
		policy := s.create(nil)
		_, err := s.service.UpdateData(ctx, s.proof("CPI", 16000, uint64(s.clock.Unix())))
		s.Require().NoError(err)

		s.advance(48 * time.Hour)
		_, err = s.service.ExpirePolicy(ctx, policy.ID)
		s.ErrorIs(err, models.ErrCannotExpireClaimable)
	})

	s.Run("partial sale refunds coverage for unsold shares only", func() {
		policy := s.create(func(r *models.CreatePolicyRequest) { r.NoOfPolicies = 5 })
		s.advance(11 * time.Second)
		for range 2 {
			_, err := s.service.BuyPolicy(ctx, buyer, policy.ID)
			s.Require().NoError(err)
		}

		providerBefore := s.balance(provider)
		engineBefore := s.balance(engineAcct)

		s.advance(2 * time.Hour)
		expired, err := s.service.ExpirePolicy(ctx, policy.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusExpired, expired.Status)
		s.Equal(providerBefore+300, s.balance(provider))
		s.Equal(engineBefore-300, s.balance(engineAcct))
	})

	s.Run("second expiry is rejected", func() {
		policy := s.create(nil)
		s.advance(2 * time.Hour)

		_, err := s.service.ExpirePolicy(ctx, policy.ID)
		s.Require().NoError(err)
		_, err = s.service.ExpirePolicy(ctx, policy.ID)
		s.ErrorIs(err, models.ErrAlreadyExpired)
	})
}

// =============================================================================
// RedeemPolicy Tests
// =============================================================================

func (s *EngineSuite) TestRedeemPolicy() {
	ctx := context.Background()

	s.Run("unknown policy", func() {
		_, err := s.service.RedeemPolicy(ctx, buyer, 7)
		s.ErrorIs(err, models.ErrPolicyNotFound)
	})

	s.Run("active policies cannot be redeemed", func() {
		policy := s.create(nil)
		_, err := s.service.RedeemPolicy(ctx, buyer, policy.ID)
		s.ErrorIs(err, models.ErrNotClaimable)
	})

	s.Run("holder is paid coverage per share and the position is cleared", func() {
		policy := s.create(func(r *models.CreatePolicyRequest) { r.NoOfPolicies = 3 })
		s.advance(11 * time.Second)
		for range 3 {
			_, err := s.service.BuyPolicy(ctx, buyer, policy.ID)
			s.Require().NoError(err)
		}
		_, err := s.service.UpdateData(ctx, s.proof("CPI", 16000, uint64(s.clock.Unix())))
		s.Require().NoError(err)

		buyerBefore := s.balance(buyer)
		payout, err := s.service.RedeemPolicy(ctx, buyer, policy.ID)
		s.Require().NoError(err)
		s.Equal(uint64(300), payout)
		s.Equal(buyerBefore+300, s.balance(buyer))

		shares, err := s.service.ShareBalance(ctx, policy.ID, buyer)
		s.NoError(err)
		s.Zero(shares)
	})

	s.Run("double redemption finds no holding", func() {
		policy := s.create(nil)
		s.advance(11 * time.Second)
		_, err := s.service.BuyPolicy(ctx, buyer, policy.ID)
		s.Require().NoError(err)
		_, err = s.service.UpdateData(ctx, s.proof("CPI", 16000, uint64(s.clock.Unix())))
		s.Require().NoError(err)

		_, err = s.service.RedeemPolicy(ctx, buyer, policy.ID)
		s.Require().NoError(err)
		_, err = s.service.RedeemPolicy(ctx, buyer, policy.ID)
		s.ErrorIs(err, models.ErrNoHolding)
	})

	s.Run("non-holders cannot redeem", func() {
		policy := s.create(nil)
		s.advance(11 * time.Second)
		_, err := s.service.BuyPolicy(ctx, buyer, policy.ID)
		s.Require().NoError(err)
		_, err = s.service.UpdateData(ctx, s.proof("CPI", 16000, uint64(s.clock.Unix())))
		s.Require().NoError(err)

		_, err = s.service.RedeemPolicy(ctx, "mallory", policy.ID)
		s.ErrorIs(err, models.ErrNoHolding)
	})
}

// =============================================================================
// Query Tests
// =============================================================================

func (s *EngineSuite) TestQueries() {
	ctx := context.Background()

	s.Run("GetPolicy unknown id", func() {
		_, err := s.service.GetPolicy(ctx, 1234)
		s.ErrorIs(err, models.ErrPolicyNotFound)
	})

	s.Run("IndicatorValue unknown name", func() {
		_, err := s.service.IndicatorValue(ctx, "GDP")
		s.ErrorIs(err, models.ErrIndicatorNotFound)
	})

	s.Run("HolderPositions lists the holder's stakes", func() {
		first := s.create(nil)
		second := s.create(func(r *models.CreatePolicyRequest) { r.NoOfPolicies = 2 })
		s.advance(11 * time.Second)
		_, err := s.service.BuyPolicy(ctx, buyer, first.ID)
		s.Require().NoError(err)
		_, err = s.service.BuyPolicy(ctx, buyer, second.ID)
		s.Require().NoError(err)
		_, err = s.service.BuyPolicy(ctx, buyer, second.ID)
		s.Require().NoError(err)

		positions, err := s.service.HolderPositions(ctx, buyer)
		s.Require().NoError(err)
		s.Require().Len(positions, 2)
		s.Equal(first.ID, positions[0].PolicyID)
		s.Equal(uint64(1), positions[0].Shares)
		s.Equal(second.ID, positions[1].PolicyID)
		s.Equal(uint64(2), positions[1].Shares)
	})
}

// =============================================================================
// Escrow Accounting Tests
// =============================================================================

func (s *EngineSuite) TestEscrowReportActive() {
	ctx := context.Background()
	s.create(func(r *models.CreatePolicyRequest) { r.NoOfPolicies = 5 })

	report, err := s.service.EscrowReport(ctx)
	s.Require().NoError(err)
	s.Equal(uint64(500), report.Held)
	s.Equal(uint64(500), report.Required)
	s.Zero(report.Headroom)
}

func (s *EngineSuite) TestEscrowReportExpired() {
	// Sold but unredeemed shares of an expired policy stay escrowed.
	ctx := context.Background()
	policy := s.create(func(r *models.CreatePolicyRequest) { r.NoOfPolicies = 5 })
	s.advance(11 * time.Second)
	for range 2 {
		_, err := s.service.BuyPolicy(ctx, buyer, policy.ID)
		s.Require().NoError(err)
	}
	s.advance(2 * time.Hour)
	_, err := s.service.ExpirePolicy(ctx, policy.ID)
	s.Require().NoError(err)

	report, err := s.service.EscrowReport(ctx)
	s.Require().NoError(err)
	s.Equal(uint64(200), report.Held)
	s.Equal(uint64(200), report.Required)
	s.Zero(report.Headroom)
}

func (s *EngineSuite) TestEscrowReportRedeemed() {
	ctx := context.Background()
	policy := s.create(nil)
	s.advance(11 * time.Second)
	_, err := s.service.BuyPolicy(ctx, buyer, policy.ID)
	s.Require().NoError(err)
	_, err = s.service.UpdateData(ctx, s.proof("CPI", 16000, uint64(s.clock.Unix())))
	s.Require().NoError(err)
	_, err = s.service.RedeemPolicy(ctx, buyer, policy.ID)
	s.Require().NoError(err)

	report, err := s.service.EscrowReport(ctx)
	s.Require().NoError(err)
	s.Zero(report.Required)
	s.Zero(report.Held)
}

// =============================================================================
// End-to-End Lifecycle
// =============================================================================

func (s *EngineSuite) TestFullLifecycle() {
	ctx := context.Background()

	policy := s.create(nil) // premium 1000, coverage 100, strike 15000, one share

	providerBefore := s.balance(provider)
	buyerBefore := s.balance(buyer)

	s.advance(11 * time.Second)
	_, err := s.service.BuyPolicy(ctx, buyer, policy.ID)
	s.Require().NoError(err)

	_, err = s.service.UpdateData(ctx, s.proof("CPI", 15000, uint64(s.clock.Unix())))
	s.Require().NoError(err)

	payout, err := s.service.RedeemPolicy(ctx, buyer, policy.ID)
	s.Require().NoError(err)
	s.Equal(uint64(100), payout)

	// Provider earned the premium; the buyer paid it and recovered coverage.
	s.Equal(providerBefore+1000, s.balance(provider))
	s.Equal(buyerBefore-1000+100, s.balance(buyer))
	s.Zero(s.balance(engineAcct))

	got, err := s.service.GetPolicy(ctx, policy.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusClaimable, got.Status)
}

// =============================================================================
// Failure Isolation
// =============================================================================

type failingPublisher struct{}

func (failingPublisher) Emit(context.Context, event.Event) error {
	return errors.New("sink down")
}

func (s *EngineSuite) TestEventFailureDoesNotRollBack() {
	ctx := context.Background()
	svc := New(s.policies, s.shares, s.indicators, s.token, attestation.InsecureVerifier{}, engineAcct,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithEvents(failingPublisher{}),
		WithClock(func() time.Time { return s.clock }),
	)

	policy, err := svc.CreatePolicy(ctx, provider, validRequest())
	s.Require().NoError(err)

	got, err := svc.GetPolicy(ctx, policy.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusActive, got.Status)
}
