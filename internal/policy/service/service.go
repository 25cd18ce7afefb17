// Package service implements the settlement engine: policy lifecycle,
// escrow accounting, and verified indicator updates. Every state-changing
// call runs behind one ledger-wide mutex, so each operation is atomic and
// fully serialized with respect to the others.
package service

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"indexcover/internal/attestation"
	"indexcover/internal/event"
	indicatorModels "indexcover/internal/indicator/models"
	"indexcover/internal/ownership"
	"indexcover/internal/platform/middleware"
	"indexcover/internal/policy/metrics"
	"indexcover/internal/policy/models"
	"indexcover/internal/token"
	"indexcover/pkg/domain"
	dErrors "indexcover/pkg/domain-errors"
)

type PolicyStore interface {
	Create(ctx context.Context, policy *models.Policy) (domain.PolicyID, error)
	Get(ctx context.Context, id domain.PolicyID) (*models.Policy, error)
	Update(ctx context.Context, policy *models.Policy) error
	List(ctx context.Context) ([]*models.Policy, error)
	ListActiveByIndicator(ctx context.Context, indicator domain.Indicator) ([]*models.Policy, error)
	NextID(ctx context.Context) (domain.PolicyID, error)
}

type ShareLedger interface {
	Balance(ctx context.Context, policyID domain.PolicyID, holder domain.AccountID) (uint64, error)
	Credit(ctx context.Context, policyID domain.PolicyID, holder domain.AccountID, shares uint64) error
	Clear(ctx context.Context, policyID domain.PolicyID, holder domain.AccountID) (uint64, error)
	Outstanding(ctx context.Context, policyID domain.PolicyID) (uint64, error)
	ByHolder(ctx context.Context, holder domain.AccountID) ([]ownership.Position, error)
}

type IndicatorRegistry interface {
	Get(ctx context.Context, name domain.Indicator) (*indicatorModels.Record, error)
	Upsert(ctx context.Context, record indicatorModels.Record) error
	List(ctx context.Context) ([]*indicatorModels.Record, error)
}

// Service is the settlement engine. It owns the coupling between the policy
// table, the share ledger, the indicator registry, and the external
// collateral token: funds never move without the matching ledger write.
type Service struct {
	mu sync.Mutex

	policies   PolicyStore
	shares     ShareLedger
	indicators IndicatorRegistry
	token      token.Token
	verifier   attestation.Verifier
	engine     domain.AccountID

	logger  *slog.Logger
	events  event.Publisher
	metrics *metrics.Metrics
	now     func() time.Time
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithEvents(publisher event.Publisher) Option {
	return func(s *Service) {
		s.events = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock overrides the time source. Tests use this to cross start and
// end dates without sleeping.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New constructs the engine. engine is the token account escrowed coverage
// is held under.
func New(policies PolicyStore, shares ShareLedger, indicators IndicatorRegistry, tok token.Token, verifier attestation.Verifier, engine domain.AccountID, opts ...Option) *Service {
	s := &Service{
		policies:   policies,
		shares:     shares,
		indicators: indicators,
		token:      tok,
		verifier:   verifier,
		engine:     engine,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.events == nil {
		s.events = event.NewLogPublisher(s.logger)
	}
	return s
}

// CreatePolicy validates the provider's parameters, locks the full coverage
// escrow, and stores the policy as Active with nothing sold. Validation
// checks run in a fixed order; the first failure wins.
func (s *Service) CreatePolicy(ctx context.Context, provider domain.AccountID, req models.CreatePolicyRequest) (*models.Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.validateCreate(ctx, req); err != nil {
		s.metrics.IncrementCreated("rejected")
		return nil, err
	}

	escrow, err := mulSupply(req.Coverage, req.NoOfPolicies)
	if err != nil {
		s.metrics.IncrementCreated("rejected")
		return nil, err
	}

	if err := s.token.TransferFrom(ctx, provider, s.engine, escrow); err != nil {
		s.metrics.IncrementCreated("rejected")
		return nil, wrapTokenErr(err, "coverage escrow transfer failed")
	}

	start := s.now().UTC().Add(req.StartDelay())
	policy := &models.Policy{
		Provider:      provider,
		Premium:       req.Premium,
		Coverage:      req.Coverage,
		StrikePrice:   req.StrikePrice,
		TotalSupply:   req.NoOfPolicies,
		CurrentSupply: 0,
		StartDate:     start,
		EndDate:       start.Add(req.Period()),
		Indicator:     req.Indicator,
		IsHigher:      req.IsHigher,
		Status:        models.StatusActive,
	}

	id, err := s.policies.Create(ctx, policy)
	if err != nil {
		// The escrow already moved; hand it back before failing.
		if refundErr := s.token.Transfer(ctx, provider, escrow); refundErr != nil {
			s.logger.ErrorContext(ctx, "escrow refund after failed create",
				"provider", provider, "amount", escrow, "error", refundErr)
		}
		s.metrics.IncrementCreated("error")
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store policy")
	}
	policy.ID = id

	s.metrics.IncrementCreated("ok")
	s.emit(ctx, event.Event{
		Type:      event.TypePolicyCreated,
		PolicyID:  id,
		Account:   provider,
		Amount:    escrow,
		Indicator: policy.Indicator,
	})
	s.logger.InfoContext(ctx, "policy created",
		"policy_id", id,
		"provider", provider,
		"indicator", policy.Indicator,
		"supply", policy.TotalSupply,
		"escrow", escrow,
		"request_id", middleware.GetRequestID(ctx),
	)
	return policy, nil
}

func (s *Service) validateCreate(ctx context.Context, req models.CreatePolicyRequest) error {
	if req.Indicator.IsZero() {
		return models.ErrEmptyIndicator
	}
	record, err := s.indicators.Get(ctx, req.Indicator)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "indicator lookup failed")
	}
	if record == nil {
		return models.ErrUnknownIndicator
	}
	if req.Premium == 0 {
		return models.ErrInvalidPremium
	}
	if req.NoOfPolicies == 0 {
		return models.ErrInvalidSupply
	}
	if req.Coverage == 0 {
		return models.ErrInvalidCoverage
	}
	if req.StrikePrice == 0 {
		return models.ErrInvalidStrike
	}
	if req.PeriodSec == 0 {
		return models.ErrInvalidPeriod
	}
	return nil
}

// BuyPolicy sells one share to the buyer. The premium moves straight from
// buyer to provider and is never escrowed. Status is deliberately not
// checked: a policy that already triggered can still be bought up to its
// declared supply, matching the original market behavior.
func (s *Service) BuyPolicy(ctx context.Context, buyer domain.AccountID, id domain.PolicyID) (*models.Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	policy, err := s.getLocked(ctx, id)
	if err != nil {
		s.metrics.IncrementPurchased("rejected")
		return nil, err
	}
	if s.now().UTC().Before(policy.StartDate) {
		s.metrics.IncrementPurchased("rejected")
		return nil, models.ErrNotYetBuyable
	}
	if policy.CurrentSupply >= policy.TotalSupply {
		s.metrics.IncrementPurchased("rejected")
		return nil, models.ErrSoldOut
	}

	if err := s.token.TransferFrom(ctx, buyer, policy.Provider, policy.Premium); err != nil {
		s.metrics.IncrementPurchased("rejected")
		return nil, wrapTokenErr(err, "premium transfer failed")
	}

	policy.CurrentSupply++
	if err := s.policies.Update(ctx, policy); err != nil {
		// Premium already reached the provider and cannot be pulled back
		// without an allowance; surface the inconsistency loudly.
		s.logger.ErrorContext(ctx, "supply update failed after premium transfer",
			"policy_id", id, "buyer", buyer, "premium", policy.Premium, "error", err)
		s.metrics.IncrementPurchased("error")
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record purchase")
	}
	if err := s.shares.Credit(ctx, id, buyer, 1); err != nil {
		s.logger.ErrorContext(ctx, "share credit failed after premium transfer",
			"policy_id", id, "buyer", buyer, "error", err)
		s.metrics.IncrementPurchased("error")
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record purchase")
	}

	s.metrics.IncrementPurchased("ok")
	s.emit(ctx, event.Event{
		Type:     event.TypePolicyPurchased,
		PolicyID: id,
		Account:  buyer,
		Amount:   policy.Premium,
	})
	s.logger.InfoContext(ctx, "policy purchased",
		"policy_id", id,
		"buyer", buyer,
		"remaining", policy.Remaining(),
		"request_id", middleware.GetRequestID(ctx),
	)
	return policy, nil
}

// ExpirePolicy closes an Active policy whose window lapsed without the
// strike condition ever being met, refunding the coverage for shares that
// were never sold. Claimable policies can never expire. Sold shares keep
// their coverage escrowed; see EscrowReport.
func (s *Service) ExpirePolicy(ctx context.Context, id domain.PolicyID) (*models.Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	policy, err := s.getLocked(ctx, id)
	if err != nil {
		s.metrics.IncrementExpired("rejected")
		return nil, err
	}
	switch {
	case policy.Status == models.StatusExpired:
		s.metrics.IncrementExpired("rejected")
		return nil, models.ErrAlreadyExpired
	case policy.Status == models.StatusClaimable:
		s.metrics.IncrementExpired("rejected")
		return nil, models.ErrCannotExpireClaimable
	case s.now().UTC().Before(policy.EndDate):
		s.metrics.IncrementExpired("rejected")
		return nil, models.ErrNotYetExpirable
	}

	prior := *policy
	policy.Status = models.StatusExpired
	if err := s.policies.Update(ctx, policy); err != nil {
		s.metrics.IncrementExpired("error")
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to expire policy")
	}

	refund, err := mulSupply(policy.Coverage, policy.Remaining())
	if err != nil {
		s.metrics.IncrementExpired("error")
		return nil, err
	}
	if refund > 0 {
		if err := s.token.Transfer(ctx, policy.Provider, refund); err != nil {
			// Put the record back so a later retry can refund again.
			if revertErr := s.policies.Update(ctx, &prior); revertErr != nil {
				s.logger.ErrorContext(ctx, "status revert failed after refund failure",
					"policy_id", id, "error", revertErr)
			}
			s.metrics.IncrementExpired("error")
			return nil, wrapTokenErr(err, "escrow refund transfer failed")
		}
	}

	s.metrics.IncrementExpired("ok")
	s.emit(ctx, event.Event{
		Type:     event.TypePolicyStatusUpdated,
		PolicyID: id,
		Account:  policy.Provider,
		Amount:   refund,
		Status:   policy.Status.String(),
	})
	s.logger.InfoContext(ctx, "policy expired",
		"policy_id", id,
		"refund", refund,
		"request_id", middleware.GetRequestID(ctx),
	)
	return policy, nil
}

// RedeemPolicy pays coverage for every share the caller holds in a
// Claimable policy and zeroes the position, so a second call finds nothing
// to pay.
func (s *Service) RedeemPolicy(ctx context.Context, holder domain.AccountID, id domain.PolicyID) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	policy, err := s.getLocked(ctx, id)
	if err != nil {
		s.metrics.IncrementRedeemed("rejected")
		return 0, err
	}
	if policy.Status != models.StatusClaimable {
		s.metrics.IncrementRedeemed("rejected")
		return 0, models.ErrNotClaimable
	}

	held, err := s.shares.Clear(ctx, id, holder)
	if err != nil {
		s.metrics.IncrementRedeemed("error")
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to settle position")
	}
	if held == 0 {
		s.metrics.IncrementRedeemed("rejected")
		return 0, models.ErrNoHolding
	}

	payout, err := mulSupply(policy.Coverage, held)
	if err != nil {
		s.restoreShares(ctx, id, holder, held)
		s.metrics.IncrementRedeemed("error")
		return 0, err
	}
	if err := s.token.Transfer(ctx, holder, payout); err != nil {
		s.restoreShares(ctx, id, holder, held)
		s.metrics.IncrementRedeemed("error")
		return 0, wrapTokenErr(err, "payout transfer failed")
	}

	s.metrics.IncrementRedeemed("ok")
	s.emit(ctx, event.Event{
		Type:     event.TypePolicyRedeemed,
		PolicyID: id,
		Account:  holder,
		Amount:   payout,
	})
	s.logger.InfoContext(ctx, "policy redeemed",
		"policy_id", id,
		"holder", holder,
		"shares", held,
		"payout", payout,
		"request_id", middleware.GetRequestID(ctx),
	)
	return payout, nil
}

// UpdateData accepts a verified oracle reading: the proof is checked
// against the attestation Merkle root, the indicator registry is updated,
// and every Active policy bound to the indicator whose strike condition
// the new value meets flips to Claimable. The registry write and the scan
// happen under the ledger mutex, so purchases and redemptions never
// interleave with a transition.
func (s *Service) UpdateData(ctx context.Context, proof attestation.Proof) (*models.IndicatorUpdateResult, error) {
	payload, err := s.verifier.Verify(ctx, proof)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "proof rejected")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	started := s.now()
	name := domain.Indicator(payload.Indicator)
	observedAt := time.Unix(int64(payload.Timestamp), 0).UTC()

	existing, err := s.indicators.Get(ctx, name)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "indicator lookup failed")
	}
	if existing != nil && observedAt.Before(existing.LastUpdated) {
		// Stale readings are accepted; the registry simply moves backwards.
		s.logger.WarnContext(ctx, "out-of-order indicator update accepted",
			"indicator", name,
			"observed_at", observedAt,
			"last_updated", existing.LastUpdated,
		)
	}

	if err := s.indicators.Upsert(ctx, indicatorModels.Record{
		Name:        name,
		Value:       payload.Value,
		LastUpdated: observedAt,
	}); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record indicator value")
	}

	bound, err := s.policies.ListActiveByIndicator(ctx, name)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to scan bound policies")
	}

	result := &models.IndicatorUpdateResult{
		Indicator: name,
		Value:     payload.Value,
		Timestamp: observedAt,
	}
	for _, policy := range bound {
		if !policy.StrikeMet(payload.Value) {
			continue
		}
		policy.Status = models.StatusClaimable
		if err := s.policies.Update(ctx, policy); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to mark policy claimable")
		}
		result.Triggered = append(result.Triggered, policy.ID)
		s.emit(ctx, event.Event{
			Type:      event.TypePolicyStatusUpdated,
			PolicyID:  policy.ID,
			Status:    models.StatusClaimable.String(),
			Indicator: name,
		})
	}

	s.metrics.IncrementIndicatorUpdate(name.String())
	s.metrics.AddClaimableTransitions(name.String(), len(result.Triggered))
	s.metrics.ObserveUpdateScan(s.now().Sub(started))
	s.logger.InfoContext(ctx, "indicator updated",
		"indicator", name,
		"value", payload.Value,
		"observed_at", observedAt,
		"triggered", len(result.Triggered),
		"request_id", middleware.GetRequestID(ctx),
	)
	return result, nil
}

// GetPolicy returns one policy record.
func (s *Service) GetPolicy(ctx context.Context, id domain.PolicyID) (*models.Policy, error) {
	policy, err := s.policies.Get(ctx, id)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load policy")
	}
	if policy == nil {
		return nil, models.ErrPolicyNotFound
	}
	return policy, nil
}

// ListPolicies returns every policy in creation order.
func (s *Service) ListPolicies(ctx context.Context) ([]*models.Policy, error) {
	return s.policies.List(ctx)
}

// NextPolicyID returns the id the next created policy will receive.
func (s *Service) NextPolicyID(ctx context.Context) (domain.PolicyID, error) {
	return s.policies.NextID(ctx)
}

// ShareBalance returns a holder's share count for a policy.
func (s *Service) ShareBalance(ctx context.Context, id domain.PolicyID, holder domain.AccountID) (uint64, error) {
	if _, err := s.GetPolicy(ctx, id); err != nil {
		return 0, err
	}
	return s.shares.Balance(ctx, id, holder)
}

// HolderPositions lists every non-empty position a holder has.
func (s *Service) HolderPositions(ctx context.Context, holder domain.AccountID) ([]ownership.Position, error) {
	return s.shares.ByHolder(ctx, holder)
}

// IndicatorValue returns the latest verified reading for an indicator.
func (s *Service) IndicatorValue(ctx context.Context, name domain.Indicator) (*indicatorModels.Record, error) {
	record, err := s.indicators.Get(ctx, name)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "indicator lookup failed")
	}
	if record == nil {
		return nil, models.ErrIndicatorNotFound
	}
	return record, nil
}

// ListIndicators returns every indicator the registry has a reading for.
func (s *Service) ListIndicators(ctx context.Context) ([]*indicatorModels.Record, error) {
	return s.indicators.List(ctx)
}

// EscrowReport compares the collateral the token says the engine holds
// against what open policies still require: full coverage for Active
// policies, unsold plus unredeemed coverage for Claimable ones, and
// unredeemed coverage for Expired ones whose holders never settled.
func (s *Service) EscrowReport(ctx context.Context) (*models.EscrowReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	held, err := s.token.BalanceOf(ctx, s.engine)
	if err != nil {
		return nil, wrapTokenErr(err, "escrow balance lookup failed")
	}

	all, err := s.policies.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list policies")
	}

	var required uint64
	for _, policy := range all {
		var backed uint64
		switch policy.Status {
		case models.StatusActive:
			backed = policy.TotalSupply
		case models.StatusClaimable, models.StatusExpired:
			outstanding, err := s.shares.Outstanding(ctx, policy.ID)
			if err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to sum outstanding shares")
			}
			backed = outstanding
			if policy.Status == models.StatusClaimable {
				backed += policy.Remaining()
			}
		}
		amount, err := mulSupply(policy.Coverage, backed)
		if err != nil {
			return nil, err
		}
		required += amount
	}

	return &models.EscrowReport{
		Held:     held,
		Required: required,
		Headroom: int64(held) - int64(required),
	}, nil
}

func (s *Service) getLocked(ctx context.Context, id domain.PolicyID) (*models.Policy, error) {
	policy, err := s.policies.Get(ctx, id)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load policy")
	}
	if policy == nil {
		return nil, models.ErrPolicyNotFound
	}
	return policy, nil
}

func (s *Service) restoreShares(ctx context.Context, id domain.PolicyID, holder domain.AccountID, shares uint64) {
	if err := s.shares.Credit(ctx, id, holder, shares); err != nil {
		s.logger.ErrorContext(ctx, "share restore failed after payout failure",
			"policy_id", id, "holder", holder, "shares", shares, "error", err)
	}
}

// emit is fail-open: a sink failure is logged and never rolls back the
// ledger operation that produced the event.
func (s *Service) emit(ctx context.Context, e event.Event) {
	e.RequestID = middleware.GetRequestID(ctx)
	if err := s.events.Emit(ctx, e); err != nil {
		s.logger.WarnContext(ctx, "event emission failed",
			"type", string(e.Type), "policy_id", e.PolicyID, "error", err)
	}
}

func mulSupply(coverage, shares uint64) (uint64, error) {
	if shares != 0 && coverage > math.MaxUint64/shares {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "coverage amount overflows")
	}
	return coverage * shares, nil
}

func wrapTokenErr(err error, msg string) error {
	if errors.Is(err, token.ErrInsufficientBalance) || errors.Is(err, token.ErrInsufficientAllowance) {
		return dErrors.Wrap(err, dErrors.CodePrecondition, msg)
	}
	return dErrors.Wrap(err, dErrors.CodeDependency, msg)
}
