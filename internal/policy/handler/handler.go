// Package handler exposes the settlement engine over HTTP. Handlers stay
// thin: decode, delegate, translate the outcome.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"indexcover/internal/attestation"
	"indexcover/internal/ownership"
	"indexcover/internal/platform/middleware"
	"indexcover/internal/policy/models"
	"indexcover/pkg/domain"
	dErrors "indexcover/pkg/domain-errors"
	"indexcover/pkg/platform/httputil"
)

// Service defines the engine operations the HTTP surface needs.
type Service interface {
	CreatePolicy(ctx context.Context, provider domain.AccountID, req models.CreatePolicyRequest) (*models.Policy, error)
	BuyPolicy(ctx context.Context, buyer domain.AccountID, id domain.PolicyID) (*models.Policy, error)
	ExpirePolicy(ctx context.Context, id domain.PolicyID) (*models.Policy, error)
	RedeemPolicy(ctx context.Context, holder domain.AccountID, id domain.PolicyID) (uint64, error)
	UpdateData(ctx context.Context, proof attestation.Proof) (*models.IndicatorUpdateResult, error)
	GetPolicy(ctx context.Context, id domain.PolicyID) (*models.Policy, error)
	ListPolicies(ctx context.Context) ([]*models.Policy, error)
	NextPolicyID(ctx context.Context) (domain.PolicyID, error)
	ShareBalance(ctx context.Context, id domain.PolicyID, holder domain.AccountID) (uint64, error)
	HolderPositions(ctx context.Context, holder domain.AccountID) ([]ownership.Position, error)
	EscrowReport(ctx context.Context) (*models.EscrowReport, error)
}

// Handler wires policy endpoints to the settlement engine.
type Handler struct {
	service       Service
	logger        *slog.Logger
	validator     middleware.TokenValidator
	oracleKeyHash string
}

// New constructs a policy handler. oracleKeyHash guards the oracle update
// endpoint; an empty hash leaves it open for local development.
func New(service Service, logger *slog.Logger, validator middleware.TokenValidator, oracleKeyHash string) *Handler {
	return &Handler{
		service:       service,
		logger:        logger,
		validator:     validator,
		oracleKeyHash: oracleKeyHash,
	}
}

// Register mounts policy endpoints on the router. Reads are public; ledger
// mutations require a bearer token and oracle updates require the feed's
// API key.
func (h *Handler) Register(r chi.Router) {
	r.Get("/policies", h.handleList)
	r.Get("/policies/next-id", h.handleNextID)
	r.Get("/policies/{id}", h.handleGet)
	r.Get("/policies/{id}/shares/{holder}", h.handleShareBalance)
	r.Get("/holders/{holder}/policies", h.handlePositions)
	r.Get("/escrow", h.handleEscrow)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.validator, h.logger))
		r.Post("/policies", h.handleCreate)
		r.Post("/policies/{id}/purchase", h.handlePurchase)
		r.Post("/policies/{id}/expire", h.handleExpire)
		r.Post("/policies/{id}/redeem", h.handleRedeem)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAPIKey(h.oracleKeyHash, h.logger))
		r.Post("/oracle/updates", h.handleOracleUpdate)
	})
}

// handleCreate handles POST /policies. The authenticated account becomes
// the policy's provider and the source of the coverage escrow.
func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	provider := middleware.GetAccountID(ctx)

	var req models.CreatePolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	policy, err := h.service.CreatePolicy(ctx, provider, req)
	if err != nil {
		h.logError(ctx, "create policy failed", err, "provider", provider)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, policy)
}

// handlePurchase handles POST /policies/{id}/purchase.
func (h *Handler) handlePurchase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.policyID(w, r)
	if !ok {
		return
	}

	policy, err := h.service.BuyPolicy(ctx, middleware.GetAccountID(ctx), id)
	if err != nil {
		h.logError(ctx, "purchase failed", err, "policy_id", id)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, policy)
}

// handleExpire handles POST /policies/{id}/expire. Any authenticated
// account may trigger an expiry; the refund always goes to the provider.
func (h *Handler) handleExpire(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.policyID(w, r)
	if !ok {
		return
	}

	policy, err := h.service.ExpirePolicy(ctx, id)
	if err != nil {
		h.logError(ctx, "expire failed", err, "policy_id", id)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, policy)
}

// handleRedeem handles POST /policies/{id}/redeem.
func (h *Handler) handleRedeem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.policyID(w, r)
	if !ok {
		return
	}
	holder := middleware.GetAccountID(ctx)

	payout, err := h.service.RedeemPolicy(ctx, holder, id)
	if err != nil {
		h.logError(ctx, "redeem failed", err, "policy_id", id, "holder", holder)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, RedeemResponse{PolicyID: id, Holder: holder, Payout: payout})
}

// handleOracleUpdate handles POST /oracle/updates.
func (h *Handler) handleOracleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var proof attestation.Proof
	if err := json.NewDecoder(r.Body).Decode(&proof); err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid proof body"))
		return
	}

	result, err := h.service.UpdateData(ctx, proof)
	if err != nil {
		h.logError(ctx, "oracle update failed", err, "voting_round", proof.Data.VotingRound)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// handleGet handles GET /policies/{id}.
func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.policyID(w, r)
	if !ok {
		return
	}
	policy, err := h.service.GetPolicy(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, policy)
}

// handleList handles GET /policies.
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	policies, err := h.service.ListPolicies(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if policies == nil {
		policies = []*models.Policy{}
	}
	httputil.WriteJSON(w, http.StatusOK, policies)
}

// handleNextID handles GET /policies/next-id.
func (h *Handler) handleNextID(w http.ResponseWriter, r *http.Request) {
	next, err := h.service.NextPolicyID(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]domain.PolicyID{"next_id": next})
}

// handleShareBalance handles GET /policies/{id}/shares/{holder}.
func (h *Handler) handleShareBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := h.policyID(w, r)
	if !ok {
		return
	}
	holder, err := domain.ParseAccountID(chi.URLParam(r, "holder"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	shares, err := h.service.ShareBalance(r.Context(), id, holder)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ShareBalanceResponse{PolicyID: id, Holder: holder, Shares: shares})
}

// handlePositions handles GET /holders/{holder}/policies.
func (h *Handler) handlePositions(w http.ResponseWriter, r *http.Request) {
	holder, err := domain.ParseAccountID(chi.URLParam(r, "holder"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	positions, err := h.service.HolderPositions(r.Context(), holder)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if positions == nil {
		positions = []ownership.Position{}
	}
	httputil.WriteJSON(w, http.StatusOK, positions)
}

// handleEscrow handles GET /escrow.
func (h *Handler) handleEscrow(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.EscrowReport(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

func (h *Handler) policyID(w http.ResponseWriter, r *http.Request) (domain.PolicyID, bool) {
	id, err := domain.ParsePolicyID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return 0, false
	}
	return id, true
}

// logError keeps failure logs out of the 4xx path; rejected preconditions
// and bad input are expected traffic.
func (h *Handler) logError(ctx context.Context, msg string, err error, args ...any) {
	if dErrors.ToHTTPStatus(dErrors.GetCode(err)) < http.StatusInternalServerError {
		return
	}
	args = append(args, "request_id", middleware.GetRequestID(ctx), "error", err)
	h.logger.ErrorContext(ctx, msg, args...)
}
