// Package handler exposes the indicator registry over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"indexcover/internal/indicator/models"
	"indexcover/pkg/domain"
	dErrors "indexcover/pkg/domain-errors"
	"indexcover/pkg/platform/httputil"
)

// Service defines the registry reads the HTTP surface needs. Writes go
// through the settlement engine's oracle pipeline, never through here.
type Service interface {
	IndicatorValue(ctx context.Context, name domain.Indicator) (*models.Record, error)
	ListIndicators(ctx context.Context) ([]*models.Record, error)
}

// Handler wires indicator read endpoints to the registry.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts indicator endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/indicators", h.handleList)
	r.Get("/indicators/{name}", h.handleGet)
}

// handleGet handles GET /indicators/{name}.
func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "indicator name cannot be empty"))
		return
	}

	record, err := h.service.IndicatorValue(r.Context(), domain.Indicator(name))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, record)
}

// handleList handles GET /indicators.
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.ListIndicators(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if records == nil {
		records = []*models.Record{}
	}
	httputil.WriteJSON(w, http.StatusOK, records)
}
