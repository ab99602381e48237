package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/pairarb/internal/domain"
	"github.com/alanyoungcy/pairarb/internal/executor"
)

// OpportunityActions are the human decisions on queued opportunities.
type OpportunityActions interface {
	Approve(ctx context.Context, oppID string) (executor.Result, error)
	Reject(ctx context.Context, oppID string) (domain.Opportunity, error)
}

// OpportunityHandler serves opportunity listing and approval.
type OpportunityHandler struct {
	accountID string
	store     domain.OpportunityStore
	actions   OpportunityActions
	logger    *slog.Logger
}

// NewOpportunityHandler creates an OpportunityHandler for accountID.
func NewOpportunityHandler(accountID string, store domain.OpportunityStore, actions OpportunityActions, logger *slog.Logger) *OpportunityHandler {
	return &OpportunityHandler{accountID: accountID, store: store, actions: actions, logger: logger}
}

// List returns opportunities, newest first, optionally filtered by status.
// GET /api/opportunities?status=pending&limit=50&offset=0
func (h *OpportunityHandler) List(w http.ResponseWriter, r *http.Request) {
	status := domain.OpportunityStatus(r.URL.Query().Get("status"))
	opps, err := h.store.ListByStatus(r.Context(), h.accountID, status, parseListOpts(r))
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to list opportunities", err)
		return
	}
	if opps == nil {
		opps = []domain.Opportunity{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"opportunities": opps})
}

// Approve executes a queued opportunity after a fresh risk check.
// POST /api/opportunities/{id}/approve
func (h *OpportunityHandler) Approve(w http.ResponseWriter, r *http.Request) {
	res, err := h.actions.Approve(r.Context(), r.PathValue("id"))
	if err != nil {
		if res.Trade.ID != "" {
			// The trade exists but a leg failed; report it with the error.
			writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error(), "trade": res.Trade})
			return
		}
		writeServiceError(w, r, h.logger, "failed to approve opportunity", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"trade": res.Trade})
}

// Reject discards a queued opportunity.
// POST /api/opportunities/{id}/reject
func (h *OpportunityHandler) Reject(w http.ResponseWriter, r *http.Request) {
	opp, err := h.actions.Reject(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to reject opportunity", err)
		return
	}
	writeJSON(w, http.StatusOK, opp)
}
