package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/pairarb/internal/domain"
)

// TradeActions mutate trades under the account lock.
type TradeActions interface {
	CancelTrade(ctx context.Context, tradeID string) (domain.Trade, error)
	ReconcileTrade(ctx context.Context, tradeID string) (domain.Trade, error)
	SettleTrade(ctx context.Context, tradeID, result string) (domain.Trade, error)
}

// TradeHandler serves the trade endpoints.
type TradeHandler struct {
	accountID string
	store     domain.TradeStore
	actions   TradeActions
	logger    *slog.Logger
}

// NewTradeHandler creates a TradeHandler for accountID.
func NewTradeHandler(accountID string, store domain.TradeStore, actions TradeActions, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{accountID: accountID, store: store, actions: actions, logger: logger}
}

// List returns trades, newest first. status may repeat or be comma
// separated.
// GET /api/trades?status=placed,partial&limit=50
func (h *TradeHandler) List(w http.ResponseWriter, r *http.Request) {
	var statuses []domain.TradeStatus
	for _, v := range r.URL.Query()["status"] {
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				statuses = append(statuses, domain.TradeStatus(s))
			}
		}
	}
	trades, err := h.store.ListByStatus(r.Context(), h.accountID, statuses, parseListOpts(r))
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to list trades", err)
		return
	}
	if trades == nil {
		trades = []domain.Trade{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"trades": trades})
}

// Get returns one trade.
// GET /api/trades/{id}
func (h *TradeHandler) Get(w http.ResponseWriter, r *http.Request) {
	t, err := h.store.GetByID(r.Context(), h.accountID, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to get trade", err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// Cancel cancels both legs of a trade.
// POST /api/trades/{id}/cancel
func (h *TradeHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	t, err := h.actions.CancelTrade(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to cancel trade", err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// Reconcile refreshes a trade's status from its legs.
// POST /api/trades/{id}/reconcile
func (h *TradeHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	t, err := h.actions.ReconcileTrade(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to reconcile trade", err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type settleRequest struct {
	Result string `json:"result"`
}

// Settle records the market result of a trade.
// POST /api/trades/{id}/settle {"result": "yes"|"no"}
func (h *TradeHandler) Settle(w http.ResponseWriter, r *http.Request) {
	var req settleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result := strings.ToLower(strings.TrimSpace(req.Result))
	if result != "yes" && result != "no" {
		writeError(w, http.StatusBadRequest, `result must be "yes" or "no"`)
		return
	}
	t, err := h.actions.SettleTrade(r.Context(), r.PathValue("id"), result)
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to settle trade", err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}
