package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/pairarb/internal/domain"
	"github.com/alanyoungcy/pairarb/internal/service"
)

// RiskStatusReader reports the account's risk standing.
type RiskStatusReader interface {
	Status(ctx context.Context) (domain.RiskStatus, error)
}

// KillSwitchControl flips the kill switch. The orchestrator implements it
// so every change is serialized with trading on the account.
type KillSwitchControl interface {
	ActivateKillSwitch(ctx context.Context, reason string) error
	DeactivateKillSwitch(ctx context.Context) error
	ToggleKillSwitch(ctx context.Context) (service.KillSwitchState, error)
}

// RiskHandler serves the risk status and the kill switch.
type RiskHandler struct {
	risk   RiskStatusReader
	ks     KillSwitchControl
	logger *slog.Logger
}

// NewRiskHandler creates a RiskHandler.
func NewRiskHandler(risk RiskStatusReader, ks KillSwitchControl, logger *slog.Logger) *RiskHandler {
	return &RiskHandler{risk: risk, ks: ks, logger: logger}
}

// Status returns the current risk snapshot.
// GET /api/risk
func (h *RiskHandler) Status(w http.ResponseWriter, r *http.Request) {
	st, err := h.risk.Status(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to read risk status", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type activateRequest struct {
	Reason string `json:"reason"`
}

// Activate turns the kill switch on.
// POST /api/kill-switch/activate {"reason": "..."}
func (h *RiskHandler) Activate(w http.ResponseWriter, r *http.Request) {
	var req activateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "manual"
	}
	if err := h.ks.ActivateKillSwitch(r.Context(), reason); err != nil {
		writeServiceError(w, r, h.logger, "failed to activate kill switch", err)
		return
	}
	h.writeState(w, r)
}

// Deactivate turns the kill switch off.
// POST /api/kill-switch/deactivate
func (h *RiskHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	if err := h.ks.DeactivateKillSwitch(r.Context()); err != nil {
		writeServiceError(w, r, h.logger, "failed to deactivate kill switch", err)
		return
	}
	h.writeState(w, r)
}

// Toggle flips the kill switch.
// POST /api/kill-switch/toggle
func (h *RiskHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	st, err := h.ks.ToggleKillSwitch(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to toggle kill switch", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"kill_switch": st.Halted, "reason": st.Reason})
}

func (h *RiskHandler) writeState(w http.ResponseWriter, r *http.Request) {
	st, err := h.risk.Status(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to read risk status", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"kill_switch": st.KillSwitch, "reason": st.KillSwitchReason})
}
