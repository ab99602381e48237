package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/pairarb/internal/domain"
)

// SettingsService reads and patches the account settings.
type SettingsService interface {
	Get(ctx context.Context) (domain.Settings, error)
	Update(ctx context.Context, patch domain.SettingsPatch) (domain.Settings, error)
}

// SettingsHandler serves the settings endpoints.
type SettingsHandler struct {
	settings SettingsService
	logger   *slog.Logger
}

// NewSettingsHandler creates a SettingsHandler.
func NewSettingsHandler(settings SettingsService, logger *slog.Logger) *SettingsHandler {
	return &SettingsHandler{settings: settings, logger: logger}
}

// settingsView is the wire form of the settings, with the scan interval in
// milliseconds.
type settingsView struct {
	PositionSize     float64   `json:"position_size"`
	ProfitThreshold  float64   `json:"profit_threshold"`
	DailyLossLimit   float64   `json:"daily_loss_limit"`
	MaxOpenPositions int       `json:"max_open_positions"`
	AutoMode         bool      `json:"auto_mode"`
	KillSwitch       bool      `json:"kill_switch"`
	KillSwitchReason string    `json:"kill_switch_reason,omitempty"`
	ActiveCurrencies []string  `json:"active_currencies"`
	ScanIntervalMS   int64     `json:"scan_interval_ms"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func toSettingsView(st domain.Settings) settingsView {
	cur := st.ActiveCurrencies
	if cur == nil {
		cur = []string{}
	}
	return settingsView{
		PositionSize:     st.PositionSize,
		ProfitThreshold:  st.ProfitThreshold,
		DailyLossLimit:   st.DailyLossLimit,
		MaxOpenPositions: st.MaxOpenPositions,
		AutoMode:         st.AutoMode,
		KillSwitch:       st.KillSwitch,
		KillSwitchReason: st.KillSwitchReason,
		ActiveCurrencies: cur,
		ScanIntervalMS:   st.ScanInterval.Milliseconds(),
		UpdatedAt:        st.UpdatedAt,
	}
}

// settingsPatchRequest is the PUT body. Absent fields stay unchanged.
type settingsPatchRequest struct {
	PositionSize     *float64 `json:"position_size"`
	ProfitThreshold  *float64 `json:"profit_threshold"`
	DailyLossLimit   *float64 `json:"daily_loss_limit"`
	MaxOpenPositions *int     `json:"max_open_positions"`
	AutoMode         *bool    `json:"auto_mode"`
	ActiveCurrencies []string `json:"active_currencies"`
	ScanIntervalMS   *int64   `json:"scan_interval_ms"`
}

func (p settingsPatchRequest) toPatch() domain.SettingsPatch {
	patch := domain.SettingsPatch{
		PositionSize:     p.PositionSize,
		ProfitThreshold:  p.ProfitThreshold,
		DailyLossLimit:   p.DailyLossLimit,
		MaxOpenPositions: p.MaxOpenPositions,
		AutoMode:         p.AutoMode,
		ActiveCurrencies: p.ActiveCurrencies,
	}
	if p.ScanIntervalMS != nil {
		d := time.Duration(*p.ScanIntervalMS) * time.Millisecond
		patch.ScanInterval = &d
	}
	return patch
}

// Get returns the current settings.
// GET /api/settings
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	st, err := h.settings.Get(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to read settings", err)
		return
	}
	writeJSON(w, http.StatusOK, toSettingsView(st))
}

// Update applies a partial settings update.
// PUT /api/settings
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req settingsPatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	st, err := h.settings.Update(r.Context(), req.toPatch())
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to update settings", err)
		return
	}
	writeJSON(w, http.StatusOK, toSettingsView(st))
}
