package domain

import "time"

// Settings is the mutable per-account trading configuration. Every decision
// reads a fresh copy; writes only affect later decisions.
type Settings struct {
	AccountID        string        `json:"account_id"`
	PositionSize     float64       `json:"position_size"`
	ProfitThreshold  float64       `json:"profit_threshold"`
	DailyLossLimit   float64       `json:"daily_loss_limit"`
	MaxOpenPositions int           `json:"max_open_positions"`
	AutoMode         bool          `json:"auto_mode"`
	KillSwitch       bool          `json:"kill_switch"`
	KillSwitchReason string        `json:"kill_switch_reason,omitempty"`
	ActiveCurrencies []string      `json:"active_currencies"`
	ScanInterval     time.Duration `json:"scan_interval"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// SettingsPatch carries a partial settings update. Nil fields are left as is.
// The kill switch is not patchable here; it only moves through the risk
// service.
type SettingsPatch struct {
	PositionSize     *float64       `json:"position_size,omitempty"`
	ProfitThreshold  *float64       `json:"profit_threshold,omitempty"`
	DailyLossLimit   *float64       `json:"daily_loss_limit,omitempty"`
	MaxOpenPositions *int           `json:"max_open_positions,omitempty"`
	AutoMode         *bool          `json:"auto_mode,omitempty"`
	ActiveCurrencies []string       `json:"active_currencies,omitempty"`
	ScanInterval     *time.Duration `json:"scan_interval,omitempty"`
}

// Apply returns a copy of s with the patch applied.
func (p SettingsPatch) Apply(s Settings) Settings {
	if p.PositionSize != nil {
		s.PositionSize = *p.PositionSize
	}
	if p.ProfitThreshold != nil {
		s.ProfitThreshold = *p.ProfitThreshold
	}
	if p.DailyLossLimit != nil {
		s.DailyLossLimit = *p.DailyLossLimit
	}
	if p.MaxOpenPositions != nil {
		s.MaxOpenPositions = *p.MaxOpenPositions
	}
	if p.AutoMode != nil {
		s.AutoMode = *p.AutoMode
	}
	if p.ActiveCurrencies != nil {
		s.ActiveCurrencies = append([]string(nil), p.ActiveCurrencies...)
	}
	if p.ScanInterval != nil {
		s.ScanInterval = *p.ScanInterval
	}
	return s
}
