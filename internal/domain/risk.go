package domain

// Decision is the result of the pre-trade gate. Reason is suitable for direct
// display when Allowed is false.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// Allow is the passing decision.
func Allow() Decision { return Decision{Allowed: true} }

// Deny returns a failing decision with the given reason.
func Deny(reason string) Decision { return Decision{Reason: reason} }

// Balance is the account's spendable collateral as reported by the exchange.
type Balance struct {
	Balance   float64 `json:"balance"`
	Allowance float64 `json:"allowance"`
}

// RiskStatus is a derived snapshot of everything the gate looks at.
type RiskStatus struct {
	Balance          float64  `json:"balance"`
	Allowance        float64  `json:"allowance"`
	OpenPositions    int      `json:"open_positions"`
	MaxOpenPositions int      `json:"max_open_positions"`
	TodayPnL         float64  `json:"today_pnl"`
	DailyLossLimit   float64  `json:"daily_loss_limit"`
	LossHeadroom     float64  `json:"loss_headroom"`
	KillSwitch       bool     `json:"kill_switch"`
	KillSwitchReason string   `json:"kill_switch_reason,omitempty"`
	CanTrade         bool     `json:"can_trade"`
	Reasons          []string `json:"reasons,omitempty"`
}
