package domain

import "time"

// TradeStatus is the lifecycle state of a two-leg trade.
type TradeStatus string

const (
	TradePending   TradeStatus = "pending"
	TradePlaced    TradeStatus = "placed"
	TradePartial   TradeStatus = "partial"
	TradeFilled    TradeStatus = "filled"
	TradeCancelled TradeStatus = "cancelled"
	TradeFailed    TradeStatus = "failed"
	TradeSettled   TradeStatus = "settled"
)

// OpenTradeStatuses are the statuses counted against max open positions.
var OpenTradeStatuses = []TradeStatus{TradePending, TradePlaced, TradePartial}

// Terminal reports whether no further transition is allowed.
func (s TradeStatus) Terminal() bool {
	switch s {
	case TradeSettled, TradeCancelled, TradeFailed:
		return true
	}
	return false
}

// Open reports whether the trade still consumes a position slot.
func (s TradeStatus) Open() bool {
	for _, o := range OpenTradeStatuses {
		if s == o {
			return true
		}
	}
	return false
}

// Trade records one attempted arbitrage: both legs, their exchange order ids
// and the eventual settlement.
type Trade struct {
	ID               string      `json:"id"`
	AccountID        string      `json:"account_id"`
	OpportunityID    string      `json:"opportunity_id"`
	MarketID         string      `json:"market_id"`
	YesToken         string      `json:"yes_token"`
	NoToken          string      `json:"no_token"`
	YesPrice         float64     `json:"yes_price"`
	NoPrice          float64     `json:"no_price"`
	TotalCost        float64     `json:"total_cost"`
	PositionSize     float64     `json:"position_size"`
	Shares           float64     `json:"shares"`
	ExpectedProfit   float64     `json:"expected_profit"`
	YesOrderID       *string     `json:"yes_order_id,omitempty"`
	NoOrderID        *string     `json:"no_order_id,omitempty"`
	Status           TradeStatus `json:"status"`
	SettlementResult *string     `json:"settlement_result,omitempty"`
	ActualProfit     *float64    `json:"actual_profit,omitempty"`
	Error            string      `json:"error,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
	SettledAt        *time.Time  `json:"settled_at,omitempty"`
}

// LegOrderIDs returns the non-empty leg order ids, YES first.
func (t Trade) LegOrderIDs() []string {
	var ids []string
	if t.YesOrderID != nil && *t.YesOrderID != "" {
		ids = append(ids, *t.YesOrderID)
	}
	if t.NoOrderID != nil && *t.NoOrderID != "" {
		ids = append(ids, *t.NoOrderID)
	}
	return ids
}

// LegStatus is the exchange-side state of a single leg order.
type LegStatus string

const (
	LegOpen      LegStatus = "open"
	LegMatched   LegStatus = "matched"
	LegCancelled LegStatus = "cancelled"
	LegUnknown   LegStatus = "unknown"
)
