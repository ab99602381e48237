package domain

import "time"

// OpportunityStatus tracks an opportunity through detection and approval.
type OpportunityStatus string

const (
	OpportunityPending  OpportunityStatus = "pending"
	OpportunityApproved OpportunityStatus = "approved"
	OpportunityRejected OpportunityStatus = "rejected"
	OpportunityExpired  OpportunityStatus = "expired"
	OpportunityFailed   OpportunityStatus = "failed"
)

// Final reports whether the status can no longer change.
func (s OpportunityStatus) Final() bool {
	switch s {
	case OpportunityApproved, OpportunityRejected, OpportunityExpired:
		return true
	}
	return false
}

// Opportunity is a priced YES/NO pair whose combined ask is below one dollar.
type Opportunity struct {
	ID             string            `json:"id"`
	AccountID      string            `json:"account_id"`
	MarketID       string            `json:"market_id"`
	Question       string            `json:"question"`
	YesToken       string            `json:"yes_token"`
	NoToken        string            `json:"no_token"`
	YesPrice       float64           `json:"yes_price"`
	NoPrice        float64           `json:"no_price"`
	TotalCost      float64           `json:"total_cost"`
	Spread         float64           `json:"spread"`
	ExpectedProfit float64           `json:"expected_profit"`
	YesLiquidity   float64           `json:"yes_liquidity"`
	NoLiquidity    float64           `json:"no_liquidity"`
	Status         OpportunityStatus `json:"status"`
	ExpiresAt      time.Time         `json:"expires_at"`
	DetectedAt     time.Time         `json:"detected_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// Expired reports whether the opportunity's approval window has passed.
func (o Opportunity) Expired(now time.Time) bool {
	return !o.ExpiresAt.IsZero() && now.After(o.ExpiresAt)
}
