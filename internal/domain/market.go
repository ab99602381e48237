package domain

import "time"

// Market is a binary-outcome market as seen by one scan. Markets are produced
// by the market source and never mutated by the trading core.
type Market struct {
	ID        string
	Question  string
	Slug      string
	YesToken  string
	NoToken   string
	ExpiresAt time.Time
	Active    bool
	Closed    bool
	Resolved  bool
	Volume    float64
}

// Tradable reports whether the market can still receive orders.
func (m Market) Tradable() bool {
	return m.Active && !m.Closed && !m.Resolved && m.YesToken != "" && m.NoToken != ""
}

// Resolution is the outcome of a market once the exchange has closed it.
type Resolution struct {
	MarketID string
	Closed   bool
	Outcome  string // "yes", "no" or "" while unresolved
}

// Resolved reports whether a winning outcome has been published.
func (r Resolution) Resolved() bool {
	return r.Closed && r.Outcome != ""
}
