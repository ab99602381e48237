package domain

import "time"

// DailyPnL aggregates settled trades for one UTC calendar day.
type DailyPnL struct {
	AccountID   string    `json:"account_id"`
	Date        time.Time `json:"date"`
	TradeCount  int       `json:"trade_count"`
	WinCount    int       `json:"win_count"`
	RealizedPnL float64   `json:"realized_pnl"`
}

// Day truncates t to its UTC calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
