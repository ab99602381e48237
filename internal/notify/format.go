package notify

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/alanyoungcy/pairarb/internal/domain"
)

// Format renders ev as a chat title and message.
func Format(ev domain.Event) (title, message string) {
	switch p := ev.Payload.(type) {
	case domain.Opportunity:
		return "New opportunity", fmt.Sprintf("%s\nYES %.4f + NO %.4f = %.4f (spread %.2f%%, expected $%.2f)",
			orDefault(p.Question, p.MarketID), p.YesPrice, p.NoPrice, p.TotalCost, p.Spread*100, p.ExpectedProfit)
	case domain.Trade:
		return "Trade " + string(p.Status), fmt.Sprintf("market %s: %.2f shares, cost $%.2f, expected $%.2f",
			p.MarketID, p.Shares, p.PositionSize, p.ExpectedProfit)
	case domain.Alert:
		return fmt.Sprintf("[%s] %s", strings.ToUpper(string(p.Severity)), p.Title), p.Message
	case domain.Balance:
		return "Balance", fmt.Sprintf("$%.2f (allowance $%.2f)", p.Balance, p.Allowance)
	}

	switch ev.Name {
	case domain.EventKillSwitchActivated:
		return "Kill switch activated", field(ev.Payload, "reason")
	case domain.EventKillSwitchDeactivated:
		return "Kill switch deactivated", "trading resumed"
	case domain.EventTradeSettled:
		return "Trade settled", fmt.Sprintf("market %s resolved %s, profit $%s",
			field(ev.Payload, "market_id"), field(ev.Payload, "result"), field(ev.Payload, "actual_profit"))
	case domain.EventTradeCancelled:
		return "Trade cancelled", "trade " + field(ev.Payload, "trade.id") + " cancelled"
	}
	if ev.Payload == nil {
		return string(ev.Name), ""
	}
	data, err := json.Marshal(ev.Payload)
	if err != nil {
		return string(ev.Name), fmt.Sprint(ev.Payload)
	}
	return string(ev.Name), string(data)
}

// field reads a dotted path out of payload through its JSON form.
func field(payload any, path string) string {
	data, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return ""
	}
	for _, k := range strings.Split(path, ".") {
		m, ok := v.(map[string]any)
		if !ok {
			return ""
		}
		v = m[k]
	}
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return fmt.Sprintf("%.2f", x)
	default:
		return fmt.Sprint(x)
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
