package arbitrage

import "github.com/shopspring/decimal"

// Pair pricing. The formulas are kept in one place so the detector, the
// gate, the executor and settlement all compute the same figures from the
// same inputs.

// priceScale is the number of decimal places prices and spreads are
// rounded to. It sits far above the venue's tick size and far below
// float64 noise.
const priceScale = 6

var one = decimal.NewFromInt(1)

func dec(f float64) decimal.Decimal { return decimal.NewFromFloat(f).Round(priceScale) }

func float(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// TotalCost is the price of acquiring one share of each outcome.
func TotalCost(yesPrice, noPrice float64) float64 {
	return float(dec(yesPrice).Add(dec(noPrice)))
}

// Spread is the guaranteed margin per share pair held to resolution.
func Spread(totalCost float64) float64 {
	return float(one.Sub(dec(totalCost)))
}

// MeetsThreshold reports whether spread reaches threshold. Both sides are
// compared in decimal so a spread equal to the threshold on cent ticks
// qualifies.
func MeetsThreshold(spread, threshold float64) bool {
	return dec(spread).GreaterThanOrEqual(dec(threshold))
}

// Shares is how many share pairs positionSize dollars buys at totalCost.
func Shares(positionSize, totalCost float64) float64 {
	if totalCost <= 0 {
		return 0
	}
	return positionSize / totalCost
}

// ExpectedProfit is the profit of deploying positionSize dollars at
// totalCost and holding both legs to resolution.
func ExpectedProfit(positionSize, totalCost float64) float64 {
	if totalCost <= 0 {
		return 0
	}
	return (positionSize / totalCost) * Spread(totalCost)
}

// SettlementProfit is the realized profit of shares pairs bought at
// totalCost once the market resolves.
func SettlementProfit(shares, totalCost float64) float64 {
	return shares * Spread(totalCost)
}
