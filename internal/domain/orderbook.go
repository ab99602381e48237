package domain

import "time"

// PriceLevel is a single price+size entry in an orderbook.
type PriceLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// OrderBook is the two-sided book of one outcome token. Asks are sorted by
// ascending price and bids by descending price, best level first.
type OrderBook struct {
	TokenID   string       `json:"token_id"`
	Asks      []PriceLevel `json:"asks"`
	Bids      []PriceLevel `json:"bids"`
	FetchedAt time.Time    `json:"fetched_at"`
}

// BestAsk returns the lowest ask and false when the ask side is empty.
func (b OrderBook) BestAsk() (PriceLevel, bool) {
	if len(b.Asks) == 0 {
		return PriceLevel{}, false
	}
	return b.Asks[0], true
}

// BestBid returns the highest bid and false when the bid side is empty.
func (b OrderBook) BestBid() (PriceLevel, bool) {
	if len(b.Bids) == 0 {
		return PriceLevel{}, false
	}
	return b.Bids[0], true
}

// AskDepth sums price*size over the first levels asks.
func (b OrderBook) AskDepth(levels int) float64 {
	var total float64
	for i, lvl := range b.Asks {
		if i >= levels {
			break
		}
		total += lvl.Price * lvl.Size
	}
	return total
}

// BookSnapshot is the observability record written for every detection.
type BookSnapshot struct {
	MarketID   string    `json:"market_id"`
	YesToken   string    `json:"yes_token"`
	NoToken    string    `json:"no_token"`
	YesBestBid float64   `json:"yes_best_bid"`
	YesBestAsk float64   `json:"yes_best_ask"`
	NoBestBid  float64   `json:"no_best_bid"`
	NoBestAsk  float64   `json:"no_best_ask"`
	YesDepth   float64   `json:"yes_depth"`
	NoDepth    float64   `json:"no_depth"`
	Spread     float64   `json:"spread"`
	CapturedAt time.Time `json:"captured_at"`
}
