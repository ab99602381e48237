package domain

import "context"

// MarketSource lists active binary markets matching the configured
// currencies.
type MarketSource interface {
	FetchCandidateMarkets(ctx context.Context, currencies []string) ([]Market, error)
}

// BookSource returns the order book of one outcome token. An unknown token
// yields an empty book, not an error.
type BookSource interface {
	GetOrderBook(ctx context.Context, tokenID string) (OrderBook, error)
}

// BalanceSource reports the account's collateral balance.
type BalanceSource interface {
	GetBalance(ctx context.Context) (Balance, error)
}

// OrderGateway places and manages leg orders on the exchange. Cancellation
// calls are best-effort and report success as a bool.
//
// PlaceOrder may return a non-empty id together with an error when the
// order could have reached the exchange (timeout, lost response). Callers
// rolling back must still cancel that id.
type OrderGateway interface {
	PlaceOrder(ctx context.Context, req LegOrder) (string, error)
	CancelOrder(ctx context.Context, orderID string) bool
	CancelAllOrders(ctx context.Context) bool
	GetOrderStatus(ctx context.Context, orderID string) (LegStatus, error)
}

// ResolutionSource reports how a market resolved.
type ResolutionSource interface {
	GetResolution(ctx context.Context, marketID string) (Resolution, error)
}

// Exchange bundles everything the trading core consumes from the venue.
type Exchange interface {
	MarketSource
	BookSource
	BalanceSource
	OrderGateway
}

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// LegOrder is a single limit order request for one side of a trade.
type LegOrder struct {
	TokenID string
	Price   float64
	Size    float64
	Side    OrderSide
}
