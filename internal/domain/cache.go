package domain

import (
	"context"
	"time"
)

// OrderbookCache keeps recently fetched books for a bounded freshness window.
type OrderbookCache interface {
	SetBook(ctx context.Context, book OrderBook, ttl time.Duration) error
	GetBook(ctx context.Context, tokenID string) (OrderBook, error)
}

// MarketCache keeps the last candidate market list per currency filter.
type MarketCache interface {
	SetCandidates(ctx context.Context, key string, markets []Market, ttl time.Duration) error
	GetCandidates(ctx context.Context, key string) ([]Market, error)
}

// BalanceCache keeps the last known account balance.
type BalanceCache interface {
	SetBalance(ctx context.Context, accountID string, b Balance) error
	GetBalance(ctx context.Context, accountID string) (Balance, time.Time, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// SnapshotRecorder stores detection-time book snapshots for later analysis.
type SnapshotRecorder interface {
	RecordSnapshot(ctx context.Context, snap BookSnapshot) error
}
