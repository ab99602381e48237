package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/alanyoungcy/pairarb/internal/domain"
	"github.com/redis/go-redis/v9"
)

// OrderbookCache implements domain.OrderbookCache with one sorted set and
// one size hash per side, all sharing the snapshot's TTL.
//
// Key schema:
//
//	book:{tokenID}:bids     - sorted set of bid prices (score = price)
//	book:{tokenID}:asks     - sorted set of ask prices (score = price)
//	book:{tokenID}:bid:size - hash price -> size
//	book:{tokenID}:ask:size - hash price -> size
//	book:{tokenID}:meta     - hash with "ts" (fetch time, unix nanos)
type OrderbookCache struct {
	c *Client
}

// NewOrderbookCache creates an OrderbookCache backed by c.
func NewOrderbookCache(c *Client) *OrderbookCache {
	return &OrderbookCache{c: c}
}

type bookKeys struct {
	bids, asks, bidSize, askSize, meta string
}

func (oc *OrderbookCache) keys(tokenID string) bookKeys {
	base := oc.c.Key("book:" + tokenID)
	return bookKeys{
		bids:    base + ":bids",
		asks:    base + ":asks",
		bidSize: base + ":bid:size",
		askSize: base + ":ask:size",
		meta:    base + ":meta",
	}
}

// SetBook atomically replaces the token's book and expires it after ttl.
func (oc *OrderbookCache) SetBook(ctx context.Context, book domain.OrderBook, ttl time.Duration) error {
	k := oc.keys(book.TokenID)
	pipe := oc.c.rdb.TxPipeline()
	pipe.Del(ctx, k.bids, k.asks, k.bidSize, k.askSize, k.meta)

	addSide := func(zKey, hKey string, levels []domain.PriceLevel) {
		for _, lvl := range levels {
			p := strconv.FormatFloat(lvl.Price, 'f', -1, 64)
			pipe.ZAdd(ctx, zKey, redis.Z{Score: lvl.Price, Member: p})
			pipe.HSet(ctx, hKey, p, strconv.FormatFloat(lvl.Size, 'f', -1, 64))
		}
	}
	addSide(k.bids, k.bidSize, book.Bids)
	addSide(k.asks, k.askSize, book.Asks)

	ts := book.FetchedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	pipe.HSet(ctx, k.meta, "ts", strconv.FormatInt(ts.UnixNano(), 10))
	for _, key := range []string{k.bids, k.asks, k.bidSize, k.askSize, k.meta} {
		pipe.PExpire(ctx, key, ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set book %s: %w", book.TokenID, err)
	}
	return nil
}

// GetBook rebuilds a cached book, asks ascending and bids descending. It
// returns domain.ErrNotFound once the snapshot has expired.
func (oc *OrderbookCache) GetBook(ctx context.Context, tokenID string) (domain.OrderBook, error) {
	k := oc.keys(tokenID)
	pipe := oc.c.rdb.Pipeline()
	bidsCmd := pipe.ZRevRangeWithScores(ctx, k.bids, 0, -1)
	asksCmd := pipe.ZRangeWithScores(ctx, k.asks, 0, -1)
	bidSizeCmd := pipe.HGetAll(ctx, k.bidSize)
	askSizeCmd := pipe.HGetAll(ctx, k.askSize)
	metaCmd := pipe.HGetAll(ctx, k.meta)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return domain.OrderBook{}, fmt.Errorf("redis: get book %s: %w", tokenID, err)
	}

	meta, _ := metaCmd.Result()
	tsStr, ok := meta["ts"]
	if !ok {
		return domain.OrderBook{}, domain.ErrNotFound
	}
	book := domain.OrderBook{TokenID: tokenID}
	if ns, err := strconv.ParseInt(tsStr, 10, 64); err == nil {
		book.FetchedAt = time.Unix(0, ns).UTC()
	}

	bidSizes, _ := bidSizeCmd.Result()
	bids, _ := bidsCmd.Result()
	book.Bids = levels(bids, bidSizes)
	askSizes, _ := askSizeCmd.Result()
	asks, _ := asksCmd.Result()
	book.Asks = levels(asks, askSizes)
	return book, nil
}

func levels(zs []redis.Z, sizes map[string]string) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(zs))
	for _, z := range zs {
		p, ok := z.Member.(string)
		if !ok {
			continue
		}
		size, _ := strconv.ParseFloat(sizes[p], 64)
		out = append(out, domain.PriceLevel{Price: z.Score, Size: size})
	}
	return out
}

var _ domain.OrderbookCache = (*OrderbookCache)(nil)
