package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alanyoungcy/pairarb/internal/domain"
	"github.com/redis/go-redis/v9"
)

// MarketCache implements domain.MarketCache. Each candidate list is one
// JSON string with its own TTL.
//
// Key schema:
//
//	markets:candidates:{key} - JSON array of markets
type MarketCache struct {
	c *Client
}

// NewMarketCache creates a MarketCache backed by c.
func NewMarketCache(c *Client) *MarketCache {
	return &MarketCache{c: c}
}

func (mc *MarketCache) candidatesKey(key string) string {
	return mc.c.Key("markets:candidates:" + key)
}

// SetCandidates stores a candidate list for ttl.
func (mc *MarketCache) SetCandidates(ctx context.Context, key string, markets []domain.Market, ttl time.Duration) error {
	data, err := json.Marshal(markets)
	if err != nil {
		return fmt.Errorf("redis: marshal candidates %s: %w", key, err)
	}
	if err := mc.c.rdb.Set(ctx, mc.candidatesKey(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set candidates %s: %w", key, err)
	}
	return nil
}

// GetCandidates returns a cached list or domain.ErrNotFound.
func (mc *MarketCache) GetCandidates(ctx context.Context, key string) ([]domain.Market, error) {
	data, err := mc.c.rdb.Get(ctx, mc.candidatesKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("redis: get candidates %s: %w", key, err)
	}
	var markets []domain.Market
	if err := json.Unmarshal(data, &markets); err != nil {
		return nil, fmt.Errorf("redis: unmarshal candidates %s: %w", key, err)
	}
	return markets, nil
}

var _ domain.MarketCache = (*MarketCache)(nil)
