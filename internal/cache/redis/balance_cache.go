package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/alanyoungcy/pairarb/internal/domain"
)

// BalanceCache implements domain.BalanceCache. The last known balance of
// each account is a hash at "balance:{accountID}" with fields "balance",
// "allowance" and "ts" (unix nanos). It never expires; readers judge age
// from ts.
type BalanceCache struct {
	c *Client
}

// NewBalanceCache creates a BalanceCache backed by c.
func NewBalanceCache(c *Client) *BalanceCache {
	return &BalanceCache{c: c}
}

func (bc *BalanceCache) key(accountID string) string {
	return bc.c.Key("balance:" + accountID)
}

// SetBalance records b as the account's latest balance.
func (bc *BalanceCache) SetBalance(ctx context.Context, accountID string, b domain.Balance) error {
	fields := map[string]interface{}{
		"balance":   strconv.FormatFloat(b.Balance, 'f', -1, 64),
		"allowance": strconv.FormatFloat(b.Allowance, 'f', -1, 64),
		"ts":        strconv.FormatInt(time.Now().UnixNano(), 10),
	}
	if err := bc.c.rdb.HSet(ctx, bc.key(accountID), fields).Err(); err != nil {
		return fmt.Errorf("redis: set balance %s: %w", accountID, err)
	}
	return nil
}

// GetBalance returns the last known balance and when it was recorded.
func (bc *BalanceCache) GetBalance(ctx context.Context, accountID string) (domain.Balance, time.Time, error) {
	vals, err := bc.c.rdb.HGetAll(ctx, bc.key(accountID)).Result()
	if err != nil {
		return domain.Balance{}, time.Time{}, fmt.Errorf("redis: get balance %s: %w", accountID, err)
	}
	if len(vals) == 0 {
		return domain.Balance{}, time.Time{}, domain.ErrNotFound
	}

	var b domain.Balance
	if b.Balance, err = strconv.ParseFloat(vals["balance"], 64); err != nil {
		return domain.Balance{}, time.Time{}, fmt.Errorf("redis: parse balance %s: %w", accountID, err)
	}
	b.Allowance, _ = strconv.ParseFloat(vals["allowance"], 64)
	ns, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return domain.Balance{}, time.Time{}, fmt.Errorf("redis: parse balance ts %s: %w", accountID, err)
	}
	return b, time.Unix(0, ns), nil
}

var _ domain.BalanceCache = (*BalanceCache)(nil)
