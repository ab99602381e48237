package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/pairarb/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a new TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

const tradeSelectCols = `id, account_id, COALESCE(opportunity_id, ''), market_id,
	yes_token, no_token, yes_price, no_price, total_cost, position_size, shares,
	expected_profit, yes_order_id, no_order_id, status, settlement_result,
	actual_profit, error, created_at, updated_at, settled_at`

func scanTrade(row pgx.Row) (domain.Trade, error) {
	var t domain.Trade
	err := row.Scan(
		&t.ID, &t.AccountID, &t.OpportunityID, &t.MarketID,
		&t.YesToken, &t.NoToken, &t.YesPrice, &t.NoPrice, &t.TotalCost, &t.PositionSize, &t.Shares,
		&t.ExpectedProfit, &t.YesOrderID, &t.NoOrderID, &t.Status, &t.SettlementResult,
		&t.ActualProfit, &t.Error, &t.CreatedAt, &t.UpdatedAt, &t.SettledAt,
	)
	return t, err
}

func scanTradeRows(rows pgx.Rows) ([]domain.Trade, error) {
	defer rows.Close()
	var trades []domain.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func statusStrings(statuses []domain.TradeStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// Create inserts a new trade. Each opportunity may back at most one trade.
func (s *TradeStore) Create(ctx context.Context, t domain.Trade) error {
	const query = `
		INSERT INTO trades (
			id, account_id, opportunity_id, market_id,
			yes_token, no_token, yes_price, no_price, total_cost, position_size, shares,
			expected_profit, yes_order_id, no_order_id, status, error, created_at, updated_at
		) VALUES (
			$1, $2, NULLIF($3, ''), $4,
			$5, $6, $7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16, $17, $17
		)`

	created := t.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, query,
		t.ID, t.AccountID, t.OpportunityID, t.MarketID,
		t.YesToken, t.NoToken, t.YesPrice, t.NoPrice, t.TotalCost, t.PositionSize, t.Shares,
		t.ExpectedProfit, t.YesOrderID, t.NoOrderID, string(t.Status), t.Error, created,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("postgres: create trade %s: %w", t.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("postgres: create trade %s: %w", t.ID, err)
	}
	return nil
}

// GetByID returns one trade or domain.ErrNotFound.
func (s *TradeStore) GetByID(ctx context.Context, accountID, id string) (domain.Trade, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM trades WHERE account_id = $1 AND id = $2`
	t, err := scanTrade(s.pool.QueryRow(ctx, query, accountID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Trade{}, fmt.Errorf("postgres: trade %s: %w", id, domain.ErrNotFound)
		}
		return domain.Trade{}, fmt.Errorf("postgres: get trade %s: %w", id, err)
	}
	return t, nil
}

// Update writes the mutable columns of t: order ids, status, settlement
// and error.
func (s *TradeStore) Update(ctx context.Context, t domain.Trade) error {
	const query = `
		UPDATE trades SET
			yes_order_id = $3,
			no_order_id = $4,
			status = $5,
			settlement_result = $6,
			actual_profit = $7,
			error = $8,
			settled_at = $9,
			updated_at = NOW()
		WHERE account_id = $1 AND id = $2`

	tag, err := s.pool.Exec(ctx, query,
		t.AccountID, t.ID,
		t.YesOrderID, t.NoOrderID, string(t.Status),
		t.SettlementResult, t.ActualProfit, t.Error, t.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update trade %s: %w", t.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: trade %s: %w", t.ID, domain.ErrNotFound)
	}
	return nil
}

// CountByStatus counts the account's trades in any of statuses.
func (s *TradeStore) CountByStatus(ctx context.Context, accountID string, statuses []domain.TradeStatus) (int, error) {
	const query = `SELECT COUNT(*) FROM trades WHERE account_id = $1 AND status = ANY($2)`
	var n int
	if err := s.pool.QueryRow(ctx, query, accountID, statusStrings(statuses)).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count trades: %w", err)
	}
	return n, nil
}

// ListByStatus returns trades newest first. No statuses lists every trade.
func (s *TradeStore) ListByStatus(ctx context.Context, accountID string, statuses []domain.TradeStatus, opts domain.ListOpts) ([]domain.Trade, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM trades WHERE account_id = $1`
	args := []any{accountID}
	if len(statuses) > 0 {
		query += " AND status = ANY($2)"
		args = append(args, statusStrings(statuses))
	}
	query, args = withListOpts(query, args, "created_at", opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades: %w", err)
	}
	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades: %w", err)
	}
	return trades, nil
}

// ListSettledBefore returns terminal trades last touched before the cutoff,
// oldest first, for archiving.
func (s *TradeStore) ListSettledBefore(ctx context.Context, before time.Time, limit int) ([]domain.Trade, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM trades
		WHERE status IN ('settled', 'cancelled', 'failed') AND updated_at < $1
		ORDER BY updated_at ASC`
	args := []any{before}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settled trades: %w", err)
	}
	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan settled trades: %w", err)
	}
	return trades, nil
}

// DeleteByIDs removes the given trades and returns how many rows went.
func (s *TradeStore) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM trades WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete trades: %w", err)
	}
	return tag.RowsAffected(), nil
}

var _ domain.TradeStore = (*TradeStore)(nil)
