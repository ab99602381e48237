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

// DailyPnLStore implements domain.DailyPnLStore using PostgreSQL.
type DailyPnLStore struct {
	pool *pgxpool.Pool
}

// NewDailyPnLStore creates a new DailyPnLStore backed by the given pool.
func NewDailyPnLStore(pool *pgxpool.Pool) *DailyPnLStore {
	return &DailyPnLStore{pool: pool}
}

// Get returns the day's aggregate, zero valued when no trade settled yet.
func (s *DailyPnLStore) Get(ctx context.Context, accountID string, day time.Time) (domain.DailyPnL, error) {
	const query = `
		SELECT account_id, date, trade_count, win_count, realized_pnl
		FROM daily_pnl WHERE account_id = $1 AND date = $2`

	d := domain.Day(day)
	var p domain.DailyPnL
	err := s.pool.QueryRow(ctx, query, accountID, d).Scan(
		&p.AccountID, &p.Date, &p.TradeCount, &p.WinCount, &p.RealizedPnL,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.DailyPnL{AccountID: accountID, Date: d}, nil
		}
		return domain.DailyPnL{}, fmt.Errorf("postgres: get daily pnl: %w", err)
	}
	return p, nil
}

// Add folds one settled trade into the day's aggregate in a single
// statement.
func (s *DailyPnLStore) Add(ctx context.Context, accountID string, day time.Time, profit float64) (domain.DailyPnL, error) {
	const query = `
		INSERT INTO daily_pnl (account_id, date, trade_count, win_count, realized_pnl)
		VALUES ($1, $2, 1, CASE WHEN $3::numeric > 0 THEN 1 ELSE 0 END, $3::numeric)
		ON CONFLICT (account_id, date) DO UPDATE SET
			trade_count = daily_pnl.trade_count + 1,
			win_count = daily_pnl.win_count + EXCLUDED.win_count,
			realized_pnl = daily_pnl.realized_pnl + EXCLUDED.realized_pnl
		RETURNING account_id, date, trade_count, win_count, realized_pnl`

	var p domain.DailyPnL
	err := s.pool.QueryRow(ctx, query, accountID, domain.Day(day), profit).Scan(
		&p.AccountID, &p.Date, &p.TradeCount, &p.WinCount, &p.RealizedPnL,
	)
	if err != nil {
		return domain.DailyPnL{}, fmt.Errorf("postgres: add daily pnl: %w", err)
	}
	return p, nil
}

// ListRecent returns up to days aggregates, newest first.
func (s *DailyPnLStore) ListRecent(ctx context.Context, accountID string, days int) ([]domain.DailyPnL, error) {
	query := `
		SELECT account_id, date, trade_count, win_count, realized_pnl
		FROM daily_pnl WHERE account_id = $1 ORDER BY date DESC`
	args := []any{accountID}
	if days > 0 {
		query += " LIMIT $2"
		args = append(args, days)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list daily pnl: %w", err)
	}
	defer rows.Close()

	var out []domain.DailyPnL
	for rows.Next() {
		var p domain.DailyPnL
		if err := rows.Scan(&p.AccountID, &p.Date, &p.TradeCount, &p.WinCount, &p.RealizedPnL); err != nil {
			return nil, fmt.Errorf("postgres: scan daily pnl: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list daily pnl rows: %w", err)
	}
	return out, nil
}

var _ domain.DailyPnLStore = (*DailyPnLStore)(nil)
