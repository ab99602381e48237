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

// SettingsStore implements domain.SettingsStore using PostgreSQL.
type SettingsStore struct {
	pool *pgxpool.Pool
}

// NewSettingsStore creates a new SettingsStore backed by the given pool.
func NewSettingsStore(pool *pgxpool.Pool) *SettingsStore {
	return &SettingsStore{pool: pool}
}

// Get returns the account's settings row or domain.ErrNotFound.
func (s *SettingsStore) Get(ctx context.Context, accountID string) (domain.Settings, error) {
	const query = `
		SELECT account_id, position_size, profit_threshold, daily_loss_limit,
			max_open_positions, auto_mode, kill_switch, kill_switch_reason,
			active_currencies, scan_interval_ms, updated_at
		FROM settings WHERE account_id = $1`

	var (
		st         domain.Settings
		intervalMS int64
	)
	err := s.pool.QueryRow(ctx, query, accountID).Scan(
		&st.AccountID, &st.PositionSize, &st.ProfitThreshold, &st.DailyLossLimit,
		&st.MaxOpenPositions, &st.AutoMode, &st.KillSwitch, &st.KillSwitchReason,
		&st.ActiveCurrencies, &intervalMS, &st.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Settings{}, fmt.Errorf("postgres: settings %s: %w", accountID, domain.ErrNotFound)
		}
		return domain.Settings{}, fmt.Errorf("postgres: get settings %s: %w", accountID, err)
	}
	st.ScanInterval = time.Duration(intervalMS) * time.Millisecond
	return st, nil
}

// Upsert inserts or replaces the account's settings row.
func (s *SettingsStore) Upsert(ctx context.Context, st domain.Settings) error {
	const query = `
		INSERT INTO settings (
			account_id, position_size, profit_threshold, daily_loss_limit,
			max_open_positions, auto_mode, kill_switch, kill_switch_reason,
			active_currencies, scan_interval_ms, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		ON CONFLICT (account_id) DO UPDATE SET
			position_size = EXCLUDED.position_size,
			profit_threshold = EXCLUDED.profit_threshold,
			daily_loss_limit = EXCLUDED.daily_loss_limit,
			max_open_positions = EXCLUDED.max_open_positions,
			auto_mode = EXCLUDED.auto_mode,
			kill_switch = EXCLUDED.kill_switch,
			kill_switch_reason = EXCLUDED.kill_switch_reason,
			active_currencies = EXCLUDED.active_currencies,
			scan_interval_ms = EXCLUDED.scan_interval_ms,
			updated_at = NOW()`

	currencies := st.ActiveCurrencies
	if currencies == nil {
		currencies = []string{}
	}
	_, err := s.pool.Exec(ctx, query,
		st.AccountID, st.PositionSize, st.ProfitThreshold, st.DailyLossLimit,
		st.MaxOpenPositions, st.AutoMode, st.KillSwitch, st.KillSwitchReason,
		currencies, st.ScanInterval.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert settings %s: %w", st.AccountID, err)
	}
	return nil
}

// SetKillSwitch flips only the kill switch columns so concurrent settings
// edits are not overwritten.
func (s *SettingsStore) SetKillSwitch(ctx context.Context, accountID string, on bool, reason string) error {
	const query = `
		UPDATE settings SET kill_switch = $2, kill_switch_reason = $3, updated_at = NOW()
		WHERE account_id = $1`

	tag, err := s.pool.Exec(ctx, query, accountID, on, reason)
	if err != nil {
		return fmt.Errorf("postgres: set kill switch %s: %w", accountID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: settings %s: %w", accountID, domain.ErrNotFound)
	}
	return nil
}

var _ domain.SettingsStore = (*SettingsStore)(nil)
