package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/pairarb/internal/domain"
)

// AlertStore implements domain.AlertStore using PostgreSQL.
type AlertStore struct {
	pool *pgxpool.Pool
}

// NewAlertStore creates a new AlertStore backed by the given pool.
func NewAlertStore(pool *pgxpool.Pool) *AlertStore {
	return &AlertStore{pool: pool}
}

const alertSelectCols = `id, account_id, severity, title, message, created_at`

func scanAlertRows(rows pgx.Rows) ([]domain.Alert, error) {
	defer rows.Close()
	var alerts []domain.Alert
	for rows.Next() {
		var a domain.Alert
		if err := rows.Scan(&a.ID, &a.AccountID, &a.Severity, &a.Title, &a.Message, &a.CreatedAt); err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// Create inserts an alert.
func (s *AlertStore) Create(ctx context.Context, a domain.Alert) error {
	const query = `
		INSERT INTO alerts (id, account_id, severity, title, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	created := a.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, query, a.ID, a.AccountID, string(a.Severity), a.Title, a.Message, created)
	if err != nil {
		return fmt.Errorf("postgres: create alert: %w", err)
	}
	return nil
}

// List returns the account's alerts newest first.
func (s *AlertStore) List(ctx context.Context, accountID string, opts domain.ListOpts) ([]domain.Alert, error) {
	query := `SELECT ` + alertSelectCols + ` FROM alerts WHERE account_id = $1`
	query, args := withListOpts(query, []any{accountID}, "created_at", opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list alerts: %w", err)
	}
	alerts, err := scanAlertRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan alerts: %w", err)
	}
	return alerts, nil
}

// ListBefore returns alerts of every account created before the cutoff,
// oldest first.
func (s *AlertStore) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.Alert, error) {
	query := `SELECT ` + alertSelectCols + ` FROM alerts WHERE created_at < $1 ORDER BY created_at ASC`
	args := []any{before}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list alerts before: %w", err)
	}
	alerts, err := scanAlertRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan alerts before: %w", err)
	}
	return alerts, nil
}

// DeleteBefore deletes alerts created before the cutoff.
func (s *AlertStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM alerts WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete alerts before: %w", err)
	}
	return tag.RowsAffected(), nil
}

var _ domain.AlertStore = (*AlertStore)(nil)
