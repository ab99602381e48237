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

// OpportunityStore implements domain.OpportunityStore using PostgreSQL.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

// NewOpportunityStore creates a new OpportunityStore backed by the given pool.
func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

const opportunitySelectCols = `id, account_id, market_id, question, yes_token, no_token,
	yes_price, no_price, total_cost, spread, expected_profit,
	yes_liquidity, no_liquidity, status, expires_at, detected_at, updated_at`

func scanOpportunity(row pgx.Row) (domain.Opportunity, error) {
	var o domain.Opportunity
	err := row.Scan(
		&o.ID, &o.AccountID, &o.MarketID, &o.Question, &o.YesToken, &o.NoToken,
		&o.YesPrice, &o.NoPrice, &o.TotalCost, &o.Spread, &o.ExpectedProfit,
		&o.YesLiquidity, &o.NoLiquidity, &o.Status, &o.ExpiresAt, &o.DetectedAt, &o.UpdatedAt,
	)
	return o, err
}

// Create inserts a new opportunity. A second pending row for the same
// market is rejected by a partial unique index and reported as
// domain.ErrAlreadyExists.
func (s *OpportunityStore) Create(ctx context.Context, o domain.Opportunity) error {
	const query = `
		INSERT INTO opportunities (
			id, account_id, market_id, question, yes_token, no_token,
			yes_price, no_price, total_cost, spread, expected_profit,
			yes_liquidity, no_liquidity, status, expires_at, detected_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16, NOW()
		)`

	detected := o.DetectedAt
	if detected.IsZero() {
		detected = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, query,
		o.ID, o.AccountID, o.MarketID, o.Question, o.YesToken, o.NoToken,
		o.YesPrice, o.NoPrice, o.TotalCost, o.Spread, o.ExpectedProfit,
		o.YesLiquidity, o.NoLiquidity, string(o.Status), o.ExpiresAt, detected,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("postgres: create opportunity %s: %w", o.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("postgres: create opportunity %s: %w", o.ID, err)
	}
	return nil
}

// GetByID returns one opportunity or domain.ErrNotFound.
func (s *OpportunityStore) GetByID(ctx context.Context, accountID, id string) (domain.Opportunity, error) {
	query := `SELECT ` + opportunitySelectCols + ` FROM opportunities WHERE account_id = $1 AND id = $2`
	o, err := scanOpportunity(s.pool.QueryRow(ctx, query, accountID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Opportunity{}, fmt.Errorf("postgres: opportunity %s: %w", id, domain.ErrNotFound)
		}
		return domain.Opportunity{}, fmt.Errorf("postgres: get opportunity %s: %w", id, err)
	}
	return o, nil
}

// UpdateStatus decides a pending opportunity. Decided opportunities are
// immutable: a row that is no longer pending yields ErrInvalidTransition.
func (s *OpportunityStore) UpdateStatus(ctx context.Context, accountID, id string, status domain.OpportunityStatus) error {
	const query = `
		UPDATE opportunities SET status = $3, updated_at = NOW()
		WHERE account_id = $1 AND id = $2 AND status = 'pending'`
	tag, err := s.pool.Exec(ctx, query, accountID, id, string(status))
	if err != nil {
		return fmt.Errorf("postgres: update opportunity %s: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM opportunities WHERE account_id = $1 AND id = $2)`, accountID, id,
	).Scan(&exists); err != nil {
		return fmt.Errorf("postgres: opportunity %s: %w", id, err)
	}
	if !exists {
		return fmt.Errorf("postgres: opportunity %s: %w", id, domain.ErrNotFound)
	}
	return fmt.Errorf("postgres: opportunity %s no longer pending: %w", id, domain.ErrInvalidTransition)
}

// ExistsPendingForMarket reports whether marketID already has a pending
// opportunity for the account.
func (s *OpportunityStore) ExistsPendingForMarket(ctx context.Context, accountID, marketID string) (bool, error) {
	const query = `
		SELECT EXISTS(
			SELECT 1 FROM opportunities
			WHERE account_id = $1 AND market_id = $2 AND status = 'pending'
		)`
	var exists bool
	if err := s.pool.QueryRow(ctx, query, accountID, marketID).Scan(&exists); err != nil {
		return false, fmt.Errorf("postgres: pending opportunity for %s: %w", marketID, err)
	}
	return exists, nil
}

// ListByStatus returns opportunities newest first. An empty status lists
// every status.
func (s *OpportunityStore) ListByStatus(ctx context.Context, accountID string, status domain.OpportunityStatus, opts domain.ListOpts) ([]domain.Opportunity, error) {
	query := `SELECT ` + opportunitySelectCols + ` FROM opportunities WHERE account_id = $1`
	args := []any{accountID}
	if status != "" {
		query += " AND status = $2"
		args = append(args, string(status))
	}
	query, args = withListOpts(query, args, "detected_at", opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list opportunities: %w", err)
	}
	defer rows.Close()

	var out []domain.Opportunity
	for rows.Next() {
		o, err := scanOpportunity(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan opportunity: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list opportunities rows: %w", err)
	}
	return out, nil
}

// TransitionPending moves every pending opportunity of the account to
// status.
func (s *OpportunityStore) TransitionPending(ctx context.Context, accountID string, status domain.OpportunityStatus) (int64, error) {
	const query = `
		UPDATE opportunities SET status = $2, updated_at = NOW()
		WHERE account_id = $1 AND status = 'pending'`
	tag, err := s.pool.Exec(ctx, query, accountID, string(status))
	if err != nil {
		return 0, fmt.Errorf("postgres: transition pending opportunities: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ExpirePending marks pending opportunities past expires_at as expired.
func (s *OpportunityStore) ExpirePending(ctx context.Context, accountID string, now time.Time) (int64, error) {
	const query = `
		UPDATE opportunities SET status = 'expired', updated_at = $2
		WHERE account_id = $1 AND status = 'pending' AND expires_at < $2`
	tag, err := s.pool.Exec(ctx, query, accountID, now)
	if err != nil {
		return 0, fmt.Errorf("postgres: expire pending opportunities: %w", err)
	}
	return tag.RowsAffected(), nil
}

var _ domain.OpportunityStore = (*OpportunityStore)(nil)
