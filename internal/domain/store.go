package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// SettingsStore persists the per-account settings row.
type SettingsStore interface {
	Get(ctx context.Context, accountID string) (Settings, error)
	Upsert(ctx context.Context, s Settings) error
	SetKillSwitch(ctx context.Context, accountID string, on bool, reason string) error
}

// OpportunityStore persists detected opportunities.
type OpportunityStore interface {
	Create(ctx context.Context, opp Opportunity) error
	GetByID(ctx context.Context, accountID, id string) (Opportunity, error)
	UpdateStatus(ctx context.Context, accountID, id string, status OpportunityStatus) error
	ExistsPendingForMarket(ctx context.Context, accountID, marketID string) (bool, error)
	ListByStatus(ctx context.Context, accountID string, status OpportunityStatus, opts ListOpts) ([]Opportunity, error)
	// TransitionPending moves every pending opportunity to status and
	// returns how many rows changed.
	TransitionPending(ctx context.Context, accountID string, status OpportunityStatus) (int64, error)
	// ExpirePending moves pending opportunities whose expires_at is before now
	// to expired.
	ExpirePending(ctx context.Context, accountID string, now time.Time) (int64, error)
}

// TradeStore persists two-leg trades.
type TradeStore interface {
	Create(ctx context.Context, t Trade) error
	GetByID(ctx context.Context, accountID, id string) (Trade, error)
	Update(ctx context.Context, t Trade) error
	CountByStatus(ctx context.Context, accountID string, statuses []TradeStatus) (int, error)
	ListByStatus(ctx context.Context, accountID string, statuses []TradeStatus, opts ListOpts) ([]Trade, error)
	ListSettledBefore(ctx context.Context, before time.Time, limit int) ([]Trade, error)
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
}

// AlertStore persists alerts.
type AlertStore interface {
	Create(ctx context.Context, a Alert) error
	List(ctx context.Context, accountID string, opts ListOpts) ([]Alert, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
	ListBefore(ctx context.Context, before time.Time, limit int) ([]Alert, error)
}

// DailyPnLStore accumulates realized P&L per UTC day.
type DailyPnLStore interface {
	Get(ctx context.Context, accountID string, day time.Time) (DailyPnL, error)
	// Add increments the day's trade count, the win count when profit is
	// positive, and realized P&L, creating the row when absent.
	Add(ctx context.Context, accountID string, day time.Time, profit float64) (DailyPnL, error)
	ListRecent(ctx context.Context, accountID string, days int) ([]DailyPnL, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	AccountID string
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, accountID, event string, detail map[string]any) error
	List(ctx context.Context, accountID string, opts ListOpts) ([]AuditEntry, error)
}
