package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/pairarb/internal/domain"
)

// Reconciler periodically refreshes placed and partial trades from their
// leg orders.
type Reconciler struct {
	account  domain.Account
	trades   domain.TradeStore
	actions  TradeActions
	interval time.Duration
	logger   *slog.Logger
}

// NewReconciler creates a Reconciler. Bind must be called before Run.
func NewReconciler(account domain.Account, trades domain.TradeStore, interval time.Duration, logger *slog.Logger) *Reconciler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Reconciler{
		account:  account,
		trades:   trades,
		interval: interval,
		logger:   logger.With(slog.String("component", "reconciler")),
	}
}

// Bind sets the entry point used to reconcile trades.
func (r *Reconciler) Bind(actions TradeActions) { r.actions = actions }

// Run reconciles on every tick until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	if r.actions == nil {
		return fmt.Errorf("reconciler: not bound to trade actions")
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil {
				r.logger.ErrorContext(ctx, "reconciler: sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Sweep reconciles each placed or partial trade once and returns how many
// changed status.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	trades, err := r.trades.ListByStatus(ctx, r.account.ID,
		[]domain.TradeStatus{domain.TradePlaced, domain.TradePartial}, domain.ListOpts{Limit: 500})
	if err != nil {
		return 0, fmt.Errorf("reconciler: list trades: %w", err)
	}
	changed := 0
	for _, t := range trades {
		updated, err := r.actions.ReconcileTrade(ctx, t.ID)
		if err != nil {
			r.logger.WarnContext(ctx, "reconciler: reconcile failed",
				slog.String("trade_id", t.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if updated.Status != t.Status {
			changed++
		}
	}
	return changed, nil
}
