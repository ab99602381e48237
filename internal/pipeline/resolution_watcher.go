package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/pairarb/internal/domain"
)

// TradeActions are the locked trade entry points the background jobs use.
type TradeActions interface {
	SettleTrade(ctx context.Context, tradeID, result string) (domain.Trade, error)
	CancelTrade(ctx context.Context, tradeID string) (domain.Trade, error)
	ReconcileTrade(ctx context.Context, tradeID string) (domain.Trade, error)
}

var _ TradeActions = (*Orchestrator)(nil)

var watchedStatuses = []domain.TradeStatus{domain.TradePlaced, domain.TradePartial, domain.TradeFilled}

// ResolutionWatcher settles trades whose market has resolved. Filled and
// partial trades are settled; trades whose legs never matched are cancelled,
// since their resting orders can no longer fill.
type ResolutionWatcher struct {
	account     domain.Account
	trades      domain.TradeStore
	resolutions domain.ResolutionSource
	actions     TradeActions
	interval    time.Duration
	callTimeout time.Duration
	logger      *slog.Logger
}

// NewResolutionWatcher creates a ResolutionWatcher. actions is set later
// with Bind when the orchestrator is built after the watcher.
func NewResolutionWatcher(account domain.Account, trades domain.TradeStore, resolutions domain.ResolutionSource, interval time.Duration, logger *slog.Logger) *ResolutionWatcher {
	if interval <= 0 {
		interval = time.Minute
	}
	return &ResolutionWatcher{
		account:     account,
		trades:      trades,
		resolutions: resolutions,
		interval:    interval,
		callTimeout: 10 * time.Second,
		logger:      logger.With(slog.String("component", "resolution_watcher")),
	}
}

// Bind sets the entry points used to settle and cancel trades.
func (w *ResolutionWatcher) Bind(actions TradeActions) { w.actions = actions }

// Run polls until ctx is cancelled.
func (w *ResolutionWatcher) Run(ctx context.Context) error {
	if w.actions == nil {
		return fmt.Errorf("resolution_watcher: not bound to trade actions")
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.Sweep(ctx); err != nil {
				w.logger.ErrorContext(ctx, "resolution_watcher: sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Sweep checks every open or filled trade once and returns how many were
// settled.
func (w *ResolutionWatcher) Sweep(ctx context.Context) (int, error) {
	trades, err := w.trades.ListByStatus(ctx, w.account.ID, watchedStatuses, domain.ListOpts{Limit: 500})
	if err != nil {
		return 0, fmt.Errorf("resolution_watcher: list trades: %w", err)
	}

	resolved := make(map[string]domain.Resolution)
	settled := 0
	for _, t := range trades {
		res, ok := resolved[t.MarketID]
		if !ok {
			res, err = w.resolution(ctx, t.MarketID)
			if err != nil {
				w.logger.WarnContext(ctx, "resolution_watcher: resolution lookup failed",
					slog.String("market_id", t.MarketID),
					slog.String("error", err.Error()),
				)
				continue
			}
			resolved[t.MarketID] = res
		}
		if !res.Resolved() {
			continue
		}

		if t.Status == domain.TradePlaced {
			if _, err := w.actions.ReconcileTrade(ctx, t.ID); err != nil {
				w.logger.WarnContext(ctx, "resolution_watcher: reconcile before settle failed",
					slog.String("trade_id", t.ID),
					slog.String("error", err.Error()),
				)
			}
			cur, err := w.trades.GetByID(ctx, w.account.ID, t.ID)
			if err == nil {
				t = cur
			}
		}

		switch t.Status {
		case domain.TradePartial, domain.TradeFilled:
			if _, err := w.actions.SettleTrade(ctx, t.ID, res.Outcome); err != nil {
				w.logger.ErrorContext(ctx, "resolution_watcher: settle failed",
					slog.String("trade_id", t.ID),
					slog.String("error", err.Error()),
				)
				continue
			}
			settled++
		case domain.TradePlaced:
			if _, err := w.actions.CancelTrade(ctx, t.ID); err != nil {
				w.logger.WarnContext(ctx, "resolution_watcher: cancel unfilled trade failed",
					slog.String("trade_id", t.ID),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	if settled > 0 {
		w.logger.InfoContext(ctx, "resolution_watcher: trades settled", slog.Int("count", settled))
	}
	return settled, nil
}

func (w *ResolutionWatcher) resolution(ctx context.Context, marketID string) (domain.Resolution, error) {
	ctx, cancel := context.WithTimeout(ctx, w.callTimeout)
	defer cancel()
	return w.resolutions.GetResolution(ctx, marketID)
}
