// Package executor places and manages the two leg orders of a pair trade.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/pairarb/internal/arbitrage"
	"github.com/alanyoungcy/pairarb/internal/domain"
)

// Config bounds every exchange call made by the executor.
type Config struct {
	LegTimeout    time.Duration
	CancelTimeout time.Duration
	StatusTimeout time.Duration
}

// DefaultConfig returns the standard timeouts.
func DefaultConfig() Config {
	return Config{
		LegTimeout:    10 * time.Second,
		CancelTimeout: 5 * time.Second,
		StatusTimeout: 5 * time.Second,
	}
}

// Deps bundles the executor's collaborators. Settings is optional; when set
// the kill switch is re-read before each leg goes out.
type Deps struct {
	Settings domain.SettingsStore
	Trades   domain.TradeStore
	Orders   domain.OrderGateway
	PnL      domain.DailyPnLStore
	Alerts   domain.Alerter
	Events   domain.EventSink
	Audit    domain.AuditStore
}

// Result is the outcome of Execute.
type Result struct {
	Trade      domain.Trade
	YesOrderID string
	NoOrderID  string
}

// Executor drives the trade lifecycle for one account:
//
//	pending -> placed -> partial|filled -> settled
//	pending|placed -> failed|cancelled
//
// Callers serialize calls per account.
type Executor struct {
	account  domain.Account
	settings domain.SettingsStore
	trades   domain.TradeStore
	orders   domain.OrderGateway
	pnl      domain.DailyPnLStore
	alerts   domain.Alerter
	events   domain.EventSink
	audit    domain.AuditStore
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
}

// NewExecutor creates an Executor for account.
func NewExecutor(account domain.Account, deps Deps, cfg Config, logger *slog.Logger) *Executor {
	def := DefaultConfig()
	if cfg.LegTimeout <= 0 {
		cfg.LegTimeout = def.LegTimeout
	}
	if cfg.CancelTimeout <= 0 {
		cfg.CancelTimeout = def.CancelTimeout
	}
	if cfg.StatusTimeout <= 0 {
		cfg.StatusTimeout = def.StatusTimeout
	}
	return &Executor{
		account:  account,
		settings: deps.Settings,
		trades:   deps.Trades,
		orders:   deps.Orders,
		pnl:      deps.PnL,
		alerts:   deps.Alerts,
		events:   deps.Events,
		audit:    deps.Audit,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "executor"), slog.String("account", account.ID)),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Execute buys shares = position_size / total_cost of both outcomes. The
// trade is stored as pending before any exchange call and is placed or
// failed when Execute returns. A failed leg rolls back whatever landed.
func (e *Executor) Execute(ctx context.Context, opp domain.Opportunity, st domain.Settings) (Result, error) {
	if opp.TotalCost <= 0 || opp.YesPrice <= 0 || opp.NoPrice <= 0 {
		return Result{}, fmt.Errorf("executor: execute %s: %w: total cost %.4f", opp.ID, domain.ErrInvalidOrder, opp.TotalCost)
	}
	if st.PositionSize <= 0 {
		return Result{}, fmt.Errorf("executor: execute %s: %w: position size %.2f", opp.ID, domain.ErrInvalidOrder, st.PositionSize)
	}

	now := e.now()
	trade := domain.Trade{
		ID:             uuid.NewString(),
		AccountID:      e.account.ID,
		OpportunityID:  opp.ID,
		MarketID:       opp.MarketID,
		YesToken:       opp.YesToken,
		NoToken:        opp.NoToken,
		YesPrice:       opp.YesPrice,
		NoPrice:        opp.NoPrice,
		TotalCost:      opp.TotalCost,
		PositionSize:   st.PositionSize,
		Shares:         arbitrage.Shares(st.PositionSize, opp.TotalCost),
		ExpectedProfit: arbitrage.ExpectedProfit(st.PositionSize, opp.TotalCost),
		Status:         domain.TradePending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := e.trades.Create(ctx, trade); err != nil {
		return Result{}, fmt.Errorf("executor: create trade: %w", err)
	}

	log := e.logger.With(
		slog.String("trade_id", trade.ID),
		slog.String("market_id", trade.MarketID),
	)
	log.InfoContext(ctx, "executor: executing trade",
		slog.Float64("shares", trade.Shares),
		slog.Float64("yes_price", trade.YesPrice),
		slog.Float64("no_price", trade.NoPrice),
	)

	if err := e.halted(ctx); err != nil {
		return e.fail(ctx, trade, "yes", err)
	}
	yesID, err := e.placeLeg(ctx, trade.YesToken, trade.YesPrice, trade.Shares)
	if yesID != "" {
		trade.YesOrderID = &yesID
		e.persist(ctx, &trade)
	}
	if err != nil {
		return e.fail(ctx, trade, "yes", err)
	}

	if err := e.halted(ctx); err != nil {
		return e.fail(ctx, trade, "no", err)
	}
	noID, err := e.placeLeg(ctx, trade.NoToken, trade.NoPrice, trade.Shares)
	if noID != "" {
		trade.NoOrderID = &noID
	}
	if err != nil {
		if noID != "" {
			e.persist(ctx, &trade)
		}
		return e.fail(ctx, trade, "no", err)
	}

	trade.Status = domain.TradePlaced
	e.persist(ctx, &trade)

	log.InfoContext(ctx, "executor: both legs placed",
		slog.String("yes_order_id", yesID),
		slog.String("no_order_id", noID),
	)
	e.events.Emit(domain.Event{Name: domain.EventTradeCreated, AccountID: e.account.ID, Payload: trade})
	e.alerts.Raise(ctx, domain.SeverityInfo, "Trade placed", fmt.Sprintf(
		"%s: %.4f shares at %.4f + %.4f, expected profit $%.2f",
		marketLabel(opp), trade.Shares, trade.YesPrice, trade.NoPrice, trade.ExpectedProfit))
	e.auditLog(ctx, "trade_placed", map[string]any{
		"trade_id":       trade.ID,
		"opportunity_id": trade.OpportunityID,
		"yes_order_id":   yesID,
		"no_order_id":    noID,
	})

	return Result{Trade: trade, YesOrderID: yesID, NoOrderID: noID}, nil
}

func marketLabel(opp domain.Opportunity) string {
	if opp.Question != "" {
		return opp.Question
	}
	return opp.MarketID
}

// halted returns ErrKillSwitchActive when the kill switch went on after
// the gate ran, for instance from another process. An unreadable switch
// counts as on.
func (e *Executor) halted(ctx context.Context) error {
	if e.settings == nil {
		return nil
	}
	st, err := e.settings.Get(ctx, e.account.ID)
	if err != nil {
		return fmt.Errorf("read kill switch: %w", err)
	}
	if st.KillSwitch {
		return domain.ErrKillSwitchActive
	}
	return nil
}

func (e *Executor) placeLeg(ctx context.Context, tokenID string, price, shares float64) (string, error) {
	lctx, cancel := context.WithTimeout(ctx, e.cfg.LegTimeout)
	defer cancel()
	id, err := e.orders.PlaceOrder(lctx, domain.LegOrder{
		TokenID: tokenID,
		Price:   price,
		Size:    shares,
		Side:    domain.OrderSideBuy,
	})
	if err == nil && id == "" {
		err = errors.New("exchange returned no order id")
	}
	return id, err
}

// fail rolls back the trade's placed legs and marks it failed. It keeps
// working after ctx is cancelled so a shutdown mid-trade still cleans up.
func (e *Executor) fail(ctx context.Context, trade domain.Trade, leg string, cause error) (Result, error) {
	bg := context.WithoutCancel(ctx)
	rolledBack := e.rollback(bg, trade)

	trade.Status = domain.TradeFailed
	trade.Error = fmt.Sprintf("%s leg: %v", leg, cause)
	e.persist(bg, &trade)

	e.logger.ErrorContext(ctx, "executor: leg failed, trade rolled back",
		slog.String("trade_id", trade.ID),
		slog.String("leg", leg),
		slog.Any("rolled_back", rolledBack),
		slog.String("error", cause.Error()),
	)
	e.alerts.Raise(bg, domain.SeverityError, "Trade failed", fmt.Sprintf(
		"market %s: %s leg failed: %v", trade.MarketID, leg, cause))
	e.auditLog(bg, "trade_failed", map[string]any{
		"trade_id":    trade.ID,
		"leg":         leg,
		"error":       cause.Error(),
		"rolled_back": rolledBack,
	})

	res := Result{Trade: trade}
	if trade.YesOrderID != nil {
		res.YesOrderID = *trade.YesOrderID
	}
	if trade.NoOrderID != nil {
		res.NoOrderID = *trade.NoOrderID
	}
	return res, fmt.Errorf("executor: %s leg: %w: %w", leg, domain.ErrLegFailed, cause)
}

// rollback cancels each known leg independently and reports per-order
// success.
func (e *Executor) rollback(ctx context.Context, trade domain.Trade) map[string]bool {
	out := make(map[string]bool)
	for _, id := range trade.LegOrderIDs() {
		ok := e.cancelLeg(ctx, id)
		out[id] = ok
		if !ok {
			e.logger.WarnContext(ctx, "executor: rollback cancel failed",
				slog.String("trade_id", trade.ID),
				slog.String("order_id", id),
			)
		}
	}
	return out
}

func (e *Executor) cancelLeg(ctx context.Context, orderID string) bool {
	cctx, cancel := context.WithTimeout(ctx, e.cfg.CancelTimeout)
	defer cancel()
	return e.orders.CancelOrder(cctx, orderID)
}

// Cancel requests cancellation of both legs and marks the trade cancelled
// whether or not the exchange confirmed each cancel.
func (e *Executor) Cancel(ctx context.Context, tradeID string) (domain.Trade, error) {
	trade, err := e.trades.GetByID(ctx, e.account.ID, tradeID)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("executor: cancel %s: %w", tradeID, err)
	}
	if trade.Status == domain.TradeCancelled {
		return trade, nil
	}
	if trade.Status.Terminal() {
		return trade, fmt.Errorf("executor: cancel %s from %s: %w", tradeID, trade.Status, domain.ErrInvalidTransition)
	}

	results := e.rollback(ctx, trade)
	trade.Status = domain.TradeCancelled
	e.persist(ctx, &trade)

	e.logger.InfoContext(ctx, "executor: trade cancelled",
		slog.String("trade_id", trade.ID),
		slog.Any("legs", results),
	)
	e.alerts.Raise(ctx, domain.SeverityWarning, "Trade cancelled", fmt.Sprintf("trade %s on market %s cancelled", trade.ID, trade.MarketID))
	e.events.Emit(domain.Event{
		Name:      domain.EventTradeCancelled,
		AccountID: e.account.ID,
		Payload:   map[string]any{"trade": trade, "legs_cancelled": results},
	})
	e.auditLog(ctx, "trade_cancelled", map[string]any{"trade_id": trade.ID, "legs_cancelled": results})
	return trade, nil
}

// Reconcile queries both legs and moves the trade to filled, partial or
// cancelled. The trade is only written when its status changes.
func (e *Executor) Reconcile(ctx context.Context, trade domain.Trade) (domain.Trade, bool, error) {
	if trade.Status != domain.TradePlaced && trade.Status != domain.TradePartial {
		return trade, false, nil
	}

	yes, err := e.legStatus(ctx, trade.YesOrderID)
	if err != nil {
		return trade, false, fmt.Errorf("executor: reconcile %s yes leg: %w", trade.ID, err)
	}
	no, err := e.legStatus(ctx, trade.NoOrderID)
	if err != nil {
		return trade, false, fmt.Errorf("executor: reconcile %s no leg: %w", trade.ID, err)
	}

	next := DeriveStatus(trade.Status, yes, no)
	if next == trade.Status {
		return trade, false, nil
	}

	prev := trade.Status
	trade.Status = next
	if err := e.update(ctx, &trade); err != nil {
		return trade, false, err
	}
	e.logger.InfoContext(ctx, "executor: trade reconciled",
		slog.String("trade_id", trade.ID),
		slog.String("from", string(prev)),
		slog.String("to", string(next)),
	)
	e.auditLog(ctx, "trade_reconciled", map[string]any{
		"trade_id": trade.ID,
		"from":     string(prev),
		"to":       string(next),
		"yes_leg":  string(yes),
		"no_leg":   string(no),
	})
	return trade, true, nil
}

func (e *Executor) legStatus(ctx context.Context, orderID *string) (domain.LegStatus, error) {
	if orderID == nil || *orderID == "" {
		return domain.LegUnknown, nil
	}
	sctx, cancel := context.WithTimeout(ctx, e.cfg.StatusTimeout)
	defer cancel()
	return e.orders.GetOrderStatus(sctx, *orderID)
}

// DeriveStatus maps the two leg states onto a trade status. Both matched is
// filled, one matched is partial, a cancelled leg with none matched is
// cancelled. Anything else keeps cur.
func DeriveStatus(cur domain.TradeStatus, yes, no domain.LegStatus) domain.TradeStatus {
	yesMatched := yes == domain.LegMatched
	noMatched := no == domain.LegMatched
	switch {
	case yesMatched && noMatched:
		return domain.TradeFilled
	case yesMatched || noMatched:
		return domain.TradePartial
	case yes == domain.LegCancelled || no == domain.LegCancelled:
		return domain.TradeCancelled
	}
	return cur
}

// Settle closes the trade at market resolution. The profit uses the
// trade's recorded total cost, not current prices.
func (e *Executor) Settle(ctx context.Context, trade domain.Trade, result string) (domain.Trade, error) {
	switch result {
	case "yes", "no":
	default:
		return trade, fmt.Errorf("executor: settle %s: %w: result %q", trade.ID, domain.ErrInvalidTransition, result)
	}
	switch trade.Status {
	case domain.TradePlaced, domain.TradePartial, domain.TradeFilled:
	default:
		return trade, fmt.Errorf("executor: settle %s from %s: %w", trade.ID, trade.Status, domain.ErrInvalidTransition)
	}

	profit := arbitrage.SettlementProfit(trade.Shares, trade.TotalCost)
	now := e.now()
	trade.Status = domain.TradeSettled
	trade.SettlementResult = &result
	trade.ActualProfit = &profit
	trade.SettledAt = &now
	if err := e.update(ctx, &trade); err != nil {
		return trade, err
	}

	day, err := e.pnl.Add(ctx, e.account.ID, now, profit)
	if err != nil {
		e.logger.ErrorContext(ctx, "executor: daily pnl update failed",
			slog.String("trade_id", trade.ID),
			slog.String("error", err.Error()),
		)
	}

	e.logger.InfoContext(ctx, "executor: trade settled",
		slog.String("trade_id", trade.ID),
		slog.String("result", result),
		slog.Float64("actual_profit", profit),
		slog.Float64("today_pnl", day.RealizedPnL),
	)
	e.alerts.Raise(ctx, domain.SeverityInfo, "Trade settled", fmt.Sprintf(
		"market %s resolved %s, profit $%.2f", trade.MarketID, result, profit))
	e.events.Emit(domain.Event{
		Name:      domain.EventTradeSettled,
		AccountID: e.account.ID,
		Payload: map[string]any{
			"trade_id":      trade.ID,
			"market_id":     trade.MarketID,
			"result":        result,
			"actual_profit": profit,
		},
	})
	e.auditLog(ctx, "trade_settled", map[string]any{
		"trade_id":      trade.ID,
		"result":        result,
		"actual_profit": profit,
	})
	return trade, nil
}

func (e *Executor) update(ctx context.Context, trade *domain.Trade) error {
	trade.UpdatedAt = e.now()
	if err := e.trades.Update(ctx, *trade); err != nil {
		return fmt.Errorf("executor: update trade %s: %w", trade.ID, err)
	}
	return nil
}

// persist writes the trade and only logs on failure; the in-memory copy
// returned to the caller stays authoritative for this call.
func (e *Executor) persist(ctx context.Context, trade *domain.Trade) {
	if err := e.update(ctx, trade); err != nil {
		e.logger.ErrorContext(ctx, "executor: persist trade failed",
			slog.String("trade_id", trade.ID),
			slog.String("status", string(trade.Status)),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Executor) auditLog(ctx context.Context, event string, detail map[string]any) {
	if e.audit == nil {
		return
	}
	if err := e.audit.Log(ctx, e.account.ID, event, detail); err != nil {
		e.logger.WarnContext(ctx, "executor: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
