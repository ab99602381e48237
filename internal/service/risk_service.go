package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/pairarb/internal/arbitrage"
	"github.com/alanyoungcy/pairarb/internal/domain"
)

// RiskConfig holds the policy parameters of the pre-trade gate.
type RiskConfig struct {
	// LiquidityMultiplier is the required depth per side as a multiple of
	// the position size.
	LiquidityMultiplier float64
	// LowBalanceRatio halts trading when balance drops below this fraction
	// of the position size.
	LowBalanceRatio float64
	// CallTimeout bounds exchange calls made by the risk service.
	CallTimeout time.Duration
}

// DefaultRiskConfig returns the standard policy.
func DefaultRiskConfig() RiskConfig {
	return RiskConfig{
		LiquidityMultiplier: 2.0,
		LowBalanceRatio:     0.5,
		CallTimeout:         10 * time.Second,
	}
}

// OrderCanceller is the part of the exchange the kill switch sweeps.
type OrderCanceller interface {
	CancelAllOrders(ctx context.Context) bool
}

// RiskService gates every trade for one account and owns the kill switch.
type RiskService struct {
	account  domain.Account
	settings domain.SettingsStore
	trades   domain.TradeStore
	opps     domain.OpportunityStore
	pnl      domain.DailyPnLStore
	balances domain.BalanceSource
	orders   OrderCanceller
	alerts   domain.Alerter
	events   domain.EventSink
	audit    domain.AuditStore
	cfg      RiskConfig
	logger   *slog.Logger
	now      func() time.Time

	// switchMu serializes kill switch transitions.
	switchMu sync.Mutex
}

// RiskDeps bundles the collaborators of a RiskService.
type RiskDeps struct {
	Settings      domain.SettingsStore
	Trades        domain.TradeStore
	Opportunities domain.OpportunityStore
	PnL           domain.DailyPnLStore
	Balances      domain.BalanceSource
	Orders        OrderCanceller
	Alerts        domain.Alerter
	Events        domain.EventSink
	Audit         domain.AuditStore
}

// NewRiskService creates a RiskService for account.
func NewRiskService(account domain.Account, deps RiskDeps, cfg RiskConfig, logger *slog.Logger) *RiskService {
	def := DefaultRiskConfig()
	if cfg.LiquidityMultiplier <= 0 {
		cfg.LiquidityMultiplier = def.LiquidityMultiplier
	}
	if cfg.LowBalanceRatio <= 0 {
		cfg.LowBalanceRatio = def.LowBalanceRatio
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = def.CallTimeout
	}
	return &RiskService{
		account:  account,
		settings: deps.Settings,
		trades:   deps.Trades,
		opps:     deps.Opportunities,
		pnl:      deps.PnL,
		balances: deps.Balances,
		orders:   deps.Orders,
		alerts:   deps.Alerts,
		events:   deps.Events,
		audit:    deps.Audit,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "risk_service"), slog.String("account", account.ID)),
		now:      time.Now,
	}
}

// CanTrade runs the pre-trade gate against fresh settings. The checks run in
// a fixed order and stop at the first failure:
//
//  1. kill switch engaged
//  2. today's realized P&L below -daily_loss_limit (engages the kill switch)
//  3. open positions at or above max_open_positions
//  4. balance below position_size
//  5. spread below profit_threshold
//  6. either side's depth below liquidity_multiplier * position_size
//
// Infrastructure failures deny rather than allow.
func (s *RiskService) CanTrade(ctx context.Context, opp domain.Opportunity) domain.Decision {
	st, err := s.settings.Get(ctx, s.account.ID)
	if err != nil {
		return s.deny(ctx, opp, fmt.Sprintf("settings unavailable: %v", err))
	}

	if ks := StateOf(st); ks.Halted {
		return s.deny(ctx, opp, killSwitchReason(ks))
	}

	today, err := s.pnl.Get(ctx, s.account.ID, s.now())
	if err != nil {
		return s.deny(ctx, opp, fmt.Sprintf("daily P&L unavailable: %v", err))
	}
	if today.RealizedPnL < -st.DailyLossLimit {
		if err := s.Activate(ctx, ReasonDailyLossLimit); err != nil {
			s.logger.ErrorContext(ctx, "risk_service: auto activation failed", slog.String("error", err.Error()))
		}
		return s.deny(ctx, opp, ReasonDailyLossLimit)
	}

	open, err := s.trades.CountByStatus(ctx, s.account.ID, domain.OpenTradeStatuses)
	if err != nil {
		return s.deny(ctx, opp, fmt.Sprintf("open positions unavailable: %v", err))
	}
	if open >= st.MaxOpenPositions {
		return s.deny(ctx, opp, fmt.Sprintf("max open positions reached (%d/%d)", open, st.MaxOpenPositions))
	}

	bal, err := s.balance(ctx)
	if err != nil {
		return s.deny(ctx, opp, fmt.Sprintf("balance unavailable: %v", err))
	}
	if bal.Balance < st.PositionSize {
		return s.deny(ctx, opp, fmt.Sprintf("insufficient balance (%.2f < %.2f)", bal.Balance, st.PositionSize))
	}

	if !arbitrage.MeetsThreshold(opp.Spread, st.ProfitThreshold) {
		return s.deny(ctx, opp, fmt.Sprintf("spread %.4f below profit threshold %.4f", opp.Spread, st.ProfitThreshold))
	}

	need := s.cfg.LiquidityMultiplier * st.PositionSize
	if opp.YesLiquidity < need || opp.NoLiquidity < need {
		return s.deny(ctx, opp, fmt.Sprintf("insufficient liquidity (yes %.2f, no %.2f, need %.2f)",
			opp.YesLiquidity, opp.NoLiquidity, need))
	}

	return domain.Allow()
}

func (s *RiskService) deny(ctx context.Context, opp domain.Opportunity, reason string) domain.Decision {
	s.logger.InfoContext(ctx, "risk_service: trade denied",
		slog.String("market_id", opp.MarketID),
		slog.String("opportunity_id", opp.ID),
		slog.String("reason", reason),
	)
	return domain.Deny(reason)
}

func killSwitchReason(ks KillSwitchState) string {
	if ks.Reason == "" {
		return "kill switch active"
	}
	return "kill switch active: " + ks.Reason
}

// EvaluateStanding is the per-cycle check that can halt trading with no
// opportunity in flight. With the kill switch already engaged it only
// reports.
func (s *RiskService) EvaluateStanding(ctx context.Context) (domain.RiskStatus, error) {
	st, err := s.settings.Get(ctx, s.account.ID)
	if err != nil {
		return domain.RiskStatus{}, fmt.Errorf("risk_service: get settings: %w", err)
	}
	status, err := s.snapshot(ctx, st)
	if err != nil {
		return domain.RiskStatus{}, err
	}
	if status.KillSwitch {
		return status, nil
	}

	var reason string
	switch {
	case status.LossHeadroom <= 0:
		reason = ReasonDailyLossLimit
	case status.Balance < st.PositionSize*s.cfg.LowBalanceRatio:
		reason = ReasonLowBalance
	default:
		return status, nil
	}

	if err := s.Activate(ctx, reason); err != nil {
		return status, fmt.Errorf("risk_service: auto activate: %w", err)
	}
	status.KillSwitch = true
	status.KillSwitchReason = reason
	status.CanTrade = false
	status.Reasons = append(status.Reasons, killSwitchReason(Halted(reason)))
	return status, nil
}

// Status returns the current risk snapshot without acting on it.
func (s *RiskService) Status(ctx context.Context) (domain.RiskStatus, error) {
	st, err := s.settings.Get(ctx, s.account.ID)
	if err != nil {
		return domain.RiskStatus{}, fmt.Errorf("risk_service: get settings: %w", err)
	}
	return s.snapshot(ctx, st)
}

func (s *RiskService) snapshot(ctx context.Context, st domain.Settings) (domain.RiskStatus, error) {
	open, err := s.trades.CountByStatus(ctx, s.account.ID, domain.OpenTradeStatuses)
	if err != nil {
		return domain.RiskStatus{}, fmt.Errorf("risk_service: count open trades: %w", err)
	}
	today, err := s.pnl.Get(ctx, s.account.ID, s.now())
	if err != nil {
		return domain.RiskStatus{}, fmt.Errorf("risk_service: get daily pnl: %w", err)
	}
	bal, err := s.balance(ctx)
	if err != nil {
		return domain.RiskStatus{}, fmt.Errorf("risk_service: get balance: %w", err)
	}

	status := domain.RiskStatus{
		Balance:          bal.Balance,
		Allowance:        bal.Allowance,
		OpenPositions:    open,
		MaxOpenPositions: st.MaxOpenPositions,
		TodayPnL:         today.RealizedPnL,
		DailyLossLimit:   st.DailyLossLimit,
		LossHeadroom:     st.DailyLossLimit + today.RealizedPnL,
		KillSwitch:       st.KillSwitch,
		KillSwitchReason: st.KillSwitchReason,
	}

	if status.KillSwitch {
		status.Reasons = append(status.Reasons, killSwitchReason(StateOf(st)))
	}
	if status.LossHeadroom <= 0 {
		status.Reasons = append(status.Reasons, ReasonDailyLossLimit)
	}
	if open >= st.MaxOpenPositions {
		status.Reasons = append(status.Reasons, fmt.Sprintf("max open positions reached (%d/%d)", open, st.MaxOpenPositions))
	}
	if bal.Balance < st.PositionSize {
		status.Reasons = append(status.Reasons, fmt.Sprintf("insufficient balance (%.2f < %.2f)", bal.Balance, st.PositionSize))
	}
	status.CanTrade = len(status.Reasons) == 0
	return status, nil
}

func (s *RiskService) balance(ctx context.Context) (domain.Balance, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()
	return s.balances.GetBalance(ctx)
}

// Activate engages the kill switch. The first activation cancels all
// exchange orders, clears pending opportunities, raises a critical alert and
// emits kill_switch:activated. Activating again only records the new reason.
func (s *RiskService) Activate(ctx context.Context, reason string) error {
	_, err := s.apply(ctx, Activate(reason))
	return err
}

// Deactivate releases the kill switch. Open trades are left alone.
func (s *RiskService) Deactivate(ctx context.Context) error {
	_, err := s.apply(ctx, Deactivate())
	return err
}

// Toggle flips the kill switch and returns the resulting state.
func (s *RiskService) Toggle(ctx context.Context) (KillSwitchState, error) {
	return s.apply(ctx, Toggle())
}

func (s *RiskService) apply(ctx context.Context, cmd KillSwitchCommand) (KillSwitchState, error) {
	s.switchMu.Lock()
	defer s.switchMu.Unlock()

	st, err := s.settings.Get(ctx, s.account.ID)
	if err != nil {
		return KillSwitchState{}, fmt.Errorf("risk_service: get settings: %w", err)
	}
	cur := StateOf(st)
	next, fx := Transition(cur, cmd)

	if fx.Persist {
		if err := s.settings.SetKillSwitch(ctx, s.account.ID, next.Halted, next.Reason); err != nil {
			return cur, fmt.Errorf("risk_service: persist kill switch: %w", err)
		}
	}
	if fx.Sweep {
		s.sweep(ctx)
	}

	switch fx.Event {
	case domain.EventKillSwitchActivated:
		s.logger.WarnContext(ctx, "risk_service: kill switch activated", slog.String("reason", next.Reason))
		s.alerts.Raise(ctx, fx.Alert, "Kill switch activated", next.Reason)
		s.events.Emit(domain.Event{
			Name:      fx.Event,
			AccountID: s.account.ID,
			Payload:   map[string]string{"reason": next.Reason},
		})
	case domain.EventKillSwitchDeactivated:
		s.logger.InfoContext(ctx, "risk_service: kill switch deactivated")
		s.alerts.Raise(ctx, fx.Alert, "Kill switch deactivated", "trading resumed")
		s.events.Emit(domain.Event{Name: fx.Event, AccountID: s.account.ID})
	}

	if fx.Persist {
		s.auditLog(ctx, "kill_switch", map[string]any{
			"halted": next.Halted,
			"reason": next.Reason,
			"swept":  fx.Sweep,
		})
	}
	return next, nil
}

// sweep cancels every exchange order and clears pending opportunities. Both
// steps are best-effort.
func (s *RiskService) sweep(ctx context.Context) {
	cctx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	ok := s.orders.CancelAllOrders(cctx)
	cancel()
	if !ok {
		s.logger.WarnContext(ctx, "risk_service: cancel all orders failed during kill switch sweep")
	}

	n, err := s.opps.TransitionPending(ctx, s.account.ID, domain.OpportunityRejected)
	if err != nil {
		s.logger.WarnContext(ctx, "risk_service: clear pending opportunities failed", slog.String("error", err.Error()))
		return
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "risk_service: cleared pending opportunities", slog.Int64("count", n))
	}
}

func (s *RiskService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, s.account.ID, event, detail); err != nil {
		s.logger.WarnContext(ctx, "risk_service: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
