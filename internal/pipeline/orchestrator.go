// Package pipeline runs the per-account scan loop and the background jobs
// around it: settlement watching, order reconciliation and archival.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/pairarb/internal/domain"
	"github.com/alanyoungcy/pairarb/internal/executor"
	"github.com/alanyoungcy/pairarb/internal/service"
)

// Gate is the risk manager as seen by the orchestrator.
type Gate interface {
	CanTrade(ctx context.Context, opp domain.Opportunity) domain.Decision
	EvaluateStanding(ctx context.Context) (domain.RiskStatus, error)
}

// TradeExecutor is the order executor as seen by the orchestrator.
type TradeExecutor interface {
	Execute(ctx context.Context, opp domain.Opportunity, st domain.Settings) (executor.Result, error)
	Cancel(ctx context.Context, tradeID string) (domain.Trade, error)
	Reconcile(ctx context.Context, trade domain.Trade) (domain.Trade, bool, error)
	Settle(ctx context.Context, trade domain.Trade, result string) (domain.Trade, error)
}

// KillSwitch is the risk manager's switch control.
type KillSwitch interface {
	Activate(ctx context.Context, reason string) error
	Deactivate(ctx context.Context) error
	Toggle(ctx context.Context) (service.KillSwitchState, error)
}

// OpportunityDetector prices a batch of candidate markets.
type OpportunityDetector interface {
	DetectBatch(ctx context.Context, markets []domain.Market, books domain.BookSource, st domain.Settings) []domain.Opportunity
}

// BalanceRefresher fetches the balance and broadcasts it.
type BalanceRefresher interface {
	RefreshBalance(ctx context.Context) (domain.Balance, error)
}

// OrderCanceller cancels every open exchange order of the account.
type OrderCanceller interface {
	CancelAllOrders(ctx context.Context) bool
}

// Deps bundles the orchestrator's collaborators. Switch, Locks, Audit,
// Watcher, Reconciler and Archiver are optional.
type Deps struct {
	Settings      domain.SettingsStore
	Opportunities domain.OpportunityStore
	Trades        domain.TradeStore
	Markets       domain.MarketSource
	Books         domain.BookSource
	Balance       BalanceRefresher
	Orders        OrderCanceller
	Detector      OpportunityDetector
	Gate          Gate
	Switch        KillSwitch
	Executor      TradeExecutor
	Alerts        domain.Alerter
	Events        domain.EventSink
	Locks         domain.LockManager
	Audit         domain.AuditStore
	Watcher       *ResolutionWatcher
	Reconciler    *Reconciler
	Archiver      *Archiver
}

// Config holds the orchestrator's timing parameters.
type Config struct {
	// OpportunityTTL is how long a queued opportunity waits for approval.
	OpportunityTTL time.Duration
	// SourceTimeout bounds the candidate market fetch.
	SourceTimeout time.Duration
	// LockTTL is the lease on the cross-process account lock.
	LockTTL time.Duration
	// LockWait is how long human actions wait for the account lock.
	LockWait time.Duration
	// ArchiveCron schedules the archiver.
	ArchiveCron string
}

// DefaultConfig returns the standard timings.
func DefaultConfig() Config {
	return Config{
		OpportunityTTL: 5 * time.Minute,
		SourceTimeout:  15 * time.Second,
		LockTTL:        2 * time.Minute,
		LockWait:       10 * time.Second,
		ArchiveCron:    "0 3 * * *",
	}
}

// CycleReport summarizes one scan cycle.
type CycleReport struct {
	Skipped    string `json:"skipped,omitempty"`
	Candidates int    `json:"candidates"`
	Detected   int    `json:"detected"`
	Duplicates int    `json:"duplicates"`
	Denied     int    `json:"denied"`
	Queued     int    `json:"queued"`
	Executed   int    `json:"executed"`
	Failed     int    `json:"failed"`
	Expired    int64  `json:"expired"`
}

// Orchestrator runs the scan loop of one account and owns every entry point
// that mutates its trading state. Entries are serialized in process by a
// mutex and across processes by a lease on lock:account:<id>.
type Orchestrator struct {
	account domain.Account
	d       Deps
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time

	// mu serializes cycles, approvals and cancels.
	mu sync.Mutex

	timerMu   sync.Mutex
	interval  time.Duration
	stopTimer context.CancelFunc
	stopped   bool
}

// NewOrchestrator creates an Orchestrator for account.
func NewOrchestrator(account domain.Account, deps Deps, cfg Config, logger *slog.Logger) *Orchestrator {
	def := DefaultConfig()
	if cfg.OpportunityTTL <= 0 {
		cfg.OpportunityTTL = def.OpportunityTTL
	}
	if cfg.SourceTimeout <= 0 {
		cfg.SourceTimeout = def.SourceTimeout
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = def.LockTTL
	}
	if cfg.LockWait <= 0 {
		cfg.LockWait = def.LockWait
	}
	if cfg.ArchiveCron == "" {
		cfg.ArchiveCron = def.ArchiveCron
	}
	return &Orchestrator{
		account: account,
		d:       deps,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "orchestrator"), slog.String("account", account.ID)),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// LockKey is the cross-process lock name of an account.
func LockKey(accountID string) string { return "lock:account:" + accountID }

// acquire takes the account lock for an entry point. With wait > 0 it
// retries a held remote lock until wait elapses. Once Shutdown has begun
// every entry is refused with ErrShuttingDown.
func (o *Orchestrator) acquire(ctx context.Context, wait time.Duration) (func(), error) {
	o.mu.Lock()
	if o.isStopped() {
		o.mu.Unlock()
		return nil, fmt.Errorf("orchestrator: %w", domain.ErrShuttingDown)
	}
	release, err := o.lease(ctx, wait)
	if err != nil {
		o.mu.Unlock()
		return nil, err
	}
	return func() {
		release()
		o.mu.Unlock()
	}, nil
}

// lease takes the cross-process lease on the account. The caller holds mu.
func (o *Orchestrator) lease(ctx context.Context, wait time.Duration) (func(), error) {
	if o.d.Locks == nil {
		return func() {}, nil
	}
	deadline := time.Now().Add(wait)
	for {
		unlock, err := o.d.Locks.Acquire(ctx, LockKey(o.account.ID), o.cfg.LockTTL)
		if err == nil {
			return unlock, nil
		}
		if !errors.Is(err, domain.ErrLockHeld) || time.Now().After(deadline) {
			return nil, fmt.Errorf("orchestrator: account lock: %w", err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
}

func (o *Orchestrator) isStopped() bool {
	o.timerMu.Lock()
	defer o.timerMu.Unlock()
	return o.stopped
}

// Run starts the scan loop and the background jobs and blocks until ctx is
// cancelled or a job fails.
func (o *Orchestrator) Run(ctx context.Context) error {
	st, err := o.d.Settings.Get(ctx, o.account.ID)
	if err != nil {
		return fmt.Errorf("orchestrator: load settings: %w", err)
	}
	o.timerMu.Lock()
	if o.interval <= 0 {
		o.interval = st.ScanInterval
	}
	o.timerMu.Unlock()

	o.logger.InfoContext(ctx, "orchestrator: starting",
		slog.Duration("scan_interval", o.currentInterval()),
		slog.Bool("auto_mode", st.AutoMode),
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := o.runScanLoop(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("scan loop: %w", err)
	})

	if o.d.Watcher != nil {
		g.Go(func() error {
			err := o.d.Watcher.Run(ctx)
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("resolution watcher: %w", err)
		})
	}

	if o.d.Reconciler != nil {
		g.Go(func() error {
			err := o.d.Reconciler.Run(ctx)
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("reconciler: %w", err)
		})
	}

	if o.d.Archiver != nil {
		g.Go(func() error {
			err := o.d.Archiver.RunCron(ctx, o.cfg.ArchiveCron)
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("archiver: %w", err)
		})
	}

	if err := g.Wait(); err != nil {
		o.logger.Error("orchestrator: stopped with error", slog.String("error", err.Error()))
		return err
	}
	o.logger.Info("orchestrator: stopped cleanly")
	return nil
}

func (o *Orchestrator) currentInterval() time.Duration {
	o.timerMu.Lock()
	defer o.timerMu.Unlock()
	return o.interval
}

// runScanLoop runs one cycle immediately, then one per interval. Each
// period gets its own timer context; SetInterval cancels it and the loop
// starts over with the new period. A cycle in progress is never cut short
// by a restart.
func (o *Orchestrator) runScanLoop(ctx context.Context) error {
	o.runOnce(ctx)
	for {
		timerCtx, cancel := context.WithCancel(ctx)
		o.timerMu.Lock()
		if o.stopped {
			o.timerMu.Unlock()
			cancel()
			<-ctx.Done()
			return ctx.Err()
		}
		o.stopTimer = cancel
		interval := o.interval
		o.timerMu.Unlock()

		o.tick(ctx, timerCtx, interval)
		cancel()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		o.logger.InfoContext(ctx, "orchestrator: scan timer restarted", slog.Duration("scan_interval", o.currentInterval()))
	}
}

func (o *Orchestrator) tick(ctx, timerCtx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-timerCtx.Done():
			return
		case <-ticker.C:
			if timerCtx.Err() != nil {
				return
			}
			o.runOnce(ctx)
		}
	}
}

// SetInterval changes the scan period. The running timer is cancelled and
// replaced; the next cycle is one full new period away.
func (o *Orchestrator) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	o.timerMu.Lock()
	defer o.timerMu.Unlock()
	if d == o.interval {
		return
	}
	o.interval = d
	if o.stopTimer != nil {
		o.stopTimer()
	}
}

// runOnce runs a cycle and absorbs its error so the next cycle still runs.
func (o *Orchestrator) runOnce(ctx context.Context) {
	if o.isStopped() || ctx.Err() != nil {
		return
	}

	report, err := o.RunCycle(ctx)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, domain.ErrShuttingDown) {
			return
		}
		o.logger.ErrorContext(ctx, "orchestrator: scan cycle failed", slog.String("error", err.Error()))
		o.d.Alerts.Raise(ctx, domain.SeverityError, "Scan cycle failed", err.Error())
		return
	}
	o.logger.DebugContext(ctx, "orchestrator: scan cycle complete", slog.Any("report", report))
}

// RunCycle performs one scan:
//
//  1. skip entirely while the kill switch is on
//  2. standing risk evaluation; stop if it halts trading
//  3. fetch candidate markets; stop if none
//  4. detect opportunities, best spread first
//  5. per opportunity: de-duplicate by market, gate, then execute (auto
//     mode) or queue for approval
//  6. expire stale pending opportunities
//  7. refresh and broadcast the balance
func (o *Orchestrator) RunCycle(ctx context.Context) (CycleReport, error) {
	var report CycleReport

	unlock, err := o.acquire(ctx, 0)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			report.Skipped = "account locked by another process"
			o.logger.DebugContext(ctx, "orchestrator: cycle skipped, account locked elsewhere")
			return report, nil
		}
		return report, err
	}
	defer unlock()

	st, err := o.d.Settings.Get(ctx, o.account.ID)
	if err != nil {
		return report, fmt.Errorf("orchestrator: load settings: %w", err)
	}
	if st.KillSwitch {
		report.Skipped = "kill switch active"
		return report, nil
	}

	status, err := o.d.Gate.EvaluateStanding(ctx)
	if err != nil {
		return report, fmt.Errorf("orchestrator: standing risk: %w", err)
	}
	if status.KillSwitch {
		report.Skipped = "kill switch activated: " + status.KillSwitchReason
		return report, nil
	}

	mctx, cancel := context.WithTimeout(ctx, o.cfg.SourceTimeout)
	markets, err := o.d.Markets.FetchCandidateMarkets(mctx, st.ActiveCurrencies)
	cancel()
	if err != nil {
		return report, fmt.Errorf("orchestrator: fetch candidates: %w", err)
	}
	report.Candidates = len(markets)
	if len(markets) == 0 {
		report.Skipped = "no candidate markets"
		return report, nil
	}

	opps := o.d.Detector.DetectBatch(ctx, markets, o.d.Books, st)
	report.Detected = len(opps)

	for _, opp := range opps {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		o.consider(ctx, opp, &report)
	}

	expired, err := o.d.Opportunities.ExpirePending(ctx, o.account.ID, o.now())
	if err != nil {
		o.logger.WarnContext(ctx, "orchestrator: expire pending failed", slog.String("error", err.Error()))
	}
	report.Expired = expired

	if _, err := o.d.Balance.RefreshBalance(ctx); err != nil {
		o.logger.WarnContext(ctx, "orchestrator: balance refresh failed", slog.String("error", err.Error()))
	}

	o.logger.InfoContext(ctx, "orchestrator: scan cycle",
		slog.Int("candidates", report.Candidates),
		slog.Int("detected", report.Detected),
		slog.Int("queued", report.Queued),
		slog.Int("executed", report.Executed),
		slog.Int("denied", report.Denied),
		slog.Int64("expired", report.Expired),
	)
	return report, nil
}

// consider runs step 5 for one opportunity. Failures only affect that
// opportunity.
func (o *Orchestrator) consider(ctx context.Context, opp domain.Opportunity, report *CycleReport) {
	log := o.logger.With(slog.String("market_id", opp.MarketID), slog.Float64("spread", opp.Spread))

	dup, err := o.d.Opportunities.ExistsPendingForMarket(ctx, o.account.ID, opp.MarketID)
	if err != nil {
		log.WarnContext(ctx, "orchestrator: pending lookup failed", slog.String("error", err.Error()))
		return
	}
	if dup {
		report.Duplicates++
		return
	}

	if d := o.d.Gate.CanTrade(ctx, opp); !d.Allowed {
		report.Denied++
		log.InfoContext(ctx, "orchestrator: opportunity denied", slog.String("reason", d.Reason))
		return
	}

	st, err := o.d.Settings.Get(ctx, o.account.ID)
	if err != nil {
		log.WarnContext(ctx, "orchestrator: reload settings failed", slog.String("error", err.Error()))
		return
	}

	opp.AccountID = o.account.ID
	opp.Status = domain.OpportunityPending
	opp.ExpiresAt = o.now().Add(o.cfg.OpportunityTTL)
	if err := o.d.Opportunities.Create(ctx, opp); err != nil {
		log.WarnContext(ctx, "orchestrator: persist opportunity failed", slog.String("error", err.Error()))
		return
	}

	if st.AutoMode {
		if _, err := o.execute(ctx, opp, st); err != nil {
			report.Failed++
			return
		}
		report.Executed++
		return
	}

	report.Queued++
	o.d.Events.Emit(domain.Event{Name: domain.EventOpportunityNew, AccountID: o.account.ID, Payload: opp})
	o.d.Alerts.Raise(ctx, domain.SeverityInfo, "New opportunity", fmt.Sprintf(
		"%s: spread %.2f%%, expected profit $%.2f, awaiting approval",
		label(opp), opp.Spread*100, opp.ExpectedProfit))
}

func label(opp domain.Opportunity) string {
	if opp.Question != "" {
		return opp.Question
	}
	return opp.MarketID
}

// execute hands a gated opportunity to the executor and records the outcome
// on the opportunity.
func (o *Orchestrator) execute(ctx context.Context, opp domain.Opportunity, st domain.Settings) (executor.Result, error) {
	res, err := o.d.Executor.Execute(ctx, opp, st)
	status := domain.OpportunityApproved
	if err != nil {
		status = domain.OpportunityFailed
		o.logger.WarnContext(ctx, "orchestrator: execution failed",
			slog.String("opportunity_id", opp.ID),
			slog.String("error", err.Error()),
		)
	}
	if uerr := o.d.Opportunities.UpdateStatus(context.WithoutCancel(ctx), o.account.ID, opp.ID, status); uerr != nil {
		o.logger.WarnContext(ctx, "orchestrator: update opportunity status failed",
			slog.String("opportunity_id", opp.ID),
			slog.String("error", uerr.Error()),
		)
	}
	return res, err
}

// Approve is the human decision on a queued opportunity. The gate runs
// again against current settings; a denial leaves the opportunity pending
// and returns ErrRiskDenied.
func (o *Orchestrator) Approve(ctx context.Context, oppID string) (executor.Result, error) {
	unlock, err := o.acquire(ctx, o.cfg.LockWait)
	if err != nil {
		return executor.Result{}, err
	}
	defer unlock()

	opp, err := o.pendingOpportunity(ctx, oppID)
	if err != nil {
		return executor.Result{}, err
	}

	if d := o.d.Gate.CanTrade(ctx, opp); !d.Allowed {
		return executor.Result{}, fmt.Errorf("orchestrator: approve %s: %w: %s", oppID, domain.ErrRiskDenied, d.Reason)
	}
	st, err := o.d.Settings.Get(ctx, o.account.ID)
	if err != nil {
		return executor.Result{}, fmt.Errorf("orchestrator: load settings: %w", err)
	}

	o.auditLog(ctx, "opportunity_approved", map[string]any{"opportunity_id": oppID})
	return o.execute(ctx, opp, st)
}

// Reject discards a queued opportunity.
func (o *Orchestrator) Reject(ctx context.Context, oppID string) (domain.Opportunity, error) {
	unlock, err := o.acquire(ctx, o.cfg.LockWait)
	if err != nil {
		return domain.Opportunity{}, err
	}
	defer unlock()

	opp, err := o.pendingOpportunity(ctx, oppID)
	if err != nil {
		return domain.Opportunity{}, err
	}
	if err := o.d.Opportunities.UpdateStatus(ctx, o.account.ID, oppID, domain.OpportunityRejected); err != nil {
		return domain.Opportunity{}, fmt.Errorf("orchestrator: reject %s: %w", oppID, err)
	}
	opp.Status = domain.OpportunityRejected
	o.auditLog(ctx, "opportunity_rejected", map[string]any{"opportunity_id": oppID})
	return opp, nil
}

// pendingOpportunity loads an opportunity that can still be decided on. An
// opportunity found past its expiry is expired on the spot.
func (o *Orchestrator) pendingOpportunity(ctx context.Context, oppID string) (domain.Opportunity, error) {
	opp, err := o.d.Opportunities.GetByID(ctx, o.account.ID, oppID)
	if err != nil {
		return domain.Opportunity{}, fmt.Errorf("orchestrator: opportunity %s: %w", oppID, err)
	}
	if opp.Status != domain.OpportunityPending {
		return opp, fmt.Errorf("orchestrator: opportunity %s is %s: %w", oppID, opp.Status, domain.ErrInvalidTransition)
	}
	if opp.Expired(o.now()) {
		if err := o.d.Opportunities.UpdateStatus(ctx, o.account.ID, oppID, domain.OpportunityExpired); err != nil {
			o.logger.WarnContext(ctx, "orchestrator: expire opportunity failed", slog.String("error", err.Error()))
		}
		return opp, fmt.Errorf("orchestrator: opportunity %s expired: %w", oppID, domain.ErrInvalidTransition)
	}
	return opp, nil
}

// CancelTrade cancels a trade's legs under the account lock.
func (o *Orchestrator) CancelTrade(ctx context.Context, tradeID string) (domain.Trade, error) {
	unlock, err := o.acquire(ctx, o.cfg.LockWait)
	if err != nil {
		return domain.Trade{}, err
	}
	defer unlock()
	return o.d.Executor.Cancel(ctx, tradeID)
}

// ReconcileTrade refreshes a trade's status from its legs.
func (o *Orchestrator) ReconcileTrade(ctx context.Context, tradeID string) (domain.Trade, error) {
	unlock, err := o.acquire(ctx, o.cfg.LockWait)
	if err != nil {
		return domain.Trade{}, err
	}
	defer unlock()

	trade, err := o.d.Trades.GetByID(ctx, o.account.ID, tradeID)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("orchestrator: trade %s: %w", tradeID, err)
	}
	trade, _, err = o.d.Executor.Reconcile(ctx, trade)
	return trade, err
}

// SettleTrade settles a trade with the market's result.
func (o *Orchestrator) SettleTrade(ctx context.Context, tradeID, result string) (domain.Trade, error) {
	unlock, err := o.acquire(ctx, o.cfg.LockWait)
	if err != nil {
		return domain.Trade{}, err
	}
	defer unlock()

	trade, err := o.d.Trades.GetByID(ctx, o.account.ID, tradeID)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("orchestrator: trade %s: %w", tradeID, err)
	}
	return o.d.Executor.Settle(ctx, trade, result)
}

// ActivateKillSwitch engages the kill switch under the account lock, so a
// trade already past the gate finishes placing its legs before the sweep
// cancels them. An emergency stop is never refused: when the lock cannot be
// had the switch is engaged without it.
func (o *Orchestrator) ActivateKillSwitch(ctx context.Context, reason string) error {
	if o.d.Switch == nil {
		return fmt.Errorf("orchestrator: no kill switch configured")
	}
	unlock, err := o.acquire(ctx, o.cfg.LockWait)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		o.logger.WarnContext(ctx, "orchestrator: activating kill switch without account lock",
			slog.String("error", err.Error()))
		return o.d.Switch.Activate(ctx, reason)
	}
	defer unlock()
	return o.d.Switch.Activate(ctx, reason)
}

// DeactivateKillSwitch releases the kill switch under the account lock.
func (o *Orchestrator) DeactivateKillSwitch(ctx context.Context) error {
	if o.d.Switch == nil {
		return fmt.Errorf("orchestrator: no kill switch configured")
	}
	unlock, err := o.acquire(ctx, o.cfg.LockWait)
	if err != nil {
		return err
	}
	defer unlock()
	return o.d.Switch.Deactivate(ctx)
}

// ToggleKillSwitch flips the kill switch under the account lock.
func (o *Orchestrator) ToggleKillSwitch(ctx context.Context) (service.KillSwitchState, error) {
	if o.d.Switch == nil {
		return service.KillSwitchState{}, fmt.Errorf("orchestrator: no kill switch configured")
	}
	unlock, err := o.acquire(ctx, o.cfg.LockWait)
	if err != nil {
		return service.KillSwitchState{}, err
	}
	defer unlock()
	return o.d.Switch.Toggle(ctx)
}

// Shutdown stops the scan timer and refuses new entries, waits for the
// entry in flight by taking the account lock, and then, unless the kill
// switch is already on, cancels every open exchange order.
func (o *Orchestrator) Shutdown(ctx context.Context) {
	o.timerMu.Lock()
	o.stopped = true
	if o.stopTimer != nil {
		o.stopTimer()
	}
	o.timerMu.Unlock()

	o.mu.Lock()
	defer o.mu.Unlock()
	if release, err := o.lease(ctx, o.cfg.LockWait); err != nil {
		o.logger.WarnContext(ctx, "orchestrator: shutdown sweep without account lease", slog.String("error", err.Error()))
	} else {
		defer release()
	}

	st, err := o.d.Settings.Get(ctx, o.account.ID)
	if err == nil && st.KillSwitch {
		o.logger.InfoContext(ctx, "orchestrator: shutdown, kill switch already on")
		return
	}
	if err != nil {
		o.logger.WarnContext(ctx, "orchestrator: shutdown settings read failed", slog.String("error", err.Error()))
	}
	if ok := o.d.Orders.CancelAllOrders(ctx); !ok {
		o.logger.WarnContext(ctx, "orchestrator: shutdown cancel all orders failed")
		return
	}
	o.logger.InfoContext(ctx, "orchestrator: shutdown, open orders cancelled")
}

func (o *Orchestrator) auditLog(ctx context.Context, event string, detail map[string]any) {
	if o.d.Audit == nil {
		return
	}
	if err := o.d.Audit.Log(ctx, o.account.ID, event, detail); err != nil {
		o.logger.WarnContext(ctx, "orchestrator: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
