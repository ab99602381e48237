package pipeline

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/pairarb/internal/domain"
	"github.com/alanyoungcy/pairarb/internal/events"
	"github.com/alanyoungcy/pairarb/internal/executor"
	"github.com/alanyoungcy/pairarb/internal/store/memory"
)

var testAccount = domain.Account{ID: "acct-1"}

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fakeMarkets struct {
	mu      sync.Mutex
	markets []domain.Market
	err     error
	calls   int
}

func (f *fakeMarkets) FetchCandidateMarkets(context.Context, []string) ([]domain.Market, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.markets, f.err
}

func (f *fakeMarkets) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type noBooks struct{}

func (noBooks) GetOrderBook(_ context.Context, tokenID string) (domain.OrderBook, error) {
	return domain.OrderBook{TokenID: tokenID}, nil
}

type fakeDetector struct{ opps []domain.Opportunity }

func (f *fakeDetector) DetectBatch(context.Context, []domain.Market, domain.BookSource, domain.Settings) []domain.Opportunity {
	out := make([]domain.Opportunity, len(f.opps))
	copy(out, f.opps)
	return out
}

type fakeGate struct {
	mu       sync.Mutex
	deny     map[string]string // market id -> reason
	standing domain.RiskStatus
	checks   int
}

func (g *fakeGate) CanTrade(_ context.Context, opp domain.Opportunity) domain.Decision {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.checks++
	if r, ok := g.deny[opp.MarketID]; ok {
		return domain.Deny(r)
	}
	return domain.Allow()
}

func (g *fakeGate) EvaluateStanding(context.Context) (domain.RiskStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.standing, nil
}

type fakeExecutor struct {
	mu        sync.Mutex
	executed  []string
	fail      bool
	cancelled []string
	settled   map[string]string
	trades    *memory.TradeStore
}

func (f *fakeExecutor) Execute(_ context.Context, opp domain.Opportunity, st domain.Settings) (executor.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executed = append(f.executed, opp.ID)
	if f.fail {
		return executor.Result{Trade: domain.Trade{Status: domain.TradeFailed}}, domain.ErrLegFailed
	}
	return executor.Result{Trade: domain.Trade{OpportunityID: opp.ID, Status: domain.TradePlaced}}, nil
}

func (f *fakeExecutor) Cancel(ctx context.Context, tradeID string) (domain.Trade, error) {
	f.mu.Lock()
	f.cancelled = append(f.cancelled, tradeID)
	f.mu.Unlock()
	t, err := f.trades.GetByID(ctx, testAccount.ID, tradeID)
	if err != nil {
		return domain.Trade{}, err
	}
	t.Status = domain.TradeCancelled
	return t, f.trades.Update(ctx, t)
}

func (f *fakeExecutor) Reconcile(_ context.Context, t domain.Trade) (domain.Trade, bool, error) {
	return t, false, nil
}

func (f *fakeExecutor) Settle(ctx context.Context, t domain.Trade, result string) (domain.Trade, error) {
	f.mu.Lock()
	if f.settled == nil {
		f.settled = map[string]string{}
	}
	f.settled[t.ID] = result
	f.mu.Unlock()
	t.Status = domain.TradeSettled
	return t, f.trades.Update(ctx, t)
}

func (f *fakeExecutor) executedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.executed)
}

type fakeBalance struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeBalance) RefreshBalance(context.Context) (domain.Balance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return domain.Balance{Balance: 100}, nil
}

type fakeOrders struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeOrders) CancelAllOrders(context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return true
}

type fakeAlerter struct {
	mu     sync.Mutex
	titles []string
}

func (a *fakeAlerter) Raise(_ context.Context, sev domain.AlertSeverity, title, msg string) domain.Alert {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.titles = append(a.titles, title)
	return domain.Alert{Severity: sev, Title: title, Message: msg}
}

type fakeLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

func (l *fakeLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, domain.ErrLockHeld
	}
	l.held[key] = true
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
	}, nil
}

type orchFixture struct {
	orch     *Orchestrator
	settings *memory.SettingsStore
	opps     *memory.OpportunityStore
	trades   *memory.TradeStore
	markets  *fakeMarkets
	detector *fakeDetector
	gate     *fakeGate
	exec     *fakeExecutor
	balance  *fakeBalance
	orders   *fakeOrders
	alerts   *fakeAlerter
	events   *events.Recorder
	locks    *fakeLocks
}

func newOrchFixture(st domain.Settings) *orchFixture {
	f := &orchFixture{
		settings: memory.NewSettingsStore(),
		opps:     memory.NewOpportunityStore(),
		trades:   memory.NewTradeStore(),
		markets:  &fakeMarkets{markets: []domain.Market{{ID: "m-1"}, {ID: "m-2"}}},
		detector: &fakeDetector{},
		gate:     &fakeGate{deny: map[string]string{}},
		balance:  &fakeBalance{},
		orders:   &fakeOrders{},
		alerts:   &fakeAlerter{},
		events:   &events.Recorder{},
		locks:    &fakeLocks{held: map[string]bool{}},
	}
	f.exec = &fakeExecutor{trades: f.trades}
	st.AccountID = testAccount.ID
	_ = f.settings.Upsert(context.Background(), st)
	f.orch = NewOrchestrator(testAccount, Deps{
		Settings:      f.settings,
		Opportunities: f.opps,
		Trades:        f.trades,
		Markets:       f.markets,
		Books:         noBooks{},
		Balance:       f.balance,
		Orders:        f.orders,
		Detector:      f.detector,
		Gate:          f.gate,
		Executor:      f.exec,
		Alerts:        f.alerts,
		Events:        f.events,
		Locks:         f.locks,
		Audit:         memory.NewAuditStore(),
	}, Config{LockWait: 50 * time.Millisecond}, discardLogger())
	return f
}

func testSettings() domain.Settings {
	return domain.Settings{
		PositionSize:     10,
		ProfitThreshold:  0.01,
		DailyLossLimit:   50,
		MaxOpenPositions: 10,
		ScanInterval:     time.Hour,
	}
}

func opp(id, market string, spread float64) domain.Opportunity {
	return domain.Opportunity{
		ID:        id,
		AccountID: testAccount.ID,
		MarketID:  market,
		YesPrice:  0.45,
		NoPrice:   0.52,
		TotalCost: 0.97,
		Spread:    spread,
		Status:    domain.OpportunityPending,
	}
}
