package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/pairarb/internal/domain"
	"github.com/alanyoungcy/pairarb/internal/events"
	"github.com/alanyoungcy/pairarb/internal/store/memory"
)

var testAccount = domain.Account{ID: "acct-1"}

type placeResult struct {
	id  string
	err error
}

type fakeGateway struct {
	mu        sync.Mutex
	place     map[string]placeResult // by token
	placed    []domain.LegOrder
	cancelled []string
	cancelOK  bool
	status    map[string]domain.LegStatus
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		place:    map[string]placeResult{},
		status:   map[string]domain.LegStatus{},
		cancelOK: true,
	}
}

func (g *fakeGateway) PlaceOrder(_ context.Context, req domain.LegOrder) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.placed = append(g.placed, req)
	r, ok := g.place[req.TokenID]
	if !ok {
		return "order-" + req.TokenID, nil
	}
	return r.id, r.err
}

func (g *fakeGateway) CancelOrder(_ context.Context, id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelled = append(g.cancelled, id)
	return g.cancelOK
}

func (g *fakeGateway) CancelAllOrders(context.Context) bool { return true }

func (g *fakeGateway) GetOrderStatus(_ context.Context, id string) (domain.LegStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.status[id]
	if !ok {
		return domain.LegOpen, nil
	}
	return st, nil
}

type fakeAlerter struct {
	mu     sync.Mutex
	alerts []domain.Alert
}

func (a *fakeAlerter) Raise(_ context.Context, sev domain.AlertSeverity, title, msg string) domain.Alert {
	a.mu.Lock()
	defer a.mu.Unlock()
	al := domain.Alert{Severity: sev, Title: title, Message: msg}
	a.alerts = append(a.alerts, al)
	return al
}

func (a *fakeAlerter) count(sev domain.AlertSeverity) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, al := range a.alerts {
		if al.Severity == sev {
			n++
		}
	}
	return n
}

type fixture struct {
	exec   *Executor
	trades *memory.TradeStore
	pnl    *memory.DailyPnLStore
	gw     *fakeGateway
	alerts *fakeAlerter
	events *events.Recorder
}

func newFixture() *fixture {
	f := &fixture{
		trades: memory.NewTradeStore(),
		pnl:    memory.NewDailyPnLStore(),
		gw:     newFakeGateway(),
		alerts: &fakeAlerter{},
		events: &events.Recorder{},
	}
	f.exec = NewExecutor(testAccount, Deps{
		Trades: f.trades,
		Orders: f.gw,
		PnL:    f.pnl,
		Alerts: f.alerts,
		Events: f.events,
		Audit:  memory.NewAuditStore(),
	}, Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return f
}

func opportunity() domain.Opportunity {
	return domain.Opportunity{
		ID:        "opp-1",
		AccountID: testAccount.ID,
		MarketID:  "m-1",
		YesToken:  "yes",
		NoToken:   "no",
		YesPrice:  0.45,
		NoPrice:   0.52,
		TotalCost: 0.97,
		Spread:    0.03,
	}
}

func settings() domain.Settings {
	return domain.Settings{AccountID: testAccount.ID, PositionSize: 10}
}

func (f *fixture) stored(t *testing.T, id string) domain.Trade {
	t.Helper()
	tr, err := f.trades.GetByID(context.Background(), testAccount.ID, id)
	if err != nil {
		t.Fatalf("get trade %s: %v", id, err)
	}
	return tr
}

func TestExecute_PlacesBothLegs(t *testing.T) {
	f := newFixture()
	res, err := f.exec.Execute(context.Background(), opportunity(), settings())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Trade.Status != domain.TradePlaced {
		t.Fatalf("status=%s want placed", res.Trade.Status)
	}
	if res.YesOrderID != "order-yes" || res.NoOrderID != "order-no" {
		t.Fatalf("order ids=%q,%q", res.YesOrderID, res.NoOrderID)
	}
	wantShares := 10 / 0.97
	if math.Abs(res.Trade.Shares-wantShares) > 1e-12 {
		t.Fatalf("shares=%v want %v", res.Trade.Shares, wantShares)
	}
	if len(f.gw.placed) != 2 || f.gw.placed[0].TokenID != "yes" || f.gw.placed[1].TokenID != "no" {
		t.Fatalf("placed=%+v want yes then no", f.gw.placed)
	}
	for _, leg := range f.gw.placed {
		if leg.Side != domain.OrderSideBuy || leg.Size != res.Trade.Shares {
			t.Fatalf("leg=%+v want buy of %v shares", leg, res.Trade.Shares)
		}
	}

	stored := f.stored(t, res.Trade.ID)
	if stored.Status != domain.TradePlaced || stored.YesOrderID == nil || stored.NoOrderID == nil {
		t.Fatalf("stored=%+v want placed with both ids", stored)
	}
	if got := f.events.Count(domain.EventTradeCreated); got != 1 {
		t.Fatalf("trade created events=%d want 1", got)
	}
}

func TestExecute_YesLegFailureRollsBackYesOnly(t *testing.T) {
	f := newFixture()
	f.gw.place["yes"] = placeResult{id: "yes-hash", err: context.DeadlineExceeded}

	res, err := f.exec.Execute(context.Background(), opportunity(), settings())
	if !errors.Is(err, domain.ErrLegFailed) {
		t.Fatalf("err=%v want ErrLegFailed", err)
	}
	if res.Trade.Status != domain.TradeFailed {
		t.Fatalf("status=%s want failed", res.Trade.Status)
	}
	if len(f.gw.placed) != 1 {
		t.Fatalf("placements=%d want 1, no leg must not be attempted", len(f.gw.placed))
	}
	if len(f.gw.cancelled) != 1 || f.gw.cancelled[0] != "yes-hash" {
		t.Fatalf("cancelled=%v want [yes-hash]", f.gw.cancelled)
	}
	if got := f.stored(t, res.Trade.ID).Status; got != domain.TradeFailed {
		t.Fatalf("stored status=%s want failed", got)
	}
	if got := f.alerts.count(domain.SeverityError); got != 1 {
		t.Fatalf("error alerts=%d want 1", got)
	}
}

func TestExecute_YesLegRejectedWithoutIDCancelsNothing(t *testing.T) {
	f := newFixture()
	f.gw.place["yes"] = placeResult{err: errors.New("order rejected")}

	res, err := f.exec.Execute(context.Background(), opportunity(), settings())
	if err == nil {
		t.Fatalf("err=nil want failure")
	}
	if res.Trade.Status != domain.TradeFailed {
		t.Fatalf("status=%s want failed", res.Trade.Status)
	}
	if len(f.gw.cancelled) != 0 {
		t.Fatalf("cancelled=%v want none", f.gw.cancelled)
	}
}

func TestExecute_NoLegFailureCancelsYesLeg(t *testing.T) {
	f := newFixture()
	f.gw.place["no"] = placeResult{err: errors.New("insufficient liquidity")}
	f.gw.cancelOK = false

	res, err := f.exec.Execute(context.Background(), opportunity(), settings())
	if !errors.Is(err, domain.ErrLegFailed) {
		t.Fatalf("err=%v want ErrLegFailed", err)
	}
	if res.Trade.Status != domain.TradeFailed {
		t.Fatalf("status=%s want failed", res.Trade.Status)
	}
	if len(f.gw.cancelled) != 1 || f.gw.cancelled[0] != "order-yes" {
		t.Fatalf("cancelled=%v want [order-yes]", f.gw.cancelled)
	}
	stored := f.stored(t, res.Trade.ID)
	if stored.Status != domain.TradeFailed || stored.Error == "" {
		t.Fatalf("stored=%+v want failed with error", stored)
	}
}

func TestExecute_CancelledContextStillRollsBack(t *testing.T) {
	f := newFixture()
	f.gw.place["no"] = placeResult{err: context.Canceled}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	res, err := f.exec.Execute(ctx, opportunity(), settings())
	if err == nil {
		t.Fatalf("err=nil want failure")
	}
	if got := f.stored(t, res.Trade.ID).Status; got != domain.TradeFailed {
		t.Fatalf("stored status=%s want failed", got)
	}
}

func TestExecute_ThenCancel(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	res, err := f.exec.Execute(ctx, opportunity(), settings())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	f.gw.cancelOK = false

	tr, err := f.exec.Cancel(ctx, res.Trade.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if tr.Status != domain.TradeCancelled {
		t.Fatalf("status=%s want cancelled", tr.Status)
	}
	if got := f.stored(t, res.Trade.ID).Status; got != domain.TradeCancelled {
		t.Fatalf("stored status=%s want cancelled", got)
	}
	if len(f.gw.cancelled) != 2 {
		t.Fatalf("cancel attempts=%d want 2", len(f.gw.cancelled))
	}
	if got := f.events.Count(domain.EventTradeCancelled); got != 1 {
		t.Fatalf("cancelled events=%d want 1", got)
	}
	if got := f.alerts.count(domain.SeverityWarning); got != 1 {
		t.Fatalf("warning alerts=%d want 1", got)
	}

	// Cancelling again is idempotent.
	if _, err := f.exec.Cancel(ctx, res.Trade.ID); err != nil {
		t.Fatalf("second Cancel: %v", err)
	}
	if got := f.events.Count(domain.EventTradeCancelled); got != 1 {
		t.Fatalf("cancelled events=%d want 1", got)
	}
}

func TestCancel_UnknownTrade(t *testing.T) {
	f := newFixture()
	_, err := f.exec.Cancel(context.Background(), "nope")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err=%v want ErrNotFound", err)
	}
}

func TestDeriveStatus(t *testing.T) {
	tests := []struct {
		yes, no domain.LegStatus
		want    domain.TradeStatus
	}{
		{domain.LegMatched, domain.LegMatched, domain.TradeFilled},
		{domain.LegMatched, domain.LegOpen, domain.TradePartial},
		{domain.LegOpen, domain.LegMatched, domain.TradePartial},
		{domain.LegMatched, domain.LegCancelled, domain.TradePartial},
		{domain.LegCancelled, domain.LegOpen, domain.TradeCancelled},
		{domain.LegOpen, domain.LegCancelled, domain.TradeCancelled},
		{domain.LegOpen, domain.LegOpen, domain.TradePlaced},
		{domain.LegUnknown, domain.LegOpen, domain.TradePlaced},
	}
	for _, tt := range tests {
		if got := DeriveStatus(domain.TradePlaced, tt.yes, tt.no); got != tt.want {
			t.Fatalf("DeriveStatus(%s,%s)=%s want %s", tt.yes, tt.no, got, tt.want)
		}
	}
}

func TestReconcile_PersistsOnlyOnChange(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	res, err := f.exec.Execute(ctx, opportunity(), settings())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	tr, changed, err := f.exec.Reconcile(ctx, res.Trade)
	if err != nil || changed {
		t.Fatalf("changed=%v err=%v want unchanged", changed, err)
	}

	f.gw.status["order-yes"] = domain.LegMatched
	tr, changed, err = f.exec.Reconcile(ctx, tr)
	if err != nil || !changed || tr.Status != domain.TradePartial {
		t.Fatalf("status=%s changed=%v err=%v want partial", tr.Status, changed, err)
	}

	f.gw.status["order-no"] = domain.LegMatched
	tr, changed, err = f.exec.Reconcile(ctx, tr)
	if err != nil || !changed || tr.Status != domain.TradeFilled {
		t.Fatalf("status=%s changed=%v err=%v want filled", tr.Status, changed, err)
	}
	if got := f.stored(t, tr.ID).Status; got != domain.TradeFilled {
		t.Fatalf("stored status=%s want filled", got)
	}
}

func TestSettle_UsesRecordedCost(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	res, err := f.exec.Execute(ctx, opportunity(), settings())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	tr, err := f.exec.Settle(ctx, res.Trade, "yes")
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	want := (10 / 0.97) * (1 - 0.97)
	if tr.ActualProfit == nil || math.Abs(*tr.ActualProfit-want) > 1e-9 {
		t.Fatalf("actual profit=%v want %v", tr.ActualProfit, want)
	}
	if tr.Status != domain.TradeSettled || tr.SettledAt == nil || *tr.SettlementResult != "yes" {
		t.Fatalf("trade=%+v want settled yes", tr)
	}

	day, _ := f.pnl.Get(ctx, testAccount.ID, time.Now())
	if day.TradeCount != 1 || day.WinCount != 1 || math.Abs(day.RealizedPnL-want) > 1e-9 {
		t.Fatalf("daily pnl=%+v want 1 trade 1 win %v", day, want)
	}
	if got := f.events.Count(domain.EventTradeSettled); got != 1 {
		t.Fatalf("settled events=%d want 1", got)
	}

	if _, err := f.exec.Settle(ctx, tr, "yes"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("second settle err=%v want ErrInvalidTransition", err)
	}
}

func TestSettle_RejectsUnknownResult(t *testing.T) {
	f := newFixture()
	tr := domain.Trade{ID: "t", Status: domain.TradePlaced}
	if _, err := f.exec.Settle(context.Background(), tr, "maybe"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("err=%v want ErrInvalidTransition", err)
	}
}

// flipSettings reports the kill switch on from the flipAt-th read onward.
type flipSettings struct {
	*memory.SettingsStore
	mu     sync.Mutex
	reads  int
	flipAt int
}

func (f *flipSettings) Get(ctx context.Context, accountID string) (domain.Settings, error) {
	f.mu.Lock()
	f.reads++
	on := f.reads >= f.flipAt
	f.mu.Unlock()
	st, err := f.SettingsStore.Get(ctx, accountID)
	st.KillSwitch = on
	return st, err
}

func TestExecute_KillSwitchBetweenGateAndLegs(t *testing.T) {
	tests := []struct {
		name       string
		flipAt     int
		wantPlaced int
		wantCancel []string
	}{
		{"before yes leg", 1, 0, nil},
		{"before no leg", 2, 1, []string{"order-yes"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := memory.NewSettingsStore()
			_ = store.Upsert(ctx, settings())

			f := newFixture()
			f.exec = NewExecutor(testAccount, Deps{
				Settings: &flipSettings{SettingsStore: store, flipAt: tt.flipAt},
				Trades:   f.trades,
				Orders:   f.gw,
				PnL:      f.pnl,
				Alerts:   f.alerts,
				Events:   f.events,
			}, Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))

			res, err := f.exec.Execute(ctx, opportunity(), settings())
			if !errors.Is(err, domain.ErrKillSwitchActive) {
				t.Fatalf("err=%v want ErrKillSwitchActive", err)
			}
			if len(f.gw.placed) != tt.wantPlaced {
				t.Fatalf("placed=%d want %d", len(f.gw.placed), tt.wantPlaced)
			}
			if len(f.gw.cancelled) != len(tt.wantCancel) || (len(tt.wantCancel) > 0 && f.gw.cancelled[0] != tt.wantCancel[0]) {
				t.Fatalf("cancelled=%v want %v", f.gw.cancelled, tt.wantCancel)
			}
			if got := f.stored(t, res.Trade.ID); got.Status != domain.TradeFailed {
				t.Fatalf("stored status=%s want failed", got.Status)
			}
		})
	}
}
