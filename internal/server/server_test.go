package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/pairarb/internal/domain"
	"github.com/alanyoungcy/pairarb/internal/executor"
	"github.com/alanyoungcy/pairarb/internal/pipeline"
	"github.com/alanyoungcy/pairarb/internal/server/handler"
	"github.com/alanyoungcy/pairarb/internal/service"
	"github.com/alanyoungcy/pairarb/internal/store/memory"
)

const acct = "acct-1"

type nopEvents struct{}

func (nopEvents) Emit(domain.Event) {}

type fakeRisk struct {
	mu     sync.Mutex
	halted bool
	reason string
}

func (f *fakeRisk) Status(context.Context) (domain.RiskStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return domain.RiskStatus{KillSwitch: f.halted, KillSwitchReason: f.reason, CanTrade: !f.halted}, nil
}

func (f *fakeRisk) ActivateKillSwitch(_ context.Context, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.halted, f.reason = true, reason
	return nil
}

func (f *fakeRisk) DeactivateKillSwitch(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.halted, f.reason = false, ""
	return nil
}

func (f *fakeRisk) ToggleKillSwitch(ctx context.Context) (service.KillSwitchState, error) {
	f.mu.Lock()
	halted := f.halted
	f.mu.Unlock()
	if halted {
		_ = f.DeactivateKillSwitch(ctx)
		return service.KillSwitchState{}, nil
	}
	_ = f.ActivateKillSwitch(ctx, "manual")
	return service.KillSwitchState{Halted: true, Reason: "manual"}, nil
}

// fakeActions answers approve/reject and trade actions from the memory
// stores.
type fakeActions struct {
	opps     *memory.OpportunityStore
	trades   *memory.TradeStore
	deny     bool
	stopping bool
}

func (f *fakeActions) Approve(ctx context.Context, id string) (executor.Result, error) {
	if f.stopping {
		return executor.Result{}, fmt.Errorf("orchestrator: %w", domain.ErrShuttingDown)
	}
	opp, err := f.opps.GetByID(ctx, acct, id)
	if err != nil {
		return executor.Result{}, err
	}
	if f.deny {
		return executor.Result{}, fmt.Errorf("approve: %w: max open positions", domain.ErrRiskDenied)
	}
	t := domain.Trade{ID: "t-" + id, AccountID: acct, OpportunityID: id, MarketID: opp.MarketID, Status: domain.TradePlaced}
	_ = f.trades.Create(ctx, t)
	return executor.Result{Trade: t}, nil
}

func (f *fakeActions) Reject(ctx context.Context, id string) (domain.Opportunity, error) {
	opp, err := f.opps.GetByID(ctx, acct, id)
	if err != nil {
		return domain.Opportunity{}, err
	}
	if opp.Status != domain.OpportunityPending {
		return opp, fmt.Errorf("reject: %w", domain.ErrInvalidTransition)
	}
	_ = f.opps.UpdateStatus(ctx, acct, id, domain.OpportunityRejected)
	opp.Status = domain.OpportunityRejected
	return opp, nil
}

func (f *fakeActions) CancelTrade(ctx context.Context, id string) (domain.Trade, error) {
	t, err := f.trades.GetByID(ctx, acct, id)
	if err != nil {
		return domain.Trade{}, err
	}
	t.Status = domain.TradeCancelled
	return t, f.trades.Update(ctx, t)
}

func (f *fakeActions) ReconcileTrade(ctx context.Context, id string) (domain.Trade, error) {
	return f.trades.GetByID(ctx, acct, id)
}

func (f *fakeActions) SettleTrade(ctx context.Context, id, result string) (domain.Trade, error) {
	t, err := f.trades.GetByID(ctx, acct, id)
	if err != nil {
		return domain.Trade{}, err
	}
	t.Status = domain.TradeSettled
	t.SettlementResult = &result
	return t, f.trades.Update(ctx, t)
}

type fakeScan struct{}

func (fakeScan) RunCycle(context.Context) (pipeline.CycleReport, error) {
	return pipeline.CycleReport{Candidates: 4, Detected: 1, Queued: 1}, nil
}

type denyAll struct{}

func (denyAll) Allow(context.Context, string, int, time.Duration) (bool, error) { return false, nil }

type fixture struct {
	srv     *Server
	opps    *memory.OpportunityStore
	trades  *memory.TradeStore
	actions *fakeActions
}

func newFixture(t *testing.T, cfg Config, limiter domain.RateLimiter) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	account := domain.Account{ID: acct, Name: "test"}
	ctx := context.Background()

	settingsStore := memory.NewSettingsStore()
	settings := service.NewSettingsService(account, settingsStore, nopEvents{}, nil, domain.Settings{
		PositionSize:     100,
		ProfitThreshold:  0.02,
		DailyLossLimit:   50,
		MaxOpenPositions: 3,
		ScanInterval:     5 * time.Second,
	}, logger)
	if _, err := settings.Ensure(ctx); err != nil {
		t.Fatalf("Ensure: %v", err)
	}

	opps := memory.NewOpportunityStore()
	trades := memory.NewTradeStore()
	alerts := memory.NewAlertStore()
	pnl := memory.NewDailyPnLStore()
	alerter := service.NewAlertService(account, alerts, nopEvents{}, logger)
	alerter.Raise(ctx, domain.SeverityWarning, "Leg failed", "no leg rejected")
	if _, err := pnl.Add(ctx, acct, time.Now().UTC(), 2.5); err != nil {
		t.Fatalf("pnl add: %v", err)
	}

	actions := &fakeActions{opps: opps, trades: trades}
	risk := &fakeRisk{}
	h := Handlers{
		Health:        handler.NewHealthHandler("bot", acct, nil, logger),
		Risk:          handler.NewRiskHandler(risk, risk, logger),
		Settings:      handler.NewSettingsHandler(settings, logger),
		Opportunities: handler.NewOpportunityHandler(acct, opps, actions, logger),
		Trades:        handler.NewTradeHandler(acct, trades, actions, logger),
		Scan:          handler.NewScanHandler(fakeScan{}, logger),
		History:       handler.NewHistoryHandler(acct, alerter, pnl, nil, logger),
	}
	return &fixture{
		srv:     NewServer(cfg, h, nil, limiter, logger),
		opps:    opps,
		trades:  trades,
		actions: actions,
	}
}

func (f *fixture) do(t *testing.T, method, path, body string, header ...string) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec.Code, out
}

func (f *fixture) addOpportunity(t *testing.T, id string) {
	t.Helper()
	err := f.opps.Create(context.Background(), domain.Opportunity{
		ID: id, AccountID: acct, MarketID: "m-" + id, Status: domain.OpportunityPending,
		DetectedAt: time.Now().UTC(), ExpiresAt: time.Now().Add(time.Minute),
	})
	if err != nil {
		t.Fatalf("create opportunity: %v", err)
	}
}

func TestAuth(t *testing.T) {
	f := newFixture(t, Config{APIKey: "secret"}, nil)

	if code, _ := f.do(t, "GET", "/api/health", ""); code != http.StatusOK {
		t.Fatalf("health without key=%d want 200", code)
	}
	if code, _ := f.do(t, "GET", "/api/risk", ""); code != http.StatusUnauthorized {
		t.Fatalf("risk without key=%d want 401", code)
	}
	if code, _ := f.do(t, "GET", "/api/risk", "", "X-API-Key", "wrong"); code != http.StatusUnauthorized {
		t.Fatalf("risk with wrong key=%d want 401", code)
	}
	if code, _ := f.do(t, "GET", "/api/risk", "", "X-API-Key", "secret"); code != http.StatusOK {
		t.Fatalf("risk with key=%d want 200", code)
	}
	if code, _ := f.do(t, "GET", "/api/risk", "", "Authorization", "Bearer secret"); code != http.StatusOK {
		t.Fatalf("risk with bearer=%d want 200", code)
	}
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, Config{RateLimit: 10, RateWindow: time.Second}, denyAll{})
	if code, _ := f.do(t, "GET", "/api/settings", ""); code != http.StatusTooManyRequests {
		t.Fatalf("code=%d want 429", code)
	}
}

func TestKillSwitchRoutes(t *testing.T) {
	f := newFixture(t, Config{}, nil)

	code, body := f.do(t, "POST", "/api/kill-switch/activate", `{"reason":"maintenance"}`)
	if code != http.StatusOK || body["kill_switch"] != true || body["reason"] != "maintenance" {
		t.Fatalf("activate=%d %v", code, body)
	}
	code, body = f.do(t, "POST", "/api/kill-switch/toggle", "")
	if code != http.StatusOK || body["kill_switch"] != false {
		t.Fatalf("toggle=%d %v", code, body)
	}
	code, body = f.do(t, "POST", "/api/kill-switch/activate", "")
	if code != http.StatusOK || body["reason"] != "manual" {
		t.Fatalf("activate without body=%d %v", code, body)
	}
	code, body = f.do(t, "POST", "/api/kill-switch/deactivate", "")
	if code != http.StatusOK || body["kill_switch"] != false {
		t.Fatalf("deactivate=%d %v", code, body)
	}
}

func TestSettingsRoutes(t *testing.T) {
	f := newFixture(t, Config{}, nil)

	code, body := f.do(t, "GET", "/api/settings", "")
	if code != http.StatusOK || body["scan_interval_ms"] != float64(5000) {
		t.Fatalf("get=%d %v", code, body)
	}

	code, body = f.do(t, "PUT", "/api/settings", `{"max_open_positions":5,"scan_interval_ms":2000,"active_currencies":["BTC"]}`)
	if code != http.StatusOK {
		t.Fatalf("put=%d %v", code, body)
	}
	if body["max_open_positions"] != float64(5) || body["scan_interval_ms"] != float64(2000) || body["position_size"] != float64(100) {
		t.Fatalf("updated=%v", body)
	}

	tests := []struct {
		name string
		body string
	}{
		{"out of range", `{"profit_threshold":1.5}`},
		{"interval too short", `{"scan_interval_ms":10}`},
		{"unknown field", `{"kill_switch":true}`},
		{"malformed", `{"position_size":`},
	}
	for _, tt := range tests {
		if code, _ := f.do(t, "PUT", "/api/settings", tt.body); code != http.StatusBadRequest {
			t.Fatalf("%s: code=%d want 400", tt.name, code)
		}
	}
}

func TestOpportunityRoutes(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	f.addOpportunity(t, "o1")
	f.addOpportunity(t, "o2")

	code, body := f.do(t, "GET", "/api/opportunities?status=pending", "")
	if code != http.StatusOK || len(body["opportunities"].([]any)) != 2 {
		t.Fatalf("list=%d %v", code, body)
	}

	code, body = f.do(t, "POST", "/api/opportunities/o1/approve", "")
	if code != http.StatusOK {
		t.Fatalf("approve=%d %v", code, body)
	}
	if trade := body["trade"].(map[string]any); trade["id"] != "t-o1" {
		t.Fatalf("approved trade=%v", trade)
	}

	f.actions.deny = true
	if code, _ := f.do(t, "POST", "/api/opportunities/o2/approve", ""); code != http.StatusConflict {
		t.Fatalf("denied approve=%d want 409", code)
	}

	if code, _ := f.do(t, "POST", "/api/opportunities/o2/reject", ""); code != http.StatusOK {
		t.Fatalf("reject=%d want 200", code)
	}
	if code, _ := f.do(t, "POST", "/api/opportunities/o2/reject", ""); code != http.StatusConflict {
		t.Fatalf("second reject=%d want 409", code)
	}
	if code, _ := f.do(t, "POST", "/api/opportunities/missing/reject", ""); code != http.StatusNotFound {
		t.Fatalf("missing reject=%d want 404", code)
	}
}

func TestApproveDuringShutdownIsUnavailable(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	f.addOpportunity(t, "o1")
	f.actions.stopping = true

	if code, body := f.do(t, "POST", "/api/opportunities/o1/approve", ""); code != http.StatusServiceUnavailable {
		t.Fatalf("approve while stopping=%d %v want 503", code, body)
	}
}

func TestTradeRoutes(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	ctx := context.Background()
	for _, tr := range []domain.Trade{
		{ID: "t1", AccountID: acct, MarketID: "m1", Status: domain.TradePlaced},
		{ID: "t2", AccountID: acct, MarketID: "m2", Status: domain.TradeFilled},
		{ID: "t3", AccountID: acct, MarketID: "m3", Status: domain.TradeFailed},
	} {
		if err := f.trades.Create(ctx, tr); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	code, body := f.do(t, "GET", "/api/trades?status=placed,filled", "")
	if code != http.StatusOK || len(body["trades"].([]any)) != 2 {
		t.Fatalf("list=%d %v", code, body)
	}
	if code, _ := f.do(t, "GET", "/api/trades/nope", ""); code != http.StatusNotFound {
		t.Fatalf("get missing=%d want 404", code)
	}

	code, body = f.do(t, "POST", "/api/trades/t1/cancel", "")
	if code != http.StatusOK || body["status"] != "cancelled" {
		t.Fatalf("cancel=%d %v", code, body)
	}
	code, body = f.do(t, "POST", "/api/trades/t2/reconcile", "")
	if code != http.StatusOK || body["id"] != "t2" {
		t.Fatalf("reconcile=%d %v", code, body)
	}

	if code, _ := f.do(t, "POST", "/api/trades/t2/settle", `{"result":"maybe"}`); code != http.StatusBadRequest {
		t.Fatalf("settle bad result=%d want 400", code)
	}
	code, body = f.do(t, "POST", "/api/trades/t2/settle", `{"result":"YES"}`)
	if code != http.StatusOK || body["status"] != "settled" || body["settlement_result"] != "yes" {
		t.Fatalf("settle=%d %v", code, body)
	}
}

func TestScanAndHistoryRoutes(t *testing.T) {
	f := newFixture(t, Config{}, nil)

	code, body := f.do(t, "POST", "/api/scan", "")
	if code != http.StatusOK || body["queued"] != float64(1) {
		t.Fatalf("scan=%d %v", code, body)
	}

	code, body = f.do(t, "GET", "/api/alerts", "")
	if code != http.StatusOK || len(body["alerts"].([]any)) != 1 {
		t.Fatalf("alerts=%d %v", code, body)
	}

	code, body = f.do(t, "GET", "/api/pnl?days=7", "")
	if code != http.StatusOK || body["realized_pnl"] != 2.5 || body["win_count"] != float64(1) {
		t.Fatalf("pnl=%d %v", code, body)
	}
	if code, _ := f.do(t, "GET", "/api/pnl?days=-1", ""); code != http.StatusBadRequest {
		t.Fatalf("pnl bad days=%d want 400", code)
	}

	if code, _ := f.do(t, "GET", "/api/archives", ""); code != http.StatusNotImplemented {
		t.Fatalf("archives without storage=%d want 501", code)
	}
	if code, _ := f.do(t, "GET", "/api/snapshots", ""); code != http.StatusNotImplemented {
		t.Fatalf("snapshots without recorder=%d want 501", code)
	}
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, Config{APIKey: "secret", CORSOrigins: []string{"https://dash.example.com/"}}, nil)

	cases := []struct {
		name   string
		origin string
		method string
		want   int
		allow  string
	}{
		{"admitted origin", "https://dash.example.com", http.MethodPut, http.StatusNoContent, "https://dash.example.com"},
		{"origin case differs", "https://DASH.example.com", http.MethodPost, http.StatusNoContent, "https://DASH.example.com"},
		{"unknown origin", "https://evil.example.com", http.MethodPost, http.StatusForbidden, ""},
		{"prefix of admitted origin", "https://dash.example.co", http.MethodPost, http.StatusForbidden, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodOptions, "/api/settings", nil)
			req.Header.Set("Origin", tc.origin)
			req.Header.Set("Access-Control-Request-Method", tc.method)
			req.Header.Set("Access-Control-Request-Headers", "x-api-key")
			rec := httptest.NewRecorder()
			f.srv.Handler().ServeHTTP(rec, req)

			if rec.Code != tc.want {
				t.Fatalf("preflight=%d want %d", rec.Code, tc.want)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tc.allow {
				t.Fatalf("allow-origin=%q want %q", got, tc.allow)
			}
			if tc.allow == "" {
				return
			}
			for _, h := range []string{"X-API-Key", "Authorization", "Content-Type"} {
				if !strings.Contains(rec.Header().Get("Access-Control-Allow-Headers"), h) {
					t.Fatalf("allow-headers=%q missing %s", rec.Header().Get("Access-Control-Allow-Headers"), h)
				}
			}
			if !strings.Contains(rec.Header().Get("Access-Control-Allow-Methods"), tc.method) {
				t.Fatalf("allow-methods=%q missing %s", rec.Header().Get("Access-Control-Allow-Methods"), tc.method)
			}
		})
	}
}

func TestCORSSimpleRequestStillAuthenticated(t *testing.T) {
	f := newFixture(t, Config{APIKey: "secret", CORSOrigins: []string{"https://dash.example.com"}}, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/settings", nil)
	req.Header.Set("Origin", "https://dash.example.com")
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated cross-origin GET=%d want 401", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://dash.example.com" {
		t.Fatalf("allow-origin=%q", got)
	}
}
