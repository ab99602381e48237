package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alanyoungcy/pairarb/internal/domain"
)

func TestRunCycle_SkipsWhileKillSwitchOn(t *testing.T) {
	st := testSettings()
	st.KillSwitch = true
	st.KillSwitchReason = "manual activation"
	f := newOrchFixture(st)
	f.detector.opps = []domain.Opportunity{opp("o1", "m-1", 0.03)}

	report, err := f.orch.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if report.Skipped == "" {
		t.Fatalf("report=%+v want skipped", report)
	}
	if f.markets.count() != 0 || f.gate.checks != 0 || f.balance.calls != 0 {
		t.Fatalf("markets=%d checks=%d balance=%d, want no work", f.markets.count(), f.gate.checks, f.balance.calls)
	}
}

func TestRunCycle_StopsWhenStandingHalts(t *testing.T) {
	f := newOrchFixture(testSettings())
	f.gate.standing = domain.RiskStatus{KillSwitch: true, KillSwitchReason: "low balance warning"}

	report, err := f.orch.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if report.Skipped != "kill switch activated: low balance warning" {
		t.Fatalf("skipped=%q", report.Skipped)
	}
	if f.markets.count() != 0 {
		t.Fatalf("markets fetched=%d want 0", f.markets.count())
	}
}

func TestRunCycle_ManualModeQueuesAndDeduplicates(t *testing.T) {
	f := newOrchFixture(testSettings())
	f.detector.opps = []domain.Opportunity{opp("o1", "m-1", 0.05), opp("o2", "m-2", 0.03)}
	ctx := context.Background()

	report, err := f.orch.RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if report.Queued != 2 || report.Executed != 0 {
		t.Fatalf("report=%+v want 2 queued", report)
	}
	if got := f.events.Count(domain.EventOpportunityNew); got != 2 {
		t.Fatalf("opportunity events=%d want 2", got)
	}
	if f.exec.executedCount() != 0 {
		t.Fatalf("executed=%d want 0 in manual mode", f.exec.executedCount())
	}
	stored, _ := f.opps.GetByID(ctx, testAccount.ID, "o1")
	if stored.ExpiresAt.IsZero() {
		t.Fatalf("expires_at not set")
	}

	// Same markets again: pending ones suppress duplicates.
	f.detector.opps = []domain.Opportunity{opp("o3", "m-1", 0.05), opp("o4", "m-2", 0.03)}
	report, err = f.orch.RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if report.Duplicates != 2 || report.Queued != 0 {
		t.Fatalf("report=%+v want 2 duplicates", report)
	}
	if f.balance.calls != 2 {
		t.Fatalf("balance refreshes=%d want 2", f.balance.calls)
	}
}

func TestRunCycle_AutoModeExecutes(t *testing.T) {
	st := testSettings()
	st.AutoMode = true
	f := newOrchFixture(st)
	f.detector.opps = []domain.Opportunity{opp("o1", "m-1", 0.05), opp("o2", "m-2", 0.03)}
	f.gate.deny["m-2"] = "insufficient liquidity"
	ctx := context.Background()

	report, err := f.orch.RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if report.Executed != 1 || report.Denied != 1 {
		t.Fatalf("report=%+v want 1 executed 1 denied", report)
	}
	stored, _ := f.opps.GetByID(ctx, testAccount.ID, "o1")
	if stored.Status != domain.OpportunityApproved {
		t.Fatalf("status=%s want approved", stored.Status)
	}
	if _, err := f.opps.GetByID(ctx, testAccount.ID, "o2"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("denied opportunity stored, err=%v", err)
	}
	if got := f.events.Count(domain.EventOpportunityNew); got != 0 {
		t.Fatalf("opportunity events=%d want 0 in auto mode", got)
	}
}

func TestRunCycle_AutoModeFailureMarksFailed(t *testing.T) {
	st := testSettings()
	st.AutoMode = true
	f := newOrchFixture(st)
	f.exec.fail = true
	f.detector.opps = []domain.Opportunity{opp("o1", "m-1", 0.05)}
	ctx := context.Background()

	report, err := f.orch.RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if report.Failed != 1 {
		t.Fatalf("report=%+v want 1 failed", report)
	}
	stored, _ := f.opps.GetByID(ctx, testAccount.ID, "o1")
	if stored.Status != domain.OpportunityFailed {
		t.Fatalf("status=%s want failed", stored.Status)
	}
}

func TestRunCycle_ExpiresStalePending(t *testing.T) {
	f := newOrchFixture(testSettings())
	ctx := context.Background()
	stale := opp("old", "m-9", 0.02)
	stale.ExpiresAt = time.Now().Add(-time.Minute)
	if err := f.opps.Create(ctx, stale); err != nil {
		t.Fatalf("seed: %v", err)
	}

	report, err := f.orch.RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if report.Expired != 1 {
		t.Fatalf("expired=%d want 1", report.Expired)
	}
	stored, _ := f.opps.GetByID(ctx, testAccount.ID, "old")
	if stored.Status != domain.OpportunityExpired {
		t.Fatalf("status=%s want expired", stored.Status)
	}
}

func TestRunCycle_EmptyCandidatesEndsCycle(t *testing.T) {
	f := newOrchFixture(testSettings())
	f.markets.markets = nil

	report, err := f.orch.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if report.Skipped != "no candidate markets" || f.balance.calls != 0 {
		t.Fatalf("report=%+v balance=%d", report, f.balance.calls)
	}
}

func TestRunCycle_SourceErrorIsReturned(t *testing.T) {
	f := newOrchFixture(testSettings())
	f.markets.err = domain.ErrSourceUnavailable

	_, err := f.orch.RunCycle(context.Background())
	if !errors.Is(err, domain.ErrSourceUnavailable) {
		t.Fatalf("err=%v want ErrSourceUnavailable", err)
	}
}

func TestRunCycle_SkipsWhenLockedElsewhere(t *testing.T) {
	f := newOrchFixture(testSettings())
	f.locks.held[LockKey(testAccount.ID)] = true

	report, err := f.orch.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if report.Skipped == "" || f.markets.count() != 0 {
		t.Fatalf("report=%+v markets=%d want skipped", report, f.markets.count())
	}
}

func TestApproveAndReject(t *testing.T) {
	f := newOrchFixture(testSettings())
	ctx := context.Background()
	for _, o := range []domain.Opportunity{opp("o1", "m-1", 0.05), opp("o2", "m-2", 0.03), opp("o3", "m-3", 0.03)} {
		o.ExpiresAt = time.Now().Add(time.Hour)
		if err := f.opps.Create(ctx, o); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	res, err := f.orch.Approve(ctx, "o1")
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if res.Trade.OpportunityID != "o1" {
		t.Fatalf("trade=%+v want for o1", res.Trade)
	}
	if o, _ := f.opps.GetByID(ctx, testAccount.ID, "o1"); o.Status != domain.OpportunityApproved {
		t.Fatalf("o1 status=%s want approved", o.Status)
	}

	if _, err := f.orch.Approve(ctx, "o1"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("second approve err=%v want ErrInvalidTransition", err)
	}

	f.gate.deny["m-2"] = "kill switch active: manual activation"
	if _, err := f.orch.Approve(ctx, "o2"); !errors.Is(err, domain.ErrRiskDenied) {
		t.Fatalf("denied approve err=%v want ErrRiskDenied", err)
	}
	if o, _ := f.opps.GetByID(ctx, testAccount.ID, "o2"); o.Status != domain.OpportunityPending {
		t.Fatalf("o2 status=%s want still pending", o.Status)
	}

	rejected, err := f.orch.Reject(ctx, "o3")
	if err != nil || rejected.Status != domain.OpportunityRejected {
		t.Fatalf("Reject: %+v %v", rejected, err)
	}
	if f.exec.executedCount() != 1 {
		t.Fatalf("executed=%d want 1", f.exec.executedCount())
	}

	if _, err := f.orch.Approve(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err=%v want ErrNotFound", err)
	}
}

func TestApprove_ExpiredOpportunity(t *testing.T) {
	f := newOrchFixture(testSettings())
	ctx := context.Background()
	o := opp("o1", "m-1", 0.05)
	o.ExpiresAt = time.Now().Add(-time.Second)
	_ = f.opps.Create(ctx, o)

	if _, err := f.orch.Approve(ctx, "o1"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("err=%v want ErrInvalidTransition", err)
	}
	if got, _ := f.opps.GetByID(ctx, testAccount.ID, "o1"); got.Status != domain.OpportunityExpired {
		t.Fatalf("status=%s want expired", got.Status)
	}
}

func TestSetInterval_RestartsTimer(t *testing.T) {
	f := newOrchFixture(testSettings())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- f.orch.Run(ctx) }()

	// Wait for the first, immediate cycle.
	deadline := time.Now().Add(2 * time.Second)
	for f.markets.count() < 1 {
		if time.Now().After(deadline) {
			t.Fatalf("first cycle never ran")
		}
		time.Sleep(5 * time.Millisecond)
	}

	f.orch.SetInterval(20 * time.Millisecond)

	// With an hour-long original period, further cycles only come from the
	// new timer.
	deadline = time.Now().Add(2 * time.Second)
	for f.markets.count() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("cycles=%d want >= 3 on the new interval", f.markets.count())
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestShutdown_CancelsOrdersUnlessHalted(t *testing.T) {
	f := newOrchFixture(testSettings())
	f.orch.Shutdown(context.Background())
	if f.orders.calls != 1 {
		t.Fatalf("cancel all calls=%d want 1", f.orders.calls)
	}

	st := testSettings()
	st.KillSwitch = true
	g := newOrchFixture(st)
	g.orch.Shutdown(context.Background())
	if g.orders.calls != 0 {
		t.Fatalf("cancel all calls=%d want 0 with kill switch on", g.orders.calls)
	}
}
