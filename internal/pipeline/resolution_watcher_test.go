package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/alanyoungcy/pairarb/internal/domain"
)

type fakeResolutions map[string]domain.Resolution

func (f fakeResolutions) GetResolution(_ context.Context, marketID string) (domain.Resolution, error) {
	r, ok := f[marketID]
	if !ok {
		return domain.Resolution{MarketID: marketID}, nil
	}
	return r, nil
}

func TestResolutionWatcher_SettlesResolvedMarkets(t *testing.T) {
	f := newOrchFixture(testSettings())
	ctx := context.Background()
	seed := []domain.Trade{
		{ID: "t-filled", MarketID: "m-1", Status: domain.TradeFilled},
		{ID: "t-partial", MarketID: "m-1", Status: domain.TradePartial},
		{ID: "t-placed", MarketID: "m-1", Status: domain.TradePlaced},
		{ID: "t-open-market", MarketID: "m-2", Status: domain.TradeFilled},
		{ID: "t-failed", MarketID: "m-1", Status: domain.TradeFailed},
	}
	for i, tr := range seed {
		tr.AccountID = testAccount.ID
		tr.OpportunityID = tr.ID
		tr.CreatedAt = time.Now().Add(time.Duration(i) * time.Second)
		if err := f.trades.Create(ctx, tr); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	w := NewResolutionWatcher(testAccount, f.trades, fakeResolutions{
		"m-1": {MarketID: "m-1", Closed: true, Outcome: "no"},
	}, time.Minute, discardLogger())
	w.Bind(f.orch)

	n, err := w.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 2 {
		t.Fatalf("settled=%d want 2", n)
	}
	if f.exec.settled["t-filled"] != "no" || f.exec.settled["t-partial"] != "no" {
		t.Fatalf("settled=%v want filled and partial with no", f.exec.settled)
	}
	if len(f.exec.cancelled) != 1 || f.exec.cancelled[0] != "t-placed" {
		t.Fatalf("cancelled=%v want [t-placed]", f.exec.cancelled)
	}
	if _, ok := f.exec.settled["t-open-market"]; ok {
		t.Fatalf("unresolved market settled")
	}
}
