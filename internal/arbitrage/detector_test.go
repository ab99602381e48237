package arbitrage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"

	"github.com/alanyoungcy/pairarb/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func book(token string, asks ...domain.PriceLevel) domain.OrderBook {
	return domain.OrderBook{TokenID: token, Asks: asks}
}

func market(id string) domain.Market {
	return domain.Market{ID: id, Question: id + "?", YesToken: id + "-yes", NoToken: id + "-no", Active: true}
}

type recorderStub struct {
	mu    sync.Mutex
	snaps []domain.BookSnapshot
	err   error
}

func (r *recorderStub) RecordSnapshot(_ context.Context, s domain.BookSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
	return r.err
}

func TestDetect_ScenarioA(t *testing.T) {
	d := NewDetector(DetectorConfig{Logger: testLogger()})
	settings := domain.Settings{PositionSize: 10, ProfitThreshold: 0.01}

	opp, ok := d.Detect(context.Background(), market("m1"),
		book("m1-yes", domain.PriceLevel{Price: 0.45, Size: 100}),
		book("m1-no", domain.PriceLevel{Price: 0.52, Size: 100}),
		settings)
	if !ok {
		t.Fatal("expected an opportunity")
	}
	if math.Abs(opp.TotalCost-0.97) > 1e-9 {
		t.Fatalf("total_cost=%v want 0.97", opp.TotalCost)
	}
	if math.Abs(opp.Spread-0.03) > 1e-9 {
		t.Fatalf("spread=%v want 0.03", opp.Spread)
	}
	if shares := Shares(settings.PositionSize, opp.TotalCost); math.Abs(shares-10.309) > 1e-3 {
		t.Fatalf("shares=%v want ~10.309", shares)
	}
	if math.Abs(opp.ExpectedProfit-0.309) > 1e-3 {
		t.Fatalf("expected_profit=%v want ~0.309", opp.ExpectedProfit)
	}
	if opp.Status != domain.OpportunityPending {
		t.Fatalf("status=%s want pending", opp.Status)
	}
	if opp.ID == "" {
		t.Fatal("opportunity id not assigned")
	}
}

func TestDetect_ScenarioB_BelowThreshold(t *testing.T) {
	d := NewDetector(DetectorConfig{Logger: testLogger()})
	_, ok := d.Detect(context.Background(), market("m1"),
		book("m1-yes", domain.PriceLevel{Price: 0.45, Size: 100}),
		book("m1-no", domain.PriceLevel{Price: 0.52, Size: 100}),
		domain.Settings{PositionSize: 10, ProfitThreshold: 0.05})
	if ok {
		t.Fatal("expected no opportunity at threshold 0.05")
	}
}

func TestDetect_SpreadEqualToThresholdQualifies(t *testing.T) {
	d := NewDetector(DetectorConfig{Logger: testLogger()})
	// 0.25 + 0.5 is exact in binary floating point, so spread == 0.25 exactly.
	_, ok := d.Detect(context.Background(), market("m1"),
		book("m1-yes", domain.PriceLevel{Price: 0.25, Size: 10}),
		book("m1-no", domain.PriceLevel{Price: 0.5, Size: 10}),
		domain.Settings{PositionSize: 10, ProfitThreshold: 0.25})
	if !ok {
		t.Fatal("spread equal to threshold must qualify")
	}
}

func TestDetect_CentTickSpreadAtThresholdQualifies(t *testing.T) {
	d := NewDetector(DetectorConfig{Logger: testLogger()})
	for thresholdCents := 2; thresholdCents <= 5; thresholdCents++ {
		threshold := float64(thresholdCents) / 100
		for yesCents := 1; yesCents < 100-thresholdCents; yesCents++ {
			noCents := 100 - thresholdCents - yesCents
			yes, no := float64(yesCents)/100, float64(noCents)/100
			opp, ok := d.Detect(context.Background(), market("m"),
				book("y", domain.PriceLevel{Price: yes, Size: 100}),
				book("n", domain.PriceLevel{Price: no, Size: 100}),
				domain.Settings{PositionSize: 10, ProfitThreshold: threshold})
			if !ok {
				t.Fatalf("yes=%v no=%v threshold=%v: spread at threshold rejected", yes, no, threshold)
			}
			if opp.Spread != threshold {
				t.Fatalf("yes=%v no=%v spread=%v want %v", yes, no, opp.Spread, threshold)
			}
		}
	}
}

func TestMeetsThreshold(t *testing.T) {
	tests := []struct {
		spread, threshold float64
		want              bool
	}{
		{1 - (0.05 + 0.93), 0.02, true},
		{0.019999999999999907, 0.02, true},
		{0.0199, 0.02, false},
		{0.03, 0.02, true},
		{0, 0, true},
		{-0.01, 0, false},
	}
	for _, tt := range tests {
		if got := MeetsThreshold(tt.spread, tt.threshold); got != tt.want {
			t.Fatalf("MeetsThreshold(%v, %v)=%v want %v", tt.spread, tt.threshold, got, tt.want)
		}
	}
}

func TestDetect_Formulas(t *testing.T) {
	d := NewDetector(DetectorConfig{Logger: testLogger()})
	cases := []struct {
		yes, no, size float64
	}{
		{0.45, 0.52, 10},
		{0.10, 0.20, 25},
		{0.49, 0.49, 3.5},
		{0.333, 0.601, 100},
	}
	for _, tc := range cases {
		opp, ok := d.Detect(context.Background(), market("m"),
			book("y", domain.PriceLevel{Price: tc.yes, Size: 1}),
			book("n", domain.PriceLevel{Price: tc.no, Size: 1}),
			domain.Settings{PositionSize: tc.size})
		if !ok {
			t.Fatalf("yes=%v no=%v: expected opportunity", tc.yes, tc.no)
		}
		if math.Abs(opp.Spread-(1-(tc.yes+tc.no))) > 1e-9 {
			t.Fatalf("spread=%v want %v", opp.Spread, 1-(tc.yes+tc.no))
		}
		want := (tc.size / opp.TotalCost) * opp.Spread
		if opp.ExpectedProfit != want {
			t.Fatalf("expected_profit=%v want %v", opp.ExpectedProfit, want)
		}
	}
}

func TestDetect_NoAsksMeansNoLiquidity(t *testing.T) {
	d := NewDetector(DetectorConfig{Logger: testLogger()})
	_, ok := d.Detect(context.Background(), market("m1"),
		book("m1-yes"),
		book("m1-no", domain.PriceLevel{Price: 0.4, Size: 10}),
		domain.Settings{PositionSize: 10})
	if ok {
		t.Fatal("expected none when YES side has no asks")
	}
	_, ok = d.Detect(context.Background(), market("m1"),
		book("m1-yes", domain.PriceLevel{Price: 0.4, Size: 10}),
		book("m1-no"),
		domain.Settings{PositionSize: 10})
	if ok {
		t.Fatal("expected none when NO side has no asks")
	}
}

func TestDetect_LiquidityUsesTopLevelsOnly(t *testing.T) {
	d := NewDetector(DetectorConfig{DepthLevels: 2, Logger: testLogger()})
	yes := book("y",
		domain.PriceLevel{Price: 0.25, Size: 4},
		domain.PriceLevel{Price: 0.5, Size: 2},
		domain.PriceLevel{Price: 0.75, Size: 100},
	)
	no := book("n", domain.PriceLevel{Price: 0.5, Size: 8})
	opp, ok := d.Detect(context.Background(), market("m"), yes, no, domain.Settings{PositionSize: 1})
	if !ok {
		t.Fatal("expected opportunity")
	}
	if opp.YesLiquidity != 2 {
		t.Fatalf("yes liquidity=%v want 2", opp.YesLiquidity)
	}
	if opp.NoLiquidity != 4 {
		t.Fatalf("no liquidity=%v want 4", opp.NoLiquidity)
	}
}

func TestDetect_SnapshotFailureDoesNotFailDetection(t *testing.T) {
	rec := &recorderStub{err: errors.New("redis down")}
	d := NewDetector(DetectorConfig{Recorder: rec, Logger: testLogger()})
	_, ok := d.Detect(context.Background(), market("m1"),
		book("m1-yes", domain.PriceLevel{Price: 0.45, Size: 100}),
		book("m1-no", domain.PriceLevel{Price: 0.52, Size: 100}),
		domain.Settings{PositionSize: 10, ProfitThreshold: 0.01})
	if !ok {
		t.Fatal("snapshot failure must not suppress the opportunity")
	}
	if len(rec.snaps) != 1 {
		t.Fatalf("snapshots=%d want 1", len(rec.snaps))
	}
	if rec.snaps[0].YesBestAsk != 0.45 || rec.snaps[0].NoBestAsk != 0.52 {
		t.Fatalf("snapshot=%+v", rec.snaps[0])
	}
}

type bookSourceStub struct {
	books map[string]domain.OrderBook
	fail  map[string]bool
}

func (b bookSourceStub) GetOrderBook(_ context.Context, token string) (domain.OrderBook, error) {
	if b.fail[token] {
		return domain.OrderBook{}, errors.New("timeout")
	}
	return b.books[token], nil
}

func TestDetectBatch_OrdersBySpreadAndIsolatesErrors(t *testing.T) {
	src := bookSourceStub{
		books: map[string]domain.OrderBook{
			"a-yes": book("a-yes", domain.PriceLevel{Price: 0.45, Size: 50}),
			"a-no":  book("a-no", domain.PriceLevel{Price: 0.52, Size: 50}), // spread 0.03
			"b-yes": book("b-yes", domain.PriceLevel{Price: 0.40, Size: 50}),
			"b-no":  book("b-no", domain.PriceLevel{Price: 0.50, Size: 50}), // spread 0.10
			"c-yes": book("c-yes", domain.PriceLevel{Price: 0.60, Size: 50}),
			"c-no":  book("c-no", domain.PriceLevel{Price: 0.50, Size: 50}), // negative
			"e-yes": book("e-yes", domain.PriceLevel{Price: 0.30, Size: 50}),
			"e-no":  book("e-no", domain.PriceLevel{Price: 0.30, Size: 50}), // spread 0.40
		},
		fail: map[string]bool{"d-no": true, "e-no": true},
	}
	d := NewDetector(DetectorConfig{Concurrency: 2, Logger: testLogger()})
	markets := []domain.Market{market("a"), market("b"), market("c"), market("d"), market("e")}

	opps := d.DetectBatch(context.Background(), markets, src, domain.Settings{PositionSize: 10, ProfitThreshold: 0.01})
	if len(opps) != 2 {
		t.Fatalf("len(opps)=%d want 2", len(opps))
	}
	if opps[0].MarketID != "b" || opps[1].MarketID != "a" {
		t.Fatalf("order=%s,%s want b,a", opps[0].MarketID, opps[1].MarketID)
	}
}

func TestDetectBatch_SkipsClosedMarkets(t *testing.T) {
	src := bookSourceStub{books: map[string]domain.OrderBook{
		"a-yes": book("a-yes", domain.PriceLevel{Price: 0.2, Size: 50}),
		"a-no":  book("a-no", domain.PriceLevel{Price: 0.2, Size: 50}),
	}}
	m := market("a")
	m.Closed = true
	d := NewDetector(DetectorConfig{Logger: testLogger()})
	if opps := d.DetectBatch(context.Background(), []domain.Market{m}, src, domain.Settings{PositionSize: 1}); len(opps) != 0 {
		t.Fatalf("closed market produced %d opportunities", len(opps))
	}
}
