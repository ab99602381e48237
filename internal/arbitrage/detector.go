// Package arbitrage detects YES/NO pairs on a binary market whose best asks
// add up to less than the one dollar a resolved pair redeems for.
package arbitrage

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/alanyoungcy/pairarb/internal/domain"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	defaultDepthLevels   = 5
	defaultConcurrency   = 8
	defaultBookTimeout   = 5 * time.Second
	snapshotWriteTimeout = 2 * time.Second
)

// DetectorConfig configures the detector.
type DetectorConfig struct {
	// DepthLevels bounds how many ask levels count towards liquidity.
	DepthLevels int
	// Concurrency caps parallel book fetches in DetectBatch.
	Concurrency int
	// BookTimeout bounds each order book fetch.
	BookTimeout time.Duration
	// Recorder receives a snapshot of both books per detection. Optional.
	Recorder domain.SnapshotRecorder
	Logger   *slog.Logger
}

// Detector prices YES/NO pairs. It holds no per-market state, so one
// Detector can serve concurrent batches.
type Detector struct {
	depthLevels int
	concurrency int
	bookTimeout time.Duration
	recorder    domain.SnapshotRecorder
	logger      *slog.Logger
	now         func() time.Time
}

// NewDetector creates a Detector, filling zero config values with defaults.
func NewDetector(cfg DetectorConfig) *Detector {
	d := &Detector{
		depthLevels: cfg.DepthLevels,
		concurrency: cfg.Concurrency,
		bookTimeout: cfg.BookTimeout,
		recorder:    cfg.Recorder,
		logger:      cfg.Logger.With(slog.String("component", "arb_detector")),
		now:         time.Now,
	}
	if d.depthLevels <= 0 {
		d.depthLevels = defaultDepthLevels
	}
	if d.concurrency <= 0 {
		d.concurrency = defaultConcurrency
	}
	if d.bookTimeout <= 0 {
		d.bookTimeout = defaultBookTimeout
	}
	return d
}

// Detect prices a single market. It returns false when either side has no
// asks or when the spread is below settings.ProfitThreshold. A spread equal
// to the threshold qualifies.
func (d *Detector) Detect(ctx context.Context, market domain.Market, yesBook, noBook domain.OrderBook, settings domain.Settings) (domain.Opportunity, bool) {
	yesAsk, ok := yesBook.BestAsk()
	if !ok {
		return domain.Opportunity{}, false
	}
	noAsk, ok := noBook.BestAsk()
	if !ok {
		return domain.Opportunity{}, false
	}
	if yesAsk.Price <= 0 || noAsk.Price <= 0 {
		return domain.Opportunity{}, false
	}

	totalCost := TotalCost(yesAsk.Price, noAsk.Price)
	spread := Spread(totalCost)
	yesDepth := yesBook.AskDepth(d.depthLevels)
	noDepth := noBook.AskDepth(d.depthLevels)

	d.record(ctx, market, yesBook, noBook, yesDepth, noDepth, spread)

	if !MeetsThreshold(spread, settings.ProfitThreshold) {
		return domain.Opportunity{}, false
	}

	now := d.now().UTC()
	return domain.Opportunity{
		ID:             uuid.NewString(),
		AccountID:      settings.AccountID,
		MarketID:       market.ID,
		Question:       market.Question,
		YesToken:       market.YesToken,
		NoToken:        market.NoToken,
		YesPrice:       yesAsk.Price,
		NoPrice:        noAsk.Price,
		TotalCost:      totalCost,
		Spread:         spread,
		ExpectedProfit: ExpectedProfit(settings.PositionSize, totalCost),
		YesLiquidity:   yesDepth,
		NoLiquidity:    noDepth,
		Status:         domain.OpportunityPending,
		DetectedAt:     now,
		UpdatedAt:      now,
	}, true
}

// DetectBatch fetches both books of every market and runs Detect on each.
// Markets are evaluated independently; a failed book fetch only drops that
// market. The qualifying opportunities are returned best spread first.
func (d *Detector) DetectBatch(ctx context.Context, markets []domain.Market, books domain.BookSource, settings domain.Settings) []domain.Opportunity {
	results := make([]*domain.Opportunity, len(markets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for i := range markets {
		m := markets[i]
		g.Go(func() error {
			opp, ok, err := d.detectOne(gctx, m, books, settings)
			if err != nil {
				d.logger.WarnContext(gctx, "arb detector: market skipped",
					slog.String("market_id", m.ID),
					slog.String("error", err.Error()),
				)
				return nil
			}
			if ok {
				results[i] = &opp
			}
			return nil
		})
	}
	_ = g.Wait()

	opps := make([]domain.Opportunity, 0, len(markets))
	for _, r := range results {
		if r != nil {
			opps = append(opps, *r)
		}
	}
	sort.SliceStable(opps, func(i, j int) bool {
		return opps[i].Spread > opps[j].Spread
	})

	d.logger.DebugContext(ctx, "arb detector: batch complete",
		slog.Int("markets", len(markets)),
		slog.Int("opportunities", len(opps)),
	)
	return opps
}

func (d *Detector) detectOne(ctx context.Context, m domain.Market, books domain.BookSource, settings domain.Settings) (domain.Opportunity, bool, error) {
	if !m.Tradable() {
		return domain.Opportunity{}, false, nil
	}
	yesBook, err := d.fetchBook(ctx, books, m.YesToken)
	if err != nil {
		return domain.Opportunity{}, false, err
	}
	noBook, err := d.fetchBook(ctx, books, m.NoToken)
	if err != nil {
		return domain.Opportunity{}, false, err
	}
	opp, ok := d.Detect(ctx, m, yesBook, noBook, settings)
	return opp, ok, nil
}

func (d *Detector) fetchBook(ctx context.Context, books domain.BookSource, tokenID string) (domain.OrderBook, error) {
	ctx, cancel := context.WithTimeout(ctx, d.bookTimeout)
	defer cancel()
	return books.GetOrderBook(ctx, tokenID)
}

// record writes the observability snapshot. Errors never reach the caller.
func (d *Detector) record(ctx context.Context, m domain.Market, yesBook, noBook domain.OrderBook, yesDepth, noDepth, spread float64) {
	if d.recorder == nil {
		return
	}
	snap := domain.BookSnapshot{
		MarketID:   m.ID,
		YesToken:   m.YesToken,
		NoToken:    m.NoToken,
		YesDepth:   yesDepth,
		NoDepth:    noDepth,
		Spread:     spread,
		CapturedAt: d.now().UTC(),
	}
	if lvl, ok := yesBook.BestBid(); ok {
		snap.YesBestBid = lvl.Price
	}
	if lvl, ok := yesBook.BestAsk(); ok {
		snap.YesBestAsk = lvl.Price
	}
	if lvl, ok := noBook.BestBid(); ok {
		snap.NoBestBid = lvl.Price
	}
	if lvl, ok := noBook.BestAsk(); ok {
		snap.NoBestAsk = lvl.Price
	}

	ctx, cancel := context.WithTimeout(ctx, snapshotWriteTimeout)
	defer cancel()
	if err := d.recorder.RecordSnapshot(ctx, snap); err != nil {
		d.logger.WarnContext(ctx, "arb detector: snapshot not recorded",
			slog.String("market_id", m.ID),
			slog.String("error", err.Error()),
		)
	}
}
