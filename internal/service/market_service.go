package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/alanyoungcy/pairarb/internal/domain"
)

// MarketConfig bounds freshness and latency of source reads.
type MarketConfig struct {
	CandidatesTTL time.Duration // fresh candidate list
	StaleTTL      time.Duration // last-known candidate list kept for outages
	BookTTL       time.Duration // order book freshness window
	BalanceMaxAge time.Duration // oldest cached balance served on failure
	CallTimeout   time.Duration // per upstream call
}

// Upstream is the uncached venue the market service reads from.
type Upstream interface {
	domain.MarketSource
	domain.BookSource
	domain.BalanceSource
}

// MarketService is the cached market/order book/balance source used by the
// trading core. Reads go to Redis first and fall back to the venue; on
// venue failure the last known value is served where that is safe.
type MarketService struct {
	account  domain.Account
	upstream Upstream
	markets  domain.MarketCache
	books    domain.OrderbookCache
	balances domain.BalanceCache
	events   domain.EventSink
	cfg      MarketConfig
	logger   *slog.Logger
}

var (
	_ domain.MarketSource  = (*MarketService)(nil)
	_ domain.BookSource    = (*MarketService)(nil)
	_ domain.BalanceSource = (*MarketService)(nil)
)

// NewMarketService creates a MarketService.
func NewMarketService(
	account domain.Account,
	upstream Upstream,
	markets domain.MarketCache,
	books domain.OrderbookCache,
	balances domain.BalanceCache,
	events domain.EventSink,
	cfg MarketConfig,
	logger *slog.Logger,
) *MarketService {
	if cfg.CandidatesTTL <= 0 {
		cfg.CandidatesTTL = time.Minute
	}
	if cfg.StaleTTL <= 0 {
		cfg.StaleTTL = time.Hour
	}
	if cfg.BookTTL <= 0 {
		cfg.BookTTL = 2 * time.Second
	}
	if cfg.BalanceMaxAge <= 0 {
		cfg.BalanceMaxAge = 5 * time.Minute
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	return &MarketService{
		account:  account,
		upstream: upstream,
		markets:  markets,
		books:    books,
		balances: balances,
		events:   events,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "market_service")),
	}
}

func candidatesKey(currencies []string) string {
	cs := make([]string, 0, len(currencies))
	for _, c := range currencies {
		cs = append(cs, strings.ToUpper(strings.TrimSpace(c)))
	}
	sort.Strings(cs)
	return strings.Join(cs, ",")
}

// FetchCandidateMarkets returns active markets for the given currencies. A
// venue failure serves the last known list when one exists.
func (s *MarketService) FetchCandidateMarkets(ctx context.Context, currencies []string) ([]domain.Market, error) {
	key := candidatesKey(currencies)
	if cached, err := s.markets.GetCandidates(ctx, "fresh:"+key); err == nil {
		return cached, nil
	}

	uctx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	markets, err := s.upstream.FetchCandidateMarkets(uctx, currencies)
	cancel()
	if err != nil {
		stale, cacheErr := s.markets.GetCandidates(ctx, "stale:"+key)
		if cacheErr == nil {
			s.logger.WarnContext(ctx, "market_service: venue unavailable, serving last known markets",
				slog.Int("count", len(stale)),
				slog.String("error", err.Error()),
			)
			return stale, nil
		}
		return nil, fmt.Errorf("market_service: fetch candidates: %w: %w", domain.ErrSourceUnavailable, err)
	}

	if err := s.markets.SetCandidates(ctx, "fresh:"+key, markets, s.cfg.CandidatesTTL); err != nil {
		s.logger.WarnContext(ctx, "market_service: cache candidates failed", slog.String("error", err.Error()))
	}
	if err := s.markets.SetCandidates(ctx, "stale:"+key, markets, s.cfg.StaleTTL); err != nil {
		s.logger.WarnContext(ctx, "market_service: cache last known candidates failed", slog.String("error", err.Error()))
	}
	return markets, nil
}

// GetOrderBook returns the token's book, cached for BookTTL. Books are never
// served past that window; an unknown token yields an empty book.
func (s *MarketService) GetOrderBook(ctx context.Context, tokenID string) (domain.OrderBook, error) {
	if book, err := s.books.GetBook(ctx, tokenID); err == nil {
		return book, nil
	}

	uctx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	book, err := s.upstream.GetOrderBook(uctx, tokenID)
	cancel()
	if errors.Is(err, domain.ErrNotFound) {
		return domain.OrderBook{TokenID: tokenID, FetchedAt: time.Now().UTC()}, nil
	}
	if err != nil {
		return domain.OrderBook{}, fmt.Errorf("market_service: order book %s: %w", tokenID, err)
	}

	if err := s.books.SetBook(ctx, book, s.cfg.BookTTL); err != nil {
		s.logger.DebugContext(ctx, "market_service: cache book failed",
			slog.String("token_id", tokenID),
			slog.String("error", err.Error()),
		)
	}
	return book, nil
}

// GetBalance returns the venue balance, or the cached one if the venue
// fails and the cached value is recent enough.
func (s *MarketService) GetBalance(ctx context.Context) (domain.Balance, error) {
	uctx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	bal, err := s.upstream.GetBalance(uctx)
	cancel()
	if err == nil {
		if cacheErr := s.balances.SetBalance(ctx, s.account.ID, bal); cacheErr != nil {
			s.logger.WarnContext(ctx, "market_service: cache balance failed", slog.String("error", cacheErr.Error()))
		}
		return bal, nil
	}

	cached, at, cacheErr := s.balances.GetBalance(ctx, s.account.ID)
	if cacheErr == nil && time.Since(at) <= s.cfg.BalanceMaxAge {
		s.logger.WarnContext(ctx, "market_service: balance fetch failed, serving cached balance",
			slog.Duration("age", time.Since(at)),
			slog.String("error", err.Error()),
		)
		return cached, nil
	}
	return domain.Balance{}, fmt.Errorf("market_service: balance: %w: %w", domain.ErrSourceUnavailable, err)
}

// RefreshBalance fetches the balance and broadcasts balance:update.
func (s *MarketService) RefreshBalance(ctx context.Context) (domain.Balance, error) {
	bal, err := s.GetBalance(ctx)
	if err != nil {
		return domain.Balance{}, err
	}
	s.events.Emit(domain.Event{Name: domain.EventBalanceUpdate, AccountID: s.account.ID, Payload: bal})
	return bal, nil
}
