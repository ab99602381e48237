package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/pairarb/internal/domain"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	reconnectDelay    = 2 * time.Second
	maxReconnectDelay = 60 * time.Second
)

// TokenLister returns the outcome tokens the feed should follow.
type TokenLister func(ctx context.Context) ([]string, error)

// BookFeedConfig tunes the market-channel feed.
type BookFeedConfig struct {
	URL     string        // e.g. wss://ws-subscriptions-clob.polymarket.com/ws/market
	BookTTL time.Duration // lifetime of a pushed book in the cache
	Refresh time.Duration // how often the token set is re-read
}

// BookFeed keeps the order-book cache warm from the CLOB market channel.
// Full "book" events replace the cached book of their token; the REST
// source remains the fallback once an entry expires.
type BookFeed struct {
	cfg    BookFeedConfig
	cache  domain.OrderbookCache
	tokens TokenLister
	dialer websocket.Dialer
	logger *slog.Logger

	received atomic.Int64
}

// NewBookFeed creates a BookFeed writing into cache.
func NewBookFeed(cfg BookFeedConfig, cache domain.OrderbookCache, tokens TokenLister, logger *slog.Logger) *BookFeed {
	if cfg.BookTTL <= 0 {
		cfg.BookTTL = 2 * time.Second
	}
	if cfg.Refresh <= 0 {
		cfg.Refresh = time.Minute
	}
	return &BookFeed{
		cfg:    cfg,
		cache:  cache,
		tokens: tokens,
		dialer: websocket.Dialer{HandshakeTimeout: 15 * time.Second},
		logger: logger.With(slog.String("component", "book_feed")),
	}
}

// Received returns how many books the feed has cached.
func (f *BookFeed) Received() int64 { return f.received.Load() }

// Run follows the market channel until ctx is cancelled, reconnecting with
// exponential backoff and resubscribing whenever the token set changes.
func (f *BookFeed) Run(ctx context.Context) error {
	delay := reconnectDelay
	for {
		tokens, err := f.tokens(ctx)
		if err != nil {
			f.logger.WarnContext(ctx, "book_feed: list tokens failed", slog.String("error", err.Error()))
		}
		if err == nil && len(tokens) > 0 {
			start := time.Now()
			err = f.session(ctx, tokens)
			if ctx.Err() != nil {
				return nil
			}
			if err == nil {
				delay = reconnectDelay
				continue
			}
			f.logger.WarnContext(ctx, "book_feed: session ended",
				slog.String("error", err.Error()),
				slog.Duration("uptime", time.Since(start)),
			)
		}

		wait := delay
		if err == nil {
			wait = f.cfg.Refresh
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
		if err != nil {
			delay = min(delay*2, maxReconnectDelay)
		}
	}
}

// session holds one connection. It returns nil when the token set changed
// and an error when the connection failed.
func (f *BookFeed) session(ctx context.Context, tokens []string) error {
	conn, _, err := f.dialer.DialContext(ctx, f.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("polymarket/ws: connect: %w", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	sub, err := json.Marshal(map[string]any{"type": "market", "assets_ids": tokens})
	if err != nil {
		return fmt.Errorf("polymarket/ws: marshal subscribe: %w", err)
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, sub); err != nil {
		return fmt.Errorf("polymarket/ws: subscribe: %w", err)
	}
	f.logger.InfoContext(ctx, "book_feed: subscribed", slog.Int("tokens", len(tokens)))

	msgs := make(chan []byte, 64)
	readErr := make(chan error, 1)
	go func() {
		defer close(msgs)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case msgs <- data:
			case <-ctx.Done():
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	refresh := time.NewTicker(f.cfg.Refresh)
	defer refresh.Stop()

	want := slices.Clone(tokens)
	slices.Sort(want)

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return nil
		case data, ok := <-msgs:
			if !ok {
				select {
				case err := <-readErr:
					return fmt.Errorf("polymarket/ws: read: %w", err)
				default:
					return nil
				}
			}
			f.handle(ctx, data)
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return fmt.Errorf("polymarket/ws: ping: %w", err)
			}
		case <-refresh.C:
			next, err := f.tokens(ctx)
			if err != nil || len(next) == 0 {
				continue
			}
			slices.Sort(next)
			if !slices.Equal(next, want) {
				return nil
			}
		}
	}
}

// handle caches every book event in a frame. Frames carry either one event
// object or an array of them.
func (f *BookFeed) handle(ctx context.Context, data []byte) {
	var events []APIBook
	if len(data) > 0 && data[0] == '[' {
		if err := json.Unmarshal(data, &events); err != nil {
			return
		}
	} else {
		var ev APIBook
		if err := json.Unmarshal(data, &ev); err != nil {
			return
		}
		events = []APIBook{ev}
	}

	for i := range events {
		if events[i].EventType != "book" || events[i].AssetID == "" {
			continue
		}
		book := events[i].ToDomainBook()
		book.FetchedAt = time.Now().UTC()
		if err := f.cache.SetBook(ctx, book, f.cfg.BookTTL); err != nil {
			f.logger.WarnContext(ctx, "book_feed: cache write failed",
				slog.String("token_id", book.TokenID),
				slog.String("error", err.Error()),
			)
			continue
		}
		f.received.Add(1)
	}
}
