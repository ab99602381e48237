package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/pairarb/internal/domain"
)

// chanBus is a SignalBus whose Subscribe hands out one shared channel.
type chanBus struct {
	out chan []byte
}

func (b *chanBus) Publish(_ context.Context, _ string, payload []byte) error {
	b.out <- payload
	return nil
}

func (b *chanBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return b.out, nil
}

func (b *chanBus) StreamAppend(context.Context, string, []byte) error { return nil }

func (b *chanBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func readEvent(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var head struct {
		Event string `json:"event"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return head.Event
}

func TestHubRelaysSubscribedEvents(t *testing.T) {
	bus := &chanBus{out: make(chan []byte, 8)}
	hub := NewHub(bus, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{
		Mode:      "bot",
		AccountID: "acct",
		Channels:  []string{"ch:events:acct"},
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(httpHandler(hub))
	defer srv.Close()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if ev := readEvent(t, conn); ev != "bot:status" {
		t.Fatalf("first frame=%q want bot:status", ev)
	}

	if err := conn.WriteJSON(subscribeMsg{Action: "subscribe", Events: []string{"trade:*"}}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	// Give the read pump time to apply the subscription.
	time.Sleep(50 * time.Millisecond)

	for _, name := range []domain.EventName{domain.EventBalanceUpdate, domain.EventTradeSettled} {
		data, _ := json.Marshal(domain.Event{Name: name, AccountID: "acct"})
		_ = bus.Publish(ctx, "ch:events:acct", data)
	}
	if ev := readEvent(t, conn); ev != string(domain.EventTradeSettled) {
		t.Fatalf("relayed=%q want trade:settled only", ev)
	}
}

func TestIsSubscribed(t *testing.T) {
	c := &client{subs: map[string]bool{"trade:*": true, "alert:new": true}}
	tests := []struct {
		event string
		want  bool
	}{
		{"trade:settled", true},
		{"trade:created", true},
		{"alert:new", true},
		{"balance:update", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := c.isSubscribed(tt.event); got != tt.want {
			t.Fatalf("isSubscribed(%q)=%v want %v", tt.event, got, tt.want)
		}
	}

	c.handleSubscription(subscribeMsg{Action: "unsubscribe", Events: []string{"trade:*"}})
	if c.isSubscribed("trade:settled") {
		t.Fatalf("still subscribed after unsubscribe")
	}
}

func TestCheckOrigin(t *testing.T) {
	h := NewHub(&chanBus{}, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{
		AllowedOrigins: []string{"https://dash.example.com"},
	})
	req := httptest.NewRequest("GET", "/ws", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	if h.checkOrigin(req) {
		t.Fatalf("foreign origin accepted")
	}
	req.Header.Set("Origin", "https://dash.example.com")
	if !h.checkOrigin(req) {
		t.Fatalf("allowed origin rejected")
	}
}

func httpHandler(h *Hub) http.Handler { return http.HandlerFunc(h.HandleWS) }
