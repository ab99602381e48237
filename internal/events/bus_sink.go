package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alanyoungcy/pairarb/internal/domain"
)

// ChannelPrefix prefixes the pub/sub channel of every account's events.
const ChannelPrefix = "ch:events:"

// Channel returns the pub/sub channel carrying accountID's events.
func Channel(accountID string) string { return ChannelPrefix + accountID }

// BusSink publishes events as JSON on the signal bus, where the WebSocket hub
// and other processes pick them up.
type BusSink struct {
	bus domain.SignalBus
}

// NewBusSink creates a BusSink publishing on bus.
func NewBusSink(bus domain.SignalBus) *BusSink {
	return &BusSink{bus: bus}
}

func (s *BusSink) Name() string { return "signal_bus" }

// Deliver publishes ev on the account's channel.
func (s *BusSink) Deliver(ctx context.Context, ev domain.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("events: marshal %s: %w", ev.Name, err)
	}
	if err := s.bus.Publish(ctx, Channel(ev.AccountID), data); err != nil {
		return fmt.Errorf("events: publish %s: %w", ev.Name, err)
	}
	return nil
}
