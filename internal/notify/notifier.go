// Package notify delivers selected events to chat channels. The Notifier is
// an events.Sink: it filters by event name, renders a title and message and
// hands them to every registered Sender.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/pairarb/internal/domain"
)

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// Notifier dispatches events to one or more Senders. Only events whose name
// is in the allowed set are forwarded, and an identical notification is not
// repeated within the suppression window.
type Notifier struct {
	senders  []Sender
	events   map[domain.EventName]bool
	suppress time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	lastSent map[string]time.Time
}

// NewNotifier creates a Notifier that will deliver to the given senders. If
// events is empty, all event names are allowed. A zero suppress disables
// repeat suppression.
func NewNotifier(senders []Sender, events []string, suppress time.Duration, logger *slog.Logger) *Notifier {
	allowed := make(map[domain.EventName]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[domain.EventName(e)] = true
		}
	}
	return &Notifier{
		senders:  senders,
		events:   allowed,
		suppress: suppress,
		logger:   logger.With(slog.String("component", "notifier")),
		now:      time.Now,
		lastSent: make(map[string]time.Time),
	}
}

// Name implements events.Sink.
func (n *Notifier) Name() string { return "notifier" }

// Deliver implements events.Sink.
func (n *Notifier) Deliver(ctx context.Context, ev domain.Event) error {
	if len(n.events) > 0 && !n.events[ev.Name] {
		return nil
	}
	title, message := Format(ev)
	if n.repeated(title + "\x00" + message) {
		n.logger.DebugContext(ctx, "notifier: repeat suppressed", slog.String("event", string(ev.Name)))
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// NotifyAll sends a notification to all senders regardless of the filter.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	return n.dispatch(ctx, title, message)
}

// repeated records key and reports whether it was already sent within the
// suppression window.
func (n *Notifier) repeated(key string) bool {
	if n.suppress <= 0 {
		return false
	}
	now := n.now()
	n.mu.Lock()
	defer n.mu.Unlock()
	for k, at := range n.lastSent {
		if now.Sub(at) >= n.suppress {
			delete(n.lastSent, k)
		}
	}
	if _, ok := n.lastSent[key]; ok {
		return true
	}
	n.lastSent[key] = now
	return false
}

// dispatch iterates over all senders and sends the notification. A single
// sender failure does not prevent delivery to the remaining senders.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "notifier: sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		} else {
			n.logger.DebugContext(ctx, "notifier: sent",
				slog.String("sender", s.Name()),
				slog.String("title", title),
			)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
