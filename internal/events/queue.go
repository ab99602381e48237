// Package events carries the outbound notification stream. The trading core
// only sees domain.EventSink; delivery to Redis, WebSocket clients and chat
// senders happens on the queue's own goroutine.
package events

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/pairarb/internal/domain"
)

const drainTimeout = 5 * time.Second

// Sink receives events from the queue's dispatch loop.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, ev domain.Event) error
}

// Queue is a bounded, non-blocking event queue fanning out to sinks.
type Queue struct {
	ch      chan domain.Event
	mu      sync.RWMutex
	sinks   []Sink
	dropped atomic.Int64
	logger  *slog.Logger
}

var _ domain.EventSink = (*Queue)(nil)

// NewQueue creates a Queue buffering up to size events.
func NewQueue(size int, logger *slog.Logger) *Queue {
	if size <= 0 {
		size = 1024
	}
	return &Queue{
		ch:     make(chan domain.Event, size),
		logger: logger.With(slog.String("component", "event_queue")),
	}
}

// AddSink registers a sink. Sinks added after Run starts receive later events.
func (q *Queue) AddSink(s Sink) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.sinks = append(q.sinks, s)
}

// Emit enqueues ev without blocking. When the buffer is full the event is
// dropped and counted.
func (q *Queue) Emit(ev domain.Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	select {
	case q.ch <- ev:
	default:
		n := q.dropped.Add(1)
		q.logger.Warn("event queue: buffer full, event dropped",
			slog.String("event", string(ev.Name)),
			slog.Int64("dropped_total", n),
		)
	}
}

// Dropped returns how many events were discarded because the buffer was full.
func (q *Queue) Dropped() int64 { return q.dropped.Load() }

// Run dispatches queued events to every sink until ctx is cancelled, then
// drains what is left with a short deadline.
func (q *Queue) Run(ctx context.Context) error {
	q.logger.Info("event queue started")
	defer q.logger.Info("event queue stopped")

	for {
		select {
		case <-ctx.Done():
			q.drain()
			return ctx.Err()
		case ev := <-q.ch:
			q.dispatch(ctx, ev)
		}
	}
}

func (q *Queue) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for {
		select {
		case ev := <-q.ch:
			q.dispatch(ctx, ev)
		default:
			return
		}
	}
}

func (q *Queue) dispatch(ctx context.Context, ev domain.Event) {
	q.mu.RLock()
	sinks := append([]Sink(nil), q.sinks...)
	q.mu.RUnlock()

	for _, s := range sinks {
		if err := s.Deliver(ctx, ev); err != nil {
			q.logger.WarnContext(ctx, "event queue: delivery failed",
				slog.String("sink", s.Name()),
				slog.String("event", string(ev.Name)),
				slog.String("error", err.Error()),
			)
		}
	}
}
