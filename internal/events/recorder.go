package events

import (
	"context"
	"sync"

	"github.com/alanyoungcy/pairarb/internal/domain"
)

// Recorder keeps every event in memory. It works as a synchronous EventSink
// and as a queue Sink; scan-once mode summarizes it and tests assert on it.
type Recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

var (
	_ domain.EventSink = (*Recorder)(nil)
	_ Sink             = (*Recorder)(nil)
)

func (r *Recorder) Emit(ev domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *Recorder) Name() string { return "recorder" }

func (r *Recorder) Deliver(_ context.Context, ev domain.Event) error {
	r.Emit(ev)
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Event(nil), r.events...)
}

// Count returns how many events named name were recorded.
func (r *Recorder) Count(name domain.EventName) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Name == name {
			n++
		}
	}
	return n
}
