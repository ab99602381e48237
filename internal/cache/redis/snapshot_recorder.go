package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alanyoungcy/pairarb/internal/domain"
)

// SnapshotStream is the stream every detection snapshot is appended to.
const SnapshotStream = "stream:book_snapshots"

// SnapshotRecorder implements domain.SnapshotRecorder by appending JSON
// snapshots to a capped Redis stream.
type SnapshotRecorder struct {
	bus    *SignalBus
	stream string
}

// NewSnapshotRecorder creates a SnapshotRecorder writing to stream. An
// empty stream selects SnapshotStream.
func NewSnapshotRecorder(bus *SignalBus, stream string) *SnapshotRecorder {
	if stream == "" {
		stream = SnapshotStream
	}
	return &SnapshotRecorder{bus: bus, stream: stream}
}

// RecordSnapshot appends snap to the stream.
func (r *SnapshotRecorder) RecordSnapshot(ctx context.Context, snap domain.BookSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: marshal snapshot %s: %w", snap.MarketID, err)
	}
	return r.bus.StreamAppend(ctx, r.stream, data)
}

// Recent returns up to count snapshots from the start of the stream.
func (r *SnapshotRecorder) Recent(ctx context.Context, count int) ([]domain.BookSnapshot, error) {
	msgs, err := r.bus.StreamRead(ctx, r.stream, "0", count)
	if err != nil {
		return nil, err
	}
	out := make([]domain.BookSnapshot, 0, len(msgs))
	for _, m := range msgs {
		var snap domain.BookSnapshot
		if err := json.Unmarshal(m.Payload, &snap); err != nil {
			continue
		}
		out = append(out, snap)
	}
	return out, nil
}

var _ domain.SnapshotRecorder = (*SnapshotRecorder)(nil)
