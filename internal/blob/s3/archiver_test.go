package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/pairarb/internal/domain"
	"github.com/alanyoungcy/pairarb/internal/store/memory"
)

type memBlobs struct {
	objects map[string][]byte
	putErr  error
}

func newMemBlobs() *memBlobs { return &memBlobs{objects: make(map[string][]byte)} }

func (m *memBlobs) Put(_ context.Context, path string, data io.Reader, _ string) error {
	if m.putErr != nil {
		return m.putErr
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.objects[path] = b
	return nil
}

func (m *memBlobs) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	var out []domain.BlobInfo
	for p, b := range m.objects {
		if strings.HasPrefix(p, prefix) {
			out = append(out, domain.BlobInfo{Path: p, Size: int64(len(b))})
		}
	}
	return out, nil
}

func (m *memBlobs) Exists(_ context.Context, path string) (bool, error) {
	_, ok := m.objects[path]
	return ok, nil
}

func lines(b []byte) int {
	n := 0
	sc := bufio.NewScanner(bytes.NewReader(b))
	for sc.Scan() {
		n++
	}
	return n
}

func newTestArchiver(blobs *memBlobs) (*ArchiveImpl, *memory.TradeStore, *memory.AlertStore, *memory.AuditStore) {
	trades := memory.NewTradeStore()
	alerts := memory.NewAlertStore()
	audit := memory.NewAuditStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a := NewArchiver(domain.Account{ID: "acct-1"}, blobs, blobs, trades, alerts, audit, logger)
	a.now = func() time.Time { return time.Date(2026, 3, 14, 3, 0, 0, 0, time.UTC) }
	return a, trades, alerts, audit
}

func TestArchiveTradesMovesTerminalOnly(t *testing.T) {
	ctx := context.Background()
	blobs := newMemBlobs()
	a, trades, _, audit := newTestArchiver(blobs)

	old := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, tr := range []domain.Trade{
		{ID: "t1", AccountID: "acct-1", Status: domain.TradeSettled, UpdatedAt: old},
		{ID: "t2", AccountID: "acct-1", Status: domain.TradeFailed, UpdatedAt: old},
		{ID: "t3", AccountID: "acct-1", Status: domain.TradePlaced, UpdatedAt: old},
		{ID: "t4", AccountID: "acct-1", Status: domain.TradeSettled, UpdatedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)},
	} {
		if err := trades.Create(ctx, tr); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	n, err := a.ArchiveTrades(ctx, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ArchiveTrades: %v", err)
	}
	if n != 2 {
		t.Fatalf("archived=%d want 2", n)
	}
	obj, ok := blobs.objects["archive/trades/2026-03-14/part-000.jsonl"]
	if !ok {
		t.Fatalf("archive object missing, have %v", blobs.objects)
	}
	if got := lines(obj); got != 2 {
		t.Fatalf("jsonl lines=%d want 2", got)
	}
	for _, id := range []string{"t1", "t2"} {
		if _, err := trades.GetByID(ctx, "acct-1", id); err == nil {
			t.Fatalf("%s still in store", id)
		}
	}
	for _, id := range []string{"t3", "t4"} {
		if _, err := trades.GetByID(ctx, "acct-1", id); err != nil {
			t.Fatalf("%s removed: %v", id, err)
		}
	}
	entries, _ := audit.List(ctx, "acct-1", domain.ListOpts{})
	if len(entries) != 1 || entries[0].Event != "archive.trades" {
		t.Fatalf("audit=%v", entries)
	}
}

func TestArchiveDoesNotOverwriteEarlierRun(t *testing.T) {
	ctx := context.Background()
	blobs := newMemBlobs()
	blobs.objects["archive/alerts/2026-03-14/part-000.jsonl"] = []byte("{}\n")
	a, _, alerts, _ := newTestArchiver(blobs)

	_ = alerts.Create(ctx, domain.Alert{ID: "a1", AccountID: "acct-1", CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)})

	n, err := a.ArchiveAlerts(ctx, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ArchiveAlerts: %v", err)
	}
	if n != 1 {
		t.Fatalf("archived=%d want 1", n)
	}
	if string(blobs.objects["archive/alerts/2026-03-14/part-000.jsonl"]) != "{}\n" {
		t.Fatalf("earlier archive overwritten")
	}
	if _, ok := blobs.objects["archive/alerts/2026-03-14/part-000.jsonl.1"]; !ok {
		t.Fatalf("new archive missing, have %v", blobs.objects)
	}
}

func TestArchiveKeepsRowsWhenUploadFails(t *testing.T) {
	ctx := context.Background()
	blobs := newMemBlobs()
	blobs.putErr = io.ErrUnexpectedEOF
	a, trades, _, _ := newTestArchiver(blobs)

	old := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	_ = trades.Create(ctx, domain.Trade{ID: "t1", AccountID: "acct-1", Status: domain.TradeSettled, UpdatedAt: old})

	if _, err := a.ArchiveTrades(ctx, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)); err == nil {
		t.Fatalf("expected upload error")
	}
	if _, err := trades.GetByID(ctx, "acct-1", "t1"); err != nil {
		t.Fatalf("trade lost after failed upload: %v", err)
	}
}

func TestNormaliseEndpoint(t *testing.T) {
	tests := []struct {
		in     string
		useSSL bool
		want   string
	}{
		{"https://s3.example.com", false, "https://s3.example.com"},
		{"minio.local", false, "http://minio.local"},
		{"e2.example.com", true, "https://e2.example.com"},
	}
	for _, tt := range tests {
		if got := normaliseEndpoint(tt.in, tt.useSSL); got != tt.want {
			t.Fatalf("normaliseEndpoint(%q)=%q want %q", tt.in, got, tt.want)
		}
	}
}
