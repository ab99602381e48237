package pipeline

import (
	"context"
	"testing"
	"time"
)

func TestCronNext(t *testing.T) {
	base := time.Date(2026, 3, 14, 10, 7, 30, 0, time.UTC) // Saturday
	tests := []struct {
		expr string
		want time.Time
	}{
		{"* * * * *", time.Date(2026, 3, 14, 10, 8, 0, 0, time.UTC)},
		{"0 3 * * *", time.Date(2026, 3, 15, 3, 0, 0, 0, time.UTC)},
		{"*/15 * * * *", time.Date(2026, 3, 14, 10, 15, 0, 0, time.UTC)},
		{"30 9-17 * * 1-5", time.Date(2026, 3, 16, 9, 30, 0, 0, time.UTC)},
		{"0 0 1 * *", time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)},
		{"5,10 10 * * *", time.Date(2026, 3, 14, 10, 10, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		sched, err := parseCron(tt.expr)
		if err != nil {
			t.Fatalf("parseCron(%q): %v", tt.expr, err)
		}
		got, err := sched.next(base)
		if err != nil {
			t.Fatalf("next(%q): %v", tt.expr, err)
		}
		if !got.Equal(tt.want) {
			t.Fatalf("next(%q)=%v want %v", tt.expr, got, tt.want)
		}
	}
}

func TestParseCron_Invalid(t *testing.T) {
	for _, expr := range []string{"", "* * * *", "60 * * * *", "*/0 * * * *", "5-1 * * * *", "a * * * *"} {
		if _, err := parseCron(expr); err == nil {
			t.Fatalf("parseCron(%q) err=nil want error", expr)
		}
	}
}

type countingArchiver struct{ trades, alerts int }

func (c *countingArchiver) ArchiveTrades(context.Context, time.Time) (int64, error) {
	c.trades++
	return 3, nil
}

func (c *countingArchiver) ArchiveAlerts(context.Context, time.Time) (int64, error) {
	c.alerts++
	return 1, nil
}

func TestArchiver_Run(t *testing.T) {
	blob := &countingArchiver{}
	a := NewArchiver(blob, 7, discardLogger())
	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if blob.trades != 1 || blob.alerts != 1 {
		t.Fatalf("archive calls trades=%d alerts=%d want 1,1", blob.trades, blob.alerts)
	}
}
