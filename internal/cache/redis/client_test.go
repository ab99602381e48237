package redis

import (
	"testing"

	"github.com/redis/go-redis/v9"
)

func TestKeyNamespace(t *testing.T) {
	tests := []struct {
		ns   string
		want string
	}{
		{"", "lock:account:a1"},
		{"pairarb", "pairarb:lock:account:a1"},
		{"pairarb:", "pairarb:lock:account:a1"},
		{" staging ", "staging:lock:account:a1"},
	}
	for _, tt := range tests {
		c := &Client{ns: prefix(tt.ns)}
		if got := c.Key("lock:account:a1"); got != tt.want {
			t.Fatalf("ns=%q key=%q want %q", tt.ns, got, tt.want)
		}
	}
}

func TestBookKeysShareNamespace(t *testing.T) {
	oc := NewOrderbookCache(&Client{ns: prefix("x")})
	k := oc.keys("123")
	for name, got := range map[string]string{
		"bids":     k.bids,
		"asks":     k.asks,
		"bid_size": k.bidSize,
		"ask_size": k.askSize,
		"meta":     k.meta,
	} {
		if got[:len("x:book:123:")] != "x:book:123:" {
			t.Fatalf("%s key=%q not under x:book:123:", name, got)
		}
	}
}

func TestLevelsJoinsSizes(t *testing.T) {
	zs := []redis.Z{
		{Score: 0.45, Member: "0.45"},
		{Score: 0.47, Member: "0.47"},
		{Score: 0.5, Member: 12}, // not a string member, skipped
	}
	sizes := map[string]string{"0.45": "100", "0.47": "bad"}
	got := levels(zs, sizes)
	if len(got) != 2 {
		t.Fatalf("levels=%v want 2 entries", got)
	}
	if got[0].Price != 0.45 || got[0].Size != 100 {
		t.Fatalf("level0=%+v want 0.45x100", got[0])
	}
	if got[1].Price != 0.47 || got[1].Size != 0 {
		t.Fatalf("level1=%+v want 0.47x0", got[1])
	}
}

func TestHasPattern(t *testing.T) {
	tests := map[string]bool{
		"events:a1":   false,
		"events:*":    true,
		"events:a?":   true,
		"events:[ab]": true,
	}
	for ch, want := range tests {
		if got := hasPattern(ch); got != want {
			t.Fatalf("hasPattern(%q)=%v want %v", ch, got, want)
		}
	}
}
