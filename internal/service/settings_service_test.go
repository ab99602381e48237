package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alanyoungcy/pairarb/internal/domain"
	"github.com/alanyoungcy/pairarb/internal/events"
	"github.com/alanyoungcy/pairarb/internal/store/memory"
)

func TestSettingsService_EnsureSeedsDefaults(t *testing.T) {
	store := memory.NewSettingsStore()
	svc := NewSettingsService(testAccount, store, &events.Recorder{}, nil, baseSettings(), discardLogger())

	st, err := svc.Ensure(context.Background())
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if st.AccountID != testAccount.ID || st.PositionSize != 10 {
		t.Fatalf("settings=%+v want seeded defaults", st)
	}
}

func TestSettingsService_UpdateNotifiesListeners(t *testing.T) {
	store := memory.NewSettingsStore()
	rec := &events.Recorder{}
	audit := memory.NewAuditStore()
	svc := NewSettingsService(testAccount, store, rec, audit, baseSettings(), discardLogger())
	ctx := context.Background()
	if _, err := svc.Ensure(ctx); err != nil {
		t.Fatalf("Ensure: %v", err)
	}

	var gotOld, gotNew domain.Settings
	svc.OnChange(func(old, updated domain.Settings) {
		gotOld, gotNew = old, updated
	})

	interval := 5 * time.Second
	auto := true
	updated, err := svc.Update(ctx, domain.SettingsPatch{ScanInterval: &interval, AutoMode: &auto})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.ScanInterval != interval || !updated.AutoMode {
		t.Fatalf("updated=%+v want interval %v auto", updated, interval)
	}
	if gotOld.ScanInterval != 30*time.Second || gotNew.ScanInterval != interval {
		t.Fatalf("listener old=%v new=%v", gotOld.ScanInterval, gotNew.ScanInterval)
	}
	if got := rec.Count(domain.EventSettingsChanged); got != 1 {
		t.Fatalf("settings events=%d want 1", got)
	}
	entries, _ := audit.List(ctx, testAccount.ID, domain.ListOpts{})
	if len(entries) != 1 || entries[0].Event != "settings_changed" {
		t.Fatalf("audit=%+v want one settings_changed", entries)
	}
}

func TestSettingsService_UpdateRejectsInvalid(t *testing.T) {
	store := memory.NewSettingsStore()
	rec := &events.Recorder{}
	svc := NewSettingsService(testAccount, store, rec, nil, baseSettings(), discardLogger())
	ctx := context.Background()
	if _, err := svc.Ensure(ctx); err != nil {
		t.Fatalf("Ensure: %v", err)
	}

	tests := []struct {
		name  string
		patch domain.SettingsPatch
	}{
		{"zero position size", domain.SettingsPatch{PositionSize: ptr(0.0)}},
		{"threshold of one", domain.SettingsPatch{ProfitThreshold: ptr(1.0)}},
		{"negative loss limit", domain.SettingsPatch{DailyLossLimit: ptr(-1.0)}},
		{"no open positions", domain.SettingsPatch{MaxOpenPositions: ptr(0)}},
		{"sub-second interval", domain.SettingsPatch{ScanInterval: ptr(500 * time.Millisecond)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Update(ctx, tt.patch)
			if !errors.Is(err, ErrInvalidSettings) {
				t.Fatalf("err=%v want ErrInvalidSettings", err)
			}
		})
	}
	if got := rec.Count(domain.EventSettingsChanged); got != 0 {
		t.Fatalf("settings events=%d want 0", got)
	}
}

func ptr[T any](v T) *T { return &v }
