package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/pairarb/internal/domain"
)

// ErrInvalidSettings is returned by Update for out-of-range values.
var ErrInvalidSettings = errors.New("invalid settings")

// SettingsService reads and updates the account's settings and tells
// listeners about changes.
type SettingsService struct {
	account  domain.Account
	store    domain.SettingsStore
	events   domain.EventSink
	audit    domain.AuditStore
	defaults domain.Settings
	logger   *slog.Logger

	mu        sync.Mutex
	listeners []func(old, updated domain.Settings)
}

// NewSettingsService creates a SettingsService. defaults seeds the row the
// first time the account is seen.
func NewSettingsService(account domain.Account, store domain.SettingsStore, events domain.EventSink, audit domain.AuditStore, defaults domain.Settings, logger *slog.Logger) *SettingsService {
	defaults.AccountID = account.ID
	return &SettingsService{
		account:  account,
		store:    store,
		events:   events,
		audit:    audit,
		defaults: defaults,
		logger:   logger.With(slog.String("component", "settings_service"), slog.String("account", account.ID)),
	}
}

// Ensure returns the stored settings, creating them from defaults when the
// account has none yet.
func (s *SettingsService) Ensure(ctx context.Context) (domain.Settings, error) {
	st, err := s.store.Get(ctx, s.account.ID)
	if err == nil {
		return st, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.Settings{}, fmt.Errorf("settings_service: get: %w", err)
	}
	if err := ValidateSettings(s.defaults); err != nil {
		return domain.Settings{}, fmt.Errorf("settings_service: defaults: %w", err)
	}
	if err := s.store.Upsert(ctx, s.defaults); err != nil {
		return domain.Settings{}, fmt.Errorf("settings_service: seed defaults: %w", err)
	}
	s.logger.InfoContext(ctx, "settings_service: seeded default settings")
	return s.store.Get(ctx, s.account.ID)
}

// Get returns the current settings.
func (s *SettingsService) Get(ctx context.Context) (domain.Settings, error) {
	st, err := s.store.Get(ctx, s.account.ID)
	if err != nil {
		return domain.Settings{}, fmt.Errorf("settings_service: get: %w", err)
	}
	return st, nil
}

// OnChange registers fn to run after every successful update.
func (s *SettingsService) OnChange(fn func(old, updated domain.Settings)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Update applies patch, persists the result and emits settings:changed. The
// kill switch fields are never touched here.
func (s *SettingsService) Update(ctx context.Context, patch domain.SettingsPatch) (domain.Settings, error) {
	old, err := s.store.Get(ctx, s.account.ID)
	if err != nil {
		return domain.Settings{}, fmt.Errorf("settings_service: get: %w", err)
	}
	updated := patch.Apply(old)
	if err := ValidateSettings(updated); err != nil {
		return domain.Settings{}, err
	}
	if err := s.store.Upsert(ctx, updated); err != nil {
		return domain.Settings{}, fmt.Errorf("settings_service: upsert: %w", err)
	}
	updated, err = s.store.Get(ctx, s.account.ID)
	if err != nil {
		return domain.Settings{}, fmt.Errorf("settings_service: reload: %w", err)
	}

	s.events.Emit(domain.Event{Name: domain.EventSettingsChanged, AccountID: s.account.ID, Payload: updated})
	if s.audit != nil {
		if err := s.audit.Log(ctx, s.account.ID, "settings_changed", map[string]any{
			"position_size":      updated.PositionSize,
			"profit_threshold":   updated.ProfitThreshold,
			"daily_loss_limit":   updated.DailyLossLimit,
			"max_open_positions": updated.MaxOpenPositions,
			"auto_mode":          updated.AutoMode,
			"scan_interval":      updated.ScanInterval.String(),
		}); err != nil {
			s.logger.WarnContext(ctx, "settings_service: audit log failed", slog.String("error", err.Error()))
		}
	}

	s.mu.Lock()
	listeners := append([]func(old, updated domain.Settings){}, s.listeners...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(old, updated)
	}

	s.logger.InfoContext(ctx, "settings_service: settings updated",
		slog.Float64("position_size", updated.PositionSize),
		slog.Float64("profit_threshold", updated.ProfitThreshold),
		slog.Bool("auto_mode", updated.AutoMode),
		slog.Duration("scan_interval", updated.ScanInterval),
	)
	return updated, nil
}

// ValidateSettings reports every out-of-range field.
func ValidateSettings(st domain.Settings) error {
	var errs []string
	if st.PositionSize <= 0 {
		errs = append(errs, "position_size must be > 0")
	}
	if st.ProfitThreshold < 0 || st.ProfitThreshold >= 1 {
		errs = append(errs, "profit_threshold must be in [0, 1)")
	}
	if st.DailyLossLimit < 0 {
		errs = append(errs, "daily_loss_limit must be >= 0")
	}
	if st.MaxOpenPositions < 1 {
		errs = append(errs, "max_open_positions must be >= 1")
	}
	if st.ScanInterval < time.Second {
		errs = append(errs, "scan_interval must be >= 1s")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidSettings, strings.Join(errs, "; "))
	}
	return nil
}
