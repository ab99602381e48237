package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/pairarb/internal/domain"
	"github.com/google/uuid"
)

// AlertService persists alerts and announces them on the event stream.
type AlertService struct {
	account domain.Account
	alerts  domain.AlertStore
	events  domain.EventSink
	logger  *slog.Logger
}

// NewAlertService creates an AlertService for one account.
func NewAlertService(account domain.Account, alerts domain.AlertStore, events domain.EventSink, logger *slog.Logger) *AlertService {
	return &AlertService{
		account: account,
		alerts:  alerts,
		events:  events,
		logger:  logger.With(slog.String("component", "alert_service")),
	}
}

// Raise stores an alert and emits alert:new. A failed write is logged and
// the event is still emitted.
func (s *AlertService) Raise(ctx context.Context, severity domain.AlertSeverity, title, message string) domain.Alert {
	a := domain.Alert{
		ID:        uuid.NewString(),
		AccountID: s.account.ID,
		Severity:  severity,
		Title:     title,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.alerts.Create(ctx, a); err != nil {
		s.logger.WarnContext(ctx, "alert_service: persist alert failed",
			slog.String("title", title),
			slog.String("error", err.Error()),
		)
	}
	s.events.Emit(domain.Event{Name: domain.EventAlertNew, AccountID: s.account.ID, Payload: a, At: a.CreatedAt})
	return a
}

// List returns the account's most recent alerts.
func (s *AlertService) List(ctx context.Context, opts domain.ListOpts) ([]domain.Alert, error) {
	return s.alerts.List(ctx, s.account.ID, opts)
}
