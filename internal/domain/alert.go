package domain

import (
	"context"
	"time"
)

// AlertSeverity ranks persisted alerts.
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityError    AlertSeverity = "error"
	SeverityCritical AlertSeverity = "critical"
)

// Alert is a persisted, human-readable record of a notable state change.
type Alert struct {
	ID        string        `json:"id"`
	AccountID string        `json:"account_id"`
	Severity  AlertSeverity `json:"severity"`
	Title     string        `json:"title"`
	Message   string        `json:"message"`
	CreatedAt time.Time     `json:"created_at"`
}

// Alerter persists an alert and announces it.
type Alerter interface {
	Raise(ctx context.Context, severity AlertSeverity, title, message string) Alert
}
