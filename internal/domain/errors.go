package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrRateLimited       = errors.New("rate limited")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidOrder      = errors.New("invalid order parameters")
	ErrSigningFailed     = errors.New("signing failed")
	ErrLockHeld          = errors.New("lock already held")
	ErrRiskDenied        = errors.New("risk check denied")
	ErrSourceUnavailable = errors.New("market source unavailable")
	ErrLegFailed         = errors.New("leg execution failed")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrKillSwitchActive  = errors.New("kill switch active")
	ErrShuttingDown      = errors.New("shutting down")
)
