package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/alanyoungcy/pairarb/internal/domain"
)

// AlertLister lists persisted alerts, newest first.
type AlertLister interface {
	List(ctx context.Context, opts domain.ListOpts) ([]domain.Alert, error)
}

// SnapshotReader returns recorded detector book snapshots.
type SnapshotReader interface {
	Recent(ctx context.Context, count int) ([]domain.BookSnapshot, error)
}

// HistoryHandler serves alerts, daily P&L, archived files and book
// snapshots.
type HistoryHandler struct {
	accountID string
	alerts    AlertLister
	pnl       domain.DailyPnLStore
	archives  domain.BlobReader
	snapshots SnapshotReader
	logger    *slog.Logger
}

// NewHistoryHandler creates a HistoryHandler. archives may be nil.
func NewHistoryHandler(accountID string, alerts AlertLister, pnl domain.DailyPnLStore, archives domain.BlobReader, logger *slog.Logger) *HistoryHandler {
	return &HistoryHandler{accountID: accountID, alerts: alerts, pnl: pnl, archives: archives, logger: logger}
}

// WithSnapshots enables GET /api/snapshots.
func (h *HistoryHandler) WithSnapshots(r SnapshotReader) *HistoryHandler {
	h.snapshots = r
	return h
}

// Alerts returns recent alerts.
// GET /api/alerts?limit=50&offset=0
func (h *HistoryHandler) Alerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.alerts.List(r.Context(), parseListOpts(r))
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to list alerts", err)
		return
	}
	if alerts == nil {
		alerts = []domain.Alert{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

// PnL returns the daily P&L rows of the last days (default 30, max 365).
// GET /api/pnl?days=30
func (h *HistoryHandler) PnL(w http.ResponseWriter, r *http.Request) {
	days := 30
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "days must be a positive integer")
			return
		}
		days = min(n, 365)
	}
	rows, err := h.pnl.ListRecent(r.Context(), h.accountID, days)
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to list pnl", err)
		return
	}
	if rows == nil {
		rows = []domain.DailyPnL{}
	}
	var total float64
	trades, wins := 0, 0
	for _, d := range rows {
		total += d.RealizedPnL
		trades += d.TradeCount
		wins += d.WinCount
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"days":         rows,
		"realized_pnl": total,
		"trade_count":  trades,
		"win_count":    wins,
	})
}

// Archives lists archived files under archive/<kind>/.
// GET /api/archives?kind=trades
func (h *HistoryHandler) Archives(w http.ResponseWriter, r *http.Request) {
	if h.archives == nil {
		writeError(w, http.StatusNotImplemented, "archive storage not configured")
		return
	}
	prefix := "archive/"
	if kind := strings.Trim(r.URL.Query().Get("kind"), "/ "); kind != "" {
		prefix += kind + "/"
	}
	files, err := h.archives.List(r.Context(), prefix)
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to list archives", err)
		return
	}
	if files == nil {
		files = []domain.BlobInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}

// Snapshots returns the oldest retained detector book snapshots.
// GET /api/snapshots?count=50
func (h *HistoryHandler) Snapshots(w http.ResponseWriter, r *http.Request) {
	if h.snapshots == nil {
		writeError(w, http.StatusNotImplemented, "snapshot recording not configured")
		return
	}
	count := 50
	if v := r.URL.Query().Get("count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "count must be a positive integer")
			return
		}
		count = min(n, 500)
	}
	snaps, err := h.snapshots.Recent(r.Context(), count)
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to read snapshots", err)
		return
	}
	if snaps == nil {
		snaps = []domain.BookSnapshot{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"snapshots": snaps})
}
