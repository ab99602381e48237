package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/pairarb/internal/pipeline"
)

// CycleRunner runs one scan cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context) (pipeline.CycleReport, error)
}

// ScanHandler triggers a scan on demand.
type ScanHandler struct {
	runner CycleRunner
	logger *slog.Logger
}

// NewScanHandler creates a ScanHandler.
func NewScanHandler(runner CycleRunner, logger *slog.Logger) *ScanHandler {
	return &ScanHandler{runner: runner, logger: logger}
}

// Scan runs one cycle and returns its report.
// POST /api/scan
func (h *ScanHandler) Scan(w http.ResponseWriter, r *http.Request) {
	report, err := h.runner.RunCycle(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "scan failed", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
