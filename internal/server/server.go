// Package server exposes the operator API: risk and kill switch, settings,
// opportunity approval, trade actions, history and the event WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/pairarb/internal/domain"
	"github.com/alanyoungcy/pairarb/internal/server/handler"
	"github.com/alanyoungcy/pairarb/internal/server/middleware"
	"github.com/alanyoungcy/pairarb/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
	RateLimit   int    // requests per RateWindow per client; 0 disables
	RateWindow  time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health        *handler.HealthHandler
	Risk          *handler.RiskHandler
	Settings      *handler.SettingsHandler
	Opportunities *handler.OpportunityHandler
	Trades        *handler.TradeHandler
	Scan          *handler.ScanHandler
	History       *handler.HistoryHandler
}

// Server is the headless HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// Scan may be nil when the process runs without a scan loop; limiter may be
// nil.
func NewServer(cfg Config, h Handlers, hub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "server"))
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", h.Health.HealthCheck)

	mux.HandleFunc("GET /api/risk", h.Risk.Status)
	mux.HandleFunc("POST /api/kill-switch/activate", h.Risk.Activate)
	mux.HandleFunc("POST /api/kill-switch/deactivate", h.Risk.Deactivate)
	mux.HandleFunc("POST /api/kill-switch/toggle", h.Risk.Toggle)

	mux.HandleFunc("GET /api/settings", h.Settings.Get)
	mux.HandleFunc("PUT /api/settings", h.Settings.Update)

	mux.HandleFunc("GET /api/opportunities", h.Opportunities.List)
	mux.HandleFunc("POST /api/opportunities/{id}/approve", h.Opportunities.Approve)
	mux.HandleFunc("POST /api/opportunities/{id}/reject", h.Opportunities.Reject)

	mux.HandleFunc("GET /api/trades", h.Trades.List)
	mux.HandleFunc("GET /api/trades/{id}", h.Trades.Get)
	mux.HandleFunc("POST /api/trades/{id}/cancel", h.Trades.Cancel)
	mux.HandleFunc("POST /api/trades/{id}/reconcile", h.Trades.Reconcile)
	mux.HandleFunc("POST /api/trades/{id}/settle", h.Trades.Settle)

	if h.Scan != nil {
		mux.HandleFunc("POST /api/scan", h.Scan.Scan)
	}

	mux.HandleFunc("GET /api/alerts", h.History.Alerts)
	mux.HandleFunc("GET /api/pnl", h.History.PnL)
	mux.HandleFunc("GET /api/archives", h.History.Archives)
	mux.HandleFunc("GET /api/snapshots", h.History.Snapshots)

	if hub != nil {
		mux.HandleFunc("GET /ws", hub.HandleWS)
	}

	// Outermost first: CORS answers preflights before auth, logging sees
	// every response including 401 and 429.
	var handler http.Handler = mux
	handler = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow)(handler)
	handler = middleware.Auth(cfg.APIKey, "/api/health")(handler)
	handler = middleware.Logging(logger)(handler)
	handler = middleware.CORS(cfg.CORSOrigins)(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			// Approve and scan run exchange calls inline.
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
