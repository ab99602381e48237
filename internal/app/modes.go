package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/pairarb/internal/domain"
	"github.com/alanyoungcy/pairarb/internal/events"
	"github.com/alanyoungcy/pairarb/internal/server"
	"github.com/alanyoungcy/pairarb/internal/server/handler"
	"github.com/alanyoungcy/pairarb/internal/server/ws"
)

// shutdownTimeout bounds the order sweep and the HTTP drain on exit.
const shutdownTimeout = 15 * time.Second

// BotMode runs the scan loop with its background jobs, the book feed, the
// event queue and, when enabled, the API server.
func (a *App) BotMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "app: bot mode")
	g, ctx := errgroup.WithContext(ctx)

	goJob(g, ctx, "event queue", deps.Events.Run)
	goJob(g, ctx, "orchestrator", deps.Orchestrator.Run)
	if deps.BookFeed != nil {
		goJob(g, ctx, "book feed", deps.BookFeed.Run)
	}

	var srv *server.Server
	if a.cfg.Server.Enabled {
		srv = a.startHTTPServer(ctx, g, deps)
	}

	g.Go(func() error {
		<-ctx.Done()
		a.shutdown(deps, srv)
		return nil
	})

	return g.Wait()
}

// ServerMode serves the API and relays events without running the scan
// loop. Approvals, cancels and manual scans still go through the
// orchestrator.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "app: server mode")
	g, ctx := errgroup.WithContext(ctx)

	goJob(g, ctx, "event queue", deps.Events.Run)
	srv := a.startHTTPServer(ctx, g, deps)

	g.Go(func() error {
		<-ctx.Done()
		a.shutdown(deps, srv)
		return nil
	})

	return g.Wait()
}

// ScanOnceMode runs a single scan cycle, flushes the events it produced and
// returns.
func (a *App) ScanOnceMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "app: scan-once mode")

	rec := &events.Recorder{}
	deps.Events.AddSink(rec)

	qctx, stopQueue := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = deps.Events.Run(qctx)
	}()
	flush := func() {
		stopQueue()
		<-done
	}

	report, err := deps.Orchestrator.RunCycle(ctx)
	flush()
	if err != nil {
		return fmt.Errorf("app: scan cycle: %w", err)
	}
	a.logger.InfoContext(ctx, "app: scan cycle complete",
		slog.String("skipped", report.Skipped),
		slog.Int("candidates", report.Candidates),
		slog.Int("detected", report.Detected),
		slog.Int("denied", report.Denied),
		slog.Int("queued", report.Queued),
		slog.Int("executed", report.Executed),
		slog.Int("failed", report.Failed),
		slog.Int("events", len(rec.Events())),
		slog.Int("opportunities", rec.Count(domain.EventOpportunityNew)),
		slog.Int("trades", rec.Count(domain.EventTradeCreated)),
	)
	return nil
}

// MigrateMode applies pending schema migrations and exits.
func (a *App) MigrateMode(ctx context.Context) error {
	pg, err := connectPostgres(ctx, a.cfg)
	if err != nil {
		return fmt.Errorf("app: migrate: %w", err)
	}
	defer pg.Close()

	applied, err := pg.RunMigrations(ctx)
	if err != nil {
		return fmt.Errorf("app: migrate: %w", err)
	}
	a.logger.InfoContext(ctx, "app: migrations complete",
		slog.Int("applied", len(applied)),
		slog.Any("files", applied),
	)
	return nil
}

// startHTTPServer builds the hub and the API server and adds both to g.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) *server.Server {
	accountID := deps.Account.ID

	pingers := map[string]handler.Pinger{
		"postgres": deps.Postgres,
		"redis":    deps.Redis,
	}
	if deps.S3 != nil {
		pingers["s3"] = pingFunc(deps.S3.Health)
	}

	hub := ws.NewHub(deps.Bus, a.logger, ws.Config{
		Mode:           a.cfg.Mode,
		AccountID:      accountID,
		StartedAt:      time.Now().UTC(),
		Channels:       []string{events.Channel(accountID)},
		AllowedOrigins: a.cfg.Server.CORSOrigins,
	})

	history := handler.NewHistoryHandler(accountID, deps.Alerts, deps.Stores.PnL, deps.BlobReader, a.logger)
	if deps.Snapshots != nil {
		history.WithSnapshots(deps.Snapshots)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, server.Handlers{
		Health:        handler.NewHealthHandler(a.cfg.Mode, accountID, pingers, a.logger),
		Risk:          handler.NewRiskHandler(deps.Risk, deps.Orchestrator, a.logger),
		Settings:      handler.NewSettingsHandler(deps.Settings, a.logger),
		Opportunities: handler.NewOpportunityHandler(accountID, deps.Stores.Opportunities, deps.Orchestrator, a.logger),
		Trades:        handler.NewTradeHandler(accountID, deps.Stores.Trades, deps.Orchestrator, a.logger),
		Scan:          handler.NewScanHandler(deps.Orchestrator, a.logger),
		History:       history,
	}, hub, deps.RateLimiter, a.logger)

	goJob(g, ctx, "ws hub", hub.Run)
	g.Go(srv.Start)
	return srv
}

// shutdown drains the HTTP server first so no approval can start, then lets
// the orchestrator stop its timer and sweep open orders unless the kill
// switch is already on.
func (a *App) shutdown(deps *Dependencies, srv *server.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			a.logger.WarnContext(ctx, "app: server shutdown", slog.String("error", err.Error()))
		}
	}
	deps.Orchestrator.Shutdown(ctx)
}

// goJob runs fn in g. Errors caused by ctx cancellation are treated as a
// clean stop.
func goJob(g *errgroup.Group, ctx context.Context, name string, fn func(context.Context) error) {
	g.Go(func() error {
		err := fn(ctx)
		if ctx.Err() != nil || err == nil {
			return nil
		}
		return fmt.Errorf("%s: %w", name, err)
	})
}

// pingFunc adapts a health probe to handler.Pinger.
type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }
