package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/pairarb/internal/arbitrage"
	s3blob "github.com/alanyoungcy/pairarb/internal/blob/s3"
	"github.com/alanyoungcy/pairarb/internal/cache/redis"
	"github.com/alanyoungcy/pairarb/internal/config"
	"github.com/alanyoungcy/pairarb/internal/crypto"
	"github.com/alanyoungcy/pairarb/internal/domain"
	"github.com/alanyoungcy/pairarb/internal/events"
	"github.com/alanyoungcy/pairarb/internal/executor"
	"github.com/alanyoungcy/pairarb/internal/notify"
	"github.com/alanyoungcy/pairarb/internal/pipeline"
	"github.com/alanyoungcy/pairarb/internal/platform/polymarket"
	"github.com/alanyoungcy/pairarb/internal/service"
	"github.com/alanyoungcy/pairarb/internal/store/postgres"
)

// Dependencies bundles everything the run modes need for one account. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Account domain.Account

	// Infrastructure
	Postgres *postgres.Client
	Redis    *redis.Client
	S3       *s3blob.Client // nil unless the archiver is enabled
	Stores   postgres.Stores

	// Caches and bus
	Bus         *redis.SignalBus
	BookCache   *redis.OrderbookCache
	Locks       *redis.LockManager
	RateLimiter domain.RateLimiter      // nil when rate limiting is off
	BlobReader  domain.BlobReader       // nil unless the archiver is enabled
	Snapshots   *redis.SnapshotRecorder // nil when recording is off

	// Venue
	Exchange    domain.Exchange
	Resolutions domain.ResolutionSource

	// Events and notifications
	Events   *events.Queue
	Notifier *notify.Notifier

	// Services
	Settings     *service.SettingsService
	Alerts       *service.AlertService
	Markets      *service.MarketService
	Risk         *service.RiskService
	Executor     *executor.Executor
	Orchestrator *pipeline.Orchestrator
	BookFeed     *polymarket.BookFeed // nil when the feed is disabled
}

// venue is what both the live and the paper client provide.
type venue interface {
	domain.Exchange
	domain.ResolutionSource
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{
		Account: domain.Account{ID: cfg.Account.ID, Name: cfg.Account.Name},
	}

	// --- PostgreSQL ---
	pgClient, err := connectPostgres(ctx, cfg)
	if err != nil {
		return fail(fmt.Errorf("wire: postgres: %w", err))
	}
	closers = append(closers, pgClient.Close)
	if cfg.Database.RunMigrations {
		applied, err := pgClient.RunMigrations(ctx)
		if err != nil {
			return fail(fmt.Errorf("wire: postgres migrations: %w", err))
		}
		if len(applied) > 0 {
			logger.InfoContext(ctx, "wire: migrations applied", slog.Any("files", applied))
		}
	}
	deps.Postgres = pgClient
	deps.Stores = pgClient.Stores()

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
		Namespace:  cfg.Redis.Namespace,
	})
	if err != nil {
		return fail(fmt.Errorf("wire: redis: %w", err))
	}
	closers = append(closers, func() { _ = redisClient.Close() })
	deps.Redis = redisClient
	deps.Bus = redis.NewSignalBus(redisClient)
	deps.BookCache = redis.NewOrderbookCache(redisClient)
	deps.Locks = redis.NewLockManager(redisClient)
	if cfg.Server.RateLimit > 0 {
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
	}

	// --- Events ---
	deps.Events = events.NewQueue(cfg.Scan.EventBuffer, logger)
	deps.Events.AddSink(events.NewBusSink(deps.Bus))
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if len(senders) > 0 {
		deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, cfg.Notify.Suppress.Duration, logger)
		deps.Events.AddSink(deps.Notifier)
	}

	// --- Venue ---
	v, err := buildVenue(ctx, cfg, logger)
	if err != nil {
		return fail(fmt.Errorf("wire: venue: %w", err))
	}
	deps.Exchange = v
	deps.Resolutions = v

	// --- Services ---
	st := deps.Stores
	deps.Settings = service.NewSettingsService(deps.Account, st.Settings, deps.Events, st.Audit, cfg.Settings(), logger)
	if _, err := deps.Settings.Ensure(ctx); err != nil {
		return fail(fmt.Errorf("wire: settings: %w", err))
	}
	deps.Alerts = service.NewAlertService(deps.Account, st.Alerts, deps.Events, logger)
	deps.Markets = service.NewMarketService(
		deps.Account,
		v,
		redis.NewMarketCache(redisClient),
		deps.BookCache,
		redis.NewBalanceCache(redisClient),
		deps.Events,
		service.MarketConfig{
			CandidatesTTL: cfg.Risk.CandidatesTTL.Duration,
			StaleTTL:      cfg.Risk.StaleTTL.Duration,
			BookTTL:       cfg.Risk.BookTTL.Duration,
			BalanceMaxAge: cfg.Risk.BalanceMaxAge.Duration,
			CallTimeout:   cfg.Risk.CallTimeout.Duration,
		},
		logger,
	)
	deps.Risk = service.NewRiskService(deps.Account, service.RiskDeps{
		Settings:      st.Settings,
		Trades:        st.Trades,
		Opportunities: st.Opportunities,
		PnL:           st.PnL,
		Balances:      deps.Markets,
		Orders:        v,
		Alerts:        deps.Alerts,
		Events:        deps.Events,
		Audit:         st.Audit,
	}, service.RiskConfig{
		LiquidityMultiplier: cfg.Risk.LiquidityMultiplier,
		LowBalanceRatio:     cfg.Risk.LowBalanceRatio,
		CallTimeout:         cfg.Risk.CallTimeout.Duration,
	}, logger)
	deps.Executor = executor.NewExecutor(deps.Account, executor.Deps{
		Settings: st.Settings,
		Trades:   st.Trades,
		Orders:   v,
		PnL:      st.PnL,
		Alerts:   deps.Alerts,
		Events:   deps.Events,
		Audit:    st.Audit,
	}, executor.Config{
		LegTimeout:    cfg.Risk.LegTimeout.Duration,
		CancelTimeout: cfg.Risk.CancelTimeout.Duration,
		StatusTimeout: cfg.Risk.StatusTimeout.Duration,
	}, logger)

	var recorder domain.SnapshotRecorder
	if cfg.Redis.SnapshotStream != "" {
		deps.Snapshots = redis.NewSnapshotRecorder(deps.Bus, cfg.Redis.SnapshotStream)
		recorder = deps.Snapshots
	}
	detector := arbitrage.NewDetector(arbitrage.DetectorConfig{
		DepthLevels: cfg.Risk.DepthLevels,
		Concurrency: cfg.Risk.DetectConcurrency,
		BookTimeout: cfg.Risk.CallTimeout.Duration,
		Recorder:    recorder,
		Logger:      logger,
	})

	// --- Archive ---
	var archiver *pipeline.Archiver
	if cfg.Archive.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		deps.S3 = s3Client
		reader := s3blob.NewReader(s3Client)
		deps.BlobReader = reader
		impl := s3blob.NewArchiver(deps.Account, s3blob.NewWriter(s3Client), reader, st.Trades, st.Alerts, st.Audit, logger)
		archiver = pipeline.NewArchiver(impl, cfg.Archive.RetentionDays, logger)
	}

	// --- Orchestrator ---
	watcher := pipeline.NewResolutionWatcher(deps.Account, st.Trades, v, cfg.Scan.WatcherInterval.Duration, logger)
	reconciler := pipeline.NewReconciler(deps.Account, st.Trades, cfg.Scan.ReconcileInterval.Duration, logger)
	deps.Orchestrator = pipeline.NewOrchestrator(deps.Account, pipeline.Deps{
		Settings:      st.Settings,
		Opportunities: st.Opportunities,
		Trades:        st.Trades,
		Markets:       deps.Markets,
		Books:         deps.Markets,
		Balance:       deps.Markets,
		Orders:        v,
		Detector:      detector,
		Gate:          deps.Risk,
		Switch:        deps.Risk,
		Executor:      deps.Executor,
		Alerts:        deps.Alerts,
		Events:        deps.Events,
		Locks:         deps.Locks,
		Audit:         st.Audit,
		Watcher:       watcher,
		Reconciler:    reconciler,
		Archiver:      archiver,
	}, pipeline.Config{
		OpportunityTTL: cfg.Risk.OpportunityTTL.Duration,
		SourceTimeout:  cfg.Risk.CallTimeout.Duration,
		LockTTL:        cfg.Risk.LockTTL.Duration,
		LockWait:       cfg.Risk.LockWait.Duration,
		ArchiveCron:    cfg.Archive.Cron,
	}, logger)
	watcher.Bind(deps.Orchestrator)
	reconciler.Bind(deps.Orchestrator)

	orch := deps.Orchestrator
	deps.Settings.OnChange(func(old, updated domain.Settings) {
		if old.ScanInterval != updated.ScanInterval {
			orch.SetInterval(updated.ScanInterval)
		}
	})

	// --- Book feed ---
	if cfg.Scan.BookFeed && cfg.Polymarket.WsURL != "" {
		deps.BookFeed = polymarket.NewBookFeed(polymarket.BookFeedConfig{
			URL:     cfg.Polymarket.WsURL,
			BookTTL: cfg.Risk.BookTTL.Duration,
			Refresh: cfg.Scan.FeedRefresh.Duration,
		}, deps.BookCache, candidateTokens(deps.Settings, deps.Markets), logger)
	}

	return deps, cleanup, nil
}

// connectPostgres opens the pool described by cfg.Database.
func connectPostgres(ctx context.Context, cfg *config.Config) (*postgres.Client, error) {
	return postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Database,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.PoolMaxConns,
		MinConns: cfg.Database.PoolMinConns,
	})
}

// buildVenue returns the paper client or the signing live client. The live
// client derives its CLOB API credentials unless they are configured.
func buildVenue(ctx context.Context, cfg *config.Config, logger *slog.Logger) (venue, error) {
	gamma := polymarket.NewGammaClient(cfg.Polymarket.GammaHost)

	if cfg.Polymarket.Paper {
		logger.InfoContext(ctx, "wire: paper trading",
			slog.Float64("balance", cfg.Polymarket.PaperBalance),
		)
		books := polymarket.NewClobClient(cfg.Polymarket.ClobHost, nil, nil, nil)
		return polymarket.NewPaperClient(gamma, books, cfg.Polymarket.PaperBalance), nil
	}

	key, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    cfg.Wallet.PrivateKey,
		EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      cfg.Wallet.KeyPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("load key: %w", err)
	}
	chainID := int64(cfg.Polymarket.ChainID)
	signer, err := crypto.NewSigner(key, chainID, crypto.PolygonExchange)
	if err != nil {
		return nil, fmt.Errorf("signer: %w", err)
	}
	negRisk, err := crypto.NewSigner(key, chainID, crypto.PolygonNegRiskExchange)
	if err != nil {
		return nil, fmt.Errorf("neg-risk signer: %w", err)
	}

	var creds *crypto.HMACAuth
	if cfg.Polymarket.ApiKey != "" {
		creds = &crypto.HMACAuth{
			Key:        cfg.Polymarket.ApiKey,
			Secret:     cfg.Polymarket.ApiSecret,
			Passphrase: cfg.Polymarket.ApiPassphrase,
		}
	}
	clob := polymarket.NewClobClient(cfg.Polymarket.ClobHost, signer, negRisk, creds)
	if creds == nil {
		if err := clob.DeriveAPIKey(ctx); err != nil {
			return nil, err
		}
	}
	logger.InfoContext(ctx, "wire: live trading",
		slog.String("address", signer.Address().Hex()),
		slog.Int64("chain_id", chainID),
	)
	return polymarket.NewClient(gamma, clob), nil
}

// candidateTokens lists the outcome tokens of the current candidate markets,
// read through the market service so the feed shares its cached list.
func candidateTokens(settings *service.SettingsService, markets *service.MarketService) polymarket.TokenLister {
	return func(ctx context.Context) ([]string, error) {
		st, err := settings.Get(ctx)
		if err != nil {
			return nil, err
		}
		list, err := markets.FetchCandidateMarkets(ctx, st.ActiveCurrencies)
		if err != nil {
			return nil, err
		}
		tokens := make([]string, 0, 2*len(list))
		for _, m := range list {
			tokens = append(tokens, m.YesToken, m.NoToken)
		}
		return tokens, nil
	}
}
