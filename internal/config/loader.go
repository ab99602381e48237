package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies PAIRARB_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after
// Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known PAIRARB_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "PAIRARB_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "PAIRARB_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "PAIRARB_WALLET_KEY_PASSWORD")

	// ── Polymarket ──
	setStr(&cfg.Polymarket.ClobHost, "PAIRARB_POLYMARKET_CLOB_HOST")
	setStr(&cfg.Polymarket.GammaHost, "PAIRARB_POLYMARKET_GAMMA_HOST")
	setStr(&cfg.Polymarket.WsURL, "PAIRARB_POLYMARKET_WS_URL")
	setInt(&cfg.Polymarket.ChainID, "PAIRARB_POLYMARKET_CHAIN_ID")
	setBool(&cfg.Polymarket.Paper, "PAIRARB_POLYMARKET_PAPER")
	setFloat64(&cfg.Polymarket.PaperBalance, "PAIRARB_POLYMARKET_PAPER_BALANCE")
	setStr(&cfg.Polymarket.ApiKey, "PAIRARB_POLYMARKET_API_KEY")
	setStr(&cfg.Polymarket.ApiSecret, "PAIRARB_POLYMARKET_API_SECRET")
	setStr(&cfg.Polymarket.ApiPassphrase, "PAIRARB_POLYMARKET_API_PASSPHRASE")

	// ── Account ──
	setStr(&cfg.Account.ID, "PAIRARB_ACCOUNT_ID")
	setStr(&cfg.Account.Name, "PAIRARB_ACCOUNT_NAME")

	// ── Database ──
	setStr(&cfg.Database.DSN, "PAIRARB_DATABASE_DSN")
	setStr(&cfg.Database.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Database.Host, "PAIRARB_DATABASE_HOST")
	setInt(&cfg.Database.Port, "PAIRARB_DATABASE_PORT")
	setStr(&cfg.Database.Database, "PAIRARB_DATABASE_DATABASE")
	setStr(&cfg.Database.User, "PAIRARB_DATABASE_USER")
	setStr(&cfg.Database.Password, "PAIRARB_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "PAIRARB_DATABASE_SSL_MODE")
	setInt(&cfg.Database.PoolMaxConns, "PAIRARB_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "PAIRARB_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "PAIRARB_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "PAIRARB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PAIRARB_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PAIRARB_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PAIRARB_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PAIRARB_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PAIRARB_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.Namespace, "PAIRARB_REDIS_NAMESPACE")
	setStr(&cfg.Redis.SnapshotStream, "PAIRARB_REDIS_SNAPSHOT_STREAM")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "PAIRARB_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "PAIRARB_S3_REGION")
	setStr(&cfg.S3.Bucket, "PAIRARB_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "PAIRARB_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "PAIRARB_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "PAIRARB_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "PAIRARB_S3_FORCE_PATH_STYLE")

	// ── Trading ──
	setFloat64(&cfg.Trading.PositionSize, "PAIRARB_TRADING_POSITION_SIZE")
	setFloat64(&cfg.Trading.ProfitThreshold, "PAIRARB_TRADING_PROFIT_THRESHOLD")
	setFloat64(&cfg.Trading.DailyLossLimit, "PAIRARB_TRADING_DAILY_LOSS_LIMIT")
	setInt(&cfg.Trading.MaxOpenPositions, "PAIRARB_TRADING_MAX_OPEN_POSITIONS")
	setBool(&cfg.Trading.AutoMode, "PAIRARB_TRADING_AUTO_MODE")
	setStringSlice(&cfg.Trading.ActiveCurrencies, "PAIRARB_TRADING_ACTIVE_CURRENCIES")
	setDuration(&cfg.Trading.ScanInterval, "PAIRARB_TRADING_SCAN_INTERVAL")

	// ── Risk ──
	setFloat64(&cfg.Risk.LiquidityMultiplier, "PAIRARB_RISK_LIQUIDITY_MULTIPLIER")
	setFloat64(&cfg.Risk.LowBalanceRatio, "PAIRARB_RISK_LOW_BALANCE_RATIO")
	setInt(&cfg.Risk.DepthLevels, "PAIRARB_RISK_DEPTH_LEVELS")
	setInt(&cfg.Risk.DetectConcurrency, "PAIRARB_RISK_DETECT_CONCURRENCY")
	setDuration(&cfg.Risk.CallTimeout, "PAIRARB_RISK_CALL_TIMEOUT")
	setDuration(&cfg.Risk.LegTimeout, "PAIRARB_RISK_LEG_TIMEOUT")
	setDuration(&cfg.Risk.CancelTimeout, "PAIRARB_RISK_CANCEL_TIMEOUT")
	setDuration(&cfg.Risk.StatusTimeout, "PAIRARB_RISK_STATUS_TIMEOUT")
	setDuration(&cfg.Risk.LockTTL, "PAIRARB_RISK_LOCK_TTL")
	setDuration(&cfg.Risk.LockWait, "PAIRARB_RISK_LOCK_WAIT")
	setDuration(&cfg.Risk.OpportunityTTL, "PAIRARB_RISK_OPPORTUNITY_TTL")
	setDuration(&cfg.Risk.CandidatesTTL, "PAIRARB_RISK_CANDIDATES_TTL")
	setDuration(&cfg.Risk.StaleTTL, "PAIRARB_RISK_STALE_TTL")
	setDuration(&cfg.Risk.BookTTL, "PAIRARB_RISK_BOOK_TTL")
	setDuration(&cfg.Risk.BalanceMaxAge, "PAIRARB_RISK_BALANCE_MAX_AGE")

	// ── Scan ──
	setDuration(&cfg.Scan.WatcherInterval, "PAIRARB_SCAN_WATCHER_INTERVAL")
	setDuration(&cfg.Scan.ReconcileInterval, "PAIRARB_SCAN_RECONCILE_INTERVAL")
	setBool(&cfg.Scan.BookFeed, "PAIRARB_SCAN_BOOK_FEED")
	setDuration(&cfg.Scan.FeedRefresh, "PAIRARB_SCAN_FEED_REFRESH")
	setInt(&cfg.Scan.EventBuffer, "PAIRARB_SCAN_EVENT_BUFFER")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "PAIRARB_ARCHIVE_ENABLED")
	setStr(&cfg.Archive.Cron, "PAIRARB_ARCHIVE_CRON")
	setInt(&cfg.Archive.RetentionDays, "PAIRARB_ARCHIVE_RETENTION_DAYS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "PAIRARB_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "PAIRARB_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "PAIRARB_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "PAIRARB_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "PAIRARB_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "PAIRARB_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "PAIRARB_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "PAIRARB_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "PAIRARB_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "PAIRARB_NOTIFY_EVENTS")
	setDuration(&cfg.Notify.Suppress, "PAIRARB_NOTIFY_SUPPRESS")

	// ── Top-level ──
	setStr(&cfg.Mode, "PAIRARB_MODE")
	setStr(&cfg.LogLevel, "PAIRARB_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
