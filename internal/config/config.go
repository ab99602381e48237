// Package config defines the top-level configuration for the pair arbitrage
// bot and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/pairarb/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by PAIRARB_* environment variables.
type Config struct {
	Wallet     WalletConfig     `toml:"wallet"`
	Polymarket PolymarketConfig `toml:"polymarket"`
	Account    AccountConfig    `toml:"account"`
	Database   DatabaseConfig   `toml:"database"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Trading    TradingConfig    `toml:"trading"`
	Risk       RiskConfig       `toml:"risk"`
	Scan       ScanConfig       `toml:"scan"`
	Archive    ArchiveConfig    `toml:"archive"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// WalletConfig holds Ethereum wallet credentials.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// PolymarketConfig holds venue endpoints, chain parameters and the optional
// pre-issued CLOB API credentials. When the credentials are empty they are
// derived from the wallet at start-up.
type PolymarketConfig struct {
	ClobHost      string  `toml:"clob_host"`
	GammaHost     string  `toml:"gamma_host"`
	WsURL         string  `toml:"ws_url"`
	ChainID       int     `toml:"chain_id"`
	Paper         bool    `toml:"paper"`
	PaperBalance  float64 `toml:"paper_balance"`
	ApiKey        string  `toml:"api_key"`
	ApiSecret     string  `toml:"api_secret"`
	ApiPassphrase string  `toml:"api_passphrase"`
}

// AccountConfig identifies the trading account this process serves.
type AccountConfig struct {
	ID   string `toml:"id"`
	Name string `toml:"name"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	Namespace  string `toml:"namespace"`
	// SnapshotStream is the Redis stream receiving detector book snapshots.
	// Empty disables recording.
	SnapshotStream string `toml:"snapshot_stream"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// TradingConfig seeds the persisted settings row the first time an account
// starts. Later changes go through the settings API, not this file.
type TradingConfig struct {
	PositionSize     float64  `toml:"position_size"`
	ProfitThreshold  float64  `toml:"profit_threshold"`
	DailyLossLimit   float64  `toml:"daily_loss_limit"`
	MaxOpenPositions int      `toml:"max_open_positions"`
	AutoMode         bool     `toml:"auto_mode"`
	ActiveCurrencies []string `toml:"active_currencies"`
	ScanInterval     duration `toml:"scan_interval"`
}

// RiskConfig holds policy parameters and the timeouts of every external call.
type RiskConfig struct {
	LiquidityMultiplier float64  `toml:"liquidity_multiplier"`
	LowBalanceRatio     float64  `toml:"low_balance_ratio"`
	DepthLevels         int      `toml:"depth_levels"`
	DetectConcurrency   int      `toml:"detect_concurrency"`
	CallTimeout         duration `toml:"call_timeout"`
	LegTimeout          duration `toml:"leg_timeout"`
	CancelTimeout       duration `toml:"cancel_timeout"`
	StatusTimeout       duration `toml:"status_timeout"`
	LockTTL             duration `toml:"lock_ttl"`
	LockWait            duration `toml:"lock_wait"`
	OpportunityTTL      duration `toml:"opportunity_ttl"`
	CandidatesTTL       duration `toml:"candidates_ttl"`
	StaleTTL            duration `toml:"stale_ttl"`
	BookTTL             duration `toml:"book_ttl"`
	BalanceMaxAge       duration `toml:"balance_max_age"`
}

// ScanConfig holds the cadence of the background loops that run beside the
// scan cycle.
type ScanConfig struct {
	WatcherInterval   duration `toml:"watcher_interval"`
	ReconcileInterval duration `toml:"reconcile_interval"`
	BookFeed          bool     `toml:"book_feed"`
	FeedRefresh       duration `toml:"feed_refresh"`
	EventBuffer       int      `toml:"event_buffer"`
}

// ArchiveConfig controls the S3 archiver.
type ArchiveConfig struct {
	Enabled       bool   `toml:"enabled"`
	Cron          string `toml:"cron"`
	RetentionDays int    `toml:"retention_days"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	Suppress          duration `toml:"suppress"`
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Polymarket: PolymarketConfig{
			ClobHost:     "https://clob.polymarket.com",
			GammaHost:    "https://gamma-api.polymarket.com",
			WsURL:        "wss://ws-subscriptions-clob.polymarket.com/ws/market",
			ChainID:      137,
			PaperBalance: 1000,
		},
		Account: AccountConfig{
			ID:   "default",
			Name: "default",
		},
		Database: DatabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:           "localhost:6379",
			PoolSize:       20,
			MaxRetries:     3,
			Namespace:      "pairarb",
			SnapshotStream: "stream:books",
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "pairarb-archive",
			ForcePathStyle: true,
		},
		Trading: TradingConfig{
			PositionSize:     10,
			ProfitThreshold:  0.02,
			DailyLossLimit:   50,
			MaxOpenPositions: 3,
			AutoMode:         false,
			ActiveCurrencies: []string{"BTC", "ETH"},
			ScanInterval:     duration{30 * time.Second},
		},
		Risk: RiskConfig{
			LiquidityMultiplier: 2.0,
			LowBalanceRatio:     0.5,
			DepthLevels:         5,
			DetectConcurrency:   8,
			CallTimeout:         duration{10 * time.Second},
			LegTimeout:          duration{10 * time.Second},
			CancelTimeout:       duration{5 * time.Second},
			StatusTimeout:       duration{5 * time.Second},
			LockTTL:             duration{2 * time.Minute},
			LockWait:            duration{10 * time.Second},
			OpportunityTTL:      duration{5 * time.Minute},
			CandidatesTTL:       duration{time.Minute},
			StaleTTL:            duration{time.Hour},
			BookTTL:             duration{2 * time.Second},
			BalanceMaxAge:       duration{5 * time.Minute},
		},
		Scan: ScanConfig{
			WatcherInterval:   duration{time.Minute},
			ReconcileInterval: duration{30 * time.Second},
			BookFeed:          true,
			FeedRefresh:       duration{time.Minute},
			EventBuffer:       256,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			Cron:          "0 3 * * *",
			RetentionDays: 90,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{
				string(domain.EventOpportunityNew),
				string(domain.EventTradeSettled),
				string(domain.EventAlertNew),
				string(domain.EventKillSwitchActivated),
			},
			Suppress: duration{5 * time.Minute},
		},
		Mode:     "bot",
		LogLevel: "info",
	}
}

// Settings returns the settings row seeded for a new account.
func (c *Config) Settings() domain.Settings {
	currencies := make([]string, len(c.Trading.ActiveCurrencies))
	copy(currencies, c.Trading.ActiveCurrencies)
	return domain.Settings{
		AccountID:        c.Account.ID,
		PositionSize:     c.Trading.PositionSize,
		ProfitThreshold:  c.Trading.ProfitThreshold,
		DailyLossLimit:   c.Trading.DailyLossLimit,
		MaxOpenPositions: c.Trading.MaxOpenPositions,
		AutoMode:         c.Trading.AutoMode,
		ActiveCurrencies: currencies,
		ScanInterval:     c.Trading.ScanInterval.Duration,
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"bot":       true,
	"server":    true,
	"scan-once": true,
	"migrate":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// NeedsWallet reports whether the mode signs orders.
func (c *Config) NeedsWallet() bool {
	if c.Polymarket.Paper {
		return false
	}
	switch strings.ToLower(c.Mode) {
	case "bot", "server", "scan-once":
		return true
	default:
		return false
	}
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: bot, server, scan-once, migrate)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Wallet: live trading needs a key source.
	if c.NeedsWallet() {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			errs = append(errs, "wallet: either private_key or encrypted_key_path must be set for mode "+c.Mode)
		}
	}
	if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
		errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
	}

	// Polymarket
	if c.Polymarket.ClobHost == "" {
		errs = append(errs, "polymarket: clob_host must not be empty")
	}
	if c.Polymarket.GammaHost == "" {
		errs = append(errs, "polymarket: gamma_host must not be empty")
	}
	if c.Polymarket.ChainID <= 0 {
		errs = append(errs, "polymarket: chain_id must be positive")
	}
	if c.Polymarket.Paper && c.Polymarket.PaperBalance <= 0 {
		errs = append(errs, "polymarket: paper_balance must be > 0 in paper mode")
	}
	ak := c.Polymarket.ApiKey != ""
	as := c.Polymarket.ApiSecret != ""
	ap := c.Polymarket.ApiPassphrase != ""
	if (ak || as || ap) && !(ak && as && ap) {
		errs = append(errs, "polymarket: api_key, api_secret, and api_passphrase must all be set together")
	}

	if strings.TrimSpace(c.Account.ID) == "" {
		errs = append(errs, "account: id must not be empty")
	}

	// Database
	if strings.TrimSpace(c.Database.DSN) == "" {
		if c.Database.Host == "" {
			errs = append(errs, "database: host must not be empty (or set database.dsn)")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.Database == "" {
			errs = append(errs, "database: database must not be empty")
		}
	}
	if c.Database.PoolMaxConns < 1 {
		errs = append(errs, "database: pool_max_conns must be >= 1")
	}
	if c.Database.PoolMinConns < 0 {
		errs = append(errs, "database: pool_min_conns must be >= 0")
	}
	if c.Database.PoolMinConns > c.Database.PoolMaxConns {
		errs = append(errs, "database: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3 is only dialled by the archiver.
	if c.Archive.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty when archive is enabled")
		}
		if c.Archive.Cron == "" {
			errs = append(errs, "archive: cron must not be empty when enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
	}

	// Trading seed
	if c.Trading.PositionSize <= 0 {
		errs = append(errs, "trading: position_size must be > 0")
	}
	if c.Trading.ProfitThreshold < 0 || c.Trading.ProfitThreshold >= 1 {
		errs = append(errs, fmt.Sprintf("trading: profit_threshold must be in [0, 1), got %g", c.Trading.ProfitThreshold))
	}
	if c.Trading.DailyLossLimit < 0 {
		errs = append(errs, "trading: daily_loss_limit must be >= 0")
	}
	if c.Trading.MaxOpenPositions < 1 {
		errs = append(errs, "trading: max_open_positions must be >= 1")
	}
	if c.Trading.ScanInterval.Duration < time.Second {
		errs = append(errs, "trading: scan_interval must be at least 1s")
	}

	// Risk
	if c.Risk.LiquidityMultiplier <= 0 {
		errs = append(errs, "risk: liquidity_multiplier must be > 0")
	}
	if c.Risk.LowBalanceRatio < 0 {
		errs = append(errs, "risk: low_balance_ratio must be >= 0")
	}
	if c.Risk.DepthLevels < 1 {
		errs = append(errs, "risk: depth_levels must be >= 1")
	}
	if c.Risk.DetectConcurrency < 1 {
		errs = append(errs, "risk: detect_concurrency must be >= 1")
	}
	for _, t := range []struct {
		name string
		d    duration
	}{
		{"call_timeout", c.Risk.CallTimeout},
		{"leg_timeout", c.Risk.LegTimeout},
		{"cancel_timeout", c.Risk.CancelTimeout},
		{"status_timeout", c.Risk.StatusTimeout},
		{"lock_ttl", c.Risk.LockTTL},
	} {
		if t.d.Duration <= 0 {
			errs = append(errs, fmt.Sprintf("risk: %s must be > 0", t.name))
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be > 0 when rate_limit is set")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
