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
// built-in defaults, applies PADDOCK_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known PADDOCK_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Engine ──
	setInt(&cfg.Engine.ChainID, "PADDOCK_ENGINE_CHAIN_ID")
	setInt64(&cfg.Engine.QuoteToleranceMicros, "PADDOCK_ENGINE_QUOTE_TOLERANCE_MICROS")
	setDuration(&cfg.Engine.SettlementTTL, "PADDOCK_ENGINE_SETTLEMENT_TTL")
	setDuration(&cfg.Engine.SweepInterval, "PADDOCK_ENGINE_SWEEP_INTERVAL")

	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "PADDOCK_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "PADDOCK_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "PADDOCK_WALLET_KEY_PASSWORD")

	// ── Database ──
	setStr(&cfg.Database.DSN, "PADDOCK_DATABASE_DSN")
	setStr(&cfg.Database.Host, "PADDOCK_DATABASE_HOST")
	setInt(&cfg.Database.Port, "PADDOCK_DATABASE_PORT")
	setStr(&cfg.Database.Database, "PADDOCK_DATABASE_NAME")
	setStr(&cfg.Database.User, "PADDOCK_DATABASE_USER")
	setStr(&cfg.Database.Password, "PADDOCK_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "PADDOCK_DATABASE_SSL_MODE")
	setInt(&cfg.Database.PoolMaxConns, "PADDOCK_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "PADDOCK_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "PADDOCK_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "PADDOCK_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PADDOCK_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PADDOCK_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PADDOCK_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PADDOCK_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PADDOCK_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "PADDOCK_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "PADDOCK_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "PADDOCK_S3_REGION")
	setStr(&cfg.S3.Bucket, "PADDOCK_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "PADDOCK_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "PADDOCK_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "PADDOCK_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "PADDOCK_S3_FORCE_PATH_STYLE")

	// ── Market data ──
	setBool(&cfg.MarketData.Enabled, "PADDOCK_MARKETDATA_ENABLED")
	setStr(&cfg.MarketData.BaseURL, "PADDOCK_MARKETDATA_BASE_URL")
	setStr(&cfg.MarketData.APIKey, "PADDOCK_MARKETDATA_API_KEY")
	setDuration(&cfg.MarketData.RefreshInterval, "PADDOCK_MARKETDATA_REFRESH_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "PADDOCK_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "PADDOCK_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "PADDOCK_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "PADDOCK_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "PADDOCK_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateLimitWindow, "PADDOCK_SERVER_RATE_LIMIT_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "PADDOCK_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "PADDOCK_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "PADDOCK_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "PADDOCK_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "PADDOCK_MODE")
	setStr(&cfg.LogLevel, "PADDOCK_LOG_LEVEL")
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
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
