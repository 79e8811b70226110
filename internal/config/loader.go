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
// built-in defaults, applies DELTASYNC_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	// Tables arrays decode into existing elements, so defaults would leak
	// into fields the file leaves out. Start them empty and restore when the
	// file does not define them.
	groups, aliases := cfg.Delta.Groups, cfg.Delta.Aliases
	cfg.Delta.Groups, cfg.Delta.Aliases = nil, nil

	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	if !md.IsDefined("delta", "groups") {
		cfg.Delta.Groups = groups
	}
	if !md.IsDefined("delta", "aliases") {
		cfg.Delta.Aliases = aliases
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known DELTASYNC_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Run ──
	setStringSlice(&cfg.Run.Dates, "DELTASYNC_RUN_DATES")
	setInt(&cfg.Run.StartHour, "DELTASYNC_RUN_START_HOUR")
	setInt(&cfg.Run.EndHour, "DELTASYNC_RUN_END_HOUR")
	setFloat64(&cfg.Run.ExportCeiling, "DELTASYNC_RUN_EXPORT_CEILING")
	setBool(&cfg.Run.ReuseCachedDeltas, "DELTASYNC_RUN_REUSE_CACHED_DELTAS")
	setBool(&cfg.Run.StrictBrokers, "DELTASYNC_RUN_STRICT_BROKERS")
	setDuration(&cfg.Run.CacheTTL, "DELTASYNC_RUN_CACHE_TTL")
	setDuration(&cfg.Run.LockTTL, "DELTASYNC_RUN_LOCK_TTL")

	// ── Delta ──
	setFloat64(&cfg.Delta.Threshold, "DELTASYNC_DELTA_THRESHOLD")
	setDuration(&cfg.Delta.StalenessWindow, "DELTASYNC_DELTA_STALENESS_WINDOW")
	setDuration(&cfg.Delta.ContextBefore, "DELTASYNC_DELTA_CONTEXT_BEFORE")
	setDuration(&cfg.Delta.ContextAfter, "DELTASYNC_DELTA_CONTEXT_AFTER")
	setStr(&cfg.Delta.ReportingGroup, "DELTASYNC_DELTA_REPORTING_GROUP")

	// ── Supabase ──
	setStr(&cfg.Supabase.DSN, "DELTASYNC_SUPABASE_DSN")
	setStr(&cfg.Supabase.DSN, "DELTASYNC_SUPABASE_URL") // compatibility alias
	setStr(&cfg.Supabase.Host, "DELTASYNC_SUPABASE_HOST")
	setInt(&cfg.Supabase.Port, "DELTASYNC_SUPABASE_PORT")
	setStr(&cfg.Supabase.Database, "DELTASYNC_SUPABASE_DATABASE")
	setStr(&cfg.Supabase.User, "DELTASYNC_SUPABASE_USER")
	setStr(&cfg.Supabase.Password, "DELTASYNC_SUPABASE_PASSWORD")
	setStr(&cfg.Supabase.SSLMode, "DELTASYNC_SUPABASE_SSL_MODE")
	setInt(&cfg.Supabase.PoolMaxConns, "DELTASYNC_SUPABASE_POOL_MAX_CONNS")
	setInt(&cfg.Supabase.PoolMinConns, "DELTASYNC_SUPABASE_POOL_MIN_CONNS")
	setBool(&cfg.Supabase.RunMigrations, "DELTASYNC_SUPABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "DELTASYNC_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "DELTASYNC_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "DELTASYNC_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "DELTASYNC_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "DELTASYNC_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "DELTASYNC_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "DELTASYNC_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "DELTASYNC_S3_REGION")
	setStr(&cfg.S3.QuoteBucket, "DELTASYNC_S3_QUOTE_BUCKET")
	setStr(&cfg.S3.QuoteKey, "DELTASYNC_S3_QUOTE_KEY")
	setStr(&cfg.S3.ExportBucket, "DELTASYNC_S3_EXPORT_BUCKET")
	setStr(&cfg.S3.ExportPrefix, "DELTASYNC_S3_EXPORT_PREFIX")
	setStr(&cfg.S3.AccessKey, "DELTASYNC_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "DELTASYNC_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "DELTASYNC_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "DELTASYNC_S3_FORCE_PATH_STYLE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "DELTASYNC_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "DELTASYNC_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "DELTASYNC_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "DELTASYNC_NOTIFY_EVENTS")
	setInt(&cfg.Notify.RateLimit, "DELTASYNC_NOTIFY_RATE_LIMIT")
	setDuration(&cfg.Notify.RateWindow, "DELTASYNC_NOTIFY_RATE_WINDOW")

	// ── Metrics ──
	setStr(&cfg.Metrics.PushgatewayURL, "DELTASYNC_METRICS_PUSHGATEWAY_URL")
	setStr(&cfg.Metrics.Job, "DELTASYNC_METRICS_JOB")

	// ── Top-level ──
	setStr(&cfg.Mode, "DELTASYNC_MODE")
	setStr(&cfg.LogLevel, "DELTASYNC_LOG_LEVEL")
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
