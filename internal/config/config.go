// Package config defines the top-level configuration for deltasync and
// provides validation helpers.
package config

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by DELTASYNC_* environment variables.
type Config struct {
	Run      RunConfig      `toml:"run"`
	Delta    DeltaConfig    `toml:"delta"`
	Supabase SupabaseConfig `toml:"supabase"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Notify   NotifyConfig   `toml:"notify"`
	Metrics  MetricsConfig  `toml:"metrics"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// RunConfig selects which days are processed and how.
type RunConfig struct {
	// Dates are DD-MM-YYYY days processed when no date is given on the
	// command line.
	Dates []string `toml:"dates"`
	// StartHour and EndHour bound the UTC hours of feed time kept per day.
	StartHour int `toml:"start_hour"`
	EndHour   int `toml:"end_hour"`
	// ExportCeiling selects the deltas whose match fields are normalised in
	// the summary export.
	ExportCeiling     float64  `toml:"export_ceiling"`
	ReuseCachedDeltas bool     `toml:"reuse_cached_deltas"`
	StrictBrokers     bool     `toml:"strict_brokers"`
	CacheTTL          duration `toml:"cache_ttl"`
	LockTTL           duration `toml:"lock_ttl"`
}

// DeltaConfig holds detection and reconciliation parameters.
type DeltaConfig struct {
	Threshold       float64       `toml:"threshold"`
	StalenessWindow duration      `toml:"staleness_window"`
	ContextBefore   duration      `toml:"context_before"`
	ContextAfter    duration      `toml:"context_after"`
	ReportingGroup  string        `toml:"reporting_group"`
	Groups          []GroupConfig `toml:"groups"`
	Aliases         []AliasConfig `toml:"aliases"`
}

// GroupConfig is one broker group. Groups are processed in file order.
type GroupConfig struct {
	Name    string   `toml:"name"`
	Brokers []string `toml:"brokers"`
}

// AliasConfig is one broker alias rewrite for failed-signal matching.
type AliasConfig struct {
	Contains string `toml:"contains"`
	Segment  int    `toml:"segment"`
	Remove   string `toml:"remove"`
}

// SupabaseConfig holds PostgreSQL / Supabase connection parameters.
type SupabaseConfig struct {
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
}

// S3Config holds S3-compatible object storage parameters. Raw quotes are read
// from QuoteBucket under <date>/<QuoteKey>; reports are written to
// ExportBucket under <ExportPrefix><date>/.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	QuoteBucket    string `toml:"quote_bucket"`
	QuoteKey       string `toml:"quote_key"`
	ExportBucket   string `toml:"export_bucket"`
	ExportPrefix   string `toml:"export_prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// NotifyConfig holds notification channel credentials. At most RateLimit
// notifications per event are sent within RateWindow; a zero RateLimit
// disables throttling.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	RateLimit         int      `toml:"rate_limit"`
	RateWindow        duration `toml:"rate_window"`
}

// MetricsConfig holds Prometheus Pushgateway parameters. Metrics are not
// pushed when PushgatewayURL is empty.
type MetricsConfig struct {
	PushgatewayURL string `toml:"pushgateway_url"`
	Job            string `toml:"job"`
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

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	london := make([]string, 0, 20)
	for i := 1; i <= 21; i++ {
		if i == 14 {
			continue
		}
		london = append(london, fmt.Sprintf("BROKER_LONDON%d", i))
	}

	return Config{
		Run: RunConfig{
			StartHour:     7,
			EndHour:       18,
			ExportCeiling: -0.0001,
			CacheTTL:      duration{72 * time.Hour},
			LockTTL:       duration{30 * time.Minute},
		},
		Delta: DeltaConfig{
			Threshold:       -0.00001,
			StalenessWindow: duration{40 * time.Second},
			ContextBefore:   duration{30 * time.Second},
			ContextAfter:    duration{2 * time.Minute},
			ReportingGroup:  "NY",
			Groups: []GroupConfig{
				{Name: "NY", Brokers: []string{"BROKER_NY_A", "BROKER_NY_B", "BROKER_NY_C"}},
				{Name: "LONDON", Brokers: london},
				{Name: "OTHER", Brokers: []string{"PARIS", "BERLIN", "BARCELONA"}},
			},
			Aliases: []AliasConfig{
				{Contains: "LONDON", Segment: 1},
				{Contains: "NY", Remove: "BROKER_"},
			},
		},
		Supabase: SupabaseConfig{
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
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   10,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			QuoteBucket:    "merged-raw-data",
			QuoteKey:       "merged_raw_data.csv",
			ExportBucket:   "delta-info-graphs",
			ForcePathStyle: true,
		},
		Notify: NotifyConfig{
			Events:     []string{"run_completed", "run_failed"},
			RateLimit:  20,
			RateWindow: duration{time.Hour},
		},
		Metrics: MetricsConfig{
			Job: "deltasync",
		},
		Mode:     "reconcile",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"reconcile": true,
	"detect":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: reconcile, detect)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Run
	for _, d := range c.Run.Dates {
		if _, err := time.Parse("02-01-2006", d); err != nil {
			errs = append(errs, fmt.Sprintf("run: date %q is not DD-MM-YYYY", d))
		}
	}
	if c.Run.StartHour < 0 || c.Run.EndHour > 24 || c.Run.StartHour >= c.Run.EndHour {
		errs = append(errs, fmt.Sprintf("run: hour window %d-%d must satisfy 0 <= start_hour < end_hour <= 24", c.Run.StartHour, c.Run.EndHour))
	}
	if c.Run.ReuseCachedDeltas && c.Run.CacheTTL.Duration <= 0 {
		errs = append(errs, "run: cache_ttl must be > 0 when reuse_cached_deltas is set")
	}
	if c.Run.LockTTL.Duration <= 0 {
		errs = append(errs, "run: lock_ttl must be > 0")
	}

	errs = append(errs, c.Delta.validate()...)

	// Supabase is only needed to load positions.
	if strings.ToLower(c.Mode) == "reconcile" {
		if strings.TrimSpace(c.Supabase.DSN) == "" {
			if c.Supabase.Host == "" {
				errs = append(errs, "supabase: host must not be empty (or set supabase.dsn)")
			}
			if c.Supabase.Port <= 0 || c.Supabase.Port > 65535 {
				errs = append(errs, fmt.Sprintf("supabase: port must be 1-65535, got %d", c.Supabase.Port))
			}
			if c.Supabase.Database == "" {
				errs = append(errs, "supabase: database must not be empty")
			}
		}
		if c.Supabase.PoolMaxConns < 1 {
			errs = append(errs, "supabase: pool_max_conns must be >= 1")
		}
		if c.Supabase.PoolMinConns < 0 {
			errs = append(errs, "supabase: pool_min_conns must be >= 0")
		}
		if c.Supabase.PoolMinConns > c.Supabase.PoolMaxConns {
			errs = append(errs, "supabase: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3
	if c.S3.QuoteBucket == "" {
		errs = append(errs, "s3: quote_bucket must not be empty")
	}
	if c.S3.QuoteKey == "" {
		errs = append(errs, "s3: quote_key must not be empty")
	}
	if c.S3.ExportBucket == "" {
		errs = append(errs, "s3: export_bucket must not be empty")
	}

	// Notify
	if c.Notify.RateLimit < 0 {
		errs = append(errs, "notify: rate_limit must be >= 0")
	}
	if c.Notify.RateLimit > 0 && c.Notify.RateWindow.Duration <= 0 {
		errs = append(errs, "notify: rate_window must be > 0 when rate_limit is set")
	}

	// Metrics
	if c.Metrics.PushgatewayURL != "" && c.Metrics.Job == "" {
		errs = append(errs, "metrics: job must not be empty when pushgateway_url is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func (d *DeltaConfig) validate() []string {
	var errs []string

	if math.IsNaN(d.Threshold) || math.IsInf(d.Threshold, 0) {
		errs = append(errs, "delta: threshold must be finite")
	}
	if d.StalenessWindow.Duration <= 0 {
		errs = append(errs, "delta: staleness_window must be > 0")
	}
	if d.ContextBefore.Duration < 0 || d.ContextAfter.Duration < 0 {
		errs = append(errs, "delta: context windows must be >= 0")
	}

	if len(d.Groups) == 0 {
		errs = append(errs, "delta: at least one group is required")
	}
	names := make(map[string]bool, len(d.Groups))
	owner := make(map[string]string)
	for _, g := range d.Groups {
		if g.Name == "" {
			errs = append(errs, "delta: group name must not be empty")
			continue
		}
		if names[g.Name] {
			errs = append(errs, fmt.Sprintf("delta: group %q defined twice", g.Name))
		}
		names[g.Name] = true
		if len(g.Brokers) == 0 {
			errs = append(errs, fmt.Sprintf("delta: group %q has no brokers", g.Name))
		}
		for _, b := range g.Brokers {
			if prev, ok := owner[b]; ok && prev != g.Name {
				errs = append(errs, fmt.Sprintf("delta: broker %q is in groups %q and %q", b, prev, g.Name))
			}
			owner[b] = g.Name
		}
	}
	if d.ReportingGroup != "" && !names[d.ReportingGroup] {
		errs = append(errs, fmt.Sprintf("delta: reporting_group %q is not a configured group", d.ReportingGroup))
	}

	for i, a := range d.Aliases {
		if a.Contains == "" {
			errs = append(errs, fmt.Sprintf("delta: alias %d: contains must not be empty", i))
		}
		if a.Remove == "" && a.Segment < 0 {
			errs = append(errs, fmt.Sprintf("delta: alias %d: segment must be >= 0", i))
		}
	}
	return errs
}

// GroupBrokers returns the brokers of the named group.
func (d *DeltaConfig) GroupBrokers(name string) []string {
	for _, g := range d.Groups {
		if g.Name == name {
			return g.Brokers
		}
	}
	return nil
}
