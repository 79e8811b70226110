package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/alanyoungcy/deltasync/internal/blob/s3"
	"github.com/alanyoungcy/deltasync/internal/cache/redis"
	"github.com/alanyoungcy/deltasync/internal/config"
	"github.com/alanyoungcy/deltasync/internal/delta"
	"github.com/alanyoungcy/deltasync/internal/domain"
	"github.com/alanyoungcy/deltasync/internal/metrics"
	"github.com/alanyoungcy/deltasync/internal/notify"
	"github.com/alanyoungcy/deltasync/internal/pipeline"
	"github.com/alanyoungcy/deltasync/internal/reconcile"
	"github.com/alanyoungcy/deltasync/internal/store/postgres"
)

// Dependencies bundles the concrete implementations a run needs. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Object storage
	Quotes  *s3blob.QuoteLoader
	Reports *s3blob.Exporter

	// Stores (reconcile mode only)
	PositionStore       domain.PositionStore
	FailedPositionStore domain.FailedPositionStore
	AuditLog            domain.AuditLog

	// Redis
	DeltaCache  domain.DeltaCache
	LockManager domain.LockManager
	RunLog      domain.RunLog

	Notifier *notify.Notifier
	Metrics  *metrics.Recorder
	Pusher   *metrics.Pusher
}

func (d *Dependencies) runnerDeps() pipeline.Deps {
	return pipeline.Deps{
		Quotes:    d.Quotes,
		Reports:   d.Reports,
		Positions: d.PositionStore,
		Failed:    d.FailedPositionStore,
		Cache:     d.DeltaCache,
		Locks:     d.LockManager,
		Audit:     d.AuditLog,
		History:   d.RunLog,
		Metrics:   d.Metrics,
		Pusher:    d.Pusher,
		Notifier:  d.Notifier,
	}
}

// needsPostgres returns true for modes that read positions.
func needsPostgres(mode string) bool {
	return strings.ToLower(mode) == pipeline.ModeReconcile
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

	deps := &Dependencies{
		Metrics: metrics.New(),
		Pusher:  metrics.NewPusher(cfg.Metrics.PushgatewayURL, cfg.Metrics.Job),
	}

	// --- PostgreSQL (only for modes that need positions) ---
	if needsPostgres(cfg.Mode) {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Supabase.DSN,
			Host:     cfg.Supabase.Host,
			Port:     cfg.Supabase.Port,
			Database: cfg.Supabase.Database,
			User:     cfg.Supabase.User,
			Password: cfg.Supabase.Password,
			SSLMode:  cfg.Supabase.SSLMode,
			MaxConns: cfg.Supabase.PoolMaxConns,
			MinConns: cfg.Supabase.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Supabase.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.PositionStore = postgres.NewPositionStore(pool)
		deps.FailedPositionStore = postgres.NewFailedPositionStore(pool)
		deps.AuditLog = postgres.NewAuditStore(pool)
	}

	// --- Redis ---
	redisClient, err := newRedis(ctx, cfg)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.DeltaCache = redis.NewDeltaCache(redisClient, cfg.Run.CacheTTL.Duration)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.RunLog = redis.NewRunStream(redisClient)

	// --- S3 ---
	deps.Quotes, deps.Reports, err = WireStorage(ctx, cfg)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger,
		notify.WithRateLimit(redis.NewRateLimiter(redisClient), cfg.Notify.RateLimit, cfg.Notify.RateWindow.Duration),
	)

	return deps, cleanup, nil
}

// WireStorage builds the quote loader and the report exporter. Both share one
// S3 connection and differ only in bucket.
func WireStorage(ctx context.Context, cfg *config.Config) (*s3blob.QuoteLoader, *s3blob.Exporter, error) {
	client, err := s3blob.New(ctx, s3blob.ClientConfig{
		Endpoint:       cfg.S3.Endpoint,
		Region:         cfg.S3.Region,
		Bucket:         cfg.S3.QuoteBucket,
		AccessKey:      cfg.S3.AccessKey,
		SecretKey:      cfg.S3.SecretKey,
		UseSSL:         cfg.S3.UseSSL,
		ForcePathStyle: cfg.S3.ForcePathStyle,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("wire: s3: %w", err)
	}

	exportClient := client.WithBucket(cfg.S3.ExportBucket)
	for _, c := range []*s3blob.Client{client, exportClient} {
		if err := c.Health(ctx); err != nil {
			return nil, nil, fmt.Errorf("wire: %w", err)
		}
	}

	quotes := s3blob.NewQuoteLoader(s3blob.NewReader(client), cfg.S3.QuoteKey)
	reports := s3blob.NewExporter(s3blob.NewWriter(exportClient), s3blob.NewReader(exportClient), cfg.S3.ExportPrefix)
	return quotes, reports, nil
}

// WireRunLog connects to Redis for read-only access to the run history.
func WireRunLog(ctx context.Context, cfg *config.Config) (domain.RunLog, func(), error) {
	c, err := newRedis(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return redis.NewRunStream(c), func() { _ = c.Close() }, nil
}

func newRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	c, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("wire: redis: %w", err)
	}
	return c, nil
}

// RunOptions maps the configuration onto pipeline parameters.
func RunOptions(cfg *config.Config) pipeline.Options {
	groups := make([]delta.Group, 0, len(cfg.Delta.Groups))
	for _, g := range cfg.Delta.Groups {
		groups = append(groups, delta.Group{Name: g.Name, Brokers: g.Brokers})
	}
	aliases := make([]reconcile.AliasRule, 0, len(cfg.Delta.Aliases))
	for _, a := range cfg.Delta.Aliases {
		aliases = append(aliases, reconcile.AliasRule{Contains: a.Contains, Segment: a.Segment, Remove: a.Remove})
	}

	return pipeline.Options{
		Mode:   strings.ToLower(cfg.Mode),
		Groups: groups,
		Detect: delta.Params{
			Threshold:       cfg.Delta.Threshold,
			StalenessWindow: cfg.Delta.StalenessWindow.Duration,
		},
		Reconcile: reconcile.Params{
			ContextBefore:    cfg.Delta.ContextBefore.Duration,
			ContextAfter:     cfg.Delta.ContextAfter.Duration,
			ReportingBrokers: cfg.Delta.GroupBrokers(cfg.Delta.ReportingGroup),
		},
		Aliases:           aliases,
		StartHour:         cfg.Run.StartHour,
		EndHour:           cfg.Run.EndHour,
		ExportCeiling:     cfg.Run.ExportCeiling,
		ReuseCachedDeltas: cfg.Run.ReuseCachedDeltas,
		StrictBrokers:     cfg.Run.StrictBrokers,
		LockTTL:           cfg.Run.LockTTL.Duration,
	}
}
