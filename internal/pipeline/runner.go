// Package pipeline runs one trading date end to end: load or reuse deltas,
// reconcile them against the recorded positions, export the results and
// report the run.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/deltasync/internal/delta"
	"github.com/alanyoungcy/deltasync/internal/domain"
	"github.com/alanyoungcy/deltasync/internal/metrics"
	"github.com/alanyoungcy/deltasync/internal/notify"
	"github.com/alanyoungcy/deltasync/internal/reconcile"
)

// Run modes.
const (
	ModeReconcile = "reconcile"
	ModeDetect    = "detect"
)

// Where the deltas of a run came from.
const (
	SourceQuotes  = "quotes"
	SourceCache   = "cache"
	SourceSummary = "summary"
)

// Reasons a date is skipped without error.
const (
	SkipLockHeld = "lock_held"
	SkipNoData   = "no_data"
)

// QuoteSource loads the raw quotes of a date.
type QuoteSource interface {
	Has(ctx context.Context, date domain.TradingDate) (bool, error)
	LoadQuotes(ctx context.Context, date domain.TradingDate) ([]domain.Quote, error)
}

// ReportStore publishes run outputs and reads back earlier delta summaries.
type ReportStore interface {
	ExportSummary(ctx context.Context, date domain.TradingDate, deltas []domain.DeltaEvent, ceiling float64) (string, error)
	ExportReconciliation(ctx context.Context, date domain.TradingDate, positions []domain.Position, failed []domain.FailedPosition, mismatches []domain.Mismatch) error
	LoadSummary(ctx context.Context, date domain.TradingDate) ([]domain.DeltaEvent, error)
}

// Options hold the per-run parameters.
type Options struct {
	Mode              string
	Groups            []delta.Group
	Detect            delta.Params
	Reconcile         reconcile.Params
	Aliases           []reconcile.AliasRule
	StartHour         int
	EndHour           int
	ExportCeiling     float64
	ReuseCachedDeltas bool
	StrictBrokers     bool
	LockTTL           time.Duration
}

// fingerprint identifies everything that shapes detection output: the
// detector parameters, the hour window and the ordered group definitions.
func (o Options) fingerprint() string {
	var b strings.Builder
	for _, g := range o.Groups {
		b.WriteString(g.Name)
		b.WriteByte('=')
		b.WriteString(strings.Join(g.Brokers, ","))
		b.WriteByte(';')
	}
	sum := sha256.Sum256([]byte(b.String()))
	return fmt.Sprintf("%s-h%d-%d-g%s", o.Detect.Fingerprint(), o.StartHour, o.EndHour, hex.EncodeToString(sum[:6]))
}

// Deps are the collaborators of a Runner. Quotes and Reports are required;
// Positions and Failed are required in reconcile mode; the rest may be nil.
type Deps struct {
	Quotes    QuoteSource
	Reports   ReportStore
	Positions domain.PositionStore
	Failed    domain.FailedPositionStore
	Cache     domain.DeltaCache
	Locks     domain.LockManager
	Audit     domain.AuditLog
	History   domain.RunLog
	Metrics   *metrics.Recorder
	Pusher    *metrics.Pusher
	Notifier  *notify.Notifier
}

// Report describes one processed date. It is appended to the run history and
// summarised in notifications.
type Report struct {
	Date           string                  `json:"date"`
	Mode           string                  `json:"mode"`
	Source         string                  `json:"source,omitempty"`
	Skipped        string                  `json:"skipped,omitempty"`
	Quotes         int                     `json:"quotes"`
	Deltas         int                     `json:"deltas"`
	UnknownBrokers []string                `json:"unknown_brokers,omitempty"`
	Positions      reconcile.Summary       `json:"positions"`
	Failed         reconcile.FailedSummary `json:"failed"`
	Mismatches     []domain.Mismatch       `json:"mismatches,omitempty"`
	SummaryKey     string                  `json:"summary_key,omitempty"`
	StartedAt      time.Time               `json:"started_at"`
	DurationMs     int64                   `json:"duration_ms"`
	Error          string                  `json:"error,omitempty"`
}

// Runner processes trading dates.
type Runner struct {
	opts      Options
	deps      Deps
	positions *reconcile.PositionReconciler
	failed    *reconcile.FailedReconciler
	logger    *slog.Logger
	now       func() time.Time
}

// NewRunner validates the wiring and creates a Runner.
func NewRunner(opts Options, deps Deps, logger *slog.Logger) (*Runner, error) {
	if opts.Mode == "" {
		opts.Mode = ModeReconcile
	}
	switch {
	case opts.Mode != ModeReconcile && opts.Mode != ModeDetect:
		return nil, fmt.Errorf("pipeline: unknown mode %q", opts.Mode)
	case len(opts.Groups) == 0:
		return nil, errors.New("pipeline: no broker groups")
	case deps.Quotes == nil || deps.Reports == nil:
		return nil, errors.New("pipeline: quote source and report store are required")
	case opts.Mode == ModeReconcile && (deps.Positions == nil || deps.Failed == nil):
		return nil, errors.New("pipeline: reconcile mode needs position stores")
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}

	return &Runner{
		opts:      opts,
		deps:      deps,
		positions: reconcile.NewPositionReconciler(opts.Reconcile),
		failed:    reconcile.NewFailedReconciler(reconcile.NewAliasNormalizer(opts.Aliases...)),
		logger:    logger.With(slog.String("component", "pipeline")),
		now:       time.Now,
	}, nil
}

// Run processes dates in order. A failing date does not stop the following
// ones; all failures are joined into the returned error. Cancellation stops
// the loop.
func (r *Runner) Run(ctx context.Context, dates []domain.TradingDate) ([]Report, error) {
	reports := make([]Report, 0, len(dates))
	var errs []error
	for _, date := range dates {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		rep, err := r.RunDate(ctx, date)
		reports = append(reports, rep)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", date, err))
		}
	}
	return reports, errors.Join(errs...)
}

// RunDate processes one trading date. A date that is locked by another run or
// has no recorded quotes is skipped with a nil error.
func (r *Runner) RunDate(ctx context.Context, date domain.TradingDate) (rep Report, err error) {
	start := r.now()
	rep = Report{Date: date.String(), Mode: r.opts.Mode, StartedAt: start.UTC()}
	log := r.logger.With(slog.String("date", rep.Date), slog.String("mode", rep.Mode))

	if r.deps.Locks != nil {
		unlock, lerr := r.deps.Locks.Acquire(ctx, "run:"+rep.Date, r.opts.LockTTL)
		if errors.Is(lerr, domain.ErrLockHeld) {
			log.WarnContext(ctx, "date is being processed elsewhere, skipping")
			rep.Skipped = SkipLockHeld
			return rep, nil
		}
		if lerr != nil {
			return rep, fmt.Errorf("pipeline: lock: %w", lerr)
		}
		defer unlock()
	}

	defer func() {
		rep.DurationMs = r.now().Sub(start).Milliseconds()
		if rep.Skipped != "" {
			return
		}
		r.finish(ctx, log, date, &rep, err)
	}()

	deltas, err := r.loadDeltas(ctx, log, date, &rep)
	if err != nil || rep.Skipped != "" {
		return rep, err
	}
	rep.Deltas = len(deltas)
	r.deps.Metrics.ObserveDeltas(deltas)
	store := delta.NewStore(deltas...)

	var (
		positions []domain.Position
		failed    []domain.FailedPosition
	)
	if r.opts.Mode == ModeReconcile {
		positions, failed, err = r.reconcile(ctx, log, date, store, &rep)
		if err != nil {
			return rep, err
		}
	}

	rep.SummaryKey, err = r.deps.Reports.ExportSummary(ctx, date, store.All(), r.opts.ExportCeiling)
	if err != nil {
		return rep, fmt.Errorf("pipeline: export summary: %w", err)
	}
	if r.opts.Mode == ModeReconcile {
		if err = r.deps.Reports.ExportReconciliation(ctx, date, positions, failed, rep.Mismatches); err != nil {
			return rep, fmt.Errorf("pipeline: export reconciliation: %w", err)
		}
	}

	log.InfoContext(ctx, "date processed",
		slog.String("source", rep.Source),
		slog.Int("deltas", rep.Deltas),
		slog.Int("positions", rep.Positions.Positions),
		slog.Int("matched", rep.Positions.Matched),
		slog.Int("failed_matched", rep.Failed.Matched),
		slog.Int("mismatches", len(rep.Mismatches)),
		slog.String("summary", rep.SummaryKey),
	)
	return rep, nil
}

// loadDeltas returns the deltas of date from the Redis cache, an earlier
// summary export, or fresh detection, in that order. Reuse is only attempted
// when enabled.
func (r *Runner) loadDeltas(ctx context.Context, log *slog.Logger, date domain.TradingDate, rep *Report) ([]domain.DeltaEvent, error) {
	fp := r.opts.fingerprint()

	if r.opts.ReuseCachedDeltas {
		if r.deps.Cache != nil {
			deltas, err := r.deps.Cache.Get(ctx, date, fp)
			switch {
			case err == nil:
				rep.Source = SourceCache
				return deltas, nil
			case !errors.Is(err, domain.ErrNotFound):
				log.WarnContext(ctx, "delta cache read failed", slog.String("error", err.Error()))
			}
		}

		deltas, err := r.deps.Reports.LoadSummary(ctx, date)
		switch {
		case err == nil:
			rep.Source = SourceSummary
			r.cacheDeltas(ctx, log, date, fp, deltas)
			return deltas, nil
		case !errors.Is(err, domain.ErrNotFound):
			log.WarnContext(ctx, "summary reload failed", slog.String("error", err.Error()))
		}
	}

	ok, err := r.deps.Quotes.Has(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("pipeline: check quotes: %w", err)
	}
	if !ok {
		log.WarnContext(ctx, "no quotes recorded for date, skipping")
		rep.Skipped = SkipNoData
		return nil, nil
	}

	quotes, err := r.deps.Quotes.LoadQuotes(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("pipeline: load quotes: %w", err)
	}
	from, to := date.HourWindowMs(r.opts.StartHour, r.opts.EndHour)
	quotes = filterWindow(quotes, from, to)
	rep.Quotes = len(quotes)
	r.deps.Metrics.QuotesLoaded.Add(float64(len(quotes)))

	if unknown := delta.Split(r.opts.Groups, quotes).UnknownBrokers(); len(unknown) > 0 {
		rep.UnknownBrokers = unknown
		if !r.opts.StrictBrokers {
			log.WarnContext(ctx, "quotes from brokers outside every group ignored",
				slog.Any("brokers", unknown),
			)
		}
	}

	deltas, err := delta.DetectGroups(ctx, r.opts.Groups, quotes, r.opts.Detect, r.opts.StrictBrokers)
	if err != nil {
		return nil, fmt.Errorf("pipeline: detect: %w", err)
	}
	rep.Source = SourceQuotes
	r.cacheDeltas(ctx, log, date, fp, deltas)
	return deltas, nil
}

func (r *Runner) cacheDeltas(ctx context.Context, log *slog.Logger, date domain.TradingDate, fp string, deltas []domain.DeltaEvent) {
	if r.deps.Cache == nil {
		return
	}
	if err := r.deps.Cache.Set(ctx, date, fp, deltas); err != nil {
		log.WarnContext(ctx, "delta cache write failed", slog.String("error", err.Error()))
	}
}

// reconcile loads the date's records, runs both passes and writes the
// matches back.
func (r *Runner) reconcile(
	ctx context.Context,
	log *slog.Logger,
	date domain.TradingDate,
	store *delta.Store,
	rep *Report,
) ([]domain.Position, []domain.FailedPosition, error) {
	positions, err := r.deps.Positions.ListByDate(ctx, date)
	if err != nil {
		return nil, nil, fmt.Errorf("pipeline: load positions: %w", err)
	}
	failed, err := r.deps.Failed.ListByDate(ctx, date)
	if err != nil {
		return nil, nil, fmt.Errorf("pipeline: load failed positions: %w", err)
	}
	if len(positions) == 0 {
		log.InfoContext(ctx, "no positions recorded for date")
	}

	res, err := reconcile.Run(ctx, store, r.positions, positions, r.failed, failed)
	if err != nil {
		return nil, nil, fmt.Errorf("pipeline: reconcile: %w", err)
	}
	rep.Positions = res.Positions.Summary
	rep.Failed = res.Failed.Summary
	rep.Mismatches = res.Positions.Mismatches

	if len(positions) > 0 {
		if err := r.deps.Positions.SaveMatches(ctx, positions); err != nil {
			return nil, nil, fmt.Errorf("pipeline: save position matches: %w", err)
		}
	}
	if len(failed) > 0 {
		if err := r.deps.Failed.SaveMatches(ctx, failed); err != nil {
			return nil, nil, fmt.Errorf("pipeline: save failed matches: %w", err)
		}
	}

	m := r.deps.Metrics
	m.ObserveOutcome("position", "matched", rep.Positions.Matched)
	m.ObserveOutcome("position", string(domain.MismatchDirection), rep.Positions.DirectionMismatches)
	m.ObserveOutcome("position", string(domain.MismatchBroker), rep.Positions.BrokerMismatches)
	m.ObserveOutcome("position", string(domain.MismatchTimestamp), rep.Positions.TimestampMismatches)
	m.ObserveOutcome("failed", "matched", rep.Failed.Matched)
	m.ObserveOutcome("failed", "unmatched", rep.Failed.Positions-rep.Failed.Matched)
	return positions, failed, nil
}

// finish records the outcome of a processed date. Failures here are logged
// and never change the run result.
func (r *Runner) finish(ctx context.Context, log *slog.Logger, date domain.TradingDate, rep *Report, runErr error) {
	// Reporting must still happen when the run was cancelled.
	ctx = context.WithoutCancel(ctx)

	event := notify.EventRunCompleted
	if runErr != nil {
		event = notify.EventRunFailed
		rep.Error = runErr.Error()
		log.ErrorContext(ctx, "date failed", slog.String("error", rep.Error))
	}

	r.deps.Metrics.ObserveRun(r.opts.Mode, time.Duration(rep.DurationMs)*time.Millisecond, runErr == nil)
	if err := r.deps.Pusher.Push(ctx, r.deps.Metrics, date); err != nil {
		log.WarnContext(ctx, "metrics push failed", slog.String("error", err.Error()))
	}

	if r.deps.Audit != nil {
		detail := map[string]any{
			"date":        rep.Date,
			"mode":        rep.Mode,
			"source":      rep.Source,
			"deltas":      rep.Deltas,
			"positions":   rep.Positions,
			"failed":      rep.Failed,
			"mismatches":  len(rep.Mismatches),
			"summary_key": rep.SummaryKey,
		}
		if rep.Error != "" {
			detail["error"] = rep.Error
		}
		if err := r.deps.Audit.Log(ctx, event, detail); err != nil {
			log.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
		}
	}

	if r.deps.History != nil {
		payload, err := json.Marshal(rep)
		if err == nil {
			err = r.deps.History.Append(ctx, payload)
		}
		if err != nil {
			log.WarnContext(ctx, "run history append failed", slog.String("error", err.Error()))
		}
	}

	if err := r.deps.Notifier.Notify(ctx, event, runTitle(rep, runErr), runMessage(rep)); err != nil {
		log.WarnContext(ctx, "notification failed", slog.String("error", err.Error()))
	}
	if len(rep.Mismatches) > 0 {
		title := fmt.Sprintf("deltasync %s: %d unmatched positions", rep.Date, len(rep.Mismatches))
		if err := r.deps.Notifier.Notify(ctx, notify.EventMismatch, title, mismatchMessage(rep.Mismatches)); err != nil {
			log.WarnContext(ctx, "notification failed", slog.String("error", err.Error()))
		}
	}
}

// filterWindow keeps quotes with from <= FeedTS < to.
func filterWindow(quotes []domain.Quote, from, to int64) []domain.Quote {
	out := make([]domain.Quote, 0, len(quotes))
	for _, q := range quotes {
		if q.FeedTS >= from && q.FeedTS < to {
			out = append(out, q)
		}
	}
	return out
}
