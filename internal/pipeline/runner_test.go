package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/deltasync/internal/delta"
	"github.com/alanyoungcy/deltasync/internal/domain"
	"github.com/alanyoungcy/deltasync/internal/reconcile"
)

// ── fakes ──

type fakeQuotes struct {
	byDate map[string][]domain.Quote
	loads  int
}

func (f *fakeQuotes) Has(_ context.Context, date domain.TradingDate) (bool, error) {
	_, ok := f.byDate[date.String()]
	return ok, nil
}

func (f *fakeQuotes) LoadQuotes(_ context.Context, date domain.TradingDate) ([]domain.Quote, error) {
	f.loads++
	return f.byDate[date.String()], nil
}

type fakeReports struct {
	summaries map[string][]domain.DeltaEvent
	exported  map[string][]domain.DeltaEvent
	positions map[string][]domain.Position
	failErr   error
}

func newFakeReports() *fakeReports {
	return &fakeReports{
		summaries: map[string][]domain.DeltaEvent{},
		exported:  map[string][]domain.DeltaEvent{},
		positions: map[string][]domain.Position{},
	}
}

func (f *fakeReports) ExportSummary(_ context.Context, date domain.TradingDate, deltas []domain.DeltaEvent, _ float64) (string, error) {
	if f.failErr != nil {
		return "", f.failErr
	}
	f.exported[date.String()] = deltas
	return date.String() + "/delta_summary.csv", nil
}

func (f *fakeReports) ExportReconciliation(_ context.Context, date domain.TradingDate, positions []domain.Position, _ []domain.FailedPosition, _ []domain.Mismatch) error {
	f.positions[date.String()] = positions
	return nil
}

func (f *fakeReports) LoadSummary(_ context.Context, date domain.TradingDate) ([]domain.DeltaEvent, error) {
	d, ok := f.summaries[date.String()]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return d, nil
}

type fakePositions struct {
	byDate map[string][]domain.Position
	saved  []domain.Position
	err    error
}

func (f *fakePositions) ListByDate(_ context.Context, date domain.TradingDate) ([]domain.Position, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byDate[date.String()], nil
}

func (f *fakePositions) SaveMatches(_ context.Context, positions []domain.Position) error {
	f.saved = append(f.saved, positions...)
	return nil
}

type fakeFailed struct {
	byDate map[string][]domain.FailedPosition
	saved  []domain.FailedPosition
}

func (f *fakeFailed) ListByDate(_ context.Context, date domain.TradingDate) ([]domain.FailedPosition, error) {
	return f.byDate[date.String()], nil
}

func (f *fakeFailed) SaveMatches(_ context.Context, failed []domain.FailedPosition) error {
	f.saved = append(f.saved, failed...)
	return nil
}

type fakeCache struct {
	entries map[string][]domain.DeltaEvent
	sets    int
}

func (f *fakeCache) Get(_ context.Context, date domain.TradingDate, fp string) ([]domain.DeltaEvent, error) {
	d, ok := f.entries[date.String()+fp]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return d, nil
}

func (f *fakeCache) Set(_ context.Context, date domain.TradingDate, fp string, deltas []domain.DeltaEvent) error {
	f.sets++
	f.entries[date.String()+fp] = deltas
	return nil
}

type fakeLocks struct{ held map[string]bool }

func (f *fakeLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	if f.held[key] {
		return nil, domain.ErrLockHeld
	}
	f.held[key] = true
	return func() { delete(f.held, key) }, nil
}

type fakeAudit struct{ events []string }

func (f *fakeAudit) Log(_ context.Context, event string, _ map[string]any) error {
	f.events = append(f.events, event)
	return nil
}

type fakeHistory struct{ payloads [][]byte }

func (f *fakeHistory) Append(_ context.Context, payload []byte) error {
	f.payloads = append(f.payloads, payload)
	return nil
}

func (f *fakeHistory) Recent(context.Context, int) ([]domain.RunRecord, error) { return nil, nil }

// ── fixtures ──

type harness struct {
	quotes    *fakeQuotes
	reports   *fakeReports
	positions *fakePositions
	failed    *fakeFailed
	cache     *fakeCache
	locks     *fakeLocks
	audit     *fakeAudit
	history   *fakeHistory
}

func newHarness() *harness {
	return &harness{
		quotes:    &fakeQuotes{byDate: map[string][]domain.Quote{}},
		reports:   newFakeReports(),
		positions: &fakePositions{byDate: map[string][]domain.Position{}},
		failed:    &fakeFailed{byDate: map[string][]domain.FailedPosition{}},
		cache:     &fakeCache{entries: map[string][]domain.DeltaEvent{}},
		locks:     &fakeLocks{held: map[string]bool{}},
		audit:     &fakeAudit{},
		history:   &fakeHistory{},
	}
}

func (h *harness) deps() Deps {
	return Deps{
		Quotes:    h.quotes,
		Reports:   h.reports,
		Positions: h.positions,
		Failed:    h.failed,
		Cache:     h.cache,
		Locks:     h.locks,
		Audit:     h.audit,
		History:   h.history,
	}
}

func testOptions(mode string) Options {
	return Options{
		Mode:      mode,
		Groups:    []delta.Group{{Name: "NY", Brokers: []string{"A", "B", "C"}}},
		Detect:    delta.DefaultParams(),
		Reconcile: reconcile.Params{ContextBefore: 30 * time.Second, ContextAfter: 2 * time.Minute, ReportingBrokers: []string{"A", "B", "C"}},
		StartHour: 7,
		EndHour:   18,
		LockTTL:   time.Minute,
	}
}

func newTestRunner(t *testing.T, opts Options, deps Deps) *Runner {
	t.Helper()
	r, err := NewRunner(opts, deps, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return r
}

func mustDate(t *testing.T, s string) domain.TradingDate {
	t.Helper()
	d, err := domain.ParseTradingDate(s)
	require.NoError(t, err)
	return d
}

// crossingDay records one A offer / B bid crossing inside the hour window and
// one C offer that would cross too but sits exactly at the window's end.
func crossingDay(date domain.TradingDate) (quotes []domain.Quote, trigger int64) {
	from, to := date.HourWindowMs(7, 18)
	trigger = from + 1005
	quotes = []domain.Quote{
		{Broker: "A", Side: domain.SideOffer, Rate: 1.10000, FeedTS: from + 1000, SourceTS: from + 995},
		{Broker: "B", Side: domain.SideBid, Rate: 1.10002, FeedTS: trigger, SourceTS: from + 1000},
		{Broker: "C", Side: domain.SideOffer, Rate: 1.00000, FeedTS: to, SourceTS: to},
	}
	return quotes, trigger
}

// ── tests ──

func TestRunner_ReconcileDate(t *testing.T) {
	h := newHarness()
	date := mustDate(t, "03-05-2023")
	quotes, trigger := crossingDay(date)
	h.quotes.byDate[date.String()] = quotes
	h.positions.byDate[date.String()] = []domain.Position{
		{ID: "p1", Direction: domain.DirectionBuy, TriggerFeedTS: trigger, BrokerPairs: []domain.BrokerPair{{"B", "A"}}},
		{ID: "p2", Direction: domain.DirectionSell, TriggerFeedTS: trigger + 1, BrokerPairs: []domain.BrokerPair{{"A", "B"}}},
	}
	h.failed.byDate[date.String()] = []domain.FailedPosition{
		{ID: "f1", TriggerFeedTS: trigger, BrokerPairs: []domain.BrokerPair{{"A", "B"}}},
	}

	rep, err := newTestRunner(t, testOptions(ModeReconcile), h.deps()).RunDate(context.Background(), date)
	require.NoError(t, err)

	assert.Equal(t, SourceQuotes, rep.Source)
	assert.Equal(t, 2, rep.Quotes, "quote at the window end is dropped")
	assert.Equal(t, 1, rep.Deltas)
	assert.Equal(t, 2, rep.Positions.Positions)
	assert.Equal(t, 1, rep.Positions.Matched)
	assert.Equal(t, 1, rep.Positions.TimestampMismatches)
	assert.Equal(t, 1, rep.Failed.Matched)
	require.Len(t, rep.Mismatches, 1)
	assert.Equal(t, "p2", rep.Mismatches[0].PositionID)

	exported := h.reports.exported[date.String()]
	require.Len(t, exported, 1)
	assert.Equal(t, domain.MatchRef("p1"), exported[0].PositionID)
	assert.Equal(t, domain.MatchRef("f1"), exported[0].FailedPositionID)

	require.Len(t, h.positions.saved, 2)
	assert.Equal(t, []string{exported[0].ID}, h.positions.saved[0].MatchedDeltaIDs)
	require.Len(t, h.failed.saved, 1)
	assert.Equal(t, []string{exported[0].ID}, h.failed.saved[0].MatchedDeltaIDs)
	assert.Len(t, h.reports.positions[date.String()], 2)

	assert.Equal(t, 1, h.cache.sets)
	assert.Equal(t, []string{"run_completed"}, h.audit.events)
	require.Len(t, h.history.payloads, 1)
	var stored Report
	require.NoError(t, json.Unmarshal(h.history.payloads[0], &stored))
	assert.Equal(t, "03-05-2023", stored.Date)
	assert.Empty(t, h.locks.held, "lock released")
}

func TestRunner_DetectModeLeavesDeltasUnexamined(t *testing.T) {
	h := newHarness()
	date := mustDate(t, "03-05-2023")
	h.quotes.byDate[date.String()], _ = crossingDay(date)

	deps := h.deps()
	deps.Positions, deps.Failed = nil, nil
	rep, err := newTestRunner(t, testOptions(ModeDetect), deps).RunDate(context.Background(), date)
	require.NoError(t, err)

	assert.Equal(t, 1, rep.Deltas)
	exported := h.reports.exported[date.String()]
	require.Len(t, exported, 1)
	assert.False(t, exported[0].PositionID.Examined())
	assert.Empty(t, h.reports.positions)
}

func TestRunner_ReusesCachedDeltas(t *testing.T) {
	h := newHarness()
	date := mustDate(t, "03-05-2023")
	opts := testOptions(ModeReconcile)
	opts.ReuseCachedDeltas = true
	h.cache.entries[date.String()+opts.fingerprint()] = []domain.DeltaEvent{{ID: "cached", TriggerFeedTS: 1}}

	rep, err := newTestRunner(t, opts, h.deps()).RunDate(context.Background(), date)
	require.NoError(t, err)

	assert.Equal(t, SourceCache, rep.Source)
	assert.Equal(t, 1, rep.Deltas)
	assert.Zero(t, h.quotes.loads)
	assert.Zero(t, h.cache.sets)
}

func TestRunner_CacheMissAfterConfigChange(t *testing.T) {
	date := mustDate(t, "03-05-2023")
	cached := testOptions(ModeReconcile)

	regrouped := testOptions(ModeReconcile)
	regrouped.Groups = []delta.Group{{Name: "X", Brokers: []string{"A"}}, {Name: "Y", Brokers: []string{"B", "C"}}}
	rehoured := testOptions(ModeReconcile)
	rehoured.StartHour, rehoured.EndHour = 0, 1
	reordered := testOptions(ModeReconcile)
	reordered.Groups = []delta.Group{{Name: "NY", Brokers: []string{"C", "B", "A"}}}

	for name, opts := range map[string]Options{
		"groups changed":    regrouped,
		"window changed":    rehoured,
		"brokers reordered": reordered,
	} {
		t.Run(name, func(t *testing.T) {
			require.NotEqual(t, cached.fingerprint(), opts.fingerprint())

			h := newHarness()
			h.cache.entries[date.String()+cached.fingerprint()] = []domain.DeltaEvent{{ID: "stale", Group: "NY", PairName: "A-B"}}
			h.quotes.byDate[date.String()], _ = crossingDay(date)
			opts.ReuseCachedDeltas = true

			rep, err := newTestRunner(t, opts, h.deps()).RunDate(context.Background(), date)
			require.NoError(t, err)
			assert.Equal(t, SourceQuotes, rep.Source)
			assert.Equal(t, 1, h.quotes.loads)
			for _, ev := range h.reports.exported[date.String()] {
				assert.NotEqual(t, "stale", ev.ID)
			}
		})
	}
}

func TestOptions_FingerprintStable(t *testing.T) {
	assert.Equal(t, testOptions(ModeReconcile).fingerprint(), testOptions(ModeDetect).fingerprint())
}

func TestRunner_FallsBackToSummary(t *testing.T) {
	h := newHarness()
	date := mustDate(t, "03-05-2023")
	opts := testOptions(ModeReconcile)
	opts.ReuseCachedDeltas = true
	h.reports.summaries[date.String()] = []domain.DeltaEvent{{ID: "s1"}, {ID: "s2"}}

	rep, err := newTestRunner(t, opts, h.deps()).RunDate(context.Background(), date)
	require.NoError(t, err)

	assert.Equal(t, SourceSummary, rep.Source)
	assert.Equal(t, 2, rep.Deltas)
	assert.Zero(t, h.quotes.loads)
	assert.Equal(t, 1, h.cache.sets, "summary reload refills the cache")
}

func TestRunner_CacheIgnoredWhenReuseDisabled(t *testing.T) {
	h := newHarness()
	date := mustDate(t, "03-05-2023")
	opts := testOptions(ModeReconcile)
	h.cache.entries[date.String()+opts.fingerprint()] = []domain.DeltaEvent{{ID: "cached"}}
	h.quotes.byDate[date.String()], _ = crossingDay(date)

	rep, err := newTestRunner(t, opts, h.deps()).RunDate(context.Background(), date)
	require.NoError(t, err)
	assert.Equal(t, SourceQuotes, rep.Source)
	assert.Equal(t, 1, h.quotes.loads)
}

func TestRunner_SkipsLockedDate(t *testing.T) {
	h := newHarness()
	date := mustDate(t, "03-05-2023")
	h.locks.held["run:03-05-2023"] = true

	rep, err := newTestRunner(t, testOptions(ModeReconcile), h.deps()).RunDate(context.Background(), date)
	require.NoError(t, err)
	assert.Equal(t, SkipLockHeld, rep.Skipped)
	assert.Empty(t, h.audit.events)
	assert.Empty(t, h.reports.exported)
}

func TestRunner_SkipsDateWithoutQuotes(t *testing.T) {
	h := newHarness()
	date := mustDate(t, "03-05-2023")

	rep, err := newTestRunner(t, testOptions(ModeReconcile), h.deps()).RunDate(context.Background(), date)
	require.NoError(t, err)
	assert.Equal(t, SkipNoData, rep.Skipped)
	assert.Empty(t, h.reports.exported)
	assert.Empty(t, h.history.payloads)
}

func TestRunner_StrictBrokersFailsRun(t *testing.T) {
	h := newHarness()
	date := mustDate(t, "03-05-2023")
	from, _ := date.HourWindowMs(7, 18)
	h.quotes.byDate[date.String()] = []domain.Quote{
		{Broker: "ZURICH", Side: domain.SideBid, Rate: 1.1, FeedTS: from},
	}
	opts := testOptions(ModeDetect)
	opts.StrictBrokers = true
	deps := h.deps()
	deps.Positions, deps.Failed = nil, nil

	rep, err := newTestRunner(t, opts, deps).RunDate(context.Background(), date)
	require.ErrorIs(t, err, domain.ErrUnknownBroker)
	assert.Equal(t, []string{"ZURICH"}, rep.UnknownBrokers)
	assert.NotEmpty(t, rep.Error)
	assert.Equal(t, []string{"run_failed"}, h.audit.events)
}

func TestRunner_RunContinuesAfterFailure(t *testing.T) {
	h := newHarness()
	bad := mustDate(t, "03-05-2023")
	good := mustDate(t, "04-05-2023")
	h.quotes.byDate[bad.String()], _ = crossingDay(bad)
	h.quotes.byDate[good.String()], _ = crossingDay(good)
	h.positions.err = errors.New("db down")

	r := newTestRunner(t, testOptions(ModeReconcile), h.deps())
	reports, err := r.Run(context.Background(), []domain.TradingDate{bad, good})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "03-05-2023")
	assert.Contains(t, err.Error(), "04-05-2023")
	assert.Len(t, reports, 2)
	assert.Equal(t, []string{"run_failed", "run_failed"}, h.audit.events)

	h.positions.err = nil
	reports, err = r.Run(context.Background(), []domain.TradingDate{good})
	require.NoError(t, err)
	assert.Equal(t, 1, reports[0].Deltas)
}

func TestRunner_RunStopsWhenCancelled(t *testing.T) {
	h := newHarness()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reports, err := newTestRunner(t, testOptions(ModeReconcile), h.deps()).
		Run(ctx, []domain.TradingDate{mustDate(t, "03-05-2023")})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, reports)
}

func TestNewRunner_Validation(t *testing.T) {
	h := newHarness()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	deps := h.deps()
	deps.Positions = nil
	_, err := NewRunner(testOptions(ModeReconcile), deps, logger)
	assert.Error(t, err)

	_, err = NewRunner(testOptions("replay"), h.deps(), logger)
	assert.Error(t, err)

	opts := testOptions(ModeDetect)
	opts.Groups = nil
	_, err = NewRunner(opts, h.deps(), logger)
	assert.Error(t, err)
}

func TestMismatchMessage_Truncates(t *testing.T) {
	ms := make([]domain.Mismatch, maxMismatchLines+3)
	for i := range ms {
		ms[i] = domain.Mismatch{PositionID: "p", Category: domain.MismatchBroker}
	}
	msg := mismatchMessage(ms)
	assert.Contains(t, msg, "... and 3 more")
}
