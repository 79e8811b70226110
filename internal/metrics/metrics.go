// Package metrics records per-run Prometheus metrics on a private registry and
// pushes them to a Pushgateway when the run ends.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/alanyoungcy/deltasync/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "deltasync"

// Recorder holds the run metrics. The zero value is not usable; use New.
type Recorder struct {
	reg *prometheus.Registry

	QuotesLoaded   prometheus.Counter
	DeltasDetected *prometheus.CounterVec
	Outcomes       *prometheus.CounterVec
	RunDuration    *prometheus.HistogramVec
	LastSuccess    prometheus.Gauge
}

// New creates a Recorder with its own registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Recorder{
		reg: reg,
		QuotesLoaded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quotes_loaded_total",
			Help:      "Quotes kept after the hour filter.",
		}),
		DeltasDetected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deltas_detected_total",
			Help:      "Delta events detected, by broker group and direction.",
		}, []string{"group", "direction"}),
		Outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_outcomes_total",
			Help:      "Reconciliation results, by record kind and category.",
		}, []string{"kind", "category"}),
		RunDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of one trading-date run.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"mode"}),
		LastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run.",
		}),
	}
}

// Registry exposes the private registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

// ObserveDeltas counts deltas by group and direction.
func (r *Recorder) ObserveDeltas(deltas []domain.DeltaEvent) {
	for _, d := range deltas {
		r.DeltasDetected.WithLabelValues(d.Group, string(d.Direction)).Inc()
	}
}

// ObserveOutcome adds n results of a kind ("position" or "failed") and
// category ("matched", "direction_mismatch", ...).
func (r *Recorder) ObserveOutcome(kind, category string, n int) {
	if n <= 0 {
		return
	}
	r.Outcomes.WithLabelValues(kind, category).Add(float64(n))
}

// ObserveRun records a finished run.
func (r *Recorder) ObserveRun(mode string, elapsed time.Duration, ok bool) {
	r.RunDuration.WithLabelValues(mode).Observe(elapsed.Seconds())
	if ok {
		r.LastSuccess.SetToCurrentTime()
	}
}

// Pusher sends a Recorder's registry to a Pushgateway.
type Pusher struct {
	url string
	job string
}

// NewPusher returns nil when url is empty; a nil Pusher does nothing.
func NewPusher(url, job string) *Pusher {
	if url == "" {
		return nil
	}
	return &Pusher{url: url, job: job}
}

// Push replaces the job's metrics on the gateway, grouped by date.
func (p *Pusher) Push(ctx context.Context, r *Recorder, date domain.TradingDate) error {
	if p == nil {
		return nil
	}
	err := push.New(p.url, p.job).
		Gatherer(r.reg).
		Grouping("date", date.String()).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("metrics: push %s: %w", p.job, err)
	}
	return nil
}
