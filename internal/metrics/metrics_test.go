package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alanyoungcy/deltasync/internal/domain"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Observe(t *testing.T) {
	r := New()
	r.ObserveDeltas([]domain.DeltaEvent{
		{Group: "NY", Direction: domain.DirectionBuy},
		{Group: "NY", Direction: domain.DirectionBuy},
		{Group: "LONDON", Direction: domain.DirectionSell},
	})
	r.ObserveOutcome("position", "matched", 3)
	r.ObserveOutcome("position", "broker_mismatch", 0)
	r.QuotesLoaded.Add(10)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.DeltasDetected.WithLabelValues("NY", "buy")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.DeltasDetected.WithLabelValues("LONDON", "sell")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.Outcomes.WithLabelValues("position", "matched")))
	assert.Equal(t, 10.0, testutil.ToFloat64(r.QuotesLoaded))

	// A zero count never creates the series.
	assert.Equal(t, 1, testutil.CollectAndCount(r.Outcomes))
}

func TestRecorder_ObserveRun(t *testing.T) {
	r := New()
	r.ObserveRun("reconcile", 2*time.Second, false)
	assert.Equal(t, 0.0, testutil.ToFloat64(r.LastSuccess))

	r.ObserveRun("reconcile", time.Second, true)
	assert.Greater(t, testutil.ToFloat64(r.LastSuccess), 0.0)
	assert.Equal(t, 1, testutil.CollectAndCount(r.RunDuration))
}

func TestPusher_NilWhenUnconfigured(t *testing.T) {
	p := NewPusher("", "deltasync")
	assert.Nil(t, p)
	assert.NoError(t, p.Push(context.Background(), New(), domain.TradingDate{}))
}

func TestPusher_Push(t *testing.T) {
	var method, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	date, err := domain.ParseTradingDate("03-05-2023")
	require.NoError(t, err)

	r := New()
	r.QuotesLoaded.Inc()
	require.NoError(t, NewPusher(srv.URL, "deltasync").Push(context.Background(), r, date))
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/metrics/job/deltasync/date/03-05-2023", path)
}
