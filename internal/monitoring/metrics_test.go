package monitoring

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/zonemap/internal/chunk"
	"github.com/sells-group/zonemap/internal/render"
	"github.com/sells-group/zonemap/internal/resilience"
	"github.com/sells-group/zonemap/internal/zones"
)

func TestMetrics_Cycles(t *testing.T) {
	m := NewMetrics()
	m.ObserveCycle(chunk.OutcomeFailed, 9, 9, time.Millisecond)
	m.ObserveCycle(chunk.OutcomeFailed, 9, 9, time.Millisecond)
	assert.Equal(t, int64(2), m.consecutiveFailures.Load())

	m.ObserveCycle(chunk.OutcomeSuperseded, 9, 0, time.Millisecond)
	assert.Equal(t, int64(2), m.consecutiveFailures.Load())

	m.ObserveCycle(chunk.OutcomeCommitted, 9, 0, time.Millisecond)
	assert.Zero(t, m.consecutiveFailures.Load())
	assert.NotZero(t, m.lastCommit.Load())

	assert.InDelta(t, 2, testutil.ToFloat64(m.refreshCycles.WithLabelValues(chunk.OutcomeFailed)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.refreshCycles.WithLabelValues(chunk.OutcomeCommitted)), 0)
}

func TestMetrics_Requests(t *testing.T) {
	m := NewMetrics()
	m.ObserveRequest("areas", nil, time.Millisecond)
	m.ObserveRequest("areas", errors.New("down"), time.Millisecond)
	m.ObserveCell(errors.New("down"), time.Millisecond)

	assert.InDelta(t, 1, testutil.ToFloat64(m.serviceRequests.WithLabelValues("areas", "ok")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.serviceRequests.WithLabelValues("areas", "error")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.cellRequests.WithLabelValues("error")), 0)
}

func TestMetrics_Gauges(t *testing.T) {
	m := NewMetrics()
	m.SetBreakerState(resilience.Closed, resilience.Open)
	m.ObserveCache(zones.CacheStats{Entries: 4, Hits: 10, Misses: 2})
	m.ObserveFrame(render.FrameStats{Polygons: 3, Contested: 6, Labels: 2}, time.Millisecond)

	assert.InDelta(t, 1, testutil.ToFloat64(m.breakerState), 0)
	assert.InDelta(t, 4, testutil.ToFloat64(m.cacheEntries), 0)
	assert.InDelta(t, 10, testutil.ToFloat64(m.cacheHits), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(m.frameZones), 0)
	assert.InDelta(t, 6, testutil.ToFloat64(m.frameContested), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.frameLabels), 0)
}

func TestMetrics_HandlerAndMiddleware(t *testing.T) {
	m := NewMetrics()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/things/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Method(http.MethodGet, "/metrics", m.Handler())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/things/42", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.InDelta(t, 1, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/things/{id}", "418")), 0)

	srv := httptest.NewServer(r)
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "zonemap_http_requests_total")
	assert.Contains(t, string(body), "go_goroutines")
}
