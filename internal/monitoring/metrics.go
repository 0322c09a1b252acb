// Package monitoring exposes prometheus metrics for refresh cycles, zone
// service calls and frame rendering, and runs a background health checker
// that alerts on stale or failing refreshes.
package monitoring

import (
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sells-group/zonemap/internal/chunk"
	"github.com/sells-group/zonemap/internal/render"
	"github.com/sells-group/zonemap/internal/resilience"
	"github.com/sells-group/zonemap/internal/zones"
)

const namespace = "zonemap"

// Metrics holds every collector. It implements chunk.Observer and
// zones.RequestObserver.
type Metrics struct {
	registry *prometheus.Registry

	refreshCycles   *prometheus.CounterVec
	refreshDuration prometheus.Histogram
	cellRequests    *prometheus.CounterVec
	cellDuration    prometheus.Histogram

	serviceRequests *prometheus.CounterVec
	serviceDuration *prometheus.HistogramVec
	breakerState    prometheus.Gauge

	cacheEntries prometheus.Gauge
	cacheHits    prometheus.Gauge
	cacheMisses  prometheus.Gauge

	frameDuration  prometheus.Histogram
	frameZones     prometheus.Gauge
	frameContested prometheus.Gauge
	frameLabels    prometheus.Gauge

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	// Read by the Collector.
	lastCommit          atomic.Int64
	consecutiveFailures atomic.Int64
	cells               atomic.Int64
	failedCells         atomic.Int64
}

var (
	_ chunk.Observer        = (*Metrics)(nil)
	_ zones.RequestObserver = (*Metrics)(nil)
)

// NewMetrics registers every collector on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		refreshCycles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "cycles_total",
			Help:      "Refresh cycles by outcome",
		}, []string{"outcome"}),
		refreshDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "duration_seconds",
			Help:      "Time from cycle start until every cell settled",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		cellRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "cell_requests_total",
			Help:      "Cell fetches by result",
		}, []string{"result"}),
		cellDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "cell_duration_seconds",
			Help:      "Cell fetch latency",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),

		serviceRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "service",
			Name:      "requests_total",
			Help:      "Zone service calls by operation and result",
		}, []string{"op", "result"}),
		serviceDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "service",
			Name:      "request_duration_seconds",
			Help:      "Zone service call latency including retries",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"op"}),
		breakerState: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "service",
			Name:      "circuit_state",
			Help:      "Circuit breaker state (0 closed, 1 open, 2 half-open)",
		}),

		cacheEntries: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Cached cell responses",
		}),
		cacheHits: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits",
			Help:      "Cache hits since start",
		}),
		cacheMisses: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses",
			Help:      "Cache misses since start",
		}),

		frameDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "render",
			Name:      "frame_duration_seconds",
			Help:      "Time to draw and encode one frame",
			Buckets:   []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		}),
		frameZones: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "render",
			Name:      "frame_polygons",
			Help:      "Polygons drawn in the last frame",
		}),
		frameContested: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "render",
			Name:      "frame_contested_edges",
			Help:      "Contested edges marked in the last frame",
		}),
		frameLabels: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "render",
			Name:      "frame_labels",
			Help:      "Labels placed in the last frame",
		}),

		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed",
		}, []string{"method", "route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"method", "route"}),
	}
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveCycle implements chunk.Observer.
func (m *Metrics) ObserveCycle(outcome string, _, _ int, d time.Duration) {
	m.refreshCycles.WithLabelValues(outcome).Inc()
	m.refreshDuration.Observe(d.Seconds())
	switch outcome {
	case chunk.OutcomeCommitted:
		m.lastCommit.Store(time.Now().UnixNano())
		m.consecutiveFailures.Store(0)
	case chunk.OutcomeFailed:
		m.consecutiveFailures.Add(1)
	}
}

// ObserveCell implements chunk.Observer.
func (m *Metrics) ObserveCell(err error, d time.Duration) {
	m.cells.Add(1)
	if err != nil {
		m.failedCells.Add(1)
	}
	m.cellRequests.WithLabelValues(result(err)).Inc()
	m.cellDuration.Observe(d.Seconds())
}

// ObserveRequest implements zones.RequestObserver.
func (m *Metrics) ObserveRequest(op string, err error, d time.Duration) {
	m.serviceRequests.WithLabelValues(op, result(err)).Inc()
	m.serviceDuration.WithLabelValues(op).Observe(d.Seconds())
}

// SetBreakerState records the circuit breaker state. It matches the
// resilience.BreakerConfig.OnStateChange signature.
func (m *Metrics) SetBreakerState(_, to resilience.State) {
	m.breakerState.Set(float64(to))
}

// ObserveCache records cache statistics.
func (m *Metrics) ObserveCache(s zones.CacheStats) {
	m.cacheEntries.Set(float64(s.Entries))
	m.cacheHits.Set(float64(s.Hits))
	m.cacheMisses.Set(float64(s.Misses))
}

// ObserveFrame records one rendered frame.
func (m *Metrics) ObserveFrame(s render.FrameStats, d time.Duration) {
	m.frameDuration.Observe(d.Seconds())
	m.frameZones.Set(float64(s.Polygons))
	m.frameContested.Set(float64(s.Contested))
	m.frameLabels.Set(float64(s.Labels))
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware records request metrics labelled by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
