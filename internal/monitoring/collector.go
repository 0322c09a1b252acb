package monitoring

import (
	"time"

	"github.com/sells-group/zonemap/internal/chunk"
	"github.com/sells-group/zonemap/internal/resilience"
)

// HealthSnapshot holds a point-in-time view of refresh health.
type HealthSnapshot struct {
	// Live snapshot.
	HasSnapshot bool          `json:"has_snapshot"`
	SnapshotID  string        `json:"snapshot_id,omitempty"`
	Generation  uint64        `json:"generation"`
	Year        int           `json:"year"`
	ZoneCount   int           `json:"zone_count"`
	FailedCells int           `json:"failed_cells"`
	SnapshotAge time.Duration `json:"snapshot_age"`

	// Refresh cycles.
	ConsecutiveFailures int `json:"consecutive_failures"`

	// Cell fetches since the previous collection.
	CellsFetched    int     `json:"cells_fetched"`
	CellsFailed     int     `json:"cells_failed"`
	CellFailureRate float64 `json:"cell_failure_rate"`

	BreakerState string `json:"breaker_state,omitempty"`

	CollectedAt time.Time `json:"collected_at"`
}

// SnapshotLoader returns the live snapshot; *chunk.Slot satisfies it.
type SnapshotLoader interface {
	Load() *chunk.Snapshot
}

// BreakerStater reports a circuit breaker state; *resilience.Breaker
// satisfies it.
type BreakerStater interface {
	State() resilience.State
}

// Collector gathers health from the snapshot slot, the metrics counters and
// the service breaker.
type Collector struct {
	slot    SnapshotLoader
	metrics *Metrics
	breaker BreakerStater
	started time.Time
	now     func() time.Time
}

// NewCollector creates a collector. breaker may be nil when zones come from a
// fixture.
func NewCollector(slot SnapshotLoader, metrics *Metrics, breaker BreakerStater) *Collector {
	return &Collector{
		slot:    slot,
		metrics: metrics,
		breaker: breaker,
		started: time.Now(),
		now:     time.Now,
	}
}

// Collect gathers a snapshot. Cell counters are reset so each collection
// covers the interval since the previous one.
func (c *Collector) Collect() *HealthSnapshot {
	now := c.now()
	h := &HealthSnapshot{
		CollectedAt: now.UTC(),
		SnapshotAge: now.Sub(c.started),
	}

	if snap := c.slot.Load(); snap != nil {
		h.HasSnapshot = true
		h.SnapshotID = snap.ID
		h.Generation = snap.Generation
		h.Year = snap.Year
		h.ZoneCount = snap.ZoneCount()
		h.FailedCells = snap.Failed
		h.SnapshotAge = now.Sub(snap.CompletedAt)
	}

	if c.metrics != nil {
		h.ConsecutiveFailures = int(c.metrics.consecutiveFailures.Load())
		h.CellsFetched = int(c.metrics.cells.Swap(0))
		h.CellsFailed = int(c.metrics.failedCells.Swap(0))
		if h.CellsFetched > 0 {
			h.CellFailureRate = float64(h.CellsFailed) / float64(h.CellsFetched)
		}
	}

	if c.breaker != nil {
		h.BreakerState = c.breaker.State().String()
	}

	return h
}
