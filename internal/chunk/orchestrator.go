package chunk

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/zonemap/internal/projection"
	"github.com/sells-group/zonemap/internal/zones"
)

var (
	// ErrSuperseded is returned when a newer refresh was started before this
	// one finished. Its result is discarded.
	ErrSuperseded = eris.New("chunk: refresh superseded")
	// ErrAllCellsFailed is returned when every cell request failed. The
	// previous snapshot stays live.
	ErrAllCellsFailed = eris.New("chunk: all cells failed")
)

// Outcomes reported to an Observer.
const (
	OutcomeCommitted  = "committed"
	OutcomeSuperseded = "superseded"
	OutcomeFailed     = "failed"
)

// Observer receives per-cycle and per-cell results, e.g. for metrics.
type Observer interface {
	ObserveCycle(outcome string, cells, failed int, d time.Duration)
	ObserveCell(err error, d time.Duration)
}

// Config configures an Orchestrator.
type Config struct {
	Policy         Policy
	GridSize       int // cells per axis for the grid policy; default 3
	MaxConcurrency int // concurrent cell requests; default GridSize²
}

// Orchestrator turns bounds and a year into snapshots. Refresh may be called
// concurrently; only the most recently started cycle may commit.
type Orchestrator struct {
	src      zones.Source
	cfg      Config
	slot     *Slot
	observer Observer

	generation atomic.Uint64
	commitMu   sync.Mutex
}

// NewOrchestrator creates an orchestrator that fetches from src and commits
// into slot. observer may be nil.
func NewOrchestrator(src zones.Source, cfg Config, slot *Slot, observer Observer) *Orchestrator {
	if cfg.Policy == "" {
		cfg.Policy = Grid
	}
	if cfg.GridSize < 1 {
		cfg.GridSize = 3
	}
	if cfg.MaxConcurrency < 1 {
		cfg.MaxConcurrency = cfg.GridSize * cfg.GridSize
	}
	if slot == nil {
		slot = NewSlot()
	}
	return &Orchestrator{src: src, cfg: cfg, slot: slot, observer: observer}
}

// Slot returns the snapshot slot this orchestrator commits into.
func (o *Orchestrator) Slot() *Slot {
	return o.slot
}

// Plan returns the request cells for bounds under the configured policy.
func (o *Orchestrator) Plan(b projection.Bounds) []Cell {
	if o.cfg.Policy == Single {
		return Cells(b, 1)
	}
	return Cells(b, o.cfg.GridSize)
}

// Refresh fetches every cell of bounds for year and, if no newer cycle has
// started meanwhile, commits the assembled snapshot. A failed cell is logged
// and left out. Refresh returns once all cells have settled.
func (o *Orchestrator) Refresh(ctx context.Context, bounds projection.Bounds, year int) (*Snapshot, error) {
	if err := bounds.Validate(); err != nil {
		return nil, eris.Wrap(err, "chunk: refresh")
	}
	gen := o.generation.Add(1)
	snap := &Snapshot{
		ID:          uuid.NewString(),
		Generation:  gen,
		Year:        year,
		Bounds:      bounds,
		InitiatedAt: time.Now(),
	}
	log := zap.L().With(zap.String("cycle_id", snap.ID), zap.Uint64("generation", gen))

	cells := o.Plan(bounds)
	results := make([]*Chunk, len(cells))
	var failed atomic.Int32

	var g errgroup.Group
	g.SetLimit(o.cfg.MaxConcurrency)
	for i, cell := range cells {
		parts := requestParts(cell.Bounds)
		if len(parts) == 0 {
			continue
		}
		g.Go(func() error {
			var zs []zones.Zone
			for _, part := range parts {
				start := time.Now()
				got, err := o.src.Zones(ctx, year, part.Bounds.TopLeft, part.Bounds.BottomRight)
				if o.observer != nil {
					o.observer.ObserveCell(err, time.Since(start))
				}
				if err != nil {
					failed.Add(1)
					log.Warn("chunk: cell fetch failed",
						zap.Int("row", cell.Row),
						zap.Int("col", cell.Col),
						zap.Float64("shift", part.Shift),
						zap.Error(err),
					)
					return nil
				}
				zs = append(zs, shiftZones(got, part.Shift)...)
			}
			results[i] = &Chunk{
				Row:       cell.Row,
				Col:       cell.Col,
				Bounds:    cell.Bounds,
				Center:    cell.Bounds.Center(),
				ZoomLevel: cell.Bounds.ZoomLevel(),
				Zones:     zs,
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, c := range results {
		if c != nil {
			snap.Chunks = append(snap.Chunks, *c)
		}
	}
	snap.Failed = int(failed.Load())
	snap.CompletedAt = time.Now()
	elapsed := snap.CompletedAt.Sub(snap.InitiatedAt)

	if err := ctx.Err(); err != nil {
		o.observe(OutcomeFailed, len(cells), snap.Failed, elapsed)
		return nil, eris.Wrap(err, "chunk: refresh")
	}
	if snap.Failed > 0 && len(snap.Chunks) == 0 {
		o.observe(OutcomeFailed, len(cells), snap.Failed, elapsed)
		log.Warn("chunk: refresh failed", zap.Int("cells", len(cells)))
		return nil, ErrAllCellsFailed
	}

	if !o.commit(snap) {
		o.observe(OutcomeSuperseded, len(cells), snap.Failed, elapsed)
		log.Debug("chunk: discarding superseded refresh", zap.Uint64("latest", o.generation.Load()))
		return nil, ErrSuperseded
	}
	o.observe(OutcomeCommitted, len(cells), snap.Failed, elapsed)
	log.Debug("chunk: refresh committed",
		zap.Int("cells", len(cells)),
		zap.Int("failed", snap.Failed),
		zap.Int("zones", snap.ZoneCount()),
		zap.Duration("elapsed", elapsed),
	)
	return snap, nil
}

// commit stores snap unless a newer cycle has started.
func (o *Orchestrator) commit(snap *Snapshot) bool {
	o.commitMu.Lock()
	defer o.commitMu.Unlock()
	if snap.Generation != o.generation.Load() {
		return false
	}
	o.slot.Store(snap)
	return true
}

func (o *Orchestrator) observe(outcome string, cells, failed int, d time.Duration) {
	if o.observer != nil {
		o.observer.ObserveCycle(outcome, cells, failed, d)
	}
}
