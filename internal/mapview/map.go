// Package mapview runs a map: a viewport driven by input events, a refresh
// task that keeps the zone snapshot in step with the viewport, and a redraw
// task that renders the latest snapshot at the current bounds.
package mapview

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/zonemap/internal/chunk"
	"github.com/sells-group/zonemap/internal/monitoring"
	"github.com/sells-group/zonemap/internal/projection"
	"github.com/sells-group/zonemap/internal/render"
	"github.com/sells-group/zonemap/internal/viewport"
	"github.com/sells-group/zonemap/internal/zones"
)

// Default task intervals.
const (
	DefaultRefreshInterval = 100 * time.Millisecond
	DefaultRedrawInterval  = 25 * time.Millisecond
)

// Frame is one rendered PNG and what it was drawn from.
type Frame struct {
	PNG        []byte
	Stats      render.FrameStats
	Version    uint64
	Size       projection.Size
	SnapshotID string
	RenderedAt time.Time
}

// Options configures a Map. Zero values select defaults.
type Options struct {
	RefreshInterval time.Duration
	RedrawInterval  time.Duration
	// Metrics, when set, receives frame and cache observations.
	Metrics *monitoring.Metrics
	// Cache, when set, has its stats reported after every refresh.
	Cache *zones.CachedSource
}

// Map ties a viewport, an orchestrator and a renderer together.
type Map struct {
	vp       *viewport.Viewport
	orch     *chunk.Orchestrator
	renderer *render.Renderer
	opts     Options

	frame atomic.Pointer[Frame]

	mu        sync.Mutex
	requested uint64 // viewport version of the newest started cycle
	started   bool
	failed    bool

	cycles sync.WaitGroup
}

// New creates a map.
func New(vp *viewport.Viewport, orch *chunk.Orchestrator, renderer *render.Renderer, opts Options) *Map {
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = DefaultRefreshInterval
	}
	if opts.RedrawInterval <= 0 {
		opts.RedrawInterval = DefaultRedrawInterval
	}
	return &Map{vp: vp, orch: orch, renderer: renderer, opts: opts}
}

// Viewport returns the map's viewport.
func (m *Map) Viewport() *viewport.Viewport {
	return m.vp
}

// Orchestrator returns the map's refresh orchestrator.
func (m *Map) Orchestrator() *chunk.Orchestrator {
	return m.orch
}

// Snapshot returns the live snapshot, or nil before the first commit.
func (m *Map) Snapshot() *chunk.Snapshot {
	return m.orch.Slot().Load()
}

// Frame returns the most recent frame, or nil before the first redraw.
func (m *Map) Frame() *Frame {
	return m.frame.Load()
}

// Refresh runs one refresh cycle for the current viewport state and waits for
// it. A superseded cycle is not an error.
func (m *Map) Refresh(ctx context.Context) error {
	st := m.vp.State()
	m.begin(st.Version)
	return m.cycle(ctx, st)
}

// Redraw renders the live snapshot at the current bounds and stores the
// frame.
func (m *Map) Redraw() (*Frame, error) {
	start := time.Now()
	st := m.vp.State()
	snap := m.Snapshot()

	raster, err := render.NewRaster(int(st.Size.Width), int(st.Size.Height))
	if err != nil {
		return nil, err
	}
	stats, err := m.renderer.Draw(raster, snap.Zones(), st.Bounds)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := raster.EncodePNG(&buf); err != nil {
		return nil, err
	}

	f := &Frame{
		PNG:        buf.Bytes(),
		Stats:      stats,
		Version:    st.Version,
		Size:       st.Size,
		RenderedAt: time.Now(),
	}
	if snap != nil {
		f.SnapshotID = snap.ID
	}
	m.frame.Store(f)
	if m.opts.Metrics != nil {
		m.opts.Metrics.ObserveFrame(stats, time.Since(start))
	}
	return f, nil
}

// Run starts the refresh and redraw tasks and blocks until ctx is cancelled.
// Refresh cycles run in the background so input is never blocked on the zone
// service; Run waits for outstanding cycles before returning.
func (m *Map) Run(ctx context.Context) error {
	log := zap.L().With(zap.String("component", "mapview"))
	log.Info("mapview: starting",
		zap.Duration("refresh_interval", m.opts.RefreshInterval),
		zap.Duration("redraw_interval", m.opts.RedrawInterval),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		m.refreshLoop(ctx)
		return nil
	})
	g.Go(func() error {
		m.redrawLoop(ctx, log)
		return nil
	})
	err := g.Wait()
	m.cycles.Wait()
	log.Info("mapview: stopped")
	return err
}

func (m *Map) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(m.opts.RefreshInterval)
	defer ticker.Stop()

	m.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

// tick starts a cycle when the viewport moved since the newest started cycle
// or that cycle failed.
func (m *Map) tick(ctx context.Context) {
	st := m.vp.State()
	if !m.due(st.Version) {
		return
	}
	m.begin(st.Version)
	m.cycles.Add(1)
	go func() {
		defer m.cycles.Done()
		_ = m.cycle(ctx, st)
	}()
}

func (m *Map) redrawLoop(ctx context.Context, log *zap.Logger) {
	ticker := time.NewTicker(m.opts.RedrawInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !m.stale() {
				continue
			}
			if _, err := m.Redraw(); err != nil {
				log.Warn("mapview: redraw failed", zap.Error(err))
			}
		}
	}
}

// stale reports whether the stored frame no longer matches the viewport or
// the live snapshot.
func (m *Map) stale() bool {
	f := m.frame.Load()
	if f == nil {
		return true
	}
	st := m.vp.State()
	id := ""
	if snap := m.Snapshot(); snap != nil {
		id = snap.ID
	}
	return f.Version != st.Version || f.Size != st.Size || f.SnapshotID != id
}

func (m *Map) due(version uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.started || m.failed || version != m.requested
}

func (m *Map) begin(version uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = true
	m.failed = false
	m.requested = version
}

// cycle runs one orchestrator refresh. Only a failure of the newest cycle
// marks the map for retry.
func (m *Map) cycle(ctx context.Context, st viewport.State) error {
	_, err := m.orch.Refresh(ctx, st.Bounds, st.Year)
	if m.opts.Cache != nil && m.opts.Metrics != nil {
		m.opts.Metrics.ObserveCache(m.opts.Cache.Stats())
	}
	switch {
	case err == nil:
		return nil
	case errors.Is(err, chunk.ErrSuperseded):
		return nil
	case ctx.Err() != nil:
		return eris.Wrap(err, "mapview: refresh")
	}

	m.mu.Lock()
	if m.requested == st.Version {
		m.failed = true
	}
	m.mu.Unlock()
	zap.L().Warn("mapview: refresh failed", zap.Uint64("version", st.Version), zap.Error(err))
	return eris.Wrap(err, "mapview: refresh")
}
