package chunk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/zonemap/internal/projection"
	"github.com/sells-group/zonemap/internal/zones"
)

var view = projection.Bounds{
	TopLeft:     projection.GeoPoint{Lat: 51, Lon: 14},
	BottomRight: projection.GeoPoint{Lat: 48, Lon: 17},
}

// cellZone returns a zone named after the request box.
func cellZone(year int, tl, br projection.GeoPoint) zones.Zone {
	return zones.Zone{
		Name: fmt.Sprintf("%.3f,%.3f", tl.Lat, tl.Lon),
		Year: year,
		Rings: [][]projection.GeoPoint{{
			tl, {Lat: tl.Lat, Lon: br.Lon}, br, {Lat: br.Lat, Lon: tl.Lon}, tl,
		}},
	}
}

func TestCells_Grid(t *testing.T) {
	cells := Cells(view, 3)
	require.Len(t, cells, 9)

	assert.Equal(t, view.TopLeft, cells[0].Bounds.TopLeft)
	assert.Equal(t, view.BottomRight, cells[8].Bounds.BottomRight)

	for i, c := range cells {
		assert.Equal(t, i/3, c.Row)
		assert.Equal(t, i%3, c.Col)
		require.NoError(t, c.Bounds.Validate())
		assert.InDelta(t, 1, c.Bounds.LatSpan(), 1e-9)
		assert.InDelta(t, 1, c.Bounds.LonSpan(), 1e-9)
	}

	// Neighbours share edges exactly.
	assert.Equal(t, cells[0].Bounds.BottomRight.Lon, cells[1].Bounds.TopLeft.Lon)
	assert.Equal(t, cells[0].Bounds.BottomRight.Lat, cells[3].Bounds.TopLeft.Lat)
	// Row 0 is the northernmost.
	assert.Greater(t, cells[0].Bounds.TopLeft.Lat, cells[3].Bounds.TopLeft.Lat)
}

func TestCells_Single(t *testing.T) {
	cells := Cells(view, 1)
	require.Len(t, cells, 1)
	assert.Equal(t, view, cells[0].Bounds)

	assert.Len(t, Cells(view, 0), 1)
}

func TestRequestParts(t *testing.T) {
	tests := []struct {
		name  string
		cell  projection.Bounds
		parts []requestPart
	}{
		{
			name:  "inside",
			cell:  view,
			parts: []requestPart{{Bounds: view, Shift: 0}},
		},
		{
			name: "straddles east seam",
			cell: projection.Bounds{
				TopLeft:     projection.GeoPoint{Lat: 89, Lon: 170},
				BottomRight: projection.GeoPoint{Lat: 80, Lon: 190},
			},
			parts: []requestPart{
				{Bounds: projection.Bounds{
					TopLeft:     projection.GeoPoint{Lat: projection.MaxLatitude, Lon: 170},
					BottomRight: projection.GeoPoint{Lat: 80, Lon: 180},
				}},
				{Bounds: projection.Bounds{
					TopLeft:     projection.GeoPoint{Lat: projection.MaxLatitude, Lon: -180},
					BottomRight: projection.GeoPoint{Lat: 80, Lon: -170},
				}, Shift: 360},
			},
		},
		{
			name: "wholly past east seam",
			cell: projection.Bounds{
				TopLeft:     projection.GeoPoint{Lat: 10, Lon: 185},
				BottomRight: projection.GeoPoint{Lat: 0, Lon: 200},
			},
			parts: []requestPart{
				{Bounds: projection.Bounds{
					TopLeft:     projection.GeoPoint{Lat: 10, Lon: -175},
					BottomRight: projection.GeoPoint{Lat: 0, Lon: -160},
				}, Shift: 360},
			},
		},
		{
			name: "straddles west seam",
			cell: projection.Bounds{
				TopLeft:     projection.GeoPoint{Lat: 10, Lon: -190},
				BottomRight: projection.GeoPoint{Lat: 0, Lon: -170},
			},
			parts: []requestPart{
				{Bounds: projection.Bounds{
					TopLeft:     projection.GeoPoint{Lat: 10, Lon: 170},
					BottomRight: projection.GeoPoint{Lat: 0, Lon: 180},
				}, Shift: -360},
				{Bounds: projection.Bounds{
					TopLeft:     projection.GeoPoint{Lat: 10, Lon: -180},
					BottomRight: projection.GeoPoint{Lat: 0, Lon: -170},
				}},
			},
		},
		{
			name: "ends on seam",
			cell: projection.Bounds{
				TopLeft:     projection.GeoPoint{Lat: 10, Lon: 170},
				BottomRight: projection.GeoPoint{Lat: 0, Lon: 180},
			},
			parts: []requestPart{
				{Bounds: projection.Bounds{
					TopLeft:     projection.GeoPoint{Lat: 10, Lon: 170},
					BottomRight: projection.GeoPoint{Lat: 0, Lon: 180},
				}},
			},
		},
		{
			name: "beyond mercator limit",
			cell: projection.Bounds{
				TopLeft:     projection.GeoPoint{Lat: 89, Lon: 0},
				BottomRight: projection.GeoPoint{Lat: 87, Lon: 10},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.parts, requestParts(tt.cell))
		})
	}
}

func TestShiftZones(t *testing.T) {
	z := cellZone(2024, projection.GeoPoint{Lat: 10, Lon: -179}, projection.GeoPoint{Lat: 5, Lon: -175})

	moved := shiftZones([]zones.Zone{z}, 360)
	require.Len(t, moved, 1)
	assert.Equal(t, 181.0, moved[0].Rings[0][0].Lon)
	assert.Equal(t, 10.0, moved[0].Rings[0][0].Lat)
	assert.Equal(t, -179.0, z.Rings[0][0].Lon, "input is not modified")
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("single")
	require.NoError(t, err)
	assert.Equal(t, Single, p)

	p, err = ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, Grid, p)

	_, err = ParsePolicy("quadtree")
	assert.Error(t, err)
}

func TestRefresh_PartialFailure(t *testing.T) {
	failing := Cells(view, 3)[4].Bounds.TopLeft
	src := zones.SourceFunc(func(_ context.Context, year int, tl, br projection.GeoPoint) ([]zones.Zone, error) {
		if tl == failing {
			return nil, errors.New("service unavailable")
		}
		return []zones.Zone{cellZone(year, tl, br)}, nil
	})

	o := NewOrchestrator(src, Config{Policy: Grid, GridSize: 3}, nil, nil)
	snap, err := o.Refresh(context.Background(), view, 2024)
	require.NoError(t, err)

	assert.Len(t, snap.Chunks, 8)
	assert.Equal(t, 1, snap.Failed)
	assert.Equal(t, 8, snap.ZoneCount())
	for _, z := range snap.Zones() {
		assert.NotEqual(t, fmt.Sprintf("%.3f,%.3f", failing.Lat, failing.Lon), z.Name)
	}
	for _, c := range snap.Chunks {
		assert.False(t, c.Row == 1 && c.Col == 1)
		assert.Equal(t, c.Bounds.ZoomLevel(), c.ZoomLevel)
		assert.Equal(t, c.Bounds.Center(), c.Center)
	}
	assert.Same(t, snap, o.Slot().Load())
	assert.NotEmpty(t, snap.ID)
}

func TestRefresh_AllCellsFailedKeepsPrevious(t *testing.T) {
	var fail atomic.Bool
	src := zones.SourceFunc(func(_ context.Context, year int, tl, br projection.GeoPoint) ([]zones.Zone, error) {
		if fail.Load() {
			return nil, errors.New("down")
		}
		return []zones.Zone{cellZone(year, tl, br)}, nil
	})
	o := NewOrchestrator(src, Config{Policy: Grid, GridSize: 2}, nil, nil)

	first, err := o.Refresh(context.Background(), view, 2024)
	require.NoError(t, err)

	fail.Store(true)
	_, err = o.Refresh(context.Background(), view, 2024)
	assert.ErrorIs(t, err, ErrAllCellsFailed)
	assert.Same(t, first, o.Slot().Load())
}

func TestRefresh_NewestWins(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	src := zones.SourceFunc(func(_ context.Context, year int, tl, br projection.GeoPoint) ([]zones.Zone, error) {
		if year == 2000 {
			close(started)
			<-release
		}
		return []zones.Zone{cellZone(year, tl, br)}, nil
	})
	o := NewOrchestrator(src, Config{Policy: Single}, nil, nil)

	type result struct {
		snap *Snapshot
		err  error
	}
	slow := make(chan result, 1)
	go func() {
		snap, err := o.Refresh(context.Background(), view, 2000)
		slow <- result{snap, err}
	}()

	<-started
	fresh, err := o.Refresh(context.Background(), view, 2001)
	require.NoError(t, err)
	close(release)

	stale := <-slow
	assert.ErrorIs(t, stale.err, ErrSuperseded)
	assert.Nil(t, stale.snap)
	assert.Same(t, fresh, o.Slot().Load())
	assert.Equal(t, 2001, o.Slot().Load().Year)
}

func TestRefresh_SinglePolicy(t *testing.T) {
	var calls atomic.Int32
	src := zones.SourceFunc(func(_ context.Context, _ int, tl, br projection.GeoPoint) ([]zones.Zone, error) {
		calls.Add(1)
		assert.Equal(t, view.TopLeft, tl)
		assert.Equal(t, view.BottomRight, br)
		return nil, nil
	})
	o := NewOrchestrator(src, Config{Policy: Single}, nil, nil)
	snap, err := o.Refresh(context.Background(), view, 2024)
	require.NoError(t, err)
	assert.Len(t, snap.Chunks, 1)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRefresh_BoundedConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	src := zones.SourceFunc(func(context.Context, int, projection.GeoPoint, projection.GeoPoint) ([]zones.Zone, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return nil, nil
	})
	o := NewOrchestrator(src, Config{Policy: Grid, GridSize: 3, MaxConcurrency: 2}, nil, nil)
	_, err := o.Refresh(context.Background(), view, 2024)
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestRefresh_InvalidBounds(t *testing.T) {
	o := NewOrchestrator(zones.NewStaticSource(), Config{}, nil, nil)
	_, err := o.Refresh(context.Background(), projection.Bounds{}, 2024)
	assert.ErrorIs(t, err, projection.ErrDegenerateBounds)
}

func TestRefresh_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := zones.SourceFunc(func(ctx context.Context, _ int, _, _ projection.GeoPoint) ([]zones.Zone, error) {
		return nil, ctx.Err()
	})
	o := NewOrchestrator(src, Config{Policy: Single}, nil, nil)
	_, err := o.Refresh(ctx, view, 2024)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, o.Slot().Load())
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
	cells    int
	cellErrs int
}

func (r *recordingObserver) ObserveCycle(outcome string, _, _ int, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func (r *recordingObserver) ObserveCell(err error, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cells++
	if err != nil {
		r.cellErrs++
	}
}

func TestRefresh_Observer(t *testing.T) {
	src := zones.SourceFunc(func(_ context.Context, year int, tl, br projection.GeoPoint) ([]zones.Zone, error) {
		if tl.Lon > 15 {
			return nil, errors.New("east is down")
		}
		return []zones.Zone{cellZone(year, tl, br)}, nil
	})
	obs := &recordingObserver{}
	o := NewOrchestrator(src, Config{Policy: Grid, GridSize: 3}, nil, obs)
	_, err := o.Refresh(context.Background(), view, 2024)
	require.NoError(t, err)

	assert.Equal(t, []string{OutcomeCommitted}, obs.outcomes)
	assert.Equal(t, 9, obs.cells)
	assert.Equal(t, 3, obs.cellErrs)
}

func TestRefresh_AcrossAntimeridian(t *testing.T) {
	pacific := zones.Zone{
		Name: "pacific",
		Year: 2024,
		Rings: [][]projection.GeoPoint{{
			{Lat: 10, Lon: -179}, {Lat: 10, Lon: -175}, {Lat: 5, Lon: -175}, {Lat: 5, Lon: -179}, {Lat: 10, Lon: -179},
		}},
	}
	o := NewOrchestrator(zones.NewStaticSource(pacific), Config{Policy: Grid, GridSize: 3}, nil, nil)

	seam := projection.Bounds{
		TopLeft:     projection.GeoPoint{Lat: 15, Lon: 170},
		BottomRight: projection.GeoPoint{Lat: 0, Lon: 190},
	}
	snap, err := o.Refresh(context.Background(), seam, 2024)
	require.NoError(t, err)
	assert.Len(t, snap.Chunks, 9)

	zs := snap.Zones()
	require.Len(t, zs, 1)
	for _, p := range zs[0].Rings[0] {
		assert.GreaterOrEqual(t, p.Lon, 181.0)
		assert.LessOrEqual(t, p.Lon, 185.0)
	}
}

func TestSnapshot_DeduplicatesZones(t *testing.T) {
	shared := cellZone(2024, projection.GeoPoint{Lat: 50, Lon: 15}, projection.GeoPoint{Lat: 49, Lon: 16})
	other := cellZone(2024, projection.GeoPoint{Lat: 51, Lon: 14}, projection.GeoPoint{Lat: 50, Lon: 15})
	snap := &Snapshot{Chunks: []Chunk{
		{Zones: []zones.Zone{shared, other}},
		{Zones: []zones.Zone{shared}},
	}}
	assert.Equal(t, 2, snap.ZoneCount())

	var empty *Snapshot
	assert.Empty(t, empty.Zones())
}
