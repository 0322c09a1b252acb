// Package viewport owns the visible geographic bounds and applies pan, zoom and
// resize input to them.
package viewport

import (
	"math"
	"sync"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/zonemap/internal/projection"
)

// Year limits accepted by SetYear.
const (
	MinYear = 1900
	MaxYear = 2100
)

var (
	// ErrInvalidBounds is returned when an operation would produce unusable
	// bounds. The previous bounds are kept.
	ErrInvalidBounds = eris.New("viewport: invalid bounds")
	// ErrInvalidSize is returned for a non-positive or non-finite surface size.
	ErrInvalidSize = eris.New("viewport: invalid surface size")
	// ErrInvalidYear is returned for a year outside [MinYear, MaxYear].
	ErrInvalidYear = eris.New("viewport: invalid year")
	// ErrInvalidConfig is returned by New for unusable zoom settings.
	ErrInvalidConfig = eris.New("viewport: invalid config")
	// ErrInvalidPointer is returned for a non-finite pointer position.
	ErrInvalidPointer = eris.New("viewport: invalid pointer position")
)

// Mode is the interaction state.
type Mode int

const (
	// Idle means no drag is in progress.
	Idle Mode = iota
	// Dragging means a pointer is down and moves pan the map.
	Dragging
)

func (m Mode) String() string {
	if m == Dragging {
		return "dragging"
	}
	return "idle"
}

// Config holds zoom limits and wheel factors.
type Config struct {
	MinSpan float64 // minimum latitude span in degrees
	MaxSpan float64 // maximum latitude span in degrees
	ZoomIn  float64 // span multiplier for wheel up, < 1
	ZoomOut float64 // span multiplier for wheel down, > 1
}

// DefaultConfig returns the stock zoom settings.
func DefaultConfig() Config {
	return Config{MinSpan: 0.01, MaxSpan: 170, ZoomIn: 0.9, ZoomOut: 1.1}
}

func (c Config) validate() error {
	switch {
	case !(c.MinSpan > 0) || c.MaxSpan < c.MinSpan || c.MaxSpan > 2*projection.MaxLatitude:
		return eris.Wrapf(ErrInvalidConfig, "span range [%g, %g]", c.MinSpan, c.MaxSpan)
	case !(c.ZoomIn > 0 && c.ZoomIn < 1):
		return eris.Wrapf(ErrInvalidConfig, "zoom in factor %g", c.ZoomIn)
	case !(c.ZoomOut > 1) || math.IsInf(c.ZoomOut, 0):
		return eris.Wrapf(ErrInvalidConfig, "zoom out factor %g", c.ZoomOut)
	}
	return nil
}

// State is a read-only copy of the viewport.
type State struct {
	Bounds         projection.Bounds `json:"bounds"`
	Size           projection.Size   `json:"size"`
	Year           int               `json:"year"`
	Dragging       bool              `json:"dragging"`
	LastPointer    orb.Point         `json:"last_pointer"`
	MetersPerPixel float64           `json:"meters_per_pixel"`
	ZoomLevel      int               `json:"zoom_level"`
	Version        uint64            `json:"version"`
}

// Viewport tracks the visible bounds, the surface size, the active year and
// the drag state. It is safe for concurrent use: input handlers write, the
// refresh and redraw tasks read.
type Viewport struct {
	mu      sync.RWMutex
	cfg     Config
	bounds  projection.Bounds
	size    projection.Size
	year    int
	mode    Mode
	last    orb.Point
	version uint64
}

// New creates a viewport centred on the given bounds. The longitude span is
// refitted to the surface aspect ratio, keeping the centre and latitude span.
func New(cfg Config, bounds projection.Bounds, size projection.Size, year int) (*Viewport, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if !size.Valid() {
		return nil, eris.Wrapf(ErrInvalidSize, "%gx%g", size.Width, size.Height)
	}
	if year < MinYear || year > MaxYear {
		return nil, eris.Wrapf(ErrInvalidYear, "%d", year)
	}
	if err := bounds.Validate(); err != nil {
		return nil, eris.Wrap(ErrInvalidBounds, err.Error())
	}

	v := &Viewport{cfg: cfg, size: size, year: year}
	span := clamp(bounds.LatSpan(), cfg.MinSpan, cfg.MaxSpan)
	fitted, err := fit(bounds.Center(), span, size)
	if err != nil {
		return nil, err
	}
	v.bounds = fitted
	return v, nil
}

// Bounds returns the current visible bounds.
func (v *Viewport) Bounds() projection.Bounds {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.bounds
}

// Size returns the current surface size.
func (v *Viewport) Size() projection.Size {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.size
}

// Year returns the active data year.
func (v *Viewport) Year() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.year
}

// Mode returns the interaction state.
func (v *Viewport) Mode() Mode {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.mode
}

// Version increases every time the bounds or the year change.
func (v *Viewport) Version() uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.version
}

// Center returns the centre of the current bounds.
func (v *Viewport) Center() projection.GeoPoint {
	return v.Bounds().Center()
}

// LatSpan returns the latitude extent of the view.
func (v *Viewport) LatSpan() float64 {
	return v.Bounds().LatSpan()
}

// LonSpan returns the longitude extent of the view.
func (v *Viewport) LonSpan() float64 {
	return v.Bounds().LonSpan()
}

// ZoomLevel returns floor(log2(360/latSpan)).
func (v *Viewport) ZoomLevel() int {
	return v.Bounds().ZoomLevel()
}

// MetersPerPixel returns the great-circle width of the centre row divided by
// the surface width.
func (v *Viewport) MetersPerPixel() float64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return metersPerPixel(v.bounds, v.size)
}

// State returns a consistent copy of the whole viewport.
func (v *Viewport) State() State {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return State{
		Bounds:         v.bounds,
		Size:           v.size,
		Year:           v.year,
		Dragging:       v.mode == Dragging,
		LastPointer:    v.last,
		MetersPerPixel: metersPerPixel(v.bounds, v.size),
		ZoomLevel:      v.bounds.ZoomLevel(),
		Version:        v.version,
	}
}

// SetYear changes the active data year.
func (v *Viewport) SetYear(year int) error {
	if year < MinYear || year > MaxYear {
		return eris.Wrapf(ErrInvalidYear, "%d", year)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.year != year {
		v.year = year
		v.version++
	}
	return nil
}

// PointerDown starts a drag anchored at the given surface pixel. A non-finite
// position is rejected and the drag state is left as it was.
func (v *Viewport) PointerDown(x, y float64) error {
	if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
		return eris.Wrapf(ErrInvalidPointer, "(%g, %g)", x, y)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.mode = Dragging
	v.last = orb.Point{x, y}
	return nil
}

// PointerMove pans the map while dragging. Moving the pointer right moves the
// view west, so the map follows the pointer. Outside a drag it is a no-op.
func (v *Viewport) PointerMove(x, y float64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.mode != Dragging {
		return nil
	}
	dx := -(x - v.last[0])
	dy := -(y - v.last[1])

	dLat, dLon := projection.PixelDeltaToGeoDelta(dx, dy, v.size, v.bounds)
	next := wrapLon(clampLat(v.bounds.Translate(dLat, dLon)))
	if err := v.commit(next); err != nil {
		return err
	}
	v.last = orb.Point{x, y}
	return nil
}

// PointerUp ends a drag.
func (v *Viewport) PointerUp() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.mode = Idle
}

// PointerLeave ends a drag when the pointer leaves the surface.
func (v *Viewport) PointerLeave() {
	v.PointerUp()
}

// Wheel zooms around the view centre. A negative deltaY zooms in, a positive
// one zooms out, zero does nothing. The latitude span is clamped to the
// configured range and the longitude span follows from the Mercator height of
// the new latitude span and the surface aspect ratio.
func (v *Viewport) Wheel(deltaY float64) error {
	if deltaY == 0 || math.IsNaN(deltaY) {
		return nil
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	factor := v.cfg.ZoomOut
	if deltaY < 0 {
		factor = v.cfg.ZoomIn
	}
	span := clamp(v.bounds.LatSpan()*factor, v.cfg.MinSpan, v.cfg.MaxSpan)
	next, err := fit(v.bounds.Center(), span, v.size)
	if err != nil {
		return err
	}
	return v.commit(next)
}

// Resize changes the surface size and refits the longitude span, keeping the
// centre and latitude span.
func (v *Viewport) Resize(size projection.Size) error {
	if !size.Valid() {
		return eris.Wrapf(ErrInvalidSize, "%gx%g", size.Width, size.Height)
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	next, err := fit(v.bounds.Center(), v.bounds.LatSpan(), size)
	if err != nil {
		return err
	}
	if err := v.commit(next); err != nil {
		return err
	}
	v.size = size
	return nil
}

// commit stores next if it is valid. Callers hold the write lock.
func (v *Viewport) commit(next projection.Bounds) error {
	if err := next.Validate(); err != nil {
		zap.L().Debug("viewport: rejected bounds",
			zap.Float64("top", next.TopLeft.Lat),
			zap.Float64("left", next.TopLeft.Lon),
			zap.Float64("bottom", next.BottomRight.Lat),
			zap.Float64("right", next.BottomRight.Lon),
			zap.Error(err),
		)
		return eris.Wrap(ErrInvalidBounds, err.Error())
	}
	if next != v.bounds {
		v.bounds = next
		v.version++
	}
	return nil
}

// fit builds bounds around center with the given latitude span and a
// longitude span matching the surface aspect ratio on the Mercator plane.
func fit(center projection.GeoPoint, latSpan float64, size projection.Size) (projection.Bounds, error) {
	b := clampLat(projection.Bounds{
		TopLeft:     projection.GeoPoint{Lat: center.Lat + latSpan/2, Lon: center.Lon},
		BottomRight: projection.GeoPoint{Lat: center.Lat - latSpan/2, Lon: center.Lon},
	})
	lonSpan := projection.MercatorLatSpan(b) * size.AspectRatio() * 180 / math.Pi
	if !(lonSpan > 0) || math.IsInf(lonSpan, 0) {
		return projection.Bounds{}, eris.Wrapf(ErrInvalidBounds, "longitude span %g", lonSpan)
	}
	b.TopLeft.Lon = center.Lon - lonSpan/2
	b.BottomRight.Lon = center.Lon + lonSpan/2
	return b, nil
}

// clampLat keeps both latitudes inside ±MaxLatitude. When one corner crosses
// the limit the whole box is shifted back so the span is preserved; only a
// span wider than the legal range is compressed.
func clampLat(b projection.Bounds) projection.Bounds {
	if over := b.TopLeft.Lat - projection.MaxLatitude; over > 0 {
		b = b.Translate(-over, 0)
	}
	if under := -projection.MaxLatitude - b.BottomRight.Lat; under > 0 {
		b = b.Translate(under, 0)
	}
	b.TopLeft.Lat = projection.ClampLat(b.TopLeft.Lat)
	b.BottomRight.Lat = projection.ClampLat(b.BottomRight.Lat)
	return b
}

// wrapLon moves both corners by 360° when the centre longitude leaves
// [-180, 180].
func wrapLon(b projection.Bounds) projection.Bounds {
	c := b.Center().Lon
	if (c >= -180 && c <= 180) || math.IsNaN(c) || math.IsInf(c, 0) {
		return b
	}
	turns := math.Floor((c + 180) / 360)
	return b.Translate(0, -360*turns)
}

func metersPerPixel(b projection.Bounds, s projection.Size) float64 {
	if !s.Valid() {
		return 0
	}
	lat := b.Center().Lat
	west := projection.GeoPoint{Lat: lat, Lon: b.TopLeft.Lon}
	east := projection.GeoPoint{Lat: lat, Lon: b.BottomRight.Lon}
	return projection.Distance(west, east) / s.Width
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
