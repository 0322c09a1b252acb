// Package projection converts between geographic coordinates, the spherical
// Mercator plane, bounds-normalized [0,1] coordinates and surface pixels.
package projection

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
)

// MaxLatitude is the latitude limit applied before Mercator projection.
const MaxLatitude = 85.0

// earthRadius is the mean Earth radius in meters.
const earthRadius = 6371e3

var (
	// ErrDegenerateBounds is returned for bounds with a zero latitude or longitude span.
	ErrDegenerateBounds = eris.New("projection: degenerate bounds")
	// ErrNonFinite is returned when a coordinate is NaN or infinite.
	ErrNonFinite = eris.New("projection: non-finite coordinate")
	// ErrInvertedBounds is returned when the top-left corner lies south or east of the bottom-right corner.
	ErrInvertedBounds = eris.New("projection: inverted bounds")
)

// GeoPoint is a WGS 84 latitude/longitude pair in degrees.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Finite reports whether both coordinates are finite numbers.
func (p GeoPoint) Finite() bool {
	return isFinite(p.Lat) && isFinite(p.Lon)
}

// Bounds is a geographic rectangle given by its north-west and south-east corners.
type Bounds struct {
	TopLeft     GeoPoint `json:"top_left"`
	BottomRight GeoPoint `json:"bottom_right"`
}

// Validate checks the bounds invariants: finite corners, north above south,
// west left of east and a non-zero span on both axes. Longitudes are kept
// unwrapped, so a view across the antimeridian has BottomRight.Lon > 180.
func (b Bounds) Validate() error {
	if !b.TopLeft.Finite() || !b.BottomRight.Finite() {
		return ErrNonFinite
	}
	if b.TopLeft.Lat < b.BottomRight.Lat || b.TopLeft.Lon > b.BottomRight.Lon {
		return ErrInvertedBounds
	}
	if b.LatSpan() == 0 || b.LonSpan() == 0 {
		return ErrDegenerateBounds
	}
	return nil
}

// Center returns the arithmetic center of the bounds.
func (b Bounds) Center() GeoPoint {
	return GeoPoint{
		Lat: (b.TopLeft.Lat + b.BottomRight.Lat) / 2,
		Lon: (b.TopLeft.Lon + b.BottomRight.Lon) / 2,
	}
}

// LatSpan returns the latitude extent in degrees.
func (b Bounds) LatSpan() float64 {
	return math.Abs(b.TopLeft.Lat - b.BottomRight.Lat)
}

// LonSpan returns the longitude extent in degrees.
func (b Bounds) LonSpan() float64 {
	return math.Abs(b.BottomRight.Lon - b.TopLeft.Lon)
}

// Translate shifts both corners by the given deltas.
func (b Bounds) Translate(dLat, dLon float64) Bounds {
	return Bounds{
		TopLeft:     GeoPoint{Lat: b.TopLeft.Lat + dLat, Lon: b.TopLeft.Lon + dLon},
		BottomRight: GeoPoint{Lat: b.BottomRight.Lat + dLat, Lon: b.BottomRight.Lon + dLon},
	}
}

// Intersects reports whether two bounds overlap, edges included.
func (b Bounds) Intersects(o Bounds) bool {
	return b.BottomRight.Lat <= o.TopLeft.Lat && o.BottomRight.Lat <= b.TopLeft.Lat &&
		b.TopLeft.Lon <= o.BottomRight.Lon && o.TopLeft.Lon <= b.BottomRight.Lon
}

// ZoomLevel derives an integer zoom level from the latitude span:
// floor(log2(360 / span)).
func (b Bounds) ZoomLevel() int {
	span := b.LatSpan()
	if span == 0 {
		return 0
	}
	return int(math.Floor(math.Log2(360 / span)))
}

// Size is the pixel size of a rendering surface.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// AspectRatio returns width / height.
func (s Size) AspectRatio() float64 {
	return s.Width / s.Height
}

// Valid reports whether both dimensions are finite and positive.
func (s Size) Valid() bool {
	return isFinite(s.Width) && isFinite(s.Height) && s.Width > 0 && s.Height > 0
}

// ClampLat limits a latitude to ±MaxLatitude.
func ClampLat(lat float64) float64 {
	return math.Max(-MaxLatitude, math.Min(MaxLatitude, lat))
}

// ToMercator projects a geographic point onto the Mercator plane:
// x = lon·π/180, y = ln(tan((90+lat)·π/360)).
func ToMercator(p GeoPoint) orb.Point {
	x := p.Lon * math.Pi / 180
	y := math.Log(math.Tan((90 + ClampLat(p.Lat)) * math.Pi / 360))
	return orb.Point{x, y}
}

// ToMercatorRing projects every point of a ring.
func ToMercatorRing(ring []GeoPoint) orb.Ring {
	out := make(orb.Ring, len(ring))
	for i, p := range ring {
		out[i] = ToMercator(p)
	}
	return out
}

// FromMercator is the exact inverse of ToMercator for latitudes inside ±MaxLatitude.
func FromMercator(m orb.Point) GeoPoint {
	return GeoPoint{
		Lat: math.Atan(math.Exp(m[1]))*360/math.Pi - 90,
		Lon: m[0] * 180 / math.Pi,
	}
}

// MercatorToNormalized maps a Mercator point into the [0,1] square spanned by
// the projected bounds corners. Zero-span bounds are a caller error.
func MercatorToNormalized(b Bounds, m orb.Point) orb.Point {
	tl := ToMercator(b.TopLeft)
	br := ToMercator(b.BottomRight)
	return orb.Point{
		(m[0] - tl[0]) / (br[0] - tl[0]),
		(m[1] - tl[1]) / (br[1] - tl[1]),
	}
}

// NormalizedToMercator is the inverse of MercatorToNormalized.
func NormalizedToMercator(b Bounds, n orb.Point) orb.Point {
	tl := ToMercator(b.TopLeft)
	br := ToMercator(b.BottomRight)
	return orb.Point{
		tl[0] + (br[0]-tl[0])*n[0],
		tl[1] + (br[1]-tl[1])*n[1],
	}
}

// NormalizedToPixels scales a normalized point to surface pixels.
func NormalizedToPixels(n orb.Point, s Size) orb.Point {
	return orb.Point{n[0] * s.Width, n[1] * s.Height}
}

// GeoToPixel runs the full forward chain for a single point.
func GeoToPixel(p GeoPoint, b Bounds, s Size) orb.Point {
	return NormalizedToPixels(MercatorToNormalized(b, ToMercator(p)), s)
}

// GeoRingToPixels runs the forward chain over a ring. The corner projections
// are computed once for the whole ring.
func GeoRingToPixels(ring []GeoPoint, b Bounds, s Size) orb.Ring {
	tl := ToMercator(b.TopLeft)
	br := ToMercator(b.BottomRight)
	sx := s.Width / (br[0] - tl[0])
	sy := s.Height / (br[1] - tl[1])

	out := make(orb.Ring, len(ring))
	for i, p := range ring {
		m := ToMercator(p)
		out[i] = orb.Point{(m[0] - tl[0]) * sx, (m[1] - tl[1]) * sy}
	}
	return out
}

// PixelToGeo is the exact inverse of GeoToPixel: pixel → normalized →
// Mercator → geographic.
func PixelToGeo(px orb.Point, s Size, b Bounds) GeoPoint {
	n := orb.Point{px[0] / s.Width, px[1] / s.Height}
	return FromMercator(NormalizedToMercator(b, n))
}

// PixelDeltaToGeoDelta converts a pixel offset into a latitude/longitude delta
// measured at the surface center. The conversion is linearised around the
// center, so it drifts at extreme latitudes.
func PixelDeltaToGeoDelta(dx, dy float64, s Size, b Bounds) (dLat, dLon float64) {
	center := orb.Point{s.Width / 2, s.Height / 2}
	from := PixelToGeo(center, s, b)
	to := PixelToGeo(orb.Point{center[0] + dx, center[1] + dy}, s, b)
	return to.Lat - from.Lat, to.Lon - from.Lon
}

// MercatorLatSpan returns the height of the bounds on the Mercator plane.
func MercatorLatSpan(b Bounds) float64 {
	return math.Abs(ToMercator(b.TopLeft)[1] - ToMercator(b.BottomRight)[1])
}

// Distance returns the great-circle distance between two points in meters.
func Distance(a, b GeoPoint) float64 {
	phi1 := a.Lat * math.Pi / 180
	phi2 := b.Lat * math.Pi / 180
	dPhi := (b.Lat - a.Lat) * math.Pi / 180
	dLambda := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return earthRadius * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
