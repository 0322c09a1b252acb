package render

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/zonemap/internal/geometry"
	"github.com/sells-group/zonemap/internal/projection"
	"github.com/sells-group/zonemap/internal/zones"
)

// ErrInvalidSurface is returned when the surface has no drawable area.
var ErrInvalidSurface = eris.New("render: invalid surface size")

// Polygon is one zone ring in pixel space.
type Polygon struct {
	Ring      orb.Ring
	Color     zones.RGB
	Intensity float64
	Name      string
	Area      float64 // square pixels; Project orients rings so it is never negative
	Centroid  orb.Point
}

// FrameStats summarizes one Draw call.
type FrameStats struct {
	Zones     int `json:"zones"`
	Polygons  int `json:"polygons"`
	Skipped   int `json:"skipped"`
	Contested int `json:"contested_edges"`
	Labels    int `json:"labels"`
}

// Renderer draws zones with a fixed style.
type Renderer struct {
	style Style
}

// NewRenderer returns a renderer using style.
func NewRenderer(style Style) *Renderer {
	return &Renderer{style: style}
}

// Style returns the renderer's style.
func (r *Renderer) Style() Style {
	return r.style
}

// Project converts every ring of zs into pixel space for bounds and size.
// Each ring is first moved by whole turns of longitude to the copy nearest the
// view centre, so geometry stays visible in views that cross the
// antimeridian. Rings that are degenerate or not finite after projection are
// counted in skipped and left out. Pixel rings are oriented to a positive
// signed area.
func Project(zs []zones.Zone, b projection.Bounds, size projection.Size) (polys []Polygon, skipped int) {
	centerLon := b.Center().Lon
	for _, z := range zs {
		for _, ring := range z.Rings {
			px := projection.GeoRingToPixels(nearestCopy(ring, centerLon), b, size)
			if !geometry.Finite(px) || geometry.Degenerate(px) {
				skipped++
				continue
			}
			if geometry.SignedArea(px) < 0 {
				px.Reverse()
			}
			polys = append(polys, Polygon{
				Ring:      px,
				Color:     z.Color,
				Intensity: z.Intensity,
				Name:      z.Name,
				Area:      geometry.SignedArea(px),
				Centroid:  geometry.Centroid(px),
			})
		}
	}
	return polys, skipped
}

// nearestCopy shifts ring by the multiple of 360° that brings the middle of
// its longitude range closest to centerLon. The ring is returned as is when
// no shift is needed.
func nearestCopy(ring []projection.GeoPoint, centerLon float64) []projection.GeoPoint {
	if len(ring) == 0 {
		return ring
	}
	lo, hi := ring[0].Lon, ring[0].Lon
	for _, p := range ring[1:] {
		lo = math.Min(lo, p.Lon)
		hi = math.Max(hi, p.Lon)
	}
	turns := math.Round((centerLon - (lo+hi)/2) / 360)
	if turns == 0 || math.IsNaN(turns) {
		return ring
	}
	shift := turns * 360
	out := make([]projection.GeoPoint, len(ring))
	for i, p := range ring {
		out[i] = projection.GeoPoint{Lat: p.Lat, Lon: p.Lon + shift}
	}
	return out
}

// Draw paints zs onto s for the visible bounds b. Layers are painted back to
// front: background, fills, glow, dashed marks on contested edges, solid
// borders, labels.
func (r *Renderer) Draw(s Surface, zs []zones.Zone, b projection.Bounds) (FrameStats, error) {
	size := s.Size()
	if !size.Valid() {
		return FrameStats{}, ErrInvalidSurface
	}
	if err := b.Validate(); err != nil {
		return FrameStats{}, eris.Wrap(err, "render: draw")
	}
	st := r.style

	polys, skipped := Project(zs, b, size)
	stats := FrameStats{Zones: len(zs), Polygons: len(polys), Skipped: skipped}

	s.Clear(st.Background)

	for _, p := range polys {
		s.FillPolygon(p.Ring, FromRGB(p.Color, p.Intensity*st.FillAlphaFactor))
	}

	for _, p := range polys {
		s.StrokePath(p.Ring, true, Stroke{
			Color: FromRGB(p.Color, st.GlowAlpha),
			Width: st.GlowWidth,
			Cap:   CapRound,
			Join:  JoinRound,
			Blur:  st.GlowBlur,
		})
	}

	rings := make([]orb.Ring, len(polys))
	for i, p := range polys {
		rings[i] = p.Ring
	}
	contested := geometry.NewEdgeIndex(rings).Contested(st.OverlapThreshold)
	for _, e := range contested {
		s.StrokePath([]orb.Point{e.A, e.B}, false, Stroke{
			Color: st.OverlapColor,
			Width: st.OverlapWidth,
			Cap:   CapButt,
			Join:  JoinMiter,
			Dash:  st.OverlapDash,
		})
	}
	stats.Contested = len(contested)

	for _, p := range polys {
		s.StrokePath(p.Ring, true, Stroke{
			Color: st.BorderColor,
			Width: st.BorderWidth,
			Cap:   CapRound,
			Join:  JoinRound,
		})
	}

	labels := PlaceLabels(polys, size, st.LabelRadius, st.LabelMargin)
	text := Text{
		Size:         st.LabelSize,
		Fill:         st.LabelFill,
		Outline:      st.LabelOutline,
		OutlineWidth: st.LabelOutlineWidth,
	}
	for _, l := range labels {
		s.DrawText(l.Text, l.At, text)
	}
	stats.Labels = len(labels)

	zap.L().Debug("render: frame drawn",
		zap.Int("zones", stats.Zones),
		zap.Int("polygons", stats.Polygons),
		zap.Int("skipped", stats.Skipped),
		zap.Int("contested", stats.Contested),
		zap.Int("labels", stats.Labels),
	)
	return stats, nil
}
