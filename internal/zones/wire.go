package zones

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"

	"github.com/sells-group/zonemap/internal/projection"
)

// CoordOrder is the position order used inside the service's GeoJSON polygons.
type CoordOrder string

// Supported position orders. The zone service stores [lat, lon] pairs even
// though GeoJSON prescribes [lon, lat].
const (
	LatLon CoordOrder = "latlon"
	LonLat CoordOrder = "lonlat"
)

// ParseCoordOrder maps a config string to a CoordOrder, defaulting to LatLon.
func ParseCoordOrder(s string) (CoordOrder, error) {
	switch CoordOrder(s) {
	case "", LatLon:
		return LatLon, nil
	case LonLat:
		return LonLat, nil
	}
	return "", eris.Errorf("zones: unknown coord order %q", s)
}

func (o CoordOrder) point(p orb.Point) projection.GeoPoint {
	if o == LonLat {
		return projection.GeoPoint{Lat: p[1], Lon: p[0]}
	}
	return projection.GeoPoint{Lat: p[0], Lon: p[1]}
}

// boundingBox is the request body of POST /areas/{year}.
type boundingBox struct {
	LeftTop     [2]float64 `json:"leftTopPointLatLon"`
	RightBottom [2]float64 `json:"rightBottomPointLatLon"`
}

func newBoundingBox(topLeft, bottomRight projection.GeoPoint) boundingBox {
	return boundingBox{
		LeftTop:     [2]float64{topLeft.Lat, topLeft.Lon},
		RightBottom: [2]float64{bottomRight.Lat, bottomRight.Lon},
	}
}

// wireZone is a zone as the service serialises it.
type wireZone struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Intensity   *float64            `json:"intensity"`
	Color       []*int              `json:"color"`
	Year        int                 `json:"year"`
	Coords      []*geojson.Geometry `json:"coords"`
}

func (w wireZone) zone(order CoordOrder) (Zone, error) {
	z := Zone{
		Name:        cleanText(w.Name),
		Description: cleanText(w.Description),
		Year:        w.Year,
		Intensity:   DefaultIntensity,
	}
	if w.Intensity != nil {
		z.Intensity = *w.Intensity
	}

	color, err := wireColor(w.Color)
	if err != nil {
		return Zone{}, eris.Wrapf(err, "zones: zone %q", z.Name)
	}
	z.Color = color

	for i, g := range w.Coords {
		if g == nil {
			return Zone{}, eris.Wrapf(ErrInvalidZone, "%q geometry %d is null", z.Name, i)
		}
		switch geom := g.Geometry().(type) {
		case orb.Polygon:
			z.Rings = appendRings(z.Rings, geom, order)
		case orb.MultiPolygon:
			for _, poly := range geom {
				z.Rings = appendRings(z.Rings, poly, order)
			}
		default:
			return Zone{}, eris.Wrapf(ErrInvalidZone, "%q geometry %d is %s", z.Name, i, g.Type)
		}
	}

	if err := z.Validate(); err != nil {
		return Zone{}, err
	}
	return z, nil
}

func appendRings(dst [][]projection.GeoPoint, poly orb.Polygon, order CoordOrder) [][]projection.GeoPoint {
	for _, ring := range poly {
		pts := make([]projection.GeoPoint, len(ring))
		for i, p := range ring {
			pts[i] = order.point(p)
		}
		dst = append(dst, pts)
	}
	return dst
}

// wireColor accepts a missing or all-null color as DefaultColor.
func wireColor(c []*int) (RGB, error) {
	if len(c) == 0 || (len(c) == 3 && c[0] == nil && c[1] == nil && c[2] == nil) {
		return DefaultColor, nil
	}
	if len(c) != 3 {
		return RGB{}, eris.Wrapf(ErrInvalidZone, "color has %d channels", len(c))
	}
	var rgb RGB
	for i, v := range c {
		if v == nil || *v < 0 || *v > 255 {
			return RGB{}, eris.Wrapf(ErrInvalidZone, "color channel %d out of range", i)
		}
		rgb[i] = uint8(*v)
	}
	return rgb, nil
}
