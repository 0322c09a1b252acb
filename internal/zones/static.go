package zones

import (
	"context"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/zonemap/internal/projection"
)

// StaticSource serves zones from an in-memory GeoJSON FeatureCollection. It
// backs offline rendering and tests.
type StaticSource struct {
	zones []Zone
	boxes []projection.Bounds
}

// LoadStatic reads a GeoJSON FeatureCollection file.
func LoadStatic(path string) (*StaticSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "zones: read fixture %s", path)
	}
	return ParseStatic(data)
}

// ParseStatic builds a StaticSource from GeoJSON. Positions are in standard
// [lon, lat] order. Each Polygon or MultiPolygon feature becomes one zone;
// feature properties name, description, intensity, color and year fill in the
// rest. Features that fail validation are skipped with a warning.
func ParseStatic(data []byte) (*StaticSource, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, eris.Wrap(err, "zones: parse fixture")
	}
	s := &StaticSource{}
	for i, f := range fc.Features {
		z, err := featureZone(f)
		if err != nil {
			zap.L().Warn("zones: skipping fixture feature", zap.Int("index", i), zap.Error(err))
			continue
		}
		s.Add(z)
	}
	return s, nil
}

// NewStaticSource builds a StaticSource from zones already in memory.
func NewStaticSource(zs ...Zone) *StaticSource {
	s := &StaticSource{}
	for _, z := range zs {
		s.Add(z)
	}
	return s
}

// Add appends a zone. Zones without points are ignored.
func (s *StaticSource) Add(z Zone) {
	box, ok := z.BBox()
	if !ok {
		return
	}
	s.zones = append(s.zones, z)
	s.boxes = append(s.boxes, box)
}

// Len returns the number of zones held.
func (s *StaticSource) Len() int {
	return len(s.zones)
}

// Zones returns the zones of the given year whose bounding box intersects the
// request box.
func (s *StaticSource) Zones(ctx context.Context, year int, topLeft, bottomRight projection.GeoPoint) ([]Zone, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidateRequest(year, topLeft, bottomRight); err != nil {
		return nil, err
	}
	req := projection.Bounds{TopLeft: topLeft, BottomRight: bottomRight}
	var out []Zone
	for i, z := range s.zones {
		if z.Year == year && s.boxes[i].Intersects(req) {
			out = append(out, z)
		}
	}
	return out, nil
}

func featureZone(f *geojson.Feature) (Zone, error) {
	z := Zone{
		Name:        cleanText(f.Properties.MustString("name", "")),
		Description: cleanText(f.Properties.MustString("description", "")),
		Intensity:   f.Properties.MustFloat64("intensity", DefaultIntensity),
		Year:        f.Properties.MustInt("year", 0),
		Color:       DefaultColor,
	}
	if raw, ok := f.Properties["color"].([]interface{}); ok {
		channels := make([]*int, len(raw))
		for i, v := range raw {
			n, ok := v.(float64)
			if !ok {
				return Zone{}, eris.Wrapf(ErrInvalidZone, "%q color channel %d is not a number", z.Name, i)
			}
			c := int(n)
			channels[i] = &c
		}
		color, err := wireColor(channels)
		if err != nil {
			return Zone{}, err
		}
		z.Color = color
	}

	switch g := f.Geometry.(type) {
	case orb.Polygon:
		z.Rings = appendRings(z.Rings, g, LonLat)
	case orb.MultiPolygon:
		for _, poly := range g {
			z.Rings = appendRings(z.Rings, poly, LonLat)
		}
	default:
		return Zone{}, eris.Wrapf(ErrInvalidZone, "%q has unsupported geometry", z.Name)
	}

	if err := z.Validate(); err != nil {
		return Zone{}, err
	}
	return z, nil
}
