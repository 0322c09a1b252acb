// Package zones models the time-stamped polygon zones served by the zone data
// service and provides the sources the chunk orchestrator fetches from.
package zones

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/zonemap/internal/projection"
)

// Year limits accepted by the zone service.
const (
	MinYear = 1900
	MaxYear = 2100
)

// DefaultIntensity is used when a zone carries no intensity.
const DefaultIntensity = 0.5

// DefaultColor is used when a zone carries no color (cornflower blue).
var DefaultColor = RGB{100, 149, 237}

var (
	// ErrInvalidYear is returned for a request year outside [MinYear, MaxYear].
	ErrInvalidYear = eris.New("zones: invalid year")
	// ErrInvalidCoordinates is returned for request corners out of range.
	ErrInvalidCoordinates = eris.New("zones: invalid coordinates")
	// ErrInvalidZone is returned by Zone.Validate.
	ErrInvalidZone = eris.New("zones: invalid zone")
)

// RGB is an 8-bit color triple.
type RGB [3]uint8

// Zone is a named, colored polygon set valid for one year. Each ring is closed
// (first point equals last).
type Zone struct {
	Name        string                  `json:"name"`
	Description string                  `json:"description,omitempty"`
	Rings       [][]projection.GeoPoint `json:"rings"`
	Color       RGB                     `json:"color"`
	Intensity   float64                 `json:"intensity"`
	Year        int                     `json:"year"`
}

// Source returns the zones of a year that fall in a bounding box.
type Source interface {
	Zones(ctx context.Context, year int, topLeft, bottomRight projection.GeoPoint) ([]Zone, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, year int, topLeft, bottomRight projection.GeoPoint) ([]Zone, error)

// Zones implements Source.
func (f SourceFunc) Zones(ctx context.Context, year int, topLeft, bottomRight projection.GeoPoint) ([]Zone, error) {
	return f(ctx, year, topLeft, bottomRight)
}

// Validate checks ring shape, coordinate ranges and intensity.
func (z Zone) Validate() error {
	if len(z.Rings) == 0 {
		return eris.Wrapf(ErrInvalidZone, "%q has no rings", z.Name)
	}
	for i, ring := range z.Rings {
		if len(ring) < 4 {
			return eris.Wrapf(ErrInvalidZone, "%q ring %d has %d positions", z.Name, i, len(ring))
		}
		if ring[0] != ring[len(ring)-1] {
			return eris.Wrapf(ErrInvalidZone, "%q ring %d is not closed", z.Name, i)
		}
		for _, p := range ring {
			if err := ValidatePoint(p); err != nil {
				return eris.Wrapf(ErrInvalidZone, "%q ring %d: %v", z.Name, i, err)
			}
		}
	}
	if math.IsNaN(z.Intensity) || z.Intensity < 0 || z.Intensity > 1 {
		return eris.Wrapf(ErrInvalidZone, "%q intensity %g", z.Name, z.Intensity)
	}
	return nil
}

// BBox returns the geographic bounding box of all rings. The second result is
// false for a zone without points.
func (z Zone) BBox() (projection.Bounds, bool) {
	first := true
	var b projection.Bounds
	for _, ring := range z.Rings {
		for _, p := range ring {
			if first {
				b = projection.Bounds{TopLeft: p, BottomRight: p}
				first = false
				continue
			}
			b.TopLeft.Lat = math.Max(b.TopLeft.Lat, p.Lat)
			b.TopLeft.Lon = math.Min(b.TopLeft.Lon, p.Lon)
			b.BottomRight.Lat = math.Min(b.BottomRight.Lat, p.Lat)
			b.BottomRight.Lon = math.Max(b.BottomRight.Lon, p.Lon)
		}
	}
	return b, !first
}

// Key identifies a zone across chunks: the same zone returned for two
// neighbouring cells has the same key.
func (z Zone) Key() string {
	var first projection.GeoPoint
	if len(z.Rings) > 0 && len(z.Rings[0]) > 0 {
		first = z.Rings[0][0]
	}
	return fmt.Sprintf("%s|%d|%.7f,%.7f", z.Name, z.Year, first.Lat, first.Lon)
}

// ValidateYear checks a request year.
func ValidateYear(year int) error {
	if year < MinYear || year > MaxYear {
		return eris.Wrapf(ErrInvalidYear, "%d not in [%d, %d]", year, MinYear, MaxYear)
	}
	return nil
}

// ValidatePoint checks that a point is finite and inside the WGS 84 range.
func ValidatePoint(p projection.GeoPoint) error {
	if !p.Finite() || p.Lat < -90 || p.Lat > 90 || p.Lon < -180 || p.Lon > 180 {
		return eris.Wrapf(ErrInvalidCoordinates, "(%g, %g)", p.Lat, p.Lon)
	}
	return nil
}

// ValidateRequest checks a bounding-box request before it is sent.
func ValidateRequest(year int, topLeft, bottomRight projection.GeoPoint) error {
	if err := ValidateYear(year); err != nil {
		return err
	}
	if err := ValidatePoint(topLeft); err != nil {
		return err
	}
	if err := ValidatePoint(bottomRight); err != nil {
		return err
	}
	if topLeft.Lat < bottomRight.Lat {
		return eris.Wrapf(ErrInvalidCoordinates, "top %g below bottom %g", topLeft.Lat, bottomRight.Lat)
	}
	return nil
}

// cleanText trims and NFC-normalises names coming off the wire so equal names
// compare equal regardless of how the service composed them.
func cleanText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
