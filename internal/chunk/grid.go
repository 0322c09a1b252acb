// Package chunk splits the visible bounds into request cells, fetches them
// concurrently and assembles the results into drawable snapshots.
package chunk

import (
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/zonemap/internal/projection"
	"github.com/sells-group/zonemap/internal/zones"
)

// Policy selects how bounds are split into requests.
type Policy string

const (
	// Single issues one request for the whole view.
	Single Policy = "single"
	// Grid splits the view into GridSize x GridSize cells.
	Grid Policy = "grid"
)

// ParsePolicy maps a config string to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case Single:
		return Single, nil
	case Grid, "":
		return Grid, nil
	}
	return "", eris.Errorf("chunk: unknown policy %q", s)
}

// Chunk is the fetched content of one request cell. It is never modified after
// the snapshot holding it is committed.
type Chunk struct {
	Row       int                 `json:"row"`
	Col       int                 `json:"col"`
	Bounds    projection.Bounds   `json:"bounds"`
	Center    projection.GeoPoint `json:"center"`
	ZoomLevel int                 `json:"zoom_level"`
	Zones     []zones.Zone        `json:"-"`
}

// Cell is one request region of a grid.
type Cell struct {
	Row    int
	Col    int
	Bounds projection.Bounds
}

// Cells splits b into an n x n grid laid out row-major from the top-left
// corner. The outer edges of the last row and column are the exact bounds
// corners so cells tile b without gaps.
func Cells(b projection.Bounds, n int) []Cell {
	if n < 1 {
		n = 1
	}
	top, left := b.TopLeft.Lat, b.TopLeft.Lon
	dLat := (b.TopLeft.Lat - b.BottomRight.Lat) / float64(n)
	dLon := (b.BottomRight.Lon - b.TopLeft.Lon) / float64(n)

	edge := func(start, step float64, i int, last float64) float64 {
		if i == n {
			return last
		}
		return start + step*float64(i)
	}

	cells := make([]Cell, 0, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			cells = append(cells, Cell{
				Row: i,
				Col: j,
				Bounds: projection.Bounds{
					TopLeft: projection.GeoPoint{
						Lat: edge(top, -dLat, i, b.BottomRight.Lat),
						Lon: edge(left, dLon, j, b.BottomRight.Lon),
					},
					BottomRight: projection.GeoPoint{
						Lat: edge(top, -dLat, i+1, b.BottomRight.Lat),
						Lon: edge(left, dLon, j+1, b.BottomRight.Lon),
					},
				},
			})
		}
	}
	return cells
}

// requestPart is one service request for a cell. Shift is added to the
// longitudes of the returned zones to bring them into the view's frame.
type requestPart struct {
	Bounds projection.Bounds
	Shift  float64
}

// requestParts splits a cell into requests the zone service accepts. Views
// keep unwrapped longitudes, so a cell can lie partly or wholly past the
// antimeridian; each 360° window the cell touches becomes one request in
// [-180, 180], tagged with the shift back into the cell's frame. Latitudes
// are clamped to the Mercator limit. The result is empty when nothing of the
// cell can be requested.
func requestParts(b projection.Bounds) []requestPart {
	top := projection.ClampLat(b.TopLeft.Lat)
	bottom := projection.ClampLat(b.BottomRight.Lat)
	if top <= bottom {
		return nil
	}
	left, right := b.TopLeft.Lon, b.BottomRight.Lon

	var parts []requestPart
	first := math.Floor((left + 180) / 360)
	last := math.Floor((right + 180) / 360)
	for k := first; k <= last; k++ {
		shift := k * 360
		l := math.Max(-180, left-shift)
		r := math.Min(180, right-shift)
		if l >= r {
			continue
		}
		parts = append(parts, requestPart{
			Bounds: projection.Bounds{
				TopLeft:     projection.GeoPoint{Lat: top, Lon: l},
				BottomRight: projection.GeoPoint{Lat: bottom, Lon: r},
			},
			Shift: shift,
		})
	}
	return parts
}

// shiftZones returns copies of zs with every longitude moved by dLon.
func shiftZones(zs []zones.Zone, dLon float64) []zones.Zone {
	if dLon == 0 {
		return zs
	}
	out := make([]zones.Zone, len(zs))
	for i, z := range zs {
		rings := make([][]projection.GeoPoint, len(z.Rings))
		for j, ring := range z.Rings {
			moved := make([]projection.GeoPoint, len(ring))
			for k, p := range ring {
				moved[k] = projection.GeoPoint{Lat: p.Lat, Lon: p.Lon + dLon}
			}
			rings[j] = moved
		}
		z.Rings = rings
		out[i] = z
	}
	return out
}
