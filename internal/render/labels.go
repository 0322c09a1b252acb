package render

import (
	"math"
	"sort"

	"github.com/paulmach/orb"

	"github.com/sells-group/zonemap/internal/projection"
)

// Label is an accepted label position.
type Label struct {
	Text string
	At   orb.Point
	Area float64
}

// PlaceLabels picks label positions for polys. Larger polygons are placed
// first; a candidate is accepted only if its centroid lies inside the surface
// shrunk by margin and farther than radius from every accepted centroid.
//
// Project orients every ring to a positive signed area, so ranking by
// magnitude gives the signed-area order for projected polygons and stays
// stable for polygons built elsewhere.
func PlaceLabels(polys []Polygon, size projection.Size, radius, margin float64) []Label {
	order := make([]int, 0, len(polys))
	for i, p := range polys {
		if p.Name == "" {
			continue
		}
		order = append(order, i)
	}
	sort.SliceStable(order, func(a, b int) bool {
		return math.Abs(polys[order[a]].Area) > math.Abs(polys[order[b]].Area)
	})

	var accepted []Label
	for _, i := range order {
		p := polys[i]
		c := p.Centroid
		if c[0] < margin || c[0] > size.Width-margin || c[1] < margin || c[1] > size.Height-margin {
			continue
		}
		if crowded(accepted, c, radius) {
			continue
		}
		accepted = append(accepted, Label{Text: p.Name, At: c, Area: p.Area})
	}
	return accepted
}

func crowded(accepted []Label, c orb.Point, radius float64) bool {
	for _, l := range accepted {
		if math.Hypot(l.At[0]-c[0], l.At[1]-c[1]) <= radius {
			return true
		}
	}
	return false
}
