// Package geometry holds planar helpers used by the render pipeline: shoelace
// area, vertex centroids, containment and segment distances.
package geometry

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// SignedArea returns the shoelace area of a ring. The sign follows the ring
// orientation in the coordinate space it is expressed in. Open rings are
// treated as implicitly closed.
func SignedArea(ring orb.Ring) float64 {
	n := len(ring)
	if n < 3 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		a := ring[i]
		b := ring[(i+1)%n]
		sum += a[0]*b[1] - b[0]*a[1]
	}
	return sum / 2
}

// Area returns the unsigned shoelace area of a ring.
func Area(ring orb.Ring) float64 {
	return math.Abs(SignedArea(ring))
}

// Centroid returns the arithmetic mean of the ring vertices. The closing
// vertex of a closed ring is not counted twice. This is not the area
// centroid; it is good enough for anchoring labels.
func Centroid(ring orb.Ring) orb.Point {
	pts := openRing(ring)
	if len(pts) == 0 {
		return orb.Point{}
	}
	var x, y float64
	for _, p := range pts {
		x += p[0]
		y += p[1]
	}
	n := float64(len(pts))
	return orb.Point{x / n, y / n}
}

// Contains reports whether p lies inside the ring (boundary included).
func Contains(ring orb.Ring, p orb.Point) bool {
	return planar.RingContains(ring, p)
}

// PointToSegmentDistance returns the distance from p to the segment a-b,
// projecting p onto the segment and clamping the parameter to [0,1].
func PointToSegmentDistance(p, a, b orb.Point) float64 {
	return planar.DistanceFromSegment(a, b, p)
}

// SegmentDistance approximates the distance between segments a0-a1 and b0-b1
// as the minimum of the four endpoint-to-segment distances. Crossing segments
// whose endpoints are all far apart are not detected; for border proximity
// this is acceptable.
func SegmentDistance(a0, a1, b0, b1 orb.Point) float64 {
	return math.Min(
		math.Min(PointToSegmentDistance(a0, b0, b1), PointToSegmentDistance(a1, b0, b1)),
		math.Min(PointToSegmentDistance(b0, a0, a1), PointToSegmentDistance(b1, a0, a1)),
	)
}

// Degenerate reports whether a ring has fewer than three distinct vertices or
// no enclosed area. Collinear rings pick up rounding noise in projection, so
// an area within areaEpsilon of the squared bounding-box diagonal, or below
// minArea, counts as none.
func Degenerate(ring orb.Ring) bool {
	pts := openRing(ring)
	if len(pts) < 3 {
		return true
	}
	b := pts.Bound()
	dx, dy := b.Max[0]-b.Min[0], b.Max[1]-b.Min[1]
	tol := math.Max(minArea, areaEpsilon*(dx*dx+dy*dy))
	return math.Abs(SignedArea(ring)) <= tol
}

const (
	minArea     = 1e-6
	areaEpsilon = 1e-9
)

// Finite reports whether every coordinate in the ring is a finite number.
func Finite(ring orb.Ring) bool {
	for _, p := range ring {
		if math.IsNaN(p[0]) || math.IsNaN(p[1]) || math.IsInf(p[0], 0) || math.IsInf(p[1], 0) {
			return false
		}
	}
	return true
}

// openRing drops the closing vertex if the ring is explicitly closed.
func openRing(ring orb.Ring) orb.Ring {
	if len(ring) > 1 && ring[0] == ring[len(ring)-1] {
		return ring[:len(ring)-1]
	}
	return ring
}
