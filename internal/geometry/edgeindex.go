package geometry

import (
	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
)

// minExtent keeps R-tree rectangles non-degenerate for axis-aligned edges.
const minExtent = 1e-9

// Edge is one segment of a ring. Owner is the index of the ring in the slice
// passed to NewEdgeIndex and Index the position of the segment's first vertex.
type Edge struct {
	Owner int
	Index int
	A, B  orb.Point
}

// Bounds implements rtreego.Spatial.
func (e *Edge) Bounds() rtreego.Rect {
	return paddedRect(e.A, e.B, minExtent)
}

// EdgeIndex is an R-tree over the edges of a set of rings, used to find
// segments of different rings that run close to each other without testing
// every edge pair.
type EdgeIndex struct {
	rtree *rtreego.Rtree
	edges []*Edge
}

// NewEdgeIndex builds an index over every edge of every ring. Rings are
// treated as closed.
func NewEdgeIndex(rings []orb.Ring) *EdgeIndex {
	idx := &EdgeIndex{rtree: rtreego.NewTree(2, 25, 50)}
	for owner, ring := range rings {
		for i, e := range ringEdges(ring) {
			edge := &Edge{Owner: owner, Index: i, A: e[0], B: e[1]}
			idx.edges = append(idx.edges, edge)
			idx.rtree.Insert(edge)
		}
	}
	return idx
}

// Len returns the number of indexed edges.
func (x *EdgeIndex) Len() int {
	return len(x.edges)
}

// Near returns edges owned by other rings whose SegmentDistance to e is at
// most threshold.
func (x *EdgeIndex) Near(e *Edge, threshold float64) []*Edge {
	query := paddedRect(e.A, e.B, threshold)
	var out []*Edge
	for _, s := range x.rtree.SearchIntersect(query) {
		other := s.(*Edge)
		if other.Owner == e.Owner {
			continue
		}
		if SegmentDistance(e.A, e.B, other.A, other.B) <= threshold {
			out = append(out, other)
		}
	}
	return out
}

// Contested returns every edge that lies within threshold of an edge of a
// different ring, in index order.
func (x *EdgeIndex) Contested(threshold float64) []*Edge {
	var out []*Edge
	for _, e := range x.edges {
		if len(x.Near(e, threshold)) > 0 {
			out = append(out, e)
		}
	}
	return out
}

// ringEdges returns consecutive vertex pairs, closing the ring when the last
// vertex differs from the first.
func ringEdges(ring orb.Ring) [][2]orb.Point {
	if len(ring) < 2 {
		return nil
	}
	edges := make([][2]orb.Point, 0, len(ring))
	for i := 0; i+1 < len(ring); i++ {
		edges = append(edges, [2]orb.Point{ring[i], ring[i+1]})
	}
	if ring[0] != ring[len(ring)-1] {
		edges = append(edges, [2]orb.Point{ring[len(ring)-1], ring[0]})
	}
	return edges
}

func paddedRect(a, b orb.Point, pad float64) rtreego.Rect {
	if pad < minExtent {
		pad = minExtent
	}
	minX, maxX := a[0], b[0]
	if minX > maxX {
		minX, maxX = maxX, minX
	}
	minY, maxY := a[1], b[1]
	if minY > maxY {
		minY, maxY = maxY, minY
	}
	point := rtreego.Point{minX - pad, minY - pad}
	lengths := []float64{maxX - minX + 2*pad, maxY - minY + 2*pad}
	rect, _ := rtreego.NewRect(point, lengths)
	return rect
}
