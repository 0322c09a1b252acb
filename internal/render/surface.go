// Package render draws zone snapshots onto a 2-D raster surface: faint fills,
// glowing borders, dashed marks on contested borders, solid outlines and
// non-overlapping labels.
package render

import (
	"github.com/paulmach/orb"

	"github.com/sells-group/zonemap/internal/projection"
	"github.com/sells-group/zonemap/internal/zones"
)

// Color is an RGB color with alpha in [0,1].
type Color struct {
	R, G, B uint8
	A       float64
}

// WithAlpha returns c with a different alpha.
func (c Color) WithAlpha(a float64) Color {
	c.A = a
	return c
}

// FromRGB converts a zone color.
func FromRGB(rgb zones.RGB, alpha float64) Color {
	return Color{R: rgb[0], G: rgb[1], B: rgb[2], A: alpha}
}

// LineCap is the shape of open path ends.
type LineCap int

// Line caps.
const (
	CapButt LineCap = iota
	CapRound
	CapSquare
)

// LineJoin is the shape of path corners.
type LineJoin int

// Line joins.
const (
	JoinMiter LineJoin = iota
	JoinRound
	JoinBevel
)

// Stroke describes how a path outline is painted.
type Stroke struct {
	Color Color
	Width float64
	Cap   LineCap
	Join  LineJoin
	Blur  float64   // soft halo radius in pixels, 0 for a crisp line
	Dash  []float64 // on/off lengths, nil for solid
}

// Text describes how a label is painted: an outline in one color under a fill
// in another.
type Text struct {
	Size         float64
	Fill         Color
	Outline      Color
	OutlineWidth float64
}

// Surface is a fixed-size raster the pipeline draws onto. Implementations need
// not be safe for concurrent use.
type Surface interface {
	Size() projection.Size
	Clear(c Color)
	FillPolygon(ring orb.Ring, c Color)
	StrokePath(path []orb.Point, closed bool, s Stroke)
	DrawText(text string, at orb.Point, t Text)
}
