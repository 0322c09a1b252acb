package render

import (
	"image"
	"io"
	"sync"

	"github.com/fogleman/gg"
	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"

	"github.com/sells-group/zonemap/internal/projection"
)

// blurLayers is the number of widening strokes used to fake a blurred halo.
const blurLayers = 4

var (
	fontOnce sync.Once
	fontData *opentype.Font
	fontErr  error
)

func goFont() (*opentype.Font, error) {
	fontOnce.Do(func() {
		fontData, fontErr = opentype.Parse(goregular.TTF)
	})
	return fontData, fontErr
}

// Raster is a Surface backed by a gg context. Font faces are created per
// raster because a face is not safe for concurrent use.
type Raster struct {
	dc    *gg.Context
	size  projection.Size
	faces map[float64]font.Face
}

// NewRaster creates a width x height raster.
func NewRaster(width, height int) (*Raster, error) {
	if width <= 0 || height <= 0 {
		return nil, eris.Errorf("render: invalid raster size %dx%d", width, height)
	}
	if _, err := goFont(); err != nil {
		return nil, eris.Wrap(err, "render: parse label font")
	}
	return &Raster{
		dc:    gg.NewContext(width, height),
		size:  projection.Size{Width: float64(width), Height: float64(height)},
		faces: make(map[float64]font.Face),
	}, nil
}

// Size implements Surface.
func (r *Raster) Size() projection.Size {
	return r.size
}

// Image returns the rendered image.
func (r *Raster) Image() image.Image {
	return r.dc.Image()
}

// EncodePNG writes the raster as PNG.
func (r *Raster) EncodePNG(w io.Writer) error {
	return eris.Wrap(r.dc.EncodePNG(w), "render: encode png")
}

// Clear implements Surface.
func (r *Raster) Clear(c Color) {
	r.setColor(c)
	r.dc.Clear()
}

// FillPolygon implements Surface.
func (r *Raster) FillPolygon(ring orb.Ring, c Color) {
	if len(ring) < 3 {
		return
	}
	r.path(ring, true)
	r.setColor(c)
	r.dc.Fill()
}

// StrokePath implements Surface. A blur is approximated by stacking wider,
// fainter strokes under the main one.
func (r *Raster) StrokePath(path []orb.Point, closed bool, s Stroke) {
	if len(path) < 2 {
		return
	}
	r.dc.SetLineCap(ggCap(s.Cap))
	r.dc.SetLineJoin(ggJoin(s.Join))
	r.dc.SetDash(s.Dash...)
	defer r.dc.SetDash()

	if s.Blur > 0 {
		for i := blurLayers; i >= 1; i-- {
			spread := s.Blur * float64(i) / blurLayers
			r.path(path, closed)
			r.setColor(s.Color.WithAlpha(s.Color.A / float64(blurLayers+1)))
			r.dc.SetLineWidth(s.Width + 2*spread)
			r.dc.Stroke()
		}
	}
	r.path(path, closed)
	r.setColor(s.Color)
	r.dc.SetLineWidth(s.Width)
	r.dc.Stroke()
}

// DrawText implements Surface. The outline is drawn by stamping the text in
// the outline color around the anchor before drawing the fill on top.
func (r *Raster) DrawText(text string, at orb.Point, t Text) {
	face, err := r.face(t.Size)
	if err != nil {
		return
	}
	r.dc.SetFontFace(face)

	if w := t.OutlineWidth; w > 0 {
		r.setColor(t.Outline)
		for dy := -w; dy <= w; dy += w {
			for dx := -w; dx <= w; dx += w {
				if dx == 0 && dy == 0 {
					continue
				}
				r.dc.DrawStringAnchored(text, at[0]+dx, at[1]+dy, 0.5, 0.5)
			}
		}
	}
	r.setColor(t.Fill)
	r.dc.DrawStringAnchored(text, at[0], at[1], 0.5, 0.5)
}

func (r *Raster) face(size float64) (font.Face, error) {
	if size <= 0 {
		size = 12
	}
	if f, ok := r.faces[size]; ok {
		return f, nil
	}
	data, err := goFont()
	if err != nil {
		return nil, err
	}
	f, err := opentype.NewFace(data, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, eris.Wrap(err, "render: create font face")
	}
	r.faces[size] = f
	return f, nil
}

func (r *Raster) path(pts []orb.Point, closed bool) {
	r.dc.NewSubPath()
	r.dc.MoveTo(pts[0][0], pts[0][1])
	for _, p := range pts[1:] {
		r.dc.LineTo(p[0], p[1])
	}
	if closed {
		r.dc.ClosePath()
	}
}

func (r *Raster) setColor(c Color) {
	r.dc.SetRGBA(float64(c.R)/255, float64(c.G)/255, float64(c.B)/255, c.A)
}

func ggCap(c LineCap) gg.LineCap {
	switch c {
	case CapRound:
		return gg.LineCapRound
	case CapSquare:
		return gg.LineCapSquare
	}
	return gg.LineCapButt
}

// ggJoin maps miter to bevel; gg has no miter join.
func ggJoin(j LineJoin) gg.LineJoin {
	if j == JoinRound {
		return gg.LineJoinRound
	}
	return gg.LineJoinBevel
}
