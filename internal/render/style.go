package render

import (
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Style holds every constant the frame passes draw with. Zero values are not
// meaningful; start from DefaultStyle.
type Style struct {
	Background Color `yaml:"background"`

	// FillAlphaFactor scales a zone's intensity into its fill alpha.
	FillAlphaFactor float64 `yaml:"fill_alpha_factor"`

	GlowWidth float64 `yaml:"glow_width"`
	GlowBlur  float64 `yaml:"glow_blur"`
	GlowAlpha float64 `yaml:"glow_alpha"`

	// OverlapThreshold is the pixel distance under which edges of two
	// different polygons count as a shared border.
	OverlapThreshold float64   `yaml:"overlap_threshold"`
	OverlapColor     Color     `yaml:"overlap_color"`
	OverlapWidth     float64   `yaml:"overlap_width"`
	OverlapDash      []float64 `yaml:"overlap_dash"`

	BorderColor Color   `yaml:"border_color"`
	BorderWidth float64 `yaml:"border_width"`

	LabelRadius       float64 `yaml:"label_radius"`
	LabelMargin       float64 `yaml:"label_margin"`
	LabelSize         float64 `yaml:"label_size"`
	LabelFill         Color   `yaml:"label_fill"`
	LabelOutline      Color   `yaml:"label_outline"`
	LabelOutlineWidth float64 `yaml:"label_outline_width"`
}

// DefaultStyle returns the built-in style.
func DefaultStyle() Style {
	return Style{
		Background:        Color{R: 0xf4, G: 0xf1, B: 0xea, A: 1},
		FillAlphaFactor:   0.3,
		GlowWidth:         2,
		GlowBlur:          6,
		GlowAlpha:         0.6,
		OverlapThreshold:  3,
		OverlapColor:      Color{R: 0x55, G: 0x55, B: 0x55, A: 0.9},
		OverlapWidth:      2,
		OverlapDash:       []float64{6, 4},
		BorderColor:       Color{R: 0x33, G: 0x33, B: 0x33, A: 1},
		BorderWidth:       1,
		LabelRadius:       60,
		LabelMargin:       20,
		LabelSize:         13,
		LabelFill:         Color{R: 0x22, G: 0x22, B: 0x22, A: 1},
		LabelOutline:      Color{R: 0xff, G: 0xff, B: 0xff, A: 0.9},
		LabelOutlineWidth: 1.5,
	}
}

// LoadStyle reads a YAML style file. Keys missing from the file keep their
// default values.
func LoadStyle(path string) (Style, error) {
	s := DefaultStyle()
	data, err := os.ReadFile(path)
	if err != nil {
		return s, eris.Wrapf(err, "render: read style %s", path)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, eris.Wrapf(err, "render: parse style %s", path)
	}
	return s, nil
}

// UnmarshalYAML accepts "#rrggbb" or "#rrggbbaa".
func (c *Color) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := ParseColor(raw)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// MarshalYAML writes the hex form.
func (c Color) MarshalYAML() (any, error) {
	return c.Hex(), nil
}

// Hex returns "#rrggbbaa".
func (c Color) Hex() string {
	a := uint8(clamp01(c.A)*255 + 0.5)
	return "#" + hex2(c.R) + hex2(c.G) + hex2(c.B) + hex2(a)
}

// ParseColor parses "#rrggbb" or "#rrggbbaa". Alpha defaults to opaque.
func ParseColor(s string) (Color, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(h) != 6 && len(h) != 8 {
		return Color{}, eris.Errorf("render: invalid color %q", s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return Color{}, eris.Wrapf(err, "render: invalid color %q", s)
	}
	if len(h) == 6 {
		v = v<<8 | 0xff
	}
	return Color{
		R: uint8(v >> 24),
		G: uint8(v >> 16),
		B: uint8(v >> 8),
		A: float64(uint8(v)) / 255,
	}, nil
}

func hex2(b uint8) string {
	const digits = "0123456789abcdef"
	return string([]byte{digits[b>>4], digits[b&0x0f]})
}

func clamp01(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}
