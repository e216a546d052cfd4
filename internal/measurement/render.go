package measurement

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/MeKo-Tech/pocrop/internal/geometry"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// RenderOptions controls overlay drawing. Colours are hex strings.
type RenderOptions struct {
	DistanceColor string  `mapstructure:"distance_color" yaml:"distance_color" json:"distance_color"`
	AngleColor    string  `mapstructure:"angle_color" yaml:"angle_color" json:"angle_color"`
	LabelColor    string  `mapstructure:"label_color" yaml:"label_color" json:"label_color"`
	Thickness     int     `mapstructure:"thickness" yaml:"thickness" json:"thickness"`
	HandleRadius  int     `mapstructure:"handle_radius" yaml:"handle_radius" json:"handle_radius"`
	Labels        bool    `mapstructure:"labels" yaml:"labels" json:"labels"`
	Scale         float64 `mapstructure:"-" yaml:"-" json:"-"` // display to image factor; 0 means 1
}

// DefaultRenderOptions returns the overlay defaults.
func DefaultRenderOptions() RenderOptions {
	return RenderOptions{
		DistanceColor: "#0078d4",
		AngleColor:    "#d83b01",
		LabelColor:    "#ffffff",
		Thickness:     2,
		HandleRadius:  4,
		Labels:        true,
	}
}

// ParseHexColor parses "#rrggbb" or "#rgb" into an opaque colour.
func ParseHexColor(s string) (color.RGBA, error) {
	c, err := colorful.Hex(s)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid colour %q: %w", s, err)
	}
	r, g, b := c.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}, nil
}

func colorOr(s string, fallback color.RGBA) color.RGBA {
	if c, err := ParseHexColor(s); err == nil {
		return c
	}
	return fallback
}

// Render draws every measurement of c onto dst.
func Render(dst draw.Image, c *Collection, opts RenderOptions) {
	f := opts.Scale
	if f <= 0 {
		f = 1
	}
	sp := func(p geometry.Point) image.Point { return p.Scale(f).ImagePoint() }

	distCol := colorOr(opts.DistanceColor, color.RGBA{0, 120, 212, 255})
	angleCol := colorOr(opts.AngleColor, color.RGBA{216, 59, 1, 255})
	labelCol := colorOr(opts.LabelColor, color.RGBA{255, 255, 255, 255})
	b := dst.Bounds()

	for _, l := range c.HorizontalLines {
		col := colorOr(l.StrokeColor, color.RGBA{128, 0, 128, 255})
		y := int(math.Round(l.Position * f))
		drawLine(dst, image.Pt(b.Min.X, y), image.Pt(b.Max.X-1, y), col, thicknessPx(l.StrokeThickness*f))
	}
	for _, l := range c.VerticalLines {
		col := colorOr(l.StrokeColor, color.RGBA{128, 0, 128, 255})
		x := int(math.Round(l.Position * f))
		drawLine(dst, image.Pt(x, b.Min.Y), image.Pt(x, b.Max.Y-1), col, thicknessPx(l.StrokeThickness*f))
	}

	for _, d := range c.Distances {
		a, e := sp(d.Start), sp(d.End)
		drawLine(dst, a, e, distCol, opts.Thickness)
		drawHandle(dst, a, opts.HandleRadius, distCol)
		drawHandle(dst, e, opts.HandleRadius, distCol)
		if opts.Labels {
			drawLabel(dst, sp(geometry.Midpoint(d.Start, d.End)), d.Label(), labelCol, distCol)
		}
	}

	for _, an := range c.Angles {
		v := sp(an.Vertex)
		drawLine(dst, v, sp(an.Arm1), angleCol, opts.Thickness)
		drawLine(dst, v, sp(an.Arm3), angleCol, opts.Thickness)
		for _, p := range an.Points() {
			drawHandle(dst, sp(p), opts.HandleRadius, angleCol)
		}
		if opts.Labels {
			drawLabel(dst, v.Add(image.Pt(8, -8)), an.Label(), labelCol, angleCol)
		}
	}

	for _, s := range c.Strokes {
		col := s.Color
		if col.A == 0 {
			col.A = 255
		}
		for i := 1; i < len(s.Points); i++ {
			drawLine(dst, sp(s.Points[i-1]), sp(s.Points[i]), col, thicknessPx(s.Thickness*f))
		}
		if opts.Labels && len(s.Points) > 1 {
			drawLabel(dst, sp(s.LabelPosition), s.Label(), labelCol, color.RGBA{0, 0, 0, 255})
		}
	}
}

func thicknessPx(v float64) int { return max(1, int(math.Round(v))) }

// drawLine draws a line between two points using a simple Bresenham variant.
func drawLine(dst draw.Image, a, b image.Point, col color.Color, thickness int) {
	x0, y0 := a.X, a.Y
	x1, y1 := b.X, b.Y
	dx := abs(x1 - x0)
	sx := -1
	if x0 < x1 {
		sx = 1
	}
	dy := -abs(y1 - y0)
	sy := -1
	if y0 < y1 {
		sy = 1
	}
	err := dx + dy
	for {
		drawThickPoint(dst, x0, y0, col, thickness)
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func drawThickPoint(dst draw.Image, x, y int, col color.Color, thickness int) {
	if thickness < 1 {
		thickness = 1
	}
	r := (thickness - 1) / 2
	b := dst.Bounds()
	for yy := y - r; yy <= y+r; yy++ {
		for xx := x - r; xx <= x+r; xx++ {
			if image.Pt(xx, yy).In(b) {
				dst.Set(xx, yy, col)
			}
		}
	}
}

// drawHandle fills a disc of radius r around p.
func drawHandle(dst draw.Image, p image.Point, r int, col color.Color) {
	if r <= 0 {
		return
	}
	b := dst.Bounds()
	for y := -r; y <= r; y++ {
		for x := -r; x <= r; x++ {
			if x*x+y*y <= r*r && image.Pt(p.X+x, p.Y+y).In(b) {
				dst.Set(p.X+x, p.Y+y, col)
			}
		}
	}
}

// drawLabel writes text with its top-left at p on a filled background box.
func drawLabel(dst draw.Image, p image.Point, text string, fg, bg color.Color) {
	face := basicfont.Face7x13
	w := font.MeasureString(face, text).Ceil()
	m := face.Metrics()
	h := (m.Ascent + m.Descent).Ceil()

	box := image.Rect(p.X-2, p.Y-2, p.X+w+2, p.Y+h+2).Intersect(dst.Bounds())
	draw.Draw(dst, box, &image.Uniform{bg}, image.Point{}, draw.Over)

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(fg),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(p.X), Y: fixed.I(p.Y) + m.Ascent},
	}
	d.DrawString(text)
}
