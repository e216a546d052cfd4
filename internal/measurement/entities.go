package measurement

import (
	"fmt"

	"github.com/MeKo-Tech/pocrop/internal/geometry"
)

// Distance is a two-point ruler.
type Distance struct {
	Start geometry.Point
	End   geometry.Point
	Scale Scale
}

// NewDistance creates a ruler; an invalid scale falls back to the default.
func NewDistance(start, end geometry.Point, scale Scale) Distance {
	return Distance{Start: start, End: end, Scale: scale.normalized()}
}

// DefaultDistance places a ruler from 30%,40% to 70%,60% of the canvas.
func DefaultDistance(canvas geometry.Size, scale Scale) Distance {
	return NewDistance(
		geometry.Pt(canvas.Width*0.3, canvas.Height*0.4),
		geometry.Pt(canvas.Width*0.7, canvas.Height*0.6),
		scale,
	)
}

// Points returns the endpoints.
func (d Distance) Points() []geometry.Point { return []geometry.Point{d.Start, d.End} }

// Move sets endpoint index (0 start, 1 end). Other indexes are ignored.
func (d *Distance) Move(index int, p geometry.Point) {
	switch index {
	case 0:
		d.Start = p
	case 1:
		d.End = p
	}
}

// PixelLength is the Euclidean endpoint distance.
func (d Distance) PixelLength() float64 { return geometry.Distance(d.Start, d.End) }

// ScaledLength is the length in real-world units.
func (d Distance) ScaledLength() float64 { return d.Scale.Apply(d.PixelLength()) }

// Label formats the scaled length, e.g. "12.34 mm".
func (d Distance) Label() string { return fmt.Sprintf("%.2f %s", d.ScaledLength(), d.Scale.Units) }

// Angle measures the angle at Vertex between the arms to Arm1 and Arm3.
type Angle struct {
	Arm1   geometry.Point
	Vertex geometry.Point
	Arm3   geometry.Point
}

// NewAngle creates an angle measurement.
func NewAngle(arm1, vertex, arm3 geometry.Point) Angle {
	return Angle{Arm1: arm1, Vertex: vertex, Arm3: arm3}
}

// DefaultAngle puts the vertex at the canvas centre with arms towards the
// upper left and upper right.
func DefaultAngle(canvas geometry.Size) Angle {
	return NewAngle(
		geometry.Pt(canvas.Width*0.3, canvas.Height*0.3),
		geometry.Pt(canvas.Width*0.5, canvas.Height*0.5),
		geometry.Pt(canvas.Width*0.7, canvas.Height*0.3),
	)
}

// Points returns arm1, vertex, arm3.
func (a Angle) Points() []geometry.Point { return []geometry.Point{a.Arm1, a.Vertex, a.Arm3} }

// Move sets point index (0 arm1, 1 vertex, 2 arm3). Other indexes are ignored.
func (a *Angle) Move(index int, p geometry.Point) {
	switch index {
	case 0:
		a.Arm1 = p
	case 1:
		a.Vertex = p
	case 2:
		a.Arm3 = p
	}
}

// Degrees is in [0, 180]; a zero-length arm gives 0.
func (a Angle) Degrees() float64 { return geometry.AngleDegrees(a.Arm1, a.Vertex, a.Arm3) }

// Label formats the angle, e.g. "90.0°".
func (a Angle) Label() string { return fmt.Sprintf("%.1f°", a.Degrees()) }

// Orientation of a reference line.
type Orientation int

const (
	Horizontal Orientation = iota
	Vertical
)

func (o Orientation) String() string {
	if o == Vertical {
		return "Vertical"
	}
	return "Horizontal"
}

const (
	// DefaultLineColor is purple.
	DefaultLineColor     = "#800080"
	DefaultLineThickness = 1.0
)

// Line is a full-width or full-height reference line. Position is y for a
// horizontal line and x for a vertical one.
type Line struct {
	Orientation     Orientation
	Position        float64
	StrokeColor     string
	StrokeThickness float64
}

// NewHorizontalLine creates a horizontal reference line at y.
func NewHorizontalLine(y float64) Line {
	return Line{Orientation: Horizontal, Position: y, StrokeColor: DefaultLineColor, StrokeThickness: DefaultLineThickness}
}

// NewVerticalLine creates a vertical reference line at x.
func NewVerticalLine(x float64) Line {
	return Line{Orientation: Vertical, Position: x, StrokeColor: DefaultLineColor, StrokeThickness: DefaultLineThickness}
}

// Move takes the coordinate across the line from p. Index must be 0.
func (l *Line) Move(index int, p geometry.Point) {
	if index != 0 {
		return
	}
	if l.Orientation == Vertical {
		l.Position = p.X
	} else {
		l.Position = p.Y
	}
}

// Color is an ARGB stroke colour.
type Color struct {
	A uint8 `json:"A" yaml:"A"`
	R uint8 `json:"R" yaml:"R"`
	G uint8 `json:"G" yaml:"G"`
	B uint8 `json:"B" yaml:"B"`
}

// RGBA implements color.Color.
func (c Color) RGBA() (r, g, b, a uint32) {
	a = uint32(c.A) * 0x101
	r = uint32(c.R) * 0x101 * a / 0xffff
	g = uint32(c.G) * 0x101 * a / 0xffff
	b = uint32(c.B) * 0x101 * a / 0xffff
	return r, g, b, a
}

// Stroke is a freehand polyline measured along its length.
type Stroke struct {
	Points    []geometry.Point
	Color     Color
	Thickness float64
	Scale     Scale
	// LabelPosition is where the length label is shown.
	LabelPosition geometry.Point
}

// NewStroke copies points and places the label at the last point.
func NewStroke(points []geometry.Point, c Color, thickness float64, scale Scale) Stroke {
	s := Stroke{
		Points:    append([]geometry.Point(nil), points...),
		Color:     c,
		Thickness: thickness,
		Scale:     scale.normalized(),
	}
	if len(points) > 0 {
		s.LabelPosition = points[len(points)-1]
	}
	return s
}

// Move replaces point index. Out-of-range indexes are ignored.
func (s *Stroke) Move(index int, p geometry.Point) {
	if index < 0 || index >= len(s.Points) {
		return
	}
	s.Points[index] = p
}

// PixelLength sums the segment lengths.
func (s Stroke) PixelLength() float64 { return geometry.PolylineLength(s.Points) }

// ScaledLength is the length in real-world units.
func (s Stroke) ScaledLength() float64 { return s.Scale.Apply(s.PixelLength()) }

// Label formats the stroke length.
func (s Stroke) Label() string {
	return fmt.Sprintf("Stroke length %.2f %s", s.ScaledLength(), s.Scale.Units)
}
