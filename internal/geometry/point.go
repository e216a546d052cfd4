// Package geometry holds the planar math shared by corner detection,
// perspective solving and measurement: points, boxes, quadrilaterals and
// the polygon helpers built on them.
package geometry

import (
	"image"
	"math"
)

// Point represents a 2D coordinate in image-pixel space.
type Point struct {
	X float64 `json:"X" yaml:"x"`
	Y float64 `json:"Y" yaml:"y"`
}

// Pt is shorthand for Point{X: x, Y: y}.
func Pt(x, y float64) Point { return Point{X: x, Y: y} }

// Add returns p+q.
func (p Point) Add(q Point) Point { return Point{X: p.X + q.X, Y: p.Y + q.Y} }

// Sub returns p-q.
func (p Point) Sub(q Point) Point { return Point{X: p.X - q.X, Y: p.Y - q.Y} }

// Scale multiplies both coordinates by f.
func (p Point) Scale(f float64) Point { return Point{X: p.X * f, Y: p.Y * f} }

// Dot returns the dot product of p and q treated as vectors.
func (p Point) Dot(q Point) float64 { return p.X*q.X + p.Y*q.Y }

// Len returns the length of p treated as a vector.
func (p Point) Len() float64 { return math.Hypot(p.X, p.Y) }

// ImagePoint rounds p to the nearest integer pixel.
func (p Point) ImagePoint() image.Point {
	return image.Pt(int(math.Round(p.X)), int(math.Round(p.Y)))
}

// Distance returns the euclidean distance between a and b.
func Distance(a, b Point) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}

// Midpoint returns the point halfway between a and b.
func Midpoint(a, b Point) Point {
	return Point{X: (a.X + b.X) / 2, Y: (a.Y + b.Y) / 2}
}

// Centroid returns the arithmetic mean of pts. An empty slice yields the origin.
func Centroid(pts []Point) Point {
	if len(pts) == 0 {
		return Point{}
	}
	var cx, cy float64
	for _, p := range pts {
		cx += p.X
		cy += p.Y
	}
	n := float64(len(pts))
	return Point{X: cx / n, Y: cy / n}
}

// ScalePoints returns a copy of pts with every coordinate multiplied by f.
func ScalePoints(pts []Point, f float64) []Point {
	out := make([]Point, len(pts))
	for i, p := range pts {
		out[i] = p.Scale(f)
	}
	return out
}

// AngleDegrees returns the angle at vertex between the arms towards a and b,
// in degrees within [0, 180]. A zero-length arm yields 0.
func AngleDegrees(a, vertex, b Point) float64 {
	v1 := a.Sub(vertex)
	v2 := b.Sub(vertex)
	l1, l2 := v1.Len(), v2.Len()
	if l1 == 0 || l2 == 0 {
		return 0
	}
	cross := v1.X*v2.Y - v1.Y*v2.X
	dot := v1.X*v2.X + v1.Y*v2.Y
	if cross == 0 {
		if dot > 0 {
			return 0
		}
		return 180
	}
	return math.Min(180, math.Atan2(math.Abs(cross), dot)*180/math.Pi)
}

// PolylineLength returns the sum of consecutive segment lengths of an open polyline.
func PolylineLength(pts []Point) float64 {
	total := 0.0
	for i := 1; i < len(pts); i++ {
		total += Distance(pts[i-1], pts[i])
	}
	return total
}

// Size is a width/height pair in pixels.
type Size struct {
	Width  float64 `json:"Width" yaml:"width"`
	Height float64 `json:"Height" yaml:"height"`
}

// IsEmpty reports whether either dimension is non-positive.
func (s Size) IsEmpty() bool { return s.Width <= 0 || s.Height <= 0 }

// SizeOf returns the pixel size of r.
func SizeOf(r image.Rectangle) Size {
	return Size{Width: float64(r.Dx()), Height: float64(r.Dy())}
}
