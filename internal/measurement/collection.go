// Package measurement holds calibrated distance, angle, reference line and
// freehand stroke measurements placed on an image.
package measurement

import (
	"errors"
	"log/slog"
	"math"
	"strings"

	"github.com/MeKo-Tech/pocrop/internal/geometry"
)

// Collection owns every measurement on one image together with the global
// scale they share. It is not safe for concurrent use.
type Collection struct {
	Distances       []Distance
	Angles          []Angle
	HorizontalLines []Line
	VerticalLines   []Line
	Strokes         []Stroke

	scale Scale
}

// NewCollection returns an empty collection with the default scale.
func NewCollection() *Collection {
	return &Collection{scale: DefaultScale()}
}

// GlobalScale returns the shared scale.
func (c *Collection) GlobalScale() Scale { return c.scale.normalized() }

// SetGlobalScale replaces the shared scale and pushes it to every distance
// and stroke. A non-positive factor is ignored; blank units keep the
// current units.
func (c *Collection) SetGlobalScale(factor float64, units string) {
	if factor > 0 {
		c.scale.Factor = factor
	}
	if strings.TrimSpace(units) != "" {
		c.scale.Units = units
	}
	c.scale = c.scale.normalized()
	for i := range c.Distances {
		c.Distances[i].Scale = c.scale
	}
	for i := range c.Strokes {
		c.Strokes[i].Scale = c.scale
	}
}

// Calibrate derives the global scale from a pixel length and free text such
// as "10 in". Unparsable or non-positive input leaves everything unchanged
// and returns false.
func (c *Collection) Calibrate(pixelLength float64, input string) bool {
	if !(pixelLength > 0) {
		return false
	}
	length, units, err := ParseCalibration(input)
	if err != nil {
		slog.Debug("Calibration input ignored", "input", input, "error", err)
		return false
	}
	factor := length / pixelLength
	if math.IsInf(factor, 0) {
		slog.Debug("Calibration factor overflows", "input", input, "pixel_length", pixelLength)
		return false
	}
	c.SetGlobalScale(factor, units)
	return true
}

// CalibrateDistance calibrates against the pixel length of distance index.
func (c *Collection) CalibrateDistance(index int, input string) bool {
	if index < 0 || index >= len(c.Distances) {
		return false
	}
	return c.Calibrate(c.Distances[index].PixelLength(), input)
}

// AddDistance appends a ruler that uses the global scale and returns its index.
func (c *Collection) AddDistance(start, end geometry.Point) int {
	c.Distances = append(c.Distances, NewDistance(start, end, c.GlobalScale()))
	return len(c.Distances) - 1
}

// AddAngle appends an angle measurement and returns its index.
func (c *Collection) AddAngle(arm1, vertex, arm3 geometry.Point) int {
	c.Angles = append(c.Angles, NewAngle(arm1, vertex, arm3))
	return len(c.Angles) - 1
}

// AddHorizontalLine appends a horizontal line at y.
func (c *Collection) AddHorizontalLine(y float64) int {
	c.HorizontalLines = append(c.HorizontalLines, NewHorizontalLine(y))
	return len(c.HorizontalLines) - 1
}

// AddVerticalLine appends a vertical line at x.
func (c *Collection) AddVerticalLine(x float64) int {
	c.VerticalLines = append(c.VerticalLines, NewVerticalLine(x))
	return len(c.VerticalLines) - 1
}

// AddStroke appends a freehand stroke that uses the global scale.
func (c *Collection) AddStroke(points []geometry.Point, col Color, thickness float64) int {
	c.Strokes = append(c.Strokes, NewStroke(points, col, thickness, c.GlobalScale()))
	return len(c.Strokes) - 1
}

// Kind selects a measurement list.
type Kind string

const (
	KindDistance       Kind = "distance"
	KindAngle          Kind = "angle"
	KindHorizontalLine Kind = "horizontal_line"
	KindVerticalLine   Kind = "vertical_line"
	KindStroke         Kind = "stroke"
)

var errUnknownKind = errors.New("unknown measurement kind")

// Move moves point pointIndex of measurement index of the given kind.
// Out-of-range indexes are ignored.
func (c *Collection) Move(kind Kind, index, pointIndex int, p geometry.Point) error {
	switch kind {
	case KindDistance:
		if index >= 0 && index < len(c.Distances) {
			c.Distances[index].Move(pointIndex, p)
		}
	case KindAngle:
		if index >= 0 && index < len(c.Angles) {
			c.Angles[index].Move(pointIndex, p)
		}
	case KindHorizontalLine:
		if index >= 0 && index < len(c.HorizontalLines) {
			c.HorizontalLines[index].Move(pointIndex, p)
		}
	case KindVerticalLine:
		if index >= 0 && index < len(c.VerticalLines) {
			c.VerticalLines[index].Move(pointIndex, p)
		}
	case KindStroke:
		if index >= 0 && index < len(c.Strokes) {
			c.Strokes[index].Move(pointIndex, p)
		}
	default:
		return errUnknownKind
	}
	return nil
}

// Remove deletes measurement index of the given kind. It reports whether
// anything was removed.
func (c *Collection) Remove(kind Kind, index int) bool {
	switch kind {
	case KindDistance:
		return removeAt(&c.Distances, index)
	case KindAngle:
		return removeAt(&c.Angles, index)
	case KindHorizontalLine:
		return removeAt(&c.HorizontalLines, index)
	case KindVerticalLine:
		return removeAt(&c.VerticalLines, index)
	case KindStroke:
		return removeAt(&c.Strokes, index)
	}
	return false
}

func removeAt[T any](s *[]T, i int) bool {
	if i < 0 || i >= len(*s) {
		return false
	}
	*s = append((*s)[:i], (*s)[i+1:]...)
	return true
}

// Clear removes every measurement. The global scale is kept.
func (c *Collection) Clear() {
	c.Distances = nil
	c.Angles = nil
	c.HorizontalLines = nil
	c.VerticalLines = nil
	c.Strokes = nil
}

// Len counts all measurements.
func (c *Collection) Len() int {
	return len(c.Distances) + len(c.Angles) + len(c.HorizontalLines) + len(c.VerticalLines) + len(c.Strokes)
}

// Labels returns the display labels of distances, angles and strokes in that order.
func (c *Collection) Labels() []string {
	var out []string
	for _, d := range c.Distances {
		out = append(out, d.Label())
	}
	for _, a := range c.Angles {
		out = append(out, a.Label())
	}
	for _, s := range c.Strokes {
		out = append(out, s.Label())
	}
	return out
}
