package measurement

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/MeKo-Tech/pocrop/internal/geometry"
	"gopkg.in/yaml.v3"
)

// ErrSerialization is returned when a measurement record cannot be read or written.
var ErrSerialization = errors.New("measurement record serialization failed")

// DTO type tags.
const (
	TypeDistance       = "Distance"
	TypeAngle          = "Angle"
	TypeHorizontalLine = "HorizontalLine"
	TypeVerticalLine   = "VerticalLine"
)

// DistanceRecord is the persisted form of a Distance.
type DistanceRecord struct {
	Type          string         `json:"Type" yaml:"Type"`
	StartPosition geometry.Point `json:"StartPosition" yaml:"StartPosition"`
	EndPosition   geometry.Point `json:"EndPosition" yaml:"EndPosition"`
	ScaleFactor   float64        `json:"ScaleFactor" yaml:"ScaleFactor"`
	Units         string         `json:"Units" yaml:"Units"`
}

// AngleRecord is the persisted form of an Angle.
type AngleRecord struct {
	Type           string         `json:"Type" yaml:"Type"`
	Point1Position geometry.Point `json:"Point1Position" yaml:"Point1Position"`
	VertexPosition geometry.Point `json:"VertexPosition" yaml:"VertexPosition"`
	Point3Position geometry.Point `json:"Point3Position" yaml:"Point3Position"`
}

// LineRecord is the persisted form of a Line.
type LineRecord struct {
	Type            string  `json:"Type" yaml:"Type"`
	Position        float64 `json:"Position" yaml:"Position"`
	StrokeColor     string  `json:"StrokeColor" yaml:"StrokeColor"`
	StrokeThickness float64 `json:"StrokeThickness" yaml:"StrokeThickness"`
}

// StrokeRecord is the persisted geometry of a Stroke.
type StrokeRecord struct {
	Points    []geometry.Point `json:"Points" yaml:"Points"`
	Color     Color            `json:"Color" yaml:"Color"`
	Thickness float64          `json:"Thickness" yaml:"Thickness"`
}

// StrokeInfoRecord carries the derived length of the stroke at the same index.
type StrokeInfoRecord struct {
	PixelLength      float64 `json:"PixelLength" yaml:"PixelLength"`
	ScaledLength     float64 `json:"ScaledLength" yaml:"ScaledLength"`
	Units            string  `json:"Units" yaml:"Units"`
	DisplayPositionX float64 `json:"DisplayPositionX" yaml:"DisplayPositionX"`
	DisplayPositionY float64 `json:"DisplayPositionY" yaml:"DisplayPositionY"`
}

// CollectionRecord is the on-disk measurement document.
type CollectionRecord struct {
	DistanceMeasurements []DistanceRecord   `json:"DistanceMeasurements" yaml:"DistanceMeasurements"`
	AngleMeasurements    []AngleRecord      `json:"AngleMeasurements" yaml:"AngleMeasurements"`
	VerticalLines        []LineRecord       `json:"VerticalLines" yaml:"VerticalLines"`
	HorizontalLines      []LineRecord       `json:"HorizontalLines" yaml:"HorizontalLines"`
	InkStrokes           []StrokeRecord     `json:"InkStrokes" yaml:"InkStrokes"`
	StrokeInfos          []StrokeInfoRecord `json:"StrokeInfos" yaml:"StrokeInfos"`
	GlobalScaleFactor    float64            `json:"GlobalScaleFactor" yaml:"GlobalScaleFactor"`
	GlobalUnits          string             `json:"GlobalUnits" yaml:"GlobalUnits"`
}

// NewCollectionRecord returns an empty record with default scale. Lists are
// empty rather than nil so they encode as [].
func NewCollectionRecord() CollectionRecord {
	return CollectionRecord{
		DistanceMeasurements: []DistanceRecord{},
		AngleMeasurements:    []AngleRecord{},
		VerticalLines:        []LineRecord{},
		HorizontalLines:      []LineRecord{},
		InkStrokes:           []StrokeRecord{},
		StrokeInfos:          []StrokeInfoRecord{},
		GlobalScaleFactor:    DefaultFactor,
		GlobalUnits:          DefaultUnits,
	}
}

// ToRecord converts the collection into its persisted form.
func (c *Collection) ToRecord() CollectionRecord {
	r := NewCollectionRecord()
	g := c.GlobalScale()
	r.GlobalScaleFactor = g.Factor
	r.GlobalUnits = g.Units

	for _, d := range c.Distances {
		r.DistanceMeasurements = append(r.DistanceMeasurements, DistanceRecord{
			Type:          TypeDistance,
			StartPosition: d.Start,
			EndPosition:   d.End,
			ScaleFactor:   d.Scale.Factor,
			Units:         d.Scale.Units,
		})
	}
	for _, a := range c.Angles {
		r.AngleMeasurements = append(r.AngleMeasurements, AngleRecord{
			Type:           TypeAngle,
			Point1Position: a.Arm1,
			VertexPosition: a.Vertex,
			Point3Position: a.Arm3,
		})
	}
	for _, l := range c.VerticalLines {
		r.VerticalLines = append(r.VerticalLines, lineRecord(TypeVerticalLine, l))
	}
	for _, l := range c.HorizontalLines {
		r.HorizontalLines = append(r.HorizontalLines, lineRecord(TypeHorizontalLine, l))
	}
	for _, s := range c.Strokes {
		r.InkStrokes = append(r.InkStrokes, StrokeRecord{
			Points:    append([]geometry.Point{}, s.Points...),
			Color:     s.Color,
			Thickness: s.Thickness,
		})
		r.StrokeInfos = append(r.StrokeInfos, StrokeInfoRecord{
			PixelLength:      s.PixelLength(),
			ScaledLength:     s.ScaledLength(),
			Units:            s.Scale.Units,
			DisplayPositionX: s.LabelPosition.X,
			DisplayPositionY: s.LabelPosition.Y,
		})
	}
	return r
}

func lineRecord(typ string, l Line) LineRecord {
	return LineRecord{Type: typ, Position: l.Position, StrokeColor: l.StrokeColor, StrokeThickness: l.StrokeThickness}
}

func lineFromRecord(o Orientation, r LineRecord) Line {
	l := Line{Orientation: o, Position: r.Position, StrokeColor: r.StrokeColor, StrokeThickness: r.StrokeThickness}
	if l.StrokeColor == "" {
		l.StrokeColor = DefaultLineColor
	}
	if !(l.StrokeThickness > 0) {
		l.StrokeThickness = DefaultLineThickness
	}
	return l
}

// FromRecord builds a collection from its persisted form. Missing scale
// factors and units take their defaults. Strokes use the global scale; the
// units and label position of a matching stroke info are kept.
func FromRecord(r CollectionRecord) *Collection {
	c := NewCollection()
	c.scale = Scale{Factor: r.GlobalScaleFactor, Units: r.GlobalUnits}.normalized()

	for _, d := range r.DistanceMeasurements {
		c.Distances = append(c.Distances, NewDistance(d.StartPosition, d.EndPosition, Scale{Factor: d.ScaleFactor, Units: d.Units}))
	}
	for _, a := range r.AngleMeasurements {
		c.Angles = append(c.Angles, NewAngle(a.Point1Position, a.VertexPosition, a.Point3Position))
	}
	for _, l := range r.VerticalLines {
		c.VerticalLines = append(c.VerticalLines, lineFromRecord(Vertical, l))
	}
	for _, l := range r.HorizontalLines {
		c.HorizontalLines = append(c.HorizontalLines, lineFromRecord(Horizontal, l))
	}
	for i, s := range r.InkStrokes {
		stroke := NewStroke(s.Points, s.Color, s.Thickness, c.scale)
		if i < len(r.StrokeInfos) {
			info := r.StrokeInfos[i]
			if info.Units != "" {
				stroke.Scale.Units = info.Units
			}
			stroke.LabelPosition = geometry.Pt(info.DisplayPositionX, info.DisplayPositionY)
		}
		c.Strokes = append(c.Strokes, stroke)
	}
	return c
}

// Format is a record file encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatForPath picks YAML for .yaml/.yml and JSON otherwise.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Marshal encodes the record. JSON is indented with two spaces.
func (r CollectionRecord) Marshal(f Format) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	switch f {
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err = enc.Encode(r); err == nil {
			err = enc.Close()
		}
		data = buf.Bytes()
	default:
		data, err = json.MarshalIndent(r, "", "  ")
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerialization, err)
	}
	return data, nil
}

// UnmarshalRecord decodes a record. Missing top-level fields keep the
// defaults of NewCollectionRecord.
func UnmarshalRecord(data []byte, f Format) (CollectionRecord, error) {
	r := NewCollectionRecord()
	var err error
	switch f {
	case FormatYAML:
		err = yaml.Unmarshal(data, &r)
	default:
		err = json.Unmarshal(data, &r)
	}
	if err != nil {
		return CollectionRecord{}, fmt.Errorf("%w: %w", ErrSerialization, err)
	}
	return r, nil
}

// SaveFile writes the collection to path, choosing the format by extension.
func (c *Collection) SaveFile(path string) error {
	data, err := c.ToRecord().Marshal(FormatForPath(path))
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrSerialization, path, err)
	}
	return nil
}

// LoadFile reads a collection from path.
func LoadFile(path string) (*Collection, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: user-selected record file
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrSerialization, path, err)
	}
	r, err := UnmarshalRecord(data, FormatForPath(path))
	if err != nil {
		return nil, err
	}
	return FromRecord(r), nil
}

// LoadInto replaces the contents of c with the file at path. On failure c
// is left untouched.
func (c *Collection) LoadInto(path string) error {
	loaded, err := LoadFile(path)
	if err != nil {
		return err
	}
	*c = *loaded
	return nil
}
