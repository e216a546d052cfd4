package measurement

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

const (
	// DefaultUnits is used when no unit has been set.
	DefaultUnits = "pixels"
	// DefaultFactor is one real-world unit per pixel.
	DefaultFactor = 1.0
)

// ErrCalibrationParse is returned when a real-world length cannot be read
// as a positive number.
var ErrCalibrationParse = errors.New("cannot parse calibration length")

// Scale converts pixel lengths to real-world units.
type Scale struct {
	Factor float64 `json:"factor" yaml:"factor"`
	Units  string  `json:"units" yaml:"units"`
}

// DefaultScale is one pixel per pixel.
func DefaultScale() Scale { return Scale{Factor: DefaultFactor, Units: DefaultUnits} }

// normalized replaces a non-positive factor and blank units with the defaults.
func (s Scale) normalized() Scale {
	if !(s.Factor > 0) {
		s.Factor = DefaultFactor
	}
	if strings.TrimSpace(s.Units) == "" {
		s.Units = DefaultUnits
	}
	return s
}

// Apply scales a pixel length.
func (s Scale) Apply(pixels float64) float64 { return pixels * s.Factor }

func (s Scale) String() string { return fmt.Sprintf("%g %s/px", s.Factor, s.Units) }

// ParseCalibration reads free text such as "8.5 in" into a length and an
// optional unit. Tokens are separated by spaces; extra tokens are ignored.
func ParseCalibration(input string) (float64, string, error) {
	var tokens []string
	for _, t := range strings.Split(strings.TrimSpace(input), " ") {
		if t != "" {
			tokens = append(tokens, t)
		}
	}
	if len(tokens) == 0 {
		return 0, "", fmt.Errorf("%w: empty input", ErrCalibrationParse)
	}
	v, err := strconv.ParseFloat(tokens[0], 64)
	if err != nil {
		return 0, "", fmt.Errorf("%w: %q", ErrCalibrationParse, tokens[0])
	}
	if !(v > 0) || math.IsInf(v, 0) {
		return 0, "", fmt.Errorf("%w: length must be positive and finite, got %g", ErrCalibrationParse, v)
	}
	units := ""
	if len(tokens) > 1 {
		units = norm.NFC.String(tokens[1])
	}
	return v, units, nil
}
