package perspective

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/cases"
)

// ErrInvalidAspectRatio is returned for an unknown ratio or a custom ratio
// without a positive width and height.
var ErrInvalidAspectRatio = errors.New("invalid aspect ratio")

// AspectRatio names a target height/width ratio for the corrected image.
type AspectRatio int

const (
	Square AspectRatio = iota
	LetterPortrait
	LetterLandscape
	A4Portrait
	A4Landscape
	UsDollarBillPortrait
	UsDollarBillLandscape
	Custom
)

var ratioNames = [...]string{
	Square:                "Square",
	LetterPortrait:        "LetterPortrait",
	LetterLandscape:       "LetterLandscape",
	A4Portrait:            "A4Portrait",
	A4Landscape:           "A4Landscape",
	UsDollarBillPortrait:  "UsDollarBillPortrait",
	UsDollarBillLandscape: "UsDollarBillLandscape",
	Custom:                "Custom",
}

// height/width
var ratioValues = map[AspectRatio]float64{
	Square:                1,
	LetterPortrait:        11 / 8.5,
	LetterLandscape:       8.5 / 11,
	A4Portrait:            297.0 / 210.0,
	A4Landscape:           210.0 / 297.0,
	UsDollarBillPortrait:  6.14 / 2.61,
	UsDollarBillLandscape: 2.61 / 6.14,
}

func (a AspectRatio) String() string {
	if a < 0 || int(a) >= len(ratioNames) {
		return fmt.Sprintf("AspectRatio(%d)", int(a))
	}
	return ratioNames[a]
}

// AspectRatios lists every named ratio in declaration order.
func AspectRatios() []AspectRatio {
	out := make([]AspectRatio, 0, len(ratioNames))
	for i := range ratioNames {
		out = append(out, AspectRatio(i))
	}
	return out
}

var folder = cases.Fold()

// ParseAspectRatio resolves a ratio by name, ignoring case and the
// separators '-', '_' and ' '.
func ParseAspectRatio(name string) (AspectRatio, error) {
	key := normalizeName(name)
	for i, n := range ratioNames {
		if normalizeName(n) == key {
			return AspectRatio(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown ratio %q", ErrInvalidAspectRatio, name)
}

func normalizeName(s string) string {
	s = strings.NewReplacer("-", "", "_", "", " ", "").Replace(s)
	return folder.String(s)
}

// MarshalText implements encoding.TextMarshaler.
func (a AspectRatio) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *AspectRatio) UnmarshalText(b []byte) error {
	v, err := ParseAspectRatio(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// Spec selects the target ratio of one correction. CustomWidth and
// CustomHeight are only read for Custom.
type Spec struct {
	Ratio        AspectRatio `json:"ratio" yaml:"ratio"`
	CustomWidth  float64     `json:"custom_width,omitempty" yaml:"custom_width,omitempty"`
	CustomHeight float64     `json:"custom_height,omitempty" yaml:"custom_height,omitempty"`
}

// Value returns the height/width ratio. Custom needs both dimensions.
func (s Spec) Value() (float64, error) {
	if s.Ratio == Custom {
		if !(s.CustomWidth > 0) || !(s.CustomHeight > 0) || math.IsInf(s.CustomWidth, 0) || math.IsInf(s.CustomHeight, 0) {
			return 0, fmt.Errorf("%w: custom ratio needs positive width and height (got %gx%g)",
				ErrInvalidAspectRatio, s.CustomWidth, s.CustomHeight)
		}
		return s.CustomHeight / s.CustomWidth, nil
	}
	v, ok := ratioValues[s.Ratio]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrInvalidAspectRatio, s.Ratio)
	}
	return v, nil
}
