// Package filters implements the whole-image adjustments an editing session
// records in its history.
package filters

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"slices"

	"github.com/anthonynsimon/bild/adjust"
	"github.com/anthonynsimon/bild/effect"
	"github.com/anthonynsimon/bild/histogram"
	"github.com/disintegration/imaging"
)

// Filter names a parameterless adjustment.
type Filter string

const (
	AutoContrast   Filter = "auto_contrast"
	WhiteBalance   Filter = "white_balance"
	BlackPoint     Filter = "black_point"
	WhitePoint     Filter = "white_point"
	Grayscale      Filter = "grayscale"
	Invert         Filter = "invert"
	AutoLevels     Filter = "auto_levels"
	AutoGamma      Filter = "auto_gamma"
	RotateCW       Filter = "rotate_cw"
	RotateCCW      Filter = "rotate_ccw"
	FlipHorizontal Filter = "flip_horizontal"
	FlipVertical   Filter = "flip_vertical"
)

// Tuning constants for the adjustments.
const (
	ContrastMidpoint  = 0.5
	ContrastStrength  = 10.0
	BlackPointPercent = 10.0
	WhitePointPercent = 90.0
)

// ErrUnknownFilter is returned for names outside All.
var ErrUnknownFilter = errors.New("unknown filter")

var all = []Filter{
	AutoContrast, WhiteBalance, BlackPoint, WhitePoint, Grayscale, Invert,
	AutoLevels, AutoGamma, RotateCW, RotateCCW, FlipHorizontal, FlipVertical,
}

// All returns every supported filter.
func All() []Filter { return slices.Clone(all) }

// Parse validates a filter name.
func Parse(s string) (Filter, error) {
	f := Filter(s)
	if slices.Contains(all, f) {
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFilter, s)
}

// ChangesSize reports whether f can change the image dimensions.
func (f Filter) ChangesSize() bool {
	return f == RotateCW || f == RotateCCW
}

// Apply runs f on img and returns a new image.
func Apply(img image.Image, f Filter) (*image.NRGBA, error) {
	if img == nil {
		return nil, errors.New("input image is nil")
	}
	switch f {
	case AutoContrast:
		return imaging.AdjustSigmoid(img, ContrastMidpoint, ContrastStrength), nil
	case WhiteBalance:
		return grayWorld(img), nil
	case BlackPoint:
		return threshold(img, BlackPointPercent, true), nil
	case WhitePoint:
		return threshold(img, WhitePointPercent, false), nil
	case Grayscale:
		return imaging.Grayscale(img), nil
	case Invert:
		return imaging.Clone(effect.Invert(img)), nil
	case AutoLevels:
		return autoLevels(img), nil
	case AutoGamma:
		return autoGamma(img), nil
	case RotateCW:
		return imaging.Rotate270(img), nil
	case RotateCCW:
		return imaging.Rotate90(img), nil
	case FlipHorizontal:
		return imaging.FlipH(img), nil
	case FlipVertical:
		return imaging.FlipV(img), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFilter, string(f))
}

// threshold clamps channels below (black) or above (white) pct percent of
// full scale.
func threshold(img image.Image, pct float64, black bool) *image.NRGBA {
	limit := pct / 100 * 255
	clampChannel := func(v uint8) uint8 {
		switch {
		case black && float64(v) < limit:
			return 0
		case !black && float64(v) > limit:
			return 255
		}
		return v
	}
	out := adjust.Apply(img, func(c color.RGBA) color.RGBA {
		return color.RGBA{R: clampChannel(c.R), G: clampChannel(c.G), B: clampChannel(c.B), A: c.A}
	})
	return imaging.Clone(out)
}

// grayWorld scales each channel so the channel means become equal.
func grayWorld(img image.Image) *image.NRGBA {
	h := histogram.NewRGBAHistogram(img)
	mr, mg, mb := mean(h.R.Bins), mean(h.G.Bins), mean(h.B.Bins)
	gray := (mr + mg + mb) / 3
	if mr == 0 || mg == 0 || mb == 0 {
		return imaging.Clone(img)
	}
	kr, kg, kb := gray/mr, gray/mg, gray/mb

	out := adjust.Apply(img, func(c color.RGBA) color.RGBA {
		return color.RGBA{
			R: clamp8(float64(c.R) * kr),
			G: clamp8(float64(c.G) * kg),
			B: clamp8(float64(c.B) * kb),
			A: c.A,
		}
	})
	return imaging.Clone(out)
}

// autoLevels stretches the darkest channel value to 0 and the brightest to 255.
func autoLevels(img image.Image) *image.NRGBA {
	h := histogram.NewRGBAHistogram(img)
	lo, hi := 255, 0
	for _, bins := range [][]int{h.R.Bins, h.G.Bins, h.B.Bins} {
		l, u, ok := extent(bins)
		if !ok {
			continue
		}
		lo, hi = min(lo, l), max(hi, u)
	}
	if hi <= lo {
		return imaging.Clone(img)
	}
	span := float64(hi - lo)
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		stretch := func(v uint8) uint8 { return clamp8((float64(v) - float64(lo)) * 255 / span) }
		return color.NRGBA{R: stretch(c.R), G: stretch(c.G), B: stretch(c.B), A: c.A}
	})
}

// autoGamma picks the gamma that maps the mean intensity to mid-gray.
func autoGamma(img image.Image) *image.NRGBA {
	g := GammaForMean(meanIntensity(img))
	if g == 1 {
		return imaging.Clone(img)
	}
	return imaging.AdjustGamma(img, g)
}

// GammaForMean returns the gamma that maps a normalised mean m to 0.5 under
// out = in^(1/gamma). Degenerate means give 1.
func GammaForMean(m float64) float64 {
	if !(m > 0 && m < 1) {
		return 1
	}
	return math.Log(m) / math.Log(0.5)
}

func meanIntensity(img image.Image) float64 {
	h := histogram.NewRGBAHistogram(img)
	return (mean(h.R.Bins) + mean(h.G.Bins) + mean(h.B.Bins)) / 3 / 255
}

func mean(bins []int) float64 {
	var sum, n float64
	for v, c := range bins {
		sum += float64(v) * float64(c)
		n += float64(c)
	}
	if n == 0 {
		return 0
	}
	return sum / n
}

func extent(bins []int) (lo, hi int, ok bool) {
	lo, hi = -1, -1
	for v, c := range bins {
		if c == 0 {
			continue
		}
		if lo < 0 {
			lo = v
		}
		hi = v
	}
	return lo, hi, lo >= 0
}

func clamp8(v float64) uint8 {
	return uint8(math.Max(0, math.Min(255, math.Round(v))))
}

// Crop returns the part of img inside r, clipped to the image bounds.
func Crop(img image.Image, r image.Rectangle) (*image.NRGBA, error) {
	if img == nil {
		return nil, errors.New("input image is nil")
	}
	r = r.Canon().Intersect(img.Bounds())
	if r.Empty() {
		return nil, errors.New("crop rectangle does not overlap the image")
	}
	return imaging.Crop(img, r), nil
}

// Resize scales img to exactly w x h with Lanczos resampling.
func Resize(img image.Image, w, h int) (*image.NRGBA, error) {
	if img == nil {
		return nil, errors.New("input image is nil")
	}
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("invalid size %dx%d", w, h)
	}
	return imaging.Resize(img, w, h, imaging.Lanczos), nil
}
