// Package warp resamples an image through a projective transform given as
// source/destination point correspondences.
package warp

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"runtime"
	"sync"

	"github.com/MeKo-Tech/pocrop/internal/geometry"
	"github.com/disintegration/imaging"
)

// ErrWarpFailure is returned when the correspondences cannot produce an image.
var ErrWarpFailure = errors.New("warp failed")

// Options controls the output viewport and fill.
type Options struct {
	// BestFit sizes the output to the whole transformed source image instead
	// of the bounding box of the destination points.
	BestFit bool `mapstructure:"best_fit" yaml:"best_fit" json:"best_fit"`
	// Background fills pixels that map outside the source.
	Background color.Color `mapstructure:"-" yaml:"-" json:"-"`
	// MaxPixels rejects viewports larger than this many pixels. Zero disables the check.
	MaxPixels int `mapstructure:"max_pixels" yaml:"max_pixels" json:"max_pixels"`
	// Workers is the number of row workers; zero uses runtime.NumCPU.
	Workers int `mapstructure:"workers" yaml:"workers" json:"workers"`
}

// DefaultOptions returns best-fit warping onto opaque black.
func DefaultOptions() Options {
	return Options{
		BestFit:    true,
		Background: color.NRGBA{A: 255},
		MaxPixels:  100_000_000,
	}
}

// Warp maps src through the homography defined by args, a flat list of
// (srcX, srcY, dstX, dstY) tuples. At least four tuples are required.
func Warp(src image.Image, args []float64, opts Options) (*image.NRGBA, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: nil source image", ErrWarpFailure)
	}
	if len(args) < 16 || len(args)%4 != 0 {
		return nil, fmt.Errorf("%w: need a multiple of 4 arguments, at least 16, got %d", ErrWarpFailure, len(args))
	}

	n := len(args) / 4
	srcPts := make([]geometry.Point, n)
	dstPts := make([]geometry.Point, n)
	for i := range n {
		srcPts[i] = geometry.Pt(args[i*4], args[i*4+1])
		dstPts[i] = geometry.Pt(args[i*4+2], args[i*4+3])
	}

	fwd, err := Estimate(srcPts, dstPts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWarpFailure, err)
	}
	inv, ok := fwd.Inverse()
	if !ok {
		return nil, fmt.Errorf("%w: transform is not invertible", ErrWarpFailure)
	}

	sb := src.Bounds()
	view, err := viewport(fwd, sb, dstPts, opts.BestFit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWarpFailure, err)
	}
	if view.Empty() {
		return nil, fmt.Errorf("%w: empty output viewport", ErrWarpFailure)
	}
	if opts.MaxPixels > 0 && view.Dx()*view.Dy() > opts.MaxPixels {
		return nil, fmt.Errorf("%w: output %dx%d exceeds %d pixels", ErrWarpFailure, view.Dx(), view.Dy(), opts.MaxPixels)
	}

	bg := opts.Background
	if bg == nil {
		bg = color.NRGBA{A: 255}
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	// imaging.Clone rebases the source to the origin.
	if sb.Min != (image.Point{}) {
		mx, my := float64(sb.Min.X), float64(sb.Min.Y)
		for k := range 3 {
			inv[k] -= mx * inv[6+k]
			inv[3+k] -= my * inv[6+k]
		}
	}

	in := imaging.Clone(src)
	out := image.NewNRGBA(image.Rect(0, 0, view.Dx(), view.Dy()))
	render(in, out, inv, view.Min, color.NRGBAModel.Convert(bg).(color.NRGBA), workers)
	return out, nil
}

// viewport returns the destination-space rectangle to render.
func viewport(fwd Homography, sb image.Rectangle, dst []geometry.Point, bestFit bool) (image.Rectangle, error) {
	var pts []geometry.Point
	if bestFit {
		corners := []geometry.Point{
			geometry.Pt(float64(sb.Min.X), float64(sb.Min.Y)),
			geometry.Pt(float64(sb.Max.X), float64(sb.Min.Y)),
			geometry.Pt(float64(sb.Max.X), float64(sb.Max.Y)),
			geometry.Pt(float64(sb.Min.X), float64(sb.Max.Y)),
		}
		sign := 0.0
		for _, c := range corners {
			denom := fwd[6]*c.X + fwd[7]*c.Y + fwd[8]
			if denom == 0 || (sign != 0 && math.Signbit(denom) != math.Signbit(sign)) {
				return image.Rectangle{}, errors.New("source image crosses the horizon of the transform")
			}
			sign = denom
			x, y, _ := fwd.Apply(c.X, c.Y)
			pts = append(pts, geometry.Pt(x, y))
		}
	} else {
		pts = dst
	}

	box := geometry.BoundingBox(pts)
	if math.IsNaN(box.Width()) || math.IsInf(box.Width(), 0) || math.IsNaN(box.Height()) || math.IsInf(box.Height(), 0) {
		return image.Rectangle{}, errors.New("non-finite output bounds")
	}
	const limit = 1 << 30
	if math.Abs(box.MinX) > limit || math.Abs(box.MaxX) > limit || math.Abs(box.MinY) > limit || math.Abs(box.MaxY) > limit {
		return image.Rectangle{}, errors.New("output bounds out of range")
	}
	// snap values within rounding noise of an integer before flooring
	const eps = 1e-6
	return image.Rect(
		int(math.Floor(box.MinX+eps)), int(math.Floor(box.MinY+eps)),
		int(math.Ceil(box.MaxX-eps)), int(math.Ceil(box.MaxY-eps)),
	), nil
}

// render fills out row by row in parallel. Output pixel (x, y) corresponds to
// destination coordinate origin + (x, y) sampled at the pixel centre.
func render(src, out *image.NRGBA, inv Homography, origin image.Point, bg color.NRGBA, workers int) {
	h := out.Bounds().Dy()
	if workers > h {
		workers = h
	}
	rows := make(chan int, h)
	for y := range h {
		rows <- y
	}
	close(rows)

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for y := range rows {
				renderRow(src, out, inv, origin, bg, y)
			}
		}()
	}
	wg.Wait()
}

func renderRow(src, out *image.NRGBA, inv Homography, origin image.Point, bg color.NRGBA, y int) {
	w := out.Bounds().Dx()
	row := out.Pix[y*out.Stride : y*out.Stride+w*4]
	dy := float64(origin.Y+y) + 0.5
	for x := range w {
		dx := float64(origin.X+x) + 0.5
		c := bg
		if sx, sy, ok := inv.Apply(dx, dy); ok {
			c = bilinearSample(src, sx-0.5, sy-0.5, bg)
		}
		row[x*4] = c.R
		row[x*4+1] = c.G
		row[x*4+2] = c.B
		row[x*4+3] = c.A
	}
}

// bilinearSample interpolates src at (x, y) in pixel-index coordinates.
// Points more than half a pixel outside the image get bg.
func bilinearSample(src *image.NRGBA, x, y float64, bg color.NRGBA) color.NRGBA {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	if math.IsNaN(x) || math.IsNaN(y) || x < -0.5 || y < -0.5 || x > float64(w)-0.5 || y > float64(h)-0.5 {
		return bg
	}
	x = math.Max(0, math.Min(x, float64(w-1)))
	y = math.Max(0, math.Min(y, float64(h-1)))
	x0, y0 := int(x), int(y)
	x1, y1 := min(x0+1, w-1), min(y0+1, h-1)
	fx, fy := x-float64(x0), y-float64(y0)

	p00 := src.Pix[y0*src.Stride+x0*4:]
	p10 := src.Pix[y0*src.Stride+x1*4:]
	p01 := src.Pix[y1*src.Stride+x0*4:]
	p11 := src.Pix[y1*src.Stride+x1*4:]

	var c [4]uint8
	for i := range 4 {
		top := lerp(float64(p00[i]), float64(p10[i]), fx)
		bot := lerp(float64(p01[i]), float64(p11[i]), fx)
		c[i] = uint8(lerp(top, bot, fy) + 0.5)
	}
	return color.NRGBA{R: c[0], G: c[1], B: c[2], A: c[3]}
}

func lerp(a, b, t float64) float64 { return a + (b-a)*t }
