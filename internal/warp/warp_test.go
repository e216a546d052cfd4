package warp

import (
	"image"
	"image/color"
	"testing"

	"github.com/MeKo-Tech/pocrop/internal/geometry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gradientImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 255 / max(1, w-1)), G: uint8(y * 255 / max(1, h-1)), B: 80, A: 255})
		}
	}
	return img
}

func TestEstimate_Identity(t *testing.T) {
	pts := []geometry.Point{{X: 0, Y: 0}, {X: 100, Y: 0}, {X: 100, Y: 100}, {X: 0, Y: 100}}
	h, err := Estimate(pts, pts)
	require.NoError(t, err)
	want := Homography{1, 0, 0, 0, 1, 0, 0, 0, 1}
	for i := range h {
		assert.InDelta(t, want[i], h[i], 1e-9)
	}
}

func TestEstimate_MapsCorrespondences(t *testing.T) {
	src := []geometry.Point{{X: 12, Y: 30}, {X: 410, Y: 8}, {X: 390, Y: 300}, {X: 40, Y: 280}}
	dst := []geometry.Point{{X: 0, Y: 0}, {X: 400, Y: 0}, {X: 400, Y: 300}, {X: 0, Y: 300}}

	h, err := Estimate(src, dst)
	require.NoError(t, err)
	for i := range src {
		x, y, ok := h.Apply(src[i].X, src[i].Y)
		require.True(t, ok)
		assert.InDelta(t, dst[i].X, x, 1e-6)
		assert.InDelta(t, dst[i].Y, y, 1e-6)
	}

	inv, ok := h.Inverse()
	require.True(t, ok)
	x, y, ok := inv.Apply(400, 300)
	require.True(t, ok)
	assert.InDelta(t, 390, x, 1e-6)
	assert.InDelta(t, 300, y, 1e-6)
}

func TestEstimate_LeastSquares(t *testing.T) {
	truth := Homography{1.2, 0.1, 5, -0.05, 0.9, 12, 0.0004, 0.0002, 1}
	var src, dst []geometry.Point
	for _, p := range []geometry.Point{{X: 0, Y: 0}, {X: 200, Y: 0}, {X: 200, Y: 150}, {X: 0, Y: 150}, {X: 100, Y: 75}, {X: 30, Y: 120}} {
		x, y, ok := truth.Apply(p.X, p.Y)
		require.True(t, ok)
		src = append(src, p)
		dst = append(dst, geometry.Pt(x, y))
	}

	h, err := Estimate(src, dst)
	require.NoError(t, err)
	for i := range truth {
		assert.InDelta(t, truth[i], h[i], 1e-6)
	}
}

func TestEstimate_Errors(t *testing.T) {
	_, err := Estimate([]geometry.Point{{X: 0, Y: 0}}, []geometry.Point{{X: 0, Y: 0}})
	assert.Error(t, err)

	collinear := []geometry.Point{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 2, Y: 0}, {X: 3, Y: 0}}
	rect := []geometry.Point{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10}}
	_, err = Estimate(collinear, rect)
	assert.Error(t, err)
}

func TestSolve8x8(t *testing.T) {
	var a [8][8]float64
	var b [8]float64
	for i := range 8 {
		a[i][i] = 2
		b[i] = float64(i + 1)
	}
	x, ok := solve8x8(a, b)
	require.True(t, ok)
	for i := range 8 {
		assert.InDelta(t, float64(i+1)/2, x[i], 1e-12)
	}

	_, ok = solve8x8([8][8]float64{}, b)
	assert.False(t, ok)
}

func TestHomographyApply_ZeroDenominator(t *testing.T) {
	h := Homography{1, 0, 0, 0, 1, 0, 0, 0, 0}
	_, _, ok := h.Apply(0, 0)
	assert.False(t, ok)
}

func TestWarp_IdentityReproducesImage(t *testing.T) {
	src := gradientImage(40, 30)
	args := []float64{
		0, 0, 0, 0,
		0, 30, 0, 30,
		40, 30, 40, 30,
		40, 0, 40, 0,
	}
	out, err := Warp(src, args, DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, src.Bounds(), out.Bounds())
	assert.Equal(t, src.Pix, out.Pix)
}

func TestWarp_ScaleViewport(t *testing.T) {
	src := gradientImage(50, 50)
	args := []float64{
		10, 10, 0, 0,
		10, 40, 0, 60,
		40, 40, 60, 60,
		40, 10, 60, 0,
	}

	opts := DefaultOptions()
	opts.BestFit = false
	out, err := Warp(src, args, opts)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 60, 60), out.Bounds())

	opts.BestFit = true
	out, err = Warp(src, args, opts)
	require.NoError(t, err)
	assert.Equal(t, 100, out.Bounds().Dx(), "whole source scaled by 2")
	assert.Equal(t, 100, out.Bounds().Dy())
}

func TestWarp_Background(t *testing.T) {
	src := gradientImage(20, 20)
	// shrink the source into the middle of a larger destination box
	args := []float64{
		0, 0, 10, 10,
		0, 20, 10, 30,
		20, 20, 30, 30,
		20, 0, 30, 10,
		-20, -20, -10, -10,
	}
	opts := DefaultOptions()
	opts.BestFit = false
	opts.Background = color.NRGBA{R: 255, A: 255}

	out, err := Warp(src, args, opts)
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{R: 255, A: 255}, out.NRGBAAt(2, 2))
}

func TestWarp_Failures(t *testing.T) {
	src := gradientImage(10, 10)

	_, err := Warp(src, []float64{1, 2, 3}, DefaultOptions())
	assert.ErrorIs(t, err, ErrWarpFailure)

	_, err = Warp(nil, make([]float64, 16), DefaultOptions())
	assert.ErrorIs(t, err, ErrWarpFailure)

	degenerate := []float64{
		5, 5, 0, 0,
		5, 5, 0, 10,
		5, 5, 10, 10,
		5, 5, 10, 0,
	}
	_, err = Warp(src, degenerate, DefaultOptions())
	assert.ErrorIs(t, err, ErrWarpFailure)

	opts := DefaultOptions()
	opts.MaxPixels = 10
	_, err = Warp(src, []float64{0, 0, 0, 0, 0, 10, 0, 10, 10, 10, 10, 10, 10, 0, 10, 0}, opts)
	assert.ErrorIs(t, err, ErrWarpFailure)
}

func TestWarp_OffsetSourceBounds(t *testing.T) {
	base := gradientImage(30, 30)
	sub := base.SubImage(image.Rect(10, 10, 30, 30))
	args := []float64{
		10, 10, 0, 0,
		10, 30, 0, 20,
		30, 30, 20, 20,
		30, 10, 20, 0,
	}
	opts := DefaultOptions()
	opts.BestFit = false
	out, err := Warp(sub, args, opts)
	require.NoError(t, err)
	assert.Equal(t, base.NRGBAAt(10, 10), out.NRGBAAt(0, 0))
	assert.Equal(t, base.NRGBAAt(29, 29), out.NRGBAAt(19, 19))
}

func TestBilinearSample(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 0, A: 255})
	img.SetNRGBA(1, 0, color.NRGBA{R: 200, A: 255})
	bg := color.NRGBA{B: 9, A: 255}

	assert.Equal(t, uint8(100), bilinearSample(img, 0.5, 0, bg).R)
	assert.Equal(t, bg, bilinearSample(img, -1, 0, bg))
	assert.Equal(t, bg, bilinearSample(img, 0, 3, bg))
}
