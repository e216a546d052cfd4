package perspective

import (
	"math"
	"testing"

	"github.com/MeKo-Tech/pocrop/internal/geometry"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSolve_SquareScenario(t *testing.T) {
	quad := geometry.Quad{{X: 100, Y: 100}, {X: 500, Y: 100}, {X: 500, Y: 400}, {X: 100, Y: 400}}

	args, err := Solve(quad, Spec{Ratio: Square}, 1, geometry.Size{Width: 800, Height: 600})
	require.NoError(t, err)

	want := WarpArguments{
		100, 100, 0, 0,
		100, 400, 0, 400,
		500, 400, 400, 400,
		500, 100, 400, 0,
	}
	assert.Equal(t, want, args)
	size := args.OutputSize()
	assert.Equal(t, size.Width, size.Height)
}

func TestSolve_ScalesSourceAndWidth(t *testing.T) {
	quad := geometry.Quad{{X: 10, Y: 20}, {X: 110, Y: 20}, {X: 110, Y: 220}, {X: 10, Y: 220}}

	args, err := Solve(quad, Spec{Ratio: A4Portrait}, 2.5, geometry.Size{Width: 400, Height: 300})
	require.NoError(t, err)

	assert.Equal(t, geometry.Pt(25, 50), args.Source(0))
	assert.Equal(t, geometry.Pt(25, 550), args.Source(1))
	assert.Equal(t, geometry.Pt(275, 550), args.Source(2))
	assert.Equal(t, geometry.Pt(275, 50), args.Source(3))

	// 100 * 2.5 = 250; 250 * 297/210 = 353.57 -> 353
	assert.Equal(t, geometry.Size{Width: 250, Height: 353}, args.OutputSize())
}

func TestSolve_DegenerateFallsBackToDisplay(t *testing.T) {
	p := geometry.Pt(50, 50)
	quad := geometry.Quad{p, p, p, p}

	args, err := Solve(quad, Spec{Ratio: LetterPortrait}, 3, geometry.Size{Width: 640, Height: 480})
	require.NoError(t, err)
	assert.Equal(t, geometry.Size{Width: 640, Height: 480}, args.OutputSize())
	assert.Equal(t, geometry.Pt(150, 150), args.Source(0))
}

func TestSolve_CollinearPassesThrough(t *testing.T) {
	quad := geometry.Quad{{X: 0, Y: 0}, {X: 100, Y: 0}, {X: 200, Y: 0}, {X: 300, Y: 0}}
	args, err := Solve(quad, Spec{Ratio: Square}, 1, geometry.Size{Width: 10, Height: 10})
	require.NoError(t, err)
	assert.Equal(t, geometry.Size{Width: 300, Height: 300}, args.OutputSize())
}

func TestSolve_Custom(t *testing.T) {
	quad := geometry.Quad{{X: 0, Y: 0}, {X: 200, Y: 0}, {X: 200, Y: 100}, {X: 0, Y: 100}}

	args, err := Solve(quad, Spec{Ratio: Custom, CustomWidth: 4, CustomHeight: 3}, 1, geometry.Size{})
	require.NoError(t, err)
	assert.Equal(t, geometry.Size{Width: 200, Height: 150}, args.OutputSize())

	for _, s := range []Spec{
		{Ratio: Custom, CustomWidth: 0, CustomHeight: 3},
		{Ratio: Custom, CustomWidth: 4, CustomHeight: 0},
		{Ratio: Custom},
		{Ratio: Custom, CustomWidth: -4, CustomHeight: 3},
		{Ratio: Custom, CustomWidth: 4, CustomHeight: -3},
		{Ratio: Custom, CustomWidth: math.NaN(), CustomHeight: 3},
		{Ratio: Custom, CustomWidth: 4, CustomHeight: math.Inf(1)},
		{Ratio: AspectRatio(42)},
	} {
		_, err := Solve(quad, s, 1, geometry.Size{})
		assert.ErrorIs(t, err, ErrInvalidAspectRatio, "spec %+v", s)
	}
}

func TestSpecValue(t *testing.T) {
	tests := []struct {
		ratio AspectRatio
		want  float64
	}{
		{Square, 1},
		{LetterPortrait, 11 / 8.5},
		{LetterLandscape, 8.5 / 11},
		{A4Portrait, 297.0 / 210.0},
		{A4Landscape, 210.0 / 297.0},
		{UsDollarBillPortrait, 6.14 / 2.61},
		{UsDollarBillLandscape, 2.61 / 6.14},
	}
	for _, tt := range tests {
		t.Run(tt.ratio.String(), func(t *testing.T) {
			got, err := Spec{Ratio: tt.ratio}.Value()
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestParseAspectRatio(t *testing.T) {
	tests := []struct {
		in   string
		want AspectRatio
	}{
		{"square", Square},
		{"A4Portrait", A4Portrait},
		{"a4-landscape", A4Landscape},
		{"letter_portrait", LetterPortrait},
		{"US Dollar Bill Landscape", UsDollarBillLandscape},
		{"custom", Custom},
	}
	for _, tt := range tests {
		got, err := ParseAspectRatio(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseAspectRatio("golden")
	assert.ErrorIs(t, err, ErrInvalidAspectRatio)
}

func TestAspectRatioText(t *testing.T) {
	for _, r := range AspectRatios() {
		b, err := r.MarshalText()
		require.NoError(t, err)
		var back AspectRatio
		require.NoError(t, back.UnmarshalText(b))
		assert.Equal(t, r, back)
	}
	assert.Equal(t, "AspectRatio(99)", AspectRatio(99).String())
}

func TestScaleFactor(t *testing.T) {
	assert.InDelta(t, 2.0, ScaleFactor(1600, 800), 1e-12)
	assert.InDelta(t, 1.0, ScaleFactor(1600, 0), 1e-12)
}

// TestSolve_DestinationIsRectangle checks that for any convex quad and
// named ratio the destinations are exactly (0,0),(0,h),(w,h),(w,0).
func TestSolve_DestinationIsRectangle(t *testing.T) {
	properties := gopter.NewProperties(nil)

	genCoord := gen.Float64Range(0, 2000)
	named := []AspectRatio{Square, LetterPortrait, LetterLandscape, A4Portrait, A4Landscape, UsDollarBillPortrait, UsDollarBillLandscape}

	properties.Property("destinations form the output rectangle", prop.ForAll(
		func(x0, y0, x1, y1, x2, y2, x3, y3, scale float64, idx int) bool {
			quad := geometry.Quad{{X: x0, Y: y0}, {X: x1, Y: y1}, {X: x2, Y: y2}, {X: x3, Y: y3}}
			args, err := Solve(quad, Spec{Ratio: named[idx]}, scale, geometry.Size{Width: 640, Height: 480})
			if err != nil {
				return false
			}
			size := args.OutputSize()
			w, h := size.Width, size.Height
			return args.Destination(0) == geometry.Pt(0, 0) &&
				args.Destination(1) == geometry.Pt(0, h) &&
				args.Destination(2) == geometry.Pt(w, h) &&
				args.Destination(3) == geometry.Pt(w, 0) &&
				w >= 0 && h >= 0
		},
		genCoord, genCoord, genCoord, genCoord, genCoord, genCoord, genCoord, genCoord,
		gen.Float64Range(0.1, 8),
		gen.IntRange(0, len(named)-1),
	))

	properties.Property("solve is deterministic", prop.ForAll(
		func(x, y, w, h float64) bool {
			quad := geometry.Box{MinX: x, MinY: y, MaxX: x + w, MaxY: y + h}.Corners()
			a, errA := Solve(quad, Spec{Ratio: A4Portrait}, 1.5, geometry.Size{Width: 100, Height: 100})
			b, errB := Solve(quad, Spec{Ratio: A4Portrait}, 1.5, geometry.Size{Width: 100, Height: 100})
			return errA == nil && errB == nil && a == b
		},
		genCoord, genCoord, gen.Float64Range(1, 500), gen.Float64Range(1, 500),
	))

	properties.TestingRun(t)
}
