package testutil

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"path/filepath"
	"testing"

	"github.com/MeKo-Tech/pocrop/internal/geometry"
	"github.com/MeKo-Tech/pocrop/internal/imageio"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// ImageSize represents common image dimensions.
type ImageSize struct {
	Width  int
	Height int
}

var (
	// Common test image sizes.
	SmallSize  = ImageSize{320, 240}
	MediumSize = ImageSize{640, 480}
)

// DocumentConfig describes a synthetic photo of a sheet of paper.
type DocumentConfig struct {
	Size       ImageSize
	Corners    geometry.Quad // TL, TR, BR, BL of the sheet
	Background color.Color
	Paper      color.Color
	Ink        color.Color
	Lines      []string
}

// DefaultDocumentConfig returns an axis-aligned white sheet on a dark table.
func DefaultDocumentConfig() DocumentConfig {
	return DocumentConfig{
		Size:       ImageSize{400, 300},
		Corners:    geometry.NewBox(60, 50, 340, 250).Corners(),
		Background: color.NRGBA{R: 20, G: 20, B: 24, A: 255},
		Paper:      color.White,
		Ink:        color.Black,
	}
}

// SkewedDocumentConfig returns a sheet photographed at an angle.
func SkewedDocumentConfig() DocumentConfig {
	cfg := DefaultDocumentConfig()
	cfg.Size = MediumSize
	cfg.Corners = geometry.Quad{{X: 140, Y: 90}, {X: 500, Y: 70}, {X: 560, Y: 410}, {X: 90, Y: 390}}
	return cfg
}

// GenerateDocumentImage renders the sheet described by cfg.
func GenerateDocumentImage(cfg DocumentConfig) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, cfg.Size.Width, cfg.Size.Height))
	draw.Draw(img, img.Bounds(), &image.Uniform{cfg.Background}, image.Point{}, draw.Src)

	q := cfg.Corners
	box := q.Bounds().ToRect(img.Bounds())
	for y := box.Min.Y; y < box.Max.Y; y++ {
		for x := box.Min.X; x < box.Max.X; x++ {
			if insideConvex(q, geometry.Pt(float64(x)+0.5, float64(y)+0.5)) {
				img.Set(x, y, cfg.Paper)
			}
		}
	}

	if len(cfg.Lines) > 0 {
		face := basicfont.Face7x13
		d := &font.Drawer{Dst: img, Src: &image.Uniform{cfg.Ink}, Face: face}
		c := geometry.Centroid(q[:])
		lineHeight := face.Metrics().Height.Ceil()
		y := int(c.Y) - len(cfg.Lines)*lineHeight/2
		for i, line := range cfg.Lines {
			w := font.MeasureString(face, line).Ceil()
			d.Dot = fixed.P(int(c.X)-w/2, y+(i+1)*lineHeight)
			d.DrawString(line)
		}
	}
	return img
}

func insideConvex(q geometry.Quad, p geometry.Point) bool {
	sign := 0.0
	for i := range 4 {
		a, b := q[i], q[(i+1)%4]
		c := (b.X-a.X)*(p.Y-a.Y) - (b.Y-a.Y)*(p.X-a.X)
		if c == 0 {
			continue
		}
		if sign == 0 {
			sign = c
		} else if (c > 0) != (sign > 0) {
			return false
		}
	}
	return true
}

// WriteDocument renders cfg into dir/name and returns the path.
func WriteDocument(t *testing.T, dir, name string, cfg DocumentConfig) string {
	t.Helper()
	path := filepath.Join(dir, name)
	SaveImage(t, GenerateDocumentImage(cfg), path)
	return path
}

// CreateTestImage creates a uniform image.
func CreateTestImage(width, height int, c color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{c}, image.Point{}, draw.Src)
	return img
}

// SaveImage saves an image in the format implied by the path.
func SaveImage(t *testing.T, img image.Image, path string) {
	t.Helper()
	require.NoError(t, EnsureDir(filepath.Dir(path)))
	require.NoError(t, imageio.Save(img, path, 95), "Failed to save image %s", path)
}

// LoadImage loads an image from the specified path.
func LoadImage(t *testing.T, path string) image.Image {
	t.Helper()
	img, _, err := imageio.Load(path)
	require.NoError(t, err, "Failed to load image %s", path)
	return img
}

// CompareImages reports whether two images have the same bounds and a mean
// colour difference within tolerance (0..1).
func CompareImages(img1, img2 image.Image, tolerance float64) bool {
	bounds1 := img1.Bounds()
	bounds2 := img2.Bounds()
	if bounds1.Size() != bounds2.Size() {
		return false
	}

	var totalDiff, pixelCount float64
	for y := range bounds1.Dy() {
		for x := range bounds1.Dx() {
			r1, g1, b1, a1 := img1.At(bounds1.Min.X+x, bounds1.Min.Y+y).RGBA()
			r2, g2, b2, a2 := img2.At(bounds2.Min.X+x, bounds2.Min.Y+y).RGBA()

			dr := float64(r1) - float64(r2)
			dg := float64(g1) - float64(g2)
			db := float64(b1) - float64(b2)
			da := float64(a1) - float64(a2)
			totalDiff += math.Sqrt(dr*dr + dg*dg + db*db + da*da)
			pixelCount++
		}
	}
	if pixelCount == 0 {
		return true
	}
	maxDiff := math.Sqrt(4 * 65535 * 65535)
	return (totalDiff/pixelCount)/maxDiff <= tolerance
}
