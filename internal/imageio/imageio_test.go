package imageio

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.NRGBA{R: uint8(x * 4), G: uint8(y * 4), B: 128, A: 255})
		}
	}
	return img
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"jpg", JPEG, false},
		{".JPEG", JPEG, false},
		{"png", PNG, false},
		{".bmp", BMP, false},
		{"tif", TIFF, false},
		{"TIFF", TIFF, false},
		{"gif", GIF, false},
		{".pdf", PDF, false},
		{"webp", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsSupportedImage(t *testing.T) {
	assert.True(t, IsSupportedImage("a.JPG"))
	assert.True(t, IsSupportedImage("a.webp"))
	assert.True(t, IsSupportedImage("dir/a.tiff"))
	assert.False(t, IsSupportedImage("a.pdf"))
	assert.False(t, IsSupportedImage("a"))
	assert.True(t, IsPDF("x.PDF"))
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := testImage(40, 30)

	for _, ext := range []string{".png", ".bmp", ".tiff", ".gif", ".jpg"} {
		t.Run(ext, func(t *testing.T) {
			path := filepath.Join(dir, "img"+ext)
			require.NoError(t, Save(src, path, 90))

			img, meta, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, 40, meta.Width)
			assert.Equal(t, 30, meta.Height)
			assert.Equal(t, path, meta.Path)
			assert.Positive(t, meta.SizeBytes)
			assert.Equal(t, src.Bounds().Size(), img.Bounds().Size())

			w, h, err := Dimensions(path)
			require.NoError(t, err)
			assert.Equal(t, 40, w)
			assert.Equal(t, 30, h)
		})
	}
}

func TestLosslessFormatsKeepPixels(t *testing.T) {
	dir := t.TempDir()
	src := testImage(8, 8)
	for _, ext := range []string{".png", ".bmp", ".tiff"} {
		path := filepath.Join(dir, "px"+ext)
		require.NoError(t, Save(src, path, 0))
		img, _, err := Load(path)
		require.NoError(t, err)
		r, g, b, _ := img.At(5, 3).RGBA()
		assert.Equal(t, uint32(20), r>>8, ext)
		assert.Equal(t, uint32(12), g>>8, ext)
		assert.Equal(t, uint32(128), b>>8, ext)
	}
}

func TestLoadErrors(t *testing.T) {
	_, _, err := Load("")
	var ioErr *Error
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, "load", ioErr.Operation)

	_, _, err = Load("notes.txt")
	require.ErrorAs(t, err, &ioErr)
	assert.Contains(t, err.Error(), "unsupported format")

	_, _, err = Load(filepath.Join(t.TempDir(), "missing.png"))
	require.ErrorAs(t, err, &ioErr)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	bad := filepath.Join(t.TempDir(), "bad.png")
	require.NoError(t, os.WriteFile(bad, []byte("not a png"), 0o600))
	_, _, err = Load(bad)
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, "decode", ioErr.Operation)
	assert.Equal(t, bad, ioErr.Path)
}

func TestEncodeRejectsPDF(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, Encode(&buf, testImage(2, 2), PDF, 0))
}

func TestExportResize(t *testing.T) {
	dir := t.TempDir()
	src := testImage(100, 50)

	path := filepath.Join(dir, "fit.png")
	require.NoError(t, Export(src, path, SaveOptions{Width: 40, Height: 40, MaintainAspectRatio: true}))
	w, h, err := Dimensions(path)
	require.NoError(t, err)
	assert.Equal(t, 40, w)
	assert.Equal(t, 20, h)

	path = filepath.Join(dir, "stretch.png")
	require.NoError(t, Export(src, path, SaveOptions{Format: PNG, Width: 40, Height: 40}))
	w, h, err = Dimensions(path)
	require.NoError(t, err)
	assert.Equal(t, 40, w)
	assert.Equal(t, 40, h)

	path = filepath.Join(dir, "width-only.png")
	require.NoError(t, Export(src, path, SaveOptions{Width: 50}))
	w, h, err = Dimensions(path)
	require.NoError(t, err)
	assert.Equal(t, 50, w)
	assert.Equal(t, 25, h)
}

func TestExportErrors(t *testing.T) {
	var ioErr *Error
	err := Export(nil, "x.png", DefaultSaveOptions())
	require.ErrorAs(t, err, &ioErr)

	err = Export(testImage(2, 2), filepath.Join(t.TempDir(), "x.unknown"), SaveOptions{})
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, "export", ioErr.Operation)
}

func TestExportPDF(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.pdf")
	require.NoError(t, Export(testImage(64, 48), path, SaveOptions{Format: PDF, Quality: 80}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))

	// exporting again replaces rather than appends
	require.NoError(t, Save(testImage(64, 48), path, 80))
	img, err := LoadPDFPage(path, 1)
	require.NoError(t, err)
	assert.Equal(t, image.Pt(64, 48), img.Bounds().Size())
}

func TestLoadPDFPageInvalid(t *testing.T) {
	_, err := LoadPDFPage("x.pdf", 0)
	var ioErr *Error
	assert.ErrorAs(t, err, &ioErr)
}

func TestLoadPDFPageOutOfRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "one.pdf")
	require.NoError(t, Export(testImage(32, 32), path, SaveOptions{Format: PDF, Quality: 80}))

	_, err := LoadPDFPage(path, 5)
	var ioErr *Error
	assert.ErrorAs(t, err, &ioErr)
}

func TestPageCountMissingFile(t *testing.T) {
	_, err := PageCount(filepath.Join(t.TempDir(), "missing.pdf"))
	assert.Error(t, err)
}
