// Package imageio loads, saves and exports the images an editing session
// works on.
package imageio

import (
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/disintegration/imaging"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DefaultJPEGQuality is used when SaveOptions.Quality is zero.
const DefaultJPEGQuality = 95

// Error reports a failed codec operation.
type Error struct {
	Operation string
	Path      string
	Err       error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("image %s failed: %v", e.Operation, e.Err)
	}
	return fmt.Sprintf("image %s failed for %s: %v", e.Operation, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Format is an output encoding.
type Format string

const (
	JPEG Format = "jpg"
	PNG  Format = "png"
	BMP  Format = "bmp"
	TIFF Format = "tiff"
	GIF  Format = "gif"
	PDF  Format = "pdf"
)

// ReadableExtensions lists the extensions Load accepts.
var ReadableExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".tif", ".tiff", ".gif", ".webp"}

// IsSupportedImage reports whether path has a readable image extension.
func IsSupportedImage(path string) bool {
	return slices.Contains(ReadableExtensions, strings.ToLower(filepath.Ext(path)))
}

// FormatForPath maps a file extension to an output format.
func FormatForPath(path string) (Format, error) {
	return ParseFormat(filepath.Ext(path))
}

// ParseFormat accepts a format name or extension, with or without the dot.
func ParseFormat(s string) (Format, error) {
	switch strings.TrimPrefix(strings.ToLower(s), ".") {
	case "jpg", "jpeg":
		return JPEG, nil
	case "png":
		return PNG, nil
	case "bmp":
		return BMP, nil
	case "tif", "tiff":
		return TIFF, nil
	case "gif":
		return GIF, nil
	case "pdf":
		return PDF, nil
	}
	return "", fmt.Errorf("unsupported output format: %q", s)
}

// Metadata describes a decoded file.
type Metadata struct {
	Path      string
	Format    string
	SizeBytes int64
	Width     int
	Height    int
}

// Load opens and decodes an image file.
func Load(path string) (image.Image, Metadata, error) {
	if path == "" {
		return nil, Metadata{}, &Error{Operation: "load", Err: errors.New("empty path")}
	}
	if !IsSupportedImage(path) {
		return nil, Metadata{}, &Error{Operation: "load", Path: path, Err: fmt.Errorf("unsupported format: %s", filepath.Ext(path))}
	}

	f, err := os.Open(path) //nolint:gosec // G304: reading a user-selected image is expected
	if err != nil {
		return nil, Metadata{}, &Error{Operation: "load", Path: path, Err: err}
	}
	defer func() { _ = f.Close() }()

	fi, err := f.Stat()
	if err != nil {
		return nil, Metadata{}, &Error{Operation: "load", Path: path, Err: err}
	}
	img, format, err := Decode(f)
	if err != nil {
		return nil, Metadata{}, &Error{Operation: "decode", Path: path, Err: err}
	}

	b := img.Bounds()
	return img, Metadata{
		Path:      path,
		Format:    format,
		SizeBytes: fi.Size(),
		Width:     b.Dx(),
		Height:    b.Dy(),
	}, nil
}

// Decode decodes any registered format from r.
func Decode(r io.Reader) (image.Image, string, error) {
	return image.Decode(r)
}

// Dimensions returns the pixel size of an image file without decoding it fully.
func Dimensions(path string) (int, int, error) {
	f, err := os.Open(path) //nolint:gosec // G304: reading a user-selected image is expected
	if err != nil {
		return 0, 0, &Error{Operation: "load", Path: path, Err: err}
	}
	defer func() { _ = f.Close() }()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, &Error{Operation: "decode", Path: path, Err: err}
	}
	return cfg.Width, cfg.Height, nil
}

// Encode writes img to w in the given raster format. PDF is not a raster
// format; use Export for it.
func Encode(w io.Writer, img image.Image, f Format, quality int) error {
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	switch f {
	case JPEG:
		return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
	case PNG:
		return png.Encode(w, img)
	case BMP:
		return bmp.Encode(w, img)
	case TIFF:
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	case GIF:
		return gif.Encode(w, img, nil)
	}
	return fmt.Errorf("cannot encode %q", f)
}

// Save writes img to path, choosing the format from the extension.
func Save(img image.Image, path string, quality int) error {
	f, err := FormatForPath(path)
	if err != nil {
		return &Error{Operation: "save", Path: path, Err: err}
	}
	if f == PDF {
		return Export(img, path, SaveOptions{Format: PDF, Quality: quality})
	}
	return writeRaster(img, path, f, quality)
}

func writeRaster(img image.Image, path string, f Format, quality int) (err error) {
	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600) //nolint:gosec // G304: user-selected output path
	if err != nil {
		return &Error{Operation: "save", Path: path, Err: err}
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = &Error{Operation: "save", Path: path, Err: cerr}
		}
	}()
	if err := Encode(out, img, f, quality); err != nil {
		return &Error{Operation: "encode", Path: path, Err: err}
	}
	return nil
}

// SaveOptions control Export.
type SaveOptions struct {
	Format              Format `mapstructure:"format" yaml:"format" json:"format"`
	Quality             int    `mapstructure:"quality" yaml:"quality" json:"quality"`
	Width               int    `mapstructure:"width" yaml:"width" json:"width"`
	Height              int    `mapstructure:"height" yaml:"height" json:"height"`
	MaintainAspectRatio bool   `mapstructure:"maintain_aspect_ratio" yaml:"maintain_aspect_ratio" json:"maintain_aspect_ratio"`
}

// DefaultSaveOptions exports full-size JPEG.
func DefaultSaveOptions() SaveOptions {
	return SaveOptions{Format: JPEG, Quality: DefaultJPEGQuality, MaintainAspectRatio: true}
}

// Export writes img to path with optional resizing. An empty Format is
// derived from the path extension.
func Export(img image.Image, path string, opts SaveOptions) error {
	if img == nil {
		return &Error{Operation: "export", Path: path, Err: errors.New("input image is nil")}
	}
	f := opts.Format
	if f == "" {
		var err error
		if f, err = FormatForPath(path); err != nil {
			return &Error{Operation: "export", Path: path, Err: err}
		}
	}
	img = ResizeForExport(img, opts.Width, opts.Height, opts.MaintainAspectRatio)

	if f == PDF {
		return exportPDF(img, path, opts.Quality)
	}
	return writeRaster(img, path, f, opts.Quality)
}

// ResizeForExport scales img to w x h. With keepAspect the image is fitted
// inside the box; a zero dimension is derived from the other one. Zero for
// both returns img unchanged.
func ResizeForExport(img image.Image, w, h int, keepAspect bool) image.Image {
	if w <= 0 && h <= 0 {
		return img
	}
	b := img.Bounds()
	switch {
	case keepAspect && w > 0 && h > 0:
		return imaging.Fit(img, w, h, imaging.Lanczos)
	case w > 0 && h > 0:
		return imaging.Resize(img, w, h, imaging.Lanczos)
	}
	if b.Dx() == w || b.Dy() == h {
		return img
	}
	return imaging.Resize(img, max(w, 0), max(h, 0), imaging.Lanczos)
}
