package imageio

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/dslipak/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
)

// exportPDF writes img as a single-page PDF. pdfcpu imports from files, so
// the raster goes through a temporary JPEG.
func exportPDF(img image.Image, path string, quality int) error {
	tempDir, err := os.MkdirTemp("", "pocrop-pdf-*")
	if err != nil {
		return &Error{Operation: "export", Path: path, Err: fmt.Errorf("failed to create temp directory: %w", err)}
	}
	defer func() { _ = os.RemoveAll(tempDir) }()

	page := filepath.Join(tempDir, "page.jpg")
	if err := writeRaster(img, page, JPEG, quality); err != nil {
		return &Error{Operation: "export", Path: path, Err: err}
	}

	// ImportImagesFile appends to an existing file.
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &Error{Operation: "export", Path: path, Err: err}
	}
	imp := pdfcpu.DefaultImportConfig()
	if err := api.ImportImagesFile([]string{page}, path, imp, nil); err != nil {
		return &Error{Operation: "export", Path: path, Err: fmt.Errorf("pdf import: %w", err)}
	}
	return nil
}

// LoadPDFPage returns the first embedded image of the given 1-based page.
func LoadPDFPage(path string, page int) (image.Image, error) {
	if page < 1 {
		return nil, &Error{Operation: "load", Path: path, Err: fmt.Errorf("invalid page %d", page)}
	}
	if n, err := PageCount(path); err == nil && page > n {
		return nil, &Error{Operation: "load", Path: path, Err: fmt.Errorf("page %d out of range, document has %d pages", page, n)}
	}
	tempDir, err := os.MkdirTemp("", "pocrop-pdf-extract-*")
	if err != nil {
		return nil, &Error{Operation: "load", Path: path, Err: err}
	}
	defer func() { _ = os.RemoveAll(tempDir) }()

	if err := api.ExtractImagesFile(path, tempDir, []string{strconv.Itoa(page)}, nil); err != nil {
		return nil, &Error{Operation: "load", Path: path, Err: fmt.Errorf("failed to extract images from PDF: %w", err)}
	}

	entries, err := os.ReadDir(tempDir)
	if err != nil {
		return nil, &Error{Operation: "load", Path: path, Err: err}
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && IsSupportedImage(e.Name()) {
			files = append(files, e.Name())
		}
	}
	if len(files) == 0 {
		return nil, &Error{Operation: "load", Path: path, Err: fmt.Errorf("page %d has no images", page)}
	}
	sort.Strings(files)

	img, _, err := Load(filepath.Join(tempDir, files[0]))
	if err != nil {
		return nil, &Error{Operation: "load", Path: path, Err: err}
	}
	return img, nil
}

// PageCount returns the number of pages in a PDF document.
func PageCount(path string) (int, error) {
	r, err := pdf.Open(path)
	if err != nil {
		return 0, &Error{Operation: "load", Path: path, Err: err}
	}
	return r.NumPage(), nil
}

// IsPDF reports whether path has a .pdf extension.
func IsPDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}
