// Package project reads and writes .mcm packages: a zip archive holding a
// metadata document, the measurement record and the corrected image.
package project

import (
	"archive/zip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MeKo-Tech/pocrop/internal/imageio"
	"github.com/MeKo-Tech/pocrop/internal/measurement"
	"github.com/google/uuid"
)

// Entry names inside the archive.
const (
	MetadataFile     = "metadata.json"
	MeasurementsFile = "measurements.json"
	ImageFile        = "image.jpg"

	// Extension is the conventional package file extension.
	Extension = ".mcm"

	// FormatVersion is written into new packages.
	FormatVersion = 1

	maxEntrySize = 512 << 20
)

// ErrInvalidPackage is returned when a package cannot be written or read.
var ErrInvalidPackage = errors.New("invalid measurement package")

// Metadata describes a package.
type Metadata struct {
	FormatVersion    int       `json:"FormatVersion"`
	CreationDate     time.Time `json:"CreationDate"`
	OriginalFilename string    `json:"OriginalFilename,omitempty"`
	Notes            string    `json:"Notes,omitempty"`
	ProjectID        string    `json:"ProjectId"`
}

// NewMetadata returns metadata stamped with the current time and a fresh id.
func NewMetadata(originalFilename, notes string) Metadata {
	return Metadata{
		FormatVersion:    FormatVersion,
		CreationDate:     time.Now(),
		OriginalFilename: originalFilename,
		Notes:            notes,
		ProjectID:        uuid.NewString(),
	}
}

// Package is the in-memory form of an .mcm file. ImagePath points at a file
// on disk; after Load it is a temporary file the caller owns.
type Package struct {
	Metadata     Metadata
	Measurements *measurement.Collection
	ImagePath    string
}

// Save writes the package to path, replacing any existing file. Non-JPEG
// images are re-encoded.
func (p *Package) Save(path string) error {
	if p.ImagePath == "" {
		return fmt.Errorf("%w: no image", ErrInvalidPackage)
	}
	if _, err := os.Stat(p.ImagePath); err != nil {
		return fmt.Errorf("%w: image: %w", ErrInvalidPackage, err)
	}
	meas := p.Measurements
	if meas == nil {
		meas = measurement.NewCollection()
	}
	meta := p.Metadata
	if meta.FormatVersion == 0 {
		meta.FormatVersion = FormatVersion
	}
	if meta.ProjectID == "" {
		meta.ProjectID = uuid.NewString()
	}
	if meta.CreationDate.IsZero() {
		meta.CreationDate = time.Now()
	}

	// Build next to the target and rename so a failed save leaves any
	// previous package intact.
	tmp, err := os.CreateTemp(filepath.Dir(path), ".pocrop-package-*")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPackage, err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := writeArchive(tmp, meta, meas, p.ImagePath); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: %w", ErrInvalidPackage, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPackage, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPackage, err)
	}
	slog.Debug("Saved measurement package", "path", path, "project_id", meta.ProjectID)
	return nil
}

func writeArchive(w io.Writer, meta Metadata, meas *measurement.Collection, imagePath string) error {
	zw := zip.NewWriter(w)

	metaJSON, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	if err := writeEntry(zw, MetadataFile, metaJSON); err != nil {
		return err
	}

	measJSON, err := meas.ToRecord().Marshal(measurement.FormatJSON)
	if err != nil {
		return err
	}
	if err := writeEntry(zw, MeasurementsFile, measJSON); err != nil {
		return err
	}

	iw, err := zw.Create(ImageFile)
	if err != nil {
		return err
	}
	if err := copyImageAsJPEG(iw, imagePath); err != nil {
		return err
	}
	return zw.Close()
}

func writeEntry(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func copyImageAsJPEG(w io.Writer, path string) error {
	if f, _ := imageio.FormatForPath(path); f == imageio.JPEG {
		src, err := os.Open(path) //nolint:gosec // G304: session-owned image file
		if err != nil {
			return err
		}
		defer func() { _ = src.Close() }()
		_, err = io.Copy(w, src)
		return err
	}
	img, _, err := imageio.Load(path)
	if err != nil {
		return err
	}
	return imageio.Encode(w, img, imageio.JPEG, imageio.DefaultJPEGQuality)
}

// Load reads the package at path. The image is extracted into tempDir (the
// system temp directory when empty). Missing metadata or measurements fall
// back to defaults; a missing image leaves ImagePath empty. On failure no
// extracted file is left behind.
func Load(path, tempDir string) (pkg *Package, err error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPackage, err)
	}
	defer func() { _ = zr.Close() }()

	pkg = &Package{
		Metadata:     Metadata{FormatVersion: FormatVersion},
		Measurements: measurement.NewCollection(),
	}

	extracted := ""
	defer func() {
		if err != nil {
			if extracted != "" {
				_ = os.Remove(extracted)
			}
			pkg = nil
		}
	}()

	for _, f := range zr.File {
		switch strings.ToLower(f.Name) {
		case MetadataFile:
			data, err := readEntry(f)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %w", ErrInvalidPackage, f.Name, err)
			}
			if err := json.Unmarshal(data, &pkg.Metadata); err != nil {
				return nil, fmt.Errorf("%w: %s: %w", ErrInvalidPackage, f.Name, err)
			}
		case MeasurementsFile:
			data, err := readEntry(f)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %w", ErrInvalidPackage, f.Name, err)
			}
			rec, err := measurement.UnmarshalRecord(data, measurement.FormatJSON)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrInvalidPackage, err)
			}
			pkg.Measurements = measurement.FromRecord(rec)
		case ImageFile:
			out, err := extractImage(f, tempDir)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %w", ErrInvalidPackage, f.Name, err)
			}
			if extracted != "" {
				_ = os.Remove(extracted)
			}
			extracted = out
			pkg.ImagePath = out
		}
	}
	return pkg, nil
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(io.LimitReader(rc, maxEntrySize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxEntrySize {
		return nil, errors.New("entry too large")
	}
	return data, nil
}

func extractImage(f *zip.File, tempDir string) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer func() { _ = rc.Close() }()

	out, err := os.CreateTemp(tempDir, "pocrop-package-*.jpg")
	if err != nil {
		return "", err
	}
	name := out.Name()
	n, copyErr := io.Copy(out, io.LimitReader(rc, maxEntrySize+1))
	closeErr := out.Close()
	switch {
	case copyErr != nil:
		err = copyErr
	case closeErr != nil:
		err = closeErr
	case n > maxEntrySize:
		err = errors.New("entry too large")
	}
	if err != nil {
		_ = os.Remove(name)
		return "", err
	}
	return name, nil
}
