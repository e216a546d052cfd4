package project

import (
	"archive/zip"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/MeKo-Tech/pocrop/internal/geometry"
	"github.com/MeKo-Tech/pocrop/internal/imageio"
	"github.com/MeKo-Tech/pocrop/internal/measurement"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeImage(t *testing.T, dir, name string) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 32, 24))
	for y := range 24 {
		for x := range 32 {
			img.Set(x, y, color.NRGBA{R: uint8(x * 8), G: 90, B: uint8(y * 10), A: 255})
		}
	}
	path := filepath.Join(dir, name)
	require.NoError(t, imageio.Save(img, path, 90))
	return path
}

func writeZip(t *testing.T, path string, entries map[string][]byte) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, data := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

func tempFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	imgPath := writeImage(t, dir, "corrected.png")

	meas := measurement.NewCollection()
	meas.AddDistance(geometry.Pt(0, 0), geometry.Pt(30, 40))
	meas.AddAngle(geometry.Pt(10, 0), geometry.Pt(0, 0), geometry.Pt(0, 10))
	require.True(t, meas.CalibrateDistance(0, "10 cm"))

	pkg := &Package{
		Metadata:     NewMetadata("receipt.jpg", "kitchen receipt"),
		Measurements: meas,
		ImagePath:    imgPath,
	}
	_, err := uuid.Parse(pkg.Metadata.ProjectID)
	require.NoError(t, err)

	out := filepath.Join(dir, "receipt"+Extension)
	require.NoError(t, pkg.Save(out))

	extractDir := t.TempDir()
	loaded, err := Load(out, extractDir)
	require.NoError(t, err)

	assert.Equal(t, FormatVersion, loaded.Metadata.FormatVersion)
	assert.Equal(t, "receipt.jpg", loaded.Metadata.OriginalFilename)
	assert.Equal(t, "kitchen receipt", loaded.Metadata.Notes)
	assert.Equal(t, pkg.Metadata.ProjectID, loaded.Metadata.ProjectID)
	assert.True(t, pkg.Metadata.CreationDate.Equal(loaded.Metadata.CreationDate))

	require.Len(t, loaded.Measurements.Distances, 1)
	assert.Equal(t, "10.00 cm", loaded.Measurements.Distances[0].Label())
	require.Len(t, loaded.Measurements.Angles, 1)
	assert.Equal(t, "90.0°", loaded.Measurements.Angles[0].Label())

	require.NotEmpty(t, loaded.ImagePath)
	assert.Equal(t, extractDir, filepath.Dir(loaded.ImagePath))
	_, meta, err := imageio.Load(loaded.ImagePath)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", meta.Format)
	assert.Equal(t, 32, meta.Width)
}

func TestSaveWritesExpectedEntries(t *testing.T) {
	dir := t.TempDir()
	imgPath := writeImage(t, dir, "img.jpg")
	out := filepath.Join(dir, "p.mcm")
	require.NoError(t, (&Package{ImagePath: imgPath}).Save(out))

	zr, err := zip.OpenReader(out)
	require.NoError(t, err)
	defer zr.Close()
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.ElementsMatch(t, []string{MetadataFile, MeasurementsFile, ImageFile}, names)

	loaded, err := Load(out, t.TempDir())
	require.NoError(t, err)
	assert.NotEmpty(t, loaded.Metadata.ProjectID, "save fills a missing project id")
	assert.False(t, loaded.Metadata.CreationDate.IsZero())
}

func TestSaveReplacesExisting(t *testing.T) {
	dir := t.TempDir()
	imgPath := writeImage(t, dir, "img.png")
	out := filepath.Join(dir, "p.mcm")
	require.NoError(t, os.WriteFile(out, []byte("old"), 0o600))

	require.NoError(t, (&Package{Metadata: NewMetadata("", "second"), ImagePath: imgPath}).Save(out))
	loaded, err := Load(out, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "second", loaded.Metadata.Notes)

	assert.ElementsMatch(t, []string{"img.png", "p.mcm"}, tempFiles(t, dir), "no staging file left behind")
}

func TestSaveErrors(t *testing.T) {
	dir := t.TempDir()
	err := (&Package{}).Save(filepath.Join(dir, "p.mcm"))
	assert.ErrorIs(t, err, ErrInvalidPackage)

	err = (&Package{ImagePath: filepath.Join(dir, "missing.jpg")}).Save(filepath.Join(dir, "p.mcm"))
	assert.ErrorIs(t, err, ErrInvalidPackage)
	_, statErr := os.Stat(filepath.Join(dir, "p.mcm"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestLoadDefaultsForMissingEntries(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.mcm")
	writeZip(t, path, map[string][]byte{"readme.txt": []byte("hi")})

	pkg, err := Load(path, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, FormatVersion, pkg.Metadata.FormatVersion)
	assert.Empty(t, pkg.ImagePath)
	assert.Equal(t, 0, pkg.Measurements.Len())
	assert.Equal(t, measurement.DefaultScale(), pkg.Measurements.GlobalScale())
}

func TestLoadFailureRemovesExtractedImage(t *testing.T) {
	dir := t.TempDir()
	jpg, err := os.ReadFile(writeImage(t, dir, "img.jpg"))
	require.NoError(t, err)

	path := filepath.Join(dir, "broken.mcm")
	writeZip(t, path, map[string][]byte{
		ImageFile:        jpg,
		MeasurementsFile: []byte("{not json"),
	})

	extractDir := t.TempDir()
	pkg, err := Load(path, extractDir)
	assert.ErrorIs(t, err, ErrInvalidPackage)
	assert.Nil(t, pkg)
	assert.Empty(t, tempFiles(t, extractDir))
}

func TestLoadRejectsNonZip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.mcm")
	require.NoError(t, os.WriteFile(path, []byte("plain text"), 0o600))
	_, err := Load(path, "")
	assert.ErrorIs(t, err, ErrInvalidPackage)

	_, err = Load(filepath.Join(t.TempDir(), "missing.mcm"), "")
	assert.ErrorIs(t, err, ErrInvalidPackage)
}
