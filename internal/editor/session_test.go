package editor

import (
	"context"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/MeKo-Tech/pocrop/internal/filters"
	"github.com/MeKo-Tech/pocrop/internal/geometry"
	"github.com/MeKo-Tech/pocrop/internal/imageio"
	"github.com/MeKo-Tech/pocrop/internal/perspective"
	"github.com/MeKo-Tech/pocrop/internal/project"
	"github.com/MeKo-Tech/pocrop/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	input   string
	tempDir string
	session *Session
}

func newFixture(t *testing.T, opts ...Option) fixture {
	t.Helper()
	inputDir := t.TempDir()
	input := testutil.WriteDocument(t, inputDir, "doc.png", testutil.DefaultDocumentConfig())

	cfg := DefaultConfig()
	cfg.TempDir = t.TempDir()
	s, err := Open(input, cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return fixture{input: input, tempDir: cfg.TempDir, session: s}
}

func sheetCorners() geometry.Quad {
	return testutil.DefaultDocumentConfig().Corners
}

func TestOpen(t *testing.T) {
	f := newFixture(t)
	s := f.session
	assert.Equal(t, f.input, s.Path())
	assert.Equal(t, f.input, s.OriginalPath())
	assert.Equal(t, geometry.Size{Width: 400, Height: 300}, s.ImageSize())
	assert.Equal(t, s.ImageSize(), s.DisplaySize())
	assert.InDelta(t, 1.0, s.ScaleFactor(), 1e-12)
	_, ok := s.Quad()
	assert.False(t, ok)
	assert.False(t, s.CanUndo())
}

func TestOpenErrors(t *testing.T) {
	_, err := Open("", DefaultConfig())
	assert.ErrorIs(t, err, ErrNoImage)

	_, err = Open(filepath.Join(t.TempDir(), "missing.png"), DefaultConfig())
	var ioErr *imageio.Error
	assert.ErrorAs(t, err, &ioErr)

	cfg := DefaultConfig()
	cfg.Corners.BlockSize = 0
	_, err = Open("x.png", cfg)
	assert.Error(t, err)
}

func TestDisplayWidthScalesCoordinates(t *testing.T) {
	f := newFixture(t, WithDisplayWidth(200))
	s := f.session
	assert.Equal(t, geometry.Size{Width: 200, Height: 150}, s.DisplaySize())
	assert.InDelta(t, 2.0, s.ScaleFactor(), 1e-12)

	det, err := s.DetectCorners(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, det.Rectangles)
	assert.InDelta(t, 30, det.Rectangles[0][geometry.TopLeft].X, 3, "rectangles are reported in display coordinates")
}

func TestSeedCornersFindsSheet(t *testing.T) {
	f := newFixture(t)
	q, err := f.session.SeedCorners(context.Background())
	require.NoError(t, err)

	want := sheetCorners()
	for i := range 4 {
		assert.InDelta(t, want[i].X, q[i].X, 20, "corner %d", i)
		assert.InDelta(t, want[i].Y, q[i].Y, 20, "corner %d", i)
	}
	got, ok := f.session.Quad()
	assert.True(t, ok)
	assert.Equal(t, q, got)
}

func TestSeedCornersFallsBackToInset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flat.png")
	testutil.SaveImage(t, testutil.CreateTestImage(100, 50, color.White), path)

	cfg := DefaultConfig()
	cfg.TempDir = t.TempDir()
	s, err := Open(path, cfg)
	require.NoError(t, err)
	defer s.Close()

	q, err := s.SeedCorners(context.Background())
	require.NoError(t, err)
	assert.Equal(t, geometry.NewBox(10, 5, 90, 45).Corners(), q)
}

func TestMoveCornerSnaps(t *testing.T) {
	f := newFixture(t)
	s := f.session
	_, err := s.DetectCorners(context.Background())
	require.NoError(t, err)

	p, err := s.MoveCorner(geometry.TopLeft, geometry.Pt(70, 60), true)
	require.NoError(t, err)
	assert.InDelta(t, 60, p.X, 8)
	assert.InDelta(t, 50, p.Y, 8)

	p, err = s.MoveCorner(geometry.TopLeft, geometry.Pt(200, 150), true)
	require.NoError(t, err)
	assert.Equal(t, geometry.Pt(200, 150), p, "far from any detection")

	p, err = s.MoveCorner(geometry.TopRight, geometry.Pt(338, 52), false)
	require.NoError(t, err)
	assert.Equal(t, geometry.Pt(338, 52), p)

	_, err = s.MoveCorner(4, p, false)
	assert.Error(t, err)
}

func TestMoveCornerReordersQuad(t *testing.T) {
	f := newFixture(t)
	s := f.session
	s.SetQuad(geometry.NewBox(50, 50, 350, 250).Corners())

	// Drag the top-left corner past the top-right one.
	_, err := s.MoveCorner(geometry.TopLeft, geometry.Pt(400, 60), false)
	require.NoError(t, err)

	q, ok := s.Quad()
	require.True(t, ok)
	want := geometry.Quad{{X: 50, Y: 250}, {X: 350, Y: 50}, {X: 400, Y: 60}, {X: 350, Y: 250}}
	assert.Equal(t, want, q)
	ordered, _ := geometry.OrderQuad(q[:])
	assert.Equal(t, ordered, q, "quad stays in canonical order")

	assert.NoError(t, s.Correct(context.Background(), perspective.Spec{Ratio: perspective.Square}))
}

func TestCorrectAndUndoRedo(t *testing.T) {
	f := newFixture(t)
	s := f.session
	ctx := context.Background()

	assert.ErrorIs(t, s.Correct(ctx, perspective.Spec{Ratio: perspective.Square}), ErrNoQuad)

	s.SetQuad(sheetCorners())
	spec := perspective.Spec{Ratio: perspective.Custom, CustomWidth: 280, CustomHeight: 200}
	require.NoError(t, s.Correct(ctx, spec))

	corrected := s.Path()
	assert.NotEqual(t, f.input, corrected)
	assert.Equal(t, f.tempDir, filepath.Dir(corrected))
	assert.True(t, s.CanUndo())
	_, ok := s.Quad()
	assert.False(t, ok, "corners reset after correction")

	img := testutil.LoadImage(t, corrected)
	r, g, b, _ := img.At(img.Bounds().Dx()/2, img.Bounds().Dy()/2).RGBA()
	assert.Equal(t, [3]uint32{0xffff, 0xffff, 0xffff}, [3]uint32{r, g, b}, "sheet centre stays white")

	changed, err := s.Undo()
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, f.input, s.Path())
	assert.Equal(t, geometry.Size{Width: 400, Height: 300}, s.DisplaySize())
	assert.True(t, testutil.FileExists(corrected), "undone image stays for redo")

	changed, err = s.Redo()
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, corrected, s.Path())

	changed, err = s.Redo()
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestInvalidAspectRatioLeavesStateIntact(t *testing.T) {
	f := newFixture(t)
	s := f.session
	s.SetQuad(sheetCorners())
	err := s.Correct(context.Background(), perspective.Spec{Ratio: perspective.Custom})
	assert.ErrorIs(t, err, perspective.ErrInvalidAspectRatio)
	assert.Equal(t, f.input, s.Path())
	assert.False(t, s.CanUndo())
	_, ok := s.Quad()
	assert.True(t, ok)
}

func TestFiltersRecordHistory(t *testing.T) {
	f := newFixture(t)
	s := f.session
	ctx := context.Background()

	require.NoError(t, s.ApplyFilter(ctx, filters.Invert))
	require.NoError(t, s.ApplyFilter(ctx, filters.RotateCW))
	assert.Equal(t, geometry.Size{Width: 300, Height: 400}, s.ImageSize())

	_, err := s.Undo()
	require.NoError(t, err)
	assert.Equal(t, geometry.Size{Width: 400, Height: 300}, s.DisplaySize(), "undoing a rotation restores the canvas")

	assert.Error(t, s.ApplyFilter(ctx, filters.Filter("emboss")))
}

func TestRedoBranchDeletesDiscardedFiles(t *testing.T) {
	f := newFixture(t)
	s := f.session
	ctx := context.Background()

	require.NoError(t, s.ApplyFilter(ctx, filters.Invert))
	inverted := s.Path()
	_, err := s.Undo()
	require.NoError(t, err)
	require.NoError(t, s.ApplyFilter(ctx, filters.Grayscale))

	assert.False(t, testutil.FileExists(inverted), "discarded redo target is deleted")
	assert.False(t, s.CanRedo())
	assert.Equal(t, []string{filepath.Base(s.Path())}, testutil.ListFiles(t, f.tempDir))
}

func TestHistoryDepthEvictsFiles(t *testing.T) {
	inputDir := t.TempDir()
	input := testutil.WriteDocument(t, inputDir, "doc.png", testutil.DefaultDocumentConfig())
	cfg := DefaultConfig()
	cfg.TempDir = t.TempDir()
	cfg.HistoryDepth = 2
	s, err := Open(input, cfg)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	for range 4 {
		require.NoError(t, s.ApplyFilter(ctx, filters.Invert))
	}
	assert.Len(t, testutil.ListFiles(t, cfg.TempDir), 3, "two undo steps need three images")
	assert.True(t, testutil.FileExists(input))
}

func TestResizeAndCrop(t *testing.T) {
	f := newFixture(t, WithDisplayWidth(200))
	s := f.session
	ctx := context.Background()

	require.NoError(t, s.Crop(ctx, geometry.NewBox(30, 25, 170, 125)))
	assert.Equal(t, geometry.Size{Width: 280, Height: 200}, s.ImageSize())
	assert.Equal(t, geometry.Size{Width: 140, Height: 100}, s.DisplaySize())

	require.NoError(t, s.Resize(ctx, 56, 40))
	assert.Equal(t, geometry.Size{Width: 56, Height: 40}, s.ImageSize())

	assert.Error(t, s.Resize(ctx, 0, 10))
	assert.Error(t, s.Crop(ctx, geometry.NewBox(500, 500, 600, 600)))

	_, err := s.Undo()
	require.NoError(t, err)
	assert.Equal(t, geometry.Size{Width: 280, Height: 200}, s.ImageSize())
	assert.Equal(t, geometry.Size{Width: 140, Height: 100}, s.DisplaySize())
}

func TestExport(t *testing.T) {
	f := newFixture(t)
	out := filepath.Join(t.TempDir(), "out.jpg")
	require.NoError(t, f.session.Export(out, imageio.SaveOptions{Width: 100, MaintainAspectRatio: true}))
	w, h, err := imageio.Dimensions(out)
	require.NoError(t, err)
	assert.Equal(t, 100, w)
	assert.Equal(t, 75, h)
}

func TestPackageRoundTrip(t *testing.T) {
	f := newFixture(t)
	s := f.session
	s.Measurements().AddDistance(geometry.Pt(60, 50), geometry.Pt(340, 50))
	require.True(t, s.Measurements().CalibrateDistance(0, "28 cm"))

	pkgPath := filepath.Join(t.TempDir(), "doc"+project.Extension)
	require.NoError(t, s.SavePackage(pkgPath, "desk"))

	cfg := DefaultConfig()
	cfg.TempDir = t.TempDir()
	reopened, err := Open(pkgPath, cfg)
	require.NoError(t, err)
	assert.Equal(t, pkgPath, reopened.OriginalPath())
	assert.Equal(t, cfg.TempDir, filepath.Dir(reopened.Path()))
	assert.Equal(t, geometry.Size{Width: 400, Height: 300}, reopened.ImageSize())
	require.Len(t, reopened.Measurements().Distances, 1)
	assert.Equal(t, "28.00 cm", reopened.Measurements().Distances[0].Label())

	reopened.Close()
	assert.Empty(t, testutil.ListFiles(t, cfg.TempDir), "extracted image is removed on close")
	assert.True(t, testutil.FileExists(pkgPath))
}

func TestOpenPackageFailureKeepsSession(t *testing.T) {
	f := newFixture(t)
	s := f.session
	bad := filepath.Join(t.TempDir(), "bad.mcm")
	require.NoError(t, os.WriteFile(bad, []byte("nope"), 0o600))

	err := s.OpenPackage(bad)
	assert.ErrorIs(t, err, project.ErrInvalidPackage)
	assert.Equal(t, f.input, s.Path())
}

func TestCloseReleasesOwnedFilesOnly(t *testing.T) {
	f := newFixture(t)
	s := f.session
	ctx := context.Background()
	require.NoError(t, s.ApplyFilter(ctx, filters.Invert))
	require.NoError(t, s.ApplyFilter(ctx, filters.Grayscale))
	_, err := s.Undo()
	require.NoError(t, err)
	require.Equal(t, 2, s.OwnedFiles())

	s.Close()
	assert.Empty(t, testutil.ListFiles(t, f.tempDir))
	assert.True(t, testutil.FileExists(f.input))
	assert.Equal(t, 0, s.OwnedFiles())

	assert.ErrorIs(t, s.ApplyFilter(ctx, filters.Invert), ErrNoImage)
	_, err = s.Undo()
	assert.ErrorIs(t, err, ErrNoImage)
	s.Close()
}

func TestCancelledContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.session.DetectCorners(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, f.session.ApplyFilter(ctx, filters.Invert), context.Canceled)
	assert.False(t, f.session.CanUndo())
}
