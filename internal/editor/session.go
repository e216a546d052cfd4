// Package editor drives one image through detection, correction, filtering
// and measurement. A Session owns the current image file and every
// intermediate file it creates; the history decides when those files can
// be deleted.
package editor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/MeKo-Tech/pocrop/internal/corners"
	"github.com/MeKo-Tech/pocrop/internal/filters"
	"github.com/MeKo-Tech/pocrop/internal/geometry"
	"github.com/MeKo-Tech/pocrop/internal/history"
	"github.com/MeKo-Tech/pocrop/internal/imageio"
	"github.com/MeKo-Tech/pocrop/internal/measurement"
	"github.com/MeKo-Tech/pocrop/internal/perspective"
	"github.com/MeKo-Tech/pocrop/internal/project"
	"github.com/MeKo-Tech/pocrop/internal/warp"
)

var (
	// ErrNoImage is returned by operations on a session without an image.
	ErrNoImage = errors.New("no image loaded")
	// ErrNoQuad is returned by Correct before any corners were placed.
	ErrNoQuad = errors.New("no correction corners set")
)

// Session is a single-owner editing session. It is not safe for concurrent use.
type Session struct {
	cfg      Config
	detector *corners.Detector

	original string
	current  string

	requestedWidth float64
	zoom           float64 // display pixels per image pixel
	display        geometry.Size
	imageSize      geometry.Size

	quad       geometry.Quad
	hasQuad    bool
	detected   []geometry.Point
	rectangles []geometry.Quad

	history      *history.History
	measurements *measurement.Collection
	owned        map[string]struct{}
	closed       bool
}

// Open starts a session on an image, PDF or .mcm package. The input file is
// never modified or deleted.
func Open(path string, cfg Config, opts ...Option) (*Session, error) {
	if path == "" {
		return nil, ErrNoImage
	}
	det, err := corners.NewDetector(cfg.Corners)
	if err != nil {
		return nil, fmt.Errorf("invalid corner configuration: %w", err)
	}

	s := &Session{
		cfg:          cfg,
		detector:     det,
		zoom:         1,
		measurements: measurement.NewCollection(),
		owned:        make(map[string]struct{}),
	}
	s.history = history.New(history.WithMaxDepth(cfg.HistoryDepth), history.WithRelease(s.onRelease))
	for _, o := range opts {
		o(s)
	}

	switch {
	case strings.EqualFold(filepath.Ext(path), project.Extension):
		if err := s.OpenPackage(path); err != nil {
			return nil, err
		}
	case imageio.IsPDF(path):
		img, err := imageio.LoadPDFPage(path, 1)
		if err != nil {
			return nil, err
		}
		tmp, err := s.writeTemp(img)
		if err != nil {
			return nil, err
		}
		s.original = path
		if err := s.setCurrent(tmp, nil); err != nil {
			s.Close()
			return nil, err
		}
	default:
		s.original = path
		if err := s.setCurrent(path, nil); err != nil {
			return nil, err
		}
	}

	if s.requestedWidth > 0 && s.imageSize.Width > 0 {
		s.zoom = s.requestedWidth / s.imageSize.Width
		s.display = geometry.Size{Width: s.imageSize.Width * s.zoom, Height: s.imageSize.Height * s.zoom}
	}
	slog.Info("Opened editing session", "path", path, "width", s.imageSize.Width, "height", s.imageSize.Height)
	return s, nil
}

// setCurrent switches to path and refreshes sizes. canvas overrides the
// derived display size.
func (s *Session) setCurrent(path string, canvas *geometry.Size) error {
	w, h, err := imageio.Dimensions(path)
	if err != nil {
		return err
	}
	s.current = path
	s.imageSize = geometry.Size{Width: float64(w), Height: float64(h)}
	if canvas != nil {
		s.display = *canvas
	} else {
		s.display = geometry.Size{Width: float64(w) * s.zoom, Height: float64(h) * s.zoom}
	}
	s.hasQuad = false
	s.detected = nil
	s.rectangles = nil
	return nil
}

// Path returns the current image file.
func (s *Session) Path() string { return s.current }

// OriginalPath returns the file the session was opened with.
func (s *Session) OriginalPath() string { return s.original }

// DisplaySize returns the size of the display canvas.
func (s *Session) DisplaySize() geometry.Size { return s.display }

// ImageSize returns the pixel size of the current image.
func (s *Session) ImageSize() geometry.Size { return s.imageSize }

// ScaleFactor converts display coordinates to image pixels.
func (s *Session) ScaleFactor() float64 {
	return perspective.ScaleFactor(s.imageSize.Width, s.display.Width)
}

// Quad returns the correction corners in display coordinates.
func (s *Session) Quad() (geometry.Quad, bool) { return s.quad, s.hasQuad }

// SetQuad places all four corners, reordering them as TL, TR, BR, BL.
func (s *Session) SetQuad(q geometry.Quad) {
	if ordered, ok := geometry.OrderQuad(q[:]); ok {
		q = ordered
	}
	s.quad = q
	s.hasQuad = true
}

// DetectedPoints returns the clustered corner candidates of the last detection.
func (s *Session) DetectedPoints() []geometry.Point { return s.detected }

// Rectangles returns the rectangle candidates of the last detection.
func (s *Session) Rectangles() []geometry.Quad { return s.rectangles }

// Measurements returns the session's measurement collection.
func (s *Session) Measurements() *measurement.Collection { return s.measurements }

// CanUndo reports whether Undo would do anything.
func (s *Session) CanUndo() bool { return s.history.CanUndo() }

// CanRedo reports whether Redo would do anything.
func (s *Session) CanRedo() bool { return s.history.CanRedo() }

func (s *Session) ready() error {
	if s.closed || s.current == "" {
		return ErrNoImage
	}
	return nil
}

func (s *Session) load() (image.Image, error) {
	img, _, err := imageio.Load(s.current)
	return img, err
}

// Detection is the result of corner detection in display coordinates.
type Detection struct {
	Clusters   []corners.Cluster
	Centroids  []geometry.Point
	Rectangles []geometry.Quad
	Seed       geometry.Quad
	HasSeed    bool
}

// DetectCorners runs the Harris and rectangle detectors on the current
// image and keeps the results for snapping. The corners are not moved.
func (s *Session) DetectCorners(ctx context.Context) (Detection, error) {
	if err := s.ready(); err != nil {
		return Detection{}, err
	}
	img, err := s.load()
	if err != nil {
		return Detection{}, err
	}
	if err := ctx.Err(); err != nil {
		return Detection{}, err
	}

	clusters, clusterErr := s.detector.Detect(img)
	if err := ctx.Err(); err != nil {
		return Detection{}, err
	}
	rects, rectErr := s.detector.DetectRectangles(img)
	if rectErr != nil {
		slog.Debug("Rectangle detection failed", "error", rectErr)
	}
	if clusterErr != nil && len(rects) == 0 {
		return Detection{}, clusterErr
	}

	f := s.zoom
	var det Detection
	s.detected = nil
	for _, c := range clusters {
		scaled := corners.Cluster(geometry.ScalePoints(c, f))
		det.Clusters = append(det.Clusters, scaled)
		s.detected = append(s.detected, scaled...)
	}
	det.Centroids = corners.Centroids(det.Clusters)
	for _, r := range rects {
		var q geometry.Quad
		for i, p := range r {
			q[i] = p.Scale(f)
		}
		det.Rectangles = append(det.Rectangles, q)
	}
	s.rectangles = det.Rectangles
	det.Seed, det.HasSeed = corners.SeedQuad(det.Clusters)

	slog.Debug("Detected corners",
		"clusters", len(det.Clusters), "rectangles", len(det.Rectangles), "seed", det.HasSeed)
	return det, nil
}

// SeedCorners detects corners and places the quad: the cluster seed first,
// then the largest rectangle, then an inset of the display.
func (s *Session) SeedCorners(ctx context.Context) (geometry.Quad, error) {
	det, err := s.DetectCorners(ctx)
	switch {
	case errors.Is(err, corners.ErrInsufficientCorners), errors.Is(err, corners.ErrTooManyCorners):
		slog.Debug("Falling back to default corners", "reason", err)
	case err != nil:
		return geometry.Quad{}, err
	}

	switch {
	case det.HasSeed:
		s.SetQuad(det.Seed)
	case len(det.Rectangles) > 0:
		q, _ := corners.MainRectangle(det.Rectangles)
		s.SetQuad(q)
	default:
		s.SetQuad(defaultQuad(s.display))
	}
	return s.quad, nil
}

func defaultQuad(d geometry.Size) geometry.Quad {
	mx, my := d.Width*0.1, d.Height*0.1
	return geometry.NewBox(mx, my, d.Width-mx, d.Height-my).Corners()
}

// MoveCorner moves corner i to p. With snap, p is pulled onto the nearest
// detected point, or failing that a rectangle corner, within the snap
// distance. The quad is reordered afterwards, so a corner dragged past its
// neighbours takes the slot matching its new position. It returns the final
// position.
func (s *Session) MoveCorner(i int, p geometry.Point, snap bool) (geometry.Point, error) {
	if err := s.ready(); err != nil {
		return p, err
	}
	if i < 0 || i > 3 {
		return p, fmt.Errorf("corner index %d out of range", i)
	}
	if !s.hasQuad {
		s.quad = defaultQuad(s.display)
		s.hasQuad = true
	}
	if snap {
		maxDist := s.cfg.Corners.SnapDistance
		if q, ok := corners.Snap(p, s.detected, maxDist); ok {
			p = q
		} else if q, ok := corners.SnapToRectangleCorner(p, s.rectangles, maxDist); ok {
			p = q
		}
	}
	q := s.quad
	q[i] = p
	s.SetQuad(q)
	return p, nil
}

// Correct warps the current image so the quad becomes an upright rectangle
// with the aspect ratio of spec. The result replaces the current image and
// is recorded in the history.
func (s *Session) Correct(ctx context.Context, spec perspective.Spec) error {
	if err := s.ready(); err != nil {
		return err
	}
	if !s.hasQuad {
		return ErrNoQuad
	}
	args, err := perspective.Solve(s.quad, spec, s.ScaleFactor(), s.display)
	if err != nil {
		return err
	}
	img, err := s.load()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	out, err := warp.Warp(img, args.Slice(), s.cfg.Warp)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	slog.Debug("Corrected perspective", "ratio", spec.Ratio.String(),
		"width", out.Bounds().Dx(), "height", out.Bounds().Dy())
	return s.commit(out, true)
}

// ApplyFilter runs f on the current image and records the change.
func (s *Session) ApplyFilter(ctx context.Context, f filters.Filter) error {
	if err := s.ready(); err != nil {
		return err
	}
	img, err := s.load()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	out, err := filters.Apply(img, f)
	if err != nil {
		return err
	}
	return s.commit(out, f.ChangesSize())
}

// Resize scales the current image to w x h pixels.
func (s *Session) Resize(ctx context.Context, w, h int) error {
	if err := s.ready(); err != nil {
		return err
	}
	img, err := s.load()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	out, err := filters.Resize(img, w, h)
	if err != nil {
		return err
	}
	return s.commit(out, true)
}

// Crop keeps the part of the image under a rectangle given in display
// coordinates.
func (s *Session) Crop(ctx context.Context, r geometry.Box) error {
	if err := s.ready(); err != nil {
		return err
	}
	img, err := s.load()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	rect := r.Scale(s.ScaleFactor()).ToRect(img.Bounds())
	out, err := filters.Crop(img, rect)
	if err != nil {
		return err
	}
	return s.commit(out, true)
}

// commit writes img to a new owned file, makes it current and records the
// transition.
func (s *Session) commit(img image.Image, resized bool) error {
	path, err := s.writeTemp(img)
	if err != nil {
		return err
	}
	oldPath, oldCanvas := s.current, s.display
	if err := s.setCurrent(path, nil); err != nil {
		s.release(path)
		return err
	}
	if resized {
		s.history.RecordAndCommit(history.CanvasResize{OldPath: oldPath, NewPath: path, OldCanvas: oldCanvas})
	} else {
		s.history.RecordAndCommit(history.ImageSwap{OldPath: oldPath, NewPath: path})
	}
	return nil
}

// Undo restores the previous image. It reports whether anything changed.
func (s *Session) Undo() (bool, error) {
	if err := s.ready(); err != nil {
		return false, err
	}
	st, ok := s.history.Undo()
	if !ok {
		return false, nil
	}
	return true, s.setCurrent(st.Path, st.Canvas)
}

// Redo re-applies the last undone change.
func (s *Session) Redo() (bool, error) {
	if err := s.ready(); err != nil {
		return false, err
	}
	st, ok := s.history.Redo()
	if !ok {
		return false, nil
	}
	return true, s.setCurrent(st.Path, st.Canvas)
}

// Export writes the current image to path.
func (s *Session) Export(path string, opts imageio.SaveOptions) error {
	if err := s.ready(); err != nil {
		return err
	}
	img, err := s.load()
	if err != nil {
		return err
	}
	if opts.Quality == 0 {
		opts.Quality = s.cfg.Quality
	}
	return imageio.Export(img, path, opts)
}

// SavePackage writes the current image and measurements as an .mcm package.
func (s *Session) SavePackage(path, notes string) error {
	if err := s.ready(); err != nil {
		return err
	}
	pkg := &project.Package{
		Metadata:     project.NewMetadata(filepath.Base(s.original), notes),
		Measurements: s.measurements,
		ImagePath:    s.current,
	}
	return pkg.Save(path)
}

// OpenPackage replaces the session's image and measurements with those of
// an .mcm package. On failure the session is unchanged.
func (s *Session) OpenPackage(path string) error {
	if s.closed {
		return ErrNoImage
	}
	pkg, err := project.Load(path, s.cfg.TempDir)
	if err != nil {
		return err
	}
	if pkg.ImagePath == "" {
		return fmt.Errorf("%w: package has no image", project.ErrInvalidPackage)
	}
	s.owned[pkg.ImagePath] = struct{}{}

	prevCurrent := s.current
	if err := s.setCurrent(pkg.ImagePath, nil); err != nil {
		s.release(pkg.ImagePath)
		return err
	}
	s.history.Clear()
	s.release(prevCurrent)
	s.original = path
	s.measurements = pkg.Measurements
	slog.Info("Opened measurement package", "path", path, "project_id", pkg.Metadata.ProjectID)
	return nil
}

// Close clears the history and deletes every file the session created. The
// session cannot be used afterwards.
func (s *Session) Close() {
	if s.closed {
		return
	}
	s.history.Clear()
	s.closed = true
	for p := range s.owned {
		s.removeOwned(p)
	}
	s.current = ""
}

func (s *Session) writeTemp(img image.Image) (string, error) {
	f, err := os.CreateTemp(s.cfg.TempDir, "pocrop-*.png")
	if err != nil {
		return "", &imageio.Error{Operation: "save", Err: err}
	}
	path := f.Name()
	if err := imageio.Encode(f, img, imageio.PNG, 0); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", &imageio.Error{Operation: "encode", Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", &imageio.Error{Operation: "save", Path: path, Err: err}
	}
	s.owned[path] = struct{}{}
	return path, nil
}

// onRelease deletes the file that became unreachable when e left the history.
func (s *Session) onRelease(e history.Entry, reason history.ReleaseReason) {
	oldPath, newPath := e.Paths()
	switch reason {
	case history.Discarded:
		s.release(newPath)
	case history.Evicted:
		s.release(oldPath)
	case history.Cleared:
		s.release(oldPath)
		s.release(newPath)
	}
}

// release deletes path if the session created it and it is not current.
func (s *Session) release(path string) {
	if path == "" || path == s.current {
		return
	}
	s.removeOwned(path)
}

func (s *Session) removeOwned(path string) {
	if _, ok := s.owned[path]; !ok {
		return
	}
	delete(s.owned, path)
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to remove temporary image", "path", path, "error", err)
	}
}

// OwnedFiles returns the number of temporary files the session holds.
func (s *Session) OwnedFiles() int { return len(s.owned) }
