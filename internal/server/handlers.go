package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/MeKo-Tech/pocrop/internal/corners"
	"github.com/MeKo-Tech/pocrop/internal/editor"
	"github.com/MeKo-Tech/pocrop/internal/geometry"
	"github.com/MeKo-Tech/pocrop/internal/imageio"
	"github.com/MeKo-Tech/pocrop/internal/measurement"
	"github.com/MeKo-Tech/pocrop/internal/perspective"
	"github.com/MeKo-Tech/pocrop/internal/version"
	"github.com/MeKo-Tech/pocrop/internal/warp"
	"github.com/disintegration/imaging"
)

// requestError carries the HTTP status of a client mistake.
type requestError struct {
	status int
	msg    string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &requestError{status: http.StatusBadRequest, msg: fmt.Sprintf(format, args...)}
}

var contentTypes = map[imageio.Format]string{
	imageio.JPEG: "image/jpeg",
	imageio.PNG:  "image/png",
	imageio.BMP:  "image/bmp",
	imageio.TIFF: "image/tiff",
	imageio.GIF:  "image/gif",
	imageio.PDF:  "application/pdf",
}

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.Lock()
	n := len(s.sessions)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:   "healthy",
		Version:  version.Short(),
		Time:     time.Now().UTC().Format(time.RFC3339),
		Sessions: n,
	})
}

// detectHandler finds corner candidates and rectangles in an uploaded image.
func (s *Server) detectHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path, cleanup, err := s.receiveUpload(w, r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer cleanup()

	sess, err := editor.Open(path, s.editorCfg)
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer sess.Close()

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout())
	defer cancel()

	start := time.Now()
	det, err := s.detect(ctx, sess)
	if err != nil {
		s.writeError(w, err)
		return
	}

	size := sess.ImageSize()
	resp := DetectResponse{
		Success:    true,
		Width:      int(size.Width),
		Height:     int(size.Height),
		Clusters:   make([][]geometry.Point, 0, len(det.Clusters)),
		Centroids:  det.Centroids,
		Rectangles: det.Rectangles,
	}
	for _, c := range det.Clusters {
		resp.Clusters = append(resp.Clusters, c)
	}
	if resp.Centroids == nil {
		resp.Centroids = []geometry.Point{}
	}
	if resp.Rectangles == nil {
		resp.Rectangles = []geometry.Quad{}
	}
	if det.HasSeed {
		seed := det.Seed
		resp.Seed = &seed
	}
	resp.Processing.DetectionTimeMs = time.Since(start).Milliseconds()

	writeJSON(w, http.StatusOK, resp)
}

// detect runs corner detection and records its metrics.
func (s *Server) detect(ctx context.Context, sess *editor.Session) (editor.Detection, error) {
	start := time.Now()
	det, err := sess.DetectCorners(ctx)
	cornerDetectionDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		cornerDetectionFailures.WithLabelValues(failureReason(err)).Inc()
	}
	return det, err
}

// correctHandler applies a perspective correction and returns the image.
//
// Form fields: image (file), corners (JSON array of four points in image
// pixels; detected when absent), ratio, custom_width, custom_height, format.
func (s *Server) correctHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path, cleanup, err := s.receiveUpload(w, r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer cleanup()

	spec, err := s.specFromValues(r.FormValue("ratio"), r.FormValue("custom_width"), r.FormValue("custom_height"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	format := imageio.JPEG
	if v := r.FormValue("format"); v != "" {
		if format, err = imageio.ParseFormat(v); err != nil {
			s.writeError(w, badRequest("%v", err))
			return
		}
	}

	sess, err := editor.Open(path, s.editorCfg)
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer sess.Close()

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout())
	defer cancel()

	if raw := r.FormValue("corners"); raw != "" {
		var pts []geometry.Point
		if err := json.Unmarshal([]byte(raw), &pts); err != nil || len(pts) != 4 {
			s.writeError(w, badRequest("corners must be a JSON array of four points"))
			return
		}
		q, _ := geometry.QuadFromSlice(pts)
		sess.SetQuad(q)
	} else {
		start := time.Now()
		_, err := sess.SeedCorners(ctx)
		cornerDetectionDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			cornerDetectionFailures.WithLabelValues(failureReason(err)).Inc()
			s.writeError(w, err)
			return
		}
	}

	start := time.Now()
	err = sess.Correct(ctx, spec)
	status := "success"
	if err != nil {
		status = "error"
	}
	warpDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	if err != nil {
		s.writeError(w, err)
		return
	}

	out, err := os.CreateTemp(s.editorCfg.TempDir, "pocrop-out-*."+string(format))
	if err != nil {
		s.writeError(w, err)
		return
	}
	outPath := out.Name()
	_ = out.Close()
	defer func() { _ = os.Remove(outPath) }()

	if err := sess.Export(outPath, imageio.SaveOptions{Format: format}); err != nil {
		s.writeError(w, err)
		return
	}
	data, err := os.ReadFile(outPath)
	if err != nil {
		s.writeError(w, err)
		return
	}

	size := sess.ImageSize()
	w.Header().Set("Content-Type", contentTypes[format])
	w.Header().Set("X-Image-Width", strconv.Itoa(int(size.Width)))
	w.Header().Set("X-Image-Height", strconv.Itoa(int(size.Height)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		slog.Error("Failed to write corrected image", "error", err)
	}
}

// measureHandler evaluates a measurement record. A multipart request with
// render=true draws the record over the uploaded image and returns a PNG.
func (s *Server) measureHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		s.renderMeasurements(w, r)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes())
	data, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(w, tooLargeOr(err, badRequest("failed to read request body")))
		return
	}
	rec, err := measurement.UnmarshalRecord(data, measurement.FormatJSON)
	if err != nil {
		s.writeError(w, err)
		return
	}
	c := measurement.FromRecord(rec)
	labels := c.Labels()
	if labels == nil {
		labels = []string{}
	}
	writeJSON(w, http.StatusOK, MeasureResponse{Success: true, Record: c.ToRecord(), Labels: labels})
}

func (s *Server) renderMeasurements(w http.ResponseWriter, r *http.Request) {
	path, cleanup, err := s.receiveUpload(w, r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer cleanup()

	if v := r.FormValue("render"); v != "" && v != "true" && v != "1" {
		s.writeError(w, badRequest("render must be true for multipart requests"))
		return
	}
	rec, err := measurement.UnmarshalRecord([]byte(r.FormValue("measurements")), measurement.FormatJSON)
	if err != nil {
		s.writeError(w, err)
		return
	}

	img, _, err := imageio.Load(path)
	if err != nil {
		s.writeError(w, err)
		return
	}
	canvas := imaging.Clone(img)
	measurement.Render(canvas, measurement.FromRecord(rec), s.render)

	var buf bytes.Buffer
	if err := imageio.Encode(&buf, canvas, imageio.PNG, 0); err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// receiveUpload stores the multipart "image" field in a temp file.
func (s *Server) receiveUpload(w http.ResponseWriter, r *http.Request) (string, func(), error) {
	limit := s.maxUploadBytes()
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		return "", nil, tooLargeOr(err, badRequest("failed to parse form data"))
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		return "", nil, badRequest("no image file provided")
	}
	defer func() { _ = file.Close() }()

	if header.Size > limit {
		return "", nil, &requestError{status: http.StatusRequestEntityTooLarge, msg: "file too large"}
	}
	uploadSizeBytes.Observe(float64(header.Size))

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if ext == "" {
		ext = ".png"
	}
	if !imageio.IsSupportedImage("x"+ext) && !imageio.IsPDF("x"+ext) {
		return "", nil, &requestError{status: http.StatusUnsupportedMediaType, msg: "unsupported file type: " + ext}
	}

	return saveUpload(s.editorCfg.TempDir, ext, file)
}

func saveUpload(dir, ext string, src io.Reader) (string, func(), error) {
	f, err := os.CreateTemp(dir, "pocrop-upload-*"+ext)
	if err != nil {
		return "", nil, err
	}
	path := f.Name()
	cleanup := func() { _ = os.Remove(path) }
	if _, err := io.Copy(f, src); err != nil {
		_ = f.Close()
		cleanup()
		return "", nil, err
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, err
	}
	return path, cleanup, nil
}

func tooLargeOr(err, fallback error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) || strings.Contains(strings.ToLower(err.Error()), "request body too large") {
		return &requestError{status: http.StatusRequestEntityTooLarge, msg: "file too large"}
	}
	return fallback
}

// specFromValues resolves form values into a correction target.
func (s *Server) specFromValues(ratio, customWidth, customHeight string) (perspective.Spec, error) {
	var dims [2]float64
	for i, raw := range []string{customWidth, customHeight} {
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return perspective.Spec{}, badRequest("invalid custom dimension %q", raw)
		}
		dims[i] = v
	}
	return s.specFor(ratio, dims[0], dims[1])
}

// specFor builds a correction target; an empty ratio uses the server default
// and zero custom dimensions keep the default's.
func (s *Server) specFor(ratio string, customWidth, customHeight float64) (perspective.Spec, error) {
	spec := s.spec
	if ratio != "" {
		r, err := perspective.ParseAspectRatio(ratio)
		if err != nil {
			return perspective.Spec{}, err
		}
		spec = perspective.Spec{Ratio: r}
	}
	if customWidth != 0 {
		spec.CustomWidth = customWidth
	}
	if customHeight != 0 {
		spec.CustomHeight = customHeight
	}
	if _, err := spec.Value(); err != nil {
		return perspective.Spec{}, err
	}
	return spec, nil
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var reqErr *requestError
	var ioErr *imageio.Error
	switch {
	case errors.As(err, &reqErr):
		return reqErr.status
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, perspective.ErrInvalidAspectRatio),
		errors.Is(err, measurement.ErrSerialization):
		return http.StatusBadRequest
	case errors.Is(err, corners.ErrInsufficientCorners),
		errors.Is(err, corners.ErrTooManyCorners),
		errors.Is(err, warp.ErrWarpFailure),
		errors.Is(err, editor.ErrNoQuad):
		return http.StatusUnprocessableEntity
	case errors.As(err, &ioErr):
		if ioErr.Operation == "decode" || ioErr.Operation == "load" {
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, corners.ErrInsufficientCorners):
		return "insufficient_corners"
	case errors.Is(err, corners.ErrTooManyCorners):
		return "too_many_corners"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	default:
		return "error"
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error("Request failed", "error", err)
	} else {
		slog.Debug("Request rejected", "status", status, "error", err)
	}
	s.writeErrorResponse(w, err.Error(), status)
}

// writeErrorResponse writes a JSON error response.
func (s *Server) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, statusCode, ErrorResponse{Success: false, Error: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Log error, but can't send another response
		slog.Error("Failed to encode response", "error", err)
	}
}
