// Package corners finds candidate quadrilateral corners in a photograph
// with a Harris corner response and groups nearby responses into clusters.
package corners

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sort"

	"github.com/MeKo-Tech/pocrop/internal/geometry"
)

var (
	// ErrInsufficientCorners is returned when fewer than four candidates pass the threshold.
	ErrInsufficientCorners = errors.New("not enough corners detected")
	// ErrTooManyCorners is returned when the candidate set exceeds the configured maximum.
	ErrTooManyCorners = errors.New("too many corners detected")
)

// Candidate is a thresholded response pixel.
type Candidate struct {
	Point    geometry.Point
	Strength uint8
}

// Detector runs corner detection with a fixed configuration. It holds no
// per-run state and may be shared.
type Detector struct {
	cfg Config
}

// NewDetector validates cfg and returns a detector.
func NewDetector(cfg Config) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid corner detector config: %w", err)
	}
	return &Detector{cfg: cfg}, nil
}

// GetConfig returns the detector configuration.
func (d *Detector) GetConfig() Config { return d.cfg }

// Candidates returns the strongest thresholded response pixels, strongest
// first, capped at MaxCandidates.
func (d *Detector) Candidates(img image.Image) ([]Candidate, error) {
	if img == nil {
		return nil, errors.New("input image is nil")
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrInsufficientCorners)
	}

	gray := blurredGray(img, d.cfg.BlurSigma)
	resp := harrisResponse(gray, d.cfg.BlockSize, d.cfg.ApertureSize, d.cfg.K)
	gray.release()
	norm := normalizeToBytes(resp)
	resp.release()

	var cands []Candidate
	for y := range resp.h {
		for x := range resp.w {
			if v := norm[y*resp.w+x]; float64(v) > d.cfg.Threshold {
				cands = append(cands, Candidate{Point: geometry.Pt(float64(x), float64(y)), Strength: v})
			}
		}
	}

	if len(cands) < 4 {
		return nil, fmt.Errorf("%w: %d candidate(s) above threshold %.0f", ErrInsufficientCorners, len(cands), d.cfg.Threshold)
	}

	sort.SliceStable(cands, func(i, j int) bool { return cands[i].Strength > cands[j].Strength })
	if len(cands) > d.cfg.MaxCandidates {
		cands = cands[:d.cfg.MaxCandidates]
	}
	if len(cands) > d.cfg.MaxCorners {
		return nil, fmt.Errorf("%w: %d candidates exceed %d", ErrTooManyCorners, len(cands), d.cfg.MaxCorners)
	}
	return cands, nil
}

// Detect returns the corner clusters of img sorted largest first.
func (d *Detector) Detect(img image.Image) ([]Cluster, error) {
	cands, err := d.Candidates(img)
	if err != nil {
		return nil, err
	}
	pts := make([]geometry.Point, len(cands))
	for i, c := range cands {
		pts[i] = c.Point
	}
	clusters := ClusterPoints(pts, d.cfg.ClusterDistance)
	slog.Debug("Corner detection complete",
		"candidates", len(cands),
		"clusters", len(clusters),
		"largest", len(clusters[0]))
	return clusters, nil
}
