package corners

import (
	"errors"
	"fmt"
)

// Config holds the corner detector parameters.
type Config struct {
	// BlurSigma is the Gaussian sigma applied before the corner response.
	// 1.1 matches a 5x5 kernel.
	BlurSigma float64 `mapstructure:"blur_sigma" yaml:"blur_sigma" json:"blur_sigma"`
	// BlockSize is the neighbourhood summed into the second-moment matrix.
	BlockSize int `mapstructure:"block_size" yaml:"block_size" json:"block_size"`
	// ApertureSize is the odd Sobel kernel size used for the gradients.
	ApertureSize int `mapstructure:"aperture_size" yaml:"aperture_size" json:"aperture_size"`
	// K is the Harris sensitivity constant.
	K float64 `mapstructure:"k" yaml:"k" json:"k"`
	// Threshold applies to the response normalised to 0..255; pixels strictly above it are candidates.
	Threshold float64 `mapstructure:"threshold" yaml:"threshold" json:"threshold"`
	// MaxCandidates keeps only the strongest N candidates.
	MaxCandidates int `mapstructure:"max_candidates" yaml:"max_candidates" json:"max_candidates"`
	// MaxCorners rejects the run when more candidates than this survive.
	MaxCorners int `mapstructure:"max_corners" yaml:"max_corners" json:"max_corners"`
	// ClusterDistance is the inclusive link distance for clustering, in pixels.
	ClusterDistance float64 `mapstructure:"cluster_distance" yaml:"cluster_distance" json:"cluster_distance"`
	// SnapDistance is the radius within which a dragged corner snaps to a detected point.
	SnapDistance float64 `mapstructure:"snap_distance" yaml:"snap_distance" json:"snap_distance"`
	// EdgeLow and EdgeHigh are the hysteresis thresholds of the rectangle edge map.
	EdgeLow  float64 `mapstructure:"edge_low" yaml:"edge_low" json:"edge_low"`
	EdgeHigh float64 `mapstructure:"edge_high" yaml:"edge_high" json:"edge_high"`
	// MinRectangleArea drops rectangle candidates smaller than this many square pixels.
	MinRectangleArea float64 `mapstructure:"min_rectangle_area" yaml:"min_rectangle_area" json:"min_rectangle_area"`
}

// DefaultConfig returns the detector defaults.
func DefaultConfig() Config {
	return Config{
		BlurSigma:        1.1,
		BlockSize:        6,
		ApertureSize:     11,
		K:                0.04,
		Threshold:        150,
		MaxCandidates:    80,
		MaxCorners:       100,
		ClusterDistance:  100,
		SnapDistance:     20,
		EdgeLow:          50,
		EdgeHigh:         150,
		MinRectangleArea: 1000,
	}
}

// Validate checks the configuration for values the detector cannot work with.
func (c Config) Validate() error {
	if c.BlurSigma < 0 {
		return fmt.Errorf("blur sigma must be non-negative, got %.2f", c.BlurSigma)
	}
	if c.BlockSize < 1 {
		return fmt.Errorf("block size must be positive, got %d", c.BlockSize)
	}
	if c.ApertureSize < 3 || c.ApertureSize%2 == 0 {
		return fmt.Errorf("aperture size must be odd and >= 3, got %d", c.ApertureSize)
	}
	if c.Threshold < 0 || c.Threshold >= 255 {
		return fmt.Errorf("threshold must be in [0,255), got %.2f", c.Threshold)
	}
	if c.MaxCandidates < 4 {
		return fmt.Errorf("max candidates must be at least 4, got %d", c.MaxCandidates)
	}
	if c.MaxCorners < 4 {
		return fmt.Errorf("max corners must be at least 4, got %d", c.MaxCorners)
	}
	if c.ClusterDistance <= 0 {
		return errors.New("cluster distance must be positive")
	}
	if c.SnapDistance < 0 {
		return errors.New("snap distance must be non-negative")
	}
	if c.EdgeLow < 0 || c.EdgeHigh < c.EdgeLow {
		return fmt.Errorf("invalid edge thresholds %.1f/%.1f", c.EdgeLow, c.EdgeHigh)
	}
	return nil
}
