//nolint:lll
package config

import (
	"github.com/MeKo-Tech/pocrop/internal/corners"
	"github.com/MeKo-Tech/pocrop/internal/measurement"
)

// Config represents the complete configuration for pocrop.
// It is shared by every command (detect, correct, filter, measure, package,
// serve) and can be loaded from files, environment variables and flags.
type Config struct {
	// Global settings
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`
	TempDir  string `mapstructure:"temp_dir" yaml:"temp_dir" json:"temp_dir"`

	// Corner candidate detection
	Corners corners.Config `mapstructure:"corners" yaml:"corners" json:"corners"`

	// Perspective correction target
	Perspective PerspectiveConfig `mapstructure:"perspective" yaml:"perspective" json:"perspective"`

	// Warp primitive
	Warp WarpConfig `mapstructure:"warp" yaml:"warp" json:"warp"`

	// Undo/redo history
	History HistoryConfig `mapstructure:"history" yaml:"history" json:"history"`

	// Measurement records and overlays
	Measurement MeasurementConfig `mapstructure:"measurement" yaml:"measurement" json:"measurement"`

	// Image export
	Output OutputConfig `mapstructure:"output" yaml:"output" json:"output"`

	// Server configuration (for serve command)
	Server ServerConfig `mapstructure:"server" yaml:"server" json:"server"`
}

// PerspectiveConfig selects the default aspect ratio of a correction.
type PerspectiveConfig struct {
	AspectRatio  string  `mapstructure:"aspect_ratio" yaml:"aspect_ratio" json:"aspect_ratio"`
	CustomWidth  float64 `mapstructure:"custom_width" yaml:"custom_width" json:"custom_width"`
	CustomHeight float64 `mapstructure:"custom_height" yaml:"custom_height" json:"custom_height"`
	// DisplayWidth is the width corner coordinates are expressed in; 0 uses image pixels.
	DisplayWidth float64 `mapstructure:"display_width" yaml:"display_width" json:"display_width"`
}

// WarpConfig contains warp settings.
type WarpConfig struct {
	BestFit    bool   `mapstructure:"best_fit" yaml:"best_fit" json:"best_fit"`
	Background string `mapstructure:"background" yaml:"background" json:"background"`
	MaxPixels  int    `mapstructure:"max_pixels" yaml:"max_pixels" json:"max_pixels"`
	Workers    int    `mapstructure:"workers" yaml:"workers" json:"workers"`
}

// HistoryConfig bounds the undo stack.
type HistoryConfig struct {
	MaxDepth int `mapstructure:"max_depth" yaml:"max_depth" json:"max_depth"`
}

// MeasurementConfig contains measurement record and overlay settings.
type MeasurementConfig struct {
	RecordFormat string                    `mapstructure:"record_format" yaml:"record_format" json:"record_format"`
	Render       measurement.RenderOptions `mapstructure:"render" yaml:"render" json:"render"`
}

// OutputConfig contains image export settings.
type OutputConfig struct {
	Format              string `mapstructure:"format" yaml:"format" json:"format"`
	Quality             int    `mapstructure:"quality" yaml:"quality" json:"quality"`
	Width               int    `mapstructure:"width" yaml:"width" json:"width"`
	Height              int    `mapstructure:"height" yaml:"height" json:"height"`
	MaintainAspectRatio bool   `mapstructure:"maintain_aspect_ratio" yaml:"maintain_aspect_ratio" json:"maintain_aspect_ratio"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string `mapstructure:"host" yaml:"host" json:"host"`
	Port            int    `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin      string `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxUploadMB     int    `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	TimeoutSec      int    `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
	MaxSessions     int    `mapstructure:"max_sessions" yaml:"max_sessions" json:"max_sessions"`
}
