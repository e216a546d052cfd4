package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/MeKo-Tech/pocrop/internal/corners"
	"github.com/MeKo-Tech/pocrop/internal/editor"
	"github.com/MeKo-Tech/pocrop/internal/imageio"
	"github.com/MeKo-Tech/pocrop/internal/measurement"
	"github.com/MeKo-Tech/pocrop/internal/perspective"
	"github.com/MeKo-Tech/pocrop/internal/warp"
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	w := warp.DefaultOptions()
	return Config{
		LogLevel: "info",
		Verbose:  false,
		Corners:  corners.DefaultConfig(),
		Perspective: PerspectiveConfig{
			AspectRatio: perspective.A4Portrait.String(),
		},
		Warp: WarpConfig{
			BestFit:    w.BestFit,
			Background: "#000000",
			MaxPixels:  w.MaxPixels,
			Workers:    w.Workers,
		},
		History: HistoryConfig{
			MaxDepth: editor.DefaultConfig().HistoryDepth,
		},
		Measurement: MeasurementConfig{
			RecordFormat: string(measurement.FormatJSON),
			Render:       measurement.DefaultRenderOptions(),
		},
		Output: OutputConfig{
			Format:              string(imageio.JPEG),
			Quality:             imageio.DefaultJPEGQuality,
			MaintainAspectRatio: true,
		},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			CORSOrigin:      "*",
			MaxUploadMB:     50,
			TimeoutSec:      30,
			ShutdownTimeout: 10,
			MaxSessions:     16,
		},
	}
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	if err := c.Corners.Validate(); err != nil {
		return fmt.Errorf("corners: %w", err)
	}

	if _, err := c.PerspectiveSpec(); err != nil {
		return fmt.Errorf("perspective: %w", err)
	}
	if c.Perspective.DisplayWidth < 0 {
		return fmt.Errorf("invalid perspective.display_width: %g (must not be negative)", c.Perspective.DisplayWidth)
	}

	if _, err := measurement.ParseHexColor(c.Warp.Background); err != nil {
		return fmt.Errorf("invalid warp.background: %w", err)
	}
	if c.Warp.MaxPixels < 0 || c.Warp.Workers < 0 {
		return fmt.Errorf("invalid warp limits: max_pixels=%d workers=%d (must not be negative)", c.Warp.MaxPixels, c.Warp.Workers)
	}

	if c.History.MaxDepth < 0 {
		return fmt.Errorf("invalid history.max_depth: %d (must not be negative)", c.History.MaxDepth)
	}

	validRecordFormats := []string{string(measurement.FormatJSON), string(measurement.FormatYAML)}
	if !slices.Contains(validRecordFormats, c.Measurement.RecordFormat) {
		return fmt.Errorf("invalid measurement.record_format: %s (must be one of: %s)",
			c.Measurement.RecordFormat, strings.Join(validRecordFormats, ", "))
	}
	r := c.Measurement.Render
	for name, s := range map[string]string{
		"distance_color": r.DistanceColor,
		"angle_color":    r.AngleColor,
		"label_color":    r.LabelColor,
	} {
		if _, err := measurement.ParseHexColor(s); err != nil {
			return fmt.Errorf("invalid measurement.render.%s: %w", name, err)
		}
	}

	if c.Output.Format != "" {
		if _, err := imageio.ParseFormat(c.Output.Format); err != nil {
			return fmt.Errorf("invalid output format: %w", err)
		}
	}
	if c.Output.Quality < 1 || c.Output.Quality > 100 {
		return fmt.Errorf("invalid output quality: %d (must be between 1 and 100)", c.Output.Quality)
	}
	if c.Output.Width < 0 || c.Output.Height < 0 {
		return fmt.Errorf("invalid output size: %dx%d", c.Output.Width, c.Output.Height)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid max upload size: %d (must be positive)", c.Server.MaxUploadMB)
	}
	if c.Server.TimeoutSec <= 0 {
		return fmt.Errorf("invalid timeout: %d (must be positive)", c.Server.TimeoutSec)
	}
	if c.Server.MaxSessions <= 0 {
		return fmt.Errorf("invalid max sessions: %d (must be positive)", c.Server.MaxSessions)
	}

	return nil
}

// PerspectiveSpec resolves the configured aspect ratio.
func (c *Config) PerspectiveSpec() (perspective.Spec, error) {
	ratio, err := perspective.ParseAspectRatio(c.Perspective.AspectRatio)
	if err != nil {
		return perspective.Spec{}, err
	}
	spec := perspective.Spec{
		Ratio:        ratio,
		CustomWidth:  c.Perspective.CustomWidth,
		CustomHeight: c.Perspective.CustomHeight,
	}
	if _, err := spec.Value(); err != nil {
		return perspective.Spec{}, err
	}
	return spec, nil
}

// ToWarpOptions converts to warp.Options. An unparsable background falls
// back to the default.
func (c *Config) ToWarpOptions() warp.Options {
	opts := warp.DefaultOptions()
	opts.BestFit = c.Warp.BestFit
	opts.MaxPixels = c.Warp.MaxPixels
	opts.Workers = c.Warp.Workers
	if bg, err := measurement.ParseHexColor(c.Warp.Background); err == nil {
		opts.Background = bg
	}
	return opts
}

// ToEditorConfig converts the config to the editor session configuration.
func (c *Config) ToEditorConfig() editor.Config {
	return editor.Config{
		Corners:      c.Corners,
		Warp:         c.ToWarpOptions(),
		HistoryDepth: c.History.MaxDepth,
		TempDir:      c.TempDir,
		Quality:      c.Output.Quality,
	}
}

// ToSaveOptions converts the output section to imageio.SaveOptions.
func (c *Config) ToSaveOptions() imageio.SaveOptions {
	opts := imageio.SaveOptions{
		Quality:             c.Output.Quality,
		Width:               c.Output.Width,
		Height:              c.Output.Height,
		MaintainAspectRatio: c.Output.MaintainAspectRatio,
	}
	if f, err := imageio.ParseFormat(c.Output.Format); err == nil {
		opts.Format = f
	}
	return opts
}

// RecordFormat returns the configured measurement record encoding.
func (c *Config) RecordFormat() measurement.Format {
	return measurement.Format(c.Measurement.RecordFormat)
}
