package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// ConfigFileName is the base name for configuration files (without extension).
	ConfigFileName = "pocrop"

	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "POCROP"
)

// Loader handles loading configuration from various sources.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	// Use the global viper instance to ensure flag bindings work
	return &Loader{v: viper.GetViper()}
}

// NewIsolatedLoader creates a loader with its own viper instance.
func NewIsolatedLoader() *Loader {
	return &Loader{v: viper.New()}
}

// Load loads configuration from files, environment variables, and sets defaults.
func (l *Loader) Load() (*Config, error) {
	return l.load("", true)
}

// LoadWithoutValidation is Load without the final Validate call.
func (l *Loader) LoadWithoutValidation() (*Config, error) {
	return l.load("", false)
}

// LoadWithFile loads configuration from a specific file path. An empty path
// searches the standard locations.
func (l *Loader) LoadWithFile(configFile string) (*Config, error) {
	return l.load(configFile, true)
}

// LoadWithFileWithoutValidation is LoadWithFile without validation.
func (l *Loader) LoadWithFileWithoutValidation(configFile string) (*Config, error) {
	return l.load(configFile, false)
}

func (l *Loader) load(configFile string, validate bool) (*Config, error) {
	if configFile != "" {
		if _, err := os.Stat(configFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file does not exist: %s", configFile)
		}
		l.v.SetConfigFile(configFile)
	} else {
		l.v.SetConfigName(ConfigFileName)
		l.v.SetConfigType("yaml")
		l.addConfigPaths()
	}

	l.setupEnvironmentVariables()
	l.setDefaults()

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No config file: defaults and env vars only
	}

	var config Config
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if validate {
		if err := config.Validate(); err != nil {
			return nil, fmt.Errorf("configuration validation failed: %w", err)
		}
	}

	return &config, nil
}

// Get returns a value from the configuration.
func (l *Loader) Get(key string) interface{} {
	return l.v.Get(key)
}

// GetString returns a string value from the configuration.
func (l *Loader) GetString(key string) string {
	return l.v.GetString(key)
}

// Set sets a value in the configuration.
func (l *Loader) Set(key string, value interface{}) {
	l.v.Set(key, value)
}

// GetConfigFileUsed returns the path of the config file used.
func (l *Loader) GetConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// GetViper returns the underlying viper instance for advanced usage.
func (l *Loader) GetViper() *viper.Viper {
	return l.v
}

func (l *Loader) addConfigPaths() {
	for _, p := range GetConfigSearchPaths() {
		l.v.AddConfigPath(p)
	}
}

func (l *Loader) setupEnvironmentVariables() {
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.AutomaticEnv()
	// POCROP_CORNERS_MAX_CORNERS -> corners.max_corners
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

// setDefaults registers every key so that env vars reach Unmarshal.
func (l *Loader) setDefaults() {
	d := DefaultConfig()

	l.v.SetDefault("log_level", d.LogLevel)
	l.v.SetDefault("verbose", d.Verbose)
	l.v.SetDefault("temp_dir", d.TempDir)

	c := d.Corners
	l.v.SetDefault("corners.blur_sigma", c.BlurSigma)
	l.v.SetDefault("corners.block_size", c.BlockSize)
	l.v.SetDefault("corners.aperture_size", c.ApertureSize)
	l.v.SetDefault("corners.k", c.K)
	l.v.SetDefault("corners.threshold", c.Threshold)
	l.v.SetDefault("corners.max_candidates", c.MaxCandidates)
	l.v.SetDefault("corners.max_corners", c.MaxCorners)
	l.v.SetDefault("corners.cluster_distance", c.ClusterDistance)
	l.v.SetDefault("corners.snap_distance", c.SnapDistance)
	l.v.SetDefault("corners.edge_low", c.EdgeLow)
	l.v.SetDefault("corners.edge_high", c.EdgeHigh)
	l.v.SetDefault("corners.min_rectangle_area", c.MinRectangleArea)

	l.v.SetDefault("perspective.aspect_ratio", d.Perspective.AspectRatio)
	l.v.SetDefault("perspective.custom_width", d.Perspective.CustomWidth)
	l.v.SetDefault("perspective.custom_height", d.Perspective.CustomHeight)
	l.v.SetDefault("perspective.display_width", d.Perspective.DisplayWidth)

	l.v.SetDefault("warp.best_fit", d.Warp.BestFit)
	l.v.SetDefault("warp.background", d.Warp.Background)
	l.v.SetDefault("warp.max_pixels", d.Warp.MaxPixels)
	l.v.SetDefault("warp.workers", d.Warp.Workers)

	l.v.SetDefault("history.max_depth", d.History.MaxDepth)

	r := d.Measurement.Render
	l.v.SetDefault("measurement.record_format", d.Measurement.RecordFormat)
	l.v.SetDefault("measurement.render.distance_color", r.DistanceColor)
	l.v.SetDefault("measurement.render.angle_color", r.AngleColor)
	l.v.SetDefault("measurement.render.label_color", r.LabelColor)
	l.v.SetDefault("measurement.render.thickness", r.Thickness)
	l.v.SetDefault("measurement.render.handle_radius", r.HandleRadius)
	l.v.SetDefault("measurement.render.labels", r.Labels)

	l.v.SetDefault("output.format", d.Output.Format)
	l.v.SetDefault("output.quality", d.Output.Quality)
	l.v.SetDefault("output.width", d.Output.Width)
	l.v.SetDefault("output.height", d.Output.Height)
	l.v.SetDefault("output.maintain_aspect_ratio", d.Output.MaintainAspectRatio)

	l.v.SetDefault("server.host", d.Server.Host)
	l.v.SetDefault("server.port", d.Server.Port)
	l.v.SetDefault("server.cors_origin", d.Server.CORSOrigin)
	l.v.SetDefault("server.max_upload_mb", d.Server.MaxUploadMB)
	l.v.SetDefault("server.timeout_sec", d.Server.TimeoutSec)
	l.v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	l.v.SetDefault("server.max_sessions", d.Server.MaxSessions)
}

// GetResolvedConfig returns the current resolved configuration for debugging.
func (l *Loader) GetResolvedConfig() map[string]interface{} {
	return l.v.AllSettings()
}

// WriteConfigToFile writes the current configuration to a file.
func (l *Loader) WriteConfigToFile(filename string) error {
	return l.v.WriteConfigAs(filename)
}

// GenerateDefaultConfigFile generates a default configuration file.
func GenerateDefaultConfigFile(filename string) error {
	loader := NewIsolatedLoader()
	loader.setDefaults()

	if filename == "" {
		filename = ConfigFileName + ".yaml"
	}

	return loader.WriteConfigToFile(filename)
}

// MarshalYAML renders cfg the way it would appear in a config file.
func MarshalYAML(cfg *Config) ([]byte, error) {
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("error marshaling config: %w", err)
	}
	return out, nil
}

// GetConfigSearchPaths returns the paths where configuration files are searched.
func GetConfigSearchPaths() []string {
	paths := []string{"."}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, home)
	}

	if configDir, exists := os.LookupEnv("XDG_CONFIG_HOME"); exists {
		paths = append(paths, filepath.Join(configDir, "pocrop"))
	} else if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "pocrop"))
	}

	paths = append(paths, "/etc/pocrop")

	return paths
}

// PrintConfigInfo prints information about configuration loading for debugging.
func (l *Loader) PrintConfigInfo() {
	fmt.Printf("Configuration file used: %s\n", l.GetConfigFileUsed())
	fmt.Printf("Configuration search paths: %v\n", GetConfigSearchPaths())
	fmt.Printf("Environment prefix: %s\n", EnvPrefix)
}
