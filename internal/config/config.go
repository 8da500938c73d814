// Package config loads tool settings from a TOML or YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	imgpkg "manual-align/internal/image"
	"manual-align/internal/project"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// ErrUnsupportedFormat is returned for config files that are neither TOML nor YAML.
var ErrUnsupportedFormat = errors.New("unsupported config format")

// Warp backends.
const (
	BackendGo     = "go"
	BackendOpenCV = "opencv"
)

// Config holds the tool settings. Zero values are replaced by Default's.
type Config struct {
	// Interpolation is the warp kernel: bilinear, nearest or catmullrom.
	Interpolation string `toml:"interpolation" yaml:"interpolation"`
	// Backend selects the warp implementation: go or opencv.
	Backend string `toml:"backend" yaml:"backend"`
	// Crop is the crop region used before one is loaded or chosen.
	Crop project.CropRegion `toml:"crop" yaml:"crop"`
	// ReferenceSuffix is appended to the raw export name to form the
	// reference export name when none is set explicitly.
	ReferenceSuffix string `toml:"reference_suffix" yaml:"reference_suffix"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `toml:"log_level" yaml:"log_level"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Interpolation:   imgpkg.InterpBilinear.String(),
		Backend:         BackendGo,
		Crop:            project.DefaultCropRegion,
		ReferenceSuffix: "_trace",
		LogLevel:        "info",
	}
}

// Load reads path, choosing the decoder from the file extension. Fields the
// file leaves out keep their default values.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return cfg, fmt.Errorf("config %s (%q): %w", path, ext, ErrUnsupportedFormat)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks that every field holds a usable value.
func (c Config) Validate() error {
	if _, err := imgpkg.ParseInterpolation(c.Interpolation); err != nil {
		return err
	}
	switch c.Backend {
	case BackendGo, BackendOpenCV:
	default:
		return fmt.Errorf("unknown warp backend %q", c.Backend)
	}
	if c.Crop.Width < 0 || c.Crop.Height < 0 {
		return fmt.Errorf("crop size must not be negative: %s", c.Crop)
	}
	return nil
}

// Interp returns the parsed interpolation kernel.
func (c Config) Interp() imgpkg.Interpolation {
	interp, err := imgpkg.ParseInterpolation(c.Interpolation)
	if err != nil {
		return imgpkg.InterpBilinear
	}
	return interp
}
