package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/kikiluvv/quotereel/pkg/util"
)

type contextKey string

const configKey contextKey = "config"

// Config holds all application configuration
type Config struct {
	// Core settings
	OutputDir string `yaml:"output_dir" toml:"output_dir"`
	TempDir   string `yaml:"temp_dir" toml:"temp_dir"`
	// SingleInstance holds a lock file in TempDir while a reel renders, so
	// two quotereel processes never generate at the same time.
	SingleInstance      bool `yaml:"single_instance" toml:"single_instance"`
	StallTimeoutSeconds int  `yaml:"stall_timeout_seconds" toml:"stall_timeout_seconds"`

	// Encoder settings
	Encoder EncoderConfig `yaml:"encoder" toml:"encoder"`

	// FFmpeg settings
	FFmpeg FFmpegConfig `yaml:"ffmpeg" toml:"ffmpeg"`

	// Overlay settings
	Overlays OverlayConfig `yaml:"overlays" toml:"overlays"`

	// Settings a new session starts with
	Defaults DefaultsConfig `yaml:"defaults" toml:"defaults"`
}

type EncoderConfig struct {
	Backend     string `yaml:"backend" toml:"backend"` // auto, ffmpeg or mjpeg
	Codec       string `yaml:"codec" toml:"codec"`
	Preset      string `yaml:"preset" toml:"preset"`
	JPEGQuality int    `yaml:"jpeg_quality" toml:"jpeg_quality"`
}

type FFmpegConfig struct {
	BinaryPath string `yaml:"binary_path" toml:"binary_path"`
	ProbePath  string `yaml:"probe_path" toml:"probe_path"`
	Threads    int    `yaml:"threads" toml:"threads"`
}

type OverlayConfig struct {
	Watermark      bool              `yaml:"watermark" toml:"watermark"`
	WatermarkLabel string            `yaml:"watermark_label" toml:"watermark_label"`
	Fonts          map[string]string `yaml:"fonts" toml:"fonts"` // family name -> TTF/OTF path
}

type DefaultsConfig struct {
	DurationMS int        `yaml:"duration_ms" toml:"duration_ms"`
	Transition string     `yaml:"transition" toml:"transition"`
	Quality    string     `yaml:"quality" toml:"quality"`
	Text       TextConfig `yaml:"text" toml:"text"`
}

type TextConfig struct {
	Show      bool   `yaml:"show" toml:"show"`
	Alignment string `yaml:"alignment" toml:"alignment"`
	Position  string `yaml:"position" toml:"position"`
	FontScale int    `yaml:"font_scale" toml:"font_scale"`
	Family    string `yaml:"family" toml:"family"`
	Color     string `yaml:"color" toml:"color"`
	Shadow    bool   `yaml:"shadow" toml:"shadow"`
	Bold      bool   `yaml:"bold" toml:"bold"`
	Italic    bool   `yaml:"italic" toml:"italic"`
	Underline bool   `yaml:"underline" toml:"underline"`
}

// Load reads configuration from file or returns defaults. With an empty path
// the usual locations are searched. Files ending in .toml are parsed as TOML,
// everything else as YAML. The result is normalized and validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = findConfigFile()
	}

	if path != "" {
		data, err := os.ReadFile(expandHome(path))
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := unmarshal(path, data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes configuration to file, in TOML when path ends in .toml.
func (c *Config) Save(path string) error {
	data, err := c.Marshal(path)
	if err != nil {
		return err
	}
	return util.WriteFileAtomic(expandHome(path), data)
}

// Marshal encodes the config in the format implied by path.
func (c *Config) Marshal(path string) ([]byte, error) {
	if isTOML(path) {
		return toml.Marshal(c)
	}
	return yaml.Marshal(c)
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		OutputDir:           "./reels",
		TempDir:             filepath.Join(os.TempDir(), "quotereel"),
		SingleInstance:      true,
		StallTimeoutSeconds: 30,
		Encoder: EncoderConfig{
			Backend:     "auto",
			Codec:       "libx264",
			Preset:      "veryfast",
			JPEGQuality: 90,
		},
		FFmpeg: FFmpegConfig{
			BinaryPath: "ffmpeg",
			ProbePath:  "ffprobe",
			Threads:    0,
		},
		Overlays: OverlayConfig{
			Watermark:      true,
			WatermarkLabel: "QuoteReel",
			Fonts:          make(map[string]string),
		},
		Defaults: DefaultsConfig{
			DurationMS: 3000,
			Transition: "fade",
			Quality:    "1080p",
			Text: TextConfig{
				Show:      true,
				Alignment: "center",
				Position:  "center",
				FontScale: 100,
				Family:    "Go",
				Color:     "#ffffff",
				Shadow:    true,
				Bold:      true,
			},
		},
	}
}

// LockPath is the single-instance lock file, or empty when disabled.
func (c *Config) LockPath() string {
	if !c.SingleInstance {
		return ""
	}
	return filepath.Join(c.TempDir, "quotereel.lock")
}

// DefaultConfigPath is where `config init` writes when no path is given.
func DefaultConfigPath() string {
	return expandHome(filepath.Join("~", ".quotereel", "config.yaml"))
}

func (c *Config) normalize() {
	c.OutputDir = expandHome(strings.TrimSpace(c.OutputDir))
	c.TempDir = expandHome(strings.TrimSpace(c.TempDir))
	if c.TempDir == "" {
		c.TempDir = filepath.Join(os.TempDir(), "quotereel")
	}
	c.Encoder.Backend = strings.ToLower(strings.TrimSpace(c.Encoder.Backend))
	c.Encoder.Codec = strings.TrimSpace(c.Encoder.Codec)
	if c.Overlays.Fonts == nil {
		c.Overlays.Fonts = make(map[string]string)
	}
	for name, path := range c.Overlays.Fonts {
		c.Overlays.Fonts[name] = expandHome(path)
	}
}

func unmarshal(path string, data []byte, cfg *Config) error {
	if isTOML(path) {
		return toml.Unmarshal(data, cfg)
	}
	return yaml.Unmarshal(data, cfg)
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

func findConfigFile() string {
	candidates := []string{
		"./quotereel.yaml",
		"./quotereel.yml",
		"./quotereel.toml",
		DefaultConfigPath(),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// WithConfig stores config in context
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

// FromContext retrieves config from context
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(configKey).(*Config); ok {
		return cfg
	}
	return Default()
}

var errNoOutputDir = errors.New("output_dir must be set")
