package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kikiluvv/quotereel/internal/encoder"
	"github.com/kikiluvv/quotereel/internal/reel"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	rs, err := cfg.ReelSettings()
	if err != nil {
		t.Fatal(err)
	}
	if rs != reel.DefaultReelSettings() {
		t.Fatalf("default reel settings %+v, want %+v", rs, reel.DefaultReelSettings())
	}
	ts, err := cfg.TextSettings()
	if err != nil {
		t.Fatal(err)
	}
	if ts != reel.DefaultTextSettings() {
		t.Fatalf("default text settings %+v, want %+v", ts, reel.DefaultTextSettings())
	}
	if cfg.StallTimeout() != 30*time.Second {
		t.Fatalf("stall timeout = %v", cfg.StallTimeout())
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Encoder.Codec != "libx264" || cfg.Defaults.DurationMS != 3000 {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quotereel.yaml")
	data := `
output_dir: /tmp/reels
stall_timeout_seconds: 0
encoder:
  backend: MJPEG
  codec: libx264
  jpeg_quality: 75
defaults:
  duration_ms: 500
  transition: zoom
  quality: 4k
  text:
    show: true
    alignment: left
    position: bottom
    font_scale: 400
    family: Go Mono
    color: "#ff0"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.OutputDir != "/tmp/reels" || cfg.StallTimeout() != 0 {
		t.Fatalf("unexpected core settings %+v", cfg)
	}
	if cfg.Backend() != encoder.BackendMJPEG || cfg.EncoderOptions().JPEGQuality != 75 {
		t.Fatalf("unexpected encoder settings %+v", cfg.Encoder)
	}

	rs, _ := cfg.ReelSettings()
	if rs.DurationPerImage != 500*time.Millisecond || rs.Transition != reel.TransitionZoom || rs.Quality != reel.Quality4K {
		t.Fatalf("unexpected reel settings %+v", rs)
	}
	ts, _ := cfg.TextSettings()
	if ts.Alignment != reel.AlignLeft || ts.Position != reel.PositionBottom || ts.FontSizeScale != reel.MaxFontScale {
		t.Fatalf("unexpected text settings %+v", ts)
	}
}

func TestLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quotereel.toml")
	data := `
output_dir = "/srv/reels"
single_instance = false

[encoder]
backend = "ffmpeg"
codec = "libvpx-vp9"
preset = ""
jpeg_quality = 90

[defaults]
duration_ms = 1000
transition = "slide"
quality = "1080p"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.OutputDir != "/srv/reels" || cfg.LockPath() != "" {
		t.Fatalf("unexpected core settings %+v", cfg)
	}
	if cfg.Backend() != encoder.BackendFFmpeg || cfg.Encoder.Codec != "libvpx-vp9" {
		t.Fatalf("unexpected encoder settings %+v", cfg.Encoder)
	}
	// sections missing from the file keep their defaults
	if cfg.Defaults.Text.Family != "Go" {
		t.Fatalf("text defaults lost: %+v", cfg.Defaults.Text)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"backend", func(c *Config) { c.Encoder.Backend = "gstreamer" }, "encoder.backend"},
		{"codec", func(c *Config) { c.Encoder.Codec = "" }, "encoder.codec"},
		{"preset", func(c *Config) { c.Encoder.Preset = "ludicrous" }, "encoder.preset"},
		{"jpeg", func(c *Config) { c.Encoder.JPEGQuality = 0 }, "jpeg_quality"},
		{"stall", func(c *Config) { c.StallTimeoutSeconds = -1 }, "stall_timeout"},
		{"duration", func(c *Config) { c.Defaults.DurationMS = 700 }, "defaults"},
		{"transition", func(c *Config) { c.Defaults.Transition = "wipe" }, "defaults"},
		{"color", func(c *Config) { c.Defaults.Text.Color = "blue-ish" }, "defaults.text"},
		{"output", func(c *Config) { c.OutputDir = "" }, "output_dir"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	for _, name := range []string{"config.yaml", "config.toml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)
			cfg := Default()
			cfg.OutputDir = "/data/out"
			cfg.Defaults.Transition = "none"

			if err := cfg.Save(path); err != nil {
				t.Fatal(err)
			}
			loaded, err := Load(path)
			if err != nil {
				t.Fatal(err)
			}
			if loaded.OutputDir != "/data/out" || loaded.Defaults.Transition != "none" {
				t.Fatalf("round trip lost values: %+v", loaded)
			}
		})
	}
}

func TestContext(t *testing.T) {
	cfg := Default()
	cfg.OutputDir = "/ctx"
	ctx := WithConfig(context.Background(), cfg)
	if FromContext(ctx).OutputDir != "/ctx" {
		t.Fatal("config not stored on context")
	}
	if FromContext(context.Background()).OutputDir != Default().OutputDir {
		t.Fatal("missing config should fall back to defaults")
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := expandHome("~/reels"); got != filepath.Join(home, "reels") {
		t.Fatalf("expandHome = %q", got)
	}
	if got := expandHome("/abs/path"); got != "/abs/path" {
		t.Fatalf("absolute path changed: %q", got)
	}
}
