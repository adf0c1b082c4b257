package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kikiluvv/quotereel/internal/encoder"
	"github.com/kikiluvv/quotereel/internal/reel"
)

var x26xPresets = map[string]bool{
	"ultrafast": true, "superfast": true, "veryfast": true, "faster": true, "fast": true,
	"medium": true, "slow": true, "slower": true, "veryslow": true,
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if c.OutputDir == "" {
		return errNoOutputDir
	}
	if c.StallTimeoutSeconds < 0 {
		return errors.New("stall_timeout_seconds must not be negative")
	}
	if err := c.validateEncoder(); err != nil {
		return err
	}
	if c.FFmpeg.Threads < 0 {
		return errors.New("ffmpeg.threads must not be negative")
	}
	if _, err := c.ReelSettings(); err != nil {
		return fmt.Errorf("defaults: %w", err)
	}
	if _, err := c.TextSettings(); err != nil {
		return fmt.Errorf("defaults.text: %w", err)
	}
	return nil
}

func (c *Config) validateEncoder() error {
	if _, err := encoder.ParseBackend(c.Encoder.Backend); err != nil {
		return fmt.Errorf("encoder.backend: %w", err)
	}
	if c.Encoder.Codec == "" {
		return errors.New("encoder.codec must be set")
	}
	if c.Encoder.Preset != "" && !x26xPresets[c.Encoder.Preset] {
		return fmt.Errorf("encoder.preset %q is not an x264/x265 preset", c.Encoder.Preset)
	}
	if c.Encoder.JPEGQuality < 1 || c.Encoder.JPEGQuality > 100 {
		return errors.New("encoder.jpeg_quality must be between 1 and 100")
	}
	return nil
}

// StallTimeout is the generation watchdog timeout; zero disables it.
func (c *Config) StallTimeout() time.Duration {
	return time.Duration(c.StallTimeoutSeconds) * time.Second
}

// Backend returns the parsed encoder backend.
func (c *Config) Backend() encoder.Backend {
	b, err := encoder.ParseBackend(c.Encoder.Backend)
	if err != nil {
		return encoder.BackendAuto
	}
	return b
}

// EncoderOptions builds the sink factory options.
func (c *Config) EncoderOptions() encoder.Options {
	return encoder.Options{
		Backend:     c.Backend(),
		Codec:       c.Encoder.Codec,
		Preset:      c.Encoder.Preset,
		TempDir:     c.TempDir,
		JPEGQuality: c.Encoder.JPEGQuality,
	}
}

// ReelSettings converts the defaults into image-mode settings.
func (c *Config) ReelSettings() (reel.ReelSettings, error) {
	d := c.Defaults
	transition, err := reel.ParseTransition(d.Transition)
	if err != nil {
		return reel.ReelSettings{}, err
	}
	quality, err := reel.ParseQuality(d.Quality)
	if err != nil {
		return reel.ReelSettings{}, err
	}
	rs := reel.ReelSettings{
		DurationPerImage: time.Duration(d.DurationMS) * time.Millisecond,
		Transition:       transition,
		Quality:          quality,
	}
	if err := rs.Validate(); err != nil {
		return reel.ReelSettings{}, err
	}
	return rs, nil
}

// TextSettings converts the defaults into a caption style.
func (c *Config) TextSettings() (reel.TextSettings, error) {
	t := c.Defaults.Text
	alignment, err := reel.ParseAlignment(t.Alignment)
	if err != nil {
		return reel.TextSettings{}, err
	}
	position, err := reel.ParsePosition(t.Position)
	if err != nil {
		return reel.TextSettings{}, err
	}
	ts := reel.TextSettings{
		ShowText:      t.Show,
		Alignment:     alignment,
		Position:      position,
		FontSizeScale: t.FontScale,
		FontFamily:    t.Family,
		TextColor:     t.Color,
		Shadow:        t.Shadow,
		Bold:          t.Bold,
		Italic:        t.Italic,
		Underline:     t.Underline,
	}.Normalize()
	if err := ts.Validate(); err != nil {
		return reel.TextSettings{}, err
	}
	return ts, nil
}
