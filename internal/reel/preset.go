package reel

import (
	"fmt"
	"strings"
	"time"
)

// FrameRate is the fixed output frame rate for every quality tier.
const FrameRate = 30

// FrameInterval is the wall-clock pacing between two emitted frames.
const FrameInterval = time.Second / FrameRate

// Quality names an output quality tier.
type Quality string

const (
	Quality1080p Quality = "1080p"
	Quality4K    Quality = "4k"
)

// QualityPreset bundles output resolution and target bitrate for a tier.
type QualityPreset struct {
	Tier    Quality
	Width   int
	Height  int
	Bitrate int64 // bits per second
	FPS     int
}

// Presets is the static quality table, ordered from lowest to highest.
var Presets = []QualityPreset{
	{Tier: Quality1080p, Width: 1080, Height: 1920, Bitrate: 8_000_000, FPS: FrameRate},
	{Tier: Quality4K, Width: 2160, Height: 3840, Bitrate: 35_000_000, FPS: FrameRate},
}

// PresetFor returns the preset row for a tier.
func PresetFor(q Quality) (QualityPreset, error) {
	for _, p := range Presets {
		if p.Tier == q {
			return p, nil
		}
	}
	return QualityPreset{}, &ValidationError{Field: "quality", Msg: fmt.Sprintf("unknown quality %q", q)}
}

// ParseQuality accepts the tier names plus a few common spellings.
func ParseQuality(s string) (Quality, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1080p", "1080", "hd", "fhd":
		return Quality1080p, nil
	case "4k", "2160p", "2160", "uhd":
		return Quality4K, nil
	default:
		return "", &ValidationError{Field: "quality", Msg: fmt.Sprintf("unknown quality %q (use 1080p or 4k)", s)}
	}
}

// Valid reports whether q is one of the known tiers.
func (q Quality) Valid() bool {
	_, err := PresetFor(q)
	return err == nil
}

// BitrateLabel formats the preset bitrate as "8 Mbps".
func (p QualityPreset) BitrateLabel() string {
	return fmt.Sprintf("%d Mbps", p.Bitrate/1_000_000)
}
