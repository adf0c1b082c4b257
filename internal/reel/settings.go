package reel

import (
	"fmt"
	"slices"
	"strings"
	"time"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// Limits on the inputs accepted by a reel session.
const (
	MinImages        = 2
	MaxImages        = 20
	MaxVideoDuration = 30 * time.Second
	MaxVideoSize     = 100 * 1024 * 1024

	MinFontScale = 50
	MaxFontScale = 150
	MaxOffset    = 50
)

// Mode selects between an image sequence and a single uploaded video.
type Mode string

const (
	ModeImages Mode = "images"
	ModeVideo  Mode = "video"
)

// Transition is the blend used between two consecutive images.
type Transition string

const (
	TransitionDefault Transition = "default"
	TransitionFade    Transition = "fade"
	TransitionSlide   Transition = "slide"
	TransitionZoom    Transition = "zoom"
	TransitionNone    Transition = "none"
)

// Transitions lists every transition in UI order.
var Transitions = []Transition{TransitionDefault, TransitionFade, TransitionSlide, TransitionZoom, TransitionNone}

// Blends reports whether the transition draws a blend inside its window.
// Default and none both swap instantly; they differ only in labeling.
func (t Transition) Blends() bool {
	return t == TransitionFade || t == TransitionSlide || t == TransitionZoom
}

// Alignment is the horizontal text anchor.
type Alignment string

const (
	AlignLeft   Alignment = "left"
	AlignCenter Alignment = "center"
	AlignRight  Alignment = "right"
)

// Position is the vertical text anchor.
type Position string

const (
	PositionTop    Position = "top"
	PositionCenter Position = "center"
	PositionBottom Position = "bottom"
)

// Durations are the allowed per-image display times.
var Durations = []time.Duration{
	300 * time.Millisecond,
	400 * time.Millisecond,
	500 * time.Millisecond,
	800 * time.Millisecond,
	1 * time.Second,
	2 * time.Second,
	3 * time.Second,
	4 * time.Second,
	5 * time.Second,
}

// ReelSettings configures image-sequence mode.
type ReelSettings struct {
	DurationPerImage time.Duration
	Transition       Transition
	Quality          Quality
}

// DefaultReelSettings returns the settings a fresh session starts with.
func DefaultReelSettings() ReelSettings {
	return ReelSettings{
		DurationPerImage: 3 * time.Second,
		Transition:       TransitionFade,
		Quality:          Quality1080p,
	}
}

// Validate checks every field against its enum.
func (s ReelSettings) Validate() error {
	if !slices.Contains(Durations, s.DurationPerImage) {
		return Invalid("duration", fmt.Sprintf("unsupported duration per image %v", s.DurationPerImage))
	}
	if !slices.Contains(Transitions, s.Transition) {
		return Invalid("transition", fmt.Sprintf("unknown transition %q", s.Transition))
	}
	if !s.Quality.Valid() {
		return Invalid("quality", fmt.Sprintf("unknown quality %q", s.Quality))
	}
	return nil
}

// TotalDuration is imageCount * DurationPerImage, exact.
func (s ReelSettings) TotalDuration(imageCount int) time.Duration {
	return time.Duration(imageCount) * s.DurationPerImage
}

// WithDuration returns a copy using d, snapped to the nearest allowed value.
func (s ReelSettings) WithDuration(d time.Duration) ReelSettings {
	best := Durations[0]
	for _, candidate := range Durations {
		if absDuration(candidate-d) < absDuration(best-d) {
			best = candidate
		}
	}
	s.DurationPerImage = best
	return s
}

// WithTransition returns a copy using t.
func (s ReelSettings) WithTransition(t Transition) ReelSettings {
	s.Transition = t
	return s
}

// WithQuality returns a copy using q.
func (s ReelSettings) WithQuality(q Quality) ReelSettings {
	s.Quality = q
	return s
}

// ParseTransition accepts a transition name.
func ParseTransition(v string) (Transition, error) {
	t := Transition(strings.ToLower(strings.TrimSpace(v)))
	if !slices.Contains(Transitions, t) {
		return "", Invalid("transition", fmt.Sprintf("unknown transition %q", v))
	}
	return t, nil
}

// TextSettings configures the caption overlay.
type TextSettings struct {
	ShowText      bool
	Alignment     Alignment
	Position      Position
	FontSizeScale int
	FontFamily    string
	TextColor     string
	Shadow        bool
	OffsetX       int
	OffsetY       int
	Bold          bool
	Italic        bool
	Underline     bool
}

// DefaultTextSettings returns the caption style a fresh session starts with.
func DefaultTextSettings() TextSettings {
	return TextSettings{
		ShowText:      true,
		Alignment:     AlignCenter,
		Position:      PositionCenter,
		FontSizeScale: 100,
		FontFamily:    "Go",
		TextColor:     "#ffffff",
		Shadow:        true,
		Bold:          true,
	}
}

// Validate checks enums and color syntax. Numeric ranges are enforced by the
// With* helpers and by Normalize, so they are not errors here.
func (s TextSettings) Validate() error {
	switch s.Alignment {
	case AlignLeft, AlignCenter, AlignRight:
	default:
		return Invalid("alignment", fmt.Sprintf("unknown alignment %q", s.Alignment))
	}
	switch s.Position {
	case PositionTop, PositionCenter, PositionBottom:
	default:
		return Invalid("position", fmt.Sprintf("unknown position %q", s.Position))
	}
	if _, err := ParseColor(s.TextColor); err != nil {
		return err
	}
	return nil
}

// Normalize clamps every numeric field into range.
func (s TextSettings) Normalize() TextSettings {
	s.FontSizeScale = clamp(s.FontSizeScale, MinFontScale, MaxFontScale)
	s.OffsetX = clamp(s.OffsetX, -MaxOffset, MaxOffset)
	s.OffsetY = clamp(s.OffsetY, -MaxOffset, MaxOffset)
	if strings.TrimSpace(s.FontFamily) == "" {
		s.FontFamily = DefaultTextSettings().FontFamily
	}
	return s
}

// WithOffset sets both offsets, saturating at ±MaxOffset.
func (s TextSettings) WithOffset(x, y int) TextSettings {
	s.OffsetX = clamp(x, -MaxOffset, MaxOffset)
	s.OffsetY = clamp(y, -MaxOffset, MaxOffset)
	return s
}

// NudgeOffset moves the text by (dx, dy) percent, saturating at the bounds.
func (s TextSettings) NudgeOffset(dx, dy int) TextSettings {
	return s.WithOffset(s.OffsetX+dx, s.OffsetY+dy)
}

// ResetOffset puts the text back on its base anchor.
func (s TextSettings) ResetOffset() TextSettings {
	return s.WithOffset(0, 0)
}

// WithFontScale sets the font size scale, saturating at the bounds.
func (s TextSettings) WithFontScale(scale int) TextSettings {
	s.FontSizeScale = clamp(scale, MinFontScale, MaxFontScale)
	return s
}

// WithAlignment returns a copy using a.
func (s TextSettings) WithAlignment(a Alignment) TextSettings {
	s.Alignment = a
	return s
}

// WithPosition returns a copy using p.
func (s TextSettings) WithPosition(p Position) TextSettings {
	s.Position = p
	return s
}

// WithColor returns a copy using the CSS hex color c.
func (s TextSettings) WithColor(c string) TextSettings {
	s.TextColor = c
	return s
}

// WithFamily returns a copy using the font family name.
func (s TextSettings) WithFamily(family string) TextSettings {
	s.FontFamily = family
	return s
}

// ToggleBold flips the bold flag.
func (s TextSettings) ToggleBold() TextSettings {
	s.Bold = !s.Bold
	return s
}

// ToggleItalic flips the italic flag.
func (s TextSettings) ToggleItalic() TextSettings {
	s.Italic = !s.Italic
	return s
}

// ToggleUnderline flips the underline flag.
func (s TextSettings) ToggleUnderline() TextSettings {
	s.Underline = !s.Underline
	return s
}

// ToggleShadow flips the drop shadow flag.
func (s TextSettings) ToggleShadow() TextSettings {
	s.Shadow = !s.Shadow
	return s
}

// ToggleText flips caption visibility.
func (s TextSettings) ToggleText() TextSettings {
	s.ShowText = !s.ShowText
	return s
}

// ParseAlignment accepts an alignment name.
func ParseAlignment(v string) (Alignment, error) {
	a := Alignment(strings.ToLower(strings.TrimSpace(v)))
	switch a {
	case AlignLeft, AlignCenter, AlignRight:
		return a, nil
	}
	return "", Invalid("alignment", fmt.Sprintf("unknown alignment %q", v))
}

// ParsePosition accepts a position name.
func ParsePosition(v string) (Position, error) {
	p := Position(strings.ToLower(strings.TrimSpace(v)))
	switch p {
	case PositionTop, PositionCenter, PositionBottom:
		return p, nil
	}
	return "", Invalid("position", fmt.Sprintf("unknown position %q", v))
}

// ParseColor parses a CSS hex color ("#fff" or "#ffffff").
func ParseColor(v string) (colorful.Color, error) {
	c, err := colorful.Hex(strings.TrimSpace(v))
	if err != nil {
		return colorful.Color{}, Invalid("textColor", fmt.Sprintf("invalid color %q", v))
	}
	return c, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
