package overlays

import (
	"math"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/kikiluvv/quotereel/internal/reel"
)

// MeasureFunc returns the rendered width of s in pixels.
type MeasureFunc func(s string) float64

// Text layout proportions, relative to the frame.
const (
	baseFontRatio   = 0.06
	lineHeightRatio = 1.3
	maxWidthRatio   = 0.8
	sideMarginRatio = 0.1
	topAnchorRatio  = 0.2
	bottomAnchor    = 0.8
)

// Line is one wrapped caption line positioned on the frame.
type Line struct {
	Text     string
	X        float64 // left edge of the rendered text
	Top      float64 // top of the line box
	Baseline float64 // glyph baseline inside the line box
	Width    float64
}

// Underline is the single stroke drawn beneath the whole block.
type Underline struct {
	X         float64
	Y         float64
	Width     float64
	Thickness float64
}

// Block is a fully laid out caption.
type Block struct {
	Lines      []Line
	FontSize   float64
	LineHeight float64
	AnchorX    float64
	AnchorY    float64
	MaxWidth   float64
	Underline  *Underline
}

// Empty reports whether there is nothing to draw.
func (b Block) Empty() bool {
	return len(b.Lines) == 0
}

// NormalizeCaption NFC-normalizes text, collapses runs of blanks and drops empty lines.
func NormalizeCaption(text string) string {
	text = norm.NFC.String(text)
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if fields := strings.Fields(line); len(fields) > 0 {
			out = append(out, strings.Join(fields, " "))
		}
	}
	return strings.Join(out, "\n")
}

// Wrap greedily packs words into lines no wider than maxWidth. A word that is
// wider than maxWidth on its own is placed alone on its line, unbroken.
// Explicit newlines always start a new line.
func Wrap(text string, maxWidth float64, measure MeasureFunc) []string {
	var lines []string
	for _, paragraph := range strings.Split(text, "\n") {
		words := strings.Fields(paragraph)
		if len(words) == 0 {
			continue
		}
		current := words[0]
		for _, word := range words[1:] {
			candidate := current + " " + word
			if measure(candidate) <= maxWidth {
				current = candidate
				continue
			}
			lines = append(lines, current)
			current = word
		}
		lines = append(lines, current)
	}
	return lines
}

// FontSize is the caption font size in pixels for a frame width and scale percent.
func FontSize(frameW int, scale int) float64 {
	return float64(frameW) * baseFontRatio * float64(scale) / 100
}

// Anchor returns the base anchor point for the settings, displaced by the
// percentage offsets.
func Anchor(ts reel.TextSettings, frameW, frameH int) (float64, float64) {
	w, h := float64(frameW), float64(frameH)

	var x float64
	switch ts.Alignment {
	case reel.AlignLeft:
		x = w * sideMarginRatio
	case reel.AlignRight:
		x = w * (1 - sideMarginRatio)
	default:
		x = w / 2
	}

	var y float64
	switch ts.Position {
	case reel.PositionTop:
		y = h * topAnchorRatio
	case reel.PositionBottom:
		y = h * bottomAnchor
	default:
		y = h / 2
	}

	x += float64(ts.OffsetX) / 100 * w
	y += float64(ts.OffsetY) / 100 * h
	return x, y
}

// Layout wraps and positions caption for the frame. measure must already be
// bound to a face of FontSize(frameW, ts.FontSizeScale). It draws nothing.
func Layout(caption string, ts reel.TextSettings, frameW, frameH int, measure MeasureFunc) Block {
	ts = ts.Normalize()
	fontSize := FontSize(frameW, ts.FontSizeScale)
	lineHeight := fontSize * lineHeightRatio
	maxWidth := float64(frameW) * maxWidthRatio
	anchorX, anchorY := Anchor(ts, frameW, frameH)

	block := Block{
		FontSize:   fontSize,
		LineHeight: lineHeight,
		AnchorX:    anchorX,
		AnchorY:    anchorY,
		MaxWidth:   maxWidth,
	}

	text := NormalizeCaption(caption)
	if text == "" {
		return block
	}

	wrapped := Wrap(text, maxWidth, measure)
	totalHeight := float64(len(wrapped)) * lineHeight
	top := anchorY - totalHeight/2

	var widest float64
	for i, s := range wrapped {
		width := measure(s)
		widest = math.Max(widest, width)
		lineTop := top + float64(i)*lineHeight
		block.Lines = append(block.Lines, Line{
			Text:     s,
			X:        alignedX(ts.Alignment, anchorX, width),
			Top:      lineTop,
			Baseline: lineTop + lineHeight/2 + fontSize*0.35,
			Width:    width,
		})
	}

	if ts.Underline {
		last := block.Lines[len(block.Lines)-1]
		block.Underline = &Underline{
			X:         alignedX(ts.Alignment, anchorX, widest),
			Y:         last.Top + lineHeight/2 + fontSize*0.5,
			Width:     widest,
			Thickness: math.Max(2, fontSize/15),
		}
	}
	return block
}

func alignedX(a reel.Alignment, anchorX, width float64) float64 {
	switch a {
	case reel.AlignLeft:
		return anchorX
	case reel.AlignRight:
		return anchorX - width
	default:
		return anchorX - width/2
	}
}
