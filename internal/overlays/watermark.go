package overlays

// DefaultWatermarkLabel is drawn next to the brand glyph.
const DefaultWatermarkLabel = "QuoteReel"

// Pill is the geometry of the bottom-right watermark badge.
type Pill struct {
	X, Y, W, H float64
	Radius     float64

	GlyphCX, GlyphCY, GlyphR float64

	LabelX        float64
	LabelBaseline float64
	FontSize      float64
}

// WatermarkFontSize is the label font size for a frame width.
func WatermarkFontSize(frameW int) float64 {
	return float64(frameW) * 0.024
}

// WatermarkLayout sizes the pill around the measured label so it never clips,
// and pins it to the bottom-right corner.
func WatermarkLayout(frameW, frameH int, labelWidth, fontSize float64) Pill {
	pad := fontSize * 0.8
	glyphD := fontSize * 1.1
	gap := fontSize * 0.5
	height := fontSize * 2.2
	width := pad + glyphD + gap + labelWidth + pad
	margin := float64(frameW) * 0.04

	x := float64(frameW) - margin - width
	y := float64(frameH) - margin - height

	return Pill{
		X:             x,
		Y:             y,
		W:             width,
		H:             height,
		Radius:        height / 2,
		GlyphCX:       x + pad + glyphD/2,
		GlyphCY:       y + height/2,
		GlyphR:        glyphD / 2,
		LabelX:        x + pad + glyphD + gap,
		LabelBaseline: y + height/2 + fontSize*0.35,
		FontSize:      fontSize,
	}
}
