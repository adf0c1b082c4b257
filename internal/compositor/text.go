package compositor

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"

	"github.com/kikiluvv/quotereel/internal/overlays"
	"github.com/kikiluvv/quotereel/internal/reel"
)

var shadowColor = color.NRGBA{A: 153}

// drawText lays out and draws the caption with its optional shadow and underline.
func (c *Compositor) drawText(dst *image.RGBA, caption string, ts reel.TextSettings) error {
	ts = ts.Normalize()
	size := overlays.FontSize(c.size.X, ts.FontSizeScale)
	face, err := c.faces.Face(ts.FontFamily, ts.Bold, ts.Italic, size)
	if err != nil {
		return err
	}

	block := overlays.Layout(caption, ts, c.size.X, c.size.Y, overlays.Measure(face))
	if block.Empty() {
		return nil
	}

	var fill color.Color = color.White
	if c, err := reel.ParseColor(ts.TextColor); err == nil {
		fill = c
	}

	if ts.Shadow {
		off := math.Max(2, block.FontSize*0.05)
		drawBlock(dst, face, block, shadowColor, off)
	}
	drawBlock(dst, face, block, fill, 0)
	return nil
}

func drawBlock(dst *image.RGBA, face font.Face, block overlays.Block, col color.Color, offset float64) {
	src := image.NewUniform(col)
	d := font.Drawer{Dst: dst, Src: src, Face: face}
	for _, line := range block.Lines {
		d.Dot = fixed.Point26_6{
			X: toFixed(line.X + offset),
			Y: toFixed(line.Baseline + offset),
		}
		d.DrawString(line.Text)
	}

	if u := block.Underline; u != nil {
		r := image.Rect(
			int(math.Round(u.X+offset)),
			int(math.Round(u.Y-u.Thickness/2+offset)),
			int(math.Round(u.X+u.Width+offset)),
			int(math.Round(u.Y+u.Thickness/2+offset)),
		)
		draw.Draw(dst, r, src, image.Point{}, draw.Over)
	}
}

// watermarkSprite is the pre-rendered badge for one surface size.
type watermarkSprite struct {
	img *image.RGBA
	at  image.Point
}

func (c *Compositor) drawWatermark(dst *image.RGBA) error {
	if c.watermark == nil {
		sprite, err := c.renderWatermark()
		if err != nil {
			return err
		}
		c.watermark = sprite
	}
	s := c.watermark
	draw.Draw(dst, s.img.Bounds().Add(s.at), s.img, image.Point{}, draw.Over)
	return nil
}

func (c *Compositor) renderWatermark() (*watermarkSprite, error) {
	size := overlays.WatermarkFontSize(c.size.X)
	face, err := c.faces.Face(overlays.DefaultFamily, true, false, size)
	if err != nil {
		return nil, err
	}
	label := c.opts.WatermarkLabel
	pill := overlays.WatermarkLayout(c.size.X, c.size.Y, overlays.Measure(face)(label), size)

	origin := image.Pt(int(math.Floor(pill.X)), int(math.Floor(pill.Y)))
	w := int(math.Ceil(pill.X+pill.W)) - origin.X
	h := int(math.Ceil(pill.Y+pill.H)) - origin.Y
	if w <= 0 || h <= 0 {
		return &watermarkSprite{img: image.NewRGBA(image.Rectangle{})}, nil
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	ox, oy := float64(origin.X), float64(origin.Y)

	// background pill
	z := vector.NewRasterizer(w, h)
	roundedRect(z, float32(pill.X-ox), float32(pill.Y-oy), float32(pill.W), float32(pill.H), float32(pill.Radius))
	z.Draw(img, img.Bounds(), image.NewUniform(color.NRGBA{A: 140}), image.Point{})

	// brand glyph disc
	z.Reset(w, h)
	d := float32(pill.GlyphR * 2)
	roundedRect(z, float32(pill.GlyphCX-pill.GlyphR-ox), float32(pill.GlyphCY-pill.GlyphR-oy), d, d, d/2)
	z.Draw(img, img.Bounds(), image.NewUniform(color.NRGBA{R: 255, G: 255, B: 255, A: 242}), image.Point{})

	mark := "“"
	markW := overlays.Measure(face)(mark)
	dr := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.NRGBA{R: 17, G: 17, B: 17, A: 255}),
		Face: face,
		Dot: fixed.Point26_6{
			X: toFixed(pill.GlyphCX - ox - markW/2),
			Y: toFixed(pill.GlyphCY - oy + size*0.55),
		},
	}
	dr.DrawString(mark)

	dr.Src = image.NewUniform(color.NRGBA{R: 255, G: 255, B: 255, A: 235})
	dr.Dot = fixed.Point26_6{X: toFixed(pill.LabelX - ox), Y: toFixed(pill.LabelBaseline - oy)}
	dr.DrawString(label)

	c.logger.Debug().Str("label", label).Int("width", w).Int("height", h).Msg("watermark rendered")
	return &watermarkSprite{img: img, at: origin}, nil
}

// roundedRect adds a rounded rectangle path with circular corners of radius r.
func roundedRect(z *vector.Rasterizer, x, y, w, h, r float32) {
	r = min(r, w/2, h/2)
	const k = 0.5523 // cubic Bezier circle approximation
	kr := k * r

	z.MoveTo(x+r, y)
	z.LineTo(x+w-r, y)
	z.CubeTo(x+w-r+kr, y, x+w, y+r-kr, x+w, y+r)
	z.LineTo(x+w, y+h-r)
	z.CubeTo(x+w, y+h-r+kr, x+w-r+kr, y+h, x+w-r, y+h)
	z.LineTo(x+r, y+h)
	z.CubeTo(x+r-kr, y+h, x, y+h-r+kr, x, y+h-r)
	z.LineTo(x, y+r)
	z.CubeTo(x, y+r-kr, x+r-kr, y, x+r, y)
	z.ClosePath()
}

func toFixed(v float64) fixed.Int26_6 {
	return fixed.Int26_6(math.Round(v * 64))
}
