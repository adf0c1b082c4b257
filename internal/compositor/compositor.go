package compositor

import (
	"image"
	"image/color"
	"math"

	"github.com/rs/zerolog"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/kikiluvv/quotereel/internal/overlays"
	"github.com/kikiluvv/quotereel/internal/reel"
)

// Layer is one background source for a frame.
type Layer struct {
	// Image is nil when the source failed to decode; the background is then
	// omitted for this frame only.
	Image image.Image
	// Key enables caching of the cover-fitted result. Leave empty for video
	// frames, which change every tick.
	Key string
}

// Frame describes everything drawn for one output frame.
type Frame struct {
	Current    Layer
	Next       Layer
	Transition reel.Transition
	InWindow   bool
	Progress   float64 // position inside the transition window, [0,1)
	Caption    string
	Text       reel.TextSettings
}

// Options configures a Compositor.
type Options struct {
	Watermark      bool
	WatermarkLabel string
	// Scaler resamples backgrounds. Defaults to draw.ApproxBiLinear.
	Scaler draw.Interpolator
}

// Compositor renders frames onto an RGBA drawing surface. It is not safe for
// concurrent use; give every render loop its own instance.
type Compositor struct {
	logger zerolog.Logger
	faces  *overlays.Faces
	opts   Options

	size      image.Point
	covers    map[string]*image.RGBA
	scratch   [2]*image.RGBA
	gradient  *image.Alpha
	watermark *watermarkSprite
}

// New creates a compositor drawing text with fonts from reg.
func New(logger zerolog.Logger, reg *overlays.Registry, opts Options) *Compositor {
	if opts.Scaler == nil {
		opts.Scaler = draw.ApproxBiLinear
	}
	if opts.WatermarkLabel == "" {
		opts.WatermarkLabel = overlays.DefaultWatermarkLabel
	}
	return &Compositor{
		logger: logger.With().Str("component", "compositor").Logger(),
		faces:  overlays.NewFaces(reg),
		opts:   opts,
		covers: make(map[string]*image.RGBA),
	}
}

// Reset drops every cached cover-fit, gradient and watermark.
func (c *Compositor) Reset() {
	c.covers = make(map[string]*image.RGBA)
	c.scratch = [2]*image.RGBA{}
	c.gradient = nil
	c.watermark = nil
	c.size = image.Point{}
}

// Close releases font faces.
func (c *Compositor) Close() error {
	c.Reset()
	return c.faces.Close()
}

// Render draws f onto dst, replacing its previous content.
func (c *Compositor) Render(dst *image.RGBA, f Frame) error {
	b := dst.Bounds()
	if size := b.Size(); size != c.size {
		c.Reset()
		c.size = size
		c.logger.Debug().Int("width", size.X).Int("height", size.Y).Msg("surface resized")
	}

	draw.Draw(dst, b, image.Black, image.Point{}, draw.Src)

	c.drawBackground(dst, f)

	caption := overlays.NormalizeCaption(f.Caption)
	if f.Text.ShowText && caption != "" {
		c.drawGradient(dst)
		if err := c.drawText(dst, caption, f.Text); err != nil {
			return err
		}
	}

	if c.opts.Watermark {
		if err := c.drawWatermark(dst); err != nil {
			return err
		}
	}
	return nil
}

func (c *Compositor) drawBackground(dst *image.RGBA, f Frame) {
	cur := c.cover(0, f.Current)
	if !f.InWindow || !f.Transition.Blends() {
		drawAlpha(dst, cur, image.Point{}, 1)
		return
	}

	p := clamp01(f.Progress)
	w := dst.Bounds().Dx()

	switch f.Transition {
	case reel.TransitionFade:
		drawAlpha(dst, cur, image.Point{}, 1-p)
		drawAlpha(dst, c.cover(1, f.Next), image.Point{}, p)
	case reel.TransitionZoom:
		c.drawZoomed(dst, cur, 1+0.1*p, 1-p)
	case reel.TransitionSlide:
		shift := int(math.Round(p * float64(w)))
		drawAlpha(dst, cur, image.Pt(-shift, 0), 1)
		drawAlpha(dst, c.cover(1, f.Next), image.Pt(w-shift, 0), 1)
	}
}

// cover returns the layer scaled and center-cropped to the surface, or nil.
func (c *Compositor) cover(slot int, l Layer) *image.RGBA {
	if l.Image == nil {
		return nil
	}
	if l.Key != "" {
		if img, ok := c.covers[l.Key]; ok {
			return img
		}
	}

	var out *image.RGBA
	if l.Key != "" {
		out = image.NewRGBA(image.Rectangle{Max: c.size})
	} else {
		if c.scratch[slot] == nil {
			c.scratch[slot] = image.NewRGBA(image.Rectangle{Max: c.size})
		}
		out = c.scratch[slot]
	}

	sr := CoverRect(l.Image.Bounds(), c.size.X, c.size.Y)
	c.opts.Scaler.Scale(out, out.Bounds(), l.Image, sr, draw.Src, nil)

	if l.Key != "" {
		c.covers[l.Key] = out
	}
	return out
}

func (c *Compositor) drawZoomed(dst *image.RGBA, src *image.RGBA, scale, alpha float64) {
	if src == nil || alpha <= 0 {
		return
	}
	cx := float64(c.size.X) / 2
	cy := float64(c.size.Y) / 2
	m := f64.Aff3{
		scale, 0, (1 - scale) * cx,
		0, scale, (1 - scale) * cy,
	}
	c.opts.Scaler.Transform(dst, m, src, src.Bounds(), draw.Over, &draw.Options{
		DstMask: image.NewUniform(alphaColor(alpha)),
	})
}

// drawGradient darkens the top and bottom of the frame for legibility.
func (c *Compositor) drawGradient(dst *image.RGBA) {
	if c.gradient == nil {
		c.gradient = gradientMask(c.size.X, c.size.Y)
	}
	draw.DrawMask(dst, dst.Bounds(), image.Black, image.Point{}, c.gradient, image.Point{}, draw.Over)
}

// CoverRect returns the centered source sub-rectangle with the frame's aspect
// ratio, so scaling it to w x h fills the frame without letterboxing.
func CoverRect(src image.Rectangle, w, h int) image.Rectangle {
	sw, sh := src.Dx(), src.Dy()
	if sw == 0 || sh == 0 || w == 0 || h == 0 {
		return src
	}

	srcAspect := float64(sw) / float64(sh)
	dstAspect := float64(w) / float64(h)

	if srcAspect > dstAspect {
		cropW := int(math.Round(float64(sh) * dstAspect))
		x0 := src.Min.X + (sw-cropW)/2
		return image.Rect(x0, src.Min.Y, x0+cropW, src.Max.Y)
	}
	cropH := int(math.Round(float64(sw) / dstAspect))
	y0 := src.Min.Y + (sh-cropH)/2
	return image.Rect(src.Min.X, y0, src.Max.X, y0+cropH)
}

// drawAlpha composites src over dst at offset with a uniform opacity.
func drawAlpha(dst *image.RGBA, src *image.RGBA, offset image.Point, alpha float64) {
	if src == nil || alpha <= 0 {
		return
	}
	r := src.Bounds().Add(offset)
	if alpha >= 1 {
		draw.Draw(dst, r, src, src.Bounds().Min, draw.Over)
		return
	}
	draw.DrawMask(dst, r, src, src.Bounds().Min, image.NewUniform(alphaColor(alpha)), image.Point{}, draw.Over)
}

func gradientMask(w, h int) *image.Alpha {
	const edge, middle = 0.55, 0.15
	mask := image.NewAlpha(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		t := 0.0
		if h > 1 {
			t = float64(y) / float64(h-1)
		}
		a := middle + (edge-middle)*math.Abs(2*t-1)
		v := uint8(math.Round(a * 255))
		row := mask.Pix[y*mask.Stride : y*mask.Stride+w]
		for x := range row {
			row[x] = v
		}
	}
	return mask
}

func alphaColor(a float64) color.Alpha {
	return color.Alpha{A: uint8(math.Round(clamp01(a) * 255))}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
