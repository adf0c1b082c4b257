package overlays

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gobolditalic"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomedium"
	"golang.org/x/image/font/gofont/gomediumitalic"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/gomonobold"
	"golang.org/x/image/font/gofont/gomonobolditalic"
	"golang.org/x/image/font/gofont/gomonoitalic"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/gofont/gosmallcaps"
	"golang.org/x/image/font/gofont/gosmallcapsitalic"
	"golang.org/x/image/font/opentype"
)

// DefaultFamily is used when a caption asks for a family nobody registered.
const DefaultFamily = "Go"

// Family holds the faces of one font family. Missing styles fall back to Regular.
type Family struct {
	Name       string
	Regular    *opentype.Font
	Bold       *opentype.Font
	Italic     *opentype.Font
	BoldItalic *opentype.Font
}

// Style picks the closest available style.
func (f *Family) Style(bold, italic bool) *opentype.Font {
	switch {
	case bold && italic && f.BoldItalic != nil:
		return f.BoldItalic
	case bold && italic && f.Bold != nil:
		return f.Bold
	case bold && f.Bold != nil:
		return f.Bold
	case italic && f.Italic != nil:
		return f.Italic
	}
	return f.Regular
}

// Registry manages the font families captions and watermarks can use.
// Parsed fonts are immutable and safe to share between goroutines.
type Registry struct {
	mu       sync.RWMutex
	families map[string]*Family
}

// NewRegistry creates a registry preloaded with the built-in Go fonts
func NewRegistry() *Registry {
	r := &Registry{families: make(map[string]*Family)}
	r.Register(mustFamily("Go", goregular.TTF, gobold.TTF, goitalic.TTF, gobolditalic.TTF))
	r.Register(mustFamily("Go Medium", gomedium.TTF, gobold.TTF, gomediumitalic.TTF, gobolditalic.TTF))
	r.Register(mustFamily("Go Mono", gomono.TTF, gomonobold.TTF, gomonoitalic.TTF, gomonobolditalic.TTF))
	r.Register(mustFamily("Go Smallcaps", gosmallcaps.TTF, nil, gosmallcapsitalic.TTF, nil))
	return r
}

// Register adds or replaces a family
func (r *Registry) Register(f *Family) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.families[familyKey(f.Name)] = f
}

// RegisterFile loads a TTF/OTF file as a single-style family.
func (r *Registry) RegisterFile(name, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read font %s: %w", path, err)
	}
	fnt, err := opentype.Parse(data)
	if err != nil {
		return fmt.Errorf("parse font %s: %w", path, err)
	}
	r.Register(&Family{Name: name, Regular: fnt})
	return nil
}

// Get retrieves a family by name, case-insensitively
func (r *Registry) Get(name string) (*Family, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.families[familyKey(name)]
	return f, ok
}

// Resolve returns the named family or the default one.
func (r *Registry) Resolve(name string) *Family {
	if f, ok := r.Get(name); ok {
		return f
	}
	f, _ := r.Get(DefaultFamily)
	return f
}

// List returns all registered family names, sorted
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.families))
	for _, f := range r.families {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return names
}

type faceKey struct {
	family string
	bold   bool
	italic bool
	size   float64
}

// Faces caches sized font faces built from a Registry. A font.Face is not safe
// for concurrent use, so every renderer owns its own Faces.
type Faces struct {
	reg   *Registry
	cache map[faceKey]font.Face
}

// NewFaces creates an empty face cache over reg.
func NewFaces(reg *Registry) *Faces {
	return &Faces{reg: reg, cache: make(map[faceKey]font.Face)}
}

// Face returns a face for the family/style at size pixels.
func (c *Faces) Face(family string, bold, italic bool, size float64) (font.Face, error) {
	fam := c.reg.Resolve(family)
	if fam == nil {
		return nil, fmt.Errorf("no font family available for %q", family)
	}

	// quarter-pixel buckets keep the cache small while sizes animate
	size = float64(int(size*4+0.5)) / 4
	key := faceKey{family: familyKey(fam.Name), bold: bold, italic: italic, size: size}
	if face, ok := c.cache[key]; ok {
		return face, nil
	}

	face, err := opentype.NewFace(fam.Style(bold, italic), &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	})
	if err != nil {
		return nil, fmt.Errorf("create font face: %w", err)
	}
	c.cache[key] = face
	return face, nil
}

// Close releases every cached face.
func (c *Faces) Close() error {
	var firstErr error
	for k, face := range c.cache {
		if err := face.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(c.cache, k)
	}
	return firstErr
}

// Measure returns a MeasureFunc bound to face.
func Measure(face font.Face) MeasureFunc {
	return func(s string) float64 {
		return float64(font.MeasureString(face, s)) / 64
	}
}

func mustFamily(name string, regular, bold, italic, boldItalic []byte) *Family {
	f := &Family{Name: name}
	f.Regular = mustParse(regular)
	f.Bold = mustParse(bold)
	f.Italic = mustParse(italic)
	f.BoldItalic = mustParse(boldItalic)
	return f
}

func mustParse(data []byte) *opentype.Font {
	if data == nil {
		return nil
	}
	fnt, err := opentype.Parse(data)
	if err != nil {
		panic(fmt.Sprintf("parse embedded font: %v", err))
	}
	return fnt
}

func familyKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
