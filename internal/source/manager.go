package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/kikiluvv/quotereel/internal/ffmpeg"
	"github.com/kikiluvv/quotereel/internal/reel"
	"github.com/kikiluvv/quotereel/pkg/util"
)

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("source manager closed")

// Prober reads video metadata from a file on disk.
type Prober interface {
	ProbeVideo(ctx context.Context, path string) (*ffmpeg.VideoInfo, error)
}

// Direction moves an image one slot towards the start or the end.
type Direction int

const (
	Up   Direction = -1
	Down Direction = 1
)

// Image is one entry of the ordered image sequence.
type Image struct {
	ID       string
	Name     string
	MIMEType string
	Width    int
	Height   int
	Data     []byte
}

// Video is the single accepted video source.
type Video struct {
	ID       string
	Name     string
	MIMEType string
	Size     int64
	Duration time.Duration
	Width    int
	Height   int
	Handle   *Handle
}

// AddResult reports what AddImages did with a batch.
type AddResult struct {
	Added     int
	Rejected  []string // names of inputs that are not decodable images
	Truncated int      // inputs dropped because the sequence was full
}

type decoded struct {
	img image.Image
	err error
}

// Manager owns the image sequence, the optional video source and the
// lifetime of every temporary handle created for them.
type Manager struct {
	logger  zerolog.Logger
	prober  Prober
	tempDir string

	mu     sync.RWMutex
	images []Image
	video  *Video
	closed bool

	cacheMu sync.Mutex
	cache   map[string]decoded
}

// NewManager creates a new source manager. Video payloads are spilled into
// tempDir (the OS default when empty) and probed with prober.
func NewManager(logger zerolog.Logger, prober Prober, tempDir string) *Manager {
	return &Manager{
		logger:  logger.With().Str("component", "source").Logger(),
		prober:  prober,
		tempDir: tempDir,
		images:  make([]Image, 0),
		cache:   make(map[string]decoded),
	}
}

// AddImages appends every decodable image in arrival order until the
// sequence holds reel.MaxImages entries. Overflow is dropped silently.
func (m *Manager) AddImages(files ...File) (AddResult, error) {
	var res AddResult

	accepted := make([]Image, 0, len(files))
	for _, f := range files {
		img, ok := m.inspectImage(f)
		if !ok {
			res.Rejected = append(res.Rejected, f.Name)
			continue
		}
		accepted = append(accepted, img)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return AddResult{}, ErrClosed
	}

	room := reel.MaxImages - len(m.images)
	if room < 0 {
		room = 0
	}
	if len(accepted) > room {
		res.Truncated = len(accepted) - room
		accepted = accepted[:room]
	}
	m.images = append(m.images, accepted...)
	res.Added = len(accepted)

	m.logger.Debug().
		Int("added", res.Added).
		Int("rejected", len(res.Rejected)).
		Int("truncated", res.Truncated).
		Int("total", len(m.images)).
		Msg("images added")
	return res, nil
}

func (m *Manager) inspectImage(f File) (Image, bool) {
	if t := DetectType(f); t != "" && !strings.HasPrefix(t, "image/") {
		return Image{}, false
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(f.Data))
	if err != nil || cfg.Width == 0 || cfg.Height == 0 {
		return Image{}, false
	}
	return Image{
		ID:       uuid.NewString(),
		Name:     f.Name,
		MIMEType: "image/" + format,
		Width:    cfg.Width,
		Height:   cfg.Height,
		Data:     f.Data,
	}, true
}

// RemoveImage deletes the image at index.
func (m *Manager) RemoveImage(index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if index < 0 || index >= len(m.images) {
		return reel.ErrIndexOutOfRange
	}

	id := m.images[index].ID
	m.images = append(m.images[:index:index], m.images[index+1:]...)
	m.forget(id)
	return nil
}

// MoveImage swaps the image at index with its neighbor in dir. Moving past
// either end of the sequence is a no-op.
func (m *Manager) MoveImage(index int, dir Direction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if index < 0 || index >= len(m.images) {
		return reel.ErrIndexOutOfRange
	}
	if dir != Up && dir != Down {
		return fmt.Errorf("invalid move direction %d", dir)
	}

	target := index + int(dir)
	if target < 0 || target >= len(m.images) {
		return nil
	}
	m.images[index], m.images[target] = m.images[target], m.images[index]
	return nil
}

// Images returns a snapshot of the sequence.
func (m *Manager) Images() []Image {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Image, len(m.images))
	copy(out, m.images)
	return out
}

// ImageCount returns the sequence length.
func (m *Manager) ImageCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.images)
}

// SetVideo validates, spills and probes a candidate video. On any failure the
// candidate is released and the current video stays selected. On success the
// previous handle is released before the new source is stored. A previous
// video pinned by a running job is kept and reel.ErrBusy returned.
func (m *Manager) SetVideo(ctx context.Context, f File) (Video, error) {
	if m.isClosed() {
		return Video{}, ErrClosed
	}

	mimeType := DetectType(f)
	if !IsAllowedVideo(mimeType) {
		return Video{}, reel.ErrVideoType
	}
	if f.Len() > reel.MaxVideoSize {
		return Video{}, reel.ErrVideoTooLarge
	}
	if len(f.Data) == 0 {
		return Video{}, reel.ErrVideoType
	}
	if m.prober == nil {
		return Video{}, fmt.Errorf("no video prober configured")
	}

	ext := util.GetExtension(f.Name)
	if ext == "" {
		ext = "." + strings.TrimPrefix(mimeType, "video/")
	}
	h, err := newHandle(m.tempDir, ext, f.Data)
	if err != nil {
		return Video{}, err
	}
	path, _ := h.Path()

	info, err := m.prober.ProbeVideo(ctx, path)
	if err != nil {
		_ = h.Release()
		if ctx.Err() != nil {
			return Video{}, ctx.Err()
		}
		m.logger.Debug().Err(err).Str("name", f.Name).Msg("video probe failed")
		return Video{}, reel.ErrVideoUnreadable
	}
	if info.Duration > reel.MaxVideoDuration {
		_ = h.Release()
		m.logger.Debug().Dur("duration", info.Duration).Str("name", f.Name).Msg("video too long")
		return Video{}, reel.ErrVideoTooLong
	}

	v := &Video{
		ID:       uuid.NewString(),
		Name:     f.Name,
		MIMEType: mimeType,
		Size:     f.Len(),
		Duration: info.Duration,
		Width:    info.Width,
		Height:   info.Height,
		Handle:   h,
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = h.Release()
		return Video{}, ErrClosed
	}
	if old := m.video; old != nil {
		if err := m.retireVideo(old); err != nil {
			m.mu.Unlock()
			_ = h.Release()
			return Video{}, err
		}
	}
	m.video = v
	m.mu.Unlock()

	m.logger.Info().
		Str("name", v.Name).
		Dur("duration", v.Duration).
		Int64("bytes", v.Size).
		Msg("video selected")
	return *v, nil
}

// ClearVideo releases the current video, if any. It returns reel.ErrBusy
// while a running job holds the video.
func (m *Manager) ClearVideo() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.video == nil {
		return nil
	}
	if err := m.retireVideo(m.video); err != nil {
		return err
	}
	m.video = nil
	return nil
}

// Video returns the current video source.
func (m *Manager) Video() (Video, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.video == nil {
		return Video{}, false
	}
	return *m.video, true
}

// Decode returns the decoded pixels of img. Results, failures included, are
// cached by image ID.
func (m *Manager) Decode(img Image) (image.Image, error) {
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()
	if d, ok := m.cache[img.ID]; ok {
		return d.img, d.err
	}

	decodedImg, _, err := image.Decode(bytes.NewReader(img.Data))
	if err != nil {
		err = fmt.Errorf("decode image %s: %w", img.Name, err)
		m.logger.Debug().Err(err).Str("id", img.ID).Msg("image decode failed")
	}
	m.cache[img.ID] = decoded{img: decodedImg, err: err}
	return decodedImg, err
}

// Close releases every handle and drops all sources. It is safe to call more
// than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true

	var err error
	if m.video != nil {
		err = m.video.Handle.Release()
		m.video = nil
	}
	m.images = nil

	m.cacheMu.Lock()
	m.cache = make(map[string]decoded)
	m.cacheMu.Unlock()

	m.logger.Debug().Msg("source manager closed")
	return err
}

func (m *Manager) isClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// retireVideo releases v unless a running job has it pinned. Must be called
// with m.mu held so the check and the swap happen together.
func (m *Manager) retireVideo(v *Video) error {
	err := v.Handle.Retire()
	if errors.Is(err, ErrInUse) {
		m.logger.Debug().Str("name", v.Name).Msg("video in use, keeping it")
		return reel.ErrBusy
	}
	if err != nil {
		m.logger.Warn().Err(err).Str("name", v.Name).Msg("failed to release video handle")
	}
	return nil
}

func (m *Manager) forget(id string) {
	m.cacheMu.Lock()
	delete(m.cache, id)
	m.cacheMu.Unlock()
}
