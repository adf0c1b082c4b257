package pipeline

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kikiluvv/quotereel/internal/compositor"
	"github.com/kikiluvv/quotereel/internal/reel"
	"github.com/kikiluvv/quotereel/internal/source"
	"github.com/kikiluvv/quotereel/internal/timeline"
)

// PosterFunc grabs a single video frame at ts, cover-fitted to w x h.
type PosterFunc func(ctx context.Context, input string, ts time.Duration, w, h int) (image.Image, error)

// SessionConfig configures a Session.
type SessionConfig struct {
	Job     Config
	Prober  source.Prober
	Poster  PosterFunc
	TempDir string
	Reel    reel.ReelSettings
	Text    reel.TextSettings
}

// Session is one editing session: the sources, the current settings and the
// generation job that renders them.
type Session struct {
	logger  zerolog.Logger
	sources *source.Manager
	job     *Job
	poster  PosterFunc

	mu      sync.Mutex
	reel    reel.ReelSettings
	text    reel.TextSettings
	caption string

	previewMu sync.Mutex
	preview   *compositor.Compositor
}

// NewSession creates a session with empty sources.
func NewSession(logger zerolog.Logger, cfg SessionConfig) (*Session, error) {
	sources := source.NewManager(logger, cfg.Prober, cfg.TempDir)
	if cfg.Job.Images == nil {
		cfg.Job.Images = sources
	}
	job, err := NewJob(logger, cfg.Job)
	if err != nil {
		sources.Close()
		return nil, err
	}

	rs := cfg.Reel
	if rs == (reel.ReelSettings{}) {
		rs = reel.DefaultReelSettings()
	}
	if err := rs.Validate(); err != nil {
		sources.Close()
		return nil, err
	}
	ts := cfg.Text
	if ts == (reel.TextSettings{}) {
		ts = reel.DefaultTextSettings()
	}
	ts = ts.Normalize()
	if err := ts.Validate(); err != nil {
		sources.Close()
		return nil, err
	}

	return &Session{
		logger:  logger.With().Str("component", "session").Logger(),
		sources: sources,
		job:     job,
		poster:  cfg.Poster,
		reel:    rs,
		text:    ts,
		preview: compositor.New(logger, job.cfg.Fonts, job.cfg.Compositor),
	}, nil
}

// AddImages appends images to the sequence.
func (s *Session) AddImages(files ...source.File) (source.AddResult, error) {
	return s.sources.AddImages(files...)
}

// RemoveImage deletes the image at index.
func (s *Session) RemoveImage(index int) error {
	return s.sources.RemoveImage(index)
}

// MoveImage swaps the image at index with its neighbour in dir.
func (s *Session) MoveImage(index int, dir source.Direction) error {
	return s.sources.MoveImage(index, dir)
}

// Images returns the current sequence.
func (s *Session) Images() []source.Image {
	return s.sources.Images()
}

// ImageCount returns the number of images in the sequence.
func (s *Session) ImageCount() int {
	return s.sources.ImageCount()
}

// SetVideo replaces the video source. It is refused while a job runs, since
// the running job may be reading the current video. A job that starts while
// the candidate is being probed pins the current video, and the swap is then
// refused as well.
func (s *Session) SetVideo(ctx context.Context, f source.File) (source.Video, error) {
	if s.job.Status().State == StateRunning {
		return source.Video{}, reel.ErrBusy
	}
	return s.sources.SetVideo(ctx, f)
}

// ClearVideo drops the video source.
func (s *Session) ClearVideo() error {
	if s.job.Status().State == StateRunning {
		return reel.ErrBusy
	}
	return s.sources.ClearVideo()
}

// Video returns the current video source.
func (s *Session) Video() (source.Video, bool) {
	return s.sources.Video()
}

// ReelSettings returns the image-mode settings.
func (s *Session) ReelSettings() reel.ReelSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reel
}

// UpdateReelSettings replaces the image-mode settings after validating them.
func (s *Session) UpdateReelSettings(rs reel.ReelSettings) error {
	if err := rs.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reel = rs
	return nil
}

// TextSettings returns the caption style.
func (s *Session) TextSettings() reel.TextSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text
}

// UpdateTextSettings replaces the caption style. Numeric fields are clamped.
func (s *Session) UpdateTextSettings(ts reel.TextSettings) error {
	ts = ts.Normalize()
	if err := ts.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.text = ts
	return nil
}

// Caption returns the caption text.
func (s *Session) Caption() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.caption
}

// SetCaption replaces the caption text.
func (s *Session) SetCaption(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.caption = text
}

// Request snapshots the session for mode.
func (s *Session) Request(mode reel.Mode) Request {
	s.mu.Lock()
	req := Request{
		Mode:    mode,
		Reel:    s.reel,
		Caption: s.caption,
		Text:    s.text,
	}
	s.mu.Unlock()

	switch mode {
	case reel.ModeImages:
		req.Images = s.sources.Images()
	case reel.ModeVideo:
		if v, ok := s.sources.Video(); ok {
			req.Video = &v
		}
	}
	return req
}

// StartGeneration starts rendering the current sources in mode.
func (s *Session) StartGeneration(ctx context.Context, mode reel.Mode) (string, error) {
	return s.job.Start(ctx, s.Request(mode))
}

// CancelGeneration cancels a running job and waits for it to unwind.
func (s *Session) CancelGeneration() {
	s.job.Cancel()
}

// Status returns the current job status.
func (s *Session) Status() Status {
	return s.job.Status()
}

// Subscribe observes job status changes.
func (s *Session) Subscribe() (<-chan Status, func()) {
	return s.job.Subscribe()
}

// Wait blocks until the current job ends.
func (s *Session) Wait(ctx context.Context) (Status, error) {
	return s.job.Wait(ctx)
}

// Reset acknowledges a finished or failed job.
func (s *Session) Reset() {
	s.job.Reset()
}

// RenderPreview draws the image sequence as it looks at time at into dst,
// using the same schedule and compositor as generation. Times past the end
// wrap around.
func (s *Session) RenderPreview(dst *image.RGBA, at time.Duration) error {
	req := s.Request(reel.ModeImages)
	f := compositor.Frame{
		Transition: req.Reel.Transition,
		Caption:    req.Caption,
		Text:       req.Text,
	}
	if len(req.Images) > 0 {
		plan, err := timeline.NewPlan(len(req.Images), req.Reel.DurationPerImage)
		if err != nil {
			return err
		}
		step := plan.AtTime(at)
		f.Current = s.previewLayer(req.Images[step.Index])
		f.InWindow = step.InWindow
		f.Progress = step.Progress
		if step.InWindow && req.Reel.Transition.Blends() {
			f.Next = s.previewLayer(req.Images[step.Next])
		}
	}

	s.previewMu.Lock()
	defer s.previewMu.Unlock()
	return s.preview.Render(dst, f)
}

// RenderVideoPreview draws the video frame at time at with the caption.
func (s *Session) RenderVideoPreview(ctx context.Context, dst *image.RGBA, at time.Duration) error {
	req := s.Request(reel.ModeVideo)
	if req.Video == nil {
		return reel.ErrNoVideo
	}
	if s.poster == nil {
		return fmt.Errorf("video preview is not available")
	}
	path, err := req.Video.Handle.Path()
	if err != nil {
		return reel.ErrNoVideo
	}
	if req.Video.Duration > 0 {
		at %= req.Video.Duration
	}

	b := dst.Bounds()
	frame, err := s.poster(ctx, path, at, b.Dx(), b.Dy())
	if err != nil {
		return fmt.Errorf("video preview: %w", err)
	}

	s.previewMu.Lock()
	defer s.previewMu.Unlock()
	return s.preview.Render(dst, compositor.Frame{
		Current: compositor.Layer{Image: frame},
		Caption: req.Caption,
		Text:    req.Text,
	})
}

func (s *Session) previewLayer(img source.Image) compositor.Layer {
	l := compositor.Layer{Key: img.ID}
	if decoded, err := s.sources.Decode(img); err == nil {
		l.Image = decoded
	}
	return l
}

// Close cancels any running job, then releases every source handle.
func (s *Session) Close() error {
	jobErr := s.job.Close()
	srcErr := s.sources.Close()

	s.previewMu.Lock()
	s.preview.Close()
	s.previewMu.Unlock()

	s.logger.Debug().Msg("session closed")
	if jobErr != nil {
		return jobErr
	}
	return srcErr
}
