package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kikiluvv/quotereel/internal/compositor"
	"github.com/kikiluvv/quotereel/internal/encoder"
	"github.com/kikiluvv/quotereel/internal/ffmpeg"
	"github.com/kikiluvv/quotereel/internal/overlays"
	"github.com/kikiluvv/quotereel/internal/reel"
	"github.com/kikiluvv/quotereel/internal/source"
	"github.com/kikiluvv/quotereel/internal/timeline"
)

// ErrClosed is returned by Start after Close.
var ErrClosed = errors.New("generation job closed")

// ImageDecoder turns a sequence entry into pixels.
type ImageDecoder interface {
	Decode(img source.Image) (image.Image, error)
}

// FrameSource yields decoded video frames at the output size.
type FrameSource interface {
	NextInto(dst *image.RGBA) error
	Close() error
}

// VideoDecoder opens a frame source for a video file.
type VideoDecoder func(ctx context.Context, opts ffmpeg.DecodeOptions) (FrameSource, error)

// FFmpegVideoDecoder adapts an executor to VideoDecoder.
func FFmpegVideoDecoder(exec *ffmpeg.Executor) VideoDecoder {
	return func(ctx context.Context, opts ffmpeg.DecodeOptions) (FrameSource, error) {
		r, err := exec.OpenFrames(ctx, opts)
		if err != nil {
			return nil, err
		}
		return r, nil
	}
}

// Config wires a Job to its collaborators.
type Config struct {
	Sinks  encoder.Factory
	Saver  encoder.Saver
	Images ImageDecoder
	Videos VideoDecoder
	Fonts  *overlays.Registry

	Compositor compositor.Options
	Clock      timeline.Clock
	// StallTimeout fails a job that makes no progress for this long. Zero
	// disables the watchdog.
	StallTimeout time.Duration
	// LockPath, when set, is held with an exclusive file lock while a job
	// runs so two processes never generate at once.
	LockPath string
	Now      func() time.Time
}

// Job is the single-flight generation state machine.
type Job struct {
	logger zerolog.Logger
	cfg    Config

	mu     sync.Mutex
	status Status
	cancel context.CancelCauseFunc
	done   chan struct{}
	subs   map[int]chan Status
	nextID int
	closed bool
	lock   *flock.Flock
}

// NewJob creates an idle job.
func NewJob(logger zerolog.Logger, cfg Config) (*Job, error) {
	if cfg.Sinks == nil {
		return nil, fmt.Errorf("no encoder configured")
	}
	if cfg.Saver == nil {
		return nil, fmt.Errorf("no artifact saver configured")
	}
	if cfg.Fonts == nil {
		cfg.Fonts = overlays.NewRegistry()
	}
	if cfg.Clock == nil {
		cfg.Clock = timeline.RealClock{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	j := &Job{
		logger: logger.With().Str("component", "pipeline").Logger(),
		cfg:    cfg,
		status: Status{State: StateIdle},
		subs:   make(map[int]chan Status),
	}
	if cfg.LockPath != "" {
		j.lock = flock.New(cfg.LockPath)
	}
	return j, nil
}

// Status returns the current snapshot.
func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// Subscribe returns a channel that always holds the latest snapshot. Slow
// readers skip intermediate states. Call the returned func to unsubscribe.
func (j *Job) Subscribe() (<-chan Status, func()) {
	j.mu.Lock()
	defer j.mu.Unlock()

	id := j.nextID
	j.nextID++
	ch := make(chan Status, 1)
	ch <- j.status
	j.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			j.mu.Lock()
			defer j.mu.Unlock()
			if c, ok := j.subs[id]; ok {
				delete(j.subs, id)
				close(c)
			}
		})
	}
}

// Start validates req and launches a generation. It returns the job ID.
// Validation errors are returned immediately and leave the job in Error;
// ErrBusy leaves the running job untouched.
func (j *Job) Start(ctx context.Context, req Request) (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return "", ErrClosed
	}
	if j.status.State == StateRunning {
		return "", reel.ErrBusy
	}
	if err := req.Validate(); err != nil {
		j.applyLocked(Event{Kind: EventFailed, Mode: req.Mode, Quality: req.Reel.Quality, Err: err, At: j.cfg.Now()})
		return "", err
	}
	preset, err := reel.PresetFor(req.Reel.Quality)
	if err != nil {
		return "", err
	}

	total, err := totalFrames(req)
	if err != nil {
		return "", err
	}

	// The video stays on disk for the whole run, even if the source is
	// replaced or cleared meanwhile.
	var videoPath string
	if req.Mode == reel.ModeVideo {
		videoPath, err = req.Video.Handle.Pin()
		if err != nil {
			j.applyLocked(Event{Kind: EventFailed, Mode: req.Mode, Quality: req.Reel.Quality, Err: reel.ErrNoVideo, At: j.cfg.Now()})
			return "", reel.ErrNoVideo
		}
	}
	unpin := func() {
		if videoPath != "" {
			req.Video.Handle.Unpin()
		}
	}

	if j.lock != nil {
		ok, err := j.lock.TryLock()
		if err != nil {
			unpin()
			return "", fmt.Errorf("acquire generation lock: %w", err)
		}
		if !ok {
			unpin()
			return "", reel.ErrBusy
		}
	}

	id := uuid.NewString()
	runCtx, cancel := context.WithCancelCause(ctx)
	j.cancel = cancel
	j.done = make(chan struct{})
	j.applyLocked(Event{
		Kind:    EventStarted,
		JobID:   id,
		Mode:    req.Mode,
		Quality: preset.Tier,
		Total:   total,
		At:      j.cfg.Now(),
	})

	j.logger.Info().
		Str("job", id).
		Str("mode", string(req.Mode)).
		Str("quality", string(preset.Tier)).
		Int("frames", total).
		Msg("generation started")

	done := j.done
	go func() {
		logger := j.logger.With().Str("job", id).Logger()
		final := j.run(runCtx, cancel, logger, id, req, videoPath, preset, total)
		cancel(nil)
		unpin()
		j.unlock(logger)
		j.apply(final)
		close(done)
	}()
	return id, nil
}

// Cancel stops a running job at its next yield point, discards everything the
// encoder buffered and returns the job to Idle. It blocks until the run has
// unwound. Canceling an idle job is a no-op.
func (j *Job) Cancel() {
	j.mu.Lock()
	if j.status.State != StateRunning || j.cancel == nil {
		j.mu.Unlock()
		return
	}
	cancel, done := j.cancel, j.done
	j.mu.Unlock()

	cancel(reel.ErrCanceled)
	<-done
}

// Wait blocks until the current run ends or ctx is done, and returns the
// resulting status.
func (j *Job) Wait(ctx context.Context) (Status, error) {
	j.mu.Lock()
	done := j.done
	j.mu.Unlock()
	if done == nil {
		return j.Status(), nil
	}
	select {
	case <-done:
		return j.Status(), nil
	case <-ctx.Done():
		return j.Status(), ctx.Err()
	}
}

// Reset acknowledges a Complete or Error status and returns to Idle.
func (j *Job) Reset() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.applyLocked(Event{Kind: EventReset})
}

// Close cancels any running job, waits for it and closes all subscriptions.
func (j *Job) Close() error {
	j.Cancel()

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	for id, ch := range j.subs {
		delete(j.subs, id)
		close(ch)
	}
	return nil
}

func (j *Job) applyLocked(e Event) {
	next := j.status.Apply(e)
	j.status = next
	for _, ch := range j.subs {
		select {
		case <-ch:
		default:
		}
		ch <- next
	}
}

func (j *Job) apply(e Event) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.applyLocked(e)
}

func (j *Job) run(ctx context.Context, cancel context.CancelCauseFunc, logger zerolog.Logger, id string, req Request, videoPath string, preset reel.QualityPreset, total int) Event {
	wd := timeline.NewWatchdog(j.cfg.StallTimeout, cancel)
	defer wd.Stop()

	fail := func(err error) Event {
		if ctx.Err() != nil {
			if cause := context.Cause(ctx); cause != nil {
				err = cause
			}
		}
		// Canceling the caller's context counts as a user cancel.
		if errors.Is(err, reel.ErrCanceled) || errors.Is(err, context.Canceled) {
			logger.Info().Msg("generation canceled")
			return Event{Kind: EventCanceled, JobID: id}
		}
		logger.Error().Err(err).Msg("generation failed")
		return Event{Kind: EventFailed, JobID: id, Err: err, At: j.cfg.Now()}
	}

	sink := j.cfg.Sinks()
	if err := sink.Start(ctx, encoder.Request{Mode: req.Mode, Preset: preset}); err != nil {
		sink.Abort()
		return fail(err)
	}

	r := &renderer{
		logger:    logger,
		req:       req,
		videoPath: videoPath,
		images:    j.cfg.Images,
		sink:      sink,
		surface:   image.NewRGBA(image.Rect(0, 0, preset.Width, preset.Height)),
		comp:      compositor.New(logger, j.cfg.Fonts, j.cfg.Compositor),
	}
	defer r.comp.Close()

	frame, closeSource, err := r.frameFunc(ctx, j.cfg.Videos, preset)
	if err != nil {
		sink.Abort()
		return fail(err)
	}
	defer closeSource()

	loop := timeline.Loop{
		Total:    total,
		Interval: reel.FrameInterval,
		Clock:    j.cfg.Clock,
		Frame:    frame,
		Watchdog: wd,
		Logger:   logger,
		Progress: func(pct int) {
			j.apply(Event{Kind: EventProgress, JobID: id, Progress: pct, Frames: r.frames})
		},
	}
	emitted, err := loop.Run(ctx)
	if err != nil {
		sink.Abort()
		return fail(err)
	}
	closeSource()

	wd.Kick()
	art, err := sink.Finish(ctx)
	if err != nil {
		sink.Abort()
		return fail(err)
	}
	// A cancel that lands during finalize still discards the artifact.
	if ctx.Err() != nil {
		return fail(context.Cause(ctx))
	}
	wd.Stop()

	name := reel.ArtifactName(req.Mode, preset.Tier, j.cfg.Now(), art.Ext)
	path, err := j.cfg.Saver.Save(ctx, name, art)
	if err != nil {
		return fail(err)
	}

	logger.Info().
		Str("artifact", path).
		Int("frames", emitted).
		Int("bytes", len(art.Data)).
		Msg("generation complete")
	return Event{Kind: EventCompleted, JobID: id, Artifact: path, Frames: emitted, At: j.cfg.Now()}
}

func (j *Job) unlock(logger zerolog.Logger) {
	if j.lock == nil {
		return
	}
	if err := j.lock.Unlock(); err != nil {
		logger.Warn().Err(err).Msg("failed to release generation lock")
	}
}

func totalFrames(req Request) (int, error) {
	if req.Mode == reel.ModeVideo {
		vp, err := timeline.NewVideoPlan(req.Video.Duration)
		if err != nil {
			return 0, err
		}
		return vp.TotalFrames, nil
	}
	plan, err := timeline.NewPlan(len(req.Images), req.Reel.DurationPerImage)
	if err != nil {
		return 0, err
	}
	return plan.TotalFrames, nil
}

// renderer draws and emits the frames of one run. It owns the surface.
type renderer struct {
	logger    zerolog.Logger
	req       Request
	videoPath string // pinned for the run
	images    ImageDecoder
	sink      encoder.Sink
	surface   *image.RGBA
	comp      *compositor.Compositor
	frames    int
}

func (r *renderer) frameFunc(ctx context.Context, videos VideoDecoder, preset reel.QualityPreset) (timeline.FrameFunc, func(), error) {
	if r.req.Mode == reel.ModeVideo {
		return r.videoFrames(ctx, videos, preset)
	}

	plan, err := timeline.NewPlan(len(r.req.Images), r.req.Reel.DurationPerImage)
	if err != nil {
		return nil, nil, err
	}
	blends := r.req.Reel.Transition.Blends()

	return func(ctx context.Context, f int) (bool, error) {
		step := plan.At(f)
		fr := compositor.Frame{
			Current:    r.layer(r.req.Images[step.Index]),
			Transition: r.req.Reel.Transition,
			InWindow:   step.InWindow,
			Progress:   step.Progress,
			Caption:    r.req.Caption,
			Text:       r.req.Text,
		}
		if step.InWindow && blends {
			fr.Next = r.layer(r.req.Images[step.Next])
		}
		return true, r.emit(fr)
	}, func() {}, nil
}

func (r *renderer) videoFrames(ctx context.Context, videos VideoDecoder, preset reel.QualityPreset) (timeline.FrameFunc, func(), error) {
	if videos == nil {
		return nil, nil, fmt.Errorf("%w: no video decoder configured", reel.ErrEncoder)
	}
	if r.videoPath == "" {
		return nil, nil, reel.ErrNoVideo
	}

	src, err := videos(ctx, ffmpeg.DecodeOptions{
		Input:    r.videoPath,
		Width:    preset.Width,
		Height:   preset.Height,
		FPS:      preset.FPS,
		Duration: r.req.Video.Duration,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open video: %w", err)
	}

	var once sync.Once
	closeSource := func() {
		once.Do(func() {
			if err := src.Close(); err != nil {
				r.logger.Debug().Err(err).Msg("video decoder close")
			}
		})
	}

	buf := image.NewRGBA(r.surface.Bounds())
	return func(ctx context.Context, f int) (bool, error) {
		if err := src.NextInto(buf); err != nil {
			if errors.Is(err, io.EOF) {
				return false, nil
			}
			return false, err
		}
		return true, r.emit(compositor.Frame{
			Current: compositor.Layer{Image: buf},
			Caption: r.req.Caption,
			Text:    r.req.Text,
		})
	}, closeSource, nil
}

func (r *renderer) layer(img source.Image) compositor.Layer {
	l := compositor.Layer{Key: img.ID}
	if r.images == nil {
		return l
	}
	decoded, err := r.images.Decode(img)
	if err != nil {
		r.logger.Debug().Err(err).Str("image", img.ID).Msg("background omitted")
		return l
	}
	l.Image = decoded
	return l
}

func (r *renderer) emit(f compositor.Frame) error {
	if err := r.comp.Render(r.surface, f); err != nil {
		return fmt.Errorf("render: %w", err)
	}
	if err := r.sink.WriteFrame(r.surface); err != nil {
		return err
	}
	r.frames++
	return nil
}
