package encoder

import (
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/rs/zerolog"

	"github.com/kikiluvv/quotereel/internal/ffmpeg"
	"github.com/kikiluvv/quotereel/internal/reel"
)

// Request describes one encoding session.
type Request struct {
	Mode   reel.Mode
	Preset reel.QualityPreset
}

// Artifact is a finished, fully assembled output.
type Artifact struct {
	Ext      string // without the dot
	MIMEType string
	Data     []byte
	Frames   int
}

// Sink consumes frames in order and assembles the final artifact.
// Frames must be written one at a time, in increasing frame order.
type Sink interface {
	// Start opens the session. On error nothing has been produced.
	Start(ctx context.Context, req Request) error
	WriteFrame(frame *image.RGBA) error
	// Finish finalizes the container and returns the artifact.
	Finish(ctx context.Context) (Artifact, error)
	// Abort stops the session without finalizing and drops all output.
	// It is safe to call at any time, more than once.
	Abort()
}

// Backend names a Sink implementation.
type Backend string

const (
	BackendAuto   Backend = "auto"
	BackendFFmpeg Backend = "ffmpeg"
	BackendMJPEG  Backend = "mjpeg"
)

// ParseBackend accepts a backend name; empty means auto.
func ParseBackend(v string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(v))); b {
	case "", BackendAuto:
		return BackendAuto, nil
	case BackendFFmpeg, BackendMJPEG:
		return b, nil
	}
	return "", fmt.Errorf("unknown encoder backend %q (use auto, ffmpeg or mjpeg)", v)
}

// Options configures sink construction.
type Options struct {
	Backend     Backend
	Codec       string
	Preset      string
	TempDir     string
	JPEGQuality int
}

// Factory builds a fresh Sink per job.
type Factory func() Sink

// NewFactory picks the backend. Auto uses ffmpeg when an executor is
// available and falls back to MJPEG otherwise.
func NewFactory(logger zerolog.Logger, opts Options, exec *ffmpeg.Executor) (Factory, error) {
	backend := opts.Backend
	if backend == "" || backend == BackendAuto {
		backend = BackendMJPEG
		if exec != nil {
			backend = BackendFFmpeg
		}
	}

	switch backend {
	case BackendFFmpeg:
		if exec == nil {
			return nil, fmt.Errorf("%w: ffmpeg backend requested but ffmpeg is not available", reel.ErrEncoder)
		}
		logger.Debug().Str("backend", string(backend)).Str("codec", opts.Codec).Msg("encoder selected")
		return func() Sink { return NewFFmpegSink(logger, exec, opts.Codec, opts.Preset) }, nil
	case BackendMJPEG:
		logger.Debug().Str("backend", string(backend)).Msg("encoder selected")
		return func() Sink { return NewMJPEGSink(logger, opts.TempDir, opts.JPEGQuality) }, nil
	}
	return nil, fmt.Errorf("unknown encoder backend %q", backend)
}
