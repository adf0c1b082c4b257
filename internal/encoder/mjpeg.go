package encoder

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"os"

	"github.com/icza/mjpeg"
	"github.com/rs/zerolog"

	"github.com/kikiluvv/quotereel/internal/reel"
	"github.com/kikiluvv/quotereel/pkg/util"
)

// DefaultJPEGQuality is used when no quality is configured.
const DefaultJPEGQuality = 90

// MJPEGSink writes every frame as a JPEG into an AVI container. It needs no
// external tools, so it serves as the fallback backend.
type MJPEGSink struct {
	logger  zerolog.Logger
	tempDir string
	quality int

	path   string
	writer mjpeg.AviWriter
	buf    bytes.Buffer
	frames int
}

// NewMJPEGSink creates a sink spooling to tempDir.
func NewMJPEGSink(logger zerolog.Logger, tempDir string, quality int) *MJPEGSink {
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	return &MJPEGSink{
		logger:  logger.With().Str("component", "encoder").Str("backend", "mjpeg").Logger(),
		tempDir: tempDir,
		quality: quality,
	}
}

func (s *MJPEGSink) Start(ctx context.Context, req Request) error {
	if s.writer != nil {
		return fmt.Errorf("%w: session already started", reel.ErrEncoder)
	}

	f, err := util.TempFile(s.tempDir, "quotereel-mjpeg-", ".avi")
	if err != nil {
		return fmt.Errorf("%w: %v", reel.ErrEncoder, err)
	}
	path := f.Name()
	f.Close()

	w, err := mjpeg.New(path, int32(req.Preset.Width), int32(req.Preset.Height), int32(req.Preset.FPS))
	if err != nil {
		util.CleanupFiles(path)
		return fmt.Errorf("%w: %v", reel.ErrEncoder, err)
	}
	s.path = path
	s.writer = w
	s.frames = 0

	s.logger.Info().
		Str("quality", string(req.Preset.Tier)).
		Int("jpeg_quality", s.quality).
		Msg("encoder session started")
	return nil
}

func (s *MJPEGSink) WriteFrame(frame *image.RGBA) error {
	if s.writer == nil {
		return fmt.Errorf("%w: session not started", reel.ErrEncoder)
	}
	s.buf.Reset()
	if err := jpeg.Encode(&s.buf, frame, &jpeg.Options{Quality: s.quality}); err != nil {
		return fmt.Errorf("%w: encode frame %d: %v", reel.ErrEncoder, s.frames, err)
	}
	if err := s.writer.AddFrame(s.buf.Bytes()); err != nil {
		return fmt.Errorf("%w: write frame %d: %v", reel.ErrEncoder, s.frames, err)
	}
	s.frames++
	return nil
}

func (s *MJPEGSink) Finish(ctx context.Context) (Artifact, error) {
	if s.writer == nil {
		return Artifact{}, fmt.Errorf("%w: session not started", reel.ErrEncoder)
	}
	w, path := s.writer, s.path
	s.writer, s.path = nil, ""
	defer util.CleanupFiles(path)

	if err := w.Close(); err != nil {
		return Artifact{}, fmt.Errorf("%w: finalize avi: %v", reel.ErrEncoder, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Artifact{}, fmt.Errorf("%w: read avi: %v", reel.ErrEncoder, err)
	}

	return Artifact{
		Ext:      "avi",
		MIMEType: "video/x-msvideo",
		Data:     data,
		Frames:   s.frames,
	}, nil
}

func (s *MJPEGSink) Abort() {
	if s.writer == nil {
		return
	}
	_ = s.writer.Close()
	util.CleanupFiles(s.path)
	s.writer, s.path = nil, ""
	s.logger.Info().Int("frames", s.frames).Msg("encoder session aborted")
}
