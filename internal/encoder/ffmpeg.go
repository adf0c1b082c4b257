package encoder

import (
	"context"
	"fmt"
	"image"

	"github.com/rs/zerolog"

	"github.com/kikiluvv/quotereel/internal/ffmpeg"
	"github.com/kikiluvv/quotereel/internal/reel"
)

// StreamEncoder is the part of the ffmpeg executor the sink needs.
type StreamEncoder interface {
	HasEncoder(ctx context.Context, name string) (bool, error)
	StartEncode(ctx context.Context, opts ffmpeg.EncodeOptions) (*ffmpeg.EncodeSession, error)
}

// FFmpegSink streams raw frames into an ffmpeg process and collects the
// fragmented container it writes back.
type FFmpegSink struct {
	logger zerolog.Logger
	enc    StreamEncoder
	codec  string
	preset string

	container ffmpeg.Container
	session   *ffmpeg.EncodeSession
}

// NewFFmpegSink creates a sink encoding with codec (libx264 when empty).
func NewFFmpegSink(logger zerolog.Logger, enc StreamEncoder, codec, preset string) *FFmpegSink {
	if codec == "" {
		codec = ffmpeg.DefaultVideoCodec
	}
	return &FFmpegSink{
		logger: logger.With().Str("component", "encoder").Str("backend", "ffmpeg").Logger(),
		enc:    enc,
		codec:  codec,
		preset: preset,
	}
}

func (s *FFmpegSink) Start(ctx context.Context, req Request) error {
	if s.session != nil {
		return fmt.Errorf("%w: session already started", reel.ErrEncoder)
	}

	ok, err := s.enc.HasEncoder(ctx, s.codec)
	if err != nil {
		return fmt.Errorf("%w: %v", reel.ErrEncoder, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", reel.ErrUnsupportedCodec, s.codec)
	}

	s.container = ffmpeg.ContainerForCodec(s.codec)
	sess, err := s.enc.StartEncode(ctx, ffmpeg.EncodeOptions{
		Width:     req.Preset.Width,
		Height:    req.Preset.Height,
		FPS:       req.Preset.FPS,
		Codec:     s.codec,
		Preset:    s.preset,
		Bitrate:   req.Preset.Bitrate,
		Container: s.container,
		ProgressFunc: func(p *ffmpeg.Progress) {
			s.logger.Debug().
				Int("frame", p.Frame).
				Float64("fps", p.FPS).
				Str("bitrate", p.Bitrate).
				Str("speed", p.Speed).
				Msg("encoder progress")
		},
	})
	if err != nil {
		return fmt.Errorf("%w: %v", reel.ErrEncoder, err)
	}
	s.session = sess

	s.logger.Info().
		Str("codec", s.codec).
		Str("quality", string(req.Preset.Tier)).
		Str("bitrate", req.Preset.BitrateLabel()).
		Msg("encoder session started")
	return nil
}

func (s *FFmpegSink) WriteFrame(frame *image.RGBA) error {
	if s.session == nil {
		return fmt.Errorf("%w: session not started", reel.ErrEncoder)
	}
	if err := s.session.WriteFrame(frame); err != nil {
		return fmt.Errorf("%w: %v", reel.ErrEncoder, err)
	}
	return nil
}

func (s *FFmpegSink) Finish(ctx context.Context) (Artifact, error) {
	if s.session == nil {
		return Artifact{}, fmt.Errorf("%w: session not started", reel.ErrEncoder)
	}
	sess := s.session
	s.session = nil

	frames := sess.Frames()
	data, err := sess.Close()
	if err != nil {
		return Artifact{}, fmt.Errorf("%w: %v", reel.ErrEncoder, err)
	}
	if len(data) == 0 {
		return Artifact{}, fmt.Errorf("%w: encoder produced no output", reel.ErrEncoder)
	}

	return Artifact{
		Ext:      s.container.Ext(),
		MIMEType: s.container.MIMEType(),
		Data:     data,
		Frames:   frames,
	}, nil
}

func (s *FFmpegSink) Abort() {
	if s.session == nil {
		return
	}
	s.session.Kill()
	s.session = nil
	s.logger.Info().Msg("encoder session aborted")
}
