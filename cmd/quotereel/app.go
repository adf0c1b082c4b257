package main

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"time"

	"github.com/rs/zerolog"

	"github.com/kikiluvv/quotereel/internal/compositor"
	"github.com/kikiluvv/quotereel/internal/config"
	"github.com/kikiluvv/quotereel/internal/encoder"
	"github.com/kikiluvv/quotereel/internal/ffmpeg"
	"github.com/kikiluvv/quotereel/internal/overlays"
	"github.com/kikiluvv/quotereel/internal/pipeline"
	"github.com/kikiluvv/quotereel/internal/reel"
	"github.com/kikiluvv/quotereel/internal/source"
	"github.com/kikiluvv/quotereel/pkg/util"
)

// app is one wired session plus the collaborators the commands need.
type app struct {
	logger  zerolog.Logger
	session *pipeline.Session
	fonts   *overlays.Registry
}

// newApp wires a session from cfg. Without ffmpeg on the PATH the MJPEG
// backend is used and video sources are unavailable.
func newApp(cfg *config.Config, logger zerolog.Logger) (*app, error) {
	if err := util.EnsureDir(cfg.TempDir); err != nil {
		return nil, fmt.Errorf("temp dir: %w", err)
	}

	exec, err := ffmpeg.NewWithPaths(logger, cfg.FFmpeg.BinaryPath, cfg.FFmpeg.ProbePath, cfg.FFmpeg.Threads)
	if err != nil {
		logger.Warn().Err(err).Msg("ffmpeg unavailable, video sources disabled")
		exec = nil
	} else {
		logger.Debug().Str("ffmpeg", exec.Path()).Msg("using ffmpeg")
	}

	sinks, err := encoder.NewFactory(logger, cfg.EncoderOptions(), exec)
	if err != nil {
		return nil, err
	}

	fonts := overlays.NewRegistry()
	for name, path := range cfg.Overlays.Fonts {
		if err := fonts.RegisterFile(name, path); err != nil {
			return nil, fmt.Errorf("font %s: %w", name, err)
		}
	}

	rs, err := cfg.ReelSettings()
	if err != nil {
		return nil, err
	}
	ts, err := cfg.TextSettings()
	if err != nil {
		return nil, err
	}

	saver := encoder.NewDirSaver(logger, cfg.OutputDir)
	logger.Debug().Str("dir", saver.Dir()).Msg("artifacts go to output dir")

	sc := pipeline.SessionConfig{
		Job: pipeline.Config{
			Sinks: sinks,
			Saver: saver,
			Fonts: fonts,
			Compositor: compositor.Options{
				Watermark:      cfg.Overlays.Watermark,
				WatermarkLabel: cfg.Overlays.WatermarkLabel,
			},
			StallTimeout: cfg.StallTimeout(),
			LockPath:     cfg.LockPath(),
		},
		TempDir: cfg.TempDir,
		Reel:    rs,
		Text:    ts,
	}
	if exec != nil {
		sc.Prober = exec
		sc.Poster = exec.Poster
		sc.Job.Videos = pipeline.FFmpegVideoDecoder(exec)
	}

	session, err := pipeline.NewSession(logger, sc)
	if err != nil {
		return nil, err
	}
	return &app{logger: logger, session: session, fonts: fonts}, nil
}

// load reads the given sources into the session and returns the mode they
// imply. A video wins when both are given.
func (a *app) load(ctx context.Context, images []string, video string) (reel.Mode, error) {
	files := make([]source.File, 0, len(images))
	for _, path := range images {
		f, err := source.ReadFile(path, reel.MaxVideoSize)
		if err != nil {
			return "", err
		}
		files = append(files, f)
	}
	if len(files) > 0 {
		res, err := a.session.AddImages(files...)
		if err != nil {
			return "", err
		}
		for _, name := range res.Rejected {
			a.logger.Warn().Str("file", name).Msg("skipping non-image input")
		}
		if res.Truncated > 0 {
			a.logger.Warn().
				Int("dropped", res.Truncated).
				Int("max", reel.MaxImages).
				Msg("too many images, extra inputs ignored")
		}
	}

	if video == "" {
		return reel.ModeImages, nil
	}
	f, err := source.ReadFile(video, reel.MaxVideoSize)
	if err != nil {
		return "", err
	}
	v, err := a.session.SetVideo(ctx, f)
	if err != nil {
		return "", userError(err)
	}
	a.logger.Debug().
		Str("video", v.Name).
		Dur("duration", v.Duration).
		Msg("video loaded")
	return reel.ModeVideo, nil
}

// still renders the frame at time at in full output resolution and writes it
// to path as PNG.
func (a *app) still(ctx context.Context, mode reel.Mode, at time.Duration, path string) error {
	preset, err := reel.PresetFor(a.session.ReelSettings().Quality)
	if err != nil {
		return err
	}
	dst := image.NewRGBA(image.Rect(0, 0, preset.Width, preset.Height))

	if mode == reel.ModeVideo {
		err = a.session.RenderVideoPreview(ctx, dst, at)
	} else {
		if a.session.ImageCount() == 0 {
			return reel.ErrNotEnoughImages
		}
		err = a.session.RenderPreview(dst, at)
	}
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return util.WriteFileAtomic(path, buf.Bytes())
}

func (a *app) close() {
	if err := a.session.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("session teardown")
	}
}
