package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const chunkSize = 64 * 1024

// ContainerForCodec picks the streaming muxer for an encoder name.
func ContainerForCodec(codec string) Container {
	switch codec {
	case "libvpx", "libvpx-vp9", "libaom-av1", "libsvtav1":
		return ContainerWebM
	default:
		return ContainerMP4
	}
}

// Ext returns the file extension for the container, without the dot.
func (c Container) Ext() string {
	return string(c)
}

// MIMEType returns the media type of the container.
func (c Container) MIMEType() string {
	return "video/" + string(c)
}

// EncodeSession is a running ffmpeg process that turns raw RGBA frames written
// to stdin into an encoded stream collected from stdout.
type EncodeSession struct {
	logger zerolog.Logger
	opts   EncodeOptions
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	group  *errgroup.Group
	cancel context.CancelFunc
	stderr *tail

	mu     sync.Mutex
	chunks [][]byte
	size   int

	frames int
	done   bool
}

// StartEncode spawns ffmpeg for a streaming encode.
func (e *Executor) StartEncode(ctx context.Context, opts EncodeOptions) (*EncodeSession, error) {
	if opts.Width <= 0 || opts.Height <= 0 || opts.FPS <= 0 {
		return nil, fmt.Errorf("invalid encode geometry %dx%d@%d", opts.Width, opts.Height, opts.FPS)
	}
	if opts.Codec == "" {
		opts.Codec = DefaultVideoCodec
	}
	if opts.Container == "" {
		opts.Container = ContainerForCodec(opts.Codec)
	}

	args := encodeArgs(opts, e.threads)
	e.logger.Debug().
		Str("cmd", "ffmpeg").
		Strs("args", args).
		Msg("starting streaming encode")

	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	s := &EncodeSession{
		logger: e.logger.With().Str("codec", opts.Codec).Logger(),
		opts:   opts,
		cmd:    cmd,
		stdin:  stdin,
		cancel: cancel,
		stderr: newTail(20),
	}

	var g errgroup.Group
	g.Go(func() error {
		return s.collect(stdout)
	})
	g.Go(func() error {
		streamOutput(stderr, opts.ProgressFunc, func(line string) {
			s.stderr.add(line)
			s.logger.Debug().Str("ffmpeg", line).Msg("encoder output")
		})
		return nil
	})
	s.group = &g

	return s, nil
}

// collect accumulates encoded chunks as ffmpeg emits them.
func (s *EncodeSession) collect(r io.Reader) error {
	for {
		buf := make([]byte, chunkSize)
		n, err := r.Read(buf)
		if n > 0 {
			s.mu.Lock()
			s.chunks = append(s.chunks, buf[:n])
			s.size += n
			s.mu.Unlock()
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read encoded output: %w", err)
		}
	}
}

// WriteFrame sends one frame to the encoder. The frame must match the
// session geometry.
func (s *EncodeSession) WriteFrame(img *image.RGBA) error {
	if s.done {
		return fmt.Errorf("encode session already finished")
	}
	b := img.Bounds()
	if b.Dx() != s.opts.Width || b.Dy() != s.opts.Height {
		return fmt.Errorf("frame is %dx%d, encoder expects %dx%d", b.Dx(), b.Dy(), s.opts.Width, s.opts.Height)
	}

	rowLen := b.Dx() * 4
	if img.Stride == rowLen {
		start := img.PixOffset(b.Min.X, b.Min.Y)
		if _, err := s.stdin.Write(img.Pix[start : start+rowLen*b.Dy()]); err != nil {
			return s.writeErr(err)
		}
	} else {
		for y := b.Min.Y; y < b.Max.Y; y++ {
			off := img.PixOffset(b.Min.X, y)
			if _, err := s.stdin.Write(img.Pix[off : off+rowLen]); err != nil {
				return s.writeErr(err)
			}
		}
	}
	s.frames++
	return nil
}

func (s *EncodeSession) writeErr(err error) error {
	if msg := s.stderr.String(); msg != "" {
		return fmt.Errorf("write frame %d: %w (ffmpeg: %s)", s.frames, err, msg)
	}
	return fmt.Errorf("write frame %d: %w", s.frames, err)
}

// Frames returns how many frames were written.
func (s *EncodeSession) Frames() int {
	return s.frames
}

// Close signals end of input, waits for ffmpeg to flush and returns the
// assembled output.
func (s *EncodeSession) Close() ([]byte, error) {
	if s.done {
		return nil, fmt.Errorf("encode session already finished")
	}
	s.done = true
	defer s.cancel()

	closeErr := s.stdin.Close()
	readErr := s.group.Wait()
	waitErr := s.cmd.Wait()

	switch {
	case waitErr != nil:
		return nil, fmt.Errorf("ffmpeg encode failed: %w (%s)", waitErr, s.stderr.String())
	case readErr != nil:
		return nil, readErr
	case closeErr != nil:
		return nil, fmt.Errorf("close encoder input: %w", closeErr)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, 0, s.size)
	for _, c := range s.chunks {
		out = append(out, c...)
	}
	s.chunks = nil

	s.logger.Debug().Int("frames", s.frames).Int("bytes", len(out)).Msg("encode finished")
	return out, nil
}

// Kill stops ffmpeg and discards everything it produced. Safe to call after
// Close and more than once.
func (s *EncodeSession) Kill() {
	if s.done {
		return
	}
	s.done = true
	s.cancel()
	_ = s.stdin.Close()
	_ = s.group.Wait()
	_ = s.cmd.Wait()

	s.mu.Lock()
	s.chunks = nil
	s.size = 0
	s.mu.Unlock()
	s.logger.Debug().Int("frames", s.frames).Msg("encode aborted")
}

func encodeArgs(opts EncodeOptions, threads int) []string {
	fps := strconv.Itoa(opts.FPS)
	args := []string{"-hide_banner", "-loglevel", "error", "-nostats", "-progress", "pipe:2"}
	if threads > 0 {
		args = append(args, "-threads", strconv.Itoa(threads))
	}

	args = append(args,
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-video_size", fmt.Sprintf("%dx%d", opts.Width, opts.Height),
		"-framerate", fps,
		"-i", "pipe:0",
		"-an",
		"-c:v", opts.Codec,
	)

	if strings.HasPrefix(opts.Codec, "libx26") {
		preset := opts.Preset
		if preset == "" {
			preset = DefaultPreset
		}
		args = append(args, "-preset", preset)
	}
	if strings.HasPrefix(opts.Codec, "libvpx") {
		args = append(args, "-deadline", "realtime", "-cpu-used", "8")
	}

	if opts.Bitrate > 0 {
		args = append(args,
			"-b:v", strconv.FormatInt(opts.Bitrate, 10),
			"-maxrate", strconv.FormatInt(opts.Bitrate, 10),
			"-bufsize", strconv.FormatInt(opts.Bitrate*2, 10),
		)
	}

	args = append(args, "-pix_fmt", "yuv420p", "-r", fps)

	switch opts.Container {
	case ContainerWebM:
		args = append(args, "-f", "webm")
	default:
		args = append(args, "-movflags", "frag_keyframe+empty_moov+default_base_moof", "-f", "mp4")
	}

	return append(args, "pipe:1")
}
