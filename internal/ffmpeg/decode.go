package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/kikiluvv/quotereel/pkg/util"
)

// FrameReader decodes a video into raw RGBA frames at a fixed size and rate.
type FrameReader struct {
	logger zerolog.Logger
	cmd    *exec.Cmd
	out    *bufio.Reader
	cancel context.CancelFunc
	stderr *tail
	done   chan struct{}

	width, height int
	frames        int
	closed        bool
}

// OpenFrames starts decoding opts.Input. Call Close when done, even after io.EOF.
func (e *Executor) OpenFrames(ctx context.Context, opts DecodeOptions) (*FrameReader, error) {
	if opts.Input == "" {
		return nil, fmt.Errorf("input path is required")
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", opts.Width, opts.Height)
	}

	args := decodeArgs(opts)
	e.logger.Debug().
		Str("cmd", "ffmpeg").
		Strs("args", args).
		Msg("starting frame decode")

	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)

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

	r := &FrameReader{
		logger: e.logger.With().Str("input", opts.Input).Logger(),
		cmd:    cmd,
		out:    bufio.NewReaderSize(stdout, opts.Width*opts.Height*4),
		cancel: cancel,
		stderr: newTail(20),
		done:   make(chan struct{}),
		width:  opts.Width,
		height: opts.Height,
	}

	go func() {
		defer close(r.done)
		streamOutput(stderr, nil, func(line string) {
			r.stderr.add(line)
			r.logger.Debug().Str("ffmpeg", line).Msg("decoder output")
		})
	}()

	return r, nil
}

// NextInto decodes the next frame into dst, which must have the size the
// reader was opened with. It returns io.EOF at the end of the stream.
func (r *FrameReader) NextInto(dst *image.RGBA) error {
	if r.closed {
		return io.EOF
	}
	b := dst.Bounds()
	if b.Dx() != r.width || b.Dy() != r.height || dst.Stride != r.width*4 {
		return fmt.Errorf("destination is %dx%d, decoder emits %dx%d", b.Dx(), b.Dy(), r.width, r.height)
	}

	_, err := io.ReadFull(r.out, dst.Pix[:r.width*r.height*4])
	switch {
	case err == nil:
		r.frames++
		return nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		if r.frames == 0 {
			if msg := r.stderr.String(); msg != "" {
				return fmt.Errorf("decode produced no frames: %s", msg)
			}
		}
		return io.EOF
	default:
		return fmt.Errorf("read frame %d: %w", r.frames, err)
	}
}

// Close stops the decoder.
func (r *FrameReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.cancel()
	<-r.done
	_ = r.cmd.Wait()
	r.logger.Debug().Int("frames", r.frames).Msg("decode closed")
	return nil
}

// Poster grabs a single frame at ts, cover-fitted to width x height.
func (e *Executor) Poster(ctx context.Context, input string, ts time.Duration, width, height int) (image.Image, error) {
	if input == "" {
		return nil, fmt.Errorf("input path is required")
	}

	e.logger.Debug().
		Str("input", input).
		Dur("timestamp", ts).
		Msg("grabbing poster frame")

	f, err := util.TempFile("", "quotereel-poster-", ".png")
	if err != nil {
		return nil, fmt.Errorf("create poster file: %w", err)
	}
	out := f.Name()
	f.Close()
	defer util.CleanupFiles(out)

	stderr := newTail(5)
	err = e.Run(ctx, RunOptions{
		Args: []string{
			"-ss", util.FormatDuration(ts),
			"-i", input,
			"-frames:v", "1",
			"-vf", NewFilterBuilder().Cover(width, height).Build(),
			"-update", "1",
			out,
		},
		LogHandler: stderr.add,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("poster frame failed: %w (%s)", err, stderr.String())
	}

	data, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("read poster frame: %w", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode poster frame: %w", err)
	}
	return img, nil
}

func decodeArgs(opts DecodeOptions) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin", "-i", opts.Input}
	if opts.Duration > 0 {
		args = append(args, "-t", util.FormatDuration(opts.Duration))
	}
	filter := NewFilterBuilder().Cover(opts.Width, opts.Height).FPS(opts.FPS).Build()
	args = append(args,
		"-an",
		"-vf", filter,
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
	)
	if opts.FPS > 0 {
		args = append(args, "-r", strconv.Itoa(opts.FPS))
	}
	return append(args, "pipe:1")
}
