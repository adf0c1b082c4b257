package encoder

import (
	"bytes"
	"context"
	"errors"
	"image"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/kikiluvv/quotereel/internal/ffmpeg"
	"github.com/kikiluvv/quotereel/internal/reel"
)

var tinyPreset = reel.QualityPreset{Tier: reel.Quality1080p, Width: 32, Height: 32, Bitrate: 200_000, FPS: reel.FrameRate}

type fakeStreamEncoder struct {
	has       bool
	hasErr    error
	starts    int
	startErr  error
	lastCodec string
}

func (f *fakeStreamEncoder) HasEncoder(ctx context.Context, name string) (bool, error) {
	f.lastCodec = name
	return f.has, f.hasErr
}

func (f *fakeStreamEncoder) StartEncode(ctx context.Context, opts ffmpeg.EncodeOptions) (*ffmpeg.EncodeSession, error) {
	f.starts++
	return nil, f.startErr
}

func frame(w, h int, v uint8) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

func TestParseBackend(t *testing.T) {
	for in, want := range map[string]Backend{"": BackendAuto, "AUTO": BackendAuto, "ffmpeg": BackendFFmpeg, " mjpeg ": BackendMJPEG} {
		got, err := ParseBackend(in)
		if err != nil || got != want {
			t.Errorf("%q: got %q (%v), want %q", in, got, err, want)
		}
	}
	if _, err := ParseBackend("gstreamer"); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestNewFactory(t *testing.T) {
	factory, err := NewFactory(zerolog.Nop(), Options{Backend: BackendAuto}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := factory().(*MJPEGSink); !ok {
		t.Fatal("auto without ffmpeg should fall back to mjpeg")
	}

	if _, err := NewFactory(zerolog.Nop(), Options{Backend: BackendFFmpeg}, nil); !errors.Is(err, reel.ErrEncoder) {
		t.Fatalf("expected ErrEncoder, got %v", err)
	}
}

func TestMJPEGSinkRoundTrip(t *testing.T) {
	dir := t.TempDir()
	sink := NewMJPEGSink(zerolog.Nop(), dir, 80)
	ctx := context.Background()

	if err := sink.WriteFrame(frame(32, 32, 0)); !errors.Is(err, reel.ErrEncoder) {
		t.Fatalf("write before start: %v", err)
	}
	if err := sink.Start(ctx, Request{Mode: reel.ModeImages, Preset: tinyPreset}); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := sink.WriteFrame(frame(32, 32, uint8(i*60))); err != nil {
			t.Fatal(err)
		}
	}
	art, err := sink.Finish(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if art.Ext != "avi" || art.Frames != 3 {
		t.Fatalf("unexpected artifact %+v", art)
	}
	if !bytes.HasPrefix(art.Data, []byte("RIFF")) || !bytes.Contains(art.Data[:16], []byte("AVI ")) {
		t.Fatal("artifact is not an AVI file")
	}
	if entries, _ := os.ReadDir(dir); len(entries) != 0 {
		t.Fatalf("spool file left behind: %d entries", len(entries))
	}
}

func TestMJPEGSinkAbortDiscards(t *testing.T) {
	dir := t.TempDir()
	sink := NewMJPEGSink(zerolog.Nop(), dir, 0)
	ctx := context.Background()

	if err := sink.Start(ctx, Request{Preset: tinyPreset}); err != nil {
		t.Fatal(err)
	}
	sink.WriteFrame(frame(32, 32, 10))
	sink.Abort()
	sink.Abort()

	if entries, _ := os.ReadDir(dir); len(entries) != 0 {
		t.Fatalf("aborted session left files: %d", len(entries))
	}
	if _, err := sink.Finish(ctx); err == nil {
		t.Fatal("Finish after Abort must fail")
	}
}

func TestFFmpegSinkUnsupportedCodec(t *testing.T) {
	fake := &fakeStreamEncoder{has: false}
	sink := NewFFmpegSink(zerolog.Nop(), fake, "libnope", "")

	err := sink.Start(context.Background(), Request{Preset: tinyPreset})
	if !errors.Is(err, reel.ErrUnsupportedCodec) {
		t.Fatalf("expected ErrUnsupportedCodec, got %v", err)
	}
	if fake.starts != 0 {
		t.Fatal("no encoder process may be started for an unsupported codec")
	}
	if _, err := sink.Finish(context.Background()); err == nil {
		t.Fatal("Finish without a session must fail")
	}
	sink.Abort()
}

func TestFFmpegSinkStartFailure(t *testing.T) {
	fake := &fakeStreamEncoder{has: true, startErr: errors.New("spawn failed")}
	sink := NewFFmpegSink(zerolog.Nop(), fake, "", "")

	if err := sink.Start(context.Background(), Request{Preset: tinyPreset}); !errors.Is(err, reel.ErrEncoder) {
		t.Fatalf("expected ErrEncoder, got %v", err)
	}
	if fake.lastCodec != ffmpeg.DefaultVideoCodec {
		t.Fatalf("default codec not used: %q", fake.lastCodec)
	}

	fake = &fakeStreamEncoder{hasErr: errors.New("no ffmpeg")}
	sink = NewFFmpegSink(zerolog.Nop(), fake, "", "")
	if err := sink.Start(context.Background(), Request{Preset: tinyPreset}); !errors.Is(err, reel.ErrEncoder) {
		t.Fatalf("expected ErrEncoder, got %v", err)
	}
}

func TestFFmpegSinkEncodes(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not found in PATH - install with: brew install ffmpeg")
	}
	ex, err := ffmpeg.New(zerolog.Nop(), 1)
	if err != nil {
		t.Skip(err)
	}
	ctx := context.Background()

	codec := "libx264"
	if ok, _ := ex.HasEncoder(ctx, codec); !ok {
		codec = "mpeg4"
	}
	preset := tinyPreset
	preset.Width, preset.Height = 64, 64

	sink := NewFFmpegSink(zerolog.Nop(), ex, codec, "ultrafast")
	if err := sink.Start(ctx, Request{Preset: preset}); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		if err := sink.WriteFrame(frame(64, 64, uint8(i*20))); err != nil {
			t.Fatal(err)
		}
	}
	art, err := sink.Finish(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if art.Ext != "mp4" || len(art.Data) == 0 || art.Frames != 10 {
		t.Fatalf("unexpected artifact ext=%s bytes=%d frames=%d", art.Ext, len(art.Data), art.Frames)
	}
}

func TestDirSaver(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	saver := NewDirSaver(zerolog.Nop(), dir)
	ctx := context.Background()
	art := Artifact{Ext: "mp4", Data: []byte("video"), Frames: 1}

	path, err := saver.Save(ctx, "quote-reel-1080p-1.mp4", art)
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "video" {
		t.Fatalf("saved content %q (%v)", data, err)
	}

	if _, err := saver.Save(ctx, "quote-reel-1080p-1.mp4", art); err == nil {
		t.Fatal("existing artifact must not be overwritten")
	}
	if _, err := saver.Save(ctx, "../escape.mp4", art); err == nil {
		t.Fatal("names with directories must be rejected")
	}
	if _, err := saver.Save(ctx, "empty.mp4", Artifact{}); err == nil {
		t.Fatal("empty artifacts must be rejected")
	}

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".part") {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one artifact, got %d", len(entries))
	}
}
