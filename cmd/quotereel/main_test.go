package main

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/kikiluvv/quotereel/internal/config"
	"github.com/kikiluvv/quotereel/internal/reel"
)

func TestUserError(t *testing.T) {
	if got := userError(reel.ErrNotEnoughImages).Error(); got != "Please add at least 2 images" {
		t.Fatalf("validation error = %q", got)
	}
	plain := errors.New("disk full")
	if userError(plain) != plain {
		t.Fatal("plain errors must pass through")
	}
}

func TestPresetsCommand(t *testing.T) {
	var out bytes.Buffer
	presetsCmd.SetOut(&out)
	if err := presetsCmd.RunE(presetsCmd, nil); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"1080x1920", "2160x3840", "zoom", "300ms"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("presets output missing %q:\n%s", want, out.String())
		}
	}
}

func writePNG(t *testing.T, dir, name string, c color.RGBA) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func testApp(t *testing.T) *app {
	t.Helper()
	cfg := config.Default()
	cfg.TempDir = t.TempDir()
	cfg.OutputDir = t.TempDir()
	cfg.FFmpeg.BinaryPath = "quotereel-missing-ffmpeg"
	cfg.Encoder.Backend = "auto"

	a, err := newApp(cfg, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(a.close)
	return a
}

func TestAppStillWritesFullResolutionFrame(t *testing.T) {
	a := testApp(t)
	dir := t.TempDir()
	red := writePNG(t, dir, "red.png", color.RGBA{220, 20, 20, 255})
	blue := writePNG(t, dir, "blue.png", color.RGBA{20, 20, 220, 255})

	mode, err := a.load(context.Background(), []string{red, blue}, "")
	if err != nil || mode != reel.ModeImages {
		t.Fatalf("load: mode %s, err %v", mode, err)
	}

	// 3s per image: 4s is well inside the second image.
	out := filepath.Join(dir, "still.png")
	if err := a.still(context.Background(), mode, 4*time.Second, out); err != nil {
		t.Fatal(err)
	}
	f, err := os.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 1080 || b.Dy() != 1920 {
		t.Fatalf("still size %v", b)
	}
	r, _, bl, _ := img.At(540, 300).RGBA()
	if bl <= r {
		t.Fatalf("expected the blue image, got r=%d b=%d", r>>8, bl>>8)
	}
}

func TestAppLoadWithoutFFmpegRejectsVideo(t *testing.T) {
	a := testApp(t)
	path := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(path, []byte("not really a video"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := a.load(context.Background(), nil, path); err == nil {
		t.Fatal("video should be refused without a prober")
	}
	if _, ok := a.session.Video(); ok {
		t.Fatal("no video should be selected")
	}
}
