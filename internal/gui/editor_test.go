package gui

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"fyne.io/fyne/v2/test"
	"github.com/rs/zerolog"

	"github.com/kikiluvv/quotereel/internal/encoder"
	"github.com/kikiluvv/quotereel/internal/pipeline"
	"github.com/kikiluvv/quotereel/internal/reel"
	"github.com/kikiluvv/quotereel/internal/source"
	"github.com/kikiluvv/quotereel/internal/timeline"
)

type nopSink struct{}

func (nopSink) Start(ctx context.Context, req encoder.Request) error { return nil }
func (nopSink) WriteFrame(frame *image.RGBA) error                   { return nil }
func (nopSink) Finish(ctx context.Context) (encoder.Artifact, error) {
	return encoder.Artifact{Ext: "mp4", Data: []byte("x")}, nil
}
func (nopSink) Abort() {}

type nopSaver struct{}

func (nopSaver) Save(ctx context.Context, name string, a encoder.Artifact) (string, error) {
	return "/out/" + name, nil
}

func newTestEditor(t *testing.T, images int) (*editor, *pipeline.Session) {
	t.Helper()
	test.NewTempApp(t)

	s, err := pipeline.NewSession(zerolog.Nop(), pipeline.SessionConfig{
		Job: pipeline.Config{
			Sinks: func() encoder.Sink { return nopSink{} },
			Saver: nopSaver{},
			Clock: timeline.NewFakeClock(),
		},
		TempDir: t.TempDir(),
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })

	for i := 0; i < images; i++ {
		img := image.NewRGBA(image.Rect(0, 0, 16, 16))
		for y := 0; y < 16; y++ {
			for x := 0; x < 16; x++ {
				img.Set(x, y, color.RGBA{uint8(60 + i*80), 40, 200, 255})
			}
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			t.Fatal(err)
		}
		if _, err := s.AddImages(source.File{Name: "img.png", Data: buf.Bytes()}); err != nil {
			t.Fatal(err)
		}
	}

	w := test.NewWindow(nil)
	t.Cleanup(w.Close)
	return newEditor(zerolog.Nop(), s, w, Options{Fonts: []string{"Inter"}}), s
}

func TestEditorCaptionUpdatesSession(t *testing.T) {
	e, s := newTestEditor(t, 2)
	test.Type(e.caption, "Stay hungry")
	if got := s.Caption(); got != "Stay hungry" {
		t.Fatalf("caption = %q", got)
	}
}

func TestEditorInitialValuesDoNotEcho(t *testing.T) {
	calls := 0
	sel := selectOf([]string{"a", "b"}, "b", func(string) { calls++ })
	if sel.Selected != "b" || calls != 0 {
		t.Fatalf("selected %q, %d callbacks", sel.Selected, calls)
	}
	sel.SetSelected("a")
	if calls != 1 {
		t.Fatalf("callback not wired, %d calls", calls)
	}
}

func TestEditorGenerateRejectsSingleImage(t *testing.T) {
	e, s := newTestEditor(t, 1)
	test.Tap(e.generateButton)

	if st := s.Status(); st.State != pipeline.StateError {
		t.Fatalf("state = %s", st.State)
	}
	if !strings.Contains(e.status.Text, "Please add at least 2 images") {
		t.Fatalf("status label = %q", e.status.Text)
	}
}

func TestEditorApplyStatusTogglesGenerate(t *testing.T) {
	e, _ := newTestEditor(t, 2)

	e.applyStatus(pipeline.Status{State: pipeline.StateRunning, Progress: 42})
	if !e.generateButton.Disabled() {
		t.Fatal("generate should be disabled while running")
	}
	if e.progress.Value != 0.42 || !strings.Contains(e.status.Text, "42%") {
		t.Fatalf("progress %v, status %q", e.progress.Value, e.status.Text)
	}

	e.applyStatus(pipeline.Status{State: pipeline.StateIdle})
	if e.generateButton.Disabled() || e.status.Text != "Ready" {
		t.Fatalf("idle status %q", e.status.Text)
	}
}

func TestEditorRenderPreviewDrawsFrame(t *testing.T) {
	e, _ := newTestEditor(t, 2)
	e.stopPreview()

	e.renderAt(0)
	c := e.surface.RGBAAt(previewWidth/2, previewHeight/2)
	if c.A == 0 || (c.R == 0 && c.G == 0 && c.B == 0) {
		t.Fatalf("preview not drawn, center pixel %v", c)
	}
}

func TestEditorPreviewErrorShowsInStatus(t *testing.T) {
	e, s := newTestEditor(t, 2)
	e.stopPreview()

	e.mode = reel.ModeVideo
	e.renderPreview(context.Background())

	if want := "Preview unavailable: Please select a video first"; e.status.Text != want {
		t.Fatalf("status label = %q, want %q", e.status.Text, want)
	}
	if st := s.Status(); st.State != pipeline.StateIdle {
		t.Fatalf("preview failure changed the job state to %s", st.State)
	}
	if top := e.window.Canvas().Overlays().Top(); top != nil {
		t.Fatal("preview failure must not open a dialog")
	}

	e.mode = reel.ModeImages
	e.renderPreview(context.Background())
	if e.status.Text != "Ready" {
		t.Fatalf("status not restored after a good frame: %q", e.status.Text)
	}
}

func TestMessage(t *testing.T) {
	if got := message(reel.ErrNoVideo); got != "Please select a video first" {
		t.Fatalf("validation message = %q", got)
	}
	if got := message(errors.New("boom")); got != "boom" {
		t.Fatalf("plain message = %q", got)
	}
}
