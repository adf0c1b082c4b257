package tui

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
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

func newSession(t *testing.T, images int) *pipeline.Session {
	t.Helper()
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
		img := image.NewRGBA(image.Rect(0, 0, 8, 8))
		img.Set(0, 0, color.RGBA{uint8(i * 40), 0, 0, 255})
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			t.Fatal(err)
		}
		if _, err := s.AddImages(source.File{Name: "img" + string(rune('a'+i)) + ".png", Data: buf.Bytes()}); err != nil {
			t.Fatal(err)
		}
	}
	return s
}

func newTestStudio(t *testing.T, images int) (Studio, *pipeline.Session) {
	s := newSession(t, images)
	updates, unsubscribe := s.Subscribe()
	t.Cleanup(unsubscribe)
	return NewStudio(context.Background(), s, updates), s
}

func press(t *testing.T, m Studio, keys ...string) Studio {
	t.Helper()
	for _, k := range keys {
		var msg tea.KeyMsg
		switch k {
		case "enter":
			msg = tea.KeyMsg{Type: tea.KeyEnter}
		case "esc":
			msg = tea.KeyMsg{Type: tea.KeyEsc}
		case "down":
			msg = tea.KeyMsg{Type: tea.KeyDown}
		default:
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
		}
		model, _ := m.Update(msg)
		m = model.(Studio)
	}
	return m
}

func TestStudioEditsReelSettings(t *testing.T) {
	m, s := newTestStudio(t, 2)

	m = press(t, m, "t")
	if got := s.ReelSettings().Transition; got != reel.TransitionSlide {
		t.Fatalf("transition after one cycle from fade = %s", got)
	}
	m = press(t, m, "=")
	if got := s.ReelSettings().DurationPerImage; got != 4*time.Second {
		t.Fatalf("duration = %v", got)
	}
	m = press(t, m, "Q")
	if got := s.ReelSettings().Quality; got != reel.Quality4K {
		t.Fatalf("quality = %s", got)
	}
	if !strings.Contains(m.View(), "2160x3840") {
		t.Fatal("view does not show the 4k preset")
	}
}

func TestStudioOffsetsSaturate(t *testing.T) {
	m, s := newTestStudio(t, 0)
	for i := 0; i < 15; i++ {
		m = press(t, m, "L", "K")
	}
	ts := s.TextSettings()
	if ts.OffsetX != reel.MaxOffset || ts.OffsetY != -reel.MaxOffset {
		t.Fatalf("offsets %d,%d", ts.OffsetX, ts.OffsetY)
	}
	m = press(t, m, "0")
	if ts := s.TextSettings(); ts.OffsetX != 0 || ts.OffsetY != 0 {
		t.Fatal("offset reset failed")
	}
}

func TestStudioCaptionEditing(t *testing.T) {
	m, s := newTestStudio(t, 0)
	m = press(t, m, "c", "B", "e", " ", "b", "o", "l", "d", "enter")
	if got := s.Caption(); got != "Be bold" {
		t.Fatalf("caption = %q", got)
	}

	// Escape discards an edit in progress.
	m = press(t, m, "c", "!", "esc")
	if got := s.Caption(); got != "Be bold" {
		t.Fatalf("caption changed to %q", got)
	}
	if !strings.Contains(m.View(), "Be bold") {
		t.Fatal("caption not shown")
	}
}

func TestStudioReordersImages(t *testing.T) {
	m, s := newTestStudio(t, 3)
	first := s.Images()[0].ID

	m = press(t, m, "]")
	if s.Images()[1].ID != first || m.cursor != 1 {
		t.Fatalf("image not moved down, cursor %d", m.cursor)
	}
	m = press(t, m, "x")
	if len(s.Images()) != 2 {
		t.Fatalf("remove failed, %d images", len(s.Images()))
	}
}

func TestStudioGenerateValidationError(t *testing.T) {
	m, s := newTestStudio(t, 1)
	m = press(t, m, "g")
	if s.Status().State != pipeline.StateError {
		t.Fatalf("state = %s", s.Status().State)
	}
	view := m.View()
	if !strings.Contains(view, "Please add at least 2 images") {
		t.Fatalf("validation message missing from view:\n%s", view)
	}

	m = press(t, m, "r")
	if s.Status().State != pipeline.StateIdle {
		t.Fatal("dismiss should reset the job")
	}
}

func TestStudioStatusMessages(t *testing.T) {
	m, _ := newTestStudio(t, 2)
	model, _ := m.Update(statusMsg(pipeline.Status{State: pipeline.StateComplete, Progress: 100, Artifact: "/out/quote-reel-1080p-1.mp4"}))
	m = model.(Studio)
	if !strings.Contains(m.View(), "Saved /out/quote-reel-1080p-1.mp4") {
		t.Fatal("artifact path not shown")
	}
}

func TestProgressModelQuitsOnTerminalState(t *testing.T) {
	ch := make(chan pipeline.Status, 1)
	canceled := 0
	m := NewProgressModel(ch, func() { canceled++ })

	model, cmd := m.Update(statusMsg(pipeline.Status{State: pipeline.StateRunning, Progress: 40, Frames: 12, Total: 30}))
	m = model.(ProgressModel)
	if cmd == nil || !strings.Contains(m.View(), "frame 12/30") {
		t.Fatalf("running view: %q", m.View())
	}

	model, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = model.(ProgressModel)
	if cmd == nil {
		t.Fatal("esc should issue a cancel")
	}
	cmd()
	if canceled != 1 {
		t.Fatalf("cancel called %d times", canceled)
	}
	if _, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc}); cmd != nil {
		t.Fatal("a second esc must not cancel again")
	}

	model, _ = m.Update(statusMsg(pipeline.Status{State: pipeline.StateError, Err: reel.ErrStalled}))
	m = model.(ProgressModel)
	if m.Status().State != pipeline.StateError || !strings.Contains(m.View(), "generation stalled") {
		t.Fatalf("error view: %q", m.View())
	}
}
