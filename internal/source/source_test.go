package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/kikiluvv/quotereel/internal/ffmpeg"
	"github.com/kikiluvv/quotereel/internal/reel"
)

// fakeProber reads the duration from a "dur=<go duration>;" prefix in the file.
type fakeProber struct {
	calls int
}

func (p *fakeProber) ProbeVideo(ctx context.Context, path string) (*ffmpeg.VideoInfo, error) {
	p.calls++
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	head, _, ok := strings.Cut(string(data[:min(len(data), 64)]), ";")
	if !ok || !strings.HasPrefix(head, "dur=") {
		return nil, fmt.Errorf("unrecognized video")
	}
	d, err := time.ParseDuration(strings.TrimPrefix(head, "dur="))
	if err != nil {
		return nil, err
	}
	return &ffmpeg.VideoInfo{FilePath: path, Duration: d, Width: 1080, Height: 1920}, nil
}

func pngFile(t *testing.T, name string) File {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return File{Name: name, Data: buf.Bytes()}
}

func videoFile(name string, d time.Duration, size int) File {
	data := make([]byte, size)
	copy(data, fmt.Sprintf("dur=%s;", d))
	return File{Name: name, MIMEType: "video/mp4", Data: data}
}

func newTestManager(t *testing.T) (*Manager, string) {
	t.Helper()
	dir := t.TempDir()
	m := NewManager(zerolog.Nop(), &fakeProber{}, dir)
	t.Cleanup(func() { m.Close() })
	return m, dir
}

func names(images []Image) []string {
	out := make([]string, len(images))
	for i, img := range images {
		out[i] = img.Name
	}
	return out
}

func TestAddImagesFiltersAndKeepsOrder(t *testing.T) {
	m, _ := newTestManager(t)

	res, err := m.AddImages(
		pngFile(t, "a.png"),
		File{Name: "notes.txt", Data: []byte("hello")},
		pngFile(t, "b.png"),
		File{Name: "fake.png", Data: []byte("not really a png")},
	)
	if err != nil {
		t.Fatal(err)
	}
	if res.Added != 2 || len(res.Rejected) != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
	if got := strings.Join(names(m.Images()), ","); got != "a.png,b.png" {
		t.Fatalf("order %q", got)
	}
	img := m.Images()[0]
	if img.ID == "" || img.Width != 4 || img.Height != 3 || img.MIMEType != "image/png" {
		t.Fatalf("unexpected image metadata %+v", img)
	}
}

func TestAddImagesTruncatesOverflow(t *testing.T) {
	m, _ := newTestManager(t)

	var batch []File
	for i := 0; i < 25; i++ {
		batch = append(batch, pngFile(t, fmt.Sprintf("%02d.png", i)))
	}
	res, err := m.AddImages(batch...)
	if err != nil {
		t.Fatalf("overflow must not error: %v", err)
	}
	if res.Added != reel.MaxImages || res.Truncated != 5 {
		t.Fatalf("unexpected result %+v", res)
	}
	if last := m.Images()[reel.MaxImages-1].Name; last != "19.png" {
		t.Fatalf("expected the first 20 in arrival order, last is %s", last)
	}

	res, _ = m.AddImages(pngFile(t, "late.png"))
	if res.Added != 0 || res.Truncated != 1 || m.ImageCount() != reel.MaxImages {
		t.Fatalf("full sequence accepted more: %+v", res)
	}
}

func TestRemoveAndMoveImage(t *testing.T) {
	m, _ := newTestManager(t)
	m.AddImages(pngFile(t, "a"), pngFile(t, "b"), pngFile(t, "c"))

	if err := m.MoveImage(0, Up); err != nil {
		t.Fatal(err)
	}
	if err := m.MoveImage(2, Down); err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(names(m.Images()), ""); got != "abc" {
		t.Fatalf("boundary moves must be no-ops, got %s", got)
	}

	m.MoveImage(0, Down)
	if got := strings.Join(names(m.Images()), ""); got != "bac" {
		t.Fatalf("got %s, want bac", got)
	}

	if err := m.RemoveImage(3); !errors.Is(err, reel.ErrIndexOutOfRange) {
		t.Fatalf("expected out of range, got %v", err)
	}
	if err := m.MoveImage(-1, Down); !errors.Is(err, reel.ErrIndexOutOfRange) {
		t.Fatalf("expected out of range, got %v", err)
	}
	if err := m.RemoveImage(1); err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(names(m.Images()), ""); got != "bc" {
		t.Fatalf("got %s, want bc", got)
	}
}

func TestSetVideoAcceptsAndRejectsKeepingPrior(t *testing.T) {
	m, dir := newTestManager(t)
	ctx := context.Background()

	first, err := m.SetVideo(ctx, videoFile("ok.mp4", 25*time.Second, 40*1024*1024))
	if err != nil {
		t.Fatalf("25s/40MB video should be accepted: %v", err)
	}
	if first.Duration != 25*time.Second || first.Size != 40*1024*1024 {
		t.Fatalf("unexpected video %+v", first)
	}

	_, err = m.SetVideo(ctx, videoFile("long.mp4", 35*time.Second, 1024))
	if !errors.Is(err, reel.ErrVideoTooLong) {
		t.Fatalf("expected ErrVideoTooLong, got %v", err)
	}
	if err.Error() != "Video must be 30 seconds or less" {
		t.Fatalf("message must be verbatim, got %q", err.Error())
	}

	cur, ok := m.Video()
	if !ok || cur.ID != first.ID {
		t.Fatal("prior video must remain selected")
	}
	if _, err := cur.Handle.Path(); err != nil {
		t.Fatalf("prior handle must stay valid: %v", err)
	}
	if entries, _ := os.ReadDir(dir); len(entries) != 1 {
		t.Fatalf("rejected candidate leaked a temp file: %d entries", len(entries))
	}
}

func TestSetVideoReplacesAndReleasesOld(t *testing.T) {
	m, dir := newTestManager(t)
	ctx := context.Background()

	first, _ := m.SetVideo(ctx, videoFile("a.mp4", 5*time.Second, 128))
	oldPath, _ := first.Handle.Path()

	second, err := m.SetVideo(ctx, videoFile("b.webm", 10*time.Second, 128))
	if err != nil {
		t.Fatal(err)
	}
	if !first.Handle.Released() {
		t.Fatal("old handle must be released on replacement")
	}
	if _, err := first.Handle.Path(); !errors.Is(err, ErrReleased) {
		t.Fatalf("expected ErrReleased, got %v", err)
	}
	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Fatal("old temp file still on disk")
	}

	if err := m.ClearVideo(); err != nil {
		t.Fatal(err)
	}
	if _, ok := m.Video(); ok {
		t.Fatal("video should be cleared")
	}
	if !second.Handle.Released() {
		t.Fatal("ClearVideo must release the handle")
	}
	if entries, _ := os.ReadDir(dir); len(entries) != 0 {
		t.Fatalf("expected no temp files, got %d", len(entries))
	}
}

func TestSetVideoKeepsPinnedVideo(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	first, _ := m.SetVideo(ctx, videoFile("a.mp4", 5*time.Second, 128))
	path, err := first.Handle.Pin()
	if err != nil {
		t.Fatal(err)
	}

	if _, err := m.SetVideo(ctx, videoFile("b.webm", 10*time.Second, 128)); !errors.Is(err, reel.ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if err := m.ClearVideo(); !errors.Is(err, reel.ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	cur, ok := m.Video()
	if !ok || cur.Name != "a.mp4" || first.Handle.Released() {
		t.Fatalf("pinned video must stay selected, got %+v", cur)
	}

	first.Handle.Unpin()
	if _, err := m.SetVideo(ctx, videoFile("b.webm", 10*time.Second, 128)); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("unpinned video not removed on replacement")
	}
}

func TestHandlePinDefersForcedRelease(t *testing.T) {
	m, _ := newTestManager(t)
	v, _ := m.SetVideo(context.Background(), videoFile("a.mp4", 5*time.Second, 128))

	path, err := v.Handle.Pin()
	if err != nil {
		t.Fatal(err)
	}
	if err := v.Handle.Retire(); !errors.Is(err, ErrInUse) {
		t.Fatalf("expected ErrInUse, got %v", err)
	}
	if err := v.Handle.Release(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatal("pinned file removed before unpin")
	}
	if _, err := v.Handle.Pin(); !errors.Is(err, ErrReleased) {
		t.Fatalf("expected ErrReleased, got %v", err)
	}

	v.Handle.Unpin()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("file not removed after last unpin")
	}
}

func TestSetVideoValidation(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	cases := []struct {
		name string
		file File
		want error
	}{
		{"wrong type", File{Name: "a.gif", MIMEType: "image/gif", Data: []byte("GIF89a")}, reel.ErrVideoType},
		{"unknown extension", File{Name: "a.avi", Data: []byte("RIFF....AVI ")}, reel.ErrVideoType},
		{"too large", File{Name: "big.mp4", Size: reel.MaxVideoSize + 1}, reel.ErrVideoTooLarge},
		{"unreadable", File{Name: "junk.mov", Data: []byte("garbage")}, reel.ErrVideoUnreadable},
	}
	for _, tc := range cases {
		_, err := m.SetVideo(ctx, tc.file)
		if !errors.Is(err, tc.want) {
			t.Errorf("%s: got %v, want %v", tc.name, err, tc.want)
		}
		if !reel.IsValidation(err) {
			t.Errorf("%s: expected a validation error", tc.name)
		}
	}
	if _, ok := m.Video(); ok {
		t.Fatal("no video should be selected")
	}
}

func TestHandleReleaseExactlyOnce(t *testing.T) {
	h, err := newHandle(t.TempDir(), ".mp4", []byte("x"))
	if err != nil {
		t.Fatal(err)
	}
	path, _ := h.Path()
	if err := h.Release(); err != nil {
		t.Fatal(err)
	}
	if err := h.Release(); err != nil {
		t.Fatalf("second release should be a no-op, got %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("file should be removed")
	}
	if filepath.Ext(path) != ".mp4" {
		t.Fatalf("extension not kept: %s", path)
	}
}

func TestDecodeCachesResults(t *testing.T) {
	m, _ := newTestManager(t)
	m.AddImages(pngFile(t, "a.png"))
	img := m.Images()[0]

	first, err := m.Decode(img)
	if err != nil {
		t.Fatal(err)
	}
	second, _ := m.Decode(img)
	if first != second {
		t.Fatal("expected cached decode")
	}

	broken := Image{ID: "broken", Name: "broken.png", Data: []byte("nope")}
	if _, err := m.Decode(broken); err == nil {
		t.Fatal("expected decode error")
	}
	if _, err := m.Decode(broken); err == nil {
		t.Fatal("cached failure should be returned again")
	}
}

func TestCloseReleasesEverything(t *testing.T) {
	m, dir := newTestManager(t)
	ctx := context.Background()
	v, _ := m.SetVideo(ctx, videoFile("a.mp4", time.Second, 64))
	m.AddImages(pngFile(t, "a.png"))

	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("second Close should be a no-op: %v", err)
	}
	if !v.Handle.Released() {
		t.Fatal("Close must release the video handle")
	}
	if entries, _ := os.ReadDir(dir); len(entries) != 0 {
		t.Fatalf("temp files left behind: %d", len(entries))
	}
	if _, err := m.AddImages(pngFile(t, "b.png")); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if _, err := m.SetVideo(ctx, videoFile("b.mp4", time.Second, 64)); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
