package gui

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"strings"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/widget"
	"github.com/rs/zerolog"

	"github.com/kikiluvv/quotereel/internal/pipeline"
	"github.com/kikiluvv/quotereel/internal/reel"
	"github.com/kikiluvv/quotereel/internal/source"
	"github.com/kikiluvv/quotereel/internal/timeline"
	"github.com/kikiluvv/quotereel/pkg/util"
)

// Preview surface size; a 9:16 thumbnail of the output frame.
const (
	previewWidth  = 270
	previewHeight = 480
	previewTick   = 2 * reel.FrameInterval
)

// Options configures the preview window.
type Options struct {
	Fonts []string
}

type editor struct {
	logger  zerolog.Logger
	session *pipeline.Session
	window  fyne.Window
	opts    Options

	mode     reel.Mode
	selected int

	surface  *image.RGBA
	preview  *canvas.Image
	images   *widget.List
	video    *widget.Label
	status   *widget.Label
	progress *widget.ProgressBar
	seek     *widget.Slider
	caption  *widget.Entry

	generateButton *widget.Button

	previewMu     sync.Mutex
	previewCancel context.CancelFunc
	previewBroken bool
}

// Run opens the preview window and blocks until it is closed. Closing the
// window cancels any running job and tears the session down.
func Run(ctx context.Context, logger zerolog.Logger, session *pipeline.Session, opts Options) {
	a := app.NewWithID("dev.quotereel.preview")
	w := a.NewWindow("QuoteReel Preview")
	w.Resize(fyne.NewSize(980, 640))

	e := newEditor(logger, session, w, opts)

	updates, unsubscribe := session.Subscribe()
	go e.follow(updates)

	e.restartPreview(ctx)
	w.SetOnClosed(func() {
		e.stopPreview()
		unsubscribe()
		if err := session.Close(); err != nil {
			logger.Warn().Err(err).Msg("session teardown")
		}
	})

	go func() {
		<-ctx.Done()
		fyne.Do(w.Close)
	}()

	w.ShowAndRun()
}

func newEditor(logger zerolog.Logger, session *pipeline.Session, w fyne.Window, opts Options) *editor {
	e := &editor{
		logger:   logger.With().Str("component", "gui").Logger(),
		session:  session,
		window:   w,
		opts:     opts,
		mode:     reel.ModeImages,
		selected: -1,
		surface:  image.NewRGBA(image.Rect(0, 0, previewWidth, previewHeight)),
	}
	if _, ok := session.Video(); ok && len(session.Images()) == 0 {
		e.mode = reel.ModeVideo
	}

	e.preview = canvas.NewImageFromImage(e.surface)
	e.preview.FillMode = canvas.ImageFillContain
	e.preview.SetMinSize(fyne.NewSize(previewWidth, previewHeight))

	e.status = widget.NewLabel("Ready")
	e.progress = widget.NewProgressBar()

	w.SetContent(container.NewBorder(
		nil,
		container.NewVBox(e.progress, e.status),
		container.NewVScroll(e.sourcesPanel()),
		container.NewVScroll(e.settingsPanel()),
		container.NewCenter(e.preview),
	))
	return e
}

func (e *editor) sourcesPanel() fyne.CanvasObject {
	e.images = widget.NewList(
		func() int { return len(e.session.Images()) },
		func() fyne.CanvasObject { return widget.NewLabel("image") },
		func(id widget.ListItemID, obj fyne.CanvasObject) {
			images := e.session.Images()
			if id < len(images) {
				obj.(*widget.Label).SetText(fmt.Sprintf("%d. %s", id+1, images[id].Name))
			}
		},
	)
	e.images.OnSelected = func(id widget.ListItemID) { e.selected = id }
	e.images.OnUnselected = func(widget.ListItemID) { e.selected = -1 }

	addButton := widget.NewButton("Add Image", func() {
		fd := dialog.NewFileOpen(func(ur fyne.URIReadCloser, err error) {
			if err != nil || ur == nil {
				return
			}
			defer ur.Close()
			f, err := readURI(ur, reel.MaxVideoSize)
			if err != nil {
				e.showError(err)
				return
			}
			res, err := e.session.AddImages(f)
			switch {
			case err != nil:
				e.showError(err)
			case len(res.Rejected) > 0:
				e.showError(reel.ErrImageType)
			case res.Truncated > 0:
				e.setStatus(fmt.Sprintf("Only %d images fit in a reel", reel.MaxImages))
			}
			e.sourcesChanged()
		}, e.window)
		fd.SetFilter(storage.NewExtensionFileFilter([]string{".png", ".jpg", ".jpeg", ".gif", ".webp", ".bmp"}))
		fd.Show()
	})
	removeButton := widget.NewButton("Remove", func() {
		if e.selected < 0 {
			return
		}
		if err := e.session.RemoveImage(e.selected); err != nil {
			e.showError(err)
		}
		e.images.UnselectAll()
		e.sourcesChanged()
	})
	upButton := widget.NewButton("Up", func() { e.move(source.Up) })
	downButton := widget.NewButton("Down", func() { e.move(source.Down) })

	e.video = widget.NewLabel("No video loaded")
	loadButton := widget.NewButton("Load Video", func() {
		fd := dialog.NewFileOpen(func(ur fyne.URIReadCloser, err error) {
			if err != nil || ur == nil {
				return
			}
			defer ur.Close()
			f, err := readURI(ur, reel.MaxVideoSize)
			if err != nil {
				e.showError(err)
				return
			}
			if _, err := e.session.SetVideo(context.Background(), f); err != nil {
				e.showError(err)
				return
			}
			e.sourcesChanged()
		}, e.window)
		fd.SetFilter(storage.NewExtensionFileFilter([]string{".mp4", ".webm", ".mov", ".mkv", ".avi"}))
		fd.Show()
	})
	clearButton := widget.NewButton("Clear Video", func() {
		if err := e.session.ClearVideo(); err != nil {
			e.showError(err)
		}
		e.sourcesChanged()
	})

	e.seek = widget.NewSlider(0, 1)
	e.seek.Step = 0.1
	e.seek.OnChangeEnded = func(float64) { e.renderPreview(context.Background()) }

	list := container.NewGridWrap(fyne.NewSize(240, 240), e.images)
	e.refreshVideoLabel()

	return container.NewVBox(
		widget.NewLabelWithStyle("Images", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		list,
		container.NewGridWithColumns(2, addButton, removeButton, upButton, downButton),
		widget.NewSeparator(),
		widget.NewLabelWithStyle("Video", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		e.video,
		container.NewGridWithColumns(2, loadButton, clearButton),
		e.seek,
	)
}

func (e *editor) settingsPanel() fyne.CanvasObject {
	rs := e.session.ReelSettings()
	ts := e.session.TextSettings()

	modes := widget.NewRadioGroup([]string{string(reel.ModeImages), string(reel.ModeVideo)}, nil)
	modes.Horizontal = true
	modes.SetSelected(string(e.mode))
	modes.OnChanged = func(v string) {
		e.mode = reel.Mode(v)
		e.restartPreview(context.Background())
	}

	durations := make([]string, len(reel.Durations))
	for i, d := range reel.Durations {
		durations[i] = d.String()
	}
	duration := selectOf(durations, rs.DurationPerImage.String(), func(v string) {
		d, err := time.ParseDuration(v)
		if err == nil {
			e.updateReel(func(s reel.ReelSettings) reel.ReelSettings { return s.WithDuration(d) })
		}
	})
	transition := selectOf(names(reel.Transitions), string(rs.Transition), func(v string) {
		e.updateReel(func(s reel.ReelSettings) reel.ReelSettings { return s.WithTransition(reel.Transition(v)) })
	})
	quality := selectOf([]string{string(reel.Quality1080p), string(reel.Quality4K)}, string(rs.Quality), func(v string) {
		e.updateReel(func(s reel.ReelSettings) reel.ReelSettings { return s.WithQuality(reel.Quality(v)) })
	})

	caption := widget.NewMultiLineEntry()
	caption.SetPlaceHolder("Type the quote...")
	caption.SetText(e.session.Caption())
	e.caption = caption
	caption.OnChanged = func(v string) {
		e.session.SetCaption(v)
		e.renderPreview(context.Background())
	}

	alignment := selectOf([]string{string(reel.AlignLeft), string(reel.AlignCenter), string(reel.AlignRight)}, string(ts.Alignment), func(v string) {
		e.updateText(func(s reel.TextSettings) reel.TextSettings { return s.WithAlignment(reel.Alignment(v)) })
	})
	position := selectOf([]string{string(reel.PositionTop), string(reel.PositionCenter), string(reel.PositionBottom)}, string(ts.Position), func(v string) {
		e.updateText(func(s reel.TextSettings) reel.TextSettings { return s.WithPosition(reel.Position(v)) })
	})
	family := selectOf(e.opts.Fonts, ts.FontFamily, func(v string) {
		e.updateText(func(s reel.TextSettings) reel.TextSettings { return s.WithFamily(v) })
	})

	color := widget.NewEntry()
	color.SetText(ts.TextColor)
	color.OnSubmitted = func(v string) {
		e.updateText(func(s reel.TextSettings) reel.TextSettings { return s.WithColor(strings.TrimSpace(v)) })
	}

	size := widget.NewSlider(reel.MinFontScale, reel.MaxFontScale)
	size.Step = 5
	size.SetValue(float64(ts.FontSizeScale))
	size.OnChangeEnded = func(v float64) {
		e.updateText(func(s reel.TextSettings) reel.TextSettings { return s.WithFontScale(int(math.Round(v))) })
	}

	offsetX := widget.NewSlider(-reel.MaxOffset, reel.MaxOffset)
	offsetX.SetValue(float64(ts.OffsetX))
	offsetY := widget.NewSlider(-reel.MaxOffset, reel.MaxOffset)
	offsetY.SetValue(float64(ts.OffsetY))
	onOffset := func(float64) {
		e.updateText(func(s reel.TextSettings) reel.TextSettings {
			return s.WithOffset(int(math.Round(offsetX.Value)), int(math.Round(offsetY.Value)))
		})
	}
	offsetX.OnChangeEnded = onOffset
	offsetY.OnChangeEnded = onOffset

	toggle := func(label string, on bool, flip func(reel.TextSettings) reel.TextSettings) *widget.Check {
		c := widget.NewCheck(label, nil)
		c.SetChecked(on)
		c.OnChanged = func(bool) { e.updateText(flip) }
		return c
	}
	flags := container.NewGridWithColumns(3,
		toggle("Show text", ts.ShowText, reel.TextSettings.ToggleText),
		toggle("Bold", ts.Bold, reel.TextSettings.ToggleBold),
		toggle("Italic", ts.Italic, reel.TextSettings.ToggleItalic),
		toggle("Underline", ts.Underline, reel.TextSettings.ToggleUnderline),
		toggle("Shadow", ts.Shadow, reel.TextSettings.ToggleShadow),
	)

	e.generateButton = widget.NewButton("Generate", e.generate)
	cancel := widget.NewButton("Cancel", func() {
		e.setStatus("Canceling...")
		go e.session.CancelGeneration()
	})

	form := widget.NewForm(
		widget.NewFormItem("Mode", modes),
		widget.NewFormItem("Duration", duration),
		widget.NewFormItem("Transition", transition),
		widget.NewFormItem("Quality", quality),
		widget.NewFormItem("Caption", caption),
		widget.NewFormItem("Align", alignment),
		widget.NewFormItem("Position", position),
		widget.NewFormItem("Font", family),
		widget.NewFormItem("Color", color),
		widget.NewFormItem("Size", size),
		widget.NewFormItem("Offset X", offsetX),
		widget.NewFormItem("Offset Y", offsetY),
	)
	return container.NewVBox(form, flags, container.NewGridWithColumns(2, e.generateButton, cancel))
}

func (e *editor) move(dir source.Direction) {
	if e.selected < 0 {
		return
	}
	if err := e.session.MoveImage(e.selected, dir); err != nil {
		return
	}
	e.selected += int(dir)
	e.images.Select(e.selected)
	e.sourcesChanged()
}

func (e *editor) updateReel(change func(reel.ReelSettings) reel.ReelSettings) {
	if err := e.session.UpdateReelSettings(change(e.session.ReelSettings())); err != nil {
		e.showError(err)
		return
	}
	e.restartPreview(context.Background())
}

func (e *editor) updateText(change func(reel.TextSettings) reel.TextSettings) {
	if err := e.session.UpdateTextSettings(change(e.session.TextSettings())); err != nil {
		e.showError(err)
		return
	}
	e.renderPreview(context.Background())
}

func (e *editor) generate() {
	if _, err := e.session.StartGeneration(context.Background(), e.mode); err != nil {
		if reel.IsValidation(err) {
			// the rejected start arrives as an error status
			e.setStatus("Error: " + message(err))
			return
		}
		e.showError(err)
		return
	}
	e.progress.SetValue(0)
	e.setStatus("Generating...")
}

// follow mirrors job status into the window until updates closes.
func (e *editor) follow(updates <-chan pipeline.Status) {
	for st := range updates {
		fyne.Do(func() { e.applyStatus(st) })
	}
}

func (e *editor) applyStatus(st pipeline.Status) {
	e.progress.SetValue(float64(st.Progress) / 100)
	if st.State == pipeline.StateRunning {
		e.generateButton.Disable()
	} else {
		e.generateButton.Enable()
	}
	switch st.State {
	case pipeline.StateRunning:
		e.setStatus(fmt.Sprintf("Generating... %d%%", st.Progress))
	case pipeline.StateComplete:
		e.setStatus("Saved " + st.Artifact)
		d := dialog.NewInformation("Reel ready", "Saved to "+st.Artifact, e.window)
		d.SetOnClosed(e.session.Reset)
		d.Show()
	case pipeline.StateError:
		e.setStatus("Error: " + st.Message())
		d := dialog.NewError(fmt.Errorf("%s", st.Message()), e.window)
		d.SetOnClosed(e.session.Reset)
		d.Show()
	case pipeline.StateIdle:
		e.setStatus("Ready")
	}
}

func (e *editor) sourcesChanged() {
	e.images.Refresh()
	e.refreshVideoLabel()
	e.restartPreview(context.Background())
}

func (e *editor) refreshVideoLabel() {
	v, ok := e.session.Video()
	if !ok {
		e.video.SetText("No video loaded")
		e.seek.Max = 1
		return
	}
	e.video.SetText(fmt.Sprintf("%s (%s)", v.Name, util.FormatDuration(v.Duration)))
	e.seek.Max = max(0.1, v.Duration.Seconds())
	e.seek.Refresh()
}

// restartPreview restarts the looping image preview for the current
// sources and settings. Video mode renders a single frame at the seek
// position instead.
func (e *editor) restartPreview(ctx context.Context) {
	e.stopPreview()
	e.renderPreview(ctx)

	n := len(e.session.Images())
	if e.mode != reel.ModeImages || n == 0 {
		return
	}
	total := e.session.ReelSettings().TotalDuration(n)
	count := max(1, int(total/previewTick))

	loopCtx, cancel := context.WithCancel(ctx)
	e.previewMu.Lock()
	e.previewCancel = cancel
	e.previewMu.Unlock()

	go timeline.Preview(loopCtx, count, previewTick, timeline.RealClock{}, func(idx int) {
		at := time.Duration(idx) * previewTick
		fyne.Do(func() {
			if loopCtx.Err() == nil {
				e.renderAt(at)
			}
		})
	})
}

func (e *editor) stopPreview() {
	e.previewMu.Lock()
	defer e.previewMu.Unlock()
	if e.previewCancel != nil {
		e.previewCancel()
		e.previewCancel = nil
	}
}

func (e *editor) renderPreview(ctx context.Context) {
	if e.mode == reel.ModeVideo {
		at := time.Duration(e.seek.Value * float64(time.Second))
		e.previewResult(e.session.RenderVideoPreview(ctx, e.surface, at))
		e.preview.Refresh()
		return
	}
	e.renderAt(0)
}

func (e *editor) renderAt(at time.Duration) {
	e.previewResult(e.session.RenderPreview(e.surface, at))
	e.preview.Refresh()
}

// previewResult shows preview failures in the status line. Playback problems
// never touch the job state, and a running job keeps the line for progress.
func (e *editor) previewResult(err error) {
	if err == nil {
		if e.previewBroken {
			e.previewBroken = false
			if e.session.Status().State == pipeline.StateIdle {
				e.setStatus("Ready")
			}
		}
		return
	}
	e.logger.Debug().Err(err).Msg("preview unavailable")
	e.previewBroken = true
	if e.session.Status().State != pipeline.StateRunning {
		e.setStatus("Preview unavailable: " + message(err))
	}
}

func (e *editor) setStatus(msg string) {
	e.status.SetText(msg)
}

func (e *editor) showError(err error) {
	msg := message(err)
	e.setStatus("Error: " + msg)
	dialog.ShowError(fmt.Errorf("%s", msg), e.window)
}

// message returns the user-facing text for err.
func message(err error) string {
	var v *reel.ValidationError
	if errors.As(err, &v) {
		return v.Msg
	}
	return err.Error()
}

func readURI(ur fyne.URIReadCloser, limit int64) (source.File, error) {
	data, err := io.ReadAll(io.LimitReader(ur, limit+1))
	if err != nil {
		return source.File{}, fmt.Errorf("read %s: %w", ur.URI().Name(), err)
	}
	return source.File{
		Name:     ur.URI().Name(),
		MIMEType: ur.URI().MimeType(),
		Data:     data,
		Size:     int64(len(data)),
	}, nil
}

// selectOf builds a select showing current before wiring onChanged, so the
// initial value does not echo back into the session.
func selectOf(options []string, current string, onChanged func(string)) *widget.Select {
	s := widget.NewSelect(options, nil)
	s.SetSelected(current)
	s.OnChanged = onChanged
	return s
}

func names[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}
