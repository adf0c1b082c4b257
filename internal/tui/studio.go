package tui

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kikiluvv/quotereel/internal/pipeline"
	"github.com/kikiluvv/quotereel/internal/reel"
	"github.com/kikiluvv/quotereel/internal/source"
	"github.com/kikiluvv/quotereel/pkg/util"
)

const studioHelp = "up/down: select | [/]: move | x: remove | t: transition | -/=: duration | Q: quality | m: mode\n" +
	"c: caption | a: align | p: position | </>: size | b/i/u/s: style | T: text | HJKL: nudge | 0: center\n" +
	"g/enter: generate | esc: cancel | r: dismiss | q: quit"

// Studio is an interactive editor over a Session.
type Studio struct {
	ctx     context.Context
	session *pipeline.Session
	updates <-chan pipeline.Status
	bar     progress.Model
	caption textinput.Model

	mode    reel.Mode
	cursor  int
	editing bool
	status  pipeline.Status
	message string
	width   int
	height  int
}

// NewStudio creates a studio bound to session. The status subscription is
// owned by the caller.
func NewStudio(ctx context.Context, session *pipeline.Session, updates <-chan pipeline.Status) Studio {
	in := textinput.New()
	in.Placeholder = "Type the quote..."
	in.CharLimit = 280
	in.Width = 60

	mode := reel.ModeImages
	if _, ok := session.Video(); ok && len(session.Images()) == 0 {
		mode = reel.ModeVideo
	}

	return Studio{
		ctx:     ctx,
		session: session,
		updates: updates,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		caption: in,
		mode:    mode,
		status:  session.Status(),
	}
}

func (m Studio) Init() tea.Cmd {
	return waitStatus(m.updates)
}

func (m Studio) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.bar.Width = clampInt(msg.Width-16, 20, 80)
		return m, nil
	case statusMsg:
		m.status = pipeline.Status(msg)
		return m, waitStatus(m.updates)
	case canceledMsg:
		m.message = "generation canceled"
		return m, nil
	}

	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	if m.editing {
		return m.updateCaption(keyMsg)
	}
	return m.updateBrowse(keyMsg)
}

func (m Studio) updateCaption(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.session.SetCaption(m.caption.Value())
		m.caption.Blur()
		m.editing = false
		m.message = "caption updated"
		return m, nil
	case "esc":
		m.caption.Blur()
		m.editing = false
		return m, nil
	}
	var cmd tea.Cmd
	m.caption, cmd = m.caption.Update(msg)
	return m, cmd
}

func (m Studio) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	s := m.session
	rs := s.ReelSettings()
	ts := s.TextSettings()
	m.message = ""

	switch msg.String() {
	case "q", "ctrl+c":
		if m.status.State == pipeline.StateRunning {
			s.CancelGeneration()
		}
		return m, tea.Quit

	case "up", "k":
		m.cursor = max(0, m.cursor-1)
	case "down", "j":
		m.cursor = min(max(0, len(s.Images())-1), m.cursor+1)
	case "[":
		if err := s.MoveImage(m.cursor, source.Up); err == nil {
			m.cursor--
		}
	case "]":
		if err := s.MoveImage(m.cursor, source.Down); err == nil {
			m.cursor++
		}
	case "x", "delete":
		m.report(s.RemoveImage(m.cursor))
		m.cursor = min(m.cursor, max(0, len(s.Images())-1))

	case "t":
		m.report(s.UpdateReelSettings(rs.WithTransition(cycle(reel.Transitions, rs.Transition))))
	case "-", "=":
		i := slices.Index(reel.Durations, rs.DurationPerImage)
		if msg.String() == "-" {
			i = max(0, i-1)
		} else {
			i = min(len(reel.Durations)-1, i+1)
		}
		m.report(s.UpdateReelSettings(rs.WithDuration(reel.Durations[i])))
	case "Q":
		next := reel.Quality4K
		if rs.Quality == reel.Quality4K {
			next = reel.Quality1080p
		}
		m.report(s.UpdateReelSettings(rs.WithQuality(next)))
	case "m":
		if m.mode == reel.ModeImages {
			m.mode = reel.ModeVideo
		} else {
			m.mode = reel.ModeImages
		}

	case "c":
		m.editing = true
		m.caption.SetValue(s.Caption())
		return m, m.caption.Focus()
	case "a":
		m.report(s.UpdateTextSettings(ts.WithAlignment(cycle([]reel.Alignment{reel.AlignLeft, reel.AlignCenter, reel.AlignRight}, ts.Alignment))))
	case "p":
		m.report(s.UpdateTextSettings(ts.WithPosition(cycle([]reel.Position{reel.PositionTop, reel.PositionCenter, reel.PositionBottom}, ts.Position))))
	case "<":
		m.report(s.UpdateTextSettings(ts.WithFontScale(ts.FontSizeScale - 10)))
	case ">":
		m.report(s.UpdateTextSettings(ts.WithFontScale(ts.FontSizeScale + 10)))
	case "b":
		m.report(s.UpdateTextSettings(ts.ToggleBold()))
	case "i":
		m.report(s.UpdateTextSettings(ts.ToggleItalic()))
	case "u":
		m.report(s.UpdateTextSettings(ts.ToggleUnderline()))
	case "s":
		m.report(s.UpdateTextSettings(ts.ToggleShadow()))
	case "T":
		m.report(s.UpdateTextSettings(ts.ToggleText()))
	case "H":
		m.report(s.UpdateTextSettings(ts.NudgeOffset(-5, 0)))
	case "L":
		m.report(s.UpdateTextSettings(ts.NudgeOffset(5, 0)))
	case "K":
		m.report(s.UpdateTextSettings(ts.NudgeOffset(0, -5)))
	case "J":
		m.report(s.UpdateTextSettings(ts.NudgeOffset(0, 5)))
	case "0":
		m.report(s.UpdateTextSettings(ts.ResetOffset()))

	case "g", "enter":
		if _, err := s.StartGeneration(m.ctx, m.mode); err != nil {
			m.report(err)
		}
		m.status = s.Status()
	case "esc":
		if m.status.State == pipeline.StateRunning {
			m.message = "canceling..."
			return m, cancelCmd(s.CancelGeneration)
		}
	case "r":
		s.Reset()
		m.status = s.Status()
	}
	return m, nil
}

func (m *Studio) report(err error) {
	if err == nil {
		return
	}
	var v *reel.ValidationError
	if errors.As(err, &v) {
		m.message = "error: " + v.Msg
		return
	}
	m.message = "error: " + err.Error()
}

func (m Studio) View() string {
	width := m.width
	if width <= 0 {
		width = 100
	}

	header := titleStyle.Render("quotereel studio") + "  " +
		mutedStyle.Render(fmt.Sprintf("mode: %s", m.mode)) + "\n" +
		mutedStyle.Render(studioHelp)

	left := panelStyle.Width(clampInt(width/2-2, 30, 60)).Render(m.renderSources())
	right := panelStyle.Width(clampInt(width/2-2, 30, 60)).Render(m.renderSettings())
	body := lipgloss.JoinHorizontal(lipgloss.Top, left, right)

	caption := "Caption: "
	if m.editing {
		caption += m.caption.View()
	} else if c := m.session.Caption(); c != "" {
		caption += c
	} else {
		caption += mutedStyle.Render("(none)")
	}

	status := renderStatus(m.status, m.bar)
	msg := ""
	if m.message != "" {
		style := okStyle
		if strings.HasPrefix(m.message, "error:") {
			style = errorStyle
		}
		msg = style.Render(m.message)
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, body, caption, status, msg)
}

func (m Studio) renderSources() string {
	images := m.session.Images()
	lines := []string{fmt.Sprintf("Images (%d/%d)", len(images), reel.MaxImages)}
	if len(images) == 0 {
		lines = append(lines, mutedStyle.Render("No images. Pass files to `quotereel studio`."))
	}
	for i, img := range images {
		line := fmt.Sprintf("%2d. %s  %dx%d", i+1, img.Name, img.Width, img.Height)
		if i == m.cursor {
			line = selStyle.Render(line)
		}
		lines = append(lines, line)
	}

	lines = append(lines, "", "Video")
	if v, ok := m.session.Video(); ok {
		lines = append(lines, fmt.Sprintf("%s  %s  %dx%d", v.Name, util.FormatDuration(v.Duration), v.Width, v.Height))
	} else {
		lines = append(lines, mutedStyle.Render("none"))
	}
	return strings.Join(lines, "\n")
}

func (m Studio) renderSettings() string {
	rs := m.session.ReelSettings()
	ts := m.session.TextSettings()
	preset, _ := reel.PresetFor(rs.Quality)

	lines := []string{
		"Reel",
		kv("duration", rs.DurationPerImage.String()),
		kv("transition", string(rs.Transition)),
		kv("quality", fmt.Sprintf("%s (%dx%d, %s)", rs.Quality, preset.Width, preset.Height, preset.BitrateLabel())),
	}
	if n := len(m.session.Images()); n > 0 {
		lines = append(lines, kv("total", util.FormatDuration(rs.TotalDuration(n))))
	}
	lines = append(lines,
		"",
		"Text",
		kv("show", yesNo(ts.ShowText)),
		kv("align", string(ts.Alignment)+" / "+string(ts.Position)),
		kv("size", fmt.Sprintf("%d%%", ts.FontSizeScale)),
		kv("font", ts.FontFamily+" "+ts.TextColor),
		kv("style", styleFlags(ts)),
		kv("offset", fmt.Sprintf("%+d%%, %+d%%", ts.OffsetX, ts.OffsetY)),
	)
	return strings.Join(lines, "\n")
}

func styleFlags(ts reel.TextSettings) string {
	var flags []string
	if ts.Bold {
		flags = append(flags, "bold")
	}
	if ts.Italic {
		flags = append(flags, "italic")
	}
	if ts.Underline {
		flags = append(flags, "underline")
	}
	if ts.Shadow {
		flags = append(flags, "shadow")
	}
	if len(flags) == 0 {
		return "plain"
	}
	return strings.Join(flags, ", ")
}

func cycle[T comparable](values []T, cur T) T {
	i := slices.Index(values, cur)
	return values[(i+1)%len(values)]
}

func kv(k, v string) string {
	return mutedStyle.Render(fmt.Sprintf("%-11s", k)) + v
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

// RunStudio runs the studio until the user quits.
func RunStudio(ctx context.Context, session *pipeline.Session) error {
	updates, unsubscribe := session.Subscribe()
	defer unsubscribe()

	p := tea.NewProgram(NewStudio(ctx, session, updates), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if err != nil && errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// RunProgress shows a progress bar for the running job and returns its final
// status.
func RunProgress(ctx context.Context, session *pipeline.Session) (pipeline.Status, error) {
	updates, unsubscribe := session.Subscribe()
	defer unsubscribe()

	p := tea.NewProgram(NewProgressModel(updates, session.CancelGeneration), tea.WithContext(ctx))
	final, err := p.Run()
	if err != nil && !(errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil) {
		return session.Status(), err
	}
	if pm, ok := final.(ProgressModel); ok && pm.Status().State != pipeline.StateRunning {
		return pm.Status(), nil
	}
	return session.Wait(context.WithoutCancel(ctx))
}
