package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kikiluvv/quotereel/internal/pipeline"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	panelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	selStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("230")).Background(lipgloss.Color("62")).Bold(true)
)

// statusMsg carries a job snapshot into the update loop.
type statusMsg pipeline.Status

// canceledMsg reports that a cancel request has unwound.
type canceledMsg struct{}

// waitStatus blocks on the next snapshot from ch.
func waitStatus(ch <-chan pipeline.Status) tea.Cmd {
	return func() tea.Msg {
		st, ok := <-ch
		if !ok {
			return nil
		}
		return statusMsg(st)
	}
}

func cancelCmd(cancel func()) tea.Cmd {
	return func() tea.Msg {
		cancel()
		return canceledMsg{}
	}
}

// ProgressModel follows one running job until it ends. Esc or ctrl+c cancels.
type ProgressModel struct {
	updates <-chan pipeline.Status
	cancel  func()
	bar     progress.Model

	status    pipeline.Status
	canceling bool
	width     int
}

// NewProgressModel creates a progress view fed by updates. cancel is called
// once when the user aborts.
func NewProgressModel(updates <-chan pipeline.Status, cancel func()) ProgressModel {
	return ProgressModel{
		updates: updates,
		cancel:  cancel,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		status:  pipeline.Status{State: pipeline.StateRunning},
	}
}

// Status is the last snapshot seen.
func (m ProgressModel) Status() pipeline.Status {
	return m.status
}

func (m ProgressModel) Init() tea.Cmd {
	return waitStatus(m.updates)
}

func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = clampInt(msg.Width-12, 20, 80)
		return m, nil

	case statusMsg:
		m.status = pipeline.Status(msg)
		if m.status.State != pipeline.StateRunning {
			return m, tea.Quit
		}
		return m, waitStatus(m.updates)

	case canceledMsg:
		return m, tea.Quit

	case tea.KeyMsg:
		switch msg.String() {
		case "esc", "ctrl+c", "q":
			if m.canceling {
				return m, nil
			}
			m.canceling = true
			return m, cancelCmd(m.cancel)
		}
	}
	return m, nil
}

func (m ProgressModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Generating reel") + "\n\n")
	b.WriteString(renderStatus(m.status, m.bar))
	if m.canceling && m.status.State == pipeline.StateRunning {
		b.WriteString("\n" + mutedStyle.Render("canceling..."))
	} else if m.status.State == pipeline.StateRunning {
		b.WriteString("\n" + mutedStyle.Render("esc: cancel"))
	}
	return b.String() + "\n"
}

// renderStatus draws the job state line shared by the studio and the
// standalone progress view.
func renderStatus(st pipeline.Status, bar progress.Model) string {
	switch st.State {
	case pipeline.StateRunning:
		frames := ""
		if st.Total > 0 {
			frames = mutedStyle.Render(fmt.Sprintf("  frame %d/%d", st.Frames, st.Total))
		}
		return bar.ViewAs(float64(st.Progress)/100) + frames
	case pipeline.StateComplete:
		return okStyle.Render("Saved "+st.Artifact) + "\n" + bar.ViewAs(1)
	case pipeline.StateError:
		return errorStyle.Render("Error: " + st.Message())
	}
	return mutedStyle.Render("idle")
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
