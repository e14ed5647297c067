package tui

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/justapithecus/tankreplay/cli/reader"
)

// WatchSource feeds the live watch view.
type WatchSource interface {
	// Summary returns the current session summary.
	Summary() *reader.SessionSummary
	// Changed returns a channel closed on the next state change.
	Changed() <-chan struct{}
}

type changedMsg struct{}

type sessionDoneMsg struct{}

// WatchModel shows ingestion progress while a session runs.
type WatchModel struct {
	src      WatchSource
	done     <-chan struct{}
	summary  *reader.SessionSummary
	spinner  spinner.Model
	ended    bool
	quitting bool
}

// NewWatchModel creates a watch model. done is closed when the session
// stops; the model then renders the final summary and exits.
func NewWatchModel(src WatchSource, done <-chan struct{}) WatchModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = WarningStyle
	return WatchModel{
		src:     src,
		done:    done,
		summary: src.Summary(),
		spinner: sp,
	}
}

// Init implements tea.Model.
func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitForChange())
}

// waitForChange blocks until the state changes or the session stops.
func (m WatchModel) waitForChange() tea.Cmd {
	changed := m.src.Changed()
	done := m.done
	return func() tea.Msg {
		select {
		case <-changed:
			return changedMsg{}
		case <-done:
			return sessionDoneMsg{}
		}
	}
}

// Update implements tea.Model.
func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case changedMsg:
		m.summary = m.src.Summary()
		return m, m.waitForChange()

	case sessionDoneMsg:
		m.summary = m.src.Summary()
		m.ended = true
		return m, tea.Quit

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}

	case spinner.TickMsg:
		if m.ended {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// Quitting reports whether the user left before the session stopped.
func (m WatchModel) Quitting() bool {
	return m.quitting
}

// View implements tea.Model.
func (m WatchModel) View() string {
	if m.quitting {
		return ""
	}
	s := m.summary

	var b strings.Builder
	title := TitleStyle.Render("Replay " + s.SessionID)
	phase := PhaseStyle(s.Phase).Render(s.Phase)
	if !m.ended && s.Phase == "collecting" {
		phase = m.spinner.View() + " " + phase
	}
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(LabelStyle.Render("Source:"))
	b.WriteString(ValueStyle.Render(s.Source))
	b.WriteString("\n")
	b.WriteString(LabelStyle.Render("Phase:"))
	b.WriteString(phase)
	b.WriteString("\n\n")

	attemptsColor := highlightColor
	if s.PendingAttempts > 0 {
		attemptsColor = warningColor
	}
	boxes := []string{
		renderStatBox("Chunks", s.ChunksIngested, highlightColor),
		renderStatBox("Timesteps", s.Timesteps, successColor),
		renderStatBox("Live objects", s.LiveObjects, primaryColor),
		renderStatBox(fmt.Sprintf("Attempts #%d", s.NextIndex), s.PendingAttempts, attemptsColor),
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, boxes...))
	b.WriteString("\n")

	if len(s.ObjectsByKind) > 0 {
		b.WriteString("\n")
		for _, kind := range sortedKeys(s.ObjectsByKind) {
			b.WriteString(LabelStyle.Render(kind + ":"))
			b.WriteString(ValueStyle.Render(fmt.Sprintf("%d", s.ObjectsByKind[kind])))
			b.WriteString("\n")
		}
	}

	if s.Phase == "finished" {
		b.WriteString("\n")
		b.WriteString(LabelStyle.Render("Winners:"))
		b.WriteString(SuccessStyle.Render(playerList(s.Winners)))
		b.WriteString("\n")
		b.WriteString(LabelStyle.Render("Losers:"))
		b.WriteString(ErrorStyle.Render(playerList(s.Losers)))
		b.WriteString("\n")
	}

	if !m.ended {
		b.WriteString(HelpStyle.Render("Press q or Ctrl+C to stop"))
	}
	return b.String()
}

func renderStatBox(label string, value int, color lipgloss.Color) string {
	boxStyle := StatBoxStyle.BorderForeground(color)

	valueStr := StatValueStyle.Foreground(color).Render(fmt.Sprintf("%d", value))
	labelStr := StatLabelStyle.Render(label)

	content := lipgloss.JoinVertical(lipgloss.Center, valueStr, labelStr)

	return boxStyle.Render(content)
}

func playerList(players []reader.PlayerView) string {
	if len(players) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(players))
	for _, p := range players {
		if p.Name != "" {
			parts = append(parts, fmt.Sprintf("%s (%s)", p.Name, p.ID))
		} else {
			parts = append(parts, p.ID)
		}
	}
	return strings.Join(parts, ", ")
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	return slices.Sorted(maps.Keys(m))
}

// RunWatchTUI runs the watch view until the session stops or the user
// quits. It reports whether the user quit first.
func RunWatchTUI(src WatchSource, done <-chan struct{}) (bool, error) {
	p := tea.NewProgram(NewWatchModel(src, done))
	final, err := p.Run()
	if err != nil {
		return false, err
	}
	m, ok := final.(WatchModel)
	return ok && m.Quitting(), nil
}
