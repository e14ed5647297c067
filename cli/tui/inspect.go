package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/justapithecus/tankreplay/cli/reader"
)

// InspectModel is a Bubble Tea model for inspect views. Content taller
// than the terminal scrolls.
type InspectModel struct {
	viewType string
	data     any
	viewport viewport.Model
	ready    bool
	quitting bool
}

// NewInspectModel creates a new inspect model.
func NewInspectModel(viewType string, data any) InspectModel {
	return InspectModel{
		viewType: viewType,
		data:     data,
	}
}

// Init implements tea.Model.
func (m InspectModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m InspectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		height := max(msg.Height-2, 1)
		if !m.ready {
			m.viewport = viewport.New(msg.Width, height)
			m.viewport.SetContent(m.content())
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = height
		}
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m InspectModel) View() string {
	if m.quitting {
		return ""
	}
	help := HelpStyle.Render("↑/↓ scroll • q quit")
	if !m.ready {
		return m.content() + "\n" + help
	}
	return m.viewport.View() + "\n" + help
}

func (m InspectModel) content() string {
	switch m.viewType {
	case ViewInspectTimestep:
		return m.renderTimestep()
	case ViewInspectObject:
		return m.renderObject()
	case ViewInspectMap:
		return m.renderMap()
	case ViewInspectRoster:
		return m.renderRoster()
	default:
		return fmt.Sprintf("Unknown view type: %s", m.viewType)
	}
}

func (m InspectModel) renderTimestep() string {
	data, ok := m.data.(*reader.TimestepView)
	if !ok {
		return "Invalid data type for inspect_timestep"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render(fmt.Sprintf("Timestep %d of %d", data.Index, data.Total)))
	b.WriteString("\n\n")

	if len(data.Objects) == 0 {
		b.WriteString(HelpStyle.Render("No objects on this turn."))
		b.WriteString("\n")
	}
	for _, obj := range data.Objects {
		b.WriteString(LabelStyle.Render(obj.ID))
		b.WriteString(ValueStyle.Render(reader.FormatState(obj.State)))
		b.WriteString("\n")
	}

	if len(data.Hints) > 0 {
		b.WriteString("\n")
		b.WriteString(TitleStyle.Render("Hints"))
		b.WriteString("\n\n")
		for _, k := range sortedKeys(data.Hints) {
			b.WriteString(LabelStyle.Render(k + ":"))
			b.WriteString(ValueStyle.Render(reader.FormatValue(data.Hints[k])))
			b.WriteString("\n")
		}
	}

	return b.String()
}

func (m InspectModel) renderObject() string {
	data, ok := m.data.(*reader.ObjectView)
	if !ok {
		return "Invalid data type for inspect_object"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Object " + data.ID))
	b.WriteString("\n\n")

	status := SuccessStyle.Render("present")
	if !data.Present {
		status = ErrorStyle.Render("absent")
	}
	deleted := "-"
	if data.Deleted != nil {
		deleted = fmt.Sprintf("%d", *data.Deleted)
	}
	rows := [][]string{
		{"Kind", data.Kind},
		{"Timestep", fmt.Sprintf("%d", data.Index)},
		{"Status", status},
		{"Created", fmt.Sprintf("%d", data.Created)},
		{"Deleted", deleted},
	}
	for _, row := range rows {
		b.WriteString(LabelStyle.Render(row[0] + ":"))
		b.WriteString(ValueStyle.Render(row[1]))
		b.WriteString("\n")
	}

	if len(data.State) > 0 {
		b.WriteString("\n")
		for _, k := range sortedKeys(data.State) {
			b.WriteString(LabelStyle.Render(k + ":"))
			b.WriteString(ValueStyle.Render(reader.FormatValue(data.State[k])))
			b.WriteString("\n")
		}
	}

	return b.String()
}

func (m InspectModel) renderMap() string {
	data, ok := m.data.(*reader.MapView)
	if !ok {
		return "Invalid data type for inspect_map"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render(fmt.Sprintf("Map %d×%d", data.Cols, data.Rows)))
	b.WriteString("\n\n")
	b.WriteString(BoxStyle.Render(RenderGrid(data.Grid)))
	return b.String()
}

func (m InspectModel) renderRoster() string {
	data, ok := m.data.(*reader.RosterView)
	if !ok {
		return "Invalid data type for inspect_roster"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Roster"))
	b.WriteString("\n\n")
	for _, p := range data.Participants {
		b.WriteString(LabelStyle.Render(p.ID))
		b.WriteString(ValueStyle.Render(p.Name))
		b.WriteString("\n")
	}
	return b.String()
}

// keyMap defines key bindings.
type keyMap struct {
	Quit key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// RunInspectTUI runs the inspect TUI.
func RunInspectTUI(viewType string, data any) error {
	model := NewInspectModel(viewType, data)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderInspectStatic renders inspect data without full TUI (for fallback).
func RenderInspectStatic(viewType string, data any) string {
	model := NewInspectModel(viewType, data)
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
