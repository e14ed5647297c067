package tui

import (
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/justapithecus/tankreplay/cli/reader"
	"github.com/justapithecus/tankreplay/types"
)

func TestIsTUISupported(t *testing.T) {
	tests := []struct {
		viewType string
		want     bool
	}{
		{ViewInspectTimestep, true},
		{ViewInspectObject, true},
		{ViewInspectMap, true},
		{ViewInspectRoster, true},
		{ViewWatch, true},

		{"stream", false},
		{"serve", false},
		{"version", false},
		{"inspect_unknown", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.viewType, func(t *testing.T) {
			if got := IsTUISupported(tt.viewType); got != tt.want {
				t.Errorf("IsTUISupported(%q) = %v, want %v", tt.viewType, got, tt.want)
			}
		})
	}
}

func TestRun_UnsupportedViewType(t *testing.T) {
	if err := Run("stream", nil); err == nil {
		t.Error("expected error for unsupported view type")
	}
	if err := Run(ViewWatch, nil); err == nil {
		t.Error("expected error for static run of the live watch view")
	}
}

func TestInspectModel_Views(t *testing.T) {
	deleted := 4
	tests := []struct {
		viewType string
		data     any
		want     []string
	}{
		{
			ViewInspectTimestep,
			&reader.TimestepView{
				Index: 3, Total: 10,
				Objects: []reader.ObjectEntry{{ID: "tank-1", Kind: "tank", State: types.ObjectState{"hp": 90.0}}},
				Hints:   map[string]any{"sound": "fire"},
			},
			[]string{"Timestep 3 of 10", "tank-1", "hp=90", "sound"},
		},
		{
			ViewInspectObject,
			&reader.ObjectView{ID: "shell-2", Kind: "shell", Index: 5, Created: 1, Deleted: &deleted},
			[]string{"Object shell-2", "absent", "4"},
		},
		{
			ViewInspectMap,
			&reader.MapView{Cols: 3, Rows: 1, Grid: []string{".#."}},
			[]string{"Map 3×1", "#"},
		},
		{
			ViewInspectRoster,
			&reader.RosterView{Participants: []reader.PlayerView{{ID: "1", Name: "alice"}}},
			[]string{"Roster", "alice"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.viewType, func(t *testing.T) {
			out := RenderInspectStatic(tt.viewType, tt.data)
			for _, want := range tt.want {
				if !strings.Contains(out, want) {
					t.Errorf("view missing %q:\n%s", want, out)
				}
			}
		})
	}
}

func TestInspectModel_WrongDataType(t *testing.T) {
	out := RenderInspectStatic(ViewInspectMap, &reader.RosterView{})
	if !strings.Contains(out, "Invalid data type") {
		t.Errorf("expected invalid data message, got:\n%s", out)
	}
}

func TestInspectModel_QuitKey(t *testing.T) {
	m := NewInspectModel(ViewInspectRoster, &reader.RosterView{})
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if v := next.(InspectModel).View(); v != "" {
		t.Errorf("View after quit = %q, want empty", v)
	}
}

// fakeWatchSource serves a summary that tests can replace.
type fakeWatchSource struct {
	mu      sync.Mutex
	summary reader.SessionSummary
	changed chan struct{}
}

func newFakeWatchSource() *fakeWatchSource {
	return &fakeWatchSource{
		summary: reader.SessionSummary{SessionID: "s-1", Source: "http://h/", Phase: "collecting", NextIndex: 1},
		changed: make(chan struct{}),
	}
}

func (f *fakeWatchSource) Summary() *reader.SessionSummary {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.summary
	return &s
}

func (f *fakeWatchSource) Changed() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.changed
}

func (f *fakeWatchSource) set(s reader.SessionSummary) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summary = s
	close(f.changed)
	f.changed = make(chan struct{})
}

func TestWatchModel_FollowsChanges(t *testing.T) {
	src := newFakeWatchSource()
	done := make(chan struct{})
	m := NewWatchModel(src, done)

	wait := m.waitForChange()
	src.set(reader.SessionSummary{SessionID: "s-1", Phase: "collecting", ChunksIngested: 2, Timesteps: 5, NextIndex: 3})
	msg := wait()
	if _, ok := msg.(changedMsg); !ok {
		t.Fatalf("msg = %T, want changedMsg", msg)
	}

	next, cmd := m.Update(msg)
	m = next.(WatchModel)
	if cmd == nil {
		t.Error("expected another wait command")
	}
	if m.summary.Timesteps != 5 {
		t.Errorf("summary not refreshed: %+v", m.summary)
	}
	if !strings.Contains(m.View(), "Timesteps") {
		t.Errorf("view missing stat boxes:\n%s", m.View())
	}
}

func TestWatchModel_SessionDone(t *testing.T) {
	src := newFakeWatchSource()
	done := make(chan struct{})
	m := NewWatchModel(src, done)

	src.mu.Lock()
	src.summary = reader.SessionSummary{
		SessionID: "s-1",
		Phase:     "finished",
		Winners:   []reader.PlayerView{{ID: "1", Name: "alice"}},
	}
	src.mu.Unlock()
	close(done)

	msg := m.waitForChange()()
	if _, ok := msg.(sessionDoneMsg); !ok {
		t.Fatalf("msg = %T, want sessionDoneMsg", msg)
	}
	next, cmd := m.Update(msg)
	m = next.(WatchModel)
	if cmd == nil || !m.ended || m.Quitting() {
		t.Errorf("ended = %v quitting = %v", m.ended, m.Quitting())
	}
	if view := m.View(); !strings.Contains(view, "alice (1)") {
		t.Errorf("final view missing winner:\n%s", view)
	}
}

func TestWatchModel_UserQuit(t *testing.T) {
	m := NewWatchModel(newFakeWatchSource(), make(chan struct{}))
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if !next.(WatchModel).Quitting() {
		t.Error("expected Quitting() after ctrl+c")
	}
}

func TestRenderGrid(t *testing.T) {
	out := RenderGrid([]string{"#.", ".#"})
	if strings.Count(out, "#") != 2 || strings.Count(out, "\n") != 1 {
		t.Errorf("RenderGrid = %q", out)
	}
}
