package reader

import (
	"errors"
	"testing"

	"github.com/justapithecus/tankreplay/store"
	"github.com/justapithecus/tankreplay/types"
)

var testMeta = types.SessionMeta{SessionID: "s-1", Source: "http://localhost:8000"}

// newMatchState builds a finished two-turn match: tank-1 and shell-1 at
// turn 0, shell-1 deleted at turn 1.
func newMatchState(t *testing.T) *store.State {
	t.Helper()
	state := store.New()
	err := state.Update(func(w *store.Writer) error {
		w.SetMap(types.MapDefinition{Header: "3 2", Rows: []string{"...", ".#."}})
		w.SetRoster(types.Roster{Participants: []types.Participant{{ID: "1", Name: "alice"}, {ID: "2", Name: "bob"}}})
		i := w.Append(map[string]types.ObjectState{
			"tank-1":  {"hp": 100.0, "team": "1"},
			"shell-1": {"vx": 1.0},
		}, map[string]any{"sound": "fire"})
		w.MarkCreated("tank-1", i)
		w.MarkCreated("shell-1", i)
		i = w.Append(map[string]types.ObjectState{"tank-1": {"hp": 90.0, "team": "1"}}, nil)
		w.MarkDeleted("shell-1", i)
		w.Finish(types.Outcome{Winners: []string{"1"}, Losers: []string{"2"}})
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	return state
}

func TestStateReader_Summary(t *testing.T) {
	r := NewStateReader(newMatchState(t), testMeta)
	s := r.Summary()

	if s.SessionID != "s-1" || s.Phase != "finished" || s.Timesteps != 2 {
		t.Errorf("summary = %+v", s)
	}
	if s.LiveObjects != 1 || s.ObjectsByKind["tank"] != 1 {
		t.Errorf("live objects = %d by kind %v", s.LiveObjects, s.ObjectsByKind)
	}
	if s.KnownObjects != 2 || s.DeletedObjects != 1 {
		t.Errorf("known = %d deleted = %d", s.KnownObjects, s.DeletedObjects)
	}
	if len(s.Winners) != 1 || s.Winners[0] != (PlayerView{ID: "1", Name: "alice"}) {
		t.Errorf("winners = %+v", s.Winners)
	}
	if len(s.Losers) != 1 || s.Losers[0].Name != "bob" {
		t.Errorf("losers = %+v", s.Losers)
	}
}

func TestStateReader_SummaryCollecting(t *testing.T) {
	r := NewStateReader(store.New(), testMeta)
	s := r.Summary()
	if s.Phase != "collecting" || s.Timesteps != 0 || s.Winners != nil {
		t.Errorf("summary = %+v", s)
	}
	if s.NextIndex != types.FirstChunkIndex {
		t.Errorf("NextIndex = %d, want %d", s.NextIndex, types.FirstChunkIndex)
	}
}

func TestStateReader_Timestep(t *testing.T) {
	r := NewStateReader(newMatchState(t), testMeta)

	v, err := r.Timestep(0)
	if err != nil {
		t.Fatalf("Timestep(0): %v", err)
	}
	if v.Total != 2 || len(v.Objects) != 2 {
		t.Fatalf("view = %+v", v)
	}
	// Objects are in identity order.
	if v.Objects[0].ID != "shell-1" || v.Objects[1].ID != "tank-1" || v.Objects[0].Kind != "shell" {
		t.Errorf("objects = %+v", v.Objects)
	}
	if v.Hints["sound"] != "fire" {
		t.Errorf("hints = %v", v.Hints)
	}

	latest, err := r.Timestep(-1)
	if err != nil || latest.Index != 1 {
		t.Errorf("Timestep(-1) = %+v, %v", latest, err)
	}

	for _, idx := range []int{2, -3} {
		if _, err := r.Timestep(idx); !errors.Is(err, ErrNotAvailable) {
			t.Errorf("Timestep(%d) error = %v, want ErrNotAvailable", idx, err)
		}
	}
}

func TestStateReader_Object(t *testing.T) {
	r := NewStateReader(newMatchState(t), testMeta)

	v, err := r.Object("shell-1", 0)
	if err != nil {
		t.Fatalf("Object: %v", err)
	}
	if !v.Present || v.State["vx"] != 1.0 || v.Created != 0 || v.Deleted == nil || *v.Deleted != 1 {
		t.Errorf("shell-1 at 0 = %+v", v)
	}

	v, err = r.Object("shell-1", -1)
	if err != nil {
		t.Fatalf("Object: %v", err)
	}
	if v.Present || v.Index != 1 {
		t.Errorf("shell-1 at latest = %+v, want absent at 1", v)
	}

	if _, err := r.Object("ghost", 0); !errors.Is(err, ErrNotAvailable) {
		t.Errorf("unknown object error = %v", err)
	}
	if _, err := r.Object("tank-1", 7); !errors.Is(err, ErrNotAvailable) {
		t.Errorf("out of range error = %v", err)
	}
}

func TestStateReader_MapAndRoster(t *testing.T) {
	r := NewStateReader(newMatchState(t), testMeta)

	m, err := r.Map()
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	if m.Cols != 3 || m.Rows != 2 || len(m.Grid) != 2 {
		t.Errorf("map = %+v", m)
	}

	roster, err := r.Roster()
	if err != nil {
		t.Fatalf("Roster: %v", err)
	}
	if len(roster.Participants) != 2 || roster.Participants[1].Name != "bob" {
		t.Errorf("roster = %+v", roster)
	}

	empty := NewStateReader(store.New(), testMeta)
	if _, err := empty.Map(); !errors.Is(err, ErrNotAvailable) {
		t.Errorf("Map() on empty state = %v", err)
	}
	if _, err := empty.Roster(); !errors.Is(err, ErrNotAvailable) {
		t.Errorf("Roster() on empty state = %v", err)
	}
}

func TestStateReader_MapBadHeader(t *testing.T) {
	state := store.New()
	_ = state.Update(func(w *store.Writer) error {
		w.SetMap(types.MapDefinition{Header: "wide"})
		return nil
	})
	if _, err := NewStateReader(state, testMeta).Map(); err == nil {
		t.Fatal("expected header parse error")
	}
}
