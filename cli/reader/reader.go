package reader

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/justapithecus/tankreplay/store"
	"github.com/justapithecus/tankreplay/types"
)

// ErrNotAvailable is returned for views whose data has not been ingested.
var ErrNotAvailable = errors.New("not available")

// Reader abstracts read-only access to one session.
type Reader interface {
	Summary() *SessionSummary
	Timestep(index int) (*TimestepView, error)
	Object(id string, index int) (*ObjectView, error)
	Map() (*MapView, error)
	Roster() (*RosterView, error)
}

// StateReader serves views from an ingestion state.
type StateReader struct {
	state *store.State
	meta  types.SessionMeta
}

// NewStateReader creates a reader over state.
func NewStateReader(state *store.State, meta types.SessionMeta) *StateReader {
	return &StateReader{state: state, meta: meta}
}

// Summary returns the session summary.
func (r *StateReader) Summary() *SessionSummary {
	p := r.state.Progress()
	s := &SessionSummary{
		SessionID:       r.meta.SessionID,
		Source:          r.meta.Source,
		Phase:           p.Phase.String(),
		NextIndex:       p.NextIndex,
		ChunksIngested:  p.ChunksIngested,
		Timesteps:       p.Timesteps,
		ObjectsByKind:   map[string]int{},
		KnownObjects:    len(r.state.CreationTable()),
		DeletedObjects:  len(r.state.DeletionTable()),
		PendingAttempts: p.Attempts[p.NextIndex],
	}
	if ts, ok := r.state.Latest(); ok {
		s.LiveObjects = len(ts.Objects)
		for id := range ts.Objects {
			s.ObjectsByKind[types.ObjectKind(id)]++
		}
	}
	if o, ok := r.state.Outcome(); ok {
		roster, _ := r.state.Roster()
		s.Winners = players(o.Winners, roster)
		s.Losers = players(o.Losers, roster)
	}
	return s
}

// Timestep returns the timestep at index. Negative indexes count back
// from the latest timestep.
func (r *StateReader) Timestep(index int) (*TimestepView, error) {
	total := r.state.Len()
	if index < 0 {
		index += total
	}
	ts, ok := r.state.Timestep(index)
	if !ok {
		return nil, fmt.Errorf("timestep %d: %w (history has %d)", index, ErrNotAvailable, total)
	}

	v := &TimestepView{
		Index:   ts.Index,
		Total:   total,
		Objects: make([]ObjectEntry, 0, len(ts.Objects)),
		Hints:   ts.Hints,
	}
	for _, id := range slices.Sorted(maps.Keys(ts.Objects)) {
		v.Objects = append(v.Objects, ObjectEntry{ID: id, Kind: types.ObjectKind(id), State: ts.Objects[id]})
	}
	return v, nil
}

// Object returns one object at index, which may be negative as for
// Timestep. An object outside its lifetime is reported with Present false.
func (r *StateReader) Object(id string, index int) (*ObjectView, error) {
	lc, ok := r.state.Lifecycle(id)
	if !ok {
		return nil, fmt.Errorf("object %q: %w", id, ErrNotAvailable)
	}
	total := r.state.Len()
	if index < 0 {
		index += total
	}
	ts, ok := r.state.Timestep(index)
	if !ok {
		return nil, fmt.Errorf("timestep %d: %w (history has %d)", index, ErrNotAvailable, total)
	}

	v := &ObjectView{
		ID:      id,
		Kind:    types.ObjectKind(id),
		Index:   index,
		Created: lc.Created,
		Deleted: lc.Deleted,
	}
	v.State, v.Present = ts.Object(id)
	return v, nil
}

// Map returns the map definition.
func (r *StateReader) Map() (*MapView, error) {
	m, ok := r.state.Map()
	if !ok {
		return nil, fmt.Errorf("map: %w", ErrNotAvailable)
	}
	cols, rows, err := m.Dimensions()
	if err != nil {
		return nil, err
	}
	return &MapView{Header: m.Header, Cols: cols, Rows: rows, Grid: m.Rows}, nil
}

// Roster returns the participant list.
func (r *StateReader) Roster() (*RosterView, error) {
	roster, ok := r.state.Roster()
	if !ok {
		return nil, fmt.Errorf("roster: %w", ErrNotAvailable)
	}
	v := &RosterView{Participants: make([]PlayerView, 0, len(roster.Participants))}
	for _, p := range roster.Participants {
		v.Participants = append(v.Participants, PlayerView(p))
	}
	return v, nil
}

func players(ids []string, roster types.Roster) []PlayerView {
	out := make([]PlayerView, 0, len(ids))
	for _, id := range ids {
		out = append(out, PlayerView{ID: id, Name: roster.Name(id)})
	}
	return out
}

var _ Reader = (*StateReader)(nil)
