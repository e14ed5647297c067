// Package store holds the in-memory ingestion state of one session.
//
// State is an explicit instance passed to the pipeline and to readers.
// All mutation goes through State.Update, which hands a Writer to a single
// caller at a time. Readers use the State methods and never see a
// half-applied chunk.
package store

import (
	"maps"
	"slices"
	"sync"

	"github.com/justapithecus/tankreplay/types"
)

// State is the ingestion store: chunk archive, canonical history,
// lifecycle tables, map and roster metadata, and match outcome.
type State struct {
	mu sync.RWMutex

	phase     types.Phase
	nextIndex int
	attempts  map[int]int
	archive   map[int]string

	history []*types.Timestep
	created map[string]int
	deleted map[string]int

	mapDef  *types.MapDefinition
	roster  *types.Roster
	outcome *types.Outcome

	// changed is closed and replaced after every update that mutated state.
	changed chan struct{}
}

// New creates an empty state in PhaseCollecting, requesting the first chunk.
func New() *State {
	return &State{
		phase:     types.PhaseCollecting,
		nextIndex: types.FirstChunkIndex,
		attempts:  make(map[int]int),
		archive:   make(map[int]string),
		created:   make(map[string]int),
		deleted:   make(map[string]int),
		changed:   make(chan struct{}),
	}
}

// Update runs fn with exclusive write access.
//
// fn must validate before it mutates: a non-nil error does not roll back
// changes already made through the Writer.
func (s *State) Update(fn func(w *Writer) error) error {
	notify, err := s.update(fn)
	if notify != nil {
		close(notify)
	}
	return err
}

func (s *State) update(fn func(w *Writer) error) (chan struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := &Writer{s: s}
	err := fn(w)
	w.s = nil
	if !w.dirty {
		return nil, err
	}
	notify := s.changed
	s.changed = make(chan struct{})
	return notify, err
}

// Changed returns a channel closed on the next update that mutates state.
func (s *State) Changed() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.changed
}

// Phase returns the current lifecycle phase.
func (s *State) Phase() types.Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// Finished reports whether a termination record has been ingested.
func (s *State) Finished() bool {
	return s.Phase() == types.PhaseFinished
}

// Len returns the canonical history length.
func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history)
}

// Timestep returns the timestep at index i, or false for any i outside
// [0, Len()). The returned value is a copy; attribute bags are shared and
// must be treated as read-only.
func (s *State) Timestep(i int) (*types.Timestep, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i < 0 || i >= len(s.history) {
		return nil, false
	}
	return s.history[i].Clone(), true
}

// Latest returns the most recent timestep.
func (s *State) Latest() (*types.Timestep, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.history) == 0 {
		return nil, false
	}
	return s.history[len(s.history)-1].Clone(), true
}

// Map returns the map definition once one has been ingested.
func (s *State) Map() (types.MapDefinition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.mapDef == nil {
		return types.MapDefinition{}, false
	}
	return types.MapDefinition{Header: s.mapDef.Header, Rows: slices.Clone(s.mapDef.Rows)}, true
}

// Roster returns the roster once one has been ingested.
func (s *State) Roster() (types.Roster, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.roster == nil {
		return types.Roster{}, false
	}
	return types.Roster{
		Participants: slices.Clone(s.roster.Participants),
		Raw:          slices.Clone(s.roster.Raw),
	}, true
}

// Outcome returns the match outcome once finished.
func (s *State) Outcome() (types.Outcome, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.outcome == nil {
		return types.Outcome{}, false
	}
	return types.Outcome{
		Winners: slices.Clone(s.outcome.Winners),
		Losers:  slices.Clone(s.outcome.Losers),
	}, true
}

// CreatedAt returns the first timestep index at which id appeared.
func (s *State) CreatedAt(id string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.created[id]
	return i, ok
}

// DeletedAt returns the timestep index at which id was deleted.
func (s *State) DeletedAt(id string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.deleted[id]
	return i, ok
}

// CreationTable returns a copy of the identity to creation index table.
func (s *State) CreationTable() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.created)
}

// DeletionTable returns a copy of the identity to deletion index table.
func (s *State) DeletionTable() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.deleted)
}

// Lifecycle returns the bookkeeping for one identity.
func (s *State) Lifecycle(id string) (types.Lifecycle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lifecycleLocked(id)
}

// Lifecycles returns every known identity ordered by creation index, then id.
// Identities deleted without ever appearing are included with their
// deletion index as creation.
func (s *State) Lifecycles() []types.Lifecycle {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make(map[string]struct{}, len(s.created))
	for id := range s.created {
		ids[id] = struct{}{}
	}
	for id := range s.deleted {
		ids[id] = struct{}{}
	}

	out := make([]types.Lifecycle, 0, len(ids))
	for id := range ids {
		lc, _ := s.lifecycleLocked(id)
		out = append(out, lc)
	}
	slices.SortFunc(out, func(a, b types.Lifecycle) int {
		if a.Created != b.Created {
			return a.Created - b.Created
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out
}

func (s *State) lifecycleLocked(id string) (types.Lifecycle, bool) {
	created, hasCreated := s.created[id]
	deleted, hasDeleted := s.deleted[id]
	if !hasCreated && !hasDeleted {
		return types.Lifecycle{}, false
	}
	lc := types.Lifecycle{ID: id, Created: created}
	if !hasCreated {
		lc.Created = deleted
	}
	if hasDeleted {
		d := deleted
		lc.Deleted = &d
	}
	return lc, true
}

// Chunk returns the archived raw content of a completed chunk.
func (s *State) Chunk(index int) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.archive[index]
	return c, ok
}

// Progress returns the status view for progress display.
func (s *State) Progress() types.Progress {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return types.Progress{
		Phase:           s.phase,
		NextIndex:       s.nextIndex,
		ContiguousIndex: s.nextIndex - 1,
		Attempts:        maps.Clone(s.attempts),
		ChunksIngested:  len(s.archive),
		Timesteps:       len(s.history),
		Finished:        s.phase == types.PhaseFinished,
	}
}

// NextIndex returns the chunk index currently being requested.
func (s *State) NextIndex() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextIndex
}

// Archived reports whether the chunk at index was already ingested.
func (s *State) Archived(index int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.archive[index]
	return ok
}

// Attempts returns the failed or incomplete poll count for index.
func (s *State) Attempts(index int) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.attempts[index]
}
