package store

import (
	"slices"

	"github.com/justapithecus/tankreplay/types"
)

// Writer is the mutation handle passed to State.Update.
// It is valid only for the duration of that call.
type Writer struct {
	s     *State
	dirty bool
}

// Phase returns the current lifecycle phase.
func (w *Writer) Phase() types.Phase {
	return w.s.phase
}

// Finished reports whether the state is sealed.
func (w *Writer) Finished() bool {
	return w.s.phase == types.PhaseFinished
}

// NextIndex returns the chunk index to request next.
func (w *Writer) NextIndex() int {
	return w.s.nextIndex
}

// Archived reports whether the chunk at index was already ingested.
func (w *Writer) Archived(index int) bool {
	_, ok := w.s.archive[index]
	return ok
}

// RecordAttempt increments and returns the attempt counter for index.
func (w *Writer) RecordAttempt(index int) int {
	w.s.attempts[index]++
	w.dirty = true
	return w.s.attempts[index]
}

// Attempts returns the attempt counter for index.
func (w *Writer) Attempts(index int) int {
	return w.s.attempts[index]
}

// CompleteChunk archives content under index and, when index is the
// current one, advances the next index.
func (w *Writer) CompleteChunk(index int, content string) {
	w.s.archive[index] = content
	if index == w.s.nextIndex {
		w.s.nextIndex++
	}
	w.dirty = true
}

// Len returns the canonical history length.
func (w *Writer) Len() int {
	return len(w.s.history)
}

// Last returns the most recent timestep without copying.
func (w *Writer) Last() (*types.Timestep, bool) {
	if len(w.s.history) == 0 {
		return nil, false
	}
	return w.s.history[len(w.s.history)-1], true
}

// Append adds a timestep to the history and returns its index.
func (w *Writer) Append(objects map[string]types.ObjectState, hints map[string]any) int {
	idx := len(w.s.history)
	w.s.history = append(w.s.history, &types.Timestep{Index: idx, Objects: objects, Hints: hints})
	w.dirty = true
	return idx
}

// IsDeleted reports whether id has a deletion entry at or before index.
func (w *Writer) IsDeleted(id string, index int) bool {
	d, ok := w.s.deleted[id]
	return ok && d <= index
}

// MarkCreated records the creation index for id unless one exists.
// It reports whether the entry was written.
func (w *Writer) MarkCreated(id string, index int) bool {
	if _, ok := w.s.created[id]; ok {
		return false
	}
	w.s.created[id] = index
	w.dirty = true
	return true
}

// MarkDeleted records the deletion index for id unless one exists.
// It reports whether the entry was written.
func (w *Writer) MarkDeleted(id string, index int) bool {
	if _, ok := w.s.deleted[id]; ok {
		return false
	}
	w.s.deleted[id] = index
	w.dirty = true
	return true
}

// SetMap stores the map definition, replacing any earlier one.
func (w *Writer) SetMap(m types.MapDefinition) {
	w.s.mapDef = &types.MapDefinition{Header: m.Header, Rows: slices.Clone(m.Rows)}
	w.dirty = true
}

// HasMap reports whether a map definition is stored.
func (w *Writer) HasMap() bool {
	return w.s.mapDef != nil
}

// SetRoster stores the roster, replacing any earlier one.
func (w *Writer) SetRoster(r types.Roster) {
	w.s.roster = &types.Roster{Participants: slices.Clone(r.Participants), Raw: slices.Clone(r.Raw)}
	w.dirty = true
}

// HasRoster reports whether a roster is stored.
func (w *Writer) HasRoster() bool {
	return w.s.roster != nil
}

// Finish seals the state with the given outcome. Only the first call has
// an effect; it reports whether this call performed the transition.
func (w *Writer) Finish(outcome types.Outcome) bool {
	if w.s.phase == types.PhaseFinished {
		return false
	}
	w.s.phase = types.PhaseFinished
	w.s.outcome = &types.Outcome{
		Winners: slices.Clone(outcome.Winners),
		Losers:  slices.Clone(outcome.Losers),
	}
	w.dirty = true
	return true
}
