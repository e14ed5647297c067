package types

import "maps"

// Timestep is one reconstructed turn: a complete object mapping valid as
// of Index, plus the hints emitted on that turn only.
//
// Index is the position in the canonical history, not a chunk index.
type Timestep struct {
	Index   int                    `json:"index" msgpack:"index"`
	Objects map[string]ObjectState `json:"objects" msgpack:"objects"`
	Hints   map[string]any         `json:"hints,omitempty" msgpack:"hints,omitempty"`
}

// Object returns the state of id on this turn.
func (t *Timestep) Object(id string) (ObjectState, bool) {
	s, ok := t.Objects[id]
	return s, ok
}

// Hint returns a per-turn hint. Hints are never carried to later turns,
// so a hint absent here reads as absent.
func (t *Timestep) Hint(key string) (any, bool) {
	v, ok := t.Hints[key]
	return v, ok
}

// Clone returns a copy whose maps can be modified without touching the
// stored history. Attribute bags are shared.
func (t *Timestep) Clone() *Timestep {
	return &Timestep{
		Index:   t.Index,
		Objects: maps.Clone(t.Objects),
		Hints:   maps.Clone(t.Hints),
	}
}
