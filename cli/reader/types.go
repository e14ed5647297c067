// Package reader provides the read-side views used by tankreplay commands.
//
// Commands never touch the ingestion state directly. They ask a Reader for
// response structs that render as JSON, YAML or tables.
package reader

import "github.com/justapithecus/tankreplay/types"

// SessionSummary is the watch command's result.
type SessionSummary struct {
	SessionID      string         `json:"session_id" yaml:"session_id"`
	Source         string         `json:"source" yaml:"source"`
	Phase          string         `json:"phase" yaml:"phase"`
	NextIndex      int            `json:"next_index" yaml:"next_index"`
	ChunksIngested int            `json:"chunks_ingested" yaml:"chunks_ingested"`
	Timesteps      int            `json:"timesteps" yaml:"timesteps"`
	LiveObjects    int            `json:"live_objects" yaml:"live_objects"`
	ObjectsByKind  map[string]int `json:"objects_by_kind" yaml:"objects_by_kind"`
	KnownObjects   int            `json:"known_objects" yaml:"known_objects"`
	DeletedObjects int            `json:"deleted_objects" yaml:"deleted_objects"`
	// PendingAttempts is the failed poll count for the index being requested.
	PendingAttempts int          `json:"pending_attempts" yaml:"pending_attempts"`
	Winners         []PlayerView `json:"winners,omitempty" yaml:"winners,omitempty"`
	Losers          []PlayerView `json:"losers,omitempty" yaml:"losers,omitempty"`
}

// PlayerView is a participant identity with its display name, if known.
type PlayerView struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

// TimestepView is one timestep with objects in identity order.
type TimestepView struct {
	Index   int            `json:"index" yaml:"index"`
	Total   int            `json:"total" yaml:"total"`
	Objects []ObjectEntry  `json:"objects" yaml:"objects"`
	Hints   map[string]any `json:"hints,omitempty" yaml:"hints,omitempty"`
}

// ObjectEntry is one object within a TimestepView.
type ObjectEntry struct {
	ID    string            `json:"id" yaml:"id"`
	Kind  string            `json:"kind" yaml:"kind"`
	State types.ObjectState `json:"state" yaml:"state"`
}

// ObjectView is one object's state at a timestep plus its lifecycle.
type ObjectView struct {
	ID      string            `json:"id" yaml:"id"`
	Kind    string            `json:"kind" yaml:"kind"`
	Index   int               `json:"index" yaml:"index"`
	Present bool              `json:"present" yaml:"present"`
	State   types.ObjectState `json:"state,omitempty" yaml:"state,omitempty"`
	Created int               `json:"created" yaml:"created"`
	Deleted *int              `json:"deleted,omitempty" yaml:"deleted,omitempty"`
}

// MapView is the map definition with parsed dimensions.
type MapView struct {
	Header string   `json:"header" yaml:"header"`
	Cols   int      `json:"cols" yaml:"cols"`
	Rows   int      `json:"rows" yaml:"rows"`
	Grid   []string `json:"grid" yaml:"grid"`
}

// RosterView is the participant list in roster order.
type RosterView struct {
	Participants []PlayerView `json:"participants" yaml:"participants"`
}
