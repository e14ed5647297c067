package types

import "fmt"

// Phase is the ingestion lifecycle state.
type Phase int

const (
	// PhaseCollecting is entered at construction.
	PhaseCollecting Phase = iota
	// PhaseFinished is entered once, on the first termination record, and is sticky.
	PhaseFinished
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseCollecting:
		return "collecting"
	case PhaseFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Phase) UnmarshalText(text []byte) error {
	switch string(text) {
	case "collecting":
		*p = PhaseCollecting
	case "finished":
		*p = PhaseFinished
	default:
		return fmt.Errorf("unknown phase %q", text)
	}
	return nil
}

// Outcome is the match result captured from the termination record.
type Outcome struct {
	Winners []string `json:"winners" msgpack:"winners"`
	Losers  []string `json:"losers" msgpack:"losers"`
}

// Lifecycle is the creation and deletion bookkeeping for one object.
type Lifecycle struct {
	ID      string `json:"id" msgpack:"id"`
	Created int    `json:"created" msgpack:"created"`
	// Deleted is nil while the object is live.
	Deleted *int `json:"deleted,omitempty" msgpack:"deleted,omitempty"`
}

// LiveAt reports whether the object is expected in the timestep at index i.
func (l Lifecycle) LiveAt(i int) bool {
	if i < l.Created {
		return false
	}
	return l.Deleted == nil || i < *l.Deleted
}

// Progress is the status view used for progress display.
type Progress struct {
	Phase Phase `json:"phase" msgpack:"phase"`
	// NextIndex is the chunk index currently being requested.
	NextIndex int `json:"next_index" msgpack:"next_index"`
	// ContiguousIndex is the furthest chunk index ingested without gaps.
	ContiguousIndex int `json:"contiguous_index" msgpack:"contiguous_index"`
	// Attempts counts failed or incomplete polls per chunk index.
	Attempts       map[int]int `json:"attempts" msgpack:"attempts"`
	ChunksIngested int         `json:"chunks_ingested" msgpack:"chunks_ingested"`
	Timesteps      int         `json:"timesteps" msgpack:"timesteps"`
	Finished       bool        `json:"finished" msgpack:"finished"`
}
