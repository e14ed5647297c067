package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// RecordKind discriminates the decoded record variants.
type RecordKind string

const (
	// RecordKindTermination ends ingestion and carries the match outcome.
	RecordKindTermination RecordKind = "termination"
	// RecordKindMap carries the static map definition.
	RecordKindMap RecordKind = "map"
	// RecordKindRoster carries participant identities and display names.
	RecordKindRoster RecordKind = "roster"
	// RecordKindDelta carries the objects that changed on one turn.
	RecordKindDelta RecordKind = "delta"
)

// Wire keys used to classify a decoded line, in precedence order.
const (
	KeyWinners = "victor"
	KeyLosers  = "vanquished"
	KeyMap     = "map"
	KeyRoster  = "client_info"
	KeyUpdated = "updated_objects"
	KeyDeleted = "deleted_objects"

	// KeyUpdatedLegacy is the changed-object key emitted by older servers.
	KeyUpdatedLegacy = "object_info"
)

// Record is one decoded line of a chunk. The concrete type is one of
// *TerminationRecord, *MapRecord, *RosterRecord or *DeltaRecord.
type Record interface {
	Kind() RecordKind
	isRecord()
}

// TerminationRecord ends the match. Winners and Losers are independently
// optional; a nil slice means the key was absent.
type TerminationRecord struct {
	Winners []string `json:"winners,omitempty"`
	Losers  []string `json:"losers,omitempty"`
}

// Kind implements Record.
func (*TerminationRecord) Kind() RecordKind { return RecordKindTermination }
func (*TerminationRecord) isRecord()        {}

// MapRecord carries the static map definition.
type MapRecord struct {
	MapDefinition
}

// Kind implements Record.
func (*MapRecord) Kind() RecordKind { return RecordKindMap }
func (*MapRecord) isRecord()        {}

// RosterRecord carries participant metadata, normally once per match.
type RosterRecord struct {
	Roster
}

// Kind implements Record.
func (*RosterRecord) Kind() RecordKind { return RecordKindRoster }
func (*RosterRecord) isRecord()        {}

// DeltaRecord describes the objects that changed or were removed on one turn.
type DeltaRecord struct {
	// Updated maps object identity to its full attribute bag for this turn.
	Updated map[string]ObjectState `json:"updated_objects"`
	// Deleted lists identities removed this turn.
	Deleted []string `json:"deleted_objects,omitempty"`
	// Hints holds any other top-level fields. They apply to this turn only.
	Hints map[string]any `json:"hints,omitempty"`
}

// Kind implements Record.
func (*DeltaRecord) Kind() RecordKind { return RecordKindDelta }
func (*DeltaRecord) isRecord()        {}

// Empty reports whether the delta changes no objects.
func (d *DeltaRecord) Empty() bool {
	return len(d.Updated) == 0
}

// MapDefinition is the static map: a "cols rows" header and the grid rows.
type MapDefinition struct {
	Header string   `json:"header"`
	Rows   []string `json:"rows"`
}

// Dimensions parses the header into column and row counts.
func (m MapDefinition) Dimensions() (cols, rows int, err error) {
	fields := strings.Fields(m.Header)
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("map header %q: want \"cols rows\"", m.Header)
	}
	cols, err = strconv.Atoi(fields[0])
	if err != nil {
		return 0, 0, fmt.Errorf("map header %q: invalid cols: %w", m.Header, err)
	}
	rows, err = strconv.Atoi(fields[1])
	if err != nil {
		return 0, 0, fmt.Errorf("map header %q: invalid rows: %w", m.Header, err)
	}
	return cols, rows, nil
}

// Participant is one roster entry.
type Participant struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// Roster is the ordered participant list plus the raw payload it was
// decoded from, for consumers that need fields the list does not carry.
type Roster struct {
	Participants []Participant   `json:"participants"`
	Raw          json.RawMessage `json:"raw,omitempty"`
}

// Name returns the display name for id, or "" when unknown.
func (r Roster) Name(id string) string {
	for _, p := range r.Participants {
		if p.ID == id {
			return p.Name
		}
	}
	return ""
}
