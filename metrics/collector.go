// Package metrics provides per-session ingestion metrics.
//
// The Collector accumulates counters during a single session. It is a leaf
// package with no internal dependencies; the Prometheus bridge in
// prometheus.go exposes snapshots without keeping counters of its own.
package metrics

import (
	"maps"
	"sync"
)

// Snapshot is an immutable point-in-time view of all session metrics.
type Snapshot struct {
	// Fetcher
	PollsIssued          int64 `json:"polls_issued"`
	TransportFailures    int64 `json:"transport_failures"`
	IncompleteChunks     int64 `json:"incomplete_chunks"`
	ChunksIngested       int64 `json:"chunks_ingested"`
	DuplicateChunks      int64 `json:"duplicate_chunks"`
	LateResponsesDropped int64 `json:"late_responses_dropped"`
	RejectedChunks       int64 `json:"rejected_chunks"`

	// Parser
	RecordsDecoded int64            `json:"records_decoded"`
	RecordsByKind  map[string]int64 `json:"records_by_kind"`
	MalformedLines int64            `json:"malformed_lines"`

	// Reconstructor
	TimestepsAppended   int64 `json:"timesteps_appended"`
	NoopFramesDiscarded int64 `json:"noop_frames_discarded"`
	ObjectsCreated      int64 `json:"objects_created"`
	ObjectsDeleted      int64 `json:"objects_deleted"`
	RecordsAfterFinish  int64 `json:"records_after_finish"`

	// Dimensions (informational, set at construction)
	SessionID       string `json:"session_id"`
	SourceBackend   string `json:"source_backend"`
	MalformedPolicy string `json:"malformed_policy"`
}

// Collector accumulates metrics during a single session.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	pollsIssued          int64
	transportFailures    int64
	incompleteChunks     int64
	chunksIngested       int64
	duplicateChunks      int64
	lateResponsesDropped int64
	rejectedChunks       int64

	recordsDecoded int64
	recordsByKind  map[string]int64
	malformedLines int64

	timestepsAppended   int64
	noopFramesDiscarded int64
	objectsCreated      int64
	objectsDeleted      int64
	recordsAfterFinish  int64

	sessionID       string
	sourceBackend   string
	malformedPolicy string
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(sessionID, sourceBackend, malformedPolicy string) *Collector {
	return &Collector{
		recordsByKind:   make(map[string]int64),
		sessionID:       sessionID,
		sourceBackend:   sourceBackend,
		malformedPolicy: malformedPolicy,
	}
}

func (c *Collector) add(field *int64, n int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	*field += n
	c.mu.Unlock()
}

// --- Fetcher ---

// IncPollsIssued records one chunk request.
func (c *Collector) IncPollsIssued() {
	if c == nil {
		return
	}
	c.add(&c.pollsIssued, 1)
}

// IncTransportFailures records a network error or non-success status.
func (c *Collector) IncTransportFailures() {
	if c == nil {
		return
	}
	c.add(&c.transportFailures, 1)
}

// IncIncompleteChunks records a response without the sentinel.
func (c *Collector) IncIncompleteChunks() {
	if c == nil {
		return
	}
	c.add(&c.incompleteChunks, 1)
}

// IncChunksIngested records a chunk applied to state.
func (c *Collector) IncChunksIngested() {
	if c == nil {
		return
	}
	c.add(&c.chunksIngested, 1)
}

// IncDuplicateChunks records a completed chunk whose index was already archived.
func (c *Collector) IncDuplicateChunks() {
	if c == nil {
		return
	}
	c.add(&c.duplicateChunks, 1)
}

// IncLateResponsesDropped records a response that resolved after finish.
func (c *Collector) IncLateResponsesDropped() {
	if c == nil {
		return
	}
	c.add(&c.lateResponsesDropped, 1)
}

// IncRejectedChunks records a complete chunk rejected by the fail policy.
func (c *Collector) IncRejectedChunks() {
	if c == nil {
		return
	}
	c.add(&c.rejectedChunks, 1)
}

// --- Parser ---

// IncRecordsDecoded records one decoded record of the given kind.
func (c *Collector) IncRecordsDecoded(kind string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.recordsDecoded++
	c.recordsByKind[kind]++
	c.mu.Unlock()
}

// AddMalformedLines records lines skipped from an ingested chunk. Chunks
// rejected by the fail policy count in RejectedChunks only.
func (c *Collector) AddMalformedLines(n int) {
	if c == nil {
		return
	}
	c.add(&c.malformedLines, int64(n))
}

// --- Reconstructor ---

// IncTimestepsAppended records a timestep appended to history.
func (c *Collector) IncTimestepsAppended() {
	if c == nil {
		return
	}
	c.add(&c.timestepsAppended, 1)
}

// IncNoopFramesDiscarded records a leading empty delta that was dropped.
func (c *Collector) IncNoopFramesDiscarded() {
	if c == nil {
		return
	}
	c.add(&c.noopFramesDiscarded, 1)
}

// AddObjectsCreated records new creation table entries.
func (c *Collector) AddObjectsCreated(n int) {
	if c == nil {
		return
	}
	c.add(&c.objectsCreated, int64(n))
}

// AddObjectsDeleted records new deletion table entries.
func (c *Collector) AddObjectsDeleted(n int) {
	if c == nil {
		return
	}
	c.add(&c.objectsDeleted, int64(n))
}

// IncRecordsAfterFinish records a record ignored because the state was sealed.
func (c *Collector) IncRecordsAfterFinish() {
	if c == nil {
		return
	}
	c.add(&c.recordsAfterFinish, 1)
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		PollsIssued:          c.pollsIssued,
		TransportFailures:    c.transportFailures,
		IncompleteChunks:     c.incompleteChunks,
		ChunksIngested:       c.chunksIngested,
		DuplicateChunks:      c.duplicateChunks,
		LateResponsesDropped: c.lateResponsesDropped,
		RejectedChunks:       c.rejectedChunks,

		RecordsDecoded: c.recordsDecoded,
		RecordsByKind:  maps.Clone(c.recordsByKind),
		MalformedLines: c.malformedLines,

		TimestepsAppended:   c.timestepsAppended,
		NoopFramesDiscarded: c.noopFramesDiscarded,
		ObjectsCreated:      c.objectsCreated,
		ObjectsDeleted:      c.objectsDeleted,
		RecordsAfterFinish:  c.recordsAfterFinish,

		SessionID:       c.sessionID,
		SourceBackend:   c.sourceBackend,
		MalformedPolicy: c.malformedPolicy,
	}
}
