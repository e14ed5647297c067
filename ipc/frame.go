// Package ipc implements the outbound frame stream read by renderer
// processes.
//
// Each frame is a 4-byte big-endian payload length followed by a msgpack
// map. Every map carries a "type" field naming the frame kind.
package ipc

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/justapithecus/tankreplay/types"
)

// Frame size constants.
const (
	// MaxFrameSize is the maximum frame size (16 MiB), including length prefix.
	MaxFrameSize = 16 * 1024 * 1024
	// MaxPayloadSize is the maximum payload size (MaxFrameSize - 4 bytes).
	MaxPayloadSize = MaxFrameSize - LengthPrefixSize
	// LengthPrefixSize is the size of the length prefix in bytes.
	LengthPrefixSize = 4
)

// Frame type discriminants.
const (
	HelloType    = "hello"
	MapType      = "map"
	RosterType   = "roster"
	TimestepType = "timestep"
	StatusType   = "status"
	OutcomeType  = "outcome"
)

// HelloFrame opens a stream.
type HelloFrame struct {
	Type            string `json:"type" msgpack:"type"`
	ContractVersion string `json:"contract_version" msgpack:"contract_version"`
	SessionID       string `json:"session_id" msgpack:"session_id"`
	Source          string `json:"source" msgpack:"source"`
}

// MapFrame carries the map definition.
type MapFrame struct {
	Type   string   `json:"type" msgpack:"type"`
	Header string   `json:"header" msgpack:"header"`
	Rows   []string `json:"rows" msgpack:"rows"`
}

// RosterParticipant is one roster entry on the wire.
type RosterParticipant struct {
	ID   string `json:"id" msgpack:"id"`
	Name string `json:"name" msgpack:"name"`
}

// RosterFrame carries the participant list in roster order.
type RosterFrame struct {
	Type         string              `json:"type" msgpack:"type"`
	Participants []RosterParticipant `json:"participants" msgpack:"participants"`
}

// TimestepFrame carries one timestep of the canonical history.
type TimestepFrame struct {
	Type    string                       `json:"type" msgpack:"type"`
	Index   int                          `json:"index" msgpack:"index"`
	Objects map[string]types.ObjectState `json:"objects" msgpack:"objects"`
	Hints   map[string]any               `json:"hints,omitempty" msgpack:"hints,omitempty"`
}

// StatusFrame carries ingestion progress.
type StatusFrame struct {
	Type           string `json:"type" msgpack:"type"`
	Phase          string `json:"phase" msgpack:"phase"`
	NextIndex      int    `json:"next_index" msgpack:"next_index"`
	ChunksIngested int    `json:"chunks_ingested" msgpack:"chunks_ingested"`
	Timesteps      int    `json:"timesteps" msgpack:"timesteps"`
	Attempts       int    `json:"attempts" msgpack:"attempts"`
}

// OutcomeFrame closes a stream for a finished match.
type OutcomeFrame struct {
	Type    string   `json:"type" msgpack:"type"`
	Winners []string `json:"winners" msgpack:"winners"`
	Losers  []string `json:"losers" msgpack:"losers"`
}

// NewMapFrame converts a map definition.
func NewMapFrame(m types.MapDefinition) *MapFrame {
	return &MapFrame{Type: MapType, Header: m.Header, Rows: m.Rows}
}

// NewRosterFrame converts a roster.
func NewRosterFrame(r types.Roster) *RosterFrame {
	f := &RosterFrame{Type: RosterType, Participants: make([]RosterParticipant, 0, len(r.Participants))}
	for _, p := range r.Participants {
		f.Participants = append(f.Participants, RosterParticipant{ID: p.ID, Name: p.Name})
	}
	return f
}

// NewTimestepFrame converts a timestep.
func NewTimestepFrame(ts *types.Timestep) *TimestepFrame {
	return &TimestepFrame{Type: TimestepType, Index: ts.Index, Objects: ts.Objects, Hints: ts.Hints}
}

// NewStatusFrame converts a progress view.
func NewStatusFrame(p types.Progress) *StatusFrame {
	return &StatusFrame{
		Type:           StatusType,
		Phase:          p.Phase.String(),
		NextIndex:      p.NextIndex,
		ChunksIngested: p.ChunksIngested,
		Timesteps:      p.Timesteps,
		Attempts:       p.Attempts[p.NextIndex],
	}
}

// NewOutcomeFrame converts a match outcome.
func NewOutcomeFrame(o types.Outcome) *OutcomeFrame {
	f := &OutcomeFrame{Type: OutcomeType, Winners: o.Winners, Losers: o.Losers}
	if f.Winners == nil {
		f.Winners = []string{}
	}
	if f.Losers == nil {
		f.Losers = []string{}
	}
	return f
}

// FrameErrorKind classifies frame errors.
type FrameErrorKind int

const (
	// FrameErrorPartial indicates a truncated or incomplete frame.
	FrameErrorPartial FrameErrorKind = iota
	// FrameErrorTooLarge indicates a frame exceeding MaxFrameSize.
	FrameErrorTooLarge
	// FrameErrorDecode indicates a msgpack decoding error.
	FrameErrorDecode
	// FrameErrorEncode indicates a msgpack encoding error.
	FrameErrorEncode
)

// FrameError represents a frame encoding or decoding error.
type FrameError struct {
	Kind FrameErrorKind
	Msg  string
	Err  error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// IsFatal returns true if the stream cannot continue after this error.
// Partial and oversized frames desynchronise the length prefixes.
func (e *FrameError) IsFatal() bool {
	return e.Kind == FrameErrorPartial || e.Kind == FrameErrorTooLarge
}

// IsFatalFrameError returns true if the error is a fatal frame error.
func IsFatalFrameError(err error) bool {
	var frameErr *FrameError
	if errors.As(err, &frameErr) {
		return frameErr.IsFatal()
	}
	return false
}

// FrameEncoder writes length-prefixed msgpack frames. Safe for concurrent use.
type FrameEncoder struct {
	mu sync.Mutex
	w  io.Writer
}

// NewFrameEncoder creates a new frame encoder.
func NewFrameEncoder(w io.Writer) *FrameEncoder {
	return &FrameEncoder{w: w}
}

// WriteFrame encodes v and writes it with its length prefix in one write.
func (e *FrameEncoder) WriteFrame(v any) error {
	payload, err := msgpack.Marshal(v)
	if err != nil {
		return &FrameError{Kind: FrameErrorEncode, Msg: "failed to encode frame", Err: err}
	}
	if len(payload) > MaxPayloadSize {
		return &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", len(payload), MaxPayloadSize),
		}
	}

	buf := make([]byte, LengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(buf[:LengthPrefixSize], uint32(len(payload)))
	copy(buf[LengthPrefixSize:], payload)

	e.mu.Lock()
	defer e.mu.Unlock()
	_, err = e.w.Write(buf)
	return err
}

// FrameDecoder decodes length-prefixed msgpack frames from a stream.
type FrameDecoder struct {
	reader *bufio.Reader
}

// NewFrameDecoder creates a new frame decoder.
func NewFrameDecoder(r io.Reader) *FrameDecoder {
	return &FrameDecoder{reader: bufio.NewReader(r)}
}

// ReadFrame reads a single frame from the stream.
// Returns the raw payload bytes (msgpack-encoded).
//
// Errors:
//   - io.EOF: stream ended cleanly (no more frames)
//   - *FrameError with Kind=FrameErrorPartial: incomplete frame (fatal)
//   - *FrameError with Kind=FrameErrorTooLarge: frame exceeds limit (fatal)
func (d *FrameDecoder) ReadFrame() ([]byte, error) {
	var lengthBuf [LengthPrefixSize]byte
	_, err := io.ReadFull(d.reader, lengthBuf[:])
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, &FrameError{
			Kind: FrameErrorPartial,
			Msg:  "failed to read length prefix",
			Err:  err,
		}
	}

	payloadSize := binary.BigEndian.Uint32(lengthBuf[:])
	if payloadSize > MaxPayloadSize {
		return nil, &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", payloadSize, MaxPayloadSize),
		}
	}

	payload := make([]byte, payloadSize)
	_, err = io.ReadFull(d.reader, payload)
	if err != nil {
		return nil, &FrameError{
			Kind: FrameErrorPartial,
			Msg:  "failed to read payload",
			Err:  err,
		}
	}

	return payload, nil
}

// probeFrameType reads the "type" field of a msgpack map, skipping every
// other value without decoding it.
func probeFrameType(payload []byte) (string, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(payload))
	n, err := dec.DecodeMapLen()
	if err != nil {
		return "", err
	}
	for range n {
		key, err := dec.DecodeString()
		if err != nil {
			return "", err
		}
		if key == "type" {
			return dec.DecodeString()
		}
		if err := dec.Skip(); err != nil {
			return "", err
		}
	}
	return "", errors.New("frame has no type field")
}

// DecodeFrame decodes a payload into the frame struct named by its type.
func DecodeFrame(payload []byte) (any, error) {
	typ, err := probeFrameType(payload)
	if err != nil {
		return nil, &FrameError{Kind: FrameErrorDecode, Msg: "failed to decode frame type", Err: err}
	}

	var frame any
	switch typ {
	case HelloType:
		frame = &HelloFrame{}
	case MapType:
		frame = &MapFrame{}
	case RosterType:
		frame = &RosterFrame{}
	case TimestepType:
		frame = &TimestepFrame{}
	case StatusType:
		frame = &StatusFrame{}
	case OutcomeType:
		frame = &OutcomeFrame{}
	default:
		return nil, &FrameError{Kind: FrameErrorDecode, Msg: fmt.Sprintf("unknown frame type %q", typ)}
	}
	if err := msgpack.Unmarshal(payload, frame); err != nil {
		return nil, &FrameError{Kind: FrameErrorDecode, Msg: "failed to decode " + typ + " frame", Err: err}
	}
	return frame, nil
}
