// Package record turns raw chunk content into classified records.
//
// A chunk is split into lines up to its sentinel. Each line is sanitized,
// decoded on its own and classified by key shape in fixed precedence:
// termination, map, roster, then delta as the default.
package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/justapithecus/tankreplay/types"
)

// MalformedPolicy decides what a malformed line does to its chunk.
type MalformedPolicy string

const (
	// PolicySkip drops the malformed line and keeps the rest of the chunk.
	PolicySkip MalformedPolicy = "skip"
	// PolicyFail rejects the whole chunk. Nothing from it is applied.
	PolicyFail MalformedPolicy = "fail"
)

// ParsePolicy parses a policy name. The empty string selects PolicySkip.
func ParsePolicy(s string) (MalformedPolicy, error) {
	switch MalformedPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicySkip:
		return PolicySkip, nil
	case PolicyFail:
		return PolicyFail, nil
	default:
		return "", fmt.Errorf("invalid malformed record policy %q (must be skip or fail)", s)
	}
}

// Line is one non-empty record line of a chunk.
type Line struct {
	// Number is the 1-based line number within the chunk content.
	Number int
	Text   string
}

// Result is the outcome of parsing one chunk.
type Result struct {
	// Records holds the decoded records in input order.
	Records []types.Record
	// Malformed holds the lines that were skipped.
	Malformed []*RecordError
}

// Parser decodes chunk content. It is safe for concurrent use.
type Parser struct {
	policy  MalformedPolicy
	schemas schemaSet
}

// NewParser creates a parser with the given malformed-line policy.
func NewParser(policy MalformedPolicy) (*Parser, error) {
	if _, err := ParsePolicy(string(policy)); err != nil {
		return nil, err
	}
	if policy == "" {
		policy = PolicySkip
	}
	schemas, err := loadSchemas()
	if err != nil {
		return nil, err
	}
	return &Parser{policy: policy, schemas: schemas}, nil
}

// Policy returns the malformed-line policy.
func (p *Parser) Policy() MalformedPolicy {
	return p.policy
}

// Lines splits content into trimmed, non-empty lines, stopping at the
// sentinel. Anything after the sentinel is ignored.
func Lines(content string) []Line {
	var out []Line
	n := 0
	for raw := range strings.Lines(content) {
		n++
		text := strings.TrimSpace(raw)
		if text == types.ChunkSentinel {
			break
		}
		if text == "" {
			continue
		}
		out = append(out, Line{Number: n, Text: text})
	}
	return out
}

// ParseChunk decodes every record line of content in order.
//
// Under PolicySkip malformed lines are reported in Result.Malformed and
// the error is nil. Under PolicyFail the first malformed line is returned
// as a *RecordError and the result is nil.
func (p *Parser) ParseChunk(content string) (*Result, error) {
	lines := Lines(content)
	res := &Result{Records: make([]types.Record, 0, len(lines))}

	for _, line := range lines {
		rec, err := p.ParseLine(line)
		if err != nil {
			var recErr *RecordError
			if !errors.As(err, &recErr) {
				return nil, err
			}
			if p.policy == PolicyFail {
				return nil, recErr
			}
			res.Malformed = append(res.Malformed, recErr)
			continue
		}
		res.Records = append(res.Records, rec)
	}
	return res, nil
}

// ParseLine decodes and classifies a single line.
func (p *Parser) ParseLine(line Line) (types.Record, error) {
	text := Sanitize(line.Text)

	dec := json.NewDecoder(strings.NewReader(text))
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, &RecordError{Kind: RecordErrorDecode, Line: line.Number, Msg: "invalid record", Err: err}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, &RecordError{Kind: RecordErrorDecode, Line: line.Number, Msg: "trailing data after record"}
	}

	obj, ok := v.(map[string]any)
	if !ok {
		return nil, &RecordError{
			Kind: RecordErrorShape,
			Line: line.Number,
			Msg:  fmt.Sprintf("record must be an object, got %s", jsonKind(v)),
		}
	}

	kind := Classify(obj)
	if err := p.schemas.validate(kind, line.Number, obj); err != nil {
		return nil, err
	}

	switch kind {
	case types.RecordKindTermination:
		return decodeTermination(obj), nil
	case types.RecordKindMap:
		return decodeMap(obj), nil
	case types.RecordKindRoster:
		rec, err := decodeRoster(text)
		if err != nil {
			return nil, &RecordError{
				Kind:    RecordErrorShape,
				Line:    line.Number,
				Variant: kind,
				Msg:     "invalid roster",
				Err:     err,
			}
		}
		return rec, nil
	default:
		return decodeDelta(obj), nil
	}
}

// Classify picks the record variant for a decoded object. The first
// matching variant in precedence order wins; delta is the default.
func Classify(obj map[string]any) types.RecordKind {
	_, hasWinners := obj[types.KeyWinners]
	_, hasLosers := obj[types.KeyLosers]
	if hasWinners || hasLosers {
		return types.RecordKindTermination
	}
	if _, ok := obj[types.KeyMap]; ok {
		return types.RecordKindMap
	}
	if _, ok := obj[types.KeyRoster]; ok {
		return types.RecordKindRoster
	}
	return types.RecordKindDelta
}

func decodeTermination(obj map[string]any) *types.TerminationRecord {
	rec := &types.TerminationRecord{}
	if v, ok := obj[types.KeyWinners]; ok {
		rec.Winners = identities(v)
	}
	if v, ok := obj[types.KeyLosers]; ok {
		rec.Losers = identities(v)
	}
	return rec
}

func decodeMap(obj map[string]any) *types.MapRecord {
	entries, _ := obj[types.KeyMap].([]any)
	rec := &types.MapRecord{}
	for i, e := range entries {
		s, _ := e.(string)
		s = strings.TrimRight(s, "\r\n")
		if i == 0 {
			rec.Header = s
			continue
		}
		rec.Rows = append(rec.Rows, s)
	}
	return rec
}

func decodeDelta(obj map[string]any) *types.DeltaRecord {
	rec := &types.DeltaRecord{Updated: map[string]types.ObjectState{}}

	updated, ok := obj[types.KeyUpdated]
	if !ok || updated == nil {
		updated = obj[types.KeyUpdatedLegacy]
	}
	if m, ok := updated.(map[string]any); ok {
		for id, attrs := range m {
			bag, _ := attrs.(map[string]any)
			rec.Updated[id] = types.ObjectState(bag)
		}
	}

	if deleted, ok := obj[types.KeyDeleted]; ok && deleted != nil {
		rec.Deleted = identities(deleted)
	}

	for k, v := range obj {
		switch k {
		case types.KeyUpdated, types.KeyUpdatedLegacy, types.KeyDeleted:
			continue
		}
		if rec.Hints == nil {
			rec.Hints = make(map[string]any)
		}
		rec.Hints[k] = v
	}
	return rec
}

// identities normalises an identity list. A bare scalar is a one-element
// list and null is an empty list.
func identities(v any) []string {
	switch t := v.(type) {
	case nil:
		return []string{}
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			out = append(out, identity(e))
		}
		return out
	default:
		return []string{identity(t)}
	}
}

func identity(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	case []any:
		return "array"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// decodeRoster decodes client_info from the line text so that object key
// order, which is the roster order, survives.
func decodeRoster(text string) (*types.RosterRecord, error) {
	var probe struct {
		ClientInfo json.RawMessage `json:"client_info"`
	}
	if err := json.Unmarshal([]byte(text), &probe); err != nil {
		return nil, err
	}
	raw := bytes.TrimSpace(probe.ClientInfo)

	rec := &types.RosterRecord{}
	rec.Raw = append(json.RawMessage(nil), raw...)

	var err error
	if len(raw) > 0 && raw[0] == '{' {
		rec.Participants, err = rosterFromObject(raw)
	} else {
		rec.Participants, err = rosterFromArray(raw)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func rosterFromObject(raw []byte) ([]types.Participant, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	var out []types.Participant
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		id, _ := tok.(string)
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, err
		}
		p := types.Participant{ID: id}
		switch t := v.(type) {
		case map[string]any:
			p.Name = firstString(t, "name", "display_name", "team")
		default:
			p.Name = identity(t)
		}
		out = append(out, p)
	}
	return out, nil
}

func rosterFromArray(raw []byte) ([]types.Participant, error) {
	var entries []any
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, err
	}
	out := make([]types.Participant, 0, len(entries))
	for i, e := range entries {
		switch t := e.(type) {
		case map[string]any:
			id := firstString(t, "id", "client_id")
			if id == "" {
				return nil, fmt.Errorf("roster entry %d has no id", i)
			}
			out = append(out, types.Participant{ID: id, Name: firstString(t, "name", "display_name", "team")})
		case []any:
			out = append(out, types.Participant{ID: identity(t[0]), Name: identity(t[1])})
		default:
			return nil, fmt.Errorf("roster entry %d has unsupported type %s", i, jsonKind(e))
		}
	}
	return out, nil
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return identity(v)
		}
	}
	return ""
}
