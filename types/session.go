package types

import "errors"

// SessionMeta identifies one ingestion session. Every log entry carries it.
type SessionMeta struct {
	// SessionID is unique per session.
	SessionID string `json:"session_id" msgpack:"session_id"`
	// Source describes where chunks come from (base URL or store path).
	Source string `json:"source" msgpack:"source"`
}

// Validate checks the session metadata.
func (m *SessionMeta) Validate() error {
	if m.SessionID == "" {
		return errors.New("session_id must not be empty")
	}
	if m.Source == "" {
		return errors.New("source must not be empty")
	}
	return nil
}
