package runtime

import (
	"errors"
	"fmt"
)

// ErrIncompleteChunk is the cause of an IngestionErrorIncomplete: the
// response arrived but the completion sentinel is not there yet.
var ErrIncompleteChunk = errors.New("chunk incomplete: sentinel not present")

// IngestionErrorKind classifies ingestion errors.
type IngestionErrorKind int

const (
	// IngestionErrorTransport indicates a network failure or non-success status.
	// Retried on the next tick.
	IngestionErrorTransport IngestionErrorKind = iota
	// IngestionErrorIncomplete indicates a response without the sentinel.
	// Retried on the next tick.
	IngestionErrorIncomplete
	// IngestionErrorMalformed indicates a chunk rejected by the fail policy.
	// Retried on the next tick.
	IngestionErrorMalformed
	// IngestionErrorStalled indicates a configured limit was reached before
	// the match finished. Terminal for the session.
	IngestionErrorStalled
	// IngestionErrorCanceled indicates the caller canceled the session.
	IngestionErrorCanceled
)

// String returns the kind name.
func (k IngestionErrorKind) String() string {
	switch k {
	case IngestionErrorTransport:
		return "transport"
	case IngestionErrorIncomplete:
		return "incomplete"
	case IngestionErrorMalformed:
		return "malformed"
	case IngestionErrorStalled:
		return "stalled"
	case IngestionErrorCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// IngestionError is returned by the fetcher for a poll that did not apply a
// chunk, and by the session when ingestion ends without finishing.
type IngestionError struct {
	Kind IngestionErrorKind
	// Index is the chunk index involved.
	Index int
	// Attempt is the attempt counter for Index after this failure, when counted.
	Attempt int
	// Err is the underlying error.
	Err error
}

func (e *IngestionError) Error() string {
	if e.Index > 0 {
		return fmt.Sprintf("chunk %d: %s: %v", e.Index, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *IngestionError) Unwrap() error {
	return e.Err
}

// Retriable reports whether the next tick retries the same index.
func (e *IngestionError) Retriable() bool {
	switch e.Kind {
	case IngestionErrorTransport, IngestionErrorIncomplete, IngestionErrorMalformed:
		return true
	default:
		return false
	}
}

func hasKind(err error, kind IngestionErrorKind) bool {
	var ingErr *IngestionError
	if errors.As(err, &ingErr) {
		return ingErr.Kind == kind
	}
	return false
}

// IsTransportError returns true if the error is a transport failure.
func IsTransportError(err error) bool { return hasKind(err, IngestionErrorTransport) }

// IsIncompleteError returns true if the chunk was not fully written yet.
func IsIncompleteError(err error) bool { return hasKind(err, IngestionErrorIncomplete) }

// IsMalformedError returns true if the chunk was rejected for a malformed line.
func IsMalformedError(err error) bool { return hasKind(err, IngestionErrorMalformed) }

// IsStalledError returns true if a polling limit was reached.
func IsStalledError(err error) bool { return hasKind(err, IngestionErrorStalled) }

// IsCanceledError returns true if the error is due to context cancellation.
func IsCanceledError(err error) bool { return hasKind(err, IngestionErrorCanceled) }

// ConfigError reports an invalid session configuration. It is raised before
// any component is constructed.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// IsConfigError returns true if err is or wraps a *ConfigError.
func IsConfigError(err error) bool {
	var cfgErr *ConfigError
	return errors.As(err, &cfgErr)
}
