package record

import (
	"errors"
	"fmt"

	"github.com/justapithecus/tankreplay/types"
)

// RecordErrorKind classifies record decoding errors.
type RecordErrorKind int

const (
	// RecordErrorDecode indicates the line is not valid structured text.
	RecordErrorDecode RecordErrorKind = iota
	// RecordErrorShape indicates the line decoded but does not fit its variant.
	RecordErrorShape
)

// String returns the error kind name.
func (k RecordErrorKind) String() string {
	switch k {
	case RecordErrorDecode:
		return "decode"
	case RecordErrorShape:
		return "shape"
	default:
		return "unknown"
	}
}

// RecordError reports a malformed line. It is local to that line.
type RecordError struct {
	Kind RecordErrorKind
	// Line is the 1-based line number within the chunk content.
	Line int
	// Variant is set for shape errors.
	Variant types.RecordKind
	Msg     string
	Err     error
}

func (e *RecordError) Error() string {
	prefix := fmt.Sprintf("line %d", e.Line)
	if e.Variant != "" {
		prefix += fmt.Sprintf(" (%s)", e.Variant)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Msg)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// IsRecordError returns true if err is or wraps a *RecordError.
func IsRecordError(err error) bool {
	var recErr *RecordError
	return errors.As(err, &recErr)
}
