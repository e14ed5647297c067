package source

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for fetch failure classification.
// Use errors.Is(err, ErrXxx) for typed assertions.
var (
	// ErrNotFound indicates the chunk does not exist yet (404, missing object).
	ErrNotFound = errors.New("chunk not found")

	// ErrTimeout indicates the request exceeded its deadline.
	ErrTimeout = errors.New("request timed out")

	// ErrNetwork indicates a network-level failure (connection refused, DNS).
	ErrNetwork = errors.New("network error")

	// ErrStatus indicates a non-success response status.
	ErrStatus = errors.New("unexpected status")

	// ErrDecode indicates the response body could not be decoded.
	ErrDecode = errors.New("invalid response body")

	// ErrAccessDenied indicates an authentication or authorization failure.
	ErrAccessDenied = errors.New("access denied")

	// ErrOther indicates an unclassified fetch failure.
	ErrOther = errors.New("fetch failed")

	// ErrMissingBaseURL indicates the source was configured without a location.
	ErrMissingBaseURL = errors.New("replay source base URL is required")
)

// FetchError wraps an underlying error with fetch classification.
type FetchError struct {
	// Kind is the sentinel error for classification (e.g., ErrTimeout).
	Kind error
	// Index is the chunk index requested.
	Index int
	// Err is the underlying error.
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch chunk %d: %v: %v", e.Index, e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is reports whether the error matches the target sentinel.
func (e *FetchError) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

// StatusError is returned for non-2xx HTTP responses.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// Wrap classifies err as a fetch failure for index. Returns nil if err is nil.
func Wrap(err error, index int) error {
	if err == nil {
		return nil
	}
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return err
	}
	return &FetchError{Kind: Classify(err), Index: index, Err: err}
}

// Classify determines the sentinel for err, by type first and then by
// message pattern.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.Code {
		case 404:
			return ErrNotFound
		case 401, 403:
			return ErrAccessDenied
		default:
			return ErrStatus
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	var timeoutErr interface{ Timeout() bool }
	if errors.As(err, &timeoutErr) && timeoutErr.Timeout() {
		return ErrTimeout
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "no such file", "does not exist", "not found", "nosuchkey"):
		return ErrNotFound
	case containsAny(msg, "timeout", "timed out", "deadline exceeded"):
		return ErrTimeout
	case containsAny(msg, "accessdenied", "forbidden", "unauthorized", "invalidaccesskeyid", "expiredtoken"):
		return ErrAccessDenied
	case containsAny(msg, "connection refused", "connection reset", "no route to host",
		"network is unreachable", "no such host", "dial tcp", "eof"):
		return ErrNetwork
	default:
		return ErrOther
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
