// Package source defines how raw chunk content is fetched.
//
// The HTTP source talks to the replay server. The lode package provides a
// source over object storage. Both resolve chunk index n to a file name
// with FileName.
package source

import (
	"context"
	"fmt"
	"strings"
)

// DefaultFilePattern is the chunk file name pattern; %d is the chunk index.
const DefaultFilePattern = "replay-%d.txt"

// ChunkSource fetches the raw content of one chunk.
//
// Fetch returns the content as currently held by the source, which may be
// partial. Implementations must be safe for concurrent use: the fetcher may
// issue a second request while an earlier one is outstanding.
type ChunkSource interface {
	Fetch(ctx context.Context, index int) (string, error)
	// Describe returns a short human-readable location for logs.
	Describe() string
	Close() error
}

// Func adapts a function to ChunkSource.
type Func func(ctx context.Context, index int) (string, error)

// Fetch calls f.
func (f Func) Fetch(ctx context.Context, index int) (string, error) {
	return f(ctx, index)
}

// Describe implements ChunkSource.
func (f Func) Describe() string { return "func" }

// Close implements ChunkSource.
func (f Func) Close() error { return nil }

// FileName returns the chunk file name for index under pattern.
// An empty pattern selects DefaultFilePattern.
func FileName(pattern string, index int) string {
	if pattern == "" {
		pattern = DefaultFilePattern
	}
	return fmt.Sprintf(pattern, index)
}

// ValidatePattern checks that pattern formats exactly one integer.
func ValidatePattern(pattern string) error {
	if pattern == "" {
		return nil
	}
	if strings.Count(pattern, "%d") != 1 || strings.Count(pattern, "%") != 1 {
		return fmt.Errorf("file pattern %q must contain exactly one %%d verb", pattern)
	}
	return nil
}

var (
	_ ChunkSource = Func(nil)
	_ ChunkSource = (*HTTPSource)(nil)
)
