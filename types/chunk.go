// Package types defines the core domain types for replay ingestion.
//
//nolint:revive // types is a common Go package naming convention
package types

import "strings"

// ChunkSentinel is the literal line that marks a chunk as fully written.
// It appears as its own line, including the double quotes.
const ChunkSentinel = `"EOF"`

// FirstChunkIndex is the index of the first chunk of every replay.
const FirstChunkIndex = 1

// Chunk is one server-held segment of the replay log.
type Chunk struct {
	// Index is the sequential chunk index, starting at FirstChunkIndex.
	Index int `json:"index"`
	// Content is the raw text as fetched.
	Content string `json:"content"`
}

// Complete reports whether the chunk content carries the sentinel line.
// A chunk without it is partial and must be fetched again.
func (c Chunk) Complete() bool {
	return HasSentinel(c.Content)
}

// HasSentinel reports whether content contains ChunkSentinel as its own
// delimited line. Surrounding whitespace on that line is ignored.
func HasSentinel(content string) bool {
	for line := range strings.Lines(content) {
		if strings.TrimSpace(line) == ChunkSentinel {
			return true
		}
	}
	return false
}
