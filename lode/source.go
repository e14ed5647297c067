// Package lode serves replay chunks from object storage.
//
// A replay captured to disk or a bucket uses the same file names the replay
// server does (see source.FileName). Source reads them through a lode.Store,
// so the filesystem, S3, and in-memory backends share one code path.
package lode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/justapithecus/lode/lode"
	"github.com/klauspost/compress/zstd"

	"github.com/justapithecus/tankreplay/iox"
	"github.com/justapithecus/tankreplay/source"
)

// Compression values accepted by Options.Compression.
const (
	CompressionNone = "none"
	CompressionZstd = "zstd"
)

// ZstdSuffix is appended to chunk file names when compression is zstd.
const ZstdSuffix = ".zst"

// MaxObjectBytes bounds a single chunk object read from storage.
const MaxObjectBytes = 64 << 20

var errObjectTooLarge = errors.New("chunk object exceeds size limit")

// Options configures how chunk objects are named and decoded.
type Options struct {
	// Prefix is prepended to every object path (e.g. "match-42/").
	Prefix string
	// FilePattern overrides source.DefaultFilePattern.
	FilePattern string
	// Compression is "none" (default) or "zstd".
	Compression string
}

// Validate checks option values.
func (o *Options) Validate() error {
	switch o.Compression {
	case "", CompressionNone, CompressionZstd:
	default:
		return fmt.Errorf("unsupported compression %q (expected none or zstd)", o.Compression)
	}
	return source.ValidatePattern(o.FilePattern)
}

// Source is a source.ChunkSource over a lode.Store.
type Source struct {
	store    lode.Store
	opts     Options
	describe string

	decOnce sync.Once
	dec     *zstd.Decoder
	decErr  error
}

// NewSource creates a Source from a store factory.
// describe labels the source in logs.
func NewSource(factory lode.StoreFactory, opts Options, describe string) (*Source, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	store, err := factory()
	if err != nil {
		return nil, fmt.Errorf("failed to create chunk store: %w", err)
	}
	return &Source{store: store, opts: opts, describe: describe}, nil
}

// NewFSSource creates a Source reading chunk files under root.
func NewFSSource(root string, opts Options) (*Source, error) {
	if root == "" {
		return nil, errors.New("fs source root is required")
	}
	return NewSource(lode.NewFSFactory(root), opts, "fs:"+root)
}

// Path returns the object path for chunk index.
func (s *Source) Path(index int) string {
	name := s.opts.Prefix + source.FileName(s.opts.FilePattern, index)
	if s.opts.Compression == CompressionZstd {
		name += ZstdSuffix
	}
	return name
}

// Fetch reads chunk index from the store.
// A missing object reports source.ErrNotFound: the chunk has not been
// written yet, which the fetcher treats like any other transport failure.
func (s *Source) Fetch(ctx context.Context, index int) (string, error) {
	path := s.Path(index)

	ok, err := s.store.Exists(ctx, path)
	if err != nil {
		return "", source.Wrap(err, index)
	}
	if !ok {
		return "", &source.FetchError{Kind: source.ErrNotFound, Index: index, Err: fmt.Errorf("object %s", path)}
	}

	rc, err := s.store.Get(ctx, path)
	if err != nil {
		return "", source.Wrap(err, index)
	}
	defer iox.DiscardClose(rc)

	data, err := io.ReadAll(io.LimitReader(rc, MaxObjectBytes+1))
	if err != nil {
		return "", source.Wrap(err, index)
	}
	if len(data) > MaxObjectBytes {
		return "", &source.FetchError{Kind: source.ErrDecode, Index: index, Err: errObjectTooLarge}
	}

	if s.opts.Compression == CompressionZstd {
		data, err = s.decompress(data)
		if err != nil {
			return "", &source.FetchError{Kind: source.ErrDecode, Index: index, Err: err}
		}
	}
	return string(data), nil
}

// decompress inflates a zstd frame. A chunk still being written may be a
// truncated frame; that surfaces as a decode error and is retried.
func (s *Source) decompress(data []byte) ([]byte, error) {
	s.decOnce.Do(func() {
		s.dec, s.decErr = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxObjectBytes))
	})
	if s.decErr != nil {
		return nil, s.decErr
	}
	out, err := s.dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}
	return out, nil
}

// Describe implements source.ChunkSource.
func (s *Source) Describe() string {
	if s.opts.Prefix == "" {
		return s.describe
	}
	return s.describe + "/" + strings.TrimSuffix(s.opts.Prefix, "/")
}

// Close releases the decoder.
func (s *Source) Close() error {
	if s.dec != nil {
		s.dec.Close()
	}
	return nil
}

// EncodeZstd compresses content the way Source expects to read it.
// Used by tooling and tests that stage chunk objects.
func EncodeZstd(content string) ([]byte, error) {
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, err
	}
	if _, err := enc.Write([]byte(content)); err != nil {
		_ = enc.Close()
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var _ source.ChunkSource = (*Source)(nil)
