package lode

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/justapithecus/lode/lode"

	"github.com/justapithecus/tankreplay/iox"
	"github.com/justapithecus/tankreplay/source"
)

// FailingStore is a lode.Store that returns configurable errors.
type FailingStore struct {
	GetErr    error
	ExistsErr error
	Present   bool

	GetCalls int
}

func (s *FailingStore) Put(_ context.Context, _ string, _ io.Reader) error {
	return errors.New("not implemented")
}

func (s *FailingStore) Get(_ context.Context, _ string) (io.ReadCloser, error) {
	s.GetCalls++
	return nil, s.GetErr
}

func (s *FailingStore) Exists(_ context.Context, _ string) (bool, error) {
	return s.Present, s.ExistsErr
}

func (s *FailingStore) List(_ context.Context, _ string) ([]string, error) {
	return nil, errors.New("not implemented")
}

func (s *FailingStore) Delete(_ context.Context, _ string) error {
	return errors.New("not implemented")
}

func (s *FailingStore) ReadRange(_ context.Context, _ string, _, _ int64) ([]byte, error) {
	return nil, errors.New("not implemented")
}

func (s *FailingStore) ReaderAt(_ context.Context, _ string) (io.ReaderAt, error) {
	return nil, errors.New("not implemented")
}

var _ lode.Store = (*FailingStore)(nil)

func sharedFactory(store lode.Store) lode.StoreFactory {
	return func() (lode.Store, error) { return store, nil }
}

func put(t *testing.T, store lode.Store, path string, data []byte) {
	t.Helper()
	if err := store.Put(t.Context(), path, bytes.NewReader(data)); err != nil {
		t.Fatalf("Put(%s) failed: %v", path, err)
	}
}

func TestSource_FetchMemory(t *testing.T) {
	store := lode.NewMemory()
	content := `{"map": [["w", "h"], "..\r\n"]}` + "\n" + `"EOF"` + "\n"
	put(t, store, "match-7/replay-1.txt", []byte(content))

	src, err := NewSource(sharedFactory(store), Options{Prefix: "match-7/"}, "memory")
	if err != nil {
		t.Fatalf("NewSource failed: %v", err)
	}
	t.Cleanup(iox.CloseFunc(src))

	got, err := src.Fetch(t.Context(), 1)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if got != content {
		t.Errorf("content = %q, want %q", got, content)
	}
	if src.Describe() != "memory/match-7" {
		t.Errorf("Describe() = %q, want %q", src.Describe(), "memory/match-7")
	}
}

func TestSource_FetchMissingIsNotFound(t *testing.T) {
	src, err := NewSource(lode.NewMemoryFactory(), Options{}, "memory")
	if err != nil {
		t.Fatalf("NewSource failed: %v", err)
	}

	_, err = src.Fetch(t.Context(), 3)
	if !errors.Is(err, source.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	var fetchErr *source.FetchError
	if !errors.As(err, &fetchErr) || fetchErr.Index != 3 {
		t.Errorf("expected FetchError for index 3, got %#v", err)
	}
}

func TestSource_FetchZstd(t *testing.T) {
	store := lode.NewMemory()
	content := `{"updated_objects": {"tank-1": {"hp": 100}}}` + "\n"
	encoded, err := EncodeZstd(content)
	if err != nil {
		t.Fatalf("EncodeZstd failed: %v", err)
	}
	put(t, store, "replay-2.txt.zst", encoded)

	src, err := NewSource(sharedFactory(store), Options{Compression: CompressionZstd}, "memory")
	if err != nil {
		t.Fatalf("NewSource failed: %v", err)
	}
	t.Cleanup(iox.CloseFunc(src))

	if p := src.Path(2); p != "replay-2.txt.zst" {
		t.Errorf("Path(2) = %q, want %q", p, "replay-2.txt.zst")
	}
	got, err := src.Fetch(t.Context(), 2)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if got != content {
		t.Errorf("content = %q, want %q", got, content)
	}
}

func TestSource_FetchCorruptZstdIsDecodeError(t *testing.T) {
	store := lode.NewMemory()
	put(t, store, "replay-1.txt.zst", []byte("not a zstd frame"))

	src, err := NewSource(sharedFactory(store), Options{Compression: CompressionZstd}, "memory")
	if err != nil {
		t.Fatalf("NewSource failed: %v", err)
	}
	t.Cleanup(iox.CloseFunc(src))

	_, err = src.Fetch(t.Context(), 1)
	if !errors.Is(err, source.ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
}

func TestSource_FetchFS(t *testing.T) {
	root := t.TempDir()
	content := `"EOF"` + "\n"
	if err := os.WriteFile(filepath.Join(root, "chunk_1.log"), []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	src, err := NewFSSource(root, Options{FilePattern: "chunk_%d.log"})
	if err != nil {
		t.Fatalf("NewFSSource failed: %v", err)
	}
	t.Cleanup(iox.CloseFunc(src))

	got, err := src.Fetch(t.Context(), 1)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if got != content {
		t.Errorf("content = %q, want %q", got, content)
	}
	if !strings.HasPrefix(src.Describe(), "fs:") {
		t.Errorf("Describe() = %q, want fs: prefix", src.Describe())
	}

	if _, err := src.Fetch(t.Context(), 2); !errors.Is(err, source.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unwritten chunk, got %v", err)
	}
}

func TestSource_StoreErrorsAreClassified(t *testing.T) {
	tests := []struct {
		name  string
		store *FailingStore
		want  error
	}{
		{
			name:  "exists timeout",
			store: &FailingStore{ExistsErr: context.DeadlineExceeded},
			want:  source.ErrTimeout,
		},
		{
			name:  "get access denied",
			store: &FailingStore{Present: true, GetErr: errors.New("AccessDenied: not allowed")},
			want:  source.ErrAccessDenied,
		},
		{
			name:  "get connection refused",
			store: &FailingStore{Present: true, GetErr: errors.New("dial tcp 127.0.0.1:9000: connection refused")},
			want:  source.ErrNetwork,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := NewSource(sharedFactory(tt.store), Options{}, "failing")
			if err != nil {
				t.Fatalf("NewSource failed: %v", err)
			}
			_, err = src.Fetch(t.Context(), 1)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestSource_MissingObjectSkipsGet(t *testing.T) {
	store := &FailingStore{}
	src, err := NewSource(sharedFactory(store), Options{}, "failing")
	if err != nil {
		t.Fatalf("NewSource failed: %v", err)
	}
	if _, err := src.Fetch(t.Context(), 1); !errors.Is(err, source.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if store.GetCalls != 0 {
		t.Errorf("Get called %d times, want 0", store.GetCalls)
	}
}

func TestNewSource_FactoryFailure(t *testing.T) {
	factory := func() (lode.Store, error) { return nil, errors.New("boom") }
	if _, err := NewSource(factory, Options{}, "x"); err == nil {
		t.Fatal("expected error from failing factory")
	}
}

func TestOptions_Validate(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{"defaults", Options{}, false},
		{"zstd", Options{Compression: CompressionZstd}, false},
		{"none", Options{Compression: CompressionNone}, false},
		{"gzip", Options{Compression: "gzip"}, true},
		{"pattern without verb", Options{FilePattern: "replay.txt"}, true},
		{"custom pattern", Options{FilePattern: "r_%d.json"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestS3Config_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     S3Config
		wantErr bool
	}{
		{"valid", S3Config{Bucket: "replays"}, false},
		{"with prefix and region", S3Config{Bucket: "replays", Prefix: "m/", Region: "us-east-1"}, false},
		{"missing bucket", S3Config{Prefix: "m/"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewS3Source_MissingBucket(t *testing.T) {
	if _, err := NewS3Source(t.Context(), S3Config{}, Options{}); err == nil {
		t.Fatal("expected error for missing bucket")
	}
}

func TestParseS3Path(t *testing.T) {
	tests := []struct {
		path, bucket, prefix string
	}{
		{"replays", "replays", ""},
		{"replays/match-1", "replays", "match-1"},
		{"replays/a/b/c", "replays", "a/b/c"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			bucket, prefix := ParseS3Path(tt.path)
			if bucket != tt.bucket || prefix != tt.prefix {
				t.Errorf("ParseS3Path(%q) = (%q, %q), want (%q, %q)", tt.path, bucket, prefix, tt.bucket, tt.prefix)
			}
		})
	}
}
