package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_FullConfig(t *testing.T) {
	yaml := `source:
  base_url: http://localhost:8000/
  backend: s3
  path: replays/match-42
  region: us-east-1
  endpoint: https://s3.example.com
  s3_path_style: true
  compression: zstd
  file_pattern: turn-%d.log
  headers:
    X-Match: "42"

poll:
  interval: 250ms
  request_timeout: 3s
  max_attempts: 50
  deadline: 10m
  max_chunks: 200
  max_backoff: 4s
  max_in_flight: 3

records:
  malformed: fail

adapter:
  type: webhook
  url: https://hooks.example.com/tankreplay
  headers:
    Authorization: Bearer token123
  timeout: 10s
  retries: 3

serve:
  addr: 0.0.0.0:9000
  allow_remote: true
`
	path := writeTemp(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// Source
	assertEqual(t, "source.base_url", cfg.Source.BaseURL, "http://localhost:8000/")
	assertEqual(t, "source.backend", cfg.Source.Backend, "s3")
	assertEqual(t, "source.path", cfg.Source.Path, "replays/match-42")
	assertEqual(t, "source.region", cfg.Source.Region, "us-east-1")
	assertEqual(t, "source.endpoint", cfg.Source.Endpoint, "https://s3.example.com")
	assertEqual(t, "source.compression", cfg.Source.Compression, "zstd")
	assertEqual(t, "source.file_pattern", cfg.Source.FilePattern, "turn-%d.log")
	assertEqual(t, "source.headers", cfg.Source.Headers["X-Match"], "42")
	if !cfg.Source.S3PathStyle {
		t.Error("expected source.s3_path_style=true")
	}

	// Poll
	if cfg.Poll.Interval.Duration != 250*time.Millisecond {
		t.Errorf("expected poll.interval=250ms, got %v", cfg.Poll.Interval.Duration)
	}
	if cfg.Poll.RequestTimeout.Duration != 3*time.Second {
		t.Errorf("expected poll.request_timeout=3s, got %v", cfg.Poll.RequestTimeout.Duration)
	}
	if cfg.Poll.Deadline.Duration != 10*time.Minute {
		t.Errorf("expected poll.deadline=10m, got %v", cfg.Poll.Deadline.Duration)
	}
	if cfg.Poll.MaxBackoff.Duration != 4*time.Second {
		t.Errorf("expected poll.max_backoff=4s, got %v", cfg.Poll.MaxBackoff.Duration)
	}
	if cfg.Poll.MaxAttempts != 50 || cfg.Poll.MaxChunks != 200 || cfg.Poll.MaxInFlight != 3 {
		t.Errorf("poll limits = %+v", cfg.Poll)
	}

	// Records
	assertEqual(t, "records.malformed", cfg.Records.Malformed, "fail")

	// Adapter
	assertEqual(t, "adapter.type", cfg.Adapter.Type, "webhook")
	assertEqual(t, "adapter.url", cfg.Adapter.URL, "https://hooks.example.com/tankreplay")
	if cfg.Adapter.Timeout.Duration != 10*time.Second {
		t.Errorf("expected adapter.timeout=10s, got %v", cfg.Adapter.Timeout.Duration)
	}
	if cfg.Adapter.Retries == nil || *cfg.Adapter.Retries != 3 {
		t.Errorf("expected adapter.retries=3")
	}
	if cfg.Adapter.Headers["Authorization"] != "Bearer token123" {
		t.Errorf("expected Authorization header")
	}

	// Serve
	assertEqual(t, "serve.addr", cfg.Serve.Addr, "0.0.0.0:9000")
	if !cfg.Serve.AllowRemote {
		t.Error("expected serve.allow_remote=true")
	}
}

func TestLoad_EmptyDocuments(t *testing.T) {
	tests := map[string]string{
		"empty":          "",
		"whitespace":     "   \n  \n  \n",
		"comments only":  "# replay config\n# nothing set\n",
		"document start": "---\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			cfg, err := Load(writeTemp(t, content))
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if cfg.Source.BaseURL != "" || cfg.Poll.Interval.Duration != 0 {
				t.Errorf("expected zero config, got %+v", cfg)
			}
		})
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/replay.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !strings.Contains(err.Error(), "config file not found") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeTemp(t, "{{invalid yaml"))
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_REPLAY_URL", "http://replays.internal:8000/")

	cfg, err := Load(writeTemp(t, "source:\n  base_url: ${TEST_REPLAY_URL}\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	assertEqual(t, "source.base_url", cfg.Source.BaseURL, "http://replays.internal:8000/")
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		key  string
	}{
		{"top level", "source:\n  base_url: http://h/\nbogus_key: should_fail\n", "bogus_key"},
		{"nested", "poll:\n  interval: 200ms\n  unknown_field: bad\n", "unknown_field"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeTemp(t, tt.yaml))
			if err == nil {
				t.Fatal("expected error for unknown key, got nil")
			}
			if !strings.Contains(err.Error(), tt.key) {
				t.Errorf("error should mention %q, got: %v", tt.key, err)
			}
		})
	}
}

func TestLoad_RetriesZeroDistinctFromNil(t *testing.T) {
	cfg, err := Load(writeTemp(t, "adapter:\n  type: webhook\n  url: https://example.com\n  retries: 0\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Adapter.Retries == nil || *cfg.Adapter.Retries != 0 {
		t.Errorf("expected retries=0 pointer, got %v", cfg.Adapter.Retries)
	}

	cfg, err = Load(writeTemp(t, "adapter:\n  type: webhook\n  url: https://example.com\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Adapter.Retries != nil {
		t.Errorf("expected nil retries when omitted, got %d", *cfg.Adapter.Retries)
	}
}

func TestDuration_UnmarshalYAML(t *testing.T) {
	tests := []struct {
		value   string
		want    time.Duration
		wantErr bool
	}{
		{`"200ms"`, 200 * time.Millisecond, false},
		{`"1m30s"`, 90 * time.Second, false},
		{`""`, 0, false},
		{`"fast"`, 0, true},
		{`"-1s"`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			cfg, err := Load(writeTemp(t, "poll:\n  interval: "+tt.value+"\n"))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %s", tt.value)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if cfg.Poll.Interval.Duration != tt.want {
				t.Errorf("interval = %v, want %v", cfg.Poll.Interval.Duration, tt.want)
			}
		})
	}
}

func TestLoad_RedisAdapterConfig(t *testing.T) {
	yaml := `adapter:
  type: redis
  url: redis://localhost:6379/0
  channel: tankreplay:finished
  timeout: 2s
`
	cfg, err := Load(writeTemp(t, yaml))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	assertEqual(t, "adapter.type", cfg.Adapter.Type, "redis")
	assertEqual(t, "adapter.url", cfg.Adapter.URL, "redis://localhost:6379/0")
	assertEqual(t, "adapter.channel", cfg.Adapter.Channel, "tankreplay:finished")
	if cfg.Adapter.Timeout.Duration != 2*time.Second {
		t.Errorf("expected adapter.timeout=2s, got %v", cfg.Adapter.Timeout.Duration)
	}
}

// writeTemp writes content to a temp file and returns the path.
func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "replay.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func assertEqual(t *testing.T, field, got, want string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: got %q, want %q", field, got, want)
	}
}
