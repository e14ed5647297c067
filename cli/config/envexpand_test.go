package config

import (
	"strings"
	"testing"
)

func TestExpandValue(t *testing.T) {
	t.Setenv("REPLAY_HOST", "replays.example.com")
	t.Setenv("REPLAY_PORT", "8000")
	t.Setenv("REPLAY_EMPTY", "")

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"set var", "http://${REPLAY_HOST}/", "http://replays.example.com/"},
		{"unset var", "${REPLAY_UNSET_12345}", ""},
		{"default when unset", "${REPLAY_UNSET_12345:-localhost}", "localhost"},
		{"default ignored when set", "${REPLAY_PORT:-9000}", "8000"},
		{"default when empty", "${REPLAY_EMPTY:-9000}", "9000"},
		{"required and set", "${REPLAY_HOST:?host missing}", "replays.example.com"},
		{"multiple vars", "http://${REPLAY_HOST}:${REPLAY_PORT}/", "http://replays.example.com:8000/"},
		{"bare dollar untouched", "cost: $5", "cost: $5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := expandValue("source.base_url", tt.input)
			if err != nil {
				t.Fatalf("expandValue: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExpandValue_Required(t *testing.T) {
	t.Setenv("REPLAY_EMPTY", "")

	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{"unset with message", "${REPLAY_UNSET_12345:?set the replay host}", "adapter.url: ${REPLAY_UNSET_12345}: set the replay host"},
		{"empty without message", "Bearer ${REPLAY_EMPTY:?}", "adapter.url: ${REPLAY_EMPTY}: required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := expandValue("adapter.url", tt.input)
			if err == nil {
				t.Fatal("expected error")
			}
			if err.Error() != tt.wantErr {
				t.Errorf("error = %q, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_ExpandsSecretsInHeaders(t *testing.T) {
	t.Setenv("HOOK_TOKEN", "secret")

	cfg, err := Load(writeTemp(t, `adapter:
  type: webhook
  url: https://hooks.example.com
  headers:
    Authorization: Bearer ${HOOK_TOKEN}
source:
  base_url: http://replays.local/
  headers:
    X-Match: ${REPLAY_MATCH_UNSET:-7}
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	assertEqual(t, "adapter.headers.Authorization", cfg.Adapter.Headers["Authorization"], "Bearer secret")
	assertEqual(t, "source.headers.X-Match", cfg.Source.Headers["X-Match"], "7")
}

func TestLoad_ExpansionLimitedToSourceAndAdapter(t *testing.T) {
	t.Setenv("REPLAY_ADDR", "0.0.0.0:9000")

	cfg, err := Load(writeTemp(t, "serve:\n  addr: ${REPLAY_ADDR}\nrecords:\n  malformed: skip\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	assertEqual(t, "serve.addr", cfg.Serve.Addr, "${REPLAY_ADDR}")
}

func TestLoad_RequiredVariableMissing(t *testing.T) {
	_, err := Load(writeTemp(t, "adapter:\n  url: ${REPLAY_HOOK_UNSET_12345:?webhook URL}\n"))
	if err == nil {
		t.Fatal("expected error for missing required variable")
	}
	if !strings.Contains(err.Error(), "adapter.url") || !strings.Contains(err.Error(), "webhook URL") {
		t.Errorf("error should name the field and message, got: %v", err)
	}
}
