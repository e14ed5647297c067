package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/justapithecus/tankreplay/iox"
)

// ContentEndpoint is the replay server path serving chunk content.
const ContentEndpoint = "get_replay_file_content/"

// DefaultRequestTimeout bounds a single chunk request.
const DefaultRequestTimeout = 10 * time.Second

// MaxResponseBytes caps the response body read for one chunk.
const MaxResponseBytes = 64 << 20

// HTTPConfig configures the HTTP chunk source.
type HTTPConfig struct {
	// BaseURL is the replay server root (required).
	BaseURL string
	// FilePattern formats the chunk file name (default "replay-%d.txt").
	FilePattern string
	// Timeout is the per-request timeout (default 10s).
	Timeout time.Duration
	// Headers are added to every request.
	Headers map[string]string
	// Client overrides the HTTP client. Its Timeout is left untouched.
	Client *http.Client
}

// HTTPSource fetches chunks with one GET per request:
//
//	<base>/get_replay_file_content/?file_name=replay-<index>.txt
//
// The response body is a JSON object whose "content" field holds the text.
type HTTPSource struct {
	base    *url.URL
	pattern string
	timeout time.Duration
	headers map[string]string
	client  *http.Client
}

// contentResponse is the success payload of the content endpoint.
type contentResponse struct {
	Content *string `json:"content"`
}

// ParseBaseURL validates a replay server root.
// An empty value returns ErrMissingBaseURL.
func ParseBaseURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrMissingBaseURL
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: missing host", raw)
	}
	return u, nil
}

// NewHTTPSource creates an HTTP chunk source.
func NewHTTPSource(cfg HTTPConfig) (*HTTPSource, error) {
	base, err := ParseBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	if err := ValidatePattern(cfg.FilePattern); err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRequestTimeout
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPSource{
		base:    base,
		pattern: cfg.FilePattern,
		timeout: cfg.Timeout,
		headers: cfg.Headers,
		client:  client,
	}, nil
}

// ChunkURL returns the request URL for index.
func (s *HTTPSource) ChunkURL(index int) string {
	u := s.base.JoinPath(ContentEndpoint)
	q := url.Values{}
	q.Set("file_name", FileName(s.pattern, index))
	u.RawQuery = q.Encode()
	return u.String()
}

// Fetch performs one GET for the chunk at index.
// Non-2xx statuses return a *FetchError wrapping *StatusError.
func (s *HTTPSource) Fetch(ctx context.Context, index int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.ChunkURL(index), nil)
	if err != nil {
		return "", Wrap(fmt.Errorf("create request: %w", err), index)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", Wrap(err, index)
	}
	defer iox.DrainClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", Wrap(&StatusError{Code: resp.StatusCode}, index)
	}

	var payload contentResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, MaxResponseBytes)).Decode(&payload); err != nil {
		return "", &FetchError{Kind: ErrDecode, Index: index, Err: err}
	}
	if payload.Content == nil {
		return "", &FetchError{Kind: ErrDecode, Index: index, Err: fmt.Errorf("response has no content field")}
	}
	return *payload.Content, nil
}

// Describe returns the base URL.
func (s *HTTPSource) Describe() string {
	return s.base.String()
}

// Close releases idle connections.
func (s *HTTPSource) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
