package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/justapithecus/tankreplay/adapter"
	"github.com/justapithecus/tankreplay/iox"
	"github.com/justapithecus/tankreplay/lode"
	"github.com/justapithecus/tankreplay/log"
	"github.com/justapithecus/tankreplay/metrics"
	"github.com/justapithecus/tankreplay/record"
	"github.com/justapithecus/tankreplay/source"
	"github.com/justapithecus/tankreplay/store"
	"github.com/justapithecus/tankreplay/types"
)

// Source backends.
const (
	BackendHTTP = "http"
	BackendFS   = "fs"
	BackendS3   = "s3"
)

// DefaultPublishTimeout bounds the match_finished publish after a session ends.
const DefaultPublishTimeout = 30 * time.Second

// SourceConfig selects and configures the chunk source.
type SourceConfig struct {
	// Backend is "http" (default), "fs" or "s3".
	Backend string
	// BaseURL is the replay server address (http backend).
	BaseURL string
	// Path is a directory (fs) or "bucket/prefix" (s3).
	Path string
	// Region is the AWS region (s3, optional).
	Region string
	// Endpoint is a custom S3-compatible endpoint (s3, optional).
	Endpoint string
	// PathStyle forces path-style S3 addressing.
	PathStyle bool
	// Compression is "none" or "zstd" (fs, s3).
	Compression string
	// FilePattern overrides source.DefaultFilePattern.
	FilePattern string
	// RequestTimeout bounds one HTTP request.
	RequestTimeout time.Duration
	// Headers are sent with every HTTP request.
	Headers map[string]string
}

func (c SourceConfig) backend() string {
	if c.Backend == "" {
		return BackendHTTP
	}
	return c.Backend
}

// Validate checks the source settings without contacting the source.
func (c SourceConfig) Validate() error {
	if err := source.ValidatePattern(c.FilePattern); err != nil {
		return &ConfigError{Field: "source.file_pattern", Err: err}
	}
	if c.RequestTimeout < 0 {
		return &ConfigError{Field: "poll.request_timeout", Err: fmt.Errorf("must be >= 0, got %v", c.RequestTimeout)}
	}
	switch c.backend() {
	case BackendHTTP:
		if _, err := source.ParseBaseURL(c.BaseURL); err != nil {
			return &ConfigError{Field: "source.base_url", Err: err}
		}
	case BackendFS, BackendS3:
		if c.Path == "" {
			return &ConfigError{Field: "source.path", Err: fmt.Errorf("required for %s backend", c.backend())}
		}
		opts := lode.Options{Compression: c.Compression, FilePattern: c.FilePattern}
		if err := opts.Validate(); err != nil {
			return &ConfigError{Field: "source.compression", Err: err}
		}
	default:
		return &ConfigError{Field: "source.backend", Err: fmt.Errorf("unknown backend %q (expected http, fs or s3)", c.Backend)}
	}
	return nil
}

// Describe returns the source location used in session metadata.
func (c SourceConfig) Describe() string {
	switch c.backend() {
	case BackendFS:
		return "fs:" + c.Path
	case BackendS3:
		return "s3://" + c.Path
	default:
		return c.BaseURL
	}
}

// OpenSource constructs the configured chunk source.
func OpenSource(ctx context.Context, c SourceConfig) (source.ChunkSource, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	opts := lode.Options{
		FilePattern: c.FilePattern,
		Compression: c.Compression,
	}
	switch c.backend() {
	case BackendFS:
		src, err := lode.NewFSSource(c.Path, opts)
		if err != nil {
			return nil, err
		}
		return src, nil
	case BackendS3:
		bucket, prefix := lode.ParseS3Path(c.Path)
		src, err := lode.NewS3Source(ctx, lode.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       c.Region,
			Endpoint:     c.Endpoint,
			UsePathStyle: c.PathStyle,
		}, opts)
		if err != nil {
			return nil, err
		}
		return src, nil
	default:
		src, err := source.NewHTTPSource(source.HTTPConfig{
			BaseURL:     c.BaseURL,
			FilePattern: c.FilePattern,
			Timeout:     c.RequestTimeout,
			Headers:     c.Headers,
		})
		if err != nil {
			return nil, err
		}
		return src, nil
	}
}

// SessionConfig configures one ingestion session.
type SessionConfig struct {
	// SessionID identifies the session in logs and events.
	// A random UUID is generated when empty.
	SessionID string
	// Source selects where chunks come from.
	Source SourceConfig
	// Poll configures cadence and limits.
	Poll FetcherConfig
	// Malformed is the policy for lines that fail to decode (default skip).
	Malformed record.MalformedPolicy
	// ChunkSource overrides Source (for testing and embedding).
	ChunkSource source.ChunkSource
	// Adapter is notified once the match finishes. Optional.
	Adapter adapter.Adapter
	// PublishTimeout bounds the adapter publish (default 30s).
	PublishTimeout time.Duration
	// Logger overrides the default stderr logger.
	Logger *log.Logger
}

// Validate checks the configuration. It never constructs a component.
func (c *SessionConfig) Validate() error {
	if c.ChunkSource == nil {
		if err := c.Source.Validate(); err != nil {
			return err
		}
	}
	if c.Malformed != "" {
		if _, err := record.ParsePolicy(string(c.Malformed)); err != nil {
			return &ConfigError{Field: "records.malformed", Err: err}
		}
	}
	if c.PublishTimeout < 0 {
		return &ConfigError{Field: "adapter.timeout", Err: fmt.Errorf("must be >= 0, got %v", c.PublishTimeout)}
	}
	return c.Poll.Validate()
}

// SessionResult summarises a finished or stopped session.
type SessionResult struct {
	// Meta is the session identity.
	Meta types.SessionMeta
	// Progress is the final ingestion progress.
	Progress types.Progress
	// Outcome is set when a termination record was ingested.
	Outcome *types.Outcome
	// Objects is the number of distinct objects ever created.
	Objects int
	// Duration is the wall time of Run.
	Duration time.Duration
	// Published reports whether match_finished was delivered.
	Published bool
	// PublishError is the adapter failure, if any. It does not fail the session.
	PublishError string
}

// Session owns the ingestion pipeline for one replay.
type Session struct {
	config    *SessionConfig
	meta      types.SessionMeta
	src       source.ChunkSource
	state     *store.State
	logger    *log.Logger
	collector *metrics.Collector
	fetcher   *Fetcher
}

// NewSession validates config and builds the pipeline.
// Configuration errors are returned before any source is opened.
func NewSession(ctx context.Context, config *SessionConfig) (*Session, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	policy := config.Malformed
	if policy == "" {
		policy = record.PolicySkip
	}
	parser, err := record.NewParser(policy)
	if err != nil {
		return nil, &ConfigError{Field: "records.malformed", Err: err}
	}

	src := config.ChunkSource
	if src == nil {
		src, err = OpenSource(ctx, config.Source)
		if err != nil {
			return nil, fmt.Errorf("failed to open chunk source: %w", err)
		}
	}

	meta := types.SessionMeta{SessionID: config.SessionID, Source: config.Source.Describe()}
	if meta.SessionID == "" {
		meta.SessionID = uuid.NewString()
	}
	if config.ChunkSource != nil || meta.Source == "" {
		meta.Source = src.Describe()
	}

	logger := config.Logger
	if logger == nil {
		logger = log.NewLogger(&meta)
	}

	backend := config.Source.backend()
	if config.ChunkSource != nil {
		backend = "custom"
	}
	collector := metrics.NewCollector(meta.SessionID, backend, string(policy))

	state := store.New()
	recon := NewReconstructor(state, logger, collector)
	fetcher := NewFetcher(config.Poll, src, parser, recon, state, logger, collector)

	return &Session{
		config:    config,
		meta:      meta,
		src:       src,
		state:     state,
		logger:    logger,
		collector: collector,
		fetcher:   fetcher,
	}, nil
}

// Meta returns the session identity.
func (s *Session) Meta() types.SessionMeta { return s.meta }

// State returns the ingestion state. Consumers read it while Run is active.
func (s *Session) State() *store.State { return s.state }

// Collector returns the session metrics.
func (s *Session) Collector() *metrics.Collector { return s.collector }

// Logger returns the session logger.
func (s *Session) Logger() *log.Logger { return s.logger }

// Run polls until the match finishes, a limit is reached or ctx is
// canceled. The result is always non-nil; the error follows Fetcher.Run.
// On finish the adapter, if any, is notified once. A publish failure is
// recorded in the result and logged but does not fail the session.
func (s *Session) Run(ctx context.Context) (*SessionResult, error) {
	start := time.Now()
	s.logger.Info("session started", map[string]any{
		"malformed_policy": s.collector.Snapshot().MalformedPolicy,
	})

	runErr := s.fetcher.Run(ctx)

	result := s.buildResult(time.Since(start))
	if runErr != nil {
		s.logger.Warn("session stopped", map[string]any{
			"error":      runErr.Error(),
			"next_index": result.Progress.NextIndex,
			"timesteps":  result.Progress.Timesteps,
		})
		return result, runErr
	}

	s.logger.Info("session finished", map[string]any{
		"chunks":      result.Progress.ChunksIngested,
		"timesteps":   result.Progress.Timesteps,
		"winners":     result.Outcome.Winners,
		"losers":      result.Outcome.Losers,
		"duration_ms": result.Duration.Milliseconds(),
	})

	if s.config.Adapter != nil {
		s.publish(ctx, result)
	}
	return result, nil
}

func (s *Session) buildResult(elapsed time.Duration) *SessionResult {
	result := &SessionResult{
		Meta:     s.meta,
		Progress: s.state.Progress(),
		Objects:  len(s.state.CreationTable()),
		Duration: elapsed,
	}
	if outcome, ok := s.state.Outcome(); ok {
		result.Outcome = &outcome
	}
	return result
}

// publish delivers match_finished on a context detached from ctx, so a
// shutdown right after the finish still lets the event go out.
func (s *Session) publish(ctx context.Context, result *SessionResult) {
	timeout := s.config.PublishTimeout
	if timeout == 0 {
		timeout = DefaultPublishTimeout
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	event := adapter.NewMatchFinishedEvent(s.meta, *result.Outcome, result.Progress, result.Objects, time.Now(), result.Duration)
	if err := s.config.Adapter.Publish(pubCtx, event); err != nil {
		result.PublishError = err.Error()
		s.logger.Error("match_finished publish failed", map[string]any{"error": err.Error()})
		return
	}
	result.Published = true
	s.logger.Info("match_finished published", nil)
}

// Close releases the source and the adapter and flushes the logger.
func (s *Session) Close() error {
	defer iox.DiscardErr(s.logger.Sync)
	var errs []error
	if err := s.src.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close source: %w", err))
	}
	if s.config.Adapter != nil {
		if err := s.config.Adapter.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close adapter: %w", err))
		}
	}
	return errors.Join(errs...)
}
