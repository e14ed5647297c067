package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/justapithecus/tankreplay/log"
	"github.com/justapithecus/tankreplay/metrics"
	"github.com/justapithecus/tankreplay/record"
	"github.com/justapithecus/tankreplay/source"
	"github.com/justapithecus/tankreplay/store"
	"github.com/justapithecus/tankreplay/types"
)

// Polling defaults.
const (
	DefaultPollInterval = 200 * time.Millisecond
	DefaultMaxBackoff   = 5 * time.Second
	DefaultMaxInFlight  = 2
)

// errDeadlineReached is the cancel cause when FetcherConfig.Deadline expires.
var errDeadlineReached = errors.New("polling deadline reached")

// FetcherConfig configures the chunk fetcher. Zero limits are unlimited.
type FetcherConfig struct {
	// Interval is the poll cadence (default 200ms).
	Interval time.Duration
	// MaxAttempts stops the session after this many failed or incomplete
	// polls of the same chunk index.
	MaxAttempts int
	// Deadline is a wall-clock ceiling for the whole session.
	Deadline time.Duration
	// MaxChunks stops the session once this many chunks were ingested
	// without a termination record.
	MaxChunks int
	// MaxBackoff caps the delay between polls after repeated transport failures.
	MaxBackoff time.Duration
	// MaxInFlight caps overlapping requests (default 2).
	MaxInFlight int
}

// Validate checks the limits. Negative values are rejected.
func (c FetcherConfig) Validate() error {
	switch {
	case c.Interval < 0:
		return &ConfigError{Field: "poll.interval", Err: fmt.Errorf("must be >= 0, got %v", c.Interval)}
	case c.MaxAttempts < 0:
		return &ConfigError{Field: "poll.max_attempts", Err: fmt.Errorf("must be >= 0, got %d", c.MaxAttempts)}
	case c.Deadline < 0:
		return &ConfigError{Field: "poll.deadline", Err: fmt.Errorf("must be >= 0, got %v", c.Deadline)}
	case c.MaxChunks < 0:
		return &ConfigError{Field: "poll.max_chunks", Err: fmt.Errorf("must be >= 0, got %d", c.MaxChunks)}
	case c.MaxBackoff < 0:
		return &ConfigError{Field: "poll.max_backoff", Err: fmt.Errorf("must be >= 0, got %v", c.MaxBackoff)}
	case c.MaxInFlight < 0:
		return &ConfigError{Field: "poll.max_in_flight", Err: fmt.Errorf("must be >= 0, got %d", c.MaxInFlight)}
	}
	return nil
}

func (c FetcherConfig) withDefaults() FetcherConfig {
	if c.Interval == 0 {
		c.Interval = DefaultPollInterval
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = DefaultMaxBackoff
	}
	if c.MaxInFlight == 0 {
		c.MaxInFlight = DefaultMaxInFlight
	}
	return c
}

// Fetcher polls a chunk source for the next unseen chunk and drives the
// parser and reconstructor for every complete response.
//
// Advancement is strictly sequential: only a complete response for the
// current index is applied. Responses for any other index, for an index
// already archived, or arriving after the state finished are dropped
// without side effects.
type Fetcher struct {
	config    FetcherConfig
	src       source.ChunkSource
	parser    *record.Parser
	recon     *Reconstructor
	state     *store.State
	logger    *log.Logger
	collector *metrics.Collector

	slots chan struct{}

	mu              sync.Mutex
	transportStreak int
	retryAt         time.Time
	now             func() time.Time
}

// NewFetcher creates a fetcher. logger and collector may be nil.
func NewFetcher(
	config FetcherConfig,
	src source.ChunkSource,
	parser *record.Parser,
	recon *Reconstructor,
	state *store.State,
	logger *log.Logger,
	collector *metrics.Collector,
) *Fetcher {
	config = config.withDefaults()
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Fetcher{
		config:    config,
		src:       src,
		parser:    parser,
		recon:     recon,
		state:     state,
		logger:    logger,
		collector: collector,
		slots:     make(chan struct{}, config.MaxInFlight),
		now:       time.Now,
	}
}

// PollNext issues one request for the current chunk index and applies the
// response. It returns nil when a chunk was applied or the response was
// dropped, and a retriable *IngestionError when the same index must be
// requested again. Once the state has finished it returns nil at once.
func (f *Fetcher) PollNext(ctx context.Context) error {
	// Finish and the final index advance happen in one update, so checking
	// Finished after reading the index never requests past the end.
	index := f.state.NextIndex()
	if f.state.Finished() || f.pastChunkCap(index) {
		return nil
	}

	f.collector.IncPollsIssued()
	content, fetchErr := f.src.Fetch(ctx, index)
	if fetchErr != nil && ctx.Err() != nil {
		// Canceled requests are not attempts against the server.
		if f.state.Finished() {
			f.collector.IncLateResponsesDropped()
			return nil
		}
		return &IngestionError{Kind: IngestionErrorCanceled, Index: index, Err: ctx.Err()}
	}
	return f.apply(index, content, fetchErr)
}

// apply classifies one response and, when complete, parses and applies it.
func (f *Fetcher) apply(index int, content string, fetchErr error) error {
	complete := fetchErr == nil && types.HasSentinel(content)

	var parsed *record.Result
	var parseErr error
	if complete && !f.state.Archived(index) && !f.state.Finished() {
		parsed, parseErr = f.parser.ParseChunk(content)
	}

	var result error
	var applied Applied
	_ = f.state.Update(func(w *store.Writer) error {
		switch {
		case w.Finished():
			f.collector.IncLateResponsesDropped()
			f.logger.Debug("late response dropped", map[string]any{"index": index})

		case w.Archived(index):
			if complete {
				f.collector.IncDuplicateChunks()
			}
			f.logger.Debug("chunk already ingested", map[string]any{"index": index})

		case index != w.NextIndex():
			f.logger.Debug("stale response dropped", map[string]any{"index": index, "next_index": w.NextIndex()})

		case fetchErr != nil:
			n := w.RecordAttempt(index)
			f.collector.IncTransportFailures()
			result = &IngestionError{Kind: IngestionErrorTransport, Index: index, Attempt: n, Err: fetchErr}

		case !complete:
			n := w.RecordAttempt(index)
			f.collector.IncIncompleteChunks()
			result = &IngestionError{Kind: IngestionErrorIncomplete, Index: index, Attempt: n, Err: ErrIncompleteChunk}

		case parseErr != nil:
			n := w.RecordAttempt(index)
			f.collector.IncRejectedChunks()
			result = &IngestionError{Kind: IngestionErrorMalformed, Index: index, Attempt: n, Err: parseErr}

		case parsed == nil:
			// Archived or finished between the pre-check and the lock.
			f.logger.Debug("chunk skipped", map[string]any{"index": index})

		default:
			applied = f.recon.Apply(w, parsed.Records)
			w.CompleteChunk(index, content)
			f.collector.IncChunksIngested()
			if n := len(parsed.Malformed); n > 0 {
				f.collector.AddMalformedLines(n)
			}
		}
		return nil
	})

	f.observe(index, result)

	if result == nil && parsed != nil && parseErr == nil {
		for _, m := range parsed.Malformed {
			f.logger.Warn("malformed record skipped", map[string]any{"index": index, "line": m.Line, "error": m.Error()})
		}
		f.logger.Debug("chunk ingested", map[string]any{
			"index":     index,
			"records":   len(parsed.Records),
			"timesteps": applied.Timesteps,
			"discarded": applied.Discarded,
			"ignored":   applied.Ignored,
			"finished":  applied.Finished,
		})
	}
	return result
}

// observe logs a poll outcome and maintains the transport backoff window.
func (f *Fetcher) observe(index int, err error) {
	var ingErr *IngestionError
	if !errors.As(err, &ingErr) {
		f.resetBackoff()
		return
	}

	fields := map[string]any{"index": index, "attempt": ingErr.Attempt, "error": ingErr.Err.Error()}
	switch ingErr.Kind {
	case IngestionErrorTransport:
		delay := f.extendBackoff()
		fields["backoff_ms"] = delay.Milliseconds()
		f.logger.Warn("chunk request failed", fields)
	case IngestionErrorIncomplete:
		f.resetBackoff()
		f.logger.Debug("chunk incomplete", fields)
	case IngestionErrorMalformed:
		f.resetBackoff()
		f.logger.Warn("chunk rejected", fields)
	}
}

// extendBackoff records a transport failure and returns the delay until
// the next poll may be issued.
func (f *Fetcher) extendBackoff() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transportStreak++
	delay := backoffDelay(f.config.Interval, f.config.MaxBackoff, f.transportStreak)
	f.retryAt = f.now().Add(delay)
	return delay
}

func (f *Fetcher) resetBackoff() {
	f.mu.Lock()
	f.transportStreak = 0
	f.retryAt = time.Time{}
	f.mu.Unlock()
}

func (f *Fetcher) backingOff() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now().Before(f.retryAt)
}

// backoffDelay doubles base for every consecutive failure after the first,
// capped at limit.
func backoffDelay(base, limit time.Duration, streak int) time.Duration {
	if streak <= 1 {
		return base
	}
	delay := base
	for i := 1; i < streak; i++ {
		delay *= 2
		if delay >= limit {
			return limit
		}
	}
	return delay
}

// Run polls once immediately and then on every tick until the state
// finishes, a limit is reached or ctx is canceled.
//
// Returns:
//   - nil: a termination record was ingested
//   - *IngestionError with Kind=IngestionErrorStalled: a limit was reached
//   - *IngestionError with Kind=IngestionErrorCanceled: ctx was canceled
func (f *Fetcher) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancelCause(ctx)
	if f.config.Deadline > 0 {
		var cancelDeadline context.CancelFunc
		ctx, cancelDeadline = context.WithTimeoutCause(ctx, f.config.Deadline, errDeadlineReached)
		defer cancelDeadline()
	}

	var wg sync.WaitGroup
	defer func() {
		cancel(nil)
		wg.Wait()
	}()

	stalled := make(chan error, 1)
	poll := func() {
		select {
		case f.slots <- struct{}{}:
		default:
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-f.slots }()
			err := f.PollNext(ctx)
			if stallErr := f.checkAttempts(err); stallErr != nil {
				select {
				case stalled <- stallErr:
				default:
				}
			}
		}()
	}

	f.logger.Info("polling started", map[string]any{
		"source":      f.src.Describe(),
		"interval_ms": f.config.Interval.Milliseconds(),
	})

	if err := f.checkChunkCap(); err != nil {
		return err
	}
	poll()

	ticker := time.NewTicker(f.config.Interval)
	defer ticker.Stop()

	for {
		changed := f.state.Changed()
		if f.state.Finished() {
			f.logger.Info("polling stopped", map[string]any{"reason": "finished"})
			return nil
		}
		if err := f.checkChunkCap(); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			if errors.Is(context.Cause(ctx), errDeadlineReached) {
				err := &IngestionError{Kind: IngestionErrorStalled, Index: f.state.NextIndex(), Err: errDeadlineReached}
				f.logger.Error("polling stopped", map[string]any{"reason": "deadline", "error": err.Error()})
				return err
			}
			return &IngestionError{Kind: IngestionErrorCanceled, Index: f.state.NextIndex(), Err: ctx.Err()}
		case err := <-stalled:
			f.logger.Error("polling stopped", map[string]any{"reason": "max_attempts", "error": err.Error()})
			return err
		case <-changed:
		case <-ticker.C:
			if !f.backingOff() {
				poll()
			}
		}
	}
}

// checkAttempts converts a retriable poll error into a stall once the
// per-index attempt limit is reached.
func (f *Fetcher) checkAttempts(err error) error {
	var ingErr *IngestionError
	if f.config.MaxAttempts <= 0 || !errors.As(err, &ingErr) || !ingErr.Retriable() {
		return nil
	}
	if ingErr.Attempt < f.config.MaxAttempts {
		return nil
	}
	return &IngestionError{
		Kind:    IngestionErrorStalled,
		Index:   ingErr.Index,
		Attempt: ingErr.Attempt,
		Err:     fmt.Errorf("no complete response after %d attempts: %w", ingErr.Attempt, ingErr.Err),
	}
}

// checkChunkCap reports a stall once MaxChunks chunks were ingested
// without the match finishing.
func (f *Fetcher) checkChunkCap() error {
	if f.config.MaxChunks <= 0 || f.state.Finished() {
		return nil
	}
	next := f.state.NextIndex()
	if !f.pastChunkCap(next) {
		return nil
	}
	err := &IngestionError{
		Kind:  IngestionErrorStalled,
		Index: next,
		Err:   fmt.Errorf("chunk cap of %d reached without termination", f.config.MaxChunks),
	}
	f.logger.Error("polling stopped", map[string]any{"reason": "max_chunks", "error": err.Error()})
	return err
}

// pastChunkCap reports whether index lies beyond MaxChunks.
func (f *Fetcher) pastChunkCap(index int) bool {
	return f.config.MaxChunks > 0 && index-types.FirstChunkIndex >= f.config.MaxChunks
}
