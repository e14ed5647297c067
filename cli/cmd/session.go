package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/tankreplay/adapter"
	"github.com/justapithecus/tankreplay/adapter/redis"
	"github.com/justapithecus/tankreplay/adapter/webhook"
	"github.com/justapithecus/tankreplay/cli/config"
	"github.com/justapithecus/tankreplay/log"
	"github.com/justapithecus/tankreplay/record"
	"github.com/justapithecus/tankreplay/runtime"
)

// Exit codes for session commands.
const (
	exitFinished = 0
	exitError    = 1
	exitConfig   = 2
	exitStalled  = 3
	exitCanceled = 4
)

// exitCodeFor maps a session error to its exit code.
func exitCodeFor(err error) int {
	switch {
	case err == nil:
		return exitFinished
	case runtime.IsConfigError(err):
		return exitConfig
	case runtime.IsStalledError(err):
		return exitStalled
	case runtime.IsCanceledError(err):
		return exitCanceled
	default:
		return exitError
	}
}

// sessionExit converts the error returned by Session.Run into a cli exit.
func sessionExit(runErr error) error {
	if runErr == nil {
		return nil
	}
	return cli.Exit(runErr.Error(), exitCodeFor(runErr))
}

// loadConfig loads --config when given. A nil config means no file.
func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String("config")
	if path == "" {
		return nil, nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, cli.Exit(err.Error(), exitConfig)
	}
	return cfg, nil
}

// adapterChoice holds resolved adapter settings.
type adapterChoice struct {
	adapterType string
	url         string
	channel     string
	headers     map[string]string
	timeout     time.Duration
	retries     int
}

// parseAdapterConfigWithPrecedence resolves adapter settings from CLI flags
// and config. Config headers are merged first; --adapter-header overrides.
func parseAdapterConfigWithPrecedence(c *cli.Context, cfg *config.Config, adapterType string) (adapterChoice, error) {
	ac := adapterChoice{
		adapterType: adapterType,
		url:         resolveString(c, "adapter-url", configVal(cfg, func(c *config.Config) string { return c.Adapter.URL })),
		channel:     resolveString(c, "adapter-channel", configVal(cfg, func(c *config.Config) string { return c.Adapter.Channel })),
		timeout:     resolveDuration(c, "adapter-timeout", configVal(cfg, func(c *config.Config) time.Duration { return c.Adapter.Timeout.Duration })),
		retries:     c.Int("adapter-retries"),
		headers:     make(map[string]string),
	}
	if !c.IsSet("adapter-retries") {
		if r := configVal(cfg, func(c *config.Config) *int { return c.Adapter.Retries }); r != nil {
			ac.retries = *r
		}
	}

	switch adapterType {
	case "webhook":
		if ac.url == "" {
			return ac, fmt.Errorf("--adapter-url is required when --adapter=webhook")
		}
	case "redis":
		if ac.url == "" {
			return ac, fmt.Errorf("--adapter-url is required when --adapter=redis (e.g. redis://localhost:6379/0)")
		}
	default:
		return ac, fmt.Errorf("unknown adapter type %q (expected webhook or redis)", adapterType)
	}
	if ac.retries < 0 {
		return ac, fmt.Errorf("--adapter-retries must be >= 0, got %d", ac.retries)
	}

	for k, v := range configVal(cfg, func(c *config.Config) map[string]string { return c.Adapter.Headers }) {
		ac.headers[k] = v
	}
	for _, h := range c.StringSlice("adapter-header") {
		k, v, ok := strings.Cut(h, "=")
		if !ok || k == "" {
			return ac, fmt.Errorf("invalid --adapter-header %q: expected key=value", h)
		}
		ac.headers[k] = v
	}
	return ac, nil
}

// buildAdapter constructs the adapter for a resolved choice.
func buildAdapter(ac adapterChoice) (adapter.Adapter, error) {
	switch ac.adapterType {
	case "redis":
		return redis.New(redis.Config{
			URL:     ac.url,
			Channel: ac.channel,
			Timeout: ac.timeout,
			Retries: ac.retries,
		})
	default:
		return webhook.New(webhook.Config{
			URL:     ac.url,
			Headers: ac.headers,
			Timeout: ac.timeout,
			Retries: ac.retries,
		})
	}
}

// buildSessionConfig resolves every session setting from CLI flags and
// config. Required-field and enum errors are returned before any
// component is constructed. The adapter, if configured, is not built here.
func buildSessionConfig(c *cli.Context, cfg *config.Config) (*runtime.SessionConfig, error) {
	src := runtime.SourceConfig{
		Backend:        resolveString(c, "backend", configVal(cfg, func(c *config.Config) string { return c.Source.Backend })),
		BaseURL:        resolveString(c, "base-url", configVal(cfg, func(c *config.Config) string { return c.Source.BaseURL })),
		Path:           resolveString(c, "path", configVal(cfg, func(c *config.Config) string { return c.Source.Path })),
		Region:         resolveString(c, "region", configVal(cfg, func(c *config.Config) string { return c.Source.Region })),
		Endpoint:       resolveString(c, "endpoint", configVal(cfg, func(c *config.Config) string { return c.Source.Endpoint })),
		PathStyle:      resolveBool(c, "s3-path-style", configVal(cfg, func(c *config.Config) bool { return c.Source.S3PathStyle })),
		Compression:    resolveString(c, "compression", configVal(cfg, func(c *config.Config) string { return c.Source.Compression })),
		FilePattern:    resolveString(c, "file-pattern", configVal(cfg, func(c *config.Config) string { return c.Source.FilePattern })),
		RequestTimeout: resolveDuration(c, "request-timeout", configVal(cfg, func(c *config.Config) time.Duration { return c.Poll.RequestTimeout.Duration })),
		Headers:        configVal(cfg, func(c *config.Config) map[string]string { return c.Source.Headers }),
	}

	switch src.Backend {
	case runtime.BackendHTTP, "":
		if src.BaseURL == "" {
			return nil, fmt.Errorf("--base-url is required (or set source.base_url in config)")
		}
	case runtime.BackendFS, runtime.BackendS3:
		if src.Path == "" {
			return nil, fmt.Errorf("--path is required when --backend=%s (or set source.path in config)", src.Backend)
		}
	default:
		return nil, fmt.Errorf("unknown backend %q (expected http, fs or s3)", src.Backend)
	}

	policy, err := record.ParsePolicy(resolveString(c, "malformed", configVal(cfg, func(c *config.Config) string { return c.Records.Malformed })))
	if err != nil {
		return nil, fmt.Errorf("invalid --malformed: %w", err)
	}

	sc := &runtime.SessionConfig{
		SessionID: c.String("session-id"),
		Source:    src,
		Poll: runtime.FetcherConfig{
			Interval:    resolveDuration(c, "interval", configVal(cfg, func(c *config.Config) time.Duration { return c.Poll.Interval.Duration })),
			MaxAttempts: resolveInt(c, "max-attempts", configVal(cfg, func(c *config.Config) int { return c.Poll.MaxAttempts })),
			Deadline:    resolveDuration(c, "deadline", configVal(cfg, func(c *config.Config) time.Duration { return c.Poll.Deadline.Duration })),
			MaxChunks:   resolveInt(c, "max-chunks", configVal(cfg, func(c *config.Config) int { return c.Poll.MaxChunks })),
			MaxBackoff:  resolveDuration(c, "max-backoff", configVal(cfg, func(c *config.Config) time.Duration { return c.Poll.MaxBackoff.Duration })),
			MaxInFlight: resolveInt(c, "max-in-flight", configVal(cfg, func(c *config.Config) int { return c.Poll.MaxInFlight })),
		},
		Malformed:      policy,
		PublishTimeout: resolveDuration(c, "adapter-timeout", configVal(cfg, func(c *config.Config) time.Duration { return c.Adapter.Timeout.Duration })),
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return sc, nil
}

// openSession resolves configuration, builds the adapter and creates the
// session. Configuration problems exit with exitConfig. quiet silences the
// session logger, which TUI views need.
func openSession(c *cli.Context, cfg *config.Config, quiet bool) (*runtime.Session, error) {
	sc, err := buildSessionConfig(c, cfg)
	if err != nil {
		return nil, cli.Exit(err.Error(), exitConfig)
	}

	adapterType := resolveString(c, "adapter", configVal(cfg, func(c *config.Config) string { return c.Adapter.Type }))
	if adapterType != "" {
		ac, err := parseAdapterConfigWithPrecedence(c, cfg, adapterType)
		if err != nil {
			return nil, cli.Exit(err.Error(), exitConfig)
		}
		a, err := buildAdapter(ac)
		if err != nil {
			return nil, cli.Exit(fmt.Sprintf("failed to create %s adapter: %v", adapterType, err), exitConfig)
		}
		sc.Adapter = a
	}

	if quiet || c.Bool("quiet") {
		sc.Logger = log.NewNopLogger()
	}

	sess, err := runtime.NewSession(c.Context, sc)
	if err != nil {
		if sc.Adapter != nil {
			_ = sc.Adapter.Close()
		}
		return nil, cli.Exit(err.Error(), exitCodeFor(err))
	}
	return sess, nil
}

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// writeReport writes the --report file, if requested. A report failure is
// logged but never changes the exit code.
func writeReport(c *cli.Context, sess *runtime.Session, result *runtime.SessionResult, runErr error) {
	path := c.String("report")
	if path == "" {
		return
	}
	report := runtime.BuildSessionReport(result, sess.Collector().Snapshot(), runErr, exitCodeFor(runErr))
	if err := runtime.WriteSessionReport(report, path); err != nil {
		sess.Logger().Error("failed to write session report", map[string]any{"error": err.Error()})
	}
}
