// Package cmd provides CLI commands for the tankreplay binary.
package cmd

import (
	"time"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/tankreplay/cli/config"
)

// Shared flags for read-only output.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// TUIFlag enables Bubble Tea interactive mode.
	// Only valid for watch and inspect.
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode (watch, inspect only)",
	}
)

// ReadOnlyFlags returns the shared output flags.
// Includes --tui so that unsupported commands can provide explicit error messages
// instead of generic "flag not defined" errors.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
		TUIFlag,
	}
}

// SessionFlags returns the flags shared by every command that runs an
// ingestion session. Values left unset fall back to the --config file,
// then to the defaults shown here.
func SessionFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "config",
			Usage: "Path to replay.yaml config file (CLI flags override config values)",
		},
		&cli.StringFlag{
			Name:  "session-id",
			Usage: "Session identifier (default: random UUID)",
		},
		&cli.BoolFlag{
			Name:    "quiet",
			Aliases: []string{"q"},
			Usage:   "Suppress session logs",
		},
		&cli.StringFlag{
			Name:  "report",
			Usage: "Write structured JSON session report to path (use - for stderr)",
		},

		// Source
		&cli.StringFlag{
			Name:  "base-url",
			Usage: "Replay server base URL (http backend)",
		},
		&cli.StringFlag{
			Name:  "backend",
			Usage: "Chunk source backend: http, fs, s3",
			Value: "http",
		},
		&cli.StringFlag{
			Name:  "path",
			Usage: "Directory (fs) or bucket/prefix (s3) holding replay chunks",
		},
		&cli.StringFlag{
			Name:  "region",
			Usage: "AWS region for s3 (default: from AWS config chain)",
		},
		&cli.StringFlag{
			Name:  "endpoint",
			Usage: "Custom S3 API endpoint URL (for R2, MinIO, etc.)",
		},
		&cli.BoolFlag{
			Name:  "s3-path-style",
			Usage: "Force path-style addressing for S3 (required by MinIO, optional for R2)",
		},
		&cli.StringFlag{
			Name:  "compression",
			Usage: "Chunk object compression for fs/s3: none, zstd",
			Value: "none",
		},
		&cli.StringFlag{
			Name:  "file-pattern",
			Usage: "Chunk file name pattern with one %d verb (default replay-%d.txt)",
		},

		// Polling
		&cli.DurationFlag{
			Name:  "interval",
			Usage: "Poll interval",
			Value: 200 * time.Millisecond,
		},
		&cli.DurationFlag{
			Name:  "request-timeout",
			Usage: "Timeout for one chunk request",
			Value: 10 * time.Second,
		},
		&cli.IntFlag{
			Name:  "max-attempts",
			Usage: "Stop after this many failed polls of one chunk (0 = unlimited)",
		},
		&cli.DurationFlag{
			Name:  "deadline",
			Usage: "Stop polling after this long (0 = no deadline)",
		},
		&cli.IntFlag{
			Name:  "max-chunks",
			Usage: "Stop after this many chunks without a termination record (0 = unlimited)",
		},
		&cli.DurationFlag{
			Name:  "max-backoff",
			Usage: "Upper bound for the delay after repeated transport failures",
			Value: 5 * time.Second,
		},
		&cli.IntFlag{
			Name:  "max-in-flight",
			Usage: "Maximum overlapping chunk requests",
			Value: 2,
		},
		&cli.StringFlag{
			Name:  "malformed",
			Usage: "Malformed line policy: skip, fail",
			Value: "skip",
		},

		// Adapter
		&cli.StringFlag{
			Name:  "adapter",
			Usage: "Event-bus adapter notified on match finish: webhook, redis",
		},
		&cli.StringFlag{
			Name:  "adapter-url",
			Usage: "Adapter endpoint URL (webhook URL or redis:// URL)",
		},
		&cli.StringFlag{
			Name:  "adapter-channel",
			Usage: "Redis pub/sub channel (default: tankreplay:match_finished)",
		},
		&cli.StringSliceFlag{
			Name:  "adapter-header",
			Usage: "Custom header for webhook requests (key=value, repeatable)",
		},
		&cli.DurationFlag{
			Name:  "adapter-timeout",
			Usage: "Adapter publish timeout",
			Value: 10 * time.Second,
		},
		&cli.IntFlag{
			Name:  "adapter-retries",
			Usage: "Adapter retry attempts",
			Value: 3,
		},
	}
}

// configVal safely extracts a value from a possibly-nil config.
func configVal[T any](cfg *config.Config, fn func(*config.Config) T) T {
	var zero T
	if cfg == nil {
		return zero
	}
	return fn(cfg)
}

// resolveString returns the CLI value when explicitly set, otherwise the
// config value when non-empty, otherwise the flag default.
func resolveString(c *cli.Context, name, cfgVal string) string {
	if c.IsSet(name) {
		return c.String(name)
	}
	if cfgVal != "" {
		return cfgVal
	}
	return c.String(name)
}

// resolveInt follows resolveString; a zero config value counts as unset.
func resolveInt(c *cli.Context, name string, cfgVal int) int {
	if c.IsSet(name) {
		return c.Int(name)
	}
	if cfgVal != 0 {
		return cfgVal
	}
	return c.Int(name)
}

// resolveBool follows resolveString; config can only turn a flag on.
func resolveBool(c *cli.Context, name string, cfgVal bool) bool {
	if c.IsSet(name) {
		return c.Bool(name)
	}
	if cfgVal {
		return true
	}
	return c.Bool(name)
}

// resolveDuration follows resolveString; a zero config value counts as unset.
func resolveDuration(c *cli.Context, name string, cfgVal time.Duration) time.Duration {
	if c.IsSet(name) {
		return c.Duration(name)
	}
	if cfgVal != 0 {
		return cfgVal
	}
	return c.Duration(name)
}
