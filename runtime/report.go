package runtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/justapithecus/tankreplay/metrics"
	"github.com/justapithecus/tankreplay/types"
)

// SessionReport is the structured JSON report written by --report.
type SessionReport struct {
	SessionID      string      `json:"session_id"`
	Source         string      `json:"source"`
	Phase          types.Phase `json:"phase"`
	Message        string      `json:"message"`
	ExitCode       int         `json:"exit_code"`
	DurationMs     int64       `json:"duration_ms"`
	ChunksIngested int         `json:"chunks_ingested"`
	NextIndex      int         `json:"next_index"`
	Timesteps      int         `json:"timesteps"`
	Objects        int         `json:"objects"`

	Outcome *ReportOutcome    `json:"outcome,omitempty"`
	Metrics *metrics.Snapshot `json:"metrics"`

	PublishError string `json:"publish_error,omitempty"`
}

// ReportOutcome holds the termination record in the report.
type ReportOutcome struct {
	Winners []string `json:"winners"`
	Losers  []string `json:"losers"`
}

// BuildSessionReport composes a SessionReport from a SessionResult and
// metrics snapshot. runErr is the error returned by Session.Run, if any.
func BuildSessionReport(result *SessionResult, snap metrics.Snapshot, runErr error, exitCode int) *SessionReport {
	report := &SessionReport{
		SessionID:      result.Meta.SessionID,
		Source:         result.Meta.Source,
		Phase:          result.Progress.Phase,
		Message:        "finished",
		ExitCode:       exitCode,
		DurationMs:     result.Duration.Milliseconds(),
		ChunksIngested: result.Progress.ChunksIngested,
		NextIndex:      result.Progress.NextIndex,
		Timesteps:      result.Progress.Timesteps,
		Objects:        result.Objects,
		Metrics:        &snap,
		PublishError:   result.PublishError,
	}
	if runErr != nil {
		report.Message = runErr.Error()
	}
	if result.Outcome != nil {
		report.Outcome = &ReportOutcome{
			Winners: nonNil(result.Outcome.Winners),
			Losers:  nonNil(result.Outcome.Losers),
		}
	}
	return report
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

// WriteSessionReport writes the report as JSON to the specified path.
// If path is "-", writes to stderr.
func WriteSessionReport(report *SessionReport, path string) error {
	if path == "" {
		return errors.New("report path must not be empty")
	}
	if path == "-" {
		if err := writeSessionReportTo(report, os.Stderr); err != nil {
			return fmt.Errorf("failed to write report to stderr: %w", err)
		}
		return nil
	}

	data, err := marshalReport(report)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	return nil
}

func writeSessionReportTo(report *SessionReport, w io.Writer) error {
	data, err := marshalReport(report)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func marshalReport(report *SessionReport) ([]byte, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	return append(data, '\n'), nil
}
