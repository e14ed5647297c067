// Package adapter defines the notification boundary for finished matches.
//
// Adapters tell downstream systems that a replay has been fully ingested.
// The session owns adapter lifecycle; users provide configuration only.
package adapter

import (
	"context"
	"time"

	"github.com/justapithecus/tankreplay/types"
)

// EventMatchFinished is the event type of MatchFinishedEvent.
const EventMatchFinished = "match_finished"

// MatchFinishedEvent is the payload published once ingestion reaches the
// finished phase.
type MatchFinishedEvent struct {
	ContractVersion string   `json:"contract_version"`
	EventType       string   `json:"event_type"` // always "match_finished"
	SessionID       string   `json:"session_id"`
	Source          string   `json:"source"`
	Winners         []string `json:"winners"`
	Losers          []string `json:"losers"`
	Timesteps       int      `json:"timesteps"`
	ChunksIngested  int      `json:"chunks_ingested"`
	Objects         int      `json:"objects"`
	Timestamp       string   `json:"timestamp"` // RFC 3339
	DurationMs      int64    `json:"duration_ms"`
}

// NewMatchFinishedEvent builds the event for a finished session.
func NewMatchFinishedEvent(meta types.SessionMeta, outcome types.Outcome, progress types.Progress, objects int, finishedAt time.Time, elapsed time.Duration) *MatchFinishedEvent {
	winners := outcome.Winners
	if winners == nil {
		winners = []string{}
	}
	losers := outcome.Losers
	if losers == nil {
		losers = []string{}
	}
	return &MatchFinishedEvent{
		ContractVersion: types.FeedVersion,
		EventType:       EventMatchFinished,
		SessionID:       meta.SessionID,
		Source:          meta.Source,
		Winners:         winners,
		Losers:          losers,
		Timesteps:       progress.Timesteps,
		ChunksIngested:  progress.ChunksIngested,
		Objects:         objects,
		Timestamp:       finishedAt.UTC().Format(time.RFC3339),
		DurationMs:      elapsed.Milliseconds(),
	}
}

// Adapter publishes match completion events to a downstream system.
type Adapter interface {
	// Publish sends the event. Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *MatchFinishedEvent) error

	// Close releases adapter resources.
	Close() error
}
