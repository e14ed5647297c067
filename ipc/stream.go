package ipc

import (
	"context"
	"fmt"
	"slices"

	"github.com/justapithecus/tankreplay/store"
	"github.com/justapithecus/tankreplay/types"
)

// FrameWriter writes one frame value. FrameEncoder is the msgpack
// implementation; the websocket feed writes the same frames as JSON.
type FrameWriter interface {
	WriteFrame(v any) error
}

// Stream writes the whole session to enc as it is reconstructed.
func Stream(ctx context.Context, state *store.State, meta types.SessionMeta, enc FrameWriter) error {
	return StreamFrom(ctx, state, meta, enc, 0)
}

// StreamFrom writes the session to enc starting at timestep from.
//
// The stream opens with a hello frame, then sends the map and roster when
// they become known (again if replaced), every timestep from the starting
// index on in order, and a status frame after each batch. It ends with an
// outcome frame once the state finishes, or with ctx's error.
func StreamFrom(ctx context.Context, state *store.State, meta types.SessionMeta, enc FrameWriter, from int) error {
	hello := &HelloFrame{
		Type:            HelloType,
		ContractVersion: types.FeedVersion,
		SessionID:       meta.SessionID,
		Source:          meta.Source,
	}
	if err := enc.WriteFrame(hello); err != nil {
		return fmt.Errorf("write hello: %w", err)
	}

	var (
		sent       = max(from, 0)
		lastMap    *types.MapDefinition
		lastRoster *types.Roster
	)
	for {
		changed := state.Changed()

		if m, ok := state.Map(); ok && !sameMap(lastMap, &m) {
			if err := enc.WriteFrame(NewMapFrame(m)); err != nil {
				return fmt.Errorf("write map: %w", err)
			}
			lastMap = &m
		}
		if r, ok := state.Roster(); ok && !sameRoster(lastRoster, &r) {
			if err := enc.WriteFrame(NewRosterFrame(r)); err != nil {
				return fmt.Errorf("write roster: %w", err)
			}
			lastRoster = &r
		}

		for ; sent < state.Len(); sent++ {
			ts, ok := state.Timestep(sent)
			if !ok {
				break
			}
			if err := enc.WriteFrame(NewTimestepFrame(ts)); err != nil {
				return fmt.Errorf("write timestep %d: %w", sent, err)
			}
		}

		if err := enc.WriteFrame(NewStatusFrame(state.Progress())); err != nil {
			return fmt.Errorf("write status: %w", err)
		}

		if outcome, ok := state.Outcome(); ok && sent >= state.Len() {
			if err := enc.WriteFrame(NewOutcomeFrame(outcome)); err != nil {
				return fmt.Errorf("write outcome: %w", err)
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}

func sameMap(a, b *types.MapDefinition) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Header == b.Header && slices.Equal(a.Rows, b.Rows)
}

func sameRoster(a, b *types.Roster) bool {
	if a == nil || b == nil {
		return a == b
	}
	return slices.Equal(a.Participants, b.Participants)
}
