package runtime

import (
	"github.com/justapithecus/tankreplay/log"
	"github.com/justapithecus/tankreplay/metrics"
	"github.com/justapithecus/tankreplay/store"
	"github.com/justapithecus/tankreplay/types"
)

// Applied summarizes what one batch of records did to the state.
type Applied struct {
	Timesteps int
	// Discarded counts leading empty deltas dropped before Timestep 0.
	Discarded int
	// Ignored counts records that arrived after the state was sealed.
	Ignored int
	Created int
	Deleted int
	// Finished is true when this batch performed the finish transition.
	Finished bool
}

// Reconstructor turns classified records into the canonical history.
//
// It is the only writer of history and lifecycle tables. Records are
// applied in order:
//   - map and roster records are stored, a later one replacing an earlier one
//   - the first termination record seals the state; everything after it is ignored
//   - delta records become timesteps with unchanged objects carried forward
type Reconstructor struct {
	state     *store.State
	logger    *log.Logger
	collector *metrics.Collector
}

// NewReconstructor creates a reconstructor writing to state.
// logger and collector may be nil.
func NewReconstructor(state *store.State, logger *log.Logger, collector *metrics.Collector) *Reconstructor {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Reconstructor{state: state, logger: logger, collector: collector}
}

// Ingest applies records in a single state update.
func (r *Reconstructor) Ingest(records []types.Record) Applied {
	var res Applied
	_ = r.state.Update(func(w *store.Writer) error {
		res = r.Apply(w, records)
		return nil
	})
	return res
}

// Apply applies records through a writer the caller already holds.
func (r *Reconstructor) Apply(w *store.Writer, records []types.Record) Applied {
	var res Applied
	for _, rec := range records {
		r.collector.IncRecordsDecoded(string(rec.Kind()))

		if w.Finished() {
			res.Ignored++
			r.collector.IncRecordsAfterFinish()
			continue
		}

		switch rec := rec.(type) {
		case *types.TerminationRecord:
			if w.Finish(types.Outcome{Winners: rec.Winners, Losers: rec.Losers}) {
				res.Finished = true
				r.logger.Info("match finished", map[string]any{
					"winners":   rec.Winners,
					"losers":    rec.Losers,
					"timesteps": w.Len(),
				})
			}
		case *types.MapRecord:
			if w.HasMap() {
				r.logger.Warn("map definition repeated, replacing", nil)
			}
			w.SetMap(rec.MapDefinition)
		case *types.RosterRecord:
			if w.HasRoster() {
				r.logger.Warn("roster repeated, replacing", nil)
			}
			w.SetRoster(rec.Roster)
		case *types.DeltaRecord:
			r.applyDelta(w, rec, &res)
		}
	}
	return res
}

func (r *Reconstructor) applyDelta(w *store.Writer, d *types.DeltaRecord, res *Applied) {
	// A leading empty delta is a pre-game placeholder, never Timestep 0.
	if w.Len() == 0 && d.Empty() {
		res.Discarded++
		r.collector.IncNoopFramesDiscarded()
		r.logger.Debug("leading no-op frame discarded", nil)
		return
	}

	idx := w.Len()
	removed := make(map[string]struct{}, len(d.Deleted))
	for _, id := range d.Deleted {
		removed[id] = struct{}{}
	}

	objects := make(map[string]types.ObjectState, len(d.Updated))
	if prev, ok := w.Last(); ok {
		for id, state := range prev.Objects {
			if _, changed := d.Updated[id]; changed {
				continue
			}
			if _, gone := removed[id]; gone {
				continue
			}
			if w.IsDeleted(id, idx) {
				continue
			}
			objects[id] = state
		}
	}
	for id, state := range d.Updated {
		objects[id] = state
	}

	w.Append(objects, d.Hints)
	res.Timesteps++
	r.collector.IncTimestepsAppended()

	created := 0
	for id := range d.Updated {
		if w.MarkCreated(id, idx) {
			created++
		}
	}
	deleted := 0
	for _, id := range d.Deleted {
		if w.MarkDeleted(id, idx) {
			deleted++
		}
	}
	res.Created += created
	res.Deleted += deleted
	r.collector.AddObjectsCreated(created)
	r.collector.AddObjectsDeleted(deleted)
}
