package store

import (
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/justapithecus/tankreplay/types"
)

func TestNew_InitialState(t *testing.T) {
	s := New()

	if s.Phase() != types.PhaseCollecting {
		t.Errorf("Phase() = %v, want collecting", s.Phase())
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}
	if _, ok := s.Map(); ok {
		t.Error("Map() present on new state")
	}
	if _, ok := s.Roster(); ok {
		t.Error("Roster() present on new state")
	}
	if _, ok := s.Outcome(); ok {
		t.Error("Outcome() present on new state")
	}
	p := s.Progress()
	if p.NextIndex != types.FirstChunkIndex || p.ContiguousIndex != 0 || p.Finished {
		t.Errorf("Progress() = %+v", p)
	}
}

func TestTimestep_OutOfRange(t *testing.T) {
	s := New()
	_ = s.Update(func(w *Writer) error {
		w.Append(map[string]types.ObjectState{"tank-1": {"hp": 1.0}}, nil)
		return nil
	})

	for _, i := range []int{-1, 1, 5} {
		if _, ok := s.Timestep(i); ok {
			t.Errorf("Timestep(%d) present, want absent", i)
		}
	}
	ts, ok := s.Timestep(0)
	if !ok || ts.Index != 0 {
		t.Fatalf("Timestep(0) = %+v, %v", ts, ok)
	}
}

func TestTimestep_ReturnsCopy(t *testing.T) {
	s := New()
	_ = s.Update(func(w *Writer) error {
		w.Append(map[string]types.ObjectState{"tank-1": {"hp": 1.0}}, nil)
		return nil
	})

	ts, _ := s.Timestep(0)
	delete(ts.Objects, "tank-1")

	again, _ := s.Timestep(0)
	if _, ok := again.Objects["tank-1"]; !ok {
		t.Error("caller mutation reached stored history")
	}
}

func TestWriter_CompleteChunkAdvances(t *testing.T) {
	s := New()
	_ = s.Update(func(w *Writer) error {
		if w.Archived(1) {
			t.Error("chunk 1 archived before completion")
		}
		w.CompleteChunk(1, "a")
		if !w.Archived(1) {
			t.Error("chunk 1 not archived")
		}
		if w.NextIndex() != 2 {
			t.Errorf("NextIndex() = %d, want 2", w.NextIndex())
		}
		return nil
	})

	if c, ok := s.Chunk(1); !ok || c != "a" {
		t.Errorf("Chunk(1) = %q, %v", c, ok)
	}
	p := s.Progress()
	if p.ContiguousIndex != 1 || p.ChunksIngested != 1 {
		t.Errorf("Progress() = %+v", p)
	}
}

func TestWriter_LifecycleFirstWriteWins(t *testing.T) {
	s := New()
	_ = s.Update(func(w *Writer) error {
		if !w.MarkCreated("tank-1", 0) {
			t.Error("first MarkCreated rejected")
		}
		if w.MarkCreated("tank-1", 3) {
			t.Error("second MarkCreated accepted")
		}
		if !w.MarkDeleted("tank-1", 2) {
			t.Error("first MarkDeleted rejected")
		}
		if w.MarkDeleted("tank-1", 5) {
			t.Error("second MarkDeleted accepted")
		}
		if !w.IsDeleted("tank-1", 2) || w.IsDeleted("tank-1", 1) {
			t.Error("IsDeleted boundaries wrong")
		}
		return nil
	})

	if c, _ := s.CreatedAt("tank-1"); c != 0 {
		t.Errorf("CreatedAt = %d, want 0", c)
	}
	if d, _ := s.DeletedAt("tank-1"); d != 2 {
		t.Errorf("DeletedAt = %d, want 2", d)
	}
	lc, ok := s.Lifecycle("tank-1")
	if !ok || lc.Deleted == nil || *lc.Deleted != 2 {
		t.Errorf("Lifecycle = %+v, %v", lc, ok)
	}
}

func TestLifecycles_Ordered(t *testing.T) {
	s := New()
	_ = s.Update(func(w *Writer) error {
		w.MarkCreated("tank-2", 1)
		w.MarkCreated("wall-1", 0)
		w.MarkCreated("tank-1", 1)
		w.MarkDeleted("ghost-1", 3)
		return nil
	})

	var ids []string
	for _, lc := range s.Lifecycles() {
		ids = append(ids, lc.ID)
	}
	want := []string{"wall-1", "tank-1", "tank-2", "ghost-1"}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("Lifecycles() order = %v, want %v", ids, want)
	}
}

func TestWriter_FinishIsSticky(t *testing.T) {
	s := New()
	_ = s.Update(func(w *Writer) error {
		if !w.Finish(types.Outcome{Winners: []string{"1"}}) {
			t.Error("first Finish rejected")
		}
		if w.Finish(types.Outcome{Winners: []string{"2"}}) {
			t.Error("second Finish accepted")
		}
		return nil
	})

	if !s.Finished() {
		t.Fatal("Finished() = false")
	}
	out, ok := s.Outcome()
	if !ok || !reflect.DeepEqual(out.Winners, []string{"1"}) {
		t.Errorf("Outcome() = %+v, %v", out, ok)
	}
}

func TestUpdate_ReturnsError(t *testing.T) {
	s := New()
	want := errors.New("boom")
	if err := s.Update(func(w *Writer) error { return want }); !errors.Is(err, want) {
		t.Errorf("Update() = %v, want %v", err, want)
	}
}

func TestChanged_ClosedOnMutation(t *testing.T) {
	s := New()
	ch := s.Changed()

	_ = s.Update(func(w *Writer) error { return nil })
	select {
	case <-ch:
		t.Fatal("Changed closed by read-only update")
	default:
	}

	_ = s.Update(func(w *Writer) error {
		w.RecordAttempt(1)
		return nil
	})
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("Changed not closed after mutation")
	}

	if s.Changed() == ch {
		t.Error("Changed channel not replaced")
	}
}

func TestState_ConcurrentReaders(t *testing.T) {
	s := New()
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			_ = s.Update(func(w *Writer) error {
				w.Append(map[string]types.ObjectState{"tank-1": {"turn": float64(i)}}, nil)
				return nil
			})
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				n := s.Len()
				if n > 0 {
					if _, ok := s.Timestep(n - 1); !ok {
						t.Errorf("Timestep(%d) absent with Len %d", n-1, n)
					}
				}
				_ = s.Progress()
			}
		}()
	}
	wg.Wait()

	if s.Len() != 100 {
		t.Errorf("Len() = %d, want 100", s.Len())
	}
}
