// ABOUTME: Applies a merge plan to a store or to an in-memory snapshot.
// ABOUTME: Resolves provisional ids, re-checking task names against the store before inserting.
package merge

import (
	"errors"
	"fmt"

	"github.com/harperreed/gym/internal/models"
	"github.com/harperreed/gym/internal/snapshot"
	"github.com/harperreed/gym/internal/storage"
)

// Writer is the subset of the local repository a plan is applied through.
// Import methods upsert by id (zero inserts) and keep the record's
// lastModified and deviceId as given.
type Writer interface {
	FindTaskByName(name string) (*models.Task, error)
	ImportTask(t *models.Task) (int64, error)
	ImportWorkout(w *models.Workout) (int64, error)
	ImportLogEntry(e *models.LogEntry) (int64, error)
}

// Result counts what Apply changed.
type Result struct {
	TasksInserted      int
	TasksUpdated       int
	WorkoutsInserted   int
	WorkoutsUpdated    int
	LogEntriesInserted int
	Skipped            int
}

// Changed reports whether anything was written.
func (r *Result) Changed() bool {
	return r.TasksInserted+r.TasksUpdated+r.WorkoutsInserted+r.WorkoutsUpdated+r.LogEntriesInserted > 0
}

// Import decodes a remote document, upgrading older payload versions, and
// diffs it against local. A document that cannot be decoded at all is a
// ValidationError; nothing should be pushed over it.
func (m *Merger) Import(local *snapshot.Snapshot, doc []byte) (*Plan, error) {
	remote, err := snapshot.Decode(doc)
	if err != nil {
		return nil, &ValidationError{Reason: "decode", Err: err}
	}
	return m.Diff(local, remote), nil
}

// Apply writes the plan through w. Tasks go first so workouts and log
// entries can be pointed at their final ids.
func (p *Plan) Apply(w Writer) (*Result, error) {
	res := &Result{Skipped: len(p.Skipped)}
	ids := make(map[int64]int64)

	for _, t := range p.TasksToUpsert {
		if t.ID > 0 {
			if _, err := w.ImportTask(t); err != nil {
				return res, fmt.Errorf("update task %d: %w", t.ID, err)
			}
			res.TasksUpdated++
			continue
		}

		provisional := t.ID
		existing, err := w.FindTaskByName(t.Name)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return res, fmt.Errorf("find task %q: %w", t.Name, err)
		}
		if existing != nil {
			ids[provisional] = existing.ID
			if t.LastModified > existing.LastModified {
				next := t.Clone()
				next.ID = existing.ID
				if _, err := w.ImportTask(next); err != nil {
					return res, fmt.Errorf("update task %d: %w", next.ID, err)
				}
				res.TasksUpdated++
			}
			continue
		}

		next := t.Clone()
		next.ID = 0
		id, err := w.ImportTask(next)
		if err != nil {
			return res, fmt.Errorf("insert task %q: %w", t.Name, err)
		}
		ids[provisional] = id
		res.TasksInserted++
	}

	for _, wk := range p.WorkoutsToUpsert {
		next := wk.Clone()
		next.TaskIDs = resolveIDs(wk.TaskIDs, ids)
		inserting := next.ID <= 0
		if inserting {
			next.ID = 0
		}
		if _, err := w.ImportWorkout(next); err != nil {
			return res, fmt.Errorf("import workout %q: %w", wk.Name, err)
		}
		if inserting {
			res.WorkoutsInserted++
		} else {
			res.WorkoutsUpdated++
		}
	}

	for _, e := range p.LogEntriesToInsert {
		next := e.Clone()
		next.ID = 0
		if next.TaskID < 0 {
			id, ok := ids[next.TaskID]
			if !ok {
				return res, fmt.Errorf("log entry references unplanned task %d", next.TaskID)
			}
			next.TaskID = id
		}
		if _, err := w.ImportLogEntry(next); err != nil {
			return res, fmt.Errorf("insert log entry: %w", err)
		}
		res.LogEntriesInserted++
	}
	return res, nil
}

func resolveIDs(in []int64, ids map[int64]int64) []int64 {
	out := make([]int64, 0, len(in))
	for _, id := range in {
		if id < 0 {
			resolved, ok := ids[id]
			if !ok {
				continue
			}
			id = resolved
		}
		out = append(out, id)
	}
	return out
}

// Merge returns a copy of local with remote absorbed. New records get ids
// above the current maximum of their collection.
func (m *Merger) Merge(local, remote *snapshot.Snapshot) *snapshot.Snapshot {
	out := local.Clone()
	plan := m.Diff(out, remote)
	mem := &memoryWriter{s: out}
	// memoryWriter never fails.
	_, _ = plan.Apply(mem)
	out.Sort()
	return out
}

// memoryWriter applies a plan to a snapshot in place.
type memoryWriter struct {
	s *snapshot.Snapshot
}

func (mw *memoryWriter) FindTaskByName(name string) (*models.Task, error) {
	key := models.NameKey(name)
	var found *models.Task
	for _, t := range mw.s.Tasks {
		if models.NameKey(t.Name) == key && (found == nil || t.ID < found.ID) {
			found = t
		}
	}
	if found == nil {
		return nil, storage.ErrNotFound
	}
	return found, nil
}

func (mw *memoryWriter) ImportTask(t *models.Task) (int64, error) {
	next := t.Clone()
	for i, existing := range mw.s.Tasks {
		if next.ID != 0 && existing.ID == next.ID {
			mw.s.Tasks[i] = next
			return next.ID, nil
		}
	}
	if next.ID == 0 {
		next.ID = nextID(mw.s.Tasks, func(x *models.Task) int64 { return x.ID })
	}
	mw.s.Tasks = append(mw.s.Tasks, next)
	return next.ID, nil
}

func (mw *memoryWriter) ImportWorkout(w *models.Workout) (int64, error) {
	next := w.Clone()
	for i, existing := range mw.s.Workouts {
		if next.ID != 0 && existing.ID == next.ID {
			mw.s.Workouts[i] = next
			return next.ID, nil
		}
	}
	if next.ID == 0 {
		next.ID = nextID(mw.s.Workouts, func(x *models.Workout) int64 { return x.ID })
	}
	mw.s.Workouts = append(mw.s.Workouts, next)
	return next.ID, nil
}

func (mw *memoryWriter) ImportLogEntry(e *models.LogEntry) (int64, error) {
	next := e.Clone()
	if next.ID == 0 {
		next.ID = nextID(mw.s.LogEntries, func(x *models.LogEntry) int64 { return x.ID })
	}
	mw.s.LogEntries = append(mw.s.LogEntries, next)
	return next.ID, nil
}

func nextID[T any](items []*T, id func(*T) int64) int64 {
	var top int64
	for _, it := range items {
		if id(it) > top {
			top = id(it)
		}
	}
	return top + 1
}
