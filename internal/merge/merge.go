// ABOUTME: Reconciles a remote snapshot against local state into an upsert plan.
// ABOUTME: Last-write-wins for workouts and tasks, fingerprint dedup for insert-only log entries.
package merge

import (
	"sort"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/harperreed/gym/internal/fingerprint"
	"github.com/harperreed/gym/internal/models"
	"github.com/harperreed/gym/internal/snapshot"
)

// Plan is the set of local writes needed to absorb a remote snapshot.
//
// Entities with a negative ID are new; the negative value is a provisional
// id that workout task lists and log entries may refer to until Apply
// assigns real ones. Entities with a positive ID replace the local record
// with that id.
type Plan struct {
	TasksToUpsert      []*models.Task
	WorkoutsToUpsert   []*models.Workout
	LogEntriesToInsert []*models.LogEntry
	Skipped            []*ValidationError
}

// IsEmpty reports whether applying the plan would change nothing.
func (p *Plan) IsEmpty() bool {
	return len(p.TasksToUpsert) == 0 && len(p.WorkoutsToUpsert) == 0 && len(p.LogEntriesToInsert) == 0
}

// Merger holds the settings shared by Diff and Merge.
type Merger struct {
	// Location decides calendar days for log entry fingerprints. Nil means time.Local.
	Location *time.Location
	Logger   *log.Logger
}

// Diff computes the plan for absorbing remote into local with default settings.
func Diff(local, remote *snapshot.Snapshot) *Plan {
	return (&Merger{}).Diff(local, remote)
}

// Merge returns local with remote absorbed, with default settings.
func Merge(local, remote *snapshot.Snapshot) *snapshot.Snapshot {
	return (&Merger{}).Merge(local, remote)
}

func (m *Merger) logger() *log.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return log.Default()
}

// diffState carries the identity maps built while walking one remote snapshot.
type diffState struct {
	m    *Merger
	plan *Plan

	nextID int64

	tasksByID   map[int64]*models.Task
	tasksByName map[string]*models.Task
	// taskIDs maps remote task ids to local (or provisional) ids.
	taskIDs map[int64]int64
	// suppressed holds remote task ids withheld because of a local delete.
	suppressed map[int64]bool

	workoutsByID   map[int64]*models.Workout
	workoutsByName map[string]*models.Workout

	tombstones map[models.EntityType]map[string]int64
}

// Diff computes the plan for absorbing remote into local. It does not
// modify either snapshot.
func (m *Merger) Diff(local, remote *snapshot.Snapshot) *Plan {
	plan := &Plan{}
	if remote.IsEmpty() {
		return plan
	}
	if local == nil {
		local = snapshot.New()
	}

	st := &diffState{
		m:              m,
		plan:           plan,
		nextID:         -1,
		tasksByID:      make(map[int64]*models.Task),
		tasksByName:    make(map[string]*models.Task),
		taskIDs:        make(map[int64]int64),
		suppressed:     make(map[int64]bool),
		workoutsByID:   make(map[int64]*models.Workout),
		workoutsByName: make(map[string]*models.Workout),
		tombstones:     make(map[models.EntityType]map[string]int64),
	}
	for _, t := range byID(local.Tasks, func(t *models.Task) int64 { return t.ID }) {
		st.tasksByID[t.ID] = t
		if _, ok := st.tasksByName[models.NameKey(t.Name)]; !ok {
			st.tasksByName[models.NameKey(t.Name)] = t
		}
	}
	for _, w := range byID(local.Workouts, func(w *models.Workout) int64 { return w.ID }) {
		st.workoutsByID[w.ID] = w
		if _, ok := st.workoutsByName[models.NameKey(w.Name)]; !ok {
			st.workoutsByName[models.NameKey(w.Name)] = w
		}
	}
	for _, ts := range local.Tombstones {
		if st.tombstones[ts.EntityType] == nil {
			st.tombstones[ts.EntityType] = make(map[string]int64)
		}
		if ts.DeletedAt > st.tombstones[ts.EntityType][ts.Key] {
			st.tombstones[ts.EntityType][ts.Key] = ts.DeletedAt
		}
	}

	for _, t := range byID(remote.Tasks, func(t *models.Task) int64 { return t.ID }) {
		st.diffTask(t)
	}
	for _, w := range byID(remote.Workouts, func(w *models.Workout) int64 { return w.ID }) {
		st.diffWorkout(w)
	}
	st.diffLogEntries(local, remote)
	return plan
}

func (st *diffState) provisionalID() int64 {
	id := st.nextID
	st.nextID--
	return id
}

// deletedHere reports whether a local tombstone newer than lastModified exists.
func (st *diffState) deletedHere(kind models.EntityType, key string, lastModified int64) bool {
	deletedAt, ok := st.tombstones[kind][key]
	return ok && lastModified <= deletedAt
}

func (st *diffState) skip(kind models.EntityType, id int64, reason string) {
	verr := &ValidationError{Entity: kind, RemoteID: id, Reason: reason}
	st.plan.Skipped = append(st.plan.Skipped, verr)
	st.m.logger().Warn("skipping remote record", "entity", kind, "remote_id", id, "reason", reason)
}

// matchTask finds the local task a remote task refers to. An id match only
// counts when the names agree, since ids are assigned per device and the
// same number on two devices usually names two different tasks.
func (st *diffState) matchTask(r *models.Task) *models.Task {
	key := models.NameKey(r.Name)
	if t, ok := st.tasksByID[r.ID]; ok && models.NameKey(t.Name) == key {
		return t
	}
	return st.tasksByName[key]
}

func (st *diffState) diffTask(r *models.Task) {
	key := models.NameKey(r.Name)
	if key == "" {
		st.skip(models.EntityTask, r.ID, "task has no name")
		return
	}

	if local := st.matchTask(r); local != nil {
		st.taskIDs[r.ID] = local.ID
		if r.LastModified > local.LastModified {
			next := r.Clone()
			next.ID = local.ID
			st.replaceTask(local, next)
		}
		return
	}

	if st.deletedHere(models.EntityTask, key, r.LastModified) {
		st.suppressed[r.ID] = true
		st.m.logger().Debug("remote task deleted locally", "remote_id", r.ID, "name", r.Name)
		return
	}

	next := r.Clone()
	next.ID = st.provisionalID()
	st.taskIDs[r.ID] = next.ID
	st.tasksByName[key] = next
	st.plan.TasksToUpsert = append(st.plan.TasksToUpsert, next)
}

// replaceTask records next as the planned version of local, collapsing
// repeated updates to the same local task into one plan entry.
func (st *diffState) replaceTask(local, next *models.Task) {
	st.tasksByID[next.ID] = next
	if st.tasksByName[models.NameKey(local.Name)] == local {
		st.tasksByName[models.NameKey(local.Name)] = next
	}
	for i, planned := range st.plan.TasksToUpsert {
		if planned.ID == next.ID {
			st.plan.TasksToUpsert[i] = next
			return
		}
	}
	st.plan.TasksToUpsert = append(st.plan.TasksToUpsert, next)
}

func (st *diffState) matchWorkout(r *models.Workout) *models.Workout {
	key := models.NameKey(r.Name)
	if w, ok := st.workoutsByID[r.ID]; ok && models.NameKey(w.Name) == key {
		return w
	}
	return st.workoutsByName[key]
}

func (st *diffState) translateTaskIDs(ids []int64) []int64 {
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if st.suppressed[id] {
			continue
		}
		if local, ok := st.taskIDs[id]; ok {
			out = append(out, local)
			continue
		}
		if id > 0 {
			// Unknown on both sides; kept as a dangling reference.
			out = append(out, id)
		}
	}
	return out
}

func (st *diffState) diffWorkout(r *models.Workout) {
	key := models.NameKey(r.Name)
	if key == "" {
		st.skip(models.EntityWorkout, r.ID, "workout has no name")
		return
	}

	if local := st.matchWorkout(r); local != nil {
		if r.LastModified > local.LastModified {
			next := r.Clone()
			next.ID = local.ID
			next.TaskIDs = st.translateTaskIDs(r.TaskIDs)
			st.workoutsByID[next.ID] = next
			st.workoutsByName[key] = next
			for i, planned := range st.plan.WorkoutsToUpsert {
				if planned.ID == next.ID {
					st.plan.WorkoutsToUpsert[i] = next
					return
				}
			}
			st.plan.WorkoutsToUpsert = append(st.plan.WorkoutsToUpsert, next)
		}
		return
	}

	if st.deletedHere(models.EntityWorkout, key, r.LastModified) {
		st.m.logger().Debug("remote workout deleted locally", "remote_id", r.ID, "name", r.Name)
		return
	}

	next := r.Clone()
	next.ID = st.provisionalID()
	next.TaskIDs = st.translateTaskIDs(r.TaskIDs)
	st.workoutsByName[key] = next
	st.plan.WorkoutsToUpsert = append(st.plan.WorkoutsToUpsert, next)
}

// candidate is an existing or planned log entry with the task name it was fingerprinted under.
type candidate struct {
	entry *models.LogEntry
	name  string
}

func (st *diffState) diffLogEntries(local, remote *snapshot.Snapshot) {
	loc := st.m.Location
	if loc == nil {
		loc = time.Local
	}

	seen := make(map[fingerprint.Key][]candidate)
	for _, e := range local.LogEntries {
		task := local.TaskByID(e.TaskID)
		if task == nil {
			continue
		}
		k := fingerprint.Fingerprint(e, task.Name, loc)
		seen[k] = append(seen[k], candidate{entry: e, name: task.Name})
	}

	for _, e := range byID(remote.LogEntries, func(e *models.LogEntry) int64 { return e.ID }) {
		if st.suppressed[e.TaskID] {
			continue
		}
		rtask := remote.TaskByID(e.TaskID)
		if rtask == nil {
			st.skip(models.EntityLogEntry, e.ID, "task "+strconv.FormatInt(e.TaskID, 10)+" not in remote snapshot")
			continue
		}
		localTaskID, ok := st.taskIDs[e.TaskID]
		if !ok {
			st.skip(models.EntityLogEntry, e.ID, "task "+strconv.Quote(rtask.Name)+" could not be resolved locally")
			continue
		}

		// Dedup runs under the local task's name, which differs from the
		// remote one after a rename that lost the name match.
		name := st.taskName(localTaskID, rtask.Name)
		k := fingerprint.Fingerprint(e, name, loc)
		if st.deletedHere(models.EntityLogEntry, string(k), e.LastModified) {
			continue
		}
		if hits := seen[k]; len(hits) > 0 {
			if confirmed(hits, e, name, loc) {
				continue
			}
			st.m.logger().Warn("fingerprint collision, keeping both entries", "remote_id", e.ID, "key", k)
		}

		next := e.Clone()
		next.ID = 0
		next.TaskID = localTaskID
		st.plan.LogEntriesToInsert = append(st.plan.LogEntriesToInsert, next)
		seen[k] = append(seen[k], candidate{entry: next, name: name})
	}
}

// taskName returns the name a resolved task id will carry locally.
func (st *diffState) taskName(id int64, fallback string) string {
	if t, ok := st.tasksByID[id]; ok {
		return t.Name
	}
	return fallback
}

func confirmed(hits []candidate, e *models.LogEntry, name string, loc *time.Location) bool {
	for _, h := range hits {
		if fingerprint.AreDuplicate(h.entry, e, h.name, name, loc) {
			return true
		}
	}
	return false
}

// byID returns a copy of items sorted by id so plans are deterministic.
func byID[T any](items []*T, id func(*T) int64) []*T {
	out := make([]*T, 0, len(items))
	for _, it := range items {
		if it != nil {
			out = append(out, it)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return id(out[i]) < id(out[j]) })
	return out
}
