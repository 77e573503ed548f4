// ABOUTME: Badger-backed document store implementing Repository.
// ABOUTME: Entities are JSON documents under typed key prefixes with per-type id counters.
package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/harperreed/gym/internal/fingerprint"
	"github.com/harperreed/gym/internal/models"
)

const (
	prefixWorkout   = "workout:"
	prefixTask      = "task:"
	prefixLogEntry  = "log:"
	prefixOutbox    = "outbox:"
	prefixTombstone = "tombstone:"
	prefixMeta      = "meta:"
	prefixCounter   = "seq:"
)

// BadgerStore keeps gym data in an embedded Badger database.
type BadgerStore struct {
	db       *badger.DB
	dir      string
	stamp    *stamper
	location *time.Location
	deviceID string

	// mu serializes read-modify-write sequences such as counter bumps.
	mu sync.Mutex
}

var _ Repository = (*BadgerStore)(nil)

// OpenBadger opens or creates a Badger store in dir.
func OpenBadger(dir string, opts ...Option) (*BadgerStore, error) {
	o := buildOptions(opts)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	s := &BadgerStore{
		db:       db,
		dir:      dir,
		stamp:    &stamper{clock: o.clock},
		location: o.location,
	}
	if err := s.loadMeta(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func idKey(prefix string, id int64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefix, id))
}

func tombstoneKey(entity models.EntityType, key string) []byte {
	return []byte(prefixTombstone + string(entity) + ":" + key)
}

func (s *BadgerStore) loadMeta() error {
	id, err := s.getMeta(metaDeviceID)
	if err != nil {
		return fmt.Errorf("load device id: %w", err)
	}
	if id == "" {
		id = NewDeviceID()
		if err := s.setMeta(metaDeviceID, id); err != nil {
			return fmt.Errorf("save device id: %w", err)
		}
	}
	s.deviceID = id

	var newest int64
	observe := func(lm int64) {
		if lm > newest {
			newest = lm
		}
	}
	workouts, err := s.ListWorkouts()
	if err != nil {
		return err
	}
	for _, w := range workouts {
		observe(w.LastModified)
	}
	tasks, err := s.ListTasks()
	if err != nil {
		return err
	}
	for _, t := range tasks {
		observe(t.LastModified)
	}
	entries, err := s.ListLogEntries()
	if err != nil {
		return err
	}
	for _, e := range entries {
		observe(e.LastModified)
	}
	s.stamp.observe(newest)
	return nil
}

// nextID bumps the counter for prefix inside txn.
func nextID(txn *badger.Txn, prefix string) (int64, error) {
	key := []byte(prefixCounter + prefix)
	var n uint64
	item, err := txn.Get(key)
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
	case err != nil:
		return 0, err
	default:
		v, err := item.ValueCopy(nil)
		if err != nil {
			return 0, err
		}
		n = binary.BigEndian.Uint64(v)
	}
	n++
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, n)
	if err := txn.Set(key, buf); err != nil {
		return 0, err
	}
	return int64(n), nil
}

// raiseCounter makes sure future ids for prefix stay above id.
func raiseCounter(txn *badger.Txn, prefix string, id int64) error {
	key := []byte(prefixCounter + prefix)
	item, err := txn.Get(key)
	if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		return err
	}
	if err == nil {
		v, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if int64(binary.BigEndian.Uint64(v)) >= id {
			return nil
		}
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(id))
	return txn.Set(key, buf)
}

func putJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

// scanPrefix decodes every document under prefix.
func scanPrefix[T any](db *badger.DB, prefix string) ([]*T, error) {
	var out []*T
	err := db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			var v T
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &v)
			}); err != nil {
				return err
			}
			out = append(out, &v)
		}
		return nil
	})
	return out, err
}

func (s *BadgerStore) get(key []byte, v any, kind string, id int64) error {
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, key, v)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%s %d: %w", kind, id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("get %s: %w", kind, err)
	}
	return nil
}

func (s *BadgerStore) enqueueTxn(txn *badger.Txn, op models.Operation, entity models.EntityType, payload any, ts int64) (int64, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("encode outbox payload: %w", err)
	}
	id, err := nextID(txn, prefixOutbox)
	if err != nil {
		return 0, err
	}
	item := &models.OutboxItem{
		ID:         id,
		Operation:  op,
		EntityType: entity,
		Payload:    data,
		Timestamp:  ts,
		Status:     models.StatusPending,
	}
	return id, putJSON(txn, idKey(prefixOutbox, id), item)
}

func putTombstoneTxn(txn *badger.Txn, entity models.EntityType, key string, at int64) error {
	k := tombstoneKey(entity, key)
	var existing models.Tombstone
	err := getJSON(txn, k, &existing)
	if err == nil && existing.DeletedAt >= at {
		return nil
	}
	if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		return err
	}
	return putJSON(txn, k, models.Tombstone{EntityType: entity, Key: key, DeletedAt: at})
}

func clearTombstoneTxn(txn *badger.Txn, entity models.EntityType, key string) error {
	return txn.Delete(tombstoneKey(entity, key))
}

func sortByOrder[T any](items []*T, order func(*T) (int, int64)) {
	sort.SliceStable(items, func(i, j int) bool {
		oi, ii := order(items[i])
		oj, ij := order(items[j])
		if oi != oj {
			return oi < oj
		}
		return ii < ij
	})
}

// Workouts

// ListWorkouts returns all workouts in display order.
func (s *BadgerStore) ListWorkouts() ([]*models.Workout, error) {
	ws, err := scanPrefix[models.Workout](s.db, prefixWorkout)
	if err != nil {
		return nil, fmt.Errorf("list workouts: %w", err)
	}
	for _, w := range ws {
		if w.TaskIDs == nil {
			w.TaskIDs = []int64{}
		}
	}
	sortByOrder(ws, func(w *models.Workout) (int, int64) { return w.OrderIndex, w.ID })
	return ws, nil
}

// GetWorkout retrieves a workout by id.
func (s *BadgerStore) GetWorkout(id int64) (*models.Workout, error) {
	var w models.Workout
	if err := s.get(idKey(prefixWorkout, id), &w, "workout", id); err != nil {
		return nil, err
	}
	if w.TaskIDs == nil {
		w.TaskIDs = []int64{}
	}
	return &w, nil
}

// FindWorkoutByName returns the lowest-id workout whose name matches case-insensitively.
func (s *BadgerStore) FindWorkoutByName(name string) (*models.Workout, error) {
	ws, err := s.ListWorkouts()
	if err != nil {
		return nil, err
	}
	if w := findWorkoutByName(ws, name); w != nil {
		return w, nil
	}
	return nil, fmt.Errorf("workout %q: %w", name, ErrNotFound)
}

// CreateWorkout stores a new workout, stamping it and queueing it for sync.
func (s *BadgerStore) CreateWorkout(w *models.Workout) (int64, error) {
	if strings.TrimSpace(w.Name) == "" {
		return 0, errors.New("create workout: name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	w.LastModified = s.stamp.next()
	w.DeviceID = s.deviceID
	if w.TaskIDs == nil {
		w.TaskIDs = []int64{}
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		id, err := nextID(txn, prefixWorkout)
		if err != nil {
			return err
		}
		w.ID = id
		if err := putJSON(txn, idKey(prefixWorkout, id), w); err != nil {
			return err
		}
		if err := clearTombstoneTxn(txn, models.EntityWorkout, models.NameKey(w.Name)); err != nil {
			return err
		}
		_, err = s.enqueueTxn(txn, models.OpCreate, models.EntityWorkout, w, w.LastModified)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("create workout: %w", err)
	}
	return w.ID, nil
}

// UpdateWorkout saves changes to an existing workout and queues them for sync.
func (s *BadgerStore) UpdateWorkout(w *models.Workout) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.GetWorkout(w.ID); err != nil {
		return fmt.Errorf("update workout: %w", err)
	}
	w.LastModified = s.stamp.next()
	w.DeviceID = s.deviceID

	err := s.db.Update(func(txn *badger.Txn) error {
		if err := putJSON(txn, idKey(prefixWorkout, w.ID), w); err != nil {
			return err
		}
		_, err := s.enqueueTxn(txn, models.OpUpdate, models.EntityWorkout, w, w.LastModified)
		return err
	})
	if err != nil {
		return fmt.Errorf("update workout: %w", err)
	}
	return nil
}

// DeleteWorkout removes a workout. Its tasks are untouched.
func (s *BadgerStore) DeleteWorkout(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, err := s.GetWorkout(id)
	if err != nil {
		return fmt.Errorf("delete workout: %w", err)
	}
	now := s.stamp.next()

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(idKey(prefixWorkout, id)); err != nil {
			return err
		}
		if err := putTombstoneTxn(txn, models.EntityWorkout, models.NameKey(w.Name), now); err != nil {
			return err
		}
		_, err := s.enqueueTxn(txn, models.OpDelete, models.EntityWorkout, w, now)
		return err
	})
	if err != nil {
		return fmt.Errorf("delete workout: %w", err)
	}
	return nil
}

// ImportWorkout upserts a workout from sync, keeping its stamps. A zero id inserts.
func (s *BadgerStore) ImportWorkout(w *models.Workout) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stamp.observe(w.LastModified)
	next := w.Clone()

	err := s.db.Update(func(txn *badger.Txn) error {
		if next.ID == 0 {
			id, err := nextID(txn, prefixWorkout)
			if err != nil {
				return err
			}
			next.ID = id
		} else if err := raiseCounter(txn, prefixWorkout, next.ID); err != nil {
			return err
		}
		if err := putJSON(txn, idKey(prefixWorkout, next.ID), next); err != nil {
			return err
		}
		return clearTombstoneTxn(txn, models.EntityWorkout, models.NameKey(next.Name))
	})
	if err != nil {
		return 0, fmt.Errorf("import workout: %w", err)
	}
	return next.ID, nil
}

// Tasks

// ListTasks returns all tasks in display order.
func (s *BadgerStore) ListTasks() ([]*models.Task, error) {
	ts, err := scanPrefix[models.Task](s.db, prefixTask)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	sortByOrder(ts, func(t *models.Task) (int, int64) { return t.OrderIndex, t.ID })
	return ts, nil
}

// GetTask retrieves a task by id.
func (s *BadgerStore) GetTask(id int64) (*models.Task, error) {
	var t models.Task
	if err := s.get(idKey(prefixTask, id), &t, "task", id); err != nil {
		return nil, err
	}
	return &t, nil
}

// FindTaskByName returns the lowest-id task whose name matches case-insensitively.
func (s *BadgerStore) FindTaskByName(name string) (*models.Task, error) {
	ts, err := s.ListTasks()
	if err != nil {
		return nil, err
	}
	if t := findTaskByName(ts, name); t != nil {
		return t, nil
	}
	return nil, fmt.Errorf("task %q: %w", name, ErrNotFound)
}

// CreateTask stores a new task, stamping it and queueing it for sync.
func (s *BadgerStore) CreateTask(t *models.Task) (int64, error) {
	if strings.TrimSpace(t.Name) == "" {
		return 0, errors.New("create task: name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t.LastModified = s.stamp.next()
	t.DeviceID = s.deviceID

	err := s.db.Update(func(txn *badger.Txn) error {
		id, err := nextID(txn, prefixTask)
		if err != nil {
			return err
		}
		t.ID = id
		if err := putJSON(txn, idKey(prefixTask, id), t); err != nil {
			return err
		}
		if err := clearTombstoneTxn(txn, models.EntityTask, models.NameKey(t.Name)); err != nil {
			return err
		}
		_, err = s.enqueueTxn(txn, models.OpCreate, models.EntityTask, t, t.LastModified)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("create task: %w", err)
	}
	return t.ID, nil
}

// UpdateTask saves changes to an existing task and queues them for sync.
func (s *BadgerStore) UpdateTask(t *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, err := s.GetTask(t.ID)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	t.LastModified = s.stamp.next()
	t.DeviceID = s.deviceID

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := putJSON(txn, idKey(prefixTask, t.ID), t); err != nil {
			return err
		}
		if oldKey, newKey := models.NameKey(prev.Name), models.NameKey(t.Name); oldKey != newKey {
			if err := putTombstoneTxn(txn, models.EntityTask, oldKey, t.LastModified); err != nil {
				return err
			}
			if err := clearTombstoneTxn(txn, models.EntityTask, newKey); err != nil {
				return err
			}
		}
		_, err := s.enqueueTxn(txn, models.OpUpdate, models.EntityTask, t, t.LastModified)
		return err
	})
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return nil
}

// DeleteTask removes a task and its log entries.
func (s *BadgerStore) DeleteTask(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.GetTask(id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	entries, err := s.ListLogEntriesByTask(id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	now := s.stamp.next()

	err = s.db.Update(func(txn *badger.Txn) error {
		for _, e := range entries {
			if err := txn.Delete(idKey(prefixLogEntry, e.ID)); err != nil {
				return err
			}
		}
		if err := txn.Delete(idKey(prefixTask, id)); err != nil {
			return err
		}
		if err := putTombstoneTxn(txn, models.EntityTask, models.NameKey(t.Name), now); err != nil {
			return err
		}
		_, err := s.enqueueTxn(txn, models.OpDelete, models.EntityTask, t, now)
		return err
	})
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

// ImportTask upserts a task from sync, keeping its stamps. A zero id inserts.
func (s *BadgerStore) ImportTask(t *models.Task) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stamp.observe(t.LastModified)
	next := t.Clone()

	err := s.db.Update(func(txn *badger.Txn) error {
		if next.ID == 0 {
			id, err := nextID(txn, prefixTask)
			if err != nil {
				return err
			}
			next.ID = id
		} else if err := raiseCounter(txn, prefixTask, next.ID); err != nil {
			return err
		}
		if err := putJSON(txn, idKey(prefixTask, next.ID), next); err != nil {
			return err
		}
		return clearTombstoneTxn(txn, models.EntityTask, models.NameKey(next.Name))
	})
	if err != nil {
		return 0, fmt.Errorf("import task: %w", err)
	}
	return next.ID, nil
}

// Log entries

// ListLogEntries returns every log entry ordered by id.
func (s *BadgerStore) ListLogEntries() ([]*models.LogEntry, error) {
	es, err := scanPrefix[models.LogEntry](s.db, prefixLogEntry)
	if err != nil {
		return nil, fmt.Errorf("list log entries: %w", err)
	}
	for _, e := range es {
		if e.Sets == nil {
			e.Sets = []models.Set{}
		}
	}
	return es, nil
}

// ListLogEntriesByTask returns a task's log entries, newest first.
func (s *BadgerStore) ListLogEntriesByTask(taskID int64) ([]*models.LogEntry, error) {
	all, err := s.ListLogEntries()
	if err != nil {
		return nil, err
	}
	var out []*models.LogEntry
	for _, e := range all {
		if e.TaskID == taskID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date > out[j].Date
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// GetLogEntry retrieves a log entry by id.
func (s *BadgerStore) GetLogEntry(id int64) (*models.LogEntry, error) {
	var e models.LogEntry
	if err := s.get(idKey(prefixLogEntry, id), &e, "log entry", id); err != nil {
		return nil, err
	}
	if e.Sets == nil {
		e.Sets = []models.Set{}
	}
	return &e, nil
}

// CreateLogEntry records a new log entry for an existing task.
func (s *BadgerStore) CreateLogEntry(e *models.LogEntry) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, err := s.GetTask(e.TaskID)
	if err != nil {
		return 0, fmt.Errorf("create log entry: %w", err)
	}
	e.LastModified = s.stamp.next()
	e.DeviceID = s.deviceID
	if e.Sets == nil {
		e.Sets = []models.Set{}
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		id, err := nextID(txn, prefixLogEntry)
		if err != nil {
			return err
		}
		e.ID = id
		if err := putJSON(txn, idKey(prefixLogEntry, id), e); err != nil {
			return err
		}
		key := string(fingerprint.Fingerprint(e, task.Name, s.location))
		if err := clearTombstoneTxn(txn, models.EntityLogEntry, key); err != nil {
			return err
		}
		_, err = s.enqueueTxn(txn, models.OpCreate, models.EntityLogEntry, e, e.LastModified)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("create log entry: %w", err)
	}
	return e.ID, nil
}

// UpdateLogEntry replaces an entry's date and sets.
func (s *BadgerStore) UpdateLogEntry(e *models.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.GetLogEntry(e.ID); err != nil {
		return fmt.Errorf("update log entry: %w", err)
	}
	e.LastModified = s.stamp.next()
	e.DeviceID = s.deviceID

	err := s.db.Update(func(txn *badger.Txn) error {
		if err := putJSON(txn, idKey(prefixLogEntry, e.ID), e); err != nil {
			return err
		}
		_, err := s.enqueueTxn(txn, models.OpUpdate, models.EntityLogEntry, e, e.LastModified)
		return err
	})
	if err != nil {
		return fmt.Errorf("update log entry: %w", err)
	}
	return nil
}

// DeleteLogEntry removes a log entry.
func (s *BadgerStore) DeleteLogEntry(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.GetLogEntry(id)
	if err != nil {
		return fmt.Errorf("delete log entry: %w", err)
	}
	var taskName string
	if task, err := s.GetTask(e.TaskID); err == nil {
		taskName = task.Name
	}
	now := s.stamp.next()

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(idKey(prefixLogEntry, id)); err != nil {
			return err
		}
		if taskName != "" {
			key := string(fingerprint.Fingerprint(e, taskName, s.location))
			if err := putTombstoneTxn(txn, models.EntityLogEntry, key, now); err != nil {
				return err
			}
		}
		_, err := s.enqueueTxn(txn, models.OpDelete, models.EntityLogEntry, e, now)
		return err
	})
	if err != nil {
		return fmt.Errorf("delete log entry: %w", err)
	}
	return nil
}

// ImportLogEntry stores a log entry from sync, keeping its stamps. A zero id inserts.
func (s *BadgerStore) ImportLogEntry(e *models.LogEntry) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stamp.observe(e.LastModified)
	next := e.Clone()

	err := s.db.Update(func(txn *badger.Txn) error {
		if next.ID == 0 {
			id, err := nextID(txn, prefixLogEntry)
			if err != nil {
				return err
			}
			next.ID = id
		} else if err := raiseCounter(txn, prefixLogEntry, next.ID); err != nil {
			return err
		}
		return putJSON(txn, idKey(prefixLogEntry, next.ID), next)
	})
	if err != nil {
		return 0, fmt.Errorf("import log entry: %w", err)
	}
	return next.ID, nil
}

// Outbox

// Enqueue appends an outbox item outside of any entity write.
func (s *BadgerStore) Enqueue(op models.Operation, entity models.EntityType, payload any) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var id int64
	err := s.db.Update(func(txn *badger.Txn) error {
		var err error
		id, err = s.enqueueTxn(txn, op, entity, payload, s.stamp.clock.Now().UnixMilli())
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("enqueue: %w", err)
	}
	return id, nil
}

// ListOutbox returns every item regardless of status, oldest first.
func (s *BadgerStore) ListOutbox() ([]*models.OutboxItem, error) {
	items, err := scanPrefix[models.OutboxItem](s.db, prefixOutbox)
	if err != nil {
		return nil, fmt.Errorf("list outbox: %w", err)
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Timestamp != items[j].Timestamp {
			return items[i].Timestamp < items[j].Timestamp
		}
		return items[i].ID < items[j].ID
	})
	return items, nil
}

// PendingOutbox returns pending items, oldest first.
func (s *BadgerStore) PendingOutbox() ([]*models.OutboxItem, error) {
	all, err := s.ListOutbox()
	if err != nil {
		return nil, err
	}
	var out []*models.OutboxItem
	for _, item := range all {
		if item.Status == models.StatusPending {
			out = append(out, item)
		}
	}
	return out, nil
}

func (s *BadgerStore) modifyOutbox(id int64, fn func(*models.OutboxItem)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Update(func(txn *badger.Txn) error {
		var item models.OutboxItem
		err := getJSON(txn, idKey(prefixOutbox, id), &item)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("outbox item %d: %w", id, ErrNotFound)
		}
		if err != nil {
			return err
		}
		fn(&item)
		return putJSON(txn, idKey(prefixOutbox, id), &item)
	})
}

// UpdateOutboxItem saves retry bookkeeping for an item.
func (s *BadgerStore) UpdateOutboxItem(item *models.OutboxItem) error {
	err := s.modifyOutbox(item.ID, func(stored *models.OutboxItem) {
		stored.Retries = item.Retries
		stored.Status = item.Status
		stored.LastError = item.LastError
		stored.LastRetry = item.LastRetry
	})
	if err != nil {
		return fmt.Errorf("update outbox item: %w", err)
	}
	return nil
}

// MarkOutboxFailed freezes an item until a manual retry.
func (s *BadgerStore) MarkOutboxFailed(id int64, msg string) error {
	err := s.modifyOutbox(id, func(stored *models.OutboxItem) {
		stored.Status = models.StatusFailed
		stored.LastError = msg
	})
	if err != nil {
		return fmt.Errorf("mark outbox failed: %w", err)
	}
	return nil
}

// ClearOutbox deletes a delivered item.
func (s *BadgerStore) ClearOutbox(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(idKey(prefixOutbox, id))
	})
	if err != nil {
		return fmt.Errorf("clear outbox item: %w", err)
	}
	return nil
}

// RetryFailedOutbox moves failed items back to pending with a fresh retry budget.
func (s *BadgerStore) RetryFailedOutbox() (int, error) {
	items, err := s.ListOutbox()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, item := range items {
		if item.Status != models.StatusFailed {
			continue
		}
		err := s.modifyOutbox(item.ID, func(stored *models.OutboxItem) {
			stored.Status = models.StatusPending
			stored.Retries = 0
			stored.LastRetry = 0
		})
		if err != nil {
			return n, fmt.Errorf("retry failed outbox: %w", err)
		}
		n++
	}
	return n, nil
}

// Tombstones

// ListTombstones returns every local delete marker.
func (s *BadgerStore) ListTombstones() ([]models.Tombstone, error) {
	ptrs, err := scanPrefix[models.Tombstone](s.db, prefixTombstone)
	if err != nil {
		return nil, fmt.Errorf("list tombstones: %w", err)
	}
	out := make([]models.Tombstone, 0, len(ptrs))
	for _, ts := range ptrs {
		out = append(out, *ts)
	}
	return out, nil
}

// ImportTombstone stores a delete marker, keeping the later deletedAt on conflict.
func (s *BadgerStore) ImportTombstone(ts models.Tombstone) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Update(func(txn *badger.Txn) error {
		return putTombstoneTxn(txn, ts.EntityType, ts.Key, ts.DeletedAt)
	})
}

// Meta

func (s *BadgerStore) getMeta(key string) (string, error) {
	var value string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixMeta + key))
		if err != nil {
			return err
		}
		v, err := item.ValueCopy(nil)
		value = string(v)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", nil
	}
	return value, err
}

func (s *BadgerStore) setMeta(key, value string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if value == "" {
			return txn.Delete([]byte(prefixMeta + key))
		}
		return txn.Set([]byte(prefixMeta+key), []byte(value))
	})
}

// DeviceID returns this installation's device id.
func (s *BadgerStore) DeviceID() string {
	return s.deviceID
}

// LastSync returns the time of the last successful sync, or the zero time.
func (s *BadgerStore) LastSync() (time.Time, error) {
	v, err := s.getMeta(metaLastSync)
	if err != nil {
		return time.Time{}, fmt.Errorf("get last sync: %w", err)
	}
	return parseMillis(v), nil
}

// SetLastSync records the time of a successful sync.
func (s *BadgerStore) SetLastSync(t time.Time) error {
	if err := s.setMeta(metaLastSync, strconv.FormatInt(t.UnixMilli(), 10)); err != nil {
		return fmt.Errorf("set last sync: %w", err)
	}
	return nil
}

// RemoteDocumentID returns the remembered remote document id, if any.
func (s *BadgerStore) RemoteDocumentID() (string, error) {
	v, err := s.getMeta(metaRemoteDocumentID)
	if err != nil {
		return "", fmt.Errorf("get remote document id: %w", err)
	}
	return v, nil
}

// SetRemoteDocumentID remembers the remote document id. An empty id forgets it.
func (s *BadgerStore) SetRemoteDocumentID(id string) error {
	if err := s.setMeta(metaRemoteDocumentID, id); err != nil {
		return fmt.Errorf("set remote document id: %w", err)
	}
	return nil
}
