// ABOUTME: Repository interface for the gym log's local storage.
// ABOUTME: Defines CRUD for workouts, tasks and log entries plus outbox, tombstone and meta primitives.
package storage

import (
	"errors"
	"sync"
	"time"

	"github.com/harperreed/gym/internal/clock"
	"github.com/harperreed/gym/internal/models"
)

// ErrNotFound is returned (wrapped) when a record does not exist.
var ErrNotFound = errors.New("not found")

// Repository defines the storage interface for gym data.
//
// Create, Update and Delete are the user-facing writes: they stamp
// lastModified and deviceId and enqueue an outbox item in the same
// transaction. Import writes come from sync: they upsert by id, keep the
// incoming lastModified and deviceId, and never touch the outbox.
type Repository interface {
	// Workout operations
	ListWorkouts() ([]*models.Workout, error)
	GetWorkout(id int64) (*models.Workout, error)
	FindWorkoutByName(name string) (*models.Workout, error)
	CreateWorkout(w *models.Workout) (int64, error)
	UpdateWorkout(w *models.Workout) error
	DeleteWorkout(id int64) error

	// Task operations
	ListTasks() ([]*models.Task, error)
	GetTask(id int64) (*models.Task, error)
	FindTaskByName(name string) (*models.Task, error)
	CreateTask(t *models.Task) (int64, error)
	UpdateTask(t *models.Task) error
	DeleteTask(id int64) error

	// Log entry operations
	ListLogEntries() ([]*models.LogEntry, error)
	ListLogEntriesByTask(taskID int64) ([]*models.LogEntry, error)
	GetLogEntry(id int64) (*models.LogEntry, error)
	CreateLogEntry(e *models.LogEntry) (int64, error)
	UpdateLogEntry(e *models.LogEntry) error
	DeleteLogEntry(id int64) error

	// Sync writes
	ImportWorkout(w *models.Workout) (int64, error)
	ImportTask(t *models.Task) (int64, error)
	ImportLogEntry(e *models.LogEntry) (int64, error)
	ImportTombstone(ts models.Tombstone) error

	// Outbox operations
	Enqueue(op models.Operation, entity models.EntityType, payload any) (int64, error)
	PendingOutbox() ([]*models.OutboxItem, error)
	ListOutbox() ([]*models.OutboxItem, error)
	UpdateOutboxItem(item *models.OutboxItem) error
	MarkOutboxFailed(id int64, msg string) error
	ClearOutbox(id int64) error
	RetryFailedOutbox() (int, error)

	ListTombstones() ([]models.Tombstone, error)

	// Meta
	DeviceID() string
	LastSync() (time.Time, error)
	SetLastSync(t time.Time) error
	RemoteDocumentID() (string, error)
	SetRemoteDocumentID(id string) error

	// Lifecycle
	Close() error
}

// Option configures a store.
type Option func(*options)

type options struct {
	clock    clock.Clock
	location *time.Location
}

// WithClock sets the clock used for lastModified stamps and outbox timestamps.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithLocation sets the zone used to fingerprint deleted log entries.
func WithLocation(loc *time.Location) Option {
	return func(o *options) { o.location = loc }
}

func buildOptions(opts []Option) options {
	o := options{clock: clock.New(), location: time.Local}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// stamper hands out strictly increasing lastModified values.
type stamper struct {
	mu    sync.Mutex
	clock clock.Clock
	last  int64
}

func (s *stamper) observe(v int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v > s.last {
		s.last = v
	}
}

func (s *stamper) next() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now().UnixMilli()
	if now <= s.last {
		now = s.last + 1
	}
	s.last = now
	return now
}
