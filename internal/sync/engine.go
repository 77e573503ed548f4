// ABOUTME: One synchronization pass between the local repository and the remote document.
// ABOUTME: Fetches and merges the remote snapshot, then pushes the reconciled local state.
package sync

import (
	"context"
	gosync "sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/harperreed/gym/internal/clock"
	"github.com/harperreed/gym/internal/merge"
	"github.com/harperreed/gym/internal/remote"
	"github.com/harperreed/gym/internal/snapshot"
	"github.com/harperreed/gym/internal/storage"
)

// Syncer runs full synchronization passes.
type Syncer interface {
	Sync(ctx context.Context) (*PassResult, error)
}

// PassResult describes one pass.
type PassResult struct {
	ID      string
	Pulled  *merge.Result
	Skipped []*merge.ValidationError
	Pushed  bool
	Bytes   int
	At      time.Time
}

// Engine performs sync passes for one repository and remote store.
type Engine struct {
	mu     gosync.Mutex
	repo   storage.Repository
	remote remote.Store
	merger *merge.Merger
	clock  clock.Clock
	logger *log.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithClock sets the clock used for the pushed lastSync value.
func WithClock(c clock.Clock) EngineOption {
	return func(e *Engine) { e.clock = c }
}

// WithLogger sets the engine logger.
func WithLogger(l *log.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithLocation sets the zone used to fingerprint log entries.
func WithLocation(loc *time.Location) EngineOption {
	return func(e *Engine) { e.merger.Location = loc }
}

// NewEngine creates an Engine.
func NewEngine(repo storage.Repository, store remote.Store, opts ...EngineOption) *Engine {
	e := &Engine{
		repo:   repo,
		remote: store,
		merger: &merge.Merger{},
		clock:  clock.New(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = log.Default().WithPrefix("sync")
	}
	e.merger.Logger = e.logger
	return e
}

// Sync fetches the remote document, merges it into the repository and
// pushes the full local state back.
func (e *Engine) Sync(ctx context.Context) (*PassResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	res := e.newResult()
	logger := e.logger.With("pass", res.ID)
	logger.Debug("sync pass started")

	if err := e.pull(ctx, res); err != nil {
		logger.Debug("sync pass failed during pull", "err", err)
		return res, err
	}

	local, err := storage.ExportSnapshot(e.repo)
	if err != nil {
		return res, storeErr("export snapshot", err)
	}
	local.LastSync = e.clock.Now().UnixMilli()
	payload, err := snapshot.Encode(local)
	if err != nil {
		return res, storeErr("encode snapshot", err)
	}

	if err := e.remote.Upsert(ctx, payload); err != nil {
		logger.Debug("sync pass failed during push", "err", err)
		return res, err
	}
	res.Pushed = true
	res.Bytes = len(payload)
	logger.Info("sync pass complete",
		"tasks", len(local.Tasks),
		"workouts", len(local.Workouts),
		"entries", len(local.LogEntries),
		"bytes", res.Bytes)
	return res, nil
}

// Pull fetches the remote document and merges it without pushing.
func (e *Engine) Pull(ctx context.Context) (*PassResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	res := e.newResult()
	return res, e.pull(ctx, res)
}

// Remote returns the current remote document content, or nil.
func (e *Engine) Remote(ctx context.Context) ([]byte, error) {
	doc, err := e.remote.Fetch(ctx)
	if err != nil || doc == nil {
		return nil, err
	}
	return doc.Content, nil
}

func (e *Engine) newResult() *PassResult {
	return &PassResult{ID: uuid.NewString(), Pulled: &merge.Result{}, At: e.clock.Now()}
}

func (e *Engine) pull(ctx context.Context, res *PassResult) error {
	doc, err := e.remote.Fetch(ctx)
	if err != nil {
		return err
	}
	if doc == nil || len(doc.Content) == 0 {
		e.logger.Debug("no remote document yet", "pass", res.ID)
		return nil
	}

	local, err := storage.ExportSnapshot(e.repo)
	if err != nil {
		return storeErr("export snapshot", err)
	}
	plan, err := e.merger.Import(local, doc.Content)
	if err != nil {
		e.logger.Error("remote document rejected", "pass", res.ID, "doc", doc.ID, "err", err)
		return err
	}
	res.Skipped = plan.Skipped
	if plan.IsEmpty() {
		return nil
	}

	applied, err := plan.Apply(e.repo)
	if applied != nil {
		res.Pulled = applied
	}
	if err != nil {
		return storeErr("apply remote changes", err)
	}
	e.logger.Info("merged remote changes",
		"pass", res.ID,
		"tasks_new", applied.TasksInserted,
		"tasks_updated", applied.TasksUpdated,
		"workouts_new", applied.WorkoutsInserted,
		"workouts_updated", applied.WorkoutsUpdated,
		"entries_new", applied.LogEntriesInserted,
		"skipped", applied.Skipped)
	return nil
}
