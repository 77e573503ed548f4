// ABOUTME: Shared test helpers for sync package tests.
// ABOUTME: Provides stores, fake syncers and a fake gist API wired to real repositories.

package sync

import (
	"context"
	"io"
	"path/filepath"
	gosync "sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/harperreed/gym/internal/clock"
	"github.com/harperreed/gym/internal/models"
	"github.com/harperreed/gym/internal/remote"
	"github.com/harperreed/gym/internal/remote/gisttest"
	"github.com/harperreed/gym/internal/storage"
	"github.com/stretchr/testify/require"
)

var quietLogger = log.New(io.Discard)

// setupTestRepo opens a fresh SQLite store on a mock clock.
func setupTestRepo(t *testing.T, c *clock.Mock) *storage.DB {
	t.Helper()
	repo, err := storage.Open(filepath.Join(t.TempDir(), "gym.db"), storage.WithClock(c), storage.WithLocation(time.UTC))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

// setupTestGist starts a fake gist API.
func setupTestGist(t *testing.T) *gisttest.Server {
	t.Helper()
	srv := gisttest.NewServer()
	t.Cleanup(srv.Close)
	return srv
}

// setupTestEngine wires repo to the fake gist API.
func setupTestEngine(t *testing.T, repo storage.Repository, srv *gisttest.Server, c clock.Clock) *Engine {
	t.Helper()
	store, err := remote.NewGistStore(repo, remote.GistOptions{Token: "test-token", BaseURL: srv.URL, Logger: quietLogger})
	require.NoError(t, err)
	return NewEngine(repo, store, WithClock(c), WithLogger(quietLogger), WithLocation(time.UTC))
}

func mustTask(t *testing.T, repo storage.Repository, name string) *models.Task {
	t.Helper()
	task := models.NewTask(name)
	_, err := repo.CreateTask(task)
	require.NoError(t, err)
	return task
}

// scriptedSyncer returns queued errors in order, then nil.
type scriptedSyncer struct {
	mu    gosync.Mutex
	errs  []error
	calls int
	// always, when set, is returned once the queue is empty.
	always  error
	block   chan struct{}
	entered chan struct{}
}

func (s *scriptedSyncer) Sync(ctx context.Context) (*PassResult, error) {
	s.mu.Lock()
	s.calls++
	var err error
	if len(s.errs) > 0 {
		err, s.errs = s.errs[0], s.errs[1:]
	} else {
		err = s.always
	}
	block, entered := s.block, s.entered
	s.entered = nil
	s.mu.Unlock()

	if entered != nil {
		close(entered)
	}
	if block != nil {
		<-block
	}
	return &PassResult{}, err
}

func (s *scriptedSyncer) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func newTestProcessor(repo storage.Repository, syncer Syncer, c clock.Clock) *Processor {
	return NewProcessor(repo, syncer, Options{MaxRetries: 3, Clock: c, Logger: quietLogger})
}
