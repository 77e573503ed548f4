// ABOUTME: Tests for sync passes against a fake gist API.
// ABOUTME: Covers the two-device scenario, malformed documents, skips and legacy payloads.

package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/harperreed/gym/internal/clock"
	"github.com/harperreed/gym/internal/merge"
	"github.com/harperreed/gym/internal/models"
	"github.com/harperreed/gym/internal/remote"
	"github.com/harperreed/gym/internal/snapshot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirstDrainCreatesDocumentAndSecondDeviceImports(t *testing.T) {
	ctx := context.Background()
	srv := setupTestGist(t)

	// Device A logs a workout.
	clockA := clock.NewMock()
	repoA := setupTestRepo(t, clockA)
	bench := mustTask(t, repoA, "Bench Press")
	require.Equal(t, int64(1), bench.ID)
	_, err := repoA.CreateWorkout(models.NewWorkout("Push Day").WithTasks(bench.ID))
	require.NoError(t, err)
	day := time.Date(2024, 1, 5, 8, 0, 0, 0, time.UTC)
	_, err = repoA.CreateLogEntry(models.NewLogEntry(bench.ID, day, models.Set{Reps: 5, Weight: 60}))
	require.NoError(t, err)

	procA := newTestProcessor(repoA, setupTestEngine(t, repoA, srv, clockA), clockA)
	report, err := procA.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Synced)
	assert.Empty(t, report.Stopped)

	pending, err := repoA.PendingOutbox()
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.Equal(t, 1, srv.Count())
	assert.Equal(t, 1, srv.Calls("create"))
	last, _ := repoA.LastSync()
	assert.True(t, last.Equal(clockA.Now()))

	docID, _ := repoA.RemoteDocumentID()
	content, ok := srv.Content(docID, remote.DefaultFilename)
	require.True(t, ok)
	doc, err := snapshot.Decode([]byte(content))
	require.NoError(t, err)
	assert.Len(t, doc.Workouts, 1)
	assert.Len(t, doc.Tasks, 1)
	assert.Len(t, doc.LogEntries, 1)
	assert.Equal(t, clockA.Now().UnixMilli(), doc.LastSync)

	// Device B starts empty and finds the document by description.
	clockB := clock.NewMock()
	repoB := setupTestRepo(t, clockB)
	engineB := setupTestEngine(t, repoB, srv, clockB)

	res, err := engineB.Pull(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pulled.TasksInserted)
	assert.Equal(t, 1, res.Pulled.WorkoutsInserted)
	assert.Equal(t, 1, res.Pulled.LogEntriesInserted)

	tasks, _ := repoB.ListTasks()
	workouts, _ := repoB.ListWorkouts()
	entries, _ := repoB.ListLogEntries()
	require.Len(t, tasks, 1)
	require.Len(t, workouts, 1)
	require.Len(t, entries, 1)
	assert.Equal(t, []int64{tasks[0].ID}, workouts[0].TaskIDs)
	assert.Equal(t, tasks[0].ID, entries[0].TaskID)
	assert.Equal(t, repoA.DeviceID(), tasks[0].DeviceID)

	pendingB, _ := repoB.PendingOutbox()
	assert.Empty(t, pendingB, "imports must not enqueue")

	// Pulling again inserts nothing.
	res, err = engineB.Pull(ctx)
	require.NoError(t, err)
	assert.False(t, res.Pulled.Changed())
	entries, _ = repoB.ListLogEntries()
	assert.Len(t, entries, 1)
}

func TestConcurrentEditsConvergeAcrossDevices(t *testing.T) {
	ctx := context.Background()
	srv := setupTestGist(t)

	clockA := clock.NewMock()
	repoA := setupTestRepo(t, clockA)
	engineA := setupTestEngine(t, repoA, srv, clockA)
	clockB := clock.NewMock()
	repoB := setupTestRepo(t, clockB)
	engineB := setupTestEngine(t, repoB, srv, clockB)

	squatA := mustTask(t, repoA, "Squat")
	_, err := engineA.Sync(ctx)
	require.NoError(t, err)
	_, err = engineB.Sync(ctx)
	require.NoError(t, err)

	// Both devices log the same set; B also edits the shared task later.
	day := clockA.Now()
	_, err = repoA.CreateLogEntry(models.NewLogEntry(squatA.ID, day, models.Set{Reps: 5, Weight: 100}))
	require.NoError(t, err)
	squatB, err := repoB.FindTaskByName("squat")
	require.NoError(t, err)
	_, err = repoB.CreateLogEntry(models.NewLogEntry(squatB.ID, day.Add(3*time.Hour), models.Set{Reps: 5, Weight: 100}))
	require.NoError(t, err)
	clockB.Advance(time.Minute)
	squatB.Tips = "knees out"
	require.NoError(t, repoB.UpdateTask(squatB))

	_, err = engineA.Sync(ctx)
	require.NoError(t, err)
	_, err = engineB.Sync(ctx)
	require.NoError(t, err)
	_, err = engineA.Sync(ctx)
	require.NoError(t, err)

	for _, repo := range []interface {
		ListTasks() ([]*models.Task, error)
		ListLogEntries() ([]*models.LogEntry, error)
	}{repoA, repoB} {
		tasks, _ := repo.ListTasks()
		entries, _ := repo.ListLogEntries()
		require.Len(t, tasks, 1)
		assert.Equal(t, "knees out", tasks[0].Tips)
		assert.Len(t, entries, 1, "same set on the same day is one record")
	}
}

func TestSyncRejectsMalformedDocument(t *testing.T) {
	srv := setupTestGist(t)
	id := srv.Put(remote.DefaultDescription, remote.DefaultFilename, "definitely not json")

	c := clock.NewMock()
	repo := setupTestRepo(t, c)
	mustTask(t, repo, "Row")
	engine := setupTestEngine(t, repo, srv, c)

	_, err := engine.Sync(context.Background())
	var ve *merge.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, 0, srv.Calls("edit"), "must not overwrite a document it could not read")

	content, _ := srv.Content(id, remote.DefaultFilename)
	assert.Equal(t, "definitely not json", content)
}

func TestSyncSkipsUnresolvableEntries(t *testing.T) {
	srv := setupTestGist(t)
	srv.Put(remote.DefaultDescription, remote.DefaultFilename, `{
		"version": 2,
		"workouts": [],
		"tasks": [{"id": 1, "name": "Dip", "defaultSets": 3, "defaultReps": 8, "lastModified": 10}],
		"logEntries": [
			{"id": 1, "taskId": 1, "date": 1704441600000, "sets": [{"reps": 8, "weight": 0}], "lastModified": 10},
			{"id": 2, "taskId": 77, "date": 1704441600000, "sets": [{"reps": 8, "weight": 0}], "lastModified": 10}
		],
		"lastSync": 10
	}`)

	c := clock.NewMock()
	repo := setupTestRepo(t, c)
	engine := setupTestEngine(t, repo, srv, c)

	res, err := engine.Sync(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, models.EntityLogEntry, res.Skipped[0].Entity)
	assert.Equal(t, int64(2), res.Skipped[0].RemoteID)
	assert.Equal(t, 1, res.Pulled.LogEntriesInserted)
	assert.True(t, res.Pushed)
}

func TestPullUpgradesLegacyDocument(t *testing.T) {
	srv := setupTestGist(t)
	srv.Put(remote.DefaultDescription, remote.DefaultFilename, `{
		"version": 1,
		"muscleGroups": [{"id": 1, "name": "Chest", "orderIndex": 0, "lastModified": 5}],
		"tasks": [{"id": 4, "muscleGroupId": 1, "name": "Fly", "defaultSets": 3, "defaultReps": 12, "lastModified": 5}],
		"logEntries": [{"id": 9, "taskId": 4, "date": 1704441600000, "sets": 2, "reps": 12, "weightKg": 14, "lastModified": 5}],
		"lastSync": 5
	}`)

	c := clock.NewMock()
	repo := setupTestRepo(t, c)
	engine := setupTestEngine(t, repo, srv, c)

	_, err := engine.Pull(context.Background())
	require.NoError(t, err)

	w, err := repo.FindWorkoutByName("Chest")
	require.NoError(t, err)
	fly, err := repo.FindTaskByName("fly")
	require.NoError(t, err)
	assert.Equal(t, []int64{fly.ID}, w.TaskIDs)

	entries, _ := repo.ListLogEntriesByTask(fly.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, []models.Set{{Reps: 12, Weight: 14}, {Reps: 12, Weight: 14}}, entries[0].Sets)
}

func TestPullWithNoDocumentIsNoop(t *testing.T) {
	srv := setupTestGist(t)
	c := clock.NewMock()
	repo := setupTestRepo(t, c)
	engine := setupTestEngine(t, repo, srv, c)

	res, err := engine.Pull(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Pulled.Changed())
	assert.Equal(t, 0, srv.Calls("create"))
}

func TestRenameThenDrainKeepsOneTask(t *testing.T) {
	ctx := context.Background()
	srv := setupTestGist(t)
	c := clock.NewMock()
	repo := setupTestRepo(t, c)

	bench := mustTask(t, repo, "Bench")
	day := time.Date(2024, 1, 5, 8, 0, 0, 0, time.UTC)
	_, err := repo.CreateLogEntry(models.NewLogEntry(bench.ID, day, models.Set{Reps: 5, Weight: 60}))
	require.NoError(t, err)

	proc := newTestProcessor(repo, setupTestEngine(t, repo, srv, c), c)
	_, err = proc.Drain(ctx)
	require.NoError(t, err)

	c.Advance(time.Minute)
	bench.Name = "Bench Press"
	require.NoError(t, repo.UpdateTask(bench))

	report, err := proc.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Synced)

	tasks, _ := repo.ListTasks()
	entries, _ := repo.ListLogEntries()
	require.Len(t, tasks, 1, "the old name must not come back")
	assert.Equal(t, "Bench Press", tasks[0].Name)
	assert.Len(t, entries, 1)

	docID, _ := repo.RemoteDocumentID()
	content, ok := srv.Content(docID, remote.DefaultFilename)
	require.True(t, ok)
	doc, err := snapshot.Decode([]byte(content))
	require.NoError(t, err)
	require.Len(t, doc.Tasks, 1)
	assert.Equal(t, "Bench Press", doc.Tasks[0].Name)
	assert.Len(t, doc.LogEntries, 1)
}
