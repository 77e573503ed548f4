// ABOUTME: Tests for the merge engine's diff and in-memory merge.
// ABOUTME: Covers last-write-wins, name identity, dedup, idempotence, and tombstones.
package merge

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/harperreed/gym/internal/models"
	"github.com/harperreed/gym/internal/snapshot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var dayD = time.Date(2024, 1, 5, 8, 0, 0, 0, time.UTC)

func testMerger() *Merger {
	return &Merger{Location: time.UTC}
}

func task(id int64, name string, lastModified int64) *models.Task {
	t := models.NewTask(name)
	t.ID = id
	t.LastModified = lastModified
	return t
}

func entry(id, taskID int64, at time.Time, sets ...models.Set) *models.LogEntry {
	e := models.NewLogEntry(taskID, at, sets...)
	e.ID = id
	return e
}

func snap(tasks []*models.Task, workouts []*models.Workout, entries []*models.LogEntry) *snapshot.Snapshot {
	s := snapshot.New()
	s.Tasks = append(s.Tasks, tasks...)
	s.Workouts = append(s.Workouts, workouts...)
	s.LogEntries = append(s.LogEntries, entries...)
	return s
}

func TestDiffEmptyRemoteDoesNothing(t *testing.T) {
	local := snap([]*models.Task{task(1, "Bench Press", 100)}, nil, nil)

	plan := testMerger().Diff(local, snapshot.New())
	assert.True(t, plan.IsEmpty())
	assert.Empty(t, plan.Skipped)
}

func TestLastWriteWins(t *testing.T) {
	tests := []struct {
		name         string
		remoteMod    int64
		wantUpserted bool
	}{
		{"older remote ignored", 50, false},
		{"equal remote ignored", 100, false},
		{"newer remote adopted", 150, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			local := snap([]*models.Task{task(1, "Bench Press", 100).WithTips("local")}, nil, nil)
			remote := snap([]*models.Task{task(7, "bench press", tt.remoteMod).WithTips("remote")}, nil, nil)

			plan := testMerger().Diff(local, remote)
			if !tt.wantUpserted {
				assert.Empty(t, plan.TasksToUpsert)
				return
			}
			require.Len(t, plan.TasksToUpsert, 1)
			got := plan.TasksToUpsert[0]
			assert.Equal(t, int64(1), got.ID, "update keeps the local id")
			assert.Equal(t, "remote", got.Tips)
			assert.Equal(t, tt.remoteMod, got.LastModified)
		})
	}
}

func TestIDMatchRequiresSameName(t *testing.T) {
	local := snap([]*models.Task{task(1, "Bench Press", 100)}, nil, nil)
	remote := snap([]*models.Task{task(1, "Deadlift", 500)}, nil, nil)

	plan := testMerger().Diff(local, remote)
	require.Len(t, plan.TasksToUpsert, 1)
	assert.Less(t, plan.TasksToUpsert[0].ID, int64(0), "colliding id imports as a new task")
	assert.Equal(t, "Deadlift", plan.TasksToUpsert[0].Name)
}

func TestRemoteTasksSharingANameCollapse(t *testing.T) {
	remote := snap([]*models.Task{task(1, "Squat", 10), task(2, "SQUAT", 20)},
		nil,
		[]*models.LogEntry{
			entry(1, 1, dayD, models.Set{Reps: 5, Weight: 100}),
			entry(2, 2, dayD.AddDate(0, 0, 1), models.Set{Reps: 5, Weight: 105}),
		})

	plan := testMerger().Diff(snapshot.New(), remote)
	require.Len(t, plan.TasksToUpsert, 1)
	assert.Equal(t, int64(20), plan.TasksToUpsert[0].LastModified, "newest copy wins")
	require.Len(t, plan.LogEntriesToInsert, 2)
	for _, e := range plan.LogEntriesToInsert {
		assert.Equal(t, plan.TasksToUpsert[0].ID, e.TaskID)
	}
}

func TestWorkoutTaskIDsAreTranslated(t *testing.T) {
	local := snap([]*models.Task{task(3, "Bench Press", 100)}, nil, nil)
	remote := snap(
		[]*models.Task{task(1, "Bench Press", 100), task(2, "Overhead Press", 100)},
		[]*models.Workout{{ID: 1, Name: "Push Day", TaskIDs: []int64{1, 2, 99}, LastModified: 100}},
		nil)

	plan := testMerger().Diff(local, remote)
	require.Len(t, plan.TasksToUpsert, 1)
	ohp := plan.TasksToUpsert[0].ID
	require.Len(t, plan.WorkoutsToUpsert, 1)
	assert.Equal(t, []int64{3, ohp, 99}, plan.WorkoutsToUpsert[0].TaskIDs, "dangling 99 is kept")
}

func TestLogEntriesDeduplicateAgainstLocal(t *testing.T) {
	local := snap(
		[]*models.Task{task(1, "Bench Press", 100)},
		nil,
		[]*models.LogEntry{entry(1, 1, dayD, models.Set{Reps: 10, Weight: 20}, models.Set{Reps: 8, Weight: 25})})
	remote := snap(
		[]*models.Task{task(4, "bench press", 100)},
		nil,
		[]*models.LogEntry{
			entry(9, 4, dayD.Add(14*time.Hour), models.Set{Reps: 8, Weight: 25}, models.Set{Reps: 10, Weight: 20}),
			entry(10, 4, dayD.AddDate(0, 0, 1), models.Set{Reps: 10, Weight: 20}),
		})

	plan := testMerger().Diff(local, remote)
	require.Len(t, plan.LogEntriesToInsert, 1)
	got := plan.LogEntriesToInsert[0]
	assert.Equal(t, int64(1), got.TaskID)
	assert.Equal(t, int64(0), got.ID)
	assert.Equal(t, dayD.AddDate(0, 0, 1).UnixMilli(), got.Date)
}

func TestDuplicateRemoteEntriesInsertOnce(t *testing.T) {
	remote := snap(
		[]*models.Task{task(1, "Row", 1)},
		nil,
		[]*models.LogEntry{
			entry(1, 1, dayD, models.Set{Reps: 10, Weight: 40}),
			entry(2, 1, dayD.Add(time.Hour), models.Set{Reps: 10, Weight: 40}),
		})

	plan := testMerger().Diff(snapshot.New(), remote)
	assert.Len(t, plan.LogEntriesToInsert, 1)
}

func TestUnresolvableLogEntryIsSkipped(t *testing.T) {
	remote := snap(
		[]*models.Task{task(1, "Row", 1)},
		nil,
		[]*models.LogEntry{
			entry(1, 42, dayD, models.Set{Reps: 10, Weight: 40}),
			entry(2, 1, dayD, models.Set{Reps: 10, Weight: 40}),
		})

	plan := testMerger().Diff(snapshot.New(), remote)
	require.Len(t, plan.Skipped, 1)
	assert.Equal(t, models.EntityLogEntry, plan.Skipped[0].Entity)
	assert.Equal(t, int64(1), plan.Skipped[0].RemoteID)
	assert.Len(t, plan.LogEntriesToInsert, 1, "the rest of the batch proceeds")
}

func TestTombstonesSuppressResurrection(t *testing.T) {
	local := snapshot.New()
	local.Tombstones = []models.Tombstone{
		{EntityType: models.EntityTask, Key: "squat", DeletedAt: 200},
		{EntityType: models.EntityWorkout, Key: "leg day", DeletedAt: 200},
	}
	remote := snap(
		[]*models.Task{task(1, "Squat", 100), task(2, "Lunge", 100)},
		[]*models.Workout{{ID: 1, Name: "Leg Day", TaskIDs: []int64{1, 2}, LastModified: 100}},
		[]*models.LogEntry{entry(1, 1, dayD, models.Set{Reps: 5, Weight: 100})})

	plan := testMerger().Diff(local, remote)
	require.Len(t, plan.TasksToUpsert, 1)
	assert.Equal(t, "Lunge", plan.TasksToUpsert[0].Name)
	assert.Empty(t, plan.WorkoutsToUpsert)
	assert.Empty(t, plan.LogEntriesToInsert)
	assert.Empty(t, plan.Skipped, "suppressed records are not validation failures")

	// A remote edit made after the local delete wins.
	remote.Tasks[0].LastModified = 300
	plan = testMerger().Diff(local, remote)
	assert.Len(t, plan.TasksToUpsert, 2)
}

func TestLocalRenameDoesNotResurrectOldName(t *testing.T) {
	// Task 1 was "Bench" when it was pushed, then renamed here at 200.
	local := snap(
		[]*models.Task{task(1, "Bench Press", 200)},
		nil,
		[]*models.LogEntry{entry(1, 1, dayD, models.Set{Reps: 5, Weight: 60})})
	local.Tombstones = []models.Tombstone{{EntityType: models.EntityTask, Key: "bench", DeletedAt: 200}}
	remote := snap(
		[]*models.Task{task(1, "Bench", 100)},
		nil,
		[]*models.LogEntry{entry(1, 1, dayD, models.Set{Reps: 5, Weight: 60})})

	m := testMerger()
	plan := m.Diff(local, remote)
	assert.Empty(t, plan.TasksToUpsert)
	assert.Empty(t, plan.LogEntriesToInsert)
	assert.Empty(t, plan.Skipped)

	merged := m.Merge(local, remote)
	require.Len(t, merged.Tasks, 1)
	assert.Equal(t, "Bench Press", merged.Tasks[0].Name)
	assert.Len(t, merged.LogEntries, 1)
}

func TestRenamedTaskEntriesDedupUnderLocalName(t *testing.T) {
	// The remote still spells the task differently in case; dedup must use
	// the resolved local task, not the remote spelling.
	local := snap(
		[]*models.Task{task(3, "Bench Press", 200)},
		nil,
		[]*models.LogEntry{entry(1, 3, dayD, models.Set{Reps: 5, Weight: 60})})
	remote := snap(
		[]*models.Task{task(9, "BENCH PRESS", 100)},
		nil,
		[]*models.LogEntry{
			entry(4, 9, dayD.Add(2*time.Hour), models.Set{Reps: 5, Weight: 60}),
			entry(5, 9, dayD.AddDate(0, 0, 2), models.Set{Reps: 5, Weight: 62.5}),
		})

	plan := testMerger().Diff(local, remote)
	assert.Empty(t, plan.TasksToUpsert)
	require.Len(t, plan.LogEntriesToInsert, 1)
	assert.Equal(t, int64(3), plan.LogEntriesToInsert[0].TaskID)
	assert.Equal(t, 62.5, plan.LogEntriesToInsert[0].Sets[0].Weight)
}

func TestMergeIsIdempotent(t *testing.T) {
	local := snap(
		[]*models.Task{task(1, "Bench Press", 100), task(2, "Squat", 300)},
		[]*models.Workout{{ID: 1, Name: "Push Day", TaskIDs: []int64{1}, LastModified: 100}},
		[]*models.LogEntry{entry(1, 1, dayD, models.Set{Reps: 5, Weight: 60})})
	remote := snap(
		[]*models.Task{task(1, "Deadlift", 50), task(2, "bench press", 150), task(3, "Squat", 200), task(4, "DEADLIFT", 60)},
		[]*models.Workout{
			{ID: 1, Name: "push day", TaskIDs: []int64{2, 1}, LastModified: 150},
			{ID: 2, Name: "Pull Day", TaskIDs: []int64{1, 4, 77}, LastModified: 10},
		},
		[]*models.LogEntry{
			entry(1, 2, dayD.Add(3*time.Hour), models.Set{Reps: 5, Weight: 60}),
			entry(2, 1, dayD, models.Set{Reps: 3, Weight: 140}),
			entry(3, 4, dayD, models.Set{Reps: 3, Weight: 140}),
			entry(4, 3, dayD, models.Set{Reps: 5, Weight: 100}),
			entry(5, 99, dayD, models.Set{Reps: 1, Weight: 1}),
		})

	m := testMerger()
	once := m.Merge(local, remote)
	twice := m.Merge(once, remote)
	if diff := cmp.Diff(once, twice); diff != "" {
		t.Errorf("merge is not idempotent (-once +twice):\n%s", diff)
	}

	assert.Len(t, once.Tasks, 3, "bench, squat, deadlift")
	assert.Len(t, once.LogEntries, 3, "original, deadlift triple, squat")
	bench := once.TaskByID(1)
	assert.Equal(t, int64(150), bench.LastModified)
	assert.Equal(t, int64(300), once.TaskByID(2).LastModified, "local squat is newer")
}

func TestMergeLeavesInputsUntouched(t *testing.T) {
	local := snap([]*models.Task{task(1, "Bench Press", 100)}, nil, nil)
	remote := snap([]*models.Task{task(1, "Bench Press", 200).WithTips("new")}, nil, nil)

	_ = testMerger().Merge(local, remote)
	assert.Equal(t, "", local.Tasks[0].Tips)
	assert.Equal(t, int64(100), local.Tasks[0].LastModified)
}

func TestImportRejectsUndecodableDocument(t *testing.T) {
	_, err := testMerger().Import(snapshot.New(), []byte("{oops"))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, models.EntityType(""), verr.Entity)
}

func TestImportUpgradesLegacyDocument(t *testing.T) {
	doc := []byte(`{"version":1,"muscleGroups":[{"id":1,"name":"Chest"}],` +
		`"tasks":[{"id":1,"muscleGroupId":1,"name":"Bench"}],` +
		`"logEntries":[{"id":1,"taskId":1,"date":1704441600000,"sets":2,"reps":5,"weightKg":60}]}`)

	plan, err := testMerger().Import(snapshot.New(), doc)
	require.NoError(t, err)
	require.Len(t, plan.WorkoutsToUpsert, 1)
	require.Len(t, plan.TasksToUpsert, 1)
	assert.Equal(t, []int64{plan.TasksToUpsert[0].ID}, plan.WorkoutsToUpsert[0].TaskIDs)
	require.Len(t, plan.LogEntriesToInsert, 1)
	assert.Len(t, plan.LogEntriesToInsert[0].Sets, 2)
}
