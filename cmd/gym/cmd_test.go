// ABOUTME: Tests for CLI helpers and end-to-end command execution.
// ABOUTME: Runs commands against a temp data dir and a fake gist API.
package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/harperreed/gym/internal/config"
	"github.com/harperreed/gym/internal/models"
	"github.com/harperreed/gym/internal/remote/gisttest"
	"github.com/harperreed/gym/internal/storage"
	gymsync "github.com/harperreed/gym/internal/sync"
)

// setupTestCLI points config and data at temp dirs and returns the data dir.
func setupTestCLI(t *testing.T) string {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	resetFlags()
	return t.TempDir()
}

// resetFlags restores flag variables that cobra keeps between executions.
func resetFlags() {
	dataDirFlag, backendFlag, debugFlag = "", "", false
	taskSets, taskReps = models.DefaultSets, models.DefaultReps
	taskTips, taskInstructions, taskVideo, taskRename = "", "", "", ""
	taskShowLimit = 5
	workoutTasks = nil
	logDate, logCreate = "", false
	historyLimit, historySince = 20, ""
	exportOutput, exportSince = "", ""
	migrateTo, migrateForce = "", false
	loginToken, loginServer, daemonLogFile = "", "", ""
}

// run executes the CLI against dataDir and returns combined output.
func run(t *testing.T, dataDir string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--data-dir", dataDir}, args...))
	err := Execute()
	resetFlags()
	return out.String(), err
}

func mustRun(t *testing.T, dataDir string, args ...string) string {
	t.Helper()
	out, err := run(t, dataDir, args...)
	if err != nil {
		t.Fatalf("gym %s failed: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

// openTestDB opens the store the CLI wrote to.
func openTestDB(t *testing.T, dataDir string) *storage.DB {
	t.Helper()
	db, err := storage.Open(filepath.Join(dataDir, "gym.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// loginTestGist stores credentials for a fake gist API.
func loginTestGist(t *testing.T, autoSync bool) *gisttest.Server {
	t.Helper()
	srv := gisttest.NewServer()
	t.Cleanup(srv.Close)
	if err := gymsync.SaveConfig(&gymsync.Config{Token: "test-token", Server: srv.URL, AutoSync: autoSync}); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}
	return srv
}

func TestParseDate(t *testing.T) {
	base := time.Date(2024, 3, 10, 12, 0, 0, 0, time.Local)

	tests := []struct {
		name    string
		input   string
		want    time.Time
		wantErr bool
	}{
		{"date only", "2024-03-01", time.Date(2024, 3, 1, 0, 0, 0, 0, time.Local), false},
		{"date and time", "2024-03-01 18:30", time.Date(2024, 3, 1, 18, 30, 0, 0, time.Local), false},
		{"date and time with T", "2024-03-01T18:30", time.Date(2024, 3, 1, 18, 30, 0, 0, time.Local), false},
		{"RFC3339", "2024-03-01T18:30:00Z", time.Date(2024, 3, 1, 18, 30, 0, 0, time.UTC), false},
		{"invalid", "not a date", time.Time{}, true},
		{"empty", "", time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDate(tt.input, base)
			if tt.wantErr {
				if err == nil {
					t.Errorf("parseDate(%q) expected error, got %v", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseDate(%q) unexpected error: %v", tt.input, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("parseDate(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseDateNaturalLanguage(t *testing.T) {
	base := time.Date(2024, 3, 10, 12, 0, 0, 0, time.Local)

	got, err := parseDate("yesterday", base)
	if err != nil {
		t.Fatalf("parseDate(yesterday) failed: %v", err)
	}
	if got.Format("2006-01-02") != "2024-03-09" {
		t.Errorf("parseDate(yesterday) = %v, want 2024-03-09", got)
	}
}

func TestParseSets(t *testing.T) {
	sets, err := parseSets([]string{"8x60", "6x62.5kg", "10", "5x100 5x100"})
	if err != nil {
		t.Fatalf("parseSets failed: %v", err)
	}
	want := []models.Set{
		{Reps: 8, Weight: 60},
		{Reps: 6, Weight: 62.5},
		{Reps: 10},
		{Reps: 5, Weight: 100},
		{Reps: 5, Weight: 100},
	}
	if len(sets) != len(want) {
		t.Fatalf("got %d sets, want %d", len(sets), len(want))
	}
	for i := range want {
		if sets[i] != want[i] {
			t.Errorf("set %d = %+v, want %+v", i, sets[i], want[i])
		}
	}

	if _, err := parseSets([]string{"eightxsixty"}); err == nil {
		t.Error("Expected error for invalid set")
	}
	if _, err := parseSets([]string{" "}); err == nil {
		t.Error("Expected error for no sets")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		input  string
		maxLen int
		want   string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is a long string", 10, "this is..."},
	}
	for _, tt := range tests {
		if got := truncate(tt.input, tt.maxLen); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
		}
	}
}

func TestPadRight(t *testing.T) {
	if got := padRight("abc", 6); got != "abc   " {
		t.Errorf("padRight = %q", got)
	}
	if got := padRight("abcdef", 3); got != "abcdef" {
		t.Errorf("padRight should not truncate, got %q", got)
	}
}

func TestRootCmd(t *testing.T) {
	if rootCmd.Use != "gym" {
		t.Errorf("rootCmd.Use = %q, want %q", rootCmd.Use, "gym")
	}
	for _, name := range []string{"data-dir", "backend", "debug"} {
		if rootCmd.PersistentFlags().Lookup(name) == nil {
			t.Errorf("Expected --%s persistent flag", name)
		}
	}
}

func TestSubcommands(t *testing.T) {
	check := func(name string, got []string, want []string) {
		t.Helper()
		have := make(map[string]bool)
		for _, n := range got {
			have[n] = true
		}
		for _, n := range want {
			if !have[n] {
				t.Errorf("%s: missing subcommand %q", name, n)
			}
		}
	}

	names := func(parent string) []string {
		for _, c := range rootCmd.Commands() {
			if c.Name() == parent {
				var out []string
				for _, sub := range c.Commands() {
					out = append(out, sub.Name())
				}
				return out
			}
		}
		return nil
	}

	var top []string
	for _, c := range rootCmd.Commands() {
		top = append(top, c.Name())
	}
	check("gym", top, []string{"task", "workout", "log", "history", "export", "import", "migrate", "mcp", "sync"})
	check("task", names("task"), []string{"add", "list", "show", "edit", "delete"})
	check("workout", names("workout"), []string{"add", "list", "show", "add-task", "remove-task", "delete"})
	check("sync", names("sync"), []string{"login", "logout", "status", "now", "pull", "retry", "diff", "daemon"})
}

func TestTaskCommands(t *testing.T) {
	dataDir := setupTestCLI(t)

	out := mustRun(t, dataDir, "task", "add", "Squat", "--sets", "5", "--reps", "5", "--tips", "brace")
	if !strings.Contains(out, "Added Squat") {
		t.Errorf("unexpected output: %s", out)
	}

	if _, err := run(t, dataDir, "task", "add", "squat"); err == nil {
		t.Error("Expected error for duplicate task name")
	}

	out = mustRun(t, dataDir, "task", "list")
	if !strings.Contains(out, "Squat") || !strings.Contains(out, "5x5") {
		t.Errorf("task list missing squat: %s", out)
	}

	mustRun(t, dataDir, "task", "edit", "squat", "--name", "Back Squat", "--reps", "3")

	db := openTestDB(t, dataDir)
	task, err := db.FindTaskByName("back squat")
	if err != nil {
		t.Fatalf("renamed task not found: %v", err)
	}
	if task.DefaultSets != 5 || task.DefaultReps != 3 {
		t.Errorf("prescription = %dx%d, want 5x3", task.DefaultSets, task.DefaultReps)
	}
	if task.Tips != "brace" {
		t.Errorf("tips changed unexpectedly: %q", task.Tips)
	}
	_ = db.Close()

	out = mustRun(t, dataDir, "task", "show", "Back Squat")
	if !strings.Contains(out, "No sessions logged yet") {
		t.Errorf("unexpected show output: %s", out)
	}

	mustRun(t, dataDir, "task", "delete", "back squat")
	out = mustRun(t, dataDir, "task", "list")
	if !strings.Contains(out, "No tasks found") {
		t.Errorf("task not deleted: %s", out)
	}

	if _, err := run(t, dataDir, "task", "show", "nope"); err == nil {
		t.Error("Expected error for unknown task")
	}
}

func TestLogAndHistory(t *testing.T) {
	dataDir := setupTestCLI(t)

	mustRun(t, dataDir, "task", "add", "Bench Press")
	out := mustRun(t, dataDir, "log", "bench press", "8x60", "8x60", "6x62.5", "--date", "2024-01-03 18:30")
	if !strings.Contains(out, "8x60 8x60 6x62.5") {
		t.Errorf("unexpected log output: %s", out)
	}
	mustRun(t, dataDir, "log", "bench press", "8x57.5", "--date", "2024-01-01")

	if _, err := run(t, dataDir, "log", "deadlift", "5x140"); err == nil {
		t.Error("Expected error for unknown task without --create")
	}
	mustRun(t, dataDir, "log", "Deadlift", "5x140", "--create")

	out = mustRun(t, dataDir, "history", "bench press")
	first := strings.Index(out, "2024-01-03")
	second := strings.Index(out, "2024-01-01")
	if first < 0 || second < 0 || first > second {
		t.Errorf("history not newest first: %s", out)
	}

	out = mustRun(t, dataDir, "history", "--since", "2024-01-02")
	if strings.Contains(out, "2024-01-01") {
		t.Errorf("--since did not filter: %s", out)
	}

	db := openTestDB(t, dataDir)
	entries, err := db.ListLogEntries()
	if err != nil {
		t.Fatalf("ListLogEntries failed: %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("got %d entries, want 3", len(entries))
	}
}

func TestWorkoutCommands(t *testing.T) {
	dataDir := setupTestCLI(t)

	mustRun(t, dataDir, "task", "add", "Bench Press")
	mustRun(t, dataDir, "task", "add", "Dips")
	mustRun(t, dataDir, "workout", "add", "Push Day", "--task", "Bench Press")
	mustRun(t, dataDir, "workout", "add-task", "push day", "dips")

	if _, err := run(t, dataDir, "workout", "add-task", "push day", "dips"); err == nil {
		t.Error("Expected error adding a task twice")
	}

	out := mustRun(t, dataDir, "workout", "show", "Push Day")
	if !strings.Contains(out, "1. Bench Press") || !strings.Contains(out, "2. Dips") {
		t.Errorf("unexpected show output: %s", out)
	}

	mustRun(t, dataDir, "workout", "remove-task", "Push Day", "Bench Press")
	db := openTestDB(t, dataDir)
	w, err := db.FindWorkoutByName("push day")
	if err != nil {
		t.Fatalf("workout not found: %v", err)
	}
	if len(w.TaskIDs) != 1 {
		t.Errorf("got %d tasks, want 1", len(w.TaskIDs))
	}
	_ = db.Close()

	mustRun(t, dataDir, "workout", "delete", "Push Day")
	out = mustRun(t, dataDir, "workout", "list")
	if !strings.Contains(out, "No workouts found") {
		t.Errorf("workout not deleted: %s", out)
	}
	out = mustRun(t, dataDir, "task", "list")
	if !strings.Contains(out, "Dips") {
		t.Errorf("deleting a workout removed its tasks: %s", out)
	}
}

func TestExportAndImport(t *testing.T) {
	dataDir := setupTestCLI(t)

	mustRun(t, dataDir, "task", "add", "Squat")
	mustRun(t, dataDir, "log", "squat", "5x100", "--date", "2024-01-03")

	file := filepath.Join(t.TempDir(), "backup.json")
	mustRun(t, dataDir, "export", "json", "-o", file)

	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatalf("export file missing: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("export is not JSON: %v", err)
	}
	for _, key := range []string{"version", "workouts", "tasks", "logEntries"} {
		if _, ok := doc[key]; !ok {
			t.Errorf("export missing %q", key)
		}
	}

	out := mustRun(t, dataDir, "export", "yaml")
	if !strings.Contains(out, "Squat") {
		t.Errorf("yaml export missing task: %s", out)
	}
	out = mustRun(t, dataDir, "export", "markdown")
	if !strings.Contains(out, "5x100") {
		t.Errorf("markdown export missing sets: %s", out)
	}
	if _, err := run(t, dataDir, "export", "csv"); err == nil {
		t.Error("Expected error for unknown format")
	}

	other := t.TempDir()
	out = mustRun(t, other, "import", file)
	if !strings.Contains(out, "Tasks: 1 new") || !strings.Contains(out, "Log entries: 1 new") {
		t.Errorf("unexpected import output: %s", out)
	}

	// Importing again changes nothing.
	out = mustRun(t, other, "import", file)
	if !strings.Contains(out, "Log entries: 0 new") {
		t.Errorf("second import duplicated entries: %s", out)
	}

	db := openTestDB(t, other)
	entries, err := db.ListLogEntries()
	if err != nil {
		t.Fatalf("ListLogEntries failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("got %d entries, want 1", len(entries))
	}
	pending, err := db.PendingOutbox()
	if err != nil {
		t.Fatalf("PendingOutbox failed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("import enqueued %d outbox items", len(pending))
	}
}

func TestMigrateCommand(t *testing.T) {
	dataDir := setupTestCLI(t)

	mustRun(t, dataDir, "task", "add", "Squat")
	mustRun(t, dataDir, "log", "squat", "5x100")

	out := mustRun(t, dataDir, "migrate", "--to", "badger")
	if !strings.Contains(out, "Tasks: 1") || !strings.Contains(out, "Log entries: 1") {
		t.Errorf("unexpected migrate output: %s", out)
	}

	out = mustRun(t, dataDir, "--backend", "badger", "task", "list")
	if !strings.Contains(out, "Squat") {
		t.Errorf("badger backend missing migrated task: %s", out)
	}

	if _, err := run(t, dataDir, "migrate", "--to", "badger"); err == nil {
		t.Error("Expected error migrating into a non-empty destination")
	}
	if _, err := run(t, dataDir, "migrate", "--to", "sqlite"); err == nil {
		t.Error("Expected error migrating to the current backend")
	}
	if _, err := run(t, dataDir, "migrate", "--to", "postgres"); err == nil {
		t.Error("Expected error for unknown backend")
	}
}

func TestMutationsQueueWithoutSync(t *testing.T) {
	dataDir := setupTestCLI(t)

	mustRun(t, dataDir, "task", "add", "Squat")
	out := mustRun(t, dataDir, "sync", "status")
	if !strings.Contains(out, "Sync not configured") || !strings.Contains(out, "Pending: 1") {
		t.Errorf("unexpected status: %s", out)
	}

	if _, err := run(t, dataDir, "sync", "now"); err == nil {
		t.Error("Expected error for sync now without login")
	}
}

func TestMutationsFlushToGist(t *testing.T) {
	dataDir := setupTestCLI(t)
	srv := loginTestGist(t, true)

	mustRun(t, dataDir, "task", "add", "Squat")
	mustRun(t, dataDir, "log", "squat", "5x100")

	if srv.Count() != 1 {
		t.Fatalf("got %d gists, want 1", srv.Count())
	}
	content, ok := srv.Content(srv.IDs()[0], "gym-tracker-data.json")
	if !ok || !strings.Contains(content, "Squat") {
		t.Errorf("gist content missing task: %s", content)
	}

	out := mustRun(t, dataDir, "sync", "status")
	if !strings.Contains(out, "Pending: 0") || strings.Contains(out, "Last sync: never") {
		t.Errorf("unexpected status after flush: %s", out)
	}
}

func TestSyncFailureKeepsChangesQueued(t *testing.T) {
	dataDir := setupTestCLI(t)
	srv := loginTestGist(t, true)
	srv.FailNext("list", 502)
	if err := (&config.Config{RetryBackoff: "0"}).Save(); err != nil {
		t.Fatalf("Save config failed: %v", err)
	}

	out := mustRun(t, dataDir, "task", "add", "Squat")
	if !strings.Contains(out, "Sync deferred") {
		t.Errorf("expected a deferred warning: %s", out)
	}

	db := openTestDB(t, dataDir)
	pending, err := db.PendingOutbox()
	if err != nil {
		t.Fatalf("PendingOutbox failed: %v", err)
	}
	if len(pending) != 1 || pending[0].Retries != 1 {
		t.Errorf("pending = %+v, want one item with 1 retry", pending)
	}
	_ = db.Close()

	mustRun(t, dataDir, "sync", "now")
	if srv.Count() != 1 {
		t.Errorf("got %d gists after sync now, want 1", srv.Count())
	}
}

func TestSyncPullAndDiff(t *testing.T) {
	dataDir := setupTestCLI(t)
	srv := loginTestGist(t, false)

	other := t.TempDir()
	mustRun(t, other, "task", "add", "Squat")
	mustRun(t, other, "sync", "now")
	if srv.Count() != 1 {
		t.Fatalf("got %d gists, want 1", srv.Count())
	}

	out := mustRun(t, dataDir, "sync", "pull")
	if !strings.Contains(out, "Tasks: 1 new") {
		t.Errorf("unexpected pull output: %s", out)
	}
	out = mustRun(t, dataDir, "sync", "pull")
	if !strings.Contains(out, "Already up to date") {
		t.Errorf("second pull changed data: %s", out)
	}

	mustRun(t, dataDir, "task", "add", "Deadlift")
	out = mustRun(t, dataDir, "sync", "diff")
	if !strings.Contains(out, "+ ") || !strings.Contains(out, "Deadlift") {
		t.Errorf("diff does not show the local task: %s", out)
	}
}

func TestSyncRetry(t *testing.T) {
	dataDir := setupTestCLI(t)

	mustRun(t, dataDir, "task", "add", "Squat")
	db := openTestDB(t, dataDir)
	pending, err := db.PendingOutbox()
	if err != nil || len(pending) != 1 {
		t.Fatalf("PendingOutbox = %v, %v", pending, err)
	}
	if err := db.MarkOutboxFailed(pending[0].ID, "boom"); err != nil {
		t.Fatalf("MarkOutboxFailed failed: %v", err)
	}
	_ = db.Close()

	out := mustRun(t, dataDir, "sync", "retry")
	if !strings.Contains(out, "Requeued 1 changes") {
		t.Errorf("unexpected retry output: %s", out)
	}
}

func TestSyncLoginWithToken(t *testing.T) {
	dataDir := setupTestCLI(t)
	srv := gisttest.NewServer()
	t.Cleanup(srv.Close)
	srv.RequireToken("good-token")

	if _, err := run(t, dataDir, "sync", "login", "--token", "bad-token", "--server", srv.URL); err == nil {
		t.Error("Expected error for rejected token")
	}

	mustRun(t, dataDir, "task", "add", "Squat")
	out := mustRun(t, dataDir, "sync", "login", "--token", "good-token", "--server", srv.URL)
	if !strings.Contains(out, "Saved credentials") {
		t.Errorf("unexpected login output: %s", out)
	}
	if srv.Count() != 1 {
		t.Errorf("login did not run a first sync, got %d gists", srv.Count())
	}

	creds, err := gymsync.LoadConfig()
	if err != nil || creds.Token != "good-token" {
		t.Errorf("LoadConfig = %+v, %v", creds, err)
	}

	mustRun(t, dataDir, "sync", "logout")
	creds, err = gymsync.LoadConfig()
	if err != nil || creds.IsConfigured() {
		t.Errorf("logout kept credentials: %+v, %v", creds, err)
	}
}
