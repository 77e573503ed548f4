// ABOUTME: Integration tests for the gym CLI binary.
// ABOUTME: Runs two devices against a fake gist server and checks they converge.
package test

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/harperreed/gym/internal/remote/gisttest"
)

type device struct {
	t       *testing.T
	binary  string
	dataDir string
	env     []string
	backend string
}

func newDevice(t *testing.T, binary, backend string) *device {
	root := t.TempDir()
	return &device{
		t:       t,
		binary:  binary,
		dataDir: filepath.Join(root, "data"),
		backend: backend,
		env: append(os.Environ(),
			"XDG_CONFIG_HOME="+filepath.Join(root, "config"),
			"XDG_DATA_HOME="+filepath.Join(root, "share"),
			"NO_COLOR=1",
		),
	}
}

func (d *device) run(args ...string) (string, error) {
	fullArgs := append([]string{"--data-dir", d.dataDir, "--backend", d.backend}, args...)
	cmd := exec.Command(d.binary, fullArgs...)
	cmd.Env = d.env
	output, err := cmd.CombinedOutput()
	return string(output), err
}

func (d *device) mustRun(args ...string) string {
	d.t.Helper()
	output, err := d.run(args...)
	if err != nil {
		d.t.Fatalf("gym %s failed: %v\n%s", strings.Join(args, " "), err, output)
	}
	return output
}

func buildBinary(t *testing.T) string {
	t.Helper()
	projectRoot, _ := filepath.Abs("..")
	binary := filepath.Join(t.TempDir(), "gym")

	buildCmd := exec.Command("go", "build", "-o", binary, "./cmd/gym")
	buildCmd.Dir = projectRoot
	if output, err := buildCmd.CombinedOutput(); err != nil {
		t.Fatalf("Failed to build: %v\n%s", err, output)
	}
	return binary
}

func TestFullWorkflow(t *testing.T) {
	if testing.Short() {
		t.Skip("builds the binary")
	}
	binary := buildBinary(t)
	d := newDevice(t, binary, "sqlite")

	output := d.mustRun("task", "add", "Bench Press", "--sets", "3", "--reps", "8")
	if !strings.Contains(output, "Added Bench Press") {
		t.Errorf("Expected 'Added Bench Press' in output, got: %s", output)
	}

	d.mustRun("workout", "add", "Push Day", "--task", "Bench Press")
	output = d.mustRun("workout", "show", "Push Day")
	if !strings.Contains(output, "Bench Press") {
		t.Errorf("Expected task in workout, got: %s", output)
	}

	output = d.mustRun("log", "bench press", "8x60", "8x60", "6x62.5")
	if !strings.Contains(output, "Logged") {
		t.Errorf("Expected 'Logged' in output, got: %s", output)
	}

	output = d.mustRun("history", "bench press")
	if !strings.Contains(output, "8x60") {
		t.Errorf("Expected sets in history, got: %s", output)
	}

	output = d.mustRun("sync", "status")
	if !strings.Contains(output, "not configured") {
		t.Errorf("Expected unconfigured sync, got: %s", output)
	}

	if _, err := d.run("log", "squat", "5x100"); err == nil {
		t.Error("Expected error logging an unknown task")
	}
}

func TestTwoDeviceSync(t *testing.T) {
	if testing.Short() {
		t.Skip("builds the binary")
	}
	binary := buildBinary(t)
	srv := gisttest.NewServer()
	defer srv.Close()

	laptop := newDevice(t, binary, "sqlite")
	phone := newDevice(t, binary, "badger")

	laptop.mustRun("sync", "login", "--token", "secret", "--server", srv.URL)
	laptop.mustRun("task", "add", "Squat", "--sets", "5", "--reps", "5")
	laptop.mustRun("log", "squat", "5x100", "5x100", "5x100", "--date", "2024-03-01 18:00")

	if srv.Count() != 1 {
		t.Fatalf("Expected one gist after the first push, got %d", srv.Count())
	}

	// Login on the second device pulls what the laptop pushed.
	phone.mustRun("sync", "login", "--token", "secret", "--server", srv.URL)
	output := phone.mustRun("history", "squat")
	if !strings.Contains(output, "5x100") {
		t.Fatalf("Expected laptop entry on phone, got: %s", output)
	}

	phone.mustRun("log", "squat", "5x105", "5x105", "--date", "2024-03-03 07:30")
	laptop.mustRun("sync", "now")

	output = laptop.mustRun("history", "squat")
	if !strings.Contains(output, "5x100") || !strings.Contains(output, "5x105") {
		t.Errorf("Expected both sessions on laptop, got: %s", output)
	}
	if srv.Count() != 1 {
		t.Errorf("Devices should share one gist, got %d", srv.Count())
	}

	// Both sessions appear once; a second sync does not duplicate them.
	laptop.mustRun("sync", "now")
	output = laptop.mustRun("history", "squat")
	if n := strings.Count(output, "5x105"); n != 2 {
		t.Errorf("Expected the phone session once (two sets), got %d matches:\n%s", n, output)
	}

	output = phone.mustRun("sync", "status")
	if !strings.Contains(output, "Pending") {
		t.Errorf("Expected pending count in status, got: %s", output)
	}
}
