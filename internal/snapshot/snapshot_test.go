// ABOUTME: Tests for snapshot encoding, decoding, and the version 1 upgrade.
// ABOUTME: Uses go-cmp to compare decoded structures.
package snapshot

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/harperreed/gym/internal/models"
)

func sample() *Snapshot {
	s := New()
	s.Tasks = append(s.Tasks, models.NewTask("Bench Press"))
	s.Tasks[0].ID = 1
	s.Tasks[0].LastModified = 100
	s.Workouts = append(s.Workouts, models.NewWorkout("Push Day").WithTasks(1))
	s.Workouts[0].ID = 1
	s.LogEntries = append(s.LogEntries, &models.LogEntry{ID: 1, TaskID: 1, Date: 1704441600000, Sets: []models.Set{{Reps: 5, Weight: 60}}})
	s.LastSync = 1704441600000
	return s
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in := sample()
	data, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !strings.Contains(string(data), "\n  \"version\": 2") {
		t.Errorf("expected indented payload with version 2, got:\n%s", data)
	}

	out, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if diff := cmp.Diff(in, out, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeOmitsTombstones(t *testing.T) {
	s := sample()
	s.Tombstones = []models.Tombstone{{EntityType: models.EntityTask, Key: "squat", DeletedAt: 1}}
	data, err := Encode(s)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if strings.Contains(string(data), "squat") {
		t.Error("tombstones must not be exported")
	}
}

func TestDecodeEmptyAndMalformed(t *testing.T) {
	s, err := Decode([]byte("  "))
	if err != nil {
		t.Fatalf("Decode empty: %v", err)
	}
	if !s.IsEmpty() {
		t.Error("empty payload should decode to an empty snapshot")
	}

	for _, bad := range []string{"{not json", "[1,2,3]", `{"tasks":"nope"}`} {
		if _, err := Decode([]byte(bad)); !errors.Is(err, ErrMalformed) {
			t.Errorf("Decode(%q) err = %v, want ErrMalformed", bad, err)
		}
	}
}

func TestDecodeNormalizesMissingCollections(t *testing.T) {
	s, err := Decode([]byte(`{"version":2,"workouts":[{"id":3,"name":"Legs"}],"logEntries":[{"id":1,"taskId":2,"date":5}]}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if s.Tasks == nil || s.Workouts[0].TaskIDs == nil || s.LogEntries[0].Sets == nil {
		t.Error("expected nil collections to be replaced with empty ones")
	}
}

func TestDecodeUpgradesLegacyPayload(t *testing.T) {
	payload := `{
		"version": 1,
		"lastSync": 42,
		"muscleGroups": [{"id": 7, "name": "Chest", "orderIndex": 0, "lastModified": 10}],
		"tasks": [
			{"id": 2, "muscleGroupId": 7, "name": "Fly", "orderIndex": 1, "videoUrl": "https://v/fly"},
			{"id": 1, "muscleGroupId": 7, "name": "Bench", "orderIndex": 0, "defaultSets": 5, "defaultReps": 5}
		],
		"logEntries": [{"id": 9, "taskId": 1, "date": 1000, "sets": 3, "reps": 5, "weightKg": 60}],
		"videos": []
	}`

	s, err := Decode([]byte(payload))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if s.Version != CurrentVersion || s.LastSync != 42 {
		t.Errorf("version/lastSync = %d/%d", s.Version, s.LastSync)
	}
	wantWorkout := &models.Workout{ID: 7, Name: "Chest", TaskIDs: []int64{1, 2}, LastModified: 10}
	if diff := cmp.Diff(wantWorkout, s.Workouts[0]); diff != "" {
		t.Errorf("workout mismatch (-want +got):\n%s", diff)
	}

	fly := s.TaskByID(2)
	if fly == nil || fly.VideoRef == nil || *fly.VideoRef != "https://v/fly" {
		t.Error("expected video url to carry over")
	}
	if fly.DefaultSets != models.DefaultSets || fly.DefaultReps != models.DefaultReps {
		t.Error("expected default prescription for legacy task without one")
	}
	if bench := s.TaskByID(1); bench.DefaultSets != 5 {
		t.Errorf("bench DefaultSets = %d, want 5", bench.DefaultSets)
	}

	wantSets := []models.Set{{Reps: 5, Weight: 60}, {Reps: 5, Weight: 60}, {Reps: 5, Weight: 60}}
	if diff := cmp.Diff(wantSets, s.LogEntries[0].Sets); diff != "" {
		t.Errorf("sets mismatch (-want +got):\n%s", diff)
	}
}

func TestCloneIsDeep(t *testing.T) {
	s := sample()
	c := s.Clone()
	c.Tasks[0].Name = "changed"
	c.Workouts[0].TaskIDs[0] = 99

	if s.Tasks[0].Name != "Bench Press" || s.Workouts[0].TaskIDs[0] != 1 {
		t.Error("Clone shares nested state")
	}
}
