// ABOUTME: Snapshot value type: the full synchronizable state exchanged with the remote store.
// ABOUTME: Encodes as indented JSON and decodes any supported payload version.
package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/harperreed/gym/internal/models"
	"github.com/tidwall/gjson"
)

// CurrentVersion is the payload version written by Encode.
const CurrentVersion = 2

// ErrMalformed is returned when a payload is not a decodable snapshot.
var ErrMalformed = errors.New("malformed snapshot")

// Snapshot is the complete exported state at a point in time.
// Tombstones are local bookkeeping and never leave the device.
type Snapshot struct {
	Version    int                `json:"version" yaml:"version"`
	Workouts   []*models.Workout  `json:"workouts" yaml:"workouts"`
	Tasks      []*models.Task     `json:"tasks" yaml:"tasks"`
	LogEntries []*models.LogEntry `json:"logEntries" yaml:"log_entries"`
	LastSync   int64              `json:"lastSync" yaml:"last_sync"`

	Tombstones []models.Tombstone `json:"-" yaml:"-"`
}

// New returns an empty snapshot at the current version.
func New() *Snapshot {
	return &Snapshot{
		Version:    CurrentVersion,
		Workouts:   []*models.Workout{},
		Tasks:      []*models.Task{},
		LogEntries: []*models.LogEntry{},
	}
}

// IsEmpty reports whether the snapshot carries no entities.
func (s *Snapshot) IsEmpty() bool {
	return s == nil || (len(s.Workouts) == 0 && len(s.Tasks) == 0 && len(s.LogEntries) == 0)
}

// Encode renders s as the remote document payload.
func Encode(s *Snapshot) ([]byte, error) {
	out := s.Clone()
	out.Version = CurrentVersion
	out.Sort()
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// Decode parses a payload of any supported version into a current Snapshot.
// An empty payload decodes to an empty snapshot.
func Decode(data []byte) (*Snapshot, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return New(), nil
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: invalid JSON", ErrMalformed)
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: payload is not an object", ErrMalformed)
	}

	if isLegacy(root) {
		var legacy Legacy
		if err := json.Unmarshal(data, &legacy); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return Upgrade(&legacy), nil
	}

	s := New()
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	s.Version = CurrentVersion
	s.normalize()
	return s, nil
}

func isLegacy(root gjson.Result) bool {
	v := root.Get("version")
	if v.Exists() && v.Int() >= CurrentVersion {
		return false
	}
	if root.Get("muscleGroups").Exists() {
		return true
	}
	return v.Exists() && v.Int() < CurrentVersion && !root.Get("workouts").Exists()
}

// normalize replaces nil collections and drops nil elements.
func (s *Snapshot) normalize() {
	s.Workouts = compact(s.Workouts)
	s.Tasks = compact(s.Tasks)
	s.LogEntries = compact(s.LogEntries)
	for _, w := range s.Workouts {
		if w.TaskIDs == nil {
			w.TaskIDs = []int64{}
		}
	}
	for _, e := range s.LogEntries {
		if e.Sets == nil {
			e.Sets = []models.Set{}
		}
	}
}

func compact[T any](in []*T) []*T {
	out := make([]*T, 0, len(in))
	for _, v := range in {
		if v != nil {
			out = append(out, v)
		}
	}
	return out
}

// Sort orders every collection by id so encoded output is deterministic.
func (s *Snapshot) Sort() {
	sort.SliceStable(s.Workouts, func(i, j int) bool { return s.Workouts[i].ID < s.Workouts[j].ID })
	sort.SliceStable(s.Tasks, func(i, j int) bool { return s.Tasks[i].ID < s.Tasks[j].ID })
	sort.SliceStable(s.LogEntries, func(i, j int) bool { return s.LogEntries[i].ID < s.LogEntries[j].ID })
}

// Clone returns a deep copy.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return New()
	}
	c := &Snapshot{
		Version:    s.Version,
		LastSync:   s.LastSync,
		Workouts:   make([]*models.Workout, 0, len(s.Workouts)),
		Tasks:      make([]*models.Task, 0, len(s.Tasks)),
		LogEntries: make([]*models.LogEntry, 0, len(s.LogEntries)),
		Tombstones: append([]models.Tombstone{}, s.Tombstones...),
	}
	for _, w := range s.Workouts {
		c.Workouts = append(c.Workouts, w.Clone())
	}
	for _, t := range s.Tasks {
		c.Tasks = append(c.Tasks, t.Clone())
	}
	for _, e := range s.LogEntries {
		c.LogEntries = append(c.LogEntries, e.Clone())
	}
	return c
}

// TaskByID returns the task with id, or nil.
func (s *Snapshot) TaskByID(id int64) *models.Task {
	for _, t := range s.Tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}
