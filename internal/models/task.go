// ABOUTME: Task model describing a single exercise.
// ABOUTME: Tasks are matched across devices by case-insensitive name.
package models

import "strings"

// Default prescription for a new task.
const (
	DefaultSets = 3
	DefaultReps = 10
)

// Task is an exercise that log entries are recorded against.
type Task struct {
	ID           int64   `json:"id" yaml:"id"`
	Name         string  `json:"name" yaml:"name"`
	Tips         string  `json:"tips" yaml:"tips,omitempty"`
	Instructions string  `json:"instructions" yaml:"instructions,omitempty"`
	VideoRef     *string `json:"videoRef,omitempty" yaml:"video_ref,omitempty"`
	DefaultSets  int     `json:"defaultSets" yaml:"default_sets"`
	DefaultReps  int     `json:"defaultReps" yaml:"default_reps"`
	OrderIndex   int     `json:"orderIndex" yaml:"order_index"`
	LastModified int64   `json:"lastModified" yaml:"last_modified"`
	DeviceID     string  `json:"deviceId,omitempty" yaml:"device_id,omitempty"`
}

// NewTask creates a Task with the default prescription.
func NewTask(name string) *Task {
	return &Task{
		Name:        strings.TrimSpace(name),
		DefaultSets: DefaultSets,
		DefaultReps: DefaultReps,
	}
}

// WithTips sets coaching tips.
func (t *Task) WithTips(tips string) *Task {
	t.Tips = tips
	return t
}

// WithInstructions sets the how-to text.
func (t *Task) WithInstructions(s string) *Task {
	t.Instructions = s
	return t
}

// WithVideo sets the video reference.
func (t *Task) WithVideo(ref string) *Task {
	if ref == "" {
		t.VideoRef = nil
		return t
	}
	t.VideoRef = &ref
	return t
}

// WithPrescription sets default sets and reps.
func (t *Task) WithPrescription(sets, reps int) *Task {
	t.DefaultSets = sets
	t.DefaultReps = reps
	return t
}

// NameKey is the identity key used to match tasks across devices.
func NameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Clone returns a deep copy.
func (t *Task) Clone() *Task {
	c := *t
	if t.VideoRef != nil {
		v := *t.VideoRef
		c.VideoRef = &v
	}
	return &c
}
