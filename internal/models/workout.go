// ABOUTME: Workout model grouping tasks into an ordered routine.
// ABOUTME: Workouts reference tasks by id and do not own them.
package models

import "strings"

// Workout is a named, ordered collection of task references.
type Workout struct {
	ID           int64   `json:"id" yaml:"id"`
	Name         string  `json:"name" yaml:"name"`
	TaskIDs      []int64 `json:"taskIds" yaml:"task_ids"`
	OrderIndex   int     `json:"orderIndex" yaml:"order_index"`
	LastModified int64   `json:"lastModified" yaml:"last_modified"`
	DeviceID     string  `json:"deviceId,omitempty" yaml:"device_id,omitempty"`
}

// NewWorkout creates a Workout with an empty task list.
func NewWorkout(name string) *Workout {
	return &Workout{
		Name:    strings.TrimSpace(name),
		TaskIDs: []int64{},
	}
}

// WithTasks sets the ordered task references.
func (w *Workout) WithTasks(ids ...int64) *Workout {
	w.TaskIDs = append([]int64{}, ids...)
	return w
}

// WithOrder sets the display order.
func (w *Workout) WithOrder(i int) *Workout {
	w.OrderIndex = i
	return w
}

// HasTask reports whether the workout references taskID.
func (w *Workout) HasTask(taskID int64) bool {
	for _, id := range w.TaskIDs {
		if id == taskID {
			return true
		}
	}
	return false
}

// RemoveTask drops every reference to taskID and reports whether any were removed.
func (w *Workout) RemoveTask(taskID int64) bool {
	kept := w.TaskIDs[:0]
	removed := false
	for _, id := range w.TaskIDs {
		if id == taskID {
			removed = true
			continue
		}
		kept = append(kept, id)
	}
	w.TaskIDs = kept
	return removed
}

// Clone returns a deep copy.
func (w *Workout) Clone() *Workout {
	c := *w
	c.TaskIDs = append([]int64{}, w.TaskIDs...)
	return &c
}
