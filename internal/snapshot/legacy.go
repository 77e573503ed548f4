// ABOUTME: Upgrade of version 1 payloads, where tasks belonged to muscle groups.
// ABOUTME: Muscle groups become workouts and scalar sets/reps/weight become a sets list.
package snapshot

import (
	"sort"

	"github.com/harperreed/gym/internal/models"
)

// Legacy is the version 1 payload layout.
type Legacy struct {
	Version      int                 `json:"version"`
	MuscleGroups []LegacyMuscleGroup `json:"muscleGroups"`
	Tasks        []LegacyTask        `json:"tasks"`
	LogEntries   []LegacyLogEntry    `json:"logEntries"`
	LastSync     int64               `json:"lastSync"`
}

// LegacyMuscleGroup owned its tasks through Task.MuscleGroupID.
type LegacyMuscleGroup struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	OrderIndex   int    `json:"orderIndex"`
	LastModified int64  `json:"lastModified"`
}

// LegacyTask is a task keyed to exactly one muscle group.
type LegacyTask struct {
	ID            int64  `json:"id"`
	MuscleGroupID int64  `json:"muscleGroupId"`
	Name          string `json:"name"`
	Instructions  string `json:"instructions"`
	Tips          string `json:"tips"`
	VideoFileName string `json:"videoFileName"`
	VideoURL      string `json:"videoUrl"`
	DefaultSets   int    `json:"defaultSets"`
	DefaultReps   int    `json:"defaultReps"`
	OrderIndex    int    `json:"orderIndex"`
	LastModified  int64  `json:"lastModified"`
}

// LegacyLogEntry stored one weight for every set.
type LegacyLogEntry struct {
	ID           int64   `json:"id"`
	TaskID       int64   `json:"taskId"`
	Date         int64   `json:"date"`
	Sets         int     `json:"sets"`
	Reps         int     `json:"reps"`
	WeightKg     float64 `json:"weightKg"`
	LastModified int64   `json:"lastModified"`
}

// Upgrade converts a version 1 payload to the current layout. It is pure:
// ids and timestamps carry over unchanged.
func Upgrade(l *Legacy) *Snapshot {
	s := New()
	s.LastSync = l.LastSync

	byGroup := make(map[int64][]LegacyTask)
	for _, t := range l.Tasks {
		byGroup[t.MuscleGroupID] = append(byGroup[t.MuscleGroupID], t)

		task := &models.Task{
			ID:           t.ID,
			Name:         t.Name,
			Tips:         t.Tips,
			Instructions: t.Instructions,
			DefaultSets:  t.DefaultSets,
			DefaultReps:  t.DefaultReps,
			OrderIndex:   t.OrderIndex,
			LastModified: t.LastModified,
		}
		if task.DefaultSets == 0 {
			task.DefaultSets = models.DefaultSets
		}
		if task.DefaultReps == 0 {
			task.DefaultReps = models.DefaultReps
		}
		switch {
		case t.VideoURL != "":
			task.WithVideo(t.VideoURL)
		case t.VideoFileName != "":
			task.WithVideo(t.VideoFileName)
		}
		s.Tasks = append(s.Tasks, task)
	}

	for _, g := range l.MuscleGroups {
		tasks := byGroup[g.ID]
		sort.SliceStable(tasks, func(i, j int) bool {
			if tasks[i].OrderIndex != tasks[j].OrderIndex {
				return tasks[i].OrderIndex < tasks[j].OrderIndex
			}
			return tasks[i].ID < tasks[j].ID
		})
		ids := make([]int64, 0, len(tasks))
		for _, t := range tasks {
			ids = append(ids, t.ID)
		}
		s.Workouts = append(s.Workouts, &models.Workout{
			ID:           g.ID,
			Name:         g.Name,
			TaskIDs:      ids,
			OrderIndex:   g.OrderIndex,
			LastModified: g.LastModified,
		})
	}

	for _, e := range l.LogEntries {
		sets := make([]models.Set, 0, e.Sets)
		for i := 0; i < e.Sets; i++ {
			sets = append(sets, models.Set{Reps: e.Reps, Weight: e.WeightKg})
		}
		s.LogEntries = append(s.LogEntries, &models.LogEntry{
			ID:           e.ID,
			TaskID:       e.TaskID,
			Date:         e.Date,
			Sets:         sets,
			LastModified: e.LastModified,
		})
	}
	return s
}
