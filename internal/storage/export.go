// ABOUTME: Export of gym data as a sync snapshot, YAML, or Markdown.
// ABOUTME: ExportSnapshot is also what the sync engine pushes to the remote store.
package storage

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/harperreed/gym/internal/models"
	"github.com/harperreed/gym/internal/snapshot"
	"gopkg.in/yaml.v3"
)

// ExportSnapshot reads the full local state, including tombstones.
func ExportSnapshot(r Repository) (*snapshot.Snapshot, error) {
	s := snapshot.New()

	workouts, err := r.ListWorkouts()
	if err != nil {
		return nil, fmt.Errorf("list workouts: %w", err)
	}
	tasks, err := r.ListTasks()
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	entries, err := r.ListLogEntries()
	if err != nil {
		return nil, fmt.Errorf("list log entries: %w", err)
	}
	tombstones, err := r.ListTombstones()
	if err != nil {
		return nil, fmt.Errorf("list tombstones: %w", err)
	}
	lastSync, err := r.LastSync()
	if err != nil {
		return nil, err
	}

	s.Workouts = append(s.Workouts, workouts...)
	s.Tasks = append(s.Tasks, tasks...)
	s.LogEntries = append(s.LogEntries, entries...)
	s.Tombstones = tombstones
	if !lastSync.IsZero() {
		s.LastSync = lastSync.UnixMilli()
	}
	s.Sort()
	return s, nil
}

// ExportJSON exports all data in the remote document format.
func ExportJSON(r Repository) ([]byte, error) {
	s, err := ExportSnapshot(r)
	if err != nil {
		return nil, err
	}
	return snapshot.Encode(s)
}

type yamlExport struct {
	Version    int           `yaml:"version"`
	ExportedAt string        `yaml:"exported_at"`
	Tool       string        `yaml:"tool"`
	Workouts   []yamlWorkout `yaml:"workouts"`
	Tasks      []yamlTask    `yaml:"tasks"`
}

type yamlWorkout struct {
	Name  string   `yaml:"name"`
	Tasks []string `yaml:"tasks"`
}

type yamlTask struct {
	Name         string        `yaml:"name"`
	Prescription string        `yaml:"prescription"`
	Tips         string        `yaml:"tips,omitempty"`
	Instructions string        `yaml:"instructions,omitempty"`
	Video        string        `yaml:"video,omitempty"`
	History      []yamlSession `yaml:"history,omitempty"`
}

type yamlSession struct {
	Date string   `yaml:"date"`
	Sets []string `yaml:"sets"`
}

// ExportYAML exports all data as YAML with references resolved to names.
func ExportYAML(r Repository) ([]byte, error) {
	s, err := ExportSnapshot(r)
	if err != nil {
		return nil, err
	}

	out := yamlExport{
		Version:    snapshot.CurrentVersion,
		ExportedAt: time.Now().Format(time.RFC3339),
		Tool:       "gym",
		Workouts:   make([]yamlWorkout, 0, len(s.Workouts)),
		Tasks:      make([]yamlTask, 0, len(s.Tasks)),
	}

	for _, w := range s.Workouts {
		yw := yamlWorkout{Name: w.Name, Tasks: []string{}}
		for _, id := range w.TaskIDs {
			if t := s.TaskByID(id); t != nil {
				yw.Tasks = append(yw.Tasks, t.Name)
			}
		}
		out.Workouts = append(out.Workouts, yw)
	}

	byTask := groupEntries(s.LogEntries)
	for _, t := range s.Tasks {
		yt := yamlTask{
			Name:         t.Name,
			Prescription: fmt.Sprintf("%dx%d", t.DefaultSets, t.DefaultReps),
			Tips:         t.Tips,
			Instructions: t.Instructions,
		}
		if t.VideoRef != nil {
			yt.Video = *t.VideoRef
		}
		for _, e := range byTask[t.ID] {
			yt.History = append(yt.History, yamlSession{
				Date: e.Time().Format("2006-01-02 15:04"),
				Sets: formatSets(e.Sets),
			})
		}
		out.Tasks = append(out.Tasks, yt)
	}

	return yaml.Marshal(out)
}

// ExportMarkdown renders training history per task. A non-nil since
// drops entries dated before it.
func ExportMarkdown(r Repository, since *time.Time) (string, error) {
	s, err := ExportSnapshot(r)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	now := time.Now()

	sb.WriteString(fmt.Sprintf("# Gym Log Export - %s\n\n", now.Format("2006-01-02")))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", now.Format(time.RFC3339)))

	if len(s.Workouts) > 0 {
		sb.WriteString("## Workouts\n\n")
		for _, w := range s.Workouts {
			var names []string
			for _, id := range w.TaskIDs {
				if t := s.TaskByID(id); t != nil {
					names = append(names, t.Name)
				}
			}
			sb.WriteString(fmt.Sprintf("- **%s**: %s\n", w.Name, strings.Join(names, ", ")))
		}
		sb.WriteString("\n")
	}

	byTask := groupEntries(s.LogEntries)
	for _, t := range s.Tasks {
		entries := byTask[t.ID]
		if since != nil {
			var filtered []*models.LogEntry
			for _, e := range entries {
				if !e.Time().Before(*since) {
					filtered = append(filtered, e)
				}
			}
			entries = filtered
		}
		if len(entries) == 0 {
			continue
		}

		sb.WriteString(fmt.Sprintf("## %s\n\n", t.Name))
		sb.WriteString("| Date | Sets | Volume |\n")
		sb.WriteString("|------|------|--------|\n")
		for _, e := range entries {
			sb.WriteString(fmt.Sprintf("| %s | %s | %.1f |\n",
				e.Time().Format("2006-01-02 15:04"),
				strings.Join(formatSets(e.Sets), ", "),
				e.Volume()))
		}
		sb.WriteString("\n")
	}

	return sb.String(), nil
}

// groupEntries buckets entries by task, newest first.
func groupEntries(entries []*models.LogEntry) map[int64][]*models.LogEntry {
	out := make(map[int64][]*models.LogEntry)
	for _, e := range entries {
		out[e.TaskID] = append(out[e.TaskID], e)
	}
	for _, list := range out {
		sort.SliceStable(list, func(i, j int) bool { return list[i].Date > list[j].Date })
	}
	return out
}

func formatSets(sets []models.Set) []string {
	out := make([]string, 0, len(sets))
	for _, s := range sets {
		out = append(out, s.String())
	}
	return out
}
