// ABOUTME: MCP resource implementations for the gym log.
// ABOUTME: Provides the gym://summary dashboard of tasks, workouts and recent sessions.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/harperreed/gym/internal/models"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const summaryURI = "gym://summary"

func (s *Server) registerResources() {
	s.mcpServer.AddResource(&mcp.Resource{
		URI:         summaryURI,
		Name:        "Gym Summary",
		Description: "Workouts, exercises with their last session, and recent log entries",
		MIMEType:    "application/json",
	}, s.handleSummaryResource)
}

type lastSession struct {
	Date   string  `json:"date"`
	Sets   string  `json:"sets"`
	Volume float64 `json:"volume"`
}

type taskStatus struct {
	Name         string       `json:"name"`
	Prescription string       `json:"prescription"`
	Last         *lastSession `json:"last,omitempty"`
}

type workoutStatus struct {
	Name  string   `json:"name"`
	Tasks []string `json:"tasks"`
}

func (s *Server) handleSummaryResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	tasks, err := s.repo.ListTasks()
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	workouts, err := s.repo.ListWorkouts()
	if err != nil {
		return nil, fmt.Errorf("failed to list workouts: %w", err)
	}
	entries, err := s.repo.ListLogEntries()
	if err != nil {
		return nil, fmt.Errorf("failed to list log entries: %w", err)
	}

	names := make(map[int64]string, len(tasks))
	for _, t := range tasks {
		names[t.ID] = t.Name
	}

	latest := make(map[int64]*models.LogEntry)
	for _, e := range entries {
		if cur, ok := latest[e.TaskID]; !ok || e.Date > cur.Date {
			latest[e.TaskID] = e
		}
	}

	taskList := make([]taskStatus, 0, len(tasks))
	for _, t := range tasks {
		ts := taskStatus{
			Name:         t.Name,
			Prescription: fmt.Sprintf("%dx%d", t.DefaultSets, t.DefaultReps),
		}
		if e, ok := latest[t.ID]; ok {
			ts.Last = &lastSession{
				Date:   e.Time().Format("2006-01-02"),
				Sets:   formatSets(e.Sets),
				Volume: e.Volume(),
			}
		}
		taskList = append(taskList, ts)
	}

	workoutList := make([]workoutStatus, 0, len(workouts))
	for _, w := range workouts {
		ws := workoutStatus{Name: w.Name, Tasks: []string{}}
		for _, id := range w.TaskIDs {
			if name, ok := names[id]; ok {
				ws.Tasks = append(ws.Tasks, name)
			}
		}
		workoutList = append(workoutList, ws)
	}

	weekAgo := s.clock.Now().AddDate(0, 0, -7).UnixMilli()
	var weekVolume float64
	weekSessions := 0
	for _, e := range entries {
		if e.Date >= weekAgo {
			weekSessions++
			weekVolume += e.Volume()
		}
	}

	result := map[string]interface{}{
		"generated_at": s.clock.Now().Format(time.RFC3339),
		"workouts":     workoutList,
		"tasks":        taskList,
		"last_7_days": map[string]interface{}{
			"entries": weekSessions,
			"volume":  weekVolume,
		},
		"counts": map[string]int{
			"workouts":    len(workouts),
			"tasks":       len(tasks),
			"log_entries": len(entries),
		},
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      summaryURI,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}
