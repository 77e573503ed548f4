// ABOUTME: MCP tool implementations for the gym log.
// ABOUTME: Logs sets, lists tasks, reads task history and reports sync status.
package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/harperreed/gym/internal/models"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "log_set",
		Description: "Record sets for an exercise, e.g. sets [\"8x60\", \"6x65\"]",
	}, s.handleLogSet)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_tasks",
		Description: "List exercises with their default prescription",
	}, s.handleListTasks)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "task_history",
		Description: "Show recent log entries for one exercise, newest first",
	}, s.handleTaskHistory)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "sync_status",
		Description: "Report pending changes, failures and the last successful sync",
	}, s.handleSyncStatus)
}

type logSetInput struct {
	Task   string   `json:"task" jsonschema:"exercise name, matched case-insensitively"`
	Sets   []string `json:"sets" jsonschema:"sets as REPSxWEIGHT, e.g. 8x60"`
	Date   string   `json:"date,omitempty" jsonschema:"date (YYYY-MM-DD or RFC 3339), defaults to now"`
	Create bool     `json:"create,omitempty" jsonschema:"create the exercise if it does not exist"`
}

type logSetOutput struct {
	ID      int64   `json:"id"`
	Task    string  `json:"task"`
	Date    string  `json:"date"`
	Sets    string  `json:"sets"`
	Volume  float64 `json:"volume"`
	Message string  `json:"message"`
}

type taskSummary struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Prescription string `json:"prescription"`
	Tips         string `json:"tips,omitempty"`
}

type listTasksOutput struct {
	Tasks []taskSummary `json:"tasks"`
}

type taskHistoryInput struct {
	Task  string `json:"task" jsonschema:"exercise name"`
	Limit int    `json:"limit,omitempty" jsonschema:"max entries (default 10)"`
}

type historyEntry struct {
	ID     int64   `json:"id"`
	Date   string  `json:"date"`
	Sets   string  `json:"sets"`
	Volume float64 `json:"volume"`
}

type taskHistoryOutput struct {
	Task    string         `json:"task"`
	Entries []historyEntry `json:"entries"`
}

type syncStatusOutput struct {
	Enabled       bool   `json:"enabled"`
	Online        bool   `json:"online"`
	Authenticated bool   `json:"authenticated"`
	Pending       int    `json:"pending"`
	Failed        int    `json:"failed"`
	LastSync      string `json:"last_sync,omitempty"`
	LastError     string `json:"last_error,omitempty"`
}

func (s *Server) handleLogSet(ctx context.Context, req *mcp.CallToolRequest, input logSetInput) (*mcp.CallToolResult, logSetOutput, error) {
	name := strings.TrimSpace(input.Task)
	if name == "" {
		return nil, logSetOutput{}, fmt.Errorf("task is required")
	}
	if len(input.Sets) == 0 {
		return nil, logSetOutput{}, fmt.Errorf("at least one set is required")
	}

	sets := make([]models.Set, 0, len(input.Sets))
	for _, raw := range input.Sets {
		set, err := models.ParseSet(raw)
		if err != nil {
			return nil, logSetOutput{}, err
		}
		sets = append(sets, set)
	}

	date := s.clock.Now()
	if input.Date != "" {
		t, err := parseDate(input.Date)
		if err != nil {
			return nil, logSetOutput{}, err
		}
		date = t
	}

	task, err := s.repo.FindTaskByName(name)
	if err != nil {
		if !input.Create {
			return nil, logSetOutput{}, fmt.Errorf("task not found: %s", name)
		}
		task = models.NewTask(name)
		if _, err := s.repo.CreateTask(task); err != nil {
			return nil, logSetOutput{}, fmt.Errorf("failed to create task: %w", err)
		}
	}

	entry := models.NewLogEntry(task.ID, date, sets...)
	if _, err := s.repo.CreateLogEntry(entry); err != nil {
		return nil, logSetOutput{}, fmt.Errorf("failed to log sets: %w", err)
	}
	s.flush(ctx)

	return nil, logSetOutput{
		ID:      entry.ID,
		Task:    task.Name,
		Date:    entry.Time().Format("2006-01-02"),
		Sets:    formatSets(entry.Sets),
		Volume:  entry.Volume(),
		Message: fmt.Sprintf("Logged %s: %s", task.Name, formatSets(entry.Sets)),
	}, nil
}

func (s *Server) handleListTasks(ctx context.Context, req *mcp.CallToolRequest, input struct{}) (*mcp.CallToolResult, listTasksOutput, error) {
	tasks, err := s.repo.ListTasks()
	if err != nil {
		return nil, listTasksOutput{}, fmt.Errorf("failed to list tasks: %w", err)
	}

	out := listTasksOutput{Tasks: make([]taskSummary, 0, len(tasks))}
	for _, t := range tasks {
		out.Tasks = append(out.Tasks, taskSummary{
			ID:           t.ID,
			Name:         t.Name,
			Prescription: fmt.Sprintf("%dx%d", t.DefaultSets, t.DefaultReps),
			Tips:         t.Tips,
		})
	}
	return nil, out, nil
}

func (s *Server) handleTaskHistory(ctx context.Context, req *mcp.CallToolRequest, input taskHistoryInput) (*mcp.CallToolResult, taskHistoryOutput, error) {
	if input.Limit <= 0 {
		input.Limit = 10
	}

	task, err := s.repo.FindTaskByName(input.Task)
	if err != nil {
		return nil, taskHistoryOutput{}, fmt.Errorf("task not found: %s", input.Task)
	}

	entries, err := s.repo.ListLogEntriesByTask(task.ID)
	if err != nil {
		return nil, taskHistoryOutput{}, fmt.Errorf("failed to list history: %w", err)
	}
	if len(entries) > input.Limit {
		entries = entries[:input.Limit]
	}

	out := taskHistoryOutput{Task: task.Name, Entries: make([]historyEntry, 0, len(entries))}
	for _, e := range entries {
		out.Entries = append(out.Entries, historyEntry{
			ID:     e.ID,
			Date:   e.Time().Format("2006-01-02"),
			Sets:   formatSets(e.Sets),
			Volume: e.Volume(),
		})
	}
	return nil, out, nil
}

func (s *Server) handleSyncStatus(ctx context.Context, req *mcp.CallToolRequest, input struct{}) (*mcp.CallToolResult, syncStatusOutput, error) {
	if s.proc == nil {
		return nil, syncStatusOutput{}, nil
	}

	st, err := s.proc.Status()
	if err != nil {
		return nil, syncStatusOutput{}, fmt.Errorf("failed to read sync status: %w", err)
	}

	out := syncStatusOutput{
		Enabled:       st.Enabled,
		Online:        st.Online,
		Authenticated: st.Authenticated,
		Pending:       st.Pending,
		Failed:        st.Failed,
		LastError:     st.LastError,
	}
	if !st.LastSync.IsZero() {
		out.LastSync = st.LastSync.Format(time.RFC3339)
	}
	return nil, out, nil
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date: %s", s)
	}
	return t, nil
}

func formatSets(sets []models.Set) string {
	parts := make([]string, len(sets))
	for i, set := range sets {
		parts[i] = set.String()
	}
	return strings.Join(parts, " ")
}
