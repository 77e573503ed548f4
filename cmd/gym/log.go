// ABOUTME: CLI commands for logging sets and reading training history.
// ABOUTME: Parses REPSxWEIGHT sets and natural-language dates like "yesterday".
package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/harperreed/gym/internal/models"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"
)

var (
	logDate      string
	logCreate    bool
	historyLimit int
	historySince string
)

var dateParser = newDateParser()

func newDateParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

var logCmd = &cobra.Command{
	Use:     "log <task> <set>...",
	Aliases: []string{"l"},
	Short:   "Log sets for an exercise",
	Long: `Log the sets you did for an exercise.

Each set is REPSxWEIGHT. The weight is optional for bodyweight work and may
carry a kg suffix.

Examples:
  gym log "bench press" 8x60 8x60 6x62.5
  gym log squat 5x100 5x100 5x100 --date yesterday
  gym log pullups 10 8 6 --date "2024-03-01 18:30"
  gym log "farmer carry" 3x40kg --create`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sets, err := parseSets(args[1:])
		if err != nil {
			return err
		}

		date := time.Now()
		if logDate != "" {
			date, err = parseDate(logDate, time.Now())
			if err != nil {
				return err
			}
		}

		t, err := resolveTask(args[0])
		if err != nil {
			if !logCreate {
				return fmt.Errorf("%w (use --create to add it)", err)
			}
			t = models.NewTask(args[0])
			if _, err := repo.CreateTask(t); err != nil {
				return fmt.Errorf("failed to create task: %w", err)
			}
			successf(cmd, "Added %s", t.Name)
		}

		e := models.NewLogEntry(t.ID, date, sets...)
		if _, err := repo.CreateLogEntry(e); err != nil {
			return fmt.Errorf("failed to log sets: %w", err)
		}

		successf(cmd, "Logged %s", t.Name)
		printf(cmd, "  %s %s %s\n",
			faint.Sprint(e.Time().Format("2006-01-02 15:04")),
			formatSets(e.Sets),
			faint.Sprintf("volume %s", formatVolume(e.Volume())))
		flushOutbox(cmd)
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:     "history [task]",
	Aliases: []string{"hist"},
	Short:   "Show logged sessions",
	Long: `Show logged sessions, newest first.

Examples:
  gym history                      # Everything, last 20 entries
  gym history "bench press" -n 5   # One exercise
  gym history --since "last week"`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			entries []*models.LogEntry
			err     error
		)
		if len(args) == 1 {
			t, terr := resolveTask(args[0])
			if terr != nil {
				return terr
			}
			entries, err = repo.ListLogEntriesByTask(t.ID)
		} else {
			entries, err = repo.ListLogEntries()
		}
		if err != nil {
			return fmt.Errorf("failed to list history: %w", err)
		}

		if historySince != "" {
			since, err := parseDate(historySince, time.Now())
			if err != nil {
				return err
			}
			kept := entries[:0]
			for _, e := range entries {
				if e.Date >= since.UnixMilli() {
					kept = append(kept, e)
				}
			}
			entries = kept
		}

		sort.SliceStable(entries, func(i, j int) bool { return entries[i].Date > entries[j].Date })
		if historyLimit > 0 && len(entries) > historyLimit {
			entries = entries[:historyLimit]
		}
		if len(entries) == 0 {
			printf(cmd, "No sessions found.\n")
			return nil
		}

		tasks, err := repo.ListTasks()
		if err != nil {
			return fmt.Errorf("failed to list tasks: %w", err)
		}
		names := make(map[int64]string, len(tasks))
		for _, t := range tasks {
			names[t.ID] = t.Name
		}

		for _, e := range entries {
			name, ok := names[e.TaskID]
			if !ok {
				name = fmt.Sprintf("task #%d", e.TaskID)
			}
			printf(cmd, "%s %s %s %s\n",
				faint.Sprint(e.Time().Format("2006-01-02 15:04")),
				padRight(truncate(name, 20), 20),
				padRight(formatSets(e.Sets), 28),
				faint.Sprint(formatVolume(e.Volume())))
		}
		return nil
	},
}

func parseSets(args []string) ([]models.Set, error) {
	sets := make([]models.Set, 0, len(args))
	for _, arg := range args {
		for _, field := range strings.Fields(arg) {
			s, err := models.ParseSet(field)
			if err != nil {
				return nil, err
			}
			sets = append(sets, s)
		}
	}
	if len(sets) == 0 {
		return nil, fmt.Errorf("at least one set is required")
	}
	return sets, nil
}

// parseDate accepts explicit layouts first, then natural language relative to base.
func parseDate(s string, base time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	layouts := []string{
		"2006-01-02 15:04",
		"2006-01-02T15:04",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}

	r, err := dateParser.Parse(s, base)
	if err != nil || r == nil {
		return time.Time{}, fmt.Errorf("invalid date: %q", s)
	}
	return r.Time, nil
}

func init() {
	logCmd.Flags().StringVar(&logDate, "date", "", `when the sets were done ("yesterday", "2024-03-01 18:30")`)
	logCmd.Flags().BoolVar(&logCreate, "create", false, "create the task if it does not exist")

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "max number of entries")
	historyCmd.Flags().StringVar(&historySince, "since", "", "only entries on or after this date")

	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(historyCmd)
}
