// ABOUTME: CLI commands for managing workouts.
// ABOUTME: Supports add, list, show, add-task, remove-task, and delete subcommands.
package main

import (
	"fmt"
	"strconv"

	"github.com/harperreed/gym/internal/models"
	"github.com/harperreed/gym/internal/storage"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var workoutTasks []string

var workoutCmd = &cobra.Command{
	Use:     "workout",
	Aliases: []string{"w"},
	Short:   "Manage workouts",
	Long: `Group exercises into named workouts.

A workout is an ordered list of tasks, e.g. "Push Day" with bench press,
overhead press and dips. Logging always happens per task; workouts are a
plan you follow.

WORKFLOW:

  1. Create a workout:   gym workout add "Push Day" --task "Bench Press"
  2. Add more tasks:     gym workout add-task "Push Day" Dips
  3. View the plan:      gym workout show "Push Day"`,
}

var workoutAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a workout",
	Long: `Add a workout.

Examples:
  gym workout add "Leg Day"
  gym workout add "Push Day" --task "Bench Press" --task Dips`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := repo.FindWorkoutByName(args[0]); err == nil {
			return fmt.Errorf("workout already exists: %s", args[0])
		}

		ids := make([]int64, 0, len(workoutTasks))
		for _, name := range workoutTasks {
			t, err := resolveTask(name)
			if err != nil {
				return err
			}
			ids = append(ids, t.ID)
		}

		existing, err := repo.ListWorkouts()
		if err != nil {
			return fmt.Errorf("failed to list workouts: %w", err)
		}

		w := models.NewWorkout(args[0]).WithTasks(ids...).WithOrder(len(existing))
		if _, err := repo.CreateWorkout(w); err != nil {
			return fmt.Errorf("failed to create workout: %w", err)
		}

		successf(cmd, "Added %s workout", w.Name)
		printf(cmd, "  %s %d tasks\n", faint.Sprintf("#%d", w.ID), len(w.TaskIDs))
		flushOutbox(cmd)
		return nil
	},
}

var workoutListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List workouts",
	RunE: func(cmd *cobra.Command, args []string) error {
		workouts, err := repo.ListWorkouts()
		if err != nil {
			return fmt.Errorf("failed to list workouts: %w", err)
		}
		if len(workouts) == 0 {
			printf(cmd, "No workouts found.\n")
			return nil
		}

		for _, w := range workouts {
			printf(cmd, "%s %s %s\n",
				faint.Sprint(padRight(fmt.Sprintf("#%d", w.ID), 5)),
				padRight(w.Name, 24),
				faint.Sprintf("%d tasks", len(w.TaskIDs)))
		}
		return nil
	},
}

var workoutShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show a workout with its tasks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := resolveWorkout(args[0])
		if err != nil {
			return err
		}

		printf(cmd, "%s %s\n", bold.Sprint(w.Name), faint.Sprintf("#%d", w.ID))
		if len(w.TaskIDs) == 0 {
			printf(cmd, "  No tasks yet.\n")
			return nil
		}
		for i, id := range w.TaskIDs {
			t, err := repo.GetTask(id)
			if err != nil {
				printf(cmd, "  %d. %s\n", i+1, faint.Sprintf("missing task #%d", id))
				continue
			}
			last := ""
			entries, err := repo.ListLogEntriesByTask(t.ID)
			if err == nil && len(entries) > 0 {
				last = faint.Sprintf("last %s: %s", entries[0].Time().Format("2006-01-02"), formatSets(entries[0].Sets))
			}
			printf(cmd, "  %d. %s %dx%d %s\n", i+1, padRight(t.Name, 24), t.DefaultSets, t.DefaultReps, last)
		}
		return nil
	},
}

var workoutAddTaskCmd = &cobra.Command{
	Use:   "add-task <workout> <task>",
	Short: "Append a task to a workout",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := resolveWorkout(args[0])
		if err != nil {
			return err
		}
		t, err := resolveTask(args[1])
		if err != nil {
			return err
		}
		if w.HasTask(t.ID) {
			return fmt.Errorf("%s is already in %s", t.Name, w.Name)
		}

		w.TaskIDs = append(w.TaskIDs, t.ID)
		if err := repo.UpdateWorkout(w); err != nil {
			return fmt.Errorf("failed to update workout: %w", err)
		}
		successf(cmd, "Added %s to %s", t.Name, w.Name)
		flushOutbox(cmd)
		return nil
	},
}

var workoutRemoveTaskCmd = &cobra.Command{
	Use:   "remove-task <workout> <task>",
	Short: "Remove a task from a workout",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := resolveWorkout(args[0])
		if err != nil {
			return err
		}
		t, err := resolveTask(args[1])
		if err != nil {
			return err
		}
		if !w.RemoveTask(t.ID) {
			return fmt.Errorf("%s is not in %s", t.Name, w.Name)
		}

		if err := repo.UpdateWorkout(w); err != nil {
			return fmt.Errorf("failed to update workout: %w", err)
		}
		removedf(cmd, "Removed %s from %s", t.Name, w.Name)
		flushOutbox(cmd)
		return nil
	},
}

var workoutDeleteCmd = &cobra.Command{
	Use:     "delete <name>",
	Aliases: []string{"rm"},
	Short:   "Delete a workout",
	Long:    `Delete a workout. The tasks in it and their log entries are kept.`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := resolveWorkout(args[0])
		if err != nil {
			return err
		}
		if err := repo.DeleteWorkout(w.ID); err != nil {
			return fmt.Errorf("failed to delete workout: %w", err)
		}
		removedf(cmd, "Deleted %s workout", w.Name)
		flushOutbox(cmd)
		return nil
	},
}

// resolveWorkout finds a workout by name, falling back to a numeric id.
func resolveWorkout(ref string) (*models.Workout, error) {
	w, err := repo.FindWorkoutByName(ref)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	if id, perr := strconv.ParseInt(ref, 10, 64); perr == nil {
		if w, err := repo.GetWorkout(id); err == nil {
			return w, nil
		}
	}
	return nil, fmt.Errorf("workout not found: %s", ref)
}

func init() {
	workoutAddCmd.Flags().StringArrayVar(&workoutTasks, "task", nil, "task to include (repeatable)")

	workoutCmd.AddCommand(workoutAddCmd)
	workoutCmd.AddCommand(workoutListCmd)
	workoutCmd.AddCommand(workoutShowCmd)
	workoutCmd.AddCommand(workoutAddTaskCmd)
	workoutCmd.AddCommand(workoutRemoveTaskCmd)
	workoutCmd.AddCommand(workoutDeleteCmd)
	rootCmd.AddCommand(workoutCmd)
}
