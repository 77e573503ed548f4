// ABOUTME: CLI commands for managing exercises (tasks).
// ABOUTME: Supports add, list, show, edit, and delete subcommands.
package main

import (
	"fmt"
	"strconv"

	"github.com/harperreed/gym/internal/models"
	"github.com/harperreed/gym/internal/storage"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	taskSets         int
	taskReps         int
	taskTips         string
	taskInstructions string
	taskVideo        string
	taskRename       string
	taskShowLimit    int
)

var taskCmd = &cobra.Command{
	Use:     "task",
	Aliases: []string{"t", "exercise"},
	Short:   "Manage exercises",
	Long: `Manage the exercises you log sets against.

Each task has a default prescription (sets x reps) plus optional tips,
instructions and a video link. Names are matched case-insensitively.

COMMANDS:

  add      Create an exercise
  list     List exercises
  show     Show an exercise with its recent sessions
  edit     Change an exercise
  delete   Delete an exercise and its log entries`,
}

var taskAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add an exercise",
	Long: `Add an exercise.

Examples:
  gym task add "Bench Press"
  gym task add Squat --sets 5 --reps 5 --tips "brace, knees out"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := repo.FindTaskByName(args[0]); err == nil {
			return fmt.Errorf("task already exists: %s", args[0])
		}

		t := models.NewTask(args[0]).
			WithPrescription(taskSets, taskReps).
			WithTips(taskTips).
			WithInstructions(taskInstructions).
			WithVideo(taskVideo)
		if _, err := repo.CreateTask(t); err != nil {
			return fmt.Errorf("failed to create task: %w", err)
		}

		successf(cmd, "Added %s", t.Name)
		printf(cmd, "  %s %dx%d\n", faint.Sprintf("#%d", t.ID), t.DefaultSets, t.DefaultReps)
		flushOutbox(cmd)
		return nil
	},
}

var taskListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List exercises",
	RunE: func(cmd *cobra.Command, args []string) error {
		tasks, err := repo.ListTasks()
		if err != nil {
			return fmt.Errorf("failed to list tasks: %w", err)
		}
		if len(tasks) == 0 {
			printf(cmd, "No tasks found.\n")
			return nil
		}

		for _, t := range tasks {
			tips := ""
			if t.Tips != "" {
				tips = faint.Sprintf(" (%s)", truncate(t.Tips, 30))
			}
			printf(cmd, "%s %s %dx%d%s\n",
				faint.Sprint(padRight(fmt.Sprintf("#%d", t.ID), 5)),
				padRight(t.Name, 24),
				t.DefaultSets, t.DefaultReps,
				tips)
		}
		return nil
	},
}

var taskShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show an exercise with recent sessions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := resolveTask(args[0])
		if err != nil {
			return err
		}

		printf(cmd, "%s %s\n", bold.Sprint(t.Name), faint.Sprintf("#%d", t.ID))
		printf(cmd, "  Prescription: %dx%d\n", t.DefaultSets, t.DefaultReps)
		if t.Tips != "" {
			printf(cmd, "  Tips: %s\n", t.Tips)
		}
		if t.Instructions != "" {
			printf(cmd, "  Instructions: %s\n", t.Instructions)
		}
		if t.VideoRef != nil {
			printf(cmd, "  Video: %s\n", *t.VideoRef)
		}

		entries, err := repo.ListLogEntriesByTask(t.ID)
		if err != nil {
			return fmt.Errorf("failed to list history: %w", err)
		}
		if len(entries) == 0 {
			printf(cmd, "\n  No sessions logged yet.\n")
			return nil
		}
		if len(entries) > taskShowLimit {
			entries = entries[:taskShowLimit]
		}
		printf(cmd, "\n  Recent sessions:\n")
		for _, e := range entries {
			printf(cmd, "    %s %s %s\n",
				faint.Sprint(e.Time().Format("2006-01-02")),
				padRight(formatSets(e.Sets), 28),
				faint.Sprint(formatVolume(e.Volume())))
		}
		return nil
	},
}

var taskEditCmd = &cobra.Command{
	Use:   "edit <name>",
	Short: "Edit an exercise",
	Long: `Edit an exercise. Only the flags you pass are changed.

Examples:
  gym task edit squat --sets 5 --reps 3
  gym task edit "bench" --name "Bench Press"
  gym task edit "Bench Press" --video ""`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := resolveTask(args[0])
		if err != nil {
			return err
		}

		flags := cmd.Flags()
		if flags.Changed("name") {
			if other, err := repo.FindTaskByName(taskRename); err == nil && other.ID != t.ID {
				return fmt.Errorf("task already exists: %s", taskRename)
			}
			t.Name = models.NewTask(taskRename).Name
		}
		if flags.Changed("sets") {
			t.DefaultSets = taskSets
		}
		if flags.Changed("reps") {
			t.DefaultReps = taskReps
		}
		if flags.Changed("tips") {
			t.WithTips(taskTips)
		}
		if flags.Changed("instructions") {
			t.WithInstructions(taskInstructions)
		}
		if flags.Changed("video") {
			t.WithVideo(taskVideo)
		}

		if err := repo.UpdateTask(t); err != nil {
			return fmt.Errorf("failed to update task: %w", err)
		}
		successf(cmd, "Updated %s", t.Name)
		flushOutbox(cmd)
		return nil
	},
}

var taskDeleteCmd = &cobra.Command{
	Use:     "delete <name>",
	Aliases: []string{"rm"},
	Short:   "Delete an exercise and its log entries",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := resolveTask(args[0])
		if err != nil {
			return err
		}
		if err := repo.DeleteTask(t.ID); err != nil {
			return fmt.Errorf("failed to delete task: %w", err)
		}
		removedf(cmd, "Deleted %s", t.Name)
		flushOutbox(cmd)
		return nil
	},
}

// resolveTask finds a task by name, falling back to a numeric id.
func resolveTask(ref string) (*models.Task, error) {
	t, err := repo.FindTaskByName(ref)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	if id, perr := strconv.ParseInt(ref, 10, 64); perr == nil {
		if t, err := repo.GetTask(id); err == nil {
			return t, nil
		}
	}
	return nil, fmt.Errorf("task not found: %s", ref)
}

func init() {
	taskAddCmd.Flags().IntVar(&taskSets, "sets", models.DefaultSets, "default number of sets")
	taskAddCmd.Flags().IntVar(&taskReps, "reps", models.DefaultReps, "default reps per set")
	taskAddCmd.Flags().StringVar(&taskTips, "tips", "", "coaching tips")
	taskAddCmd.Flags().StringVar(&taskInstructions, "instructions", "", "how to perform the exercise")
	taskAddCmd.Flags().StringVar(&taskVideo, "video", "", "video URL")

	taskEditCmd.Flags().StringVar(&taskRename, "name", "", "new name")
	taskEditCmd.Flags().IntVar(&taskSets, "sets", models.DefaultSets, "default number of sets")
	taskEditCmd.Flags().IntVar(&taskReps, "reps", models.DefaultReps, "default reps per set")
	taskEditCmd.Flags().StringVar(&taskTips, "tips", "", "coaching tips")
	taskEditCmd.Flags().StringVar(&taskInstructions, "instructions", "", "how to perform the exercise")
	taskEditCmd.Flags().StringVar(&taskVideo, "video", "", "video URL (empty clears it)")

	taskShowCmd.Flags().IntVarP(&taskShowLimit, "limit", "n", 5, "number of recent sessions")

	taskCmd.AddCommand(taskAddCmd)
	taskCmd.AddCommand(taskListCmd)
	taskCmd.AddCommand(taskShowCmd)
	taskCmd.AddCommand(taskEditCmd)
	taskCmd.AddCommand(taskDeleteCmd)
	rootCmd.AddCommand(taskCmd)
}
