// ABOUTME: CLI commands for exporting and importing gym data.
// ABOUTME: Exports JSON, YAML, or Markdown; imports merge a snapshot file into the local log.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/harperreed/gym/internal/merge"
	"github.com/harperreed/gym/internal/storage"
	"github.com/spf13/cobra"
)

var (
	exportOutput string
	exportSince  string
)

var exportCmd = &cobra.Command{
	Use:   "export <format>",
	Short: "Export gym data",
	Long: `Export gym data in various formats.

FORMATS:

  json       The sync document, also accepted by 'gym import'
  yaml       Human-readable tasks, workouts and history
  markdown   Session tables per exercise

EXAMPLES:

  gym export json -o backup.json
  gym export yaml
  gym export markdown --since 2024-01-01`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"json", "yaml", "markdown"},
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			data []byte
			err  error
		)

		switch args[0] {
		case "json":
			data, err = storage.ExportJSON(repo)
		case "yaml":
			data, err = storage.ExportYAML(repo)
		case "markdown", "md":
			var since *time.Time
			if exportSince != "" {
				t, perr := parseDate(exportSince, time.Now())
				if perr != nil {
					return perr
				}
				since = &t
			}
			var md string
			md, err = storage.ExportMarkdown(repo, since)
			data = []byte(md)
		default:
			return fmt.Errorf("unknown format: %s (use json, yaml, or markdown)", args[0])
		}
		if err != nil {
			return fmt.Errorf("export failed: %w", err)
		}

		if exportOutput != "" {
			if err := os.WriteFile(exportOutput, data, 0600); err != nil {
				return fmt.Errorf("failed to write file: %w", err)
			}
			successf(cmd, "Exported to %s", exportOutput)
			return nil
		}
		printf(cmd, "%s\n", data)
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Merge a JSON export into the local log",
	Long: `Merge a JSON export (or a document from an older app version) into
the local log. Records are matched by id, then by name; the newer
lastModified wins and log entries already present are not duplicated.

EXAMPLES:

  gym import backup.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}

		local, err := storage.ExportSnapshot(repo)
		if err != nil {
			return err
		}
		m := &merge.Merger{Logger: logger.WithPrefix("import")}
		plan, err := m.Import(local, data)
		if err != nil {
			return fmt.Errorf("import failed: %w", err)
		}
		res, err := plan.Apply(repo)
		if err != nil {
			return fmt.Errorf("import failed: %w", err)
		}

		successf(cmd, "Imported from %s", args[0])
		printf(cmd, "  Tasks: %d new, %d updated\n", res.TasksInserted, res.TasksUpdated)
		printf(cmd, "  Workouts: %d new, %d updated\n", res.WorkoutsInserted, res.WorkoutsUpdated)
		printf(cmd, "  Log entries: %d new\n", res.LogEntriesInserted)
		if res.Skipped > 0 {
			warnf(cmd, "Skipped %d records that could not be resolved", res.Skipped)
		}

		if res.Changed() {
			pushImported(cmd)
		}
		return nil
	},
}

// pushImported runs one sync pass so imported records reach the remote.
// Imports bypass the outbox, so an empty outbox still needs a push.
func pushImported(cmd *cobra.Command) {
	if proc == nil || !proc.Enabled() || creds == nil || !creds.AutoSync {
		return
	}
	report, err := proc.SyncNow(cmd.Context())
	if err != nil {
		warnf(cmd, "Sync failed: %v", err)
		return
	}
	if report.Err != nil {
		warnf(cmd, "Sync deferred: %v", report.Err)
	}
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file (default: stdout)")
	exportCmd.Flags().StringVar(&exportSince, "since", "", "markdown only: sessions on or after this date")

	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}
