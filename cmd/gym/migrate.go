// ABOUTME: CLI command for moving the local log between storage backends.
// ABOUTME: Copies everything, including the outbox and sync state, into an empty destination.
package main

import (
	"fmt"

	"github.com/harperreed/gym/internal/config"
	"github.com/harperreed/gym/internal/storage"
	"github.com/spf13/cobra"
)

var (
	migrateTo    string
	migrateForce bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate --to <backend>",
	Short: "Move data to another storage backend",
	Long: `Copy all data from the current backend into another one.

Ids, lastModified stamps, deletions and queued changes are kept, so sync
carries on where it left off. The destination keeps its own device id.

BACKENDS:

  sqlite   Single file at <data-dir>/gym.db (default)
  badger   Directory at <data-dir>/badger

EXAMPLES:

  gym migrate --to badger
  gym --backend badger migrate --to sqlite

After migrating, set "backend" in ~/.config/gym/config.json or pass
--backend to use the new store.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		from := cfg.GetBackend()
		switch migrateTo {
		case config.BackendSQLite, config.BackendBadger:
		default:
			return fmt.Errorf("unknown backend: %q (use sqlite or badger)", migrateTo)
		}
		if migrateTo == from {
			return fmt.Errorf("already using %s", from)
		}

		has, err := cfg.HasData(migrateTo)
		if err != nil {
			return err
		}
		if has && !migrateForce {
			path, _ := cfg.BackendPath(migrateTo)
			return fmt.Errorf("destination %s already has data (use --force to merge into it)", path)
		}

		dst, err := cfg.OpenBackend(migrateTo)
		if err != nil {
			return fmt.Errorf("open %s: %w", migrateTo, err)
		}
		defer dst.Close()

		summary, err := storage.MigrateData(repo, dst)
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}

		successf(cmd, "Migrated %s → %s", from, migrateTo)
		printf(cmd, "  Tasks: %d\n", summary.Tasks)
		printf(cmd, "  Workouts: %d\n", summary.Workouts)
		printf(cmd, "  Log entries: %d\n", summary.LogEntries)
		printf(cmd, "  Deletions: %d\n", summary.Tombstones)
		printf(cmd, "  Queued changes: %d\n", summary.Outbox)
		return nil
	},
}

func init() {
	migrateCmd.Flags().StringVar(&migrateTo, "to", "", "destination backend (sqlite or badger)")
	migrateCmd.Flags().BoolVar(&migrateForce, "force", false, "migrate even if the destination has data")
	_ = migrateCmd.MarkFlagRequired("to")
	rootCmd.AddCommand(migrateCmd)
}
