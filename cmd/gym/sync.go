// ABOUTME: CLI commands for syncing the gym log to the remote document.
// ABOUTME: Supports login, logout, status, now, pull, retry, diff, and daemon operations.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/harperreed/gym/internal/config"
	"github.com/harperreed/gym/internal/remote"
	"github.com/harperreed/gym/internal/snapshot"
	"github.com/harperreed/gym/internal/storage"
	gymsync "github.com/harperreed/gym/internal/sync"
	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	loginToken    string
	loginServer   string
	daemonLogFile string
	daemonLog     *lumberjack.Logger
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	Aliases: []string{"s"},
	Short:   "Sync the gym log across devices",
	Long: `Sync the gym log across devices through a private GitHub gist
(or Charm Cloud when "remote" is "charm" in config.json).

Every change is queued in a local outbox and pushed after each command.
A push fetches the remote document, merges it (newest lastModified wins,
log entries are never duplicated) and uploads the merged result.

GETTING STARTED:

  1. Create a GitHub token with the "gist" scope.
  2. gym sync login
  3. Run the same on your other devices.

COMMANDS:

  login    Store the token and run a first sync
  logout   Forget the token
  status   Show queued changes, failures and the last sync
  now      Sync immediately
  pull     Merge remote changes without pushing
  retry    Requeue changes that hit the retry limit
  diff     Compare the local log with the remote document
  daemon   Keep syncing in the background`,
}

var syncLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store a GitHub token and run a first sync",
	Long: `Store a GitHub token with the "gist" scope and run a first sync.

The token is written to ~/.config/gym/sync.json with mode 0600. Without
--token you are prompted for it.

Examples:
  gym sync login
  gym sync login --token ghp_xxx
  gym sync login --server https://github.example.com/api/v3/`,
	RunE: func(cmd *cobra.Command, args []string) error {
		token := strings.TrimSpace(loginToken)
		if token == "" {
			err := huh.NewInput().
				Title("GitHub token").
				Description("Needs the gist scope").
				EchoMode(huh.EchoModePassword).
				Value(&token).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("token is required")
					}
					return nil
				}).
				Run()
			if err != nil {
				return err
			}
			token = strings.TrimSpace(token)
		}

		next := &gymsync.Config{Token: token, Server: loginServer, AutoSync: true}
		if creds != nil {
			next.AutoSync = creds.AutoSync
		}

		if cfg.GetRemote() == config.RemoteGist {
			probe, err := remote.NewGistStore(repo, remote.GistOptions{
				Token:   next.Token,
				BaseURL: next.Server,
				Logger:  logger.WithPrefix("remote"),
			})
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			err = probe.Ping(ctx)
			cancel()
			if err != nil {
				if remote.IsAuth(err) {
					return fmt.Errorf("token rejected: %w", err)
				}
				warnf(cmd, "Could not reach the remote, saving anyway: %v", err)
			}
		}

		if err := gymsync.SaveConfig(next); err != nil {
			return fmt.Errorf("failed to save sync config: %w", err)
		}
		creds = next
		successf(cmd, "Saved credentials to %s", gymsync.ConfigPath())

		if err := closeRemote(); err != nil {
			return err
		}
		if err := setupSync(); err != nil {
			return err
		}
		report, err := proc.SyncNow(cmd.Context())
		if err != nil {
			return err
		}
		printReport(cmd, report)
		return nil
	},
}

var syncLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the sync token",
	Long: `Forget the sync token. Local data and queued changes are kept and
go out after the next login.`,
	Annotations: map[string]string{"storage": "none"},
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := gymsync.ClearConfig(); err != nil {
			return fmt.Errorf("failed to clear sync config: %w", err)
		}
		successf(cmd, "Logged out")
		return nil
	},
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync status",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := proc.Status()
		if err != nil {
			return err
		}

		printf(cmd, "Remote: %s\n", cfg.GetRemote())
		if !st.Enabled {
			yellow.Fprintln(cmd.OutOrStdout(), "Sync not configured")
			printf(cmd, "  Run 'gym sync login' to connect.\n")
		} else {
			green.Fprintln(cmd.OutOrStdout(), "Sync configured")
			if creds != nil && !creds.AutoSync {
				printf(cmd, "  Auto sync: off\n")
			}
		}
		if id, err := repo.RemoteDocumentID(); err == nil && id != "" {
			printf(cmd, "  Document: %s\n", id)
		}
		printf(cmd, "  Device: %s\n", repo.DeviceID())

		printf(cmd, "\n  Pending: %d\n", st.Pending)
		if st.Failed > 0 {
			red.Fprintf(cmd.OutOrStdout(), "  Failed: %d (run 'gym sync retry')\n", st.Failed)
		} else {
			printf(cmd, "  Failed: 0\n")
		}
		if st.LastSync.IsZero() {
			printf(cmd, "  Last sync: never\n")
		} else {
			printf(cmd, "  Last sync: %s\n", st.LastSync.Local().Format("2006-01-02 15:04:05"))
		}
		if st.LastError != "" {
			printf(cmd, "  Last error: %s %s\n", truncate(st.LastError, 60),
				faint.Sprint(st.LastErrorAt.Local().Format("2006-01-02 15:04")))
		}
		return nil
	},
}

var syncNowCmd = &cobra.Command{
	Use:   "now",
	Short: "Sync immediately",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireSync(); err != nil {
			return err
		}
		report, err := proc.SyncNow(cmd.Context())
		if err != nil {
			return err
		}
		printReport(cmd, report)
		if report.Err != nil {
			return fmt.Errorf("sync failed: %w", report.Err)
		}
		return nil
	},
}

var syncPullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Merge remote changes without pushing",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireSync(); err != nil {
			return err
		}
		res, err := engine.Pull(cmd.Context())
		if err != nil {
			return fmt.Errorf("pull failed: %w", err)
		}

		p := res.Pulled
		if !p.Changed() {
			successf(cmd, "Already up to date")
		} else {
			successf(cmd, "Pulled remote changes")
			printf(cmd, "  Tasks: %d new, %d updated\n", p.TasksInserted, p.TasksUpdated)
			printf(cmd, "  Workouts: %d new, %d updated\n", p.WorkoutsInserted, p.WorkoutsUpdated)
			printf(cmd, "  Log entries: %d new\n", p.LogEntriesInserted)
		}
		if len(res.Skipped) > 0 {
			warnf(cmd, "Skipped %d remote records", len(res.Skipped))
			for _, v := range res.Skipped {
				printf(cmd, "    %s\n", faint.Sprint(v.Error()))
			}
		}
		return nil
	},
}

var syncRetryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Requeue failed changes",
	Long: `Move changes that hit the retry limit back into the queue with a
fresh retry budget, then sync.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := repo.RetryFailedOutbox()
		if err != nil {
			return fmt.Errorf("failed to requeue: %w", err)
		}
		successf(cmd, "Requeued %d changes", n)

		if !proc.Enabled() {
			return nil
		}
		proc.ResetAuth()
		report, err := proc.SyncNow(cmd.Context())
		if err != nil {
			return err
		}
		printReport(cmd, report)
		return nil
	},
}

var syncDiffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Compare the local log with the remote document",
	Long: `Show a line diff between the remote document and what the next push
would upload. Lines starting with - are only remote, + only local.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireSync(); err != nil {
			return err
		}

		content, err := engine.Remote(cmd.Context())
		if err != nil {
			return fmt.Errorf("fetch remote: %w", err)
		}
		remoteDoc, err := snapshot.Decode(content)
		if err != nil {
			return fmt.Errorf("remote document is invalid: %w", err)
		}
		localDoc, err := storage.ExportSnapshot(repo)
		if err != nil {
			return err
		}

		before, after, err := comparable(remoteDoc, localDoc)
		if err != nil {
			return err
		}
		if before == after {
			successf(cmd, "No differences")
			return nil
		}
		printDiff(cmd, lineDiff(before, after))
		return nil
	},
}

var syncDaemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Keep syncing in the background",
	Long: `Run in the foreground and keep the remote up to date.

The daemon drains the outbox on an interval ("sync_interval" in
config.json, default 30s), whenever the data directory changes, and as
soon as the remote is reachable again after an outage.

Examples:
  gym sync daemon
  gym sync daemon --log-file ~/.local/state/gym/daemon.log`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireSync(); err != nil {
			return err
		}
		interval, err := cfg.GetSyncInterval()
		if err != nil {
			return err
		}

		s := gymsync.NewScheduler(proc)
		s.Interval = interval
		s.WatchDir = cfg.GetDataDir()
		s.Logger = logger.WithPrefix("scheduler")
		if p, ok := remoteStore.(remote.Pinger); ok {
			s.Pinger = p
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		successf(cmd, "Sync daemon running every %s (Ctrl-C to stop)", interval)
		return s.Run(ctx)
	},
}

// daemonLogWriter returns a rotating log file for the daemon, or nil.
func daemonLogWriter(cmd *cobra.Command) *lumberjack.Logger {
	if cmd != syncDaemonCmd || daemonLogFile == "" {
		return nil
	}
	return &lumberjack.Logger{
		Filename:   config.ExpandPath(daemonLogFile),
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     28,
	}
}

func requireSync() error {
	if proc == nil || !proc.Enabled() || engine == nil {
		return fmt.Errorf("sync not configured: run 'gym sync login'")
	}
	return nil
}

func printReport(cmd *cobra.Command, r *gymsync.DrainReport) {
	switch {
	case r.Skipped != "":
		warnf(cmd, "Sync skipped: %s", r.Skipped)
	case r.Err != nil:
		warnf(cmd, "Sync incomplete: %v", r.Err)
	default:
		successf(cmd, "Synced")
	}
	if r.Synced+r.Retried+r.Failed+r.Deferred > 0 {
		printf(cmd, "  %s\n", faint.Sprintf("synced %d, retrying %d, failed %d, waiting %d",
			r.Synced, r.Retried, r.Failed, r.Deferred))
	}
}

// comparable renders both snapshots the same way, ignoring sync bookkeeping.
func comparable(a, b *snapshot.Snapshot) (string, string, error) {
	render := func(s *snapshot.Snapshot) (string, error) {
		c := s.Clone()
		c.LastSync = 0
		data, err := snapshot.Encode(c)
		return string(data), err
	}
	before, err := render(a)
	if err != nil {
		return "", "", err
	}
	after, err := render(b)
	return before, after, err
}

func lineDiff(before, after string) []diffmatchpatch.Diff {
	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = time.Hour

	a, b, lines := dmp.DiffLinesToRunes(before, after)
	diffs := dmp.DiffMainRunes(a, b, false)
	return dmp.DiffCharsToLines(diffs, lines)
}

func printDiff(cmd *cobra.Command, diffs []diffmatchpatch.Diff) {
	out := cmd.OutOrStdout()
	for _, d := range diffs {
		lines := strings.Split(strings.TrimSuffix(d.Text, "\n"), "\n")
		for _, line := range lines {
			switch d.Type {
			case diffmatchpatch.DiffInsert:
				green.Fprintf(out, "+ %s\n", line)
			case diffmatchpatch.DiffDelete:
				red.Fprintf(out, "- %s\n", line)
			}
		}
	}
}

func init() {
	syncLoginCmd.Flags().StringVar(&loginToken, "token", "", "GitHub token (prompted when empty)")
	syncLoginCmd.Flags().StringVar(&loginServer, "server", "", "API base URL for GitHub Enterprise")
	syncDaemonCmd.Flags().StringVar(&daemonLogFile, "log-file", "", "write logs to a rotating file")

	syncCmd.AddCommand(syncLoginCmd)
	syncCmd.AddCommand(syncLogoutCmd)
	syncCmd.AddCommand(syncStatusCmd)
	syncCmd.AddCommand(syncNowCmd)
	syncCmd.AddCommand(syncPullCmd)
	syncCmd.AddCommand(syncRetryCmd)
	syncCmd.AddCommand(syncDiffCmd)
	syncCmd.AddCommand(syncDaemonCmd)
	rootCmd.AddCommand(syncCmd)
}
