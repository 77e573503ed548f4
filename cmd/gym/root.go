// ABOUTME: Root Cobra command for the gym CLI.
// ABOUTME: Opens storage and the sync outbox in PersistentPreRunE and closes them afterwards.
package main

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/harperreed/gym/internal/config"
	"github.com/harperreed/gym/internal/remote"
	"github.com/harperreed/gym/internal/storage"
	gymsync "github.com/harperreed/gym/internal/sync"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	dataDirFlag string
	backendFlag string
	debugFlag   bool
)

var (
	cfg         *config.Config
	creds       *gymsync.Config
	repo        storage.Repository
	remoteStore remote.Store
	engine      *gymsync.Engine
	proc        *gymsync.Processor
	logger      = log.NewWithOptions(os.Stderr, log.Options{Prefix: "gym"})
)

var rootCmd = &cobra.Command{
	Use:   "gym",
	Short: "Workout log with offline-first sync",
	Long: `Gym is a CLI for logging strength training.

You keep a library of exercises (tasks), group them into workouts, and log
the sets you did. Everything is stored locally first and synced to a
private gist (or Charm Cloud) in the background.

QUICK START:

  $ gym task add "Bench Press" --sets 3 --reps 8
  $ gym workout add "Push Day" --task "Bench Press"
  $ gym log "bench press" 8x60 8x60 6x62.5
  $ gym history "bench press"

SYNC:

  $ gym sync login      # Store a GitHub token with gist scope
  $ gym sync status     # Pending changes and last sync
  $ gym sync daemon     # Keep syncing in the background

  Changes are queued in an outbox and pushed after every command. When
  you are offline they wait and go out on the next successful attempt.

MCP INTEGRATION:

  Run 'gym mcp' to serve the log to an AI assistant over stdio:

  {
    "mcpServers": {
      "gym": { "command": "gym", "args": ["mcp"] }
    }
  }`,
	SilenceUsage:      true,
	PersistentPreRunE: openApp,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeApp()
	},
}

// Execute runs the root command. Storage is closed even when a command fails,
// since cobra skips the post-run hook on errors.
func Execute() error {
	err := rootCmd.Execute()
	if cerr := closeApp(); err == nil {
		err = cerr
	}
	return err
}

// needsStorage reports whether cmd works on the local log.
func needsStorage(cmd *cobra.Command) bool {
	if cmd.Annotations["storage"] == "none" {
		return false
	}
	switch cmd.Name() {
	case "help", "completion", "version":
		return false
	}
	return true
}

func openApp(cmd *cobra.Command, args []string) error {
	if debugFlag {
		logger.SetLevel(log.DebugLevel)
	} else {
		logger.SetLevel(log.WarnLevel)
	}
	if w := daemonLogWriter(cmd); w != nil {
		daemonLog = w
		logger.SetOutput(w)
	}
	log.SetDefault(logger)

	if !needsStorage(cmd) {
		return nil
	}

	c, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "load config")
	}
	if dataDirFlag != "" {
		c.DataDir = dataDirFlag
	}
	if backendFlag != "" {
		c.Backend = backendFlag
	}
	cfg = c

	r, err := cfg.OpenStorage()
	if err != nil {
		return errors.Wrap(err, "open storage")
	}
	repo = r

	creds, err = gymsync.LoadConfig()
	if err != nil {
		return errors.Wrap(err, "load sync config")
	}

	return setupSync()
}

// setupSync builds the outbox processor. A missing or unreachable remote
// leaves the processor inert; local commands still work.
func setupSync() error {
	maxRetries := cfg.GetMaxRetries()
	backoff, err := cfg.GetRetryBackoff()
	if err != nil {
		return err
	}

	var syncer gymsync.Syncer
	store, err := cfg.OpenRemote(repo, creds, logger.WithPrefix("remote"))
	if err != nil {
		logger.Warn("sync disabled", "err", err)
	}
	if store != nil {
		remoteStore = store
		engine = gymsync.NewEngine(repo, store, gymsync.WithLogger(logger.WithPrefix("sync")))
		syncer = engine
	}

	proc = gymsync.NewProcessor(repo, syncer, gymsync.Options{
		MaxRetries: maxRetries,
		Backoff:    backoff,
		Logger:     logger.WithPrefix("outbox"),
	})
	return nil
}

func closeRemote() error {
	closer, ok := remoteStore.(io.Closer)
	remoteStore, engine = nil, nil
	if ok {
		return closer.Close()
	}
	return nil
}

func closeApp() error {
	firstErr := closeRemote()
	if repo != nil {
		if err := repo.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if daemonLog != nil {
		_ = daemonLog.Close()
		daemonLog = nil
		logger.SetOutput(os.Stderr)
	}
	cfg, creds, repo, proc = nil, nil, nil, nil
	return firstErr
}

// flushOutbox pushes queued changes after a mutation. Failures leave the
// changes in the outbox and only print a warning.
func flushOutbox(cmd *cobra.Command) {
	if proc == nil || !proc.Enabled() || creds == nil || !creds.AutoSync {
		return
	}
	report, err := proc.Drain(cmd.Context())
	if err != nil {
		warnf(cmd, "Sync failed: %v", err)
		return
	}
	if report.Err != nil {
		warnf(cmd, "Sync deferred, changes are queued: %v", report.Err)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "data directory (default ~/.local/share/gym)")
	rootCmd.PersistentFlags().StringVar(&backendFlag, "backend", "", "storage backend: sqlite or badger")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug logging")
}
