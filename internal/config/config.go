// ABOUTME: Gym configuration management with backend and remote selection.
// ABOUTME: Handles settings, sync tuning, and storage and remote store factory functions.

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/harperreed/gym/internal/remote"
	"github.com/harperreed/gym/internal/storage"
	gymsync "github.com/harperreed/gym/internal/sync"
)

const (
	BackendSQLite = "sqlite"
	BackendBadger = "badger"

	RemoteGist  = "gist"
	RemoteCharm = "charm"
)

// Config stores gym tool configuration.
type Config struct {
	// Backend selects the storage backend: "sqlite" (default) or "badger".
	Backend string `json:"backend,omitempty"`

	// DataDir is the root directory for data storage.
	// SQLite puts gym.db here. Badger puts its files under badger/.
	// Supports ~ expansion for home directory. Defaults to ~/.local/share/gym.
	DataDir string `json:"data_dir,omitempty"`

	// Remote selects where the sync document lives: "gist" (default) or "charm".
	Remote    string `json:"remote,omitempty"`
	CharmHost string `json:"charm_host,omitempty"`

	// SyncInterval is how often the daemon drains, as a Go duration.
	SyncInterval string `json:"sync_interval,omitempty"`
	MaxRetries   int    `json:"max_retries,omitempty"`
	// RetryBackoff is the first retry delay, doubling per failure. "0" disables it.
	RetryBackoff string `json:"retry_backoff,omitempty"`

	GistDescription string `json:"gist_description,omitempty"`
	GistFilename    string `json:"gist_filename,omitempty"`
}

// GetBackend returns the configured backend, defaulting to "sqlite".
func (c *Config) GetBackend() string {
	if c.Backend == "" {
		return BackendSQLite
	}
	return c.Backend
}

// GetRemote returns the configured remote, defaulting to "gist".
func (c *Config) GetRemote() string {
	if c.Remote == "" {
		return RemoteGist
	}
	return c.Remote
}

// GetDataDir returns the configured data directory with ~ expanded,
// defaulting to the standard XDG data directory.
func (c *Config) GetDataDir() string {
	if c.DataDir == "" {
		return storage.DataDir()
	}
	return ExpandPath(c.DataDir)
}

// GetSyncInterval returns the daemon interval, defaulting to 30s.
func (c *Config) GetSyncInterval() (time.Duration, error) {
	return parseDuration("sync_interval", c.SyncInterval, gymsync.DefaultInterval)
}

// GetRetryBackoff returns the first retry delay, defaulting to 30s.
func (c *Config) GetRetryBackoff() (time.Duration, error) {
	return parseDuration("retry_backoff", c.RetryBackoff, gymsync.DefaultBackoff)
}

// GetMaxRetries returns the retry ceiling, defaulting to 3.
func (c *Config) GetMaxRetries() int {
	if c.MaxRetries <= 0 {
		return gymsync.DefaultMaxRetries
	}
	return c.MaxRetries
}

func parseDuration(field, v string, def time.Duration) (time.Duration, error) {
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, v, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s %q: must not be negative", field, v)
	}
	return d, nil
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) string {
	if path == "" {
		return ""
	}
	if path == "~" {
		home, _ := os.UserHomeDir()
		return home
	}
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// OpenStorage creates a Repository implementation based on the configured backend.
func (c *Config) OpenStorage(opts ...storage.Option) (storage.Repository, error) {
	return c.OpenBackend(c.GetBackend(), opts...)
}

// BackendPath returns where the named backend keeps its data: the
// database file for sqlite, the directory for badger.
func (c *Config) BackendPath(backend string) (string, error) {
	dataDir := c.GetDataDir()

	switch backend {
	case BackendSQLite:
		return filepath.Join(dataDir, "gym.db"), nil
	case BackendBadger:
		return filepath.Join(dataDir, "badger"), nil
	default:
		return "", fmt.Errorf("unknown backend: %q", backend)
	}
}

// HasData reports whether the named backend already has files on disk.
func (c *Config) HasData(backend string) (bool, error) {
	path, err := c.BackendPath(backend)
	if err != nil {
		return false, err
	}
	if backend == BackendBadger {
		return storage.IsDirNonEmpty(path)
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.Size() > 0, nil
}

// OpenBackend opens the named backend under the configured data directory.
func (c *Config) OpenBackend(backend string, opts ...storage.Option) (storage.Repository, error) {
	path, err := c.BackendPath(backend)
	if err != nil {
		return nil, err
	}

	if backend == BackendBadger {
		return storage.OpenBadger(path, opts...)
	}
	return storage.Open(path, opts...)
}

// OpenRemote creates the configured remote store. It returns nil when
// creds carry no token, which leaves sync inert.
func (c *Config) OpenRemote(ids remote.DocumentIDStore, creds *gymsync.Config, logger *log.Logger) (remote.Store, error) {
	switch c.GetRemote() {
	case RemoteGist:
		if creds == nil || !creds.IsConfigured() {
			return nil, nil
		}
		store, err := remote.NewGistStore(ids, remote.GistOptions{
			Token:       creds.Token,
			BaseURL:     creds.Server,
			Description: c.GistDescription,
			Filename:    c.GistFilename,
			Logger:      logger,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	case RemoteCharm:
		store, err := remote.OpenCharm(c.CharmHost, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown remote: %q", c.Remote)
	}
}

// GetConfigPath returns the config file path.
func GetConfigPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, _ := os.UserHomeDir()
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "gym", "config.json")
}

// Load reads config from disk.
func Load() (*Config, error) {
	path := GetConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes config to disk.
func (c *Config) Save() error {
	path := GetConfigPath()
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
