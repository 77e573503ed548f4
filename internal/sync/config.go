// ABOUTME: Sync credentials stored next to the app config.
// ABOUTME: Holds the bearer token for the remote document API; no token means sync is off.
package sync

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Config stores sync settings.
type Config struct {
	Token string `json:"token"`
	// Server overrides the API endpoint, e.g. for GitHub Enterprise.
	Server string `json:"server,omitempty"`
	// AutoSync drains the outbox after every local change.
	AutoSync bool `json:"auto_sync"`
}

// ConfigDir returns the XDG config directory for gym.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "gym")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "gym")
}

// ConfigPath returns the path to the sync config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "sync.json")
}

// LoadConfig loads sync config from disk. A missing file yields an
// unconfigured Config with AutoSync on.
func LoadConfig() (*Config, error) {
	cfg := &Config{AutoSync: true}
	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveConfig persists sync config to disk, readable only by the owner.
func SaveConfig(cfg *Config) error {
	if err := os.MkdirAll(ConfigDir(), 0750); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(ConfigPath(), data, 0600)
}

// IsConfigured returns true if a token is present.
func (c *Config) IsConfigured() bool {
	return c.Token != ""
}

// ClearConfig removes sync config file.
func ClearConfig() error {
	path := ConfigPath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return os.Remove(path)
}
