// ABOUTME: Charm KV-backed remote store for the sync document.
// ABOUTME: Keeps the snapshot under one key and syncs it through Charm Cloud.
package remote

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/charmbracelet/charm/kv"
	"github.com/charmbracelet/log"
	"github.com/dgraph-io/badger/v3"
	"github.com/pkg/errors"
)

const (
	DefaultCharmHost = "charm.2389.dev"

	charmDBName      = "gym"
	charmSnapshotKey = "gym:snapshot"
)

// kvStore is the subset of *kv.KV the charm store needs.
type kvStore interface {
	Sync() error
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
	IsReadOnly() bool
	Close() error
}

// CharmStore keeps the sync document in a Charm KV database.
type CharmStore struct {
	mu     sync.Mutex
	kv     kvStore
	logger *log.Logger
	upsert guard
}

// OpenCharm opens the gym KV database on host.
func OpenCharm(host string, logger *log.Logger) (*CharmStore, error) {
	if host == "" {
		host = DefaultCharmHost
	}
	// Set server before opening KV
	if err := os.Setenv("CHARM_HOST", host); err != nil {
		return nil, err
	}
	db, err := kv.OpenWithDefaultsFallback(charmDBName)
	if err != nil {
		return nil, fmt.Errorf("open charm kv: %w", err)
	}
	return newCharmStore(db, logger), nil
}

func newCharmStore(db kvStore, logger *log.Logger) *CharmStore {
	if logger == nil {
		logger = log.Default().WithPrefix("remote")
	}
	return &CharmStore{kv: db, logger: logger}
}

// Fetch pulls from Charm Cloud and returns the stored snapshot, or nil.
func (c *CharmStore) Fetch(ctx context.Context) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, contextErr(ctx, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.kv.IsReadOnly() {
		if err := c.kv.Sync(); err != nil {
			return nil, &TransientError{Network: true, Err: errors.Wrap(err, "syncing charm kv")}
		}
	}

	data, err := c.kv.Get([]byte(charmSnapshotKey))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "reading snapshot key")
	}
	return &Document{ID: charmSnapshotKey, Content: data}, nil
}

// Upsert stores payload and pushes it to Charm Cloud.
func (c *CharmStore) Upsert(ctx context.Context, payload []byte) error {
	if !c.upsert.acquire() {
		return ErrUpsertInFlight
	}
	defer c.upsert.release()

	if err := ctx.Err(); err != nil {
		return contextErr(ctx, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.kv.IsReadOnly() {
		return &TransientError{Err: errors.New("charm kv is locked by another process")}
	}
	if err := c.kv.Set([]byte(charmSnapshotKey), payload); err != nil {
		return errors.Wrap(err, "writing snapshot key")
	}
	if err := c.kv.Sync(); err != nil {
		return &TransientError{Network: true, Err: errors.Wrap(err, "syncing charm kv")}
	}
	c.logger.Debug("pushed snapshot to charm", "bytes", len(payload))
	return nil
}

// Close closes the KV database.
func (c *CharmStore) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.kv.Close()
}
