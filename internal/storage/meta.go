// ABOUTME: Installation metadata for SQLite storage: device id, last sync, remote document id.
// ABOUTME: The device id is a ULID generated the first time a store is opened.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	metaDeviceID         = "device_id"
	metaLastSync         = "last_sync"
	metaRemoteDocumentID = "remote_document_id"
)

// NewDeviceID creates a new unique device ID.
func NewDeviceID() string {
	return ulid.Make().String()
}

// loadMeta ensures a device id exists and seeds the lastModified stamper
// from the newest record so stamps stay monotonic across restarts.
func (d *DB) loadMeta() error {
	id, err := d.getMeta(metaDeviceID)
	if err != nil {
		return fmt.Errorf("load device id: %w", err)
	}
	if id == "" {
		id = NewDeviceID()
		if err := d.setMeta(metaDeviceID, id); err != nil {
			return fmt.Errorf("save device id: %w", err)
		}
	}
	d.deviceID = id

	var newest sql.NullInt64
	err = d.db.QueryRow(`
		SELECT MAX(m) FROM (
			SELECT MAX(last_modified) AS m FROM workouts
			UNION ALL SELECT MAX(last_modified) FROM tasks
			UNION ALL SELECT MAX(last_modified) FROM log_entries
		)`).Scan(&newest)
	if err != nil {
		return fmt.Errorf("load newest stamp: %w", err)
	}
	d.stamp.observe(newest.Int64)
	return nil
}

func (d *DB) getMeta(key string) (string, error) {
	var value string
	err := d.db.QueryRow("SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func (d *DB) setMeta(key, value string) error {
	_, err := d.db.Exec(`
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

// DeviceID returns this installation's device id.
func (d *DB) DeviceID() string {
	return d.deviceID
}

// LastSync returns the time of the last successful sync, or the zero time.
func (d *DB) LastSync() (time.Time, error) {
	v, err := d.getMeta(metaLastSync)
	if err != nil {
		return time.Time{}, fmt.Errorf("get last sync: %w", err)
	}
	return parseMillis(v), nil
}

// SetLastSync records the time of a successful sync.
func (d *DB) SetLastSync(t time.Time) error {
	if err := d.setMeta(metaLastSync, strconv.FormatInt(t.UnixMilli(), 10)); err != nil {
		return fmt.Errorf("set last sync: %w", err)
	}
	return nil
}

// RemoteDocumentID returns the remembered remote document id, if any.
func (d *DB) RemoteDocumentID() (string, error) {
	v, err := d.getMeta(metaRemoteDocumentID)
	if err != nil {
		return "", fmt.Errorf("get remote document id: %w", err)
	}
	return v, nil
}

// SetRemoteDocumentID remembers the remote document id. An empty id forgets it.
func (d *DB) SetRemoteDocumentID(id string) error {
	var err error
	if id == "" {
		_, err = d.db.Exec("DELETE FROM meta WHERE key = ?", metaRemoteDocumentID)
	} else {
		err = d.setMeta(metaRemoteDocumentID, id)
	}
	if err != nil {
		return fmt.Errorf("set remote document id: %w", err)
	}
	return nil
}

func parseMillis(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil || ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
