// ABOUTME: LogEntry CRUD operations for SQLite storage.
// ABOUTME: Sets are stored as JSON; deleted entries leave a fingerprint tombstone.
package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/harperreed/gym/internal/fingerprint"
	"github.com/harperreed/gym/internal/models"
)

const logEntryColumns = `id, task_id, date, sets, last_modified, device_id`

// ListLogEntries returns every log entry ordered by id.
func (d *DB) ListLogEntries() ([]*models.LogEntry, error) {
	return d.queryLogEntries(`SELECT ` + logEntryColumns + ` FROM log_entries ORDER BY id`)
}

// ListLogEntriesByTask returns a task's log entries, newest first.
func (d *DB) ListLogEntriesByTask(taskID int64) ([]*models.LogEntry, error) {
	return d.queryLogEntries(`SELECT `+logEntryColumns+` FROM log_entries WHERE task_id = ? ORDER BY date DESC, id DESC`, taskID)
}

func (d *DB) queryLogEntries(query string, args ...any) ([]*models.LogEntry, error) {
	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list log entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.LogEntry
	for rows.Next() {
		e, err := scanLogEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan log entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetLogEntry retrieves a log entry by id.
func (d *DB) GetLogEntry(id int64) (*models.LogEntry, error) {
	e, err := scanLogEntry(d.db.QueryRow(`SELECT `+logEntryColumns+` FROM log_entries WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("log entry %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get log entry: %w", err)
	}
	return e, nil
}

// CreateLogEntry records a new log entry for an existing task.
func (d *DB) CreateLogEntry(e *models.LogEntry) (int64, error) {
	task, err := d.GetTask(e.TaskID)
	if err != nil {
		return 0, fmt.Errorf("create log entry: %w", err)
	}
	e.LastModified = d.stamp.next()
	e.DeviceID = d.deviceID

	err = d.withTx(func(tx *sql.Tx) error {
		id, err := insertLogEntry(tx, e)
		if err != nil {
			return err
		}
		e.ID = id
		key := string(fingerprint.Fingerprint(e, task.Name, d.location))
		if err := clearTombstoneTx(tx, models.EntityLogEntry, key); err != nil {
			return err
		}
		_, err = enqueueTx(tx, models.OpCreate, models.EntityLogEntry, e, e.LastModified)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("create log entry: %w", err)
	}
	return e.ID, nil
}

// UpdateLogEntry replaces an entry's date and sets.
func (d *DB) UpdateLogEntry(e *models.LogEntry) error {
	e.LastModified = d.stamp.next()
	e.DeviceID = d.deviceID
	sets, err := encodeSets(e.Sets)
	if err != nil {
		return fmt.Errorf("update log entry: %w", err)
	}

	err = d.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`
			UPDATE log_entries SET task_id = ?, date = ?, sets = ?, last_modified = ?, device_id = ?
			WHERE id = ?
		`, e.TaskID, e.Date, sets, e.LastModified, e.DeviceID, e.ID)
		if err != nil {
			return err
		}
		if err := requireAffected(res, "log entry", e.ID); err != nil {
			return err
		}
		_, err = enqueueTx(tx, models.OpUpdate, models.EntityLogEntry, e, e.LastModified)
		return err
	})
	if err != nil {
		return fmt.Errorf("update log entry: %w", err)
	}
	return nil
}

// DeleteLogEntry removes a log entry.
func (d *DB) DeleteLogEntry(id int64) error {
	e, err := d.GetLogEntry(id)
	if err != nil {
		return fmt.Errorf("delete log entry: %w", err)
	}
	var taskName string
	if task, err := d.GetTask(e.TaskID); err == nil {
		taskName = task.Name
	}
	now := d.stamp.next()

	err = d.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM log_entries WHERE id = ?", id); err != nil {
			return err
		}
		if taskName != "" {
			key := string(fingerprint.Fingerprint(e, taskName, d.location))
			if err := putTombstoneTx(tx, models.EntityLogEntry, key, now); err != nil {
				return err
			}
		}
		_, err := enqueueTx(tx, models.OpDelete, models.EntityLogEntry, e, now)
		return err
	})
	if err != nil {
		return fmt.Errorf("delete log entry: %w", err)
	}
	return nil
}

// ImportLogEntry stores a log entry from sync, keeping its stamps. A zero id inserts.
func (d *DB) ImportLogEntry(e *models.LogEntry) (int64, error) {
	d.stamp.observe(e.LastModified)
	var id int64
	err := d.withTx(func(tx *sql.Tx) error {
		if e.ID == 0 {
			var err error
			id, err = insertLogEntry(tx, e)
			return err
		}
		sets, err := encodeSets(e.Sets)
		if err != nil {
			return err
		}
		id = e.ID
		_, err = tx.Exec(`
			INSERT INTO log_entries (`+logEntryColumns+`) VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET task_id = excluded.task_id, date = excluded.date,
				sets = excluded.sets, last_modified = excluded.last_modified, device_id = excluded.device_id
		`, e.ID, e.TaskID, e.Date, sets, e.LastModified, e.DeviceID)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("import log entry: %w", err)
	}
	return id, nil
}

func insertLogEntry(tx *sql.Tx, e *models.LogEntry) (int64, error) {
	sets, err := encodeSets(e.Sets)
	if err != nil {
		return 0, err
	}
	res, err := tx.Exec(`
		INSERT INTO log_entries (task_id, date, sets, last_modified, device_id)
		VALUES (?, ?, ?, ?, ?)
	`, e.TaskID, e.Date, sets, e.LastModified, e.DeviceID)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func encodeSets(sets []models.Set) (string, error) {
	if sets == nil {
		sets = []models.Set{}
	}
	data, err := json.Marshal(sets)
	if err != nil {
		return "", fmt.Errorf("encode sets: %w", err)
	}
	return string(data), nil
}

func scanLogEntry(row rowScanner) (*models.LogEntry, error) {
	var e models.LogEntry
	var sets string
	if err := row.Scan(&e.ID, &e.TaskID, &e.Date, &sets, &e.LastModified, &e.DeviceID); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(sets), &e.Sets); err != nil {
		return nil, fmt.Errorf("decode sets: %w", err)
	}
	if e.Sets == nil {
		e.Sets = []models.Set{}
	}
	return &e, nil
}
