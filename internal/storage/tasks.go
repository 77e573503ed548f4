// ABOUTME: Task CRUD operations for SQLite storage.
// ABOUTME: Deleting a task cascades to its log entries and leaves workout references dangling.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/harperreed/gym/internal/models"
)

const taskColumns = `id, name, tips, instructions, video_ref, default_sets, default_reps, order_index, last_modified, device_id`

// ListTasks returns all tasks in display order.
func (d *DB) ListTasks() ([]*models.Task, error) {
	rows, err := d.db.Query(`SELECT ` + taskColumns + ` FROM tasks ORDER BY order_index, id`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// GetTask retrieves a task by id.
func (d *DB) GetTask(id int64) (*models.Task, error) {
	t, err := scanTask(d.db.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// FindTaskByName returns the lowest-id task whose name matches case-insensitively.
func (d *DB) FindTaskByName(name string) (*models.Task, error) {
	tasks, err := d.ListTasks()
	if err != nil {
		return nil, err
	}
	if t := findTaskByName(tasks, name); t != nil {
		return t, nil
	}
	return nil, fmt.Errorf("task %q: %w", name, ErrNotFound)
}

func findTaskByName(tasks []*models.Task, name string) *models.Task {
	key := models.NameKey(name)
	var found *models.Task
	for _, t := range tasks {
		if models.NameKey(t.Name) == key && (found == nil || t.ID < found.ID) {
			found = t
		}
	}
	return found
}

// CreateTask stores a new task, stamping it and queueing it for sync.
func (d *DB) CreateTask(t *models.Task) (int64, error) {
	if strings.TrimSpace(t.Name) == "" {
		return 0, errors.New("create task: name is required")
	}
	t.LastModified = d.stamp.next()
	t.DeviceID = d.deviceID

	err := d.withTx(func(tx *sql.Tx) error {
		id, err := insertTask(tx, t)
		if err != nil {
			return err
		}
		t.ID = id
		if err := clearTombstoneTx(tx, models.EntityTask, models.NameKey(t.Name)); err != nil {
			return err
		}
		_, err = enqueueTx(tx, models.OpCreate, models.EntityTask, t, t.LastModified)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("create task: %w", err)
	}
	return t.ID, nil
}

// UpdateTask saves changes to an existing task and queues them for sync.
// A rename leaves a tombstone under the old name so stale remote copies of
// the task are not imported back.
func (d *DB) UpdateTask(t *models.Task) error {
	t.LastModified = d.stamp.next()
	t.DeviceID = d.deviceID

	err := d.withTx(func(tx *sql.Tx) error {
		var oldName string
		err := tx.QueryRow("SELECT name FROM tasks WHERE id = ?", t.ID).Scan(&oldName)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("task %d: %w", t.ID, ErrNotFound)
		}
		if err != nil {
			return err
		}

		res, err := tx.Exec(`
			UPDATE tasks SET name = ?, tips = ?, instructions = ?, video_ref = ?, default_sets = ?,
				default_reps = ?, order_index = ?, last_modified = ?, device_id = ?
			WHERE id = ?
		`, t.Name, t.Tips, t.Instructions, t.VideoRef, t.DefaultSets, t.DefaultReps,
			t.OrderIndex, t.LastModified, t.DeviceID, t.ID)
		if err != nil {
			return err
		}
		if err := requireAffected(res, "task", t.ID); err != nil {
			return err
		}
		if err := renameTombstoneTx(tx, oldName, t); err != nil {
			return err
		}
		_, err = enqueueTx(tx, models.OpUpdate, models.EntityTask, t, t.LastModified)
		return err
	})
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return nil
}

// DeleteTask removes a task and its log entries.
func (d *DB) DeleteTask(id int64) error {
	t, err := d.GetTask(id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	now := d.stamp.next()

	err = d.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM log_entries WHERE task_id = ?", id); err != nil {
			return err
		}
		if _, err := tx.Exec("DELETE FROM tasks WHERE id = ?", id); err != nil {
			return err
		}
		if err := putTombstoneTx(tx, models.EntityTask, models.NameKey(t.Name), now); err != nil {
			return err
		}
		_, err := enqueueTx(tx, models.OpDelete, models.EntityTask, t, now)
		return err
	})
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

// ImportTask upserts a task from sync, keeping its stamps. A zero id inserts.
func (d *DB) ImportTask(t *models.Task) (int64, error) {
	d.stamp.observe(t.LastModified)
	var id int64
	err := d.withTx(func(tx *sql.Tx) error {
		var err error
		if t.ID == 0 {
			id, err = insertTask(tx, t)
		} else {
			id = t.ID
			_, err = tx.Exec(`
				INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET name = excluded.name, tips = excluded.tips,
					instructions = excluded.instructions, video_ref = excluded.video_ref,
					default_sets = excluded.default_sets, default_reps = excluded.default_reps,
					order_index = excluded.order_index, last_modified = excluded.last_modified,
					device_id = excluded.device_id
			`, t.ID, t.Name, t.Tips, t.Instructions, t.VideoRef, t.DefaultSets, t.DefaultReps,
				t.OrderIndex, t.LastModified, t.DeviceID)
		}
		if err != nil {
			return err
		}
		return clearTombstoneTx(tx, models.EntityTask, models.NameKey(t.Name))
	})
	if err != nil {
		return 0, fmt.Errorf("import task: %w", err)
	}
	return id, nil
}

// renameTombstoneTx marks the old name of a renamed task as deleted and
// clears any marker on the new one.
func renameTombstoneTx(tx *sql.Tx, oldName string, t *models.Task) error {
	oldKey, newKey := models.NameKey(oldName), models.NameKey(t.Name)
	if oldKey == newKey {
		return nil
	}
	if err := putTombstoneTx(tx, models.EntityTask, oldKey, t.LastModified); err != nil {
		return err
	}
	return clearTombstoneTx(tx, models.EntityTask, newKey)
}

func insertTask(tx *sql.Tx, t *models.Task) (int64, error) {
	res, err := tx.Exec(`
		INSERT INTO tasks (name, tips, instructions, video_ref, default_sets, default_reps, order_index, last_modified, device_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.Name, t.Tips, t.Instructions, t.VideoRef, t.DefaultSets, t.DefaultReps,
		t.OrderIndex, t.LastModified, t.DeviceID)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*models.Task, error) {
	var t models.Task
	var video sql.NullString
	err := row.Scan(&t.ID, &t.Name, &t.Tips, &t.Instructions, &video, &t.DefaultSets,
		&t.DefaultReps, &t.OrderIndex, &t.LastModified, &t.DeviceID)
	if err != nil {
		return nil, err
	}
	if video.Valid {
		t.VideoRef = &video.String
	}
	return &t, nil
}

func requireAffected(res sql.Result, kind string, id int64) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%s %d: %w", kind, id, ErrNotFound)
	}
	return nil
}
