// ABOUTME: Workout CRUD operations for SQLite storage.
// ABOUTME: Task references are stored as a JSON array and may dangle after task deletes.
package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/harperreed/gym/internal/models"
)

const workoutColumns = `id, name, task_ids, order_index, last_modified, device_id`

// ListWorkouts returns all workouts in display order.
func (d *DB) ListWorkouts() ([]*models.Workout, error) {
	rows, err := d.db.Query(`SELECT ` + workoutColumns + ` FROM workouts ORDER BY order_index, id`)
	if err != nil {
		return nil, fmt.Errorf("list workouts: %w", err)
	}
	defer rows.Close()

	var workouts []*models.Workout
	for rows.Next() {
		w, err := scanWorkout(rows)
		if err != nil {
			return nil, fmt.Errorf("scan workout: %w", err)
		}
		workouts = append(workouts, w)
	}
	return workouts, rows.Err()
}

// GetWorkout retrieves a workout by id.
func (d *DB) GetWorkout(id int64) (*models.Workout, error) {
	w, err := scanWorkout(d.db.QueryRow(`SELECT `+workoutColumns+` FROM workouts WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("workout %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get workout: %w", err)
	}
	return w, nil
}

// FindWorkoutByName returns the lowest-id workout whose name matches case-insensitively.
func (d *DB) FindWorkoutByName(name string) (*models.Workout, error) {
	workouts, err := d.ListWorkouts()
	if err != nil {
		return nil, err
	}
	if w := findWorkoutByName(workouts, name); w != nil {
		return w, nil
	}
	return nil, fmt.Errorf("workout %q: %w", name, ErrNotFound)
}

func findWorkoutByName(workouts []*models.Workout, name string) *models.Workout {
	key := models.NameKey(name)
	var found *models.Workout
	for _, w := range workouts {
		if models.NameKey(w.Name) == key && (found == nil || w.ID < found.ID) {
			found = w
		}
	}
	return found
}

// CreateWorkout stores a new workout, stamping it and queueing it for sync.
func (d *DB) CreateWorkout(w *models.Workout) (int64, error) {
	if strings.TrimSpace(w.Name) == "" {
		return 0, errors.New("create workout: name is required")
	}
	w.LastModified = d.stamp.next()
	w.DeviceID = d.deviceID

	err := d.withTx(func(tx *sql.Tx) error {
		id, err := insertWorkout(tx, w)
		if err != nil {
			return err
		}
		w.ID = id
		if err := clearTombstoneTx(tx, models.EntityWorkout, models.NameKey(w.Name)); err != nil {
			return err
		}
		_, err = enqueueTx(tx, models.OpCreate, models.EntityWorkout, w, w.LastModified)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("create workout: %w", err)
	}
	return w.ID, nil
}

// UpdateWorkout saves changes to an existing workout and queues them for sync.
func (d *DB) UpdateWorkout(w *models.Workout) error {
	w.LastModified = d.stamp.next()
	w.DeviceID = d.deviceID
	ids, err := encodeTaskIDs(w.TaskIDs)
	if err != nil {
		return fmt.Errorf("update workout: %w", err)
	}

	err = d.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`
			UPDATE workouts SET name = ?, task_ids = ?, order_index = ?, last_modified = ?, device_id = ?
			WHERE id = ?
		`, w.Name, ids, w.OrderIndex, w.LastModified, w.DeviceID, w.ID)
		if err != nil {
			return err
		}
		if err := requireAffected(res, "workout", w.ID); err != nil {
			return err
		}
		_, err = enqueueTx(tx, models.OpUpdate, models.EntityWorkout, w, w.LastModified)
		return err
	})
	if err != nil {
		return fmt.Errorf("update workout: %w", err)
	}
	return nil
}

// DeleteWorkout removes a workout. Its tasks are untouched.
func (d *DB) DeleteWorkout(id int64) error {
	w, err := d.GetWorkout(id)
	if err != nil {
		return fmt.Errorf("delete workout: %w", err)
	}
	now := d.stamp.next()

	err = d.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM workouts WHERE id = ?", id); err != nil {
			return err
		}
		if err := putTombstoneTx(tx, models.EntityWorkout, models.NameKey(w.Name), now); err != nil {
			return err
		}
		_, err := enqueueTx(tx, models.OpDelete, models.EntityWorkout, w, now)
		return err
	})
	if err != nil {
		return fmt.Errorf("delete workout: %w", err)
	}
	return nil
}

// ImportWorkout upserts a workout from sync, keeping its stamps. A zero id inserts.
func (d *DB) ImportWorkout(w *models.Workout) (int64, error) {
	d.stamp.observe(w.LastModified)
	var id int64
	err := d.withTx(func(tx *sql.Tx) error {
		var err error
		if w.ID == 0 {
			id, err = insertWorkout(tx, w)
		} else {
			id = w.ID
			var ids string
			ids, err = encodeTaskIDs(w.TaskIDs)
			if err != nil {
				return err
			}
			_, err = tx.Exec(`
				INSERT INTO workouts (`+workoutColumns+`) VALUES (?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET name = excluded.name, task_ids = excluded.task_ids,
					order_index = excluded.order_index, last_modified = excluded.last_modified,
					device_id = excluded.device_id
			`, w.ID, w.Name, ids, w.OrderIndex, w.LastModified, w.DeviceID)
		}
		if err != nil {
			return err
		}
		return clearTombstoneTx(tx, models.EntityWorkout, models.NameKey(w.Name))
	})
	if err != nil {
		return 0, fmt.Errorf("import workout: %w", err)
	}
	return id, nil
}

func insertWorkout(tx *sql.Tx, w *models.Workout) (int64, error) {
	ids, err := encodeTaskIDs(w.TaskIDs)
	if err != nil {
		return 0, err
	}
	res, err := tx.Exec(`
		INSERT INTO workouts (name, task_ids, order_index, last_modified, device_id)
		VALUES (?, ?, ?, ?, ?)
	`, w.Name, ids, w.OrderIndex, w.LastModified, w.DeviceID)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func encodeTaskIDs(ids []int64) (string, error) {
	if ids == nil {
		ids = []int64{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return "", fmt.Errorf("encode task ids: %w", err)
	}
	return string(data), nil
}

func scanWorkout(row rowScanner) (*models.Workout, error) {
	var w models.Workout
	var ids string
	if err := row.Scan(&w.ID, &w.Name, &ids, &w.OrderIndex, &w.LastModified, &w.DeviceID); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(ids), &w.TaskIDs); err != nil {
		return nil, fmt.Errorf("decode task ids: %w", err)
	}
	if w.TaskIDs == nil {
		w.TaskIDs = []int64{}
	}
	return &w, nil
}
