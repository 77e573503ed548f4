// ABOUTME: Outbox queue and tombstone persistence for SQLite storage.
// ABOUTME: Pending items drain oldest first; failed items wait for a manual retry.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/harperreed/gym/internal/models"
)

const outboxColumns = `id, operation, entity_type, payload, timestamp, retries, status, last_error, last_retry`

// Enqueue appends an outbox item outside of any entity write.
func (d *DB) Enqueue(op models.Operation, entity models.EntityType, payload any) (int64, error) {
	var id int64
	err := d.withTx(func(tx *sql.Tx) error {
		var err error
		id, err = enqueueTx(tx, op, entity, payload, d.stamp.clock.Now().UnixMilli())
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("enqueue: %w", err)
	}
	return id, nil
}

func enqueueTx(tx *sql.Tx, op models.Operation, entity models.EntityType, payload any, ts int64) (int64, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("encode outbox payload: %w", err)
	}
	res, err := tx.Exec(`
		INSERT INTO outbox (operation, entity_type, payload, timestamp, status)
		VALUES (?, ?, ?, ?, ?)
	`, op, entity, string(data), ts, models.StatusPending)
	if err != nil {
		return 0, fmt.Errorf("insert outbox item: %w", err)
	}
	return res.LastInsertId()
}

// PendingOutbox returns pending items, oldest first.
func (d *DB) PendingOutbox() ([]*models.OutboxItem, error) {
	return d.queryOutbox(`SELECT `+outboxColumns+` FROM outbox WHERE status = ? ORDER BY timestamp, id`, models.StatusPending)
}

// ListOutbox returns every item regardless of status, oldest first.
func (d *DB) ListOutbox() ([]*models.OutboxItem, error) {
	return d.queryOutbox(`SELECT ` + outboxColumns + ` FROM outbox ORDER BY timestamp, id`)
}

func (d *DB) queryOutbox(query string, args ...any) ([]*models.OutboxItem, error) {
	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list outbox: %w", err)
	}
	defer rows.Close()

	var items []*models.OutboxItem
	for rows.Next() {
		var item models.OutboxItem
		var payload string
		if err := rows.Scan(&item.ID, &item.Operation, &item.EntityType, &payload, &item.Timestamp,
			&item.Retries, &item.Status, &item.LastError, &item.LastRetry); err != nil {
			return nil, fmt.Errorf("scan outbox item: %w", err)
		}
		item.Payload = json.RawMessage(payload)
		items = append(items, &item)
	}
	return items, rows.Err()
}

// UpdateOutboxItem saves retry bookkeeping for an item.
func (d *DB) UpdateOutboxItem(item *models.OutboxItem) error {
	res, err := d.db.Exec(`
		UPDATE outbox SET retries = ?, status = ?, last_error = ?, last_retry = ? WHERE id = ?
	`, item.Retries, item.Status, item.LastError, item.LastRetry, item.ID)
	if err != nil {
		return fmt.Errorf("update outbox item: %w", err)
	}
	if err := requireAffected(res, "outbox item", item.ID); err != nil {
		return fmt.Errorf("update outbox item: %w", err)
	}
	return nil
}

// MarkOutboxFailed freezes an item until a manual retry.
func (d *DB) MarkOutboxFailed(id int64, msg string) error {
	res, err := d.db.Exec(`UPDATE outbox SET status = ?, last_error = ? WHERE id = ?`, models.StatusFailed, msg, id)
	if err != nil {
		return fmt.Errorf("mark outbox failed: %w", err)
	}
	if err := requireAffected(res, "outbox item", id); err != nil {
		return fmt.Errorf("mark outbox failed: %w", err)
	}
	return nil
}

// ClearOutbox deletes a delivered item.
func (d *DB) ClearOutbox(id int64) error {
	if _, err := d.db.Exec("DELETE FROM outbox WHERE id = ?", id); err != nil {
		return fmt.Errorf("clear outbox item: %w", err)
	}
	return nil
}

// RetryFailedOutbox moves failed items back to pending with a fresh retry budget.
func (d *DB) RetryFailedOutbox() (int, error) {
	res, err := d.db.Exec(`
		UPDATE outbox SET status = ?, retries = 0, last_retry = 0 WHERE status = ?
	`, models.StatusPending, models.StatusFailed)
	if err != nil {
		return 0, fmt.Errorf("retry failed outbox: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("retry failed outbox: %w", err)
	}
	return int(n), nil
}

// ListTombstones returns every local delete marker.
func (d *DB) ListTombstones() ([]models.Tombstone, error) {
	rows, err := d.db.Query(`SELECT entity_type, key, deleted_at FROM tombstones ORDER BY entity_type, key`)
	if err != nil {
		return nil, fmt.Errorf("list tombstones: %w", err)
	}
	defer rows.Close()

	var out []models.Tombstone
	for rows.Next() {
		var ts models.Tombstone
		if err := rows.Scan(&ts.EntityType, &ts.Key, &ts.DeletedAt); err != nil {
			return nil, fmt.Errorf("scan tombstone: %w", err)
		}
		out = append(out, ts)
	}
	return out, rows.Err()
}

// ImportTombstone stores a delete marker, keeping the later deletedAt on conflict.
func (d *DB) ImportTombstone(ts models.Tombstone) error {
	return d.withTx(func(tx *sql.Tx) error {
		return putTombstoneTx(tx, ts.EntityType, ts.Key, ts.DeletedAt)
	})
}

func putTombstoneTx(tx *sql.Tx, entity models.EntityType, key string, at int64) error {
	_, err := tx.Exec(`
		INSERT INTO tombstones (entity_type, key, deleted_at) VALUES (?, ?, ?)
		ON CONFLICT(entity_type, key) DO UPDATE SET deleted_at = MAX(deleted_at, excluded.deleted_at)
	`, entity, key, at)
	if err != nil {
		return fmt.Errorf("put tombstone: %w", err)
	}
	return nil
}

func clearTombstoneTx(tx *sql.Tx, entity models.EntityType, key string) error {
	if _, err := tx.Exec(`DELETE FROM tombstones WHERE entity_type = ? AND key = ?`, entity, key); err != nil {
		return fmt.Errorf("clear tombstone: %w", err)
	}
	return nil
}
