// ABOUTME: SQLite schema definition and initialization.
// ABOUTME: Defines tables for workouts, tasks, log entries, outbox, tombstones and meta.
package storage

// initSchema creates or updates the database schema.
func (d *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS workouts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		task_ids TEXT NOT NULL DEFAULT '[]',
		order_index INTEGER NOT NULL DEFAULT 0,
		last_modified INTEGER NOT NULL DEFAULT 0,
		device_id TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS tasks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		tips TEXT NOT NULL DEFAULT '',
		instructions TEXT NOT NULL DEFAULT '',
		video_ref TEXT,
		default_sets INTEGER NOT NULL DEFAULT 3,
		default_reps INTEGER NOT NULL DEFAULT 10,
		order_index INTEGER NOT NULL DEFAULT 0,
		last_modified INTEGER NOT NULL DEFAULT 0,
		device_id TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS log_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id INTEGER NOT NULL,
		date INTEGER NOT NULL,
		sets TEXT NOT NULL DEFAULT '[]',
		last_modified INTEGER NOT NULL DEFAULT 0,
		device_id TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS outbox (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		operation TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		payload TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		retries INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'pending',
		last_error TEXT NOT NULL DEFAULT '',
		last_retry INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS tombstones (
		entity_type TEXT NOT NULL,
		key TEXT NOT NULL,
		deleted_at INTEGER NOT NULL,
		PRIMARY KEY (entity_type, key)
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_log_entries_task_date ON log_entries(task_id, date DESC);
	CREATE INDEX IF NOT EXISTS idx_outbox_status_ts ON outbox(status, timestamp, id);
	`

	_, err := d.db.Exec(schema)
	return err
}
