// ABOUTME: Data migration between gym storage backends.
// ABOUTME: Copies entities, tombstones, pending outbox items and sync meta, preserving ids.

package storage

import (
	"fmt"
	"os"
)

// MigrateSummary holds counts of migrated entities.
type MigrateSummary struct {
	Workouts   int
	Tasks      int
	LogEntries int
	Tombstones int
	Outbox     int
}

// MigrateData copies all data from src to dst storage. Ids and stamps are
// kept so a later sync sees the same records. The destination should be
// empty before calling this function.
func MigrateData(src, dst Repository) (*MigrateSummary, error) {
	summary := &MigrateSummary{}

	tasks, err := src.ListTasks()
	if err != nil {
		return nil, fmt.Errorf("list source tasks: %w", err)
	}
	for _, t := range tasks {
		if _, err := dst.ImportTask(t); err != nil {
			return nil, fmt.Errorf("import task %d: %w", t.ID, err)
		}
		summary.Tasks++
	}

	workouts, err := src.ListWorkouts()
	if err != nil {
		return nil, fmt.Errorf("list source workouts: %w", err)
	}
	for _, w := range workouts {
		if _, err := dst.ImportWorkout(w); err != nil {
			return nil, fmt.Errorf("import workout %d: %w", w.ID, err)
		}
		summary.Workouts++
	}

	entries, err := src.ListLogEntries()
	if err != nil {
		return nil, fmt.Errorf("list source log entries: %w", err)
	}
	for _, e := range entries {
		if _, err := dst.ImportLogEntry(e); err != nil {
			return nil, fmt.Errorf("import log entry %d: %w", e.ID, err)
		}
		summary.LogEntries++
	}

	tombstones, err := src.ListTombstones()
	if err != nil {
		return nil, fmt.Errorf("list source tombstones: %w", err)
	}
	for _, ts := range tombstones {
		if err := dst.ImportTombstone(ts); err != nil {
			return nil, fmt.Errorf("import tombstone: %w", err)
		}
		summary.Tombstones++
	}

	pending, err := src.PendingOutbox()
	if err != nil {
		return nil, fmt.Errorf("list source outbox: %w", err)
	}
	for _, item := range pending {
		if _, err := dst.Enqueue(item.Operation, item.EntityType, item.Payload); err != nil {
			return nil, fmt.Errorf("enqueue outbox item %d: %w", item.ID, err)
		}
		summary.Outbox++
	}

	lastSync, err := src.LastSync()
	if err != nil {
		return nil, err
	}
	if !lastSync.IsZero() {
		if err := dst.SetLastSync(lastSync); err != nil {
			return nil, err
		}
	}
	docID, err := src.RemoteDocumentID()
	if err != nil {
		return nil, err
	}
	if docID != "" {
		if err := dst.SetRemoteDocumentID(docID); err != nil {
			return nil, err
		}
	}

	return summary, nil
}

// IsDirNonEmpty checks whether a directory exists and contains any files or subdirectories.
// Returns false if the directory does not exist or is empty.
func IsDirNonEmpty(path string) (bool, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read directory %q: %w", path, err)
	}
	return len(entries) > 0, nil
}
