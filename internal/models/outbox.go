// ABOUTME: Outbox and tombstone models for pending sync work.
// ABOUTME: Outbox items are created on every local mutation and drained by the sync processor.
package models

import "encoding/json"

// Operation is the kind of local mutation recorded in the outbox.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// EntityType names a synchronizable collection.
type EntityType string

const (
	EntityWorkout  EntityType = "workout"
	EntityTask     EntityType = "task"
	EntityLogEntry EntityType = "logEntry"
)

// OutboxStatus is the drain state of an outbox item.
type OutboxStatus string

const (
	StatusPending OutboxStatus = "pending"
	StatusFailed  OutboxStatus = "failed"
)

// OutboxItem records a mutation that has not yet reached the remote store.
type OutboxItem struct {
	ID         int64           `json:"id"`
	Operation  Operation       `json:"operation"`
	EntityType EntityType      `json:"entityType"`
	Payload    json.RawMessage `json:"entityPayload"`
	Timestamp  int64           `json:"timestamp"`
	Retries    int             `json:"retries"`
	Status     OutboxStatus    `json:"status"`
	LastError  string          `json:"lastError,omitempty"`
	LastRetry  int64           `json:"lastRetry,omitempty"`
}

// Tombstone remembers that an entity was deleted on this device so a later
// pull does not bring it back. Key is the NameKey for workouts and tasks
// and the content fingerprint for log entries.
type Tombstone struct {
	EntityType EntityType `json:"entityType" yaml:"entity_type"`
	Key        string     `json:"key" yaml:"key"`
	DeletedAt  int64      `json:"deletedAt" yaml:"deleted_at"`
}
