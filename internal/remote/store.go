// ABOUTME: Remote store contract for the single sync document.
// ABOUTME: Defines Store, Document, the remembered-id collaborator and the upsert guard.
package remote

import (
	"context"
	"sync/atomic"
	"time"
)

// Document is the remote copy of the sync snapshot.
type Document struct {
	ID        string
	Content   []byte
	UpdatedAt time.Time
}

// Store reads and writes the remote sync document.
//
// Fetch returns (nil, nil) when no document exists yet. Upsert creates the
// document on first use and replaces its content afterwards.
type Store interface {
	Fetch(ctx context.Context) (*Document, error)
	Upsert(ctx context.Context, payload []byte) error
}

// Pinger is implemented by stores that can cheaply probe connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DocumentIDStore persists the remembered remote document id. An empty id
// means none is remembered.
type DocumentIDStore interface {
	RemoteDocumentID() (string, error)
	SetRemoteDocumentID(id string) error
}

// guard drops concurrent upserts.
type guard struct {
	busy atomic.Bool
}

func (g *guard) acquire() bool { return g.busy.CompareAndSwap(false, true) }

func (g *guard) release() { g.busy.Store(false) }
