package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"agropres/internal/models"
)

// Store is the path-addressed document store the engine runs against.
// Paths look like "devices/{id}/controls/uv_light"; the first two segments
// name the root document, the rest descend into it. The store is the single
// source of truth: every mutation goes through it and is fanned back out to
// subscribers, closing the reconciliation loop.
type Store interface {
	// Get reads the value at path. Absent paths yield (nil, nil), mirroring
	// a null snapshot rather than an error.
	Get(ctx context.Context, path string) (json.RawMessage, error)
	// Set replaces the value at path and notifies subscribers of the root
	// document with its new snapshot.
	Set(ctx context.Context, path string, value any) error
	// Update shallow-merges fields into the object at path.
	Update(ctx context.Context, path string, fields map[string]any) error
	// Push appends value under a fresh store-assigned key at path and
	// returns that key.
	Push(ctx context.Context, path string, value any) (string, error)
	// Delete removes the value at path.
	Delete(ctx context.Context, path string) error
	// Subscribe delivers the current snapshot of the root document named by
	// path immediately, then one snapshot per change, until cancel is called
	// or ctx is done. Missing documents are delivered as JSON null.
	Subscribe(ctx context.Context, path string) (<-chan json.RawMessage, func())
}

// EventRepo is the append-only engine audit log.
type EventRepo interface {
	Append(ctx context.Context, e models.EngineEvent) error
	List(ctx context.Context, from, to time.Time, typ string) ([]models.EngineEvent, error)
}

// Stores bundles the concrete sqlite-backed implementations.
type Stores struct {
	Docs   Store
	Events EventRepo
}

func NewStores(db *sql.DB) *Stores {
	return &Stores{
		Docs:   NewDocumentStore(newSQLitePersist(db)),
		Events: NewEventSQLite(db),
	}
}
