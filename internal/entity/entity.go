// Package entity fetches live entity snapshots from the primary database.
package entity

import (
	"context"

	"github.com/Aman-CERP/searchsync/internal/eventmodel"
)

// Snapshot is the current state of one entity.
type Snapshot struct {
	EntityType string
	ID         eventmodel.ID
	// Fields maps column name to value. Text columns are strings.
	Fields map[string]any
}

// Provider opens sessions against the primary store.
type Provider interface {
	Open(ctx context.Context) (Session, error)
}

// Session reads snapshots. A session lives for one tick and is not safe for
// concurrent use.
type Session interface {
	// Get returns the snapshot of the entity, or nil and no error when the
	// entity no longer exists.
	Get(ctx context.Context, entityType string, id eventmodel.ID) (*Snapshot, error)
	Close() error
}
