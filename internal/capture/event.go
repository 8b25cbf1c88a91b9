// Package capture reads trigger-populated capture tables.
//
// A MultiCursor merges the per-table streams of one tick into a single
// ordered sequence of CaptureEvents; Offsets records how far each table has
// been consumed once a batch has been applied.
package capture

import (
	"context"

	"github.com/Aman-CERP/searchsync/internal/eventmodel"
)

// CaptureEvent is one captured change to a watched entity.
type CaptureEvent struct {
	EntityType string
	ID         eventmodel.ID
	EventType  eventmodel.EventType
	// Key is the capture row key, ordered within Table only.
	Key   int64
	Table string
}

// Row is one capture table row as returned by a PageSource.
type Row struct {
	Key       int64
	ID        eventmodel.ID
	EventType eventmodel.EventType
	// RawEventType is the stored event column value, kept for logging
	// rows whose EventType is EventUnknown.
	RawEventType int64
}

// PageSource returns pages of one capture table in ascending key order.
type PageSource interface {
	// Name identifies the stream, normally the capture table name.
	Name() string
	// FetchPage returns at most limit rows with key greater than afterKey.
	FetchPage(ctx context.Context, afterKey int64, limit int) ([]Row, error)
}

// Stream binds a PageSource to the entity type it captures and the key
// it resumes after.
type Stream struct {
	EntityType string
	Source     PageSource
	After      int64
}
