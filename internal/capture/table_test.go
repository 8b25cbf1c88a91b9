package capture

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/Aman-CERP/searchsync/internal/database"
	serrors "github.com/Aman-CERP/searchsync/internal/errors"
	"github.com/Aman-CERP/searchsync/internal/eventmodel"
	"github.com/Aman-CERP/searchsync/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func placeInfo() eventmodel.EventModelInfo {
	return eventmodel.EventModelInfo{
		EntityType:      "Place",
		SourceTable:     "place",
		CaptureTable:    "place_updates",
		KeyColumn:       "id",
		EventTypeColumn: "event_case",
		IDColumns:       []eventmodel.IDColumn{{Column: "place_id", SourceColumn: "id", Type: eventmodel.ColumnInt64}},
	}
}

func openCaptureDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(context.Background(), database.Options{
		Driver: "sqlite",
		DSN:    "file:" + filepath.Join(t.TempDir(), "app.db"),
		Logger: logging.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Exec(`CREATE TABLE place_updates (id INTEGER PRIMARY KEY AUTOINCREMENT, place_id INTEGER NOT NULL, event_case INTEGER NOT NULL)`)
	require.NoError(t, err)
	return db
}

func insertCapture(t *testing.T, db *sql.DB, placeID, code int64) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO place_updates (place_id, event_case) VALUES (?, ?)`, placeID, code)
	require.NoError(t, err)
}

func TestTableSource_FetchPage(t *testing.T) {
	// Given
	db := openCaptureDB(t)
	insertCapture(t, db, 10, -3)
	insertCapture(t, db, 10, -2)
	insertCapture(t, db, 11, 99)
	src := NewTableSource(db, placeInfo(), `"`)

	// When
	page, err := src.FetchPage(context.Background(), 1, 5)

	// Then
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, Row{Key: 2, ID: eventmodel.ID{int64(10)}, EventType: eventmodel.EventUpdate, RawEventType: -2}, page[0])
	assert.Equal(t, eventmodel.EventUnknown, page[1].EventType)
	assert.Equal(t, int64(99), page[1].RawEventType)
	assert.Equal(t, "place_updates", src.Name())
}

func TestOffsets_CommitDeletesConsumedRows(t *testing.T) {
	// Given
	ctx := context.Background()
	db := openCaptureDB(t)
	for i := 0; i < 3; i++ {
		insertCapture(t, db, int64(i), -3)
	}
	offsets := NewOffsets(db, "sqlite", `"`, ConsumeDelete, []eventmodel.EventModelInfo{placeInfo()})
	require.NoError(t, offsets.Init(ctx))
	require.NoError(t, offsets.Init(ctx), "init is idempotent")

	// When
	require.NoError(t, offsets.Commit(ctx, map[string]int64{"place_updates": 2}))

	// Then
	stored, err := offsets.Stored(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"place_updates": 2}, stored)
	resume, err := offsets.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, resume, "remaining rows are unconsumed, reading starts over")
	var remaining int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM place_updates`).Scan(&remaining))
	assert.Equal(t, 1, remaining)

	status, err := offsets.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, []TableStatus{{Table: "place_updates", Entity: "Place", LastKey: 2, Pending: 1}}, status)
}

func TestOffsets_MarkModeKeepsRowsAndNeverMovesBack(t *testing.T) {
	ctx := context.Background()
	db := openCaptureDB(t)
	insertCapture(t, db, 1, -3)
	insertCapture(t, db, 2, -3)
	offsets := NewOffsets(db, "sqlite", `"`, ConsumeMark, []eventmodel.EventModelInfo{placeInfo()})
	require.NoError(t, offsets.Init(ctx))

	require.NoError(t, offsets.Commit(ctx, map[string]int64{"place_updates": 2}))
	require.NoError(t, offsets.Commit(ctx, map[string]int64{"place_updates": 1}))

	loaded, err := offsets.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), loaded["place_updates"])
	var remaining int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM place_updates`).Scan(&remaining))
	assert.Equal(t, 2, remaining)
}

func TestOffsets_DeleteModeDeliversRowsBelowStoredOffset(t *testing.T) {
	// Given offset 5 stored and the table emptied, as after a consumed batch
	ctx := context.Background()
	db := openCaptureDB(t)
	offsets := NewOffsets(db, "sqlite", `"`, ConsumeDelete, []eventmodel.EventModelInfo{placeInfo()})
	require.NoError(t, offsets.Init(ctx))
	for i := 0; i < 5; i++ {
		insertCapture(t, db, int64(i), -3)
	}
	require.NoError(t, offsets.Commit(ctx, map[string]int64{"place_updates": 5}))

	// When the key counter starts over, as MySQL does after a restart
	_, err := db.Exec(`INSERT INTO place_updates (id, place_id, event_case) VALUES (1, 42, -3)`)
	require.NoError(t, err)
	resume, err := offsets.Load(ctx)
	require.NoError(t, err)
	streams := []Stream{{EntityType: "Place", Source: NewTableSource(db, placeInfo(), `"`), After: resume["place_updates"]}}
	events, err := Drain(ctx, NewMultiCursor(streams, CursorOptions{Logger: logging.Nop()}))
	require.NoError(t, err)

	// Then the row is delivered and its commit consumes it
	require.Len(t, events, 1)
	assert.Equal(t, eventmodel.ID{int64(42)}, events[0].ID)
	require.NoError(t, offsets.Commit(ctx, map[string]int64{"place_updates": 1}))
	var remaining int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM place_updates`).Scan(&remaining))
	assert.Zero(t, remaining)
}

func TestOffsets_ResetForgetsStoredKeys(t *testing.T) {
	ctx := context.Background()
	db := openCaptureDB(t)
	other := placeInfo()
	other.EntityType, other.CaptureTable = "Sorcerer", "sorcerer_updates"
	offsets := NewOffsets(db, "sqlite", `"`, ConsumeMark, []eventmodel.EventModelInfo{placeInfo(), other})
	require.NoError(t, offsets.Init(ctx))
	_, err := db.Exec(`INSERT INTO searchsync_offsets (capture_table, last_key) VALUES ('place_updates', 7), ('sorcerer_updates', 3)`)
	require.NoError(t, err)

	require.NoError(t, offsets.Reset(ctx, "place_updates"))
	loaded, err := offsets.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"sorcerer_updates": 3}, loaded)

	require.NoError(t, offsets.Reset(ctx))
	loaded, err = offsets.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestOffsets_ResetCreatesMissingTable(t *testing.T) {
	db := openCaptureDB(t)
	offsets := NewOffsets(db, "sqlite", `"`, ConsumeMark, []eventmodel.EventModelInfo{placeInfo()})

	require.NoError(t, offsets.Reset(context.Background()))
}

func TestOffsets_UnknownTable(t *testing.T) {
	ctx := context.Background()
	db := openCaptureDB(t)
	offsets := NewOffsets(db, "sqlite", `"`, ConsumeDelete, []eventmodel.EventModelInfo{placeInfo()})
	require.NoError(t, offsets.Init(ctx))

	err := offsets.Commit(ctx, map[string]int64{"other": 1})

	assert.True(t, serrors.HasCode(err, serrors.ErrCodeInternal))
}

func TestTableSource_FeedsMultiCursor(t *testing.T) {
	// Given
	ctx := context.Background()
	db := openCaptureDB(t)
	for i := int64(1); i <= 5; i++ {
		insertCapture(t, db, i, -2)
	}
	streams := []Stream{{EntityType: "Place", Source: NewTableSource(db, placeInfo(), `"`), After: 2}}

	// When
	events, err := Drain(ctx, NewMultiCursor(streams, CursorOptions{PageSize: 2, Logger: logging.Nop()}))

	// Then
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, []int64{3, 4, 5}, []int64{events[0].Key, events[1].Key, events[2].Key})
	assert.Equal(t, "Place", events[0].EntityType)
}

func TestParseConsumeMode(t *testing.T) {
	m, err := ParseConsumeMode("MARK")
	require.NoError(t, err)
	assert.Equal(t, ConsumeMark, m)
	_, err = ParseConsumeMode("archive")
	assert.Error(t, err)
}
