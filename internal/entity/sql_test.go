package entity

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

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(context.Background(), database.Options{
		Driver: "sqlite",
		DSN:    "file:" + filepath.Join(t.TempDir(), "app.db"),
		Logger: logging.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	for _, stmt := range []string{
		`CREATE TABLE place (id INTEGER PRIMARY KEY, name TEXT, secret TEXT)`,
		`CREATE TABLE stay (guest TEXT NOT NULL, night INTEGER NOT NULL, note TEXT, PRIMARY KEY (guest, night))`,
		`INSERT INTO place (id, name, secret) VALUES (1, 'Blue Cafe', 'x'), (2, 'Red Bakery', 'y')`,
		`INSERT INTO stay (guest, night, note) VALUES ('ann', 3, 'late arrival')`,
	} {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
	return db
}

func infos() []eventmodel.EventModelInfo {
	return []eventmodel.EventModelInfo{
		{
			EntityType:  "Place",
			SourceTable: "place",
			IDColumns:   []eventmodel.IDColumn{{Column: "place_id", SourceColumn: "id", Type: eventmodel.ColumnInt64}},
			Columns:     []string{"id", "name"},
		},
		{
			EntityType:  "Stay",
			SourceTable: "stay",
			IDColumns: []eventmodel.IDColumn{
				{Column: "stay_guest", SourceColumn: "guest", Type: eventmodel.ColumnString},
				{Column: "stay_night", SourceColumn: "night", Type: eventmodel.ColumnInt64},
			},
		},
	}
}

func TestNewSQLProvider_Queries(t *testing.T) {
	p := NewSQLProvider(nil, infos(), `"`, 0)

	q, ok := p.Query("Place")
	require.True(t, ok)
	assert.Equal(t, `SELECT "id", "name" FROM "place" WHERE "id" = ?`, q)

	q, ok = p.Query("Stay")
	require.True(t, ok)
	assert.Equal(t, `SELECT * FROM "stay" WHERE "guest" = ? AND "night" = ?`, q)

	_, ok = p.Query("Nope")
	assert.False(t, ok)
}

func TestSQLSession_Get(t *testing.T) {
	ctx := context.Background()
	p := NewSQLProvider(openDB(t), infos(), `"`, 0)

	s, err := p.Open(ctx)
	require.NoError(t, err)
	defer s.Close()

	t.Run("selected columns only", func(t *testing.T) {
		snap, err := s.Get(ctx, "Place", eventmodel.ID{int64(1)})
		require.NoError(t, err)
		require.NotNil(t, snap)
		assert.Equal(t, "Place", snap.EntityType)
		assert.Equal(t, map[string]any{"id": int64(1), "name": "Blue Cafe"}, snap.Fields)
	})

	t.Run("composite id and all columns", func(t *testing.T) {
		snap, err := s.Get(ctx, "Stay", eventmodel.ID{"ann", int64(3)})
		require.NoError(t, err)
		require.NotNil(t, snap)
		assert.Equal(t, "late arrival", snap.Fields["note"])
		assert.Len(t, snap.Fields, 3)
	})

	t.Run("missing entity is nil without error", func(t *testing.T) {
		snap, err := s.Get(ctx, "Place", eventmodel.ID{int64(404)})
		require.NoError(t, err)
		assert.Nil(t, snap)
	})

	t.Run("unregistered entity type", func(t *testing.T) {
		_, err := s.Get(ctx, "Nope", eventmodel.ID{int64(1)})
		require.Error(t, err)
		assert.True(t, serrors.HasCode(err, serrors.ErrCodeMappingMissing))
	})
}

func TestSQLSession_StatementCacheEvicts(t *testing.T) {
	// Given: a session that can cache only one statement
	ctx := context.Background()
	p := NewSQLProvider(openDB(t), infos(), `"`, 1)
	s, err := p.Open(ctx)
	require.NoError(t, err)
	defer s.Close()

	// When: alternating between two entity types
	for i := 0; i < 3; i++ {
		snap, err := s.Get(ctx, "Place", eventmodel.ID{int64(2)})
		require.NoError(t, err)
		require.NotNil(t, snap)
		snap, err = s.Get(ctx, "Stay", eventmodel.ID{"ann", int64(3)})
		require.NoError(t, err)
		require.NotNil(t, snap)
	}

	// Then: only one statement stays cached
	assert.Equal(t, 1, s.(*sqlSession).stmts.Len())
}

func TestSQLSession_ClosedSession(t *testing.T) {
	ctx := context.Background()
	p := NewSQLProvider(openDB(t), infos(), `"`, 0)
	s, err := p.Open(ctx)
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.Get(ctx, "Place", eventmodel.ID{int64(1)})
	assert.True(t, serrors.HasCode(err, serrors.ErrCodeInvalidState))
}
