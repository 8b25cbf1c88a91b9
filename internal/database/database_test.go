package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	serrors "github.com/Aman-CERP/searchsync/internal/errors"
	"github.com/Aman-CERP/searchsync/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_SQLiteFile(t *testing.T) {
	// Given
	dsn := "file:" + filepath.Join(t.TempDir(), "app.db")

	// When
	db, err := Open(context.Background(), Options{Driver: "sqlite", DSN: dsn, Logger: logging.Nop()})

	// Then
	require.NoError(t, err)
	defer db.Close()
	var mode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Options{Driver: "oracle", DSN: "x", Logger: logging.Nop()})

	assert.True(t, serrors.HasCode(err, serrors.ErrCodeConfigInvalid))
}

func TestOpen_UnreachableRetries(t *testing.T) {
	// Given a MySQL address nothing listens on
	retry := serrors.RetryConfig{MaxRetries: 1, InitialDelay: time.Millisecond, Multiplier: 1}

	// When
	_, err := Open(context.Background(), Options{
		Driver: "mysql",
		DSN:    "u:p@tcp(127.0.0.1:1)/db?timeout=200ms",
		Retry:  retry,
		Logger: logging.Nop(),
	})

	// Then
	require.Error(t, err)
	assert.True(t, serrors.HasCode(err, serrors.ErrCodeDBUnavailable))
	assert.NotContains(t, err.Error(), "u:p@")
}

func TestPrepareDSN(t *testing.T) {
	assert.Equal(t, "file:a.db?_pragma=busy_timeout(5000)", prepareDSN("sqlite", "file:a.db"))
	assert.Equal(t, "file:a.db?cache=shared&_pragma=busy_timeout(5000)", prepareDSN("sqlite", "file:a.db?cache=shared"))
	assert.Equal(t, "a.db?_busy_timeout=5000", prepareDSN("sqlite3", "a.db"))
	assert.Equal(t, "u@tcp(h)/d", prepareDSN("mysql", "u@tcp(h)/d"))
}

func TestRedactDSN(t *testing.T) {
	assert.NotContains(t, RedactDSN("mysql", "root:secret@tcp(db:3306)/app"), "secret")
	assert.Contains(t, RedactDSN("mysql", "root:secret@tcp(db:3306)/app"), "root:xxxxx@")
	assert.Equal(t, "file:app.db", RedactDSN("sqlite", "file:app.db"))
}
