package lock

import (
	"os"
	"path/filepath"
	"testing"

	serrors "github.com/Aman-CERP/searchsync/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquire_SecondHolderRefused(t *testing.T) {
	// Given: a directory locked by one poller
	dir := filepath.Join(t.TempDir(), "index")
	first, err := Acquire(dir)
	require.NoError(t, err)
	defer first.Unlock()
	assert.True(t, first.Locked())

	// When: a second poller tries the same directory
	_, err = Acquire(dir)

	// Then: it is refused with the holder's pid
	require.Error(t, err)
	assert.True(t, serrors.HasCode(err, serrors.ErrCodeInvalidState))
	var se *serrors.SyncError
	require.ErrorAs(t, err, &se)
	assert.NotEmpty(t, se.Details["pid"])
}

func TestAcquire_AfterUnlock(t *testing.T) {
	dir := t.TempDir()
	first, err := Acquire(dir)
	require.NoError(t, err)
	require.NoError(t, first.Unlock())

	second, err := Acquire(dir)
	require.NoError(t, err)
	assert.NoError(t, second.Unlock())
}

func TestFileLock_OwnerIsThisProcess(t *testing.T) {
	l := New(t.TempDir())
	ok, err := l.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	defer l.Unlock()

	pid, ok := l.Owner()
	require.True(t, ok)
	assert.Equal(t, os.Getpid(), pid)
	assert.Equal(t, FileName, filepath.Base(l.Path()))
}

func TestFileLock_UnlockIsIdempotent(t *testing.T) {
	l := New(t.TempDir())
	assert.NoError(t, l.Unlock())

	ok, err := l.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	assert.NoError(t, l.Unlock())
	assert.NoError(t, l.Unlock())
	assert.False(t, l.Locked())
}

func TestFileLock_OwnerWithoutFile(t *testing.T) {
	_, ok := New(t.TempDir()).Owner()
	assert.False(t, ok)
}
