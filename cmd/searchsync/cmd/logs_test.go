package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogsCmd_TailsAndFilters(t *testing.T) {
	// Given
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "searchsync.log")
	require.NoError(t, os.WriteFile(path, []byte(
		`{"time":"2026-01-02T10:00:00Z","level":"INFO","msg":"searchsync ready"}
{"time":"2026-01-02T10:00:01Z","level":"ERROR","msg":"tick failed","attempt":1}
`), 0o644))

	// When
	out, err := execute(t, "logs", "--file", path, "--level", "error")

	// Then
	require.NoError(t, err)
	assert.Contains(t, out, "tick failed attempt=1")
	assert.NotContains(t, out, "searchsync ready")
}

func TestLogsCmd_BadInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "searchsync.log")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	tests := [][]string{
		{"logs", "--file", path, "--lines", "0"},
		{"logs", "--file", path, "--level", "loud"},
		{"logs", "--file", path, "--filter", "("},
		{"logs", "--file", filepath.Join(t.TempDir(), "missing.log")},
	}

	for _, args := range tests {
		_, err := execute(t, args...)
		assert.Error(t, err, "%v", args)
	}
}
