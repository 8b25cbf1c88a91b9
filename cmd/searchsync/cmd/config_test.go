package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/searchsync/internal/config"
)

func TestConfigInit_WritesExample(t *testing.T) {
	// Given
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "searchsync.yaml")

	// When
	out, err := execute(t, "config", "init", path)

	// Then
	require.NoError(t, err)
	assert.Contains(t, out, "wrote "+path)
	cfg, err := config.Load(filepath.Dir(path), path)
	require.NoError(t, err)
	require.Len(t, cfg.Entities, 1)
	assert.Equal(t, "Place", cfg.Entities[0].Entity)
}

func TestConfigInit_KeepsExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "searchsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: 1\n"), 0o644))

	out, err := execute(t, "config", "init", path)

	require.NoError(t, err)
	assert.Contains(t, out, "already exists")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "version: 1\n", string(data))
}

func TestConfigInit_ForceBacksUp(t *testing.T) {
	// Given
	path := filepath.Join(t.TempDir(), "searchsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: 1\n"), 0o644))

	// When
	out, err := execute(t, "config", "init", "--force", path)

	// Then
	require.NoError(t, err)
	assert.Contains(t, out, "backup:")
	backups, err := config.ListBackups(path)
	require.NoError(t, err)
	require.Len(t, backups, 1)
	data, err := os.ReadFile(backups[0])
	require.NoError(t, err)
	assert.Equal(t, "version: 1\n", string(data))
}

func TestConfigShow_RedactsPassword(t *testing.T) {
	// Given a mysql config with a password
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "searchsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  driver: mysql
  dsn: "app:s3cret@tcp(db:3306)/app"
entities:
  - entity: Place
    table: place
    capture_table: place_updates
    id_columns: [{column: place_id, source_column: id}]
    index: [{indexed_type: Place}]
`), 0o644))

	// When
	out, err := execute(t, "--config", path, "config", "show", "--json")

	// Then
	require.NoError(t, err)
	assert.NotContains(t, out, "s3cret")
	var shown config.Config
	require.NoError(t, json.Unmarshal([]byte(out), &shown))
	assert.Equal(t, "mysql", shown.Triggers.Dialect)
	assert.Contains(t, shown.Database.DSN, "app:")
}

func TestConfigPath_FollowsXDG(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)

	out, err := execute(t, "config", "path")

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(xdg, "searchsync", "config.yaml")+"\n", out)
}
