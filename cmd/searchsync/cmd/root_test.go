package cmd

import (
	"bytes"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

const projectYAML = `
database:
  dsn: %q
index:
  backend: %s
  path: %q
entities:
  - entity: Place
    table: place
    capture_table: place_updates
    id_columns: [{column: place_id, source_column: id}]
    index: [{indexed_type: Place}]
`

// project is a temp directory with an application database and a config
// file pointing at it.
type project struct {
	dir    string
	config string
	db     *sql.DB
}

func newProject(t *testing.T, backend string) *project {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	dir := t.TempDir()
	dsn := filepath.Join(dir, "app.db")

	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Exec(`CREATE TABLE place (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`)
	require.NoError(t, err)

	cfgPath := filepath.Join(dir, "searchsync.yaml")
	content := fmt.Sprintf(projectYAML, dsn, backend, filepath.Join(dir, "index"))
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o644))
	return &project{dir: dir, config: cfgPath, db: db}
}

// run executes the root command with --config and returns stdout.
func (p *project) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return execute(t, append([]string{"--config", p.config}, args...)...)
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	stdout := &bytes.Buffer{}
	root.SetOut(stdout)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), err
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	root := NewRootCmd()

	for _, name := range []string{"run", "sync", "triggers", "status", "search", "purge", "index", "config", "doctor", "logs", "version"} {
		t.Run(name, func(t *testing.T) {
			found, _, err := root.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, found.Name())
		})
	}
}

func TestRootCmd_PersistentFlags(t *testing.T) {
	root := NewRootCmd()

	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
	assert.NotNil(t, root.PersistentFlags().Lookup("debug"))
}

func TestRootCmd_MissingExplicitConfig(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	_, err := execute(t, "--config", filepath.Join(t.TempDir(), "nope.yaml"), "status")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
}

func TestCLI_SyncThenSearch(t *testing.T) {
	for _, backend := range []string{"bleve", "sqlite"} {
		t.Run(backend, func(t *testing.T) {
			// Given an installed project with two rows
			p := newProject(t, backend)
			_, err := p.run(t, "triggers", "install")
			require.NoError(t, err)
			_, err = p.db.Exec(`INSERT INTO place (id, name) VALUES (1, 'Harbor View'), (2, 'Mountain Lodge')`)
			require.NoError(t, err)

			// When
			out, err := p.run(t, "sync")

			// Then
			require.NoError(t, err)
			assert.Contains(t, out, "applied 2 events from 2 capture rows")

			out, err = p.run(t, "search", "Place", "harbor")
			require.NoError(t, err)
			assert.Contains(t, out, "1")
			assert.NotContains(t, out, "no matches")

			out, err = p.run(t, "search", "Place", "nothing-like-this")
			require.NoError(t, err)
			assert.Contains(t, out, "no matches")
		})
	}
}

func TestCLI_SyncWithNothingPending(t *testing.T) {
	p := newProject(t, "sqlite")

	out, err := p.run(t, "sync")

	require.NoError(t, err)
	assert.Contains(t, out, "nothing to sync")
}

func TestCLI_StatusShowsPending(t *testing.T) {
	// Given
	p := newProject(t, "sqlite")
	_, err := p.run(t, "triggers", "install")
	require.NoError(t, err)
	_, err = p.db.Exec(`INSERT INTO place (id, name) VALUES (1, 'a'), (2, 'b')`)
	require.NoError(t, err)

	// When
	out, err := p.run(t, "status")

	// Then
	require.NoError(t, err)
	assert.Contains(t, out, "place_updates")
	assert.Contains(t, out, "2 capture rows pending")

	// When synced
	_, err = p.run(t, "sync")
	require.NoError(t, err)
	out, err = p.run(t, "status")

	// Then
	require.NoError(t, err)
	assert.Contains(t, out, "index is up to date")
}

func TestCLI_IndexAndPurge(t *testing.T) {
	// Given a row written before any trigger existed
	p := newProject(t, "sqlite")
	_, err := p.db.Exec(`INSERT INTO place (id, name) VALUES (3, 'Quiet Bay')`)
	require.NoError(t, err)
	_, err = p.run(t, "triggers", "install")
	require.NoError(t, err)

	// When
	out, err := p.run(t, "index", "Place", "3")

	// Then
	require.NoError(t, err)
	assert.Contains(t, out, "indexed Place 3")
	out, err = p.run(t, "search", "Place", "bay")
	require.NoError(t, err)
	assert.NotContains(t, out, "no matches")

	// When
	out, err = p.run(t, "purge", "Place", "3")

	// Then
	require.NoError(t, err)
	assert.Contains(t, out, "purged Place 3")
	out, err = p.run(t, "search", "Place", "bay")
	require.NoError(t, err)
	assert.Contains(t, out, "no matches")
}

func TestCLI_SearchRejectsBadLimit(t *testing.T) {
	p := newProject(t, "sqlite")

	_, err := p.run(t, "search", "Place", "--limit", "0")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "--limit")
}

func TestRootCmd_ProfileFlags(t *testing.T) {
	dir := t.TempDir()
	heap := filepath.Join(dir, "heap.prof")
	cpu := filepath.Join(dir, "cpu.prof")

	_, err := execute(t, "--profile-mem", heap, "--profile-cpu", cpu, "version", "--short")

	require.NoError(t, err)
	assert.FileExists(t, heap)
	assert.FileExists(t, cpu)
}
