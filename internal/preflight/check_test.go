package preflight

import (
	"bytes"
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/Aman-CERP/searchsync/internal/config"
	"github.com/Aman-CERP/searchsync/internal/eventmodel"
	"github.com/Aman-CERP/searchsync/internal/lock"
	"github.com/Aman-CERP/searchsync/internal/output"
	"github.com/Aman-CERP/searchsync/internal/triggers"
)

const placeYAML = `
database:
  dsn: "unused.db"
index:
  path: ""
entities:
  - entity: Place
    table: place
    capture_table: place_updates
    id_columns: [{column: place_id, source_column: id}]
    index: [{indexed_type: Place}]
`

func setup(t *testing.T) (*config.Config, []eventmodel.EventModelInfo, *sql.DB) {
	t.Helper()
	cfg, err := config.Parse([]byte(placeYAML))
	require.NoError(t, err)
	model, err := cfg.BuildModel()
	require.NoError(t, err)

	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "app.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Exec(`CREATE TABLE place (id INTEGER PRIMARY KEY, name TEXT)`)
	require.NoError(t, err)
	return cfg, model, db
}

func find(t *testing.T, results []CheckResult, name string) CheckResult {
	t.Helper()
	for _, r := range results {
		if r.Name == name {
			return r
		}
	}
	t.Fatalf("no check named %q", name)
	return CheckResult{}
}

func TestCheckStatus_String(t *testing.T) {
	tests := []struct {
		status CheckStatus
		want   string
	}{
		{StatusPass, "PASS"},
		{StatusWarn, "WARN"},
		{StatusFail, "FAIL"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.String())
		})
	}
}

func TestCheckResult_IsCritical(t *testing.T) {
	tests := []struct {
		name     string
		result   CheckResult
		expected bool
	}{
		{"required pass is not critical", CheckResult{Status: StatusPass, Required: true}, false},
		{"required fail is critical", CheckResult{Status: StatusFail, Required: true}, true},
		{"optional fail is not critical", CheckResult{Status: StatusFail}, false},
		{"required warn is not critical", CheckResult{Status: StatusWarn, Required: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.result.IsCritical())
		})
	}
}

func TestRunAll_BeforeInstall(t *testing.T) {
	// Given a database without capture tables
	cfg, model, db := setup(t)
	checker := New(cfg, model, WithDatabase(db))

	// When
	results := checker.RunAll(context.Background())

	// Then
	assert.Equal(t, StatusPass, find(t, results, "database").Status)
	entity := find(t, results, "entity Place")
	assert.Equal(t, StatusFail, entity.Status)
	assert.Contains(t, entity.Message, "capture table place_updates not found")
	assert.Equal(t, StatusWarn, find(t, results, "offsets").Status)
	assert.True(t, checker.HasCriticalFailures(results))
	assert.Equal(t, "failed", checker.SummaryStatus(results))
}

func TestRunAll_AfterInstall(t *testing.T) {
	// Given
	cfg, model, db := setup(t)
	_, err := triggers.NewInstaller(triggers.SQLiteSource{}, db, nil).Install(context.Background(), model, triggers.StrategyCreate)
	require.NoError(t, err)
	checker := New(cfg, model, WithDatabase(db))

	// When
	results := checker.RunAll(context.Background())

	// Then
	assert.Equal(t, StatusPass, find(t, results, "entity Place").Status)
	assert.False(t, checker.HasCriticalFailures(results))
}

func TestCheckSchema_MissingTrigger(t *testing.T) {
	// Given one trigger dropped after install
	cfg, model, db := setup(t)
	_, err := triggers.NewInstaller(triggers.SQLiteSource{}, db, nil).Install(context.Background(), model, triggers.StrategyCreate)
	require.NoError(t, err)
	_, err = db.Exec(`DROP TRIGGER place_updates_update`)
	require.NoError(t, err)

	// When
	results := New(cfg, model, WithDatabase(db)).CheckSchema(context.Background())

	// Then
	require.Len(t, results, 1)
	assert.Equal(t, StatusFail, results[0].Status)
	assert.Contains(t, results[0].Message, "2 of 3 triggers")
}

func TestCheckSchema_MissingSourceTable(t *testing.T) {
	cfg, model, db := setup(t)
	_, err := db.Exec(`DROP TABLE place`)
	require.NoError(t, err)

	results := New(cfg, model, WithDatabase(db)).CheckSchema(context.Background())

	require.Len(t, results, 1)
	assert.Contains(t, results[0].Message, "source table place not found")
}

func TestRunAll_WithoutDatabase(t *testing.T) {
	cfg, model, _ := setup(t)
	checker := New(cfg, model)

	results := checker.RunAll(context.Background())

	assert.Equal(t, StatusFail, find(t, results, "database").Status)
	assert.Equal(t, StatusWarn, find(t, results, "entity Place").Status)
	assert.True(t, checker.HasCriticalFailures(results))
}

func TestCheckIndexLock_HeldByPoller(t *testing.T) {
	// Given
	cfg, model, _ := setup(t)
	cfg.Index.Path = t.TempDir()
	held, err := lock.Acquire(cfg.Index.Path)
	require.NoError(t, err)
	defer held.Unlock()

	// When
	r := New(cfg, model).CheckIndexLock()

	// Then
	assert.Equal(t, StatusWarn, r.Status)
	assert.Contains(t, r.Message, "held by a running poller")
}

func TestCheckIndexPathAndDisk(t *testing.T) {
	cfg, model, _ := setup(t)
	cfg.Index.Path = filepath.Join(t.TempDir(), "nested", "index")
	checker := New(cfg, model)

	assert.Equal(t, StatusPass, checker.CheckDiskSpace(cfg.Index.Path).Status)
	assert.Equal(t, StatusPass, checker.CheckIndexPath().Status)
	assert.DirExists(t, cfg.Index.Path)
}

func TestPrintResults(t *testing.T) {
	buf := &bytes.Buffer{}
	cfg, model, _ := setup(t)
	checker := New(cfg, model)
	results := []CheckResult{
		{Name: "database", Status: StatusPass, Message: "sqlite reachable", Required: true},
		{Name: "offsets", Status: StatusWarn, Message: "missing", Details: "created on first run"},
	}

	checker.PrintResults(output.NewPlain(buf), results, true)

	out := buf.String()
	assert.Contains(t, out, "ok: database: sqlite reachable")
	assert.Contains(t, out, "warning: offsets: missing")
	assert.Contains(t, out, "created on first run")
	assert.Contains(t, out, "status: READY_WITH_WARNINGS")
}
