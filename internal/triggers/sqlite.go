package triggers

import (
	"fmt"
	"strings"

	"github.com/Aman-CERP/searchsync/internal/eventmodel"
)

// SQLiteSource generates SQL for SQLite.
type SQLiteSource struct{}

func (SQLiteSource) Name() string       { return "sqlite" }
func (SQLiteSource) QuoteToken() string { return `"` }

func (SQLiteSource) SetupCode() []string    { return nil }
func (SQLiteSource) TeardownCode() []string { return nil }

func sqliteColumnType(t eventmodel.ColumnType) string {
	switch t {
	case eventmodel.ColumnInt64:
		return "INTEGER"
	case eventmodel.ColumnBytes:
		return "BLOB"
	default:
		return "TEXT"
	}
}

// CaptureTableCreateCode creates the capture table. AUTOINCREMENT keeps keys
// strictly increasing even after the newest rows are consumed.
func (s SQLiteSource) CaptureTableCreateCode(info eventmodel.EventModelInfo) []string {
	q := s.QuoteToken()
	cols := []string{Quote(q, info.KeyColumn) + " INTEGER PRIMARY KEY AUTOINCREMENT"}
	for _, c := range info.IDColumns {
		cols = append(cols, fmt.Sprintf("%s %s NOT NULL", Quote(q, c.Column), sqliteColumnType(c.Type)))
	}
	cols = append(cols, Quote(q, info.EventTypeColumn)+" INTEGER NOT NULL")

	return []string{fmt.Sprintf("CREATE TABLE %s (%s)", Quote(q, info.CaptureTable), strings.Join(cols, ", "))}
}

func (s SQLiteSource) CaptureTableDropCode(info eventmodel.EventModelInfo) []string {
	return []string{"DROP TABLE " + Quote(s.QuoteToken(), info.CaptureTable)}
}

func (SQLiteSource) SpecificSetupCode(eventmodel.EventModelInfo) []string    { return nil }
func (SQLiteSource) SpecificTeardownCode(eventmodel.EventModelInfo) []string { return nil }

func (s SQLiteSource) TriggerCreateCode(info eventmodel.EventModelInfo, e eventmodel.EventType) []string {
	q := s.QuoteToken()
	return []string{fmt.Sprintf("CREATE TRIGGER %s AFTER %s ON %s FOR EACH ROW BEGIN %s; END",
		Quote(q, info.TriggerName(e)), triggerTiming[e], Quote(q, info.SourceTable), captureInsert(q, info, e))}
}

func (s SQLiteSource) TriggerDropCode(info eventmodel.EventModelInfo, e eventmodel.EventType) []string {
	return []string{"DROP TRIGGER " + Quote(s.QuoteToken(), info.TriggerName(e))}
}
