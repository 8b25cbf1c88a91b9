// Package triggers generates and installs the capture tables and database
// triggers that record changes to watched entities.
//
// Generated SQL is executed verbatim without parameter binding, so every
// identifier is quoted with the dialect's quote token.
package triggers

import (
	"fmt"
	"strings"

	serrors "github.com/Aman-CERP/searchsync/internal/errors"
	"github.com/Aman-CERP/searchsync/internal/eventmodel"
)

// Source produces dialect-specific SQL for one database.
type Source interface {
	// Name returns the dialect name.
	Name() string
	// SetupCode returns one-time statements run before any entity's triggers.
	SetupCode() []string
	// TeardownCode reverses SetupCode.
	TeardownCode() []string
	CaptureTableCreateCode(info eventmodel.EventModelInfo) []string
	CaptureTableDropCode(info eventmodel.EventModelInfo) []string
	// SpecificSetupCode returns per-entity statements run after the capture table exists.
	SpecificSetupCode(info eventmodel.EventModelInfo) []string
	SpecificTeardownCode(info eventmodel.EventModelInfo) []string
	TriggerCreateCode(info eventmodel.EventModelInfo, e eventmodel.EventType) []string
	TriggerDropCode(info eventmodel.EventModelInfo, e eventmodel.EventType) []string
	// QuoteToken returns the identifier quoting character.
	QuoteToken() string
}

// SourceForDialect returns the Source for a dialect name.
func SourceForDialect(name string) (Source, error) {
	switch strings.ToLower(name) {
	case "sqlite", "sqlite3":
		return SQLiteSource{}, nil
	case "mysql":
		return MySQLSource{}, nil
	default:
		return nil, serrors.New(serrors.ErrCodeTriggerSourceUnknown,
			fmt.Sprintf("no trigger source for dialect %q", name), nil).
			WithSuggestion("set triggers.dialect to sqlite or mysql")
	}
}

// Quote wraps an identifier in q.
func Quote(q, ident string) string {
	return q + strings.ReplaceAll(ident, q, q+q) + q
}

// rowRef returns the trigger row alias holding the entity id: the new row
// for inserts and updates, the old row for deletes.
func rowRef(e eventmodel.EventType) string {
	if e == eventmodel.EventDelete {
		return "OLD"
	}
	return "NEW"
}

var triggerTiming = map[eventmodel.EventType]string{
	eventmodel.EventInsert: "INSERT",
	eventmodel.EventUpdate: "UPDATE",
	eventmodel.EventDelete: "DELETE",
}

// captureInsert returns the INSERT INTO capture table statement run by a trigger body.
func captureInsert(q string, info eventmodel.EventModelInfo, e eventmodel.EventType) string {
	cols := make([]string, 0, len(info.IDColumns)+1)
	vals := make([]string, 0, len(info.IDColumns)+1)
	for _, c := range info.IDColumns {
		cols = append(cols, Quote(q, c.Column))
		vals = append(vals, rowRef(e)+"."+Quote(q, c.SourceColumn))
	}
	cols = append(cols, Quote(q, info.EventTypeColumn))
	vals = append(vals, fmt.Sprintf("%d", e.Code()))

	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		Quote(q, info.CaptureTable), strings.Join(cols, ", "), strings.Join(vals, ", "))
}
