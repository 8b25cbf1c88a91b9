package triggers

import (
	"fmt"
	"strings"

	"github.com/Aman-CERP/searchsync/internal/eventmodel"
)

// MySQLSource generates SQL for MySQL and MariaDB.
type MySQLSource struct{}

func (MySQLSource) Name() string       { return "mysql" }
func (MySQLSource) QuoteToken() string { return "`" }

func (MySQLSource) SetupCode() []string    { return nil }
func (MySQLSource) TeardownCode() []string { return nil }

func mysqlColumnType(t eventmodel.ColumnType) string {
	switch t {
	case eventmodel.ColumnInt64:
		return "BIGINT"
	case eventmodel.ColumnUUID:
		return "CHAR(36)"
	case eventmodel.ColumnBytes:
		return "VARBINARY(255)"
	default:
		return "VARCHAR(255)"
	}
}

func (s MySQLSource) CaptureTableCreateCode(info eventmodel.EventModelInfo) []string {
	q := s.QuoteToken()
	cols := []string{Quote(q, info.KeyColumn) + " BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY"}
	for _, c := range info.IDColumns {
		cols = append(cols, fmt.Sprintf("%s %s NOT NULL", Quote(q, c.Column), mysqlColumnType(c.Type)))
	}
	cols = append(cols, Quote(q, info.EventTypeColumn)+" INT NOT NULL")

	return []string{fmt.Sprintf("CREATE TABLE %s (%s) ENGINE=InnoDB", Quote(q, info.CaptureTable), strings.Join(cols, ", "))}
}

func (s MySQLSource) CaptureTableDropCode(info eventmodel.EventModelInfo) []string {
	return []string{"DROP TABLE " + Quote(s.QuoteToken(), info.CaptureTable)}
}

func (MySQLSource) SpecificSetupCode(eventmodel.EventModelInfo) []string    { return nil }
func (MySQLSource) SpecificTeardownCode(eventmodel.EventModelInfo) []string { return nil }

// TriggerCreateCode uses a single-statement body so no DELIMITER handling is needed.
func (s MySQLSource) TriggerCreateCode(info eventmodel.EventModelInfo, e eventmodel.EventType) []string {
	q := s.QuoteToken()
	return []string{fmt.Sprintf("CREATE TRIGGER %s AFTER %s ON %s FOR EACH ROW %s",
		Quote(q, info.TriggerName(e)), triggerTiming[e], Quote(q, info.SourceTable), captureInsert(q, info, e))}
}

func (s MySQLSource) TriggerDropCode(info eventmodel.EventModelInfo, e eventmodel.EventType) []string {
	return []string{"DROP TRIGGER " + Quote(s.QuoteToken(), info.TriggerName(e))}
}
