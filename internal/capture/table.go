package capture

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/Aman-CERP/searchsync/internal/eventmodel"
)

// Querier runs a query. *sql.DB, *sql.Conn and *sql.Tx satisfy it.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// TableSource pages through one capture table.
type TableSource struct {
	db    Querier
	info  eventmodel.EventModelInfo
	query string
}

var _ PageSource = (*TableSource)(nil)

// NewTableSource returns a PageSource for info's capture table, quoting
// identifiers with quote.
func NewTableSource(db Querier, info eventmodel.EventModelInfo, quote string) *TableSource {
	q := func(s string) string { return quote + s + quote }
	cols := []string{q(info.KeyColumn)}
	for _, c := range info.IDColumns {
		cols = append(cols, q(c.Column))
	}
	cols = append(cols, q(info.EventTypeColumn))

	return &TableSource{
		db:   db,
		info: info,
		query: fmt.Sprintf("SELECT %s FROM %s WHERE %s > ? ORDER BY %s ASC LIMIT ?",
			strings.Join(cols, ", "), q(info.CaptureTable), q(info.KeyColumn), q(info.KeyColumn)),
	}
}

// Name returns the capture table name.
func (t *TableSource) Name() string {
	return t.info.CaptureTable
}

// FetchPage implements PageSource.
func (t *TableSource) FetchPage(ctx context.Context, afterKey int64, limit int) ([]Row, error) {
	rows, err := t.db.QueryContext(ctx, t.query, afterKey, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	n := len(t.info.IDColumns)
	var out []Row
	for rows.Next() {
		var (
			key  int64
			code int64
			raw  = make([]any, n)
		)
		dest := make([]any, 0, n+2)
		dest = append(dest, &key)
		for i := range raw {
			dest = append(dest, &raw[i])
		}
		dest = append(dest, &code)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}

		id := make(eventmodel.ID, n)
		for i, c := range t.info.IDColumns {
			v, err := c.Type.Normalize(raw[i])
			if err != nil {
				return nil, fmt.Errorf("%s key %d column %s: %w", t.info.CaptureTable, key, c.Column, err)
			}
			id[i] = v
		}
		out = append(out, Row{
			Key:          key,
			ID:           id,
			EventType:    eventmodel.EventTypeFromCode(code),
			RawEventType: code,
		})
	}
	return out, rows.Err()
}
