package capture

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	serrors "github.com/Aman-CERP/searchsync/internal/errors"
	"github.com/Aman-CERP/searchsync/internal/eventmodel"
)

// OffsetsTable stores the last consumed key per capture table.
const OffsetsTable = "searchsync_offsets"

// ConsumeMode says what happens to capture rows once consumed.
type ConsumeMode string

const (
	// ConsumeDelete removes consumed rows.
	ConsumeDelete ConsumeMode = "delete"
	// ConsumeMark keeps consumed rows; only the stored offset moves.
	ConsumeMark ConsumeMode = "mark"
)

// ParseConsumeMode parses a config value. Empty means delete.
func ParseConsumeMode(s string) (ConsumeMode, error) {
	switch m := ConsumeMode(strings.ToLower(strings.TrimSpace(s))); m {
	case ConsumeDelete, ConsumeMark:
		return m, nil
	case "":
		return ConsumeDelete, nil
	default:
		return "", serrors.ConfigError(fmt.Sprintf("unknown consume mode %q (use delete or mark)", s), nil)
	}
}

// Offsets persists per-table consumption cursors in the primary database.
type Offsets struct {
	db      *sql.DB
	dialect string
	quote   string
	mode    ConsumeMode
	tables  map[string]eventmodel.EventModelInfo
}

// NewOffsets returns an offsets store for infos' capture tables.
func NewOffsets(db *sql.DB, dialect, quote string, mode ConsumeMode, infos []eventmodel.EventModelInfo) *Offsets {
	tables := make(map[string]eventmodel.EventModelInfo, len(infos))
	for _, info := range infos {
		tables[info.CaptureTable] = info
	}
	return &Offsets{db: db, dialect: dialect, quote: quote, mode: mode, tables: tables}
}

func (o *Offsets) q(s string) string {
	return o.quote + s + o.quote
}

// Init creates the offsets table if needed.
func (o *Offsets) Init(ctx context.Context) error {
	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s VARCHAR(255) NOT NULL PRIMARY KEY, %s BIGINT NOT NULL)",
		o.q(OffsetsTable), o.q("capture_table"), o.q("last_key"))
	if _, err := o.db.ExecContext(ctx, stmt); err != nil {
		return serrors.New(serrors.ErrCodeCursorWrite, "create offsets table", err)
	}
	return nil
}

// Load returns, per capture table, the key after which reading resumes.
// In delete mode every row still present is unconsumed, so reading always
// starts from the beginning and the map is empty; a capture table whose
// counter was reset then still delivers its new rows. In mark mode it is the
// stored offset. Tables never consumed are absent, which reads as key 0.
func (o *Offsets) Load(ctx context.Context) (map[string]int64, error) {
	if o.mode == ConsumeDelete {
		return map[string]int64{}, nil
	}
	return o.Stored(ctx)
}

// Stored returns the last committed key per capture table.
func (o *Offsets) Stored(ctx context.Context) (map[string]int64, error) {
	rows, err := o.db.QueryContext(ctx, fmt.Sprintf("SELECT %s, %s FROM %s",
		o.q("capture_table"), o.q("last_key"), o.q(OffsetsTable)))
	if err != nil {
		return nil, serrors.New(serrors.ErrCodeCaptureRead, "load offsets", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]int64)
	for rows.Next() {
		var table string
		var key int64
		if err := rows.Scan(&table, &key); err != nil {
			return nil, serrors.New(serrors.ErrCodeCaptureRead, "load offsets", err)
		}
		out[table] = key
	}
	if err := rows.Err(); err != nil {
		return nil, serrors.New(serrors.ErrCodeCaptureRead, "load offsets", err)
	}
	return out, nil
}

// Reset forgets the stored offsets of tables, or of every configured
// capture table when none are named. A recreated capture table numbers its
// rows from 1 again, so an offset kept across the drop would hide them.
func (o *Offsets) Reset(ctx context.Context, tables ...string) error {
	if err := o.Init(ctx); err != nil {
		return err
	}
	if len(tables) == 0 {
		for t := range o.tables {
			tables = append(tables, t)
		}
	}
	sort.Strings(tables)
	del := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", o.q(OffsetsTable), o.q("capture_table"))
	for _, t := range tables {
		if _, err := o.db.ExecContext(ctx, del, t); err != nil {
			return serrors.New(serrors.ErrCodeCursorWrite, fmt.Sprintf("reset offset of %s", t), err)
		}
	}
	return nil
}

func (o *Offsets) upsert() string {
	if o.dialect == "mysql" {
		return fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES (?, ?) ON DUPLICATE KEY UPDATE %s = VALUES(%s)",
			o.q(OffsetsTable), o.q("capture_table"), o.q("last_key"), o.q("last_key"), o.q("last_key"))
	}
	return fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES (?, ?) ON CONFLICT (%s) DO UPDATE SET %s = excluded.%s",
		o.q(OffsetsTable), o.q("capture_table"), o.q("last_key"), o.q("capture_table"), o.q("last_key"), o.q("last_key"))
}

// Commit records lastKeys and, in delete mode, removes the consumed rows,
// all in one transaction. In mark mode keys never move backwards; in delete
// mode the consumed rows are removed whatever was stored before.
func (o *Offsets) Commit(ctx context.Context, lastKeys map[string]int64) error {
	if len(lastKeys) == 0 {
		return nil
	}
	tables := make([]string, 0, len(lastKeys))
	for t := range lastKeys {
		if _, ok := o.tables[t]; !ok {
			return serrors.InternalError(fmt.Sprintf("commit for unknown capture table %q", t), nil)
		}
		tables = append(tables, t)
	}
	sort.Strings(tables)

	tx, err := o.db.BeginTx(ctx, nil)
	if err != nil {
		return serrors.New(serrors.ErrCodeCursorWrite, "begin offsets transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	current := make(map[string]int64)
	rows, err := tx.QueryContext(ctx, fmt.Sprintf("SELECT %s, %s FROM %s",
		o.q("capture_table"), o.q("last_key"), o.q(OffsetsTable)))
	if err != nil {
		return serrors.New(serrors.ErrCodeCursorWrite, "read offsets", err)
	}
	for rows.Next() {
		var t string
		var k int64
		if err := rows.Scan(&t, &k); err != nil {
			_ = rows.Close()
			return serrors.New(serrors.ErrCodeCursorWrite, "read offsets", err)
		}
		current[t] = k
	}
	_ = rows.Close()

	upsert := o.upsert()
	for _, t := range tables {
		key := lastKeys[t]
		if prev, ok := current[t]; ok && prev >= key && o.mode == ConsumeMark {
			continue
		}
		if _, err := tx.ExecContext(ctx, upsert, t, key); err != nil {
			return serrors.New(serrors.ErrCodeCursorWrite, fmt.Sprintf("store offset for %s", t), err)
		}
		if o.mode == ConsumeDelete {
			info := o.tables[t]
			del := fmt.Sprintf("DELETE FROM %s WHERE %s <= ?", o.q(info.CaptureTable), o.q(info.KeyColumn))
			if _, err := tx.ExecContext(ctx, del, key); err != nil {
				return serrors.New(serrors.ErrCodeCursorWrite, fmt.Sprintf("consume rows of %s", t), err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return serrors.New(serrors.ErrCodeCursorWrite, "commit offsets", err)
	}
	return nil
}

// TableStatus describes consumption progress of one capture table.
type TableStatus struct {
	Table   string `json:"table"`
	Entity  string `json:"entity"`
	LastKey int64  `json:"last_key"`
	Pending int64  `json:"pending"`
}

// Status returns, per capture table in name order, the stored offset and
// the number of rows not consumed yet.
func (o *Offsets) Status(ctx context.Context) ([]TableStatus, error) {
	stored, err := o.Stored(ctx)
	if err != nil {
		return nil, err
	}
	resume, err := o.Load(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(o.tables))
	for t := range o.tables {
		names = append(names, t)
	}
	sort.Strings(names)

	out := make([]TableStatus, 0, len(names))
	for _, t := range names {
		info := o.tables[t]
		st := TableStatus{Table: t, Entity: info.EntityType, LastKey: stored[t]}
		query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s > ?", o.q(info.CaptureTable), o.q(info.KeyColumn))
		if err := o.db.QueryRowContext(ctx, query, resume[t]).Scan(&st.Pending); err != nil {
			return nil, serrors.New(serrors.ErrCodeCaptureRead, fmt.Sprintf("count pending rows of %s", t), err)
		}
		out = append(out, st)
	}
	return out, nil
}
