package entity

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Aman-CERP/searchsync/internal/errors"
	"github.com/Aman-CERP/searchsync/internal/eventmodel"
)

// DefaultStatementCacheSize bounds the prepared statements kept per session.
const DefaultStatementCacheSize = 64

// SQLProvider reads snapshots from the source tables named in the event model.
type SQLProvider struct {
	db        *sql.DB
	queries   map[string]string
	cacheSize int
}

var _ Provider = (*SQLProvider)(nil)

// NewSQLProvider builds one lookup query per entity type. Identifiers are
// quoted with quote. cacheSize <= 0 uses DefaultStatementCacheSize.
func NewSQLProvider(db *sql.DB, infos []eventmodel.EventModelInfo, quote string, cacheSize int) *SQLProvider {
	if cacheSize <= 0 {
		cacheSize = DefaultStatementCacheSize
	}
	q := func(s string) string { return quote + s + quote }

	queries := make(map[string]string, len(infos))
	for _, info := range infos {
		cols := "*"
		if len(info.Columns) > 0 {
			quoted := make([]string, len(info.Columns))
			for i, c := range info.Columns {
				quoted[i] = q(c)
			}
			cols = strings.Join(quoted, ", ")
		}
		where := make([]string, len(info.IDColumns))
		for i, c := range info.IDColumns {
			where[i] = q(c.SourceColumn) + " = ?"
		}
		queries[info.EntityType] = fmt.Sprintf("SELECT %s FROM %s WHERE %s",
			cols, q(info.SourceTable), strings.Join(where, " AND "))
	}
	return &SQLProvider{db: db, queries: queries, cacheSize: cacheSize}
}

// Query returns the lookup query of entityType.
func (p *SQLProvider) Query(entityType string) (string, bool) {
	q, ok := p.queries[entityType]
	return q, ok
}

// Open pins one connection for the session.
func (p *SQLProvider) Open(ctx context.Context) (Session, error) {
	conn, err := p.db.Conn(ctx)
	if err != nil {
		return nil, errors.New(errors.ErrCodeDBUnavailable, "failed to open entity session", err)
	}
	stmts, err := lru.NewWithEvict[string, *sql.Stmt](p.cacheSize, func(_ string, stmt *sql.Stmt) {
		_ = stmt.Close()
	})
	if err != nil {
		_ = conn.Close()
		return nil, errors.InternalError("failed to create statement cache", err)
	}
	return &sqlSession{p: p, conn: conn, stmts: stmts}, nil
}

type sqlSession struct {
	p      *SQLProvider
	conn   *sql.Conn
	stmts  *lru.Cache[string, *sql.Stmt]
	closed bool
}

func (s *sqlSession) stmt(ctx context.Context, entityType string) (*sql.Stmt, error) {
	if st, ok := s.stmts.Get(entityType); ok {
		return st, nil
	}
	query, ok := s.p.queries[entityType]
	if !ok {
		return nil, errors.MappingError("no source table registered for entity " + entityType)
	}
	st, err := s.conn.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	s.stmts.Add(entityType, st)
	return st, nil
}

func (s *sqlSession) Get(ctx context.Context, entityType string, id eventmodel.ID) (*Snapshot, error) {
	if s.closed {
		return nil, errors.StateError("entity session is closed")
	}
	st, err := s.stmt(ctx, entityType)
	if err != nil {
		return nil, err
	}

	rows, err := st.QueryContext(ctx, id.Args()...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		return nil, rows.Err()
	}
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	vals := make([]any, len(cols))
	dest := make([]any, len(cols))
	for i := range vals {
		dest[i] = &vals[i]
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, err
	}

	fields := make(map[string]any, len(cols))
	for i, c := range cols {
		if b, ok := vals[i].([]byte); ok {
			fields[c] = string(b)
			continue
		}
		fields[c] = vals[i]
	}
	return &Snapshot{EntityType: entityType, ID: id, Fields: fields}, rows.Err()
}

// Close closes every cached statement, then the connection.
func (s *sqlSession) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.stmts.Purge()
	return s.conn.Close()
}
