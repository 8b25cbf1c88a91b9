package eventmodel

import (
	"fmt"
	"regexp"

	serrors "github.com/Aman-CERP/searchsync/internal/errors"
)

var identifierRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier reports whether s can be spliced into generated SQL.
// Trigger SQL is executed verbatim, so identifiers are restricted to
// letters, digits and underscores.
func ValidIdentifier(s string) bool {
	return identifierRE.MatchString(s)
}

// IDColumnDecl declares one id column.
type IDColumnDecl struct {
	Column       string
	SourceColumn string
	Type         string
}

// EntityDecl is the declarative description of a watched entity.
type EntityDecl struct {
	Entity          string
	Table           string
	CaptureTable    string
	KeyColumn       string
	EventTypeColumn string
	IDColumns       []IDColumnDecl
	Index           []IndexRef
	Columns         []string
}

// Builder turns declarations into EventModelInfo values.
type Builder struct {
	decls []EntityDecl
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Add appends a declaration. Order is preserved in the built model.
func (b *Builder) Add(decls ...EntityDecl) *Builder {
	b.decls = append(b.decls, decls...)
	return b
}

// Build validates every declaration and returns the model in declaration
// order. Every problem found is reported; no partial model is returned.
func (b *Builder) Build() ([]EventModelInfo, error) {
	var errs []error
	infos := make([]EventModelInfo, 0, len(b.decls))
	captureTables := make(map[string]string)

	for i, d := range b.decls {
		info, declErrs := buildOne(i, d)
		errs = append(errs, declErrs...)
		if len(declErrs) > 0 {
			continue
		}
		if prev, ok := captureTables[info.CaptureTable]; ok {
			errs = append(errs, serrors.ConfigError(
				fmt.Sprintf("capture table %q is declared by both %s and %s", info.CaptureTable, prev, info.EntityType), nil))
			continue
		}
		captureTables[info.CaptureTable] = info.EntityType
		infos = append(infos, info)
	}

	if len(errs) > 0 {
		return nil, serrors.Join(errs...)
	}
	return infos, nil
}

func buildOne(i int, d EntityDecl) (EventModelInfo, []error) {
	var errs []error
	name := d.Entity
	if name == "" {
		name = fmt.Sprintf("entities[%d]", i)
	}
	missing := func(what string) {
		errs = append(errs, serrors.MappingError(fmt.Sprintf("%s: missing %s", name, what)))
	}
	ident := func(what, v string) {
		if v != "" && !ValidIdentifier(v) {
			errs = append(errs, serrors.ConfigError(fmt.Sprintf("%s: %s %q is not a valid identifier", name, what, v), nil))
		}
	}

	if d.Entity == "" {
		missing("originating entity reference")
	}
	if d.Table == "" {
		missing("source table")
	}
	if d.CaptureTable == "" {
		missing("capture table")
	}
	if d.KeyColumn == "" {
		missing("capture key column")
	}
	if d.EventTypeColumn == "" {
		missing("event type column")
	}
	if len(d.IDColumns) == 0 {
		missing("id mapping")
	}
	ident("table", d.Table)
	ident("capture table", d.CaptureTable)
	ident("key column", d.KeyColumn)
	ident("event type column", d.EventTypeColumn)

	info := EventModelInfo{
		EntityType:      d.Entity,
		SourceTable:     d.Table,
		CaptureTable:    d.CaptureTable,
		KeyColumn:       d.KeyColumn,
		EventTypeColumn: d.EventTypeColumn,
		Index:           append([]IndexRef(nil), d.Index...),
		Columns:         append([]string(nil), d.Columns...),
	}

	for j, c := range d.IDColumns {
		if c.Column == "" {
			missing(fmt.Sprintf("id_columns[%d].column", j))
			continue
		}
		ident("id column", c.Column)
		src := c.SourceColumn
		if src == "" {
			src = c.Column
		}
		ident("source id column", src)
		typ, err := ParseColumnType(c.Type)
		if err != nil {
			errs = append(errs, serrors.ConfigError(fmt.Sprintf("%s: %v", name, err), nil))
			continue
		}
		info.IDColumns = append(info.IDColumns, IDColumn{Column: c.Column, SourceColumn: src, Type: typ})
	}
	for _, c := range d.Columns {
		ident("snapshot column", c)
	}
	for j, ref := range d.Index {
		if ref.IndexedType == "" {
			missing(fmt.Sprintf("index[%d].indexed_type", j))
		}
		if ref.IDField == "" {
			missing(fmt.Sprintf("index[%d].id_field", j))
		}
	}

	return info, errs
}
