package eventmodel

// IDColumn maps one capture table column back to the source table column it mirrors.
type IDColumn struct {
	// Column is the column name in the capture table.
	Column string
	// SourceColumn is the column name in the source table.
	SourceColumn string
	Type         ColumnType
}

// IndexRef names an indexed type that documents of an entity are written to.
type IndexRef struct {
	IndexedType string
	// IDField is the document field holding the encoded entity id.
	IDField string
	// Encoder names the two-way value encoder for IDField. Empty selects
	// the numeric default, which only single int64 ids accept.
	Encoder string
}

// EventModelInfo describes one watched entity and its capture table.
type EventModelInfo struct {
	EntityType      string
	SourceTable     string
	CaptureTable    string
	KeyColumn       string
	EventTypeColumn string
	IDColumns       []IDColumn
	Index           []IndexRef
	// Columns are the source columns fetched as the entity snapshot.
	// Empty fetches every column.
	Columns []string
}

// SourceIDColumns returns the source table columns that make up the entity id.
func (m EventModelInfo) SourceIDColumns() []string {
	cols := make([]string, len(m.IDColumns))
	for i, c := range m.IDColumns {
		cols[i] = c.SourceColumn
	}
	return cols
}

// TriggerName returns the trigger name used for event type e.
func (m EventModelInfo) TriggerName(e EventType) string {
	return m.CaptureTable + "_" + e.String()
}
