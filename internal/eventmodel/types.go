package eventmodel

import (
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// EventType is the kind of change a capture row represents.
type EventType int

const (
	// EventUnknown marks a capture row whose event column holds an
	// unrecognized value. Such rows are skipped, never applied.
	EventUnknown EventType = iota
	// EventInsert is a row inserted into the source table.
	EventInsert
	// EventUpdate is a row updated in the source table.
	EventUpdate
	// EventDelete is a row deleted from the source table.
	EventDelete
)

// Capture table codes. Negative so they never collide with user-assigned
// positive ids or enum values.
const (
	CodeInsert int64 = -3
	CodeUpdate int64 = -2
	CodeDelete int64 = -1
)

// AllEventTypes returns the event types that triggers are generated for.
func AllEventTypes() []EventType {
	return []EventType{EventInsert, EventUpdate, EventDelete}
}

// EventTypeFromCode maps a capture table code to an EventType.
func EventTypeFromCode(code int64) EventType {
	switch code {
	case CodeInsert:
		return EventInsert
	case CodeUpdate:
		return EventUpdate
	case CodeDelete:
		return EventDelete
	default:
		return EventUnknown
	}
}

// Code returns the capture table code, or 0 for EventUnknown.
func (e EventType) Code() int64 {
	switch e {
	case EventInsert:
		return CodeInsert
	case EventUpdate:
		return CodeUpdate
	case EventDelete:
		return CodeDelete
	default:
		return 0
	}
}

// String returns a lowercase name, used in logs, metric labels and trigger names.
func (e EventType) String() string {
	switch e {
	case EventInsert:
		return "insert"
	case EventUpdate:
		return "update"
	case EventDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// ColumnType is the value type of an id column.
type ColumnType int

const (
	ColumnInt64 ColumnType = iota
	ColumnString
	ColumnUUID
	ColumnBytes
)

// ParseColumnType parses a config value. Empty means int64.
func ParseColumnType(s string) (ColumnType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "int64", "int", "integer", "long":
		return ColumnInt64, nil
	case "string", "text":
		return ColumnString, nil
	case "uuid":
		return ColumnUUID, nil
	case "bytes", "binary":
		return ColumnBytes, nil
	default:
		return 0, fmt.Errorf("unknown column type %q (use int64, string, uuid or bytes)", s)
	}
}

func (c ColumnType) String() string {
	switch c {
	case ColumnInt64:
		return "int64"
	case ColumnString:
		return "string"
	case ColumnUUID:
		return "uuid"
	case ColumnBytes:
		return "bytes"
	default:
		return "unknown"
	}
}

// Normalize converts a value scanned from a database driver into the
// canonical Go type for c: int64, string, string (canonical UUID form) or []byte.
func (c ColumnType) Normalize(v any) (any, error) {
	if v == nil {
		return nil, fmt.Errorf("null %s id value", c)
	}
	switch c {
	case ColumnInt64:
		switch x := v.(type) {
		case int64:
			return x, nil
		case int:
			return int64(x), nil
		case int32:
			return int64(x), nil
		case uint64:
			if x > math.MaxInt64 {
				return nil, fmt.Errorf("int64 id value %d out of range", x)
			}
			return int64(x), nil
		case []byte:
			return strconv.ParseInt(string(x), 10, 64)
		case string:
			return strconv.ParseInt(x, 10, 64)
		}
	case ColumnString:
		switch x := v.(type) {
		case string:
			return x, nil
		case []byte:
			return string(x), nil
		case int64:
			return strconv.FormatInt(x, 10), nil
		}
	case ColumnUUID:
		switch x := v.(type) {
		case string:
			u, err := uuid.Parse(x)
			if err != nil {
				return nil, err
			}
			return u.String(), nil
		case []byte:
			if len(x) == 16 {
				u, err := uuid.FromBytes(x)
				if err != nil {
					return nil, err
				}
				return u.String(), nil
			}
			u, err := uuid.ParseBytes(x)
			if err != nil {
				return nil, err
			}
			return u.String(), nil
		}
	case ColumnBytes:
		switch x := v.(type) {
		case []byte:
			return append([]byte(nil), x...), nil
		case string:
			return []byte(x), nil
		}
	}
	return nil, fmt.Errorf("cannot use %T as %s id value", v, c)
}

// ID is an entity id: an ordered tuple of normalized column values.
// Single-column ids have one element.
type ID []any

// String renders the id so that distinct ids never render equal.
// It is used as a grouping key, not as an index representation.
func (id ID) String() string {
	parts := make([]string, len(id))
	for i, v := range id {
		switch x := v.(type) {
		case int64:
			parts[i] = strconv.FormatInt(x, 10)
		case string:
			parts[i] = strconv.Quote(x)
		case []byte:
			parts[i] = "0x" + hex.EncodeToString(x)
		default:
			parts[i] = fmt.Sprintf("%T(%v)", v, v)
		}
	}
	return strings.Join(parts, ",")
}

// Args returns the id values as query arguments.
func (id ID) Args() []any {
	return append([]any(nil), id...)
}
