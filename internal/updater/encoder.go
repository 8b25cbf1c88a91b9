package updater

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/Aman-CERP/searchsync/internal/errors"
	"github.com/Aman-CERP/searchsync/internal/eventmodel"
)

// Encoder converts an entity id to the string stored in an index id field,
// and back.
type Encoder interface {
	Name() string
	Encode(id eventmodel.ID) (string, error)
	Decode(s string) (eventmodel.ID, error)
}

// Encoder names accepted in index mappings.
const (
	EncoderInt64     = "int64"
	EncoderString    = "string"
	EncoderUUID      = "uuid"
	EncoderComposite = "composite"
)

// LookupEncoder resolves the named encoder for an id made of cols. An empty
// name selects int64, which only a single int64 column accepts: any other id
// is rendered as a string and needs its encoder named.
func LookupEncoder(name string, cols []eventmodel.IDColumn) (Encoder, error) {
	types := make([]eventmodel.ColumnType, len(cols))
	for i, c := range cols {
		types[i] = c.Type
	}
	single := func(want ...eventmodel.ColumnType) bool {
		if len(types) != 1 {
			return false
		}
		for _, w := range want {
			if types[0] == w {
				return true
			}
		}
		return false
	}

	switch name {
	case "":
		if single(eventmodel.ColumnInt64) {
			return int64Encoder{}, nil
		}
		return nil, errors.New(errors.ErrCodeEncoderMissing, "id field is string-typed and has no encoder", nil).
			WithSuggestion("set index.encoder to string, uuid or composite")
	case EncoderInt64:
		if single(eventmodel.ColumnInt64) {
			return int64Encoder{}, nil
		}
	case EncoderString:
		if single(eventmodel.ColumnString, eventmodel.ColumnUUID) {
			return stringEncoder{}, nil
		}
	case EncoderUUID:
		if single(eventmodel.ColumnUUID, eventmodel.ColumnString) {
			return uuidEncoder{}, nil
		}
	case EncoderComposite:
		if len(types) > 0 {
			return compositeEncoder{types: types}, nil
		}
	default:
		return nil, errors.New(errors.ErrCodeEncoderMissing, "unknown encoder "+strconv.Quote(name), nil).
			WithSuggestion("use int64, string, uuid or composite")
	}
	return nil, errors.ConfigError(fmt.Sprintf("encoder %s cannot encode id columns %v", name, types), nil)
}

func one(id eventmodel.ID) (any, error) {
	if len(id) != 1 {
		return nil, fmt.Errorf("expected a single-column id, got %d values", len(id))
	}
	return id[0], nil
}

type int64Encoder struct{}

func (int64Encoder) Name() string { return EncoderInt64 }

func (int64Encoder) Encode(id eventmodel.ID) (string, error) {
	v, err := one(id)
	if err != nil {
		return "", err
	}
	n, ok := v.(int64)
	if !ok {
		return "", fmt.Errorf("cannot encode %T as int64", v)
	}
	return strconv.FormatInt(n, 10), nil
}

func (int64Encoder) Decode(s string) (eventmodel.ID, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, err
	}
	return eventmodel.ID{n}, nil
}

type stringEncoder struct{}

func (stringEncoder) Name() string { return EncoderString }

func (stringEncoder) Encode(id eventmodel.ID) (string, error) {
	v, err := one(id)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("cannot encode %T as string", v)
	}
	return s, nil
}

func (stringEncoder) Decode(s string) (eventmodel.ID, error) {
	return eventmodel.ID{s}, nil
}

type uuidEncoder struct{}

func (uuidEncoder) Name() string { return EncoderUUID }

func (uuidEncoder) Encode(id eventmodel.ID) (string, error) {
	v, err := one(id)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("cannot encode %T as uuid", v)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

func (uuidEncoder) Decode(s string) (eventmodel.ID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return nil, err
	}
	return eventmodel.ID{u.String()}, nil
}

// compositeEncoder joins the rendered values with '|'. Backslash and '|'
// inside string values are escaped with a backslash; bytes are hex.
type compositeEncoder struct {
	types []eventmodel.ColumnType
}

func (compositeEncoder) Name() string { return EncoderComposite }

var compositeEscaper = strings.NewReplacer(`\`, `\\`, `|`, `\|`)

func (c compositeEncoder) Encode(id eventmodel.ID) (string, error) {
	if len(id) != len(c.types) {
		return "", fmt.Errorf("expected %d id values, got %d", len(c.types), len(id))
	}
	parts := make([]string, len(id))
	for i, v := range id {
		switch x := v.(type) {
		case int64:
			parts[i] = strconv.FormatInt(x, 10)
		case string:
			parts[i] = compositeEscaper.Replace(x)
		case []byte:
			parts[i] = hex.EncodeToString(x)
		default:
			return "", fmt.Errorf("cannot encode %T in a composite id", v)
		}
	}
	return strings.Join(parts, "|"), nil
}

func (c compositeEncoder) Decode(s string) (eventmodel.ID, error) {
	var (
		parts []string
		cur   strings.Builder
	)
	for i := 0; i < len(s); i++ {
		switch ch := s[i]; {
		case ch == '\\' && i+1 < len(s):
			i++
			cur.WriteByte(s[i])
		case ch == '|':
			parts = append(parts, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(ch)
		}
	}
	parts = append(parts, cur.String())

	if len(parts) != len(c.types) {
		return nil, fmt.Errorf("expected %d id values in %q, got %d", len(c.types), s, len(parts))
	}
	id := make(eventmodel.ID, len(parts))
	for i, p := range parts {
		var err error
		switch c.types[i] {
		case eventmodel.ColumnBytes:
			id[i], err = hex.DecodeString(p)
		default:
			id[i], err = c.types[i].Normalize(p)
		}
		if err != nil {
			return nil, fmt.Errorf("id value %d: %w", i, err)
		}
	}
	return id, nil
}
