package updater

import (
	"testing"

	serrors "github.com/Aman-CERP/searchsync/internal/errors"
	"github.com/Aman-CERP/searchsync/internal/eventmodel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cols(types ...eventmodel.ColumnType) []eventmodel.IDColumn {
	out := make([]eventmodel.IDColumn, len(types))
	for i, t := range types {
		out[i] = eventmodel.IDColumn{Column: "c", SourceColumn: "c", Type: t}
	}
	return out
}

func TestLookupEncoder(t *testing.T) {
	tests := []struct {
		name     string
		encoder  string
		cols     []eventmodel.IDColumn
		want     string
		wantCode string
	}{
		{"default int64", "", cols(eventmodel.ColumnInt64), EncoderInt64, ""},
		{"explicit int64", "int64", cols(eventmodel.ColumnInt64), EncoderInt64, ""},
		{"string", "string", cols(eventmodel.ColumnString), EncoderString, ""},
		{"uuid", "uuid", cols(eventmodel.ColumnUUID), EncoderUUID, ""},
		{"composite", "composite", cols(eventmodel.ColumnString, eventmodel.ColumnInt64), EncoderComposite, ""},
		{"string id without encoder", "", cols(eventmodel.ColumnString), "", serrors.ErrCodeEncoderMissing},
		{"composite id without encoder", "", cols(eventmodel.ColumnInt64, eventmodel.ColumnInt64), "", serrors.ErrCodeEncoderMissing},
		{"unknown encoder", "base64", cols(eventmodel.ColumnInt64), "", serrors.ErrCodeEncoderMissing},
		{"int64 on string column", "int64", cols(eventmodel.ColumnString), "", serrors.ErrCodeConfigInvalid},
		{"string on composite id", "string", cols(eventmodel.ColumnString, eventmodel.ColumnString), "", serrors.ErrCodeConfigInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := LookupEncoder(tt.encoder, tt.cols)
			if tt.wantCode != "" {
				require.Error(t, err)
				assert.True(t, serrors.HasCode(err, tt.wantCode), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, enc.Name())
		})
	}
}

func TestEncoders_RoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		encoder string
		cols    []eventmodel.IDColumn
		id      eventmodel.ID
		encoded string
	}{
		{"int64", "int64", cols(eventmodel.ColumnInt64), eventmodel.ID{int64(-42)}, "-42"},
		{"string", "string", cols(eventmodel.ColumnString), eventmodel.ID{"a|b"}, "a|b"},
		{"uuid", "uuid", cols(eventmodel.ColumnUUID),
			eventmodel.ID{"6ba7b810-9dad-11d1-80b4-00c04fd430c8"}, "6ba7b810-9dad-11d1-80b4-00c04fd430c8"},
		{"composite escapes separators", "composite", cols(eventmodel.ColumnString, eventmodel.ColumnInt64),
			eventmodel.ID{`a|b\c`, int64(7)}, `a\|b\\c|7`},
		{"composite with bytes", "composite", cols(eventmodel.ColumnBytes, eventmodel.ColumnString),
			eventmodel.ID{[]byte{0xca, 0xfe}, ""}, "cafe|"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := LookupEncoder(tt.encoder, tt.cols)
			require.NoError(t, err)

			got, err := enc.Encode(tt.id)
			require.NoError(t, err)
			assert.Equal(t, tt.encoded, got)

			back, err := enc.Decode(got)
			require.NoError(t, err)
			assert.Equal(t, tt.id, back)
		})
	}
}

func TestEncoders_RejectMismatchedValues(t *testing.T) {
	i64, _ := LookupEncoder("int64", cols(eventmodel.ColumnInt64))
	_, err := i64.Encode(eventmodel.ID{"1"})
	assert.Error(t, err)
	_, err = i64.Encode(eventmodel.ID{int64(1), int64(2)})
	assert.Error(t, err)
	_, err = i64.Decode("x")
	assert.Error(t, err)

	u, _ := LookupEncoder("uuid", cols(eventmodel.ColumnUUID))
	_, err = u.Encode(eventmodel.ID{"not-a-uuid"})
	assert.Error(t, err)

	comp, _ := LookupEncoder("composite", cols(eventmodel.ColumnInt64, eventmodel.ColumnInt64))
	_, err = comp.Decode("1|2|3")
	assert.Error(t, err)
	_, err = comp.Decode("1|x")
	assert.Error(t, err)
}
