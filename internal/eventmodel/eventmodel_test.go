package eventmodel

import (
	"math"
	"testing"

	serrors "github.com/Aman-CERP/searchsync/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func placeDecl() EntityDecl {
	return EntityDecl{
		Entity:          "Place",
		Table:           "place",
		CaptureTable:    "place_updates",
		KeyColumn:       "id",
		EventTypeColumn: "event_case",
		IDColumns:       []IDColumnDecl{{Column: "place_id", SourceColumn: "id", Type: "int64"}},
		Index:           []IndexRef{{IndexedType: "Place", IDField: "id"}},
	}
}

func TestEventTypeCodes_RoundTrip(t *testing.T) {
	for _, e := range AllEventTypes() {
		assert.Equal(t, e, EventTypeFromCode(e.Code()), e.String())
	}
	assert.Equal(t, int64(-3), EventInsert.Code())
	assert.Equal(t, int64(-2), EventUpdate.Code())
	assert.Equal(t, int64(-1), EventDelete.Code())
}

func TestEventTypeFromCode_UnknownValues(t *testing.T) {
	for _, code := range []int64{0, 1, -4, 42} {
		assert.Equal(t, EventUnknown, EventTypeFromCode(code))
	}
	assert.Equal(t, int64(0), EventUnknown.Code())
	assert.Equal(t, "unknown", EventUnknown.String())
}

func TestBuilder_PreservesOrder(t *testing.T) {
	// Given
	second := placeDecl()
	second.Entity, second.Table, second.CaptureTable = "Animal", "animal", "animal_updates"

	// When
	infos, err := NewBuilder().Add(placeDecl(), second).Build()

	// Then
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "Place", infos[0].EntityType)
	assert.Equal(t, "Animal", infos[1].EntityType)
	assert.Equal(t, []string{"id"}, infos[0].SourceIDColumns())
	assert.Equal(t, ColumnInt64, infos[0].IDColumns[0].Type)
	assert.Equal(t, "place_updates_delete", infos[0].TriggerName(EventDelete))
}

func TestBuilder_SourceColumnDefaultsToColumn(t *testing.T) {
	d := placeDecl()
	d.IDColumns = []IDColumnDecl{{Column: "id"}}

	infos, err := NewBuilder().Add(d).Build()

	require.NoError(t, err)
	assert.Equal(t, "id", infos[0].IDColumns[0].SourceColumn)
}

func TestBuilder_MissingMappings(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*EntityDecl)
		code   string
	}{
		{"no entity", func(d *EntityDecl) { d.Entity = "" }, serrors.ErrCodeMappingMissing},
		{"no id columns", func(d *EntityDecl) { d.IDColumns = nil }, serrors.ErrCodeMappingMissing},
		{"no event column", func(d *EntityDecl) { d.EventTypeColumn = "" }, serrors.ErrCodeMappingMissing},
		{"no key column", func(d *EntityDecl) { d.KeyColumn = "" }, serrors.ErrCodeMappingMissing},
		{"bad identifier", func(d *EntityDecl) { d.CaptureTable = "x; DROP TABLE y" }, serrors.ErrCodeConfigInvalid},
		{"bad type", func(d *EntityDecl) { d.IDColumns[0].Type = "float" }, serrors.ErrCodeConfigInvalid},
		{"index without field", func(d *EntityDecl) { d.Index[0].IDField = "" }, serrors.ErrCodeMappingMissing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := placeDecl()
			tt.mutate(&d)

			infos, err := NewBuilder().Add(d).Build()

			require.Error(t, err)
			assert.Nil(t, infos)
			assert.True(t, serrors.HasCode(err, tt.code), err.Error())
			assert.True(t, serrors.IsFatal(err))
		})
	}
}

func TestBuilder_ReportsEveryError(t *testing.T) {
	// Given two broken declarations and one good one
	bad1 := placeDecl()
	bad1.IDColumns = nil
	bad2 := placeDecl()
	bad2.Entity, bad2.CaptureTable = "Other", ""

	// When
	_, err := NewBuilder().Add(bad1, placeDecl(), bad2).Build()

	// Then
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Place: missing id mapping")
	assert.Contains(t, err.Error(), "Other: missing capture table")
}

func TestBuilder_DuplicateCaptureTable(t *testing.T) {
	dup := placeDecl()
	dup.Entity = "Town"

	_, err := NewBuilder().Add(placeDecl(), dup).Build()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "place_updates")
}

func TestColumnType_Normalize(t *testing.T) {
	tests := []struct {
		typ  ColumnType
		in   any
		want any
	}{
		{ColumnInt64, int64(7), int64(7)},
		{ColumnInt64, []byte("12"), int64(12)},
		{ColumnInt64, uint64(math.MaxInt64), int64(math.MaxInt64)},
		{ColumnString, []byte("abc"), "abc"},
		{ColumnUUID, "6BA7B810-9DAD-11D1-80B4-00C04FD430C8", "6ba7b810-9dad-11d1-80b4-00c04fd430c8"},
		{ColumnBytes, "ab", []byte("ab")},
	}
	for _, tt := range tests {
		got, err := tt.typ.Normalize(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := ColumnInt64.Normalize(nil)
	assert.Error(t, err)
	_, err = ColumnInt64.Normalize(3.5)
	assert.Error(t, err)
	_, err = ColumnInt64.Normalize(uint64(math.MaxInt64) + 1)
	assert.ErrorContains(t, err, "out of range")
}

func TestID_StringDistinguishesTypes(t *testing.T) {
	assert.NotEqual(t, ID{int64(1)}.String(), ID{"1"}.String())
	assert.NotEqual(t, ID{"a,b"}.String(), ID{"a", "b"}.String())
	assert.Equal(t, `10,"x"`, ID{int64(10), "x"}.String())
}
