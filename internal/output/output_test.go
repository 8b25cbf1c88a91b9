package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter_PlainStatusLines(t *testing.T) {
	// Given: a writer on a buffer, which is never a terminal
	var buf bytes.Buffer
	w := New(&buf)

	// When: writing each kind of line
	w.Successf("indexed %d entities", 3)
	w.Warning("2 rows skipped")
	w.Errorf("tick failed: %s", "boom")
	w.Infof("offset %d", 9)

	// Then: lines carry plain word prefixes
	assert.Equal(t,
		"ok: indexed 3 entities\nwarning: 2 rows skipped\nerror: tick failed: boom\n   offset 9\n",
		buf.String())
}

func TestWriter_FancyUsesIcons(t *testing.T) {
	var buf bytes.Buffer
	w := &Writer{out: &buf, fancy: true}

	w.Success("done")

	assert.Equal(t, "✅ done\n", buf.String())
}

func TestWriter_Table(t *testing.T) {
	var buf bytes.Buffer
	NewPlain(&buf).Table([]string{"TABLE", "OFFSET"}, [][]string{
		{"place_updates", "12"},
		{"a", "3"},
	})

	assert.Equal(t, "TABLE          OFFSET\nplace_updates  12\na              3\n", buf.String())
}

func TestWriter_Code(t *testing.T) {
	var buf bytes.Buffer
	NewPlain(&buf).Code("CREATE TABLE x;\nDROP TABLE y;\n")

	assert.Equal(t, "\n  CREATE TABLE x;\n  DROP TABLE y;\n\n", buf.String())
}

func TestWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewPlain(&buf).JSON(map[string]int{"n": 1}))
	assert.Equal(t, "{\n  \"n\": 1\n}\n", buf.String())
}

func TestIsTTY_NonFile(t *testing.T) {
	assert.False(t, IsTTY(&bytes.Buffer{}))
	assert.False(t, IsTTY(nil))
}
