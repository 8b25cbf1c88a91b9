package logging

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleLog = `{"time":"2026-01-02T10:00:00.000Z","level":"INFO","msg":"searchsync ready","entities":2}
{"time":"2026-01-02T10:00:01.000Z","level":"DEBUG","msg":"tick finished","taken":0}
not json at all
{"time":"2026-01-02T10:00:02.000Z","level":"ERROR","msg":"tick failed","attempt":3,"error":"database is locked"}
`

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "searchsync.log")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestViewer_Tail(t *testing.T) {
	path := writeLog(t, sampleLog)
	v := NewViewer(ViewerConfig{NoColor: true}, &bytes.Buffer{})

	entries, err := v.Tail(path, 2)

	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.False(t, entries[0].Valid)
	assert.Equal(t, "tick failed", entries[1].Msg)
	assert.Equal(t, float64(3), entries[1].Attrs["attempt"])
}

func TestViewer_Filters(t *testing.T) {
	tests := []struct {
		name string
		cfg  ViewerConfig
		want []string
	}{
		{"level warn keeps errors and raw lines", ViewerConfig{Level: "warn"}, []string{"", "tick failed"}},
		{"pattern", ViewerConfig{Pattern: regexp.MustCompile(`tick`)}, []string{"tick finished", "tick failed"}},
		{"no filter", ViewerConfig{}, []string{"searchsync ready", "tick finished", "", "tick failed"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := NewViewer(tt.cfg, &bytes.Buffer{}).Tail(writeLog(t, sampleLog), 50)

			require.NoError(t, err)
			msgs := make([]string, len(entries))
			for i, e := range entries {
				msgs[i] = e.Msg
			}
			assert.Equal(t, tt.want, msgs)
		})
	}
}

func TestViewer_FormatSortsAttributes(t *testing.T) {
	v := NewViewer(ViewerConfig{NoColor: true}, &bytes.Buffer{})
	e := parseLine(`{"time":"2026-01-02T10:00:02.5Z","level":"ERROR","msg":"tick failed","b":2,"a":"x"}`)

	assert.Equal(t, "10:00:02.500 ERROR tick failed a=x b=2", v.Format(e))
	assert.Equal(t, "garbage", v.Format(parseLine("garbage")))
}

func TestViewer_Follow(t *testing.T) {
	// Given
	path := writeLog(t, sampleLog)
	v := NewViewer(ViewerConfig{PollInterval: 5 * time.Millisecond}, &bytes.Buffer{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	entries := make(chan LogEntry, 4)
	done := make(chan error, 1)
	go func() { done <- v.Follow(ctx, path, entries) }()

	// When a line is appended after Follow started
	require.Eventually(t, func() bool {
		f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
		require.NoError(t, err)
		_, err = f.WriteString(`{"time":"2026-01-02T10:00:03Z","level":"INFO","msg":"appended"}` + "\n")
		require.NoError(t, err)
		require.NoError(t, f.Close())
		select {
		case e := <-entries:
			return e.Msg == "appended"
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)

	// Then it stops with the context
	cancel()
	assert.NoError(t, <-done)
}
