package store

import (
	"log/slog"
	"path/filepath"

	"github.com/Aman-CERP/searchsync/internal/errors"
)

// Backend names accepted by NewIndexBackend.
const (
	BackendBleve  = "bleve"
	BackendSQLite = "sqlite"
)

// NewIndexBackend opens the named backend under dir. An empty dir keeps the
// index in memory; an empty backend means bleve.
func NewIndexBackend(backend, dir string, logger *slog.Logger) (IndexBackend, error) {
	path := func(name string) string {
		if dir == "" {
			return ""
		}
		return filepath.Join(dir, name)
	}

	var (
		b   IndexBackend
		err error
	)
	switch backend {
	case "", BackendBleve:
		b, err = NewBleveIndex(path("index.bleve"), logger)
	case BackendSQLite:
		b, err = NewSQLiteIndex(path("index.db"), logger)
	default:
		return nil, errors.ConfigError("unknown index backend: "+backend, nil).
			WithSuggestion("use bleve or sqlite")
	}
	if err != nil {
		return nil, errors.New(errors.ErrCodeIndexCorrupt, "failed to open index", err).
			WithDetail("backend", backend).
			WithDetail("dir", dir)
	}
	return b, nil
}
