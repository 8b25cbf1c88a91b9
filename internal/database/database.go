// Package database opens the primary database that holds watched entities
// and their capture tables.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	serrors "github.com/Aman-CERP/searchsync/internal/errors"
	"github.com/Aman-CERP/searchsync/internal/logging"
)

// Options configures Open.
type Options struct {
	// Driver is a database/sql driver name: sqlite, sqlite3 or mysql.
	Driver string
	DSN    string
	Retry  serrors.RetryConfig
	Logger *slog.Logger
}

// Open opens and pings the database, retrying with backoff while it is unreachable.
func Open(ctx context.Context, opts Options) (*sql.DB, error) {
	logger := logging.OrDefault(opts.Logger)
	dsn := prepareDSN(opts.Driver, opts.DSN)

	db, err := sql.Open(opts.Driver, dsn)
	if err != nil {
		return nil, serrors.New(serrors.ErrCodeConfigInvalid,
			fmt.Sprintf("cannot open %s database", opts.Driver), err).
			WithSuggestion("check database.driver; sqlite3 needs a cgo build")
	}
	if isMemory(opts.Driver, opts.DSN) {
		// every pooled connection would get its own empty database
		db.SetMaxOpenConns(1)
	}

	attempt := 0
	err = serrors.Retry(ctx, opts.Retry, func() error {
		attempt++
		if pingErr := db.PingContext(ctx); pingErr != nil {
			logger.Warn("database ping failed",
				slog.String("driver", opts.Driver),
				slog.String("dsn", RedactDSN(opts.Driver, opts.DSN)),
				slog.Int("attempt", attempt),
				slog.String("error", pingErr.Error()))
			return pingErr
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, serrors.New(serrors.ErrCodeDBUnavailable, "database unavailable", err).
			WithDetail("dsn", RedactDSN(opts.Driver, opts.DSN))
	}

	if isSQLite(opts.Driver) && !isMemory(opts.Driver, opts.DSN) {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
			logger.Warn("cannot enable WAL mode", slog.String("error", err.Error()))
		}
	}

	logger.Info("database opened",
		slog.String("driver", opts.Driver),
		slog.String("dsn", RedactDSN(opts.Driver, opts.DSN)))
	return db, nil
}

func isSQLite(driver string) bool {
	return driver == "sqlite" || driver == "sqlite3"
}

func isMemory(driver, dsn string) bool {
	return isSQLite(driver) && (strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory"))
}

// prepareDSN adds a busy timeout to SQLite DSNs that do not set one, so the
// poller and writers of the application wait on each other instead of failing.
func prepareDSN(driver, dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	switch driver {
	case "sqlite":
		if !strings.Contains(dsn, "busy_timeout") {
			return dsn + sep + "_pragma=busy_timeout(5000)"
		}
	case "sqlite3":
		if !strings.Contains(dsn, "_busy_timeout") {
			return dsn + sep + "_busy_timeout=5000"
		}
	}
	return dsn
}

// RedactDSN removes the password from a DSN for logging.
func RedactDSN(driver, dsn string) string {
	if driver == "mysql" {
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return "<unparseable mysql dsn>"
		}
		if cfg.Passwd != "" {
			cfg.Passwd = "xxxxx"
		}
		return cfg.FormatDSN()
	}
	if u, err := url.Parse(dsn); err == nil && u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), "xxxxx")
			return u.String()
		}
	}
	return dsn
}
