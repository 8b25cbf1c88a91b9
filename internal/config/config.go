// Package config loads searchsync configuration.
//
// Configuration is layered, lowest precedence first:
//  1. Hardcoded defaults (NewConfig)
//  2. User config ($XDG_CONFIG_HOME/searchsync/config.yaml)
//  3. Project config (searchsync.yaml in the working directory, or --config)
//  4. Environment variables (SEARCHSYNC_*)
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	serrors "github.com/Aman-CERP/searchsync/internal/errors"
	"github.com/Aman-CERP/searchsync/internal/eventmodel"
	"github.com/Aman-CERP/searchsync/internal/logging"
)

// ProjectFileNames are tried in order when no explicit path is given.
var ProjectFileNames = []string{"searchsync.yaml", "searchsync.yml"}

// Config is the complete searchsync configuration.
type Config struct {
	Version  int            `yaml:"version" json:"version"`
	Database DatabaseConfig `yaml:"database" json:"database"`
	Index    IndexConfig    `yaml:"index" json:"index"`
	Poller   PollerConfig   `yaml:"poller" json:"poller"`
	Triggers TriggersConfig `yaml:"triggers" json:"triggers"`
	Notify   NotifyConfig   `yaml:"notify" json:"notify"`
	Metrics  MetricsConfig  `yaml:"metrics" json:"metrics"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
	Entities []EntityConfig `yaml:"entities" json:"entities"`
}

// DatabaseConfig configures the primary database holding entities and capture tables.
type DatabaseConfig struct {
	// Driver is sqlite (pure Go), sqlite3 (cgo builds only) or mysql.
	Driver string `yaml:"driver" json:"driver"`
	DSN    string `yaml:"dsn" json:"dsn"`
	// ConnectRetries is how often opening the database is retried at startup.
	ConnectRetries int `yaml:"connect_retries" json:"connect_retries"`
	// StatementCache is the per-session prepared statement cache size.
	StatementCache int `yaml:"statement_cache" json:"statement_cache"`
}

// IndexConfig configures the search index backend.
type IndexConfig struct {
	// Backend is bleve or sqlite.
	Backend string `yaml:"backend" json:"backend"`
	// Path is the index location. Empty keeps the index in memory.
	Path string `yaml:"path" json:"path"`
}

// PollerConfig configures the capture poller.
type PollerConfig struct {
	InitialDelay time.Duration `yaml:"initial_delay" json:"initial_delay"`
	// Delay is the fixed delay between the end of one tick and the start of the next.
	Delay time.Duration `yaml:"delay" json:"delay"`
	// BatchSize caps the capture rows read per tick across all tables.
	BatchSize int `yaml:"batch_size" json:"batch_size"`
	// PageSize is the per-table fetch size of the merge cursor.
	PageSize        int           `yaml:"page_size" json:"page_size"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
	BreakerFailures int           `yaml:"breaker_failures" json:"breaker_failures"`
	BreakerReset    time.Duration `yaml:"breaker_reset" json:"breaker_reset"`
	// Consume is delete (remove consumed capture rows) or mark (keep them,
	// only advance the stored offset).
	Consume string `yaml:"consume" json:"consume"`
}

// TriggersConfig configures capture table and trigger installation.
type TriggersConfig struct {
	// Dialect is sqlite or mysql. Empty derives it from the database driver.
	Dialect string `yaml:"dialect" json:"dialect"`
	// Strategy is create, drop-create or dont-create.
	Strategy string `yaml:"strategy" json:"strategy"`
	// UpdateSource is sql (poll capture tables) or manual-updates (never poll).
	UpdateSource string `yaml:"update_source" json:"update_source"`
}

// NotifyConfig configures post-commit notifications.
type NotifyConfig struct {
	// NATSURL enables NATS notifications when set.
	NATSURL string `yaml:"nats_url" json:"nats_url"`
	Subject string `yaml:"subject" json:"subject"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Listen is the HTTP listen address for /metrics. Empty disables it.
	Listen string `yaml:"listen" json:"listen"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	// File is the daemon log file. Empty uses ~/.searchsync/logs/searchsync.log.
	File string `yaml:"file" json:"file"`
}

// EntityConfig declares one watched entity.
type EntityConfig struct {
	Entity          string           `yaml:"entity" json:"entity"`
	Table           string           `yaml:"table" json:"table"`
	CaptureTable    string           `yaml:"capture_table" json:"capture_table"`
	KeyColumn       string           `yaml:"key_column" json:"key_column"`
	EventTypeColumn string           `yaml:"event_type_column" json:"event_type_column"`
	IDColumns       []IDColumnConfig `yaml:"id_columns" json:"id_columns"`
	Index           []IndexRefConfig `yaml:"index" json:"index"`
	Columns         []string         `yaml:"columns" json:"columns"`
}

// IDColumnConfig declares one id column of a capture table.
type IDColumnConfig struct {
	Column       string `yaml:"column" json:"column"`
	SourceColumn string `yaml:"source_column" json:"source_column"`
	Type         string `yaml:"type" json:"type"`
}

// IndexRefConfig declares an indexed type an entity is written to.
type IndexRefConfig struct {
	IndexedType string `yaml:"indexed_type" json:"indexed_type"`
	IDField     string `yaml:"id_field" json:"id_field"`
	Encoder     string `yaml:"encoder" json:"encoder"`
}

// Defaults applied to entity declarations that omit them.
const (
	DefaultKeyColumn       = "id"
	DefaultEventTypeColumn = "event_case"
	DefaultIDField         = "id"
)

// NewConfig returns a configuration with every default applied.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Database: DatabaseConfig{
			Driver:         "sqlite",
			ConnectRetries: 3,
			StatementCache: 64,
		},
		Index: IndexConfig{
			Backend: "bleve",
			Path:    DefaultIndexPath(),
		},
		Poller: PollerConfig{
			Delay:           500 * time.Millisecond,
			BatchSize:       500,
			PageSize:        100,
			ShutdownTimeout: 30 * time.Second,
			BreakerFailures: 5,
			BreakerReset:    30 * time.Second,
			Consume:         "delete",
		},
		Triggers: TriggersConfig{
			Strategy:     "create",
			UpdateSource: "sql",
		},
		Notify: NotifyConfig{
			Subject: "searchsync.applied",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DefaultIndexPath returns ~/.searchsync/index.
func DefaultIndexPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".searchsync", "index")
	}
	return filepath.Join(home, ".searchsync", "index")
}

// GetUserConfigPath returns the user configuration path, following XDG:
//   - $XDG_CONFIG_HOME/searchsync/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/searchsync/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "searchsync", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "searchsync", "config.yaml")
	}
	return filepath.Join(home, ".config", "searchsync", "config.yaml")
}

// Load builds the configuration from every layer.
// dir is searched for a project file unless explicit names one; an explicit
// path that does not exist is an error.
func Load(dir, explicit string) (*Config, error) {
	cfg := NewConfig()

	if userPath := GetUserConfigPath(); fileExists(userPath) {
		if err := cfg.loadYAML(userPath); err != nil {
			return nil, err
		}
	}

	switch {
	case explicit != "":
		if !fileExists(explicit) {
			return nil, serrors.New(serrors.ErrCodeConfigNotFound,
				fmt.Sprintf("config file not found: %s", explicit), nil).
				WithSuggestion("check the --config path")
		}
		if err := cfg.loadYAML(explicit); err != nil {
			return nil, err
		}
	default:
		for _, name := range ProjectFileNames {
			path := filepath.Join(dir, name)
			if fileExists(path) {
				if err := cfg.loadYAML(path); err != nil {
					return nil, err
				}
				break
			}
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes a single YAML document on top of the defaults, then validates.
func Parse(data []byte) (*Config, error) {
	cfg := NewConfig()
	if err := cfg.decode(bytes.NewReader(data), "<inline>"); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadYAML decodes path on top of the current values. Keys absent from the
// file keep their current value; lists are replaced, not merged.
func (c *Config) loadYAML(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return serrors.New(serrors.ErrCodeConfigNotFound, fmt.Sprintf("failed to read config file %s", path), err)
	}
	defer func() { _ = f.Close() }()
	return c.decode(f, path)
}

func (c *Config) decode(r io.Reader, name string) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return serrors.New(serrors.ErrCodeConfigInvalid, fmt.Sprintf("failed to parse config file %s", name), err)
	}
	return nil
}

// applyEnvOverrides applies SEARCHSYNC_* variables. Malformed numbers and
// durations are configuration errors.
func (c *Config) applyEnvOverrides() error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	str("SEARCHSYNC_DB_DRIVER", &c.Database.Driver)
	str("SEARCHSYNC_DB_DSN", &c.Database.DSN)
	str("SEARCHSYNC_INDEX_BACKEND", &c.Index.Backend)
	str("SEARCHSYNC_INDEX_PATH", &c.Index.Path)
	str("SEARCHSYNC_TRIGGER_STRATEGY", &c.Triggers.Strategy)
	str("SEARCHSYNC_LOG_LEVEL", &c.Logging.Level)
	str("SEARCHSYNC_NATS_URL", &c.Notify.NATSURL)
	str("SEARCHSYNC_METRICS_LISTEN", &c.Metrics.Listen)

	var errs []error
	num := func(key string, dst *int) {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, serrors.ConfigError(fmt.Sprintf("%s: %q is not an integer", key, v), err))
			return
		}
		*dst = n
	}
	dur := func(key string, dst *time.Duration) {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			return
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, serrors.ConfigError(fmt.Sprintf("%s: %q is not a duration", key, v), err))
			return
		}
		*dst = d
	}
	num("SEARCHSYNC_BATCH_SIZE", &c.Poller.BatchSize)
	num("SEARCHSYNC_PAGE_SIZE", &c.Poller.PageSize)
	dur("SEARCHSYNC_POLL_DELAY", &c.Poller.Delay)

	return serrors.Join(errs...)
}

// applyDefaults fills values derived from other settings and per-entity defaults.
func (c *Config) applyDefaults() {
	c.Index.Path = expandHome(c.Index.Path)
	if c.Triggers.Dialect == "" {
		c.Triggers.Dialect = DialectForDriver(c.Database.Driver)
	}
	for i := range c.Entities {
		e := &c.Entities[i]
		if e.KeyColumn == "" {
			e.KeyColumn = DefaultKeyColumn
		}
		if e.EventTypeColumn == "" {
			e.EventTypeColumn = DefaultEventTypeColumn
		}
		for j := range e.Index {
			if e.Index[j].IDField == "" {
				e.Index[j].IDField = DefaultIDField
			}
		}
	}
}

// DialectForDriver maps a database driver to its trigger dialect.
func DialectForDriver(driver string) string {
	switch strings.ToLower(driver) {
	case "mysql":
		return "mysql"
	default:
		return "sqlite"
	}
}

// Validate checks every setting and returns all problems at once.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, serrors.ConfigError(fmt.Sprintf(format, args...), nil))
	}
	oneOf := func(field, v string, allowed ...string) {
		for _, a := range allowed {
			if strings.EqualFold(v, a) {
				return
			}
		}
		bad("%s must be one of %s, got %q", field, strings.Join(allowed, ", "), v)
	}

	oneOf("database.driver", c.Database.Driver, "sqlite", "sqlite3", "mysql")
	if c.Database.DSN == "" {
		bad("database.dsn is required")
	}
	if c.Database.ConnectRetries < 0 {
		bad("database.connect_retries must be non-negative, got %d", c.Database.ConnectRetries)
	}
	if c.Database.StatementCache <= 0 {
		bad("database.statement_cache must be positive, got %d", c.Database.StatementCache)
	}
	oneOf("index.backend", c.Index.Backend, "bleve", "sqlite")

	if c.Poller.Delay <= 0 {
		bad("poller.delay must be positive, got %s", c.Poller.Delay)
	}
	if c.Poller.InitialDelay < 0 {
		bad("poller.initial_delay must be non-negative, got %s", c.Poller.InitialDelay)
	}
	if c.Poller.BatchSize <= 0 {
		bad("poller.batch_size must be positive, got %d", c.Poller.BatchSize)
	}
	if c.Poller.PageSize <= 0 {
		bad("poller.page_size must be positive, got %d", c.Poller.PageSize)
	}
	if c.Poller.ShutdownTimeout <= 0 {
		bad("poller.shutdown_timeout must be positive, got %s", c.Poller.ShutdownTimeout)
	}
	if c.Poller.BreakerFailures <= 0 {
		bad("poller.breaker_failures must be positive, got %d", c.Poller.BreakerFailures)
	}
	oneOf("poller.consume", c.Poller.Consume, "delete", "mark")

	oneOf("triggers.dialect", c.Triggers.Dialect, "sqlite", "mysql")
	oneOf("triggers.strategy", c.Triggers.Strategy, "create", "drop-create", "dont-create")
	oneOf("triggers.update_source", c.Triggers.UpdateSource, "sql", "manual-updates")

	if c.Notify.NATSURL != "" && c.Notify.Subject == "" {
		bad("notify.subject is required when notify.nats_url is set")
	}
	if !logging.ValidLevel(c.Logging.Level) {
		bad("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	if len(c.Entities) == 0 {
		errs = append(errs, serrors.MappingError("no entities configured"))
	}

	return serrors.Join(errs...)
}

// EntityDecls converts the entity section into event model declarations.
func (c *Config) EntityDecls() []eventmodel.EntityDecl {
	decls := make([]eventmodel.EntityDecl, 0, len(c.Entities))
	for _, e := range c.Entities {
		d := eventmodel.EntityDecl{
			Entity:          e.Entity,
			Table:           e.Table,
			CaptureTable:    e.CaptureTable,
			KeyColumn:       e.KeyColumn,
			EventTypeColumn: e.EventTypeColumn,
			Columns:         e.Columns,
		}
		for _, col := range e.IDColumns {
			d.IDColumns = append(d.IDColumns, eventmodel.IDColumnDecl(col))
		}
		for _, ref := range e.Index {
			d.Index = append(d.Index, eventmodel.IndexRef(ref))
		}
		decls = append(decls, d)
	}
	return decls
}

// BuildModel validates the entity section and returns the event model.
func (c *Config) BuildModel() ([]eventmodel.EventModelInfo, error) {
	return eventmodel.NewBuilder().Add(c.EntityDecls()...).Build()
}

// YAML renders the configuration.
func (c *Config) YAML() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}

// WriteYAML writes the configuration to path.
func (c *Config) WriteYAML(path string) error {
	data, err := c.YAML()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ManualUpdates reports whether the poller is disabled.
func (c *Config) ManualUpdates() bool {
	return strings.EqualFold(c.Triggers.UpdateSource, "manual-updates")
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
