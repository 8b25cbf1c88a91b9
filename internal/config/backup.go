package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	// MaxBackups is the number of config backups kept next to a config file.
	MaxBackups = 3

	// BackupSuffix is inserted between the file name and the timestamp.
	BackupSuffix = ".bak"
)

// Backup copies path to <path>.bak.<timestamp> and prunes older backups.
// Returns "" and no error when path does not exist.
func Backup(path string, now time.Time) (string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read config for backup: %w", err)
	}

	backupPath := fmt.Sprintf("%s%s.%s", path, BackupSuffix, now.Format("20060102-150405.000"))
	if err := os.WriteFile(backupPath, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write backup: %w", err)
	}

	backups, err := ListBackups(path)
	if err == nil && len(backups) > MaxBackups {
		for _, old := range backups[MaxBackups:] {
			_ = os.Remove(old)
		}
	}
	return backupPath, nil
}

// ListBackups returns the backups of path, newest first. The timestamp
// suffix sorts lexically in time order.
func ListBackups(path string) ([]string, error) {
	dir := filepath.Dir(path)
	prefix := filepath.Base(path) + BackupSuffix + "."

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list config directory: %w", err)
	}

	var backups []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), prefix) {
			backups = append(backups, filepath.Join(dir, e.Name()))
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(backups)))
	return backups, nil
}

// WriteWithBackup backs up an existing file at path, then writes c there.
func (c *Config) WriteWithBackup(path string, now time.Time) (string, error) {
	data, err := c.YAML()
	if err != nil {
		return "", err
	}
	return WriteFileWithBackup(path, data, now)
}

// WriteFileWithBackup backs up an existing file at path, then writes data
// there. It returns the backup path, or "" when there was nothing to back up.
func WriteFileWithBackup(path string, data []byte, now time.Time) (string, error) {
	backup, err := Backup(path, now)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write config file: %w", err)
	}
	return backup, nil
}

// Example returns a starter configuration with one SQLite entity. It holds
// the same settings as configs.ProjectConfigTemplate.
func Example() *Config {
	cfg := NewConfig()
	cfg.Database.DSN = "file:app.db"
	cfg.Triggers.Dialect = "sqlite"
	cfg.Entities = []EntityConfig{{
		Entity:          "Place",
		Table:           "place",
		CaptureTable:    "place_updates",
		KeyColumn:       DefaultKeyColumn,
		EventTypeColumn: DefaultEventTypeColumn,
		IDColumns:       []IDColumnConfig{{Column: "place_id", SourceColumn: "id", Type: "int64"}},
		Index:           []IndexRefConfig{{IndexedType: "Place", IDField: DefaultIDField, Encoder: "int64"}},
		Columns:         []string{"id", "name"},
	}}
	return cfg
}
