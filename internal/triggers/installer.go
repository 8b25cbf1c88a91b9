package triggers

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	serrors "github.com/Aman-CERP/searchsync/internal/errors"
	"github.com/Aman-CERP/searchsync/internal/eventmodel"
	"github.com/Aman-CERP/searchsync/internal/logging"
)

// Strategy controls what Install does with existing objects.
type Strategy string

const (
	// StrategyCreate creates capture tables and triggers.
	StrategyCreate Strategy = "create"
	// StrategyDropCreate drops everything first, then creates.
	StrategyDropCreate Strategy = "drop-create"
	// StrategyDontCreate leaves the schema alone.
	StrategyDontCreate Strategy = "dont-create"
)

// ParseStrategy parses a config value.
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(strings.ToLower(strings.TrimSpace(s))); st {
	case StrategyCreate, StrategyDropCreate, StrategyDontCreate:
		return st, nil
	case "":
		return StrategyCreate, nil
	default:
		return "", serrors.ConfigError(fmt.Sprintf("unknown trigger strategy %q", s), nil)
	}
}

// StatementRunner executes one SQL statement. *sql.DB, *sql.Conn and *sql.Tx satisfy it.
type StatementRunner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// InstallReport counts the statements run by Install or Uninstall.
type InstallReport struct {
	Executed int
	Failed   int
}

// OffsetResetter forgets the consumption offsets of capture tables.
type OffsetResetter interface {
	Reset(ctx context.Context, tables ...string) error
}

// Installer runs trigger SQL against a database. Each statement runs on its
// own; a failing statement is logged and counted, and the rest still run.
type Installer struct {
	source  Source
	runner  StatementRunner
	logger  *slog.Logger
	offsets OffsetResetter
}

// InstallerOption configures an Installer.
type InstallerOption func(*Installer)

// WithOffsetResetter makes the installer forget the offsets of every capture
// table it drops, so consumption of a recreated table starts over.
func WithOffsetResetter(r OffsetResetter) InstallerOption {
	return func(i *Installer) {
		i.offsets = r
	}
}

// NewInstaller returns an Installer. A nil logger uses slog.Default().
func NewInstaller(source Source, runner StatementRunner, logger *slog.Logger, opts ...InstallerOption) *Installer {
	i := &Installer{source: source, runner: runner, logger: logging.OrDefault(logger)}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// CreateStatements returns the creation statements in execution order:
// capture tables, setup, per-entity setup, then triggers.
func CreateStatements(src Source, infos []eventmodel.EventModelInfo) []string {
	var stmts []string
	for _, info := range infos {
		stmts = append(stmts, src.CaptureTableCreateCode(info)...)
	}
	stmts = append(stmts, src.SetupCode()...)
	for _, info := range infos {
		stmts = append(stmts, src.SpecificSetupCode(info)...)
	}
	for _, info := range infos {
		for _, e := range eventmodel.AllEventTypes() {
			stmts = append(stmts, src.TriggerCreateCode(info, e)...)
		}
	}
	return stmts
}

// DropStatements returns the drop statements, reversing CreateStatements.
func DropStatements(src Source, infos []eventmodel.EventModelInfo) []string {
	var stmts []string
	for _, info := range infos {
		for _, e := range eventmodel.AllEventTypes() {
			stmts = append(stmts, src.TriggerDropCode(info, e)...)
		}
	}
	for _, info := range infos {
		stmts = append(stmts, src.SpecificTeardownCode(info)...)
	}
	stmts = append(stmts, src.TeardownCode()...)
	for _, info := range infos {
		stmts = append(stmts, src.CaptureTableDropCode(info)...)
	}
	return stmts
}

// Statements returns what Install would run under strategy.
func Statements(src Source, infos []eventmodel.EventModelInfo, strategy Strategy) []string {
	switch strategy {
	case StrategyDontCreate:
		return nil
	case StrategyDropCreate:
		return append(DropStatements(src, infos), CreateStatements(src, infos)...)
	default:
		return CreateStatements(src, infos)
	}
}

// Install applies strategy. Drop failures are expected when objects do not
// exist yet and are logged at info; create failures usually mean the
// objects already exist and are logged as warnings.
func (i *Installer) Install(ctx context.Context, infos []eventmodel.EventModelInfo, strategy Strategy) (InstallReport, error) {
	var report InstallReport
	if strategy == StrategyDontCreate {
		i.logger.Info("trigger installation skipped", slog.String("strategy", string(strategy)))
		return report, nil
	}
	if strategy == StrategyDropCreate {
		if err := i.drop(ctx, infos, &report); err != nil {
			return report, err
		}
	}
	err := i.run(ctx, CreateStatements(i.source, infos), false, &report)

	i.logger.Info("triggers installed",
		slog.String("dialect", i.source.Name()),
		slog.String("strategy", string(strategy)),
		slog.Int("executed", report.Executed),
		slog.Int("failed", report.Failed))
	return report, err
}

// Uninstall drops triggers and capture tables.
func (i *Installer) Uninstall(ctx context.Context, infos []eventmodel.EventModelInfo) (InstallReport, error) {
	var report InstallReport
	err := i.drop(ctx, infos, &report)
	i.logger.Info("triggers uninstalled",
		slog.String("dialect", i.source.Name()),
		slog.Int("executed", report.Executed),
		slog.Int("failed", report.Failed))
	return report, err
}

// drop runs the drop statements, then resets the offsets of the dropped
// capture tables. A reset failure is returned: keeping a stale offset would
// silently skip the rows of the recreated table.
func (i *Installer) drop(ctx context.Context, infos []eventmodel.EventModelInfo, report *InstallReport) error {
	if err := i.run(ctx, DropStatements(i.source, infos), true, report); err != nil {
		return err
	}
	if i.offsets == nil {
		return nil
	}
	tables := make([]string, len(infos))
	for n, info := range infos {
		tables[n] = info.CaptureTable
	}
	if err := i.offsets.Reset(ctx, tables...); err != nil {
		return err
	}
	i.logger.Info("capture offsets reset", slog.Any("tables", tables))
	return nil
}

// run executes stmts one by one. Only context cancellation stops it early.
func (i *Installer) run(ctx context.Context, stmts []string, dropping bool, report *InstallReport) error {
	for _, stmt := range stmts {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := i.runner.ExecContext(ctx, stmt); err != nil {
			report.Failed++
			level := slog.LevelWarn
			if dropping {
				level = slog.LevelInfo
			}
			i.logger.Log(ctx, level, "trigger statement failed",
				slog.String("statement", stmt),
				slog.String("error", err.Error()))
			continue
		}
		report.Executed++
		i.logger.Info("trigger statement executed", slog.String("statement", stmt))
	}
	return nil
}
