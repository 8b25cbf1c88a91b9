package preflight

import (
	"context"
	"fmt"
	"strings"

	"github.com/Aman-CERP/searchsync/internal/capture"
	"github.com/Aman-CERP/searchsync/internal/eventmodel"
	"github.com/Aman-CERP/searchsync/internal/triggers"
)

// tableExists probes a table with a query that reads no rows, which works
// the same on every dialect.
func (c *Checker) tableExists(ctx context.Context, table string) bool {
	q := fmt.Sprintf("SELECT 1 FROM %s WHERE 1 = 0", triggers.Quote(c.source.QuoteToken(), table))
	rows, err := c.db.QueryContext(ctx, q)
	if err != nil {
		return false
	}
	_ = rows.Close()
	return true
}

// triggerCount returns how many of names exist as triggers.
func (c *Checker) triggerCount(ctx context.Context, names []string) (int, error) {
	if len(names) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")
	var q string
	switch c.source.Name() {
	case "mysql":
		q = "SELECT COUNT(*) FROM information_schema.TRIGGERS WHERE TRIGGER_SCHEMA = DATABASE() AND TRIGGER_NAME IN (" + placeholders + ")"
	default:
		q = "SELECT COUNT(*) FROM sqlite_master WHERE type = 'trigger' AND name IN (" + placeholders + ")"
	}
	args := make([]any, len(names))
	for i, n := range names {
		args[i] = n
	}
	var n int
	if err := c.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (c *Checker) unavailable(name string) (CheckResult, bool) {
	switch {
	case c.source == nil:
		return CheckResult{Name: name, Status: StatusWarn, Message: "skipped: unknown trigger dialect"}, true
	case c.db == nil:
		return CheckResult{Name: name, Status: StatusWarn, Message: "skipped: database unavailable"}, true
	}
	return CheckResult{}, false
}

// CheckSchema reports, per entity, whether the source table, the capture
// table and all three triggers exist.
func (c *Checker) CheckSchema(ctx context.Context) []CheckResult {
	var results []CheckResult
	for _, info := range c.model {
		name := "entity " + info.EntityType
		if r, skip := c.unavailable(name); skip {
			results = append(results, r)
			continue
		}
		results = append(results, c.checkEntity(ctx, name, info))
	}
	return results
}

func (c *Checker) checkEntity(ctx context.Context, name string, info eventmodel.EventModelInfo) CheckResult {
	result := CheckResult{Name: name, Required: true}
	if !c.tableExists(ctx, info.SourceTable) {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("source table %s not found", info.SourceTable)
		return result
	}
	if !c.tableExists(ctx, info.CaptureTable) {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("capture table %s not found", info.CaptureTable)
		result.Details = "run 'searchsync triggers install'"
		return result
	}

	var names []string
	for _, e := range eventmodel.AllEventTypes() {
		names = append(names, info.TriggerName(e))
	}
	n, err := c.triggerCount(ctx, names)
	if err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("cannot list triggers: %v", err)
		return result
	}
	if n < len(names) {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("%d of %d triggers installed on %s", n, len(names), info.SourceTable)
		result.Details = "run 'searchsync triggers install --strategy drop-create'"
		return result
	}
	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s captured into %s", info.SourceTable, info.CaptureTable)
	return result
}

// CheckOffsets reports whether the offsets table exists. It is created on
// first start, so absence is only a warning.
func (c *Checker) CheckOffsets(ctx context.Context) CheckResult {
	if r, skip := c.unavailable("offsets"); skip {
		return r
	}
	if !c.tableExists(ctx, capture.OffsetsTable) {
		return CheckResult{Name: "offsets", Status: StatusWarn,
			Message: capture.OffsetsTable + " missing, created on first run"}
	}
	return CheckResult{Name: "offsets", Status: StatusPass, Message: capture.OffsetsTable + " present"}
}
