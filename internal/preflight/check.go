package preflight

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/Aman-CERP/searchsync/internal/config"
	"github.com/Aman-CERP/searchsync/internal/eventmodel"
	"github.com/Aman-CERP/searchsync/internal/output"
	"github.com/Aman-CERP/searchsync/internal/triggers"
)

// CheckStatus represents the result of a preflight check.
type CheckStatus int

const (
	// StatusPass indicates the check passed successfully.
	StatusPass CheckStatus = iota
	// StatusWarn indicates a non-critical warning.
	StatusWarn
	// StatusFail indicates the check failed.
	StatusFail
)

// String returns the string representation of a CheckStatus.
func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the status name in JSON output.
func (s CheckStatus) MarshalText() ([]byte, error) {
	return []byte(strings.ToLower(s.String())), nil
}

// CheckResult holds the result of a single preflight check.
type CheckResult struct {
	Name     string      `json:"name"`
	Status   CheckStatus `json:"status"`
	Message  string      `json:"message"`
	Details  string      `json:"details,omitempty"`
	Required bool        `json:"required"`
}

// IsCritical returns true if this is a required check that failed.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// Checker performs preflight validation checks.
type Checker struct {
	cfg    *config.Config
	model  []eventmodel.EventModelInfo
	db     *sql.DB
	source triggers.Source
}

// Option configures a Checker.
type Option func(*Checker)

// WithDatabase sets the database to inspect. Without one the schema
// checks report the database as unavailable.
func WithDatabase(db *sql.DB) Option {
	return func(c *Checker) {
		c.db = db
	}
}

// New creates a Checker for cfg and its event model.
func New(cfg *config.Config, model []eventmodel.EventModelInfo, opts ...Option) *Checker {
	c := &Checker{cfg: cfg, model: model}
	if src, err := triggers.SourceForDialect(cfg.Triggers.Dialect); err == nil {
		c.source = src
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunAll runs every check in a fixed order.
func (c *Checker) RunAll(ctx context.Context) []CheckResult {
	results := []CheckResult{c.CheckDatabase(ctx)}
	results = append(results, c.CheckSchema(ctx)...)
	results = append(results,
		c.CheckOffsets(ctx),
		c.CheckIndexPath(),
		c.CheckIndexLock(),
		c.CheckDiskSpace(c.cfg.Index.Path),
		c.CheckFileDescriptors(),
	)
	return results
}

// HasCriticalFailures returns true if any required check failed.
func (c *Checker) HasCriticalFailures(results []CheckResult) bool {
	for _, r := range results {
		if r.IsCritical() {
			return true
		}
	}
	return false
}

// SummaryStatus returns ready, ready_with_warnings or failed.
func (c *Checker) SummaryStatus(results []CheckResult) string {
	hasWarnings := false
	for _, r := range results {
		if r.IsCritical() {
			return "failed"
		}
		if r.Status != StatusPass {
			hasWarnings = true
		}
	}
	if hasWarnings {
		return "ready_with_warnings"
	}
	return "ready"
}

// PrintResults writes one line per check and a summary.
func (c *Checker) PrintResults(out *output.Writer, results []CheckResult, verbose bool) {
	for _, r := range results {
		line := fmt.Sprintf("%s: %s", r.Name, r.Message)
		switch {
		case r.Status == StatusPass:
			out.Success(line)
		case r.IsCritical():
			out.Error(line)
		default:
			out.Warning(line)
		}
		if verbose && r.Details != "" {
			out.Info(r.Details)
		}
	}
	out.Infof("status: %s", strings.ToUpper(c.SummaryStatus(results)))
}

// CheckDatabase pings the database.
func (c *Checker) CheckDatabase(ctx context.Context) CheckResult {
	result := CheckResult{Name: "database", Required: true}
	if c.db == nil {
		result.Status = StatusFail
		result.Message = "not connected"
		return result
	}
	if err := c.db.PingContext(ctx); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("ping failed: %v", err)
		return result
	}
	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s reachable", c.cfg.Database.Driver)
	return result
}
