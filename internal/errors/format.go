package errors

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// FormatForCLI formats an error for CLI output.
// Uses a concise format suitable for terminal display.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	se, ok := as(err)
	if !ok {
		se = Wrap(ErrCodeInternal, err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Error: %s\n", se.Message)
	if se.Cause != nil && se.Cause.Error() != se.Message {
		fmt.Fprintf(&sb, "  Cause: %v\n", se.Cause)
	}
	if se.Suggestion != "" {
		fmt.Fprintf(&sb, "  Hint: %s\n", se.Suggestion)
	}
	fmt.Fprintf(&sb, "  Code: %s\n", se.Code)

	return sb.String()
}

// jsonError is the JSON representation of an error.
type jsonError struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Category   string            `json:"category"`
	Severity   string            `json:"severity"`
	Details    map[string]string `json:"details,omitempty"`
	Suggestion string            `json:"suggestion,omitempty"`
	Cause      string            `json:"cause,omitempty"`
	Retryable  bool              `json:"retryable"`
}

// FormatJSON renders an error as a JSON object for `--json` CLI output.
func FormatJSON(err error) string {
	if err == nil {
		return "null"
	}

	se, ok := as(err)
	if !ok {
		se = Wrap(ErrCodeInternal, err)
	}

	je := jsonError{
		Code:       se.Code,
		Message:    se.Message,
		Category:   string(se.Category),
		Severity:   string(se.Severity),
		Details:    se.Details,
		Suggestion: se.Suggestion,
		Retryable:  se.Retryable,
	}
	if se.Cause != nil {
		je.Cause = se.Cause.Error()
	}

	data, mErr := json.Marshal(je)
	if mErr != nil {
		return fmt.Sprintf(`{"code":%q,"message":%q}`, se.Code, se.Message)
	}
	return string(data)
}

// LogAttrs returns key-value pairs for structured logging.
// Details are emitted in key order so log lines are stable.
func LogAttrs(err error) []any {
	se, ok := as(err)
	if !ok {
		return []any{"error", err}
	}

	attrs := []any{
		"code", se.Code,
		"category", string(se.Category),
		"retryable", se.Retryable,
		"error", se.Error(),
	}
	keys := make([]string, 0, len(se.Details))
	for k := range se.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, k, se.Details[k])
	}
	return attrs
}
