// Package sheettool implements the fixed catalogue of spreadsheet
// tools the AI executor exposes, gated by DLP and resource budgets.
// Tools are independently testable against a fake sheet.SpreadsheetApi
// (memapi); the Registry composes a middleware chain adapted from the
// teacher's tool-middleware idiom (validation -> budget -> DLP ->
// telemetry -> execution).
package sheettool

import (
	"context"
	"fmt"
	"time"

	"github.com/cellwarden/cellwarden/pkg/sheet"
)

// ErrorCode enumerates the tool executor's error taxonomy.
type ErrorCode string

const (
	ErrValidation      ErrorCode = "validation_error"
	ErrNotImplemented  ErrorCode = "not_implemented"
	ErrPermissionDenied ErrorCode = "permission_denied"
	ErrRuntime         ErrorCode = "runtime_error"
)

// ToolError is the structured error every failed tool result carries.
type ToolError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func (e *ToolError) Error() string { return string(e.Code) + ": " + e.Message }

// Timing reports when a call started and how long it took.
type Timing struct {
	StartedAtMs int64 `json:"started_at_ms"`
	DurationMs  int64 `json:"duration_ms"`
}

// Result is the normative shape every tool call returns.
type Result struct {
	Tool     string         `json:"tool"`
	OK       bool           `json:"ok"`
	Timing   Timing         `json:"timing"`
	Data     map[string]any `json:"data,omitempty"`
	Warnings []string       `json:"warnings,omitempty"`
	Error    *ToolError     `json:"error,omitempty"`
}

// failf builds a failed Result carrying a ToolError.
func failf(toolName string, started time.Time, code ErrorCode, format string, args ...any) *Result {
	return &Result{
		Tool: toolName,
		OK:   false,
		Timing: Timing{
			StartedAtMs: started.UnixMilli(),
			DurationMs:  time.Since(started).Milliseconds(),
		},
		Error: &ToolError{Code: code, Message: fmt.Sprintf(format, args...)},
	}
}

func ok(toolName string, started time.Time, data map[string]any, warnings ...string) *Result {
	return &Result{
		Tool: toolName,
		OK:   true,
		Timing: Timing{
			StartedAtMs: started.UnixMilli(),
			DurationMs:  time.Since(started).Milliseconds(),
		},
		Data:     data,
		Warnings: warnings,
	}
}

// Tool is one entry in the fixed catalogue.
type Tool interface {
	Name() string
	Execute(ctx context.Context, ec *ExecutionContext) (*Result, error)
}

// ExecutionContext carries one call's parameters and shared state
// through the middleware chain into the tool body.
type ExecutionContext struct {
	Context   context.Context
	ToolName  string
	Params    map[string]any
	StartTime time.Time
	Metadata  map[string]any

	API    sheet.SpreadsheetApi
	Config ExecutorConfig
}
