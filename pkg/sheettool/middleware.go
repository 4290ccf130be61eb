package sheettool

import (
	"time"

	"github.com/cellwarden/cellwarden/pkg/dlp"
	"github.com/cellwarden/cellwarden/pkg/sheet"
	"github.com/cellwarden/cellwarden/pkg/telemetry"
)

// rangeParamByTool names the parameter each tool's primary selection
// range is read from, so the shared budget/DLP stages can operate
// generically instead of every tool reimplementing the same plumbing.
var rangeParamByTool = map[string]string{
	"read_range":             "range",
	"set_range":              "range",
	"apply_formula_column":   "range",
	"sort_range":             "range",
	"filter_range":           "range",
	"apply_formatting":       "range",
	"detect_anomalies":       "range",
	"compute_statistics":     "range",
	"create_pivot_table":     "source_range",
	"create_chart":           "data_range",
}

// primarySelection resolves the tool's primary selection range, if it
// declares one, for the shared budget/DLP middleware stages.
func primarySelection(ec *ExecutionContext) (sheet.Range, bool) {
	if ec.ToolName == "write_cell" {
		raw, ok := ec.Params["cell"].(string)
		if !ok {
			return sheet.Range{}, false
		}
		addr, err := ParseA1Address(raw, ec.Config.DefaultSheet, ec.Config.SheetNameResolver)
		if err != nil {
			return sheet.Range{}, false
		}
		return sheet.Range{Sheet: addr.Sheet, StartRow: addr.Row, EndRow: addr.Row, StartCol: addr.Col, EndCol: addr.Col}, true
	}

	param, ok := rangeParamByTool[ec.ToolName]
	if !ok {
		return sheet.Range{}, false
	}
	raw, ok := ec.Params[param].(string)
	if !ok || raw == "" {
		return sheet.Range{}, false
	}
	rng, err := ParseA1Range(raw, ec.Config.DefaultSheet, ec.Config.SheetNameResolver)
	if err != nil {
		return sheet.Range{}, false
	}
	return rng, true
}

// validationMiddleware substitutes an empty parameter map for nil
// params and, for tools that declare a primary range, rejects a range
// that is missing or fails to parse.
func validationMiddleware() Middleware {
	return func(next Executor) Executor {
		return func(ec *ExecutionContext) (*Result, error) {
			if ec.Params == nil {
				ec.Params = map[string]any{}
			}
			if _, declaresRange := rangeParamByTool[ec.ToolName]; declaresRange {
				if _, ok := primarySelection(ec); !ok {
					return failf(ec.ToolName, ec.StartTime, ErrValidation, "missing or malformed range parameter"), nil
				}
			}
			return next(ec)
		}
	}
}

// budgetMiddleware enforces the primary-range cell cap shared by every
// range-shaped tool (read_range has its own tighter, additional
// character-size check applied inside its own body after
// materialization).
func budgetMiddleware() Middleware {
	return func(next Executor) Executor {
		return func(ec *ExecutionContext) (*Result, error) {
			rng, ok := primarySelection(ec)
			if !ok {
				return next(ec)
			}
			ec.Metadata["selection"] = rng

			limit := ec.Config.MaxToolRangeCells
			if ec.ToolName == "read_range" {
				limit = ec.Config.MaxReadRangeCells
			}
			if limit > 0 && rng.Cells() > limit {
				return failf(ec.ToolName, ec.StartTime, ErrPermissionDenied,
					"selection spans %d cells, exceeding the %d cap; request a smaller range or raise the cap", rng.Cells(), limit), nil
			}
			return next(ec)
		}
	}
}

// dlpMiddleware evaluates the structured policy decision for the
// call's primary selection and stashes the resulting gate in
// ec.Metadata for the tool body to apply per-cell enforcement with.
func dlpMiddleware() Middleware {
	return func(next Executor) Executor {
		return func(ec *ExecutionContext) (*Result, error) {
			rng, ok := ec.Metadata["selection"].(sheet.Range)
			if !ok || ec.Config.DLP == nil {
				return next(ec)
			}

			gate, err := evaluateDLP(rng, ec.Config.DLP)
			if err != nil {
				return failf(ec.ToolName, ec.StartTime, ErrRuntime, "%v", err), nil
			}
			ec.Metadata["dlp_gate"] = gate

			if gate.decision == dlp.ActionBlock {
				return failf(ec.ToolName, ec.StartTime, ErrPermissionDenied, "blocked by data loss prevention policy"), nil
			}
			if gate.decision == dlp.ActionRedact && mutatesObservably(ec.ToolName) {
				return failf(ec.ToolName, ec.StartTime, ErrPermissionDenied,
					"data loss prevention policy requires redaction, which this tool cannot apply safely"), nil
			}
			return next(ec)
		}
	}
}

// mutatesObservably reports whether a tool could leak restricted
// content via a computed aggregate or external side effect rather than
// a directly redactable cell value, per the REDACT-tool-refusal rule.
func mutatesObservably(toolName string) bool {
	switch toolName {
	case "write_cell", "set_range", "sort_range", "apply_formula_column", "create_pivot_table", "create_chart":
		return true
	default:
		return false
	}
}

// telemetryMiddleware records call counts and durations.
func telemetryMiddleware(metrics *telemetry.Metrics) Middleware {
	return func(next Executor) Executor {
		return func(ec *ExecutionContext) (*Result, error) {
			start := time.Now()
			result, err := next(ec)
			if metrics == nil {
				return result, err
			}

			outcome := "success"
			if err != nil || result == nil || !result.OK {
				outcome = "failure"
			}
			metrics.ToolCallsTotal.WithLabelValues(ec.ToolName, outcome).Inc()
			metrics.ToolCallDuration.WithLabelValues(ec.ToolName).Observe(time.Since(start).Seconds())
			return result, err
		}
	}
}
