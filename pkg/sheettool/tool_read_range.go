package sheettool

import (
	"context"
	"fmt"

	"github.com/cellwarden/cellwarden/pkg/sheet"
)

type readRangeTool struct{}

func (readRangeTool) Name() string { return "read_range" }

func (readRangeTool) Execute(ctx context.Context, ec *ExecutionContext) (*Result, error) {
	rng, _ := ec.Metadata["selection"].(sheet.Range)

	rows, err := ec.API.ReadRange(rng)
	if err != nil {
		return failf(ec.ToolName, ec.StartTime, ErrRuntime, "read range: %v", err), nil
	}

	gate, _ := ec.Metadata["dlp_gate"].(dlpGate)
	redacted := 0
	for r, row := range rows {
		redacted += redactRow(gate, rng, r, row, true)
	}

	serialized := estimateJSONChars(rows)
	if ec.Config.MaxReadRangeChars > 0 && serialized > ec.Config.MaxReadRangeChars {
		return failf(ec.ToolName, ec.StartTime, ErrPermissionDenied,
			"serialized result is %d characters, exceeding the %d cap; request a smaller range", serialized, ec.Config.MaxReadRangeChars), nil
	}

	includeFormulas, _ := ec.Params["include_formulas"].(bool)

	data := map[string]any{
		"range":               FormatA1Range(rng, ec.Config.SheetNameResolver),
		"values":              valuesToAny(rows, ec.Config.IncludeFormulaValues),
		"redacted_cell_count": redacted,
		"dlp_decision":        string(gate.decision),
	}
	if includeFormulas {
		data["formulas"] = formulasToAny(rows)
	}
	return ok(ec.ToolName, ec.StartTime, data), nil
}

// valuesToAny builds the values grid: a formula cell surfaces its
// computed value only when includeFormulaValues is set, otherwise
// null so the caller doesn't mistake an unevaluated formula for data.
func valuesToAny(rows [][]sheet.CellData, includeFormulaValues bool) [][]any {
	out := make([][]any, len(rows))
	for r, row := range rows {
		line := make([]any, len(row))
		for c, cell := range row {
			if cell.IsFormula() && !includeFormulaValues {
				line[c] = nil
			} else {
				line[c] = cell.Value
			}
		}
		out[r] = line
	}
	return out
}

// formulasToAny builds the optional formulas grid: null for any cell
// that does not carry a formula.
func formulasToAny(rows [][]sheet.CellData) [][]any {
	out := make([][]any, len(rows))
	for r, row := range rows {
		line := make([]any, len(row))
		for c, cell := range row {
			if cell.IsFormula() {
				line[c] = cell.Formula
			} else {
				line[c] = nil
			}
		}
		out[r] = line
	}
	return out
}

// estimateJSONChars approximates the serialized size of rows,
// accounting for escape-widening characters (quotes, backslashes,
// control characters, and the U+2028/U+2029 line separators that JSON
// but not JS literals must escape).
func estimateJSONChars(rows [][]sheet.CellData) int {
	total := 0
	for _, row := range rows {
		for _, cell := range row {
			if s, ok := cell.Value.(string); ok {
				total += jsonEscapedLen(s)
			} else {
				total += len(fmt.Sprintf("%v", cell.Value))
			}
			total += 2 // field separators
		}
	}
	return total
}

func jsonEscapedLen(s string) int {
	n := 2 // surrounding quotes
	for _, r := range s {
		switch {
		case r == '"' || r == '\\':
			n += 2
		case r < 0x20:
			n += 6
		case r == '\u2028' || r == '\u2029':
			n += 6
		default:
			n += len(string(r))
		}
	}
	return n
}
